// internal/match/match.go
package match

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/overture-games/mandate/internal/models"
	"github.com/overture-games/mandate/internal/protocol"
)

// MatchPhase is the coarse match lifecycle.
type MatchPhase string

const (
	MatchInit        MatchPhase = "MATCH_INIT"
	MatchRoundActive MatchPhase = "MATCH_ROUND_ACTIVE"
	MatchRoundEnd    MatchPhase = "MATCH_ROUND_END"
	MatchEnd         MatchPhase = "MATCH_END"
)

const roundsPerMatch = 3

// TiebreakDistricts labels the post-round-3 tiebreak in MATCH_RESULT.
const TiebreakDistricts = "districts_won_total"

// Result is a terminal match outcome. Winner is nil only when the final
// tiebreak is itself a dead tie.
type Result struct {
	Winner     *models.Seat
	MatchScore map[models.Seat]int
	Tiebreak   *string
}

// Match is the best-of-3 wrapper over Rounds.
type Match struct {
	ID    string
	Seats map[models.Seat]string // seat -> player id

	Phase             MatchPhase
	Score             map[models.Seat]int
	RoundIndex        int
	DistrictsWonTotal map[models.Seat]int

	CurrentRound *Round
}

func NewMatch(seats map[models.Seat]string) *Match {
	return &Match{
		ID:                fmt.Sprintf("match_%s", uuid.New().String()[:8]),
		Seats:             seats,
		Phase:             MatchInit,
		Score:             map[models.Seat]int{models.SeatLeft: 0, models.SeatRight: 0, models.SeatIndep: 0},
		RoundIndex:        0,
		DistrictsWonTotal: map[models.Seat]int{models.SeatLeft: 0, models.SeatRight: 0, models.SeatIndep: 0},
	}
}

// StartNextRound begins the next round. The starting seat rotates
// LEFT, RIGHT, INDEP by round number.
func (m *Match) StartNextRound() *Round {
	m.RoundIndex++
	m.Phase = MatchRoundActive

	startingSeat := models.Seats[(m.RoundIndex-1)%len(models.Seats)]
	m.CurrentRound = NewRound(m.RoundIndex, startingSeat, uuid.New().String())
	return m.CurrentRound
}

// EndRound records the round winner and folds district counts into the
// cumulative tiebreak totals.
func (m *Match) EndRound(winner models.Seat) {
	if m.CurrentRound == nil {
		return
	}
	m.Phase = MatchRoundEnd
	m.Score[winner]++
	for _, seat := range models.Seats {
		m.DistrictsWonTotal[seat] += m.CurrentRound.ClaimedCounts[seat]
	}
}

// CheckMatchEnd returns a terminal result, or nil while the match runs.
// Two round wins end the match immediately; otherwise after round 3 the
// highest cumulative district count wins. A shared maximum leaves the
// match with no winner.
func (m *Match) CheckMatchEnd() *Result {
	for _, seat := range models.Seats {
		if m.Score[seat] >= 2 {
			m.Phase = MatchEnd
			winner := seat
			return &Result{Winner: &winner, MatchScore: cloneCounts(m.Score)}
		}
	}

	if m.RoundIndex >= roundsPerMatch {
		m.Phase = MatchEnd
		tiebreak := TiebreakDistricts
		result := &Result{MatchScore: cloneCounts(m.Score), Tiebreak: &tiebreak}

		best := -1
		var winner models.Seat
		unique := false
		for _, seat := range models.Seats {
			switch n := m.DistrictsWonTotal[seat]; {
			case n > best:
				best = n
				winner = seat
				unique = true
			case n == best:
				unique = false
			}
		}
		if unique {
			result.Winner = &winner
		}
		return result
	}

	return nil
}

// SeatFor looks up the seat a player occupies.
func (m *Match) SeatFor(playerID string) (models.Seat, bool) {
	for seat, id := range m.Seats {
		if id == playerID {
			return seat, true
		}
	}
	return "", false
}

// PlayerFor returns the player id occupying a seat.
func (m *Match) PlayerFor(seat models.Seat) string {
	return m.Seats[seat]
}

// State renders the public match view.
func (m *Match) State() protocol.MatchState {
	seats := make(map[models.Seat]string, len(m.Seats))
	for seat, id := range m.Seats {
		seats[seat] = id
	}
	return protocol.MatchState{
		MatchID:           m.ID,
		Phase:             string(m.Phase),
		MatchScore:        cloneCounts(m.Score),
		RoundIndex:        m.RoundIndex,
		Seats:             seats,
		DistrictsWonTotal: cloneCounts(m.DistrictsWonTotal),
	}
}
