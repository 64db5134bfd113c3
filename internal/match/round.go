// internal/match/round.go
//
// Package match holds the Round and Match state machines plus the
// deterministic auto-action selector. A Round is one 7-district contest;
// a Match is the best-of-3 wrapper over Rounds. Neither touches the network;
// the room manager drives both and turns their outcomes into events.
package match

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/overture-games/mandate/internal/deck"
	"github.com/overture-games/mandate/internal/engine"
	"github.com/overture-games/mandate/internal/models"
	"github.com/overture-games/mandate/internal/protocol"
)

// RoundPhase is the turn-loop state.
type RoundPhase string

const (
	PhaseRoundSetup      RoundPhase = "ROUND_SETUP"
	PhaseRoundDeal       RoundPhase = "ROUND_DEAL"
	PhaseTurnStart       RoundPhase = "TURN_START"
	PhaseTurnAwaitAction RoundPhase = "TURN_AWAIT_ACTION"
	PhaseTurnAwaitCrisis RoundPhase = "TURN_AWAIT_CRISIS_DECLARATION"
	PhaseTurnResolvePlay RoundPhase = "TURN_RESOLVE_PLAY"
	PhaseTurnClaimCheck  RoundPhase = "TURN_CLAIM_CHECK"
	PhaseTurnDraw        RoundPhase = "TURN_DRAW"
	PhaseTurnEnd         RoundPhase = "TURN_END"
	PhaseRoundEnd        RoundPhase = "ROUND_END"
)

// DistrictStatus marks a district open or claimed.
type DistrictStatus string

const (
	DistrictOpen    DistrictStatus = "OPEN"
	DistrictClaimed DistrictStatus = "CLAIMED"
)

const (
	DistrictCount  = 7
	SlotsPerSide   = 3
	HandSize       = 6
	DistrictsToWin = 3
)

// Side is one seat's three card slots at a district.
type Side struct {
	Slots [SlotsPerSide]*models.CardInstance
}

func (s *Side) filled() int {
	n := 0
	for _, c := range s.Slots {
		if c != nil {
			n++
		}
	}
	return n
}

func (s *Side) placed() []*models.CardInstance {
	cards := make([]*models.CardInstance, 0, SlotsPerSide)
	for _, c := range s.Slots {
		if c != nil {
			cards = append(cards, c)
		}
	}
	return cards
}

// District is one of the seven contested zones. Frozen once claimed.
type District struct {
	ID        string
	Index     int
	Status    DistrictStatus
	ClaimedBy models.Seat // empty while open
	Sides     map[models.Seat]*Side
}

// PendingCrisis records a crisis card lifted from hand and awaiting its
// declaration before it reaches the board.
type PendingCrisis struct {
	Seat           models.Seat
	CardInstanceID string
	DistrictID     string
	SlotIndex      int

	card *models.CardInstance
}

// ClaimCandidate is one completed side competing for a district.
type ClaimCandidate struct {
	Seat   models.Seat          `json:"seat"`
	Config engine.Configuration `json:"config"`
}

// ClaimResult records a resolved district claim.
type ClaimResult struct {
	DistrictID    string
	Winner        models.Seat
	WinningConfig engine.Configuration
	Candidates    []ClaimCandidate
}

// Round is one district contest. All mutation happens through its methods
// while the owning room's lock is held.
type Round struct {
	ID           string
	Index        int
	StartingSeat models.Seat
	Seed         string

	Phase      RoundPhase
	ActiveSeat models.Seat
	TurnNumber int

	pile      *deck.Deck
	hands     map[models.Seat][]*models.CardInstance
	districts []*District

	ClaimedCounts map[models.Seat]int
	Pending       *PendingCrisis
}

// NewRound builds, shuffles, and deals a round. The seed fully determines
// the card order.
func NewRound(index int, startingSeat models.Seat, seed string) *Round {
	r := &Round{
		ID:            fmt.Sprintf("round_%d_%s", index, uuid.New().String()[:8]),
		Index:         index,
		StartingSeat:  startingSeat,
		Seed:          seed,
		Phase:         PhaseRoundSetup,
		ActiveSeat:    startingSeat,
		TurnNumber:    0,
		hands:         make(map[models.Seat][]*models.CardInstance),
		ClaimedCounts: map[models.Seat]int{models.SeatLeft: 0, models.SeatRight: 0, models.SeatIndep: 0},
	}

	r.pile = deck.New(r.ID, seed)

	r.districts = make([]*District, 0, DistrictCount)
	for i := 0; i < DistrictCount; i++ {
		d := &District{
			ID:     fmt.Sprintf("D%d", i),
			Index:  i,
			Status: DistrictOpen,
			Sides:  make(map[models.Seat]*Side, len(models.Seats)),
		}
		for _, seat := range models.Seats {
			d.Sides[seat] = &Side{}
		}
		r.districts = append(r.districts, d)
	}

	r.Phase = PhaseRoundDeal
	for _, seat := range models.Seats {
		r.hands[seat] = r.pile.Draw(HandSize)
	}
	r.Phase = PhaseTurnStart

	return r
}

func (r *Round) Hand(seat models.Seat) []*models.CardInstance {
	return r.hands[seat]
}

func (r *Round) HandCounts() map[models.Seat]int {
	counts := make(map[models.Seat]int, len(models.Seats))
	for _, seat := range models.Seats {
		counts[seat] = len(r.hands[seat])
	}
	return counts
}

func (r *Round) District(id string) *District {
	for _, d := range r.districts {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (r *Round) Districts() []*District {
	return r.districts
}

func (r *Round) DrawPileCount() int {
	return r.pile.Remaining()
}

// StartTurn advances the turn counter and opens the action window.
func (r *Round) StartTurn() {
	r.TurnNumber++
	r.Phase = PhaseTurnAwaitAction
}

// AdvanceTurn rotates the active seat and returns to TURN_START.
func (r *Round) AdvanceTurn() {
	r.ActiveSeat = r.ActiveSeat.Next()
	r.Phase = PhaseTurnStart
}

// ValidatePlayCard checks a placement without mutating anything. An empty
// reason code means the play is legal.
func (r *Round) ValidatePlayCard(seat models.Seat, cardInstanceID, districtID string, slotIndex int) protocol.ReasonCode {
	if r.ActiveSeat != seat {
		return protocol.ReasonNotYourTurn
	}
	if r.Phase != PhaseTurnAwaitAction {
		return protocol.ReasonInvalidPhase
	}
	if r.handIndex(seat, cardInstanceID) < 0 {
		return protocol.ReasonCardNotInHand
	}
	d := r.District(districtID)
	if d == nil {
		return protocol.ReasonDistrictNotFound
	}
	if d.Status == DistrictClaimed {
		return protocol.ReasonDistrictClaimed
	}
	if slotIndex < 0 || slotIndex >= SlotsPerSide {
		return protocol.ReasonInvalidSlotIndex
	}
	side := d.Sides[seat]
	if side.Slots[slotIndex] != nil {
		return protocol.ReasonSlotOccupied
	}
	if side.filled() >= SlotsPerSide {
		return protocol.ReasonSideFull
	}
	return ""
}

func (r *Round) handIndex(seat models.Seat, cardInstanceID string) int {
	for i, c := range r.hands[seat] {
		if c.InstanceID == cardInstanceID {
			return i
		}
	}
	return -1
}

// PlayCard removes the card from hand and either places it (asset) or parks
// it as a pending crisis awaiting declaration. Callers must validate first.
func (r *Round) PlayCard(seat models.Seat, cardInstanceID, districtID string, slotIndex int) *models.CardInstance {
	idx := r.handIndex(seat, cardInstanceID)
	if idx < 0 {
		return nil
	}

	hand := r.hands[seat]
	card := hand[idx]
	r.hands[seat] = append(hand[:idx], hand[idx+1:]...)

	if card.Kind == models.KindCrisis {
		r.Pending = &PendingCrisis{
			Seat:           seat,
			CardInstanceID: cardInstanceID,
			DistrictID:     districtID,
			SlotIndex:      slotIndex,
			card:           card,
		}
		r.Phase = PhaseTurnAwaitCrisis
		return card
	}

	r.District(districtID).Sides[seat].Slots[slotIndex] = card
	r.Phase = PhaseTurnResolvePlay
	return card
}

// DeclareCrisis fixes the pending crisis card's color and value and places
// it on the board. It returns the consumed placement so the caller can emit
// the matching CARD_PLAYED event.
func (r *Round) DeclareCrisis(seat models.Seat, color models.AssetColor, value models.AssetValue) (*PendingCrisis, bool) {
	if r.Pending == nil || r.Pending.Seat != seat {
		return nil, false
	}
	if r.Phase != PhaseTurnAwaitCrisis {
		return nil, false
	}
	if value == models.ValueAce || !value.IsValid() || !color.IsValid() {
		return nil, false
	}

	pending := r.Pending
	card := pending.card
	card.CrisisState = &models.CrisisState{DeclaredColor: color, DeclaredValue: value}
	r.District(pending.DistrictID).Sides[seat].Slots[pending.SlotIndex] = card

	r.Pending = nil
	r.Phase = PhaseTurnResolvePlay
	return pending, true
}

// DrawCard refills the seat's hand by one. An empty pile is a normal
// condition, not an error.
func (r *Round) DrawCard(seat models.Seat) *models.CardInstance {
	if r.pile.IsEmpty() {
		return nil
	}
	card := r.pile.Draw(1)[0]
	r.hands[seat] = append(r.hands[seat], card)
	return card
}

// claimable reports whether the district has triggered: any side holding
// three Aces claims immediately, otherwise at least two sides must be full.
func (r *Round) claimable(d *District) bool {
	completed := 0
	for _, seat := range models.Seats {
		cards := d.Sides[seat].placed()
		if len(cards) < SlotsPerSide {
			continue
		}
		completed++
		allAces := true
		for _, c := range cards {
			ec, ok := c.Effective()
			if !ok || ec.Value != models.ValueAce {
				allAces = false
				break
			}
		}
		if allAces {
			return true
		}
	}
	return completed >= 2
}

// ResolveClaims resolves every triggered district in ascending index order.
// Only sides with three placed cards compete; the best configuration wins.
func (r *Round) ResolveClaims() []ClaimResult {
	var results []ClaimResult

	for _, d := range r.districts {
		if d.Status == DistrictClaimed || !r.claimable(d) {
			continue
		}

		candidates := make([]ClaimCandidate, 0, len(models.Seats))
		for _, seat := range models.Seats {
			cards := d.Sides[seat].placed()
			if len(cards) != SlotsPerSide {
				continue
			}
			var eval [3]models.EvalCard
			for i, c := range cards {
				ec, _ := c.Effective()
				eval[i] = ec
			}
			candidates = append(candidates, ClaimCandidate{Seat: seat, Config: engine.Evaluate(eval)})
		}
		if len(candidates) == 0 {
			continue
		}

		// Stable sort keeps the LEFT/RIGHT/INDEP order on exact ties.
		sort.SliceStable(candidates, func(i, j int) bool {
			return engine.Compare(candidates[i].Config, candidates[j].Config) < 0
		})
		winner := candidates[0]

		d.Status = DistrictClaimed
		d.ClaimedBy = winner.Seat
		r.ClaimedCounts[winner.Seat]++

		results = append(results, ClaimResult{
			DistrictID:    d.ID,
			Winner:        winner.Seat,
			WinningConfig: winner.Config,
			Candidates:    candidates,
		})
	}

	return results
}

// CheckRoundEnd ends the round the instant a seat holds three districts.
func (r *Round) CheckRoundEnd() (models.Seat, bool) {
	for _, seat := range models.Seats {
		if r.ClaimedCounts[seat] >= DistrictsToWin {
			r.Phase = PhaseRoundEnd
			return seat, true
		}
	}
	return "", false
}

// State renders the public round view. Hands appear only as counts.
func (r *Round) State() protocol.RoundState {
	districts := make([]protocol.DistrictState, 0, len(r.districts))
	for _, d := range r.districts {
		ds := protocol.DistrictState{
			DistrictID:    d.ID,
			DistrictIndex: d.Index,
			Status:        string(d.Status),
			Sides:         make(map[models.Seat]protocol.SideState, len(models.Seats)),
		}
		if d.Status == DistrictClaimed {
			claimedBy := d.ClaimedBy
			ds.ClaimedBy = &claimedBy
		}
		for _, seat := range models.Seats {
			ds.Sides[seat] = protocol.SideState{Cards: d.Sides[seat].Slots}
		}
		districts = append(districts, ds)
	}

	return protocol.RoundState{
		RoundID:       r.ID,
		RoundIndex:    r.Index,
		Phase:         string(r.Phase),
		ActiveSeat:    r.ActiveSeat,
		TurnNumber:    r.TurnNumber,
		DrawPileCount: r.DrawPileCount(),
		HandCounts:    r.HandCounts(),
		Districts:     districts,
		ClaimedCounts: cloneCounts(r.ClaimedCounts),
	}
}

// PrivateHand copies the seat's hand for a HAND_SNAPSHOT.
func (r *Round) PrivateHand(seat models.Seat) []*models.CardInstance {
	hand := r.hands[seat]
	out := make([]*models.CardInstance, len(hand))
	copy(out, hand)
	return out
}

func cloneCounts(m map[models.Seat]int) map[models.Seat]int {
	out := make(map[models.Seat]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
