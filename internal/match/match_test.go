// internal/match/match_test.go
package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overture-games/mandate/internal/models"
)

func testSeats() map[models.Seat]string {
	return map[models.Seat]string{
		models.SeatLeft:  "p_left",
		models.SeatRight: "p_right",
		models.SeatIndep: "p_indep",
	}
}

func TestStartingSeatRotates(t *testing.T) {
	m := NewMatch(testSeats())

	r1 := m.StartNextRound()
	assert.Equal(t, models.SeatLeft, r1.StartingSeat)
	m.EndRound(models.SeatLeft)

	r2 := m.StartNextRound()
	assert.Equal(t, models.SeatRight, r2.StartingSeat)
	m.EndRound(models.SeatRight)

	r3 := m.StartNextRound()
	assert.Equal(t, models.SeatIndep, r3.StartingSeat)
}

func TestTwoRoundWinsEndTheMatch(t *testing.T) {
	m := NewMatch(testSeats())

	m.StartNextRound()
	m.EndRound(models.SeatRight)
	assert.Nil(t, m.CheckMatchEnd())

	m.StartNextRound()
	m.EndRound(models.SeatRight)

	result := m.CheckMatchEnd()
	require.NotNil(t, result)
	require.NotNil(t, result.Winner)
	assert.Equal(t, models.SeatRight, *result.Winner)
	assert.Nil(t, result.Tiebreak)
	assert.Equal(t, MatchEnd, m.Phase)
}

func TestTiebreakByDistrictsWonTotal(t *testing.T) {
	m := NewMatch(testSeats())

	winners := []models.Seat{models.SeatLeft, models.SeatRight, models.SeatIndep}
	claims := []map[models.Seat]int{
		{models.SeatLeft: 3, models.SeatRight: 1, models.SeatIndep: 0},
		{models.SeatLeft: 1, models.SeatRight: 3, models.SeatIndep: 2},
		{models.SeatLeft: 0, models.SeatRight: 1, models.SeatIndep: 3},
	}

	for i := 0; i < 3; i++ {
		r := m.StartNextRound()
		for seat, n := range claims[i] {
			r.ClaimedCounts[seat] = n
		}
		m.EndRound(winners[i])
		if i < 2 {
			assert.Nil(t, m.CheckMatchEnd())
		}
	}

	result := m.CheckMatchEnd()
	require.NotNil(t, result)
	require.NotNil(t, result.Tiebreak)
	assert.Equal(t, TiebreakDistricts, *result.Tiebreak)
	// Totals: LEFT 4, RIGHT 5, INDEP 5. A shared maximum leaves no winner.
	assert.Nil(t, result.Winner)
}

func TestTiebreakUniqueMaximumWins(t *testing.T) {
	m := NewMatch(testSeats())

	winners := []models.Seat{models.SeatLeft, models.SeatRight, models.SeatIndep}
	claims := []map[models.Seat]int{
		{models.SeatLeft: 3, models.SeatRight: 1, models.SeatIndep: 0},
		{models.SeatLeft: 1, models.SeatRight: 3, models.SeatIndep: 1},
		{models.SeatLeft: 0, models.SeatRight: 2, models.SeatIndep: 3},
	}

	for i := 0; i < 3; i++ {
		r := m.StartNextRound()
		for seat, n := range claims[i] {
			r.ClaimedCounts[seat] = n
		}
		m.EndRound(winners[i])
	}

	result := m.CheckMatchEnd()
	require.NotNil(t, result)
	require.NotNil(t, result.Winner)
	assert.Equal(t, models.SeatRight, *result.Winner)
	require.NotNil(t, result.Tiebreak)
}

func TestSeatLookups(t *testing.T) {
	m := NewMatch(testSeats())

	seat, ok := m.SeatFor("p_indep")
	require.True(t, ok)
	assert.Equal(t, models.SeatIndep, seat)

	_, ok = m.SeatFor("p_stranger")
	assert.False(t, ok)

	assert.Equal(t, "p_left", m.PlayerFor(models.SeatLeft))
}
