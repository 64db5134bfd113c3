// internal/match/auto.go
package match

import (
	"sort"

	"github.com/overture-games/mandate/internal/models"
)

// AutoAction is a stand-in decision for a seat whose turn timer expired.
// Pass means no legal placement exists; the turn simply advances.
type AutoAction struct {
	Pass           bool
	CardInstanceID string
	CardDefID      string
	DistrictID     string
	SlotIndex      int
}

// SelectAutoPlay picks a deterministic legal play for the seat: every
// (card, open district, first empty slot) triple, sorted by district index,
// then slot index, then card definition id, first one wins.
func SelectAutoPlay(r *Round, seat models.Seat) AutoAction {
	var plays []AutoAction

	for _, card := range r.Hand(seat) {
		for _, d := range r.Districts() {
			if d.Status == DistrictClaimed {
				continue
			}
			side := d.Sides[seat]
			if side.filled() >= SlotsPerSide {
				continue
			}
			for slot := 0; slot < SlotsPerSide; slot++ {
				if side.Slots[slot] == nil {
					plays = append(plays, AutoAction{
						CardInstanceID: card.InstanceID,
						CardDefID:      card.DefID,
						DistrictID:     d.ID,
						SlotIndex:      slot,
					})
					break
				}
			}
		}
	}

	if len(plays) == 0 {
		return AutoAction{Pass: true}
	}

	sort.Slice(plays, func(i, j int) bool {
		a, b := plays[i], plays[j]
		da, db := r.District(a.DistrictID).Index, r.District(b.DistrictID).Index
		if da != db {
			return da < db
		}
		if a.SlotIndex != b.SlotIndex {
			return a.SlotIndex < b.SlotIndex
		}
		return a.CardDefID < b.CardDefID
	})

	return plays[0]
}

// SelectAutoCrisis returns the fixed default declaration: the first defined
// color and the lowest allowed value. No game state is consulted.
func SelectAutoCrisis() (models.AssetColor, models.AssetValue) {
	return models.AssetColors[0], models.AssetValue("2")
}
