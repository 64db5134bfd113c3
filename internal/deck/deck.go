// internal/deck/deck.go
//
// Package deck builds and shuffles the fixed 63-card deck: 60 asset cards
// (6 colors x 10 values) plus 3 crisis cards. The shuffle is driven by a
// small seeded LCG so a round's card order is reproducible from its seed,
// which replay and auto-play verification depend on.
package deck

import (
	"fmt"
	"strings"

	"github.com/overture-games/mandate/internal/models"
)

// Definition is one entry of the static card catalog.
type Definition struct {
	DefID      string
	Kind       models.CardKind
	AssetColor models.AssetColor
	AssetValue models.AssetValue
}

// Catalog returns the 63 card definitions in a fixed order: all assets by
// color then value, followed by crisis.1 through crisis.3.
func Catalog() []Definition {
	defs := make([]Definition, 0, 63)
	for _, color := range models.AssetColors {
		for _, value := range models.AssetValues {
			defs = append(defs, Definition{
				DefID:      fmt.Sprintf("asset.%s.%s", strings.ToLower(string(color)), value),
				Kind:       models.KindAsset,
				AssetColor: color,
				AssetValue: value,
			})
		}
	}
	for i := 1; i <= 3; i++ {
		defs = append(defs, Definition{
			DefID: fmt.Sprintf("crisis.%d", i),
			Kind:  models.KindCrisis,
		})
	}
	return defs
}

// rng is a linear congruential generator matching the one used by the
// reference implementation, so recorded seeds shuffle identically here.
type rng struct {
	state uint32
}

func newRNG(seed string) *rng {
	// 31-shift string hash; clamp zero to 1 so the stream never degenerates.
	var hash int32
	for _, ch := range seed {
		hash = (hash << 5) - hash + int32(ch)
	}
	if hash < 0 {
		hash = -hash
	}
	if hash == 0 {
		hash = 1
	}
	return &rng{state: uint32(hash)}
}

func (r *rng) next() float64 {
	r.state = r.state*1664525 + 1013904223
	return float64(r.state) / 4294967296.0
}

// intn returns an integer in [0, max] inclusive.
func (r *rng) intn(max int) int {
	return int(r.next() * float64(max+1))
}

// Deck is a shuffled pile of card instances for one round. Draw pops from
// the end.
type Deck struct {
	cards []*models.CardInstance
}

// New builds and shuffles a deck. Card instance ids are namespaced by round
// id so they stay unique within the round.
func New(roundID, seed string) *Deck {
	catalog := Catalog()
	cards := make([]*models.CardInstance, 0, len(catalog))
	for _, def := range catalog {
		cards = append(cards, &models.CardInstance{
			InstanceID: fmt.Sprintf("%s:%s", roundID, def.DefID),
			DefID:      def.DefID,
			Kind:       def.Kind,
			AssetColor: def.AssetColor,
			AssetValue: def.AssetValue,
		})
	}

	// Fisher-Yates with the seeded generator.
	r := newRNG(seed)
	for i := len(cards) - 1; i > 0; i-- {
		j := r.intn(i)
		cards[i], cards[j] = cards[j], cards[i]
	}

	return &Deck{cards: cards}
}

// Draw removes and returns up to n cards from the top of the pile.
func (d *Deck) Draw(n int) []*models.CardInstance {
	drawn := make([]*models.CardInstance, 0, n)
	for i := 0; i < n && len(d.cards) > 0; i++ {
		last := len(d.cards) - 1
		drawn = append(drawn, d.cards[last])
		d.cards = d.cards[:last]
	}
	return drawn
}

// Remaining reports how many cards are left.
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// IsEmpty reports whether the pile is exhausted.
func (d *Deck) IsEmpty() bool {
	return len(d.cards) == 0
}
