// internal/engine/engine.go
//
// Package engine evaluates and compares three-card configurations. Everything
// here is a pure function of its inputs: no state, no I/O, no randomness.
// Claim resolution, auto-play ranking and replays all lean on that.
package engine

import (
	"sort"

	"github.com/overture-games/mandate/internal/models"
)

// ConfigType names the seven configuration ranks, strongest first.
type ConfigType string

const (
	TotalMandate   ConfigType = "TOTAL_MANDATE"   // AAA
	ColorRun       ConfigType = "COLOR_RUN"       // same color + consecutive
	UnifiedMessage ConfigType = "UNIFIED_MESSAGE" // three of a kind (not aces)
	SameColor      ConfigType = "SAME_COLOR"      // same color only
	Run            ConfigType = "RUN"             // consecutive, mixed colors
	Party          ConfigType = "PARTY"           // pair + kicker
	RawPressure    ConfigType = "RAW_PRESSURE"    // fallback
)

// Rank maps each configuration type to its numeric rank, 1 strongest.
var Rank = map[ConfigType]int{
	TotalMandate:   1,
	ColorRun:       2,
	UnifiedMessage: 3,
	SameColor:      4,
	Run:            5,
	Party:          6,
	RawPressure:    7,
}

// Configuration is the evaluated strength of three cards on one side of a
// district. Computed on demand, never stored.
type Configuration struct {
	Type        ConfigType `json:"type"`
	Rank        int        `json:"rank"`
	TotalValue  int        `json:"total_value"`
	PairValue   int        `json:"pair_value,omitempty"`
	KickerValue int        `json:"kicker_value,omitempty"`
}

// IsRun reports whether three faces form a consecutive run. A-2-3 (Ace low)
// and 9-10-A (Ace high) both count; an Ace may not sit in the middle.
func IsRun(values [3]models.AssetValue) bool {
	hasAce := values[0] == models.ValueAce || values[1] == models.ValueAce || values[2] == models.ValueAce

	check := func(nums []int, aceAs int) bool {
		sort.Ints(nums)
		if nums[1] != nums[0]+1 || nums[2] != nums[1]+1 {
			return false
		}
		if hasAce && nums[1] == aceAs {
			return false // Ace in the middle
		}
		return true
	}

	low := []int{values[0].NumericLow(), values[1].NumericLow(), values[2].NumericLow()}
	if check(low, 1) {
		return true
	}
	high := []int{values[0].Numeric(), values[1].Numeric(), values[2].Numeric()}
	return check(high, 11)
}

// Evaluate classifies three cards into a Configuration. The result is
// identical for every permutation of the same cards.
func Evaluate(cards [3]models.EvalCard) Configuration {
	values := [3]models.AssetValue{cards[0].Value, cards[1].Value, cards[2].Value}

	total := values[0].Numeric() + values[1].Numeric() + values[2].Numeric()
	allSameColor := cards[0].Color == cards[1].Color && cards[1].Color == cards[2].Color
	consecutive := IsRun(values)
	allAces := values[0] == models.ValueAce && values[1] == models.ValueAce && values[2] == models.ValueAce
	allSameValue := values[0] == values[1] && values[1] == values[2] && values[0] != models.ValueAce

	mk := func(t ConfigType) Configuration {
		return Configuration{Type: t, Rank: Rank[t], TotalValue: total}
	}

	switch {
	case allAces:
		return mk(TotalMandate)
	case allSameColor && consecutive:
		return mk(ColorRun)
	case allSameValue:
		return mk(UnifiedMessage)
	case allSameColor:
		return mk(SameColor)
	case consecutive:
		return mk(Run)
	}

	// Pair detection, including a double-Ace pair.
	counts := map[models.AssetValue]int{}
	for _, v := range values {
		counts[v]++
	}
	for v, n := range counts {
		if n >= 2 {
			cfg := mk(Party)
			cfg.PairValue = v.Numeric()
			for kv, kn := range counts {
				if kv != v && kn == 1 {
					cfg.KickerValue = kv.Numeric()
				}
			}
			return cfg
		}
	}

	return mk(RawPressure)
}

// Compare orders two configurations: -1 when a is stronger, +1 when b is,
// 0 on a true tie. Lower rank wins outright; equal ranks fall back to total
// value, except PARTY which compares pair value, then kicker.
func Compare(a, b Configuration) int {
	if a.Rank != b.Rank {
		if a.Rank < b.Rank {
			return -1
		}
		return 1
	}

	if a.Type == Party && b.Type == Party {
		if a.PairValue != b.PairValue {
			if a.PairValue > b.PairValue {
				return -1
			}
			return 1
		}
		if a.KickerValue != b.KickerValue {
			if a.KickerValue > b.KickerValue {
				return -1
			}
			return 1
		}
		return 0
	}

	if a.TotalValue != b.TotalValue {
		if a.TotalValue > b.TotalValue {
			return -1
		}
		return 1
	}
	return 0
}
