// internal/deck/deck_test.go
package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overture-games/mandate/internal/models"
)

func TestCatalogShape(t *testing.T) {
	defs := Catalog()
	require.Len(t, defs, 63)

	assets := 0
	crises := 0
	seen := map[string]bool{}
	for _, d := range defs {
		require.False(t, seen[d.DefID], "duplicate def id %s", d.DefID)
		seen[d.DefID] = true
		switch d.Kind {
		case models.KindAsset:
			assets++
			assert.True(t, d.AssetColor.IsValid())
			assert.True(t, d.AssetValue.IsValid())
		case models.KindCrisis:
			crises++
			assert.Empty(t, d.AssetColor)
			assert.Empty(t, d.AssetValue)
		}
	}
	assert.Equal(t, 60, assets)
	assert.Equal(t, 3, crises)

	assert.Equal(t, "asset.institution.A", defs[0].DefID)
	assert.Equal(t, "crisis.3", defs[62].DefID)
}

func TestShuffleIsDeterministicPerSeed(t *testing.T) {
	a := New("r1", "seed-alpha")
	b := New("r1", "seed-alpha")
	c := New("r1", "seed-beta")

	drawA := a.Draw(63)
	drawB := b.Draw(63)
	drawC := c.Draw(63)
	require.Len(t, drawA, 63)

	sameAsB := true
	sameAsC := true
	for i := range drawA {
		if drawA[i].DefID != drawB[i].DefID {
			sameAsB = false
		}
		if drawA[i].DefID != drawC[i].DefID {
			sameAsC = false
		}
	}
	assert.True(t, sameAsB, "same seed must produce the same order")
	assert.False(t, sameAsC, "different seeds should diverge")
}

func TestInstanceIDsAreNamespacedByRound(t *testing.T) {
	d := New("round_7_abc", "s")
	cards := d.Draw(3)
	for _, c := range cards {
		assert.Equal(t, "round_7_abc:"+c.DefID, c.InstanceID)
	}
}

func TestDrawPopsAndExhausts(t *testing.T) {
	d := New("r1", "s")
	require.Equal(t, 63, d.Remaining())

	first := d.Draw(6)
	require.Len(t, first, 6)
	assert.Equal(t, 57, d.Remaining())

	rest := d.Draw(100)
	assert.Len(t, rest, 57)
	assert.True(t, d.IsEmpty())

	// Drawing from an empty pile yields nothing.
	assert.Empty(t, d.Draw(1))
}
