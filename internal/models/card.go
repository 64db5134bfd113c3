// internal/models/card.go
package models

import "strconv"

// CardKind distinguishes the 60 asset cards from the 3 crisis wilds.
type CardKind string

const (
	KindAsset  CardKind = "ASSET"
	KindCrisis CardKind = "CRISIS"
)

// AssetColor is one of the six card colors.
type AssetColor string

const (
	ColorInstitution AssetColor = "INSTITUTION"
	ColorBase        AssetColor = "BASE"
	ColorMedia       AssetColor = "MEDIA"
	ColorCapital     AssetColor = "CAPITAL"
	ColorIdeology    AssetColor = "IDEOLOGY"
	ColorLogistics   AssetColor = "LOGISTICS"
)

// AssetColors lists every color in declaration order. Index 0 is the default
// used for automatic crisis declarations.
var AssetColors = []AssetColor{
	ColorInstitution,
	ColorBase,
	ColorMedia,
	ColorCapital,
	ColorIdeology,
	ColorLogistics,
}

// AssetValue is the printed face of an asset card: "A" or "2".."10".
type AssetValue string

const ValueAce AssetValue = "A"

// AssetValues lists every value, Ace first.
var AssetValues = []AssetValue{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10"}

// IsValid reports whether v is one of the ten defined faces.
func (v AssetValue) IsValid() bool {
	for _, av := range AssetValues {
		if av == v {
			return true
		}
	}
	return false
}

// Numeric maps a face to its value for totals and comparisons. Ace counts 11.
func (v AssetValue) Numeric() int {
	if v == ValueAce {
		return 11
	}
	n, _ := strconv.Atoi(string(v))
	return n
}

// NumericLow is like Numeric but treats Ace as 1, for probing the low end of a
// run (A-2-3).
func (v AssetValue) NumericLow() int {
	if v == ValueAce {
		return 1
	}
	return v.Numeric()
}

// IsValid reports whether c is one of the six defined colors.
func (c AssetColor) IsValid() bool {
	for _, ac := range AssetColors {
		if ac == c {
			return true
		}
	}
	return false
}

// CrisisState is the color/value a crisis card takes when declared. Set at
// most once, when the card is played.
type CrisisState struct {
	DeclaredColor AssetColor `json:"declared_color"`
	DeclaredValue AssetValue `json:"declared_value"`
}

// CardInstance is one physical card in a round. Asset cards carry a fixed
// color and value; a crisis card carries neither until its declaration.
type CardInstance struct {
	InstanceID  string       `json:"card_instance_id"`
	DefID       string       `json:"card_def_id"`
	Kind        CardKind     `json:"kind"`
	AssetColor  AssetColor   `json:"asset_color,omitempty"`
	AssetValue  AssetValue   `json:"asset_value,omitempty"`
	CrisisState *CrisisState `json:"crisis_state,omitempty"`
}

// EvalCard is the effective color/value a card contributes to a
// configuration. Undeclared crisis cards have no EvalCard.
type EvalCard struct {
	Color    AssetColor
	Value    AssetValue
	IsCrisis bool
}

// Effective resolves the card to its evaluation form. The second return is
// false for a crisis card that has not been declared yet.
func (c *CardInstance) Effective() (EvalCard, bool) {
	if c.Kind == KindCrisis {
		if c.CrisisState == nil {
			return EvalCard{}, false
		}
		return EvalCard{
			Color:    c.CrisisState.DeclaredColor,
			Value:    c.CrisisState.DeclaredValue,
			IsCrisis: true,
		}, true
	}
	return EvalCard{Color: c.AssetColor, Value: c.AssetValue}, true
}
