// Package entity defines the creatures, items and status effects that
// populate a dungeon, together with the d20 checks resolved against them.
package entity

import "errors"

// Ability score bounds.
const (
	AbilityMin = 1
	AbilityMax = 30
)

// ErrInvalidAbilityScore indicates an ability score outside 1..30.
var ErrInvalidAbilityScore = errors.New("ability scores must be between 1 and 30")

// AbilityName identifies one of the six ability scores.
type AbilityName string

const (
	AbilitySTR AbilityName = "str"
	AbilityDEX AbilityName = "dex"
	AbilityCON AbilityName = "con"
	AbilityINT AbilityName = "int"
	AbilityWIS AbilityName = "wis"
	AbilityCHA AbilityName = "cha"
)

// AbilityNames lists the six abilities in canonical order.
var AbilityNames = []AbilityName{AbilitySTR, AbilityDEX, AbilityCON, AbilityINT, AbilityWIS, AbilityCHA}

// Abilities holds the six ability scores.
type Abilities struct {
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Charisma     int `json:"charisma"`
}

// DefaultAbilities returns a flat array of tens.
func DefaultAbilities() Abilities {
	return Abilities{Strength: 10, Dexterity: 10, Constitution: 10, Intelligence: 10, Wisdom: 10, Charisma: 10}
}

// Validate checks every score against the 1..30 range.
func (a Abilities) Validate() error {
	for _, name := range AbilityNames {
		score := a.Score(name)
		if score < AbilityMin || score > AbilityMax {
			return ErrInvalidAbilityScore
		}
	}
	return nil
}

// Score returns the named ability score; unknown names return 10.
func (a Abilities) Score(name AbilityName) int {
	switch name {
	case AbilitySTR:
		return a.Strength
	case AbilityDEX:
		return a.Dexterity
	case AbilityCON:
		return a.Constitution
	case AbilityINT:
		return a.Intelligence
	case AbilityWIS:
		return a.Wisdom
	case AbilityCHA:
		return a.Charisma
	default:
		return 10
	}
}

// SetScore assigns the named ability score in place. Unknown names are ignored.
func (a *Abilities) SetScore(name AbilityName, score int) {
	switch name {
	case AbilitySTR:
		a.Strength = score
	case AbilityDEX:
		a.Dexterity = score
	case AbilityCON:
		a.Constitution = score
	case AbilityINT:
		a.Intelligence = score
	case AbilityWIS:
		a.Wisdom = score
	case AbilityCHA:
		a.Charisma = score
	}
}

// Modifier returns the D&D modifier for the named ability:
// (score - 10) / 2 with floor division toward negative infinity.
func (a Abilities) Modifier(name AbilityName) int {
	return AbilityModifier(a.Score(name))
}

// AbilityModifier computes (score - 10) / 2 flooring toward negative
// infinity, so a score of 9 yields -1, not 0.
func AbilityModifier(score int) int {
	diff := score - 10
	if diff >= 0 {
		return diff / 2
	}
	return (diff - 1) / 2
}
