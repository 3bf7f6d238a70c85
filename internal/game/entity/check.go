package entity

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/ravenmoor/deepspire/internal/game/dice"
)

// EffectModifierSum totals the named modifier across active effects,
// weighting each by its stack count.
func EffectModifierSum(c *Character, key string) int {
	sum := 0.0
	for _, effect := range c.ActiveEffects {
		if v, ok := effect.Modifiers[key]; ok {
			stacks := effect.Stacks
			if stacks < 1 {
				stacks = 1
			}
			sum += v * float64(stacks)
		}
	}
	return int(sum)
}

// EffectiveAC is the stat AC adjusted by active effect modifiers, clamped.
func EffectiveAC(c *Character) int {
	ac := c.Stats.AC + EffectModifierSum(c, "ac")
	if ac < ACMin {
		ac = ACMin
	}
	if ac > ACMax {
		ac = ACMax
	}
	return ac
}

// AbilityCheck rolls d20 + ability modifier against an optional DC.
func AbilityCheck(rng *rand.Rand, c *Character, ability AbilityName, dc *int, mode dice.Mode) (dice.CheckResult, error) {
	modifier := c.Abilities.Modifier(ability) + EffectModifierSum(c, string(ability))
	return dice.Check(rng, dice.CheckRequest{Modifier: modifier, DC: dc, Mode: mode})
}

// SkillCheck is an ability check that adds the proficiency bonus when the
// character is trained in the skill.
func SkillCheck(rng *rand.Rand, c *Character, skill string, ability AbilityName, dc *int, mode dice.Mode) (dice.CheckResult, error) {
	modifier := c.Abilities.Modifier(ability) + EffectModifierSum(c, string(ability))
	if c.HasSkill(skill) {
		modifier += c.ProficiencyBonus()
	}
	return dice.Check(rng, dice.CheckRequest{Modifier: modifier, DC: dc, Mode: mode})
}

// SavingThrow rolls d20 + ability modifier against the save DC.
func SavingThrow(rng *rand.Rand, c *Character, ability AbilityName, dc int, mode dice.Mode) (dice.CheckResult, error) {
	modifier := c.Abilities.Modifier(ability) + EffectModifierSum(c, "save_"+string(ability))
	return dice.Check(rng, dice.CheckRequest{Modifier: modifier, DC: &dc, Mode: mode})
}

// AttackResult captures one attack roll and its damage, if it landed.
type AttackResult struct {
	Check      dice.CheckResult `json:"check"`
	Hit        bool             `json:"hit"`
	Critical   bool             `json:"critical"`
	Damage     int              `json:"damage"`
	DamageType string           `json:"damage_type,omitempty"`
	Outcome    DamageOutcome    `json:"outcome"`
}

// AttackModifier is the attacker's to-hit bonus: the better of STR and DEX,
// proficiency, and any attack modifiers from active effects.
func AttackModifier(c *Character) int {
	str := c.Abilities.Modifier(AbilitySTR)
	dex := c.Abilities.Modifier(AbilityDEX)
	best := str
	if dex > best {
		best = dex
	}
	return best + c.ProficiencyBonus() + EffectModifierSum(c, "attack")
}

// ResolveAttack rolls the attacker's to-hit against the target's effective
// AC and applies weapon damage on a hit. A critical hit doubles the weapon
// dice; the flat bonus is added once either way.
func ResolveAttack(rng *rand.Rand, attacker, target *Character, mode dice.Mode) (AttackResult, error) {
	targetAC := EffectiveAC(target)
	check, err := dice.Check(rng, dice.CheckRequest{Modifier: AttackModifier(attacker), DC: &targetAC, Mode: mode})
	if err != nil {
		return AttackResult{}, err
	}

	result := AttackResult{Check: check, Critical: check.CriticalSuccess}
	if check.CriticalFailure {
		return result, nil
	}
	result.Hit = check.Success
	if !result.Hit {
		return result, nil
	}

	spec, bonus, damageType := weaponDamage(attacker)
	count := spec.Count
	if result.Critical {
		count *= 2
	}
	_, rolled, err := dice.RollDice(rng, dice.Spec{Sides: spec.Sides, Count: count})
	if err != nil {
		return AttackResult{}, err
	}
	damage := rolled + bonus + EffectModifierSum(attacker, "damage")
	if damage < 1 {
		damage = 1
	}
	result.Damage = damage
	result.DamageType = damageType
	result.Outcome = target.ApplyDamage(damage, damageType)
	return result, nil
}

// weaponDamage reads the equipped main-hand weapon's dice notation from its
// properties (damage_dice, e.g. "1d8"; damage_type; damage_bonus). Unarmed
// attacks fall back to 1d4 + STR.
func weaponDamage(c *Character) (dice.Spec, int, string) {
	spec := dice.Spec{Sides: 4, Count: 1}
	bonus := c.Abilities.Modifier(AbilitySTR)
	damageType := "bludgeoning"

	weapon, ok := c.EquippedItem(SlotMainHand)
	if !ok {
		return spec, bonus, damageType
	}
	if notation, ok := weapon.Properties["damage_dice"].(string); ok {
		if parsed, err := ParseDiceNotation(notation); err == nil {
			spec = parsed
		}
	}
	if dt, ok := weapon.Properties["damage_type"].(string); ok && dt != "" {
		damageType = dt
	}
	switch v := weapon.Properties["damage_bonus"].(type) {
	case float64:
		bonus += int(v)
	case int:
		bonus += v
	}
	return spec, bonus, damageType
}

// ParseDiceNotation parses "NdM" strings such as "2d6". Flat modifiers are
// not part of the notation; bonuses ride on item properties instead.
func ParseDiceNotation(notation string) (dice.Spec, error) {
	countStr, sidesStr, ok := strings.Cut(strings.ToLower(strings.TrimSpace(notation)), "d")
	if !ok {
		return dice.Spec{}, dice.ErrInvalidDiceSpec
	}
	if countStr == "" {
		countStr = "1"
	}
	count, err := strconv.Atoi(countStr)
	if err != nil {
		return dice.Spec{}, dice.ErrInvalidDiceSpec
	}
	sides, err := strconv.Atoi(sidesStr)
	if err != nil {
		return dice.Spec{}, dice.ErrInvalidDiceSpec
	}
	if count <= 0 || sides <= 0 {
		return dice.Spec{}, dice.ErrInvalidDiceSpec
	}
	return dice.Spec{Sides: sides, Count: count}, nil
}
