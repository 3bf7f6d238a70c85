// Package trap resolves the trap lifecycle: armed traps are detected
// (passively or actively), then disarmed or triggered with a DEX save.
package trap

import (
	"fmt"
	"math/rand"

	"github.com/ravenmoor/deepspire/internal/game/dice"
	"github.com/ravenmoor/deepspire/internal/game/entity"
	"github.com/ravenmoor/deepspire/internal/game/world"
)

// ThievesTools is the tool proficiency that removes the disarm disadvantage.
const ThievesTools = "thieves_tools"

// SaveResult reports one d20 save or check inside a trap interaction.
type SaveResult struct {
	Success         bool `json:"success"`
	Natural         int  `json:"natural"`
	Total           int  `json:"total"`
	DC              int  `json:"dc"`
	CriticalSuccess bool `json:"critical_success,omitempty"`
	CriticalFailure bool `json:"critical_failure,omitempty"`
}

func saveResult(check dice.CheckResult, dc int) SaveResult {
	return SaveResult{
		Success:         check.Success,
		Natural:         check.Natural,
		Total:           check.Total,
		DC:              dc,
		CriticalSuccess: check.CriticalSuccess,
		CriticalFailure: check.CriticalFailure,
	}
}

// PassiveDetect marks the trap detected when the character's passive
// perception meets the detect DC. Called on move-in; no dice involved.
func PassiveDetect(c *entity.Character, tile *world.Tile) bool {
	if !tile.ArmedTrap() || tile.TrapDetected {
		return tile.TrapDetected
	}
	if c.PassivePerception() >= tile.TrapData.DetectDC {
		tile.TrapDetected = true
	}
	return tile.TrapDetected
}

// ActiveDetect rolls d20 + WIS modifier + perception proficiency against the
// detect DC.
func ActiveDetect(rng *rand.Rand, c *entity.Character, tile *world.Tile) (SaveResult, error) {
	if !tile.ArmedTrap() {
		return SaveResult{}, fmt.Errorf("no armed trap on tile (%d,%d)", tile.X, tile.Y)
	}
	dc := tile.TrapData.DetectDC
	check, err := entity.SkillCheck(rng, c, "perception", entity.AbilityWIS, &dc, dice.ModeNormal)
	if err != nil {
		return SaveResult{}, err
	}
	if check.Success {
		tile.TrapDetected = true
	}
	return saveResult(check, dc), nil
}

// DisarmOutcome reports a disarm attempt. A failed attempt triggers the
// trap; Trigger then carries the result.
type DisarmOutcome struct {
	Disarmed bool           `json:"disarmed"`
	Check    SaveResult     `json:"check"`
	Trigger  *TriggerResult `json:"trigger,omitempty"`
	Messages []string       `json:"messages,omitempty"`
}

// Disarm rolls d20 + DEX modifier + thieves'-tools proficiency against the
// disarm DC, at disadvantage without the tools. Failure fires the trap.
func Disarm(rng *rand.Rand, c *entity.Character, tile *world.Tile, m *world.GameMap) (DisarmOutcome, error) {
	if !tile.ArmedTrap() {
		return DisarmOutcome{}, fmt.Errorf("no armed trap on tile (%d,%d)", tile.X, tile.Y)
	}
	dc := tile.TrapData.DisarmDC
	modifier := c.Abilities.Modifier(entity.AbilityDEX)
	mode := dice.ModeDisadvantage
	if c.HasTool(ThievesTools) {
		modifier += c.ProficiencyBonus()
		mode = dice.ModeNormal
	}
	check, err := dice.Check(rng, dice.CheckRequest{Modifier: modifier, DC: &dc, Mode: mode})
	if err != nil {
		return DisarmOutcome{}, err
	}
	outcome := DisarmOutcome{Check: saveResult(check, dc)}
	if check.Success {
		tile.TrapDisarmed = true
		outcome.Disarmed = true
		outcome.Messages = append(outcome.Messages, fmt.Sprintf("成功拆除了%s", tile.TrapData.Name))
		return outcome, nil
	}
	trigger, err := Trigger(rng, c, tile, m)
	if err != nil {
		return DisarmOutcome{}, err
	}
	outcome.Trigger = &trigger
	outcome.Messages = append(outcome.Messages, fmt.Sprintf("拆除失败, %s被触发了", tile.TrapData.Name))
	return outcome, nil
}

// TriggerResult reports a fired trap. Damage is already routed through the
// victim's resistances; TeleportTo is set for teleport traps and the caller
// moves the victim.
type TriggerResult struct {
	TrapName      string               `json:"trap_name"`
	Kind          world.TrapKind       `json:"kind"`
	SaveAttempted bool                 `json:"save_attempted"`
	SaveResult    *SaveResult          `json:"save_result,omitempty"`
	Damage        int                  `json:"damage,omitempty"`
	DamageType    string               `json:"damage_type,omitempty"`
	Debuff        *entity.StatusEffect `json:"debuff,omitempty"`
	TeleportTo    *entity.Position     `json:"teleport_to,omitempty"`
	AlarmRaised   bool                 `json:"alarm_raised,omitempty"`
	Messages      []string             `json:"messages,omitempty"`
}

// Trigger fires the trap against the victim with an automatic DEX save.
// Damage traps honour save-half; debuff and restraint traps skip their
// effect on a successful save; teleport traps move the victim regardless.
func Trigger(rng *rand.Rand, victim *entity.Character, tile *world.Tile, m *world.GameMap) (TriggerResult, error) {
	if !tile.ArmedTrap() {
		return TriggerResult{}, fmt.Errorf("no armed trap on tile (%d,%d)", tile.X, tile.Y)
	}
	trap := tile.TrapData
	tile.TrapTriggered = true

	save, err := entity.SavingThrow(rng, victim, entity.AbilityDEX, trap.SaveDC, dice.ModeNormal)
	if err != nil {
		return TriggerResult{}, err
	}
	sr := saveResult(save, trap.SaveDC)
	result := TriggerResult{
		TrapName:      trap.Name,
		Kind:          trap.Kind,
		SaveAttempted: true,
		SaveResult:    &sr,
	}

	switch trap.Kind {
	case world.TrapDamage:
		damage := trap.Damage
		if save.Success {
			damage /= 2
		}
		outcome := victim.ApplyDamage(damage, trap.DamageType)
		result.Damage = outcome.Applied
		result.DamageType = trap.DamageType
		result.Messages = append(result.Messages, fmt.Sprintf("%s触发了, 受到%d点伤害", trap.Name, outcome.Applied))
	case world.TrapDebuff:
		if !save.Success {
			debuff := trapDebuff(trap)
			result.Debuff = &debuff
			result.Messages = append(result.Messages, fmt.Sprintf("%s触发了, 你中了%s", trap.Name, debuff.Name))
		} else {
			result.Messages = append(result.Messages, fmt.Sprintf("你躲开了%s", trap.Name))
		}
	case world.TrapTeleport:
		if target, ok := m.RandomWalkableTile(rng); ok {
			pos := entity.Position{X: target.X, Y: target.Y}
			result.TeleportTo = &pos
			result.Messages = append(result.Messages, fmt.Sprintf("%s将你传送到了别处", trap.Name))
		}
	case world.TrapAlarm:
		result.AlarmRaised = true
		result.Messages = append(result.Messages, fmt.Sprintf("%s响起, 附近的怪物被惊动了", trap.Name))
	case world.TrapRestraint:
		if !save.Success {
			debuff := entity.StatusEffect{
				Name:          "束缚",
				EffectType:    entity.EffectControl,
				DurationTurns: 2,
				ControlFlags:  []string{entity.ControlRoot},
				DispelType:    "physical",
			}
			result.Debuff = &debuff
			result.Messages = append(result.Messages, fmt.Sprintf("%s缠住了你", trap.Name))
		} else {
			result.Messages = append(result.Messages, fmt.Sprintf("你挣脱了%s", trap.Name))
		}
	}
	return result, nil
}

// trapDebuff builds the debuff a trap inflicts, preferring the authored one.
func trapDebuff(trap *world.Trap) entity.StatusEffect {
	if trap.Debuff != nil {
		return *trap.Debuff
	}
	return entity.StatusEffect{
		Name:          "中毒",
		EffectType:    entity.EffectDebuff,
		DurationTurns: 3,
		TickEffects:   map[string]float64{"damage": 2},
		Metadata:      map[string]any{"damage_type": "poison"},
		DispelType:    "poison",
	}
}
