// Package effect implements the status-effect runtime: item effect
// application, per-turn ticks, stacking resolution, dispel and combat hooks.
package effect

import (
	"fmt"
	"sort"

	"github.com/ravenmoor/deepspire/internal/game/entity"
	"github.com/ravenmoor/deepspire/internal/game/state"
)

// Engine applies and ticks status effects. Callers hold the game lock.
type Engine struct {
	newID func() string
}

// NewEngine builds an effect engine that mints ids for created effects.
func NewEngine(newID func() string) *Engine {
	return &Engine{newID: newID}
}

// EffectResult reports what an item effect application did. Warnings carry
// recoverable problems; Success is false only when nothing applied.
type EffectResult struct {
	Success      bool     `json:"success"`
	Messages     []string `json:"messages,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	HealedHP     int      `json:"healed_hp,omitempty"`
	RestoredMP   int      `json:"restored_mp,omitempty"`
	Damage       int      `json:"damage,omitempty"`
	AddedEffects []string `json:"added_effects,omitempty"`
}

// ApplyItemEffects evaluates an item's effect payload against the player:
// healing, mana, direct damage, experience and attached status effects.
// Unknown payload keys are reported as warnings, not failures.
func (e *Engine) ApplyItemEffects(st *state.State, item *entity.Item, payload map[string]any) EffectResult {
	var res EffectResult
	if payload == nil {
		payload = item.EffectPayload
	}
	if len(payload) == 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s没有可用的效果", item.Name))
		return res
	}
	applied := false
	for key, raw := range payload {
		switch key {
		case "heal":
			if amount, ok := toInt(raw); ok && amount > 0 {
				healed := st.Player.Heal(amount)
				res.HealedHP += healed
				res.Messages = append(res.Messages, fmt.Sprintf("恢复了%d点生命值", healed))
				applied = true
			}
		case "restore_mp":
			if amount, ok := toInt(raw); ok && amount > 0 {
				restored := st.Player.RestoreMP(amount)
				res.RestoredMP += restored
				res.Messages = append(res.Messages, fmt.Sprintf("恢复了%d点法力值", restored))
				applied = true
			}
		case "damage":
			if amount, ok := toInt(raw); ok && amount > 0 {
				damageType, _ := payload["damage_type"].(string)
				outcome := st.Player.ApplyDamage(amount, damageType)
				res.Damage += outcome.Applied
				res.Messages = append(res.Messages, fmt.Sprintf("受到%d点伤害", outcome.Applied))
				applied = true
			}
		case "experience":
			if amount, ok := toInt(raw); ok && amount > 0 {
				st.Player.Stats.Experience += amount
				res.Messages = append(res.Messages, fmt.Sprintf("获得%d点经验", amount))
				applied = true
			}
		case "status_effects":
			entries, ok := raw.([]any)
			if !ok {
				res.Warnings = append(res.Warnings, "status_effects必须是列表")
				continue
			}
			for _, entry := range entries {
				effect, err := decodeEffect(entry)
				if err != nil {
					res.Warnings = append(res.Warnings, fmt.Sprintf("无法解析状态效果: %v", err))
					continue
				}
				messages := e.AddEffect(&st.Player, effect)
				res.Messages = append(res.Messages, messages...)
				res.AddedEffects = append(res.AddedEffects, effect.Name)
				applied = true
			}
		case "damage_type":
			// consumed alongside damage
		default:
			res.Warnings = append(res.Warnings, fmt.Sprintf("未知的效果字段: %s", key))
		}
	}
	res.Success = applied
	if !st.Player.Alive() {
		st.SetGameOver(fmt.Sprintf("物品[%s]导致死亡", item.Name))
	}
	return res
}

// ProcessTurnEffects ticks every active effect on the player and the live
// monsters for the given trigger phase, returning narrative messages.
// Player death during a tick ends the game.
func (e *Engine) ProcessTurnEffects(st *state.State, trigger string) []string {
	messages, killedBy := e.tickHolder(&st.Player, trigger)
	if !st.Player.Alive() {
		if killedBy != "" {
			st.SetGameOver(fmt.Sprintf("状态效果[%s]导致死亡", killedBy))
		} else {
			st.SetGameOver("状态效果导致死亡")
		}
	}
	for i := range st.Monsters {
		if st.Monsters[i].Alive() {
			ticks, _ := e.tickHolder(&st.Monsters[i].Character, trigger)
			messages = append(messages, ticks...)
		}
	}
	return messages
}

// tickHolder applies tick payloads scaled by stacks, then advances
// durations. Effects with negative duration are permanent (equipment
// passives) and never expire here. killedBy names the effect whose damage
// dropped the holder, captured before expiry can remove it.
func (e *Engine) tickHolder(holder *entity.Character, trigger string) (messages []string, killedBy string) {
	kept := holder.ActiveEffects[:0]
	for _, effect := range holder.ActiveEffects {
		ticked := false
		if effect.TriggersOn(trigger) {
			scale := effect.Stacks
			if scale < 1 {
				scale = 1
			}
			for key, value := range effect.TickEffects {
				amount := int(value) * scale
				switch key {
				case "damage":
					damageType, _ := effect.Metadata["damage_type"].(string)
					wasAlive := holder.Alive()
					outcome := holder.ApplyDamage(amount, damageType)
					if outcome.Applied > 0 {
						messages = append(messages, fmt.Sprintf("%s受到%s的%d点伤害", holder.Name, effect.Name, outcome.Applied))
					}
					if wasAlive && !holder.Alive() && killedBy == "" {
						killedBy = effect.Name
					}
				case "heal":
					if healed := holder.Heal(amount); healed > 0 {
						messages = append(messages, fmt.Sprintf("%s因%s恢复%d点生命值", holder.Name, effect.Name, healed))
					}
				case "restore_mp":
					holder.RestoreMP(amount)
				case "drain_mp":
					holder.Stats.MP -= amount
					holder.Stats.ClampMP()
				}
			}
			ticked = true
		}

		expired := false
		if effect.RuntimeType == entity.RuntimeOneShot {
			expired = ticked
		} else if ticked && effect.DurationTurns > 0 {
			effect.DurationTurns--
			expired = effect.DurationTurns == 0
		}
		if expired {
			messages = append(messages, fmt.Sprintf("状态结束: %s", effect.Name))
			continue
		}
		kept = append(kept, effect)
	}
	holder.ActiveEffects = kept
	return messages, killedBy
}

// Actions blocked per control flag.
var controlBlocks = map[string][]string{
	entity.ControlStun:    {"move", "attack", "cast_spell", "use_item", "interact"},
	entity.ControlSilence: {"cast_spell"},
	entity.ControlDisarm:  {"attack"},
	entity.ControlRoot:    {"move"},
}

// ActionAvailability returns the union of actions blocked by the player's
// active control flags, sorted for stable output.
func (e *Engine) ActionAvailability(player *entity.Character) []string {
	blocked := map[string]bool{}
	for _, effect := range player.ActiveEffects {
		for _, flag := range effect.ControlFlags {
			for _, action := range controlBlocks[flag] {
				blocked[action] = true
			}
		}
	}
	out := make([]string, 0, len(blocked))
	for action := range blocked {
		out = append(out, action)
	}
	sort.Strings(out)
	return out
}

// DispelEffects removes up to maxRemove effects matching the dispel type,
// highest dispel priority first. An empty dispelType matches everything
// dispellable.
func (e *Engine) DispelEffects(holder *entity.Character, dispelType string, maxRemove int) []entity.StatusEffect {
	type candidate struct {
		idx    int
		effect entity.StatusEffect
	}
	var candidates []candidate
	for i, effect := range holder.ActiveEffects {
		if dispelType != "" && effect.DispelType != dispelType {
			continue
		}
		candidates = append(candidates, candidate{idx: i, effect: effect})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].effect.DispelPriority > candidates[j].effect.DispelPriority
	})
	if maxRemove > 0 && len(candidates) > maxRemove {
		candidates = candidates[:maxRemove]
	}

	remove := map[int]bool{}
	var removed []entity.StatusEffect
	for _, c := range candidates {
		remove[c.idx] = true
		removed = append(removed, c.effect)
	}
	kept := holder.ActiveEffects[:0]
	for i, effect := range holder.ActiveEffects {
		if !remove[i] {
			kept = append(kept, effect)
		}
	}
	holder.ActiveEffects = kept
	return removed
}

// EquipSourceTag renders the source tag attached to equipment passives.
func EquipSourceTag(slot entity.EquipSlot, itemID string) string {
	return fmt.Sprintf("equip:%s:%s", slot, itemID)
}

// AttachEquipPassives applies the item's passive effects, tagged with the
// equip source so RemoveBySource can revert them exactly on unequip.
func (e *Engine) AttachEquipPassives(holder *entity.Character, item *entity.Item) []string {
	entries, ok := item.EffectPayload["passive_effects"].([]any)
	if !ok {
		return nil
	}
	tag := EquipSourceTag(item.EquipSlot, item.ID)
	var messages []string
	for _, entry := range entries {
		effect, err := decodeEffect(entry)
		if err != nil {
			continue
		}
		effect.Source = tag
		effect.DurationTurns = -1 // lives until unequipped
		messages = append(messages, e.AddEffect(holder, effect)...)
	}
	return messages
}

// RemoveBySource strips every effect carrying the source tag. Equipment
// reverts this way rather than by replaying inverse stat math.
func (e *Engine) RemoveBySource(holder *entity.Character, sourceTag string) []entity.StatusEffect {
	var removed []entity.StatusEffect
	kept := holder.ActiveEffects[:0]
	for _, effect := range holder.ActiveEffects {
		if effect.Source == sourceTag {
			removed = append(removed, effect)
			continue
		}
		kept = append(kept, effect)
	}
	holder.ActiveEffects = kept
	return removed
}

func decodeEffect(raw any) (entity.StatusEffect, error) {
	switch v := raw.(type) {
	case entity.StatusEffect:
		return v, nil
	case map[string]any:
		return decodeEffectMap(v)
	default:
		return entity.StatusEffect{}, fmt.Errorf("unsupported effect payload %T", raw)
	}
}

func toInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}
