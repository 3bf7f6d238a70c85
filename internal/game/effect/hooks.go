package effect

import (
	"encoding/json"
	"fmt"

	"github.com/ravenmoor/deepspire/internal/game/entity"
	"github.com/ravenmoor/deepspire/internal/game/state"
)

// Combat hook points at which status effects may contribute.
const (
	HookOnAttack      = "on_attack"
	HookOnHit         = "on_hit"
	HookOnDamageTaken = "on_damage_taken"
	HookOnKill        = "on_kill"
	HookTurnStart     = "turn_start"
	HookTurnEnd       = "turn_end"
)

// ProcessEffectHooks dispatches the named hook across the actor's active
// effects. Hook payloads may deal bonus damage to the target, heal the
// actor, or emit a message. Returns the narrative messages produced.
func (e *Engine) ProcessEffectHooks(st *state.State, hook string, actor, target *entity.Character, hookCtx map[string]any) []string {
	if actor == nil {
		return nil
	}
	var messages []string
	for _, effect := range actor.ActiveEffects {
		payload, ok := effect.HookPayloads[hook]
		if !ok {
			continue
		}
		scale := effect.Stacks
		if scale < 1 {
			scale = 1
		}
		if amount, ok := toInt(payload["damage"]); ok && amount > 0 && target != nil {
			damageType, _ := payload["damage_type"].(string)
			outcome := target.ApplyDamage(amount*scale, damageType)
			if outcome.Applied > 0 {
				messages = append(messages, fmt.Sprintf("%s触发%s, 对%s造成%d点伤害", actor.Name, effect.Name, target.Name, outcome.Applied))
			}
		}
		if amount, ok := toInt(payload["heal"]); ok && amount > 0 {
			if healed := actor.Heal(amount * scale); healed > 0 {
				messages = append(messages, fmt.Sprintf("%s触发%s, 恢复%d点生命值", actor.Name, effect.Name, healed))
			}
		}
		if message, ok := payload["message"].(string); ok && message != "" {
			messages = append(messages, message)
		}
	}
	if st != nil && !st.Player.Alive() {
		st.SetGameOver("状态效果导致死亡")
	}
	return messages
}

// decodeEffectMap normalises a loosely typed effect object through one JSON
// round trip.
func decodeEffectMap(raw map[string]any) (entity.StatusEffect, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return entity.StatusEffect{}, err
	}
	var out entity.StatusEffect
	if err := json.Unmarshal(data, &out); err != nil {
		return entity.StatusEffect{}, err
	}
	return out, nil
}
