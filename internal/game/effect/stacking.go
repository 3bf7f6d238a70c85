package effect

import (
	"fmt"

	"github.com/ravenmoor/deepspire/internal/game/entity"
)

// AddEffect resolves an incoming status effect against the holder's active
// set and attaches the winner. Resolution order: mutex group, override
// group, then stack-policy merge against the same stack group or name.
// Returns narrative messages describing what happened.
func (e *Engine) AddEffect(holder *entity.Character, incoming entity.StatusEffect) []string {
	incoming = entity.NormalizeStatusEffect(incoming, e.newID)

	if incoming.GroupMutex != "" {
		return e.resolveMutex(holder, incoming)
	}
	if incoming.GroupOverride != "" {
		return e.resolveOverride(holder, incoming)
	}
	return e.resolveStack(holder, incoming)
}

// resolveMutex keeps only the strongest-by-potency effect in the mutex
// group; every weaker occupant is removed.
func (e *Engine) resolveMutex(holder *entity.Character, incoming entity.StatusEffect) []string {
	var messages []string
	strongest := incoming
	for _, existing := range holder.ActiveEffects {
		if existing.GroupMutex == incoming.GroupMutex && existing.PotencyScore() > strongest.PotencyScore() {
			strongest = existing
		}
	}
	kept := holder.ActiveEffects[:0]
	for _, existing := range holder.ActiveEffects {
		if existing.GroupMutex == incoming.GroupMutex && existing.ID != strongest.ID {
			messages = append(messages, fmt.Sprintf("状态结束: %s", existing.Name))
			continue
		}
		kept = append(kept, existing)
	}
	holder.ActiveEffects = kept
	if strongest.ID == incoming.ID {
		holder.ActiveEffects = append(holder.ActiveEffects, incoming)
		messages = append(messages, fmt.Sprintf("获得状态: %s", incoming.Name))
	}
	return messages
}

// resolveOverride lets the strongest-by-potency effect own the override
// group; a weaker incoming effect is dropped.
func (e *Engine) resolveOverride(holder *entity.Character, incoming entity.StatusEffect) []string {
	for i, existing := range holder.ActiveEffects {
		if existing.GroupOverride != incoming.GroupOverride {
			continue
		}
		if incoming.PotencyScore() > existing.PotencyScore() {
			old := existing.Name
			holder.ActiveEffects[i] = incoming
			return []string{fmt.Sprintf("状态结束: %s", old), fmt.Sprintf("获得状态: %s", incoming.Name)}
		}
		return nil
	}
	holder.ActiveEffects = append(holder.ActiveEffects, incoming)
	return []string{fmt.Sprintf("获得状态: %s", incoming.Name)}
}

// resolveStack merges against the most recent effect sharing the stack group
// (or name when no group is set) using the incoming stack policy.
func (e *Engine) resolveStack(holder *entity.Character, incoming entity.StatusEffect) []string {
	idx := -1
	for i, existing := range holder.ActiveEffects {
		same := false
		if incoming.GroupStack != "" {
			same = existing.GroupStack == incoming.GroupStack
		} else {
			same = existing.Name == incoming.Name
		}
		if same {
			idx = i
		}
	}
	if idx < 0 {
		holder.ActiveEffects = append(holder.ActiveEffects, incoming)
		return []string{fmt.Sprintf("获得状态: %s", incoming.Name)}
	}

	existing := &holder.ActiveEffects[idx]
	switch incoming.StackPolicy {
	case entity.StackPolicyStack:
		existing.Stacks += incoming.Stacks
		if existing.MaxStacks < incoming.MaxStacks {
			existing.MaxStacks = incoming.MaxStacks
		}
		if existing.Stacks > existing.MaxStacks {
			existing.Stacks = existing.MaxStacks
		}
		existing.DurationTurns = maxInt(existing.DurationTurns, incoming.DurationTurns)
		existing.Potency = mergeNumeric(existing.Potency, incoming.Potency)
		existing.Modifiers = mergeNumeric(existing.Modifiers, incoming.Modifiers)
		existing.TickEffects = mergeNumeric(existing.TickEffects, incoming.TickEffects)
		return []string{fmt.Sprintf("状态叠加: %s x%d", existing.Name, existing.Stacks)}
	case entity.StackPolicyRefresh:
		existing.DurationTurns = maxInt(existing.DurationTurns, incoming.DurationTurns)
		existing.Stacks = maxInt(existing.Stacks, incoming.Stacks)
		return []string{fmt.Sprintf("状态刷新: %s", existing.Name)}
	case entity.StackPolicyKeepHighest:
		if incoming.PotencyScore() > existing.PotencyScore() {
			incoming.DurationTurns = maxInt(existing.DurationTurns, incoming.DurationTurns)
			*existing = incoming
		} else {
			existing.DurationTurns = maxInt(existing.DurationTurns, incoming.DurationTurns)
		}
		return []string{fmt.Sprintf("状态保留强效: %s", existing.Name)}
	default: // replace
		*existing = incoming
		return []string{fmt.Sprintf("状态替换: %s", incoming.Name)}
	}
}

// mergeNumeric adds two numeric payload maps key-wise.
func mergeNumeric(base, add map[string]float64) map[string]float64 {
	if len(add) == 0 {
		return base
	}
	if base == nil {
		base = map[string]float64{}
	}
	for k, v := range add {
		base[k] += v
	}
	return base
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
