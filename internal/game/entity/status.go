package entity

import "math"

// EffectType classifies a status effect's intent.
type EffectType string

const (
	EffectBuff    EffectType = "buff"
	EffectDebuff  EffectType = "debuff"
	EffectControl EffectType = "control"
	EffectNeutral EffectType = "neutral"
)

// RuntimeType distinguishes effects that fire once from ongoing ones.
type RuntimeType string

const (
	RuntimeOneShot RuntimeType = "one_shot"
	RuntimeOngoing RuntimeType = "ongoing"
)

// StackPolicy resolves how a duplicate effect merges into an existing one.
type StackPolicy string

const (
	StackPolicyStack       StackPolicy = "stack"
	StackPolicyRefresh     StackPolicy = "refresh"
	StackPolicyKeepHighest StackPolicy = "keep_highest"
	StackPolicyReplace     StackPolicy = "replace"
)

// SnapshotMode controls whether an effect re-reads holder stats each tick or
// captures them at application time.
type SnapshotMode string

const (
	SnapshotLive     SnapshotMode = "live"
	SnapshotCaptured SnapshotMode = "snapshot"
)

// Control flags recognised by the action availability gate.
const (
	ControlStun    = "stun"
	ControlSilence = "silence"
	ControlDisarm  = "disarm"
	ControlRoot    = "root"
)

// Trigger phases for per-turn ticks.
const (
	TriggerTurnStart = "turn_start"
	TriggerTurnEnd   = "turn_end"
	TriggerBoth      = "both"
)

// StatusEffect is a timed modifier attached to a creature. Modifiers adjust
// stats while the effect is active; TickEffects apply once per matching
// trigger phase; HookPayloads contribute to combat hooks. Source carries the
// origin tag (for example equip:<slot>:<item_id>) used for targeted removal.
type StatusEffect struct {
	ID             string                    `json:"id"`
	Name           string                    `json:"name"`
	EffectType     EffectType                `json:"effect_type"`
	DurationTurns  int                       `json:"duration_turns"`
	RuntimeType    RuntimeType               `json:"runtime_type"`
	Stacks         int                       `json:"stacks"`
	MaxStacks      int                       `json:"max_stacks"`
	StackPolicy    StackPolicy               `json:"stack_policy"`
	GroupMutex     string                    `json:"group_mutex,omitempty"`
	GroupOverride  string                    `json:"group_override,omitempty"`
	GroupStack     string                    `json:"group_stack,omitempty"`
	Potency        map[string]float64        `json:"potency,omitempty"`
	Modifiers      map[string]float64        `json:"modifiers,omitempty"`
	TickEffects    map[string]float64        `json:"tick_effects,omitempty"`
	HookPayloads   map[string]map[string]any `json:"hook_payloads,omitempty"`
	ControlFlags   []string                  `json:"control_flags,omitempty"`
	Triggers       []string                  `json:"triggers,omitempty"`
	SnapshotMode   SnapshotMode              `json:"snapshot_mode,omitempty"`
	Source         string                    `json:"source,omitempty"`
	DispelType     string                    `json:"dispel_type,omitempty"`
	DispelPriority int                       `json:"dispel_priority,omitempty"`
	Metadata       map[string]any            `json:"metadata,omitempty"`
	Tags           []string                  `json:"tags,omitempty"`
}

// NormalizeStatusEffect fills defaults so downstream code can rely on them.
func NormalizeStatusEffect(e StatusEffect, newID func() string) StatusEffect {
	if e.ID == "" && newID != nil {
		e.ID = newID()
	}
	switch e.EffectType {
	case EffectBuff, EffectDebuff, EffectControl, EffectNeutral:
	default:
		e.EffectType = EffectNeutral
	}
	switch e.RuntimeType {
	case RuntimeOneShot, RuntimeOngoing:
	default:
		e.RuntimeType = RuntimeOngoing
	}
	switch e.StackPolicy {
	case StackPolicyStack, StackPolicyRefresh, StackPolicyKeepHighest, StackPolicyReplace:
	default:
		e.StackPolicy = StackPolicyReplace
	}
	switch e.SnapshotMode {
	case SnapshotLive, SnapshotCaptured:
	default:
		e.SnapshotMode = SnapshotLive
	}
	if e.Stacks < 1 {
		e.Stacks = 1
	}
	if e.MaxStacks < 1 {
		e.MaxStacks = 1
	}
	if e.Stacks > e.MaxStacks {
		e.Stacks = e.MaxStacks
	}
	if len(e.Triggers) == 0 {
		e.Triggers = []string{TriggerTurnEnd}
	}
	return e
}

// PotencyScore sums the absolute numeric weight of the effect across its
// potency, modifiers and tick entries. Used to pick a winner when two
// effects compete for a mutex or override group.
func (e StatusEffect) PotencyScore() float64 {
	score := 0.0
	for _, v := range e.Potency {
		score += math.Abs(v)
	}
	for _, v := range e.Modifiers {
		score += math.Abs(v)
	}
	for _, v := range e.TickEffects {
		score += math.Abs(v)
	}
	return score
}

// TriggersOn reports whether the effect ticks during the given phase.
func (e StatusEffect) TriggersOn(phase string) bool {
	for _, trigger := range e.Triggers {
		if trigger == phase || trigger == TriggerBoth {
			return true
		}
	}
	return false
}

// HasControlFlag reports whether the effect carries the named control flag.
func (e StatusEffect) HasControlFlag(flag string) bool {
	for _, f := range e.ControlFlags {
		if f == flag {
			return true
		}
	}
	return false
}
