package entity

import "testing"

func TestNormalizeStatusEffectDefaults(t *testing.T) {
	e := NormalizeStatusEffect(StatusEffect{Name: "毒素"}, func() string { return "effect-1" })
	if e.ID != "effect-1" {
		t.Fatalf("expected generated id, got %q", e.ID)
	}
	if e.EffectType != EffectNeutral {
		t.Fatalf("expected neutral default, got %q", e.EffectType)
	}
	if e.RuntimeType != RuntimeOngoing {
		t.Fatalf("expected ongoing default, got %q", e.RuntimeType)
	}
	if e.StackPolicy != StackPolicyReplace {
		t.Fatalf("expected replace default, got %q", e.StackPolicy)
	}
	if e.Stacks != 1 || e.MaxStacks != 1 {
		t.Fatalf("expected stacks defaulted to 1/1, got %d/%d", e.Stacks, e.MaxStacks)
	}
	if len(e.Triggers) != 1 || e.Triggers[0] != TriggerTurnEnd {
		t.Fatalf("expected turn_end trigger default, got %v", e.Triggers)
	}
}

func TestNormalizeStatusEffectCapsStacks(t *testing.T) {
	e := NormalizeStatusEffect(StatusEffect{Name: "叠毒", Stacks: 9, MaxStacks: 3}, nil)
	if e.Stacks != 3 {
		t.Fatalf("expected stacks capped at 3, got %d", e.Stacks)
	}
}

func TestPotencyScoreSumsAbsoluteValues(t *testing.T) {
	e := StatusEffect{
		Potency:     map[string]float64{"power": 3},
		Modifiers:   map[string]float64{"ac": -2, "attack": 1},
		TickEffects: map[string]float64{"damage": 5},
	}
	if got := e.PotencyScore(); got != 11 {
		t.Fatalf("potency score = %v, want 11", got)
	}
}

func TestTriggersOn(t *testing.T) {
	e := StatusEffect{Triggers: []string{TriggerTurnStart}}
	if !e.TriggersOn(TriggerTurnStart) {
		t.Fatal("expected turn_start to trigger")
	}
	if e.TriggersOn(TriggerTurnEnd) {
		t.Fatal("expected turn_end not to trigger")
	}

	both := StatusEffect{Triggers: []string{TriggerBoth}}
	if !both.TriggersOn(TriggerTurnStart) || !both.TriggersOn(TriggerTurnEnd) {
		t.Fatal("expected both to trigger on either phase")
	}
}

func TestHasControlFlag(t *testing.T) {
	e := StatusEffect{ControlFlags: []string{ControlStun}}
	if !e.HasControlFlag(ControlStun) {
		t.Fatal("expected stun flag")
	}
	if e.HasControlFlag(ControlRoot) {
		t.Fatal("expected no root flag")
	}
}
