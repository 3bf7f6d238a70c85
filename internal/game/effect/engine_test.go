package effect

import (
	"fmt"
	"testing"

	"github.com/ravenmoor/deepspire/internal/game/entity"
	"github.com/ravenmoor/deepspire/internal/game/state"
)

var effectIDCounter int

func effectID() string {
	effectIDCounter++
	return fmt.Sprintf("eff-%d", effectIDCounter)
}

func testPlayerState(t *testing.T) *state.State {
	t.Helper()
	player, err := entity.NewPlayer("Aria", entity.ClassWarrior, effectID)
	if err != nil {
		t.Fatalf("NewPlayer() error = %v", err)
	}
	return &state.State{ID: "g-1", UserID: "u-1", Player: player}
}

func TestAddEffectMutexKeepsStrongest(t *testing.T) {
	st := testPlayerState(t)
	eng := NewEngine(effectID)

	weak := entity.StatusEffect{Name: "微光护盾", GroupMutex: "shield", Potency: map[string]float64{"ac": 2}}
	strong := entity.StatusEffect{Name: "坚岩护盾", GroupMutex: "shield", Potency: map[string]float64{"ac": 6}}

	eng.AddEffect(&st.Player, weak)
	eng.AddEffect(&st.Player, strong)

	count := 0
	for _, e := range st.Player.ActiveEffects {
		if e.GroupMutex == "shield" {
			count++
			if e.Name != "坚岩护盾" {
				t.Fatalf("mutex survivor = %s, want 坚岩护盾", e.Name)
			}
		}
	}
	if count != 1 {
		t.Fatalf("mutex group occupants = %d, want 1", count)
	}

	// weaker incoming loses to the standing occupant
	eng.AddEffect(&st.Player, weak)
	for _, e := range st.Player.ActiveEffects {
		if e.GroupMutex == "shield" && e.Name != "坚岩护盾" {
			t.Fatalf("weak effect displaced the strong occupant")
		}
	}
}

func TestAddEffectStackPolicy(t *testing.T) {
	st := testPlayerState(t)
	eng := NewEngine(effectID)

	burn := entity.StatusEffect{
		Name:        "灼烧",
		StackPolicy: entity.StackPolicyStack,
		Stacks:      1,
		MaxStacks:   3,
		DurationTurns: 2,
		TickEffects: map[string]float64{"damage": 2},
	}
	eng.AddEffect(&st.Player, burn)
	burn.DurationTurns = 4
	eng.AddEffect(&st.Player, burn)

	if len(st.Player.ActiveEffects) != 1 {
		t.Fatalf("effects = %d, want merged into 1", len(st.Player.ActiveEffects))
	}
	merged := st.Player.ActiveEffects[0]
	if merged.Stacks != 2 {
		t.Fatalf("stacks = %d, want 2", merged.Stacks)
	}
	if merged.DurationTurns != 4 {
		t.Fatalf("duration = %d, want max 4", merged.DurationTurns)
	}
	if merged.TickEffects["damage"] != 4 {
		t.Fatalf("tick damage = %v, want summed 4", merged.TickEffects["damage"])
	}

	// stacking caps at max_stacks
	eng.AddEffect(&st.Player, burn)
	eng.AddEffect(&st.Player, burn)
	if st.Player.ActiveEffects[0].Stacks != 3 {
		t.Fatalf("stacks = %d, want cap 3", st.Player.ActiveEffects[0].Stacks)
	}
}

func TestAddEffectRefreshPolicy(t *testing.T) {
	st := testPlayerState(t)
	eng := NewEngine(effectID)

	slow := entity.StatusEffect{Name: "迟缓", StackPolicy: entity.StackPolicyRefresh, DurationTurns: 2}
	eng.AddEffect(&st.Player, slow)
	st.Player.ActiveEffects[0].DurationTurns = 1
	slow.DurationTurns = 5
	eng.AddEffect(&st.Player, slow)

	if len(st.Player.ActiveEffects) != 1 || st.Player.ActiveEffects[0].DurationTurns != 5 {
		t.Fatalf("refresh left duration %d, want 5", st.Player.ActiveEffects[0].DurationTurns)
	}
}

func TestProcessTurnEffectsTickAndExpiry(t *testing.T) {
	st := testPlayerState(t)
	eng := NewEngine(effectID)
	st.Player.Stats.HP = 20

	eng.AddEffect(&st.Player, entity.StatusEffect{
		Name:          "中毒",
		DurationTurns: 2,
		Triggers:      []string{entity.TriggerTurnEnd},
		TickEffects:   map[string]float64{"damage": 3},
	})

	eng.ProcessTurnEffects(st, entity.TriggerTurnStart)
	if st.Player.Stats.HP != 20 {
		t.Fatalf("turn_start ticked a turn_end effect: hp = %d", st.Player.Stats.HP)
	}

	eng.ProcessTurnEffects(st, entity.TriggerTurnEnd)
	if st.Player.Stats.HP != 17 {
		t.Fatalf("hp = %d, want 17 after first tick", st.Player.Stats.HP)
	}

	messages := eng.ProcessTurnEffects(st, entity.TriggerTurnEnd)
	if st.Player.Stats.HP != 14 {
		t.Fatalf("hp = %d, want 14 after second tick", st.Player.Stats.HP)
	}
	if len(st.Player.ActiveEffects) != 0 {
		t.Fatalf("effect should expire after duration reaches zero")
	}
	found := false
	for _, msg := range messages {
		if msg == "状态结束: 中毒" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expiry message missing from %v", messages)
	}
}

func TestProcessTurnEffectsDeathEndsGame(t *testing.T) {
	st := testPlayerState(t)
	eng := NewEngine(effectID)
	st.Player.Stats.HP = 2

	eng.AddEffect(&st.Player, entity.StatusEffect{
		Name:          "凋零",
		DurationTurns: 5,
		Triggers:      []string{entity.TriggerTurnEnd},
		TickEffects:   map[string]float64{"damage": 10},
	})
	eng.ProcessTurnEffects(st, entity.TriggerTurnEnd)

	if !st.IsGameOver {
		t.Fatalf("lethal tick did not end the game")
	}
	if st.GameOverReason != "状态效果[凋零]导致死亡" {
		t.Fatalf("reason = %q", st.GameOverReason)
	}
}

func TestProcessTurnEffectsLethalFinalTickNamesEffect(t *testing.T) {
	st := testPlayerState(t)
	eng := NewEngine(effectID)
	st.Player.Stats.HP = 2

	// the kill and the expiry land on the same tick
	eng.AddEffect(&st.Player, entity.StatusEffect{
		Name:          "蚀骨之毒",
		DurationTurns: 1,
		Triggers:      []string{entity.TriggerTurnEnd},
		TickEffects:   map[string]float64{"damage": 10},
	})
	eng.ProcessTurnEffects(st, entity.TriggerTurnEnd)

	if len(st.Player.ActiveEffects) != 0 {
		t.Fatalf("effect should expire on its final tick")
	}
	if !st.IsGameOver {
		t.Fatalf("lethal tick did not end the game")
	}
	if st.GameOverReason != "状态效果[蚀骨之毒]导致死亡" {
		t.Fatalf("reason = %q, want the expired effect named", st.GameOverReason)
	}
}

func TestActionAvailability(t *testing.T) {
	st := testPlayerState(t)
	eng := NewEngine(effectID)

	eng.AddEffect(&st.Player, entity.StatusEffect{Name: "眩晕", DurationTurns: 1, ControlFlags: []string{entity.ControlStun}})
	blocked := eng.ActionAvailability(&st.Player)
	want := []string{"attack", "cast_spell", "interact", "move", "use_item"}
	if len(blocked) != len(want) {
		t.Fatalf("blocked = %v, want %v", blocked, want)
	}
	for i, action := range want {
		if blocked[i] != action {
			t.Fatalf("blocked = %v, want %v", blocked, want)
		}
	}
}

func TestDispelEffectsPriorityOrder(t *testing.T) {
	st := testPlayerState(t)
	eng := NewEngine(effectID)

	eng.AddEffect(&st.Player, entity.StatusEffect{Name: "小诅咒", DurationTurns: 3, DispelType: "curse", DispelPriority: 1})
	eng.AddEffect(&st.Player, entity.StatusEffect{Name: "大诅咒", DurationTurns: 3, DispelType: "curse", DispelPriority: 9})
	eng.AddEffect(&st.Player, entity.StatusEffect{Name: "祝福", DurationTurns: 3, DispelType: "blessing"})

	removed := eng.DispelEffects(&st.Player, "curse", 1)
	if len(removed) != 1 || removed[0].Name != "大诅咒" {
		t.Fatalf("removed = %v, want 大诅咒 first", removed)
	}
	if len(st.Player.ActiveEffects) != 2 {
		t.Fatalf("remaining = %d, want 2", len(st.Player.ActiveEffects))
	}
}

func TestEquipPassivesRevertBySource(t *testing.T) {
	st := testPlayerState(t)
	eng := NewEngine(effectID)

	item := entity.Item{
		ID:        "sword-1",
		Name:      "烈焰长剑",
		Type:      entity.ItemTypeWeapon,
		EquipSlot: entity.SlotMainHand,
		EffectPayload: map[string]any{
			"passive_effects": []any{
				map[string]any{"name": "烈焰附魔", "modifiers": map[string]any{"damage": 2.0}},
			},
		},
	}
	eng.AttachEquipPassives(&st.Player, &item)
	if len(st.Player.ActiveEffects) != 1 {
		t.Fatalf("passives attached = %d, want 1", len(st.Player.ActiveEffects))
	}
	attached := st.Player.ActiveEffects[0]
	wantTag := EquipSourceTag(entity.SlotMainHand, "sword-1")
	if attached.Source != wantTag {
		t.Fatalf("source = %q, want %q", attached.Source, wantTag)
	}
	if attached.DurationTurns != -1 {
		t.Fatalf("passive duration = %d, want permanent -1", attached.DurationTurns)
	}

	removed := eng.RemoveBySource(&st.Player, wantTag)
	if len(removed) != 1 || len(st.Player.ActiveEffects) != 0 {
		t.Fatalf("unequip removed %d effects, %d remain", len(removed), len(st.Player.ActiveEffects))
	}
}

func TestApplyItemEffectsHeal(t *testing.T) {
	st := testPlayerState(t)
	eng := NewEngine(effectID)
	st.Player.Stats.HP = 10

	item := entity.Item{Name: "治疗药水", Type: entity.ItemTypeConsumable, EffectPayload: map[string]any{"heal": float64(12)}}
	res := eng.ApplyItemEffects(st, &item, nil)
	if !res.Success {
		t.Fatalf("item effect failed: %v", res.Warnings)
	}
	if res.HealedHP != 12 || st.Player.Stats.HP != 22 {
		t.Fatalf("healed = %d hp = %d, want 12 and 22", res.HealedHP, st.Player.Stats.HP)
	}
}

func TestProcessEffectHooksOnAttack(t *testing.T) {
	st := testPlayerState(t)
	eng := NewEngine(effectID)

	target, _ := entity.NormalizeMonster(entity.Monster{Character: entity.Character{Name: "骷髅兵"}}, effectID)
	target.Stats.MaxHP = 20
	target.Stats.HP = 20

	eng.AddEffect(&st.Player, entity.StatusEffect{
		Name:          "烈焰附魔",
		DurationTurns: 3,
		HookPayloads: map[string]map[string]any{
			HookOnAttack: {"damage": float64(4), "damage_type": "fire"},
		},
	})
	messages := eng.ProcessEffectHooks(st, HookOnAttack, &st.Player, &target.Character, nil)
	if target.Stats.HP != 16 {
		t.Fatalf("target hp = %d, want 16", target.Stats.HP)
	}
	if len(messages) == 0 {
		t.Fatalf("hook produced no message")
	}
}
