package choice

import (
	"testing"
	"time"
)

func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	current := start
	return func() time.Time { return current }, func(d time.Duration) { current = current.Add(d) }
}

func TestRegistryExpiry(t *testing.T) {
	now, advance := fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	r := NewRegistry(5*time.Minute, now)

	r.Put(&Context{ID: "ctx-1", EventType: EventStory, Title: "岔路口"})
	if _, ok := r.Get("ctx-1"); !ok {
		t.Fatalf("fresh context not found")
	}

	advance(6 * time.Minute)
	if _, ok := r.Get("ctx-1"); ok {
		t.Fatalf("expired context still returned")
	}
	if r.Len() != 0 {
		t.Fatalf("expired context not removed, len = %d", r.Len())
	}
}

func TestRegistrySweep(t *testing.T) {
	now, advance := fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	r := NewRegistry(5*time.Minute, now)

	r.Put(&Context{ID: "ctx-1", EventType: EventStory})
	advance(3 * time.Minute)
	r.Put(&Context{ID: "ctx-2", EventType: EventTreasure})
	advance(3 * time.Minute)

	if removed := r.Sweep(); removed != 1 {
		t.Fatalf("swept %d contexts, want 1", removed)
	}
	if _, ok := r.Get("ctx-2"); !ok {
		t.Fatalf("live context swept")
	}
}

func TestResolveConsequences(t *testing.T) {
	r := NewResolver()
	ctx := &Context{
		ID:        "ctx-1",
		EventType: EventStory,
		Choices: []Choice{{
			ID:          "c-1",
			Text:        "打开石门",
			IsAvailable: true,
			Consequences: map[string]any{
				"message": "石门缓缓打开",
				"events":  []any{"door_opened"},
				"player_updates": map[string]any{
					"stats": map[string]any{"hp": map[string]any{"op": "add", "value": float64(-3)}},
				},
				"new_items": []any{
					map[string]any{"name": "古老的钥匙", "type": "misc"},
				},
				"map_transition": map[string]any{"should_transition": true, "target_depth": float64(3)},
			},
		}},
	}

	result, err := r.Resolve(ctx, "c-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !result.Success || result.Message != "石门缓缓打开" {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Events) != 1 || result.Events[0] != "door_opened" {
		t.Fatalf("events = %v", result.Events)
	}
	if result.StateUpdates == nil || result.StateUpdates.PlayerUpdates == nil {
		t.Fatalf("player updates missing")
	}
	if len(result.NewItems) != 1 || result.NewItems[0]["name"] != "古老的钥匙" {
		t.Fatalf("new items = %v", result.NewItems)
	}
	if result.MapTransition == nil || !result.MapTransition.ShouldTransition || result.MapTransition.TargetDepth != 3 {
		t.Fatalf("map transition = %+v", result.MapTransition)
	}
}

func TestResolveUnavailableChoice(t *testing.T) {
	r := NewResolver()
	ctx := &Context{
		ID:        "ctx-1",
		EventType: EventStory,
		Choices:   []Choice{{ID: "c-1", Text: "强行突破", IsAvailable: false}},
	}
	result, err := r.Resolve(ctx, "c-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.Success {
		t.Fatalf("unavailable choice resolved successfully")
	}
}

func TestResolveUnknownChoice(t *testing.T) {
	r := NewResolver()
	ctx := &Context{ID: "ctx-1", EventType: EventStory}
	if _, err := r.Resolve(ctx, "missing"); err == nil {
		t.Fatalf("unknown choice id should error")
	}
}

func TestQuestCompletionFallsBackToContextQuest(t *testing.T) {
	r := NewResolver()
	ctx := &Context{
		ID:        "ctx-1",
		EventType: EventQuestCompletion,
		ContextData: map[string]any{
			"next_quest": map[string]any{"title": "更深的黑暗", "quest_type": "boss_hunt"},
		},
		Choices: []Choice{{ID: "c-1", Text: "接受新的任务", IsAvailable: true}},
	}
	result, err := r.Resolve(ctx, "c-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.NewQuestData == nil || result.NewQuestData["title"] != "更深的黑暗" {
		t.Fatalf("new quest data = %v", result.NewQuestData)
	}
}

func TestTreasureFallsBackToContextItems(t *testing.T) {
	r := NewResolver()
	ctx := &Context{
		ID:        "ctx-1",
		EventType: EventTreasure,
		ContextData: map[string]any{
			"treasure_items": []any{map[string]any{"name": "宝石戒指", "type": "armor"}},
		},
		Choices: []Choice{{ID: "c-1", Text: "打开宝箱", IsAvailable: true}},
	}
	result, err := r.Resolve(ctx, "c-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(result.NewItems) != 1 || result.NewItems[0]["name"] != "宝石戒指" {
		t.Fatalf("new items = %v", result.NewItems)
	}
}
