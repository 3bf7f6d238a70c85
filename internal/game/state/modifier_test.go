package state

import (
	"context"
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/ravenmoor/deepspire/internal/game/entity"
	"github.com/ravenmoor/deepspire/internal/game/quest"
	"github.com/ravenmoor/deepspire/internal/game/world"
)

var testIDCounter int

func testID() string {
	testIDCounter++
	return "id-" + string(rune('a'+testIDCounter%26)) + "-" + time.Now().Format("150405") + "-" + itoa(testIDCounter)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func newTestState(t *testing.T) *State {
	t.Helper()
	player, err := entity.NewPlayer("Aria", entity.ClassWarrior, testID)
	if err != nil {
		t.Fatalf("NewPlayer() error = %v", err)
	}
	m, err := world.Generate(context.Background(), world.Config{
		Width:     30,
		Height:    24,
		Depth:     1,
		MaxFloors: 3,
		Rng:       rand.New(rand.NewSource(1)),
	}, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	sx, sy := m.SpawnPoint("")
	player.Position = entity.Position{X: sx, Y: sy}
	st := &State{
		ID:         testID(),
		UserID:     "user-1",
		Player:     player,
		CurrentMap: m,
		Quests: []quest.Quest{{
			ID:                  "q-1",
			Title:               "测试任务",
			Objectives:          []string{"击败守卫", "找到出口"},
			CompletedObjectives: []bool{false, false},
			IsActive:            true,
		}},
		CreatedAt: time.Now(),
	}
	st.RebuildTileRefs()
	return st
}

func TestApplyPlayerUpdatesStats(t *testing.T) {
	st := newTestState(t)
	mod := NewModifier(testID)
	st.Player.Stats.HP = 20

	res := mod.ApplyPlayerUpdates(st, map[string]any{
		"stats": map[string]any{"hp": float64(-5)},
	}, "test")
	if !res.Success {
		t.Fatalf("result not successful: %v", res.Errors)
	}
	if st.Player.Stats.HP != 15 {
		t.Fatalf("hp = %d, want 15", st.Player.Stats.HP)
	}
	if len(res.Records) != 1 || res.Records[0].Path != "player.stats.hp" {
		t.Fatalf("records = %+v, want one hp record", res.Records)
	}
}

func TestApplyPlayerUpdatesHPClamped(t *testing.T) {
	st := newTestState(t)
	mod := NewModifier(testID)
	st.Player.Stats.HP = 5

	mod.ApplyPlayerUpdates(st, map[string]any{
		"stats": map[string]any{"hp": float64(-999)},
	}, "test")
	if st.Player.Stats.HP != 0 {
		t.Fatalf("hp = %d, want clamp at 0", st.Player.Stats.HP)
	}

	mod.ApplyPlayerUpdates(st, map[string]any{
		"stats": map[string]any{"hp": float64(999)},
	}, "test")
	if st.Player.Stats.HP != st.Player.Stats.MaxHP {
		t.Fatalf("hp = %d, want clamp at max_hp %d", st.Player.Stats.HP, st.Player.Stats.MaxHP)
	}
}

func TestApplyPlayerUpdatesInvalidSetRejected(t *testing.T) {
	st := newTestState(t)
	mod := NewModifier(testID)
	before := st.Player.Stats.HP

	res := mod.ApplyPlayerUpdates(st, map[string]any{
		"stats": map[string]any{
			"hp":    map[string]any{"op": "set", "value": float64(9999)},
			"speed": float64(40),
		},
	}, "test")
	if st.Player.Stats.HP != before {
		t.Fatalf("rejected hp set mutated state: hp = %d", st.Player.Stats.HP)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want one", res.Errors)
	}
	// best-effort batch: the independent speed update still applied
	if st.Player.Stats.Speed != 40 {
		t.Fatalf("speed = %d, want 40", st.Player.Stats.Speed)
	}
	if !res.Success {
		t.Fatalf("partial batch should report success")
	}
}

func TestApplyPlayerUpdatesItems(t *testing.T) {
	st := newTestState(t)
	mod := NewModifier(testID)
	before := len(st.Player.Inventory)

	res := mod.ApplyPlayerUpdates(st, map[string]any{
		"add_items": []any{
			map[string]any{"name": "火把", "type": "misc"},
		},
		"remove_items": []any{"不存在的物品"},
	}, "test")
	if len(st.Player.Inventory) != before+1 {
		t.Fatalf("inventory size = %d, want %d", len(st.Player.Inventory), before+1)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want one for the unknown removal", res.Errors)
	}
}

func TestSetPlayerPositionRejectsWall(t *testing.T) {
	st := newTestState(t)
	mod := NewModifier(testID)

	var wall *world.Tile
	for _, tile := range st.CurrentMap.Tiles {
		if tile.Terrain == world.TerrainWall {
			wall = tile
			break
		}
	}
	if wall == nil {
		t.Fatalf("no wall tile on generated map")
	}
	res := mod.SetPlayerPosition(st, wall.X, wall.Y, "test")
	if res.Success {
		t.Fatalf("moving onto a wall should fail")
	}
}

func TestSetPlayerPositionMovesTileRefs(t *testing.T) {
	st := newTestState(t)
	mod := NewModifier(testID)
	old := st.Player.Position

	var target *world.Tile
	for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		if tile, ok := st.CurrentMap.TileAt(old.X+d[0], old.Y+d[1]); ok && tile.Walkable() && tile.CharacterID == "" {
			target = tile
			break
		}
	}
	if target == nil {
		t.Fatalf("no walkable neighbor next to spawn")
	}
	res := mod.SetPlayerPosition(st, target.X, target.Y, "test")
	if !res.Success {
		t.Fatalf("move failed: %v", res.Errors)
	}
	oldTile, _ := st.CurrentMap.TileAt(old.X, old.Y)
	if oldTile.CharacterID != "" {
		t.Fatalf("old tile still references %q", oldTile.CharacterID)
	}
	if target.CharacterID != st.Player.ID {
		t.Fatalf("target tile references %q, want player", target.CharacterID)
	}
}

func TestApplyMapUpdates(t *testing.T) {
	st := newTestState(t)
	mod := NewModifier(testID)
	pos := st.Player.Position
	key := world.TileKey(pos.X, pos.Y)

	res := mod.ApplyMapUpdates(st, map[string]any{
		"tiles": map[string]any{
			key: map[string]any{
				"terrain":    "treasure",
				"has_event":  true,
				"event_type": "story",
			},
			"999,999": map[string]any{"terrain": "floor"},
			key + "x": map[string]any{"terrain": "lava"},
		},
	}, "test")
	tile, _ := st.CurrentMap.TileAt(pos.X, pos.Y)
	if tile.Terrain != world.TerrainTreasure || !tile.HasEvent || tile.EventType != "story" {
		t.Fatalf("tile not updated: %+v", tile)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("errors = %v, want out-of-bounds and bad-key", res.Errors)
	}
}

func TestApplyMapUpdatesRejectsUnknownTerrain(t *testing.T) {
	st := newTestState(t)
	mod := NewModifier(testID)
	pos := st.Player.Position
	tile, _ := st.CurrentMap.TileAt(pos.X, pos.Y)
	before := tile.Terrain

	res := mod.ApplyMapUpdates(st, map[string]any{
		"tiles": map[string]any{
			world.TileKey(pos.X, pos.Y): map[string]any{"terrain": "quicksand"},
		},
	}, "test")
	if tile.Terrain != before {
		t.Fatalf("unknown terrain mutated tile to %q", tile.Terrain)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want one", res.Errors)
	}
}

func TestApplyQuestUpdates(t *testing.T) {
	st := newTestState(t)
	mod := NewModifier(testID)

	res := mod.ApplyQuestUpdates(st, map[string]any{
		"q-1": map[string]any{
			"progress_percentage":  float64(150),
			"completed_objectives": []any{true, false},
		},
		"q-missing": map[string]any{"is_completed": true},
	}, "llm")
	q := st.FindQuest("q-1")
	if q.ProgressPercentage != 100 {
		t.Fatalf("progress = %v, want clamp at 100", q.ProgressPercentage)
	}
	if !q.CompletedObjectives[0] || q.CompletedObjectives[1] {
		t.Fatalf("objectives = %v, want [true false]", q.CompletedObjectives)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want one for the missing quest", res.Errors)
	}
}

func TestApplyLLMUpdatesDispatch(t *testing.T) {
	st := newTestState(t)
	mod := NewModifier(testID)
	st.Player.Stats.HP = 10

	payload := []byte(`{
		"player_updates": {"stats": {"hp": 5}},
		"quest_updates": {"q-1": {"progress_percentage": 42}}
	}`)
	var response map[string]any
	if err := json.Unmarshal(payload, &response); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	res := mod.ApplyLLMUpdates(st, response, "llm")
	if !res.Success {
		t.Fatalf("result not successful: %v", res.Errors)
	}
	if st.Player.Stats.HP != 15 {
		t.Fatalf("hp = %d, want 15", st.Player.Stats.HP)
	}
	if st.FindQuest("q-1").ProgressPercentage != 42 {
		t.Fatalf("progress = %v, want 42", st.FindQuest("q-1").ProgressPercentage)
	}
}

func TestStateRoundTrip(t *testing.T) {
	st := newTestState(t)
	st.TurnCount = 7
	st.LastNarrative = "你走下了台阶。"

	data, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored State
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored.RebuildTileRefs()

	if restored.ID != st.ID || restored.TurnCount != 7 || restored.LastNarrative != st.LastNarrative {
		t.Fatalf("round trip lost scalar fields")
	}
	if len(restored.CurrentMap.Tiles) != len(st.CurrentMap.Tiles) {
		t.Fatalf("tiles = %d, want %d", len(restored.CurrentMap.Tiles), len(st.CurrentMap.Tiles))
	}
	playerTile, _ := restored.CurrentMap.TileAt(restored.Player.Position.X, restored.Player.Position.Y)
	if playerTile.CharacterID != restored.Player.ID {
		t.Fatalf("player tile ref = %q, want %q", playerTile.CharacterID, restored.Player.ID)
	}
}

func TestIdempotencyWindow(t *testing.T) {
	current := time.Unix(1000, 0)
	w := NewIdempotencyWindow(func() time.Time { return current })

	if _, ok := w.Lookup("k1"); ok {
		t.Fatalf("empty window returned a hit")
	}
	w.Record("k1", "result-1")
	got, ok := w.Lookup("k1")
	if !ok || got != "result-1" {
		t.Fatalf("Lookup = %v, %v; want result-1, true", got, ok)
	}

	current = current.Add(IdempotencyTTL + time.Second)
	if _, ok := w.Lookup("k1"); ok {
		t.Fatalf("expired key still resolved")
	}

	for i := 0; i < IdempotencyWindowSize+5; i++ {
		w.Record("bulk-"+itoa(i), i)
	}
	if _, ok := w.Lookup("bulk-0"); ok {
		t.Fatalf("evicted key still resolved")
	}
	if _, ok := w.Lookup("bulk-" + itoa(IdempotencyWindowSize+4)); !ok {
		t.Fatalf("recent key missing")
	}
}
