package savefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ravenmoor/deepspire/internal/game/entity"
	"github.com/ravenmoor/deepspire/internal/game/state"
	"github.com/ravenmoor/deepspire/internal/game/world"
	"github.com/ravenmoor/deepspire/internal/llm"
)

var saveIDCounter int

func saveID() string {
	saveIDCounter++
	return fmt.Sprintf("save-%d", saveIDCounter)
}

func saveState(t *testing.T) *state.State {
	t.Helper()
	player, err := entity.NewPlayer("Aria", entity.ClassRogue, saveID)
	if err != nil {
		t.Fatalf("NewPlayer() error = %v", err)
	}
	m := &world.GameMap{ID: "map-1", Width: 8, Height: 8, Depth: 2, MaxFloors: 3, Tiles: map[string]*world.Tile{}}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			m.Tiles[world.TileKey(x, y)] = &world.Tile{X: x, Y: y, Terrain: world.TerrainFloor}
		}
	}
	player.Position = entity.Position{X: 4, Y: 4}
	st := &state.State{ID: "g-1", UserID: "u-1", Player: player, CurrentMap: m, TurnCount: 7}
	monster, err := entity.NormalizeMonster(entity.Monster{Character: entity.Character{Name: "地穴骷髅", Position: entity.Position{X: 2, Y: 2}}}, saveID)
	if err != nil {
		t.Fatalf("NormalizeMonster() error = %v", err)
	}
	st.Monsters = append(st.Monsters, monster)
	return st
}

func newStore(t *testing.T) *Store {
	t.Helper()
	clock := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	s, err := New(t.TempDir(), 3, func() time.Time { return clock })
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newStore(t)
	st := saveState(t)

	if err := s.Save(st, nil, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, _, _, err := s.Load("u-1", "g-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.TurnCount != 7 || loaded.Player.Name != "Aria" {
		t.Fatalf("loaded = turn %d player %s", loaded.TurnCount, loaded.Player.Name)
	}
	if len(loaded.Monsters) != 1 {
		t.Fatalf("monsters = %d, want 1", len(loaded.Monsters))
	}

	// tile refs rebuilt for player and monster
	playerTile, _ := loaded.CurrentMap.TileAt(4, 4)
	if playerTile.CharacterID != loaded.Player.ID {
		t.Fatalf("player tile ref = %q", playerTile.CharacterID)
	}
	monsterTile, _ := loaded.CurrentMap.TileAt(2, 2)
	if monsterTile.CharacterID != loaded.Monsters[0].ID {
		t.Fatalf("monster tile ref = %q", monsterTile.CharacterID)
	}

	// visibility recomputed around the player
	if !playerTile.IsVisible || !playerTile.IsExplored {
		t.Fatalf("player tile not visible after load")
	}
	far, _ := loaded.CurrentMap.TileAt(0, 0)
	if far.IsVisible {
		t.Fatalf("distant tile visible after load")
	}
}

func TestLoadMissingSave(t *testing.T) {
	s := newStore(t)
	if _, _, _, err := s.Load("u-1", "nope"); !errors.Is(err, ErrSaveNotFound) {
		t.Fatalf("Load() error = %v, want ErrSaveNotFound", err)
	}
}

func TestUnknownFieldsRoundTrip(t *testing.T) {
	s := newStore(t)
	st := saveState(t)
	if err := s.Save(st, nil, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// a newer version wrote a field this one does not model
	path := s.savePath("u-1", "g-1")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	doc["future_feature"] = json.RawMessage(`{"enabled":true}`)
	data, _ = json.Marshal(doc)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loaded, _, extra, err := s.Load("u-1", "g-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(extra["future_feature"]) != `{"enabled":true}` {
		t.Fatalf("extra = %v", extra)
	}

	if err := s.Save(loaded, nil, extra); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	_, _, extra2, err := s.Load("u-1", "g-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(extra2["future_feature"]) != `{"enabled":true}` {
		t.Fatalf("unknown field lost on rewrite: %v", extra2)
	}
}

func TestContextLogTrimmedToLimit(t *testing.T) {
	s := newStore(t) // keeps 3 entries
	st := saveState(t)
	logs := []llm.ContextEntry{
		{Role: "prompt", Content: "一"},
		{Role: "response", Content: "二"},
		{Role: "prompt", Content: "三"},
		{Role: "response", Content: "四"},
		{Role: "prompt", Content: "五"},
	}
	if err := s.Save(st, logs, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	_, loadedLogs, _, err := s.Load("u-1", "g-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loadedLogs) != 3 {
		t.Fatalf("logs = %d, want trimmed to 3", len(loadedLogs))
	}
	if loadedLogs[0].Content != "三" || loadedLogs[2].Content != "五" {
		t.Fatalf("wrong entries kept: %+v", loadedLogs)
	}
}

func TestListSaves(t *testing.T) {
	clock := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	s, err := New(t.TempDir(), 0, func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	first := saveState(t)
	if err := s.Save(first, nil, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	second := saveState(t)
	second.ID = "g-2"
	second.Player.Stats.Level = 4
	if err := s.Save(second, nil, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	metas, err := s.List("u-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("saves = %d, want 2", len(metas))
	}
	if metas[0].GameID != "g-2" {
		t.Fatalf("first listed = %s, want most recent g-2", metas[0].GameID)
	}
	if metas[0].Level != 4 || metas[0].Depth != 2 || metas[0].PlayerName != "Aria" {
		t.Fatalf("meta = %+v", metas[0])
	}
}

func TestDeleteSave(t *testing.T) {
	s := newStore(t)
	st := saveState(t)
	if err := s.Save(st, nil, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Delete("u-1", "g-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if s.Exists("u-1", "g-1") {
		t.Fatalf("save still exists after delete")
	}
	metas, err := s.List("u-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(metas) != 0 {
		t.Fatalf("listing still holds %d entries", len(metas))
	}
}
