package world

import (
	"context"
	"math/rand"
	"testing"

	"github.com/ravenmoor/deepspire/internal/game/quest"
)

func genTestMap(t *testing.T, seed int64, depth, maxFloors int) *GameMap {
	t.Helper()
	m, err := Generate(context.Background(), Config{
		Width:     30,
		Height:    24,
		Depth:     depth,
		MaxFloors: maxFloors,
		Theme:     "ruins",
		Rng:       rand.New(rand.NewSource(seed)),
	}, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return m
}

func TestGenerateStairCounts(t *testing.T) {
	tests := []struct {
		name      string
		depth     int
		maxFloors int
		wantUp    int
		wantDown  int
	}{
		{name: "first floor", depth: 1, maxFloors: 3, wantUp: 0, wantDown: 1},
		{name: "middle floor", depth: 2, maxFloors: 3, wantUp: 1, wantDown: 1},
		{name: "final floor", depth: 3, maxFloors: 3, wantUp: 1, wantDown: 0},
		{name: "single floor", depth: 1, maxFloors: 1, wantUp: 0, wantDown: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for seed := int64(1); seed <= 5; seed++ {
				m := genTestMap(t, seed, tt.depth, tt.maxFloors)
				if got := len(m.FindTerrain(TerrainStairsUp)); got != tt.wantUp {
					t.Fatalf("seed %d stairs_up = %d, want %d", seed, got, tt.wantUp)
				}
				if got := len(m.FindTerrain(TerrainStairsDown)); got != tt.wantDown {
					t.Fatalf("seed %d stairs_down = %d, want %d", seed, got, tt.wantDown)
				}
			}
		})
	}
}

func TestGenerateConnectivity(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		m := genTestMap(t, seed, 1, 3)
		sx, sy := m.SpawnPoint("")
		reached := m.Reachable(sx, sy)
		for key, tile := range m.Tiles {
			if tile.Terrain == TerrainWall {
				continue
			}
			if !reached[key] {
				t.Fatalf("seed %d: tile %s (terrain %s) unreachable from spawn (%d,%d)", seed, key, tile.Terrain, sx, sy)
			}
		}
	}
}

func TestGenerateRequiredRoomTypes(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		m := genTestMap(t, seed, 3, 3)
		found := map[RoomType]bool{}
		for _, tile := range m.Tiles {
			if tile.RoomType != "" {
				found[tile.RoomType] = true
			}
		}
		if !found[RoomEntrance] {
			t.Fatalf("seed %d: no entrance room", seed)
		}
		if !found[RoomBoss] {
			t.Fatalf("seed %d: no boss room on final floor", seed)
		}
	}
}

func TestGenerateExitRoomOnNonFinalFloor(t *testing.T) {
	m := genTestMap(t, 7, 1, 3)
	found := false
	for _, tile := range m.Tiles {
		if tile.RoomType == RoomExit {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("no exit room on non-final floor")
	}
}

func TestGenerateQuestEventsPlaced(t *testing.T) {
	events := []quest.Event{
		{ID: "ev-1", Name: "坍塌的祭坛", EventType: "quest_event", ProgressValue: 20, IsMandatory: true},
		{ID: "ev-2", Name: "低语之门", EventType: "quest_event", ProgressValue: 15},
	}
	m, err := Generate(context.Background(), Config{
		Width:     30,
		Height:    24,
		Depth:     2,
		MaxFloors: 3,
		Theme:     "ruins",
		Quest:     &QuestContext{QuestType: "delve", Events: events},
		Rng:       rand.New(rand.NewSource(11)),
	}, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	placed := map[string]bool{}
	for _, tile := range m.Tiles {
		if !tile.HasEvent {
			continue
		}
		if id, ok := tile.EventData["quest_event_id"].(string); ok {
			placed[id] = true
		}
	}
	for _, ev := range events {
		if !placed[ev.ID] {
			t.Fatalf("quest event %s not placed on map", ev.ID)
		}
	}
}

func TestGenerateFallbackName(t *testing.T) {
	m := genTestMap(t, 3, 2, 3)
	if m.Name != "地下城第2层" {
		t.Fatalf("Name = %q, want fallback 地下城第2层", m.Name)
	}
}

func TestGenerateCorridorTrapDensity(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		m := genTestMap(t, seed, 1, 3)
		corridor := 0
		traps := 0
		for _, tile := range m.Tiles {
			if tile.RoomID != 0 {
				continue
			}
			switch tile.Terrain {
			case TerrainFloor, TerrainDoor:
				corridor++
			case TerrainTrap:
				traps++
			}
		}
		if traps > corridor/10+1 {
			t.Fatalf("seed %d: %d corridor traps for %d corridor tiles", seed, traps, corridor)
		}
	}
}

func TestRecomputeVisibility(t *testing.T) {
	m := genTestMap(t, 1, 1, 3)
	sx, sy := m.SpawnPoint("")
	RecomputeVisibility(m, sx, sy)
	centre, _ := m.TileAt(sx, sy)
	if !centre.IsVisible || !centre.IsExplored {
		t.Fatalf("spawn tile not visible/explored")
	}
	for _, tile := range m.Tiles {
		dx, dy := tile.X-sx, tile.Y-sy
		inRadius := dx >= -VisibilityRadius && dx <= VisibilityRadius && dy >= -VisibilityRadius && dy <= VisibilityRadius
		if tile.IsVisible != inRadius {
			t.Fatalf("tile (%d,%d) visible = %v, want %v", tile.X, tile.Y, tile.IsVisible, inRadius)
		}
	}
}
