package world

import (
	"math/rand"
)

// GameMap is one dungeon floor. Tiles are keyed by "x,y"; every coordinate
// inside the bounds has an entry after generation.
type GameMap struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Description        string           `json:"description,omitempty"`
	Width              int              `json:"width"`
	Height             int              `json:"height"`
	Depth              int              `json:"depth"`
	MaxFloors          int              `json:"max_floors,omitempty"`
	FloorTheme         string           `json:"floor_theme,omitempty"`
	Tiles              map[string]*Tile `json:"tiles"`
	GenerationMetadata map[string]any   `json:"generation_metadata,omitempty"`
}

// InBounds reports whether the coordinate lies on the map.
func (m *GameMap) InBounds(x, y int) bool {
	return x >= 0 && x < m.Width && y >= 0 && y < m.Height
}

// TileAt returns the tile at (x,y), if it exists.
func (m *GameMap) TileAt(x, y int) (*Tile, bool) {
	t, ok := m.Tiles[TileKey(x, y)]
	return t, ok
}

// Walkable reports whether a creature can enter (x,y).
func (m *GameMap) Walkable(x, y int) bool {
	t, ok := m.TileAt(x, y)
	return ok && t.Walkable()
}

// FindTerrain returns every tile with the given terrain.
func (m *GameMap) FindTerrain(terrain Terrain) []*Tile {
	var out []*Tile
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if t, ok := m.TileAt(x, y); ok && t.Terrain == terrain {
				out = append(out, t)
			}
		}
	}
	return out
}

// RandomWalkableTile picks a uniformly random non-wall tile without a
// standing creature. Returns false when the map has none.
func (m *GameMap) RandomWalkableTile(rng *rand.Rand) (*Tile, bool) {
	var candidates []*Tile
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if t, ok := m.TileAt(x, y); ok && t.Walkable() && t.CharacterID == "" {
				candidates = append(candidates, t)
			}
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[rng.Intn(len(candidates))], true
}

// SpawnPoint is where the player appears on this floor: the stairs the
// player arrived through when present, otherwise the entrance room centre,
// otherwise the first walkable tile.
func (m *GameMap) SpawnPoint(arrivedFrom Terrain) (int, int) {
	if arrivedFrom == TerrainStairsDown || arrivedFrom == TerrainStairsUp {
		if tiles := m.FindTerrain(arrivedFrom); len(tiles) > 0 {
			return tiles[0].X, tiles[0].Y
		}
	}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if t, ok := m.TileAt(x, y); ok && t.RoomType == RoomEntrance && t.Terrain == TerrainFloor {
				return x, y
			}
		}
	}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.Walkable(x, y) {
				return x, y
			}
		}
	}
	return 0, 0
}

// Reachable flood-fills from (x,y) through non-wall tiles and returns the
// set of reached tile keys.
func (m *GameMap) Reachable(x, y int) map[string]bool {
	seen := map[string]bool{}
	if !m.Walkable(x, y) {
		return seen
	}
	queue := []Tile{{X: x, Y: y}}
	seen[TileKey(x, y)] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := cur.X+d[0], cur.Y+d[1]
			key := TileKey(nx, ny)
			if seen[key] || !m.Walkable(nx, ny) {
				continue
			}
			seen[key] = true
			queue = append(queue, Tile{X: nx, Y: ny})
		}
	}
	return seen
}

// ClearCharacterRefs wipes every tile's character back-reference. Callers
// re-assert the references from the live entity list afterwards.
func (m *GameMap) ClearCharacterRefs() {
	for _, t := range m.Tiles {
		t.CharacterID = ""
	}
}
