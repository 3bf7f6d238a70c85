// Package world holds the dungeon map model and the procedural generator
// that produces each floor.
package world

import (
	"fmt"

	"github.com/ravenmoor/deepspire/internal/game/entity"
)

// Terrain enumerates what occupies a tile.
type Terrain string

const (
	TerrainFloor      Terrain = "floor"
	TerrainWall       Terrain = "wall"
	TerrainDoor       Terrain = "door"
	TerrainTrap       Terrain = "trap"
	TerrainTreasure   Terrain = "treasure"
	TerrainStairsUp   Terrain = "stairs_up"
	TerrainStairsDown Terrain = "stairs_down"
	TerrainWater      Terrain = "water"
	TerrainLava       Terrain = "lava"
	TerrainPit        Terrain = "pit"
)

// ValidTerrain reports whether t is one of the known terrains.
func ValidTerrain(t Terrain) bool {
	switch t {
	case TerrainFloor, TerrainWall, TerrainDoor, TerrainTrap, TerrainTreasure,
		TerrainStairsUp, TerrainStairsDown, TerrainWater, TerrainLava, TerrainPit:
		return true
	}
	return false
}

// Walkable reports whether a creature can stand on the terrain. Hazards
// (lava, pit, water, traps) are walkable; only walls block movement.
func (t Terrain) Walkable() bool {
	return t != TerrainWall
}

// RoomType labels what a room is for.
type RoomType string

const (
	RoomEntrance RoomType = "entrance"
	RoomExit     RoomType = "exit"
	RoomBoss     RoomType = "boss"
	RoomTreasure RoomType = "treasure"
	RoomSpecial  RoomType = "special"
	RoomNormal   RoomType = "normal"
)

// TrapKind dispatches what happens when a trap fires.
type TrapKind string

const (
	TrapDamage    TrapKind = "damage"
	TrapDebuff    TrapKind = "debuff"
	TrapTeleport  TrapKind = "teleport"
	TrapAlarm     TrapKind = "alarm"
	TrapRestraint TrapKind = "restraint"
)

// Trap holds the armed trap's parameters. The detection/disarm lifecycle
// flags live on the tile itself.
type Trap struct {
	Kind       TrapKind             `json:"kind"`
	Name       string               `json:"name"`
	DetectDC   int                  `json:"detect_dc"`
	SaveDC     int                  `json:"save_dc"`
	DisarmDC   int                  `json:"disarm_dc"`
	Damage     int                  `json:"damage,omitempty"`
	DamageType string               `json:"damage_type,omitempty"`
	Debuff     *entity.StatusEffect `json:"debuff,omitempty"`
}

// Tile is one map cell. CharacterID is a weak back-reference to whichever
// creature stands here; it is rebuilt from the entity list on load and never
// trusted from disk.
type Tile struct {
	X              int            `json:"x"`
	Y              int            `json:"y"`
	Terrain        Terrain        `json:"terrain"`
	IsExplored     bool           `json:"is_explored"`
	IsVisible      bool           `json:"is_visible"`
	Items          []entity.Item  `json:"items,omitempty"`
	CharacterID    string         `json:"character_id,omitempty"`
	RoomID         int            `json:"room_id,omitempty"`
	RoomType       RoomType       `json:"room_type,omitempty"`
	HasEvent       bool           `json:"has_event,omitempty"`
	EventType      string         `json:"event_type,omitempty"`
	EventData      map[string]any `json:"event_data,omitempty"`
	IsEventHidden  bool           `json:"is_event_hidden,omitempty"`
	EventTriggered bool           `json:"event_triggered,omitempty"`
	TrapDetected   bool           `json:"trap_detected,omitempty"`
	TrapDisarmed   bool           `json:"trap_disarmed,omitempty"`
	TrapTriggered  bool           `json:"trap_triggered,omitempty"`
	TrapData       *Trap          `json:"trap_data,omitempty"`
}

// Walkable reports whether a creature can enter the tile.
func (t *Tile) Walkable() bool {
	return t.Terrain.Walkable()
}

// ArmedTrap reports whether the tile hosts a trap that can still fire.
func (t *Tile) ArmedTrap() bool {
	return t.Terrain == TerrainTrap && t.TrapData != nil && !t.TrapDisarmed && !t.TrapTriggered
}

// TileKey renders the canonical "x,y" map key.
func TileKey(x, y int) string {
	return fmt.Sprintf("%d,%d", x, y)
}
