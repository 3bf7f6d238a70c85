package world

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"

	"github.com/ravenmoor/deepspire/internal/game/quest"
)

// LayoutStyle shapes how rooms are distributed on the floor.
type LayoutStyle string

const (
	LayoutStandard LayoutStyle = "standard"
	LayoutLinear   LayoutStyle = "linear"
	LayoutHub      LayoutStyle = "hub"
)

// layoutForQuestType picks the floor layout from the quest's flavor.
func layoutForQuestType(questType string) LayoutStyle {
	switch questType {
	case "escort", "escape", "delve":
		return LayoutLinear
	case "siege", "ritual":
		return LayoutHub
	default:
		return LayoutStandard
	}
}

// Namer supplies an LLM-backed floor name and description. Generation works
// without one; the fallback name is used on nil namer or error.
type Namer interface {
	MapInfo(ctx context.Context, depth int, theme string) (name, description string, err error)
}

// QuestContext carries the active quest's authored content into generation.
type QuestContext struct {
	QuestType string
	Themes    []string
	Events    []quest.Event
}

// Config parameterises one floor generation.
type Config struct {
	Width     int
	Height    int
	Depth     int
	MaxFloors int
	Theme     string
	Quest     *QuestContext
	NewID     func() string
	Rng       *rand.Rand
}

const (
	minRoomSize  = 4
	maxRoomSize  = 9
	extraEdgePct = 30 // extra corridor edges beyond the MST, percent of MST size
)

// Generate produces a fully connected floor: rooms joined by an MST of
// corridors plus random extra edges, typed rooms, doors, stairs, traps and
// event tiles. The namer failure path falls back to a deterministic name.
func Generate(ctx context.Context, cfg Config, namer Namer) (*GameMap, error) {
	if cfg.Width < 12 || cfg.Height < 12 {
		return nil, fmt.Errorf("map must be at least 12x12, got %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if cfg.Depth < 1 {
		cfg.Depth = 1
	}
	if cfg.MaxFloors < cfg.Depth {
		cfg.MaxFloors = cfg.Depth
	}

	g := &generator{cfg: cfg, rng: cfg.Rng}
	g.fillWalls()
	g.placeRooms()
	g.assignRoomTypes()
	g.ensureRequiredRooms()
	g.carveRooms()
	g.connectRooms()
	g.placeDoors()
	g.placeStairs()
	g.placeSpecialTerrain()
	g.placeTraps()
	g.placeEvents()

	m := g.m
	m.Depth = cfg.Depth
	m.MaxFloors = cfg.MaxFloors
	m.FloorTheme = cfg.Theme
	if cfg.NewID != nil {
		m.ID = cfg.NewID()
	}
	m.GenerationMetadata = map[string]any{
		"layout":     string(g.layout()),
		"room_count": len(g.rooms),
	}

	m.Name, m.Description = floorName(ctx, cfg, namer)
	return m, nil
}

func floorName(ctx context.Context, cfg Config, namer Namer) (string, string) {
	fallback := fmt.Sprintf("地下城第%d层", cfg.Depth)
	if namer == nil {
		return fallback, ""
	}
	name, description, err := namer.MapInfo(ctx, cfg.Depth, cfg.Theme)
	if err != nil || name == "" {
		if err != nil {
			log.Printf("map naming failed depth=%d err=%v", cfg.Depth, err)
		}
		return fallback, ""
	}
	return name, description
}

type generator struct {
	cfg   Config
	rng   *rand.Rand
	m     *GameMap
	rooms []Room
	// corridor tracks carved corridor tiles (outside any room) for door and
	// trap placement.
	corridor map[string]bool
}

func (g *generator) layout() LayoutStyle {
	if g.cfg.Quest != nil {
		return layoutForQuestType(g.cfg.Quest.QuestType)
	}
	return LayoutStandard
}

func (g *generator) fillWalls() {
	g.m = &GameMap{
		Width:  g.cfg.Width,
		Height: g.cfg.Height,
		Tiles:  make(map[string]*Tile, g.cfg.Width*g.cfg.Height),
	}
	for y := 0; y < g.cfg.Height; y++ {
		for x := 0; x < g.cfg.Width; x++ {
			g.m.Tiles[TileKey(x, y)] = &Tile{X: x, Y: y, Terrain: TerrainWall}
		}
	}
	g.corridor = map[string]bool{}
}

// placeRooms scatters non-overlapping rectangles. Linear layouts bias room
// centres along the map diagonal; hub layouts put the first room in the
// middle and the rest around it.
func (g *generator) placeRooms() {
	target := 4 + g.rng.Intn(4)
	layout := g.layout()
	attempts := 0
	for len(g.rooms) < target && attempts < 200 {
		attempts++
		w := minRoomSize + g.rng.Intn(maxRoomSize-minRoomSize+1)
		h := minRoomSize + g.rng.Intn(maxRoomSize-minRoomSize+1)
		var x, y int
		switch {
		case layout == LayoutLinear:
			// spread rooms along x in placement order
			band := (g.cfg.Width - w - 2) * len(g.rooms) / target
			span := (g.cfg.Width - w - 2) / target
			if span < 1 {
				span = 1
			}
			x = 1 + band + g.rng.Intn(span)
			y = 1 + g.rng.Intn(g.cfg.Height-h-2)
		case layout == LayoutHub && len(g.rooms) == 0:
			x = g.cfg.Width/2 - w/2
			y = g.cfg.Height/2 - h/2
		default:
			x = 1 + g.rng.Intn(g.cfg.Width-w-2)
			y = 1 + g.rng.Intn(g.cfg.Height-h-2)
		}
		candidate := Room{ID: len(g.rooms), X: x, Y: y, Width: w, Height: h}
		overlaps := false
		for _, existing := range g.rooms {
			if candidate.Overlaps(existing) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			g.rooms = append(g.rooms, candidate)
		}
	}
}

// assignRoomTypes types rooms in placement order: first is the entrance,
// last is boss on the final floor and exit otherwise. With four or more
// rooms the middle one becomes a treasure room; other middles roll a 30%
// chance of special.
func (g *generator) assignRoomTypes() {
	n := len(g.rooms)
	for i := range g.rooms {
		switch {
		case i == 0:
			g.rooms[i].Type = RoomEntrance
		case i == n-1:
			if g.cfg.Depth == g.cfg.MaxFloors {
				g.rooms[i].Type = RoomBoss
			} else {
				g.rooms[i].Type = RoomExit
			}
		case n >= 4 && i == n/2:
			g.rooms[i].Type = RoomTreasure
		case g.rng.Float64() < 0.3:
			g.rooms[i].Type = RoomSpecial
		default:
			g.rooms[i].Type = RoomNormal
		}
	}
}

// requiredRoomTypes lists the types a valid floor must carry.
func (g *generator) requiredRoomTypes() []RoomType {
	required := []RoomType{RoomEntrance}
	if g.cfg.Depth == g.cfg.MaxFloors {
		required = append(required, RoomBoss)
	} else {
		required = append(required, RoomExit)
	}
	return required
}

// ensureRequiredRooms adds emergency rooms when typing left a required type
// uncovered (possible only when very few rooms fit).
func (g *generator) ensureRequiredRooms() {
	for _, required := range g.requiredRoomTypes() {
		found := false
		for _, r := range g.rooms {
			if r.Type == required {
				found = true
				break
			}
		}
		if found {
			continue
		}
		for attempt := 0; attempt < 50; attempt++ {
			w := minRoomSize + g.rng.Intn(2)
			h := minRoomSize + g.rng.Intn(2)
			x := 1 + g.rng.Intn(g.cfg.Width-w-2)
			y := 1 + g.rng.Intn(g.cfg.Height-h-2)
			candidate := Room{ID: len(g.rooms), X: x, Y: y, Width: w, Height: h, Type: required}
			ok := true
			for _, existing := range g.rooms {
				if candidate.Overlaps(existing) {
					ok = false
					break
				}
			}
			if ok {
				g.rooms = append(g.rooms, candidate)
				break
			}
		}
	}
}

func (g *generator) carveRooms() {
	for _, r := range g.rooms {
		for y := r.Y; y < r.Y+r.Height; y++ {
			for x := r.X; x < r.X+r.Width; x++ {
				t := g.m.Tiles[TileKey(x, y)]
				t.Terrain = TerrainFloor
				t.RoomID = r.ID + 1
				t.RoomType = r.Type
			}
		}
	}
}

type edge struct {
	a, b   int
	weight int
}

// connectRooms joins every room through a Kruskal MST over room centres,
// then carves up to 30% extra random edges for path variety.
func (g *generator) connectRooms() {
	n := len(g.rooms)
	if n < 2 {
		return
	}
	var edges []edge
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			ax, ay := g.rooms[i].Centre()
			bx, by := g.rooms[j].Centre()
			edges = append(edges, edge{a: i, b: j, weight: abs(ax-bx) + abs(ay-by)})
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].weight < edges[j].weight })

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	var mst, rest []edge
	for _, e := range edges {
		ra, rb := find(e.a), find(e.b)
		if ra == rb {
			rest = append(rest, e)
			continue
		}
		parent[ra] = rb
		mst = append(mst, e)
	}
	for _, e := range mst {
		g.carveCorridor(e.a, e.b)
	}
	extra := len(mst) * extraEdgePct / 100
	g.rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	for i := 0; i < extra && i < len(rest); i++ {
		g.carveCorridor(rest[i].a, rest[i].b)
	}
}

// carveCorridor digs an L-shaped corridor between two room centres, bending
// horizontally-then-vertically or the reverse at random.
func (g *generator) carveCorridor(a, b int) {
	ax, ay := g.rooms[a].Centre()
	bx, by := g.rooms[b].Centre()
	if g.rng.Intn(2) == 0 {
		g.carveH(ax, bx, ay)
		g.carveV(ay, by, bx)
	} else {
		g.carveV(ay, by, ax)
		g.carveH(ax, bx, by)
	}
}

func (g *generator) carveH(x1, x2, y int) {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	for x := x1; x <= x2; x++ {
		g.carveCorridorTile(x, y)
	}
}

func (g *generator) carveV(y1, y2, x int) {
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	for y := y1; y <= y2; y++ {
		g.carveCorridorTile(x, y)
	}
}

func (g *generator) carveCorridorTile(x, y int) {
	t, ok := g.m.TileAt(x, y)
	if !ok {
		return
	}
	if t.Terrain == TerrainWall {
		t.Terrain = TerrainFloor
	}
	if t.RoomID == 0 {
		g.corridor[TileKey(x, y)] = true
	}
}

// doorChance is the placement probability per room type. Critical rooms get
// a guaranteed door through emergency placement.
func doorChance(rt RoomType) float64 {
	switch rt {
	case RoomTreasure, RoomBoss, RoomSpecial:
		return 1.0
	case RoomNormal:
		return 0.7
	case RoomEntrance:
		return 0.3
	default:
		return 0.5
	}
}

// placeDoors converts the best-scoring corridor tile on each room's boundary
// into a door. Candidates are corridor tiles orthogonally adjacent to
// exactly one tile of the room.
func (g *generator) placeDoors() {
	for _, r := range g.rooms {
		chance := doorChance(r.Type)
		if g.rng.Float64() >= chance {
			continue
		}
		best, bestScore := "", -1
		for key := range g.corridor {
			t := g.m.Tiles[key]
			score := g.evaluateDoorPosition(t, r)
			if score > bestScore {
				best, bestScore = key, score
			}
		}
		if bestScore > 0 {
			g.m.Tiles[best].Terrain = TerrainDoor
			delete(g.corridor, best)
			continue
		}
		if chance >= 1.0 {
			// Emergency placement: critical rooms always get a door on any
			// corridor tile touching the room.
			for key := range g.corridor {
				t := g.m.Tiles[key]
				if g.adjacentRoomTiles(t, r) > 0 {
					t.Terrain = TerrainDoor
					delete(g.corridor, key)
					break
				}
			}
		}
	}
}

// evaluateDoorPosition scores a corridor tile as a door site for the room.
// Exactly one adjacent room tile is required; narrow passages (two adjacent
// walls) score higher.
func (g *generator) evaluateDoorPosition(t *Tile, r Room) int {
	if g.adjacentRoomTiles(t, r) != 1 {
		return 0
	}
	score := 10
	walls := 0
	for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		if n, ok := g.m.TileAt(t.X+d[0], t.Y+d[1]); ok && n.Terrain == TerrainWall {
			walls++
		}
	}
	if walls == 2 {
		score += 5
	}
	return score
}

func (g *generator) adjacentRoomTiles(t *Tile, r Room) int {
	count := 0
	for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		if r.Contains(t.X+d[0], t.Y+d[1]) {
			count++
		}
	}
	return count
}

// placeStairs puts stairs_up in the first room's interior when depth > 1 and
// stairs_down in the last-sorted room's interior when the floor is not the
// final one. Exactly one of each is ever placed.
func (g *generator) placeStairs() {
	if len(g.rooms) == 0 {
		return
	}
	if g.cfg.Depth > 1 {
		g.placeInInterior(g.rooms[0], TerrainStairsUp)
	}
	if g.cfg.Depth < g.cfg.MaxFloors {
		g.placeInInterior(g.rooms[len(g.rooms)-1], TerrainStairsDown)
	}
}

func (g *generator) placeInInterior(r Room, terrain Terrain) {
	interior := r.Interior()
	for _, attempt := range g.rng.Perm(len(interior)) {
		p := interior[attempt]
		t := g.m.Tiles[TileKey(p.X, p.Y)]
		if t.Terrain == TerrainFloor {
			t.Terrain = terrain
			return
		}
	}
}

// placeSpecialTerrain scatters theme hazards in special rooms and treasure
// piles in treasure rooms.
func (g *generator) placeSpecialTerrain() {
	hazard := TerrainWater
	switch g.cfg.Theme {
	case "volcanic", "infernal":
		hazard = TerrainLava
	case "abyss", "ruins":
		hazard = TerrainPit
	}
	for _, r := range g.rooms {
		switch r.Type {
		case RoomSpecial:
			interior := r.Interior()
			count := 1 + g.rng.Intn(3)
			for _, idx := range g.rng.Perm(len(interior)) {
				if count == 0 {
					break
				}
				t := g.m.Tiles[TileKey(interior[idx].X, interior[idx].Y)]
				if t.Terrain == TerrainFloor {
					t.Terrain = hazard
					count--
				}
			}
		case RoomTreasure:
			interior := r.Interior()
			if len(interior) > 0 {
				p := interior[g.rng.Intn(len(interior))]
				t := g.m.Tiles[TileKey(p.X, p.Y)]
				if t.Terrain == TerrainFloor {
					t.Terrain = TerrainTreasure
				}
			}
		}
	}
}

// placeTraps guards treasure rooms, hardens boss rooms and sprinkles
// corridors with at most one trap per ten corridor tiles.
func (g *generator) placeTraps() {
	for _, r := range g.rooms {
		switch r.Type {
		case RoomTreasure:
			g.placeRoomTraps(r, 1+g.rng.Intn(2))
		case RoomBoss:
			g.placeRoomTraps(r, 1)
		}
	}
	quota := len(g.corridor) / 10
	keys := make([]string, 0, len(g.corridor))
	for key := range g.corridor {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	g.rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	for i := 0; i < quota && i < len(keys); i++ {
		g.armTrap(g.m.Tiles[keys[i]])
	}
}

func (g *generator) placeRoomTraps(r Room, count int) {
	interior := r.Interior()
	for _, idx := range g.rng.Perm(len(interior)) {
		if count == 0 {
			return
		}
		t := g.m.Tiles[TileKey(interior[idx].X, interior[idx].Y)]
		if t.Terrain == TerrainFloor {
			g.armTrap(t)
			count--
		}
	}
}

var trapNames = map[TrapKind]string{
	TrapDamage:    "尖刺陷阱",
	TrapDebuff:    "毒雾陷阱",
	TrapTeleport:  "传送符文",
	TrapAlarm:     "警报符文",
	TrapRestraint: "束缚藤蔓",
}

func (g *generator) armTrap(t *Tile) {
	kinds := []TrapKind{TrapDamage, TrapDamage, TrapDebuff, TrapTeleport, TrapAlarm, TrapRestraint}
	kind := kinds[g.rng.Intn(len(kinds))]
	depth := g.cfg.Depth
	t.Terrain = TerrainTrap
	t.TrapData = &Trap{
		Kind:       kind,
		Name:       trapNames[kind],
		DetectDC:   10 + depth,
		SaveDC:     10 + depth,
		DisarmDC:   11 + depth,
		Damage:     5 + 3*depth,
		DamageType: "piercing",
	}
	if kind == TrapDebuff {
		t.TrapData.DamageType = "poison"
	}
}

// placeEvents puts quest events first (already filtered by floor by the
// caller), then fills the remaining quota with generic story events.
func (g *generator) placeEvents() {
	var quests []quest.Event
	if g.cfg.Quest != nil {
		quests = g.cfg.Quest.Events
	}
	quota := 2 + g.rng.Intn(2)
	if len(quests) > quota {
		quota = len(quests)
	}
	candidates := g.eventCandidates()
	g.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	placed := 0
	for _, ev := range quests {
		if placed >= len(candidates) {
			break
		}
		t := candidates[placed]
		placed++
		t.HasEvent = true
		t.EventType = ev.EventType
		if t.EventType == "" {
			t.EventType = "quest_event"
		}
		t.IsEventHidden = g.rng.Float64() < 0.5
		t.EventData = map[string]any{
			"quest_event_id": ev.ID,
			"name":           ev.Name,
			"description":    ev.Description,
			"progress_value": ev.ProgressValue,
			"is_mandatory":   ev.IsMandatory,
		}
		for k, v := range ev.EventData {
			t.EventData[k] = v
		}
	}
	generic := []string{"story", "treasure", "mystery"}
	for placed < quota && placed < len(candidates) {
		t := candidates[placed]
		placed++
		t.HasEvent = true
		t.EventType = generic[g.rng.Intn(len(generic))]
		t.IsEventHidden = g.rng.Float64() < 0.3
		t.EventData = map[string]any{"generic": true}
	}
}

// eventCandidates lists floor tiles in normal and special rooms, skipping
// the entrance so events never trigger on spawn.
func (g *generator) eventCandidates() []*Tile {
	var out []*Tile
	for _, r := range g.rooms {
		if r.Type == RoomEntrance {
			continue
		}
		for _, p := range r.Interior() {
			t := g.m.Tiles[TileKey(p.X, p.Y)]
			if t.Terrain == TerrainFloor && !t.HasEvent {
				out = append(out, t)
			}
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
