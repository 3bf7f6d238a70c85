package state

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ravenmoor/deepspire/internal/game/entity"
	"github.com/ravenmoor/deepspire/internal/game/quest"
	"github.com/ravenmoor/deepspire/internal/game/world"
)

// Record documents one applied mutation.
type Record struct {
	Path     string `json:"path"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
	Source   string `json:"source"`
}

// Result reports a modification batch. Success is false only when every
// sub-update failed; independent sub-updates proceed past failures.
type Result struct {
	Success bool     `json:"success"`
	Records []Record `json:"records"`
	Errors  []string `json:"errors,omitempty"`
}

func (r *Result) record(source, path string, oldValue, newValue any) {
	r.Records = append(r.Records, Record{Path: path, OldValue: oldValue, NewValue: newValue, Source: source})
}

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// finalize sets Success: a batch succeeds when it applied at least one
// record, or when nothing failed.
func (r *Result) finalize() Result {
	r.Success = len(r.Records) > 0 || len(r.Errors) == 0
	return *r
}

// merge folds another result into this one.
func (r *Result) merge(other Result) {
	r.Records = append(r.Records, other.Records...)
	r.Errors = append(r.Errors, other.Errors...)
}

// Modifier is the single permitted mutation path into a State. It validates
// every sub-update, applies the valid ones, and records each change. It
// never calls the LLM and never performs I/O; callers hold the game lock.
type Modifier struct {
	newID func() string
}

// NewModifier builds a modifier that assigns ids to created entities.
func NewModifier(newID func() string) *Modifier {
	return &Modifier{newID: newID}
}

// Stat names accepted by player stat updates, with their default operation
// when a bare number is given: hp/mp/experience add, the rest set.
var statAddDefault = map[string]bool{
	"hp":         true,
	"mp":         true,
	"experience": true,
	"max_hp":     false,
	"max_mp":     false,
	"ac":         false,
	"level":      false,
	"speed":      false,
}

// ApplyPlayerUpdates applies the player update grammar: stats deltas/sets,
// ability deltas, inventory add/remove, and position moves.
func (m *Modifier) ApplyPlayerUpdates(st *State, updates map[string]any, source string) Result {
	var res Result
	if st == nil || len(updates) == 0 {
		return res.finalize()
	}

	if stats, ok := updates["stats"].(map[string]any); ok {
		for name, raw := range stats {
			m.applyStat(st, &res, name, raw, source)
		}
	}
	if abilities, ok := updates["abilities"].(map[string]any); ok {
		for name, raw := range abilities {
			m.applyAbility(st, &res, name, raw, source)
		}
	}
	if items, ok := updates["add_items"].([]any); ok {
		for _, raw := range items {
			m.addItem(st, &res, raw, source)
		}
	}
	if removals, ok := updates["remove_items"].([]any); ok {
		for _, raw := range removals {
			key, ok := raw.(string)
			if !ok {
				res.errorf("remove_items entry must be an item id or name")
				continue
			}
			removed, err := st.Player.RemoveItem(key)
			if err != nil {
				res.errorf("remove item %s: item not found", key)
				continue
			}
			res.record(source, "player.inventory", removed.Name, nil)
		}
	}
	if rawPos, ok := updates["position"]; ok {
		x, y, ok := parsePosition(rawPos)
		if !ok {
			res.errorf("position must carry numeric x and y")
		} else {
			res.merge(m.SetPlayerPosition(st, x, y, source))
		}
	}
	return res.finalize()
}

func (m *Modifier) applyStat(st *State, res *Result, name string, raw any, source string) {
	addDefault, known := statAddDefault[name]
	if !known {
		res.errorf("unknown stat %q", name)
		return
	}
	value, op, ok := parseOpValue(raw, addDefault)
	if !ok {
		res.errorf("stat %s: value must be a number or {op,value}", name)
		return
	}

	stats := &st.Player.Stats
	path := "player.stats." + name
	switch name {
	case "hp":
		old := stats.HP
		if op == "add" {
			stats.HP += value
		} else {
			if value < 0 || value > stats.MaxHP {
				res.errorf("hp set to %d violates 0..max_hp(%d)", value, stats.MaxHP)
				return
			}
			stats.HP = value
		}
		stats.ClampHP()
		res.record(source, path, old, stats.HP)
	case "mp":
		old := stats.MP
		if op == "add" {
			stats.MP += value
		} else {
			if value < 0 || value > stats.MaxMP {
				res.errorf("mp set to %d violates 0..max_mp(%d)", value, stats.MaxMP)
				return
			}
			stats.MP = value
		}
		stats.ClampMP()
		res.record(source, path, old, stats.MP)
	case "experience":
		old := stats.Experience
		if op == "add" {
			stats.Experience += value
		} else {
			stats.Experience = value
		}
		if stats.Experience < 0 {
			stats.Experience = 0
		}
		res.record(source, path, old, stats.Experience)
	case "max_hp":
		old := stats.MaxHP
		next := value
		if op == "add" {
			next = old + value
		}
		if next < 1 {
			res.errorf("max_hp %d must be at least 1", next)
			return
		}
		stats.MaxHP = next
		stats.ClampHP()
		res.record(source, path, old, stats.MaxHP)
	case "max_mp":
		old := stats.MaxMP
		next := value
		if op == "add" {
			next = old + value
		}
		if next < 0 {
			res.errorf("max_mp %d must not be negative", next)
			return
		}
		stats.MaxMP = next
		stats.ClampMP()
		res.record(source, path, old, stats.MaxMP)
	case "ac":
		old := stats.AC
		next := value
		if op == "add" {
			next = old + value
		}
		if op == "set" && (next < entity.ACMin || next > entity.ACMax) {
			res.errorf("ac set to %d is out of range", next)
			return
		}
		stats.AC = next
		stats.ClampAC()
		res.record(source, path, old, stats.AC)
	case "level":
		old := stats.Level
		next := value
		if op == "add" {
			next = old + value
		}
		if next < 1 {
			res.errorf("level %d must be at least 1", next)
			return
		}
		stats.Level = next
		res.record(source, path, old, stats.Level)
	case "speed":
		old := stats.Speed
		next := value
		if op == "add" {
			next = old + value
		}
		if next < 0 {
			next = 0
		}
		stats.Speed = next
		res.record(source, path, old, stats.Speed)
	}
}

func (m *Modifier) applyAbility(st *State, res *Result, name string, raw any, source string) {
	ability := entity.AbilityName(strings.ToLower(name))
	valid := false
	for _, known := range entity.AbilityNames {
		if ability == known {
			valid = true
			break
		}
	}
	if !valid {
		res.errorf("unknown ability %q", name)
		return
	}
	delta, _, ok := parseOpValue(raw, true)
	if !ok {
		res.errorf("ability %s: value must be a number", name)
		return
	}
	old := st.Player.Abilities.Score(ability)
	next := old + delta
	if next < entity.AbilityMin {
		next = entity.AbilityMin
	}
	if next > entity.AbilityMax {
		next = entity.AbilityMax
	}
	st.Player.Abilities.SetScore(ability, next)
	res.record(source, "player.abilities."+string(ability), old, next)
}

func (m *Modifier) addItem(st *State, res *Result, raw any, source string) {
	item, err := decodeAs[entity.Item](raw)
	if err != nil {
		res.errorf("add_items entry: %v", err)
		return
	}
	normalized, err := entity.NormalizeItem(item, m.newID)
	if err != nil {
		res.errorf("add_items entry: %v", err)
		return
	}
	st.Player.AddItem(normalized)
	res.record(source, "player.inventory", nil, normalized.Name)
}

// SetPlayerPosition moves the player, enforcing bounds and walkability and
// keeping the tile back-references consistent.
func (m *Modifier) SetPlayerPosition(st *State, x, y int, source string) Result {
	var res Result
	if st.CurrentMap == nil {
		res.errorf("no current map")
		return res.finalize()
	}
	target, ok := st.CurrentMap.TileAt(x, y)
	if !ok {
		res.errorf("position (%d,%d) is out of bounds", x, y)
		return res.finalize()
	}
	if !target.Walkable() {
		res.errorf("position (%d,%d) is not walkable", x, y)
		return res.finalize()
	}
	if target.CharacterID != "" && target.CharacterID != st.Player.ID {
		res.errorf("position (%d,%d) is occupied", x, y)
		return res.finalize()
	}
	old := st.Player.Position
	if t, ok := st.CurrentMap.TileAt(old.X, old.Y); ok && t.CharacterID == st.Player.ID {
		t.CharacterID = ""
	}
	st.Player.Position = entity.Position{X: x, Y: y}
	target.CharacterID = st.Player.ID
	res.record(source, "player.position", old, st.Player.Position)
	return res.finalize()
}

// ApplyMapUpdates applies the tile update grammar.
func (m *Modifier) ApplyMapUpdates(st *State, updates map[string]any, source string) Result {
	var res Result
	if st == nil || st.CurrentMap == nil || len(updates) == 0 {
		return res.finalize()
	}
	tiles, ok := updates["tiles"].(map[string]any)
	if !ok {
		return res.finalize()
	}
	for key, raw := range tiles {
		changes, ok := raw.(map[string]any)
		if !ok {
			res.errorf("tile %s: changes must be an object", key)
			continue
		}
		x, y, ok := parseTileKey(key)
		if !ok {
			res.errorf("tile key %q is not x,y", key)
			continue
		}
		tile, ok := st.CurrentMap.TileAt(x, y)
		if !ok {
			res.errorf("tile %s is out of bounds", key)
			continue
		}
		m.applyTile(st, &res, tile, changes, source)
	}
	return res.finalize()
}

func (m *Modifier) applyTile(st *State, res *Result, tile *world.Tile, changes map[string]any, source string) {
	path := fmt.Sprintf("map.tiles[%d,%d]", tile.X, tile.Y)
	if raw, ok := changes["terrain"]; ok {
		name, _ := raw.(string)
		terrain := world.Terrain(name)
		if !world.ValidTerrain(terrain) {
			res.errorf("%s: unknown terrain %q", path, name)
		} else {
			old := tile.Terrain
			tile.Terrain = terrain
			res.record(source, path+".terrain", old, terrain)
		}
	}
	if raw, ok := changes["has_event"].(bool); ok {
		old := tile.HasEvent
		tile.HasEvent = raw
		res.record(source, path+".has_event", old, raw)
	}
	if raw, ok := changes["event_type"].(string); ok {
		old := tile.EventType
		tile.EventType = raw
		res.record(source, path+".event_type", old, raw)
	}
	if raw, ok := changes["event_data"].(map[string]any); ok {
		tile.EventData = raw
		res.record(source, path+".event_data", nil, "replaced")
	}
	if raw, ok := changes["items"].([]any); ok {
		items := make([]entity.Item, 0, len(raw))
		failed := false
		for _, entry := range raw {
			item, err := decodeAs[entity.Item](entry)
			if err != nil {
				res.errorf("%s items: %v", path, err)
				failed = true
				break
			}
			normalized, err := entity.NormalizeItem(item, m.newID)
			if err != nil {
				res.errorf("%s items: %v", path, err)
				failed = true
				break
			}
			items = append(items, normalized)
		}
		if !failed {
			old := len(tile.Items)
			tile.Items = items
			res.record(source, path+".items", old, len(items))
		}
	}
	if raw, ok := changes["monster"].(map[string]any); ok {
		m.applyTileMonster(st, res, tile, raw, path, source)
	}
}

func (m *Modifier) applyTileMonster(st *State, res *Result, tile *world.Tile, raw map[string]any, path, source string) {
	action, _ := raw["action"].(string)
	switch action {
	case "add":
		monster, err := decodeAs[entity.Monster](raw)
		if err != nil {
			res.errorf("%s monster add: %v", path, err)
			return
		}
		normalized, err := entity.NormalizeMonster(monster, m.newID)
		if err != nil {
			res.errorf("%s monster add: %v", path, err)
			return
		}
		normalized.Position = entity.Position{X: tile.X, Y: tile.Y}
		st.Monsters = append(st.Monsters, normalized)
		tile.CharacterID = normalized.ID
		res.record(source, path+".monster", nil, normalized.Name)
	case "update":
		monster := st.FindMonster(tile.CharacterID)
		if monster == nil {
			res.errorf("%s monster update: no monster on tile", path)
			return
		}
		if hp, _, ok := parseOpValue(raw["hp"], false); ok {
			old := monster.Stats.HP
			monster.Stats.HP = hp
			monster.Stats.ClampHP()
			res.record(source, path+".monster.hp", old, monster.Stats.HP)
		}
	case "remove":
		if tile.CharacterID == "" || !st.RemoveMonster(tile.CharacterID) {
			res.errorf("%s monster remove: no monster on tile", path)
			return
		}
		res.record(source, path+".monster", "removed", nil)
	default:
		res.errorf("%s monster: unknown action %q", path, action)
	}
}

// ApplyQuestUpdates applies the quest update grammar keyed by quest id.
func (m *Modifier) ApplyQuestUpdates(st *State, updates map[string]any, source string) Result {
	var res Result
	if st == nil || len(updates) == 0 {
		return res.finalize()
	}
	for questID, raw := range updates {
		changes, ok := raw.(map[string]any)
		if !ok {
			res.errorf("quest %s: changes must be an object", questID)
			continue
		}
		q := st.FindQuest(questID)
		if q == nil {
			res.errorf("quest %s not found", questID)
			continue
		}
		path := "quests." + questID
		if raw, ok := changes["progress_percentage"]; ok {
			if value, isNum := toFloat(raw); isNum {
				old := q.ProgressPercentage
				q.ProgressPercentage = quest.ClampProgress(value)
				res.record(source, path+".progress_percentage", old, q.ProgressPercentage)
			} else {
				res.errorf("%s: progress_percentage must be a number", path)
			}
		}
		if raw, ok := changes["completed_objectives"]; ok {
			m.applyObjectives(&res, q, raw, path, source)
		}
		if completed, ok := changes["is_completed"].(bool); ok {
			old := q.IsCompleted
			q.IsCompleted = completed
			if completed {
				q.IsActive = false
			}
			res.record(source, path+".is_completed", old, completed)
		}
	}
	return res.finalize()
}

func (m *Modifier) applyObjectives(res *Result, q *quest.Quest, raw any, path, source string) {
	switch v := raw.(type) {
	case []any:
		for i, entry := range v {
			done, ok := entry.(bool)
			if !ok || i >= len(q.CompletedObjectives) {
				continue
			}
			if q.CompletedObjectives[i] != done {
				res.record(source, fmt.Sprintf("%s.completed_objectives[%d]", path, i), q.CompletedObjectives[i], done)
				q.CompletedObjectives[i] = done
			}
		}
	case map[string]any:
		for key, entry := range v {
			idx, err := strconv.Atoi(key)
			done, ok := entry.(bool)
			if err != nil || !ok || idx < 0 || idx >= len(q.CompletedObjectives) {
				res.errorf("%s: invalid objective index %q", path, key)
				continue
			}
			if q.CompletedObjectives[idx] != done {
				res.record(source, fmt.Sprintf("%s.completed_objectives[%d]", path, idx), q.CompletedObjectives[idx], done)
				q.CompletedObjectives[idx] = done
			}
		}
	default:
		res.errorf("%s: completed_objectives must be a list or index map", path)
	}
}

// ApplyLLMUpdates dispatches a parsed LLM state_updates payload to the
// player, map and quest appliers. Failed sub-updates are dropped; the rest
// proceed.
func (m *Modifier) ApplyLLMUpdates(st *State, response map[string]any, source string) Result {
	var res Result
	if st == nil || len(response) == 0 {
		return res.finalize()
	}
	if player, ok := response["player_updates"].(map[string]any); ok {
		res.merge(m.ApplyPlayerUpdates(st, player, source))
	}
	if mapUpdates, ok := response["map_updates"].(map[string]any); ok {
		res.merge(m.ApplyMapUpdates(st, mapUpdates, source))
	}
	if quests, ok := response["quest_updates"].(map[string]any); ok {
		res.merge(m.ApplyQuestUpdates(st, quests, source))
	}
	return res.finalize()
}

// decodeAs converts loosely typed wire data (map[string]any) into a typed
// record through one JSON round trip, normalising at the boundary.
func decodeAs[T any](raw any) (T, error) {
	var out T
	data, err := json.Marshal(raw)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

// parseOpValue reads a bare number or an {op,value} object. addDefault
// selects the operation for bare numbers.
func parseOpValue(raw any, addDefault bool) (int, string, bool) {
	op := "set"
	if addDefault {
		op = "add"
	}
	if value, ok := toFloat(raw); ok {
		return int(value), op, true
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return 0, "", false
	}
	value, ok := toFloat(obj["value"])
	if !ok {
		return 0, "", false
	}
	if explicit, ok := obj["op"].(string); ok && (explicit == "add" || explicit == "set") {
		op = explicit
	}
	return int(value), op, true
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func parsePosition(raw any) (int, int, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return 0, 0, false
	}
	x, okX := toFloat(obj["x"])
	y, okY := toFloat(obj["y"])
	if !okX || !okY {
		return 0, 0, false
	}
	return int(x), int(y), true
}

func parseTileKey(key string) (int, int, bool) {
	xs, ys, ok := strings.Cut(key, ",")
	if !ok {
		return 0, 0, false
	}
	x, errX := strconv.Atoi(strings.TrimSpace(xs))
	y, errY := strconv.Atoi(strings.TrimSpace(ys))
	if errX != nil || errY != nil {
		return 0, 0, false
	}
	return x, y, true
}
