// Package combat settles monster defeats: experience, level-ups, loot, and
// the quest progress the kill contributes.
package combat

import (
	"fmt"
	"math/rand"

	"github.com/ravenmoor/deepspire/internal/game/entity"
	"github.com/ravenmoor/deepspire/internal/game/state"
)

// Loot drop chances by monster kind.
const (
	LootChanceBase  = 0.30
	LootChanceQuest = 0.60
	LootChanceBoss  = 1.00
)

// LevelUpThresholdPerLevel scales the experience needed for the next level.
const LevelUpThresholdPerLevel = 1000

// Result reports everything a defeat produced.
type Result struct {
	MonsterID        string        `json:"monster_id"`
	MonsterName      string        `json:"monster_name"`
	ExperienceGained int           `json:"experience_gained"`
	LevelsGained     int           `json:"levels_gained,omitempty"`
	Loot             []entity.Item `json:"loot,omitempty"`
	QuestMonsterID   string        `json:"quest_monster_id,omitempty"`
	QuestProgress    float64       `json:"quest_progress,omitempty"`
	Messages         []string      `json:"messages,omitempty"`
}

// Manager settles defeats through the state modifier.
type Manager struct {
	modifier *state.Modifier
	newID    func() string
}

// NewManager builds a combat result manager.
func NewManager(modifier *state.Modifier, newID func() string) *Manager {
	return &Manager{modifier: modifier, newID: newID}
}

// ExperienceFor computes the kill award: CR times 100, doubled for bosses,
// then half again for quest monsters.
func ExperienceFor(m *entity.Monster) int {
	xp := int(m.ChallengeRating * 100)
	if m.IsBoss {
		xp *= 2
	}
	if m.QuestMonsterID != "" {
		xp = int(float64(xp) * 1.5)
	}
	return xp
}

// HandleDefeat removes the monster, awards experience through the state
// modifier (zeroed when the write fails), resolves level-ups, rolls loot
// into the player's inventory, and reports the quest progress contribution
// for the caller to feed the progress manager.
func (cm *Manager) HandleDefeat(st *state.State, monster *entity.Monster, rng *rand.Rand) Result {
	result := Result{
		MonsterID:      monster.ID,
		MonsterName:    monster.Name,
		QuestMonsterID: monster.QuestMonsterID,
	}
	result.Messages = append(result.Messages, fmt.Sprintf("击败了%s", monster.Name))

	xp := ExperienceFor(monster)
	loot := cm.rollLoot(monster, rng)
	questProgress := questContribution(st, monster)

	st.RemoveMonster(monster.ID)

	if xp > 0 {
		res := cm.modifier.ApplyPlayerUpdates(st, map[string]any{
			"stats": map[string]any{"experience": float64(xp)},
		}, "combat")
		if res.Success {
			result.ExperienceGained = xp
			result.Messages = append(result.Messages, fmt.Sprintf("获得%d点经验", xp))
		}
	}

	result.LevelsGained = cm.resolveLevelUps(st, &result)

	for _, item := range loot {
		res := cm.modifier.ApplyPlayerUpdates(st, map[string]any{
			"add_items": []any{itemAsMap(item)},
		}, "combat")
		if res.Success {
			result.Loot = append(result.Loot, item)
			result.Messages = append(result.Messages, fmt.Sprintf("拾取了%s", item.Name))
		}
	}

	result.QuestProgress = questProgress
	return result
}

// resolveLevelUps consumes experience thresholds while they are met. Each
// level grants +10 max hp, +5 max mp, +1 ac, and a full refill.
func (cm *Manager) resolveLevelUps(st *state.State, result *Result) int {
	gained := 0
	for {
		threshold := st.Player.Stats.Level * LevelUpThresholdPerLevel
		if st.Player.Stats.Experience < threshold {
			break
		}
		updates := map[string]any{"stats": map[string]any{
			"experience": map[string]any{"op": "add", "value": float64(-threshold)},
			"level":      map[string]any{"op": "add", "value": float64(1)},
			"max_hp":     map[string]any{"op": "add", "value": float64(10)},
			"max_mp":     map[string]any{"op": "add", "value": float64(5)},
			"ac":         map[string]any{"op": "add", "value": float64(1)},
		}}
		if res := cm.modifier.ApplyPlayerUpdates(st, updates, "level_up"); !res.Success {
			break
		}
		st.Player.Stats.HP = st.Player.Stats.MaxHP
		st.Player.Stats.MP = st.Player.Stats.MaxMP
		gained++
		result.Messages = append(result.Messages, fmt.Sprintf("升级了! 现在是%d级", st.Player.Stats.Level))
	}
	return gained
}

// rollLoot decides whether the monster drops an item and builds it.
func (cm *Manager) rollLoot(monster *entity.Monster, rng *rand.Rand) []entity.Item {
	chance := LootChanceBase
	switch {
	case monster.IsBoss:
		chance = LootChanceBoss
	case monster.QuestMonsterID != "":
		chance = LootChanceQuest
	}
	if rng.Float64() >= chance {
		return nil
	}
	item, err := entity.NormalizeItem(cm.buildLoot(monster, rng), cm.newID)
	if err != nil {
		return nil
	}
	return []entity.Item{item}
}

func lootRarity(monster *entity.Monster) entity.Rarity {
	switch {
	case monster.IsBoss:
		return entity.RarityEpic
	case monster.ChallengeRating >= 5:
		return entity.RarityRare
	case monster.ChallengeRating >= 2:
		return entity.RarityUncommon
	default:
		return entity.RarityCommon
	}
}

var lootTable = map[entity.Rarity][]entity.Item{
	entity.RarityCommon: {
		{Name: "治疗药水", Type: entity.ItemTypeConsumable, Value: 25, EffectPayload: map[string]any{"heal": float64(10)}},
		{Name: "法力药水", Type: entity.ItemTypeConsumable, Value: 25, EffectPayload: map[string]any{"restore_mp": float64(8)}},
	},
	entity.RarityUncommon: {
		{Name: "强效治疗药水", Type: entity.ItemTypeConsumable, Value: 60, EffectPayload: map[string]any{"heal": float64(25)}},
		{Name: "磨利的短剑", Type: entity.ItemTypeWeapon, EquipSlot: entity.SlotMainHand, Value: 80, EffectPayload: map[string]any{"passive_effects": []any{map[string]any{"name": "锋锐", "modifiers": map[string]any{"damage": float64(1)}}}}},
	},
	entity.RarityRare: {
		{Name: "秘银胸甲", Type: entity.ItemTypeArmor, EquipSlot: entity.SlotBody, Value: 200, EffectPayload: map[string]any{"passive_effects": []any{map[string]any{"name": "秘银守护", "modifiers": map[string]any{"ac": float64(2)}}}}},
		{Name: "活力护符", Type: entity.ItemTypeArmor, EquipSlot: entity.SlotAccess, Value: 180, EffectPayload: map[string]any{"passive_effects": []any{map[string]any{"name": "活力", "modifiers": map[string]any{"max_hp": float64(10)}}}}},
	},
	entity.RarityEpic: {
		{Name: "深渊之刃", Type: entity.ItemTypeWeapon, EquipSlot: entity.SlotMainHand, Value: 500, EffectPayload: map[string]any{"passive_effects": []any{map[string]any{"name": "深渊之力", "modifiers": map[string]any{"damage": float64(4)}}}}},
	},
}

// buildLoot prefers the monster's authored loot hints, falling back to the
// rarity table.
func (cm *Manager) buildLoot(monster *entity.Monster, rng *rand.Rand) entity.Item {
	rarity := lootRarity(monster)
	if hints := monster.LootHints; hints != nil {
		if name, ok := hints["name"].(string); ok && name != "" {
			item := entity.Item{Name: name, Rarity: rarity, Type: entity.ItemTypeMisc}
			if kind, ok := hints["type"].(string); ok {
				item.Type = entity.ItemType(kind)
			}
			if payload, ok := hints["effect_payload"].(map[string]any); ok {
				item.EffectPayload = payload
			}
			return item
		}
	}
	pool := lootTable[rarity]
	if len(pool) == 0 {
		pool = lootTable[entity.RarityCommon]
	}
	item := pool[rng.Intn(len(pool))]
	item.Rarity = rarity
	return item
}

// questContribution returns the authored progress value of the quest
// objective this monster fulfils, if any.
func questContribution(st *state.State, monster *entity.Monster) float64 {
	if monster.QuestMonsterID == "" {
		return 0
	}
	q := st.ActiveQuest()
	if q == nil {
		return 0
	}
	for _, qm := range q.SpecialMonsters {
		if qm.ID == monster.QuestMonsterID {
			return qm.ProgressValue
		}
	}
	return 0
}

func itemAsMap(item entity.Item) map[string]any {
	return map[string]any{
		"id":             item.ID,
		"name":           item.Name,
		"description":    item.Description,
		"type":           string(item.Type),
		"rarity":         string(item.Rarity),
		"value":          item.Value,
		"weight":         item.Weight,
		"properties":     item.Properties,
		"effect_payload": item.EffectPayload,
		"charges":        item.Charges,
		"max_charges":    item.MaxCharges,
		"cooldown_turns": item.CooldownTurns,
		"equip_slot":     string(item.EquipSlot),
	}
}
