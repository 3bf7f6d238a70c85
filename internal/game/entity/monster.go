package entity

// Behavior hints how a monster acts when the player is in range.
type Behavior string

const (
	BehaviorAggressive  Behavior = "aggressive"
	BehaviorDefensive   Behavior = "defensive"
	BehaviorTerritorial Behavior = "territorial"
	BehaviorPassive     Behavior = "passive"
)

// Monster extends Character with encounter-specific fields. QuestMonsterID
// ties an instance back to the authored quest objective it fulfills;
// IsFinalObjective marks the creature whose defeat can end the quest line.
type Monster struct {
	Character
	ChallengeRating   float64        `json:"challenge_rating"`
	Behavior          Behavior       `json:"behavior,omitempty"`
	AttackRange       int            `json:"attack_range,omitempty"`
	IsBoss            bool           `json:"is_boss,omitempty"`
	QuestMonsterID    string         `json:"quest_monster_id,omitempty"`
	SpecialStatusPack []string       `json:"special_status_pack,omitempty"`
	PhaseCount        int            `json:"phase_count,omitempty"`
	IsFinalObjective  bool           `json:"is_final_objective,omitempty"`
	BaseDamage        int            `json:"base_damage,omitempty"`
	LootHints         map[string]any `json:"loot_hints,omitempty"`
}

// NormalizeMonster fills defaults for a freshly generated monster.
func NormalizeMonster(m Monster, newID func() string) (Monster, error) {
	if m.Name == "" {
		return Monster{}, ErrCharacterNameEmpty
	}
	if m.ID == "" && newID != nil {
		m.ID = newID()
	}
	m.CreatureType = CreatureMonster
	switch m.Behavior {
	case BehaviorAggressive, BehaviorDefensive, BehaviorTerritorial, BehaviorPassive:
	default:
		m.Behavior = BehaviorAggressive
	}
	if m.AttackRange < 1 {
		m.AttackRange = 1
	}
	if m.ChallengeRating <= 0 {
		m.ChallengeRating = 0.25
	}
	if m.Stats.Level < 1 {
		m.Stats.Level = 1
	}
	if m.Stats.MaxHP < 1 {
		m.Stats.MaxHP = 10
	}
	if m.Stats.HP <= 0 || m.Stats.HP > m.Stats.MaxHP {
		m.Stats.HP = m.Stats.MaxHP
	}
	if m.Stats.AC < ACMin {
		m.Stats.AC = 10
	}
	if m.BaseDamage < 1 {
		m.BaseDamage = 4
	}
	if m.PhaseCount < 1 {
		m.PhaseCount = 1
	}
	return m, nil
}
