// Package state owns the authoritative per-game mutable state and the
// modifier that is the single permitted mutation path into it.
package state

import (
	"time"

	"github.com/ravenmoor/deepspire/internal/game/choice"
	"github.com/ravenmoor/deepspire/internal/game/entity"
	"github.com/ravenmoor/deepspire/internal/game/quest"
	"github.com/ravenmoor/deepspire/internal/game/world"
)

// SpawnAuditLimit caps the spawn audit ring buffer.
const SpawnAuditLimit = 200

// GenerationMetrics accumulates bookkeeping about LLM-backed generation.
// SpawnAudit is a ring of the most recent guardrail adjustments.
type GenerationMetrics struct {
	MonstersRequested int      `json:"monsters_requested,omitempty"`
	MonstersGenerated int      `json:"monsters_generated,omitempty"`
	MonstersFailed    int      `json:"monsters_failed,omitempty"`
	SpawnAudit        []string `json:"spawn_audit,omitempty"`
}

// CombatSnapshot freezes the player's numbers at the start of an exchange so
// responses can report deltas.
type CombatSnapshot struct {
	PlayerHP   int       `json:"player_hp"`
	PlayerMP   int       `json:"player_mp"`
	MonsterID  string    `json:"monster_id,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// State is the full authoritative state of one game session. All mutation
// goes through the Modifier while the per-game lock is held.
type State struct {
	ID                     string             `json:"id"`
	UserID                 string             `json:"user_id"`
	Player                 entity.Character   `json:"player"`
	CurrentMap             *world.GameMap     `json:"current_map"`
	Monsters               []entity.Monster   `json:"monsters"`
	Quests                 []quest.Quest      `json:"quests"`
	TurnCount              int                `json:"turn_count"`
	GameTime               int                `json:"game_time"`
	LastNarrative          string             `json:"last_narrative,omitempty"`
	IsGameOver             bool               `json:"is_game_over"`
	GameOverReason         string             `json:"game_over_reason,omitempty"`
	PendingEvents          []string           `json:"pending_events,omitempty"`
	PendingMapTransition   string             `json:"pending_map_transition,omitempty"`
	PendingChoiceContext   *choice.Context    `json:"pending_choice_context,omitempty"`
	PendingQuestCompletion *quest.Quest       `json:"pending_quest_completion,omitempty"`
	PendingEffects         []string           `json:"pending_effects,omitempty"`
	CombatSnapshot         *CombatSnapshot    `json:"combat_snapshot,omitempty"`
	GenerationMetrics      GenerationMetrics  `json:"generation_metrics"`
	CreatedAt              time.Time          `json:"created_at"`
	LastSaved              time.Time          `json:"last_saved,omitempty"`
}

// ActiveQuest returns the single active quest, if any.
func (s *State) ActiveQuest() *quest.Quest {
	for i := range s.Quests {
		if s.Quests[i].IsActive {
			return &s.Quests[i]
		}
	}
	return nil
}

// FindQuest locates a quest by id.
func (s *State) FindQuest(id string) *quest.Quest {
	for i := range s.Quests {
		if s.Quests[i].ID == id {
			return &s.Quests[i]
		}
	}
	return nil
}

// ActivateQuest marks the named quest active and deactivates every other,
// preserving the single-active-quest invariant.
func (s *State) ActivateQuest(id string) {
	for i := range s.Quests {
		s.Quests[i].IsActive = s.Quests[i].ID == id
	}
}

// FindMonster locates a live monster by id.
func (s *State) FindMonster(id string) *entity.Monster {
	for i := range s.Monsters {
		if s.Monsters[i].ID == id {
			return &s.Monsters[i]
		}
	}
	return nil
}

// FindQuestMonster locates a live monster by its authored quest objective id.
func (s *State) FindQuestMonster(questMonsterID string) *entity.Monster {
	for i := range s.Monsters {
		if s.Monsters[i].QuestMonsterID == questMonsterID {
			return &s.Monsters[i]
		}
	}
	return nil
}

// RemoveMonster drops a monster from the list and clears its tile
// back-reference. Returns false when the id is unknown.
func (s *State) RemoveMonster(id string) bool {
	for i := range s.Monsters {
		if s.Monsters[i].ID != id {
			continue
		}
		if s.CurrentMap != nil {
			if t, ok := s.CurrentMap.TileAt(s.Monsters[i].Position.X, s.Monsters[i].Position.Y); ok && t.CharacterID == id {
				t.CharacterID = ""
			}
		}
		s.Monsters = append(s.Monsters[:i], s.Monsters[i+1:]...)
		return true
	}
	return false
}

// MonstersAdjacentTo returns the live monsters within one tile of (x,y).
func (s *State) MonstersAdjacentTo(x, y int) []*entity.Monster {
	var out []*entity.Monster
	for i := range s.Monsters {
		m := &s.Monsters[i]
		if !m.Alive() {
			continue
		}
		dx, dy := m.Position.X-x, m.Position.Y-y
		if dx >= -1 && dx <= 1 && dy >= -1 && dy <= 1 && !(dx == 0 && dy == 0) {
			out = append(out, m)
		}
	}
	return out
}

// RebuildTileRefs discards every persisted tile character reference and
// re-asserts them from the player and the live monster list. Invoked after
// load; the persisted values are never trusted.
func (s *State) RebuildTileRefs() {
	if s.CurrentMap == nil {
		return
	}
	s.CurrentMap.ClearCharacterRefs()
	if t, ok := s.CurrentMap.TileAt(s.Player.Position.X, s.Player.Position.Y); ok {
		t.CharacterID = s.Player.ID
	}
	for i := range s.Monsters {
		m := &s.Monsters[i]
		if !m.Alive() {
			continue
		}
		if t, ok := s.CurrentMap.TileAt(m.Position.X, m.Position.Y); ok {
			t.CharacterID = m.ID
		}
	}
}

// AppendSpawnAudit records one guardrail adjustment in the audit ring.
func (s *State) AppendSpawnAudit(entry string) {
	s.GenerationMetrics.SpawnAudit = append(s.GenerationMetrics.SpawnAudit, entry)
	if overflow := len(s.GenerationMetrics.SpawnAudit) - SpawnAuditLimit; overflow > 0 {
		s.GenerationMetrics.SpawnAudit = s.GenerationMetrics.SpawnAudit[overflow:]
	}
}

// AppendPendingEvent queues a narrative event for the next response.
func (s *State) AppendPendingEvent(event string) {
	s.PendingEvents = append(s.PendingEvents, event)
}

// DrainPendingEvents returns and clears the queued events.
func (s *State) DrainPendingEvents() []string {
	events := s.PendingEvents
	s.PendingEvents = nil
	return events
}

// SetGameOver marks the game lost with a reason. The first reason wins.
func (s *State) SetGameOver(reason string) {
	if s.IsGameOver {
		return
	}
	s.IsGameOver = true
	s.GameOverReason = reason
}
