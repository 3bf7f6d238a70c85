// Package quest defines quest lines, their authored objectives, and the
// progress accrual that drives completion.
package quest

import "errors"

// ErrQuestTitleEmpty indicates a quest without a title.
var ErrQuestTitleEmpty = errors.New("quest title is required")

// Event is an authored story beat placed on the map. ProgressValue is the
// quest percentage granted when the event triggers; LocationHint pins the
// event to a floor (0 means any floor).
type Event struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	EventType     string         `json:"event_type"`
	Description   string         `json:"description,omitempty"`
	ProgressValue float64        `json:"progress_value"`
	LocationHint  int            `json:"location_hint,omitempty"`
	IsMandatory   bool           `json:"is_mandatory,omitempty"`
	EventData     map[string]any `json:"event_data,omitempty"`
}

// Monster is an authored quest objective fulfilled by defeating the named
// creature. LocationHint pins the spawn to a floor (0 means the final floor).
type Monster struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Description      string  `json:"description,omitempty"`
	ProgressValue    float64 `json:"progress_value"`
	LocationHint     int     `json:"location_hint,omitempty"`
	IsMandatory      bool    `json:"is_mandatory,omitempty"`
	IsBoss           bool    `json:"is_boss,omitempty"`
	IsFinalObjective bool    `json:"is_final_objective,omitempty"`
	Level            int     `json:"level,omitempty"`
	StatusPack       []string `json:"status_pack,omitempty"`
}

// Quest is one quest line. CompletedObjectives parallels Objectives;
// ProgressPercentage stays in [0,100]. At most one quest per game is active.
type Quest struct {
	ID                  string         `json:"id"`
	Title               string         `json:"title"`
	Description         string         `json:"description,omitempty"`
	Objectives          []string       `json:"objectives"`
	CompletedObjectives []bool         `json:"completed_objectives"`
	ProgressPercentage  float64        `json:"progress_percentage"`
	StoryContext        string         `json:"story_context,omitempty"`
	LLMNotes            string         `json:"llm_notes,omitempty"`
	QuestType           string         `json:"quest_type,omitempty"`
	TargetFloors        []int          `json:"target_floors,omitempty"`
	MapThemes           []string       `json:"map_themes,omitempty"`
	SpecialEvents       []Event        `json:"special_events,omitempty"`
	SpecialMonsters     []Monster      `json:"special_monsters,omitempty"`
	IsActive            bool           `json:"is_active"`
	IsCompleted         bool           `json:"is_completed"`
	Rewards             map[string]any `json:"rewards,omitempty"`
	ExperienceReward    int            `json:"experience_reward,omitempty"`
}

// Normalize fills derived fields: ids, the parallel completion slice, and
// progress clamping.
func Normalize(q Quest, newID func() string) (Quest, error) {
	if q.Title == "" {
		return Quest{}, ErrQuestTitleEmpty
	}
	if q.ID == "" && newID != nil {
		q.ID = newID()
	}
	if len(q.CompletedObjectives) != len(q.Objectives) {
		completed := make([]bool, len(q.Objectives))
		copy(completed, q.CompletedObjectives)
		q.CompletedObjectives = completed
	}
	q.ProgressPercentage = ClampProgress(q.ProgressPercentage)
	for i := range q.SpecialEvents {
		if q.SpecialEvents[i].ID == "" && newID != nil {
			q.SpecialEvents[i].ID = newID()
		}
	}
	for i := range q.SpecialMonsters {
		if q.SpecialMonsters[i].ID == "" && newID != nil {
			q.SpecialMonsters[i].ID = newID()
		}
	}
	return q, nil
}

// ClampProgress forces a percentage into [0,100].
func ClampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// EventsForFloor filters authored events pinned to the given depth.
// Events without a location hint match every floor.
func (q Quest) EventsForFloor(depth int) []Event {
	var out []Event
	for _, ev := range q.SpecialEvents {
		if ev.LocationHint == 0 || ev.LocationHint == depth {
			out = append(out, ev)
		}
	}
	return out
}

// MonstersForFloor filters authored monsters pinned to the given depth.
// Monsters without a location hint spawn on the final floor.
func (q Quest) MonstersForFloor(depth, finalFloor int) []Monster {
	var out []Monster
	for _, qm := range q.SpecialMonsters {
		hint := qm.LocationHint
		if hint == 0 {
			hint = finalFloor
		}
		if hint == depth {
			out = append(out, qm)
		}
	}
	return out
}

// MarkObjectivesComplete flips every objective to done.
func (q *Quest) MarkObjectivesComplete() {
	for i := range q.CompletedObjectives {
		q.CompletedObjectives[i] = true
	}
}
