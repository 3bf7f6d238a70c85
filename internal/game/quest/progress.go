package quest

import (
	"errors"
	"fmt"
)

// EventType names a progress-bearing game event.
type EventType string

const (
	EventCombatVictory     EventType = "COMBAT_VICTORY"
	EventExploration       EventType = "EXPLORATION"
	EventStory             EventType = "STORY_EVENT"
	EventTreasureFound     EventType = "TREASURE_FOUND"
	EventMapTransition     EventType = "MAP_TRANSITION"
	EventQuestEventTrigger EventType = "QUEST_EVENT_TRIGGER"
)

// ProgressEvent is one occurrence fed into the progress manager. Value
// carries an authored contribution (quest monster / quest event progress
// values); zero means "use the configured weight".
type ProgressEvent struct {
	Type     EventType
	QuestID  string
	Value    float64
	Metadata map[string]any
}

// Calculator overrides the weighted increment for an event type.
type Calculator func(ProgressEvent) float64

// Handler runs after an increment lands; returns narrative messages.
type Handler func(q *Quest, ev ProgressEvent, increment float64) []string

// ManagerConfig tunes progress accrual.
type ManagerConfig struct {
	Weights             map[EventType]float64
	MaxSingleIncrement  float64
	CompletionThreshold float64
}

// DefaultManagerConfig returns the standard weights.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Weights: map[EventType]float64{
			EventCombatVictory:     5,
			EventExploration:       2,
			EventStory:             8,
			EventTreasureFound:     4,
			EventMapTransition:     10,
			EventQuestEventTrigger: 10,
		},
		MaxSingleIncrement:  40,
		CompletionThreshold: 100,
	}
}

// ErrNoApply indicates ProcessEvent was called without an applier.
var ErrNoApply = errors.New("progress applier is required")

// Manager accrues quest progress from typed events, gates completion, and
// runs registered handlers. Mutation of the quest's progress goes through
// the caller-supplied applier so every change flows through the state
// modifier.
type Manager struct {
	cfg         ManagerConfig
	calculators map[EventType]Calculator
	handlers    []Handler
}

// NewManager builds a manager with the given config; zero-valued fields
// fall back to defaults.
func NewManager(cfg ManagerConfig) *Manager {
	defaults := DefaultManagerConfig()
	if cfg.Weights == nil {
		cfg.Weights = defaults.Weights
	}
	if cfg.MaxSingleIncrement <= 0 {
		cfg.MaxSingleIncrement = defaults.MaxSingleIncrement
	}
	if cfg.CompletionThreshold <= 0 {
		cfg.CompletionThreshold = defaults.CompletionThreshold
	}
	return &Manager{cfg: cfg, calculators: map[EventType]Calculator{}}
}

// RegisterCalculator installs a custom increment calculator for one event
// type.
func (m *Manager) RegisterCalculator(eventType EventType, calc Calculator) {
	m.calculators[eventType] = calc
}

// AddHandler appends a post-increment handler. Handlers run in registration
// order.
func (m *Manager) AddHandler(h Handler) {
	m.handlers = append(m.handlers, h)
}

// ProgressResult reports one processed event.
type ProgressResult struct {
	Increment   float64  `json:"increment"`
	NewProgress float64  `json:"new_progress"`
	Completed   bool     `json:"completed"`
	Messages    []string `json:"messages,omitempty"`
}

// ProcessEvent computes the event's increment, applies the clamped new
// progress through apply, gates completion (marking every objective done
// the first time the threshold is crossed), then runs handlers in order.
func (m *Manager) ProcessEvent(q *Quest, ev ProgressEvent, apply func(progress float64) error) (ProgressResult, error) {
	if q == nil {
		return ProgressResult{}, errors.New("quest is required")
	}
	if apply == nil {
		return ProgressResult{}, ErrNoApply
	}

	increment := ev.Value
	if calc, ok := m.calculators[ev.Type]; ok {
		increment = calc(ev)
	} else if increment == 0 {
		increment = m.cfg.Weights[ev.Type]
	}
	if increment > m.cfg.MaxSingleIncrement {
		increment = m.cfg.MaxSingleIncrement
	}
	if increment < 0 {
		increment = 0
	}

	wasCompleted := q.IsCompleted
	target := ClampProgress(q.ProgressPercentage + increment)
	if err := apply(target); err != nil {
		return ProgressResult{}, err
	}

	result := ProgressResult{Increment: increment, NewProgress: q.ProgressPercentage}
	if q.ProgressPercentage >= m.cfg.CompletionThreshold && !wasCompleted {
		q.MarkObjectivesComplete()
		result.Completed = true
		result.Messages = append(result.Messages, fmt.Sprintf("任务目标已全部达成: %s", q.Title))
	}
	for _, h := range m.handlers {
		result.Messages = append(result.Messages, h(q, ev, increment)...)
	}
	return result, nil
}

// MilestoneHandler announces quarter milestones as progress crosses them.
func MilestoneHandler() Handler {
	milestones := []float64{25, 50, 75}
	return func(q *Quest, _ ProgressEvent, increment float64) []string {
		var messages []string
		before := q.ProgressPercentage - increment
		for _, mark := range milestones {
			if before < mark && q.ProgressPercentage >= mark {
				messages = append(messages, fmt.Sprintf("任务进度达到%.0f%%: %s", mark, q.Title))
			}
		}
		return messages
	}
}

// StreakHandler tracks consecutive combat victories and celebrates every
// third one.
func StreakHandler() Handler {
	streak := 0
	return func(_ *Quest, ev ProgressEvent, _ float64) []string {
		if ev.Type != EventCombatVictory {
			streak = 0
			return nil
		}
		streak++
		if streak%3 == 0 {
			return []string{fmt.Sprintf("连续击败%d个敌人!", streak)}
		}
		return nil
	}
}
