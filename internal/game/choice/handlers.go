package choice

import (
	"fmt"
)

// StateUpdates groups modifier-ready update maps. The engine feeds each
// non-nil block to the state modifier.
type StateUpdates struct {
	PlayerUpdates map[string]any `json:"player_updates,omitempty"`
	MapUpdates    map[string]any `json:"map_updates,omitempty"`
	QuestUpdates  map[string]any `json:"quest_updates,omitempty"`
}

// Empty reports whether no update block is present.
func (u *StateUpdates) Empty() bool {
	return u == nil || (len(u.PlayerUpdates) == 0 && len(u.MapUpdates) == 0 && len(u.QuestUpdates) == 0)
}

// MapTransition asks the engine to regenerate the dungeon floor.
type MapTransition struct {
	ShouldTransition bool `json:"should_transition"`
	TargetDepth      int  `json:"target_depth,omitempty"`
}

// Result is the typed outcome of resolving one choice.
type Result struct {
	Success       bool             `json:"success"`
	Message       string           `json:"message,omitempty"`
	Events        []string         `json:"events,omitempty"`
	StateUpdates  *StateUpdates    `json:"state_updates,omitempty"`
	NewItems      []map[string]any `json:"new_items,omitempty"`
	MapTransition *MapTransition   `json:"map_transition,omitempty"`
	NewQuestData  map[string]any   `json:"new_quest_data,omitempty"`
}

// Handler resolves one choice inside a context of its event type.
type Handler func(ctx *Context, c *Choice) (Result, error)

// Resolver dispatches choices to per-event-type handlers.
type Resolver struct {
	handlers map[string]Handler
}

// NewResolver builds a resolver with the default handlers registered.
func NewResolver() *Resolver {
	r := &Resolver{handlers: map[string]Handler{}}
	r.Register(EventQuestCompletion, questCompletionHandler)
	r.Register(EventStory, consequenceHandler)
	r.Register(EventTreasure, treasureHandler)
	r.Register(EventMystery, consequenceHandler)
	return r
}

// Register installs or replaces the handler for an event type.
func (r *Resolver) Register(eventType string, h Handler) {
	r.handlers[eventType] = h
}

// Resolve locates the choice, checks availability, and dispatches to the
// event type's handler. Unknown event types fall back to the generic
// consequence handler.
func (r *Resolver) Resolve(ctx *Context, choiceID string) (Result, error) {
	c, ok := ctx.FindChoice(choiceID)
	if !ok {
		return Result{}, fmt.Errorf("choice %q not found in context %s", choiceID, ctx.ID)
	}
	if !c.IsAvailable {
		return Result{Message: "这个选项当前不可用"}, nil
	}
	h, ok := r.handlers[ctx.EventType]
	if !ok {
		h = consequenceHandler
	}
	return h(ctx, c)
}

// consequenceHandler reads the typed consequence keys every choice may
// carry: message, events, the three update blocks, new_items,
// map_transition, and new_quest_data.
func consequenceHandler(_ *Context, c *Choice) (Result, error) {
	result := Result{Success: true}
	cons := c.Consequences
	if cons == nil {
		result.Message = c.Text
		return result, nil
	}
	if message, ok := cons["message"].(string); ok {
		result.Message = message
	} else {
		result.Message = c.Text
	}
	result.Events = stringSlice(cons["events"])
	updates := &StateUpdates{
		PlayerUpdates: mapValue(cons["player_updates"]),
		MapUpdates:    mapValue(cons["map_updates"]),
		QuestUpdates:  mapValue(cons["quest_updates"]),
	}
	if !updates.Empty() {
		result.StateUpdates = updates
	}
	for _, raw := range anySlice(cons["new_items"]) {
		if item := mapValue(raw); item != nil {
			result.NewItems = append(result.NewItems, item)
		}
	}
	if transition := mapValue(cons["map_transition"]); transition != nil {
		should, _ := transition["should_transition"].(bool)
		depth := 0
		if f, ok := transition["target_depth"].(float64); ok {
			depth = int(f)
		} else if n, ok := transition["target_depth"].(int); ok {
			depth = n
		}
		result.MapTransition = &MapTransition{ShouldTransition: should, TargetDepth: depth}
	}
	if questData := mapValue(cons["new_quest_data"]); questData != nil {
		result.NewQuestData = questData
	}
	return result, nil
}

// questCompletionHandler resolves the end-of-quest prompt. The follow-up
// quest comes from the choice's consequences or, failing that, the context
// data the generator stashed when the prompt was created.
func questCompletionHandler(ctx *Context, c *Choice) (Result, error) {
	result, err := consequenceHandler(ctx, c)
	if err != nil {
		return Result{}, err
	}
	if result.NewQuestData == nil {
		if next := mapValue(ctx.ContextData["next_quest"]); next != nil {
			result.NewQuestData = next
		}
	}
	if result.Message == "" {
		result.Message = "任务完成, 新的冒险开始了"
	}
	return result, nil
}

// treasureHandler falls back to the treasure stashed on the context when the
// choice itself names no items.
func treasureHandler(ctx *Context, c *Choice) (Result, error) {
	result, err := consequenceHandler(ctx, c)
	if err != nil {
		return Result{}, err
	}
	if len(result.NewItems) == 0 {
		for _, raw := range anySlice(ctx.ContextData["treasure_items"]) {
			if item := mapValue(raw); item != nil {
				result.NewItems = append(result.NewItems, item)
			}
		}
	}
	return result, nil
}

func mapValue(raw any) map[string]any {
	m, _ := raw.(map[string]any)
	return m
}

func anySlice(raw any) []any {
	s, _ := raw.([]any)
	return s
}

func stringSlice(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
