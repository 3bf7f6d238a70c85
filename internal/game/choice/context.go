// Package choice implements interactive event choices: authored or
// LLM-generated prompts whose options carry typed consequences.
package choice

import (
	"sync"
	"time"
)

// DefaultTTL bounds how long an unresolved choice context stays live.
const DefaultTTL = 10 * time.Minute

// Event types that produce choice contexts.
const (
	EventQuestCompletion = "quest_completion"
	EventStory           = "story"
	EventTreasure        = "treasure"
	EventMystery         = "mystery"
)

// Choice is one selectable option inside a context.
type Choice struct {
	ID           string         `json:"id"`
	Text         string         `json:"text"`
	Description  string         `json:"description,omitempty"`
	Consequences map[string]any `json:"consequences,omitempty"`
	Requirements map[string]any `json:"requirements,omitempty"`
	IsAvailable  bool           `json:"is_available"`
}

// Context is a pending interactive prompt. It lives in the registry and on
// the game state until resolved or expired.
type Context struct {
	ID          string         `json:"id"`
	EventType   string         `json:"event_type"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	ContextData map[string]any `json:"context_data,omitempty"`
	Choices     []Choice       `json:"choices"`
	CreatedAt   time.Time      `json:"created_at"`
}

// FindChoice locates a choice by id.
func (c *Context) FindChoice(choiceID string) (*Choice, bool) {
	for i := range c.Choices {
		if c.Choices[i].ID == choiceID {
			return &c.Choices[i], true
		}
	}
	return nil, false
}

// Expired reports whether the context outlived the TTL at the given time.
func (c *Context) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return now.Sub(c.CreatedAt) > ttl
}

// Registry tracks active contexts across games. Contexts are also mirrored
// on each game state's pending slot; ProcessChoice clears both.
type Registry struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	contexts map[string]*Context
}

// NewRegistry builds an empty registry with the given TTL (DefaultTTL when
// zero) and clock.
func NewRegistry(ttl time.Duration, now func() time.Time) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{ttl: ttl, now: now, contexts: map[string]*Context{}}
}

// Put registers a context, stamping CreatedAt when unset.
func (r *Registry) Put(ctx *Context) {
	if ctx == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx.CreatedAt.IsZero() {
		ctx.CreatedAt = r.now()
	}
	r.contexts[ctx.ID] = ctx
}

// Get returns a live context by id. Expired contexts are removed and not
// returned.
func (r *Registry) Get(id string) (*Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctx, ok := r.contexts[id]
	if !ok {
		return nil, false
	}
	if ctx.Expired(r.now(), r.ttl) {
		delete(r.contexts, id)
		return nil, false
	}
	return ctx, true
}

// Remove drops a context after resolution.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contexts, id)
}

// Sweep drops every expired context and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	removed := 0
	for id, ctx := range r.contexts {
		if ctx.Expired(now, r.ttl) {
			delete(r.contexts, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of live contexts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contexts)
}
