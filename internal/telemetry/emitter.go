// Package telemetry records typed game events to a durable sink. Emission is
// fire-and-forget: a failed write is logged, never surfaced to the player.
package telemetry

import (
	"context"
	"log"
	"time"
)

// Event kinds recorded by the game server.
const (
	KindSessionStarted  = "session_started"
	KindActionProcessed = "action_processed"
	KindLLMCall         = "llm_call"
	KindSaveWritten     = "save_written"
	KindSpawnAdjusted   = "spawn_adjusted"
)

// Event is one recorded game event. Payload is free-form detail serialised
// as JSON by the sink.
type Event struct {
	Kind      string
	UserID    string
	GameID    string
	TraceID   string
	Payload   map[string]any
	Timestamp time.Time
}

// Sink persists events. Implementations must be safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, evt Event) error
	Close() error
}

// Emitter stamps and records events. A nil emitter or nil sink is a no-op,
// so callers never guard emission sites.
type Emitter struct {
	sink Sink
	now  func() time.Time
}

// NewEmitter builds an emitter over the sink. now defaults to time.Now.
func NewEmitter(sink Sink, now func() time.Time) *Emitter {
	if now == nil {
		now = time.Now
	}
	return &Emitter{sink: sink, now: now}
}

// Emit records one event. Errors are logged, not returned.
func (e *Emitter) Emit(ctx context.Context, evt Event) {
	if e == nil || e.sink == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = e.now().UTC()
	}
	if err := e.sink.Append(ctx, evt); err != nil {
		log.Printf("telemetry append failed kind=%s err=%v", evt.Kind, err)
	}
}

// Close releases the sink.
func (e *Emitter) Close() error {
	if e == nil || e.sink == nil {
		return nil
	}
	return e.sink.Close()
}
