package state

import "time"

// Idempotency window bounds: replays older than the TTL or pushed out of
// the deque are treated as new requests.
const (
	IdempotencyWindowSize = 64
	IdempotencyTTL        = 10 * time.Minute
)

type idempotencyEntry struct {
	key      string
	result   any
	recorded time.Time
}

// IdempotencyWindow deduplicates mutating actions by client-supplied key
// within one game session. Not safe for concurrent use; callers hold the
// game lock.
type IdempotencyWindow struct {
	entries []idempotencyEntry
	now     func() time.Time
}

// NewIdempotencyWindow builds a window using the given clock.
func NewIdempotencyWindow(now func() time.Time) *IdempotencyWindow {
	if now == nil {
		now = time.Now
	}
	return &IdempotencyWindow{now: now}
}

// Lookup returns the stored result for a key still inside the window.
func (w *IdempotencyWindow) Lookup(key string) (any, bool) {
	if key == "" {
		return nil, false
	}
	cutoff := w.now().Add(-IdempotencyTTL)
	for i := len(w.entries) - 1; i >= 0; i-- {
		entry := w.entries[i]
		if entry.key != key {
			continue
		}
		if entry.recorded.Before(cutoff) {
			return nil, false
		}
		return entry.result, true
	}
	return nil, false
}

// Record stores the result for a key, evicting the oldest entry past the
// window size.
func (w *IdempotencyWindow) Record(key string, result any) {
	if key == "" {
		return
	}
	w.entries = append(w.entries, idempotencyEntry{key: key, result: result, recorded: w.now()})
	if overflow := len(w.entries) - IdempotencyWindowSize; overflow > 0 {
		w.entries = w.entries[overflow:]
	}
}
