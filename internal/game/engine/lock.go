package engine

import (
	"context"
	"sync"
)

// gameLock is a fair mutex: waiters queue in arrival order and the release
// hands the lock to the head of the queue directly, so actions within one
// game are totally ordered by acquisition order.
type gameLock struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

// LockManager hands out per-game locks keyed by "user:game". Locks are never
// discarded; the map grows with the set of games touched by the process.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*gameLock
}

// NewLockManager builds an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{locks: map[string]*gameLock{}}
}

func sessionKey(userID, gameID string) string {
	return userID + ":" + gameID
}

// Acquire blocks until the game lock is held or the context ends. The
// returned release must be called exactly once on every exit path.
func (lm *LockManager) Acquire(ctx context.Context, userID, gameID string) (func(), error) {
	lm.mu.Lock()
	gl, ok := lm.locks[sessionKey(userID, gameID)]
	if !ok {
		gl = &gameLock{}
		lm.locks[sessionKey(userID, gameID)] = gl
	}
	lm.mu.Unlock()

	gl.mu.Lock()
	if !gl.held {
		gl.held = true
		gl.mu.Unlock()
		return func() { gl.release() }, nil
	}
	ticket := make(chan struct{})
	gl.waiters = append(gl.waiters, ticket)
	gl.mu.Unlock()

	select {
	case <-ticket:
		// the releaser transferred ownership to this waiter
		return func() { gl.release() }, nil
	case <-ctx.Done():
		gl.mu.Lock()
		for i, w := range gl.waiters {
			if w == ticket {
				gl.waiters = append(gl.waiters[:i], gl.waiters[i+1:]...)
				gl.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		gl.mu.Unlock()
		// the ticket was already signalled between Done and here; the lock
		// is ours and must be released
		<-ticket
		gl.release()
		return nil, ctx.Err()
	}
}

func (gl *gameLock) release() {
	gl.mu.Lock()
	if len(gl.waiters) > 0 {
		next := gl.waiters[0]
		gl.waiters = gl.waiters[1:]
		gl.mu.Unlock()
		close(next)
		return
	}
	gl.held = false
	gl.mu.Unlock()
}
