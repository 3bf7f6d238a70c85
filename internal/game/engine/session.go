package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ravenmoor/deepspire/internal/game/state"
	"github.com/ravenmoor/deepspire/internal/llm"
	platformerrors "github.com/ravenmoor/deepspire/internal/platform/errors"
	"github.com/ravenmoor/deepspire/internal/platform/metrics"
	"github.com/ravenmoor/deepspire/internal/storage/savefile"
)

// Session is one in-memory game. It is exclusively owned by the game lock:
// every field access after construction happens while the lock for its
// (user, game) pair is held. lastAccess is the exception, read by the
// sweeper without the game lock, so it is atomic.
type Session struct {
	State       *state.State
	ContextLog  *llm.ContextLog
	Extra       map[string]json.RawMessage
	Idempotency *state.IdempotencyWindow
	Rng         *rand.Rand

	lastAccess atomic.Int64 // unix nanos
	lastSaved  time.Time
	dirty      bool
	done       chan struct{}
}

func (s *Session) touch(now time.Time) {
	s.lastAccess.Store(now.UnixNano())
}

func (s *Session) markDirty() {
	s.dirty = true
}

// registerSession stores the session and starts its auto-save timer.
func (e *Engine) registerSession(sess *Session) {
	key := sessionKey(sess.State.UserID, sess.State.ID)
	e.sessionsMu.Lock()
	e.sessions[key] = sess
	count := len(e.sessions)
	e.sessionsMu.Unlock()
	e.metricsActiveSessions(count)
	go e.autoSaveLoop(sess)
}

// lookupSession returns the in-memory session, if any.
func (e *Engine) lookupSession(userID, gameID string) (*Session, bool) {
	e.sessionsMu.Lock()
	defer e.sessionsMu.Unlock()
	sess, ok := e.sessions[sessionKey(userID, gameID)]
	return sess, ok
}

// sessionsForUser counts the user's live in-memory games.
func (e *Engine) sessionsForUser(userID string) int {
	e.sessionsMu.Lock()
	defer e.sessionsMu.Unlock()
	count := 0
	for key := range e.sessions {
		if strings.HasPrefix(key, userID+":") {
			count++
		}
	}
	return count
}

// session returns the live session, lazily rehydrating from disk. The caller
// holds the game lock.
func (e *Engine) session(userID, gameID string) (*Session, error) {
	if sess, ok := e.lookupSession(userID, gameID); ok {
		sess.touch(e.now())
		return sess, nil
	}
	st, logs, extra, err := e.store.Load(userID, gameID)
	if err != nil {
		if errors.Is(err, savefile.ErrSaveNotFound) {
			return nil, platformerrors.New(platformerrors.CodeNotFound, "game not found")
		}
		return nil, platformerrors.Wrap(platformerrors.CodeLoadFailed, "load save", err)
	}
	clog := llm.NewContextLog(llm.DefaultTokenBudget, e.now)
	clog.Restore(logs)
	sess := &Session{
		State:       st,
		ContextLog:  clog,
		Extra:       extra,
		Idempotency: state.NewIdempotencyWindow(e.now),
		Rng:         e.newRng(),
		lastSaved:   e.now(),
		done:        make(chan struct{}),
	}
	sess.touch(e.now())
	e.registerSession(sess)
	return sess, nil
}

// saveSession writes the session through the store. Failures are logged and
// the in-memory snapshot stays live; the session remains usable.
func (e *Engine) saveSession(sess *Session) error {
	logs := sess.ContextLog.Recent(savefile.DefaultContextEntries)
	if err := e.store.Save(sess.State, logs, sess.Extra); err != nil {
		log.Printf("save failed user=%s game=%s err=%v", sess.State.UserID, sess.State.ID, err)
		return platformerrors.Wrap(platformerrors.CodeSaveFailed, "write save", err)
	}
	sess.dirty = false
	sess.lastSaved = e.now()
	e.emitEvent(sess.State, "save_written", nil)
	return nil
}

// closeSession saves (when dirty), stops the auto-save timer and drops the
// session from memory. The caller holds the game lock.
func (e *Engine) closeSession(sess *Session) {
	if sess.dirty {
		if err := e.saveSession(sess); err != nil {
			log.Printf("eviction save failed user=%s game=%s err=%v", sess.State.UserID, sess.State.ID, err)
		}
	}
	select {
	case <-sess.done:
	default:
		close(sess.done)
	}
	e.sessionsMu.Lock()
	delete(e.sessions, sessionKey(sess.State.UserID, sess.State.ID))
	count := len(e.sessions)
	e.sessionsMu.Unlock()
	e.metricsActiveSessions(count)
}

// autoSaveLoop writes the session to disk every auto-save interval while it
// stays dirty. It observes both session close and engine shutdown.
func (e *Engine) autoSaveLoop(sess *Session) {
	ticker := time.NewTicker(e.cfg.AutoSaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			userID, gameID := sess.State.UserID, sess.State.ID
			release, err := e.locks.Acquire(e.shutdownCtx, userID, gameID)
			if err != nil {
				return
			}
			if sess.dirty {
				if err := e.saveSession(sess); err != nil {
					log.Printf("auto-save failed user=%s game=%s err=%v", userID, gameID, err)
					metrics.SavesTotal.WithLabelValues("auto", "error").Inc()
				} else {
					metrics.SavesTotal.WithLabelValues("auto", "ok").Inc()
				}
			}
			release()
		case <-sess.done:
			return
		case <-e.shutdownCtx.Done():
			return
		}
	}
}

// sweepLoop evicts idle sessions and expires stale choice contexts. One
// sweeper runs per engine, at half the auto-save interval.
func (e *Engine) sweepLoop() {
	ticker := time.NewTicker(e.cfg.AutoSaveInterval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.sweepOnce()
		case <-e.shutdownCtx.Done():
			return
		}
	}
}

func (e *Engine) sweepOnce() {
	cutoff := e.now().Add(-e.cfg.SessionTimeout).UnixNano()
	e.sessionsMu.Lock()
	var idle []*Session
	for _, sess := range e.sessions {
		if sess.lastAccess.Load() < cutoff {
			idle = append(idle, sess)
		}
	}
	e.sessionsMu.Unlock()

	for _, sess := range idle {
		userID, gameID := sess.State.UserID, sess.State.ID
		release, err := e.locks.Acquire(e.shutdownCtx, userID, gameID)
		if err != nil {
			return
		}
		// re-check under the lock; the session may have been touched
		if last := sess.lastAccess.Load(); last < cutoff {
			e.closeSession(sess)
			log.Printf("session evicted user=%s game=%s idle_since=%s", userID, gameID, time.Unix(0, last).UTC().Format(time.RFC3339))
		}
		release()
	}
	if swept := e.choices.Sweep(); swept > 0 {
		log.Printf("choice contexts expired count=%d", swept)
	}
}

// Shutdown stops background loops and writes a final save for every live
// session. Safe to call once.
func (e *Engine) Shutdown(ctx context.Context) {
	e.shutdownCancel()
	e.sessionsMu.Lock()
	live := make([]*Session, 0, len(e.sessions))
	for _, sess := range e.sessions {
		live = append(live, sess)
	}
	e.sessionsMu.Unlock()

	for _, sess := range live {
		release, err := e.locks.Acquire(ctx, sess.State.UserID, sess.State.ID)
		if err != nil {
			log.Printf("shutdown save skipped user=%s game=%s err=%v", sess.State.UserID, sess.State.ID, err)
			continue
		}
		if err := e.saveSession(sess); err != nil {
			log.Printf("shutdown save failed user=%s game=%s err=%v", sess.State.UserID, sess.State.ID, err)
		}
		select {
		case <-sess.done:
		default:
			close(sess.done)
		}
		release()
	}
}
