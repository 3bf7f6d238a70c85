// Package engine is the action dispatcher and session owner: it serialises
// all mutation through per-game locks, runs the turn pipeline, coordinates
// LLM-backed content generation, and drives auto-save and eviction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/ravenmoor/deepspire/internal/game/choice"
	"github.com/ravenmoor/deepspire/internal/game/combat"
	"github.com/ravenmoor/deepspire/internal/game/effect"
	"github.com/ravenmoor/deepspire/internal/game/entity"
	"github.com/ravenmoor/deepspire/internal/game/quest"
	"github.com/ravenmoor/deepspire/internal/game/spawn"
	"github.com/ravenmoor/deepspire/internal/game/state"
	"github.com/ravenmoor/deepspire/internal/game/world"
	"github.com/ravenmoor/deepspire/internal/llm"
	"github.com/ravenmoor/deepspire/internal/llm/prompt"
	platformerrors "github.com/ravenmoor/deepspire/internal/platform/errors"
	"github.com/ravenmoor/deepspire/internal/platform/metrics"
	"github.com/ravenmoor/deepspire/internal/storage/savefile"
	"github.com/ravenmoor/deepspire/internal/telemetry"
)

// Defaults for engine configuration.
const (
	DefaultAutoSaveInterval = time.Minute
	DefaultSessionTimeout   = 30 * time.Minute
	DefaultMaxGamesPerUser  = 3
	DefaultMaxFloors        = 5
	DefaultMapWidth         = 24
	DefaultMapHeight        = 24
)

// Config wires an Engine. Store and NewID are required; Adapter may be nil,
// in which case every generation path uses its deterministic fallback.
type Config struct {
	Store   *savefile.Store
	Adapter llm.Adapter
	Prompts *prompt.Registry
	Emitter *telemetry.Emitter

	NewID  func() string
	Now    func() time.Time
	NewRng func() *rand.Rand

	AutoSaveInterval      time.Duration
	SessionTimeout        time.Duration
	MaxActiveGamesPerUser int
	MaxFloors             int
	MapWidth, MapHeight   int
}

// Engine owns the live sessions and every game subsystem.
type Engine struct {
	cfg     Config
	store   *savefile.Store
	emitter *telemetry.Emitter
	content *contentGenerator

	modifier *state.Modifier
	effects  *effect.Engine
	spawner  *spawn.Manager
	combat   *combat.Manager
	progress *quest.Manager
	resolver *choice.Resolver
	choices  *choice.Registry

	locks      *LockManager
	sessionsMu sync.Mutex
	sessions   map[string]*Session

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// New builds an engine and starts its eviction sweeper.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine requires a save store")
	}
	if cfg.NewID == nil {
		return nil, fmt.Errorf("engine requires an id generator")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewRng == nil {
		cfg.NewRng = func() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) }
	}
	if cfg.AutoSaveInterval <= 0 {
		cfg.AutoSaveInterval = DefaultAutoSaveInterval
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.MaxActiveGamesPerUser <= 0 {
		cfg.MaxActiveGamesPerUser = DefaultMaxGamesPerUser
	}
	if cfg.MaxFloors <= 0 {
		cfg.MaxFloors = DefaultMaxFloors
	}
	if cfg.MapWidth < 12 {
		cfg.MapWidth = DefaultMapWidth
	}
	if cfg.MapHeight < 12 {
		cfg.MapHeight = DefaultMapHeight
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:            cfg,
		store:          cfg.Store,
		emitter:        cfg.Emitter,
		modifier:       state.NewModifier(cfg.NewID),
		effects:        effect.NewEngine(cfg.NewID),
		resolver:       choice.NewResolver(),
		choices:        choice.NewRegistry(choice.DefaultTTL, cfg.Now),
		locks:          NewLockManager(),
		sessions:       map[string]*Session{},
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
	e.content = newContentGenerator(cfg.Adapter, cfg.Prompts, cfg.NewID)
	e.spawner = spawn.NewManager(e.content.monsterGenerator(), cfg.NewID)
	e.combat = combat.NewManager(e.modifier, cfg.NewID)
	e.progress = quest.NewManager(quest.DefaultManagerConfig())
	e.progress.AddHandler(quest.MilestoneHandler())
	e.progress.AddHandler(quest.StreakHandler())

	go e.sweepLoop()
	return e, nil
}

func (e *Engine) now() time.Time {
	return e.cfg.Now()
}

func (e *Engine) newRng() *rand.Rand {
	return e.cfg.NewRng()
}

func (e *Engine) metricsActiveSessions(count int) {
	metrics.ActiveSessions.Set(float64(count))
}

func (e *Engine) emitEvent(st *state.State, kind string, payload map[string]any) {
	if e.emitter == nil {
		return
	}
	evt := telemetry.Event{Kind: kind, Payload: payload}
	if st != nil {
		evt.UserID = st.UserID
		evt.GameID = st.ID
	}
	e.emitter.Emit(context.Background(), evt)
}

// Response is the normalised action envelope every engine operation returns.
type Response struct {
	Success                bool                 `json:"success"`
	Action                 string               `json:"action,omitempty"`
	TraceID                string               `json:"trace_id"`
	Message                string               `json:"message,omitempty"`
	Events                 []string             `json:"events,omitempty"`
	Effects                []string             `json:"effects,omitempty"`
	ErrorCode              platformerrors.Code  `json:"error_code,omitempty"`
	Retryable              bool                 `json:"retryable,omitempty"`
	LLMInteractionRequired bool                 `json:"llm_interaction_required,omitempty"`
	IdempotentReplay       bool                 `json:"idempotent_replay,omitempty"`
	PendingMapTransition   string               `json:"pending_map_transition,omitempty"`
	HasPendingChoice       bool                 `json:"has_pending_choice,omitempty"`
	CombatResult           *combat.Result       `json:"combat_result,omitempty"`
	Extra                  map[string]any       `json:"extra,omitempty"`
}

// failure builds the error envelope for a failed operation.
func failure(action, traceID string, err error) Response {
	code := platformerrors.CodeOf(err)
	if code == platformerrors.CodeUnknown {
		code = platformerrors.CodeInternal
	}
	return Response{
		Action:    action,
		TraceID:   traceID,
		Message:   err.Error(),
		ErrorCode: code,
		Retryable: code.Retryable(),
	}
}

// NewGameResult is what a freshly created game returns to the client.
type NewGameResult struct {
	GameID    string `json:"game_id"`
	Narrative string `json:"narrative"`
	TraceID   string `json:"trace_id"`
}

// NewGame creates a session: player, opening quest, first floor, initial
// encounter, and the opening narrative. The session cap is enforced here.
func (e *Engine) NewGame(ctx context.Context, userID, playerName, characterClass string) (NewGameResult, error) {
	if userID == "" || playerName == "" {
		return NewGameResult{}, platformerrors.New(platformerrors.CodeInvalidArgument, "player_name and user id are required")
	}
	if e.sessionsForUser(userID) >= e.cfg.MaxActiveGamesPerUser {
		return NewGameResult{}, platformerrors.New(platformerrors.CodeSessionLimit, "active game limit reached")
	}

	player, err := entity.NewPlayer(playerName, characterClass, e.cfg.NewID)
	if err != nil {
		return NewGameResult{}, platformerrors.Wrap(platformerrors.CodeInvalidArgument, "create player", err)
	}

	gameID := e.cfg.NewID()
	release, err := e.locks.Acquire(ctx, userID, gameID)
	if err != nil {
		return NewGameResult{}, err
	}
	defer release()

	rng := e.newRng()
	clog := llm.NewContextLog(llm.DefaultTokenBudget, e.now)

	q, err := e.content.generateQuest(ctx, player.Stats.Level, "", clog)
	if err != nil {
		return NewGameResult{}, err
	}
	q.IsActive = true

	st := &state.State{
		ID:        gameID,
		UserID:    userID,
		Player:    player,
		Quests:    []quest.Quest{q},
		CreatedAt: e.now(),
	}
	if err := e.generateFloor(ctx, st, rng, 1, world.TerrainFloor); err != nil {
		return NewGameResult{}, err
	}

	narrative := e.content.openingNarrative(ctx, playerName, characterClass, q.Title, clog)
	st.LastNarrative = narrative

	sess := &Session{
		State:       st,
		ContextLog:  clog,
		Idempotency: state.NewIdempotencyWindow(e.now),
		Rng:         rng,
		done:        make(chan struct{}),
	}
	sess.touch(e.now())
	sess.markDirty()
	e.registerSession(sess)
	if err := e.saveSession(sess); err != nil {
		return NewGameResult{}, err
	}
	e.emitEvent(st, telemetry.KindSessionStarted, map[string]any{"class": player.Class})
	return NewGameResult{GameID: gameID, Narrative: narrative, TraceID: e.cfg.NewID()}, nil
}

// generateFloor builds the floor at depth, places the player, recomputes
// visibility and rolls the floor's encounter and quest monsters. Existing
// monsters are discarded.
func (e *Engine) generateFloor(ctx context.Context, st *state.State, rng *rand.Rand, depth int, arrivedFrom world.Terrain) error {
	var questCtx *world.QuestContext
	theme := ""
	active := st.ActiveQuest()
	if active != nil {
		if len(active.MapThemes) > 0 {
			theme = active.MapThemes[(depth-1)%len(active.MapThemes)]
		}
		questCtx = &world.QuestContext{
			QuestType: active.QuestType,
			Themes:    active.MapThemes,
			Events:    active.EventsForFloor(depth),
		}
	}

	m, err := world.Generate(ctx, world.Config{
		Width:     e.cfg.MapWidth,
		Height:    e.cfg.MapHeight,
		Depth:     depth,
		MaxFloors: e.cfg.MaxFloors,
		Theme:     theme,
		Quest:     questCtx,
		NewID:     e.cfg.NewID,
		Rng:       rng,
	}, e.content.namer())
	if err != nil {
		return platformerrors.Wrap(platformerrors.CodeInternal, "generate floor", err)
	}

	st.CurrentMap = m
	st.Monsters = nil
	x, y := m.SpawnPoint(arrivedFrom)
	st.Player.Position = entity.Position{X: x, Y: y}
	if t, ok := m.TileAt(x, y); ok {
		t.CharacterID = st.Player.ID
	}
	world.RecomputeVisibility(m, x, y)

	difficulty := spawn.DifficultyForDepth(depth, st.Player.Stats.Level)
	if _, err := e.spawner.GenerateEncounter(ctx, st, rng, difficulty); err != nil {
		return platformerrors.Wrap(platformerrors.CodeInternal, "spawn encounter", err)
	}
	if active != nil {
		if _, err := e.spawner.InstantiateQuestMonsters(ctx, st, rng, active); err != nil {
			return platformerrors.Wrap(platformerrors.CodeInternal, "spawn quest monsters", err)
		}
	}
	if len(st.GenerationMetrics.SpawnAudit) > 0 {
		e.emitEvent(st, telemetry.KindSpawnAdjusted, map[string]any{"entries": len(st.GenerationMetrics.SpawnAudit)})
	}
	return nil
}

// GameView is the full state snapshot returned by reads, plus derived
// response fields.
type GameView struct {
	State            *state.State `json:"state"`
	HasPendingChoice bool         `json:"has_pending_choice"`
}

// GetState returns the full game state, lazily loading from disk.
func (e *Engine) GetState(ctx context.Context, userID, gameID string) (GameView, error) {
	release, err := e.locks.Acquire(ctx, userID, gameID)
	if err != nil {
		return GameView{}, err
	}
	defer release()
	sess, err := e.session(userID, gameID)
	if err != nil {
		return GameView{}, err
	}
	return GameView{State: sess.State, HasPendingChoice: sess.State.PendingChoiceContext != nil}, nil
}

// PendingChoice returns the unresolved choice context, if any.
func (e *Engine) PendingChoice(ctx context.Context, userID, gameID string) (*choice.Context, error) {
	release, err := e.locks.Acquire(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	defer release()
	sess, err := e.session(userID, gameID)
	if err != nil {
		return nil, err
	}
	return sess.State.PendingChoiceContext, nil
}

// SaveGame forces a save.
func (e *Engine) SaveGame(ctx context.Context, userID, gameID string) error {
	release, err := e.locks.Acquire(ctx, userID, gameID)
	if err != nil {
		return err
	}
	defer release()
	sess, err := e.session(userID, gameID)
	if err != nil {
		return err
	}
	if err := e.saveSession(sess); err != nil {
		metrics.SavesTotal.WithLabelValues("manual", "error").Inc()
		return err
	}
	metrics.SavesTotal.WithLabelValues("manual", "ok").Inc()
	return nil
}

// LoadGame rehydrates a saved game into memory and returns its state.
func (e *Engine) LoadGame(ctx context.Context, userID, gameID string) (GameView, error) {
	return e.GetState(ctx, userID, gameID)
}

// ListSaves returns the user's save metadata, most recent first.
func (e *Engine) ListSaves(userID string) ([]savefile.Meta, error) {
	return e.store.List(userID)
}

// ProcessChoice resolves a pending choice: applies its typed consequences
// through the modifier, creates follow-up quests, and performs choice-driven
// map transitions. Both the registry entry and the pending slot clear on
// success.
func (e *Engine) ProcessChoice(ctx context.Context, userID, gameID, contextID, choiceID string) Response {
	traceID := e.cfg.NewID()
	const action = "event_choice"

	release, err := e.locks.Acquire(ctx, userID, gameID)
	if err != nil {
		return failure(action, traceID, err)
	}
	defer release()
	sess, err := e.session(userID, gameID)
	if err != nil {
		return failure(action, traceID, err)
	}
	st := sess.State
	sess.touch(e.now())

	pending := st.PendingChoiceContext
	if pending == nil || pending.ID != contextID {
		return failure(action, traceID, platformerrors.New(platformerrors.CodeChoiceMismatch, "no pending choice with that id"))
	}
	if _, ok := e.choices.Get(contextID); !ok {
		st.PendingChoiceContext = nil
		sess.markDirty()
		return failure(action, traceID, platformerrors.New(platformerrors.CodeChoiceExpired, "choice context expired"))
	}

	result, err := e.resolver.Resolve(pending, choiceID)
	if err != nil {
		return failure(action, traceID, platformerrors.Wrap(platformerrors.CodeInvalidArgument, "resolve choice", err))
	}
	if !result.Success {
		return Response{Action: action, TraceID: traceID, Message: result.Message, ErrorCode: platformerrors.CodeActionFailed}
	}

	resp := Response{Success: true, Action: action, TraceID: traceID, Message: result.Message, Events: result.Events}

	if !result.StateUpdates.Empty() {
		mod := e.modifier.ApplyLLMUpdates(st, map[string]any{
			"player_updates": anyMap(result.StateUpdates.PlayerUpdates),
			"map_updates":    anyMap(result.StateUpdates.MapUpdates),
			"quest_updates":  anyMap(result.StateUpdates.QuestUpdates),
		}, "choice")
		for _, em := range mod.Errors {
			resp.Events = append(resp.Events, "部分效果未能生效: "+em)
		}
	}
	if len(result.NewItems) > 0 {
		items := make([]any, 0, len(result.NewItems))
		for _, item := range result.NewItems {
			items = append(items, item)
		}
		e.modifier.ApplyPlayerUpdates(st, map[string]any{"add_items": items}, "choice")
	}
	if result.NewQuestData != nil {
		if messages, err := e.createQuestFromChoice(st, result.NewQuestData); err != nil {
			resp.Events = append(resp.Events, "新任务创建失败: "+err.Error())
		} else {
			resp.Events = append(resp.Events, messages...)
		}
	}

	e.choices.Remove(contextID)
	st.PendingChoiceContext = nil
	st.PendingQuestCompletion = nil

	if result.MapTransition != nil && result.MapTransition.ShouldTransition {
		depth := result.MapTransition.TargetDepth
		if depth <= 0 {
			depth = st.CurrentMap.Depth + 1
		}
		if err := e.generateFloor(ctx, st, sess.Rng, depth, world.TerrainStairsUp); err != nil {
			return failure(action, traceID, err)
		}
		resp.Events = append(resp.Events, fmt.Sprintf("来到了%s", st.CurrentMap.Name))
	}

	sess.markDirty()
	e.emitEvent(st, telemetry.KindActionProcessed, map[string]any{"action": action, "choice_id": choiceID})
	return resp
}

// createQuestFromChoice normalises follow-up quest data from a resolved
// choice, appends it, and enforces the single-active-quest invariant.
func (e *Engine) createQuestFromChoice(st *state.State, data map[string]any) ([]string, error) {
	q, err := e.content.questFromData(data)
	if err != nil {
		return nil, err
	}
	st.Quests = append(st.Quests, q)
	st.ActivateQuest(q.ID)
	return []string{fmt.Sprintf("接受了新任务: %s", q.Title)}, nil
}

// applyQuestProgress routes a progress event through the Progress Manager,
// committing the new percentage via the modifier. Completion creates the
// quest-completion choice prompt.
func (e *Engine) applyQuestProgress(ctx context.Context, sess *Session, ev quest.ProgressEvent) []string {
	st := sess.State
	q := st.ActiveQuest()
	if q == nil || q.IsCompleted {
		return nil
	}
	ev.QuestID = q.ID
	result, err := e.progress.ProcessEvent(q, ev, func(progress float64) error {
		res := e.modifier.ApplyQuestUpdates(st, map[string]any{
			q.ID: map[string]any{"progress_percentage": progress},
		}, "progress")
		if !res.Success {
			return errors.New("progress update rejected")
		}
		return nil
	})
	if err != nil {
		return []string{"任务进度更新失败"}
	}
	if result.Completed {
		// Latch completion so later progress events cannot re-fire it and
		// replace a pending completion choice the client already holds.
		res := e.modifier.ApplyQuestUpdates(st, map[string]any{
			q.ID: map[string]any{"is_completed": true},
		}, "progress")
		if !res.Success {
			log.Printf("quest completion latch failed quest=%s errs=%v", q.ID, res.Errors)
		}
		st.PendingQuestCompletion = q
		e.openQuestCompletionChoice(ctx, sess, q)
	}
	return result.Messages
}

// openQuestCompletionChoice builds the end-of-quest prompt and stores it as
// the pending choice.
func (e *Engine) openQuestCompletionChoice(ctx context.Context, sess *Session, q *quest.Quest) {
	st := sess.State
	cc := e.content.questCompletionChoice(ctx, q, st.Player.Stats.Level, sess.ContextLog, e.now())
	e.choices.Put(cc)
	st.PendingChoiceContext = cc
}

func anyMap(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}
