package engine

import (
	"context"
	"fmt"

	"github.com/ravenmoor/deepspire/internal/game/quest"
	"github.com/ravenmoor/deepspire/internal/game/trap"
	"github.com/ravenmoor/deepspire/internal/game/world"
	platformerrors "github.com/ravenmoor/deepspire/internal/platform/errors"
	"github.com/ravenmoor/deepspire/internal/telemetry"
)

// ExecuteTransition regenerates the floor the pending stairs point at.
// Stepping on stairs only marks the transition; the client confirms it with
// this call.
func (e *Engine) ExecuteTransition(ctx context.Context, userID, gameID string) Response {
	const action = "transition"
	traceID := e.cfg.NewID()

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

	if st.IsGameOver {
		return failure(action, traceID, platformerrors.New(platformerrors.CodeGameOver, st.GameOverReason))
	}
	if st.PendingMapTransition == "" {
		return failure(action, traceID, platformerrors.New(platformerrors.CodeNoPendingTransit, "no pending map transition"))
	}

	depth := st.CurrentMap.Depth
	arrivedFrom := world.TerrainStairsUp
	switch world.Terrain(st.PendingMapTransition) {
	case world.TerrainStairsDown:
		depth++
		if depth > e.cfg.MaxFloors {
			depth = e.cfg.MaxFloors
		}
	case world.TerrainStairsUp:
		depth--
		if depth < 1 {
			depth = 1
		}
		arrivedFrom = world.TerrainStairsDown
	default:
		return failure(action, traceID, platformerrors.New(platformerrors.CodeInternal, "unrecognised pending transition"))
	}
	if depth == st.CurrentMap.Depth {
		st.PendingMapTransition = ""
		sess.markDirty()
		return failure(action, traceID, platformerrors.New(platformerrors.CodeActionFailed, "楼梯通向的地方无法前往"))
	}

	st.PendingMapTransition = ""
	if err := e.generateFloor(ctx, st, sess.Rng, depth, arrivedFrom); err != nil {
		return failure(action, traceID, err)
	}

	resp := Response{
		Success: true,
		Action:  action,
		TraceID: traceID,
		Message: fmt.Sprintf("你来到了%s", st.CurrentMap.Name),
	}
	resp.Events = append(resp.Events, fmt.Sprintf("进入地下城第%d层", depth))
	resp.Events = append(resp.Events, e.applyQuestProgress(ctx, sess, quest.ProgressEvent{Type: quest.EventMapTransition})...)
	resp.Events = append(resp.Events, st.DrainPendingEvents()...)
	resp.HasPendingChoice = st.PendingChoiceContext != nil
	sess.markDirty()

	if err := e.saveSession(sess); err != nil {
		resp.Events = append(resp.Events, "存档写入失败, 将在下次自动保存时重试")
	}
	e.emitEvent(st, telemetry.KindActionProcessed, map[string]any{"action": action, "depth": depth, "trace_id": traceID})
	return resp
}

// TriggerTrap fires the trap on the player's current tile regardless of
// detection state. The client uses it when the player deliberately sets a
// trap off.
func (e *Engine) TriggerTrap(ctx context.Context, userID, gameID string) Response {
	const action = "trigger_trap"
	traceID := e.cfg.NewID()

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

	if st.IsGameOver {
		return failure(action, traceID, platformerrors.New(platformerrors.CodeGameOver, st.GameOverReason))
	}
	tile, ok := st.CurrentMap.TileAt(st.Player.Position.X, st.Player.Position.Y)
	if !ok || !tile.ArmedTrap() {
		return failure(action, traceID, platformerrors.New(platformerrors.CodeNotFound, "这里没有可以触发的陷阱"))
	}

	result, err := trap.Trigger(sess.Rng, &st.Player, tile, st.CurrentMap)
	if err != nil {
		return failure(action, traceID, platformerrors.Wrap(platformerrors.CodeInternal, "trigger trap", err))
	}

	resp := Response{
		Success: true,
		Action:  action,
		TraceID: traceID,
		Message: fmt.Sprintf("%s被触发了", result.TrapName),
		Events:  result.Messages,
	}
	if result.Debuff != nil {
		resp.Effects = append(resp.Effects, e.effects.AddEffect(&st.Player, *result.Debuff)...)
	}
	if result.TeleportTo != nil {
		mod := e.modifier.SetPlayerPosition(st, result.TeleportTo.X, result.TeleportTo.Y, "trap")
		if mod.Success {
			world.RecomputeVisibility(st.CurrentMap, result.TeleportTo.X, result.TeleportTo.Y)
			resp.Events = append(resp.Events, "你被传送到了另一个地方")
		}
	}
	if !st.Player.Alive() {
		st.SetGameOver(fmt.Sprintf("死于%s", result.TrapName))
		resp.Events = append(resp.Events, "游戏结束: "+st.GameOverReason)
	}
	resp.Events = append(resp.Events, st.DrainPendingEvents()...)
	sess.markDirty()
	e.emitEvent(st, telemetry.KindActionProcessed, map[string]any{"action": action, "trap": result.TrapName, "trace_id": traceID})
	return resp
}
