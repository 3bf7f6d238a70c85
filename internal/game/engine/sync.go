package engine

import (
	"context"

	"github.com/ravenmoor/deepspire/internal/game/entity"
	"github.com/ravenmoor/deepspire/internal/game/quest"
	"github.com/ravenmoor/deepspire/internal/game/world"
	platformerrors "github.com/ravenmoor/deepspire/internal/platform/errors"
)

// SyncRequest carries the client-computed state the backend accepts: the
// player's position after local movement and the tiles the client has
// revealed. Everything else stays backend-authoritative.
type SyncRequest struct {
	PlayerPosition *entity.Position `json:"player_position,omitempty"`
	ExploredTiles  []string         `json:"explored_tiles,omitempty"`
}

// SyncResult returns the authoritative fields after a merge, plus any quest
// progress adjustments the compensator made.
type SyncResult struct {
	PlayerPosition entity.Position    `json:"player_position"`
	QuestProgress  map[string]float64 `json:"quest_progress"`
	Experience     int                `json:"experience"`
	Level          int                `json:"level"`
	Inventory      []entity.Item      `json:"inventory"`
	TurnCount      int                `json:"turn_count"`
	Adjustments    []quest.Adjustment `json:"adjustments,omitempty"`
	Warnings       []string           `json:"warnings,omitempty"`
}

// SyncState merges front-end computed fields into the session and returns
// the backend-authoritative view. Quest progress, experience, level and
// inventory never come from the client; the active quest is rebalanced so
// its remaining authored progress can still reach completion.
func (e *Engine) SyncState(ctx context.Context, userID, gameID string, req SyncRequest) (SyncResult, error) {
	release, err := e.locks.Acquire(ctx, userID, gameID)
	if err != nil {
		return SyncResult{}, err
	}
	defer release()

	sess, err := e.session(userID, gameID)
	if err != nil {
		return SyncResult{}, err
	}
	st := sess.State
	sess.touch(e.now())

	if st.IsGameOver {
		return SyncResult{}, platformerrors.New(platformerrors.CodeGameOver, st.GameOverReason)
	}

	result := SyncResult{QuestProgress: map[string]float64{}}

	if req.PlayerPosition != nil {
		mod := e.modifier.SetPlayerPosition(st, req.PlayerPosition.X, req.PlayerPosition.Y, "sync")
		if mod.Success {
			world.RecomputeVisibility(st.CurrentMap, req.PlayerPosition.X, req.PlayerPosition.Y)
		} else {
			result.Warnings = append(result.Warnings, "客户端位置无效, 已保留服务端位置")
		}
	}
	for _, key := range req.ExploredTiles {
		if tile, ok := st.CurrentMap.Tiles[key]; ok {
			tile.IsExplored = true
		}
	}

	if active := st.ActiveQuest(); active != nil && !active.IsCompleted {
		result.Adjustments = quest.Compensate(active, transitionProgressValue, e.cfg.MaxFloors)
	}
	for i := range st.Quests {
		result.QuestProgress[st.Quests[i].ID] = st.Quests[i].ProgressPercentage
	}

	result.PlayerPosition = st.Player.Position
	result.Experience = st.Player.Stats.Experience
	result.Level = st.Player.Stats.Level
	result.Inventory = st.Player.Inventory
	result.TurnCount = st.TurnCount
	sess.markDirty()
	return result, nil
}
