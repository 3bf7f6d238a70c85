package server

import (
	"net/http"

	"github.com/ravenmoor/deepspire/internal/game/engine"
	platformerrors "github.com/ravenmoor/deepspire/internal/platform/errors"
	"github.com/ravenmoor/deepspire/internal/platform/requestctx"
	"github.com/ravenmoor/deepspire/internal/server/httpx"
)

func callerID(r *http.Request) string {
	return requestctx.UserIDFromContext(r.Context())
}

// writeEngineResponse picks the HTTP status from the engine's envelope: the
// envelope itself is always the body, success or not.
func writeEngineResponse(w http.ResponseWriter, resp engine.Response) {
	status := http.StatusOK
	if !resp.Success && resp.ErrorCode != "" {
		status = resp.ErrorCode.HTTPStatus()
	}
	httpx.WriteJSON(w, status, resp)
}

type newGameRequest struct {
	PlayerName     string `json:"player_name"`
	CharacterClass string `json:"character_class"`
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	result, err := s.engine.NewGame(r.Context(), callerID(r), req.PlayerName, req.CharacterClass)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, result)
}

func (s *Server) handleLoadGame(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.LoadGame(r.Context(), callerID(r), r.PathValue("save_id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.GetState(r.Context(), callerID(r), r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (s *Server) handlePendingChoice(w http.ResponseWriter, r *http.Request) {
	pending, err := s.engine.PendingChoice(r.Context(), callerID(r), r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"pending_choice": pending})
}

type actionRequest struct {
	GameID string         `json:"game_id"`
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if req.GameID == "" || req.Action == "" {
		httpx.WriteError(w, platformerrors.New(platformerrors.CodeInvalidArgument, "game_id and action are required"))
		return
	}
	resp := s.engine.ProcessPlayerAction(r.Context(), callerID(r), req.GameID, req.Action, req.Params)
	writeEngineResponse(w, resp)
}

type eventChoiceRequest struct {
	GameID    string `json:"game_id"`
	ContextID string `json:"context_id"`
	ChoiceID  string `json:"choice_id"`
}

func (s *Server) handleEventChoice(w http.ResponseWriter, r *http.Request) {
	var req eventChoiceRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if req.GameID == "" || req.ContextID == "" || req.ChoiceID == "" {
		httpx.WriteError(w, platformerrors.New(platformerrors.CodeInvalidArgument, "game_id, context_id and choice_id are required"))
		return
	}
	resp := s.engine.ProcessChoice(r.Context(), callerID(r), req.GameID, req.ContextID, req.ChoiceID)
	writeEngineResponse(w, resp)
}

type syncStateRequest struct {
	GameID string `json:"game_id"`
	engine.SyncRequest
}

func (s *Server) handleSyncState(w http.ResponseWriter, r *http.Request) {
	var req syncStateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if req.GameID == "" {
		httpx.WriteError(w, platformerrors.New(platformerrors.CodeInvalidArgument, "game_id is required"))
		return
	}
	result, err := s.engine.SyncState(r.Context(), callerID(r), req.GameID, req.SyncRequest)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleSaveGame(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SaveGame(r.Context(), callerID(r), r.PathValue("id")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

type gameRequest struct {
	GameID string `json:"game_id"`
}

func (s *Server) handleTriggerTrap(w http.ResponseWriter, r *http.Request) {
	var req gameRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if req.GameID == "" {
		httpx.WriteError(w, platformerrors.New(platformerrors.CodeInvalidArgument, "game_id is required"))
		return
	}
	writeEngineResponse(w, s.engine.TriggerTrap(r.Context(), callerID(r), req.GameID))
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req gameRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if req.GameID == "" {
		httpx.WriteError(w, platformerrors.New(platformerrors.CodeInvalidArgument, "game_id is required"))
		return
	}
	writeEngineResponse(w, s.engine.ExecuteTransition(r.Context(), callerID(r), req.GameID))
}

func (s *Server) handleListSaves(w http.ResponseWriter, r *http.Request) {
	saves, err := s.engine.ListSaves(callerID(r))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"saves": saves})
}
