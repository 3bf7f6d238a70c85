// Package server exposes the game engine over a JSON HTTP API.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ravenmoor/deepspire/internal/game/engine"
	"github.com/ravenmoor/deepspire/internal/platform/timeouts"
)

// Config wires the HTTP server.
type Config struct {
	Addr   string
	Engine *engine.Engine
	// DebugMode substitutes the anonymous user when no X-User-ID header is
	// present instead of rejecting the request.
	DebugMode bool
}

// Server hosts the HTTP action surface.
type Server struct {
	engine *engine.Engine
	debug  bool
	http   *http.Server
}

// New builds a configured server. The engine is required.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("server requires an engine")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	s := &Server{engine: cfg.Engine, debug: cfg.DebugMode}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /new-game", s.handleNewGame)
	mux.HandleFunc("POST /load/{save_id}", s.handleLoadGame)
	mux.HandleFunc("GET /game/{id}", s.handleGetState)
	mux.HandleFunc("GET /game/{id}/pending-choice", s.handlePendingChoice)
	mux.HandleFunc("POST /action", s.handleAction)
	mux.HandleFunc("POST /event-choice", s.handleEventChoice)
	mux.HandleFunc("POST /sync-state", s.handleSyncState)
	mux.HandleFunc("POST /save/{id}", s.handleSaveGame)
	mux.HandleFunc("POST /trap/trigger", s.handleTriggerTrap)
	mux.HandleFunc("POST /transition", s.handleTransition)
	mux.HandleFunc("GET /saves", s.handleListSaves)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	return s, nil
}

// Serve starts the HTTP server and blocks until it stops.
func (s *Server) Serve() error {
	log.Printf("server listening addr=%s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"status":"ok"}`)
}
