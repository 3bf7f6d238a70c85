package server

import (
	"context"
	"log"
	"time"

	"github.com/ravenmoor/deepspire/internal/game/engine"
	"github.com/ravenmoor/deepspire/internal/llm"
	"github.com/ravenmoor/deepspire/internal/llm/prompt"
	entrypoint "github.com/ravenmoor/deepspire/internal/platform/cmd"
	"github.com/ravenmoor/deepspire/internal/platform/id"
	"github.com/ravenmoor/deepspire/internal/platform/timeouts"
	"github.com/ravenmoor/deepspire/internal/server"
	"github.com/ravenmoor/deepspire/internal/storage/savefile"
	"github.com/ravenmoor/deepspire/internal/telemetry"
)

// Run wires the game server from its configuration and serves until the
// context ends. A missing LLM key is not fatal: the engine falls back to
// deterministic generation.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceServer, func(ctx context.Context) error {
		return run(ctx, cfg)
	})
}

func run(ctx context.Context, cfg Config) error {
	var adapter llm.Adapter
	if key := cfg.APIKey(); key != "" {
		model := cfg.LLMModel
		if model == "" {
			model = llm.DefaultModelFor(cfg.LLMProvider)
		}
		client, err := llm.NewClient(llm.ProviderConfig{
			Provider: cfg.LLMProvider,
			APIKey:   key,
			BaseURL:  cfg.LLMBaseURL,
			Model:    model,
			UseProxy: cfg.UseProxy,
			ProxyURL: cfg.ProxyURL,
		})
		if err != nil {
			return err
		}
		adapter = llm.NewService(llm.ServiceConfig{
			Client:          client,
			Model:           model,
			MaxConcurrent:   cfg.MaxConcurrentLLM,
			Timeout:         cfg.LLMTimeout,
			MaxOutputTokens: cfg.LLMMaxOutputTokens,
			ShowDebug:       cfg.ShowLLMDebug,
		})
		log.Printf("llm adapter ready provider=%s model=%s", cfg.LLMProvider, model)
	} else {
		log.Printf("llm adapter disabled provider=%s reason=no_api_key", cfg.LLMProvider)
	}

	store, err := savefile.New(cfg.SaveRoot, savefile.DefaultContextEntries, time.Now)
	if err != nil {
		return err
	}

	var emitter *telemetry.Emitter
	if cfg.TelemetryDBPath != "" {
		sink, err := telemetry.OpenSQLite(cfg.TelemetryDBPath)
		if err != nil {
			return err
		}
		defer sink.Close()
		emitter = telemetry.NewEmitter(sink, time.Now)
	}

	prompts, err := prompt.NewRegistry()
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Config{
		Store:                 store,
		Adapter:               adapter,
		Prompts:               prompts,
		Emitter:               emitter,
		NewID:                 id.New,
		AutoSaveInterval:      cfg.AutoSaveInterval,
		SessionTimeout:        cfg.GameSessionTimeout,
		MaxActiveGamesPerUser: cfg.MaxActiveGamesPerUser,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Addr:      cfg.HTTPAddr,
		Engine:    eng,
		DebugMode: cfg.DebugMode,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("shutdown started")
	drainCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Printf("http shutdown err=%v", err)
	}
	eng.Shutdown(drainCtx)
	log.Printf("shutdown complete")
	return nil
}
