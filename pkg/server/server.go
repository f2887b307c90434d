// Package server provides the public entry point for initializing the
// OpenMaw daemon.
//
// This package exists in pkg/ (not internal/) so host applications such as
// menu bar shells, packagers, and integration tests can embed the daemon
// and compose it with their own middleware.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":4280", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openmaw-ai/openmaw/internal/api"
	"github.com/openmaw-ai/openmaw/internal/api/handlers"
	"github.com/openmaw-ai/openmaw/internal/config"
	"github.com/openmaw-ai/openmaw/internal/convo"
	"github.com/openmaw-ai/openmaw/internal/events"
	"github.com/openmaw-ai/openmaw/internal/llm"
	"github.com/openmaw-ai/openmaw/internal/matcher"
	"github.com/openmaw-ai/openmaw/internal/plugins"
	"github.com/openmaw-ai/openmaw/internal/registry"
	"github.com/openmaw-ai/openmaw/internal/runner"
	"github.com/openmaw-ai/openmaw/internal/secrets"
	"github.com/openmaw-ai/openmaw/internal/telemetry"
	"github.com/openmaw-ai/openmaw/internal/toolrun"
	"github.com/openmaw-ai/openmaw/internal/usage"
)

// Server holds the initialized OpenMaw daemon.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Loader, Matcher, and Runner expose the engine directly so CLI
	// commands and embedding hosts can bypass HTTP.
	Loader  *plugins.Loader
	Matcher *matcher.Matcher
	Runner  *runner.Runner

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown. It flushes
	// telemetry and closes the usage database.
	ShutdownFunc func(context.Context) error

	watcher *plugins.Watcher
	convos  *convo.Manager
}

// New initializes all daemon components from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the daemon with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	for _, dir := range []string{cfg.DataDir, cfg.PluginsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	bus := events.NewBus()
	store := secrets.NewFileStore(filepath.Join(cfg.DataDir, "secrets.json"))
	settings := plugins.NewSettings(cfg.DataDir, store)

	loader := plugins.NewLoader(cfg.PluginsDir, cfg.DataDir, bus)
	if err := loader.Reload(); err != nil {
		return nil, fmt.Errorf("load plugins: %w", err)
	}
	watcher, err := plugins.NewWatcher(loader)
	if err != nil {
		return nil, fmt.Errorf("watch plugins dir: %w", err)
	}

	convos := convo.NewManager()
	// A reload can remove plugins from disk; their histories go with them.
	bus.Subscribe(events.PluginsReloaded, func(events.Event) {
		convos.PruneMissing(func(id string) bool {
			_, ok := loader.Get(id)
			return ok
		})
	})

	// Without an API key the engine still runs; AI plugins and intent
	// triggers are simply inert.
	var client llm.Client
	if cfg.AI.APIKey != "" {
		client, err = llm.New(cfg.AI)
		if err != nil {
			return nil, fmt.Errorf("init AI client: %w", err)
		}
		log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("✅ AI client initialized")
	} else {
		log.Info().Msg("no AI key configured, AI plugins disabled")
	}

	var classifier matcher.IntentClassifier
	if client != nil {
		classifier = llm.NewClassifier(client)
	}
	match := matcher.New(classifier)

	tracker, err := usage.Open(filepath.Join(cfg.DataDir, "usage.db"))
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}

	run := runner.New(loader, settings, convos, client, tracker, toolrun.Deps{
		Searcher: toolrun.NewDuckDuckGoSearcher(),
	})

	regClient := registry.NewClient(cfg.Registry)
	installer := registry.NewInstaller(cfg.PluginsDir, loader)

	h := handlers.New(loader, settings, match, run, convos, regClient, installer, tracker)
	router := api.NewRouter(cfg, h)

	log.Info().Int("plugins", len(loader.Plugins())).Msg("✅ plugin engine initialized")

	return &Server{
		Handler: router,
		Loader:  loader,
		Matcher: match,
		Runner:  run,
		Port:    cfg.Port,
		ShutdownFunc: func(ctx context.Context) error {
			if err := tracker.Close(); err != nil {
				log.Warn().Err(err).Msg("closing usage db")
			}
			return shutdownTelemetry(ctx)
		},
		watcher: watcher,
		convos:  convos,
	}, nil
}

// Start launches the background loops: the plugins directory watcher and
// the conversation expiry sweep. They stop when ctx is canceled.
func (s *Server) Start(ctx context.Context) {
	go s.watcher.Run(ctx)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.convos.CleanupExpired()
			}
		}
	}()
}
