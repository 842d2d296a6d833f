package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/contextmgr"
	"github.com/parleyhq/parley/internal/events"
	"github.com/parleyhq/parley/internal/httpapi"
	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/llm/anthropic"
	"github.com/parleyhq/parley/internal/llm/openai"
	"github.com/parleyhq/parley/internal/orchestrator"
	"github.com/parleyhq/parley/internal/orchestrator/tools"
	"github.com/parleyhq/parley/internal/prompts"
	"github.com/parleyhq/parley/internal/scheduler"
	"github.com/parleyhq/parley/internal/store"
	"github.com/parleyhq/parley/internal/watcher"
)

// Runtime wires every service together: the sqlite store, the per-meeting
// context managers, the workflow engine, the websocket hub, the summary
// sweep, the prompt watcher and the HTTP API.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *store.Store
	registry   *contextmgr.Registry
	engine     *orchestrator.Engine
	hub        *events.Hub
	library    *prompts.Library
	httpServer *http.Server
	watcher    *watcher.Service
	scheduler  *scheduler.Service
}

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}

	client, err := newLLMClient(cfg, logger)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	library := prompts.NewLibrary()
	if err := library.Reload(cfg.PromptsDir); err != nil {
		logger.Warn("initial prompt override load failed", "dir", cfg.PromptsDir, "error", err)
	}

	hub := events.NewHub(logger.With("component", "hub"))
	registry := contextmgr.NewRegistry()
	engine := orchestrator.NewEngine(cfg.EngineConcurrency, logger.With("component", "engine"))

	mention, err := orchestrator.NewMentionWorkflow(client, library, logger.With("workflow", "mention"), cfg.MaxRetry)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}
	actions, err := orchestrator.NewActionWorkflow(client, library, sqlStore, logger.With("workflow", "action_items"), cfg.MaxRetry)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}
	minutes, err := orchestrator.NewMinutesWorkflow(client, library, sqlStore, logger.With("workflow", "minutes"), orchestrator.MinutesConfig{
		MaxRetry:    cfg.MaxRetry,
		LongTokens:  cfg.MinutesLongTokens,
		LongTopics:  cfg.MinutesLongTopics,
		ChunkTopics: cfg.MinutesChunkTopics,
	})
	if err != nil {
		sqlStore.Close()
		return nil, err
	}
	toolRegistry := tools.NewRegistry()
	for _, tool := range tools.NewGraphTools(sqlStore) {
		toolRegistry.Register(tool)
	}
	research, err := orchestrator.NewOrchestrateWorkflow(client, library, toolRegistry, logger.With("workflow", "orchestrate"), cfg.OrchestrateMaxRounds)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	newManager := func(meetingID string) *contextmgr.Manager {
		managerLogger := logger.With("component", "contextmgr")
		detector := contextmgr.NewDetector(client, library, managerLogger, contextmgr.DetectorConfig{
			CheckIntervalTurns: cfg.TopicCheckIntervalTurns,
			QuickCheckEnabled:  cfg.TopicQuickCheckEnabled,
			ExtraMarkers:       splitCSV(cfg.ExtraTopicMarkersCSV),
		})
		summarizer := contextmgr.NewSummarizer(client, library, managerLogger, cfg.SummaryMaxItems, cfg.SummaryMaxTokens)
		return contextmgr.NewManager(meetingID, sqlStore, detector, summarizer, hub, managerLogger, contextmgr.Options{
			L0MaxTurns:            cfg.L0MaxTurns,
			L0MaxTokens:           cfg.L0MaxTokens,
			TopicBufferMaxTurns:   cfg.TopicBufferMaxTurns,
			TopicBufferMaxTokens:  cfg.TopicBufferMaxTokens,
			L1UpdateTurnThreshold: cfg.L1UpdateTurnThreshold,
			L1UpdateInterval:      time.Duration(cfg.L1UpdateIntervalMinutes) * time.Minute,
			L1MinNewUtterances:    cfg.L1MinNewUtterances,
			SpeakerBufferMaxTurns: cfg.SpeakerBufferMaxTurns,
			SpeakerBufferTokens:   cfg.SpeakerBufferMaxTokens,
		})
	}

	handler := httpapi.NewRouter(httpapi.Dependencies{
		Config:   cfg,
		Store:    sqlStore,
		Registry: registry,
		Engine:   engine,
		Hub:      hub,
		Workflows: httpapi.Workflows{
			Mention:     mention,
			Actions:     actions,
			Minutes:     minutes,
			Orchestrate: research,
		},
		Logger:     logger.With("component", "api"),
		NewManager: newManager,
	})

	promptWatcher, err := watcher.New(cfg.PromptsDir, logger.With("component", "watcher"), func(ctx context.Context) {
		if err := library.Reload(cfg.PromptsDir); err != nil {
			logger.Error("prompt override reload failed", "error", err)
		}
	})
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	return &Runtime{
		cfg:      cfg,
		logger:   logger,
		store:    sqlStore,
		registry: registry,
		engine:   engine,
		hub:      hub,
		library:  library,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		watcher:   promptWatcher,
		scheduler: scheduler.New(registry, cfg.SweepCronSpec, logger.With("component", "scheduler")),
	}, nil
}

func newLLMClient(cfg config.Config, logger *slog.Logger) (llm.Client, error) {
	timeout := time.Duration(cfg.LLMTimeoutSec) * time.Second
	switch strings.ToLower(cfg.LLMProvider) {
	case "openai":
		return openai.New(openai.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: timeout,
		}, logger.With("component", "llm")), nil
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: timeout,
		}, logger.With("component", "llm")), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
