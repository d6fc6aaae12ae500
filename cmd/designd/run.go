package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/assets"
	"github.com/fyrsmithlabs/designd/internal/config"
	"github.com/fyrsmithlabs/designd/internal/embeddings"
	"github.com/fyrsmithlabs/designd/internal/events"
	httpserver "github.com/fyrsmithlabs/designd/internal/http"
	"github.com/fyrsmithlabs/designd/internal/llm"
	"github.com/fyrsmithlabs/designd/internal/logging"
	"github.com/fyrsmithlabs/designd/internal/mcp"
	"github.com/fyrsmithlabs/designd/internal/search"
	"github.com/fyrsmithlabs/designd/internal/session"
	"github.com/fyrsmithlabs/designd/internal/telemetry"
	"github.com/fyrsmithlabs/designd/internal/tools"
	"github.com/fyrsmithlabs/designd/internal/vectorstore"
	"github.com/fyrsmithlabs/designd/internal/workflow"
)

// run loads configuration, wires every client and blocks in the selected
// mode until ctx is cancelled.
func run(ctx context.Context, mode, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initLogger(cfg.Logging, mode)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()
	if degraded, lastErr := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Error(lastErr))
	}

	logger.Info(ctx, "starting designd",
		zap.String("mode", mode),
		zap.String("version", version),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("session_store", cfg.Session.Store))

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	switch mode {
	case modeMCP:
		return runMCP(ctx, deps, logger)
	default:
		return runHTTP(ctx, cfg, deps, logger)
	}
}

// initLogger builds the logger. In MCP mode stdout carries the protocol,
// so console output moves to stderr.
func initLogger(settings config.LoggingConfig, mode string) (*logging.Logger, error) {
	lcfg, err := logging.FromSettings(settings)
	if err != nil {
		return nil, err
	}
	if mode == modeMCP {
		lcfg.Output.Stdout = false
		lcfg.Output.Stderr = true
	}
	return logging.NewLogger(lcfg, global.GetLoggerProvider())
}

// dependencies holds every constructed client.
type dependencies struct {
	index   vectorstore.Index
	store   session.Store
	events  events.Publisher
	toolbox *tools.Toolbox
	driver  *workflow.Driver
	logger  *zap.Logger
}

// Close releases infrastructure resources.
func (d *dependencies) Close() {
	if d.events != nil {
		if err := d.events.Close(); err != nil {
			d.logger.Warn("failed to close event publisher", zap.Error(err))
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("failed to close session store", zap.Error(err))
		}
	}
	if d.index != nil {
		if err := d.index.Close(); err != nil {
			d.logger.Warn("failed to close vector index", zap.Error(err))
		}
	}
}

// initDependencies constructs the clients in dependency order:
//  1. design index (chromem or qdrant)
//  2. translator, CLIP embedder and chat model
//  3. searcher, image resolver and tools
//  4. session store and event publisher
//  5. workflow driver
func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	zl := logger.Underlying()
	deps := &dependencies{logger: zl}

	index, err := vectorstore.NewIndex(ctx, cfg.VectorStore, cfg.Embeddings.Dimension, zl)
	if err != nil {
		return nil, fmt.Errorf("failed to open design index: %w", err)
	}
	deps.index = index

	var translator embeddings.Translator
	if !cfg.Embeddings.SkipTranslation {
		t, err := llm.NewTranslator(cfg.LLM)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to create translator: %w", err)
		}
		translator = t
	}

	embedder, err := embeddings.NewClient(cfg.Embeddings, translator, zl)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	model, err := llm.NewClient(cfg.LLM, zl)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	searcher := search.NewSearcher(index, zl)
	resolver := assets.NewResolver(cfg.Assets.ImagesDir, zl)

	deps.toolbox = tools.NewToolbox(
		tools.NewWebSearch(cfg.WebSearch, zl),
		tools.NewDesignSearch(embedder, searcher, cfg.Search.TextResults, zl),
		zl,
	)

	store, err := session.NewStore(ctx, cfg.Session, zl)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}
	deps.store = store
	if ms, ok := store.(*session.MemoryStore); ok {
		if err := prometheus.Register(ms.Collector()); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				zl.Warn("failed to register session gauge", zap.Error(err))
			}
		}
	}

	publisher, err := events.New(cfg.Events, zl)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}
	deps.events = publisher

	wcfg := workflow.DefaultConfig()
	wcfg.ImageResults = cfg.Search.ImageResults
	wcfg.UploadDir = cfg.Server.UploadDir

	driver, err := workflow.NewDriver(workflow.Deps{
		Model:    model,
		Embedder: embedder,
		Searcher: searcher,
		Resolver: resolver,
		Tools:    deps.toolbox,
		Store:    store,
		Events:   publisher,
	}, wcfg, logger)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create workflow driver: %w", err)
	}
	deps.driver = driver

	if n, err := index.Count(ctx); err != nil {
		logger.Warn(ctx, "could not count indexed designs", zap.Error(err))
	} else {
		logger.Info(ctx, "dependencies initialized", zap.Int("indexed_designs", n))
	}

	return deps, nil
}

// runHTTP serves the chat API until ctx is cancelled, then shuts down
// within the configured timeout.
func runHTTP(ctx context.Context, cfg *config.Config, deps *dependencies, logger *logging.Logger) error {
	srv, err := httpserver.NewServer(deps.driver, logger.Underlying(), &httpserver.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// runMCP serves the MCP tools over stdio until the client disconnects or
// ctx is cancelled.
func runMCP(ctx context.Context, deps *dependencies, logger *logging.Logger) error {
	mcfg := mcp.DefaultConfig()
	mcfg.Version = version
	mcfg.Logger = logger.Underlying()

	srv, err := mcp.NewServer(mcfg, deps.toolbox, deps.driver)
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
