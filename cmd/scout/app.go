package main

import (
	"context"
	"database/sql"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hpungsan/scout/internal/backend"
	"github.com/hpungsan/scout/internal/chat"
	"github.com/hpungsan/scout/internal/conditions"
	"github.com/hpungsan/scout/internal/config"
	"github.com/hpungsan/scout/internal/db"
	"github.com/hpungsan/scout/internal/export"
	"github.com/hpungsan/scout/internal/logging"
	"github.com/hpungsan/scout/internal/mcp"
	"github.com/hpungsan/scout/internal/metrics"
	"github.com/hpungsan/scout/internal/orchestrator"
	"github.com/hpungsan/scout/internal/request"
	"github.com/hpungsan/scout/internal/results"
	"github.com/hpungsan/scout/internal/session"
	"github.com/hpungsan/scout/internal/web"
)

// app owns every component for the lifetime of one process.
type app struct {
	baseDir  string
	cfg      *config.Config
	db       *sql.DB
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	kv       *db.KV
	backend  *backend.Client
	sessions *session.Coordinator
	builder  *conditions.Builder
	results  *results.Store
	exporter *export.Exporter
	chat     *chat.Bridge
	orch     *orchestrator.Orchestrator
}

// appOptions configures newApp.
type appOptions struct {
	BaseDir  string
	Config   *config.Config
	Renderer orchestrator.Renderer
	// Logger overrides the rotated file logger.
	Logger *zap.Logger
}

// newApp opens the database under opts.BaseDir and wires the components.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	database, err := db.Init(opts.BaseDir)
	if err != nil {
		return nil, err
	}
	db.ConfigurePool(database, cfg)

	logger := opts.Logger
	if logger == nil {
		logger = logging.New(logging.Options{
			File:  filepath.Join(opts.BaseDir, "logs", "scout.log"),
			Level: cfg.LogLevel,
		})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	kv := db.NewKV(database)
	baseURL := cfg.BaseURL
	if v, ok, err := kv.Get(db.KeyBaseURL); err != nil {
		logger.Warn("failed to read stored base URL", zap.Error(err))
	} else if ok && v != "" {
		baseURL = v
	}

	rc := request.New(request.Options{
		BaseURL: baseURL,
		Timeout: cfg.RequestTimeout(),
		Logger:  logger,
		Metrics: m,
	})
	svc := backend.New(rc, cfg.Retry)

	sessions := session.New(kv, logger)
	builder := conditions.NewBuilder(kv, logger)
	exporter := export.New(cfg, filepath.Join(opts.BaseDir, "exports"))
	store := results.New(kv, exporter, logger)
	bridge := chat.New(ctx, chat.Options{
		API:      svc,
		Sessions: sessions,
		Log:      db.NewTurnLog(database),
		Flags:    kv,
		Logger:   logger,
	})
	sessions.Subscribe(bridge.SessionChanged)

	orch := orchestrator.New(orchestrator.Options{
		API:         svc,
		Sessions:    sessions,
		Builder:     builder,
		Results:     store,
		Credentials: kv,
		Chat:        bridge,
		Files:       exporter,
		Renderer:    opts.Renderer,
		Config:      cfg,
		Metrics:     m,
		Logger:      logger,
	})

	return &app{
		baseDir:  opts.BaseDir,
		cfg:      cfg,
		db:       database,
		logger:   logger,
		registry: reg,
		metrics:  m,
		kv:       kv,
		backend:  svc,
		sessions: sessions,
		builder:  builder,
		results:  store,
		exporter: exporter,
		chat:     bridge,
		orch:     orch,
	}, nil
}

// hasCredential reports whether a credential is stored.
func (a *app) hasCredential() bool {
	v, err := a.kv.Credential()
	return err == nil && v != ""
}

// mcpDeps exposes the components to the MCP tool handlers.
func (a *app) mcpDeps() mcp.Deps {
	return mcp.Deps{
		Orchestrator:  a.orch,
		Builder:       a.builder,
		Results:       a.results,
		Chat:          a.chat,
		Sessions:      a.sessions,
		Service:       a.backend,
		HasCredential: a.hasCredential,
	}
}

// webDeps exposes the components to the dashboard.
func (a *app) webDeps() web.Deps {
	return web.Deps{
		Orchestrator: a.orch,
		Results:      a.results,
		Chat:         a.chat,
		Gatherer:     a.registry,
		Logger:       a.logger,
	}
}

// Close waits for background chat refreshes and releases the database.
func (a *app) Close() error {
	a.chat.Wait()
	_ = a.logger.Sync()
	return a.db.Close()
}
