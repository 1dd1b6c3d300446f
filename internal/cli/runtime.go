package cli

import (
	"fmt"

	"github.com/stxkxs/troupe/internal/config"
	"github.com/stxkxs/troupe/internal/event"
	"github.com/stxkxs/troupe/internal/queue"
	"github.com/stxkxs/troupe/internal/state"
	"github.com/stxkxs/troupe/internal/telemetry"
	"github.com/stxkxs/troupe/internal/tool"
	"github.com/stxkxs/troupe/internal/vector"
)

// runtime holds the wired collaborators the long-running commands share:
// config, project definitions, broker, run history, and the vector pipeline.
type runtime struct {
	cfg      *config.Config
	dir      string
	logger   *telemetry.Logger
	project  *config.Project
	broker   queue.Broker
	runs     *state.Manager
	pipeline *vector.Pipeline
	chat     *queue.ChatHandler
	exporter telemetry.MetricsExporter
	hooks    []event.Hook
}

func buildRuntime(dir string) (*runtime, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg)

	if err := registerTools(cfg); err != nil {
		return nil, err
	}

	hooks, err := event.HooksFromConfig(cfg.Hooks, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load hooks: %w", err)
	}

	project, err := config.LoadProject(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	broker, err := queue.NewBroker(cfg.Queue)
	if err != nil {
		return nil, err
	}

	runs, err := state.NewManager(cfg.State.Driver, cfg.State.Path, logger)
	if err != nil {
		broker.Close()
		return nil, fmt.Errorf("failed to initialize run history: %w", err)
	}

	pipeline, err := buildPipeline(cfg, logger)
	if err != nil {
		broker.Close()
		runs.Close()
		return nil, err
	}

	var exporter telemetry.MetricsExporter
	if cfg.Logging.Metrics != "" {
		exporter, err = telemetry.NewJSONFileExporter(cfg.Logging.Metrics)
		if err != nil {
			broker.Close()
			runs.Close()
			pipeline.Close()
			return nil, err
		}
	}

	chat := queue.NewChatHandler(cfg, project, dir, runs, logger)
	chat.SetHooks(hooks)

	return &runtime{
		cfg:      cfg,
		dir:      dir,
		logger:   logger,
		project:  project,
		broker:   broker,
		runs:     runs,
		pipeline: pipeline,
		chat:     chat,
		exporter: exporter,
		hooks:    hooks,
	}, nil
}

func (rt *runtime) Close() {
	rt.broker.Close()
	rt.runs.Close()
	rt.pipeline.Close()
	if rt.exporter != nil {
		rt.exporter.Close()
	}
	rt.logger.Close()
}

// newWorkers builds the worker pool with every queue handler wired, plus the
// configured lifecycle hooks. When logging.metrics names a file, the pool
// flushes a metrics snapshot there after each job.
func (rt *runtime) newWorkers() *queue.Workers {
	pool := queue.NewWorkers(rt.broker, rt.cfg.Queue.Concurrency, rt.logger,
		rt.chat,
		queue.NewEmbedHandler(rt.pipeline, rt.logger),
		queue.NewIndexHandler(rt.pipeline, rt.logger),
	)
	if rt.exporter != nil {
		pool.Metrics().SetExporter(rt.exporter)
	}
	for _, h := range rt.hooks {
		pool.Events().Register(h)
	}
	return pool
}

// registerTools makes the project's declared tools resolvable by agents.
// Built-ins re-register scoped to the workspace when one is set, so file
// tools read and write relative to it.
func registerTools(cfg *config.Config) error {
	if cfg.Workspace != "" {
		tool.RegisterBuiltins(cfg.Workspace)
	}
	return tool.RegisterFromConfig(cfg.Tools, cfg.Workspace)
}

func newLogger(cfg *config.Config) *telemetry.Logger {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger := telemetry.NewLoggerWithOptions(level, cfg.Logging.Format)
	if cfg.Logging.File != "" {
		if err := logger.WithFile(cfg.Logging.File); err != nil {
			logger.Warn("Log file unavailable", "path", cfg.Logging.File, "error", err)
		}
	}
	return logger
}

// buildPipeline assembles the vector pipeline from config: chromem-backed
// store (persistent when vector.path is set), the built-in hash embedder,
// and an optional document directory source for index jobs.
func buildPipeline(cfg *config.Config, logger *telemetry.Logger) (*vector.Pipeline, error) {
	store, err := vector.NewChromemStore(cfg.Vector.Path, cfg.Vector.Collection)
	if err != nil {
		return nil, err
	}

	var source vector.Source
	if cfg.Vector.Documents != "" {
		source = vector.NewDirSource(cfg.Vector.Documents)
	}

	embedder := vector.NewHashEmbedder(cfg.Vector.Dimensions)
	return vector.NewPipeline(embedder, store, source, cfg.Vector.ChunkSize, logger), nil
}
