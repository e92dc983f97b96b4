package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/odvcencio/hotreg/pkg/catalog"
	"github.com/odvcencio/hotreg/pkg/classsource"
	"github.com/odvcencio/hotreg/pkg/config"
	"github.com/odvcencio/hotreg/pkg/eligibility"
	"github.com/odvcencio/hotreg/pkg/loader"
	"github.com/odvcencio/hotreg/pkg/methodsource"
	"github.com/odvcencio/hotreg/pkg/pending"
	"github.com/odvcencio/hotreg/pkg/registry"
	"github.com/odvcencio/hotreg/pkg/tracing"
)

const configFileHint = config.FileName

type globalOptions struct {
	dir      string
	logLevel string
}

// project is the fully wired pipeline for one source tree.
type project struct {
	cfg      config.Config
	logger   *slog.Logger
	matcher  *eligibility.Matcher
	metrics  *prometheus.Registry
	tracing  *tracing.Provider
	log      *pending.Log
	loader   *loader.Loader
	source   *classsource.Source
	registry *registry.Registry
	catalog  *catalog.Index
}

func openProject(cmd *cobra.Command, opts *globalOptions) (*project, error) {
	cfg, err := config.Load(opts.dir)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return newProject(cfg, cmd.ErrOrStderr())
}

func newProject(cfg config.Config, logW io.Writer) (*project, error) {
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, logW)

	matcher, err := eligibility.Load(cfg.Root, cfg.IgnoreFile, cfg.Exclude)
	if err != nil {
		return nil, err
	}
	tp, err := tracing.NewProvider(cfg.Trace, logW)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	log := pending.NewLog()
	ld := loader.New(cfg.Root, log, logger.With("component", "loader"))
	src := classsource.New(ld, log, classsource.Options{
		Root:        cfg.Root,
		Eligible:    matcher.Eligible,
		Concurrency: cfg.Concurrency,
		Logger:      logger.With("component", "classsource"),
	})
	r := registry.New(src, methodsource.New(), registry.Options{
		Logger:  logger.With("component", "registry"),
		Metrics: registry.NewMetrics(reg),
		Tracer:  tp.Tracer(),
	})
	cat := registry.RegisterIndex(r, func() *catalog.Index {
		return catalog.New(logger.With("component", "catalog"))
	})

	return &project{
		cfg:      cfg,
		logger:   logger,
		matcher:  matcher,
		metrics:  reg,
		tracing:  tp,
		log:      log,
		loader:   ld,
		source:   src,
		registry: r,
		catalog:  cat,
	}, nil
}

func (p *project) Close() error {
	if err := p.tracing.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown tracing: %w", err)
	}
	return nil
}

// newLogger builds an isolated logger; it does not touch slog.Default.
func newLogger(levelStr, formatStr string, w io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}
