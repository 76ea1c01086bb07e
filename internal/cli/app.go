package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/artdr/internal/backend"
	"github.com/roach88/artdr/internal/catalog"
	"github.com/roach88/artdr/internal/config"
	"github.com/roach88/artdr/internal/errdefs"
	"github.com/roach88/artdr/internal/experiment"
	"github.com/roach88/artdr/internal/logging"
	"github.com/roach88/artdr/internal/metrics"
	"github.com/roach88/artdr/internal/publish"
	"github.com/roach88/artdr/internal/registry"
	"github.com/roach88/artdr/internal/sampler"
	"github.com/roach88/artdr/internal/store"
)

// app is the per-invocation wiring shared by commands.
type app struct {
	opts    *RootOptions
	cfg     *config.Config
	out     *OutputFormatter
	logger  *zap.Logger
	catalog *catalog.Catalog
	metrics *metrics.Metrics
	store   *store.Store
}

// newApp loads configuration, the logger and the catalog. The database is
// opened separately by openStore so listings work without one.
func newApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var envFiles []string
	if opts.EnvFile != "" {
		envFiles = append(envFiles, opts.EnvFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		_ = out.Error(ErrCodeGeneric, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	applyFlags(opts, cfg)

	logger := opts.Logger
	if logger == nil {
		level := cfg.LogLevel
		if opts.Verbose {
			level = config.LevelDebug
		}
		logger, err = logging.NewWithWriter(cmd.ErrOrStderr(), level)
		if err != nil {
			_ = out.Error(ErrCodeGeneric, err.Error(), nil)
			return nil, WrapExitError(ExitCommandError, "invalid log level", err)
		}
	}

	var cat *catalog.Catalog
	if cfg.CatalogPath != "" {
		cat, err = catalog.LoadFile(cfg.CatalogPath)
	} else {
		cat, err = catalog.Default()
	}
	if err != nil {
		_ = out.Error(ErrCodeGeneric, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	a := &app{
		opts:    opts,
		cfg:     cfg,
		out:     out,
		logger:  logger,
		catalog: cat,
	}
	if cfg.MetricsFile != "" {
		a.metrics = metrics.New()
	}
	return a, nil
}

// applyFlags lets non-empty flags override environment settings.
func applyFlags(opts *RootOptions, cfg *config.Config) {
	if opts.Database != "" {
		cfg.DBPath = opts.Database
	}
	if opts.Python != "" {
		cfg.Python = opts.Python
	}
	if opts.Catalog != "" {
		cfg.CatalogPath = opts.Catalog
	}
	if opts.MetricsFile != "" {
		cfg.MetricsFile = opts.MetricsFile
	}
}

// openStore opens the configured database.
func (a *app) openStore() error {
	st, err := store.Open(a.cfg.DBPath)
	if err != nil {
		_ = a.out.Error(ErrCodeGeneric, err.Error(), map[string]string{"db": a.cfg.DBPath})
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	a.logger.Debug("database ready", zap.String("path", a.cfg.DBPath))
	a.store = st
	return nil
}

// runner wires sampler, registry, store and (optionally) the publisher.
func (a *app) runner(publishPayloads bool) (*experiment.Runner, error) {
	reducers := a.opts.Reducers
	if reducers == nil {
		var err error
		reducers, err = backend.BuildAll(a.catalog, backend.Options{Python: a.cfg.Python, Logger: a.logger})
		if err != nil {
			return nil, a.out.Fail(err)
		}
	}

	reg := registry.New(a.catalog, reducers,
		registry.WithLogger(a.logger),
		registry.WithMetrics(a.metrics),
	)

	opts := []experiment.Option{
		experiment.WithLogger(a.logger),
		experiment.WithMetrics(a.metrics),
	}
	if a.opts.RunIDs != nil {
		opts = append(opts, experiment.WithRunIDGenerator(a.opts.RunIDs))
	}
	if publishPayloads {
		if !a.cfg.PublishEnabled() {
			return nil, a.out.Fail(errdefs.Validation("publish", "--publish requires ARTDR_S3_ENDPOINT"))
		}
		pub, err := publish.New(publish.Options{
			Endpoint:  a.cfg.S3Endpoint,
			AccessKey: a.cfg.S3AccessKey,
			SecretKey: a.cfg.S3SecretKey,
			Secure:    a.cfg.S3Secure,
			Bucket:    a.cfg.S3Bucket,
			Prefix:    a.cfg.S3Prefix,
		}, a.logger)
		if err != nil {
			return nil, a.out.Fail(err)
		}
		opts = append(opts, experiment.WithPublisher(pub))
	}

	return experiment.NewRunner(sampler.New(a.store, a.logger), reg, a.store, opts...), nil
}

// Close writes the metrics file, closes the database and flushes the log.
func (a *app) Close() error {
	var errs []error
	if a.metrics != nil {
		if err := a.metrics.WriteFile(a.cfg.MetricsFile); err != nil {
			a.logger.Error("failed to write metrics", zap.String("path", a.cfg.MetricsFile), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("error closing database", zap.Error(err))
			errs = append(errs, err)
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// signalContext derives a context from the command's that is cancelled on
// SIGINT or SIGTERM, so a hung back-end process is killed.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
