package app

import (
	"context"

	"go.uber.org/zap"

	"shardwork/internal/checkpoint"
	"shardwork/internal/config"
	"shardwork/internal/errors"
	"shardwork/internal/metrics"
	"shardwork/internal/progress"
	"shardwork/internal/storage"
	"shardwork/internal/units"
)

// App wires configuration, storage backends, and the engine
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	fs      *storage.Router
	ledger  checkpoint.Store
	metrics *metrics.Collector
	engine  *Engine
}

// New creates the application from a loaded configuration
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	processor, err := cfg.Processor()
	if err != nil {
		return nil, err
	}

	fs := storage.NewRouter()
	if cfg.Storage.S3.Endpoint != "" {
		s3, err := storage.NewMinIO(storage.Config{
			Endpoint:  cfg.Storage.S3.Endpoint,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			Region:    cfg.Storage.S3.Region,
			Secure:    cfg.Storage.S3.Secure,
			PartSize:  cfg.Storage.S3.PartSize,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create object store client")
		}
		fs.Register(s3.Scheme(), s3)
	}

	unit, err := units.New(processor.Unit, fs, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		fs:      fs,
		metrics: metrics.New(),
	}

	if cfg.Ledger != "" {
		ledger, err := checkpoint.NewSQLiteStore(cfg.Ledger)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open run ledger")
		}
		a.ledger = ledger
	}

	a.engine, err = NewEngine(processor, unit, fs, Options{
		Logger:   logger,
		Metrics:  a.metrics,
		Ledger:   a.ledger,
		Renderer: progress.NewRenderer(cfg.ShowProgress, logger),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// Run executes the configured job
func (a *App) Run(ctx context.Context) (Summary, error) {
	if a.cfg.MetricsAddr != "" {
		go func() {
			if err := a.metrics.StartServer(ctx, a.cfg.MetricsAddr, a.logger); err != nil {
				a.logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	return a.engine.Run(ctx, nil)
}

// Close cleans up resources
func (a *App) Close() error {
	if a.ledger != nil {
		return a.ledger.Close()
	}
	return nil
}
