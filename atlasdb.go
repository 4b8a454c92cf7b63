package atlasdb

import (
	"context"
	"fmt"

	"github.com/nickyhof/AtlasDB/config"
	"github.com/nickyhof/AtlasDB/db"
	"github.com/nickyhof/AtlasDB/ps"
	"github.com/nickyhof/AtlasDB/schema"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option customises the Store built by Open.
type Option func(*db.Options)

// WithMetrics records query metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(options *db.Options) {
		options.Metrics = db.NewMetrics(reg)
	}
}

// Open builds a Store for cfg using the default schema. The engine itself
// is opened lazily by the first query.
func Open(cfg config.Config, logger *zap.Logger, opts ...Option) (*db.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	open, err := engineFactory(cfg, logger)
	if err != nil {
		return nil, err
	}

	conn := db.NewConnection(open, schema.Default,
		db.WithOpenTimeout(cfg.OpenTimeout),
		db.WithLogger(logger))

	options := db.Options{
		OperationTimeout: cfg.OperationTimeout,
		StrictInsert:     cfg.StrictInsert,
		Remote: db.S3Config{
			AccessKey: cfg.Remote.AccessKey,
			SecretKey: cfg.Remote.SecretKey,
			Region:    cfg.Remote.Region,
			Endpoint:  cfg.Remote.Endpoint,
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	return db.NewStore(conn, options, logger), nil
}

// NewMemory returns a Store on an in-memory git engine. Nothing survives
// Close.
func NewMemory(logger *zap.Logger) *db.Store {
	store, err := Open(config.Default(), logger)
	if err != nil {
		// the default configuration always validates
		panic(err)
	}
	return store
}

func engineFactory(cfg config.Config, logger *zap.Logger) (db.OpenFunc, error) {
	switch cfg.Engine {
	case config.EngineMemory:
		return func(ctx context.Context) (ps.Engine, error) {
			logger.Info("opening in-memory git engine")
			return ps.NewMemoryGitEngine(cfg.Identity)
		}, nil
	case config.EngineGit:
		return func(ctx context.Context) (ps.Engine, error) {
			logger.Info("opening git engine", zap.String("data_dir", cfg.DataDir))
			return ps.NewFileGitEngine(cfg.DataDir, cfg.Identity)
		}, nil
	case config.EngineBolt:
		return func(ctx context.Context) (ps.Engine, error) {
			logger.Info("opening bolt engine", zap.String("path", cfg.BoltDir()))
			return ps.NewBoltEngine(cfg.BoltDir())
		}, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}
