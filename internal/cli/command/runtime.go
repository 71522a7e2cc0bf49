package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/storyline-go/internal/config"
	"github.com/yndnr/storyline-go/internal/core/service"
	"github.com/yndnr/storyline-go/internal/storage"
	"github.com/yndnr/storyline-go/internal/storage/kvstore"
	"github.com/yndnr/storyline-go/internal/storage/objstore"
	"github.com/yndnr/storyline-go/internal/telemetry/logger"
	"github.com/yndnr/storyline-go/internal/telemetry/metric"
	"github.com/yndnr/storyline-go/pkg/crypto/adaptive"
)

// Subdirectories of the data directory.
const (
	dirDatabase = "db"
	dirLegacy   = "legacy"
	dirSession  = "session"
)

// Runtime holds the engine and the stores built from the configuration.
type Runtime struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metric.Registry
	Engine  *service.Engine

	Legacy  *kvstore.File
	Session *kvstore.File
}

// NewRuntime builds the stores and the engine. The save database is not
// opened; call Engine.Open.
func NewRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger, notices io.Writer) (*Runtime, error) {
	var cipher adaptive.Cipher
	if cfg.Security.EncryptionKey != "" {
		c, err := adaptive.FromPassphrase(cfg.Security.EncryptionKey, adaptive.CipherType(cfg.Security.Cipher))
		if err != nil {
			return nil, fmt.Errorf("encryption: %w", err)
		}
		cipher = c
	}

	legacy, err := kvstore.NewFile(kvstore.FileConfig{
		Dir:    filepath.Join(cfg.Storage.DataDir, dirLegacy),
		Quota:  cfg.Storage.LegacyQuota,
		Cipher: cipher,
	})
	if err != nil {
		return nil, err
	}
	sessionStore, err := kvstore.NewFile(kvstore.FileConfig{
		Dir:    filepath.Join(cfg.Storage.DataDir, dirSession),
		Quota:  cfg.Session.Quota,
		Cipher: cipher,
	})
	if err != nil {
		return nil, err
	}

	metrics := metric.NewRegistry()
	usage := metric.NewCollector()
	usage.Add(dirLegacy, legacy)
	usage.Add(dirSession, sessionStore)
	if err := metrics.Register(usage); err != nil {
		return nil, err
	}

	opener, err := newOpener(cfg, log, metrics)
	if err != nil {
		return nil, err
	}

	engine, err := service.New(ctx, service.Config{
		StoryID:         cfg.Story.ID,
		Seed:            cfg.Story.Seed,
		MaxStates:       cfg.History.MaxStates,
		MaxExpired:      cfg.History.MaxExpired,
		SessionStore:    sessionStore,
		SessionKey:      cfg.Session.Key,
		SessionDepth:    cfg.Session.Depth,
		SessionInterval: cfg.Session.Interval,
		Opener:          opener,
		DBName:          cfg.Storage.DBName,
		Legacy:          legacy,
		Settings:        cfg.Saves,
		OnFailure: func(op string, err error) {
			logger.Notice(ctx, log, notices, "storyline: save operation failed", "op", op, "error", err)
		},
		Logger:  log,
		Metrics: metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics,
		Engine:  engine,
		Legacy:  legacy,
		Session: sessionStore,
	}, nil
}

func newOpener(cfg *config.Config, log *slog.Logger, metrics *metric.Registry) (objstore.Opener, error) {
	switch cfg.Storage.Backend {
	case config.BackendLegacy:
		return nil, nil
	case config.BackendBadger:
		bc := storage.DefaultBadgerConfig(filepath.Join(cfg.Storage.DataDir, dirDatabase))
		if cfg.Storage.GCInterval != "" {
			bc.GCInterval = cfg.Storage.GCInterval
		}
		opener, err := storage.NewBadgerOpener(bc, log)
		if err != nil {
			return nil, err
		}
		return opener.RegisterMetrics(metrics.Prometheus()), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Storage.Backend)
	}
}

// Close flushes the session snapshot and closes the save database.
func (r *Runtime) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.Engine.Close(ctx)
}

// runtimeFor returns the runtime of this invocation, building it on first
// use. With open set the save database is opened and legacy saves are
// migrated.
func runtimeFor(c *cli.Context, open bool) (*Runtime, error) {
	rt, ok := c.App.Metadata[metaRuntime].(*Runtime)
	if !ok {
		cfg := GetConfig(c)
		if cfg == nil {
			return nil, errors.New("configuration not loaded")
		}
		var err error
		rt, err = NewRuntime(c.Context, cfg, slog.Default(), errWriter(c))
		if err != nil {
			return nil, err
		}
		c.App.Metadata[metaRuntime] = rt
	}
	if open {
		if err := rt.Engine.Open(c.Context); err != nil {
			return nil, err
		}
	}
	return rt, nil
}
