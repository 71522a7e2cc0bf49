package savestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yndnr/storyline-go/internal/core/domain"
	"github.com/yndnr/storyline-go/internal/core/history"
	"github.com/yndnr/storyline-go/internal/core/quarantine"
	"github.com/yndnr/storyline-go/internal/storage/kvstore"
	"github.com/yndnr/storyline-go/internal/storage/objstore"
	"github.com/yndnr/storyline-go/internal/telemetry/metric"
	"github.com/yndnr/storyline-go/pkg/delta"
)

// Table names and schema version.
const (
	TableSaves    = "saves"
	TableDetails  = "details"
	SchemaVersion = 1

	DefaultName = "storyline"
)

// Config configures a Store.
type Config struct {
	// Opener opens the object store. A nil Opener starts the store in
	// degraded mode.
	Opener objstore.Opener

	// Name is the database name.
	Name string

	// Legacy is the synchronous store holding legacy saves. It is also
	// the degraded-mode target. Required.
	Legacy kvstore.Store

	// Machine is the history loaded and saved by LoadState and SaveState.
	Machine *history.Machine

	// Quarantine rebuilds non-data variables. Defaults to an empty
	// registry.
	Quarantine *quarantine.Registry

	// Differ delta-encodes saved histories. Defaults to delta.New().
	Differ delta.Differ

	Settings domain.Settings

	// StoryID is written into every details record.
	StoryID string

	// OnFailure, when set, is called for every failed mutation.
	OnFailure func(op string, err error)

	Logger  *slog.Logger
	Metrics *metric.Registry

	// Now defaults to time.Now.
	Now func() time.Time
}

// Store is the save store.
type Store struct {
	opener    objstore.Opener
	name      string
	legacy    kvstore.Store
	machine   *history.Machine
	registry  *quarantine.Registry
	differ    delta.Differ
	storyID   string
	onFailure func(op string, err error)
	logger    *slog.Logger
	metrics   *metric.Registry
	now       func() time.Time

	settings atomic.Pointer[domain.Settings]

	openMu  sync.Mutex
	db      objstore.DB
	openErr error
	group   singleflight.Group

	migrate  atomic.Bool
	degraded atomic.Bool
	locked   atomic.Bool

	cacheMu    sync.Mutex
	cache      []domain.DetailsRecord
	cacheValid bool
	cacheGen   uint64
}

// New creates a Store. Nothing is opened until Open or the first
// operation.
func New(cfg Config) *Store {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Quarantine == nil {
		cfg.Quarantine = quarantine.NewRegistry()
	}
	if cfg.Differ == nil {
		cfg.Differ = delta.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Store{
		opener:    cfg.Opener,
		name:      cfg.Name,
		legacy:    cfg.Legacy,
		machine:   cfg.Machine,
		registry:  cfg.Quarantine,
		differ:    cfg.Differ,
		storyID:   cfg.StoryID,
		onFailure: cfg.OnFailure,
		logger:    cfg.Logger.With("component", "savestore"),
		metrics:   cfg.Metrics,
		now:       cfg.Now,
	}
	settings := cfg.Settings
	s.settings.Store(&settings)
	if cfg.Opener == nil {
		s.setDegraded(true, "no object store configured")
	}
	return s
}

// Settings returns the current settings.
func (s *Store) Settings() domain.Settings {
	return *s.settings.Load()
}

// SetSettings replaces the settings used by later operations.
func (s *Store) SetSettings(settings domain.Settings) {
	s.settings.Store(&settings)
}

// Degraded reports whether saves go to the legacy store.
func (s *Store) Degraded() bool {
	return s.degraded.Load() || !s.Settings().Active
}

// Busy reports whether a mutation is in flight.
func (s *Store) Busy() bool {
	return s.locked.Load()
}

func (s *Store) setDegraded(degraded bool, reason string) {
	if s.degraded.Swap(degraded) != degraded && degraded {
		s.logger.Warn("savestore: switching to legacy store", "reason", reason)
	}
	s.metrics.SetDegraded(degraded)
}

// Open opens the object store once. On first creation it builds both
// tables and flags legacy data for migration. An open failure switches
// the store to degraded mode and is returned to every later Open.
func (s *Store) Open(ctx context.Context) error {
	s.openMu.Lock()
	if s.db != nil || s.openErr != nil {
		err := s.openErr
		s.openMu.Unlock()
		return err
	}
	s.openMu.Unlock()

	if s.opener == nil {
		return domain.ErrBackendUnavailable.WithDetails("no object store configured")
	}

	_, err, _ := s.group.Do("open", func() (any, error) {
		s.openMu.Lock()
		defer s.openMu.Unlock()
		if s.db != nil || s.openErr != nil {
			return nil, s.openErr
		}

		db, err := s.opener.Open(ctx, s.name, SchemaVersion, s.upgrade)
		if err != nil {
			s.openErr = domain.ErrBackendUnavailable.WithDetails(s.name).WithCause(err)
			s.setDegraded(true, err.Error())
			s.logger.Error("savestore: open failed", "name", s.name, "error", err)
			return nil, s.openErr
		}
		s.db = db
		s.logger.Debug("savestore: opened", "name", s.name, "version", db.Version())
		return nil, nil
	})
	return err
}

func (s *Store) upgrade(schema objstore.Schema, oldVersion, newVersion int) error {
	if oldVersion < 1 {
		if err := schema.CreateTable(TableSaves); err != nil {
			return err
		}
		if err := schema.CreateTable(TableDetails); err != nil {
			return err
		}
		s.migrate.Store(true)
		s.logger.Info("savestore: schema created", "version", newVersion)
	}
	return nil
}

// database returns the open database, or nil when saves go to the
// legacy store.
func (s *Store) database(ctx context.Context) (objstore.DB, error) {
	if s.Degraded() {
		return nil, nil
	}
	if err := s.Open(ctx); err != nil {
		if errors.Is(err, domain.ErrStoreClosed) {
			return nil, err
		}
		return nil, nil
	}
	s.openMu.Lock()
	defer s.openMu.Unlock()
	if s.db == nil {
		return nil, domain.ErrStoreClosed
	}
	return s.db, nil
}

// Close closes the object store. In-flight mutations finish first.
func (s *Store) Close() error {
	for !s.locked.CompareAndSwap(false, true) {
		time.Sleep(time.Millisecond)
	}
	defer s.locked.Store(false)

	s.openMu.Lock()
	defer s.openMu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.openErr = domain.ErrStoreClosed
	if err != nil {
		return fmt.Errorf("savestore: close: %w", err)
	}
	return nil
}

func (s *Store) fail(op string, err error) {
	s.logger.Error("savestore: operation failed", "op", op, "error", err)
	if s.onFailure != nil {
		s.onFailure(op, err)
	}
}
