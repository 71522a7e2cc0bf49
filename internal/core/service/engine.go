package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/storyline-go/internal/core/domain"
	"github.com/yndnr/storyline-go/internal/core/history"
	"github.com/yndnr/storyline-go/internal/core/quarantine"
	"github.com/yndnr/storyline-go/internal/core/session"
	"github.com/yndnr/storyline-go/internal/savestore"
	"github.com/yndnr/storyline-go/internal/storage/kvstore"
	"github.com/yndnr/storyline-go/internal/storage/objstore"
	"github.com/yndnr/storyline-go/internal/telemetry/metric"
	"github.com/yndnr/storyline-go/pkg/delta"
	"github.com/yndnr/storyline-go/pkg/prng"
)

// Config configures an Engine.
type Config struct {
	// StoryID identifies the story in save details.
	StoryID string

	// Seed seeds the PRNG. Empty draws a random seed.
	Seed string

	MaxStates  int
	MaxExpired int

	// SessionStore is the transient snapshot store. Required.
	SessionStore kvstore.Store
	SessionKey   string
	SessionDepth int

	// SessionInterval throttles snapshots taken on history changes.
	SessionInterval time.Duration

	// Opener opens the save database. Nil runs the save store on the
	// legacy store only.
	Opener objstore.Opener
	DBName string

	// Legacy holds legacy saves and the settings. Required.
	Legacy kvstore.Store

	// Settings are the defaults for settings not yet persisted.
	Settings domain.Settings

	Quarantine *quarantine.Registry
	OnFailure  func(op string, err error)
	Logger     *slog.Logger
	Metrics    *metric.Registry
}

// Engine coordinates history, session snapshots and saves.
type Engine struct {
	machine  *history.Machine
	prng     *prng.Generator
	session  *session.Manager
	saves    *savestore.Store
	settings *savestore.SettingsStore
	logger   *slog.Logger
	metrics  *metric.Registry
	depth    int

	mu          sync.Mutex
	current     domain.Settings
	unsubscribe func()
	closed      bool
}

// New creates an Engine and loads the persisted settings. The save store
// is opened by Open.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.SessionStore == nil {
		return nil, domain.ErrMissingArgument.WithDetails("session store")
	}
	if cfg.Legacy == nil {
		return nil, domain.ErrMissingArgument.WithDetails("legacy store")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Quarantine == nil {
		cfg.Quarantine = quarantine.NewRegistry()
	}

	gen, err := newGenerator(cfg.Seed)
	if err != nil {
		return nil, err
	}

	settingsStore := savestore.NewSettingsStore(cfg.Legacy, cfg.Settings)
	current, err := settingsStore.Load(ctx)
	if err != nil {
		cfg.Logger.Warn("engine: stored settings unreadable, using defaults", "error", err)
	}

	differ := delta.New()
	machine := history.New(history.Config{
		MaxStates:  cfg.MaxStates,
		MaxExpired: cfg.MaxExpired,
		Differ:     differ,
		PRNG:       gen,
		Logger:     cfg.Logger,
	})

	e := &Engine{
		machine: machine,
		prng:    gen,
		session: session.New(machine, session.Config{
			Store:           cfg.SessionStore,
			Key:             cfg.SessionKey,
			Depth:           cfg.SessionDepth,
			UseDelta:        current.UseDelta,
			PersistInterval: cfg.SessionInterval,
			Logger:          cfg.Logger,
			Metrics:         cfg.Metrics,
		}),
		saves: savestore.New(savestore.Config{
			Opener:     cfg.Opener,
			Name:       cfg.DBName,
			Legacy:     cfg.Legacy,
			Machine:    machine,
			Quarantine: cfg.Quarantine,
			Differ:     differ,
			Settings:   current,
			StoryID:    cfg.StoryID,
			OnFailure:  cfg.OnFailure,
			Logger:     cfg.Logger,
			Metrics:    cfg.Metrics,
		}),
		settings: settingsStore,
		logger:   cfg.Logger.With("component", "engine"),
		metrics:  cfg.Metrics,
		depth:    cfg.SessionDepth,
		current:  current,
	}
	e.unsubscribe = machine.Subscribe(e.onHistory)
	return e, nil
}

func newGenerator(seed string) (*prng.Generator, error) {
	if seed == "" {
		return prng.NewDefault()
	}
	return prng.NewFromString(seed, 0), nil
}

// Open opens the save store and migrates legacy saves on first use. An
// unavailable backend is not an error: saves fall back to the legacy
// store.
func (e *Engine) Open(ctx context.Context) error {
	if err := e.saves.Open(ctx); err != nil {
		e.logger.Warn("engine: save database unavailable, using legacy store", "error", err)
		return nil
	}
	n, err := e.saves.MigrateLegacy(ctx)
	if err != nil {
		return fmt.Errorf("engine: migrate legacy saves: %w", err)
	}
	if n > 0 {
		e.logger.Info("engine: legacy saves migrated", "slots", n)
	}
	return nil
}

func (e *Engine) onHistory(ev history.Event) {
	e.metrics.SetHistory(ev.Length, ev.Index)
	if _, err := e.session.Persist(context.Background()); err != nil {
		e.logger.Warn("engine: session snapshot failed", "event", ev.Kind.String(), "error", err)
	}
}

// Machine returns the history machine.
func (e *Engine) Machine() *history.Machine { return e.machine }

// PRNG returns the engine's generator.
func (e *Engine) PRNG() *prng.Generator { return e.prng }

// Saves returns the save store.
func (e *Engine) Saves() *savestore.Store { return e.saves }

// Session returns the session snapshot manager.
func (e *Engine) Session() *session.Manager { return e.session }

// ============================================================================
// History
// ============================================================================

// Create records a new moment titled title and returns the history length.
func (e *Engine) Create(title string) (int, error) {
	return e.machine.Create(title)
}

// Backward moves one moment back.
func (e *Engine) Backward() bool { return e.machine.Backward() }

// Forward moves one moment forward.
func (e *Engine) Forward() bool { return e.machine.Forward() }

// GoTo moves to index.
func (e *Engine) GoTo(index int) bool { return e.machine.GoTo(index) }

// ============================================================================
// Saves
// ============================================================================

// Save writes the history to slot and waits for the outcome.
func (e *Engine) Save(ctx context.Context, slot int, title string, metadata domain.Metadata) (savestore.Status, error) {
	return e.saves.SaveState(ctx, slot, title, metadata).Wait(ctx)
}

// Autosave writes the history to the autosave slot.
func (e *Engine) Autosave(ctx context.Context) (savestore.Status, error) {
	return e.Save(ctx, domain.AutosaveSlot, "", domain.Metadata{})
}

// Load replaces the history with the one saved in slot.
func (e *Engine) Load(ctx context.Context, slot int) error {
	return e.saves.LoadState(ctx, slot)
}

// Continue loads the most recent save. It reports false when there is
// none.
func (e *Engine) Continue(ctx context.Context) (int, bool, error) {
	details, err := e.saves.GetDetails(ctx)
	if err != nil {
		return 0, false, err
	}
	latest, ok := savestore.MostRecent(details)
	if !ok {
		return 0, false, nil
	}
	if err := e.Load(ctx, latest.Slot); err != nil {
		return latest.Slot, false, err
	}
	return latest.Slot, true, nil
}

// Delete removes slot and waits for the outcome.
func (e *Engine) Delete(ctx context.Context, slot int) (savestore.Status, error) {
	return e.saves.Delete(ctx, slot).Wait(ctx)
}

// Clear removes every save and waits for the outcome.
func (e *Engine) Clear(ctx context.Context) (savestore.Status, error) {
	return e.saves.Clear(ctx).Wait(ctx)
}

// Details lists the saves.
func (e *Engine) Details(ctx context.Context) ([]domain.DetailsRecord, error) {
	return e.saves.GetDetails(ctx)
}

// ============================================================================
// Settings and session
// ============================================================================

// Settings returns the current settings.
func (e *Engine) Settings() domain.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// UpdateSettings applies fn to the settings, persists them and hands them
// to the save store and session manager.
func (e *Engine) UpdateSettings(ctx context.Context, fn func(*domain.Settings)) (domain.Settings, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.current
	fn(&next)
	if err := e.settings.Save(ctx, next); err != nil {
		return e.current, err
	}
	e.current = next
	e.saves.SetSettings(next)
	e.session.SetUseDelta(next.UseDelta)
	return next, nil
}

// RestoreSession restores the last session snapshot. It reports false
// when there is none.
func (e *Engine) RestoreSession(ctx context.Context) (bool, error) {
	return e.session.Restore(ctx)
}

// Close writes a final session snapshot and closes the save store.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.unsubscribe()
	e.mu.Unlock()

	e.session.Stop()
	if e.machine.Len() > 0 {
		if _, err := e.session.Write(ctx, e.depth); err != nil {
			e.logger.Warn("engine: final session snapshot failed", "error", err)
		}
	}
	return e.saves.Close()
}
