package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/storyline-go/internal/core/domain"
	"github.com/yndnr/storyline-go/internal/core/history"
	"github.com/yndnr/storyline-go/internal/storage/kvstore"
	"github.com/yndnr/storyline-go/internal/telemetry/metric"
)

// Defaults.
const (
	DefaultKey             = "storyline.session"
	DefaultDepth           = -1
	DefaultPersistInterval = time.Second
)

// Config configures a Manager.
type Config struct {
	// Store is the transient store. Required.
	Store kvstore.Store

	// Key is the store key of the snapshot.
	Key string

	// Depth is the retained depth used by Persist: negative keeps the
	// whole history and 0 disables snapshotting.
	Depth int

	// UseDelta delta-encodes the stored history.
	UseDelta bool

	// PersistInterval is the minimum spacing between Persist writes.
	// Zero means DefaultPersistInterval; negative disables throttling.
	PersistInterval time.Duration

	Logger  *slog.Logger
	Metrics *metric.Registry
}

// Manager snapshots a history machine into the transient store.
type Manager struct {
	machine  *history.Machine
	store    kvstore.Store
	key      string
	depth    int
	useDelta atomic.Bool
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *metric.Registry

	trailMu  sync.Mutex
	trail    *time.Timer
	stopped  bool
	trailing sync.WaitGroup
}

// New creates a Manager for machine.
func New(machine *history.Machine, cfg Config) *Manager {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.PersistInterval == 0 {
		cfg.PersistInterval = DefaultPersistInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.PersistInterval > 0 {
		limit = rate.Every(cfg.PersistInterval)
	}

	m := &Manager{
		machine: machine,
		store:   cfg.Store,
		key:     cfg.Key,
		depth:   cfg.Depth,
		limiter: rate.NewLimiter(limit, 1),
		logger:  cfg.Logger.With("component", "session"),
		metrics: cfg.Metrics,
	}
	m.useDelta.Store(cfg.UseDelta)
	return m
}

// SetUseDelta switches delta encoding for later writes.
func (m *Manager) SetUseDelta(on bool) {
	m.useDelta.Store(on)
}

// Marshal captures the history retained at depth. It returns nil when
// depth is 0 or the history is empty.
func (m *Manager) Marshal(depth int) (*domain.Snapshot, error) {
	if depth == 0 || m.machine.Len() == 0 {
		return nil, nil
	}
	return m.machine.Marshal(depth, m.useDelta.Load())
}

// Write stores the history retained at depth. When the store reports its
// quota exceeded, the depth is reduced and the write retried until it fits.
// It reports whether a snapshot was stored; after every depth failed it
// returns false and an error matching domain.ErrQuotaExceeded.
func (m *Manager) Write(ctx context.Context, depth int) (bool, error) {
	n := m.machine.Len()
	if depth == 0 || n == 0 {
		return false, nil
	}
	if depth < 0 || depth > n {
		depth = n
	}

	retries := 0
	for depth > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		snap, err := m.machine.Marshal(depth, m.useDelta.Load())
		if err != nil {
			return false, err
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return false, fmt.Errorf("session: encode snapshot: %w", err)
		}

		err = m.store.Set(ctx, m.key, data)
		if err == nil {
			if retries > 0 {
				m.logger.Info("session: snapshot stored after shrinking", "depth", depth, "retries", retries)
			}
			m.metrics.ObserveSessionWrite(true, retries, len(data))
			return true, nil
		}
		if !errors.Is(err, domain.ErrQuotaExceeded) {
			m.metrics.ObserveSessionWrite(false, retries, 0)
			return false, fmt.Errorf("session: store snapshot: %w", err)
		}

		retries++
		depth -= max(1, depth/4)
		m.logger.Debug("session: quota exceeded, shrinking", "next_depth", depth, "bytes", len(data))
	}

	m.metrics.ObserveSessionWrite(false, retries, 0)
	return false, domain.ErrQuotaExceeded.WithDetails(
		fmt.Sprintf("session snapshot does not fit after %d attempts", retries))
}

// Unmarshal restores snap into the machine.
func (m *Manager) Unmarshal(snap *domain.Snapshot) error {
	return m.machine.Unmarshal(snap)
}

// Restore loads the stored snapshot into the machine. It reports false
// without error when nothing is stored.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	data, err := m.store.Get(ctx, m.key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session: load snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return false, domain.ErrSnapshotInvalid.WithDetails("session snapshot").WithCause(err)
	}
	if err := m.machine.Unmarshal(&snap); err != nil {
		return false, err
	}
	m.logger.Debug("session: restored", "length", m.machine.Len(), "index", m.machine.Index())
	return true, nil
}

// Persist writes the configured depth unless a write happened within the
// persist interval. A skipped write reports false without error and
// schedules one trailing write for when the interval has passed, so the
// last change of a burst is stored.
func (m *Manager) Persist(ctx context.Context) (bool, error) {
	if m.depth == 0 {
		return false, nil
	}
	if !m.limiter.Allow() {
		m.scheduleTrailing()
		return false, nil
	}
	return m.Write(ctx, m.depth)
}

// scheduleTrailing reserves the next limiter token for a deferred write.
// At most one trailing write is pending.
func (m *Manager) scheduleTrailing() {
	m.trailMu.Lock()
	defer m.trailMu.Unlock()
	if m.stopped || m.trail != nil {
		return
	}

	delay := m.limiter.Reserve().Delay()
	m.trailing.Add(1)
	m.trail = time.AfterFunc(delay, func() {
		defer m.trailing.Done()
		m.trailMu.Lock()
		m.trail = nil
		stopped := m.stopped
		m.trailMu.Unlock()
		if stopped {
			return
		}
		if _, err := m.Write(context.Background(), m.depth); err != nil {
			m.logger.Warn("session: trailing snapshot failed", "error", err)
		}
	})
}

// Pending reports whether a trailing write is scheduled.
func (m *Manager) Pending() bool {
	m.trailMu.Lock()
	defer m.trailMu.Unlock()
	return m.trail != nil
}

// Stop cancels a pending trailing write and waits for one in progress.
// Later Persist calls no longer schedule trailing writes.
func (m *Manager) Stop() {
	m.trailMu.Lock()
	m.stopped = true
	if m.trail != nil && m.trail.Stop() {
		m.trail = nil
		m.trailing.Done()
	}
	m.trailMu.Unlock()
	m.trailing.Wait()
}

// Clear removes the stored snapshot.
func (m *Manager) Clear(ctx context.Context) error {
	return m.store.Delete(ctx, m.key)
}
