package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/storyline-go/internal/storage/objstore"
)

// Key layout inside one database:
//
//	m/version          -> u32 schema version
//	m/table/<name>     -> table marker
//	t/<name>/<slot>    -> row; slot is a sign-flipped big-endian u64
const (
	versionKey   = "m/version"
	tablePrefix  = "m/table/"
	rowPrefix    = "t/"
	rowSeparator = "/"
)

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// Dir is the parent directory; each database lives in Dir/<name>.
	Dir string

	// InMemory keeps all data in memory. Dir is ignored.
	InMemory bool

	// GCInterval is the interval between automatic value-log GC runs.
	// Default: 10m
	GCInterval string

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 16MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 64MB
	ValueLogFileSize int64

	NumMemtables            int
	NumLevelZeroTables      int
	NumLevelZeroTablesStall int

	// SyncWrites fsyncs after each commit.
	// Default: true (save slots must survive a crash)
	SyncWrites bool

	// DetectConflicts enables transaction conflict detection.
	// Default: true
	DetectConflicts bool
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:                     dir,
		GCInterval:              "10m",
		GCThreshold:             0.5,
		CacheSize:               16 << 20,
		ValueLogFileSize:        64 << 20,
		NumMemtables:            2,
		NumLevelZeroTables:      5,
		NumLevelZeroTablesStall: 10,
		SyncWrites:              true,
		DetectConflicts:         true,
	}
}

// BadgerOpener implements objstore.Opener on Badger v3.
//
// Open returns a shared handle per database name; the underlying Badger
// instance is closed when the last handle is closed.
type BadgerOpener struct {
	cfg    BadgerConfig
	logger *slog.Logger

	mu  sync.Mutex
	dbs map[string]*badgerShared

	// Prometheus metrics
	metricsLSMSize      *prometheus.GaugeVec
	metricsValueLogSize *prometheus.GaugeVec
	metricsGCRuns       *prometheus.CounterVec
	metricsCommits      *prometheus.CounterVec
}

type badgerShared struct {
	db      *badger.DB
	refs    int
	lastGC  atomic.Int64 // Unix milliseconds
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped sync.Once
}

// NewBadgerOpener creates a Badger-backed opener.
func NewBadgerOpener(cfg BadgerConfig, logger *slog.Logger) (*BadgerOpener, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerOpener{
		cfg:    cfg,
		logger: logger,
		dbs:    make(map[string]*badgerShared),
	}, nil
}

// RegisterMetrics registers Badger metrics with Prometheus.
// It must be called before the first Open.
func (o *BadgerOpener) RegisterMetrics(registry prometheus.Registerer) *BadgerOpener {
	o.metricsLSMSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "storyline",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	}, []string{"db"})
	o.metricsValueLogSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "storyline",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	}, []string{"db"})
	o.metricsGCRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyline",
		Subsystem: "badger",
		Name:      "gc_runs_total",
		Help:      "Value log GC passes that rewrote a file",
	}, []string{"db"})
	o.metricsCommits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyline",
		Subsystem: "badger",
		Name:      "commits_total",
		Help:      "Read-write transaction commits by result",
	}, []string{"db", "result"})

	registry.MustRegister(o.metricsLSMSize, o.metricsValueLogSize, o.metricsGCRuns, o.metricsCommits)
	return o
}

// Open implements objstore.Opener.
func (o *BadgerOpener) Open(ctx context.Context, name string, version int, upgrade objstore.UpgradeFunc) (objstore.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("badger: invalid database name %q", name)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	shared, ok := o.dbs[name]
	if !ok {
		db, err := o.openBadger(name)
		if err != nil {
			return nil, err
		}
		shared = &badgerShared{db: db, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
		if o.cfg.InMemory {
			close(shared.doneCh)
		} else {
			go o.gcLoop(name, shared)
		}
	}

	stored, err := readVersion(shared.db)
	if err != nil {
		o.release(name, shared, ok)
		return nil, err
	}
	if version < stored {
		o.release(name, shared, ok)
		return nil, fmt.Errorf("%w: %d < %d", objstore.ErrVersion, version, stored)
	}
	if version > stored {
		if err := o.upgrade(shared.db, stored, version, upgrade); err != nil {
			o.release(name, shared, ok)
			return nil, fmt.Errorf("badger: upgrade %q to v%d: %w", name, version, err)
		}
		o.logger.Info("badger schema upgraded", "db", name, "from", stored, "to", version)
	}

	shared.refs++
	o.dbs[name] = shared
	return &BadgerDB{opener: o, name: name, version: version, shared: shared}, nil
}

func (o *BadgerOpener) openBadger(name string) (*badger.DB, error) {
	var opts badger.Options
	if o.cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Join(o.cfg.Dir, name))
	}
	opts.Logger = &badgerLogger{logger: o.logger.With("db", name)}
	if o.cfg.CacheSize > 0 {
		opts.BlockCacheSize = o.cfg.CacheSize
	}
	if o.cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = o.cfg.ValueLogFileSize
	}
	if o.cfg.NumMemtables > 0 {
		opts.NumMemtables = o.cfg.NumMemtables
	}
	if o.cfg.NumLevelZeroTables > 0 {
		opts.NumLevelZeroTables = o.cfg.NumLevelZeroTables
	}
	if o.cfg.NumLevelZeroTablesStall > 0 {
		opts.NumLevelZeroTablesStall = o.cfg.NumLevelZeroTablesStall
	}
	opts.SyncWrites = o.cfg.SyncWrites
	opts.DetectConflicts = o.cfg.DetectConflicts

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}
	o.logger.Info("badger db opened", "db", name, "in_memory", o.cfg.InMemory)
	return db, nil
}

// release closes a freshly opened instance that never got a handle.
func (o *BadgerOpener) release(name string, shared *badgerShared, existing bool) {
	if existing {
		return
	}
	o.stop(shared)
	if err := shared.db.Close(); err != nil {
		o.logger.Error("badger close failed", "db", name, "error", err)
	}
}

func (o *BadgerOpener) stop(shared *badgerShared) {
	shared.stopped.Do(func() { close(shared.stopCh) })
	<-shared.doneCh
}

func readVersion(db *badger.DB) (int, error) {
	var version int
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(versionKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			if len(v) != 4 {
				return fmt.Errorf("badger: corrupt schema version")
			}
			version = int(binary.BigEndian.Uint32(v))
			return nil
		})
	})
	return version, err
}

func (o *BadgerOpener) upgrade(db *badger.DB, from, to int, fn objstore.UpgradeFunc) error {
	return db.Update(func(txn *badger.Txn) error {
		if fn != nil {
			if err := fn(&badgerSchema{txn: txn}, from, to); err != nil {
				return err
			}
		}
		var v [4]byte
		binary.BigEndian.PutUint32(v[:], uint32(to))
		return txn.Set([]byte(versionKey), v[:])
	})
}

type badgerSchema struct {
	txn *badger.Txn
}

func (s *badgerSchema) CreateTable(name string) error {
	if err := validTableName(name); err != nil {
		return err
	}
	_, err := s.txn.Get([]byte(tablePrefix + name))
	if err == nil {
		return fmt.Errorf("%w: %s", objstore.ErrTableExists, name)
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return s.txn.Set([]byte(tablePrefix+name), []byte{1})
}

func (s *badgerSchema) DeleteTable(name string) error {
	if _, err := s.txn.Get([]byte(tablePrefix + name)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", objstore.ErrTableNotFound, name)
		}
		return err
	}
	if err := deletePrefix(s.txn, rowKeyPrefix(name)); err != nil {
		return err
	}
	return s.txn.Delete([]byte(tablePrefix + name))
}

func (s *badgerSchema) Tables() []string {
	return listTables(s.txn)
}

func validTableName(name string) error {
	if name == "" || strings.Contains(name, rowSeparator) {
		return fmt.Errorf("badger: invalid table name %q", name)
	}
	return nil
}

func listTables(txn *badger.Txn) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(tablePrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var names []string
	for it.Rewind(); it.Valid(); it.Next() {
		names = append(names, strings.TrimPrefix(string(it.Item().Key()), tablePrefix))
	}
	sort.Strings(names)
	return names
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func rowKeyPrefix(table string) []byte {
	return []byte(rowPrefix + table + rowSeparator)
}

func rowKey(table string, slot int) []byte {
	p := rowKeyPrefix(table)
	key := make([]byte, len(p)+8)
	copy(key, p)
	binary.BigEndian.PutUint64(key[len(p):], uint64(slot)^(1<<63))
	return key
}

func slotFromKey(key []byte) int {
	return int(binary.BigEndian.Uint64(key[len(key)-8:]) ^ (1 << 63))
}

// gcLoop runs periodic value-log garbage collection.
func (o *BadgerOpener) gcLoop(name string, shared *badgerShared) {
	defer close(shared.doneCh)

	interval, err := time.ParseDuration(o.cfg.GCInterval)
	if err != nil || interval <= 0 {
		o.logger.Error("invalid gc_interval, using default 10m", "error", err)
		interval = 10 * time.Minute
	}
	threshold := o.cfg.GCThreshold
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.5
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runs := 0
			for {
				if err := shared.db.RunValueLogGC(threshold); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						o.logger.Error("auto gc failed", "db", name, "error", err)
					}
					break
				}
				runs++
			}
			shared.lastGC.Store(time.Now().UnixMilli())
			if o.metricsGCRuns != nil && runs > 0 {
				o.metricsGCRuns.WithLabelValues(name).Add(float64(runs))
			}
			o.updateSizeMetrics(name, shared.db)

		case <-shared.stopCh:
			return
		}
	}
}

func (o *BadgerOpener) updateSizeMetrics(name string, db *badger.DB) {
	if o.metricsLSMSize == nil {
		return
	}
	lsm, vlog := db.Size()
	o.metricsLSMSize.WithLabelValues(name).Set(float64(lsm))
	o.metricsValueLogSize.WithLabelValues(name).Set(float64(vlog))
}

func (o *BadgerOpener) observeCommit(name string, err error) {
	if o.metricsCommits == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.metricsCommits.WithLabelValues(name, result).Inc()
}

// BadgerDB is an open database handle.
type BadgerDB struct {
	opener  *BadgerOpener
	name    string
	version int
	shared  *badgerShared
	closed  atomic.Bool
}

// Name implements objstore.DB.
func (d *BadgerDB) Name() string { return d.name }

// Version implements objstore.DB.
func (d *BadgerDB) Version() int { return d.version }

// Tables implements objstore.DB.
func (d *BadgerDB) Tables() []string {
	var names []string
	_ = d.shared.db.View(func(txn *badger.Txn) error {
		names = listTables(txn)
		return nil
	})
	return names
}

// Transaction implements objstore.DB.
func (d *BadgerDB) Transaction(tables []string, mode objstore.Mode) (objstore.Tx, error) {
	if d.closed.Load() {
		return nil, objstore.ErrClosed
	}
	txn := d.shared.db.NewTransaction(mode == objstore.ReadWrite)
	for _, name := range tables {
		if _, err := txn.Get([]byte(tablePrefix + name)); err != nil {
			txn.Discard()
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil, fmt.Errorf("%w: %s", objstore.ErrTableNotFound, name)
			}
			return nil, fmt.Errorf("badger: begin transaction: %w", err)
		}
	}
	scope := make(map[string]bool, len(tables))
	for _, name := range tables {
		scope[name] = true
	}
	return &badgerTx{db: d, txn: txn, mode: mode, scope: scope}, nil
}

// Close implements objstore.DB. The Badger instance is closed with the
// last handle.
func (d *BadgerDB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	o := d.opener
	o.mu.Lock()
	defer o.mu.Unlock()

	d.shared.refs--
	if d.shared.refs > 0 {
		return nil
	}
	delete(o.dbs, d.name)
	o.stop(d.shared)
	if err := d.shared.db.Close(); err != nil {
		return fmt.Errorf("badger: close db: %w", err)
	}
	o.logger.Info("badger db closed", "db", d.name)
	return nil
}

type badgerTx struct {
	db    *BadgerDB
	txn   *badger.Txn
	mode  objstore.Mode
	scope map[string]bool

	mu   sync.Mutex
	done bool
}

func (tx *badgerTx) Table(name string) (objstore.Table, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return nil, objstore.ErrTxDone
	}
	if !tx.scope[name] {
		return nil, fmt.Errorf("%w: %s not in transaction scope", objstore.ErrTableNotFound, name)
	}
	return &badgerTable{tx: tx, name: name}, nil
}

func (tx *badgerTx) Commit() *objstore.Completion {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return objstore.Completed(objstore.ErrTxDone)
	}
	tx.done = true

	if tx.mode == objstore.ReadOnly {
		tx.txn.Discard()
		return objstore.Completed(nil)
	}

	c := objstore.NewCompletion()
	tx.txn.CommitWith(func(err error) {
		tx.db.opener.observeCommit(tx.db.name, err)
		if err != nil {
			c.Resolve(fmt.Errorf("%w: %v", objstore.ErrAborted, err))
			return
		}
		c.Resolve(nil)
	})
	return c
}

func (tx *badgerTx) Abort() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return
	}
	tx.done = true
	tx.txn.Discard()
}

type badgerTable struct {
	tx   *badgerTx
	name string
}

func (t *badgerTable) check(write bool) error {
	if t.tx.done {
		return objstore.ErrTxDone
	}
	if write && t.tx.mode != objstore.ReadWrite {
		return objstore.ErrReadOnly
	}
	return nil
}

func (t *badgerTable) Get(key int) ([]byte, error) {
	t.tx.mu.Lock()
	defer t.tx.mu.Unlock()
	if err := t.check(false); err != nil {
		return nil, err
	}
	item, err := t.tx.txn.Get(rowKey(t.name, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, objstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *badgerTable) Add(key int, value []byte) error {
	t.tx.mu.Lock()
	defer t.tx.mu.Unlock()
	if err := t.check(true); err != nil {
		return err
	}
	k := rowKey(t.name, key)
	_, err := t.tx.txn.Get(k)
	if err == nil {
		return fmt.Errorf("%w: %s[%d]", objstore.ErrKeyExists, t.name, key)
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return t.tx.txn.Set(k, append([]byte(nil), value...))
}

func (t *badgerTable) Delete(key int) error {
	t.tx.mu.Lock()
	defer t.tx.mu.Unlock()
	if err := t.check(true); err != nil {
		return err
	}
	return t.tx.txn.Delete(rowKey(t.name, key))
}

func (t *badgerTable) Clear() error {
	t.tx.mu.Lock()
	defer t.tx.mu.Unlock()
	if err := t.check(true); err != nil {
		return err
	}
	return deletePrefix(t.tx.txn, rowKeyPrefix(t.name))
}

func (t *badgerTable) GetAll() ([]objstore.Entry, error) {
	t.tx.mu.Lock()
	defer t.tx.mu.Unlock()
	if err := t.check(false); err != nil {
		return nil, err
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = rowKeyPrefix(t.name)
	it := t.tx.txn.NewIterator(opts)
	defer it.Close()

	var out []objstore.Entry
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		v, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		out = append(out, objstore.Entry{Key: slotFromKey(item.Key()), Value: v})
	}
	return out, nil
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
