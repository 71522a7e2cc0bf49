package objstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
)

// CommitHook runs before a read-write commit is applied. A non-nil error
// aborts the transaction. Hooks may block to hold a commit in flight.
type CommitHook func(tables []string) error

// Memory is an in-process Opener. Databases persist across Open calls on
// the same Memory, so reopening a name sees earlier commits.
//
// Concurrent read-write transactions over the same table are not
// isolated: the last commit wins.
type Memory struct {
	mu      sync.Mutex
	dbs     map[string]*memData
	openErr error
	hook    CommitHook
}

type memData struct {
	version int
	tables  map[string]map[int][]byte
}

func (d *memData) clone() *memData {
	out := &memData{version: d.version, tables: make(map[string]map[int][]byte, len(d.tables))}
	for name, rows := range d.tables {
		out.tables[name] = cloneRows(rows)
	}
	return out
}

func cloneRows(rows map[int][]byte) map[int][]byte {
	out := make(map[int][]byte, len(rows))
	for k, v := range rows {
		out[k] = v
	}
	return out
}

// NewMemory creates an empty in-memory opener.
func NewMemory() *Memory {
	return &Memory{dbs: make(map[string]*memData)}
}

// FailOpen makes every later Open fail with err. A nil err clears it.
func (m *Memory) FailOpen(err error) {
	m.mu.Lock()
	m.openErr = err
	m.mu.Unlock()
}

// SetCommitHook installs fn as the commit hook.
func (m *Memory) SetCommitHook(fn CommitHook) {
	m.mu.Lock()
	m.hook = fn
	m.mu.Unlock()
}

// Open implements Opener.
func (m *Memory) Open(ctx context.Context, name string, version int, upgrade UpgradeFunc) (DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openErr != nil {
		return nil, m.openErr
	}

	d, ok := m.dbs[name]
	if !ok {
		d = &memData{tables: make(map[string]map[int][]byte)}
	}
	if version < d.version {
		return nil, fmt.Errorf("%w: %d < %d", ErrVersion, version, d.version)
	}
	if version > d.version {
		staged := d.clone()
		if upgrade != nil {
			if err := upgrade(memSchema{staged}, d.version, version); err != nil {
				return nil, fmt.Errorf("objstore: upgrade %q to v%d: %w", name, version, err)
			}
		}
		staged.version = version
		d = staged
	}
	m.dbs[name] = d

	return &memDB{mem: m, name: name, version: version}, nil
}

type memSchema struct{ d *memData }

func (s memSchema) CreateTable(name string) error {
	if _, ok := s.d.tables[name]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	s.d.tables[name] = make(map[int][]byte)
	return nil
}

func (s memSchema) DeleteTable(name string) error {
	if _, ok := s.d.tables[name]; !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	delete(s.d.tables, name)
	return nil
}

func (s memSchema) Tables() []string {
	return sortedNames(s.d.tables)
}

func sortedNames(tables map[string]map[int][]byte) []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type memDB struct {
	mem     *Memory
	name    string
	version int
	closed  atomic.Bool
}

func (db *memDB) Name() string { return db.name }

func (db *memDB) Version() int { return db.version }

func (db *memDB) Tables() []string {
	db.mem.mu.Lock()
	defer db.mem.mu.Unlock()
	return sortedNames(db.mem.dbs[db.name].tables)
}

func (db *memDB) Transaction(tables []string, mode Mode) (Tx, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	db.mem.mu.Lock()
	defer db.mem.mu.Unlock()

	d := db.mem.dbs[db.name]
	staged := make(map[string]map[int][]byte, len(tables))
	for _, name := range tables {
		rows, ok := d.tables[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
		}
		staged[name] = cloneRows(rows)
	}
	return &memTx{db: db, mode: mode, tables: slices.Clone(tables), staged: staged}, nil
}

func (db *memDB) Close() error {
	db.closed.Store(true)
	return nil
}

type memTx struct {
	db     *memDB
	mode   Mode
	tables []string

	mu     sync.Mutex
	staged map[string]map[int][]byte
	done   bool
}

func (tx *memTx) Table(name string) (Table, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return nil, ErrTxDone
	}
	if _, ok := tx.staged[name]; !ok {
		return nil, fmt.Errorf("%w: %s not in transaction scope", ErrTableNotFound, name)
	}
	return &memTable{tx: tx, name: name}, nil
}

func (tx *memTx) Commit() *Completion {
	tx.mu.Lock()
	if tx.done {
		tx.mu.Unlock()
		return Completed(ErrTxDone)
	}
	tx.done = true
	staged := tx.staged
	tx.mu.Unlock()

	if tx.mode == ReadOnly {
		return Completed(nil)
	}

	tx.db.mem.mu.Lock()
	hook := tx.db.mem.hook
	tx.db.mem.mu.Unlock()

	c := NewCompletion()
	go func() {
		if hook != nil {
			if err := hook(tx.tables); err != nil {
				c.Resolve(fmt.Errorf("%w: %v", ErrAborted, err))
				return
			}
		}
		if tx.db.closed.Load() {
			c.Resolve(ErrClosed)
			return
		}

		mem := tx.db.mem
		mem.mu.Lock()
		d := mem.dbs[tx.db.name]
		for name, rows := range staged {
			d.tables[name] = rows
		}
		mem.mu.Unlock()
		c.Resolve(nil)
	}()
	return c
}

func (tx *memTx) Abort() {
	tx.mu.Lock()
	tx.done = true
	tx.staged = nil
	tx.mu.Unlock()
}

type memTable struct {
	tx   *memTx
	name string
}

func (t *memTable) rows(write bool) (map[int][]byte, error) {
	if t.tx.done {
		return nil, ErrTxDone
	}
	if write && t.tx.mode != ReadWrite {
		return nil, ErrReadOnly
	}
	return t.tx.staged[t.name], nil
}

func (t *memTable) Get(key int) ([]byte, error) {
	t.tx.mu.Lock()
	defer t.tx.mu.Unlock()
	rows, err := t.rows(false)
	if err != nil {
		return nil, err
	}
	v, ok := rows[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

func (t *memTable) Add(key int, value []byte) error {
	t.tx.mu.Lock()
	defer t.tx.mu.Unlock()
	rows, err := t.rows(true)
	if err != nil {
		return err
	}
	if _, ok := rows[key]; ok {
		return fmt.Errorf("%w: %s[%d]", ErrKeyExists, t.name, key)
	}
	rows[key] = slices.Clone(value)
	return nil
}

func (t *memTable) Delete(key int) error {
	t.tx.mu.Lock()
	defer t.tx.mu.Unlock()
	rows, err := t.rows(true)
	if err != nil {
		return err
	}
	delete(rows, key)
	return nil
}

func (t *memTable) Clear() error {
	t.tx.mu.Lock()
	defer t.tx.mu.Unlock()
	if _, err := t.rows(true); err != nil {
		return err
	}
	t.tx.staged[t.name] = make(map[int][]byte)
	return nil
}

func (t *memTable) GetAll() ([]Entry, error) {
	t.tx.mu.Lock()
	defer t.tx.mu.Unlock()
	rows, err := t.rows(false)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for k, v := range rows {
		out = append(out, Entry{Key: k, Value: slices.Clone(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
