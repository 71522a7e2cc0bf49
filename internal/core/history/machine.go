package history

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/yndnr/storyline-go/internal/core/domain"
	"github.com/yndnr/storyline-go/pkg/delta"
	"github.com/yndnr/storyline-go/pkg/prng"
)

// Default limits.
const (
	DefaultMaxStates  = 100
	DefaultMaxExpired = 100
)

// EventKind identifies what changed in a Machine.
type EventKind int

const (
	EventCreate EventKind = iota + 1
	EventNavigate
	EventRestore
	EventReset
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "create"
	case EventNavigate:
		return "navigate"
	case EventRestore:
		return "restore"
	case EventReset:
		return "reset"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered to observers after the history changed.
type Event struct {
	Kind   EventKind
	Index  int
	Length int
	Title  string
}

// Config configures a Machine.
type Config struct {
	// MaxStates caps the stack length. <= 0 means unbounded.
	MaxStates int

	// MaxExpired caps the expired title list. <= 0 disables it.
	MaxExpired int

	// Differ is used for delta compression. Defaults to delta.New().
	Differ delta.Differ

	// PRNG, when set, is stamped into every created moment and rewound on
	// activation.
	PRNG *prng.Generator

	Logger *slog.Logger
}

// DefaultConfig returns the default machine configuration.
func DefaultConfig() Config {
	return Config{
		MaxStates:  DefaultMaxStates,
		MaxExpired: DefaultMaxExpired,
	}
}

// Machine is the moment/history state machine.
//
// The working copy returned by Variables is owned by the caller's
// goroutine; all other methods are safe for concurrent use.
type Machine struct {
	mu sync.Mutex

	maxStates  int
	maxExpired int
	differ     delta.Differ
	prng       *prng.Generator
	logger     *slog.Logger

	moments []domain.Moment
	index   int
	expired []string
	active  domain.Moment
	saveID  string

	obsMu     sync.Mutex
	observers map[int]func(Event)
	nextObs   int
}

// New creates an empty Machine.
func New(cfg Config) *Machine {
	if cfg.Differ == nil {
		cfg.Differ = delta.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Machine{
		maxStates:  cfg.MaxStates,
		maxExpired: cfg.MaxExpired,
		differ:     cfg.Differ,
		prng:       cfg.PRNG,
		logger:     cfg.Logger,
		index:      -1,
		active:     domain.Moment{Variables: make(map[string]any)},
		observers:  make(map[int]func(Event)),
	}
}

// Subscribe registers fn to be called after every history change and
// returns a function removing it. Observers run on the goroutine that
// made the change, outside the machine lock.
func (m *Machine) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

func (m *Machine) notify(ev Event) {
	m.obsMu.Lock()
	fns := make([]func(Event), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.obsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// PRNG returns the configured generator, or nil.
func (m *Machine) PRNG() *prng.Generator {
	return m.prng
}

// Differ returns the differ used for delta compression.
func (m *Machine) Differ() delta.Differ {
	return m.differ
}

// Create pushes a new moment holding a copy of the working variables and
// makes it the present. Future moments above the cursor are discarded.
// It returns the new history length.
func (m *Machine) Create(title string) (int, error) {
	m.mu.Lock()

	moment, err := domain.NewMoment(title, m.active.Variables)
	if err != nil {
		m.mu.Unlock()
		return 0, err
	}

	if m.index+1 < len(m.moments) {
		m.moments = m.moments[:m.index+1]
	}
	if m.prng != nil {
		moment = moment.WithPull(m.prng.Pull())
	}
	m.moments = append(m.moments, moment)

	if m.maxStates > 0 && len(m.moments) > m.maxStates {
		evicted := len(m.moments) - m.maxStates
		for _, old := range m.moments[:evicted] {
			m.pushExpired(old.Title)
		}
		m.moments = append([]domain.Moment(nil), m.moments[evicted:]...)
	}

	m.index = len(m.moments) - 1
	if err := m.activateLocked(m.index); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	ev := Event{Kind: EventCreate, Index: m.index, Length: len(m.moments), Title: title}
	m.mu.Unlock()

	m.notify(ev)
	return ev.Length, nil
}

// GoTo moves the cursor to index. It returns false, changing nothing, when
// index is out of range or already active.
func (m *Machine) GoTo(index int) bool {
	m.mu.Lock()
	if index < 0 || index >= len(m.moments) || index == m.index {
		m.mu.Unlock()
		return false
	}
	if err := m.activateLocked(index); err != nil {
		m.mu.Unlock()
		m.logger.Error("history: activate failed", "index", index, "error", err)
		return false
	}
	m.index = index
	ev := Event{Kind: EventNavigate, Index: index, Length: len(m.moments), Title: m.moments[index].Title}
	m.mu.Unlock()

	m.notify(ev)
	return true
}

// Go moves the cursor by offset relative to the present.
func (m *Machine) Go(offset int) bool {
	if offset == 0 {
		return false
	}
	m.mu.Lock()
	target := m.index + offset
	m.mu.Unlock()
	return m.GoTo(target)
}

// Backward moves one moment into the past.
func (m *Machine) Backward() bool { return m.Go(-1) }

// Forward moves one moment into the future.
func (m *Machine) Forward() bool { return m.Go(1) }

// ActivateIndex makes the moment at index the present.
func (m *Machine) ActivateIndex(index int) error {
	m.mu.Lock()
	if len(m.moments) == 0 {
		m.mu.Unlock()
		return domain.ErrHistoryEmpty
	}
	if index < 0 || index >= len(m.moments) {
		m.mu.Unlock()
		return domain.ErrIndexOutOfRange.WithDetails(fmt.Sprintf("index %d, length %d", index, len(m.moments)))
	}
	if err := m.activateLocked(index); err != nil {
		m.mu.Unlock()
		return err
	}
	m.index = index
	ev := Event{Kind: EventNavigate, Index: index, Length: len(m.moments), Title: m.moments[index].Title}
	m.mu.Unlock()

	m.notify(ev)
	return nil
}

// ActivateMoment loads a literal moment into the working copy without
// touching the stack. The PRNG is rewound to the moment's pull.
func (m *Machine) ActivateMoment(moment *domain.Moment) error {
	if moment == nil {
		return domain.ErrNilMoment
	}
	m.mu.Lock()
	if err := m.activate(*moment); err != nil {
		m.mu.Unlock()
		return err
	}
	ev := Event{Kind: EventRestore, Index: m.index, Length: len(m.moments), Title: moment.Title}
	m.mu.Unlock()

	m.notify(ev)
	return nil
}

func (m *Machine) activateLocked(index int) error {
	return m.activate(m.moments[index])
}

func (m *Machine) activate(moment domain.Moment) error {
	c, err := moment.Clone()
	if err != nil {
		return err
	}
	m.active = c
	if m.prng != nil {
		if pull, ok := moment.PullValue(); ok {
			m.prng.SetPull(pull)
		}
	}
	return nil
}

func (m *Machine) pushExpired(title string) {
	if m.maxExpired <= 0 {
		return
	}
	m.expired = append(m.expired, title)
	if over := len(m.expired) - m.maxExpired; over > 0 {
		m.expired = append([]string(nil), m.expired[over:]...)
	}
}

// Reset empties the history and the working copy.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.moments = nil
	m.index = -1
	m.expired = nil
	m.saveID = ""
	m.active = domain.Moment{Variables: make(map[string]any)}
	if m.prng != nil {
		m.prng.SetPull(0)
	}
	m.mu.Unlock()

	m.notify(Event{Kind: EventReset, Index: -1})
}

// Variables returns the live working variables. Changes are captured by
// the next Create.
func (m *Machine) Variables() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active.Variables
}

// SetVariable sets a working variable.
//
// Values are stored as JSON: after a save, session snapshot or delta round
// trip, numbers come back as float64, maps as map[string]any and slices as
// []any. Callers that need exact types should store JSON-native values.
func (m *Machine) SetVariable(name string, value any) {
	m.mu.Lock()
	m.active.Variables[name] = value
	m.mu.Unlock()
}

// Variable returns a working variable.
func (m *Machine) Variable(name string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.active.Variables[name]
	return v, ok
}

// Len returns the history length.
func (m *Machine) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.moments)
}

// Index returns the active index, or -1 when empty.
func (m *Machine) Index() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Current returns a copy of the active moment.
func (m *Machine) Current() (domain.Moment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index < 0 {
		return domain.Moment{}, false
	}
	c, err := m.moments[m.index].Clone()
	if err != nil {
		return domain.Moment{}, false
	}
	return c, true
}

// Top returns a copy of the most recent moment.
func (m *Machine) Top() (domain.Moment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.moments) == 0 {
		return domain.Moment{}, false
	}
	c, err := m.moments[len(m.moments)-1].Clone()
	if err != nil {
		return domain.Moment{}, false
	}
	return c, true
}

// Moments returns a deep copy of the history.
func (m *Machine) Moments() ([]domain.Moment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.CloneMoments(m.moments)
}

// Titles returns the history titles in order.
func (m *Machine) Titles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.moments))
	for i, mo := range m.moments {
		out[i] = mo.Title
	}
	return out
}

// Expired returns a copy of the expired title list.
func (m *Machine) Expired() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.expired...)
}

// VisitedCount counts how often title occurs in the past and present,
// expired moments included.
func (m *Machine) VisitedCount(title string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.expired {
		if t == title {
			n++
		}
	}
	for i := 0; i <= m.index && i < len(m.moments); i++ {
		if m.moments[i].Title == title {
			n++
		}
	}
	return n
}

// HasVisited reports whether title occurs in the past or present.
func (m *Machine) HasVisited(title string) bool {
	return m.VisitedCount(title) > 0
}

// SaveID returns the save-session identifier of the live history.
func (m *Machine) SaveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveID
}

// SetSaveID replaces the save-session identifier.
func (m *Machine) SetSaveID(id string) {
	m.mu.Lock()
	m.saveID = id
	m.mu.Unlock()
}

// EnsureSaveID assigns a fresh save-session identifier if none is set and
// returns the current one.
func (m *Machine) EnsureSaveID() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveID != "" {
		return m.saveID, nil
	}
	id, err := domain.GenerateSaveID()
	if err != nil {
		return "", err
	}
	m.saveID = id
	return id, nil
}
