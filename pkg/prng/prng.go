// Package prng provides a seeded, peekable pseudo-random number stream.
package prng

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
)

// Seed bounds.
const (
	MinSeed = 0.25
	MaxSeed = 1.0
	// MidSeed is used when a string seed has no usable characters.
	MidSeed = (MinSeed + MaxSeed) / 2

	// MaxPeekDepth bounds Peek and RandomAt lookahead.
	MaxPeekDepth = 100

	// Multiplier is the fixed multiplicative constant mixed into every value.
	Multiplier = 2654435761.0
)

// Limiter is the modulus applied to the mixed product: the square root of
// the largest integer a float64 holds exactly. The product itself can exceed
// 2^53 and is rounded, so values are not exact integer arithmetic. They are
// still fully determined by (seed, pull) because every step is plain IEEE
// float64 math.
var Limiter = math.Floor(math.Sqrt(float64(1<<53 - 1)))

// primes are cycled through by pull index.
var primes = [...]float64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47}

var (
	ErrInvalidSeed  = errors.New("prng: seed must be a number in [0.25, 1]")
	ErrInvalidRange = errors.New("prng: min must not be greater than max")
	ErrPeekDepth    = fmt.Errorf("prng: peek depth must be in [1, %d]", MaxPeekDepth)
	ErrNegativePeek = errors.New("prng: peek offset must not be negative")
	ErrNoValues     = errors.New("prng: either requires at least one value")
)

// State is the persisted form of a generator.
type State struct {
	Seed float64 `json:"seed"`
	Pull uint64  `json:"pull"`
}

// Generator is a deterministic number stream keyed by (seed, pull).
type Generator struct {
	mu   sync.Mutex
	seed float64
	pull uint64
}

// New creates a generator from a numeric seed and an initial pull count.
func New(seed float64, pull uint64) (*Generator, error) {
	if math.IsNaN(seed) || seed < MinSeed || seed > MaxSeed {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidSeed, seed)
	}
	return &Generator{seed: seed, pull: pull}, nil
}

// NewFromString creates a generator whose seed is derived from s.
func NewFromString(s string, pull uint64) *Generator {
	return &Generator{seed: Str2Int(s), pull: pull}
}

// NewDefault creates a generator with a freshly drawn random seed.
func NewDefault() (*Generator, error) {
	seed, err := RandomSeed()
	if err != nil {
		return nil, err
	}
	return &Generator{seed: seed}, nil
}

// RandomSeed draws a seed in [MinSeed, MaxSeed] from crypto/rand.
func RandomSeed() (float64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("prng: read entropy: %w", err)
	}
	u := float64(binary.BigEndian.Uint64(buf[:])>>11) / float64(1<<53)
	return MinSeed + u*(MaxSeed-MinSeed), nil
}

// Str2Int reduces a string to a seed in [MinSeed, MaxSeed].
//
// Only printable ASCII characters (0x20-0x7E) contribute; their average code
// is mapped linearly onto the seed range. Strings without any such
// characters yield MidSeed.
func Str2Int(s string) float64 {
	var sum, n float64
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			continue
		}
		sum += float64(r)
		n++
	}
	if n == 0 {
		return MidSeed
	}
	avg := sum / n
	return MinSeed + (avg-0x20)/(0x7e-0x20)*(MaxSeed-MinSeed)
}

// Seed returns the generator seed.
func (g *Generator) Seed() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seed
}

// Pull returns the number of values drawn so far.
func (g *Generator) Pull() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pull
}

// SetSeed replaces the seed, keeping the current pull.
func (g *Generator) SetSeed(seed float64) error {
	if math.IsNaN(seed) || seed < MinSeed || seed > MaxSeed {
		return fmt.Errorf("%w: got %v", ErrInvalidSeed, seed)
	}
	g.mu.Lock()
	g.seed = seed
	g.mu.Unlock()
	return nil
}

// SetPull repositions the stream.
func (g *Generator) SetPull(pull uint64) {
	g.mu.Lock()
	g.pull = pull
	g.mu.Unlock()
}

// State returns the persisted form of the generator.
func (g *Generator) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{Seed: g.seed, Pull: g.pull}
}

// Random advances the stream by one and returns the new value in (0,1).
func (g *Generator) Random() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pull++
	return value(g.seed, g.pull)
}

// RandomAt returns the value peek positions ahead without advancing.
// A peek of 0 behaves like Random.
func (g *Generator) RandomAt(peek int) (float64, error) {
	if peek < 0 {
		return 0, ErrNegativePeek
	}
	if peek == 0 {
		return g.Random(), nil
	}
	if peek > MaxPeekDepth {
		return 0, fmt.Errorf("%w: got %d", ErrPeekDepth, peek)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return value(g.seed, g.pull+uint64(peek)), nil
}

// Peek returns the next depth values without advancing the stream.
func (g *Generator) Peek(depth int) ([]float64, error) {
	if depth < 1 || depth > MaxPeekDepth {
		return nil, fmt.Errorf("%w: got %d", ErrPeekDepth, depth)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]float64, depth)
	for i := range out {
		out[i] = value(g.seed, g.pull+uint64(i+1))
	}
	return out, nil
}

// Int returns an integer in [min, max], advancing the stream.
func (g *Generator) Int(min, max int) (int, error) {
	return g.IntAt(min, max, 0)
}

// IntN returns an integer in [0, max], advancing the stream.
func (g *Generator) IntN(max int) (int, error) {
	return g.IntAt(0, max, 0)
}

// IntAt returns an integer in [min, max] for the given peek offset.
func (g *Generator) IntAt(min, max, peek int) (int, error) {
	if min > max {
		return 0, fmt.Errorf("%w: min=%d max=%d", ErrInvalidRange, min, max)
	}
	r, err := g.RandomAt(peek)
	if err != nil {
		return 0, err
	}
	n := min + int(math.Floor(r*float64(max-min+1)))
	if n > max {
		n = max
	}
	return n, nil
}

// Float returns a float in [min, max), advancing the stream.
func (g *Generator) Float(min, max float64) (float64, error) {
	return g.FloatAt(min, max, 0)
}

// FloatAt returns a float in [min, max) for the given peek offset.
func (g *Generator) FloatAt(min, max float64, peek int) (float64, error) {
	if min > max {
		return 0, fmt.Errorf("%w: min=%v max=%v", ErrInvalidRange, min, max)
	}
	r, err := g.RandomAt(peek)
	if err != nil {
		return 0, err
	}
	return min + r*(max-min), nil
}

// Shuffle returns items in a random order (Fisher-Yates). When mutate is
// false the input slice is left untouched and a shuffled copy is returned.
func Shuffle[T any](g *Generator, items []T, mutate bool) []T {
	out := items
	if !mutate {
		out = make([]T, len(items))
		copy(out, items)
	}
	for i := len(out) - 1; i > 0; i-- {
		j, _ := g.Int(0, i)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Either returns one of values chosen at random.
func Either[T any](g *Generator, values ...T) (T, error) {
	var zero T
	if len(values) == 0 {
		return zero, ErrNoValues
	}
	i, err := g.Int(0, len(values)-1)
	if err != nil {
		return zero, err
	}
	return values[i], nil
}

// value computes the stream value at pull p.
func value(seed float64, p uint64) float64 {
	prime := primes[p%uint64(len(primes))]
	pm := math.Mod(float64(p), Limiter)
	x := math.Mod(pm*prime*Multiplier*seed, Limiter)
	v := x / Limiter
	if v <= 0 {
		return 1 / Limiter
	}
	if v >= 1 {
		return 1 - 1/Limiter
	}
	return v
}
