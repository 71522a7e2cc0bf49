// Package prng provides a seeded, peekable pseudo-random number stream.
package prng

import (
	"errors"
	"sort"
	"testing"
)

func TestNew_SeedValidation(t *testing.T) {
	tests := []struct {
		name    string
		seed    float64
		wantErr bool
	}{
		{"lower bound", 0.25, false},
		{"upper bound", 1, false},
		{"midpoint", 0.5, false},
		{"below range", 0.1, true},
		{"above range", 1.5, true},
		{"zero", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.seed, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%v) error = %v, wantErr %v", tt.seed, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSeed) {
				t.Errorf("error = %v, want ErrInvalidSeed", err)
			}
		})
	}
}

func TestRandom_Range(t *testing.T) {
	g, _ := New(0.5, 0)
	for i := 0; i < 1000; i++ {
		v := g.Random()
		if v <= 0 || v >= 1 {
			t.Fatalf("Random() #%d = %v, want (0,1)", i, v)
		}
	}
	if g.Pull() != 1000 {
		t.Errorf("Pull() = %d, want 1000", g.Pull())
	}
}

func TestPeek_MatchesSequentialRandom(t *testing.T) {
	peeker, _ := New(0.5, 0)
	peeked, err := peeker.Peek(5)
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if peeker.Pull() != 0 {
		t.Fatalf("Peek advanced pull to %d", peeker.Pull())
	}

	drawer, _ := New(0.5, 0)
	for i, want := range peeked {
		if got := drawer.Random(); got != want {
			t.Errorf("Random() #%d = %v, want %v", i, got, want)
		}
	}
}

func TestReplayFromPull(t *testing.T) {
	g, _ := New(0.75, 0)
	for i := 0; i < 7; i++ {
		g.Random()
	}
	want := g.Random()

	replay, _ := New(0.75, 7)
	if got := replay.Random(); got != want {
		t.Errorf("replay Random() = %v, want %v", got, want)
	}
}

func TestRandomAt(t *testing.T) {
	g, _ := New(0.5, 3)

	ahead, err := g.RandomAt(2)
	if err != nil {
		t.Fatalf("RandomAt: %v", err)
	}
	if g.Pull() != 3 {
		t.Fatalf("RandomAt advanced pull to %d", g.Pull())
	}

	g.Random()
	if got := g.Random(); got != ahead {
		t.Errorf("second Random() = %v, want peeked %v", got, ahead)
	}

	if _, err := g.RandomAt(-1); !errors.Is(err, ErrNegativePeek) {
		t.Errorf("RandomAt(-1) error = %v, want ErrNegativePeek", err)
	}
	if _, err := g.RandomAt(MaxPeekDepth + 1); !errors.Is(err, ErrPeekDepth) {
		t.Errorf("RandomAt(too deep) error = %v, want ErrPeekDepth", err)
	}
}

func TestPeek_DepthLimits(t *testing.T) {
	g, _ := New(0.5, 0)
	for _, depth := range []int{0, -1, MaxPeekDepth + 1} {
		if _, err := g.Peek(depth); !errors.Is(err, ErrPeekDepth) {
			t.Errorf("Peek(%d) error = %v, want ErrPeekDepth", depth, err)
		}
	}
	if _, err := g.Peek(MaxPeekDepth); err != nil {
		t.Errorf("Peek(MaxPeekDepth) error = %v", err)
	}
}

func TestStr2Int(t *testing.T) {
	t.Run("empty falls back to midpoint", func(t *testing.T) {
		if got := Str2Int(""); got != MidSeed {
			t.Errorf("Str2Int(\"\") = %v, want %v", got, MidSeed)
		}
	})

	t.Run("non printable only", func(t *testing.T) {
		if got := Str2Int("\x00\x01日本"); got != MidSeed {
			t.Errorf("Str2Int = %v, want %v", got, MidSeed)
		}
	})

	t.Run("ignores filtered characters", func(t *testing.T) {
		if Str2Int("abc") != Str2Int("a\x00b日c") {
			t.Error("filtered characters changed the seed")
		}
	})

	t.Run("bounds", func(t *testing.T) {
		if got := Str2Int("    "); got != MinSeed {
			t.Errorf("Str2Int(spaces) = %v, want %v", got, MinSeed)
		}
		if got := Str2Int("~~~"); got != MaxSeed {
			t.Errorf("Str2Int(tildes) = %v, want %v", got, MaxSeed)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		a := NewFromString("my story", 0)
		b := NewFromString("my story", 0)
		if a.Random() != b.Random() {
			t.Error("same string seed produced different streams")
		}
	})
}

func TestInt(t *testing.T) {
	g, _ := New(0.33, 0)
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		n, err := g.Int(1, 6)
		if err != nil {
			t.Fatalf("Int: %v", err)
		}
		if n < 1 || n > 6 {
			t.Fatalf("Int(1,6) = %d", n)
		}
		seen[n] = true
	}
	if len(seen) < 4 {
		t.Errorf("Int(1,6) produced only %d distinct values", len(seen))
	}

	if _, err := g.Int(5, 1); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Int(5,1) error = %v, want ErrInvalidRange", err)
	}
}

func TestFloat(t *testing.T) {
	g, _ := New(0.9, 0)
	for i := 0; i < 100; i++ {
		f, err := g.Float(-2, 2)
		if err != nil {
			t.Fatalf("Float: %v", err)
		}
		if f < -2 || f >= 2 {
			t.Fatalf("Float(-2,2) = %v", f)
		}
	}
	if _, err := g.Float(1, 0); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Float(1,0) error = %v, want ErrInvalidRange", err)
	}
}

func TestShuffle(t *testing.T) {
	g, _ := New(0.5, 0)
	in := []int{1, 2, 3, 4, 5, 6, 7, 8}

	out := Shuffle(g, in, false)
	if in[0] != 1 || in[7] != 8 {
		t.Fatalf("Shuffle without mutate changed input: %v", in)
	}

	sorted := append([]int(nil), out...)
	sort.Ints(sorted)
	for i, v := range sorted {
		if v != i+1 {
			t.Fatalf("Shuffle lost elements: %v", out)
		}
	}

	mutated := Shuffle(g, in, true)
	if &mutated[0] != &in[0] {
		t.Error("Shuffle with mutate returned a different backing array")
	}
}

func TestEither(t *testing.T) {
	g, _ := New(0.5, 0)

	if _, err := Either[string](g); !errors.Is(err, ErrNoValues) {
		t.Errorf("Either() error = %v, want ErrNoValues", err)
	}

	v, err := Either(g, "north", "south")
	if err != nil {
		t.Fatalf("Either: %v", err)
	}
	if v != "north" && v != "south" {
		t.Errorf("Either = %q", v)
	}
}

func TestRandomSeed(t *testing.T) {
	for i := 0; i < 50; i++ {
		s, err := RandomSeed()
		if err != nil {
			t.Fatalf("RandomSeed: %v", err)
		}
		if s < MinSeed || s > MaxSeed {
			t.Fatalf("RandomSeed() = %v out of range", s)
		}
	}
}

func TestRandom_LargePullDeterministic(t *testing.T) {
	const pull = 1 << 40
	for _, seed := range []float64{MinSeed, 0.61, MaxSeed} {
		a, _ := New(seed, pull)
		b, _ := New(seed, pull)
		for i := 0; i < 20; i++ {
			va, vb := a.Random(), b.Random()
			if va != vb {
				t.Fatalf("seed %v draw %d: %v != %v", seed, i, va, vb)
			}
			if va <= 0 || va >= 1 {
				t.Fatalf("seed %v draw %d = %v, want (0,1)", seed, i, va)
			}
		}
	}
}
