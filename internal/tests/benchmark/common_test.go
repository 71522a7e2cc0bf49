package benchmark

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"testing"

	"github.com/yndnr/storyline-go/internal/core/history"
	"github.com/yndnr/storyline-go/pkg/prng"
)

// HistoryLengths are the history lengths benchmarks run against.
var HistoryLengths = []int{10, 40, 100, 400}

// SmallHistoryLengths for quick benchmarks.
var SmallHistoryLengths = []int{10, 40}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// newMachine returns a machine holding n moments. Every moment changes a
// few variables and keeps an inventory that grows slowly, which is the
// shape delta compression is meant for.
func newMachine(tb testing.TB, n int) *history.Machine {
	tb.Helper()
	gen, err := prng.New(0.5, 0)
	if err != nil {
		tb.Fatal(err)
	}
	m := history.New(history.Config{MaxStates: n, PRNG: gen, Logger: quiet})
	inventory := []any{}
	for i := 0; i < n; i++ {
		m.SetVariable("turn", i)
		m.SetVariable("gold", i*3%97)
		if i%5 == 0 {
			inventory = append(inventory, fmt.Sprintf("item-%d", i))
			m.SetVariable("inventory", append([]any(nil), inventory...))
		}
		if _, err := m.Create(fmt.Sprintf("passage-%d", i%12)); err != nil {
			tb.Fatal(err)
		}
	}
	return m
}

// reportMemory reports heap usage after a GC.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
}

// runWithLengths runs benchFn once per history length.
func runWithLengths(b *testing.B, lengths []int, benchFn func(b *testing.B, n int)) {
	for _, n := range lengths {
		b.Run(fmt.Sprintf("moments_%d", n), func(b *testing.B) {
			benchFn(b, n)
		})
	}
}
