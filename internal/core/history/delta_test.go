package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yndnr/storyline-go/internal/core/domain"
	"github.com/yndnr/storyline-go/pkg/delta"
)

// genHistory builds n moments whose variables drift from one moment to the
// next. Values are JSON-native so they survive encoding unchanged.
func genHistory(r *rand.Rand, n int) []domain.Moment {
	vars := map[string]any{
		"gold":  float64(0),
		"name":  "hero",
		"items": []any{},
		"flags": map[string]any{},
	}
	out := make([]domain.Moment, 0, n)
	for i := 0; i < n; i++ {
		switch r.Intn(5) {
		case 0:
			vars["gold"] = float64(r.Intn(1000))
		case 1:
			vars["items"] = append(append([]any{}, vars["items"].([]any)...), fmt.Sprintf("item%d", i))
		case 2:
			flags := map[string]any{}
			for k, v := range vars["flags"].(map[string]any) {
				flags[k] = v
			}
			flags[fmt.Sprintf("f%d", r.Intn(4))] = r.Intn(2) == 0
			vars["flags"] = flags
		case 3:
			delete(vars, "name")
		case 4:
			vars["name"] = fmt.Sprintf("hero-%d", r.Intn(10))
		}
		m, _ := domain.NewMoment(fmt.Sprintf("passage-%d", i), vars)
		if r.Intn(3) > 0 {
			m = m.WithPull(uint64(i * 3))
		}
		out = append(out, m)
	}
	return out
}

func TestDeltaRoundTrip(t *testing.T) {
	differ := delta.New()
	r := rand.New(rand.NewSource(42))

	for n := 1; n <= 50; n++ {
		t.Run(fmt.Sprintf("len=%d", n), func(t *testing.T) {
			h := genHistory(r, n)

			enc, err := DeltaEncode(differ, h)
			if err != nil {
				t.Fatalf("DeltaEncode: %v", err)
			}
			if len(enc) != n {
				t.Fatalf("len(enc) = %d, want %d", len(enc), n)
			}

			dec, err := DeltaDecode(differ, enc)
			if err != nil {
				t.Fatalf("DeltaDecode: %v", err)
			}
			if diff := cmp.Diff(h, dec); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeltaEncode_FirstElementIsFullMoment(t *testing.T) {
	h := []domain.Moment{
		{Title: "A", Variables: map[string]any{"x": float64(1)}},
		{Title: "B", Variables: map[string]any{"x": float64(1)}},
	}
	enc, err := DeltaEncode(delta.New(), h)
	if err != nil {
		t.Fatalf("DeltaEncode: %v", err)
	}

	var first domain.Moment
	if err := json.Unmarshal(enc[0], &first); err != nil {
		t.Fatalf("element 0 is not a moment: %v", err)
	}
	if first.Title != "A" {
		t.Errorf("first.Title = %q", first.Title)
	}
	if string(enc[1]) == string(enc[0]) {
		t.Error("element 1 should be a patch, not a full moment")
	}
}

func TestDelta_NilAndEmpty(t *testing.T) {
	differ := delta.New()

	enc, err := DeltaEncode(differ, nil)
	if err != nil || enc != nil {
		t.Errorf("DeltaEncode(nil) = %v, %v; want nil, nil", enc, err)
	}
	enc, err = DeltaEncode(differ, []domain.Moment{})
	if err != nil || enc == nil || len(enc) != 0 {
		t.Errorf("DeltaEncode([]) = %v, %v; want empty", enc, err)
	}

	dec, err := DeltaDecode(differ, nil)
	if err != nil || dec != nil {
		t.Errorf("DeltaDecode(nil) = %v, %v; want nil, nil", dec, err)
	}
	dec, err = DeltaDecode(differ, domain.Delta{})
	if err != nil || dec == nil || len(dec) != 0 {
		t.Errorf("DeltaDecode([]) = %v, %v; want empty", dec, err)
	}
}

func TestDeltaDecode_Malformed(t *testing.T) {
	differ := delta.New()
	tests := []struct {
		name string
		d    domain.Delta
	}{
		{"bad first moment", domain.Delta{json.RawMessage(`[1,2]`)}},
		{"bad patch", domain.Delta{
			json.RawMessage(`{"title":"A","variables":{}}`),
			json.RawMessage(`[{"op":"remove","path":"/variables/missing"}]`),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DeltaDecode(differ, tt.d); !errors.Is(err, domain.ErrHistoryMalformed) {
				t.Errorf("DeltaDecode = %v, want ErrHistoryMalformed", err)
			}
		})
	}
}

func TestDeltaRoundTrip_JSONNumbers(t *testing.T) {
	differ := delta.New()
	m := New(DefaultConfig())
	m.SetVariable("gold", 10)
	m.SetVariable("items", []string{"sword"})
	if _, err := m.Create("A"); err != nil {
		t.Fatal(err)
	}
	m.SetVariable("gold", 12)
	if _, err := m.Create("B"); err != nil {
		t.Fatal(err)
	}

	moments, err := m.Moments()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := moments[1].Variables["gold"].(int); !ok {
		t.Fatalf("live gold = %T, want int", moments[1].Variables["gold"])
	}

	d, err := DeltaEncode(differ, moments)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DeltaDecode(differ, d)
	if err != nil {
		t.Fatal(err)
	}

	want := []map[string]any{
		{"gold": float64(10), "items": []any{"sword"}},
		{"gold": float64(12), "items": []any{"sword"}},
	}
	for i := range got {
		if diff := cmp.Diff(want[i], got[i].Variables); diff != "" {
			t.Errorf("moment %d variables mismatch (-want +got):\n%s", i, diff)
		}
	}
}
