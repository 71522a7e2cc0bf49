package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/yndnr/storyline-go/pkg/prng"
)

// Delta is a delta-encoded history: element 0 is a full moment and every
// following element is a patch relative to its predecessor.
type Delta []json.RawMessage

// Seed is a PRNG seed as carried on the wire: either a number in
// [prng.MinSeed, prng.MaxSeed] or an arbitrary string.
type Seed struct {
	Number float64
	Text   string
	isText bool
}

// NumberSeed returns a numeric seed.
func NumberSeed(v float64) *Seed { return &Seed{Number: v} }

// TextSeed returns a string seed.
func TextSeed(s string) *Seed { return &Seed{Text: s, isText: true} }

// IsText reports whether the seed was given as a string.
func (s Seed) IsText() bool { return s.isText }

// Value reduces the seed to a number usable by prng.New.
func (s Seed) Value() float64 {
	if s.isText {
		return prng.Str2Int(s.Text)
	}
	return s.Number
}

// MarshalJSON implements json.Marshaler.
func (s Seed) MarshalJSON() ([]byte, error) {
	if s.isText {
		return json.Marshal(s.Text)
	}
	return json.Marshal(s.Number)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Seed) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*s = Seed{Text: text, isText: true}
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("seed must be a number or string: %w", err)
	}
	*s = Seed{Number: n}
	return nil
}

// Snapshot is the serialized form of a history, shared by session
// snapshots and save payloads. Exactly one of History or Delta is set.
type Snapshot struct {
	Index   *int     `json:"index,omitempty"`
	History []Moment `json:"history,omitempty"`
	Delta   Delta    `json:"delta,omitempty"`
	Expired []string `json:"expired,omitempty"`
	Seed    *Seed    `json:"seed,omitempty"`

	// SaveID identifies the playthrough the snapshot was taken from.
	SaveID string `json:"saveId,omitempty"`
}

// IndexValue returns the snapshot index, or -1 when absent.
func (s *Snapshot) IndexValue() int {
	if s == nil || s.Index == nil {
		return -1
	}
	return *s.Index
}

// Compressed reports whether the snapshot carries a delta-encoded history.
func (s *Snapshot) Compressed() bool {
	return s != nil && s.Delta != nil
}

// Len returns the number of moments carried by the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	if s.Delta != nil {
		return len(s.Delta)
	}
	return len(s.History)
}

// Validate checks the structural invariants of the wire shape.
func (s *Snapshot) Validate() error {
	return s.validate(true)
}

// ValidatePayload checks a save payload. It applies Validate except that
// a missing index is accepted; an index that is present must be in range.
func (s *Snapshot) ValidatePayload() error {
	return s.validate(false)
}

func (s *Snapshot) validate(requireIndex bool) error {
	if s == nil {
		return ErrSnapshotInvalid.WithDetails("snapshot is nil")
	}
	switch {
	case s.History != nil && s.Delta != nil:
		return ErrSnapshotAmbiguous
	case s.History == nil && s.Delta == nil:
		return ErrSnapshotNoHistory
	case s.Len() == 0:
		return ErrSnapshotNoHistory.WithDetails("history is empty")
	case s.Index == nil && requireIndex:
		return ErrSnapshotNoIndex
	case s.Index == nil:
		return nil
	}
	if i := *s.Index; i < 0 || i >= s.Len() {
		return ErrIndexOutOfRange.WithDetails(fmt.Sprintf("index %d, length %d", i, s.Len()))
	}
	return nil
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() (*Snapshot, error) {
	if s == nil {
		return nil, nil
	}
	out := &Snapshot{SaveID: s.SaveID}
	if s.Index != nil {
		i := *s.Index
		out.Index = &i
	}
	if s.Seed != nil {
		seed := *s.Seed
		out.Seed = &seed
	}
	if s.Expired != nil {
		out.Expired = append([]string{}, s.Expired...)
	}
	if s.Delta != nil {
		out.Delta = make(Delta, len(s.Delta))
		for i, d := range s.Delta {
			out.Delta[i] = append(json.RawMessage(nil), d...)
		}
	}
	history, err := CloneMoments(s.History)
	if err != nil {
		return nil, err
	}
	out.History = history
	return out, nil
}

// IntPtr returns a pointer to i.
func IntPtr(i int) *int { return &i }
