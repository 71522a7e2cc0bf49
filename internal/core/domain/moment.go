package domain

import (
	"github.com/mitchellh/copystructure"
)

// QuarantineEntry records a variable that was replaced by its string form
// before storage. Path is the sequence of map keys and slice indices
// leading to the value; Kind names the codec able to rebuild it.
type QuarantineEntry struct {
	Path []string `json:"path"`
	Kind string   `json:"kind"`
}

// Moment is one recorded point in the narrative timeline.
type Moment struct {
	// Title is the label of the passage the moment belongs to.
	Title string `json:"title"`

	// Variables is a fully-owned snapshot of the story variables.
	Variables map[string]any `json:"variables"`

	// Pull is the PRNG stream position when the moment became active.
	// Nil when no PRNG is configured.
	Pull *uint64 `json:"pull,omitempty"`

	// Quarantine lists values substituted before storage.
	Quarantine []QuarantineEntry `json:"quarantine,omitempty"`
}

// NewMoment creates a moment that owns a deep copy of vars.
func NewMoment(title string, vars map[string]any) (Moment, error) {
	owned, err := CloneVariables(vars)
	if err != nil {
		return Moment{}, err
	}
	return Moment{Title: title, Variables: owned}, nil
}

// Clone returns a deep copy of the moment. The copy shares no mutable
// state with m.
func (m Moment) Clone() (Moment, error) {
	vars, err := CloneVariables(m.Variables)
	if err != nil {
		return Moment{}, err
	}
	out := Moment{Title: m.Title, Variables: vars}
	if m.Pull != nil {
		pull := *m.Pull
		out.Pull = &pull
	}
	if len(m.Quarantine) > 0 {
		out.Quarantine = make([]QuarantineEntry, len(m.Quarantine))
		for i, q := range m.Quarantine {
			out.Quarantine[i] = QuarantineEntry{
				Path: append([]string(nil), q.Path...),
				Kind: q.Kind,
			}
		}
	}
	return out, nil
}

// PullValue returns the stored pull and whether one is present.
func (m Moment) PullValue() (uint64, bool) {
	if m.Pull == nil {
		return 0, false
	}
	return *m.Pull, true
}

// WithPull returns m stamped with the given pull.
func (m Moment) WithPull(pull uint64) Moment {
	m.Pull = &pull
	return m
}

// CloneVariables deep-copies a variable map. A nil map yields an empty map.
func CloneVariables(vars map[string]any) (map[string]any, error) {
	if len(vars) == 0 {
		return make(map[string]any), nil
	}
	cp, err := copystructure.Copy(vars)
	if err != nil {
		return nil, ErrInternal.WithDetails("copy variables").WithCause(err)
	}
	return cp.(map[string]any), nil
}

// CloneMoments deep-copies a moment slice.
func CloneMoments(moments []Moment) ([]Moment, error) {
	if moments == nil {
		return nil, nil
	}
	out := make([]Moment, len(moments))
	for i := range moments {
		c, err := moments[i].Clone()
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}
