// Package delta provides structural diff/patch between JSON-compatible values.
//
// Patches are RFC 6902 JSON Patch documents. Diff and Apply both go through
// encoding/json, so values follow JSON semantics: numbers come back as
// float64, maps as map[string]any and slices as []any.
package delta

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/wI2L/jsondiff"
)

// Differ computes and applies structural differences.
type Differ interface {
	// Diff returns the patch that transforms from into to.
	Diff(from, to any) (json.RawMessage, error)

	// Apply applies patch to doc and decodes the result into out.
	Apply(doc any, patch json.RawMessage, out any) error
}

// emptyPatch is the canonical encoding of "no changes".
var emptyPatch = json.RawMessage("[]")

// JSONPatch implements Differ with jsondiff (diff) and json-patch (apply).
type JSONPatch struct {
	opts []jsondiff.Option
}

// New creates a JSONPatch differ.
func New(opts ...jsondiff.Option) *JSONPatch {
	return &JSONPatch{opts: opts}
}

// Diff returns the patch that transforms from into to.
func (d *JSONPatch) Diff(from, to any) (json.RawMessage, error) {
	patch, err := jsondiff.Compare(from, to, d.opts...)
	if err != nil {
		return nil, fmt.Errorf("delta: compare: %w", err)
	}
	if len(patch) == 0 {
		return emptyPatch, nil
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("delta: marshal patch: %w", err)
	}
	return data, nil
}

// Apply applies patch to doc and decodes the result into out.
func (d *JSONPatch) Apply(doc any, patch json.RawMessage, out any) error {
	src, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("delta: marshal document: %w", err)
	}

	result := src
	if !IsEmpty(patch) {
		p, err := jsonpatch.DecodePatch(patch)
		if err != nil {
			return fmt.Errorf("delta: decode patch: %w", err)
		}
		result, err = p.Apply(src)
		if err != nil {
			return fmt.Errorf("delta: apply patch: %w", err)
		}
	}

	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("delta: unmarshal result: %w", err)
	}
	return nil
}

// IsEmpty reports whether patch carries no operations.
func IsEmpty(patch json.RawMessage) bool {
	trimmed := bytes.TrimSpace(patch)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]"))
}
