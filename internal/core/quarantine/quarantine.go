// Package quarantine swaps non-data values in moment variables for string
// placeholders before storage and rebuilds them after loading.
//
// Storage only holds plain JSON data. Functions and values with custom
// serialization are replaced by their string form, and the access path of
// each replaced value is recorded on the moment so Restore can put the
// real value back.
//
// Walking covers map[string]any and []any containers; other container
// types are stored as plain JSON.
package quarantine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/yndnr/storyline-go/internal/core/domain"
)

// KindFunc is the quarantine kind of registered functions.
const KindFunc = "func"

// Marshaler is implemented by values that serialize themselves for
// storage. A codec with a matching kind must be registered to restore them.
type Marshaler interface {
	QuarantineKind() string
	MarshalQuarantine() (string, error)
}

// Codec converts a custom value to and from its stored string form.
type Codec struct {
	// Match reports whether the codec handles v. Optional for kinds only
	// produced by Marshaler values.
	Match func(v any) bool

	// Encode is required when Match is set.
	Encode func(v any) (string, error)

	Decode func(s string) (any, error)
}

// Registry holds the codecs and named functions known to the process.
type Registry struct {
	mu        sync.RWMutex
	codecs    map[string]Codec
	order     []string
	funcs     map[string]any
	funcNames map[uintptr]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		codecs:    make(map[string]Codec),
		funcs:     make(map[string]any),
		funcNames: make(map[uintptr]string),
	}
}

// RegisterFunc makes fn storable under name. Functions are identified by
// code pointer, so closures sharing a body share a name.
func (r *Registry) RegisterFunc(name string, fn any) error {
	if name == "" {
		return domain.ErrMissingArgument.WithDetails("function name")
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("%q is not a function", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
	r.funcNames[v.Pointer()] = name
	return nil
}

// Register adds a codec for kind. Codecs are tried in registration order.
func (r *Registry) Register(kind string, c Codec) error {
	if kind == "" || kind == KindFunc {
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("codec kind %q", kind))
	}
	if c.Decode == nil {
		return domain.ErrMissingArgument.WithDetails("codec decode")
	}
	if c.Match != nil && c.Encode == nil {
		return domain.ErrMissingArgument.WithDetails("codec encode")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codecs[kind]; !ok {
		r.order = append(r.order, kind)
	}
	r.codecs[kind] = c
	return nil
}

// Sanitize replaces every non-data value in m.Variables with its string
// form and records its path in m.Quarantine. m must own its variables.
func (r *Registry) Sanitize(m *domain.Moment) error {
	if m == nil {
		return domain.ErrNilMoment
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, key := range sortedKeys(m.Variables) {
		v, err := r.sanitizeValue(m, m.Variables[key], []string{key})
		if err != nil {
			return err
		}
		m.Variables[key] = v
	}
	return nil
}

func (r *Registry) sanitizeValue(m *domain.Moment, v any, path []string) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return v, nil
	case map[string]any:
		for _, key := range sortedKeys(x) {
			nv, err := r.sanitizeValue(m, x[key], appendPath(path, key))
			if err != nil {
				return nil, err
			}
			x[key] = nv
		}
		return x, nil
	case []any:
		for i := range x {
			nv, err := r.sanitizeValue(m, x[i], appendPath(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			x[i] = nv
		}
		return x, nil
	case Marshaler:
		s, err := x.MarshalQuarantine()
		if err != nil {
			return nil, domain.ErrUnserializable.WithDetails(pathString(path)).WithCause(err)
		}
		r.record(m, path, x.QuarantineKind())
		return s, nil
	}

	for _, kind := range r.order {
		c := r.codecs[kind]
		if c.Match == nil || !c.Match(v) {
			continue
		}
		s, err := c.Encode(v)
		if err != nil {
			return nil, domain.ErrUnserializable.WithDetails(pathString(path)).WithCause(err)
		}
		r.record(m, path, kind)
		return s, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		name, ok := r.funcNames[rv.Pointer()]
		if !ok {
			return nil, domain.ErrUnserializable.WithDetails(pathString(path) + ": unregistered function")
		}
		r.record(m, path, KindFunc)
		return name, nil
	case reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return nil, domain.ErrUnserializable.WithDetails(fmt.Sprintf("%s: %s", pathString(path), rv.Kind()))
	}
	return v, nil
}

func (r *Registry) record(m *domain.Moment, path []string, kind string) {
	m.Quarantine = append(m.Quarantine, domain.QuarantineEntry{
		Path: append([]string(nil), path...),
		Kind: kind,
	})
}

// Restore puts quarantined values back at their recorded paths and clears
// m.Quarantine. Entries that cannot be restored are skipped; their errors
// are returned.
func (r *Registry) Restore(m *domain.Moment) []error {
	if m == nil || len(m.Quarantine) == 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, q := range m.Quarantine {
		if err := r.restoreEntry(m.Variables, q); err != nil {
			errs = append(errs, err)
		}
	}
	m.Quarantine = nil
	return errs
}

func (r *Registry) restoreEntry(vars map[string]any, q domain.QuarantineEntry) error {
	if len(q.Path) == 0 {
		return domain.ErrQuarantinePath.WithDetails("empty path")
	}

	get, set, err := resolve(vars, q.Path)
	if err != nil {
		return err
	}
	s, ok := get().(string)
	if !ok {
		return domain.ErrQuarantinePath.WithDetails(pathString(q.Path) + ": placeholder is not a string")
	}

	if q.Kind == KindFunc {
		fn, ok := r.funcs[s]
		if !ok {
			return domain.ErrCodecUnknown.WithDetails(fmt.Sprintf("%s: function %q", pathString(q.Path), s))
		}
		set(fn)
		return nil
	}

	c, ok := r.codecs[q.Kind]
	if !ok {
		return domain.ErrCodecUnknown.WithDetails(fmt.Sprintf("%s: kind %q", pathString(q.Path), q.Kind))
	}
	v, err := c.Decode(s)
	if err != nil {
		return domain.ErrQuarantinePath.WithDetails(pathString(q.Path)).WithCause(err)
	}
	set(v)
	return nil
}

// resolve walks path and returns accessors for the addressed element.
func resolve(vars map[string]any, path []string) (get func() any, set func(any), err error) {
	var container any = vars
	for i, elem := range path {
		last := i == len(path)-1
		switch c := container.(type) {
		case map[string]any:
			v, ok := c[elem]
			if !ok {
				return nil, nil, domain.ErrQuarantinePath.WithDetails(pathString(path[:i+1]))
			}
			if last {
				return func() any { return c[elem] }, func(nv any) { c[elem] = nv }, nil
			}
			container = v
		case []any:
			idx, convErr := strconv.Atoi(elem)
			if convErr != nil || idx < 0 || idx >= len(c) {
				return nil, nil, domain.ErrQuarantinePath.WithDetails(pathString(path[:i+1]))
			}
			if last {
				return func() any { return c[idx] }, func(nv any) { c[idx] = nv }, nil
			}
			container = c[idx]
		default:
			return nil, nil, domain.ErrQuarantinePath.WithDetails(pathString(path[:i+1]))
		}
	}
	return nil, nil, domain.ErrQuarantinePath.WithDetails(pathString(path))
}

func appendPath(path []string, elem string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}

func pathString(path []string) string {
	return strings.Join(path, ".")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
