package jsondiff

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// ObjectHash derives a stable identity for an array element. The second
// return is false when the element has no usable identity, which makes the
// containing array fall back to whole-array replacement.
type ObjectHash func(elem any) (string, bool)

// DefaultObjectHash keys objects by their "id" field (string or number).
func DefaultObjectHash(elem any) (string, bool) {
	obj, ok := elem.(map[string]any)
	if !ok {
		return "", false
	}
	switch id := obj["id"].(type) {
	case string:
		if id != "" {
			return id, true
		}
	case float64:
		return fmt.Sprintf("%v", id), true
	}
	return "", false
}

// Differ computes and applies structural deltas.
type Differ struct {
	hash ObjectHash
}

// Option configures a Differ.
type Option func(*Differ)

// WithObjectHash overrides the array element identity function.
func WithObjectHash(hash ObjectHash) Option {
	return func(d *Differ) { d.hash = hash }
}

// New builds a Differ with DefaultObjectHash unless overridden.
func New(opts ...Option) *Differ {
	d := &Differ{hash: DefaultObjectHash}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Normalize round-trips a value through encoding/json so that structs,
// typed slices and numbers all collapse into the generic JSON shapes the
// differ operates on.
func Normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	return out, nil
}

// Diff computes the delta that transforms a into b. It returns nil when the
// two values are structurally equal. Both inputs must already be in generic
// JSON shape (see Normalize).
func (d *Differ) Diff(a, b any) *Delta {
	if Equal(a, b) {
		return nil
	}

	aObj, aIsObj := a.(map[string]any)
	bObj, bIsObj := b.(map[string]any)
	if aIsObj && bIsObj {
		return d.diffObject(aObj, bObj)
	}

	aArr, aIsArr := a.([]any)
	bArr, bIsArr := b.([]any)
	if aIsArr && bIsArr {
		if delta, ok := d.diffArray(aArr, bArr); ok {
			return delta
		}
	}

	return &Delta{Op: OpReplace, Value: b}
}

func (d *Differ) diffObject(a, b map[string]any) *Delta {
	delta := &Delta{Op: OpObject}
	for key, bVal := range b {
		aVal, exists := a[key]
		if !exists {
			if delta.Fields == nil {
				delta.Fields = make(map[string]*Delta)
			}
			delta.Fields[key] = &Delta{Op: OpReplace, Value: bVal}
			continue
		}
		if nested := d.Diff(aVal, bVal); nested != nil {
			if delta.Fields == nil {
				delta.Fields = make(map[string]*Delta)
			}
			delta.Fields[key] = nested
		}
	}
	for key := range a {
		if _, exists := b[key]; !exists {
			delta.Removed = append(delta.Removed, key)
		}
	}
	sort.Strings(delta.Removed)
	return delta
}

// diffArray diffs per element identity. The second return is false when
// either array contains an element without usable identity or identities
// collide, in which case the caller records a whole-array replacement.
func (d *Differ) diffArray(a, b []any) (*Delta, bool) {
	_, aIndex, ok := d.keyArray(a)
	if !ok {
		return nil, false
	}
	bKeys, _, ok := d.keyArray(b)
	if !ok {
		return nil, false
	}

	delta := &Delta{Op: OpArray, Order: bKeys}
	for i, key := range bKeys {
		oldIdx, existed := aIndex[key]
		if !existed {
			if delta.Insert == nil {
				delta.Insert = make(map[string]any)
			}
			delta.Insert[key] = b[i]
			continue
		}
		if nested := d.Diff(a[oldIdx], b[i]); nested != nil {
			if delta.Patch == nil {
				delta.Patch = make(map[string]*Delta)
			}
			delta.Patch[key] = nested
		}
	}
	return delta, true
}

func (d *Differ) keyArray(arr []any) ([]string, map[string]int, bool) {
	keys := make([]string, len(arr))
	index := make(map[string]int, len(arr))
	for i, elem := range arr {
		key, ok := d.hash(elem)
		if !ok {
			return nil, nil, false
		}
		if _, dup := index[key]; dup {
			return nil, nil, false
		}
		keys[i] = key
		index[key] = i
	}
	return keys, index, true
}

// Equal reports structural equality of two generic JSON values.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
