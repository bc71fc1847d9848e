// Package jsondiff implements a structural diff/patch primitive over
// JSON-like values (the shapes produced by encoding/json: map[string]any,
// []any, string, float64, bool, nil).
//
// Arrays whose elements all carry a stable identity (by default an "id"
// field) are diffed per element, so a reorder is recorded as a move instead
// of a remove+insert. Deltas serialize to JSON and apply associatively along
// a chain: patching base with diff(base, mid) and then diff(mid, final)
// reaches the same value as final.
package jsondiff

// Op discriminates the delta variants.
type Op string

const (
	// OpReplace substitutes the whole value.
	OpReplace Op = "replace"
	// OpObject patches an object key by key.
	OpObject Op = "object"
	// OpArray rebuilds an array from element identities.
	OpArray Op = "array"
)

// Delta is a serializable structural difference between two JSON-like values.
// A nil *Delta means "no change".
//
// For OpReplace only Value is set. For OpObject, Fields holds nested deltas
// per changed/added key and Removed lists deleted keys. For OpArray, Order is
// the full element-key sequence of the new array, Insert maps keys of new
// elements to their values, and Patch maps keys of surviving elements to
// nested deltas; keys absent from Order are deletions, keys that only changed
// position are moves.
type Delta struct {
	Op      Op                `json:"op"`
	Value   any               `json:"value,omitempty"`
	Fields  map[string]*Delta `json:"fields,omitempty"`
	Removed []string          `json:"removed,omitempty"`
	Order   []string          `json:"order,omitempty"`
	Insert  map[string]any    `json:"insert,omitempty"`
	Patch   map[string]*Delta `json:"patch,omitempty"`
}
