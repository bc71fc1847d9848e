package jsondiff

import "fmt"

// Patch applies delta to base and returns the resulting value. A nil delta
// returns base unchanged. Base is never mutated, though the result may share
// untouched subtrees with it.
func (d *Differ) Patch(base any, delta *Delta) (any, error) {
	if delta == nil {
		return base, nil
	}
	switch delta.Op {
	case OpReplace:
		return delta.Value, nil
	case OpObject:
		return d.patchObject(base, delta)
	case OpArray:
		return d.patchArray(base, delta)
	default:
		return nil, fmt.Errorf("patch: unknown delta op %q", delta.Op)
	}
}

func (d *Differ) patchObject(base any, delta *Delta) (any, error) {
	obj, ok := base.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("patch: object delta applied to %T", base)
	}
	out := make(map[string]any, len(obj)+len(delta.Fields))
	for key, val := range obj {
		out[key] = val
	}
	for _, key := range delta.Removed {
		delete(out, key)
	}
	for key, nested := range delta.Fields {
		patched, err := d.Patch(out[key], nested)
		if err != nil {
			return nil, fmt.Errorf("patch: field %q: %w", key, err)
		}
		out[key] = patched
	}
	return out, nil
}

func (d *Differ) patchArray(base any, delta *Delta) (any, error) {
	arr, ok := base.([]any)
	if !ok {
		return nil, fmt.Errorf("patch: array delta applied to %T", base)
	}
	_, index, keyed := d.keyArray(arr)
	if !keyed {
		return nil, fmt.Errorf("patch: array delta applied to unkeyable base array")
	}

	out := make([]any, 0, len(delta.Order))
	for _, key := range delta.Order {
		if inserted, ok := delta.Insert[key]; ok {
			out = append(out, inserted)
			continue
		}
		oldIdx, existed := index[key]
		if !existed {
			return nil, fmt.Errorf("patch: array element %q missing from base", key)
		}
		elem := arr[oldIdx]
		if nested, ok := delta.Patch[key]; ok {
			patched, err := d.Patch(elem, nested)
			if err != nil {
				return nil, fmt.Errorf("patch: array element %q: %w", key, err)
			}
			elem = patched
		}
		out = append(out, elem)
	}
	return out, nil
}
