// Package metadata implements the diff-based patch and merge logic that
// lets concurrent writers update a shared metadata map without clobbering
// each other's keys.
//
// A writer captures a base snapshot when it loads a row, mutates a local
// copy, and at commit time replays only its own changes (the patch between
// base and updated) onto whatever is currently persisted. Keys another
// writer touched in the meantime survive untouched.
package metadata

import "reflect"

// Patch is the computed difference between two metadata snapshots.
type Patch struct {
	Updates map[string]any
	Removed map[string]struct{}
}

// Empty reports whether the patch carries no changes.
func (p Patch) Empty() bool {
	return len(p.Updates) == 0 && len(p.Removed) == 0
}

// ComputePatch diffs a base snapshot against a locally updated snapshot.
// Keys present in updated with a different value than base become updates;
// keys present in base but absent from updated become removals. Unchanged
// keys are omitted, so ComputePatch(x, x) is an empty patch.
func ComputePatch(base, updated map[string]any) Patch {
	patch := Patch{
		Updates: make(map[string]any),
		Removed: make(map[string]struct{}),
	}

	for key, value := range updated {
		baseValue, ok := base[key]
		if !ok || !reflect.DeepEqual(baseValue, value) {
			patch.Updates[key] = value
		}
	}

	for key := range base {
		if _, ok := updated[key]; !ok {
			patch.Removed[key] = struct{}{}
		}
	}

	return patch
}

// Apply replays the patch onto current, returning a new map. current is
// the latest persisted state and may contain keys written by other
// writers; those keys pass through untouched unless the patch names them.
func (p Patch) Apply(current map[string]any) map[string]any {
	merged := Clone(current)
	if merged == nil {
		merged = make(map[string]any)
	}

	for key, value := range p.Updates {
		merged[key] = value
	}

	for key := range p.Removed {
		delete(merged, key)
	}

	return merged
}

// Merge computes the patch between base and updated and applies it onto
// current. For every key in preserveLatest the currently persisted value
// wins outright, even when the local writer also changed it; a key absent
// from current is removed from the result. This lets a subsystem own a key
// (e.g. a discussion fetcher owning top_comment) regardless of write order.
func Merge(current, base, updated map[string]any, preserveLatest ...string) map[string]any {
	merged := ComputePatch(base, updated).Apply(current)

	for _, key := range preserveLatest {
		if value, ok := current[key]; ok {
			merged[key] = cloneValue(value)
		} else {
			delete(merged, key)
		}
	}

	return merged
}

// Clone deep-copies a metadata map. Values are limited to what survives a
// JSON round-trip (maps, slices, scalars), which is all the jsonb column
// can hold.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	cloned := make(map[string]any, len(m))
	for key, value := range m {
		cloned[key] = cloneValue(value)
	}

	return cloned
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return Clone(typed)
	case []any:
		cloned := make([]any, len(typed))
		for i, item := range typed {
			cloned[i] = cloneValue(item)
		}

		return cloned
	default:
		return v
	}
}
