// Package merge implements the recursive merge used by every layer of the
// resolution pipeline.
package merge

import "github.com/cameronsjo/keel/internal/value"

// DeepMerge merges overlay into base and returns the result.
// Merge semantics:
//   - Records: merged key by key; keys only in overlay are appended in overlay order
//   - Sequences and scalars: overlay replaces base wholesale
//   - Absent overlay: base is kept
//   - Null overlay: replaces base
//
// Neither input is modified.
func DeepMerge(base, overlay value.Value) value.Value {
	if overlay.IsAbsent() {
		return base
	}
	if !base.IsRecord() || !overlay.IsRecord() {
		return overlay
	}

	fields := base.Fields()
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f.Key] = i
	}

	for _, f := range overlay.Fields() {
		if i, exists := index[f.Key]; exists {
			fields[i].Value = DeepMerge(fields[i].Value, f.Value)
			continue
		}
		index[f.Key] = len(fields)
		fields = append(fields, f)
	}

	return value.Record(fields...)
}

// MergeAll folds values left to right through DeepMerge. Later values win.
func MergeAll(values ...value.Value) value.Value {
	var result value.Value
	for _, v := range values {
		result = DeepMerge(result, v)
	}
	return result
}
