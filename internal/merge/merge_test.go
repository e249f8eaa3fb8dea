package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cameronsjo/keel/internal/value"
)

func TestDeepMerge(t *testing.T) {
	tests := []struct {
		name    string
		base    map[string]any
		overlay map[string]any
		want    map[string]any
	}{
		{
			name: "basic dict merge overlay wins",
			base: map[string]any{
				"key1": "base1",
				"key2": "base2",
			},
			overlay: map[string]any{
				"key2": "overlay2",
				"key3": "overlay3",
			},
			want: map[string]any{
				"key1": "base1",
				"key2": "overlay2",
				"key3": "overlay3",
			},
		},
		{
			name: "nested dict merge recursive",
			base: map[string]any{
				"outer": map[string]any{
					"inner1": "base1",
					"inner2": "base2",
				},
			},
			overlay: map[string]any{
				"outer": map[string]any{
					"inner2": "overlay2",
					"inner3": "overlay3",
				},
			},
			want: map[string]any{
				"outer": map[string]any{
					"inner1": "base1",
					"inner2": "overlay2",
					"inner3": "overlay3",
				},
			},
		},
		{
			name:    "list replaced never concatenated",
			base:    map[string]any{"xs": []any{1, 2}},
			overlay: map[string]any{"xs": []any{3}},
			want:    map[string]any{"xs": []any{int64(3)}},
		},
		{
			name:    "scalar replaces record",
			base:    map[string]any{"a": map[string]any{"b": 1}},
			overlay: map[string]any{"a": "flat"},
			want:    map[string]any{"a": "flat"},
		},
		{
			name:    "record replaces scalar",
			base:    map[string]any{"a": "flat"},
			overlay: map[string]any{"a": map[string]any{"b": 1}},
			want:    map[string]any{"a": map[string]any{"b": int64(1)}},
		},
		{
			name:    "explicit null overwrites",
			base:    map[string]any{"a": 1},
			overlay: map[string]any{"a": nil},
			want:    map[string]any{"a": nil},
		},
		{
			name:    "empty base",
			base:    map[string]any{},
			overlay: map[string]any{"key": "value"},
			want:    map[string]any{"key": "value"},
		},
		{
			name:    "empty overlay",
			base:    map[string]any{"key": "value"},
			overlay: map[string]any{},
			want:    map[string]any{"key": "value"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeepMerge(value.MustFromAny(tt.base), value.MustFromAny(tt.overlay))
			assert.True(t, value.Equal(value.MustFromAny(tt.want), got), "got %s", got)
		})
	}
}

func TestDeepMergeAbsentOverlayKeepsBase(t *testing.T) {
	base := value.Record(value.F("a", value.Int(1)))
	assert.Equal(t, base.String(), DeepMerge(base, value.Value{}).String())
}

func TestDeepMergeAbsentBase(t *testing.T) {
	overlay := value.Record(value.F("a", value.Int(1)))
	assert.Equal(t, overlay.String(), DeepMerge(value.Value{}, overlay).String())
}

func TestDeepMergeIsIdempotent(t *testing.T) {
	inputs := []value.Value{
		value.MustFromAny(map[string]any{"a": 1, "b": []any{1, 2}, "c": map[string]any{"d": "e", "f": nil}}),
		value.Seq(value.Int(1), value.String("x")),
		value.String("scalar"),
		value.Null(),
		value.Record(),
	}

	for _, x := range inputs {
		got := DeepMerge(x, x)
		assert.True(t, value.Equal(x, got), "merge(x, x) != x for %s", x)
		assert.Equal(t, x.String(), got.String())
	}
}

func TestDeepMergeRightBias(t *testing.T) {
	a := value.MustFromAny(map[string]any{"a1": 1, "shared": map[string]any{"x": 1, "y": 1}})
	b := value.MustFromAny(map[string]any{"b1": 2, "shared": map[string]any{"y": 2}})

	got := DeepMerge(a, b)

	for _, k := range []string{"a1", "b1", "shared"} {
		assert.True(t, got.Has(k), "missing key %s", k)
	}
	y, _ := got.Lookup("shared", "y").AsInt()
	x, _ := got.Lookup("shared", "x").AsInt()
	assert.Equal(t, int64(2), y)
	assert.Equal(t, int64(1), x)
}

func TestDeepMergeKeyOrder(t *testing.T) {
	base := value.Record(value.F("z", value.Int(1)), value.F("a", value.Int(1)))
	overlay := value.Record(value.F("m", value.Int(2)), value.F("z", value.Int(2)))

	assert.Equal(t, []string{"z", "a", "m"}, DeepMerge(base, overlay).Keys())
}

func TestDeepMergeDoesNotMutateInputs(t *testing.T) {
	base := value.MustFromAny(map[string]any{"nested": map[string]any{"a": 1}})
	overlay := value.MustFromAny(map[string]any{"nested": map[string]any{"b": 2}})
	baseBefore, overlayBefore := base.String(), overlay.String()

	_ = DeepMerge(base, overlay)

	assert.Equal(t, baseBefore, base.String())
	assert.Equal(t, overlayBefore, overlay.String())
}

func TestMergeAll(t *testing.T) {
	got := MergeAll(
		value.MustFromAny(map[string]any{"a": 1, "b": 1}),
		value.MustFromAny(map[string]any{"b": 2}),
		value.MustFromAny(map[string]any{"a": 3}),
	)
	assert.Equal(t, `{"a":3,"b":2}`, got.String())

	assert.True(t, MergeAll().IsAbsent())
}
