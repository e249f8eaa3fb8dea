package interpolate

import (
	"strconv"

	"github.com/cameronsjo/keel/internal/value"
)

// Source resolves interpolation keys.
type Source interface {
	Lookup(key string) (string, bool)
}

// SourceFunc adapts a function to a Source. os.LookupEnv is one.
type SourceFunc func(key string) (string, bool)

// Lookup implements Source.
func (f SourceFunc) Lookup(key string) (string, bool) {
	return f(key)
}

// MapSource is a fixed set of variables.
type MapSource map[string]string

// Lookup implements Source.
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Chain tries each source in order; the first hit wins.
func Chain(sources ...Source) Source {
	return chainSource(sources)
}

type chainSource []Source

func (c chainSource) Lookup(key string) (string, bool) {
	for _, src := range c {
		if src == nil {
			continue
		}
		if v, ok := src.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// RecordSource flattens a record into dotted keys, so
//
//	network:
//	  cidr: 10.0.0.0/16
//	zones: [a, b]
//
// answers "network.cidr", "zones.0" and "zones.1". Nested records and
// sequences also answer for their own path with their JSON encoding.
// Null leaves are not exposed.
func RecordSource(v value.Value) MapSource {
	out := make(MapSource)
	flatten(v, "", out)
	return out
}

func flatten(v value.Value, path string, out MapSource) {
	switch v.Kind() {
	case value.KindScalar:
		out[path] = v.Text()
	case value.KindSequence:
		if path != "" {
			out[path] = v.String()
		}
		for i, item := range v.Items() {
			flatten(item, JoinPath(path, indexKey(i)), out)
		}
	case value.KindRecord:
		if path != "" {
			out[path] = v.String()
		}
		for _, f := range v.Fields() {
			flatten(f.Value, JoinPath(path, f.Key), out)
		}
	}
}

// JoinPath appends a segment to a dotted path.
func JoinPath(path, segment string) string {
	if path == "" {
		return segment
	}
	return path + "." + segment
}

func indexKey(i int) string {
	return strconv.Itoa(i)
}
