// Package interpolate substitutes ${env:KEY} tokens in string leaves of a
// value tree.
package interpolate

import (
	"regexp"
	"sort"

	"github.com/cameronsjo/keel/internal/value"
)

// tokenPattern matches ${env:KEY} placeholders.
var tokenPattern = regexp.MustCompile(`\$\{env:([A-Za-z_][A-Za-z0-9_.-]*)\}`)

// Interpolate returns v with every ${env:KEY} token in a string leaf replaced
// by src's value for KEY. Tokens src cannot resolve are kept verbatim so a
// later pass (or a human) can still see them. Replacement text is not
// scanned again. Record keys and non-string scalars are left alone.
func Interpolate(v value.Value, src Source) value.Value {
	if src == nil {
		return v
	}

	switch v.Kind() {
	case value.KindScalar:
		s, ok := v.AsString()
		if !ok || !tokenPattern.MatchString(s) {
			return v
		}
		return value.String(String(s, src))

	case value.KindSequence:
		items := v.Items()
		for i, item := range items {
			items[i] = Interpolate(item, src)
		}
		return value.Seq(items...)

	case value.KindRecord:
		fields := v.Fields()
		for i, f := range fields {
			fields[i].Value = Interpolate(f.Value, src)
		}
		return value.Record(fields...)
	}
	return v
}

// String interpolates a single string.
func String(s string, src Source) string {
	return tokenPattern.ReplaceAllStringFunc(s, func(match string) string {
		key := tokenPattern.FindStringSubmatch(match)[1]
		if val, ok := src.Lookup(key); ok {
			return val
		}
		return match
	})
}

// Unresolved lists the keys of tokens still present in v, sorted and
// without duplicates.
func Unresolved(v value.Value) []string {
	seen := make(map[string]struct{})
	collect(v, seen)

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UnresolvedPaths maps each dotted leaf path of v to the token keys it still
// holds.
func UnresolvedPaths(v value.Value) map[string][]string {
	out := make(map[string][]string)
	walkStrings(v, "", func(path, s string) {
		for _, m := range tokenPattern.FindAllStringSubmatch(s, -1) {
			out[path] = appendUnique(out[path], m[1])
		}
	})
	return out
}

func collect(v value.Value, seen map[string]struct{}) {
	walkStrings(v, "", func(_, s string) {
		for _, m := range tokenPattern.FindAllStringSubmatch(s, -1) {
			seen[m[1]] = struct{}{}
		}
	})
}

func walkStrings(v value.Value, path string, fn func(path, s string)) {
	switch v.Kind() {
	case value.KindScalar:
		if s, ok := v.AsString(); ok {
			fn(path, s)
		}
	case value.KindSequence:
		for i, item := range v.Items() {
			walkStrings(item, JoinPath(path, indexKey(i)), fn)
		}
	case value.KindRecord:
		for _, f := range v.Fields() {
			walkStrings(f.Value, JoinPath(path, f.Key), fn)
		}
	}
}

func appendUnique(list []string, s string) []string {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}
