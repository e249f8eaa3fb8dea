package precedence

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cameronsjo/keel/internal/value"
)

// ErrInvalidSchema indicates a schema document that does not compile.
var ErrInvalidSchema = errors.New("invalid schema")

// Schema is a compiled JSON Schema (draft 2020-12) together with the raw
// document, which drives type coercion and deprecation warnings.
type Schema struct {
	name     string
	doc      value.Value
	compiled *jsonschema.Schema
}

// CompileSchema compiles a schema document. name only appears in messages.
func CompileSchema(name string, doc value.Value) (*Schema, error) {
	if !doc.IsRecord() {
		return nil, fmt.Errorf("%w %s: schema must be a record, got %s", ErrInvalidSchema, name, doc.Kind())
	}

	data, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalidSchema, name, err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	url := name + ".schema.json"
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalidSchema, name, err)
	}

	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalidSchema, name, err)
	}

	return &Schema{name: name, doc: doc, compiled: compiled}, nil
}

// ParseSchema decodes a YAML or JSON schema document and compiles it.
func ParseSchema(name string, data []byte) (*Schema, error) {
	doc, err := value.DecodeYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalidSchema, name, err)
	}
	return CompileSchema(name, doc)
}

// Name returns the name the schema was compiled under.
func (s *Schema) Name() string { return s.name }

// Document returns the raw schema document.
func (s *Schema) Document() value.Value { return s.doc }

// validate reports schema violations of cfg as error issues.
func (s *Schema) validate(cfg value.Value) []Issue {
	err := s.compiled.Validate(cfg.JSONCompatible())
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []Issue{{Severity: SeverityError, Message: err.Error()}}
	}

	var issues []Issue
	var collect func(*jsonschema.ValidationError)
	collect = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			issues = append(issues, Issue{
				Path:     pointerToPath(e.InstanceLocation),
				Severity: SeverityError,
				Message:  e.Message,
			})
			return
		}
		for _, cause := range e.Causes {
			collect(cause)
		}
	}
	collect(verr)
	return issues
}

// pointerToPath turns a JSON pointer such as "/db/hosts/0" into "db.hosts.0".
func pointerToPath(ptr string) string {
	if ptr == "" || ptr == "/" {
		return ""
	}
	segments := strings.Split(strings.TrimPrefix(ptr, "/"), "/")
	for i, seg := range segments {
		seg = strings.ReplaceAll(seg, "~1", "/")
		segments[i] = strings.ReplaceAll(seg, "~0", "~")
	}
	return strings.Join(segments, ".")
}

// visitor is called for every value that a schema node applies to.
type visitor func(v, node value.Value, path []string) value.Value

// walk pairs cfg with the schema nodes that describe it, following
// properties, additionalProperties and items. fn may return a replacement.
func walk(v, node value.Value, path []string, fn visitor) value.Value {
	if !node.IsRecord() {
		return v
	}
	v = fn(v, node, path)

	switch {
	case v.IsRecord():
		props := node.Get("properties")
		extra := node.Get("additionalProperties")
		fields := v.Fields()
		for i, f := range fields {
			sub := props.Get(f.Key)
			if sub.IsAbsent() {
				sub = extra
			}
			fields[i].Value = walk(f.Value, sub, appendPath(path, f.Key), fn)
		}
		return value.Record(fields...)

	case v.IsSequence():
		itemNode := node.Get("items")
		if !itemNode.IsRecord() {
			return v
		}
		items := v.Items()
		for i, item := range items {
			items[i] = walk(item, itemNode, appendPath(path, strconv.Itoa(i)), fn)
		}
		return value.Seq(items...)
	}
	return v
}

func appendPath(path []string, seg string) []string {
	next := make([]string, len(path), len(path)+1)
	copy(next, path)
	return append(next, seg)
}

// coerce converts scalars to the type their schema node declares. Each
// conversion is reported as a warning.
func (s *Schema) coerce(cfg value.Value) (value.Value, []Issue) {
	var issues []Issue
	out := walk(cfg, s.doc, nil, func(v, node value.Value, path []string) value.Value {
		if !v.IsScalar() {
			return v
		}
		types := declaredTypes(node)
		if len(types) == 0 || matchesAny(v, types) {
			return v
		}
		for _, t := range types {
			if converted, ok := convert(v, t); ok {
				issues = append(issues, Issue{
					Path:     strings.Join(path, "."),
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("coerced %s %q to %s", scalarType(v), v.Text(), t),
				})
				return converted
			}
		}
		return v
	})
	return out, issues
}

// deprecations reports each present value whose schema node is marked
// deprecated.
func (s *Schema) deprecations(cfg value.Value) []Issue {
	var issues []Issue
	walk(cfg, s.doc, nil, func(v, node value.Value, path []string) value.Value {
		if deprecated, _ := node.Get("deprecated").AsBool(); deprecated && len(path) > 0 {
			msg := "deprecated"
			if desc, ok := node.Get("description").AsString(); ok && desc != "" {
				msg += ": " + desc
			}
			issues = append(issues, Issue{
				Path:     strings.Join(path, "."),
				Severity: SeverityWarning,
				Message:  msg,
			})
		}
		return v
	})
	return issues
}

func declaredTypes(node value.Value) []string {
	t := node.Get("type")
	if s, ok := t.AsString(); ok {
		return []string{s}
	}
	var types []string
	for _, item := range t.Items() {
		if s, ok := item.AsString(); ok {
			types = append(types, s)
		}
	}
	return types
}

func scalarType(v value.Value) string {
	switch s := v.Scalar().(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case int64:
		return "integer"
	case float64:
		if s == math.Trunc(s) && !math.IsInf(s, 0) {
			return "integer"
		}
		return "number"
	}
	return "null"
}

func matchesAny(v value.Value, types []string) bool {
	actual := scalarType(v)
	for _, t := range types {
		if t == actual || (t == "number" && actual == "integer") {
			return true
		}
	}
	return false
}

func convert(v value.Value, target string) (value.Value, bool) {
	s, isString := v.AsString()
	switch target {
	case "integer":
		if !isString {
			return value.Value{}, false
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return value.Value{}, false
		}
		return value.Int(n), true

	case "number":
		if !isString {
			return value.Value{}, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return value.Value{}, false
		}
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return value.Int(int64(f)), true
		}
		return value.Float(f), true

	case "boolean":
		if !isString {
			return value.Value{}, false
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			return value.Bool(true), true
		case "false":
			return value.Bool(false), true
		}
		return value.Value{}, false

	case "string":
		if isString || v.IsNull() {
			return value.Value{}, false
		}
		return value.String(v.Text()), true
	}
	return value.Value{}, false
}
