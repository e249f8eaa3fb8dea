package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// maxNodes bounds alias expansion while converting YAML documents.
const maxNodes = 1_000_000

// maxDepth bounds nesting while converting YAML documents.
const maxDepth = 10_000

// ErrTooComplex is returned when alias expansion exceeds the node budget.
var ErrTooComplex = errors.New("document too complex")

// DecodeYAML parses the first YAML document in data. Key order is preserved,
// aliases are expanded and "<<" merge keys are applied. An empty document
// decodes to an empty record.
func DecodeYAML(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Value{}, err
	}
	if doc.Kind == 0 || (doc.Kind == yaml.DocumentNode && len(doc.Content) == 0) {
		return Record(), nil
	}
	c := &yamlConverter{expanding: make(map[*yaml.Node]bool)}
	return c.convert(&doc)
}

type yamlConverter struct {
	visited int
	depth   int
	// expanding holds anchors whose alias expansion is in progress.
	expanding map[*yaml.Node]bool
}

func (c *yamlConverter) convert(n *yaml.Node) (Value, error) {
	c.visited++
	if c.visited > maxNodes {
		return Value{}, ErrTooComplex
	}
	c.depth++
	defer func() { c.depth-- }()
	if c.depth > maxDepth {
		return Value{}, fmt.Errorf("line %d: nesting deeper than %d: %w", n.Line, maxDepth, ErrTooComplex)
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Record(), nil
		}
		return c.convert(n.Content[0])
	case yaml.AliasNode:
		return c.alias(n, c.convert)
	case yaml.ScalarNode:
		return c.scalar(n)
	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, child := range n.Content {
			item, err := c.convert(child)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Value{kind: KindSequence, items: items}, nil
	case yaml.MappingNode:
		return c.mapping(n)
	}
	return Value{}, fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
}

// alias expands an alias node with fn, failing when the alias refers back
// into an anchor that is still being expanded.
func (c *yamlConverter) alias(n *yaml.Node, fn func(*yaml.Node) (Value, error)) (Value, error) {
	target := n.Alias
	if target == nil {
		return Value{}, fmt.Errorf("line %d: unknown alias %q", n.Line, n.Value)
	}
	if c.expanding[target] {
		return Value{}, fmt.Errorf("line %d: recursive alias %q", n.Line, n.Value)
	}
	c.expanding[target] = true
	defer delete(c.expanding, target)
	return fn(target)
}

func (c *yamlConverter) scalar(n *yaml.Node) (Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return Int(i), nil
		}
		var f float64
		if err := n.Decode(&f); err != nil {
			return Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Float(f), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Float(f), nil
	default:
		// Strings, timestamps, binary and custom tags keep their source text.
		return String(n.Value), nil
	}
}

func (c *yamlConverter) mapping(n *yaml.Node) (Value, error) {
	if len(n.Content)%2 != 0 {
		return Value{}, fmt.Errorf("line %d: malformed mapping", n.Line)
	}

	var explicit []Field
	merged := Record()
	for i := 0; i < len(n.Content); i += 2 {
		keyNode, valNode := n.Content[i], n.Content[i+1]
		if keyNode.Kind == yaml.AliasNode {
			keyNode = keyNode.Alias
		}
		if keyNode.Kind != yaml.ScalarNode {
			return Value{}, fmt.Errorf("line %d: mapping keys must be scalars", keyNode.Line)
		}

		if keyNode.ShortTag() == "!!merge" {
			sources, err := c.mergeSources(valNode)
			if err != nil {
				return Value{}, err
			}
			// Earlier merge sources take precedence over later ones.
			for _, src := range sources {
				for _, f := range src.Fields() {
					if !merged.Has(f.Key) {
						merged = merged.With(f.Key, f.Value)
					}
				}
			}
			continue
		}

		val, err := c.convert(valNode)
		if err != nil {
			return Value{}, err
		}
		explicit = append(explicit, Field{Key: keyNode.Value, Value: val})
	}

	if merged.Len() == 0 {
		return Record(explicit...), nil
	}
	return Record(append(merged.Fields(), explicit...)...), nil
}

func (c *yamlConverter) mergeSources(n *yaml.Node) ([]Value, error) {
	if n.Kind == yaml.AliasNode {
		var out []Value
		_, err := c.alias(n, func(target *yaml.Node) (Value, error) {
			var err error
			out, err = c.mergeSources(target)
			return Value{}, err
		})
		return out, err
	}
	switch n.Kind {
	case yaml.MappingNode:
		v, err := c.convert(n)
		if err != nil {
			return nil, err
		}
		return []Value{v}, nil
	case yaml.SequenceNode:
		out := make([]Value, 0, len(n.Content))
		for _, child := range n.Content {
			v, err := c.convert(child)
			if err != nil {
				return nil, err
			}
			if !v.IsRecord() {
				return nil, fmt.Errorf("line %d: merge key sequence must hold mappings", child.Line)
			}
			out = append(out, v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("line %d: merge key must reference a mapping", n.Line)
}

// DecodeJSON parses a single JSON document. Key order is preserved and
// integral numbers that fit in int64 become Int values. Empty input decodes
// to an empty record.
func DecodeJSON(data []byte) (Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Record(), nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeJSONValue(dec)
	if err != nil {
		return Value{}, jsonError(dec, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("offset %d: unexpected data after top-level value", dec.InputOffset())
	}
	return v, nil
}

func jsonError(dec *json.Decoder, err error) error {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return fmt.Errorf("offset %d: %w", syn.Offset, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("offset %d: unexpected end of JSON input", dec.InputOffset())
	}
	return fmt.Errorf("offset %d: %w", dec.InputOffset(), err)
}

func decodeJSONValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeJSONToken(dec, tok)
}

func decodeJSONToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return numberValue(t)
	case json.Delim:
		switch t {
		case '{':
			var fields []Field
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key must be a string, got %v", keyTok)
				}
				val, err := decodeJSONValue(dec)
				if err != nil {
					return Value{}, err
				}
				fields = append(fields, Field{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Record(fields...), nil
		case '[':
			var items []Value
			for dec.More() {
				item, err := decodeJSONValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{kind: KindSequence, items: items}, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected JSON token %v", tok)
}

func numberValue(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, fmt.Errorf("invalid number %q: %w", n.String(), err)
	}
	return Float(f), nil
}

// FromAny converts plain Go data (as produced by encoding/json or yaml.v3
// decoding into any) into a Value. Go maps have no order, so their keys are
// sorted.
func FromAny(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case int:
		return Int(int64(v)), nil
	case int8:
		return Int(int64(v)), nil
	case int16:
		return Int(int64(v)), nil
	case int32:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case uint:
		return fromUint(uint64(v)), nil
	case uint8:
		return Int(int64(v)), nil
	case uint16:
		return Int(int64(v)), nil
	case uint32:
		return Int(int64(v)), nil
	case uint64:
		return fromUint(v), nil
	case float32:
		return Float(float64(v)), nil
	case float64:
		return Float(v), nil
	case json.Number:
		return numberValue(v)
	case time.Time:
		return String(v.Format(time.RFC3339Nano)), nil
	case []any:
		items := make([]Value, len(v))
		for i, item := range v {
			iv, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = iv
		}
		return Value{kind: KindSequence, items: items}, nil
	case []string:
		items := make([]Value, len(v))
		for i, s := range v {
			items[i] = String(s)
		}
		return Value{kind: KindSequence, items: items}, nil
	case []map[string]any:
		items := make([]Value, len(v))
		for i, m := range v {
			iv, err := FromAny(m)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = iv
		}
		return Value{kind: KindSequence, items: items}, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			fv, err := FromAny(v[k])
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			fields = append(fields, Field{Key: k, Value: fv})
		}
		return Record(fields...), nil
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, Field{Key: k, Value: String(v[k])})
		}
		return Record(fields...), nil
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[fmt.Sprintf("%v", k)] = val
		}
		return FromAny(m)
	}
	return Value{}, fmt.Errorf("unsupported type %T", x)
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return Float(float64(u))
	}
	return Int(int64(u))
}

// MustFromAny is FromAny that panics on error. Intended for tests and
// package-level literals.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic("value: " + err.Error())
	}
	return v
}
