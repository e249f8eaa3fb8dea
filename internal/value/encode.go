package value

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Interface converts v into plain Go data: map[string]any, []any, string,
// bool, int64, float64 or nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindSequence:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Interface()
		}
		return out
	case KindRecord:
		out := make(map[string]any, len(v.keys))
		for _, k := range v.keys {
			out[k] = v.fields[k].Interface()
		}
		return out
	default:
		return nil
	}
}

// JSONCompatible converts v into the shapes encoding/json produces with
// UseNumber: numbers become json.Number. Non-finite floats become strings.
func (v Value) JSONCompatible() any {
	switch v.kind {
	case KindScalar:
		switch s := v.scalar.(type) {
		case int64:
			return json.Number(strconv.FormatInt(s, 10))
		case float64:
			if math.IsNaN(s) || math.IsInf(s, 0) {
				return strconv.FormatFloat(s, 'g', -1, 64)
			}
			return json.Number(strconv.FormatFloat(s, 'g', -1, 64))
		default:
			return s
		}
	case KindSequence:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.JSONCompatible()
		}
		return out
	case KindRecord:
		out := make(map[string]any, len(v.keys))
		for _, k := range v.keys {
			out[k] = v.fields[k].JSONCompatible()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes v with record keys in order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindScalar:
		if f, ok := v.scalar.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			data, _ := json.Marshal(strconv.FormatFloat(f, 'g', -1, 64))
			buf.Write(data)
			return nil
		}
		data, err := json.Marshal(v.scalar)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindSequence:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindRecord:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := v.fields[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		buf.WriteString("null")
	}
	return nil
}

// UnmarshalJSON decodes JSON into v, preserving key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeJSON(data)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// MarshalYAML implements yaml.Marshaler, emitting record keys in order.
func (v Value) MarshalYAML() (any, error) {
	return v.Node(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Value) UnmarshalYAML(n *yaml.Node) error {
	c := &yamlConverter{}
	decoded, err := c.convert(n)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// Node converts v into a yaml.Node tree.
func (v Value) Node() *yaml.Node {
	switch v.kind {
	case KindScalar:
		switch s := v.scalar.(type) {
		case string:
			n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
			if strings.Contains(s, "\n") {
				n.Style = yaml.LiteralStyle
			}
			return n
		case bool:
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(s)}
		case int64:
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(s, 10)}
		case float64:
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: yamlFloat(s)}
		}
	case KindSequence:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.items {
			n.Content = append(n.Content, item.Node())
		}
		return n
	case KindRecord:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range v.keys {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				v.fields[k].Node(),
			)
		}
		return n
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

func yamlFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// String renders v as compact JSON.
func (v Value) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}
	return string(data)
}
