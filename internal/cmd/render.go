package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"

	"github.com/cameronsjo/keel/internal/config"
	"github.com/cameronsjo/keel/internal/value"
)

// render formats doc as YAML, JSON or through a Go template. A template
// takes precedence over format.
func render(doc value.Value, format, tmplPath string) ([]byte, error) {
	if tmplPath != "" {
		return renderTemplate(doc, tmplPath)
	}

	switch format {
	case config.FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return encodeYAML(doc)
	}
}

func encodeYAML(doc value.Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func renderTemplate(doc value.Value, tmplPath string) ([]byte, error) {
	content, err := os.ReadFile(tmplPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}

	// Create template with sprig and keel functions
	tmpl := template.New(filepath.Base(tmplPath)).
		Funcs(sprig.TxtFuncMap()).
		Funcs(keelRenderFuncs())

	tmpl, err = tmpl.Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, doc.Interface()); err != nil {
		return nil, fmt.Errorf("render error: %w", err)
	}
	return buf.Bytes(), nil
}

// keelRenderFuncs returns template functions on top of sprig.
func keelRenderFuncs() template.FuncMap {
	return template.FuncMap{
		"toYaml": func(v any) (string, error) {
			converted, err := value.FromAny(v)
			if err != nil {
				return "", fmt.Errorf("toYaml: %w", err)
			}
			data, err := encodeYAML(converted)
			if err != nil {
				return "", fmt.Errorf("toYaml: %w", err)
			}
			return strings.TrimSuffix(string(data), "\n"), nil
		},
		"include": func(path string) (string, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("include %s: %w", path, err)
			}
			return string(data), nil
		},
	}
}
