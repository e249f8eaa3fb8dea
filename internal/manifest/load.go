package manifest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cameronsjo/keel/internal/reference"
	"github.com/cameronsjo/keel/internal/value"
)

// ErrInvalidManifest indicates a manifest whose shape cannot be used.
var ErrInvalidManifest = errors.New("invalid manifest")

// Load reads the manifest at path. YAML and JSON are both accepted.
func Load(ctx context.Context, path string) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path %q: %w", path, err)
	}

	doc, err := reference.NewLoader(filepath.Dir(abs)).Load(ctx, abs, filepath.Base(abs))
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	if !doc.IsRecord() {
		return nil, fmt.Errorf("%w: %s: top level must be a mapping, got %s", ErrInvalidManifest, path, doc.Kind())
	}

	return &Manifest{path: abs, doc: doc}, nil
}

// Parse decodes manifest content. path is used for relative references and
// messages and may be empty.
func Parse(data []byte, path string) (*Manifest, error) {
	doc, err := value.DecodeYAML(data)
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if !doc.IsRecord() {
		return nil, fmt.Errorf("%w: top level must be a mapping, got %s", ErrInvalidManifest, doc.Kind())
	}
	return New(doc, path), nil
}

// Components returns the declared components in manifest order. Both the
// list form and the map form are accepted.
func (m *Manifest) Components() ([]Component, error) {
	raw := m.doc.Get(KeyComponents)

	switch {
	case raw.IsAbsent(), raw.IsNull():
		return nil, nil

	case raw.IsSequence():
		components := make([]Component, 0, raw.Len())
		for i, item := range raw.Items() {
			if !item.IsRecord() {
				return nil, fmt.Errorf("%w: components[%d] must be a mapping, got %s", ErrInvalidManifest, i, item.Kind())
			}
			name, ok := item.Get("name").AsString()
			if !ok || name == "" {
				return nil, fmt.Errorf("%w: components[%d] needs a string name", ErrInvalidManifest, i)
			}
			c, err := componentFrom(name, item)
			if err != nil {
				return nil, err
			}
			components = append(components, c)
		}
		return components, nil

	case raw.IsRecord():
		components := make([]Component, 0, raw.Len())
		for _, f := range raw.Fields() {
			if !f.Value.IsRecord() {
				return nil, fmt.Errorf("%w: components.%s must be a mapping, got %s", ErrInvalidManifest, f.Key, f.Value.Kind())
			}
			c, err := componentFrom(f.Key, f.Value)
			if err != nil {
				return nil, err
			}
			components = append(components, c)
		}
		return components, nil
	}

	return nil, fmt.Errorf("%w: components must be a list or a mapping, got %s", ErrInvalidManifest, raw.Kind())
}

// Component returns the named component.
func (m *Manifest) Component(name string) (Component, bool) {
	components, err := m.Components()
	if err != nil {
		return Component{}, false
	}
	for _, c := range components {
		if c.Name == name {
			return c, true
		}
	}
	return Component{}, false
}

func componentFrom(name string, rec value.Value) (Component, error) {
	c := Component{
		Name:      name,
		Config:    rec.Get("config"),
		Overrides: rec.Get("overrides"),
	}

	typ := rec.Get("type")
	if !typ.IsAbsent() {
		s, ok := typ.AsString()
		if !ok {
			return Component{}, fmt.Errorf("%w: component %q: type must be a string", ErrInvalidManifest, name)
		}
		c.Type = s
	}

	// an empty "config:" or "overrides:" means nothing was set
	if c.Config.IsNull() {
		c.Config = value.Value{}
	}
	if c.Overrides.IsNull() {
		c.Overrides = value.Value{}
	}

	if !c.Config.IsAbsent() && !c.Config.IsRecord() {
		return Component{}, fmt.Errorf("%w: component %q: config must be a mapping", ErrInvalidManifest, name)
	}
	if !c.Overrides.IsAbsent() && !c.Overrides.IsRecord() {
		return Component{}, fmt.Errorf("%w: component %q: overrides must be a mapping of environment to config", ErrInvalidManifest, name)
	}
	return c, nil
}
