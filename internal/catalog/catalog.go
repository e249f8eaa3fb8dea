// Package catalog serves the organisation-wide layers that sit underneath
// a component's own configuration.
//
// A catalog is a directory:
//
//	components/<type>.yml      schema and defaults for a component type
//	platform/<type>.yml        platform team settings for the type (optional)
//	compliance/<framework>.yml per-type defaults and enforced values (optional)
//
// A compliance file looks like:
//
//	defaults:
//	  postgres:
//	    backup_retention_days: 35
//	enforced:
//	  postgres:
//	    encryption: {enabled: true}
//
// Defaults become the compliance layer; enforced values become the policy
// layer, which nothing can override.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/cameronsjo/keel/internal/cache"
	"github.com/cameronsjo/keel/internal/ctxlog"
	"github.com/cameronsjo/keel/internal/precedence"
	"github.com/cameronsjo/keel/internal/reference"
	"github.com/cameronsjo/keel/internal/value"
)

// ErrUnknownComponentType indicates a type with no components/<type> file.
var ErrUnknownComponentType = errors.New("unknown component type")

// ErrInvalidName indicates a type or framework name that cannot name a file.
var ErrInvalidName = errors.New("invalid catalog name")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// extensions are tried in order when looking for a catalog file.
var extensions = []string{".yml", ".yaml", ".json"}

// Catalog reads catalog files from a directory.
type Catalog struct {
	root   string
	guard  *reference.Guard
	loader reference.FileLoader
	cache  *cache.FileCache
}

// Option is a functional option for configuring the Catalog.
type Option func(*Catalog)

// WithCache shares a file cache between catalogs or runs.
func WithCache(c *cache.FileCache) Option {
	return func(cat *Catalog) {
		cat.cache = c
	}
}

// WithLoader replaces the file loader.
func WithLoader(l reference.FileLoader) Option {
	return func(cat *Catalog) {
		cat.loader = l
	}
}

// New creates a Catalog rooted at dir.
func New(dir string, opts ...Option) (*Catalog, error) {
	guard, err := reference.NewGuard(dir)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	c := &Catalog{
		root:   guard.Root(),
		guard:  guard,
		loader: reference.NewLoader(guard.Root()),
		cache:  cache.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Root returns the catalog directory.
func (c *Catalog) Root() string { return c.root }

// Cache returns the file cache in use.
func (c *Catalog) Cache() *cache.FileCache { return c.cache }

// Layers returns the fallback, platform, compliance and policy layers for a
// component type, plus its compiled schema (nil when the type declares
// none). framework may be empty.
func (c *Catalog) Layers(ctx context.Context, componentType, framework string) ([]precedence.Layer, *precedence.Schema, error) {
	if !namePattern.MatchString(componentType) {
		return nil, nil, fmt.Errorf("%w: component type %q", ErrInvalidName, componentType)
	}

	def, found, err := c.read(ctx, "components", componentType)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownComponentType, componentType)
	}

	var schema *precedence.Schema
	if doc := def.Get("schema"); !doc.IsAbsent() {
		schema, err = precedence.CompileSchema(componentType, doc)
		if err != nil {
			return nil, nil, err
		}
	}

	layers := []precedence.Layer{
		precedence.NewLayer(precedence.LayerFallback, def.Get("defaults")),
	}

	platform, found, err := c.read(ctx, "platform", componentType)
	if err != nil {
		return nil, nil, err
	}
	if found {
		layers = append(layers, precedence.NewLayer(precedence.LayerPlatform, platform))
	}

	if framework != "" {
		if !namePattern.MatchString(framework) {
			return nil, nil, fmt.Errorf("%w: compliance framework %q", ErrInvalidName, framework)
		}
		rules, found, err := c.read(ctx, "compliance", framework)
		if err != nil {
			return nil, nil, err
		}
		if found {
			layers = append(layers,
				precedence.NewLayer(precedence.LayerCompliance, rules.Lookup("defaults", componentType)),
				precedence.NewLayer(precedence.LayerPolicy, rules.Lookup("enforced", componentType)),
			)
		} else {
			ctxlog.FromContext(ctx).Warn("compliance framework has no catalog file",
				"framework", framework,
				"catalog", c.root,
			)
		}
	}

	return layers, schema, nil
}

// Types lists the component types the catalog defines.
func (c *Catalog) Types() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.root, "components"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list component types: %w", err)
	}

	seen := make(map[string]bool)
	var types []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		for _, want := range extensions {
			if ext != want {
				continue
			}
			name := e.Name()[:len(e.Name())-len(ext)]
			if !seen[name] {
				seen[name] = true
				types = append(types, name)
			}
		}
	}
	return types, nil
}

// read loads dir/name with the first extension that exists.
func (c *Catalog) read(ctx context.Context, dir, name string) (value.Value, bool, error) {
	for _, ext := range extensions {
		ref := dir + "/" + name + ext
		path, err := c.guard.Resolve(c.root, ref)
		if err != nil {
			return value.Value{}, false, err
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return value.Value{}, false, fmt.Errorf("stat catalog file %s: %w", ref, err)
		}

		v, err := c.cache.Get(ctx, path, func(ctx context.Context, p string) (value.Value, error) {
			return c.loader.Load(ctx, p, ref)
		})
		if err != nil {
			return value.Value{}, false, fmt.Errorf("catalog: %w", err)
		}
		return v, true, nil
	}
	return value.Value{}, false, nil
}
