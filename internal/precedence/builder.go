package precedence

import (
	"context"
	"fmt"
	"strings"

	"github.com/cameronsjo/keel/internal/ctxlog"
	"github.com/cameronsjo/keel/internal/interpolate"
	"github.com/cameronsjo/keel/internal/merge"
	"github.com/cameronsjo/keel/internal/value"
)

// Result is a built configuration. It is returned even when validation
// fails; callers decide what to do with error issues.
type Result struct {
	// Config is the merged, coerced configuration.
	Config value.Value

	// Issues are sorted by path, then severity (errors first), then message.
	Issues []Issue

	// Sources maps each leaf path of Config to the layer that supplied it.
	Sources map[string]string
}

// Failed reports whether any error issue exists.
func (r *Result) Failed() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the error issues.
func (r *Result) Errors() []Issue { return r.filter(SeverityError) }

// Warnings returns the warning issues.
func (r *Result) Warnings() []Issue { return r.filter(SeverityWarning) }

func (r *Result) filter(sev Severity) []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Severity == sev {
			out = append(out, is)
		}
	}
	return out
}

// Builder folds layers into a configuration.
type Builder struct {
	coerce bool
}

// BuilderOption is a functional option for configuring the Builder.
type BuilderOption func(*Builder)

// WithStrictTypes disables scalar coercion, so a "3" where the schema wants
// an integer is a type error instead of a warning.
func WithStrictTypes() BuilderOption {
	return func(b *Builder) {
		b.coerce = false
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{coerce: true}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build merges layers in priority order and validates the result against
// schema. A nil schema skips coercion and validation. The only errors
// returned are context errors.
func (b *Builder) Build(ctx context.Context, layers []Layer, schema *Schema) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sorted := sortLayers(layers)
	cfg := value.Record()
	for _, l := range sorted {
		cfg = merge.DeepMerge(cfg, l.Values)
	}

	var issues []Issue
	if schema != nil && b.coerce {
		var coerced []Issue
		cfg, coerced = schema.coerce(cfg)
		issues = append(issues, coerced...)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if schema != nil {
		issues = append(issues, schema.validate(cfg)...)
		issues = append(issues, schema.deprecations(cfg)...)
	}

	for path, keys := range interpolate.UnresolvedPaths(cfg) {
		for _, key := range keys {
			issues = append(issues, Issue{
				Path:     path,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("unresolved variable ${env:%s}", key),
			})
		}
	}

	sources := provenance(cfg, sorted)
	for i := range issues {
		issues[i].Layer = sourceOf(sources, issues[i].Path)
	}
	sortIssues(issues)
	issues = dedupeIssues(issues)

	ctxlog.FromContext(ctx).Debug("built configuration",
		"layers", len(sorted),
		"issues", len(issues),
	)

	return &Result{Config: cfg, Issues: issues, Sources: sources}, nil
}

// provenance maps every leaf of cfg to the last layer, in application
// order, that defines a value at that path. Sequences are leaves because
// they are replaced wholesale.
func provenance(cfg value.Value, sorted []Layer) map[string]string {
	sources := make(map[string]string)
	leaves(cfg, nil, func(path []string) {
		for i := len(sorted) - 1; i >= 0; i-- {
			if !sorted[i].Values.Lookup(path...).IsAbsent() {
				sources[strings.Join(path, ".")] = sorted[i].Name
				return
			}
		}
	})
	return sources
}

func leaves(v value.Value, path []string, fn func(path []string)) {
	if !v.IsRecord() || (v.Len() == 0 && len(path) > 0) {
		if len(path) > 0 {
			fn(path)
		}
		return
	}
	for _, f := range v.Fields() {
		leaves(f.Value, appendPath(path, f.Key), fn)
	}
}

// sourceOf finds the layer for path or its nearest ancestor leaf.
func sourceOf(sources map[string]string, path string) string {
	for {
		if name, ok := sources[path]; ok {
			return name
		}
		i := strings.LastIndexByte(path, '.')
		if i < 0 {
			return ""
		}
		path = path[:i]
	}
}
