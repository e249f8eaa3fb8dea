// Package hydrate turns a service manifest into fully resolved,
// environment-specific configuration.
//
// Hydration runs three phases in order:
//
//  1. references: $ref pointers in the environments block are loaded
//  2. interpolation: ${env:KEY} tokens are replaced from caller variables
//     and the environment's defaults block
//  3. precedence: each component's layers are merged and validated
//
// A failure in any phase stops the run and is returned as a *PhaseError.
// Validation issues are not failures; they are reported per component.
package hydrate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cameronsjo/keel/internal/ctxlog"
	"github.com/cameronsjo/keel/internal/interpolate"
	"github.com/cameronsjo/keel/internal/manifest"
	"github.com/cameronsjo/keel/internal/merge"
	"github.com/cameronsjo/keel/internal/precedence"
	"github.com/cameronsjo/keel/internal/reference"
	"github.com/cameronsjo/keel/internal/value"
)

// LayerSource supplies the catalog layers and schema for a component type.
// framework is the manifest's compliance framework and may be empty.
type LayerSource interface {
	Layers(ctx context.Context, componentType, framework string) ([]precedence.Layer, *precedence.Schema, error)
}

// ComponentResult is the built configuration of one component.
type ComponentResult struct {
	Name   string
	Type   string
	Result *precedence.Result
}

// Config returns the component's merged configuration.
func (c ComponentResult) Config() value.Value { return c.Result.Config }

// Result is the output of a successful hydration.
type Result struct {
	// RunID correlates the log lines of this run.
	RunID string

	Environment string

	// Manifest is the manifest document after reference resolution and
	// interpolation.
	Manifest value.Value

	// Components are in manifest order.
	Components []ComponentResult
}

// Failed reports whether any component has error issues.
func (r *Result) Failed() bool {
	for _, c := range r.Components {
		if c.Result.Failed() {
			return true
		}
	}
	return false
}

// Value renders the result as one document: the hydrated manifest with
// each component's resolved configuration under "resolved".
func (r *Result) Value() value.Value {
	resolved := make([]value.Field, 0, len(r.Components))
	for _, c := range r.Components {
		resolved = append(resolved, value.F(c.Name, c.Result.Config))
	}
	return r.Manifest.
		With("environment", value.String(r.Environment)).
		With("resolved", value.Record(resolved...))
}

// Hydrator runs the hydration pipeline. It holds no per-run state and is
// safe for concurrent use.
type Hydrator struct {
	layers      LayerSource
	vars        interpolate.Source
	builder     *precedence.Builder
	logger      *slog.Logger
	root        string
	concurrency int
	maxDepth    int
}

// Option is a functional option for configuring the Hydrator.
type Option func(*Hydrator)

// WithLayerSource sets where fallback, platform, compliance and policy
// layers come from. Without one only environment and user layers apply.
func WithLayerSource(src LayerSource) Option {
	return func(h *Hydrator) {
		h.layers = src
	}
}

// WithVariables sets the variables tried before the environment's
// defaults block during interpolation.
func WithVariables(src interpolate.Source) Option {
	return func(h *Hydrator) {
		h.vars = src
	}
}

// WithBuilder replaces the precedence builder.
func WithBuilder(b *precedence.Builder) Option {
	return func(h *Hydrator) {
		h.builder = b
	}
}

// WithLogger sets the logger. Otherwise the logger in the context is used.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hydrator) {
		h.logger = logger
	}
}

// WithRoot sets the service root references are confined to. It defaults
// to the manifest's directory.
func WithRoot(dir string) Option {
	return func(h *Hydrator) {
		h.root = dir
	}
}

// WithConcurrency bounds parallel reference loads.
func WithConcurrency(n int) Option {
	return func(h *Hydrator) {
		h.concurrency = n
	}
}

// WithMaxDepth bounds reference chains.
func WithMaxDepth(n int) Option {
	return func(h *Hydrator) {
		h.maxDepth = n
	}
}

// New creates a Hydrator.
func New(opts ...Option) *Hydrator {
	h := &Hydrator{
		builder:     precedence.NewBuilder(),
		concurrency: reference.DefaultConcurrency,
		maxDepth:    reference.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Resolve runs only the reference phase and returns the manifest with its
// environments block resolved.
func (h *Hydrator) Resolve(ctx context.Context, m *manifest.Manifest) (*manifest.Manifest, error) {
	rc, err := h.newContext(m)
	if err != nil {
		return nil, phaseError(PhaseReferences, err)
	}
	ctx, _ = h.withLogger(ctx, rc.RunID, "")

	doc, err := h.resolveReferences(ctx, m, rc)
	if err != nil {
		return nil, err
	}
	return m.WithDocument(doc), nil
}

// Hydrate resolves m for environment.
func (h *Hydrator) Hydrate(ctx context.Context, m *manifest.Manifest, environment string) (*Result, error) {
	rc, err := h.newContext(m)
	if err != nil {
		return nil, phaseError(PhaseReferences, err)
	}
	ctx, logger := h.withLogger(ctx, rc.RunID, environment)

	doc, err := h.resolveReferences(ctx, m, rc)
	if err != nil {
		return nil, err
	}

	doc, err = h.interpolate(ctx, doc, environment)
	if err != nil {
		return nil, err
	}

	components, err := h.buildComponents(ctx, m.WithDocument(doc), environment)
	if err != nil {
		return nil, err
	}

	logger.Debug("phase complete", "phase", string(PhaseResolved), "components", len(components))
	return &Result{
		RunID:       rc.RunID,
		Environment: environment,
		Manifest:    doc,
		Components:  components,
	}, nil
}

func (h *Hydrator) newContext(m *manifest.Manifest) (*reference.Context, error) {
	root := h.root
	if root == "" {
		root = m.Dir()
	}
	if root == "" {
		return nil, fmt.Errorf("no service root: manifest has no path and no root was configured")
	}
	return reference.NewContext(root, m.Path())
}

func (h *Hydrator) withLogger(ctx context.Context, runID, environment string) (context.Context, *slog.Logger) {
	logger := h.logger
	if logger == nil {
		logger = ctxlog.FromContext(ctx)
	}
	logger = logger.With("run_id", runID)
	if environment != "" {
		logger = logger.With("environment", environment)
	}
	return ctxlog.WithLogger(ctx, logger), logger
}

func (h *Hydrator) resolveReferences(ctx context.Context, m *manifest.Manifest, rc *reference.Context) (value.Value, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("phase started", "phase", string(PhaseReferences), "root", rc.Root)

	guard, err := reference.NewGuard(rc.Root)
	if err != nil {
		return value.Value{}, phaseError(PhaseReferences, err)
	}
	resolver := reference.NewResolver(guard, reference.NewLoader(rc.Root),
		reference.WithConcurrency(h.concurrency),
		reference.WithMaxDepth(h.maxDepth),
	)

	doc, err := resolver.Resolve(ctx, m.Value(), rc)
	if err != nil {
		return value.Value{}, phaseError(PhaseReferences, err)
	}

	logger.Debug("phase complete", "phase", string(PhaseReferences))
	return doc, nil
}

func (h *Hydrator) interpolate(ctx context.Context, doc value.Value, environment string) (value.Value, error) {
	if err := ctx.Err(); err != nil {
		return value.Value{}, phaseError(PhaseInterpolation, err)
	}
	logger := ctxlog.FromContext(ctx)
	logger.Debug("phase started", "phase", string(PhaseInterpolation))

	envs := doc.Get(manifest.KeyEnvironments)
	env := envs.Get(environment)
	if env.IsAbsent() {
		return value.Value{}, phaseError(PhaseInterpolation,
			fmt.Errorf("%w: %q (declared: %s)", ErrUnknownEnvironment, environment, strings.Join(envs.Keys(), ", ")))
	}

	src := interpolate.Chain(h.vars, interpolate.RecordSource(env.Get("defaults")))
	doc = interpolate.Interpolate(doc, src)

	if missing := interpolate.Unresolved(doc); len(missing) > 0 {
		logger.Warn("unresolved variables", "keys", missing)
	}

	logger.Debug("phase complete", "phase", string(PhaseInterpolation))
	return doc, nil
}

func (h *Hydrator) buildComponents(ctx context.Context, m *manifest.Manifest, environment string) ([]ComponentResult, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("phase started", "phase", string(PhasePrecedence))

	components, err := m.Components()
	if err != nil {
		return nil, phaseError(PhasePrecedence, err)
	}
	envComponents := m.Environments().Lookup(environment, "components")

	results := make([]ComponentResult, 0, len(components))
	for _, c := range components {
		layers, schema, err := h.catalogLayers(ctx, c, m.ComplianceFramework())
		if err != nil {
			return nil, phaseError(PhasePrecedence, fmt.Errorf("component %s: %w", c.Name, err))
		}

		layers = append(layers,
			precedence.NewLayer(precedence.LayerEnvironment, envComponents.Get(c.Name)),
			precedence.NewLayer(precedence.LayerUser, merge.DeepMerge(c.Config, c.Override(environment))),
		)

		built, err := h.builder.Build(ctx, layers, schema)
		if err != nil {
			return nil, phaseError(PhasePrecedence, fmt.Errorf("component %s: %w", c.Name, err))
		}
		if built.Failed() {
			logger.Warn("component configuration has errors",
				"component", c.Name,
				"errors", len(built.Errors()),
			)
		}

		results = append(results, ComponentResult{Name: c.Name, Type: c.Type, Result: built})
	}

	logger.Debug("phase complete", "phase", string(PhasePrecedence))
	return results, nil
}

func (h *Hydrator) catalogLayers(ctx context.Context, c manifest.Component, framework string) ([]precedence.Layer, *precedence.Schema, error) {
	if h.layers == nil || c.Type == "" {
		return nil, nil, nil
	}
	return h.layers.Layers(ctx, c.Type, framework)
}
