// Package reference resolves $ref pointers inside a manifest's environments
// block.
//
// A pointer is a record with a string "$ref" key holding a path relative to
// the directory of the file that contains it:
//
//	environments:
//	  dev:
//	    $ref: ./envs/dev.yml
//	  prod:
//	    defaults:
//	      size: large
//
// Loaded files are resolved recursively. Sibling keys next to "$ref" are kept
// and the loaded content is merged over them. Cycles are detected per branch
// and every path is confined to the service root.
package reference

import (
	"context"
	"errors"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/cameronsjo/keel/internal/ctxlog"
	"github.com/cameronsjo/keel/internal/merge"
	"github.com/cameronsjo/keel/internal/value"
)

// RefKey is the record key that marks a reference pointer.
const RefKey = "$ref"

// EnvironmentsKey is the only manifest key that is walked for references.
const EnvironmentsKey = "environments"

const (
	// DefaultConcurrency bounds parallel sibling loads.
	DefaultConcurrency = 8

	// DefaultMaxDepth bounds the length of a single reference chain.
	DefaultMaxDepth = 32
)

// IsPointer reports whether v is a record carrying a "$ref" key.
func IsPointer(v value.Value) bool {
	return v.IsRecord() && v.Has(RefKey)
}

// Resolver hydrates reference pointers.
type Resolver struct {
	guard       *Guard
	loader      FileLoader
	concurrency int
	maxDepth    int
}

// ResolverOption is a functional option for configuring the Resolver.
type ResolverOption func(*Resolver)

// WithConcurrency sets how many sibling references load in parallel.
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithMaxDepth sets the longest permitted reference chain.
func WithMaxDepth(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// NewResolver creates a Resolver.
func NewResolver(guard *Guard, loader FileLoader, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		guard:       guard,
		loader:      loader,
		concurrency: DefaultConcurrency,
		maxDepth:    DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns doc with every reference in its environments block
// replaced by the loaded content. All other keys are returned untouched.
// doc itself is not modified.
func (r *Resolver) Resolve(ctx context.Context, doc value.Value, rc *Context) (value.Value, error) {
	envs := doc.Get(EnvironmentsKey)
	if envs.IsAbsent() {
		return doc, nil
	}

	resolved, err := r.resolveBlock(ctx, rc.seed(), rc.BaseDir, envs)
	if err != nil {
		return value.Value{}, err
	}
	return doc.With(EnvironmentsKey, resolved), nil
}

// resolveBlock handles an environments-shaped mapping: either a pointer to a
// file holding the mapping, or the mapping itself.
func (r *Resolver) resolveBlock(ctx context.Context, ch chain, dir string, block value.Value) (value.Value, error) {
	if !IsPointer(block) {
		if !block.IsRecord() {
			return block, nil
		}
		return r.resolveEntries(ctx, ch, dir, block)
	}

	loaded, next, err := r.follow(ctx, ch, dir, block)
	if err != nil {
		return value.Value{}, err
	}
	loaded, err = r.resolveBlock(ctx, next, filepath.Dir(next[len(next)-1].path), loaded)
	if err != nil {
		return value.Value{}, err
	}

	siblings := block.Without(RefKey)
	if siblings.Len() == 0 {
		return loaded, nil
	}
	siblings, err = r.resolveEntries(ctx, ch, dir, siblings)
	if err != nil {
		return value.Value{}, err
	}
	return merge.DeepMerge(siblings, loaded), nil
}

// resolveEntries resolves each entry of a mapping independently. Entries are
// siblings, so they run concurrently; each gets the chain as it stands.
func (r *Resolver) resolveEntries(ctx context.Context, ch chain, dir string, block value.Value) (value.Value, error) {
	fields := block.Fields()
	errs := make([]error, len(fields))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, f := range fields {
		if err := ctx.Err(); err != nil {
			_ = g.Wait()
			return value.Value{}, err
		}
		if !containsPointer(f.Value) {
			continue
		}
		g.Go(func() error {
			v, err := r.resolveValue(gctx, ch, dir, f.Value)
			if err != nil {
				errs[i] = err
				return err
			}
			fields[i].Value = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return value.Value{}, firstError(ctx, errs, err)
	}
	return value.Record(fields...), nil
}

// firstError picks the failure of the earliest sibling in source order so
// the reported error does not depend on goroutine scheduling. Siblings that
// only stopped because the group was cancelled are skipped.
func firstError(ctx context.Context, errs []error, fallback error) error {
	for _, err := range errs {
		if err == nil {
			continue
		}
		if ctx.Err() == nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			continue
		}
		return err
	}
	return fallback
}

// resolveValue walks v depth-first along a single chain.
func (r *Resolver) resolveValue(ctx context.Context, ch chain, dir string, v value.Value) (value.Value, error) {
	switch {
	case IsPointer(v):
		loaded, next, err := r.follow(ctx, ch, dir, v)
		if err != nil {
			return value.Value{}, err
		}
		loaded, err = r.resolveValue(ctx, next, filepath.Dir(next[len(next)-1].path), loaded)
		if err != nil {
			return value.Value{}, err
		}

		siblings := v.Without(RefKey)
		if siblings.Len() == 0 {
			return loaded, nil
		}
		siblings, err = r.resolveValue(ctx, ch, dir, siblings)
		if err != nil {
			return value.Value{}, err
		}
		return merge.DeepMerge(siblings, loaded), nil

	case v.IsRecord():
		fields := v.Fields()
		for i, f := range fields {
			if !containsPointer(f.Value) {
				continue
			}
			resolved, err := r.resolveValue(ctx, ch, dir, f.Value)
			if err != nil {
				return value.Value{}, err
			}
			fields[i].Value = resolved
		}
		return value.Record(fields...), nil

	case v.IsSequence():
		items := v.Items()
		for i, item := range items {
			if !containsPointer(item) {
				continue
			}
			resolved, err := r.resolveValue(ctx, ch, dir, item)
			if err != nil {
				return value.Value{}, err
			}
			items[i] = resolved
		}
		return value.Seq(items...), nil
	}
	return v, nil
}

// follow validates and loads the file named by a pointer, returning its
// content and the chain extended by that file.
func (r *Resolver) follow(ctx context.Context, ch chain, dir string, ptr value.Value) (value.Value, chain, error) {
	if err := ctx.Err(); err != nil {
		return value.Value{}, nil, err
	}

	refVal := ptr.Get(RefKey)
	ref, ok := refVal.AsString()
	if !ok {
		return value.Value{}, nil, &Error{
			Kind:   ErrInvalidReference,
			Ref:    refVal.Text(),
			Detail: "$ref must be a string, got " + refVal.Kind().String(),
		}
	}

	path, err := r.guard.Resolve(dir, ref)
	if err != nil {
		return value.Value{}, nil, err
	}

	if ch.contains(path) {
		return value.Value{}, nil, &CircularReferenceError{
			Ref:   ref,
			Chain: append(ch.paths(), path),
		}
	}
	if len(ch) >= r.maxDepth {
		return value.Value{}, nil, &Error{Kind: ErrDepthExceeded, Ref: ref, Path: path}
	}

	loaded, err := r.loader.Load(ctx, path, ref)
	if err != nil {
		return value.Value{}, nil, err
	}

	ctxlog.FromContext(ctx).Debug("loaded reference",
		"ref", ref,
		"path", path,
		"depth", len(ch)+1,
	)
	return loaded, ch.push(frame{path: path, ref: ref}), nil
}

// containsPointer reports whether v holds a pointer anywhere below it.
func containsPointer(v value.Value) bool {
	switch {
	case IsPointer(v):
		return true
	case v.IsRecord():
		for _, f := range v.Fields() {
			if containsPointer(f.Value) {
				return true
			}
		}
	case v.IsSequence():
		for _, item := range v.Items() {
			if containsPointer(item) {
				return true
			}
		}
	}
	return false
}
