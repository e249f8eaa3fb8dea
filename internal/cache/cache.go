// Package cache provides an explicit, caller-owned cache of parsed files.
//
// Entries are keyed by absolute path and revalidated against the file's
// modification time and size on every Get, so edits on disk are picked up
// without restarting. There is no package-level cache; whoever needs one
// creates it and passes it along.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cameronsjo/keel/internal/value"
)

// LoadFunc parses the file at path.
type LoadFunc func(ctx context.Context, path string) (value.Value, error)

// Stats counts cache activity.
type Stats struct {
	Entries int
	Hits    int
	Misses  int
}

type entry struct {
	modTime time.Time
	size    int64
	val     value.Value
}

// FileCache caches parsed file content. It is safe for concurrent use.
type FileCache struct {
	mu      sync.Mutex
	entries map[string]entry
	hits    int
	misses  int
}

// New creates an empty FileCache.
func New() *FileCache {
	return &FileCache{entries: make(map[string]entry)}
}

// Get returns the cached value for path when the file is unchanged and
// calls load otherwise. Load errors are returned and not cached.
func (c *FileCache) Get(ctx context.Context, path string, load LoadFunc) (value.Value, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return value.Value{}, fmt.Errorf("resolve cache key %q: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		// let the loader report a missing file in its own terms
		c.Invalidate(abs)
		return load(ctx, abs)
	}

	c.mu.Lock()
	e, ok := c.entries[abs]
	if ok && e.modTime.Equal(info.ModTime()) && e.size == info.Size() {
		c.hits++
		c.mu.Unlock()
		return e.val, nil
	}
	c.misses++
	c.mu.Unlock()

	v, err := load(ctx, abs)
	if err != nil {
		return value.Value{}, err
	}

	c.mu.Lock()
	c.entries[abs] = entry{modTime: info.ModTime(), size: info.Size(), val: v}
	c.mu.Unlock()
	return v, nil
}

// Invalidate drops the entry for path.
func (c *FileCache) Invalidate(path string) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// Clear drops every entry and resets the counters.
func (c *FileCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.hits, c.misses = 0, 0
	c.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (c *FileCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
