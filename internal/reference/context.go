package reference

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

// Context carries the state of one hydration run. It is created per call
// and discarded afterwards; nothing retains it.
type Context struct {
	// RunID correlates log lines of a single run.
	RunID string

	// Root is the absolute service root.
	Root string

	// BaseDir is the directory relative refs in the root document are
	// resolved against.
	BaseDir string

	// Source is the absolute path of the root document, if it came from a
	// file. It seeds every chain so a file pointing back at the manifest is
	// reported as a cycle.
	Source string
}

// NewContext creates a Context for the document at source (may be empty)
// inside root. BaseDir defaults to the directory of source, or root.
func NewContext(root, source string) (*Context, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve service root %q: %w", root, err)
	}

	rc := &Context{
		RunID:   uuid.NewString(),
		Root:    filepath.Clean(absRoot),
		BaseDir: filepath.Clean(absRoot),
	}
	if source != "" {
		absSource, err := filepath.Abs(source)
		if err != nil {
			return nil, fmt.Errorf("resolve manifest path %q: %w", source, err)
		}
		rc.Source = absSource
		rc.BaseDir = filepath.Dir(absSource)
	}
	return rc, nil
}

// frame is one in-flight file on a resolution chain.
type frame struct {
	path string
	ref  string
}

// chain is the explicit stack of files being resolved along one branch.
// It is never modified in place: push returns a new chain, so sibling
// branches resolved concurrently each own their copy and popping happens
// simply by dropping the longer chain on return.
type chain []frame

func (c chain) push(f frame) chain {
	next := make(chain, len(c), len(c)+1)
	copy(next, c)
	return append(next, f)
}

func (c chain) contains(path string) bool {
	for _, f := range c {
		if f.path == path {
			return true
		}
	}
	return false
}

func (c chain) paths() []string {
	out := make([]string, len(c))
	for i, f := range c {
		out[i] = f.path
	}
	return out
}

func (rc *Context) seed() chain {
	if rc.Source == "" {
		return nil
	}
	return chain{{path: rc.Source, ref: filepath.Base(rc.Source)}}
}
