package reference

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Guard confines reference paths to a service root. It only does path
// arithmetic and never touches the filesystem.
type Guard struct {
	root string
}

// NewGuard returns a Guard for root. Relative roots are made absolute
// against the working directory.
func NewGuard(root string) (*Guard, error) {
	if root == "" {
		return nil, fmt.Errorf("service root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve service root %q: %w", root, err)
	}
	return &Guard{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute service root.
func (g *Guard) Root() string {
	return g.root
}

// Resolve joins ref onto baseDir and returns the cleaned absolute path.
// Absolute refs and refs that land outside the service root fail with
// ErrSecurityViolation. A relative baseDir is taken relative to the root.
func (g *Guard) Resolve(baseDir, ref string) (string, error) {
	if ref == "" {
		return "", &Error{Kind: ErrInvalidReference, Ref: ref, Detail: "empty path"}
	}
	if strings.ContainsRune(ref, 0) {
		return "", &Error{Kind: ErrInvalidReference, Ref: ref, Detail: "path contains NUL byte"}
	}
	if isAbsolute(ref) {
		return "", &Error{Kind: ErrSecurityViolation, Ref: ref, Detail: "absolute paths are not allowed"}
	}

	base := baseDir
	if base == "" {
		base = g.root
	} else if !filepath.IsAbs(base) {
		base = filepath.Join(g.root, base)
	}

	resolved := filepath.Join(base, filepath.FromSlash(ref))
	if !g.Contains(resolved) {
		return "", &Error{
			Kind:   ErrSecurityViolation,
			Ref:    ref,
			Path:   resolved,
			Detail: "path resolves outside the service root",
		}
	}
	return resolved, nil
}

// Contains reports whether path is the root or lies below it.
func (g *Guard) Contains(path string) bool {
	rel, err := filepath.Rel(g.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// isAbsolute catches POSIX, Windows drive and UNC style absolute paths on
// every platform, so a manifest written on one OS is judged the same on another.
func isAbsolute(ref string) bool {
	if filepath.IsAbs(ref) || filepath.VolumeName(ref) != "" {
		return true
	}
	if strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, `\`) {
		return true
	}
	return len(ref) >= 2 && ref[1] == ':' && isLetter(ref[0])
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
