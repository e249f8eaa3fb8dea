package reference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cameronsjo/keel/internal/value"
)

// DefaultMaxFileSize caps how much of a referenced file is read (8 MiB).
const DefaultMaxFileSize = 8 << 20

// Parser turns file content into a value.
type Parser func(data []byte) (value.Value, error)

// FileLoader loads and parses one referenced file.
type FileLoader interface {
	// Load reads absPath and parses it by extension. ref is the original
	// reference string and is carried into any error.
	Load(ctx context.Context, absPath, ref string) (value.Value, error)
}

// Loader reads YAML and JSON files from disk.
type Loader struct {
	root    string
	maxSize int64
	parsers map[string]Parser
}

// LoaderOption is a functional option for configuring the Loader.
type LoaderOption func(*Loader)

// WithMaxFileSize sets the largest file the loader will read.
func WithMaxFileSize(n int64) LoaderOption {
	return func(l *Loader) {
		l.maxSize = n
	}
}

// WithParser registers a parser for an extension such as ".toml".
func WithParser(ext string, p Parser) LoaderOption {
	return func(l *Loader) {
		l.parsers[strings.ToLower(ext)] = p
	}
}

// NewLoader creates a Loader. When root is non-empty, files are opened
// through os.OpenRoot so symlinks cannot lead outside root.
func NewLoader(root string, opts ...LoaderOption) *Loader {
	l := &Loader{
		root:    root,
		maxSize: DefaultMaxFileSize,
		parsers: map[string]Parser{
			".json": value.DecodeJSON,
			".yml":  value.DecodeYAML,
			".yaml": value.DecodeYAML,
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements FileLoader.
func (l *Loader) Load(ctx context.Context, absPath, ref string) (value.Value, error) {
	if err := ctx.Err(); err != nil {
		return value.Value{}, err
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	parse, ok := l.parsers[ext]
	if !ok {
		detail := "no file extension"
		if ext != "" {
			detail = "extension " + ext
		}
		return value.Value{}, &Error{Kind: ErrUnsupportedFormat, Ref: ref, Path: absPath, Detail: detail}
	}

	data, err := l.read(absPath)
	if err != nil {
		return value.Value{}, l.classify(err, absPath, ref)
	}

	v, err := parse(data)
	if err != nil {
		return value.Value{}, &Error{Kind: ErrParse, Ref: ref, Path: absPath, Err: err}
	}
	return v, nil
}

var errTooLarge = errors.New("file too large")

func (l *Loader) read(absPath string) ([]byte, error) {
	f, err := l.open(absPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close() // Best-effort cleanup
	}()

	data, err := io.ReadAll(io.LimitReader(f, l.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.maxSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", errTooLarge, l.maxSize)
	}
	return data, nil
}

func (l *Loader) open(absPath string) (*os.File, error) {
	if l.root == "" {
		return os.Open(absPath)
	}

	rel, err := filepath.Rel(l.root, absPath)
	if err != nil {
		return nil, err
	}

	// Security: Use os.OpenRoot to prevent path traversal attacks
	root, err := os.OpenRoot(l.root)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = root.Close() // Best-effort cleanup
	}()

	return root.Open(rel)
}

func (l *Loader) classify(err error, absPath, ref string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &Error{Kind: ErrFileNotFound, Ref: ref, Path: absPath}
	case isEscape(err):
		return &Error{Kind: ErrSecurityViolation, Ref: ref, Path: absPath, Detail: "path escapes the service root", Err: err}
	default:
		return &Error{Kind: ErrRead, Ref: ref, Path: absPath, Err: err}
	}
}

// isEscape recognises os.Root's refusal to follow a path out of the root.
// The standard library does not export a sentinel for it.
func isEscape(err error) bool {
	return strings.Contains(err.Error(), "path escapes from parent")
}
