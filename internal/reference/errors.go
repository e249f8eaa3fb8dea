package reference

import (
	"errors"
	"fmt"
	"strings"
)

// Reference errors. All of them abort the hydration that raised them; none
// are transient, so none are retried.
var (
	// ErrFileNotFound indicates the referenced file does not exist.
	ErrFileNotFound = errors.New("reference file not found")

	// ErrUnsupportedFormat indicates a file extension other than .json, .yml or .yaml.
	ErrUnsupportedFormat = errors.New("unsupported reference format")

	// ErrParse indicates the referenced file is not valid YAML or JSON.
	ErrParse = errors.New("cannot parse reference file")

	// ErrSecurityViolation indicates an absolute path or one that escapes the service root.
	ErrSecurityViolation = errors.New("reference security violation")

	// ErrCircularReference indicates a file that (transitively) references itself.
	ErrCircularReference = errors.New("circular reference")

	// ErrInvalidReference indicates a malformed $ref value.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrRead indicates an I/O failure other than a missing file.
	ErrRead = errors.New("cannot read reference file")

	// ErrDepthExceeded indicates a reference chain longer than the configured maximum.
	ErrDepthExceeded = errors.New("reference chain too deep")
)

// Error describes a failed reference. Ref is the path exactly as the author
// wrote it so messages point back at the source manifest.
type Error struct {
	// Kind is one of the sentinel errors above.
	Kind error

	// Ref is the original, un-normalized reference string.
	Ref string

	// Path is the absolute path the reference resolved to, when known.
	Path string

	// Detail adds a short human explanation.
	Detail string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "$ref %q: %v", e.Ref, e.Kind)
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// CircularReferenceError reports a reference cycle together with the chain
// of files that produced it. The last element of Chain repeats an earlier one.
type CircularReferenceError struct {
	// Ref is the reference string that closed the cycle.
	Ref string

	// Chain lists absolute file paths from the outermost to the repeated file.
	Chain []string
}

// Error implements the error interface.
func (e *CircularReferenceError) Error() string {
	return fmt.Sprintf("$ref %q: %v: %s", e.Ref, ErrCircularReference, strings.Join(e.Chain, " -> "))
}

// Is makes errors.Is(err, ErrCircularReference) match.
func (e *CircularReferenceError) Is(target error) bool {
	return target == ErrCircularReference
}
