package hydrate

import (
	"errors"
	"fmt"
)

// Phase names a stage of hydration.
type Phase string

// Hydration phases, in the order they run.
const (
	PhaseReferences    Phase = "references"
	PhaseInterpolation Phase = "interpolation"
	PhasePrecedence    Phase = "precedence"
	PhaseResolved      Phase = "resolved"
)

// ErrUnknownEnvironment indicates an environment the manifest does not
// declare, even after its references were resolved.
var ErrUnknownEnvironment = errors.New("unknown environment")

// PhaseError records which phase a hydration failed in.
type PhaseError struct {
	Phase Phase
	Err   error
}

// Error implements the error interface.
func (e *PhaseError) Error() string {
	return fmt.Sprintf("hydrate: %s: %v", e.Phase, e.Err)
}

// Unwrap returns the underlying error.
func (e *PhaseError) Unwrap() error {
	return e.Err
}

func phaseError(phase Phase, err error) error {
	var existing *PhaseError
	if errors.As(err, &existing) {
		return err
	}
	return &PhaseError{Phase: phase, Err: err}
}
