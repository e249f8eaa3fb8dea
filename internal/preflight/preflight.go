// Package preflight checks for external binaries before they are needed.
package preflight

import (
	"errors"
	"fmt"
	"os/exec"
)

// ErrMissingBinary indicates a required binary is not on PATH.
var ErrMissingBinary = errors.New("required binary not found")

// BinaryCheck represents an external binary and its purpose.
type BinaryCheck struct {
	Name        string
	Required    bool   // false = warning only
	InstallHint string // e.g., "brew install sops" or "https://..."
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// SOPS returns the check for the sops binary used to decrypt secrets
// files. An empty name means "sops".
func SOPS(name string) BinaryCheck {
	if name == "" {
		name = "sops"
	}
	return BinaryCheck{
		Name:        name,
		Required:    true,
		InstallHint: "Install sops: https://github.com/getsops/sops/releases",
	}
}

// Missing returns the checks whose binary is not available.
func Missing(checks ...BinaryCheck) []BinaryCheck {
	var missing []BinaryCheck
	for _, bin := range checks {
		if !IsBinaryAvailable(bin.Name) {
			missing = append(missing, bin)
		}
	}
	return missing
}

// Require fails with ErrMissingBinary for every missing required binary
// and returns the missing optional ones as warnings.
func Require(checks ...BinaryCheck) (warnings []string, err error) {
	var errs []error
	for _, bin := range Missing(checks...) {
		if bin.Required {
			errs = append(errs, fmt.Errorf("%w: %s (%s)", ErrMissingBinary, bin.Name, bin.InstallHint))
		} else {
			warnings = append(warnings, bin.Name+": "+bin.InstallHint)
		}
	}
	return warnings, errors.Join(errs...)
}

// IsBinaryAvailable checks if a specific binary is available in PATH.
func IsBinaryAvailable(name string) bool {
	_, err := lookPath(name)
	return err == nil
}
