package manifest

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"
)

// Validation errors.
var (
	// ErrUnsupportedAPIVersion indicates an unknown or unsupported API version.
	ErrUnsupportedAPIVersion = errors.New("unsupported API version")

	// ErrInvalidKind indicates an unknown manifest kind.
	ErrInvalidKind = errors.New("invalid manifest kind")

	// ErrMissingService indicates a manifest without a service name.
	ErrMissingService = errors.New("missing service field")

	// ErrDuplicateComponent indicates two components with the same name.
	ErrDuplicateComponent = errors.New("duplicate component name")

	// ErrMissingComponentType indicates a component without a type.
	ErrMissingComponentType = errors.New("missing component type")

	// ErrVersionConstraint indicates a keelVersion the running binary does
	// not satisfy, or one that cannot be parsed.
	ErrVersionConstraint = errors.New("keel version constraint not satisfied")
)

// ValidateAPIVersion checks if the provided version is supported.
// Returns nil if the version is valid or empty.
func ValidateAPIVersion(version string) error {
	if version == "" {
		return nil
	}
	if slices.Contains(SupportedAPIVersions, version) {
		return nil
	}
	return fmt.Errorf("%w: %s (supported: %v)", ErrUnsupportedAPIVersion, version, SupportedAPIVersions)
}

// ValidateKind checks if the provided kind is valid. Empty is allowed.
func ValidateKind(kind string) error {
	if kind == "" {
		return nil
	}
	if slices.Contains(SupportedKinds, kind) {
		return nil
	}
	return fmt.Errorf("%w: %s (supported: %v)", ErrInvalidKind, kind, SupportedKinds)
}

// ValidateKeelVersion checks that running satisfies the constraint. An
// empty constraint, or a running version that is not semver (such as
// "dev"), passes.
func ValidateKeelVersion(constraint, running string) error {
	if constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("%w: parse keelVersion %q: %w", ErrVersionConstraint, constraint, err)
	}

	v, err := semver.NewVersion(running)
	if err != nil {
		return nil
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: keel %s does not satisfy %q", ErrVersionConstraint, v, constraint)
	}
	return nil
}

// Validate checks the manifest structure. running is the version of the
// keel binary, checked against keelVersion. All problems are returned
// together.
func (m *Manifest) Validate(running string) error {
	var errs []error

	if err := ValidateAPIVersion(m.APIVersion()); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateKind(m.Kind()); err != nil {
		errs = append(errs, err)
	}
	if m.Service() == "" {
		errs = append(errs, ErrMissingService)
	}
	if err := ValidateKeelVersion(m.KeelVersion(), running); err != nil {
		errs = append(errs, err)
	}

	envs := m.Environments()
	if !envs.IsAbsent() && !envs.IsRecord() {
		errs = append(errs, fmt.Errorf("%w: environments must be a mapping, got %s", ErrInvalidManifest, envs.Kind()))
	}

	components, err := m.Components()
	if err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]bool, len(components))
	for _, c := range components {
		if seen[c.Name] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateComponent, c.Name))
		}
		seen[c.Name] = true

		if c.Type == "" {
			errs = append(errs, fmt.Errorf("%w: component %s", ErrMissingComponentType, c.Name))
		}
	}

	return errors.Join(errs...)
}
