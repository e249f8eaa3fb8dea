package manifest

import (
	"path/filepath"

	"github.com/cameronsjo/keel/internal/value"
)

// API version and kind constants for manifest versioning.
const (
	// APIVersionV1 is the current API version for keel manifests.
	APIVersionV1 = "keel.io/v1"

	// KindService identifies a Service manifest.
	KindService = "Service"
)

// SupportedAPIVersions lists all API versions that can be loaded.
var SupportedAPIVersions = []string{APIVersionV1}

// SupportedKinds lists all valid manifest kinds.
var SupportedKinds = []string{KindService}

// Top-level manifest keys.
const (
	KeyAPIVersion   = "apiVersion"
	KeyKind         = "kind"
	KeyService      = "service"
	KeyOwner        = "owner"
	KeyKeelVersion  = "keelVersion"
	KeyCompliance   = "compliance"
	KeyFramework    = "complianceFramework"
	KeyEnvironments = "environments"
	KeyComponents   = "components"
)

// Component is one deployable unit declared in the manifest.
type Component struct {
	// Name is unique within the manifest.
	Name string

	// Type selects the catalog entry (schema, defaults, platform layer).
	Type string

	// Config is the user layer shared by every environment.
	Config value.Value

	// Overrides holds per-environment user config keyed by environment name.
	Overrides value.Value
}

// Override returns the user config override for env, or absent.
func (c Component) Override(env string) value.Value {
	return c.Overrides.Get(env)
}

// Manifest is a parsed root manifest. It is immutable; WithDocument returns
// a copy with a different document, e.g. after reference resolution.
type Manifest struct {
	path string
	doc  value.Value
}

// New wraps an already decoded document. path may be empty for manifests
// that did not come from a file.
func New(doc value.Value, path string) *Manifest {
	if path != "" {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return &Manifest{path: path, doc: doc}
}

// WithDocument returns a manifest with the same origin and a new document.
func (m *Manifest) WithDocument(doc value.Value) *Manifest {
	return &Manifest{path: m.path, doc: doc}
}

// Path returns the absolute path the manifest was loaded from.
func (m *Manifest) Path() string { return m.path }

// Dir returns the directory holding the manifest. References in the
// manifest are relative to it.
func (m *Manifest) Dir() string {
	if m.path == "" {
		return ""
	}
	return filepath.Dir(m.path)
}

// Value returns the whole document.
func (m *Manifest) Value() value.Value { return m.doc }

// APIVersion returns the declared apiVersion.
func (m *Manifest) APIVersion() string { return m.str(KeyAPIVersion) }

// Kind returns the declared kind.
func (m *Manifest) Kind() string { return m.str(KeyKind) }

// Service returns the service name.
func (m *Manifest) Service() string { return m.str(KeyService) }

// Owner returns the owning team.
func (m *Manifest) Owner() string { return m.str(KeyOwner) }

// KeelVersion returns the keel version constraint, if any.
func (m *Manifest) KeelVersion() string { return m.str(KeyKeelVersion) }

// ComplianceFramework returns complianceFramework, falling back to
// compliance.framework or a bare string under compliance.
func (m *Manifest) ComplianceFramework() string {
	if s := m.str(KeyFramework); s != "" {
		return s
	}
	c := m.doc.Get(KeyCompliance)
	if s, ok := c.AsString(); ok {
		return s
	}
	s, _ := c.Get("framework").AsString()
	return s
}

// Environments returns the environments block as written (or as resolved,
// for a manifest produced by WithDocument).
func (m *Manifest) Environments() value.Value {
	return m.doc.Get(KeyEnvironments)
}

// EnvironmentNames lists environment names in declaration order.
func (m *Manifest) EnvironmentNames() []string {
	return m.Environments().Keys()
}

func (m *Manifest) str(key string) string {
	s, _ := m.doc.Get(key).AsString()
	return s
}
