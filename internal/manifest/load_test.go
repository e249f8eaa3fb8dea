package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameronsjo/keel/internal/reference"
)

const sampleManifest = `
apiVersion: keel.io/v1
kind: Service
service: payments
owner: team-payments
compliance:
  framework: pci
environments:
  dev:
    $ref: ./envs/dev.yml
  prod:
    defaults:
      region: us-east-1
components:
  - name: api
    type: service
    config:
      replicas: 2
    overrides:
      prod:
        replicas: 6
  - name: queue
    type: sqs
`

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeManifest(t, "keel.yml", sampleManifest)

	m, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, m.Path())
	assert.Equal(t, filepath.Dir(path), m.Dir())
	assert.Equal(t, "keel.io/v1", m.APIVersion())
	assert.Equal(t, "Service", m.Kind())
	assert.Equal(t, "payments", m.Service())
	assert.Equal(t, "team-payments", m.Owner())
	assert.Equal(t, "pci", m.ComplianceFramework())
	assert.Equal(t, []string{"dev", "prod"}, m.EnvironmentNames())
	assert.True(t, reference.IsPointer(m.Environments().Get("dev")), "references are not resolved by Load")
	assert.NoError(t, m.Validate("1.0.0"))

	components, err := m.Components()
	require.NoError(t, err)
	require.Len(t, components, 2)

	api := components[0]
	assert.Equal(t, "api", api.Name)
	assert.Equal(t, "service", api.Type)
	assert.Equal(t, `{"replicas":2}`, api.Config.String())
	assert.Equal(t, `{"replicas":6}`, api.Override("prod").String())
	assert.True(t, api.Override("dev").IsAbsent())

	queue, ok := m.Component("queue")
	require.True(t, ok)
	assert.True(t, queue.Config.IsAbsent())

	_, ok = m.Component("nope")
	assert.False(t, ok)
}

func TestLoadJSON(t *testing.T) {
	path := writeManifest(t, "keel.json", `{"service": "payments", "components": {"api": {"type": "service"}}}`)

	m, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "payments", m.Service())

	components, err := m.Components()
	require.NoError(t, err)
	require.Len(t, components, 1)
	assert.Equal(t, "api", components[0].Name)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(context.Background(), filepath.Join(t.TempDir(), "keel.yml"))
		assert.ErrorIs(t, err, reference.ErrFileNotFound)
	})

	t.Run("not a mapping", func(t *testing.T) {
		path := writeManifest(t, "keel.yml", "- a\n- b\n")
		_, err := Load(context.Background(), path)
		assert.ErrorIs(t, err, ErrInvalidManifest)
	})

	t.Run("parse error", func(t *testing.T) {
		path := writeManifest(t, "keel.yml", "service: [\n")
		_, err := Load(context.Background(), path)
		assert.ErrorIs(t, err, reference.ErrParse)
	})
}

func TestComponentsMapFormKeepsOrder(t *testing.T) {
	m, err := Parse([]byte(`
components:
  web: {type: service}
  db: {type: postgres}
  cache: {type: redis}
`), "")
	require.NoError(t, err)

	components, err := m.Components()
	require.NoError(t, err)

	var names []string
	for _, c := range components {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"web", "db", "cache"}, names)
}

func TestComponentsErrors(t *testing.T) {
	tests := map[string]string{
		"list item not a mapping": "components: [api]\n",
		"missing name":            "components:\n  - type: service\n",
		"type not a string":       "components:\n  - name: api\n    type: [a]\n",
		"config not a mapping":    "components:\n  - name: api\n    config: 3\n",
		"map entry not a mapping": "components:\n  api: service\n",
	}

	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			m, err := Parse([]byte(src), "")
			require.NoError(t, err)
			_, err = m.Components()
			assert.ErrorIs(t, err, ErrInvalidManifest)
		})
	}
}

func TestComplianceFramework(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"top-level key", "complianceFramework: fedramp\n", "fedramp"},
		{"nested framework", "compliance:\n  framework: pci\n", "pci"},
		{"bare string", "compliance: hipaa\n", "hipaa"},
		{"top-level key wins", "complianceFramework: fedramp\ncompliance: hipaa\n", "fedramp"},
		{"none", "service: a\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse([]byte(tt.doc), "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.ComplianceFramework())
		})
	}
}

func TestWithDocument(t *testing.T) {
	m, err := Parse([]byte("service: a\n"), "/srv/app/keel.yml")
	require.NoError(t, err)

	other, err := Parse([]byte("service: b\n"), "")
	require.NoError(t, err)

	next := m.WithDocument(other.Value())
	assert.Equal(t, "b", next.Service())
	assert.Equal(t, "a", m.Service())
	assert.Equal(t, m.Path(), next.Path())
}
