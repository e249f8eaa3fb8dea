package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameronsjo/keel/internal/config"
	"github.com/cameronsjo/keel/internal/manifest"
	"github.com/cameronsjo/keel/internal/ui"
	"github.com/cameronsjo/keel/internal/value"
)

func TestRootShowsHelp(t *testing.T) {
	out, err := executeCmd(t)
	require.NoError(t, err)
	assert.Contains(t, out, "hydrate [manifest] -e <env>")
	assert.Contains(t, out, "fallback < platform < compliance < environment < user < policy")
}

func TestVersion(t *testing.T) {
	out, err := executeCmd(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "keel version "+version)

	out, err = executeCmd(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "keel version "+version+"\n", out)
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"hydrate", "validate", "envs", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestParseVars(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{name: "none", pairs: nil, want: map[string]string{}},
		{name: "simple", pairs: []string{"A=1", "B=two"}, want: map[string]string{"A": "1", "B": "two"}},
		{name: "empty value", pairs: []string{"A="}, want: map[string]string{"A": ""}},
		{name: "value with equals", pairs: []string{"DSN=a=b"}, want: map[string]string{"DSN": "a=b"}},
		{name: "later wins", pairs: []string{"A=1", "A=2"}, want: map[string]string{"A": "2"}},
		{name: "missing equals", pairs: []string{"A"}, wantErr: true},
		{name: "empty key", pairs: []string{"=1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVars(tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, map[string]string(got))
		})
	}
}

func TestRender(t *testing.T) {
	doc := value.Record(
		value.F("service", value.String("payments")),
		value.F("replicas", value.Int(3)),
	)

	yml, err := render(doc, config.FormatYAML, "")
	require.NoError(t, err)
	assert.Equal(t, "service: payments\nreplicas: 3\n", string(yml))

	js, err := render(doc, config.FormatJSON, "")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"service\": \"payments\",\n  \"replicas\": 3\n}\n", string(js))
}

func TestPrintErrorsSplitsJoined(t *testing.T) {
	var buf bytes.Buffer
	p := ui.New(&buf)

	m, err := manifest.Parse([]byte("kind: Widget\n"), "")
	require.NoError(t, err)
	verr := m.Validate(version)
	require.Error(t, verr)

	n := printErrors(p, "manifest: ", verr)
	assert.Equal(t, 2, n)
	assert.Contains(t, buf.String(), "✗ manifest: invalid manifest kind")
	assert.Contains(t, buf.String(), "✗ manifest: "+manifest.ErrMissingService.Error())

	buf.Reset()
	assert.Equal(t, 1, printErrors(p, "", errors.New("plain")))
	assert.Equal(t, "✗ plain\n", buf.String())
}
