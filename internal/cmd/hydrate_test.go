package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameronsjo/keel/internal/hydrate"
	"github.com/cameronsjo/keel/internal/preflight"
	"github.com/cameronsjo/keel/internal/secrets"
)

func decodeJSON(t *testing.T, out string) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc), out)
	return doc
}

func resolvedComponent(t *testing.T, doc map[string]any, name string) map[string]any {
	t.Helper()
	resolved, ok := doc["resolved"].(map[string]any)
	require.True(t, ok, "resolved block present")
	c, ok := resolved[name].(map[string]any)
	require.True(t, ok, "component %s present", name)
	return c
}

func TestHydrateJSON(t *testing.T) {
	dir := newService(t)

	stdout, _, err := executeCmdSplit(t, "hydrate", dir, "-e", "dev", "--no-env",
		"--var", "REGISTRY=ghcr.io/acme", "--format", "json")
	require.NoError(t, err)

	doc := decodeJSON(t, stdout)
	assert.Equal(t, "dev", doc["environment"])
	assert.Equal(t, "payments", doc["service"])

	api := resolvedComponent(t, doc, "api")
	assert.Equal(t, "ghcr.io/acme/api", api["image"])
	assert.Equal(t, "us-west-2", api["region"])
	assert.Equal(t, float64(2), api["replicas"])
}

func TestHydrateYAMLByDefault(t *testing.T) {
	dir := newService(t)

	stdout, _, err := executeCmdSplit(t, "hydrate", dir, "-e", "prod", "--no-env", "--var", "REGISTRY=r")
	require.NoError(t, err)
	assert.Contains(t, stdout, "environment: prod\n")
	assert.Contains(t, stdout, "resolved:\n")
	assert.Contains(t, stdout, "image: r/api")
}

func TestHydrateRequiresEnvironment(t *testing.T) {
	dir := newService(t)

	_, err := executeCmd(t, "hydrate", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "environment" not set`)
}

func TestHydrateUnknownEnvironment(t *testing.T) {
	dir := newService(t)

	_, err := executeCmd(t, "hydrate", dir, "-e", "staging")
	require.Error(t, err)
	assert.ErrorIs(t, err, hydrate.ErrUnknownEnvironment)
}

func TestHydrateMissingManifest(t *testing.T) {
	_, err := executeCmd(t, "hydrate", filepath.Join(t.TempDir(), "nope.yml"), "-e", "dev")
	assert.Error(t, err)
}

func TestHydrateValidationErrorsExitNonZero(t *testing.T) {
	dir := newService(t)
	cat := newCatalog(t, 1)

	stdout, stderr, err := executeCmdSplit(t, "hydrate", dir, "-e", "dev", "--no-env",
		"--var", "REGISTRY=r", "--catalog", cat, "--format", "json")
	require.Error(t, err)
	assert.ErrorIs(t, err, errFailed)

	// output is still written
	api := resolvedComponent(t, decodeJSON(t, stdout), "api")
	assert.Equal(t, true, api["tls"])
	assert.Equal(t, float64(8080), api["port"])

	assert.Contains(t, stderr, "api: error: replicas:")
	assert.Contains(t, stderr, "1 error(s) in dev")
}

func TestHydrateWithCatalogPasses(t *testing.T) {
	dir := newService(t)
	cat := newCatalog(t, 5)

	_, stderr, err := executeCmdSplit(t, "hydrate", dir, "-e", "dev", "--no-env",
		"--var", "REGISTRY=r", "--catalog", cat)
	require.NoError(t, err)
	assert.NotContains(t, stderr, "error")
}

func TestHydrateOutputFile(t *testing.T) {
	dir := newService(t)
	out := filepath.Join(t.TempDir(), "build", "dev.json")

	stdout, stderr, err := executeCmdSplit(t, "hydrate", dir, "-e", "dev", "--no-env",
		"--var", "REGISTRY=r", "--format", "json", "-o", out)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Wrote "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "r/api", resolvedComponent(t, decodeJSON(t, string(data)), "api")["image"])
}

func TestHydrateTemplate(t *testing.T) {
	dir := newService(t)
	tmpl := writeFile(t, t.TempDir(), "summary.txt.tmpl",
		`{{ .service }} {{ .environment }} {{ .resolved.api.image | upper }}
{{ toYaml .resolved.api }}
`)

	stdout, _, err := executeCmdSplit(t, "hydrate", dir, "-e", "dev", "--no-env",
		"--var", "REGISTRY=ghcr.io/acme", "--template", tmpl)
	require.NoError(t, err)
	assert.Equal(t, "payments dev GHCR.IO/ACME/API\nimage: ghcr.io/acme/api\nregion: us-west-2\nreplicas: 2\n", stdout)
}

func TestHydrateTemplateErrors(t *testing.T) {
	dir := newService(t)

	_, err := executeCmd(t, "hydrate", dir, "-e", "dev", "--template", filepath.Join(t.TempDir(), "missing.tmpl"))
	assert.ErrorContains(t, err, "failed to read template")

	bad := writeFile(t, t.TempDir(), "bad.tmpl", "{{ .service ")
	_, err = executeCmd(t, "hydrate", dir, "-e", "dev", "--template", bad)
	assert.ErrorContains(t, err, "parse error")
}

func TestHydrateUnresolvedVariableIsWarning(t *testing.T) {
	dir := newService(t)

	stdout, stderr, err := executeCmdSplit(t, "hydrate", dir, "-e", "dev", "--no-env")
	require.NoError(t, err)
	assert.Contains(t, stdout, "${env:REGISTRY}/api")
	assert.Contains(t, stderr, "unresolved variable ${env:REGISTRY}")
}

func TestHydrateReadsProcessEnvironment(t *testing.T) {
	dir := newService(t)
	t.Setenv("REGISTRY", "docker.io/acme")

	stdout, _, err := executeCmdSplit(t, "hydrate", dir, "-e", "dev", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, "docker.io/acme/api", resolvedComponent(t, decodeJSON(t, stdout), "api")["image"])

	// --var wins over the process environment
	stdout, _, err = executeCmdSplit(t, "hydrate", dir, "-e", "dev", "--format", "json", "--var", "REGISTRY=quay.io")
	require.NoError(t, err)
	assert.Equal(t, "quay.io/api", resolvedComponent(t, decodeJSON(t, stdout), "api")["image"])
}

type stubDecrypter map[string]string

func (s stubDecrypter) Decrypt(_ context.Context, file string) ([]byte, error) {
	data, ok := s[filepath.Base(file)]
	if !ok {
		return nil, errors.New("cannot decrypt " + file)
	}
	return []byte(data), nil
}

func useDecrypter(t *testing.T, d stubDecrypter) {
	t.Helper()
	old := decrypter
	decrypter = d
	t.Cleanup(func() { decrypter = old })
}

func TestHydrateSecrets(t *testing.T) {
	dir := newService(t)
	writeFile(t, dir, "keel.yml", testManifest+`  - name: db
    type: postgres
    config:
      password: ${env:db.password}
`)
	useDecrypter(t, stubDecrypter{"secrets.enc.yaml": `{"REGISTRY": "vault.example", "db": {"password": "hunter2"}}`})

	stdout, _, err := executeCmdSplit(t, "hydrate", dir, "-e", "dev", "--no-env", "--format", "json",
		"--secrets", filepath.Join(dir, "secrets.enc.yaml"))
	require.NoError(t, err)

	doc := decodeJSON(t, stdout)
	assert.Equal(t, "vault.example/api", resolvedComponent(t, doc, "api")["image"])
	assert.Equal(t, "hunter2", resolvedComponent(t, doc, "db")["password"])
}

func TestHydrateSecretsFailure(t *testing.T) {
	dir := newService(t)
	useDecrypter(t, stubDecrypter{})

	_, err := executeCmd(t, "hydrate", dir, "-e", "dev", "--secrets", "other.enc.yaml")
	assert.ErrorContains(t, err, "cannot decrypt")
}

func TestHydrateInvalidVar(t *testing.T) {
	dir := newService(t)

	_, err := executeCmd(t, "hydrate", dir, "-e", "dev", "--var", "NOEQUALS")
	assert.ErrorContains(t, err, `invalid --var "NOEQUALS"`)
}

func TestHydrateSettingsFile(t *testing.T) {
	dir := newService(t)
	cat := newCatalog(t, 5)
	writeFile(t, dir, ".keel.yaml", "format: json\ncatalog: "+cat+"\n")

	stdout, _, err := executeCmdSplit(t, "hydrate", dir, "-e", "dev", "--no-env", "--var", "REGISTRY=r")
	require.NoError(t, err)
	assert.Equal(t, true, resolvedComponent(t, decodeJSON(t, stdout), "api")["tls"])

	// flags beat the settings file
	stdout, _, err = executeCmdSplit(t, "hydrate", dir, "-e", "dev", "--no-env", "--var", "REGISTRY=r", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, stdout, "environment: dev")
}

func TestHydrateExplicitSettingsFile(t *testing.T) {
	dir := newService(t)
	settings := writeFile(t, t.TempDir(), "ci.yaml", "format: json\n")

	stdout, _, err := executeCmdSplit(t, "hydrate", dir, "-e", "dev", "--no-env", "--config", settings)
	require.NoError(t, err)
	decodeJSON(t, stdout)
}

func TestHydrateEnvironmentSettings(t *testing.T) {
	dir := newService(t)
	t.Setenv("KEEL_FORMAT", "json")

	stdout, _, err := executeCmdSplit(t, "hydrate", dir, "-e", "dev", "--no-env")
	require.NoError(t, err)
	decodeJSON(t, stdout)
}

func TestHydrateStrictTypes(t *testing.T) {
	dir := newService(t)
	cat := t.TempDir()
	writeFile(t, cat, "components/service.yml", `
schema:
  type: object
  properties:
    port: {type: integer}
defaults:
  port: "8080"
`)

	_, stderr, err := executeCmdSplit(t, "hydrate", dir, "-e", "dev", "--no-env", "--var", "REGISTRY=r", "--catalog", cat)
	require.NoError(t, err)
	assert.Contains(t, stderr, "coerced")

	_, stderr, err = executeCmdSplit(t, "hydrate", dir, "-e", "dev", "--no-env", "--var", "REGISTRY=r", "--catalog", cat, "--strict")
	assert.ErrorIs(t, err, errFailed)
	assert.Contains(t, stderr, "api: error: port:")
}

func TestHydrateReferenceEscape(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keel.yml", "service: a\nenvironments:\n  dev:\n    $ref: ../outside.yml\n")

	_, err := executeCmd(t, "hydrate", dir, "-e", "dev")
	require.Error(t, err)
	var pe *hydrate.PhaseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, hydrate.PhaseReferences, pe.Phase)
}

func TestHydrateDiscoversManifest(t *testing.T) {
	dir := newService(t)
	sub := filepath.Join(dir, "src", "deep")
	require.NoError(t, os.MkdirAll(sub, 0755))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(sub))
	t.Cleanup(func() { os.Chdir(wd) })

	stdout, _, err := executeCmdSplit(t, "hydrate", "-e", "dev", "--no-env", "--var", "REGISTRY=r")
	require.NoError(t, err)
	assert.Contains(t, stdout, "service: payments")
}

func TestHydrateSecretsNeedSOPSBinary(t *testing.T) {
	dir := newService(t)
	old := decrypter
	decrypter = &secrets.SOPS{Binary: "keel-test-missing-sops"}
	t.Cleanup(func() { decrypter = old })

	_, err := executeCmd(t, "hydrate", dir, "-e", "dev", "--secrets", "secrets.enc.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, preflight.ErrMissingBinary)
}
