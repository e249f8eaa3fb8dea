package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAllEnvironments(t *testing.T) {
	dir := newService(t)

	out, err := executeCmd(t, "validate", dir, "--no-env", "--var", "REGISTRY=r")
	require.NoError(t, err)
	assert.Contains(t, out, "payments is valid (2 environment(s), 0 warning(s))")
}

func TestValidateCountsWarnings(t *testing.T) {
	dir := newService(t)

	out, err := executeCmd(t, "validate", dir, "--no-env")
	require.NoError(t, err)
	assert.Contains(t, out, "dev/api: warning: image: unresolved variable ${env:REGISTRY}")
	assert.Contains(t, out, "prod/api: warning: image: unresolved variable ${env:REGISTRY}")
	assert.Contains(t, out, "2 warning(s)")
}

func TestValidateSingleEnvironment(t *testing.T) {
	dir := newService(t)

	out, err := executeCmd(t, "validate", dir, "-e", "prod", "--no-env", "--var", "REGISTRY=r")
	require.NoError(t, err)
	assert.Contains(t, out, "1 environment(s)")
}

func TestValidateReportsSchemaErrors(t *testing.T) {
	dir := newService(t)
	cat := newCatalog(t, 1)

	out, err := executeCmd(t, "validate", dir, "--no-env", "--var", "REGISTRY=r", "--catalog", cat)
	require.Error(t, err)
	assert.ErrorIs(t, err, errFailed)
	assert.Contains(t, out, "dev/api: error: replicas:")
	assert.Contains(t, out, "prod/api: error: replicas:")
	assert.Contains(t, out, "Validation failed: 2 error(s)")
}

func TestValidateManifestStructure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keel.yml", `
apiVersion: keel.io/v2
kind: Deployment
environments:
  dev: {}
components:
  - name: api
  - name: api
    type: service
`)

	out, err := executeCmd(t, "validate", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, errFailed)
	assert.Contains(t, out, "manifest: ")
	assert.Contains(t, out, "keel.io/v2")
	assert.Contains(t, out, "Deployment")
}

func TestValidateUnknownEnvironment(t *testing.T) {
	dir := newService(t)

	out, err := executeCmd(t, "validate", dir, "-e", "qa")
	require.Error(t, err)
	assert.Contains(t, out, "qa: hydrate: interpolation:")
}

func TestValidateReferenceFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keel.yml", "service: a\nenvironments:\n  $ref: ./missing.yml\n")

	out, err := executeCmd(t, "validate", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, errFailed)
	assert.Contains(t, out, "hydrate: references:")
}
