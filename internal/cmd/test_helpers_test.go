package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag of c and its subcommands to its default so
// values set by one test do not leak into the next.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// executeCmd executes the root command with the given args and returns the
// output. Flag state is reset first.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, stderr, err := executeCmdSplit(t, args...)
	return stdout + stderr, err
}

// executeCmdSplit is executeCmd with stdout and stderr kept apart.
func executeCmdSplit(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	// Important: Set args BEFORE setting output buffers
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const testManifest = `
apiVersion: keel.io/v1
kind: Service
service: payments
complianceFramework: pci
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
      image: ${env:REGISTRY}/api
      replicas: 2
`

// newService writes a service directory with a manifest and returns it.
func newService(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "keel.yml", testManifest)
	writeFile(t, dir, "envs/dev.yml", `
defaults:
  region: us-west-2
components:
  api:
    region: ${env:region}
`)
	return dir
}

// newCatalog writes a catalog whose service schema caps replicas at max.
func newCatalog(t *testing.T, maxReplicas int) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "components/service.yml", `
schema:
  type: object
  properties:
    replicas: {type: integer, maximum: `+strconv.Itoa(maxReplicas)+`}
    port: {type: integer}
defaults:
  port: 8080
`)
	writeFile(t, dir, "compliance/pci.yml", `
enforced:
  service:
    tls: true
`)
	return dir
}
