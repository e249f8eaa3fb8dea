// Package secrets exposes SOPS-encrypted files as interpolation variables.
package secrets

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cameronsjo/keel/internal/interpolate"
	"github.com/cameronsjo/keel/internal/merge"
	"github.com/cameronsjo/keel/internal/value"
)

// DefaultBinary is the sops executable looked up on PATH.
const DefaultBinary = "sops"

// Decrypter decrypts one file to plain JSON.
type Decrypter interface {
	Decrypt(ctx context.Context, file string) ([]byte, error)
}

// SOPS decrypts files by running the sops binary.
type SOPS struct {
	// Binary is the executable to run. Empty means DefaultBinary.
	Binary string
}

// NewSOPS creates a SOPS decrypter using the sops binary on PATH.
func NewSOPS() *SOPS {
	return &SOPS{Binary: DefaultBinary}
}

// Decrypt decrypts a SOPS-encrypted file and returns the plaintext as JSON.
func (s *SOPS) Decrypt(ctx context.Context, file string) ([]byte, error) {
	bin := s.Binary
	if bin == "" {
		bin = DefaultBinary
	}

	cmd := exec.CommandContext(ctx, bin, "--input-type", inputType(file), "--output-type", "json", "-d", file)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("sops decrypt failed for %s: %w: %s", file, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func inputType(file string) string {
	if strings.EqualFold(filepath.Ext(file), ".json") {
		return "json"
	}
	return "yaml"
}

// Load decrypts files with d and merges them in order; later files win.
func Load(ctx context.Context, d Decrypter, files ...string) (value.Value, error) {
	merged := value.Record()
	for _, file := range files {
		data, err := d.Decrypt(ctx, file)
		if err != nil {
			return value.Value{}, err
		}
		v, err := value.DecodeJSON(data)
		if err != nil {
			return value.Value{}, fmt.Errorf("failed to parse decrypted JSON from %s: %w", file, err)
		}
		merged = merge.DeepMerge(merged, v)
	}
	return merged, nil
}

// Source decrypts files and returns them as an interpolation source with
// dotted keys, so ${env:db.password} reads db.password from the secrets.
func Source(ctx context.Context, d Decrypter, files ...string) (interpolate.Source, error) {
	v, err := Load(ctx, d, files...)
	if err != nil {
		return nil, err
	}
	return interpolate.RecordSource(v), nil
}
