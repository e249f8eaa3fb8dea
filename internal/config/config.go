// Package config handles project discovery and CLI settings.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ManifestNames are the file names recognised as a root manifest, in the
// order they are tried.
var ManifestNames = []string{"keel.yml", "keel.yaml", "keel.json"}

// SettingsFile is the optional per-project settings file name (without
// extension) read from the service root.
const SettingsFile = ".keel"

// EnvPrefix prefixes environment variables that override settings, e.g.
// KEEL_CATALOG or KEEL_LOG_LEVEL.
const EnvPrefix = "KEEL"

// Setting keys.
const (
	KeyRoot        = "root"
	KeyCatalog     = "catalog"
	KeyFormat      = "format"
	KeyTemplate    = "template"
	KeySecrets     = "secrets"
	KeyLogLevel    = "log-level"
	KeyConcurrency = "concurrency"
)

// Output formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// ErrNoManifest indicates no keel manifest was found.
var ErrNoManifest = errors.New("no keel manifest found")

// Settings are the resolved CLI settings.
type Settings struct {
	// Root is the service root. Empty means discover it.
	Root string

	// Catalog is the catalog directory. Empty disables catalog layers.
	Catalog string

	Format      string
	Template    string
	Secrets     []string
	LogLevel    slog.Level
	Concurrency int
}

// FindRoot searches upward from the current directory to find the service
// root, the first directory holding a keel manifest.
func FindRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return FindRootFrom(dir)
}

// FindRootFrom searches upward from dir.
func FindRootFrom(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}

	for {
		if _, err := FindManifest(dir); err == nil {
			return dir, nil
		}

		// Move up one directory
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("%w (looked for %s)", ErrNoManifest, strings.Join(ManifestNames, ", "))
}

// FindManifest returns the manifest file in dir.
func FindManifest(dir string) (string, error) {
	for _, name := range ManifestNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoManifest, dir)
}

// NewViper creates a viper instance with keel defaults and KEEL_*
// environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyFormat, FormatYAML)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyConcurrency, 8)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadRootFile merges root/.keel.yaml into v. A missing file is not an
// error. It reports whether a file was read.
func ReadRootFile(v *viper.Viper, root string) (bool, error) {
	v.AddConfigPath(root)
	v.SetConfigName(SettingsFile)
	v.SetConfigType("yaml")
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("read %s settings: %w", SettingsFile, err)
	}
	return true, nil
}

// ReadFile merges an explicit settings file into v.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("read settings %s: %w", path, err)
	}
	return nil
}

// FromViper reads and checks Settings. Relative paths from a settings file
// are taken relative to base.
func FromViper(v *viper.Viper, base string) (*Settings, error) {
	s := &Settings{
		Root:        v.GetString(KeyRoot),
		Catalog:     v.GetString(KeyCatalog),
		Format:      strings.ToLower(v.GetString(KeyFormat)),
		Template:    v.GetString(KeyTemplate),
		Secrets:     v.GetStringSlice(KeySecrets),
		Concurrency: v.GetInt(KeyConcurrency),
	}

	switch s.Format {
	case FormatYAML, FormatJSON:
	default:
		return nil, fmt.Errorf("invalid %s %q (want %s or %s)", KeyFormat, s.Format, FormatYAML, FormatJSON)
	}

	if err := s.LogLevel.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyLogLevel, err)
	}

	if s.Concurrency < 1 {
		return nil, fmt.Errorf("invalid %s %d (must be at least 1)", KeyConcurrency, s.Concurrency)
	}

	if base != "" {
		if s.Catalog != "" && !filepath.IsAbs(s.Catalog) {
			s.Catalog = filepath.Join(base, s.Catalog)
		}
		for i, f := range s.Secrets {
			if !filepath.IsAbs(f) {
				s.Secrets[i] = filepath.Join(base, f)
			}
		}
	}
	return s, nil
}
