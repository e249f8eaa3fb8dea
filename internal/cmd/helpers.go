package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cameronsjo/keel/internal/cache"
	"github.com/cameronsjo/keel/internal/catalog"
	"github.com/cameronsjo/keel/internal/config"
	"github.com/cameronsjo/keel/internal/ctxlog"
	"github.com/cameronsjo/keel/internal/hydrate"
	"github.com/cameronsjo/keel/internal/interpolate"
	"github.com/cameronsjo/keel/internal/manifest"
	"github.com/cameronsjo/keel/internal/precedence"
	"github.com/cameronsjo/keel/internal/preflight"
	"github.com/cameronsjo/keel/internal/secrets"
	"github.com/cameronsjo/keel/internal/ui"
)

// Flags shared by hydrate and validate.
var (
	environmentFlag string
	varFlags        []string
	secretsFlags    []string
	noEnvFlag       bool
	strictFlag      bool
)

// decrypter is replaced in tests.
var decrypter secrets.Decrypter = secrets.NewSOPS()

func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&environmentFlag, "environment", "e", "", "Environment to hydrate")
	cmd.Flags().StringArrayVar(&varFlags, "var", nil, "Variable KEY=VALUE for ${env:KEY} (repeatable)")
	cmd.Flags().StringArrayVar(&secretsFlags, config.KeySecrets, nil, "SOPS-encrypted variables file (repeatable)")
	cmd.Flags().BoolVar(&noEnvFlag, "no-env", false, "Do not read variables from the process environment")
	cmd.Flags().BoolVar(&strictFlag, "strict", false, "Disable type coercion against the component schema")

	cmd.RegisterFlagCompletionFunc("environment", completeEnvironments)
}

// session is the per-invocation state shared by commands.
type session struct {
	ctx      context.Context
	settings *config.Settings
	root     string
	manifest *manifest.Manifest
	printer  *ui.Printer
	logger   *slog.Logger
}

// openSession finds and loads the manifest, reads settings and sets up
// logging. Flags beat KEEL_* variables, which beat the settings file.
func openSession(cmd *cobra.Command, args []string) (*session, error) {
	v := config.NewViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	root := v.GetString(config.KeyRoot)
	path, err := locateManifest(args, root)
	if err != nil {
		return nil, err
	}
	if root == "" {
		root = filepath.Dir(path)
	}
	if root, err = filepath.Abs(root); err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	if configFlag != "" {
		err = config.ReadFile(v, configFlag)
	} else {
		_, err = config.ReadRootFile(v, root)
	}
	if err != nil {
		return nil, err
	}

	settings, err := config.FromViper(v, root)
	if err != nil {
		return nil, err
	}

	// paths given on the command line are relative to the working directory
	if cmd.Flags().Changed(config.KeyCatalog) {
		if settings.Catalog, err = filepath.Abs(catalogFlag); err != nil {
			return nil, err
		}
	}
	if f := cmd.Flags().Lookup(config.KeySecrets); f != nil && f.Changed {
		settings.Secrets = make([]string, len(secretsFlags))
		for i, file := range secretsFlags {
			if settings.Secrets[i], err = filepath.Abs(file); err != nil {
				return nil, err
			}
		}
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: settings.LogLevel}))
	ctx := ctxlog.WithLogger(commandContext(cmd), logger)
	logger.Debug("settings loaded", "root", root, "manifest", path, "catalog", settings.Catalog)

	m, err := manifest.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	return &session{
		ctx:      ctx,
		settings: settings,
		root:     root,
		manifest: m,
		printer:  ui.New(cmd.ErrOrStderr()),
		logger:   logger,
	}, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// locateManifest resolves the manifest argument. A directory argument means
// the manifest inside it; no argument means discovery from root or the
// working directory.
func locateManifest(args []string, root string) (string, error) {
	if len(args) > 0 {
		info, err := os.Stat(args[0])
		if err != nil {
			return "", fmt.Errorf("manifest %s: %w", args[0], err)
		}
		if info.IsDir() {
			return config.FindManifest(args[0])
		}
		return filepath.Abs(args[0])
	}

	if root == "" {
		var err error
		if root, err = config.FindRoot(); err != nil {
			return "", err
		}
	}
	return config.FindManifest(root)
}

// hydrator builds a Hydrator from the session settings and pipeline flags.
func (s *session) hydrator() (*hydrate.Hydrator, error) {
	opts := []hydrate.Option{
		hydrate.WithRoot(s.root),
		hydrate.WithConcurrency(s.settings.Concurrency),
	}

	if s.settings.Catalog != "" {
		cat, err := catalog.New(s.settings.Catalog, catalog.WithCache(cache.New()))
		if err != nil {
			return nil, err
		}
		opts = append(opts, hydrate.WithLayerSource(cat))
	}

	vars, err := s.variables()
	if err != nil {
		return nil, err
	}
	opts = append(opts, hydrate.WithVariables(vars))

	if strictFlag {
		opts = append(opts, hydrate.WithBuilder(precedence.NewBuilder(precedence.WithStrictTypes())))
	}
	return hydrate.New(opts...), nil
}

// variables chains --var values, decrypted secrets and the process
// environment, in that order.
func (s *session) variables() (interpolate.Source, error) {
	flagVars, err := parseVars(varFlags)
	if err != nil {
		return nil, err
	}
	sources := []interpolate.Source{flagVars}

	if len(s.settings.Secrets) > 0 {
		if sops, ok := decrypter.(*secrets.SOPS); ok {
			if _, err := preflight.Require(preflight.SOPS(sops.Binary)); err != nil {
				return nil, err
			}
		}

		src, err := secrets.Source(s.ctx, decrypter, s.settings.Secrets...)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	if !noEnvFlag {
		sources = append(sources, interpolate.SourceFunc(os.LookupEnv))
	}
	return interpolate.Chain(sources...), nil
}

func parseVars(pairs []string) (interpolate.MapSource, error) {
	vars := make(interpolate.MapSource, len(pairs))
	for _, pair := range pairs {
		key, val, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q (want KEY=VALUE)", pair)
		}
		vars[key] = val
	}
	return vars, nil
}

// printIssues prints a component's issues and returns the error count.
func printIssues(p *ui.Printer, prefix string, result *precedence.Result) int {
	for _, issue := range result.Issues {
		if issue.Severity == precedence.SeverityError {
			p.Error("%s: %s", prefix, issue)
		} else {
			p.Warning("%s: %s", prefix, issue)
		}
	}
	return len(result.Errors())
}

// printErrors prints each error of an errors.Join list on its own line and
// returns how many there were.
func printErrors(p *ui.Printer, prefix string, err error) int {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		p.Error("%s%v", prefix, e)
	}
	return len(errs)
}
