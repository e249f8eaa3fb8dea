package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cameronsjo/keel/internal/config"
	"github.com/cameronsjo/keel/internal/fileutil"
)

var (
	hydrateFormat   string
	hydrateTemplate string
	hydrateOutput   string
)

// hydrateCmd represents the hydrate command.
var hydrateCmd = &cobra.Command{
	Use:   "hydrate [manifest]",
	Short: "Resolve a manifest for one environment",
	Long: `Resolve a service manifest for one environment and print the result.

The output is the manifest after $ref resolution and interpolation, with
each component's merged configuration under "resolved".

Variables for ${env:KEY} are looked up in order:
  1. --var KEY=VALUE flags
  2. decrypted --secrets files (dotted keys, e.g. ${env:db.password})
  3. the process environment (unless --no-env)
  4. the environment's defaults block

The command exits with status 1 when a component has validation errors.
The output is still written so the problem can be inspected.

Examples:
  keel hydrate -e prod
  keel hydrate services/api/keel.yml -e dev --format json
  keel hydrate -e prod --var REGISTRY=ghcr.io/acme -o build/prod.yaml
  keel hydrate -e prod --template deploy.yaml.tmpl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHydrate,
}

func init() {
	addPipelineFlags(hydrateCmd)
	hydrateCmd.Flags().StringVar(&hydrateFormat, config.KeyFormat, config.FormatYAML, "Output format (yaml, json)")
	hydrateCmd.Flags().StringVar(&hydrateTemplate, config.KeyTemplate, "", "Render output through a Go template (sprig functions available)")
	hydrateCmd.Flags().StringVarP(&hydrateOutput, "output", "o", "", "Write output to a file instead of stdout")
	hydrateCmd.MarkFlagRequired("environment")

	rootCmd.AddCommand(hydrateCmd)
}

func runHydrate(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, args)
	if err != nil {
		return err
	}

	h, err := s.hydrator()
	if err != nil {
		return err
	}

	result, err := h.Hydrate(s.ctx, s.manifest, environmentFlag)
	if err != nil {
		return err
	}

	s.logger.Info("hydrated", "environment", result.Environment, "components", len(result.Components), "run_id", result.RunID)

	failed := 0
	for _, c := range result.Components {
		failed += printIssues(s.printer, c.Name, c.Result)
	}

	data, err := render(result.Value(), s.settings.Format, s.settings.Template)
	if err != nil {
		return err
	}

	if hydrateOutput != "" {
		if err := fileutil.WriteFileAtomic(hydrateOutput, data, 0644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		s.printer.Success("Wrote %s (%s)", hydrateOutput, result.Environment)
	} else if _, err := cmd.OutOrStdout().Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if result.Failed() {
		s.printer.Error("%d error(s) in %s", failed, result.Environment)
		return errFailed
	}
	return nil
}
