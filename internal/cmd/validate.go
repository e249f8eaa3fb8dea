package cmd

import (
	"github.com/spf13/cobra"
)

// validateCmd represents the validate command.
var validateCmd = &cobra.Command{
	Use:   "validate [manifest]",
	Short: "Validate a manifest and its resolved configuration",
	Long: `Validate a service manifest without writing anything.

This command performs validation checks:
  1. Manifest structure (apiVersion, kind, service, components)
  2. keelVersion constraint against this binary
  3. Full hydration of each environment (or only --environment)
  4. Component schemas, reporting errors and warnings

Use this in CI to catch configuration issues before deploy.

Examples:
  keel validate
  keel validate -e prod
  keel validate services/api --catalog ../catalog`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	addPipelineFlags(validateCmd)

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, args)
	if err != nil {
		return err
	}
	p := s.printer

	var errors, warnings int

	if err := s.manifest.Validate(version); err != nil {
		errors += printErrors(p, "manifest: ", err)
	}

	h, err := s.hydrator()
	if err != nil {
		return err
	}

	envs := []string{environmentFlag}
	if environmentFlag == "" {
		resolved, err := h.Resolve(s.ctx, s.manifest)
		if err != nil {
			p.Error("%v", err)
			return errFailed
		}
		envs = resolved.EnvironmentNames()
	}
	if len(envs) == 0 {
		p.Warning("No environments declared")
		warnings++
	}

	for _, env := range envs {
		result, err := h.Hydrate(s.ctx, s.manifest, env)
		if err != nil {
			p.Error("%s: %v", env, err)
			errors++
			continue
		}
		for _, c := range result.Components {
			errors += printIssues(p, env+"/"+c.Name, c.Result)
			warnings += len(c.Result.Warnings())
		}
	}

	if errors > 0 {
		p.Error("Validation failed: %d error(s), %d warning(s)", errors, warnings)
		return errFailed
	}
	p.Success("%s is valid (%d environment(s), %d warning(s))", s.manifest.Service(), len(envs), warnings)
	return nil
}
