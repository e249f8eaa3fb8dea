package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cameronsjo/keel/internal/hydrate"
)

// envsCmd lists the environments of a manifest.
var envsCmd = &cobra.Command{
	Use:   "envs [manifest]",
	Short: "List declared environments",
	Long: `List the environments a manifest declares, one per line.

References are resolved first, so an environments block loaded through
$ref is listed too.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnvs,
}

func init() {
	rootCmd.AddCommand(envsCmd)
}

func runEnvs(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, args)
	if err != nil {
		return err
	}

	h := hydrate.New(hydrate.WithRoot(s.root), hydrate.WithConcurrency(s.settings.Concurrency))
	resolved, err := h.Resolve(s.ctx, s.manifest)
	if err != nil {
		return err
	}

	names := resolved.EnvironmentNames()
	if len(names) == 0 {
		s.printer.Warning("No environments declared in %s", s.manifest.Path())
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
