package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cameronsjo/keel/internal/hydrate"
	"github.com/cameronsjo/keel/internal/manifest"
)

// Completion timeout to avoid hanging shell.
const completionTimeout = 2 * time.Second

// completeEnvironments completes --environment with the environments of the
// manifest the command would load.
func completeEnvironments(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	ctx, cancel := context.WithTimeout(commandContext(cmd), completionTimeout)
	defer cancel()

	path, err := locateManifest(args, rootFlag)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	m, err := manifest.Load(ctx, path)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var opts []hydrate.Option
	if rootFlag != "" {
		opts = append(opts, hydrate.WithRoot(rootFlag))
	}
	resolved, err := hydrate.New(opts...).Resolve(ctx, m)
	if err != nil {
		// fall back to the keys written in the manifest itself
		resolved = m
	}

	var names []string
	for _, name := range resolved.EnvironmentNames() {
		if strings.HasPrefix(name, toComplete) {
			names = append(names, name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
