// Package cmd provides the CLI commands for keel.
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cameronsjo/keel/internal/ui"
)

// version is set at build time with -ldflags "-X ...cmd.version=...".
var version = "0.1.0"

var (
	rootFlag     string
	catalogFlag  string
	logLevelFlag string
	configFlag   string
)

// errFailed signals a non-zero exit after the problems were already printed.
var errFailed = errors.New("configuration has errors")

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "keel",
	Short: "Resolve service manifests into environment-specific configuration",
	Long: `keel - hydrate service manifests

keel reads a service manifest (keel.yml), follows $ref pointers in its
environments block, substitutes ${env:KEY} variables and merges each
component's configuration layers in precedence order:

  fallback < platform < compliance < environment < user < policy

COMMANDS
  hydrate [manifest] -e <env>   Print the resolved configuration
  validate [manifest] [-e env]  Check the manifest and report issues
  envs [manifest]               List declared environments
  version                       Show version

Settings are read from flags, KEEL_* environment variables and an
optional .keel.yaml in the service root.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errFailed) {
			ui.New(os.Stderr).Error("%v", err)
		}
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "Service root references are confined to (default: manifest directory)")
	rootCmd.PersistentFlags().StringVar(&catalogFlag, "catalog", "", "Component catalog directory")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Settings file (default is <root>/.keel.yaml)")

	rootCmd.SetVersionTemplate("keel version {{.Version}}\n")
}
