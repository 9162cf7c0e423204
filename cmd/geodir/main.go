package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/geodir/internal/config"
)

var version = "dev"

var (
	configPath string
	logLevel   string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:   "geodir",
	Short: "Directory search over a local or hosted listings index",
	Long: `geodir browses a directory of services by category, text, filters and map area.

Run without a subcommand to launch the interactive TUI.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		return nil
	},
	RunE: runTUI,
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print the geodir version",
	Args:              cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "geodir "+version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "geodir.yaml",
		"Path to the YAML config (a missing file means defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
