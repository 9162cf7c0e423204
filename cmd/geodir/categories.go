package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rendis/geodir/internal/config"
	"github.com/rendis/geodir/internal/tui/styles"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List categories and their slugs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		cats, err := a.categories.Categories(cmd.Context())
		if err != nil {
			return err
		}
		slug := lipgloss.NewStyle().Foreground(styles.Secondary).Width(28)
		count := lipgloss.NewStyle().Foreground(styles.Muted)
		for _, c := range cats {
			fmt.Printf("%s %s %s\n", slug.Render(c.Slug), c.Value, count.Render(fmt.Sprintf("(%d)", c.Count)))
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or write the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration after file and environment overrides",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := cfg
		if shown.Search.APIKey != "" {
			shown.Search.APIKey = "********"
		}
		return config.Encode(cmd.OutOrStdout(), shown)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Write a config file with the defaults",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Write(path, config.Default()); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(categoriesCmd, configCmd)
}
