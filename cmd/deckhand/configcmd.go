package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/internal/config"
	"github.com/deckhand/deckhand/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage deckhand configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file",
	Run: func(cmd *cobra.Command, args []string) {
		path := config.GlobalConfigPath()
		if project, _ := cmd.Flags().GetBool("project"); project {
			path = config.ProjectConfigPath()
		}
		if err := config.WriteDefault(path); err != nil {
			die("%v", err)
		}
		fmt.Printf("%s Config ready at %s\n", ui.Render(ui.OkStyle, "✓"), path)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file locations",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("global:  %s\n", config.GlobalConfigPath())
		fmt.Printf("project: %s\n", config.ProjectConfigPath())
	},
}

func init() {
	configInitCmd.Flags().Bool("project", false, "write the per-directory project config instead")

	configCmd.AddCommand(configInitCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
