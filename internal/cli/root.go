package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "memlayer",
	Short: "Memory layer for conversational AI backends",
	Long: "Memlayer stores message-level memories, retrieves the most relevant ones\n" +
		"deterministically, and retires them over time according to per-tenant policy.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(retentionCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(scoreCmd)
}
