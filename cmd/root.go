package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "polybot",
	Short:         "Telegram webhook bot",
	Long:          "Polybot receives Telegram updates over a webhook and answers them with the configured bot.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
