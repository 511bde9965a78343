package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Pulse real-time direct messaging server",
	Long: `Pulse is a real-time direct messaging server: authenticated users
exchange text, media, stickers, reactions and deletions, with presence
and live delivery over websockets.`,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
