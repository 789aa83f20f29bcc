package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Quill is an encrypted journaling service",
	Long: `A private journaling service with client-side encryption and optional
cloud sync. The server never sees plaintext; entries are encrypted on the
client and shared by re-wrapping per-entry keys.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
