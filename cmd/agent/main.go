package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "katello-agent",
	Short: "Katello host agent",
	Long: `Katello host agent.

Keeps the messaging link in line with the host's subscription
registration, runs content operations through the system package
manager and restarts itself on request once idle.
`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(restartCmd())
	rootCmd.AddCommand(versionCmd())
}
