package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor bool
	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:   "meetsync",
	Short: "Meeting notes delivery pipeline",
	Long: `meetsync watches a meeting-notes service for finished meetings and
delivers structured payloads to configured outputs (webhook, table, file),
with template-gated admission, retry with backoff, and operator alerting.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default: XDG config dir)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
