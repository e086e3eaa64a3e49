package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL    string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "wattsync",
	Short: "wattsync CLI - query and sync electricity usage data",
	Long: `wattsync keeps a local copy of your electricity and gas usage,
pulled from the Contact Energy API.

This CLI tool allows you to:
- List accounts and contracts
- View usage summaries and monthly history
- Trigger syncs and backfills
- Watch backfill progress`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", getEnvOrDefault("WATTSYNC_URL", "http://localhost:8080"), "wattsync server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
