package cli

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "substream",
	Short: "Streaming subspace clustering",
	Long:  "Substream clusters high-dimensional data streams into projected micro-clusters online and derives density-based subspace clusters from them. Single Go binary.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "history database path (overrides config and SUBSTREAM_DB)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(historyCmd)
}
