package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fungimap",
	Short: "Relevance-driven bubble map of a mushroom catalog",
	Long: "Fungimap watches how you browse a catalog, scores every entity by relevance, " +
		"and lays the most relevant ones out as a physics-driven bubble graph.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.fungimap/config.toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(sessionCmd)
}
