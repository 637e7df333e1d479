package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "blogedge",
	Short: "Edge server and offline cache for the blog",
	Long: `blogedge serves the pre-built blog with security and caching headers,
handles contact form submissions, and runs the offline-first worker cache
that keeps the site readable when the network is gone.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "blogedge.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
