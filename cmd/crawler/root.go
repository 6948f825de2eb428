package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "proxyweaver",
	Short: "Polite concurrent crawler harvesting proxy candidates and links",
	Long: `proxyweaver crawls root domains in rounds, least-visited first, with a
per-host adaptive delay. Every fetched page is scanned for ip:port proxy
candidates and absolute links; newly seen root domains feed the next round.
Domain visit counts and proxy candidates are flushed periodically to CSV
files (or SQLite) so a later run picks up where this one stopped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		logrus.SetLevel(logrus.InfoLevel)
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to JSON config file (default ./config.json if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		return err
	}
	return nil
}
