// Package cmd implements the addrcrawl command line.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/JakeFAU/addrcrawl/internal/config"
)

// newRootCmd creates the root command and attaches the subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "addrcrawl",
		Short: "Crawl a list of URLs, counting unique hosts by address.",
		Long: `addrcrawl reads one URL per line, resolves each host, skips hosts whose
address was already seen, and probes and downloads the rest with a bounded
worker pool. It reports how many sites were unique, how many replied and how
many bytes were downloaded.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.PersistentFlags().Bool("dev", true, "use the development logger")
	cmd.PersistentFlags().String("log-level", "info", "minimum log level")
	cmd.PersistentFlags().String("listen", "", "observability server address, e.g. :8080")

	load := func(flags *pflag.FlagSet) (config.Config, error) {
		return config.Load(cfgFile, flags)
	}
	cmd.AddCommand(newCrawlCmd(load), newServeCmd(load))
	return cmd
}

// loadFunc loads configuration with the command's flags layered on top.
type loadFunc func(flags *pflag.FlagSet) (config.Config, error)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
