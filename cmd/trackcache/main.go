package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/piwi3910/trackcache/cmd/trackcache/commands"
)

var (
	// Version is set at build time
	Version = "dev"
	// Commit is set at build time
	Commit = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "trackcache",
		Short: "trackcache - cached track lyrics, translations and videos",
		Long: `trackcache serves track records enriched with lyrics, a romanized
rendering, a translation and a video link, backed by a bounded LFU cache.

Configuration is read from trackcache.yaml (., /etc/trackcache,
$HOME/.trackcache or --config) and TRACKCACHE_* environment variables:
  TRACKCACHE_REDIS_ADDR
  TRACKCACHE_CACHE_MAX_ENTRIES
  TRACKCACHE_PROVIDERS_GENIUS_ACCESS_TOKEN`,
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to configuration file")

	rootCmd.AddCommand(commands.NewServeCmd(Version))
	rootCmd.AddCommand(commands.NewConfigCmd())
	rootCmd.AddCommand(commands.NewVersionCmd(Version, Commit))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
