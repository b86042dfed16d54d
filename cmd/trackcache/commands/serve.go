// Package commands implements the trackcache sub-commands.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/piwi3910/trackcache/internal/config"
	"github.com/piwi3910/trackcache/internal/metrics"
	"github.com/piwi3910/trackcache/internal/server"
)

// NewServeCmd creates the serve command
func NewServeCmd(version string) *cobra.Command {
	var opts config.Options

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			if err := setupLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}
			metrics.Version = version

			log.Info().Str("version", version).Msg("Starting trackcache")

			srv, err := server.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := srv.Start(ctx); err != nil {
				return fmt.Errorf("server error: %w", err)
			}

			log.Info().Msg("trackcache shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ListenAddr, "listen", "", "HTTP listen address (overrides listen_addr)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.StorageBackend, "backend", "", "Storage backend (redis, badger, memory)")

	return cmd
}

func loadConfig(cmd *cobra.Command, opts config.Options) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging configures the global zerolog logger.
func setupLogging(level, format string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}
