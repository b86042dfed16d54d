package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/piwi3910/trackcache/internal/config"
)

const masked = "********"

// NewConfigCmd creates the config command
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, config.Options{})
			if err != nil {
				return err
			}

			out, err := renderConfig(cfg, reveal)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print credentials in clear text")

	return cmd
}

// renderConfig marshals cfg to YAML, masking credentials unless reveal is set.
func renderConfig(cfg *config.Config, reveal bool) (string, error) {
	c := *cfg
	if !reveal {
		c.Redis.Password = maskSecret(c.Redis.Password)
		c.Providers.Spotify.ClientSecret = maskSecret(c.Providers.Spotify.ClientSecret)
		c.Providers.Genius.AccessToken = maskSecret(c.Providers.Genius.AccessToken)
		c.Providers.YouTube.APIKey = maskSecret(c.Providers.YouTube.APIKey)
	}

	data, err := yaml.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("failed to render configuration: %w", err)
	}
	return string(data), nil
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	return masked
}
