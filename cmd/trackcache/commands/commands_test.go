package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/piwi3910/trackcache/internal/config"
)

func run(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()

	root := &cobra.Command{Use: "trackcache"}
	root.PersistentFlags().String("config", "", "")
	root.AddCommand(cmd)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trackcache.yaml")
	body := `
listen_addr: ":9999"
redis:
  password: hunter2
providers:
  genius:
    access_token: genius-token
  spotify:
    client_id: my-client
    client_secret: spotify-secret
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigShowMasksSecrets(t *testing.T) {
	out := run(t, NewConfigCmd(), "config", "show", "--config", writeConfig(t))

	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "genius-token")
	assert.NotContains(t, out, "spotify-secret")
	assert.Contains(t, out, "my-client")

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, masked, cfg.Redis.Password)
	assert.Equal(t, masked, cfg.Providers.Genius.AccessToken)
	assert.Empty(t, cfg.Providers.YouTube.APIKey)
	assert.Equal(t, 100, cfg.Cache.MaxEntries)
}

func TestConfigShowReveal(t *testing.T) {
	out := run(t, NewConfigCmd(), "config", "show", "--reveal", "--config", writeConfig(t))

	assert.Contains(t, out, "hunter2")
	assert.Contains(t, out, "spotify-secret")
}

func TestVersion(t *testing.T) {
	out := run(t, NewVersionCmd("1.2.3", "abc123"), "version")

	assert.Contains(t, out, "trackcache 1.2.3")
	assert.Contains(t, out, "Commit: abc123")
}

func TestSetupLogging(t *testing.T) {
	assert.NoError(t, setupLogging("debug", "console"))
	assert.NoError(t, setupLogging("info", "json"))
	assert.Error(t, setupLogging("loud", "json"))
}
