package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 4, cfg.Scraper.Concurrency)
	require.True(t, cfg.Scraper.RespectRobots)
	require.Equal(t, 25, cfg.Scraper.MaxPagesDefault)
	require.Equal(t, 15, cfg.HTTP.TimeoutSeconds)
	require.True(t, cfg.Headless.Enabled)
	require.Equal(t, 2, cfg.Headless.MaxParallel)
	require.Equal(t, "memory", cfg.Store.Provider)
	require.Equal(t, "none", cfg.Blob.Provider)
	require.Equal(t, "none", cfg.Publish.Provider)
	require.True(t, cfg.Logging.Development)
}

func TestLoad_FileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  username: admin
  password: secret
scraper:
  concurrency: 8
  user_agent: custom-agent
  respect_robots: false
  headers:
    x-api-client: internal
headless:
  enabled: false
store:
  provider: fs
  data_dir: /tmp/agents
blob:
  provider: local
  base_dir: /tmp/blobs
publish:
  provider: memory
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "admin", cfg.Auth.Username)
	require.Equal(t, 8, cfg.Scraper.Concurrency)
	require.Equal(t, "custom-agent", cfg.Scraper.UserAgent)
	require.False(t, cfg.Scraper.RespectRobots)
	require.Equal(t, "internal", cfg.Scraper.Headers["x-api-client"])
	require.False(t, cfg.Headless.Enabled)
	require.Equal(t, "fs", cfg.Store.Provider)
	require.Equal(t, "/tmp/agents", cfg.Store.DataDir)
	require.Equal(t, "local", cfg.Blob.Provider)
	require.False(t, cfg.Logging.Development)
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad concurrency", func(c *Config) { c.Scraper.Concurrency = 0 }, "scraper.concurrency"},
		{"auth without creds", func(c *Config) { c.Auth.Enabled = true }, "auth.username"},
		{"llm key without base url", func(c *Config) { c.LLM.APIKey = "key" }, "llm.base_url"},
		{"fs store without dir", func(c *Config) { c.Store.Provider = "fs" }, "store.data_dir"},
		{"postgres without dsn", func(c *Config) { c.Store.Provider = "postgres" }, "store.dsn"},
		{"unknown store", func(c *Config) { c.Store.Provider = "redis" }, "store.provider"},
		{"local blob without dir", func(c *Config) { c.Blob.Provider = "local" }, "blob.base_dir"},
		{"gcs blob without bucket", func(c *Config) { c.Blob.Provider = "gcs" }, "blob.bucket"},
		{"pubsub without project", func(c *Config) { c.Publish.Provider = "pubsub" }, "publish.project_id"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.msg)
		})
	}
}
