package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backend.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "backend:\n  access_key: k\n"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9400, cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.JobTTL)
	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	assert.Equal(t, 10*time.Second, cfg.Export.TimeBudget)
	assert.False(t, cfg.Export.Compress)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `backend:
  host: 0.0.0.0
  port: 8080
  access_key_hash: "$2a$10$abcdefghijklmnopqrstuv"
  site_root: /var/www/site
  job_ttl_min: 30
  db:
    driver: sqlite
    path: /var/www/site.db
  export:
    compress: true
    time_budget_sec: 5
`))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Empty(t, cfg.AccessKey)
	assert.NotEmpty(t, cfg.AccessKeyHash)
	assert.Equal(t, "/var/www/site", cfg.SiteRoot)
	assert.Equal(t, 30*time.Minute, cfg.JobTTL)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.True(t, cfg.Export.Compress)
	assert.Equal(t, 5*time.Second, cfg.Export.TimeBudget)
}

func TestLoadRequiresAccessKey(t *testing.T) {
	_, err := Load(writeConfig(t, "backend:\n  port: 8080\n"))
	assert.ErrorContains(t, err, "access_key")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
