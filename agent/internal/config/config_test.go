package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDefaultsWithoutFile(t *testing.T) {
	cfg := Init(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Empty(t, cfg.URL)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.Equal(t, 4, cfg.Concurrency)
}

func TestInitReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"agent:\n"+
			"  url: https://example.com/backup\n"+
			"  access_key: hunter2\n"+
			"  output_dir: /tmp/backups\n"+
			"  concurrency: 8\n"), 0o644))

	cfg := Init(path)
	assert.Equal(t, "https://example.com/backup", cfg.URL)
	assert.Equal(t, "hunter2", cfg.AccessKey)
	assert.Equal(t, "/tmp/backups", cfg.OutputDir)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, cfg, Get())
}
