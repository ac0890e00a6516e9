package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftboard/draftboard/internal/quota"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8400", cfg.ListenAddr)
	assert.Equal(t, "draftboard.db", cfg.DBFile)
	assert.Equal(t, 10*time.Second, cfg.ShutdownGrace)
	assert.False(t, cfg.DevMode)
	assert.Contains(t, cfg.DBPath(), "draftboard.db")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: "127.0.0.1:9000"
dev_mode: true
quota:
  max_nodes: 42
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 42, cfg.Quota.MaxNodes)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DRAFTD_LISTEN_ADDR", ":7777")
	t.Setenv("DRAFTD_QUOTA_MAX_EDGES", "9")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, 9, cfg.Quota.MaxEdges)
}

func TestQuotaLimitsFillDefaults(t *testing.T) {
	q := QuotaConfig{MaxNodes: 5}
	l := q.Limits()
	assert.Equal(t, 5, l.MaxNodes)
	assert.Equal(t, quota.DefaultMaxEdges, l.MaxEdges)
	assert.Equal(t, quota.DefaultMaxSpecSizeBytes, l.MaxSpecSizeBytes)
}

func TestMissingConfigFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
