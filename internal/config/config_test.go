package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:37778", cfg.ListenAddr())
	assert.Equal(t, 30*time.Second, cfg.AutosaveInterval())
	assert.Equal(t, 5*time.Second, cfg.CacheTTL())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Relevance, cfg.Relevance)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
port = 9000

[relevance]
decay_factor = 0.9

[layout]
top_n = 12
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.InDelta(t, 0.9, cfg.Relevance.DecayFactor, 1e-9)
	assert.Equal(t, 12, cfg.Layout.TopN)
	// untouched keys keep defaults
	assert.InDelta(t, 0.25, cfg.Relevance.Clicks, 1e-9)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[physics]\ndamping = 1.5\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport = "), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FUNGIMAP_DB", "/tmp/x.db")
	t.Setenv("FUNGIMAP_SEARCH_URL", "http://localhost:9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.Equal(t, "http://localhost:9999", cfg.Search.URL)
}

func TestMaxSizeBelowMinSizeRejected(t *testing.T) {
	cfg := Default()
	cfg.Layout.MaxSize = 10
	assert.Error(t, cfg.Validate())
}
