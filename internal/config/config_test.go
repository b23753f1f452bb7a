package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetenv clears a variable for the test and restores it afterwards.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLIENT_CWD", dir)
	unsetenv(t, "MCP_DATABASE")
	unsetenv(t, "MCP_READ_ONLY")
	unsetenv(t, "MCP_POOL_MIN")
	unsetenv(t, "MCP_POOL_MAX")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.ReadOnly, "read-only defaults on")
	assert.Equal(t, 1, cfg.PoolMin)
	assert.Equal(t, 20, cfg.PoolMax)
	assert.Equal(t, dir, cfg.ProjectDir)
}

func TestLoad_ReadsProjectEnvWithoutOverridingProcessEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("MCP_READ_ONLY=false\nMCP_POOL_MAX=7\n"), 0o644))

	t.Setenv("CLIENT_CWD", dir)
	t.Setenv("MCP_READ_ONLY", "true") // process env wins over .env
	unsetenv(t, "MCP_POOL_MAX")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.ReadOnly)
	assert.Equal(t, 7, cfg.PoolMax)
}

func TestLoad_ClampsPoolBounds(t *testing.T) {
	t.Setenv("CLIENT_CWD", t.TempDir())
	t.Setenv("MCP_POOL_MIN", "5")
	t.Setenv("MCP_POOL_MAX", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.PoolMin)
	assert.Equal(t, cfg.PoolMin, cfg.PoolMax, "max never drops below min")
}

func TestLoadProjectEnv_Override(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("MCP_DATABASE=postgres://u@fresh:5432/db\n"), 0o644))

	t.Setenv("MCP_DATABASE", "postgres://u@stale:5432/db")
	LoadProjectEnv(dir, true)
	assert.Equal(t, "postgres://u@fresh:5432/db", os.Getenv("MCP_DATABASE"))
}
