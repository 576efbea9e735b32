package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigDir_UsesHomeDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir, err := ConfigDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "postflight"), dir)
}

func TestEnsureConfigDir_CreatesDefaultConfigOnlyWhenMissing(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	err := EnsureConfigDir()
	require.NoError(t, err)

	dir, err := ConfigDir()
	require.NoError(t, err)

	configFile := filepath.Join(dir, "config.yaml")
	b, err := os.ReadFile(configFile)
	require.NoError(t, err)
	require.Equal(t, defaultConfig, string(b))

	custom := []byte("db_path: /tmp/custom.db\n")
	require.NoError(t, os.WriteFile(configFile, custom, 0o600))

	err = EnsureConfigDir()
	require.NoError(t, err)

	b, err = os.ReadFile(configFile)
	require.NoError(t, err)
	require.Equal(t, string(custom), string(b))
}

func TestWorkspaceHash_StableAndScoped(t *testing.T) {
	h1 := WorkspaceHash("/tmp/ws-a")
	h2 := WorkspaceHash("/tmp/ws-a")
	h3 := WorkspaceHash("/tmp/ws-b")

	require.Len(t, h1, 12)
	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
}

func TestWorkspaceHash_NormalizesRelativePaths(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	rel := WorkspaceHash(".")
	abs := WorkspaceHash(wd)
	require.Equal(t, abs, rel)
}
