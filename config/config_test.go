package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadUsesDefaultDatadirWhenEnvUnset(t *testing.T) {
	cfg := Load()
	require.Equal(t, defaultDatadir, cfg.Datadir)
	require.Equal(t, filepath.Join(defaultDatadir, "evm/trie"), cfg.TrieDir)
	require.Equal(t, filepath.Join(defaultDatadir, "evm/indexes"), cfg.IndexesDir)
}

func TestLoadHonorsDatadirEnvOverride(t *testing.T) {
	t.Setenv("EVMCORE_DATADIR", "/var/lib/evmcore")
	cfg := Load()
	require.Equal(t, "/var/lib/evmcore", cfg.Datadir)
	require.Equal(t, filepath.Join("/var/lib/evmcore", "evm/trie"), cfg.TrieDir)
	require.Equal(t, filepath.Join("/var/lib/evmcore", "evm/indexes"), cfg.IndexesDir)
}
