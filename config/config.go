// Package config resolves the one environment input this core reads:
// the data directory each persisted store is rooted under (spec §6
// "Environment"). Nothing else is configurable here; the embedding
// node owns chain id, genesis, and executor wiring directly through
// coreapi.New's arguments.
package config

import (
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	datadirKey     = "datadir"
	defaultDatadir = "./data"

	trieSubdir    = "evm/trie"
	indexesSubdir = "evm/indexes"
)

// Config holds the resolved data directory and its derived store
// paths.
type Config struct {
	Datadir    string
	TrieDir    string
	IndexesDir string
}

// Load resolves Datadir from the EVMCORE_DATADIR environment variable,
// falling back to defaultDatadir, and derives the per-store
// subdirectories this module opens its kv.Store instances under.
func Load() *Config {
	v := viper.New()
	v.SetEnvPrefix("evmcore")
	v.SetDefault(datadirKey, defaultDatadir)
	_ = v.BindEnv(datadirKey)

	datadir := v.GetString(datadirKey)
	return &Config{
		Datadir:    datadir,
		TrieDir:    filepath.Join(datadir, trieSubdir),
		IndexesDir: filepath.Join(datadir, indexesSubdir),
	}
}
