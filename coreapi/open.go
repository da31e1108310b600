package coreapi

import (
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ain-network/evmcore/config"
	"github.com/ain-network/evmcore/core/evmstate"
	"github.com/ain-network/evmcore/core/rawdb"
	"github.com/ain-network/evmcore/indexer"
	"github.com/ain-network/evmcore/internal/kv"
	"github.com/ain-network/evmcore/internal/trie"
	coremetrics "github.com/ain-network/evmcore/metrics"
)

// Handle bundles an open Core with the underlying kv.Store handles and
// metrics set, so a caller that opened them via Open can close them in
// the same place (spec §6 "File layout": trie nodes and chain/indexer
// columns live in separate pebble databases under datadir).
type Handle struct {
	*Core
	Metrics *coremetrics.Metrics

	trieKV    *kv.Store
	indexesKV *kv.Store
}

// Close releases both underlying pebble handles.
func (h *Handle) Close() error {
	if err := h.trieKV.Close(); err != nil {
		return err
	}
	return h.indexesKV.Close()
}

// Open resolves cfg's data directory, opens the trie and chain/indexer
// stores it names, and wires a Core and its Metrics set against them.
// This is the composition root an embedding binary's main() calls;
// nothing in this module outside package coreapi imports config or
// metrics.
func Open(cfg *config.Config, reg prometheus.Registerer, executor evmstate.Executor, chainID *uint256.Int) (*Handle, error) {
	trieKV, err := kv.Open(cfg.TrieDir)
	if err != nil {
		return nil, err
	}
	indexesKV, err := kv.Open(cfg.IndexesDir)
	if err != nil {
		_ = trieKV.Close()
		return nil, err
	}

	trieStore := trie.NewStore(trieKV)
	chainDB := rawdb.Open(indexesKV)
	indexStore := indexer.Open(indexesKV)
	m := coremetrics.New(reg)

	return &Handle{
		Core:      New(trieStore, chainDB, indexStore, executor, chainID, m),
		Metrics:   m,
		trieKV:    trieKV,
		indexesKV: indexesKV,
	}, nil
}
