// Package coreapi is the external-interface facade of spec §6: every
// operation the out-of-scope bridge calls into, wired against the
// queue map, the block finalizer, the persistence layer, and the
// oracle indexer this module owns.
package coreapi

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/ain-network/evmcore/core/chain"
	"github.com/ain-network/evmcore/core/evmstate"
	"github.com/ain-network/evmcore/core/rawdb"
	"github.com/ain-network/evmcore/core/txpool"
	"github.com/ain-network/evmcore/evmerrors"
	"github.com/ain-network/evmcore/indexer"
	"github.com/ain-network/evmcore/internal/trie"
	"github.com/ain-network/evmcore/metrics"
)

// IndexBlock applies a finalized block's oracle events to the secondary
// indices (spec §6 on_block_indexed). FinalizeBlock does not call this
// itself: the caller assembles the Event list from whatever on-chain
// precompile/contract log shape the embedding node exposes, which is
// outside this module's scope (spec §1).
func (c *Core) IndexBlock(block indexer.BlockContext, events []indexer.Event) {
	c.index.OnBlockIndexed(block, events)
	if c.metrics == nil {
		return
	}
	for _, ev := range events {
		if ev.Kind != indexer.EventSetOracleData {
			continue
		}
		if agg, ok, err := c.index.LatestAggregate(ev.SetOracle.Token, ev.SetOracle.Currency); err == nil && ok {
			c.metrics.ObserveAggregate(ev.SetOracle.Token, ev.SetOracle.Currency, int(agg.Active))
		}
	}
}

// UnindexBlock reverses a disconnected block's oracle events (spec §6
// on_block_invalidated), mirroring DisconnectTip's reversal of the
// persisted chain state.
func (c *Core) UnindexBlock(block indexer.BlockContext, events []indexer.Event) {
	c.index.OnBlockInvalidated(block, events)
}

// Core binds every component spec §5 describes as sharing the KV and
// Trie Store handles by reference: the queue map (in-memory), the
// block finalizer, the persisted chain store, and the oracle indexer.
// It is the single type the host bridge constructs and calls into.
type Core struct {
	trieStore *trie.Store
	chainDB   *rawdb.Store
	queues    *txpool.Map
	finalizer *chain.Finalizer
	index     *indexer.Store
	executor  evmstate.Executor
	chainID   *uint256.Int
	metrics   *metrics.Metrics
}

// New assembles a Core over already-open stores. executor is the
// opcode-level EVM engine the embedding node supplies (spec §1's "a
// standard byte-accurate EVM engine is available" assumption). m is
// nil-safe: a Core built without a Metrics set (every call site below
// guards on it) simply reports nothing, which is how plain New callers
// that bypass Open get a Core with no observability overhead.
func New(trieStore *trie.Store, chainDB *rawdb.Store, indexStore *indexer.Store, executor evmstate.Executor, chainID *uint256.Int, m *metrics.Metrics) *Core {
	queues := txpool.NewMap()
	return &Core{
		trieStore: trieStore,
		chainDB:   chainDB,
		queues:    queues,
		finalizer: chain.NewFinalizer(queues, trieStore, chainDB, executor, chainID),
		index:     indexStore,
		executor:  executor,
		chainID:   chainID,
		metrics:   m,
	}
}

// Bootstrap persists a caller-constructed genesis block as the initial
// tip. Genesis construction itself (allocating initial balances) is a
// host/embedding concern, out of this core's scope (spec §1).
func (c *Core) Bootstrap(genesis *types.Block) error {
	if err := c.chainDB.PutBlock(genesis); err != nil {
		return err
	}
	return c.chainDB.PutLatestBlock(genesis)
}

// NewContext allocates a fresh queue context (spec §6 new_context).
func (c *Core) NewContext() uint64 { return c.queues.NewContext() }

// ClearContext drops ctx and every transaction queued under it (spec §6
// clear_context).
func (c *Core) ClearContext(ctx uint64) { c.queues.ClearContext(ctx) }

// QueueTx decodes a standard Ethereum-envelope-encoded signed
// transaction and admits it into ctx (spec §6 queue_tx). Decoding and
// signature recovery failures surface as evmerrors.DecodeError;
// admission-rule failures (nonce gap, insufficient projected balance)
// surface as their own structured errors, per spec §7.
func (c *Core) QueueTx(ctx uint64, rawSignedTx []byte, nativeHash common.Hash) error {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawSignedTx); err != nil {
		return &evmerrors.DecodeError{Reason: "malformed transaction envelope", Err: err}
	}

	signer := types.LatestSignerForChainID(c.chainID.ToBig())
	sender, err := types.Sender(signer, tx)
	if err != nil {
		return &evmerrors.DecodeError{Reason: "signature recovery failed", Err: err}
	}

	reader, err := c.latestStateReader()
	if err != nil {
		return err
	}
	if err := c.queues.Enqueue(ctx, reader, txpool.QueueTx{
		Kind:       txpool.KindSignedTx,
		NativeHash: nativeHash,
		Tx:         tx,
		Sender:     sender,
	}); err != nil {
		return err
	}
	c.observeEnqueue(ctx, "signed_tx")
	return nil
}

// QueueBridge admits a synthetic bridge balance update into ctx (spec
// §6 queue_bridge).
func (c *Core) QueueBridge(ctx uint64, direction txpool.BridgeDirection, address common.Address, amount *uint256.Int, nativeHash common.Hash) error {
	reader, err := c.latestStateReader()
	if err != nil {
		return err
	}
	if err := c.queues.Enqueue(ctx, reader, txpool.QueueTx{
		Kind:       txpool.KindBridge,
		NativeHash: nativeHash,
		Direction:  direction,
		Address:    address,
		Amount:     amount,
	}); err != nil {
		return err
	}
	c.observeEnqueue(ctx, "bridge")
	return nil
}

// observeEnqueue reports ctx's post-admission queue depth under kind, a
// no-op when Core was built without a Metrics (see New's doc comment).
func (c *Core) observeEnqueue(ctx uint64, kind string) {
	if c.metrics == nil {
		return
	}
	depth, err := c.queues.Length(ctx)
	if err != nil {
		return
	}
	c.metrics.ObserveEnqueue(ctx, kind, depth)
}

// FinalizeBlock drains ctx, executes every entry against parentRef's
// state, persists the sealed block, and returns its header (spec §6
// finalize_block).
func (c *Core) FinalizeBlock(ctx uint64, parentRef BlockRef, meta chain.BlockMeta) (*types.Header, error) {
	parent, err := c.resolveBlock(parentRef)
	if err != nil {
		return nil, err
	}
	var txCount int
	if c.metrics != nil {
		txCount, _ = c.queues.Length(ctx)
	}
	start := time.Now()
	header, err := c.finalizer.FinalizeBlock(ctx, parent, meta)
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.ObserveFinalize(time.Since(start).Seconds(), txCount)
	}
	return header, nil
}

// DisconnectTip reverses the current tip's persisted artifacts (spec §6
// disconnect_tip, the reorg hook). The trie itself is untouched; the
// caller must reopen any EVM Backend at the new tip's root.
func (c *Core) DisconnectTip() error {
	if err := c.finalizer.DisconnectTip(); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.ObserveDisconnect()
	}
	return nil
}

// latestStateReader adapts the persisted chain tip into the
// txpool.StateReader interface the queue checks admission against.
type latestStateReader struct {
	core *Core
	root common.Hash
}

func (c *Core) latestStateReader() (*latestStateReader, error) {
	number, ok, err := c.chainDB.LatestBlockNumber()
	if err != nil {
		return nil, err
	}
	root := trie.EmptyRootHash
	if ok {
		block, ok, err := c.chainDB.GetBlockByNumber(number)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &evmerrors.NoSuchBlock{Reference: "latest"}
		}
		root = block.Root()
	}
	return &latestStateReader{core: c, root: root}, nil
}

func (r *latestStateReader) NonceAt(addr common.Address) (uint64, error) {
	backend := evmstate.NewBackend(r.core.trieStore, r.core.chainDB, r.core.chainDB, r.root, 0, evmstate.Vicinity{})
	nonce, _, err := backend.Basic(addr)
	return nonce, err
}

func (r *latestStateReader) BalanceAt(addr common.Address) (*uint256.Int, error) {
	backend := evmstate.NewBackend(r.core.trieStore, r.core.chainDB, r.core.chainDB, r.root, 0, evmstate.Vicinity{})
	_, balance, err := backend.Basic(addr)
	return balance, err
}

// BlockRef selects a block either by number, by hash, or (the zero
// value) the current tip — the parent_block_ref / block arguments spec
// §6 passes to finalize_block and every read-only query.
type BlockRef struct {
	number *uint64
	hash   *common.Hash
}

// ByNumber references a block by its height.
func ByNumber(n uint64) BlockRef { return BlockRef{number: &n} }

// ByHash references a block by its hash.
func ByHash(h common.Hash) BlockRef { return BlockRef{hash: &h} }

// Latest references the current persisted tip.
func Latest() BlockRef { return BlockRef{} }

func (c *Core) resolveBlock(ref BlockRef) (*types.Block, error) {
	switch {
	case ref.hash != nil:
		block, ok, err := c.chainDB.GetBlockByHash(*ref.hash)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &evmerrors.NoSuchBlock{Reference: ref.hash.Hex()}
		}
		return block, nil
	case ref.number != nil:
		block, ok, err := c.chainDB.GetBlockByNumber(*ref.number)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &evmerrors.NoSuchBlock{Reference: "block by number"}
		}
		return block, nil
	default:
		number, ok, err := c.chainDB.LatestBlockNumber()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &evmerrors.NoSuchBlock{Reference: "latest"}
		}
		block, ok, err := c.chainDB.GetBlockByNumber(number)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &evmerrors.NoSuchBlock{Reference: "latest"}
		}
		return block, nil
	}
}
