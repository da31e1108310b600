// Package chain implements Block Finalization (spec §4.5): draining a
// context's queue, executing each entry against a running EVM Backend,
// collecting receipts, sealing a new block, and persisting it through
// core/rawdb — plus the reorg hook, disconnect_tip.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/ain-network/evmcore/core/evmstate"
	"github.com/ain-network/evmcore/core/rawdb"
	"github.com/ain-network/evmcore/core/txpool"
	"github.com/ain-network/evmcore/evmerrors"
	"github.com/ain-network/evmcore/internal/trie"
)

// bloomFanOut bounds how many receipts' bloom filters are computed
// concurrently once execution has produced the full receipt list.
const bloomFanOut = 8

// BlockMeta is the caller-supplied portion of a new block's header that
// the core itself has no opinion on (spec §6 finalize_block's
// block_meta): coinbase, timestamp, and gas/fee parameters are set by
// whatever consensus/mining logic sits above this package.
type BlockMeta struct {
	Coinbase      common.Address
	Timestamp     uint64
	GasLimit      uint64
	Difficulty    *big.Int
	BaseFeePerGas *big.Int
	ExtraData     []byte
}

// Finalizer wires the Transaction Queue Map, the EVM Backend, and the
// Block/Receipt/Log Store together to implement finalize_block.
type Finalizer struct {
	queues    *txpool.Map
	trieStore *trie.Store
	chainDB   *rawdb.Store
	executor  evmstate.Executor
	chainID   *uint256.Int
}

// NewFinalizer binds a Finalizer to its collaborators. executor is the
// pluggable opcode-level EVM engine (spec §1 non-goal: assumed
// available, not implemented here).
func NewFinalizer(queues *txpool.Map, trieStore *trie.Store, chainDB *rawdb.Store, executor evmstate.Executor, chainID *uint256.Int) *Finalizer {
	return &Finalizer{queues: queues, trieStore: trieStore, chainDB: chainDB, executor: executor, chainID: chainID}
}

// FinalizeBlock drains ctx, executes every queued entry in order
// against a Backend rooted at parent's state, seals the resulting
// block, and persists it. On any fatal trie or store error it returns
// the error without having called any Put* — spec §4.5's "abort
// without mutating persisted state".
func (f *Finalizer) FinalizeBlock(ctx uint64, parent *types.Block, meta BlockMeta) (*types.Header, error) {
	items, err := f.queues.Drain(ctx)
	if err != nil {
		return nil, err
	}

	number := parent.NumberU64() + 1
	blockVicinity := evmstate.Vicinity{
		BlockNumber:        new(uint256.Int).SetUint64(number),
		BlockCoinbase:      meta.Coinbase,
		BlockTimestamp:     new(uint256.Int).SetUint64(meta.Timestamp),
		BlockDifficulty:    mustUint256FromBig(meta.Difficulty),
		BlockGasLimit:      new(uint256.Int).SetUint64(meta.GasLimit),
		BlockBaseFeePerGas: mustUint256FromBig(meta.BaseFeePerGas),
		ChainID:            f.chainID,
	}

	backend := evmstate.NewBackend(f.trieStore, f.chainDB, f.chainDB, parent.Root(), number, blockVicinity)

	var (
		txsIncluded   []*types.Transaction
		receipts      []*types.Receipt
		cumulativeGas uint64
		logIndex      uint32
		logsByAddress = map[common.Address][]uint32{}
	)

	for _, item := range items {
		switch item.Kind {
		case txpool.KindSignedTx:
			txVicinity := blockVicinity
			txVicinity.Origin = item.Sender
			gasPrice, overflow := uint256.FromBig(item.Tx.GasPrice())
			if overflow {
				return nil, &evmerrors.DecodeError{Reason: "gas price overflows uint256"}
			}
			txVicinity.GasPrice = gasPrice
			backend.SetVicinity(txVicinity)

			value, overflow := uint256.FromBig(item.Tx.Value())
			if overflow {
				return nil, &evmerrors.DecodeError{Reason: "value overflows uint256"}
			}
			callCtx := evmstate.CallContext{
				Caller:     item.Sender,
				To:         item.Tx.To(),
				Value:      value,
				Data:       item.Tx.Data(),
				GasLimit:   item.Tx.Gas(),
				AccessList: item.Tx.AccessList(),
			}
			resp, err := backend.Call(callCtx, f.executor, true)
			if err != nil {
				return nil, err
			}

			cumulativeGas += resp.UsedGas
			receipt := &types.Receipt{
				Type:              item.Tx.Type(),
				CumulativeGasUsed: cumulativeGas,
				TxHash:            item.Tx.Hash(),
				GasUsed:           resp.UsedGas,
			}
			if resp.ExitReason == evmstate.ExitSucceed {
				receipt.Status = types.ReceiptStatusSuccessful
			} else {
				receipt.Status = types.ReceiptStatusFailed
			}
			receipt.Logs = make([]*types.Log, len(resp.Logs))
			for i, l := range resp.Logs {
				receipt.Logs[i] = &types.Log{
					Address:     l.Address,
					Topics:      l.Topics,
					Data:        l.Data,
					BlockNumber: number,
					TxHash:      item.Tx.Hash(),
					Index:       uint(logIndex),
				}
				logsByAddress[l.Address] = append(logsByAddress[l.Address], logIndex)
				logIndex++
			}
			txsIncluded = append(txsIncluded, item.Tx)
			receipts = append(receipts, receipt)

		case txpool.KindBridge:
			var err error
			if item.Direction == txpool.BridgeIn {
				_, err = backend.AddBalance(item.Address, item.Amount)
			} else {
				_, err = backend.SubBalance(item.Address, item.Amount)
			}
			if err != nil {
				return nil, err
			}

		default:
			return nil, &evmerrors.QueueError{Reason: "unknown queue tx kind at finalize"}
		}
	}

	// Each receipt's bloom filter depends only on that receipt's own
	// logs, never on its neighbors, so it is computed concurrently here
	// rather than inline during the necessarily-sequential execution
	// loop above.
	group, _ := errgroup.WithContext(context.Background())
	group.SetLimit(bloomFanOut)
	for _, receipt := range receipts {
		receipt := receipt
		group.Go(func() error {
			receipt.Bloom = rawdb.ReceiptBloom(receipt)
			return nil
		})
	}
	_ = group.Wait() // ReceiptBloom cannot fail

	header := &types.Header{
		ParentHash:  parent.Hash(),
		Coinbase:    meta.Coinbase,
		Root:        backend.Root(),
		TxHash:      types.DeriveSha(types.Transactions(txsIncluded), gethtrie.NewStackTrie(nil)),
		ReceiptHash: types.DeriveSha(types.Receipts(receipts), gethtrie.NewStackTrie(nil)),
		Bloom:       rawdb.ComputeBloom(receipts),
		Difficulty:  meta.Difficulty,
		Number:      new(big.Int).SetUint64(number),
		GasLimit:    meta.GasLimit,
		GasUsed:     cumulativeGas,
		Time:        meta.Timestamp,
		Extra:       meta.ExtraData,
		BaseFee:     meta.BaseFeePerGas,
	}
	block := types.NewBlock(header, &types.Body{Transactions: txsIncluded}, receipts, gethtrie.NewStackTrie(nil))

	if err := f.chainDB.PutBlock(block); err != nil {
		return nil, err
	}
	if err := f.chainDB.PutReceipts(receipts); err != nil {
		return nil, err
	}
	if err := f.chainDB.PutLogs(number, logsByAddress); err != nil {
		return nil, err
	}
	if err := f.chainDB.PutLatestBlock(block); err != nil {
		return nil, err
	}

	return block.Header(), nil
}

// DisconnectTip is the reorg hook of spec §6 (disconnect_tip): it
// reverses the most recently finalized block's persisted artifacts.
// The trie itself is not rewound; callers reopen a Backend at the new
// tip's state root.
func (f *Finalizer) DisconnectTip() error {
	return f.chainDB.DisconnectLatestBlock()
}

func mustUint256FromBig(v *big.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return u
}
