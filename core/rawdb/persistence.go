package rawdb

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ain-network/evmcore/evmerrors"
)

var latestSentinel = struct{}{}

// PutBlock writes every transaction (hash→tx), the block itself
// (number→block), and block_map[hash]=number under a single batch
// (spec §4.6's put_block).
func (s *Store) PutBlock(block *types.Block) error {
	batch := s.kv.NewBatch()
	for _, tx := range block.Transactions() {
		if err := s.transactions.PutBatch(batch, tx.Hash(), tx); err != nil {
			return &evmerrors.BackendError{Op: "PutBlock: tx", Err: err}
		}
	}
	if err := s.blocks.PutBatch(batch, block.NumberU64(), block); err != nil {
		return &evmerrors.BackendError{Op: "PutBlock: block", Err: err}
	}
	if err := s.blockMap.PutBatch(batch, block.Hash(), block.NumberU64()); err != nil {
		return &evmerrors.BackendError{Op: "PutBlock: block_map", Err: err}
	}
	if err := batch.Commit(); err != nil {
		return &evmerrors.BackendError{Op: "PutBlock: commit", Err: err}
	}
	return nil
}

// PutReceipts writes hash→receipt for each receipt (spec §4.6
// put_receipts).
func (s *Store) PutReceipts(receipts []*types.Receipt) error {
	batch := s.kv.NewBatch()
	for _, r := range receipts {
		if err := s.receipts.PutBatch(batch, r.TxHash, r); err != nil {
			return &evmerrors.BackendError{Op: "PutReceipts", Err: err}
		}
	}
	return wrapCommit(batch, "PutReceipts")
}

// PutLogs merges logs for each touched address into
// address_logs_map[block] (spec §4.6 put_logs). logIndices gives each
// address's log indices within the block, in log order.
func (s *Store) PutLogs(block uint64, logIndices map[common.Address][]uint32) error {
	existing, _, err := s.addressLogsMap.Get(block)
	if err != nil {
		return &evmerrors.BackendError{Op: "PutLogs: read", Err: err}
	}
	merged := map[common.Address][]uint32{}
	for _, row := range existing {
		merged[row.Address] = append(merged[row.Address], row.Indices...)
	}
	for addr, idxs := range logIndices {
		merged[addr] = append(merged[addr], idxs...)
	}
	rows := make([]AddressLogIndices, 0, len(merged))
	for addr, idxs := range merged {
		rows = append(rows, AddressLogIndices{Address: addr, Indices: idxs})
	}
	if err := s.addressLogsMap.Put(block, rows); err != nil {
		return &evmerrors.BackendError{Op: "PutLogs: write", Err: err}
	}
	return nil
}

// PutLatestBlock updates the latest_block_number sentinel (spec §4.6
// put_latest_block).
func (s *Store) PutLatestBlock(block *types.Block) error {
	if err := s.latestBlock.Put(latestSentinel, block.NumberU64()); err != nil {
		return &evmerrors.BackendError{Op: "PutLatestBlock", Err: err}
	}
	return nil
}

// PutCode writes code_map[hash]=code and records hash in
// block_code_hashes[block] for rollback GC (spec §4.3/§4.6); it
// satisfies evmstate.CodeStore.
func (s *Store) PutCode(block uint64, hash common.Hash, code []byte) error {
	if err := s.code.Put(hash, code); err != nil {
		return &evmerrors.BackendError{Op: "PutCode: code_map", Err: err}
	}
	existing, _, err := s.blockCodeHashes.Get(block)
	if err != nil {
		return &evmerrors.BackendError{Op: "PutCode: read block_code_hashes", Err: err}
	}
	if err := s.blockCodeHashes.Put(block, append(existing, hash)); err != nil {
		return &evmerrors.BackendError{Op: "PutCode: write block_code_hashes", Err: err}
	}
	return nil
}

// DisconnectLatestBlock reverses PutBlock/PutReceipts/PutLogs/PutCode
// for the current tip and moves the latest pointer back to its parent
// (spec §4.6's disconnect_latest_block). The trie itself is not
// rewound; callers reopen the EVM Backend at the parent's state root.
func (s *Store) DisconnectLatestBlock() error {
	number, ok, err := s.latestBlock.Get(latestSentinel)
	if err != nil {
		return &evmerrors.BackendError{Op: "DisconnectLatestBlock: read latest", Err: err}
	}
	if !ok {
		return &evmerrors.NoSuchBlock{Reference: "latest"}
	}
	block, ok, err := s.blocks.Get(number)
	if err != nil {
		return &evmerrors.BackendError{Op: "DisconnectLatestBlock: read block", Err: err}
	}
	if !ok {
		return &evmerrors.NoSuchBlock{Reference: "block by number"}
	}

	batch := s.kv.NewBatch()
	for _, tx := range block.Transactions() {
		if err := s.transactions.DeleteBatch(batch, tx.Hash()); err != nil {
			return &evmerrors.BackendError{Op: "DisconnectLatestBlock: tx", Err: err}
		}
		if err := s.receipts.DeleteBatch(batch, tx.Hash()); err != nil {
			return &evmerrors.BackendError{Op: "DisconnectLatestBlock: receipt", Err: err}
		}
	}
	if err := s.blocks.DeleteBatch(batch, number); err != nil {
		return err
	}
	if err := s.addressLogsMap.DeleteBatch(batch, number); err != nil {
		return err
	}
	if err := s.blockMap.DeleteBatch(batch, block.Hash()); err != nil {
		return err
	}

	hashes, _, err := s.blockCodeHashes.Get(number)
	if err != nil {
		return &evmerrors.BackendError{Op: "DisconnectLatestBlock: read code hashes", Err: err}
	}
	for _, h := range hashes {
		if err := s.code.DeleteBatch(batch, h); err != nil {
			return &evmerrors.BackendError{Op: "DisconnectLatestBlock: delete code", Err: err}
		}
	}
	if err := s.blockCodeHashes.DeleteBatch(batch, number); err != nil {
		return err
	}

	parentNumber, hasParent, err := s.blockMap.Get(block.ParentHash())
	if err != nil {
		return &evmerrors.BackendError{Op: "DisconnectLatestBlock: read parent", Err: err}
	}
	if hasParent {
		if err := s.latestBlock.PutBatch(batch, latestSentinel, parentNumber); err != nil {
			return err
		}
	} else {
		if err := s.latestBlock.DeleteBatch(batch, latestSentinel); err != nil {
			return err
		}
	}

	return wrapCommit(batch, "DisconnectLatestBlock")
}

func wrapCommit(batch interface{ Commit() error }, op string) error {
	if err := batch.Commit(); err != nil {
		return &evmerrors.BackendError{Op: op + ": commit", Err: err}
	}
	return nil
}
