package rawdb

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ain-network/evmcore/evmerrors"
)

// LatestBlockNumber reads the latest_block_number sentinel.
func (s *Store) LatestBlockNumber() (uint64, bool, error) {
	n, ok, err := s.latestBlock.Get(latestSentinel)
	if err != nil {
		return 0, false, &evmerrors.BackendError{Op: "LatestBlockNumber", Err: err}
	}
	return n, ok, nil
}

// GetBlockByNumber returns the block at number, if any.
func (s *Store) GetBlockByNumber(number uint64) (*types.Block, bool, error) {
	b, ok, err := s.blocks.Get(number)
	if err != nil {
		return nil, false, &evmerrors.BackendError{Op: "GetBlockByNumber", Err: err}
	}
	return b, ok, nil
}

// GetBlockByHash resolves hash via block_map then loads the block.
func (s *Store) GetBlockByHash(hash common.Hash) (*types.Block, bool, error) {
	number, ok, err := s.blockMap.Get(hash)
	if err != nil {
		return nil, false, &evmerrors.BackendError{Op: "GetBlockByHash: block_map", Err: err}
	}
	if !ok {
		return nil, false, nil
	}
	return s.GetBlockByNumber(number)
}

// BlockHash resolves a block number to its hash; it satisfies
// evmstate.BlockHashReader for BLOCKHASH.
func (s *Store) BlockHash(number uint64) (common.Hash, bool, error) {
	b, ok, err := s.GetBlockByNumber(number)
	if err != nil || !ok {
		return common.Hash{}, ok, err
	}
	return b.Hash(), true, nil
}

// GetTransactionByHash returns a stored transaction envelope.
func (s *Store) GetTransactionByHash(hash common.Hash) (*types.Transaction, bool, error) {
	tx, ok, err := s.transactions.Get(hash)
	if err != nil {
		return nil, false, &evmerrors.BackendError{Op: "GetTransactionByHash", Err: err}
	}
	return tx, ok, nil
}

// GetReceipt returns the receipt for a transaction hash.
func (s *Store) GetReceipt(hash common.Hash) (*types.Receipt, bool, error) {
	r, ok, err := s.receipts.Get(hash)
	if err != nil {
		return nil, false, &evmerrors.BackendError{Op: "GetReceipt", Err: err}
	}
	return r, ok, nil
}

// CodeByHash returns stored bytecode, satisfying the codeByHash
// callback evmstate.Backend.Code expects.
func (s *Store) CodeByHash(hash common.Hash) ([]byte, bool, error) {
	code, ok, err := s.code.Get(hash)
	if err != nil {
		return nil, false, &evmerrors.BackendError{Op: "CodeByHash", Err: err}
	}
	return code, ok, nil
}

// GetAddressLogIndices returns the raw address→log-index rows recorded
// for block, the shape PutLogs merges into.
func (s *Store) GetAddressLogIndices(block uint64) ([]AddressLogIndices, error) {
	rows, _, err := s.addressLogsMap.Get(block)
	if err != nil {
		return nil, &evmerrors.BackendError{Op: "GetAddressLogIndices", Err: err}
	}
	return rows, nil
}

// GetLogs returns every log in block whose address, when addressFilter
// is non-nil, matches it. Logs are recovered from the block's stored
// receipts in transaction order, consistent with how PutLogs recorded
// their indices.
func (s *Store) GetLogs(block uint64, addressFilter *common.Address) ([]*types.Log, error) {
	b, ok, err := s.GetBlockByNumber(block)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &evmerrors.NoSuchBlock{Reference: "block by number"}
	}
	var out []*types.Log
	for _, tx := range b.Transactions() {
		receipt, ok, err := s.GetReceipt(tx.Hash())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, log := range receipt.Logs {
			if addressFilter != nil && log.Address != *addressFilter {
				continue
			}
			out = append(out, log)
		}
	}
	return out, nil
}
