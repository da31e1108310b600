package coreapi

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/ain-network/evmcore/core/evmstate"
	"github.com/ain-network/evmcore/evmerrors"
)

// backendAt opens a read-only Backend rooted at ref's state. Vicinity
// is left zero-valued: every query below only reads account/storage
// state, never executes, so the ambient block environment is unused.
func (c *Core) backendAt(ref BlockRef) (*evmstate.Backend, error) {
	block, err := c.resolveBlock(ref)
	if err != nil {
		return nil, err
	}
	return evmstate.NewBackend(c.trieStore, c.chainDB, c.chainDB, block.Root(), block.NumberU64(), evmstate.Vicinity{}), nil
}

// GetBalance returns addr's balance as of block (spec §6 get_balance).
func (c *Core) GetBalance(addr common.Address, block BlockRef) (*uint256.Int, error) {
	backend, err := c.backendAt(block)
	if err != nil {
		return nil, err
	}
	_, balance, err := backend.Basic(addr)
	return balance, err
}

// GetNonce returns addr's nonce as of block (spec §6 get_nonce).
func (c *Core) GetNonce(addr common.Address, block BlockRef) (uint64, error) {
	backend, err := c.backendAt(block)
	if err != nil {
		return 0, err
	}
	nonce, _, err := backend.Basic(addr)
	return nonce, err
}

// GetCode returns addr's deployed bytecode as of block (spec §6
// get_code).
func (c *Core) GetCode(addr common.Address, block BlockRef) ([]byte, error) {
	backend, err := c.backendAt(block)
	if err != nil {
		return nil, err
	}
	return backend.Code(addr, c.chainDB.CodeByHash)
}

// GetStorageAt returns one storage slot's value as of block (spec §6
// get_storage_at).
func (c *Core) GetStorageAt(addr common.Address, slot common.Hash, block BlockRef) (common.Hash, error) {
	backend, err := c.backendAt(block)
	if err != nil {
		return common.Hash{}, err
	}
	return backend.Storage(addr, slot)
}

// GetBlockByNumber returns the block at number (spec §6
// get_block_by_number).
func (c *Core) GetBlockByNumber(number uint64) (*types.Block, error) {
	block, ok, err := c.chainDB.GetBlockByNumber(number)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &evmerrors.NoSuchBlock{Reference: "block by number"}
	}
	return block, nil
}

// GetBlockByHash returns the block with the given hash (spec §6
// get_block_by_hash).
func (c *Core) GetBlockByHash(hash common.Hash) (*types.Block, error) {
	block, ok, err := c.chainDB.GetBlockByHash(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &evmerrors.NoSuchBlock{Reference: hash.Hex()}
	}
	return block, nil
}

// GetTransactionByHash returns a stored transaction envelope (spec §6
// get_transaction_by_hash).
func (c *Core) GetTransactionByHash(hash common.Hash) (*types.Transaction, error) {
	tx, ok, err := c.chainDB.GetTransactionByHash(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &evmerrors.NoSuchBlock{Reference: "transaction " + hash.Hex()}
	}
	return tx, nil
}

// GetReceipt returns the receipt for a transaction hash (spec §6
// get_receipt).
func (c *Core) GetReceipt(hash common.Hash) (*types.Receipt, error) {
	receipt, ok, err := c.chainDB.GetReceipt(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &evmerrors.NoSuchBlock{Reference: "receipt " + hash.Hex()}
	}
	return receipt, nil
}

// GetLogs returns every log in block, optionally filtered to one
// address (spec §6 get_logs). Topic filtering is left to the caller:
// the stored receipts already carry full topic lists, and spec.md names
// no fixed topic-filter shape to standardize against.
func (c *Core) GetLogs(block uint64, addressFilter *common.Address) ([]*types.Log, error) {
	return c.chainDB.GetLogs(block, addressFilter)
}

// CallRequest is the simulation envelope for spec §6's call(caller, to,
// value, data, gas, access_list, block).
type CallRequest struct {
	Caller     common.Address
	To         *common.Address
	Value      *uint256.Int
	Data       []byte
	GasLimit   uint64
	AccessList types.AccessList
}

// Call simulates a message call against block's state without
// persisting any effect (spec §6 call). The Vicinity ChainID is set
// from the configured chain id; all other ambient fields are left
// zero-valued since simulation callers that need exact block context
// should use finalize_block's real execution path instead.
func (c *Core) Call(req CallRequest, block BlockRef) (evmstate.TxResponse, error) {
	resolved, err := c.resolveBlock(block)
	if err != nil {
		return evmstate.TxResponse{}, err
	}
	backend := evmstate.NewBackend(c.trieStore, c.chainDB, c.chainDB, resolved.Root(), resolved.NumberU64(), evmstate.Vicinity{
		BlockNumber: new(uint256.Int).SetUint64(resolved.NumberU64()),
		ChainID:     c.chainID,
	})
	return backend.Call(evmstate.CallContext{
		Caller:     req.Caller,
		To:         req.To,
		Value:      req.Value,
		Data:       req.Data,
		GasLimit:   req.GasLimit,
		AccessList: req.AccessList,
	}, c.executor, false)
}
