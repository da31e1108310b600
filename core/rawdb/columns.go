// Package rawdb is the Block/Receipt/Log Store of spec §4.6: typed
// column views over internal/kv mapping block-number↔block,
// hash↔number, tx-hash↔tx, tx-hash↔receipt, block-number↔(address→log
// indices), and code-hash↔bytecode, plus the reversible
// disconnect_latest_block rollback operation.
//
// Blocks, transactions, receipts, and logs use go-ethereum's core/types
// wire encodings directly (spec §6: "follow the standard Ethereum
// encodings so they round-trip to/from JSON-RPC without
// transformation").
package rawdb

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ain-network/evmcore/internal/kv"
)

// AddressLogIndices is one address's log indices within a block, the
// RLP-friendly row shape backing the address_logs_map column (spec
// §4.1); rlp cannot encode a Go map directly, so a block's full
// address→indices mapping is stored as a slice of these.
type AddressLogIndices struct {
	Address common.Address
	Indices []uint32
}

var blockValueCodec = kv.ValueCodec[*types.Block]{
	Encode: func(b *types.Block) ([]byte, error) { return rlp.EncodeToBytes(b) },
	Decode: func(raw []byte) (*types.Block, error) {
		var b types.Block
		if err := rlp.DecodeBytes(raw, &b); err != nil {
			return nil, err
		}
		return &b, nil
	},
}

var txValueCodec = kv.ValueCodec[*types.Transaction]{
	Encode: func(tx *types.Transaction) ([]byte, error) { return tx.MarshalBinary() },
	Decode: func(raw []byte) (*types.Transaction, error) {
		var tx types.Transaction
		if err := tx.UnmarshalBinary(raw); err != nil {
			return nil, err
		}
		return &tx, nil
	},
}

var receiptValueCodec = kv.ValueCodec[*types.Receipt]{
	Encode: func(r *types.Receipt) ([]byte, error) { return rlp.EncodeToBytes(r) },
	Decode: func(raw []byte) (*types.Receipt, error) {
		var r types.Receipt
		if err := rlp.DecodeBytes(raw, &r); err != nil {
			return nil, err
		}
		return &r, nil
	},
}

var addressLogsValueCodec = kv.ValueCodec[[]AddressLogIndices]{
	Encode: func(v []AddressLogIndices) ([]byte, error) { return rlp.EncodeToBytes(v) },
	Decode: func(raw []byte) ([]AddressLogIndices, error) {
		var v []AddressLogIndices
		if err := rlp.DecodeBytes(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	},
}

var codeHashesValueCodec = kv.ValueCodec[[]common.Hash]{
	Encode: func(v []common.Hash) ([]byte, error) { return rlp.EncodeToBytes(v) },
	Decode: func(raw []byte) ([]common.Hash, error) {
		var v []common.Hash
		if err := rlp.DecodeBytes(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	},
}
