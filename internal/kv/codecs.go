package kv

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Column name constants for the required column families of spec §4.1.
// Oracle/indexer columns are declared here too since they share the same
// Store and prefixing scheme; their row types are defined in package
// indexer to avoid a dependency from kv on the chain/indexer types.
const (
	ColBlocks               = "blocks"
	ColTransactions         = "transactions"
	ColReceipts             = "receipts"
	ColBlockMap             = "block_map"
	ColLatestBlockNumber    = "latest_block_number"
	ColAddressLogsMap       = "address_logs_map"
	ColCodeMap              = "code_map"
	ColBlockCodeHashes      = "block_code_hashes"
	ColOracleByID           = "oracle_by_id"
	ColOracleHistoryByID    = "oracle_history_by_id"
	ColOracleHistoryByKey   = "oracle_history_by_key"
	ColOracleTokenCurByID   = "oracle_token_currency_by_id"
	ColOracleTokenCurByKey  = "oracle_token_currency_by_key"
	ColPriceFeedByID        = "oracle_price_feed_by_id"
	ColPriceFeedByKey       = "oracle_price_feed_by_key"
	ColPriceAggByID         = "oracle_price_aggregated_by_id"
	ColPriceIntervalByID    = "oracle_price_aggregated_interval_by_id"
	ColPriceTickerByID      = "price_ticker_by_id"
	ColPriceTickerByKey     = "price_ticker_by_key"
)

// U256BE encodes a *uint256.Int as 32 fixed-width big-endian bytes, so
// prefix/range scans over numeric keys (block numbers, heights) sort
// numerically — spec §4.1's "Range keys ... concatenations of
// fixed-width big-endian fields".
func U256BE(v *uint256.Int) []byte {
	var b [32]byte
	v.WriteToArray32(&b)
	return b[:]
}

func DecodeU256BE(b []byte) (*uint256.Int, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("kv: bad uint256 key length %d", len(b))
	}
	return new(uint256.Int).SetBytes(b), nil
}

// Uint64BE encodes a uint64 as 8 fixed-width big-endian bytes.
func Uint64BE(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func DecodeUint64BE(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("kv: bad uint64 key length %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// HashKeyCodec is the KeyCodec for common.Hash-keyed columns
// (transactions, receipts, block_map, by hash).
var HashKeyCodec = KeyCodec[common.Hash]{
	Encode: func(h common.Hash) []byte { return h.Bytes() },
	Decode: func(b []byte) (common.Hash, error) {
		if len(b) != common.HashLength {
			return common.Hash{}, fmt.Errorf("kv: bad hash key length %d", len(b))
		}
		return common.BytesToHash(b), nil
	},
}

// AddressKeyCodec is the KeyCodec for common.Address-keyed columns.
var AddressKeyCodec = KeyCodec[common.Address]{
	Encode: func(a common.Address) []byte { return a.Bytes() },
	Decode: func(b []byte) (common.Address, error) {
		if len(b) != common.AddressLength {
			return common.Address{}, fmt.Errorf("kv: bad address key length %d", len(b))
		}
		return common.BytesToAddress(b), nil
	},
}

// U256KeyCodec is the KeyCodec for columns keyed by a full 256-bit
// integer (oracle amounts, weightage sums serialized as U256).
var U256KeyCodec = KeyCodec[*uint256.Int]{
	Encode: U256BE,
	Decode: DecodeU256BE,
}

// Uint64KeyCodec is the KeyCodec used for block-number-keyed columns.
// Block heights fit comfortably in 64 bits; encoding them as 8
// big-endian bytes rather than the full 256-bit width spec §4.1
// describes for "range keys" keeps block iteration cheap while
// preserving the same numeric sort order the spec requires.
var Uint64KeyCodec = KeyCodec[uint64]{
	Encode: Uint64BE,
	Decode: DecodeUint64BE,
}

// SentinelKeyCodec is used by single-row columns addressed by a fixed
// sentinel key (e.g. latest_block_number), matching db.rs's
// LatestBlockNumber column whose Column::Index is a constant string.
var SentinelKeyCodec = KeyCodec[struct{}]{
	Encode: func(struct{}) []byte { return []byte("latest") },
	Decode: func([]byte) (struct{}, error) { return struct{}{}, nil },
}
