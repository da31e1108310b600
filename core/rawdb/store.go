package rawdb

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ain-network/evmcore/internal/kv"
)

// Store owns the chain-indexed columns of spec §4.1/§4.6. All of it is
// written only by PutBlock/PutReceipts/PutLogs/PutLatestBlock/PutCode
// and DisconnectLatestBlock (spec §5's "code map and block-indexed
// columns are written only during put_block and disconnect_tip").
type Store struct {
	kv *kv.Store

	blocks           kv.Column[uint64, *types.Block]
	transactions     kv.Column[common.Hash, *types.Transaction]
	receipts         kv.Column[common.Hash, *types.Receipt]
	blockMap         kv.Column[common.Hash, uint64]
	latestBlock      kv.Column[struct{}, uint64]
	addressLogsMap   kv.Column[uint64, []AddressLogIndices]
	code             kv.RawColumn[common.Hash]
	blockCodeHashes  kv.Column[uint64, []common.Hash]
}

// uint64ValueCodec is shared by the small uint64-valued columns
// (block_map, latest_block_number).
var uint64ValueCodec = kv.ValueCodec[uint64]{
	Encode: func(v uint64) ([]byte, error) { return kv.Uint64BE(v), nil },
	Decode: kv.DecodeUint64BE,
}

// Open binds a Store to the chain-indexed columns of an already-open
// internal/kv.Store (spec §6: "<datadir>/evm/indexes").
func Open(store *kv.Store) *Store {
	return &Store{
		kv:              store,
		blocks:          kv.NewColumn(store, kv.ColBlocks, kv.Uint64KeyCodec, blockValueCodec),
		transactions:    kv.NewColumn(store, kv.ColTransactions, kv.HashKeyCodec, txValueCodec),
		receipts:        kv.NewColumn(store, kv.ColReceipts, kv.HashKeyCodec, receiptValueCodec),
		blockMap:        kv.NewColumn(store, kv.ColBlockMap, kv.HashKeyCodec, uint64ValueCodec),
		latestBlock:     kv.NewColumn(store, kv.ColLatestBlockNumber, kv.SentinelKeyCodec, uint64ValueCodec),
		addressLogsMap:  kv.NewColumn(store, kv.ColAddressLogsMap, kv.Uint64KeyCodec, addressLogsValueCodec),
		code:            kv.NewRawColumn(store, kv.ColCodeMap, kv.HashKeyCodec),
		blockCodeHashes: kv.NewColumn(store, kv.ColBlockCodeHashes, kv.Uint64KeyCodec, codeHashesValueCodec),
	}
}
