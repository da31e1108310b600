package indexer

import (
	"encoding/binary"
	"math"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ain-network/evmcore/internal/kv"
)

// Store binds every oracle/price column to a shared kv.Store. Composite
// keys are built from a fixed-width sha3 digest of the variable-length
// (token, currency) fields (internal/kv.HashComponent) followed by
// fixed-width suffixes, so every column supports prefix-bounded scans
// without length-prefixing strings by hand.
type Store struct {
	kv *kv.Store

	oracleByID Column

	oracleHistoryByID  Column
	oracleHistoryByKey Column

	tokenCurrencyByID  Column
	tokenCurrencyByKey Column

	priceFeedByID  Column
	priceFeedByKey Column

	aggregateByID Column

	intervalByID Column

	tickerByID  Column
	tickerByKey Column
}

// Column is the raw-byte-key view every indexer column uses: composite
// keys here are hand-built byte strings (digest ∥ fixed-width suffix),
// not a single scalar Go type, so the generic key type is just []byte
// with an identity codec.
type Column = kv.Column[[]byte, []byte]

var byteKeyCodec = kv.KeyCodec[[]byte]{
	Encode: func(b []byte) []byte { return b },
	Decode: func(b []byte) ([]byte, error) { return b, nil },
}

var rawValueCodec = kv.ValueCodec[[]byte]{
	Encode: func(b []byte) ([]byte, error) { return b, nil },
	Decode: func(b []byte) ([]byte, error) { return b, nil },
}

// Open binds every oracle/price column onto store.
func Open(store *kv.Store) *Store {
	col := func(name string) Column { return kv.NewColumn(store, name, byteKeyCodec, rawValueCodec) }
	return &Store{
		kv:                 store,
		oracleByID:         col(kv.ColOracleByID),
		oracleHistoryByID:  col(kv.ColOracleHistoryByID),
		oracleHistoryByKey: col(kv.ColOracleHistoryByKey),
		tokenCurrencyByID:  col(kv.ColOracleTokenCurByID),
		tokenCurrencyByKey: col(kv.ColOracleTokenCurByKey),
		priceFeedByID:      col(kv.ColPriceFeedByID),
		priceFeedByKey:     col(kv.ColPriceFeedByKey),
		aggregateByID:      col(kv.ColPriceAggByID),
		intervalByID:       col(kv.ColPriceIntervalByID),
		tickerByID:         col(kv.ColPriceTickerByID),
		tickerByKey:        col(kv.ColPriceTickerByKey),
	}
}

// --- key construction -------------------------------------------------

func pairDigest(token, currency string) []byte {
	d := kv.HashComponent([]byte(token), []byte(currency))
	return d[:]
}

func be64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func be32(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

// invert32/invert64 turn "sort descending" into "sort ascending" by
// complementing against the maximum value, so a plain ascending
// byte-order scan reproduces spec §4.7 step 3's
// (total_count desc, block_height desc, token, currency) ordering.
func invert32(v uint32) []byte { return be32(math.MaxUint32 - v) }
func invert64(v uint64) []byte { return be64(math.MaxUint64 - v) }

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func oracleKey(id OracleID) []byte { return id.Bytes() }

func historyByIDKey(height uint64, txID, oracleID [32]byte) []byte {
	return concat(be64(height), txID[:], oracleID[:])
}

func historyByKeyKey(oracleID [32]byte, height uint64, txID [32]byte) []byte {
	return concat(oracleID[:], be64(height), txID[:])
}

func tokenCurrencyByIDKey(token, currency string, oracleID [32]byte) []byte {
	return concat(pairDigest(token, currency), oracleID[:])
}

func tokenCurrencyByKeyKey(token, currency string, height uint64, oracleID [32]byte) []byte {
	return concat(pairDigest(token, currency), be64(height), oracleID[:])
}

func priceFeedByIDKey(token, currency string, oracleID, txID [32]byte) []byte {
	return concat(pairDigest(token, currency), oracleID[:], txID[:])
}

func priceFeedByKeyKey(token, currency string, oracleID [32]byte) []byte {
	return concat(pairDigest(token, currency), oracleID[:])
}

func aggregateKey(token, currency string, height uint64) []byte {
	return concat(pairDigest(token, currency), be64(height))
}

func intervalPrefix(token, currency string, interval IntervalKind) []byte {
	return concat(pairDigest(token, currency), []byte{byte(interval)})
}

func intervalKey(token, currency string, interval IntervalKind, height uint64) []byte {
	return concat(intervalPrefix(token, currency, interval), be64(height))
}

func tickerByIDKey(token, currency string) []byte { return pairDigest(token, currency) }

func tickerByKeyKey(total uint32, height uint64, token, currency string) []byte {
	return concat(invert32(total), invert64(height), []byte(token), []byte(currency))
}

// --- rlp (de)serialization helpers ------------------------------------

func encodeRow[V any](v V) []byte {
	b, err := rlp.EncodeToBytes(v)
	if err != nil {
		panic(err) // rlp-incompatible field added to an indexer row type
	}
	return b
}

func decodeRow[V any](b []byte) (V, error) {
	var v V
	err := rlp.DecodeBytes(b, &v)
	return v, err
}
