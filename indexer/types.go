// Package indexer implements the chain-event dispatcher of spec §4.7–4.8:
// the oracle price aggregator (time-windowed rolling means per
// token/currency pair) and the oracle lifecycle (appoint/update/remove),
// each indexed forward on block acceptance and reversed on invalidation.
package indexer

import (
	"github.com/ethereum/go-ethereum/common"
)

// BlockContext is the subset of a finalized block the indexer needs:
// height for ordering, and median_time (a consensus-provided monotonic
// clock) used in place of wall-clock time for aggregation windows (spec
// GLOSSARY "Median time"). Stored as uint64 rather than a signed
// timestamp since go-ethereum's rlp package (used for every row in this
// package) only encodes unsigned integers; window-width comparisons
// convert to int64 locally where a difference could otherwise underflow.
type BlockContext struct {
	Height     uint64
	MedianTime uint64
	Hash       common.Hash
}

// TokenCurrency is one (token, currency) pair an oracle advertises
// prices for.
type TokenCurrency struct {
	Token    string
	Currency string
}

// OracleID identifies an oracle by the transaction that appointed it.
type OracleID = common.Hash

// Oracle is the current, mutable row for a registered price oracle
// (spec §4.8).
type Oracle struct {
	ID           OracleID
	OwnerAddress common.Address
	Weightage    uint32
	PriceFeeds   []TokenCurrency
	Block        BlockContext
}

// OracleHistory is an append-only record of every AppointOracle/
// UpdateOracle/RemoveOracle event for one oracle, ordered by (height,
// txID) so the most recent entry can be recovered for invalidate (spec
// §4.8, SUPPLEMENTED FEATURES item 3).
type OracleHistory struct {
	TxID         common.Hash
	Height       uint64
	OracleID     OracleID
	OwnerAddress common.Address
	Weightage    uint32
	PriceFeeds   []TokenCurrency
	Block        BlockContext
}

// OracleTokenCurrency is one (token, currency, oracle) registration row,
// recorded both by id and by (token, currency, height) so SetOracleData
// can enumerate which oracles are registered for a pair, and RemoveOracle
// can undo every pair an oracle advertised (spec §4.8, SUPPLEMENTED
// FEATURES item 2).
type OracleTokenCurrency struct {
	Token     string
	Currency  string
	OracleID  OracleID
	Height    uint64
	Weightage uint32
	Block     BlockContext
}

// PriceFeed is one raw (token, currency, oracle, tx) submission from
// SetOracleData.
type PriceFeed struct {
	Token    string
	Currency string
	OracleID OracleID
	TxID     common.Hash
	Amount   Decimal
	Time     uint64
	Block    BlockContext
}

// Aggregate is the outcome of weighting every qualifying oracle's most
// recent feed for one (token, currency) pair at one block height (spec
// §4.7 step 2).
type Aggregate struct {
	Amount    Decimal
	Weightage uint32
	Active    uint32
	Total     uint32
}

// PriceAggregated is the per-block aggregate row (spec §4.7's
// `aggregated[(token, currency, block_height)]`).
type PriceAggregated struct {
	Token      string
	Currency   string
	Height     uint64
	Aggregated Aggregate
	Block      BlockContext
}

// IntervalKind is one of the three rolling aggregation windows spec
// §4.7 maintains.
type IntervalKind uint8

const (
	FifteenMinutes IntervalKind = iota
	OneHour
	OneDay
)

// Seconds returns the window width backing this interval's "has this
// bucket gone stale" check.
func (k IntervalKind) Seconds() int64 {
	switch k {
	case FifteenMinutes:
		return 15 * 60
	case OneHour:
		return 60 * 60
	case OneDay:
		return 24 * 60 * 60
	default:
		return 0
	}
}

// AllIntervals is the fixed set of windows every aggregate is folded
// into (spec §4.7 step 4).
var AllIntervals = []IntervalKind{FifteenMinutes, OneHour, OneDay}

// IntervalAggregate is one rolling bucket's running state: a weighted
// mean updated incrementally as more block-level aggregates land in its
// window (spec §4.7's incremental-mean formulas).
type IntervalAggregate struct {
	Amount    Decimal
	Weightage uint32
	Count     uint32
	Active    uint32
	Total     uint32
}

// PriceInterval is one (token, currency, interval) bucket, keyed by the
// height of the block that most recently updated it.
type PriceInterval struct {
	Token      string
	Currency   string
	Interval   IntervalKind
	Height     uint64
	Aggregated IntervalAggregate
	Block      BlockContext
}

// PriceTicker is the PriceTicker index of spec §4.7 step 3: the most
// recently aggregated price for a pair, sorted by (total_count desc,
// block_height desc, token, currency) via its by_key column.
type PriceTicker struct {
	Token    string
	Currency string
	Height   uint64
	Total    uint32
	Price    PriceAggregated
}
