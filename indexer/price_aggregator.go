package indexer

import (
	"context"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/ain-network/evmcore/evmerrors"
	"github.com/ain-network/evmcore/internal/kv"
)

// staleWindow bounds how far a feed may lag behind the block's median
// time and still count toward the aggregate (spec §4.7 step 2).
const staleWindow = 3600

// oracleFanOut bounds concurrent feed lookups when recomputing an
// aggregate across every oracle registered for a pair.
const oracleFanOut = 8

// SetOracleDataEvent carries one oracle's price submission for a
// (token, currency) pair (spec §4.7 step 1).
type SetOracleDataEvent struct {
	Token    string
	Currency string
	OracleID OracleID
	TxID     common.Hash
	Amount   Decimal
	Time     uint64
}

// SetOracleData records the raw feed, then recomputes the block-level
// aggregate, the PriceTicker index row, and every rolling interval
// bucket for (token, currency) (spec §4.7).
func (s *Store) SetOracleData(block BlockContext, ev SetOracleDataEvent) error {
	if err := s.putFeed(ev.Token, ev.Currency, ev.OracleID, ev.TxID, ev.Amount, ev.Time, block); err != nil {
		return &evmerrors.IndexerError{Handler: "SetOracleData", Reason: err.Error()}
	}

	agg, err := s.recomputeAggregate(block, ev.Token, ev.Currency)
	if err != nil {
		return &evmerrors.IndexerError{Handler: "SetOracleData", Reason: err.Error()}
	}
	row := PriceAggregated{Token: ev.Token, Currency: ev.Currency, Height: block.Height, Aggregated: agg, Block: block}
	if err := s.aggregateByID.Put(aggregateKey(ev.Token, ev.Currency, block.Height), encodeRow(row)); err != nil {
		return &evmerrors.IndexerError{Handler: "SetOracleData", Reason: err.Error()}
	}

	if err := s.updateTicker(block, ev.Token, ev.Currency, row); err != nil {
		return &evmerrors.IndexerError{Handler: "SetOracleData", Reason: err.Error()}
	}

	for _, interval := range AllIntervals {
		if err := s.recomputeInterval(block, ev.Token, ev.Currency, interval, agg); err != nil {
			return &evmerrors.IndexerError{Handler: "SetOracleData", Reason: err.Error()}
		}
	}
	return nil
}

// InvalidateSetOracleData reverses SetOracleData: it deletes the raw
// feed row (keyed by the event's tx id) and this height's aggregate and
// interval rows, then rewrites the overwritten most-recent-feed pointer
// and PriceTicker from the newest surviving rows found by the "most
// recent" scans.
func (s *Store) InvalidateSetOracleData(block BlockContext, ev SetOracleDataEvent) error {
	if err := s.deleteFeed(ev.Token, ev.Currency, ev.OracleID, ev.TxID); err != nil {
		return &evmerrors.IndexerError{Handler: "SetOracleData.invalidate", Reason: err.Error()}
	}
	if err := s.aggregateByID.Delete(aggregateKey(ev.Token, ev.Currency, block.Height)); err != nil {
		return &evmerrors.IndexerError{Handler: "SetOracleData.invalidate", Reason: err.Error()}
	}
	if err := s.invalidateTicker(ev.Token, ev.Currency, block.Height); err != nil {
		return &evmerrors.IndexerError{Handler: "SetOracleData.invalidate", Reason: err.Error()}
	}
	for _, interval := range AllIntervals {
		if err := s.intervalByID.Delete(intervalKey(ev.Token, ev.Currency, interval, block.Height)); err != nil {
			return &evmerrors.IndexerError{Handler: "SetOracleData.invalidate", Reason: err.Error()}
		}
	}
	return nil
}

// --- raw feed storage ---------------------------------------------------

func (s *Store) putFeed(token, currency string, oracleID OracleID, txID common.Hash, amount Decimal, at uint64, block BlockContext) error {
	row := PriceFeed{Token: token, Currency: currency, OracleID: oracleID, TxID: txID, Amount: amount, Time: at, Block: block}
	enc := encodeRow(row)
	if err := s.priceFeedByID.Put(priceFeedByIDKey(token, currency, oracleID, txID), enc); err != nil {
		return err
	}
	return s.priceFeedByKey.Put(priceFeedByKeyKey(token, currency, oracleID), enc)
}

func (s *Store) deleteFeed(token, currency string, oracleID OracleID, txID common.Hash) error {
	if err := s.priceFeedByID.Delete(priceFeedByIDKey(token, currency, oracleID, txID)); err != nil {
		return err
	}
	restored, ok, err := s.mostRecentFeed(token, currency, oracleID)
	if err != nil {
		return err
	}
	if !ok {
		return s.priceFeedByKey.Delete(priceFeedByKeyKey(token, currency, oracleID))
	}
	return s.priceFeedByKey.Put(priceFeedByKeyKey(token, currency, oracleID), encodeRow(restored))
}

// mostRecentFeed recovers the newest surviving feed for (token,
// currency, oracleID) from the by-id column — the one recorded at the
// highest block height, ties broken by the later feed time — used to
// restore priceFeedByKey after the newest feed is invalidated.
func (s *Store) mostRecentFeed(token, currency string, oracleID OracleID) (PriceFeed, bool, error) {
	prefix := concat(pairDigest(token, currency), oracleID.Bytes())
	var found PriceFeed
	var ok bool
	err := s.priceFeedByID.Iter(&prefix, kv.Ascending, 0, func(k, v []byte) (bool, error) {
		if !hasPrefix(k, prefix) {
			return true, nil
		}
		row, err := decodeRow[PriceFeed](v)
		if err != nil {
			return false, err
		}
		if !ok || row.Block.Height > found.Block.Height || (row.Block.Height == found.Block.Height && row.Time > found.Time) {
			found, ok = row, true
		}
		return false, nil
	})
	return found, ok, err
}

// --- aggregate computation ----------------------------------------------

type feedContribution struct {
	amount    *big.Rat
	weightage uint32
}

// recomputeAggregate loads every oracle registered for (token,
// currency), fans out (bounded, via errgroup) to fetch each one's most
// recent feed, and folds the feeds that are weighted and fresh into a
// weighted-mean aggregate (spec §4.7 step 2).
func (s *Store) recomputeAggregate(block BlockContext, token, currency string) (Aggregate, error) {
	oracles, err := s.registeredOraclesForPair(token, currency)
	if err != nil {
		return Aggregate{}, err
	}

	contributions := make([]*feedContribution, len(oracles))
	group, _ := errgroup.WithContext(context.Background())
	group.SetLimit(oracleFanOut)
	for i, reg := range oracles {
		i, reg := i, reg
		group.Go(func() error {
			if reg.Weightage == 0 {
				log.Debug("oracle has zero weightage, excluded from aggregate", "oracle", reg.OracleID, "token", token, "currency", currency)
				return nil
			}
			feed, ok, err := s.mostRecentFeed(token, currency, reg.OracleID)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if feed.Time > block.MedianTime || block.MedianTime-feed.Time > staleWindow {
				log.Debug("oracle feed stale, excluded from aggregate", "oracle", reg.OracleID, "token", token, "currency", currency)
				return nil
			}
			amount, err := ratOf(feed.Amount)
			if err != nil {
				return err
			}
			contributions[i] = &feedContribution{amount: amount, weightage: reg.Weightage}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Aggregate{}, err
	}

	var weightSum uint64
	var active uint32
	sum := new(big.Rat)
	for _, c := range contributions {
		if c == nil {
			continue
		}
		weighted := new(big.Rat).Mul(c.amount, new(big.Rat).SetUint64(uint64(c.weightage)))
		sum.Add(sum, weighted)
		weightSum += uint64(c.weightage)
		active++
	}

	amount := Decimal("")
	if weightSum > 0 {
		mean := sum.Quo(sum, new(big.Rat).SetUint64(weightSum))
		amount = FormatDecimal(mean)
	}
	return Aggregate{
		Amount:    amount,
		Weightage: saturateUint32(weightSum),
		Active:    active,
		Total:     uint32(len(oracles)),
	}, nil
}

func saturateUint32(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

// --- PriceTicker index ---------------------------------------------------

func (s *Store) updateTicker(block BlockContext, token, currency string, price PriceAggregated) error {
	if existing, ok, err := s.decodeTicker(token, currency); err != nil {
		return err
	} else if ok {
		if err := s.tickerByKey.Delete(tickerByKeyKey(existing.Total, existing.Height, token, currency)); err != nil {
			return err
		}
	}
	ticker := PriceTicker{Token: token, Currency: currency, Height: block.Height, Total: price.Aggregated.Total, Price: price}
	enc := encodeRow(ticker)
	if err := s.tickerByID.Put(tickerByIDKey(token, currency), enc); err != nil {
		return err
	}
	return s.tickerByKey.Put(tickerByKeyKey(ticker.Total, ticker.Height, token, currency), enc)
}

func (s *Store) invalidateTicker(token, currency string, thisHeight uint64) error {
	if existing, ok, err := s.decodeTicker(token, currency); err != nil {
		return err
	} else if ok {
		if err := s.tickerByKey.Delete(tickerByKeyKey(existing.Total, existing.Height, token, currency)); err != nil {
			return err
		}
		if err := s.tickerByID.Delete(tickerByIDKey(token, currency)); err != nil {
			return err
		}
	}

	restored, ok, err := s.mostRecentAggregateBefore(token, currency, thisHeight)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	ticker := PriceTicker{Token: token, Currency: currency, Height: restored.Height, Total: restored.Aggregated.Total, Price: restored}
	enc := encodeRow(ticker)
	if err := s.tickerByID.Put(tickerByIDKey(token, currency), enc); err != nil {
		return err
	}
	return s.tickerByKey.Put(tickerByKeyKey(ticker.Total, ticker.Height, token, currency), enc)
}

// LatestAggregate returns the most recently computed aggregate for
// (token, currency), read back off the PriceTicker index — the call
// site for metrics/monitoring to report the active/total oracle counts
// a SetOracleData call just produced (spec §4.7).
func (s *Store) LatestAggregate(token, currency string) (Aggregate, bool, error) {
	ticker, ok, err := s.decodeTicker(token, currency)
	if err != nil || !ok {
		return Aggregate{}, false, err
	}
	return ticker.Price.Aggregated, true, nil
}

func (s *Store) decodeTicker(token, currency string) (PriceTicker, bool, error) {
	raw, ok, err := s.tickerByID.Get(tickerByIDKey(token, currency))
	if err != nil || !ok {
		return PriceTicker{}, false, err
	}
	row, err := decodeRow[PriceTicker](raw)
	return row, err == nil, err
}

// mostRecentAggregateBefore finds the newest PriceAggregated row for
// (token, currency) strictly before beforeHeight, used to restore the
// PriceTicker index when the newest aggregate is invalidated.
func (s *Store) mostRecentAggregateBefore(token, currency string, beforeHeight uint64) (PriceAggregated, bool, error) {
	if beforeHeight == 0 {
		return PriceAggregated{}, false, nil
	}
	prefix := pairDigest(token, currency)
	from := aggregateKey(token, currency, beforeHeight-1)
	var found PriceAggregated
	var ok bool
	err := s.aggregateByID.Iter(&from, kv.Descending, 1, func(k, v []byte) (bool, error) {
		if !hasPrefix(k, prefix) {
			return true, nil
		}
		row, err := decodeRow[PriceAggregated](v)
		if err != nil {
			return false, err
		}
		found, ok = row, true
		return true, nil
	})
	return found, ok, err
}

// --- rolling interval buckets --------------------------------------------

// recomputeInterval appends a new bucket row for (token, currency,
// interval) at this block's height: a fresh bucket if none exists yet
// or the previous one has aged out of the window, otherwise the
// previous bucket folded forward with the new aggregate via an
// incremental weighted mean (spec §4.7 step 4).
func (s *Store) recomputeInterval(block BlockContext, token, currency string, interval IntervalKind, agg Aggregate) error {
	prev, ok, err := s.mostRecentInterval(token, currency, interval)
	if err != nil {
		return err
	}

	var next IntervalAggregate
	if !ok || int64(block.MedianTime)-int64(prev.Block.MedianTime) > interval.Seconds() {
		next = IntervalAggregate{Amount: agg.Amount, Weightage: agg.Weightage, Count: 1, Active: agg.Active, Total: agg.Total}
	} else {
		next, err = foldIntervalForward(prev.Aggregated, agg)
		if err != nil {
			return err
		}
	}
	row := PriceInterval{Token: token, Currency: currency, Interval: interval, Height: block.Height, Aggregated: next, Block: block}
	return s.intervalByID.Put(intervalKey(token, currency, interval, block.Height), encodeRow(row))
}

// mostRecentInterval finds the newest bucket row for (token, currency,
// interval).
func (s *Store) mostRecentInterval(token, currency string, interval IntervalKind) (PriceInterval, bool, error) {
	prefix := intervalPrefix(token, currency, interval)
	upper := concat(prefix, paddingFF(8))
	var found PriceInterval
	var ok bool
	err := s.intervalByID.Iter(&upper, kv.Descending, 1, func(k, v []byte) (bool, error) {
		if !hasPrefix(k, prefix) {
			return true, nil
		}
		row, err := decodeRow[PriceInterval](v)
		if err != nil {
			return false, err
		}
		found, ok = row, true
		return true, nil
	})
	return found, ok, err
}

// foldIntervalForward computes the running weighted mean across one
// more block-level aggregate joining an open bucket: amount and
// weightage both fold via (prior·count + new)/(count+1); active/total
// mirror the latest snapshot since they describe the current oracle
// set, not a windowed quantity.
func foldIntervalForward(prev IntervalAggregate, next Aggregate) (IntervalAggregate, error) {
	prevAmount, err := ratOf(prev.Amount)
	if err != nil {
		return IntervalAggregate{}, err
	}
	nextAmount, err := ratOf(next.Amount)
	if err != nil {
		return IntervalAggregate{}, err
	}
	count := uint64(prev.Count)
	nextCount := count + 1

	amountSum := new(big.Rat).Mul(prevAmount, new(big.Rat).SetUint64(count))
	amountSum.Add(amountSum, nextAmount)
	amountMean := amountSum.Quo(amountSum, new(big.Rat).SetUint64(nextCount))

	weightSum := uint64(prev.Weightage)*count + uint64(next.Weightage)

	return IntervalAggregate{
		Amount:    FormatDecimal(amountMean),
		Weightage: saturateUint32(weightSum / nextCount),
		Count:     saturateUint32(nextCount),
		Active:    next.Active,
		Total:     next.Total,
	}, nil
}
