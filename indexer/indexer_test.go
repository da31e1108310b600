package indexer

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ain-network/evmcore/internal/kv"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := kv.Open(filepath.Join(t.TempDir(), "indexes"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return Open(db)
}

func oracleID(b byte) OracleID { return common.BytesToHash([]byte{b}) }

// TestOracleAppointUpdateRemoveRoundTrip exercises spec §4.8's lifecycle
// and its symmetric invalidation.
func TestOracleAppointUpdateRemoveRoundTrip(t *testing.T) {
	s := newTestStore(t)
	pair := TokenCurrency{Token: "DFI", Currency: "USD"}
	owner := common.HexToAddress("0xaa")

	block1 := BlockContext{Height: 1, MedianTime: 1000}
	appoint := AppointOracleEvent{TxID: oracleID(1), OwnerAddress: owner, Weightage: 2, PriceFeeds: []TokenCurrency{pair}}
	require.NoError(t, s.AppointOracle(block1, appoint))

	oracleRaw, ok, err := s.oracleByID.Get(oracleKey(appoint.TxID))
	require.NoError(t, err)
	require.True(t, ok)
	oracle, err := decodeRow[Oracle](oracleRaw)
	require.NoError(t, err)
	require.Equal(t, uint32(2), oracle.Weightage)

	registered, err := s.registeredOraclesForPair(pair.Token, pair.Currency)
	require.NoError(t, err)
	require.Len(t, registered, 1)

	block2 := BlockContext{Height: 2, MedianTime: 2000}
	update := UpdateOracleEvent{TxID: common.BytesToHash([]byte{2}), OracleID: appoint.TxID, Weightage: 5, PriceFeeds: []TokenCurrency{pair}}
	require.NoError(t, s.UpdateOracle(block2, update))

	registered, err = s.registeredOraclesForPair(pair.Token, pair.Currency)
	require.NoError(t, err)
	require.Len(t, registered, 1)
	require.Equal(t, uint32(5), registered[0].Weightage)

	require.NoError(t, s.InvalidateUpdateOracle(block2, update))
	registered, err = s.registeredOraclesForPair(pair.Token, pair.Currency)
	require.NoError(t, err)
	require.Len(t, registered, 1)
	require.Equal(t, uint32(2), registered[0].Weightage)

	block3 := BlockContext{Height: 3, MedianTime: 3000}
	remove := RemoveOracleEvent{TxID: common.BytesToHash([]byte{3}), OracleID: appoint.TxID}
	require.NoError(t, s.RemoveOracle(block3, remove))
	registered, err = s.registeredOraclesForPair(pair.Token, pair.Currency)
	require.NoError(t, err)
	require.Len(t, registered, 0)

	require.NoError(t, s.InvalidateRemoveOracle(block3, remove))
	registered, err = s.registeredOraclesForPair(pair.Token, pair.Currency)
	require.NoError(t, err)
	require.Len(t, registered, 1)
}

// TestOracleAggregateWeightedMean is spec §8 scenario S5: O1 weight=1,
// O2 weight=3, both submitting at the same block time; the aggregate
// must be the weight-proportioned mean.
func TestOracleAggregateWeightedMean(t *testing.T) {
	s := newTestStore(t)
	pair := TokenCurrency{Token: "DFI", Currency: "USD"}
	block := BlockContext{Height: 1, MedianTime: 1000}

	o1 := AppointOracleEvent{TxID: oracleID(1), OwnerAddress: common.HexToAddress("0x01"), Weightage: 1, PriceFeeds: []TokenCurrency{pair}}
	o2 := AppointOracleEvent{TxID: oracleID(2), OwnerAddress: common.HexToAddress("0x02"), Weightage: 3, PriceFeeds: []TokenCurrency{pair}}
	require.NoError(t, s.AppointOracle(block, o1))
	require.NoError(t, s.AppointOracle(block, o2))

	require.NoError(t, s.SetOracleData(block, SetOracleDataEvent{
		Token: pair.Token, Currency: pair.Currency, OracleID: o1.TxID,
		TxID: common.BytesToHash([]byte{10}), Amount: MustDecimal("10.00000000"), Time: 1000,
	}))
	require.NoError(t, s.SetOracleData(block, SetOracleDataEvent{
		Token: pair.Token, Currency: pair.Currency, OracleID: o2.TxID,
		TxID: common.BytesToHash([]byte{11}), Amount: MustDecimal("20.00000000"), Time: 1000,
	}))

	raw, ok, err := s.aggregateByID.Get(aggregateKey(pair.Token, pair.Currency, block.Height))
	require.NoError(t, err)
	require.True(t, ok)
	agg, err := decodeRow[PriceAggregated](raw)
	require.NoError(t, err)

	require.Equal(t, MustDecimal("17.50000000"), agg.Aggregated.Amount)
	require.Equal(t, uint32(2), agg.Aggregated.Active)
	require.Equal(t, uint32(2), agg.Aggregated.Total)

	ticker, ok, err := s.decodeTicker(pair.Token, pair.Currency)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, MustDecimal("17.50000000"), ticker.Price.Aggregated.Amount)
}

// TestStaleFeedExcludedFromAggregate checks spec §4.7 step 2's freshness
// filter: a feed older than the 3600s window is dropped from the mean.
func TestStaleFeedExcludedFromAggregate(t *testing.T) {
	s := newTestStore(t)
	pair := TokenCurrency{Token: "DFI", Currency: "USD"}

	appoint := BlockContext{Height: 1, MedianTime: 0}
	o1 := AppointOracleEvent{TxID: oracleID(1), OwnerAddress: common.HexToAddress("0x01"), Weightage: 1, PriceFeeds: []TokenCurrency{pair}}
	require.NoError(t, s.AppointOracle(appoint, o1))
	require.NoError(t, s.SetOracleData(appoint, SetOracleDataEvent{
		Token: pair.Token, Currency: pair.Currency, OracleID: o1.TxID,
		TxID: common.BytesToHash([]byte{9}), Amount: MustDecimal("10.00000000"), Time: 0,
	}))

	late := BlockContext{Height: 2, MedianTime: 10_000}
	agg, err := s.recomputeAggregate(late, pair.Token, pair.Currency)
	require.NoError(t, err)
	require.Equal(t, uint32(0), agg.Active)
	require.Equal(t, uint32(1), agg.Total)
}

// TestIntervalRollover is spec §8 scenario S6: successive updates within
// a window fold into the same bucket via the incremental mean; a gap
// larger than the window opens a fresh bucket.
func TestIntervalRollover(t *testing.T) {
	s := newTestStore(t)
	pair := TokenCurrency{Token: "DFI", Currency: "USD"}

	block1 := BlockContext{Height: 1, MedianTime: 1000}
	o1 := AppointOracleEvent{TxID: oracleID(1), OwnerAddress: common.HexToAddress("0x01"), Weightage: 1, PriceFeeds: []TokenCurrency{pair}}
	require.NoError(t, s.AppointOracle(block1, o1))
	require.NoError(t, s.SetOracleData(block1, SetOracleDataEvent{
		Token: pair.Token, Currency: pair.Currency, OracleID: o1.TxID,
		TxID: common.BytesToHash([]byte{20}), Amount: MustDecimal("10.00000000"), Time: 1000,
	}))

	bucket, ok, err := s.mostRecentInterval(pair.Token, pair.Currency, FifteenMinutes)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1), bucket.Aggregated.Count)

	block2 := BlockContext{Height: 2, MedianTime: 1300}
	require.NoError(t, s.SetOracleData(block2, SetOracleDataEvent{
		Token: pair.Token, Currency: pair.Currency, OracleID: o1.TxID,
		TxID: common.BytesToHash([]byte{21}), Amount: MustDecimal("20.00000000"), Time: 1300,
	}))
	bucket, ok, err = s.mostRecentInterval(pair.Token, pair.Currency, FifteenMinutes)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(2), bucket.Aggregated.Count)
	require.Equal(t, MustDecimal("15.00000000"), bucket.Aggregated.Amount)

	block3 := BlockContext{Height: 3, MedianTime: uint64(1300 + FifteenMinutes.Seconds() + 1)}
	require.NoError(t, s.SetOracleData(block3, SetOracleDataEvent{
		Token: pair.Token, Currency: pair.Currency, OracleID: o1.TxID,
		TxID: common.BytesToHash([]byte{22}), Amount: MustDecimal("30.00000000"), Time: uint64(block3.MedianTime),
	}))
	bucket, ok, err = s.mostRecentInterval(pair.Token, pair.Currency, FifteenMinutes)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1), bucket.Aggregated.Count)
	require.Equal(t, MustDecimal("30.00000000"), bucket.Aggregated.Amount)
}

// TestSetOracleDataInvalidateRestoresAggregate checks that invalidating
// the most recent SetOracleData restores the prior aggregate/ticker.
func TestSetOracleDataInvalidateRestoresAggregate(t *testing.T) {
	s := newTestStore(t)
	pair := TokenCurrency{Token: "DFI", Currency: "USD"}

	block1 := BlockContext{Height: 1, MedianTime: 1000}
	o1 := AppointOracleEvent{TxID: oracleID(1), OwnerAddress: common.HexToAddress("0x01"), Weightage: 1, PriceFeeds: []TokenCurrency{pair}}
	require.NoError(t, s.AppointOracle(block1, o1))
	first := SetOracleDataEvent{
		Token: pair.Token, Currency: pair.Currency, OracleID: o1.TxID,
		TxID: common.BytesToHash([]byte{30}), Amount: MustDecimal("10.00000000"), Time: 1000,
	}
	require.NoError(t, s.SetOracleData(block1, first))

	block2 := BlockContext{Height: 2, MedianTime: 1100}
	second := SetOracleDataEvent{
		Token: pair.Token, Currency: pair.Currency, OracleID: o1.TxID,
		TxID: common.BytesToHash([]byte{31}), Amount: MustDecimal("99.00000000"), Time: 1100,
	}
	require.NoError(t, s.SetOracleData(block2, second))

	ticker, ok, err := s.decodeTicker(pair.Token, pair.Currency)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, MustDecimal("99.00000000"), ticker.Price.Aggregated.Amount)

	require.NoError(t, s.InvalidateSetOracleData(block2, second))

	ticker, ok, err = s.decodeTicker(pair.Token, pair.Currency)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, MustDecimal("10.00000000"), ticker.Price.Aggregated.Amount)
}

// TestDecimalFormatRoundTrip checks the canonical "%.8f" form survives
// parse/format for both integral and fractional inputs.
func TestDecimalFormatRoundTrip(t *testing.T) {
	for _, in := range []string{"0.00000000", "10.00000000", "17.50000000", "0.12345678"} {
		r, err := ParseDecimal(Decimal(in))
		require.NoError(t, err)
		require.Equal(t, Decimal(in), FormatDecimal(r))
	}
}
