package indexer

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ain-network/evmcore/evmerrors"
	"github.com/ain-network/evmcore/internal/kv"
)

// AppointOracleEvent carries a freshly-submitted oracle appointment
// (spec §4.8).
type AppointOracleEvent struct {
	TxID         OracleID // the appointing transaction's hash also serves as the oracle's id
	OwnerAddress common.Address
	Weightage    uint32
	PriceFeeds   []TokenCurrency
}

// AppointOracle writes oracle[id], an oracle_history entry, and one
// oracle_token_currency row per advertised pair (spec §4.8).
func (s *Store) AppointOracle(block BlockContext, ev AppointOracleEvent) error {
	oracle := Oracle{ID: ev.TxID, OwnerAddress: ev.OwnerAddress, Weightage: ev.Weightage, PriceFeeds: ev.PriceFeeds, Block: block}
	if err := s.oracleByID.Put(oracleKey(oracle.ID), encodeRow(oracle)); err != nil {
		return &evmerrors.IndexerError{Handler: "AppointOracle", Reason: err.Error()}
	}

	history := OracleHistory{TxID: ev.TxID, Height: block.Height, OracleID: ev.TxID, OwnerAddress: ev.OwnerAddress, Weightage: ev.Weightage, PriceFeeds: ev.PriceFeeds, Block: block}
	if err := s.writeHistory(history); err != nil {
		return &evmerrors.IndexerError{Handler: "AppointOracle", Reason: err.Error()}
	}

	for _, pair := range ev.PriceFeeds {
		if err := s.putTokenCurrency(pair.Token, pair.Currency, ev.TxID, block, ev.Weightage); err != nil {
			return &evmerrors.IndexerError{Handler: "AppointOracle", Reason: err.Error()}
		}
	}
	return nil
}

// InvalidateAppointOracle reverses AppointOracle: deletes the oracle
// row, its history entry for this block, and every (token, currency)
// row it wrote.
func (s *Store) InvalidateAppointOracle(block BlockContext, ev AppointOracleEvent) error {
	if err := s.oracleByID.Delete(oracleKey(ev.TxID)); err != nil {
		return &evmerrors.IndexerError{Handler: "AppointOracle.invalidate", Reason: err.Error()}
	}
	if err := s.deleteHistory(ev.TxID, block.Height, ev.TxID); err != nil {
		return &evmerrors.IndexerError{Handler: "AppointOracle.invalidate", Reason: err.Error()}
	}
	for _, pair := range ev.PriceFeeds {
		if err := s.deleteTokenCurrency(pair.Token, pair.Currency, ev.TxID, block.Height); err != nil {
			return &evmerrors.IndexerError{Handler: "AppointOracle.invalidate", Reason: err.Error()}
		}
	}
	return nil
}

// UpdateOracleEvent carries a replacement weightage/price-feed set for
// an already-appointed oracle. TxID is the update transaction's hash
// (a fresh history entry); OracleID identifies which oracle is updated.
type UpdateOracleEvent struct {
	TxID       common.Hash
	OracleID   OracleID
	Weightage  uint32
	PriceFeeds []TokenCurrency
}

// UpdateOracle overwrites oracle[id], drops the (token, currency) rows
// the oracle's most recent history entry advertised, writes the new
// set, and appends a history entry (spec §4.8).
func (s *Store) UpdateOracle(block BlockContext, ev UpdateOracleEvent) error {
	previous, ok, err := s.mostRecentHistory(ev.OracleID)
	if err != nil {
		return &evmerrors.IndexerError{Handler: "UpdateOracle", Reason: err.Error()}
	}
	if !ok {
		return &evmerrors.IndexerError{Handler: "UpdateOracle", Reason: "no prior history for oracle"}
	}

	oracle := Oracle{ID: ev.OracleID, OwnerAddress: previous.OwnerAddress, Weightage: ev.Weightage, PriceFeeds: ev.PriceFeeds, Block: block}
	if err := s.oracleByID.Put(oracleKey(oracle.ID), encodeRow(oracle)); err != nil {
		return &evmerrors.IndexerError{Handler: "UpdateOracle", Reason: err.Error()}
	}

	for _, pair := range previous.PriceFeeds {
		if err := s.deleteTokenCurrency(pair.Token, pair.Currency, ev.OracleID, previous.Height); err != nil {
			return &evmerrors.IndexerError{Handler: "UpdateOracle", Reason: err.Error()}
		}
	}
	for _, pair := range ev.PriceFeeds {
		if err := s.putTokenCurrency(pair.Token, pair.Currency, ev.OracleID, block, ev.Weightage); err != nil {
			return &evmerrors.IndexerError{Handler: "UpdateOracle", Reason: err.Error()}
		}
	}

	history := OracleHistory{TxID: ev.TxID, Height: block.Height, OracleID: ev.OracleID, OwnerAddress: previous.OwnerAddress, Weightage: ev.Weightage, PriceFeeds: ev.PriceFeeds, Block: block}
	if err := s.writeHistory(history); err != nil {
		return &evmerrors.IndexerError{Handler: "UpdateOracle", Reason: err.Error()}
	}
	return nil
}

// InvalidateUpdateOracle reverses UpdateOracle using the history chain:
// it drops this update's history entry and (token, currency) rows, then
// restores whatever the prior history entry (the one before this
// update) had written.
func (s *Store) InvalidateUpdateOracle(block BlockContext, ev UpdateOracleEvent) error {
	if err := s.deleteHistory(ev.OracleID, block.Height, ev.TxID); err != nil {
		return &evmerrors.IndexerError{Handler: "UpdateOracle.invalidate", Reason: err.Error()}
	}
	for _, pair := range ev.PriceFeeds {
		if err := s.deleteTokenCurrency(pair.Token, pair.Currency, ev.OracleID, block.Height); err != nil {
			return &evmerrors.IndexerError{Handler: "UpdateOracle.invalidate", Reason: err.Error()}
		}
	}

	restored, ok, err := s.mostRecentHistory(ev.OracleID)
	if err != nil {
		return &evmerrors.IndexerError{Handler: "UpdateOracle.invalidate", Reason: err.Error()}
	}
	if !ok {
		return &evmerrors.IndexerError{Handler: "UpdateOracle.invalidate", Reason: "no earlier history to restore"}
	}
	oracle := Oracle{ID: ev.OracleID, OwnerAddress: restored.OwnerAddress, Weightage: restored.Weightage, PriceFeeds: restored.PriceFeeds, Block: restored.Block}
	if err := s.oracleByID.Put(oracleKey(oracle.ID), encodeRow(oracle)); err != nil {
		return &evmerrors.IndexerError{Handler: "UpdateOracle.invalidate", Reason: err.Error()}
	}
	for _, pair := range restored.PriceFeeds {
		if err := s.putTokenCurrency(pair.Token, pair.Currency, ev.OracleID, restored.Block, restored.Weightage); err != nil {
			return &evmerrors.IndexerError{Handler: "UpdateOracle.invalidate", Reason: err.Error()}
		}
	}
	return nil
}

// RemoveOracleEvent identifies the oracle being removed.
type RemoveOracleEvent struct {
	TxID     common.Hash
	OracleID OracleID
}

// RemoveOracle deletes oracle[id] and every (token, currency) row the
// most recent history entry advertised (spec §4.8).
func (s *Store) RemoveOracle(block BlockContext, ev RemoveOracleEvent) error {
	previous, ok, err := s.mostRecentHistory(ev.OracleID)
	if err != nil {
		return &evmerrors.IndexerError{Handler: "RemoveOracle", Reason: err.Error()}
	}
	if !ok {
		return &evmerrors.IndexerError{Handler: "RemoveOracle", Reason: "no history for oracle"}
	}
	if err := s.oracleByID.Delete(oracleKey(ev.OracleID)); err != nil {
		return &evmerrors.IndexerError{Handler: "RemoveOracle", Reason: err.Error()}
	}
	for _, pair := range previous.PriceFeeds {
		if err := s.deleteTokenCurrency(pair.Token, pair.Currency, ev.OracleID, previous.Height); err != nil {
			return &evmerrors.IndexerError{Handler: "RemoveOracle", Reason: err.Error()}
		}
	}
	history := OracleHistory{TxID: ev.TxID, Height: block.Height, OracleID: ev.OracleID, OwnerAddress: previous.OwnerAddress, Weightage: 0, PriceFeeds: nil, Block: block}
	if err := s.writeHistory(history); err != nil {
		return &evmerrors.IndexerError{Handler: "RemoveOracle", Reason: err.Error()}
	}
	return nil
}

// InvalidateRemoveOracle restores the oracle and its (token, currency)
// rows from the history entry that preceded the removal.
func (s *Store) InvalidateRemoveOracle(block BlockContext, ev RemoveOracleEvent) error {
	if err := s.deleteHistory(ev.OracleID, block.Height, ev.TxID); err != nil {
		return &evmerrors.IndexerError{Handler: "RemoveOracle.invalidate", Reason: err.Error()}
	}
	restored, ok, err := s.mostRecentHistory(ev.OracleID)
	if err != nil {
		return &evmerrors.IndexerError{Handler: "RemoveOracle.invalidate", Reason: err.Error()}
	}
	if !ok {
		return &evmerrors.IndexerError{Handler: "RemoveOracle.invalidate", Reason: "no prior history to restore"}
	}
	oracle := Oracle{ID: ev.OracleID, OwnerAddress: restored.OwnerAddress, Weightage: restored.Weightage, PriceFeeds: restored.PriceFeeds, Block: restored.Block}
	if err := s.oracleByID.Put(oracleKey(oracle.ID), encodeRow(oracle)); err != nil {
		return &evmerrors.IndexerError{Handler: "RemoveOracle.invalidate", Reason: err.Error()}
	}
	for _, pair := range restored.PriceFeeds {
		if err := s.putTokenCurrency(pair.Token, pair.Currency, ev.OracleID, restored.Block, restored.Weightage); err != nil {
			return &evmerrors.IndexerError{Handler: "RemoveOracle.invalidate", Reason: err.Error()}
		}
	}
	return nil
}

// --- shared helpers -----------------------------------------------------

func (s *Store) writeHistory(h OracleHistory) error {
	row := encodeRow(h)
	if err := s.oracleHistoryByID.Put(historyByIDKey(h.Height, h.TxID, h.OracleID), row); err != nil {
		return err
	}
	return s.oracleHistoryByKey.Put(historyByKeyKey(h.OracleID, h.Height, h.TxID), row)
}

func (s *Store) deleteHistory(oracleID OracleID, height uint64, txID common.Hash) error {
	if err := s.oracleHistoryByID.Delete(historyByIDKey(height, txID, oracleID)); err != nil {
		return err
	}
	return s.oracleHistoryByKey.Delete(historyByKeyKey(oracleID, height, txID))
}

// mostRecentHistory scans oracle_history_by_key descending from an
// upper bound so the last-written entry for oracleID — regardless of
// which transaction wrote it — is returned first (spec §4.8 "most
// recent history entry").
func (s *Store) mostRecentHistory(oracleID OracleID) (OracleHistory, bool, error) {
	prefix := oracleID.Bytes()
	upper := append(append([]byte(nil), prefix...), paddingFF(40)...)
	var found OracleHistory
	var ok bool
	err := s.oracleHistoryByKey.Iter(&upper, kv.Descending, 1, func(k, v []byte) (bool, error) {
		if !hasPrefix(k, prefix) {
			return true, nil
		}
		row, err := decodeRow[OracleHistory](v)
		if err != nil {
			return false, err
		}
		found, ok = row, true
		return true, nil
	})
	return found, ok, err
}

func (s *Store) putTokenCurrency(token, currency string, oracleID OracleID, block BlockContext, weightage uint32) error {
	row := OracleTokenCurrency{Token: token, Currency: currency, OracleID: oracleID, Height: block.Height, Weightage: weightage, Block: block}
	enc := encodeRow(row)
	if err := s.tokenCurrencyByID.Put(tokenCurrencyByIDKey(token, currency, oracleID), enc); err != nil {
		return err
	}
	return s.tokenCurrencyByKey.Put(tokenCurrencyByKeyKey(token, currency, block.Height, oracleID), enc)
}

func (s *Store) deleteTokenCurrency(token, currency string, oracleID OracleID, height uint64) error {
	if err := s.tokenCurrencyByID.Delete(tokenCurrencyByIDKey(token, currency, oracleID)); err != nil {
		return err
	}
	return s.tokenCurrencyByKey.Delete(tokenCurrencyByKeyKey(token, currency, height, oracleID))
}

// registeredOraclesForPair lists every oracle currently registered for
// (token, currency) via the by_id column's prefix, which holds exactly
// one row per (pair, oracle) — the current registration, overwritten on
// every AppointOracle/UpdateOracle (spec §4.7 step 2's "loads all
// oracles registered for that pair").
func (s *Store) registeredOraclesForPair(token, currency string) ([]OracleTokenCurrency, error) {
	prefix := pairDigest(token, currency)
	var out []OracleTokenCurrency
	err := s.tokenCurrencyByID.Iter(&prefix, kv.Ascending, 0, func(k, v []byte) (bool, error) {
		if !hasPrefix(k, prefix) {
			return true, nil
		}
		row, err := decodeRow[OracleTokenCurrency](v)
		if err != nil {
			return false, err
		}
		out = append(out, row)
		return false, nil
	})
	return out, err
}

func paddingFF(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xff
	}
	return b
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if b[i] != p {
			return false
		}
	}
	return true
}
