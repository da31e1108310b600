package indexer

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/ain-network/evmcore/evmerrors"
)

// EventKind selects which oracle lifecycle or price-feed handler an
// Event dispatches to (spec §4.8, §6 "on_block_indexed/invalidated").
type EventKind uint8

const (
	EventAppointOracle EventKind = iota
	EventUpdateOracle
	EventRemoveOracle
	EventSetOracleData
)

// Event is one oracle-related occurrence carried by a finalized (or
// invalidated) block. Exactly one of the payload fields matching Kind
// is populated; this mirrors the small, closed set of chain events the
// indexer reacts to (spec §4.8).
type Event struct {
	Kind EventKind

	Appoint   AppointOracleEvent
	Update    UpdateOracleEvent
	Remove    RemoveOracleEvent
	SetOracle SetOracleDataEvent
}

// OnBlockIndexed applies every event carried by a newly finalized block
// to the oracle secondary indices. IndexerError failures are logged and
// skipped per spec §7's propagation policy: a missing prerequisite row
// for one event must never abort indexing of the rest of the block.
func (s *Store) OnBlockIndexed(block BlockContext, events []Event) {
	for _, ev := range events {
		var err error
		switch ev.Kind {
		case EventAppointOracle:
			err = s.AppointOracle(block, ev.Appoint)
		case EventUpdateOracle:
			err = s.UpdateOracle(block, ev.Update)
		case EventRemoveOracle:
			err = s.RemoveOracle(block, ev.Remove)
		case EventSetOracleData:
			err = s.SetOracleData(block, ev.SetOracle)
		}
		logIndexerError(err)
	}
}

// OnBlockInvalidated reverses every event carried by a block being
// disconnected from the tip, in the reverse order they were applied, so
// that an UpdateOracle's invalidate sees the state AppointOracle's
// invalidate has not yet undone.
func (s *Store) OnBlockInvalidated(block BlockContext, events []Event) {
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		var err error
		switch ev.Kind {
		case EventAppointOracle:
			err = s.InvalidateAppointOracle(block, ev.Appoint)
		case EventUpdateOracle:
			err = s.InvalidateUpdateOracle(block, ev.Update)
		case EventRemoveOracle:
			err = s.InvalidateRemoveOracle(block, ev.Remove)
		case EventSetOracleData:
			err = s.InvalidateSetOracleData(block, ev.SetOracle)
		}
		logIndexerError(err)
	}
}

func logIndexerError(err error) {
	if err == nil {
		return
	}
	if idxErr, ok := err.(*evmerrors.IndexerError); ok {
		log.Warn("indexer event skipped", "handler", idxErr.Handler, "reason", idxErr.Reason)
		return
	}
	log.Warn("indexer event failed", "err", err)
}
