package txpool

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ain-network/evmcore/evmerrors"
)

// Map is the concurrency-safe context_id→Queue map of spec §4.4: a
// read-write lock guards the map itself, while each Queue's own mutex
// guards in-queue edits (spec §5).
type Map struct {
	mu     sync.RWMutex
	queues map[uint64]*Queue
	nextID uint64
}

// NewMap returns an empty queue map with context ids starting at 1 (0
// is reserved to mean "no context" for callers that use it as a
// sentinel).
func NewMap() *Map {
	return &Map{queues: make(map[uint64]*Queue), nextID: 1}
}

// NewContext allocates a fresh, monotonically increasing context id.
func (m *Map) NewContext() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.queues[id] = newQueue()
	return id
}

// ClearContext drops ctx and every transaction queued under it.
func (m *Map) ClearContext(ctx uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queues, ctx)
}

func (m *Map) lookup(ctx uint64) (*Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[ctx]
	if !ok {
		return nil, &evmerrors.QueueError{Reason: "unknown context"}
	}
	return q, nil
}

// Enqueue admits tx into ctx under the spec §4.4 rules.
func (m *Map) Enqueue(ctx uint64, reader StateReader, tx QueueTx) error {
	q, err := m.lookup(ctx)
	if err != nil {
		return err
	}
	return q.enqueue(reader, tx)
}

// Length reports how many entries ctx currently holds.
func (m *Map) Length(ctx uint64) (int, error) {
	q, err := m.lookup(ctx)
	if err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

// Exists reports whether hash was already admitted into ctx.
func (m *Map) Exists(ctx uint64, hash common.Hash) (bool, error) {
	q, err := m.lookup(ctx)
	if err != nil {
		return false, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.hashes[hash]
	return ok, nil
}

// Drain returns ctx's queued entries in admission order and empties the
// queue, per spec §4.4's drain(ctx) → ordered list — the operation
// Block Finalization (spec §4.5) performs at the start of sealing a
// block.
func (m *Map) Drain(ctx uint64) ([]QueueTx, error) {
	q, err := m.lookup(ctx)
	if err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	q.hashes = make(map[common.Hash]struct{})
	q.pendingNonce = make(map[common.Address]uint64)
	q.bridgeIn = make(map[common.Address]*uint256.Int)
	q.bridgeOut = make(map[common.Address]*uint256.Int)
	return items, nil
}
