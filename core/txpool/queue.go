// Package txpool is the Transaction Queue Map of spec §4.4: a
// concurrency-safe map from an opaque context id to an ordered Queue of
// pending signed EVM transactions and bridge balance updates, enforcing
// per-sender nonce contiguity and bridge balance feasibility at
// admission time.
package txpool

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/ain-network/evmcore/evmerrors"
)

// BridgeDirection selects a bridge balance update's sign.
type BridgeDirection int

const (
	BridgeIn BridgeDirection = iota
	BridgeOut
)

// QueueTxKind discriminates the two QueueTx variants of spec §4.4.
type QueueTxKind int

const (
	KindSignedTx QueueTxKind = iota
	KindBridge
)

// QueueTx is one pending entry: either a signed, signature-verified EVM
// transaction, or a synthetic bridge balance update, always carrying
// the opaque native hash used to correlate it back to the host.
type QueueTx struct {
	Kind       QueueTxKind
	NativeHash common.Hash

	// Populated when Kind == KindSignedTx.
	Tx     *types.Transaction
	Sender common.Address

	// Populated when Kind == KindBridge.
	Direction BridgeDirection
	Address   common.Address
	Amount    *uint256.Int
}

// StateReader resolves the on-chain state a Queue checks feasibility
// against — the latest finalized block's state, not any in-flight one.
type StateReader interface {
	NonceAt(addr common.Address) (uint64, error)
	BalanceAt(addr common.Address) (*uint256.Int, error)
}

// Queue is one context's ordered pending list plus the admission
// bookkeeping spec §4.4 requires: the next expected nonce per sender
// (seeded lazily from StateReader) and the net queued bridge delta per
// address used for the balance-feasibility precheck.
type Queue struct {
	mu sync.Mutex

	items        []QueueTx
	hashes       map[common.Hash]struct{}
	pendingNonce map[common.Address]uint64
	bridgeIn     map[common.Address]*uint256.Int
	bridgeOut    map[common.Address]*uint256.Int
}

func newQueue() *Queue {
	return &Queue{
		hashes:       make(map[common.Hash]struct{}),
		pendingNonce: make(map[common.Address]uint64),
		bridgeIn:     make(map[common.Address]*uint256.Int),
		bridgeOut:    make(map[common.Address]*uint256.Int),
	}
}

// enqueue applies the spec §4.4 admission rules under the queue's lock.
func (q *Queue) enqueue(reader StateReader, tx QueueTx) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.hashes[tx.NativeHash]; dup {
		return &evmerrors.QueueError{Reason: "duplicate native hash in context"}
	}

	switch tx.Kind {
	case KindSignedTx:
		if err := q.admitSignedTx(reader, tx); err != nil {
			return err
		}
	case KindBridge:
		if err := q.admitBridge(reader, tx); err != nil {
			return err
		}
	default:
		return &evmerrors.QueueError{Reason: "unknown queue tx kind"}
	}

	q.items = append(q.items, tx)
	q.hashes[tx.NativeHash] = struct{}{}
	return nil
}

func (q *Queue) admitSignedTx(reader StateReader, tx QueueTx) error {
	expected, ok := q.pendingNonce[tx.Sender]
	if !ok {
		base, err := reader.NonceAt(tx.Sender)
		if err != nil {
			return &evmerrors.BackendError{Op: "admitSignedTx: NonceAt", Err: err}
		}
		expected = base
	}
	if tx.Tx.Nonce() != expected {
		return &evmerrors.QueueError{Reason: "nonce gap for sender"}
	}

	projected, err := q.projectedBalance(reader, tx.Sender)
	if err != nil {
		return err
	}
	cost, err := upfrontCost(tx.Tx)
	if err != nil {
		return err
	}
	if projected.Lt(cost) {
		return &evmerrors.InsufficientBalance{Address: tx.Sender, Balance: projected, Requested: cost}
	}

	q.pendingNonce[tx.Sender] = expected + 1
	return nil
}

func (q *Queue) admitBridge(reader StateReader, tx QueueTx) error {
	if tx.Direction == BridgeOut {
		projected, err := q.projectedBalance(reader, tx.Address)
		if err != nil {
			return err
		}
		if projected.Lt(tx.Amount) {
			return &evmerrors.InsufficientBalance{Address: tx.Address, Balance: projected, Requested: tx.Amount}
		}
		q.bridgeOut[tx.Address] = new(uint256.Int).Add(q.zeroOr(q.bridgeOut[tx.Address]), tx.Amount)
		return nil
	}
	q.bridgeIn[tx.Address] = new(uint256.Int).Add(q.zeroOr(q.bridgeIn[tx.Address]), tx.Amount)
	return nil
}

func (q *Queue) zeroOr(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// projectedBalance is spec §4.4's "on-chain balance at latest block +
// sum of queued bridge-ins − sum of queued bridge-outs", floored at
// zero (a queue that has already admitted enough bridge-outs to
// exhaust an address's balance projects no further headroom rather
// than going negative).
func (q *Queue) projectedBalance(reader StateReader, addr common.Address) (*uint256.Int, error) {
	balance, err := reader.BalanceAt(addr)
	if err != nil {
		return nil, &evmerrors.BackendError{Op: "projectedBalance: BalanceAt", Err: err}
	}
	result := new(uint256.Int).Set(balance)
	if in := q.bridgeIn[addr]; in != nil {
		result.Add(result, in)
	}
	if out := q.bridgeOut[addr]; out != nil {
		if result.Lt(out) {
			result.Clear()
		} else {
			result.Sub(result, out)
		}
	}
	return result, nil
}

// upfrontCost computes gas_limit*gas_price + value as a uint256, the
// fast precheck of spec §4.4 rule 2 ("not a guarantee of successful
// execution").
func upfrontCost(tx *types.Transaction) (*uint256.Int, error) {
	gasPrice, overflow := uint256.FromBig(tx.GasPrice())
	if overflow {
		return nil, &evmerrors.DecodeError{Reason: "gas price overflows uint256"}
	}
	value, overflow := uint256.FromBig(tx.Value())
	if overflow {
		return nil, &evmerrors.DecodeError{Reason: "value overflows uint256"}
	}
	gasLimit := new(uint256.Int).SetUint64(tx.Gas())
	cost := new(uint256.Int).Mul(gasLimit, gasPrice)
	cost.Add(cost, value)
	return cost, nil
}
