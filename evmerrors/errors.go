// Package evmerrors defines the structured error kinds shared across the
// EVM core (spec §7). Callers recover structured fields with errors.As
// rather than string matching, the same convention go-ethereum uses for
// its own core/vm and core/state sentinel error types.
package evmerrors

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BackendError wraps a trie I/O failure, missing root, or other
// inconsistency encountered while reading or writing world state. It is
// fatal to the operation in progress; callers do not retry automatically.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("evm backend error during %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// InsufficientBalance is returned when a bridge debit or an up-front gas
// precheck fails against the projected balance.
type InsufficientBalance struct {
	Address   common.Address
	Balance   *uint256.Int
	Requested *uint256.Int
}

func (e *InsufficientBalance) Error() string {
	return fmt.Sprintf("insufficient balance for %s: have %s, requested %s",
		e.Address, e.Balance.String(), e.Requested.String())
}

// QueueError covers nonce gaps, duplicate native hashes, and references to
// unknown contexts.
type QueueError struct {
	Reason string
}

func (e *QueueError) Error() string { return "queue error: " + e.Reason }

// TrieError covers malformed proofs and node decode failures at the trie
// layer, distinct from the broader BackendError raised by EVM Backend
// operations.
type TrieError struct {
	Reason string
	Err    error
}

func (e *TrieError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("trie error: %s: %v", e.Reason, e.Err)
	}
	return "trie error: " + e.Reason
}

func (e *TrieError) Unwrap() error { return e.Err }

// NoSuchAccount is a lookup miss distinguished from an empty-but-present
// account, for callers that need to tell the two apart.
type NoSuchAccount struct {
	Address common.Address
}

func (e *NoSuchAccount) Error() string { return fmt.Sprintf("no such account: %s", e.Address) }

// NoSuchBlock is a lookup miss for a block number, hash, or the latest
// pointer when none has been written yet.
type NoSuchBlock struct {
	Reference string
}

func (e *NoSuchBlock) Error() string { return "no such block: " + e.Reference }

// DecodeError covers invalid transaction envelopes, invalid signatures,
// and chain-id mismatches encountered while admitting a raw transaction.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode error: %s: %v", e.Reason, e.Err)
	}
	return "decode error: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IndexerError covers a missing prerequisite row for a secondary index
// update (e.g. SetOracleData for an unregistered oracle). It is reported
// and skipped by the indexer; it never aborts block acceptance.
type IndexerError struct {
	Handler string
	Reason  string
}

func (e *IndexerError) Error() string {
	return fmt.Sprintf("indexer error in %s: %s", e.Handler, e.Reason)
}
