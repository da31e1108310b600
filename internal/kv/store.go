// Package kv is the column-family-style persistent key/value engine
// described in spec §4.1. It is backed by a single cockroachdb/pebble
// database; "column families" are simulated the way most embedded Go KV
// engines without native CF support do it — each column gets a short,
// length-prefixed name prefix carved out of one flat keyspace, so a prefix scan on
// one column can never observe another column's keys, and range
// iteration within a column is naturally ordered because prefixes sort
// before the per-key suffix.
//
// This mirrors the table registry pattern used by Erigon's erigon-lib/kv
// (named buckets, generic key/value encodings) and by the original Rust
// ain-evm storage layer (db.rs's ColumnName/Column/TypedColumn traits),
// adapted to Go generics per spec design note 9.
package kv

import (
	"bytes"
	"errors"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound is returned by Store.getRaw when a key is absent. Typed
// column accessors translate this into a (zero, false, nil) result
// instead of propagating it, matching the Option-returning contract of
// spec §4.1's get/put/delete.
var ErrNotFound = errors.New("kv: key not found")

// Store owns the on-disk bytes for every column family. Multiple typed
// column views may share one Store; the underlying pebble.DB provides
// its own internal concurrency, so Store itself needs no additional
// locking for single-key operations. Multi-key atomicity is provided
// only through Batch, per spec §4.1.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if absent) a Store rooted at path. Callers
// typically pass <datadir>/evm/indexes (chain/indexer columns) or
// <datadir>/evm/trie (trie nodes) — spec §6 "File layout".
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Flush fsyncs all buffered writes to stable storage, per spec §4.1.
func (s *Store) Flush() error {
	return s.db.Flush()
}

func (s *Store) getRaw(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, nil
}

func (s *Store) putRaw(key, value []byte) error {
	return s.db.Set(key, value, pebble.Sync)
}

func (s *Store) deleteRaw(key []byte) error {
	return s.db.Delete(key, pebble.Sync)
}

// IterOrder selects ascending or descending iteration over a column's
// key range.
type IterOrder int

const (
	Ascending IterOrder = iota
	Descending
)

// rawIter walks keys with prefix `prefix`, optionally seeking to `from`
// first, visiting at most `limit` entries (0 = unbounded) in the
// requested order. It is the untyped primitive behind Column.Iter.
func (s *Store) rawIter(prefix, from []byte, order IterOrder, limit int, fn func(k, v []byte) (stop bool, err error)) error {
	upper := upperBound(prefix)
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upper,
	})
	if err != nil {
		return err
	}
	defer it.Close()

	var valid bool
	switch order {
	case Descending:
		if from != nil {
			valid = it.SeekLT(immediateSuccessor(from))
		} else {
			valid = it.Last()
		}
	default:
		if from != nil {
			valid = it.SeekGE(from)
		} else {
			valid = it.First()
		}
	}

	count := 0
	for valid {
		if limit > 0 && count >= limit {
			break
		}
		stop, err := fn(it.Key(), it.Value())
		if err != nil {
			return err
		}
		if stop {
			break
		}
		count++
		if order == Descending {
			valid = it.Prev()
		} else {
			valid = it.Next()
		}
	}
	return it.Error()
}

// upperBound returns the smallest key greater than every key with the
// given prefix, i.e. prefix with its last byte incremented (carrying as
// needed). A nil result means "no upper bound" (prefix is all 0xff).
func upperBound(prefix []byte) []byte {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] == 0xff {
			out = out[:i]
			continue
		}
		out[i]++
		return out[:i+1]
	}
	return nil
}

func immediateSuccessor(key []byte) []byte {
	out := append([]byte(nil), key...)
	return append(out, 0x00)
}

// Batch groups multiple column writes into one atomic application, used
// for block commit (spec §4.6's put_block writing transactions, the
// block itself, and the hash→number map together).
type Batch struct {
	store *Store
	b     *pebble.Batch
}

// NewBatch starts a new atomic batch against the store.
func (s *Store) NewBatch() *Batch {
	return &Batch{store: s, b: s.db.NewBatch()}
}

func (b *Batch) set(key, value []byte) error { return b.b.Set(key, value, nil) }
func (b *Batch) delete(key []byte) error      { return b.b.Delete(key, nil) }

// Commit applies every staged write atomically and durably.
func (b *Batch) Commit() error {
	return b.b.Commit(pebble.Sync)
}

// hasPrefix reports whether key begins with prefix; used by callers
// validating iterator output stays within a column's key range.
func hasPrefix(key, prefix []byte) bool { return bytes.HasPrefix(key, prefix) }
