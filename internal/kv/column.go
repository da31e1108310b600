package kv

// KeyCodec encodes/decodes a typed logical key to/from the fixed-width,
// big-endian-concatenated byte encoding spec §4.1 requires so that
// prefix scans correspond to semantic range queries (e.g. "all rows for
// this token/currency pair").
type KeyCodec[K any] struct {
	Encode func(K) []byte
	Decode func([]byte) (K, error)
}

// ValueCodec encodes/decodes a typed logical value to/from a
// self-describing binary encoding (spec §4.1).
type ValueCodec[V any] struct {
	Encode func(V) ([]byte, error)
	Decode func([]byte) (V, error)
}

// Column is a generic, compile-time-typed view over one column family of
// the untyped Store, per spec design note 9. Prefix is the column's
// fixed name prefix; every key written through this view is prefix‖key.
type Column[K any, V any] struct {
	store  *Store
	prefix []byte
	keys   KeyCodec[K]
	vals   ValueCodec[V]
}

// NewColumn binds a typed column view to a store.
func NewColumn[K any, V any](store *Store, name string, keys KeyCodec[K], vals ValueCodec[V]) Column[K, V] {
	return Column[K, V]{store: store, prefix: columnPrefix(name), keys: keys, vals: vals}
}

func (c Column[K, V]) rawKey(k K) []byte {
	return append(append([]byte(nil), c.prefix...), c.keys.Encode(k)...)
}

// Get returns the value stored for k, and false if absent.
func (c Column[K, V]) Get(k K) (V, bool, error) {
	var zero V
	raw, err := c.store.getRaw(c.rawKey(k))
	if err != nil {
		if err == ErrNotFound {
			return zero, false, nil
		}
		return zero, false, err
	}
	v, err := c.vals.Decode(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Put writes k→v, replacing any existing value.
func (c Column[K, V]) Put(k K, v V) error {
	raw, err := c.vals.Encode(v)
	if err != nil {
		return err
	}
	return c.store.putRaw(c.rawKey(k), raw)
}

// Delete removes k, if present; a no-op otherwise.
func (c Column[K, V]) Delete(k K) error {
	return c.store.deleteRaw(c.rawKey(k))
}

// PutBatch stages a write into an in-flight Batch instead of applying it
// immediately, for multi-key atomic commits.
func (c Column[K, V]) PutBatch(b *Batch, k K, v V) error {
	raw, err := c.vals.Encode(v)
	if err != nil {
		return err
	}
	return b.set(c.rawKey(k), raw)
}

// DeleteBatch stages a delete into an in-flight Batch.
func (c Column[K, V]) DeleteBatch(b *Batch, k K) error {
	return b.delete(c.rawKey(k))
}

// Iter walks the column in the given order, starting at from (nil means
// "from the beginning/end"), visiting at most limit rows (0 = unbounded).
// fn returning stop=true ends iteration early.
func (c Column[K, V]) Iter(from *K, order IterOrder, limit int, fn func(k K, v V) (stop bool, err error)) error {
	var fromRaw []byte
	if from != nil {
		fromRaw = c.rawKey(*from)
	}
	return c.store.rawIter(c.prefix, fromRaw, order, limit, func(rawKey, rawVal []byte) (bool, error) {
		key, err := c.keys.Decode(rawKey[len(c.prefix):])
		if err != nil {
			return false, err
		}
		val, err := c.vals.Decode(rawVal)
		if err != nil {
			return false, err
		}
		return fn(key, val)
	})
}

// RawColumn is a typed-key, opaque-bytes column used for blobs that are
// not RLP/JSON encoded records — bytecode, keyed by code hash (spec
// §4.1 get_raw_bytes).
type RawColumn[K any] struct {
	store  *Store
	prefix []byte
	keys   KeyCodec[K]
}

// NewRawColumn binds a raw-bytes column view to a store.
func NewRawColumn[K any](store *Store, name string, keys KeyCodec[K]) RawColumn[K] {
	return RawColumn[K]{store: store, prefix: columnPrefix(name), keys: keys}
}

func (c RawColumn[K]) rawKey(k K) []byte {
	return append(append([]byte(nil), c.prefix...), c.keys.Encode(k)...)
}

// Get returns the raw bytes stored for k.
func (c RawColumn[K]) Get(k K) ([]byte, bool, error) {
	raw, err := c.store.getRaw(c.rawKey(k))
	if err != nil {
		if err == ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return raw, true, nil
}

// Put stores raw bytes for k.
func (c RawColumn[K]) Put(k K, v []byte) error {
	return c.store.putRaw(c.rawKey(k), v)
}

// PutBatch stages a raw write into an in-flight Batch.
func (c RawColumn[K]) PutBatch(b *Batch, k K, v []byte) error {
	return b.set(c.rawKey(k), v)
}

// Delete removes the raw bytes stored for k.
func (c RawColumn[K]) Delete(k K) error {
	return c.store.deleteRaw(c.rawKey(k))
}

// DeleteBatch stages a raw delete into an in-flight Batch.
func (c RawColumn[K]) DeleteBatch(b *Batch, k K) error {
	return b.delete(c.rawKey(k))
}

// columnPrefix turns a human-readable column name into its fixed
// on-disk prefix. Names are short and distinct by construction (see the
// Col* constants in codecs.go), so a length-prefixed encoding keeps one column's prefix
// from ever being a prefix of another's.
func columnPrefix(name string) []byte {
	b := make([]byte, 0, len(name)+2)
	b = append(b, byte(len(name)))
	b = append(b, name...)
	b = append(b, ':')
	return b
}
