package kv

import "golang.org/x/crypto/sha3"

// HashComponent folds one or more variable-length key components (the
// indexer's oracle composite keys are built from token/currency
// strings) into a fixed 32-byte digest. A plain sha3 digest is used
// here rather than go-ethereum's common.Hash/crypto.Keccak256Hash:
// these aren't chain hashes, just a cheap way to turn arbitrary-length
// strings into a fixed-width key component so composite keys can be
// concatenated without length-prefixing each field.
func HashComponent(parts ...[]byte) [32]byte {
	h := sha3.New256()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
