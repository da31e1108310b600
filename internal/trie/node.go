package trie

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ain-network/evmcore/evmerrors"
)

// node is the in-memory representation of one trie node. Unlike
// go-ethereum's own trie package we never inline short nodes into their
// parent's RLP — every non-empty child is a hashNode reference resolved
// through the node store. That costs one extra hash/fetch per level
// versus mainnet-style embedding, but it keeps the node encoding (and
// this file) small, and the determinism/round-trip contracts spec §4.2
// cares about do not depend on byte-identical mainnet roots. See
// DESIGN.md, "internal/trie — Trie Store".
type node interface{}

// hashNode is an unresolved reference to a node stored under its hash.
type hashNode common.Hash

// valueNode is a leaf's stored value payload (an RLP-encoded account or
// an RLP-encoded storage slot value).
type valueNode []byte

type leafNode struct {
	Key []byte // hex nibbles, no terminator (implied by node type)
	Val valueNode
}

type extensionNode struct {
	Key   []byte // hex nibbles, no terminator
	Child node   // always a hashNode once committed
}

type branchNode struct {
	Children [16]node // each nil or a hashNode
	Value    valueNode
}

// rawBranch/rawShort are the wire shapes used for RLP encode/decode: a
// branch is a 17-element list of byte-strings, a leaf/extension a
// 2-element list, matching the standard MPT node shapes.
type rawBranch [17][]byte
type rawShort [2][]byte

func isEmpty(n node) bool {
	return n == nil
}

// encodeNode serializes a resolved (non-hashNode) node to its RLP bytes.
func encodeNode(n node) ([]byte, error) {
	switch n := n.(type) {
	case *leafNode:
		key := append(append([]byte(nil), n.Key...), 16)
		return rlp.EncodeToBytes(rawShort{hexToCompact(key), n.Val})
	case *extensionNode:
		childRef, err := childBytes(n.Child)
		if err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(rawShort{hexToCompact(n.Key), childRef})
	case *branchNode:
		var raw rawBranch
		for i := 0; i < 16; i++ {
			ref, err := childBytes(n.Children[i])
			if err != nil {
				return nil, err
			}
			raw[i] = ref
		}
		raw[16] = n.Value
		return rlp.EncodeToBytes(raw)
	default:
		return nil, &evmerrors.TrieError{Reason: "encodeNode: unknown node type"}
	}
}

func childBytes(n node) ([]byte, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil
	case hashNode:
		return common.Hash(n).Bytes(), nil
	default:
		return nil, &evmerrors.TrieError{Reason: "childBytes: node not yet committed"}
	}
}

// hashOf computes the Keccak-256 hash a node would be stored
// under, without storing it.
func hashOf(enc []byte) common.Hash {
	return crypto.Keccak256Hash(enc)
}

// decodeNode parses stored RLP bytes back into a resolved node whose
// children remain unresolved hashNode references (resolved lazily on
// traversal via Store.resolve).
func decodeNode(enc []byte) (node, error) {
	var raw []rlp.RawValue
	if err := rlp.DecodeBytes(enc, &raw); err != nil {
		return nil, &evmerrors.TrieError{Reason: "decodeNode: bad node RLP", Err: err}
	}
	switch len(raw) {
	case 2:
		var compact []byte
		if err := rlp.DecodeBytes(raw[0], &compact); err != nil {
			return nil, &evmerrors.TrieError{Reason: "decodeNode: bad key", Err: err}
		}
		key := compactToHex(compact)
		if hasTerm(key) {
			var val []byte
			if err := rlp.DecodeBytes(raw[1], &val); err != nil {
				return nil, &evmerrors.TrieError{Reason: "decodeNode: bad leaf value", Err: err}
			}
			return &leafNode{Key: key[:len(key)-1], Val: val}, nil
		}
		child, err := decodeChildRef(raw[1])
		if err != nil {
			return nil, err
		}
		return &extensionNode{Key: key, Child: child}, nil
	case 17:
		var b branchNode
		for i := 0; i < 16; i++ {
			child, err := decodeChildRef(raw[i])
			if err != nil {
				return nil, err
			}
			b.Children[i] = child
		}
		var val []byte
		if err := rlp.DecodeBytes(raw[16], &val); err != nil {
			return nil, &evmerrors.TrieError{Reason: "decodeNode: bad branch value", Err: err}
		}
		if len(val) > 0 {
			b.Value = val
		}
		return &b, nil
	default:
		return nil, &evmerrors.TrieError{Reason: "decodeNode: unexpected element count"}
	}
}

func decodeChildRef(raw rlp.RawValue) (node, error) {
	var ref []byte
	if err := rlp.DecodeBytes(raw, &ref); err != nil {
		return nil, &evmerrors.TrieError{Reason: "decodeNode: bad child ref", Err: err}
	}
	if len(ref) == 0 {
		return nil, nil
	}
	if len(ref) != common.HashLength {
		return nil, &evmerrors.TrieError{Reason: "decodeNode: child ref not a hash"}
	}
	return hashNode(common.BytesToHash(ref)), nil
}
