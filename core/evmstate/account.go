// Package evmstate is the EVM Backend of spec §4.3: a short-lived view
// bound to a parent state root that exposes the standard EVM host
// interface (basic/code/storage/exists/block_hash) and stages writes
// into the world trie and each touched account's storage sub-trie,
// sealing them into a new root only on Apply.
//
// The split between read/host methods and a single apply() mutator
// follows the original Rust ain-evm evm.rs, whose TrieDBStore
// implements the evm crate's Backend and ApplyBackend traits; this
// package is the Go analogue of that pair of traits, grounded on
// internal/trie for node storage.
package evmstate

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/ain-network/evmcore/evmerrors"
	"github.com/ain-network/evmcore/internal/trie"
)

// EmptyCodeHash is keccak256 of the empty byte string, the CodeHash an
// account with no code carries (spec §3's Account invariant).
var EmptyCodeHash = crypto.Keccak256Hash(nil)

// Account is the RLP-encoded leaf value stored in the world trie, keyed
// by address (spec §3's World State entity).
type Account struct {
	Nonce       uint64
	Balance     *uint256.Int
	CodeHash    common.Hash
	StorageRoot common.Hash
}

// emptyAccount returns a fresh, un-stored account: the value Basic/Code
// lookups see for an address with no trie leaf.
func emptyAccount() Account {
	return Account{
		Nonce:       0,
		Balance:     new(uint256.Int),
		CodeHash:    EmptyCodeHash,
		StorageRoot: trie.EmptyRootHash,
	}
}

// IsEmpty reports the EIP-161 emptiness test used by delete_empty.
func (a Account) IsEmpty() bool {
	return a.Nonce == 0 && a.Balance.IsZero() && a.CodeHash == EmptyCodeHash
}

func loadAccount(t *trie.Trie, addr common.Address) (Account, error) {
	raw, ok, err := t.Get(addr.Bytes())
	if err != nil {
		return Account{}, &evmerrors.BackendError{Op: "loadAccount", Err: err}
	}
	if !ok {
		return emptyAccount(), nil
	}
	var acct Account
	if err := rlp.DecodeBytes(raw, &acct); err != nil {
		return Account{}, &evmerrors.BackendError{Op: "loadAccount: decode", Err: err}
	}
	return acct, nil
}

func storeAccount(t *trie.Trie, addr common.Address, acct Account) error {
	enc, err := rlp.EncodeToBytes(&acct)
	if err != nil {
		return &evmerrors.BackendError{Op: "storeAccount: encode", Err: err}
	}
	if err := t.Insert(addr.Bytes(), enc); err != nil {
		return &evmerrors.BackendError{Op: "storeAccount: insert", Err: err}
	}
	return nil
}

// ContractAddress computes the CREATE-scheme deployment address:
// keccak256(rlp([sender, nonce]))[12:], used by deploy flows that need
// to know an address before the account exists in the trie.
func ContractAddress(sender common.Address, nonce uint64) common.Address {
	enc, err := rlp.EncodeToBytes([]interface{}{sender, nonce})
	if err != nil {
		panic(err) // encoding a (address, uint64) pair cannot fail
	}
	return common.BytesToAddress(crypto.Keccak256(enc)[12:])
}
