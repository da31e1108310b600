package evmstate

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/ain-network/evmcore/evmerrors"
	"github.com/ain-network/evmcore/internal/trie"
)

// Vicinity is the ambient block/transaction environment exposed to the
// EVM host interface (spec §4.3, GLOSSARY "Vicinity").
type Vicinity struct {
	BlockNumber        *uint256.Int
	Origin             common.Address
	GasPrice           *uint256.Int
	BlockCoinbase      common.Address
	BlockTimestamp      *uint256.Int
	BlockDifficulty     *uint256.Int
	BlockGasLimit       *uint256.Int
	BlockBaseFeePerGas  *uint256.Int
	ChainID             *uint256.Int
}

// BlockHashReader resolves a historical block number to its hash for
// BLOCKHASH. Implemented by core/rawdb.Store; declared here instead of
// imported from there to keep evmstate free of a dependency on the
// persistence layer's concrete type.
type BlockHashReader interface {
	BlockHash(number uint64) (common.Hash, bool, error)
}

// CodeStore persists deployed bytecode and the per-block record of
// which code hashes were newly introduced, for rollback GC (spec §4.3,
// §4.6). Implemented by core/rawdb.Store.
type CodeStore interface {
	PutCode(block uint64, hash common.Hash, code []byte) error
}

// Backend is bound to a parent state root and stages edits in an
// in-memory trie journal (internal/trie.Trie already gives us this:
// Insert/Delete only become visible on disk at Commit). Apply is the
// single point that advances root.
type Backend struct {
	trieStore *trie.Store
	blocks    BlockHashReader
	code      CodeStore
	vicinity  Vicinity
	block     uint64

	world    *trie.Trie // mutable: staged edits accumulate here
	original *trie.Trie // read-only: pinned at the parent root
	root     common.Hash
}

// NewBackend opens a Backend at root for building block `block`.
func NewBackend(trieStore *trie.Store, blocks BlockHashReader, code CodeStore, root common.Hash, block uint64, vicinity Vicinity) *Backend {
	return &Backend{
		trieStore: trieStore,
		blocks:    blocks,
		code:      code,
		vicinity:  vicinity,
		block:     block,
		world:     trieStore.OpenMut(root),
		original:  trieStore.Open(root),
		root:      root,
	}
}

// Root returns the most recently sealed root (the parent root until
// the first successful Apply/AddBalance/SubBalance/DeployContract).
func (b *Backend) Root() common.Hash { return b.root }

// Vicinity returns the ambient environment currently in effect.
func (b *Backend) Vicinity() Vicinity { return b.vicinity }

// SetVicinity replaces the ambient environment. Origin and GasPrice
// vary per transaction even though the rest of Vicinity is fixed for
// the whole block, so callers executing several transactions against
// one Backend update it between calls (spec §4.3's Vicinity mixes
// per-block and per-call fields in one struct, matching the original
// evm crate's flat Vicinity type).
func (b *Backend) SetVicinity(v Vicinity) { b.vicinity = v }

// Basic returns {nonce, balance}, per spec §4.3's basic(addr).
func (b *Backend) Basic(addr common.Address) (nonce uint64, balance *uint256.Int, err error) {
	acct, err := loadAccount(b.world, addr)
	if err != nil {
		return 0, nil, err
	}
	return acct.Nonce, acct.Balance, nil
}

// Code returns an account's deployed bytecode, or nil if it has none.
func (b *Backend) Code(addr common.Address, codeByHash func(common.Hash) ([]byte, bool, error)) ([]byte, error) {
	acct, err := loadAccount(b.world, addr)
	if err != nil {
		return nil, err
	}
	if acct.CodeHash == EmptyCodeHash {
		return nil, nil
	}
	code, ok, err := codeByHash(acct.CodeHash)
	if err != nil {
		return nil, &evmerrors.BackendError{Op: "Code", Err: err}
	}
	if !ok {
		return nil, &evmerrors.BackendError{Op: "Code", Err: &evmerrors.NoSuchAccount{Address: addr}}
	}
	return code, nil
}

// Storage returns the current (post-staged-edits) value of slot.
func (b *Backend) Storage(addr common.Address, slot common.Hash) (common.Hash, error) {
	return b.storageAt(b.world, addr, slot)
}

// OriginalStorage returns slot's value as of the parent root, ignoring
// any edits staged in this Backend session — spec §4.3's
// original_storage, used by the EVM's SSTORE gas-refund accounting.
func (b *Backend) OriginalStorage(addr common.Address, slot common.Hash) (common.Hash, error) {
	return b.storageAt(b.original, addr, slot)
}

func (b *Backend) storageAt(world *trie.Trie, addr common.Address, slot common.Hash) (common.Hash, error) {
	acct, err := loadAccount(world, addr)
	if err != nil {
		return common.Hash{}, err
	}
	if acct.StorageRoot == trie.EmptyRootHash {
		return common.Hash{}, nil
	}
	storage := b.trieStore.OpenStorage(addr).Open(acct.StorageRoot)
	raw, ok, err := storage.Get(slot.Bytes())
	if err != nil {
		return common.Hash{}, &evmerrors.BackendError{Op: "Storage", Err: err}
	}
	if !ok {
		return common.Hash{}, nil
	}
	var val []byte
	if err := rlp.DecodeBytes(raw, &val); err != nil {
		return common.Hash{}, &evmerrors.BackendError{Op: "Storage: decode", Err: err}
	}
	return common.BytesToHash(val), nil
}

// Exists reports whether addr has a leaf in the world trie at all
// (independent of whether that leaf is EIP-161 "empty").
func (b *Backend) Exists(addr common.Address) (bool, error) {
	_, ok, err := b.world.Get(addr.Bytes())
	if err != nil {
		return false, &evmerrors.BackendError{Op: "Exists", Err: err}
	}
	return ok, nil
}

// BlockHash resolves BLOCKHASH(n).
func (b *Backend) BlockHash(n uint64) (common.Hash, error) {
	hash, ok, err := b.blocks.BlockHash(n)
	if err != nil {
		return common.Hash{}, &evmerrors.BackendError{Op: "BlockHash", Err: err}
	}
	if !ok {
		return common.Hash{}, nil
	}
	return hash, nil
}

// BasicChange is a staged nonce/balance update for one Apply entry.
type BasicChange struct {
	Nonce   uint64
	Balance *uint256.Int
}

// Apply is one account's staged changes within an Apply batch (spec
// §4.3's "changes"): a nil field means "leave unchanged".
type Apply struct {
	Address      common.Address
	Basic        *BasicChange
	Code         []byte
	Storage      map[common.Hash]common.Hash // slot→value; zero value deletes the slot
	ResetStorage bool
	Delete       bool
}

// Log is a staged event log entry, passed through apply() for parity
// with the original ApplyBackend::apply(changes, logs, delete_empty)
// signature. The Backend itself does not persist logs — block
// finalization (core/chain) is responsible for that via core/rawdb.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Apply is the single commit point of spec §4.3: it stages every
// account change into the world trie (and, per account, its storage
// sub-trie), writes newly introduced code, and returns the new world
// root once everything is sealed in one trie commit.
func (b *Backend) Apply(changes []Apply, logs []Log, deleteEmpty bool) (common.Hash, error) {
	for _, change := range changes {
		if change.Delete {
			if _, err := b.world.Delete(change.Address.Bytes()); err != nil {
				return common.Hash{}, &evmerrors.BackendError{Op: "Apply: delete", Err: err}
			}
			continue
		}

		acct, err := loadAccount(b.world, change.Address)
		if err != nil {
			return common.Hash{}, err
		}
		if change.Basic != nil {
			acct.Nonce = change.Basic.Nonce
			acct.Balance = change.Basic.Balance
		}
		if change.Code != nil {
			hash, err := b.applyCode(change.Address, change.Code)
			if err != nil {
				return common.Hash{}, err
			}
			acct.CodeHash = hash
		}
		if change.ResetStorage || len(change.Storage) > 0 {
			newRoot, err := b.applyStorage(change.Address, acct.StorageRoot, change.ResetStorage, change.Storage)
			if err != nil {
				return common.Hash{}, err
			}
			acct.StorageRoot = newRoot
		}

		if deleteEmpty && acct.IsEmpty() {
			if _, err := b.world.Delete(change.Address.Bytes()); err != nil {
				return common.Hash{}, &evmerrors.BackendError{Op: "Apply: delete empty", Err: err}
			}
			continue
		}
		if err := storeAccount(b.world, change.Address, acct); err != nil {
			return common.Hash{}, err
		}
	}

	newRoot, err := b.world.Commit()
	if err != nil {
		return common.Hash{}, &evmerrors.BackendError{Op: "Apply: commit", Err: err}
	}
	b.root = newRoot
	return newRoot, nil
}

func (b *Backend) applyCode(addr common.Address, code []byte) (common.Hash, error) {
	hash := crypto.Keccak256Hash(code)
	if hash != EmptyCodeHash {
		if err := b.code.PutCode(b.block, hash, code); err != nil {
			return common.Hash{}, &evmerrors.BackendError{Op: "Apply: put code", Err: err}
		}
	}
	return hash, nil
}

func (b *Backend) applyStorage(addr common.Address, currentRoot common.Hash, reset bool, writes map[common.Hash]common.Hash) (common.Hash, error) {
	store := b.trieStore.OpenStorage(addr)
	root := currentRoot
	if reset {
		root = store.CreateRoot()
	}
	storage := store.OpenMut(root)
	for slot, val := range writes {
		if val == (common.Hash{}) {
			if _, err := storage.Delete(slot.Bytes()); err != nil {
				return common.Hash{}, &evmerrors.BackendError{Op: "Apply: storage delete", Err: err}
			}
			continue
		}
		enc, err := rlp.EncodeToBytes(val.Bytes())
		if err != nil {
			return common.Hash{}, &evmerrors.BackendError{Op: "Apply: storage encode", Err: err}
		}
		if err := storage.Insert(slot.Bytes(), enc); err != nil {
			return common.Hash{}, &evmerrors.BackendError{Op: "Apply: storage insert", Err: err}
		}
	}
	newRoot, err := storage.Commit()
	if err != nil {
		return common.Hash{}, &evmerrors.BackendError{Op: "Apply: storage commit", Err: err}
	}
	return newRoot, nil
}

// AddBalance is a privileged bridge credit outside EVM semantics (spec
// §4.3): it commits immediately rather than staging into a later Apply.
func (b *Backend) AddBalance(addr common.Address, amount *uint256.Int) (common.Hash, error) {
	acct, err := loadAccount(b.world, addr)
	if err != nil {
		return common.Hash{}, err
	}
	acct.Balance = new(uint256.Int).Add(acct.Balance, amount)
	if err := storeAccount(b.world, addr, acct); err != nil {
		return common.Hash{}, err
	}
	newRoot, err := b.world.Commit()
	if err != nil {
		return common.Hash{}, &evmerrors.BackendError{Op: "AddBalance: commit", Err: err}
	}
	b.root = newRoot
	return newRoot, nil
}

// SubBalance is a privileged bridge debit; it fails with
// InsufficientBalance rather than allowing a negative balance.
func (b *Backend) SubBalance(addr common.Address, amount *uint256.Int) (common.Hash, error) {
	acct, err := loadAccount(b.world, addr)
	if err != nil {
		return common.Hash{}, err
	}
	if acct.Balance.Lt(amount) {
		return common.Hash{}, &evmerrors.InsufficientBalance{Address: addr, Balance: acct.Balance, Requested: amount}
	}
	acct.Balance = new(uint256.Int).Sub(acct.Balance, amount)
	if err := storeAccount(b.world, addr, acct); err != nil {
		return common.Hash{}, err
	}
	newRoot, err := b.world.Commit()
	if err != nil {
		return common.Hash{}, &evmerrors.BackendError{Op: "SubBalance: commit", Err: err}
	}
	b.root = newRoot
	return newRoot, nil
}

// DeployContract sets code for addr directly, bypassing EVM CREATE
// semantics — used for bridge-driven precompile deploys (spec §4.3).
func (b *Backend) DeployContract(addr common.Address, code []byte) (common.Hash, error) {
	return b.Apply([]Apply{{Address: addr, Code: code}}, nil, false)
}
