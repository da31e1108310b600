package evmstate

import (
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ain-network/evmcore/evmerrors"
	"github.com/ain-network/evmcore/internal/kv"
	"github.com/ain-network/evmcore/internal/trie"
)

type fakeBlocks struct{ hashes map[uint64]common.Hash }

func (f *fakeBlocks) BlockHash(n uint64) (common.Hash, bool, error) {
	h, ok := f.hashes[n]
	return h, ok, nil
}

type fakeCode struct {
	store map[common.Hash][]byte
	intro map[uint64][]common.Hash
}

func newFakeCode() *fakeCode {
	return &fakeCode{store: map[common.Hash][]byte{}, intro: map[uint64][]common.Hash{}}
}

func (f *fakeCode) PutCode(block uint64, hash common.Hash, code []byte) error {
	f.store[hash] = code
	f.intro[block] = append(f.intro[block], hash)
	return nil
}

func (f *fakeCode) byHash(h common.Hash) ([]byte, bool, error) {
	c, ok := f.store[h]
	return c, ok, nil
}

func newTestBackend(t *testing.T) (*Backend, *trie.Store, *fakeCode) {
	t.Helper()
	dir, err := os.MkdirTemp("", "evmstate-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	kvStore, err := kv.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kvStore.Close() })

	trieStore := trie.NewStore(kvStore)
	code := newFakeCode()
	vicinity := Vicinity{
		BlockNumber: uint256.NewInt(1),
		ChainID:     uint256.NewInt(1130),
	}
	backend := NewBackend(trieStore, &fakeBlocks{hashes: map[uint64]common.Hash{}}, code, trieStore.CreateRoot(), 1, vicinity)
	return backend, trieStore, code
}

func TestBasicDefaultsToEmptyAccount(t *testing.T) {
	backend, _, _ := newTestBackend(t)
	addr := common.HexToAddress("0x01")
	nonce, balance, err := backend.Basic(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(0), nonce)
	require.True(t, balance.IsZero())
}

func TestAddSubBalanceRoundTrip(t *testing.T) {
	backend, _, _ := newTestBackend(t)
	addr := common.HexToAddress("0x01")

	_, err := backend.AddBalance(addr, uint256.NewInt(100000))
	require.NoError(t, err)
	_, balance, err := backend.Basic(addr)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(100000), balance)

	_, err = backend.SubBalance(addr, uint256.NewInt(30000))
	require.NoError(t, err)
	_, balance, err = backend.Basic(addr)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(70000), balance)
}

func TestSubBalanceInsufficientFunds(t *testing.T) {
	backend, _, _ := newTestBackend(t)
	addr := common.HexToAddress("0x01")
	_, err := backend.AddBalance(addr, uint256.NewInt(10))
	require.NoError(t, err)

	_, err = backend.SubBalance(addr, uint256.NewInt(11))
	require.Error(t, err)
	var insufficient *evmerrors.InsufficientBalance
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, addr, insufficient.Address)
}

func TestApplyStoresCodeAndStorage(t *testing.T) {
	backend, _, code := newTestBackend(t)
	addr := common.HexToAddress("0x02")
	runtime := []byte{0x60, 0x80, 0x60, 0x40}
	slot := common.HexToHash("0x01")
	val := common.HexToHash("0x2a")

	_, err := backend.Apply([]Apply{{
		Address: addr,
		Basic:   &BasicChange{Nonce: 1, Balance: new(uint256.Int)},
		Code:    runtime,
		Storage: map[common.Hash]common.Hash{slot: val},
	}}, nil, false)
	require.NoError(t, err)

	got, err := backend.Code(addr, code.byHash)
	require.NoError(t, err)
	require.Equal(t, runtime, got)

	readBack, err := backend.Storage(addr, slot)
	require.NoError(t, err)
	require.Equal(t, val, readBack)

	require.Contains(t, code.intro[1], crypto.Keccak256Hash(runtime))
}

func TestApplyDeleteEmptyRemovesAccount(t *testing.T) {
	backend, _, _ := newTestBackend(t)
	addr := common.HexToAddress("0x03")

	_, err := backend.Apply([]Apply{{
		Address: addr,
		Basic:   &BasicChange{Nonce: 0, Balance: new(uint256.Int)},
	}}, nil, true)
	require.NoError(t, err)

	exists, err := backend.Exists(addr)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestOriginalStorageReadsParentRootNotStagedEdits(t *testing.T) {
	backend, trieStore, code := newTestBackend(t)
	addr := common.HexToAddress("0x04")
	slot := common.HexToHash("0x01")

	root, err := backend.Apply([]Apply{{
		Address: addr,
		Basic:   &BasicChange{Nonce: 1, Balance: uint256.NewInt(5)},
		Storage: map[common.Hash]common.Hash{slot: common.HexToHash("0x01")},
	}}, nil, false)
	require.NoError(t, err)

	// A fresh Backend opened at the committed root, with a further
	// staged (uncommitted) edit to the same slot: OriginalStorage must
	// still report the value as of `root`, not the staged one.
	backend2 := NewBackend(trieStore, &fakeBlocks{}, code, root, 2, backend.Vicinity())
	_, err = backend2.Apply([]Apply{{
		Address: addr,
		Storage: map[common.Hash]common.Hash{slot: common.HexToHash("0x02")},
	}}, nil, false)
	require.NoError(t, err)

	orig2, err := backend2.OriginalStorage(addr, slot)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x01"), orig2)

	// A third Backend instance opened at `root` that never staged the
	// edit reads the same value: edits made through another Backend do
	// not leak into reads at a pinned root.
	backend3 := NewBackend(trieStore, &fakeBlocks{}, code, root, 3, backend.Vicinity())
	orig, err := backend3.OriginalStorage(addr, slot)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x01"), orig)
}
