package trie

import (
	"fmt"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/ain-network/evmcore/internal/kv"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "trie-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	kvStore, err := kv.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kvStore.Close() })
	return NewStore(kvStore)
}

func TestEmptyRootIsComputed(t *testing.T) {
	require.Equal(t, "0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421", EmptyRootHash.Hex())
}

func TestInsertGetCommit(t *testing.T) {
	store := newTestStore(t)
	tr := store.OpenMut(store.CreateRoot())

	entries := map[string]string{
		"account-aaaa": "balance-1",
		"account-aaab": "balance-2",
		"account-bbbb": "balance-3",
		"x":            "short",
	}
	for k, v := range entries {
		require.NoError(t, tr.Insert([]byte(k), []byte(v)))
	}
	for k, v := range entries {
		got, ok, err := tr.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, v, string(got))
	}

	root, err := tr.Commit()
	require.NoError(t, err)
	require.NotEqual(t, EmptyRootHash, root)

	reopened := store.Open(root)
	for k, v := range entries {
		got, ok, err := reopened.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, v, string(got))
	}
}

func TestCommitIsDeterministic(t *testing.T) {
	storeA := newTestStore(t)
	storeB := newTestStore(t)

	build := func(s *Store) common.Hash {
		tr := s.OpenMut(s.CreateRoot())
		for i := 0; i < 50; i++ {
			key := []byte(fmt.Sprintf("key-%03d", i))
			val := []byte(fmt.Sprintf("value-%03d", i))
			require.NoError(t, tr.Insert(key, val))
		}
		root, err := tr.Commit()
		require.NoError(t, err)
		return root
	}

	rootA := build(storeA)
	rootB := build(storeB)
	require.Equal(t, rootA, rootB, "identical inserts must commit to identical roots")
}

func TestDeleteRestoresEmptyRoot(t *testing.T) {
	store := newTestStore(t)
	tr := store.OpenMut(store.CreateRoot())

	require.NoError(t, tr.Insert([]byte("only-key"), []byte("only-value")))
	root, err := tr.Commit()
	require.NoError(t, err)
	require.NotEqual(t, EmptyRootHash, root)

	tr2 := store.OpenMut(root)
	existed, err := tr2.Delete([]byte("only-key"))
	require.NoError(t, err)
	require.True(t, existed)

	root2, err := tr2.Commit()
	require.NoError(t, err)
	require.Equal(t, EmptyRootHash, root2)
}

func TestDeleteMissingKeyIsNoop(t *testing.T) {
	store := newTestStore(t)
	tr := store.OpenMut(store.CreateRoot())
	require.NoError(t, tr.Insert([]byte("a"), []byte("1")))
	root1, err := tr.Commit()
	require.NoError(t, err)

	tr2 := store.OpenMut(root1)
	existed, err := tr2.Delete([]byte("not-present"))
	require.NoError(t, err)
	require.False(t, existed)

	root2, err := tr2.Commit()
	require.NoError(t, err)
	require.Equal(t, root1, root2)
}

func TestStorageSubTrieHasIndependentNamespace(t *testing.T) {
	store := newTestStore(t)
	addrA := common.HexToAddress("0x0000000000000000000000000000000000000a")
	addrB := common.HexToAddress("0x0000000000000000000000000000000000000b")

	subA := store.OpenStorage(addrA)
	subB := store.OpenStorage(addrB)

	trA := subA.OpenMut(subA.CreateRoot())
	require.NoError(t, trA.Insert([]byte{0x01}, []byte("slot-a")))
	rootA, err := trA.Commit()
	require.NoError(t, err)

	// Same key/value inserted under a different account's namespace
	// hashes to the same root but is stored under addrB's prefix.
	trB := subB.OpenMut(subB.CreateRoot())
	require.NoError(t, trB.Insert([]byte{0x01}, []byte("slot-a")))
	rootB, err := trB.Commit()
	require.NoError(t, err)
	require.Equal(t, rootA, rootB, "content-identical sub-tries hash identically")

	reopenedA := subA.Open(rootA)
	val, ok, err := reopenedA.Get([]byte{0x01})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "slot-a", string(val))

	// A namespace that never stored these nodes cannot resolve rootA.
	subC := store.OpenStorage(common.HexToAddress("0x0000000000000000000000000000000000000c"))
	_, _, err = subC.Open(rootA).Get([]byte{0x01})
	require.Error(t, err)
}
