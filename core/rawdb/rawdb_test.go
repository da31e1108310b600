package rawdb

import (
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/ain-network/evmcore/internal/kv"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "rawdb-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	kvStore, err := kv.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kvStore.Close() })
	return Open(kvStore)
}

func makeBlock(number uint64, parent common.Hash, txs []*types.Transaction) *types.Block {
	header := &types.Header{
		Number:     big.NewInt(int64(number)),
		ParentHash: parent,
		Time:       uint64(1000 + number),
		GasLimit:   30_000_000,
	}
	return types.NewBlockWithHeader(header).WithBody(types.Body{Transactions: txs})
}

func makeTx(nonce uint64) *types.Transaction {
	return types.NewTransaction(nonce, common.HexToAddress("0x02"), big.NewInt(1), 21000, big.NewInt(1), nil)
}

func TestPutBlockAndQueries(t *testing.T) {
	store := newTestStore(t)
	tx := makeTx(0)
	block := makeBlock(1, common.Hash{}, []*types.Transaction{tx})

	require.NoError(t, store.PutBlock(block))
	require.NoError(t, store.PutLatestBlock(block))

	got, ok, err := store.GetBlockByNumber(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block.Hash(), got.Hash())

	byHash, ok, err := store.GetBlockByHash(block.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), byHash.NumberU64())

	gotTx, ok, err := store.GetTransactionByHash(tx.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, tx.Hash(), gotTx.Hash())

	latest, ok, err := store.LatestBlockNumber()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), latest)

	hash, ok, err := store.BlockHash(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block.Hash(), hash)
}

func TestPutCodeAndDisconnectLatestBlockGCs(t *testing.T) {
	store := newTestStore(t)
	genesis := makeBlock(0, common.Hash{}, nil)
	require.NoError(t, store.PutBlock(genesis))
	require.NoError(t, store.PutLatestBlock(genesis))

	tx := makeTx(0)
	block1 := makeBlock(1, genesis.Hash(), []*types.Transaction{tx})
	require.NoError(t, store.PutBlock(block1))
	require.NoError(t, store.PutLatestBlock(block1))

	codeHash := common.HexToHash("0xaa")
	require.NoError(t, store.PutCode(1, codeHash, []byte{0x60, 0x00}))
	code, ok, err := store.CodeByHash(codeHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0x60, 0x00}, code)

	require.NoError(t, store.DisconnectLatestBlock())

	latest, ok, err := store.LatestBlockNumber()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), latest)

	_, ok, err = store.GetBlockByNumber(1)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = store.GetTransactionByHash(tx.Hash())
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = store.CodeByHash(codeHash)
	require.NoError(t, err)
	require.False(t, ok, "code introduced only at the disconnected block must be GC'd")
}

func TestPutLogsMergesAcrossCalls(t *testing.T) {
	store := newTestStore(t)
	addrA := common.HexToAddress("0x0a")
	addrB := common.HexToAddress("0x0b")

	require.NoError(t, store.PutLogs(1, map[common.Address][]uint32{addrA: {0, 1}}))
	require.NoError(t, store.PutLogs(1, map[common.Address][]uint32{addrB: {2}}))

	rows, err := store.GetAddressLogIndices(1)
	require.NoError(t, err)
	byAddr := map[common.Address][]uint32{}
	for _, row := range rows {
		byAddr[row.Address] = row.Indices
	}
	require.Equal(t, []uint32{0, 1}, byAddr[addrA])
	require.Equal(t, []uint32{2}, byAddr[addrB])
}

func TestComputeBloomMembership(t *testing.T) {
	addr := common.HexToAddress("0x0c")
	topic := common.HexToHash("0x01")
	receipt := &types.Receipt{Logs: []*types.Log{{Address: addr, Topics: []common.Hash{topic}}}}

	bloom := ComputeBloom([]*types.Receipt{receipt})
	require.True(t, bloom.Test(addr.Bytes()))
	require.True(t, bloom.Test(topic.Bytes()))

	rb := ReceiptBloom(receipt)
	var blockBloom types.Bloom
	BloomOr(&blockBloom, rb)
	require.Equal(t, bloom, blockBloom)
}
