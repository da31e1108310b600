package coreapi

import (
	"math/big"
	"os"
	"testing"

	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ain-network/evmcore/core/chain"
	"github.com/ain-network/evmcore/core/evmstate"
	"github.com/ain-network/evmcore/core/rawdb"
	"github.com/ain-network/evmcore/core/txpool"
	"github.com/ain-network/evmcore/indexer"
	"github.com/ain-network/evmcore/internal/kv"
	"github.com/ain-network/evmcore/internal/trie"
	"github.com/ain-network/evmcore/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// transferExecutor is a stand-in for the out-of-scope opcode engine
// (spec §1 non-goal): it moves Value from Caller to To as a plain
// balance transfer and nothing else.
type transferExecutor struct{}

func (transferExecutor) Execute(ctx evmstate.CallContext, host *evmstate.Backend) (evmstate.ExecutionResult, error) {
	nonce, balance, err := host.Basic(ctx.Caller)
	if err != nil {
		return evmstate.ExecutionResult{}, err
	}
	if balance.Lt(ctx.Value) {
		return evmstate.ExecutionResult{ExitReason: evmstate.ExitRevert, UsedGas: 21000}, nil
	}
	toBalance := new(uint256.Int)
	if ctx.To != nil {
		_, b, err := host.Basic(*ctx.To)
		if err != nil {
			return evmstate.ExecutionResult{}, err
		}
		toBalance = b
	}
	changes := []evmstate.Apply{
		{Address: ctx.Caller, Basic: &evmstate.BasicChange{Nonce: nonce + 1, Balance: new(uint256.Int).Sub(balance, ctx.Value)}},
	}
	if ctx.To != nil {
		changes = append(changes, evmstate.Apply{Address: *ctx.To, Basic: &evmstate.BasicChange{Nonce: 0, Balance: new(uint256.Int).Add(toBalance, ctx.Value)}})
	}
	return evmstate.ExecutionResult{ExitReason: evmstate.ExitSucceed, UsedGas: 21000, Changes: changes}, nil
}

func genesisBlock() *types.Block {
	header := &types.Header{Number: big.NewInt(0), Root: trie.EmptyRootHash, GasLimit: 30_000_000}
	return types.NewBlockWithHeader(header)
}

func newTestCore(t *testing.T) *Core {
	t.Helper()
	dir, err := os.MkdirTemp("", "coreapi-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	store, err := kv.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	trieStore := trie.NewStore(store)
	chainDB := rawdb.Open(store)
	indexStore := indexer.Open(store)
	chainID := uint256.NewInt(1337)
	m := metrics.New(prometheus.NewRegistry())

	c := New(trieStore, chainDB, indexStore, transferExecutor{}, chainID, m)
	require.NoError(t, c.Bootstrap(genesisBlock()))
	return c
}

func defaultMeta(timestamp uint64) chain.BlockMeta {
	return chain.BlockMeta{Timestamp: timestamp, GasLimit: 30_000_000, Difficulty: big.NewInt(0), BaseFeePerGas: big.NewInt(0)}
}

func mustTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func deriveAddress(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

func TestEndToEndBridgeTransferQueryDisconnect(t *testing.T) {
	c := newTestCore(t)
	sender := common.HexToAddress("0x01")
	receiver := common.HexToAddress("0x02")

	ctx1 := c.NewContext()
	require.NoError(t, c.QueueBridge(ctx1, txpool.BridgeIn, sender, uint256.NewInt(1_000_000), common.HexToHash("0x01")))
	header1, err := c.FinalizeBlock(ctx1, Latest(), defaultMeta(1001))
	require.NoError(t, err)

	balance, err := c.GetBalance(sender, ByHash(header1.Hash()))
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1_000_000), balance)

	signer := types.LatestSignerForChainID(big.NewInt(1337))
	key := mustTestKey(t)
	senderFromKey := deriveAddress(key)

	ctx2 := c.NewContext()
	require.NoError(t, c.QueueBridge(ctx2, txpool.BridgeIn, senderFromKey, uint256.NewInt(1_000_000), common.HexToHash("0x02")))
	header2, err := c.FinalizeBlock(ctx2, ByHash(header1.Hash()), defaultMeta(1002))
	require.NoError(t, err)

	tx, err := types.SignNewTx(key, signer, &types.LegacyTx{
		Nonce: 0, To: &receiver, Value: big.NewInt(500), Gas: 21000, GasPrice: big.NewInt(1),
	})
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	ctx3 := c.NewContext()
	require.NoError(t, c.QueueTx(ctx3, raw, common.HexToHash("0x03")))
	header3, err := c.FinalizeBlock(ctx3, ByHash(header2.Hash()), defaultMeta(1003))
	require.NoError(t, err)

	receiverBalance, err := c.GetBalance(receiver, Latest())
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(500), receiverBalance)

	nonce, err := c.GetNonce(senderFromKey, Latest())
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)

	byNumber, err := c.GetBlockByNumber(3)
	require.NoError(t, err)
	require.Equal(t, header3.Hash(), byNumber.Hash())

	byHash, err := c.GetBlockByHash(header3.Hash())
	require.NoError(t, err)
	require.Equal(t, header3.Hash(), byHash.Hash())

	gotTx, err := c.GetTransactionByHash(tx.Hash())
	require.NoError(t, err)
	require.Equal(t, tx.Hash(), gotTx.Hash())

	require.NoError(t, c.DisconnectTip())
	_, err = c.GetBlockByNumber(3)
	require.Error(t, err)

	postDisconnectBalance, err := c.GetBalance(receiver, Latest())
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int), postDisconnectBalance)
}

func TestIndexBlockUnindexBlockPassthrough(t *testing.T) {
	c := newTestCore(t)
	pair := indexer.TokenCurrency{Token: "DFI", Currency: "USD"}
	owner := common.HexToAddress("0xaa")
	block := indexer.BlockContext{Height: 1, MedianTime: 1000}
	events := []indexer.Event{{
		Kind: indexer.EventAppointOracle,
		Appoint: indexer.AppointOracleEvent{
			TxID: common.BytesToHash([]byte{1}), OwnerAddress: owner, Weightage: 1,
			PriceFeeds: []indexer.TokenCurrency{pair},
		},
	}}

	c.IndexBlock(block, events)
	c.UnindexBlock(block, events)
}
