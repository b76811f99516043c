package dex

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperswap/pkg/abci"
	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/limitorder"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

func TestDevnetSignersDeterministic(t *testing.T) {
	a, err := DevnetSigners(3)
	require.NoError(t, err)
	b, err := DevnetSigners(3)
	require.NoError(t, err)
	for i := range a {
		assert.Equal(t, a[i].Address(), b[i].Address())
	}
	assert.NotEqual(t, a[0].Address(), a[1].Address())
}

func TestTxGeneratorBatchesExecute(t *testing.T) {
	signers, err := DevnetSigners(4)
	require.NoError(t, err)
	addrs := make([]common.Address, len(signers))
	for i, s := range signers {
		addrs[i] = s.Address()
	}

	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	g := DefaultGenesis(testChainID, addrs[0], addrs[1:]...)
	g.GenesisTime = 1_700_000_000
	g.LimitOrder.Executors = addrs[:1]
	app, err := NewApp(db, g, nil, nil)
	require.NoError(t, err)

	lo, _ := app.Contract(KindLimitOrder, "")
	gen, err := NewTxGenerator(testChainID, lo, [2]asset.AssetInfo{orai, usdt}, signers, app.Nonce, 7)
	require.NoError(t, err)

	clock := util.NewManualClock(time.Unix(g.GenesisTime, 0))
	producer := abci.NewBlockProducer(app, clock, 0)
	var results []abci.TxResult
	producer.OnCommit = func(_ int64, res abci.ResponseFinalizeBlock) { results = res.TxResults }

	// Two batches land in the same block, a third in the next one
	for round, batches := range []int{2, 1} {
		for i := 0; i < batches; i++ {
			batch, err := gen.GenerateBatch(5)
			require.NoError(t, err)
			require.Len(t, batch, 6)
			for _, tx := range batch {
				_, err := app.PushTx(tx)
				require.NoError(t, err)
			}
		}
		clock.Advance(time.Second)
		_, err := producer.ProduceBlock()
		require.NoError(t, err)
		require.Len(t, results, 6*batches, "round %d", round)
		for _, r := range results {
			require.True(t, r.OK(), r.Log)
		}
	}

	res, err := app.QueryKind(KindLimitOrder, "last_order_id", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), res.(limitorder.LastOrderIDResponse).LastOrderID)

	// The generator resumes from committed nonces
	again, err := NewTxGenerator(testChainID, lo, [2]asset.AssetInfo{orai, usdt}, signers, app.Nonce, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), again.nonces[addrs[0]])
}

type countingPusher struct {
	mu  sync.Mutex
	txs int
}

func (p *countingPusher) PushTx(raw []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs++
	return "", nil
}

func (p *countingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txs
}

func TestStartTxFeeder(t *testing.T) {
	signers, err := DevnetSigners(2)
	require.NoError(t, err)
	zero := func(common.Address) (uint64, error) { return 0, nil }
	gen, err := NewTxGenerator(testChainID, common.Address{1}, [2]asset.AssetInfo{orai, usdt}, signers, zero, 1)
	require.NoError(t, err)

	pusher := &countingPusher{}
	cancel := StartTxFeeder(context.Background(), pusher, gen, TxFeederConfig{BatchSize: 3, Interval: 5 * time.Millisecond}, nil)
	require.Eventually(t, func() bool { return pusher.count() >= 8 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	// Batches are whole: orders plus one matching pass
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, pusher.count()%4)
}
