package dex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperswap/pkg/abci"
	"github.com/uhyunpark/hyperswap/pkg/app/core/amm"
	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/bank"
	"github.com/uhyunpark/hyperswap/pkg/app/core/converter"
	"github.com/uhyunpark/hyperswap/pkg/app/core/limitorder"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

const testChainID = "hyperswap-test"

var (
	orai   = asset.Native("orai")
	usdt   = asset.Native("usdt")
	usdt18 = asset.TokenAt(TokenAddress("usdt18"))
)

const initial = "1000000000000"

type harness struct {
	t        *testing.T
	app      *App
	producer *abci.BlockProducer
	clock    *util.ManualClock
	admin    *crypto.Signer
	alice    *crypto.Signer
	bob      *crypto.Signer
	nonces   map[common.Address]uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	admin, _ := crypto.GenerateKey()
	alice, _ := crypto.GenerateKey()
	bob, _ := crypto.GenerateKey()

	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	g := DefaultGenesis(testChainID, admin.Address(), alice.Address(), bob.Address())
	g.GenesisTime = 1_700_000_000
	app, err := NewApp(db, g, nil, nil)
	require.NoError(t, err)

	clock := util.NewManualClock(time.Unix(g.GenesisTime, 0))
	return &harness{
		t:        t,
		app:      app,
		producer: abci.NewBlockProducer(app, clock, 0),
		clock:    clock,
		admin:    admin,
		alice:    alice,
		bob:      bob,
		nonces:   map[common.Address]uint64{},
	}
}

func coin(info asset.AssetInfo, amount string) asset.Asset {
	return asset.Asset{Info: info, Amount: numeric.MustParseUint128(amount)}
}

func (h *harness) contract(kind string) common.Address {
	addr, ok := h.app.Contract(kind, "")
	require.True(h.t, ok, kind)
	return addr
}

// push signs and enqueues a transaction with the signer's next nonce
func (h *harness) push(s *crypto.Signer, contractAddr common.Address, msgType string, funds []asset.Asset, msg any) {
	h.t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(h.t, err)
	h.nonces[s.Address()]++
	tx := &transaction.SignedTransaction{
		Type:     msgType,
		Contract: contractAddr,
		Sender:   s.Address(),
		Nonce:    h.nonces[s.Address()],
		Funds:    funds,
		Msg:      raw,
	}
	require.NoError(h.t, transaction.Sign(testChainID, tx, s))
	b, err := tx.Serialize()
	require.NoError(h.t, err)
	_, err = h.app.PushTx(b)
	require.NoError(h.t, err)
}

// block produces one block and returns its results
func (h *harness) block() []abci.TxResult {
	h.t.Helper()
	var results []abci.TxResult
	h.producer.OnCommit = func(_ int64, res abci.ResponseFinalizeBlock) { results = res.TxResults }
	h.clock.Advance(time.Second)
	_, err := h.producer.ProduceBlock()
	require.NoError(h.t, err)
	return results
}

func (h *harness) balance(info asset.AssetInfo, owner common.Address) string {
	bal, err := h.app.Balance(info, owner)
	require.NoError(h.t, err)
	return bal.String()
}

func TestGenesis(t *testing.T) {
	h := newHarness(t)

	contracts := h.app.Contracts()
	require.Len(t, contracts, 3)
	assert.Equal(t, crypto.ContractAddress(KindLimitOrder), contracts[0].Address)

	assert.Equal(t, initial, h.balance(orai, h.alice.Address()))
	pair := h.contract(KindPair)
	assert.Equal(t, initial, h.balance(usdt, pair))

	st := h.app.State()
	assert.Equal(t, int64(0), st.Height)
	assert.NotEmpty(t, st.AppHash)

	res, err := h.app.QueryKind(KindLimitOrder, "contract_info", nil)
	require.NoError(t, err)
	assert.Equal(t, h.admin.Address(), res.(*limitorder.Config).Admin)
}

func TestLimitOrderRoundTrip(t *testing.T) {
	h := newHarness(t)
	lo := h.contract(KindLimitOrder)

	// alice sells 1000 orai for 2000 usdt, bob buys at the same price
	h.push(h.admin, lo, "execute_order_book_pair", nil, limitorder.ExecuteOrderBookPairMsg{
		AssetInfos: [2]asset.AssetInfo{orai, usdt},
	})
	h.push(h.alice, lo, "submit_order", []asset.Asset{coin(orai, "1000")}, limitorder.SubmitOrderMsg{
		Direction: orderbook.Sell,
		Assets:    [2]asset.Asset{coin(orai, "1000"), coin(usdt, "2000")},
	})
	h.push(h.bob, lo, "submit_order", []asset.Asset{coin(usdt, "2000")}, limitorder.SubmitOrderMsg{
		Direction: orderbook.Buy,
		Assets:    [2]asset.Asset{coin(orai, "1000"), coin(usdt, "2000")},
	})

	results := h.block()
	require.Len(t, results, 3)
	for _, r := range results {
		require.True(t, r.OK(), r.Log)
	}
	// Matching runs after both submissions
	assert.Equal(t, "execute_order_book_pair", results[2].Events[0].Type)

	assert.Equal(t, "999999999000", h.balance(orai, h.alice.Address()))
	assert.Equal(t, "1000000001998", h.balance(usdt, h.alice.Address()))
	assert.Equal(t, "1000000000999", h.balance(orai, h.bob.Address()))
	assert.Equal(t, "999999998000", h.balance(usdt, h.bob.Address()))

	// Commission stays in the contract until distributed
	assert.Equal(t, "1", h.balance(orai, lo))
	assert.Equal(t, "2", h.balance(usdt, lo))

	res, err := h.app.QueryKind(KindLimitOrder, "last_order_id", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.(limitorder.LastOrderIDResponse).LastOrderID)
}

func TestCancelRefundsThroughBank(t *testing.T) {
	h := newHarness(t)
	lo := h.contract(KindLimitOrder)

	h.push(h.alice, lo, "submit_order", []asset.Asset{coin(orai, "500")}, limitorder.SubmitOrderMsg{
		Direction: orderbook.Sell,
		Assets:    [2]asset.Asset{coin(orai, "500"), coin(usdt, "600")},
	})
	require.True(t, h.block()[0].OK())
	assert.Equal(t, "999999999500", h.balance(orai, h.alice.Address()))

	h.push(h.alice, lo, "cancel_order", nil, limitorder.CancelOrderMsg{
		OrderID:    1,
		AssetInfos: [2]asset.AssetInfo{orai, usdt},
	})
	res := h.block()
	require.True(t, res[0].OK(), res[0].Log)
	assert.Equal(t, initial, h.balance(orai, h.alice.Address()))
	assert.Equal(t, "0", h.balance(orai, lo))
}

func TestFailedTxRollsBackButConsumesNonce(t *testing.T) {
	h := newHarness(t)
	lo := h.contract(KindLimitOrder)

	// Declared offer does not match the attached funds
	h.push(h.alice, lo, "submit_order", []asset.Asset{coin(orai, "10")}, limitorder.SubmitOrderMsg{
		Direction: orderbook.Sell,
		Assets:    [2]asset.Asset{coin(orai, "1000"), coin(usdt, "2000")},
	})
	res := h.block()
	require.Len(t, res, 1)
	assert.Equal(t, CodeExecution, res[0].Code)
	assert.Equal(t, initial, h.balance(orai, h.alice.Address()))

	n, err := h.app.Nonce(h.alice.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestReplayRejected(t *testing.T) {
	h := newHarness(t)

	msg, _ := json.Marshal(bank.TransferMsg{To: h.bob.Address(), Amount: coin(usdt, "5")})
	tx := &transaction.SignedTransaction{
		Type:   transaction.TypeTransfer,
		Sender: h.alice.Address(),
		Nonce:  1,
		Msg:    msg,
	}
	require.NoError(t, transaction.Sign(testChainID, tx, h.alice))
	raw, _ := tx.Serialize()

	_, err := h.app.PushTx(raw)
	require.NoError(t, err)
	_, err = h.app.PushTx(raw)
	require.NoError(t, err)

	res := h.block()
	require.Len(t, res, 2)
	assert.True(t, res[0].OK(), res[0].Log)
	assert.Equal(t, CodeNonce, res[1].Code)
	assert.Equal(t, "1000000000005", h.balance(usdt, h.bob.Address()))
}

func TestBadSignatureRejected(t *testing.T) {
	h := newHarness(t)
	msg, _ := json.Marshal(bank.TransferMsg{To: h.bob.Address(), Amount: coin(usdt, "5")})
	tx := &transaction.SignedTransaction{
		Type:   transaction.TypeTransfer,
		Sender: h.alice.Address(),
		Nonce:  1,
		Msg:    msg,
	}
	// bob signs on alice's behalf
	require.NoError(t, transaction.Sign(testChainID, tx, h.bob))
	raw, _ := tx.Serialize()
	_, err := h.app.PushTx(raw)
	require.NoError(t, err)

	res := h.block()
	assert.Equal(t, CodeSignature, res[0].Code)
	assert.Equal(t, initial, h.balance(usdt, h.alice.Address()))
}

func TestSwapAndConvert(t *testing.T) {
	h := newHarness(t)
	pair := h.contract(KindPair)
	conv := h.contract(KindConverter)

	h.push(h.alice, pair, "swap", []asset.Asset{coin(orai, "1000000")}, amm.SwapMsg{OfferAsset: coin(orai, "1000000")})
	h.push(h.bob, conv, "convert", []asset.Asset{coin(usdt, "3")}, struct{}{})
	res := h.block()
	require.Len(t, res, 2)
	for _, r := range res {
		require.True(t, r.OK(), r.Log)
	}

	assert.Equal(t, "999999000000", h.balance(orai, h.alice.Address()))
	assert.Equal(t, "1000001000000", h.balance(orai, pair))
	assert.NotEqual(t, initial, h.balance(usdt, h.alice.Address()))
	assert.Equal(t, "3000000000000", h.balance(usdt18, h.bob.Address()))

	sim, err := h.app.Query(pair, "pool", nil)
	require.NoError(t, err)
	assert.Equal(t, "1000001000000", sim.(amm.PoolResponse).Assets[0].Amount.String())

	info, err := h.app.QueryKind(KindConverter, "convert_info", converter.ConvertInfoParams{AssetInfo: usdt})
	require.NoError(t, err)
	assert.True(t, info.(converter.ConvertInfoResponse).TokenRatio.Info.Equal(usdt18))
}

func TestAppHashAndRestart(t *testing.T) {
	admin, _ := crypto.GenerateKey()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	g := DefaultGenesis(testChainID, admin.Address())
	app, err := NewApp(db, g, nil, nil)
	require.NoError(t, err)
	genesisHash := app.State().AppHash

	clock := util.NewManualClock(time.Unix(100, 0))
	p := abci.NewBlockProducer(app, clock, 0)
	_, err = p.ProduceBlock()
	require.NoError(t, err)
	_, err = p.ProduceBlock()
	require.NoError(t, err)

	st := app.State()
	assert.Equal(t, int64(2), st.Height)
	assert.NotEqual(t, genesisHash, st.AppHash)

	rec, err := app.Block(2)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, st.AppHash, rec.AppHash)

	// Reopening ignores genesis and resumes from the stored state
	reopened, err := NewApp(db, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, st, reopened.State())
	assert.Len(t, reopened.Contracts(), 3)
}
