package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperswap/pkg/abci"
	"github.com/uhyunpark/hyperswap/pkg/app/core/amm"
	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/converter"
	"github.com/uhyunpark/hyperswap/pkg/app/core/limitorder"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/app/dex"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/metrics"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

const testChainID = "hyperswap-api-test"

var (
	orai = asset.Native("orai")
	usdt = asset.Native("usdt")
)

type fixture struct {
	t        *testing.T
	app      *dex.App
	server   *Server
	producer *abci.BlockProducer
	clock    *util.ManualClock
	alice    *crypto.Signer
	nonce    uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	admin, _ := crypto.GenerateKey()
	alice, _ := crypto.GenerateKey()

	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	g := dex.DefaultGenesis(testChainID, admin.Address(), alice.Address())
	g.GenesisTime = 1_700_000_000
	m := metrics.New()
	app, err := dex.NewApp(db, g, nil, m)
	require.NoError(t, err)

	clock := util.NewManualClock(time.Unix(g.GenesisTime, 0))
	server := NewServer(app, nil, m.Handler())
	producer := abci.NewBlockProducer(app, clock, 0)
	producer.OnCommit = server.Hub().BroadcastBlock

	return &fixture{t: t, app: app, server: server, producer: producer, clock: clock, alice: alice}
}

func (f *fixture) do(method, path string, body []byte) *httptest.ResponseRecorder {
	f.t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(path string, out any) int {
	f.t.Helper()
	rec := f.do(http.MethodGet, path, nil)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

// signedTx builds a signed transaction from alice with her next nonce
func (f *fixture) signedTx(contractAddr string, msgType string, funds []asset.Asset, msg any) []byte {
	f.t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(f.t, err)
	f.nonce++
	addr, ok := f.app.Contract(contractAddr, "")
	require.True(f.t, ok)
	tx := &transaction.SignedTransaction{
		Type:     msgType,
		Contract: addr,
		Sender:   f.alice.Address(),
		Nonce:    f.nonce,
		Funds:    funds,
		Msg:      raw,
	}
	require.NoError(f.t, transaction.Sign(testChainID, tx, f.alice))
	b, err := tx.Serialize()
	require.NoError(f.t, err)
	return b
}

func (f *fixture) block() {
	f.t.Helper()
	f.clock.Advance(time.Second)
	_, err := f.producer.ProduceBlock()
	require.NoError(f.t, err)
}

func coin(info asset.AssetInfo, amount string) asset.Asset {
	return asset.Asset{Info: info, Amount: numeric.MustParseUint128(amount)}
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.get("/health", nil))

	var st ChainStatus
	require.Equal(t, http.StatusOK, f.get("/api/v1/chain/status", &st))
	assert.Equal(t, testChainID, st.ChainID)
	assert.Equal(t, int64(0), st.Height)
	assert.NotEmpty(t, st.AppHash)

	var contracts []dex.ContractInfo
	require.Equal(t, http.StatusOK, f.get("/api/v1/contracts", &contracts))
	assert.Len(t, contracts, 3)
}

func TestSubmitOrderAndQueryBook(t *testing.T) {
	f := newFixture(t)

	tx := f.signedTx(dex.KindLimitOrder, "submit_order", []asset.Asset{coin(orai, "1000")}, limitorder.SubmitOrderMsg{
		Direction: orderbook.Sell,
		Assets:    [2]asset.Asset{coin(orai, "1000"), coin(usdt, "2000")},
	})
	rec := f.do(http.MethodPost, "/api/v1/txs", tx)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var submitted SubmitTxResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	assert.Equal(t, "submitted", submitted.Status)
	assert.True(t, strings.HasPrefix(submitted.Hash, "0x"))

	var st ChainStatus
	f.get("/api/v1/chain/status", &st)
	assert.Equal(t, 1, st.MempoolSize)

	f.block()

	var last limitorder.LastOrderIDResponse
	require.Equal(t, http.StatusOK, f.get("/api/v1/orderbooks/last_order_id", &last))
	assert.Equal(t, uint64(1), last.LastOrderID)

	var orders limitorder.OrdersResponse
	require.Equal(t, http.StatusOK, f.get("/api/v1/orderbooks/orai/usdt/orders?direction=sell", &orders))
	require.Len(t, orders.Orders, 1)
	assert.Equal(t, f.alice.Address(), orders.Orders[0].BidderAddr)

	require.Equal(t, http.StatusOK, f.get("/api/v1/orderbooks/orai/usdt/orders?direction=buy", &orders))
	assert.Empty(t, orders.Orders)

	require.Equal(t, http.StatusOK, f.get("/api/v1/orderbooks/orai/usdt/orders?bidder="+f.alice.Address().Hex(), &orders))
	assert.Len(t, orders.Orders, 1)

	var order limitorder.OrderResponse
	require.Equal(t, http.StatusOK, f.get("/api/v1/orderbooks/native:orai/native:usdt/orders/1", &order))
	assert.Equal(t, orderbook.Sell, order.Direction)

	var ticks limitorder.TicksResponse
	require.Equal(t, http.StatusOK, f.get("/api/v1/orderbooks/orai/usdt/ticks?direction=sell", &ticks))
	require.Len(t, ticks.Ticks, 1)
	assert.Equal(t, uint64(1), ticks.Ticks[0].TotalOrders)

	var matchable limitorder.MatchableResponse
	require.Equal(t, http.StatusOK, f.get("/api/v1/orderbooks/orai/usdt/matchable", &matchable))
	assert.False(t, matchable.IsMatchable)

	var acct AccountInfo
	require.Equal(t, http.StatusOK, f.get("/api/v1/accounts/"+f.alice.Address().Hex(), &acct))
	assert.Equal(t, uint64(1), acct.Nonce)

	var blk storage.BlockRecord
	require.Equal(t, http.StatusOK, f.get("/api/v1/blocks/1", &blk))
	assert.Len(t, blk.TxHashes, 1)
	assert.Equal(t, submitted.Hash, blk.TxHashes[0])
}

func TestErrorStatus(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		path string
		code int
	}{
		{"unknown book", "/api/v1/orderbooks/atom/usdt", http.StatusNotFound},
		{"unknown order", "/api/v1/orderbooks/orai/usdt/orders/99", http.StatusNotFound},
		{"unknown block", "/api/v1/blocks/42", http.StatusNotFound},
		{"bad asset", "/api/v1/orderbooks/bogus:x/usdt", http.StatusBadRequest},
		{"bad direction", "/api/v1/orderbooks/orai/usdt/ticks?direction=up", http.StatusBadRequest},
		{"bad order_by", "/api/v1/orderbooks?order_by=sideways", http.StatusBadRequest},
		{"bad address", "/api/v1/accounts/nope", http.StatusBadRequest},
		{"unknown pool", "/api/v1/pools/0x0000000000000000000000000000000000000001", http.StatusNotFound},
		{"unknown ratio", "/api/v1/converter/atom", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	rec := f.do(http.MethodPost, "/api/v1/txs", []byte(`{"type":""}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(http.MethodPost, "/api/v1/txs", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPoolsAndSimulation(t *testing.T) {
	f := newFixture(t)

	var pools []PoolInfo
	require.Equal(t, http.StatusOK, f.get("/api/v1/pools", &pools))
	require.Len(t, pools, 1)
	assert.Equal(t, "orai-usdt", pools[0].Label)

	base := "/api/v1/pools/" + pools[0].Address
	var sim amm.SimulationResponse
	require.Equal(t, http.StatusOK, f.get(base+"/simulation?offer=orai&amount=1000000", &sim))
	assert.False(t, sim.ReturnAmount.IsZero())
	assert.True(t, sim.ReturnAmount.LT(numeric.NewUint128(1000000)))

	var rev amm.ReverseSimulationResponse
	require.Equal(t, http.StatusOK, f.get(base+"/reverse_simulation?ask=usdt&amount=1000000", &rev))
	assert.True(t, numeric.NewUint128(1000000).LT(rev.OfferAmount))

	rec := f.do(http.MethodGet, base+"/simulation?offer=atom&amount=1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	rec = f.do(http.MethodGet, base+"/simulation?offer=orai&amount=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConverterAndRawQuery(t *testing.T) {
	f := newFixture(t)

	var info converter.ConvertInfoResponse
	require.Equal(t, http.StatusOK, f.get("/api/v1/converter/usdt", &info))
	assert.Equal(t, numeric.MustParseDec("1000000000000"), info.TokenRatio.Ratio)

	addr, _ := f.app.Contract(dex.KindLimitOrder, "")
	body, _ := json.Marshal(QueryRequest{Query: "contract_info"})
	rec := f.do(http.MethodPost, "/api/v1/contracts/"+addr.Hex()+"/query", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body, _ = json.Marshal(QueryRequest{Query: "nonsense"})
	rec = f.do(http.MethodPost, "/api/v1/contracts/"+addr.Hex()+"/query", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t)
	f.block()

	rec := f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hyperswap_block_height")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/txs", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketBlocks(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.server.Hub().Run(ctx)

	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{ChannelBlocks, ChannelEvents}}))
	require.Eventually(t, func() bool {
		return f.server.Hub().Subscribers(ChannelBlocks) == 1
	}, 2*time.Second, 10*time.Millisecond)

	tx := f.signedTx(dex.KindLimitOrder, "submit_order", []asset.Asset{coin(usdt, "2000")}, limitorder.SubmitOrderMsg{
		Direction: orderbook.Buy,
		Assets:    [2]asset.Asset{coin(orai, "1000"), coin(usdt, "2000")},
	})
	_, err = f.app.PushTx(tx)
	require.NoError(t, err)
	f.block()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev EventUpdate
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "event", ev.Type)
	assert.Equal(t, int64(1), ev.Height)

	var blk BlockUpdate
	for blk.Type != "block" {
		require.NoError(t, conn.ReadJSON(&blk))
	}
	assert.Equal(t, int64(1), blk.Height)
	assert.Equal(t, 1, blk.Txs)
	assert.Equal(t, 0, blk.Failed)
}
