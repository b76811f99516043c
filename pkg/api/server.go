package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/contract"
	"github.com/uhyunpark/hyperswap/pkg/app/core/limitorder"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperswap/pkg/app/dex"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

const maxTxBody = 1 << 20

// Backend is the read and submit surface the API needs from the node
type Backend interface {
	ChainID() string
	State() dex.ChainState
	Contracts() []dex.ContractInfo
	Contract(kind, label string) (common.Address, bool)
	Query(addr common.Address, query string, params json.RawMessage) (any, error)
	Balances(owner common.Address) ([]asset.Asset, error)
	Nonce(owner common.Address) (uint64, error)
	PushTx(raw []byte) (string, error)
	MempoolSize() int
	Block(height int64) (*storage.BlockRecord, error)
}

var _ Backend = (*dex.App)(nil)

// Server handles REST API and WebSocket connections
type Server struct {
	app     Backend
	router  *mux.Router
	hub     *Hub
	logger  *zap.SugaredLogger
	metrics http.Handler
}

// NewServer creates a new API server. metrics may be nil.
func NewServer(app Backend, logger *zap.SugaredLogger, metrics http.Handler) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		app:     app,
		router:  mux.NewRouter(),
		hub:     NewHub(logger),
		logger:  logger,
		metrics: metrics,
	}
	s.setupRoutes()
	return s
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Chain endpoints
	api.HandleFunc("/chain/status", s.handleGetChainStatus).Methods("GET")
	api.HandleFunc("/blocks/{height:[0-9]+}", s.handleGetBlock).Methods("GET")
	api.HandleFunc("/contracts", s.handleGetContracts).Methods("GET")
	api.HandleFunc("/contracts/{address}/query", s.handleQueryContract).Methods("POST")

	// Transaction submission
	api.HandleFunc("/txs", s.handleSubmitTx).Methods("POST")

	// Account endpoints
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")

	// Limit order book endpoints
	api.HandleFunc("/orderbooks", s.handleGetOrderBooks).Methods("GET")
	api.HandleFunc("/orderbooks/last_order_id", s.handleGetLastOrderID).Methods("GET")
	api.HandleFunc("/orderbooks/{base}/{quote}", s.handleGetOrderBook).Methods("GET")
	book := api.PathPrefix("/orderbooks/{base}/{quote}").Subrouter()
	book.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	book.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	book.HandleFunc("/ticks", s.handleGetTicks).Methods("GET")
	book.HandleFunc("/ticks/{direction}/{price}", s.handleGetTick).Methods("GET")
	book.HandleFunc("/mid_price", s.handleGetMidPrice).Methods("GET")
	book.HandleFunc("/matchable", s.handleGetMatchable).Methods("GET")
	book.HandleFunc("/executors", s.handleGetExecutors).Methods("GET")
	book.HandleFunc("/executors/{address}", s.handleGetExecutor).Methods("GET")

	// AMM endpoints
	api.HandleFunc("/pools", s.handleGetPools).Methods("GET")
	api.HandleFunc("/pools/{address}", s.handleGetPool).Methods("GET")
	api.HandleFunc("/pools/{address}/simulation", s.handleSimulation).Methods("GET")
	api.HandleFunc("/pools/{address}/reverse_simulation", s.handleReverseSimulation).Methods("GET")

	// Converter
	api.HandleFunc("/converter/config", s.handleGetConverterConfig).Methods("GET")
	api.HandleFunc("/converter/{asset}", s.handleGetConvertInfo).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods("GET")
	}
}

// Handler returns the router wrapped in the CORS middleware
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves the API until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ==============================
// Chain Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetChainStatus(w http.ResponseWriter, r *http.Request) {
	st := s.app.State()
	respondJSON(w, ChainStatus{
		ChainID:     st.ChainID,
		Height:      st.Height,
		BlockTime:   st.BlockTime,
		AppHash:     st.AppHash,
		MempoolSize: s.app.MempoolSize(),
	})
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseInt(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid height", err.Error())
		return
	}
	rec, err := s.app.Block(height)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "block not found", strconv.FormatInt(height, 10))
		return
	}
	respondJSON(w, rec)
}

func (s *Server) handleGetContracts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.app.Contracts())
}

func (s *Server) handleQueryContract(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	var req QueryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTxBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	params, err := json.Marshal(req.Params)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid params", err.Error())
		return
	}
	s.respondQuery(w, addr, req.Query, params)
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTxBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	hash, err := s.app.PushTx(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transaction", err.Error())
		return
	}
	s.logger.Infow("tx_submitted", "hash", hash, "bytes", len(body))
	respondJSON(w, SubmitTxResponse{Status: "submitted", Hash: hash})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	balances, err := s.app.Balances(addr)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	nonce, err := s.app.Nonce(addr)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, AccountInfo{Address: addr.Hex(), Nonce: nonce, Balances: balances})
}

// ==============================
// Order Book Handlers
// ==============================

func (s *Server) handleGetOrderBooks(w http.ResponseWriter, r *http.Request) {
	var p limitorder.OrderBooksParams
	if !parsePaging(w, r, &p.Limit, &p.OrderBy) {
		return
	}
	s.respondKindQuery(w, dex.KindLimitOrder, "orderbooks", p)
}

func (s *Server) handleGetLastOrderID(w http.ResponseWriter, r *http.Request) {
	s.respondKindQuery(w, dex.KindLimitOrder, "last_order_id", struct{}{})
}

func (s *Server) handleGetOrderBook(w http.ResponseWriter, r *http.Request) {
	pair, ok := pathPair(w, r)
	if !ok {
		return
	}
	s.respondKindQuery(w, dex.KindLimitOrder, "orderbook", limitorder.PairParams{AssetInfos: pair})
}

func (s *Server) handleGetMidPrice(w http.ResponseWriter, r *http.Request) {
	pair, ok := pathPair(w, r)
	if !ok {
		return
	}
	s.respondKindQuery(w, dex.KindLimitOrder, "mid_price", limitorder.PairParams{AssetInfos: pair})
}

func (s *Server) handleGetMatchable(w http.ResponseWriter, r *http.Request) {
	pair, ok := pathPair(w, r)
	if !ok {
		return
	}
	s.respondKindQuery(w, dex.KindLimitOrder, "orderbook_matchable", limitorder.PairParams{AssetInfos: pair})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	pair, ok := pathPair(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}
	s.respondKindQuery(w, dex.KindLimitOrder, "order", limitorder.OrderParams{OrderID: id, AssetInfos: pair})
}

// handleGetOrders lists orders of a book
// Query: direction, bidder, price, start_after, limit, order_by
func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	pair, ok := pathPair(w, r)
	if !ok {
		return
	}
	p := limitorder.OrdersParams{AssetInfos: pair}
	q := r.URL.Query()
	if v := q.Get("direction"); v != "" {
		d, err := orderbook.ParseDirection(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid direction", err.Error())
			return
		}
		p.Direction = &d
	}
	if v := q.Get("bidder"); v != "" {
		if !common.IsHexAddress(v) {
			respondError(w, http.StatusBadRequest, "invalid bidder", v)
			return
		}
		bidder := common.HexToAddress(v)
		p.Filter.Bidder = &bidder
	}
	if v := q.Get("price"); v != "" {
		price, err := numeric.ParseDec(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid price", err.Error())
			return
		}
		p.Filter.Price = &price
	}
	if v := q.Get("start_after"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid start_after", err.Error())
			return
		}
		p.StartAfter = &id
	}
	if !parsePaging(w, r, &p.Limit, &p.OrderBy) {
		return
	}
	s.respondKindQuery(w, dex.KindLimitOrder, "orders", p)
}

// handleGetTicks lists the price levels of one side
// Query: direction (default buy), start_after, limit, order_by
func (s *Server) handleGetTicks(w http.ResponseWriter, r *http.Request) {
	pair, ok := pathPair(w, r)
	if !ok {
		return
	}
	p := limitorder.TicksParams{AssetInfos: pair, Direction: orderbook.Buy}
	q := r.URL.Query()
	if v := q.Get("direction"); v != "" {
		d, err := orderbook.ParseDirection(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid direction", err.Error())
			return
		}
		p.Direction = d
	}
	if v := q.Get("start_after"); v != "" {
		price, err := numeric.ParseDec(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid start_after", err.Error())
			return
		}
		p.StartAfter = &price
	}
	if !parsePaging(w, r, &p.Limit, &p.OrderBy) {
		return
	}
	s.respondKindQuery(w, dex.KindLimitOrder, "ticks", p)
}

func (s *Server) handleGetTick(w http.ResponseWriter, r *http.Request) {
	pair, ok := pathPair(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	d, err := orderbook.ParseDirection(vars["direction"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid direction", err.Error())
		return
	}
	price, err := numeric.ParseDec(vars["price"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid price", err.Error())
		return
	}
	s.respondKindQuery(w, dex.KindLimitOrder, "tick", limitorder.TickParams{AssetInfos: pair, Direction: d, Price: price})
}

func (s *Server) handleGetExecutor(w http.ResponseWriter, r *http.Request) {
	pair, ok := pathPair(w, r)
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	s.respondKindQuery(w, dex.KindLimitOrder, "executor", limitorder.ExecutorParams{AssetInfos: pair, Address: addr})
}

func (s *Server) handleGetExecutors(w http.ResponseWriter, r *http.Request) {
	pair, ok := pathPair(w, r)
	if !ok {
		return
	}
	p := limitorder.ExecutorsParams{AssetInfos: pair}
	if v := r.URL.Query().Get("start_after"); v != "" {
		if !common.IsHexAddress(v) {
			respondError(w, http.StatusBadRequest, "invalid start_after", v)
			return
		}
		addr := common.HexToAddress(v)
		p.StartAfter = &addr
	}
	if !parsePaging(w, r, &p.Limit, &p.OrderBy) {
		return
	}
	s.respondKindQuery(w, dex.KindLimitOrder, "executors", p)
}

// ==============================
// AMM Handlers
// ==============================

func (s *Server) handleGetPools(w http.ResponseWriter, r *http.Request) {
	pools := []PoolInfo{}
	for _, c := range s.app.Contracts() {
		if c.Kind != dex.KindPair {
			continue
		}
		info, err := s.poolInfo(c)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		pools = append(pools, info)
	}
	respondJSON(w, pools)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	c, ok := s.pathPool(w, r)
	if !ok {
		return
	}
	info, err := s.poolInfo(c)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, info)
}

// handleSimulation quotes a swap
// Query: offer (asset info), amount
func (s *Server) handleSimulation(w http.ResponseWriter, r *http.Request) {
	c, ok := s.pathPool(w, r)
	if !ok {
		return
	}
	offer, ok := queryAsset(w, r, "offer")
	if !ok {
		return
	}
	params, _ := json.Marshal(map[string]asset.Asset{"offer_asset": offer})
	s.respondQuery(w, c.Address, "simulation", params)
}

// handleReverseSimulation quotes the offer needed for an ask amount
// Query: ask (asset info), amount
func (s *Server) handleReverseSimulation(w http.ResponseWriter, r *http.Request) {
	c, ok := s.pathPool(w, r)
	if !ok {
		return
	}
	ask, ok := queryAsset(w, r, "ask")
	if !ok {
		return
	}
	params, _ := json.Marshal(map[string]asset.Asset{"ask_asset": ask})
	s.respondQuery(w, c.Address, "reverse_simulation", params)
}

func (s *Server) poolInfo(c dex.ContractInfo) (PoolInfo, error) {
	pair, err := s.app.Query(c.Address, "pair", nil)
	if err != nil {
		return PoolInfo{}, err
	}
	pool, err := s.app.Query(c.Address, "pool", nil)
	if err != nil {
		return PoolInfo{}, err
	}
	return PoolInfo{Address: c.Address.Hex(), Label: c.Label, Pair: pair, Pool: pool}, nil
}

func (s *Server) pathPool(w http.ResponseWriter, r *http.Request) (dex.ContractInfo, bool) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return dex.ContractInfo{}, false
	}
	for _, c := range s.app.Contracts() {
		if c.Address == addr && c.Kind == dex.KindPair {
			return c, true
		}
	}
	respondError(w, http.StatusNotFound, "pool not found", addr.Hex())
	return dex.ContractInfo{}, false
}

// ==============================
// Converter Handlers
// ==============================

func (s *Server) handleGetConverterConfig(w http.ResponseWriter, r *http.Request) {
	s.respondKindQuery(w, dex.KindConverter, "config", struct{}{})
}

func (s *Server) handleGetConvertInfo(w http.ResponseWriter, r *http.Request) {
	info, err := asset.ParseAssetInfo(mux.Vars(r)["asset"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset", err.Error())
		return
	}
	s.respondKindQuery(w, dex.KindConverter, "convert_info", map[string]asset.AssetInfo{"asset_info": info})
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) respondKindQuery(w http.ResponseWriter, kind, query string, params any) {
	addr, ok := s.app.Contract(kind, "")
	if !ok {
		respondError(w, http.StatusNotFound, "contract not found", kind)
		return
	}
	raw, err := json.Marshal(params)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondQuery(w, addr, query, raw)
}

func (s *Server) respondQuery(w http.ResponseWriter, addr common.Address, query string, params json.RawMessage) {
	res, err := s.app.Query(addr, query, params)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, res)
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, dex.ErrUnknownContract),
		errors.Is(err, contract.ErrOrderNotFound),
		errors.Is(err, contract.ErrOrderBookNotFound),
		errors.Is(err, contract.ErrRatioNotFound),
		errors.Is(err, contract.ErrPairNotFound):
		return http.StatusNotFound
	case errors.Is(err, contract.ErrInvalidMessage),
		errors.Is(err, contract.ErrUnknownMessage),
		errors.Is(err, contract.ErrAssetMismatch),
		errors.Is(err, contract.ErrOfferPoolIsZero),
		errors.Is(err, contract.ErrTooSmallOfferAmount),
		errors.Is(err, contract.ErrPriceBelowResolution),
		errors.Is(err, asset.ErrInvalidAssetInfo),
		errors.Is(err, numeric.ErrOverflow):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Errorw("request_failed", "err", err)
	}
	respondError(w, status, http.StatusText(status), err.Error())
}

func pathAddress(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := mux.Vars(r)[name]
	if !common.IsHexAddress(v) {
		respondError(w, http.StatusBadRequest, "invalid address", v)
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

// pathPair reads {base}/{quote} as asset infos, e.g. "orai" or "token:0x..."
func pathPair(w http.ResponseWriter, r *http.Request) ([2]asset.AssetInfo, bool) {
	vars := mux.Vars(r)
	var pair [2]asset.AssetInfo
	for i, key := range []string{"base", "quote"} {
		info, err := asset.ParseAssetInfo(vars[key])
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid "+key+" asset", err.Error())
			return pair, false
		}
		pair[i] = info
	}
	return pair, true
}

func queryAsset(w http.ResponseWriter, r *http.Request, key string) (asset.Asset, bool) {
	q := r.URL.Query()
	info, err := asset.ParseAssetInfo(q.Get(key))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+key+" asset", err.Error())
		return asset.Asset{}, false
	}
	amount, err := numeric.ParseUint128(q.Get("amount"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return asset.Asset{}, false
	}
	return asset.Asset{Info: info, Amount: amount}, true
}

func parsePaging(w http.ResponseWriter, r *http.Request, limit *uint32, orderBy *limitorder.OrderBy) bool {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid limit", err.Error())
			return false
		}
		*limit = uint32(n)
	}
	switch v := limitorder.OrderBy(q.Get("order_by")); v {
	case "":
	case limitorder.Ascending, limitorder.Descending:
		*orderBy = v
	default:
		respondError(w, http.StatusBadRequest, "invalid order_by", fmt.Sprintf("%q", v))
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
