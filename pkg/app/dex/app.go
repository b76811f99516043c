// Package dex is the node application: it owns the store, the mempool and
// the contract registry, and executes blocks of signed transactions.
package dex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/hyperswap/pkg/abci"
	"github.com/uhyunpark/hyperswap/pkg/app/core/amm"
	"github.com/uhyunpark/hyperswap/pkg/app/core/contract"
	"github.com/uhyunpark/hyperswap/pkg/app/core/converter"
	"github.com/uhyunpark/hyperswap/pkg/app/core/limitorder"
	"github.com/uhyunpark/hyperswap/pkg/app/core/mempool"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/metrics"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

var (
	ErrUnknownContract = errors.New("unknown contract")
	ErrBadNonce        = errors.New("nonce must be greater than the account nonce")
)

var (
	prefixBank     = []byte("b:")
	prefixContract = []byte("c:")
	keyContracts   = []byte("h:contracts")
	keyChainState  = []byte("h:state")
)

func contractPrefix(addr common.Address) []byte {
	return storage.Key(prefixContract, addr.Bytes())
}

// ChainState is persisted after every commit
type ChainState struct {
	ChainID   string `json:"chain_id"`
	Height    int64  `json:"height"`
	BlockTime int64  `json:"block_time"`
	AppHash   string `json:"app_hash"`
}

// pendingBlock accumulates one block between FinalizeBlock and Commit
type pendingBlock struct {
	height   int64
	time     int64
	appHash  [32]byte
	txHashes []string
	failed   int
}

type App struct {
	mu sync.RWMutex

	db        *storage.DB
	chainID   string
	verifier  *transaction.Verifier
	mempool   *mempool.Mempool
	contracts map[common.Address]registered
	registry  []ContractInfo

	state   ChainState
	pending *pendingBlock

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

type registered struct {
	ContractInfo
	handler contract.Handler
}

func handlerFor(kind string) (contract.Handler, error) {
	switch kind {
	case KindLimitOrder:
		return limitorder.Contract{}, nil
	case KindConverter:
		return converter.Contract{}, nil
	case KindPair:
		return amm.Pair{}, nil
	}
	return nil, fmt.Errorf("no handler for contract kind %q", kind)
}

// NewApp opens the application over db. On an empty store it applies genesis,
// which must then be non-nil.
func NewApp(db *storage.DB, genesis *Genesis, logger *zap.SugaredLogger, m *metrics.Metrics) (*App, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if m == nil {
		m = metrics.New()
	}
	a := &App{
		db:        db,
		mempool:   mempool.NewMempool(),
		contracts: make(map[common.Address]registered),
		logger:    logger,
		metrics:   m,
	}

	found, err := storage.GetJSON(db, keyChainState, &a.state)
	if err != nil {
		return nil, err
	}
	if !found {
		if genesis == nil {
			return nil, fmt.Errorf("empty store and no genesis")
		}
		if err := a.initChain(genesis); err != nil {
			return nil, err
		}
	} else {
		if _, err := storage.GetJSON(db, keyContracts, &a.registry); err != nil {
			return nil, err
		}
		// Block records and chain state are written by the same commit
		latest, err := storage.LatestBlock(db)
		if err != nil {
			return nil, err
		}
		if latest != nil && latest.Height != a.state.Height {
			return nil, fmt.Errorf("block store at height %d, chain state at %d", latest.Height, a.state.Height)
		}
	}

	for _, info := range a.registry {
		h, err := handlerFor(info.Kind)
		if err != nil {
			return nil, err
		}
		a.contracts[info.Address] = registered{ContractInfo: info, handler: h}
	}
	a.chainID = a.state.ChainID
	a.verifier = transaction.NewVerifier(a.chainID)

	logger.Infow("app_loaded",
		"chain_id", a.chainID,
		"height", a.state.Height,
		"contracts", len(a.registry),
		"app_hash", a.state.AppHash)
	return a, nil
}

func (a *App) initChain(g *Genesis) error {
	txn := a.db.Begin()
	defer txn.Discard()

	registry, err := initChain(txn, g)
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(g.ChainID))
	foldOps(h, txn.Ops())
	a.state = ChainState{
		ChainID:   g.ChainID,
		Height:    0,
		BlockTime: g.GenesisTime,
		AppHash:   fmt.Sprintf("0x%x", h.Sum(nil)),
	}
	if err := storage.SetJSON(txn, keyChainState, a.state); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	a.registry = registry
	return nil
}

// foldOps writes every op into h in application order
func foldOps(h hash.Hash, ops []storage.Op) {
	var n [4]byte
	for _, op := range ops {
		binary.BigEndian.PutUint32(n[:], uint32(len(op.Key)))
		h.Write(n[:])
		h.Write(op.Key)
		if op.Delete {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{1})
		binary.BigEndian.PutUint32(n[:], uint32(len(op.Value)))
		h.Write(n[:])
		h.Write(op.Value)
	}
}

func (a *App) ChainID() string { return a.chainID }

// Contracts lists the registered contracts in genesis order
func (a *App) Contracts() []ContractInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]ContractInfo(nil), a.registry...)
}

// Contract returns the address of the first contract of kind with label
func (a *App) Contract(kind, label string) (common.Address, bool) {
	for _, c := range a.Contracts() {
		if c.Kind == kind && (label == "" || c.Label == label) {
			return c.Address, true
		}
	}
	return common.Address{}, false
}

// State returns the last committed chain state
func (a *App) State() ChainState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// PushTx admits a raw transaction into the mempool after a structural check.
// Signatures and nonces are checked at execution.
func (a *App) PushTx(raw []byte) (string, error) {
	if _, err := transaction.ParseTransaction(raw); err != nil {
		return "", err
	}
	a.mempool.PushRaw(raw)
	a.metrics.SetMempoolSize(a.mempool.Len())
	return txHash(raw), nil
}

func (a *App) MempoolSize() int { return a.mempool.Len() }

func (a *App) PrepareProposal(req abci.RequestPrepareProposal) abci.ResponsePrepareProposal {
	txs := a.mempool.SelectForProposal(req.MaxTxBytes)
	a.metrics.SetMempoolSize(a.mempool.Len())
	return abci.ResponsePrepareProposal{Txs: txs}
}

// ProcessProposal accepts every proposal. Invalid transactions fail
// individually during FinalizeBlock.
func (a *App) ProcessProposal(_ abci.RequestProcessProposal) abci.ResponseProcessProposal {
	return abci.ResponseProcessProposal{Accept: true}
}

// FinalizeBlock executes txs in order. Each transaction commits or discards
// its own writes; the app hash chains the previous hash, the block header and
// every committed write.
func (a *App) FinalizeBlock(req abci.RequestFinalizeBlock) abci.ResponseFinalizeBlock {
	a.mu.Lock()
	defer a.mu.Unlock()
	start := time.Now()

	blockTime := req.Timestamp
	if blockTime < a.state.BlockTime {
		blockTime = a.state.BlockTime
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(common.FromHex(a.state.AppHash))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(req.Height))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(blockTime))
	h.Write(buf[:])

	blk := &pendingBlock{height: req.Height, time: blockTime}
	results := make([]abci.TxResult, 0, len(req.Txs))
	totalFills := 0
	for _, raw := range req.Txs {
		res, fills := a.deliverTx(h, req.Height, blockTime, raw)
		if !res.OK() {
			blk.failed++
		}
		totalFills += fills
		blk.txHashes = append(blk.txHashes, res.Hash)
		results = append(results, res)
	}
	copy(blk.appHash[:], h.Sum(nil))
	a.pending = blk

	a.metrics.ObserveBlock(req.Height, time.Since(start))
	if len(req.Txs) > 0 {
		a.logger.Infow("finalize_block",
			"height", req.Height,
			"txs", len(req.Txs),
			"failed", blk.failed,
			"fills", totalFills,
			"apphash", fmt.Sprintf("0x%x", blk.appHash[:]))
	}
	return abci.ResponseFinalizeBlock{TxResults: results, AppHash: blk.appHash}
}

// Commit persists the block record and chain state of the last finalized block
func (a *App) Commit() (abci.ResponseCommit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	blk := a.pending
	if blk == nil {
		return abci.ResponseCommit{}, fmt.Errorf("commit without finalized block")
	}

	next := ChainState{
		ChainID:   a.chainID,
		Height:    blk.height,
		BlockTime: blk.time,
		AppHash:   fmt.Sprintf("0x%x", blk.appHash[:]),
	}
	txn := a.db.Begin()
	defer txn.Discard()
	rec := storage.BlockRecord{
		Height:   blk.height,
		Time:     blk.time,
		AppHash:  next.AppHash,
		TxHashes: blk.txHashes,
		Failed:   blk.failed,
	}
	if err := storage.SaveBlock(txn, rec); err != nil {
		return abci.ResponseCommit{}, err
	}
	if err := storage.SetJSON(txn, keyChainState, next); err != nil {
		return abci.ResponseCommit{}, err
	}
	if err := txn.Commit(); err != nil {
		return abci.ResponseCommit{}, err
	}
	a.state = next
	a.pending = nil
	return abci.ResponseCommit{Height: blk.height, AppHash: blk.appHash}, nil
}

// Block returns a committed block record, nil if unknown
func (a *App) Block(height int64) (*storage.BlockRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return storage.LoadBlock(a.db, height)
}
