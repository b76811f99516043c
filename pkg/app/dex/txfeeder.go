package dex

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/limitorder"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
)

// TxFeederConfig controls transaction generation rate
type TxFeederConfig struct {
	BatchSize   int           // Orders per batch, followed by one matching pass
	Interval    time.Duration // How often to generate batches
	NumAccounts int           // Number of simulated traders
}

// DefaultFeederConfig returns reasonable defaults for a devnet
func DefaultFeederConfig() TxFeederConfig {
	return TxFeederConfig{
		BatchSize:   10,
		Interval:    200 * time.Millisecond,
		NumAccounts: 20,
	}
}

// HighLoadConfig returns config for stress testing
func HighLoadConfig() TxFeederConfig {
	return TxFeederConfig{
		BatchSize:   100,
		Interval:    100 * time.Millisecond,
		NumAccounts: 200,
	}
}

// DevnetSigners derives n deterministic trader keys, so a restarted node
// keeps signing for the accounts its genesis funded
func DevnetSigners(n int) ([]*crypto.Signer, error) {
	out := make([]*crypto.Signer, n)
	for i := range out {
		seed := ethcrypto.Keccak256([]byte("hyperswap/devnet/" + strconv.Itoa(i)))
		s, err := crypto.FromPrivateKeyHex(hex.EncodeToString(seed))
		if err != nil {
			return nil, fmt.Errorf("devnet key %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// TxGenerator creates signed orders around a mid price of 1 on one book.
// The first signer sends the matching passes and must be an executor. It
// places no orders of its own when other signers exist, because the mempool
// runs submits before matches and its nonces would arrive out of order.
type TxGenerator struct {
	chainID  string
	contract common.Address
	book     [2]asset.AssetInfo
	signers  []*crypto.Signer
	nonces   map[common.Address]uint64
	rng      *rand.Rand
}

// NewTxGenerator resumes every signer from its committed nonce
func NewTxGenerator(chainID string, contractAddr common.Address, book [2]asset.AssetInfo, signers []*crypto.Signer, nonce func(common.Address) (uint64, error), seed int64) (*TxGenerator, error) {
	if len(signers) == 0 {
		return nil, fmt.Errorf("tx generator needs at least one signer")
	}
	nonces := make(map[common.Address]uint64, len(signers))
	for _, s := range signers {
		n, err := nonce(s.Address())
		if err != nil {
			return nil, err
		}
		nonces[s.Address()] = n
	}
	return &TxGenerator{
		chainID:  chainID,
		contract: contractAddr,
		book:     book,
		signers:  signers,
		nonces:   nonces,
		rng:      rand.New(rand.NewSource(seed)),
	}, nil
}

func (g *TxGenerator) sign(s *crypto.Signer, msgType string, funds []asset.Asset, msg any) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	g.nonces[s.Address()]++
	tx := &transaction.SignedTransaction{
		Type:     msgType,
		Contract: g.contract,
		Sender:   s.Address(),
		Nonce:    g.nonces[s.Address()],
		Funds:    funds,
		Msg:      raw,
	}
	if err := transaction.Sign(g.chainID, tx, s); err != nil {
		return nil, err
	}
	return tx.Serialize()
}

// GenerateOrder signs a random order: 50% buy, base 1000 to 100000, price
// within 5% of 1
func (g *TxGenerator) GenerateOrder() ([]byte, error) {
	traders := g.signers
	if len(traders) > 1 {
		traders = traders[1:]
	}
	s := traders[g.rng.Intn(len(traders))]

	base := uint64(1000 + g.rng.Intn(99001))
	permille := uint64(950 + g.rng.Intn(101))
	quote := base * permille / 1000

	assets := [2]asset.Asset{
		{Info: g.book[0], Amount: numeric.NewUint128(base)},
		{Info: g.book[1], Amount: numeric.NewUint128(quote)},
	}
	direction := orderbook.Buy
	paid := assets[1]
	if g.rng.Intn(2) == 1 {
		direction = orderbook.Sell
		paid = assets[0]
	}
	return g.sign(s, "submit_order", []asset.Asset{paid}, limitorder.SubmitOrderMsg{Direction: direction, Assets: assets})
}

// GenerateMatch signs a matching pass from the executor
func (g *TxGenerator) GenerateMatch() ([]byte, error) {
	return g.sign(g.signers[0], "execute_order_book_pair", nil, limitorder.ExecuteOrderBookPairMsg{AssetInfos: g.book})
}

// GenerateBatch returns n orders followed by one matching pass
func (g *TxGenerator) GenerateBatch(n int) ([][]byte, error) {
	batch := make([][]byte, 0, n+1)
	for i := 0; i < n; i++ {
		tx, err := g.GenerateOrder()
		if err != nil {
			return nil, err
		}
		batch = append(batch, tx)
	}
	match, err := g.GenerateMatch()
	if err != nil {
		return nil, err
	}
	return append(batch, match), nil
}

// TxPusher admits raw transactions
type TxPusher interface {
	PushTx(raw []byte) (string, error)
}

// StartTxFeeder feeds generated batches to app until ctx is cancelled.
// Returns a cancel function to stop the feeder.
func StartTxFeeder(ctx context.Context, app TxPusher, gen *TxGenerator, cfg TxFeederConfig, logger *zap.SugaredLogger) context.CancelFunc {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	feedCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		start := time.Now()
		lastReport := start
		total := 0
		logger.Infow("txfeeder_started", "batch", cfg.BatchSize, "interval", cfg.Interval, "accounts", len(gen.signers))

		for {
			select {
			case <-feedCtx.Done():
				elapsed := time.Since(start)
				logger.Infow("txfeeder_stopped", "txs", total, "tps", float64(total)/elapsed.Seconds())
				return

			case <-ticker.C:
				batch, err := gen.GenerateBatch(cfg.BatchSize)
				if err != nil {
					logger.Errorw("txfeeder_generate_failed", "err", err)
					continue
				}
				for _, tx := range batch {
					if _, err := app.PushTx(tx); err != nil {
						logger.Warnw("txfeeder_push_failed", "err", err)
					}
				}
				total += len(batch)

				if time.Since(lastReport) >= 10*time.Second {
					lastReport = time.Now()
					elapsed := time.Since(start)
					logger.Infow("txfeeder_stats", "txs", total, "tps", float64(total)/elapsed.Seconds())
				}
			}
		}
	}()

	return cancel
}
