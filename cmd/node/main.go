package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/params"
	"github.com/uhyunpark/hyperswap/pkg/abci"
	"github.com/uhyunpark/hyperswap/pkg/api"
	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/dex"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/metrics"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	db, err := storage.Open(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("db_open_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer db.Close()

	// Devnet traders are funded at genesis so the feeder can trade on a fresh chain
	var traders []*crypto.Signer
	if cfg.TxGen.Enabled {
		feederCfg := feederConfig(cfg.TxGen.Mode)
		traders, err = dex.DevnetSigners(feederCfg.NumAccounts + 1)
		if err != nil {
			sugar.Fatalw("devnet_keys_failed", "err", err)
		}
	}

	genesis, err := loadGenesis(cfg.Chain, traders)
	if err != nil {
		sugar.Fatalw("genesis_failed", "err", err)
	}

	m := metrics.New()
	app, err := dex.NewApp(db, genesis, sugar, m)
	if err != nil {
		sugar.Fatalw("app_init_failed", "err", err)
	}
	state := app.State()

	walPath := filepath.Join(filepath.Dir(cfg.Node.DBPath), "blocks.wal")
	wal, err := storage.NewFileWAL(walPath)
	if err != nil {
		sugar.Fatalw("wal_open_failed", "path", walPath, "err", err)
	}
	defer wal.Close()

	apiServer := api.NewServer(app, sugar, m.Handler())

	producer := abci.NewBlockProducer(app, util.RealClock{}, state.Height)
	producer.MinBlockTime = cfg.Node.MinBlockTime
	producer.MaxTxBytes = cfg.Node.MaxBlockTxBytes
	producer.SkipEmpty = cfg.Node.SkipEmpty
	producer.Logger = sugar
	producer.WAL = wal
	// Broadcast every committed block and its events to WebSocket clients
	producer.OnCommit = apiServer.Hub().BroadcastBlock

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Transaction Feeder (optional) ----
	// Enable with: ENABLE_TXGEN=true TXGEN_MODE=default|high
	if cfg.TxGen.Enabled {
		lo, _ := app.Contract(dex.KindLimitOrder, "")
		book := [2]asset.AssetInfo{asset.Native("orai"), asset.Native("usdt")}
		gen, err := dex.NewTxGenerator(app.ChainID(), lo, book, traders, app.Nonce, time.Now().UnixNano())
		if err != nil {
			sugar.Fatalw("txgen_init_failed", "err", err)
		}
		cancelFeeder := dex.StartTxFeeder(ctx, app, gen, feederConfig(cfg.TxGen.Mode), sugar)
		defer cancelFeeder()
	} else {
		sugar.Info("txgen_disabled")
	}

	sugar.Infow("node_starting",
		"chain_id", app.ChainID(),
		"height", state.Height,
		"min_block_time_ms", cfg.Node.MinBlockTime.Milliseconds(),
		"api_addr", cfg.API.Addr)

	go func() {
		if err := apiServer.Start(ctx, cfg.API.Addr); err != nil && ctx.Err() == nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	if err := producer.Run(ctx); err != nil && ctx.Err() == nil {
		sugar.Errorw("producer_failed", "height", producer.Height(), "err", err)
		return
	}
	sugar.Infow("node_stopped", "height", producer.Height())
}

func feederConfig(mode string) dex.TxFeederConfig {
	if mode == "high" {
		return dex.HighLoadConfig()
	}
	return dex.DefaultFeederConfig()
}

// loadGenesis reads GENESIS_FILE or builds the devnet genesis, applying the
// DEX_* overrides. It is only used when the store is empty.
func loadGenesis(cfg params.Chain, traders []*crypto.Signer) (*dex.Genesis, error) {
	if cfg.GenesisFile != "" {
		return dex.LoadGenesis(cfg.GenesisFile)
	}

	admin := common.HexToAddress(cfg.Admin)
	var accounts []common.Address
	for _, s := range traders {
		accounts = append(accounts, s.Address())
	}
	if cfg.Admin == "" && len(traders) > 0 {
		admin = traders[0].Address()
		accounts = accounts[1:]
	}
	g := dex.DefaultGenesis(cfg.ChainID, admin, accounts...)
	g.GenesisTime = time.Now().Unix()
	if len(traders) > 0 {
		g.LimitOrder.Executors = []common.Address{traders[0].Address()}
	}

	if cfg.CommissionRate != "" {
		rate, err := numeric.ParseDec(cfg.CommissionRate)
		if err != nil {
			return nil, err
		}
		g.LimitOrder.CommissionRate = &rate
	}
	if cfg.RewardInterval > 0 {
		interval := cfg.RewardInterval
		g.LimitOrder.RewardInterval = &interval
	}
	return g, nil
}
