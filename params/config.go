package params

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Node struct {
	DBPath  string
	LogFile string
	// MinBlockTime is the pause between two blocks of the single-node producer.
	//
	// Recommended values:
	//   - Devnet:  200ms (5 blocks/sec)
	//   - Tests:   anything; tests drive the producer with a manual clock
	MinBlockTime time.Duration
	// MaxBlockTxBytes bounds the transactions selected for one block
	MaxBlockTxBytes int64
	// SkipEmpty keeps the height unchanged while the mempool is empty
	SkipEmpty bool
}

type API struct {
	Addr string
}

type Chain struct {
	ChainID string
	// GenesisFile is read on first start; empty means the built-in devnet genesis
	GenesisFile string
	// Admin, CommissionRate and RewardInterval override the devnet genesis
	Admin          string
	CommissionRate string
	RewardInterval uint64
}

// TxGen drives the devnet order feeder
type TxGen struct {
	Enabled bool
	Mode    string // "default" or "high"
}

type Config struct {
	Node  Node
	API   API
	Chain Chain
	TxGen TxGen
}

func Default() Config {
	return Config{
		Node: Node{
			DBPath:          "data/chain",
			LogFile:         "data/node.log",
			MinBlockTime:    200 * time.Millisecond,
			MaxBlockTxBytes: 4 << 20,
			SkipEmpty:       true,
		},
		API: API{
			Addr: ":8080",
		},
		Chain: Chain{
			ChainID: "hyperswap-devnet",
		},
		TxGen: TxGen{
			Mode: "default",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Node.DBPath = getEnv("DB_PATH", cfg.Node.DBPath)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	if minBlock := os.Getenv("NODE_MIN_BLOCK_TIME_MS"); minBlock != "" {
		if ms, err := strconv.Atoi(minBlock); err == nil {
			cfg.Node.MinBlockTime = time.Duration(ms) * time.Millisecond
		}
	}
	if maxBytes := os.Getenv("MAX_BLOCK_TX_BYTES"); maxBytes != "" {
		if n, err := strconv.ParseInt(maxBytes, 10, 64); err == nil {
			cfg.Node.MaxBlockTxBytes = n
		}
	}
	if skip := os.Getenv("NODE_SKIP_EMPTY"); skip != "" {
		cfg.Node.SkipEmpty = skip == "true"
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)

	cfg.Chain.ChainID = getEnv("CHAIN_ID", cfg.Chain.ChainID)
	cfg.Chain.GenesisFile = getEnv("GENESIS_FILE", cfg.Chain.GenesisFile)
	cfg.Chain.Admin = getEnv("DEX_ADMIN", cfg.Chain.Admin)
	cfg.Chain.CommissionRate = getEnv("DEX_COMMISSION_RATE", cfg.Chain.CommissionRate)
	if interval := os.Getenv("DEX_REWARD_INTERVAL_SEC"); interval != "" {
		if sec, err := strconv.ParseUint(interval, 10, 64); err == nil {
			cfg.Chain.RewardInterval = sec
		}
	}

	cfg.TxGen.Enabled = os.Getenv("ENABLE_TXGEN") == "true"
	cfg.TxGen.Mode = getEnv("TXGEN_MODE", cfg.TxGen.Mode)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
