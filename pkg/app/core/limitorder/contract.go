// Package limitorder is the limit order contract: order book administration,
// order submission and cancellation, matching passes run by executors and the
// payout of executor rewards.
package limitorder

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/contract"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

const (
	ContractName    = "hyperswap_limit_order"
	ContractVersion = "0.1.0"

	// DefaultRewardInterval is the minimum gap in seconds between two reward
	// payouts of the same pair.
	DefaultRewardInterval uint64 = 3600
)

// DefaultCommissionRate is taken from both sides of every fill.
var DefaultCommissionRate = numeric.MustParseDec("0.001")

var keyConfig = []byte("config")

type Config struct {
	Name           string           `json:"name"`
	Version        string           `json:"version"`
	Admin          common.Address   `json:"admin"`
	CommissionRate numeric.Dec      `json:"commission_rate"`
	RewardInterval uint64           `json:"reward_interval"`
	Executors      []common.Address `json:"executors"`
}

// CanExecute reports whether addr may run matching passes.
func (c *Config) CanExecute(addr common.Address) bool {
	return c.Admin == addr || slices.Contains(c.Executors, addr)
}

type InstantiateMsg struct {
	Name           *string          `json:"name,omitempty"`
	Version        *string          `json:"version,omitempty"`
	Admin          *common.Address  `json:"admin,omitempty"`
	CommissionRate *numeric.Dec     `json:"commission_rate,omitempty"`
	RewardInterval *uint64          `json:"reward_interval,omitempty"`
	Executors      []common.Address `json:"executors,omitempty"`
}

// Contract is stateless; everything lives in the invocation store.
type Contract struct{}

var _ contract.Handler = Contract{}

func (Contract) Instantiate(ctx *contract.Context, msg InstantiateMsg) (*contract.Response, error) {
	cfg := Config{
		Name:           ContractName,
		Version:        ContractVersion,
		Admin:          ctx.Info.Sender,
		CommissionRate: DefaultCommissionRate,
		RewardInterval: DefaultRewardInterval,
		Executors:      msg.Executors,
	}
	if msg.Name != nil {
		cfg.Name = *msg.Name
	}
	if msg.Version != nil {
		cfg.Version = *msg.Version
	}
	if msg.Admin != nil {
		cfg.Admin = *msg.Admin
	}
	if msg.CommissionRate != nil {
		if msg.CommissionRate.GTE(numeric.DecOne()) {
			return nil, contract.ErrInvalidCommissionRate
		}
		cfg.CommissionRate = *msg.CommissionRate
	}
	if msg.RewardInterval != nil {
		cfg.RewardInterval = *msg.RewardInterval
	}
	if err := storeConfig(ctx.Store, &cfg); err != nil {
		return nil, err
	}
	return contract.NewResponse().
		AddAttribute("action", "instantiate").
		AddAttribute("admin", cfg.Admin.Hex()), nil
}

func storeConfig(kv storage.KVStore, cfg *Config) error {
	return storage.SetJSON(kv, keyConfig, cfg)
}

func readConfig(r storage.Reader) (*Config, error) {
	var cfg Config
	found, err := storage.GetJSON(r, keyConfig, &cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("limit order contract is not instantiated")
	}
	return &cfg, nil
}

func (Contract) Execute(ctx *contract.Context, msgType string, msg json.RawMessage) (*contract.Response, error) {
	switch msgType {
	case "submit_order":
		var m SubmitOrderMsg
		if err := contract.Decode(msg, &m); err != nil {
			return nil, err
		}
		return submitOrder(ctx, ctx.Info.Sender, m.Direction, m.Assets, func(offer asset.Asset) error {
			if !offer.Info.IsNative() {
				return fmt.Errorf("%w: token offers go through the token hook", contract.ErrMustProvideNativeToken)
			}
			return offer.AssertSentNativeTokenBalance(ctx.Info.Funds)
		})

	case "cancel_order":
		var m CancelOrderMsg
		if err := contract.Decode(msg, &m); err != nil {
			return nil, err
		}
		return cancelOrder(ctx, m)

	case "execute_order_book_pair":
		var m ExecuteOrderBookPairMsg
		if err := contract.Decode(msg, &m); err != nil {
			return nil, err
		}
		return executeOrderBookPair(ctx, m)

	case "create_order_book_pair":
		var m CreateOrderBookPairMsg
		if err := contract.Decode(msg, &m); err != nil {
			return nil, err
		}
		return createOrderBookPair(ctx, m)

	case "remove_order_book_pair":
		var m RemoveOrderBookPairMsg
		if err := contract.Decode(msg, &m); err != nil {
			return nil, err
		}
		return removeOrderBookPair(ctx, m)

	case "distribute_reward":
		var m DistributeRewardMsg
		if err := contract.Decode(msg, &m); err != nil {
			return nil, err
		}
		return distributeReward(ctx, m)

	case "update_admin":
		var m UpdateAdminMsg
		if err := contract.Decode(msg, &m); err != nil {
			return nil, err
		}
		return updateAdmin(ctx, m)

	case "update_config":
		var m UpdateConfigMsg
		if err := contract.Decode(msg, &m); err != nil {
			return nil, err
		}
		return updateConfig(ctx, m)
	}
	return nil, fmt.Errorf("%w: %s", contract.ErrUnknownMessage, msgType)
}

// Receive handles token offers: the token is already escrowed and must be
// exactly the order's offer.
func (Contract) Receive(ctx *contract.Context, recv contract.TokenReceive, msgType string, msg json.RawMessage) (*contract.Response, error) {
	if msgType != "submit_order" {
		return nil, fmt.Errorf("%w: %s", contract.ErrInvalidHookMessage, msgType)
	}
	var m SubmitOrderMsg
	if err := contract.Decode(msg, &m); err != nil {
		return nil, err
	}
	return submitOrder(ctx, recv.Sender, m.Direction, m.Assets, func(offer asset.Asset) error {
		if !offer.Info.Equal(recv.Token.Info) || !offer.Amount.Equal(recv.Token.Amount) {
			return fmt.Errorf("%w: escrowed %s, order offers %s", contract.ErrAssetMismatch, recv.Token, offer)
		}
		return nil
	})
}

func requireAdmin(ctx *contract.Context) (*Config, error) {
	cfg, err := readConfig(ctx.Store)
	if err != nil {
		return nil, err
	}
	if cfg.Admin != ctx.Info.Sender {
		return nil, contract.ErrUnauthorized
	}
	return cfg, nil
}
