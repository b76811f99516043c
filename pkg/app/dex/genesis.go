package dex

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/amm"
	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/bank"
	"github.com/uhyunpark/hyperswap/pkg/app/core/contract"
	"github.com/uhyunpark/hyperswap/pkg/app/core/converter"
	"github.com/uhyunpark/hyperswap/pkg/app/core/limitorder"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

// Contract kinds
const (
	KindLimitOrder = "limit_order"
	KindConverter  = "converter"
	KindPair       = "pair"
)

// ContractInfo is one entry of the contract registry
type ContractInfo struct {
	Address common.Address `json:"address"`
	Kind    string         `json:"kind"`
	Label   string         `json:"label"`
}

type GenesisPair struct {
	Label          string             `json:"label"`
	AssetInfos     [2]asset.AssetInfo `json:"asset_infos"`
	CommissionRate *numeric.Dec       `json:"commission_rate,omitempty"`
	// Reserves are minted to the pair at genesis
	Reserves [2]asset.Asset `json:"reserves"`
}

type GenesisAccount struct {
	Address common.Address `json:"address"`
	Coins   []asset.Asset  `json:"coins"`
}

// Genesis is the initial chain state. ConverterReserves and pair reserves
// are minted to those contracts so they can pay out.
type Genesis struct {
	ChainID           string                              `json:"chain_id"`
	GenesisTime       int64                               `json:"genesis_time"`
	Admin             common.Address                      `json:"admin"`
	LimitOrder        limitorder.InstantiateMsg           `json:"limit_order"`
	OrderBooks        []limitorder.CreateOrderBookPairMsg `json:"order_books"`
	ConverterPairs    []converter.UpdatePairMsg           `json:"converter_pairs"`
	ConverterReserves []asset.Asset                       `json:"converter_reserves"`
	Pairs             []GenesisPair                       `json:"pairs"`
	Accounts          []GenesisAccount                    `json:"accounts"`
}

// LoadGenesis reads a genesis document from a JSON file
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("failed to parse genesis: %w", err)
	}
	return &g, nil
}

// TokenAddress is the ledger address of a devnet token
func TokenAddress(symbol string) common.Address {
	return crypto.ContractAddress("token/" + symbol)
}

// DefaultGenesis is a devnet with one orai/usdt book, an orai/usdt pool and a
// usdt 6 → 18 decimal converter. Every account gets the same starting coins.
func DefaultGenesis(chainID string, admin common.Address, accounts ...common.Address) *Genesis {
	orai := asset.Native("orai")
	usdt := asset.Native("usdt")
	usdt18 := asset.TokenAt(TokenAddress("usdt18"))
	million := numeric.MustParseUint128("1000000000000")

	g := &Genesis{
		ChainID: chainID,
		Admin:   admin,
		OrderBooks: []limitorder.CreateOrderBookPairMsg{{
			BaseCoinInfo:       orai,
			QuoteCoinInfo:      usdt,
			MinQuoteCoinAmount: numeric.NewUint128(10),
		}},
		ConverterPairs: []converter.UpdatePairMsg{{
			From: converter.TokenInfo{Info: usdt, Decimals: 6},
			To:   converter.TokenInfo{Info: usdt18, Decimals: 18},
		}},
		ConverterReserves: []asset.Asset{
			{Info: usdt, Amount: million},
			{Info: usdt18, Amount: numeric.MustParseUint128("1000000000000000000000000000000")},
		},
		Pairs: []GenesisPair{{
			Label:      "orai-usdt",
			AssetInfos: [2]asset.AssetInfo{orai, usdt},
			Reserves: [2]asset.Asset{
				{Info: orai, Amount: million},
				{Info: usdt, Amount: million},
			},
		}},
	}
	for _, addr := range append([]common.Address{admin}, accounts...) {
		g.Accounts = append(g.Accounts, GenesisAccount{
			Address: addr,
			Coins:   []asset.Asset{{Info: orai, Amount: million}, {Info: usdt, Amount: million}},
		})
	}
	return g
}

// initChain writes genesis state into txn and returns the contract registry
func initChain(txn *storage.Txn, g *Genesis) ([]ContractInfo, error) {
	ledger := bank.New(storage.Prefix(txn, prefixBank))
	env := func(addr common.Address) contract.Env {
		return contract.Env{BlockHeight: 0, BlockTime: uint64(g.GenesisTime), ContractAddress: addr}
	}
	ctxFor := func(addr common.Address) *contract.Context {
		return &contract.Context{
			Store:   storage.Prefix(txn, contractPrefix(addr)),
			Env:     env(addr),
			Info:    contract.MessageInfo{Sender: g.Admin},
			Querier: ledger,
		}
	}
	var registry []ContractInfo

	// Limit order contract and its books
	loAddr := crypto.ContractAddress(KindLimitOrder)
	lo := limitorder.Contract{}
	if _, err := lo.Instantiate(ctxFor(loAddr), g.LimitOrder); err != nil {
		return nil, fmt.Errorf("instantiate limit order: %w", err)
	}
	for _, ob := range g.OrderBooks {
		msg, _ := json.Marshal(ob)
		if _, err := lo.Execute(ctxFor(loAddr), "create_order_book_pair", msg); err != nil {
			return nil, fmt.Errorf("create order book %s/%s: %w", ob.BaseCoinInfo, ob.QuoteCoinInfo, err)
		}
	}
	registry = append(registry, ContractInfo{Address: loAddr, Kind: KindLimitOrder, Label: KindLimitOrder})

	// Converter
	convAddr := crypto.ContractAddress(KindConverter)
	conv := converter.Contract{}
	if _, err := conv.Instantiate(ctxFor(convAddr)); err != nil {
		return nil, fmt.Errorf("instantiate converter: %w", err)
	}
	for _, p := range g.ConverterPairs {
		msg, _ := json.Marshal(p)
		if _, err := conv.Execute(ctxFor(convAddr), "update_pair", msg); err != nil {
			return nil, fmt.Errorf("register converter pair %s: %w", p.From.Info, err)
		}
	}
	for _, r := range g.ConverterReserves {
		if err := ledger.Mint(convAddr, r); err != nil {
			return nil, fmt.Errorf("seed converter: %w", err)
		}
	}
	registry = append(registry, ContractInfo{Address: convAddr, Kind: KindConverter, Label: KindConverter})

	// AMM pairs, seeded with reserves
	for _, p := range g.Pairs {
		addr := crypto.ContractAddress(KindPair + "/" + p.Label)
		msg := amm.InstantiateMsg{AssetInfos: p.AssetInfos, CommissionRate: p.CommissionRate}
		if _, err := (amm.Pair{}).Instantiate(ctxFor(addr), msg); err != nil {
			return nil, fmt.Errorf("instantiate pair %s: %w", p.Label, err)
		}
		for _, r := range p.Reserves {
			if err := ledger.Mint(addr, r); err != nil {
				return nil, fmt.Errorf("seed pair %s: %w", p.Label, err)
			}
		}
		registry = append(registry, ContractInfo{Address: addr, Kind: KindPair, Label: p.Label})
	}

	for _, acc := range g.Accounts {
		for _, c := range acc.Coins {
			if err := ledger.Mint(acc.Address, c); err != nil {
				return nil, fmt.Errorf("fund %s: %w", acc.Address.Hex(), err)
			}
		}
	}

	if err := storage.SetJSON(txn, keyContracts, registry); err != nil {
		return nil, err
	}
	return registry, nil
}
