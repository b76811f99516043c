package amm

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/contract"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

var keyPairInfo = []byte("pair_info")

type PairInfo struct {
	AssetInfos     [2]asset.AssetInfo `json:"asset_infos"`
	ContractAddr   common.Address     `json:"contract_addr"`
	CommissionRate numeric.Dec        `json:"commission_rate"`
}

type InstantiateMsg struct {
	AssetInfos     [2]asset.AssetInfo `json:"asset_infos"`
	CommissionRate *numeric.Dec       `json:"commission_rate,omitempty"`
}

type SwapMsg struct {
	OfferAsset  asset.Asset     `json:"offer_asset"`
	BeliefPrice *numeric.Dec    `json:"belief_price,omitempty"`
	MaxSpread   *numeric.Dec    `json:"max_spread,omitempty"`
	To          *common.Address `json:"to,omitempty"`
}

// SwapHookMsg accompanies a token escrowed into the pair.
type SwapHookMsg struct {
	BeliefPrice *numeric.Dec    `json:"belief_price,omitempty"`
	MaxSpread   *numeric.Dec    `json:"max_spread,omitempty"`
	To          *common.Address `json:"to,omitempty"`
}

type PoolResponse struct {
	Assets [2]asset.Asset `json:"assets"`
}

type SimulationResponse struct {
	ReturnAmount     numeric.Uint128 `json:"return_amount"`
	SpreadAmount     numeric.Uint128 `json:"spread_amount"`
	CommissionAmount numeric.Uint128 `json:"commission_amount"`
}

type ReverseSimulationResponse struct {
	OfferAmount      numeric.Uint128 `json:"offer_amount"`
	SpreadAmount     numeric.Uint128 `json:"spread_amount"`
	CommissionAmount numeric.Uint128 `json:"commission_amount"`
}

// Pair is a constant-product pool whose reserves are the pair contract's own
// balances of its two assets.
type Pair struct{}

func (Pair) Instantiate(ctx *contract.Context, msg InstantiateMsg) (*contract.Response, error) {
	for _, info := range msg.AssetInfos {
		if err := info.Validate(); err != nil {
			return nil, err
		}
	}
	if msg.AssetInfos[0].Equal(msg.AssetInfos[1]) {
		return nil, fmt.Errorf("%w: pair assets must differ", contract.ErrInvalidMessage)
	}
	rate := DefaultCommissionRate
	if msg.CommissionRate != nil {
		rate = *msg.CommissionRate
	}
	if rate.GTE(numeric.DecOne()) {
		return nil, contract.ErrInvalidCommissionRate
	}
	info := PairInfo{
		AssetInfos:     msg.AssetInfos,
		ContractAddr:   ctx.Env.ContractAddress,
		CommissionRate: rate,
	}
	if err := storage.SetJSON(ctx.Store, keyPairInfo, info); err != nil {
		return nil, err
	}
	return contract.NewResponse().
		AddAttribute("action", "instantiate_pair").
		AddAttribute("pair", info.AssetInfos[0].String()+"-"+info.AssetInfos[1].String()), nil
}

func (Pair) Execute(ctx *contract.Context, msgType string, msg json.RawMessage) (*contract.Response, error) {
	switch msgType {
	case "swap":
		var m SwapMsg
		if err := contract.Decode(msg, &m); err != nil {
			return nil, err
		}
		if !m.OfferAsset.Info.IsNative() {
			return nil, fmt.Errorf("%w: token offers go through the token hook", contract.ErrMustProvideNativeToken)
		}
		if err := m.OfferAsset.AssertSentNativeTokenBalance(ctx.Info.Funds); err != nil {
			return nil, err
		}
		to := ctx.Info.Sender
		if m.To != nil {
			to = *m.To
		}
		return swap(ctx, ctx.Info.Sender, m.OfferAsset, m.BeliefPrice, m.MaxSpread, to)
	}
	return nil, fmt.Errorf("%w: %s", contract.ErrUnknownMessage, msgType)
}

func (Pair) Receive(ctx *contract.Context, recv contract.TokenReceive, msgType string, msg json.RawMessage) (*contract.Response, error) {
	if msgType != "swap" {
		return nil, fmt.Errorf("%w: %s", contract.ErrInvalidHookMessage, msgType)
	}
	var m SwapHookMsg
	if err := contract.Decode(msg, &m); err != nil {
		return nil, err
	}
	to := recv.Sender
	if m.To != nil {
		to = *m.To
	}
	return swap(ctx, recv.Sender, recv.Token, m.BeliefPrice, m.MaxSpread, to)
}

func swap(ctx *contract.Context, sender common.Address, offer asset.Asset, beliefPrice, maxSpread *numeric.Dec, to common.Address) (*contract.Response, error) {
	if offer.Amount.IsZero() {
		return nil, contract.ErrAssetMustNotBeZero
	}
	info, err := loadPairInfo(ctx.Store)
	if err != nil {
		return nil, err
	}
	pools, err := info.pools(ctx.Querier)
	if err != nil {
		return nil, err
	}

	var offerPool, askPool asset.Asset
	switch {
	case offer.Info.Equal(pools[0].Info):
		offerPool, askPool = pools[0], pools[1]
	case offer.Info.Equal(pools[1].Info):
		offerPool, askPool = pools[1], pools[0]
	default:
		return nil, fmt.Errorf("%w: %s is not in this pair", contract.ErrAssetMismatch, offer.Info)
	}

	// The offer is already escrowed in the pool balance.
	offerReserve, err := offerPool.Amount.Sub(offer.Amount)
	if err != nil {
		return nil, err
	}

	ret, spread, commission, err := ComputeSwap(offerReserve, askPool.Amount, offer.Amount, info.CommissionRate)
	if err != nil {
		return nil, err
	}
	if err := AssertMaxSpread(beliefPrice, maxSpread, offer.Amount, ret, spread); err != nil {
		return nil, err
	}

	return contract.NewResponse().
		AddTransfer(to, asset.Asset{Info: askPool.Info, Amount: ret}).
		AddAttribute("action", "swap").
		AddAttribute("sender", sender.Hex()).
		AddAttribute("receiver", to.Hex()).
		AddAttribute("offer_asset", offer.Info.String()).
		AddAttribute("ask_asset", askPool.Info.String()).
		AddAttribute("offer_amount", offer.Amount).
		AddAttribute("return_amount", ret).
		AddAttribute("spread_amount", spread).
		AddAttribute("commission_amount", commission), nil
}

func loadPairInfo(r storage.Reader) (*PairInfo, error) {
	var info PairInfo
	found, err := storage.GetJSON(r, keyPairInfo, &info)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, contract.ErrPairNotFound
	}
	return &info, nil
}

func (p *PairInfo) pools(q asset.BalanceQuerier) ([2]asset.Asset, error) {
	var out [2]asset.Asset
	for i, info := range p.AssetInfos {
		bal, err := q.Balance(info, p.ContractAddr)
		if err != nil {
			return out, fmt.Errorf("failed to query pool balance: %w", err)
		}
		out[i] = asset.Asset{Info: info, Amount: bal}
	}
	return out, nil
}

type simulationParams struct {
	OfferAsset asset.Asset `json:"offer_asset"`
}

type reverseSimulationParams struct {
	AskAsset asset.Asset `json:"ask_asset"`
}

func (Pair) Query(r storage.Reader, q asset.BalanceQuerier, query string, params json.RawMessage) (any, error) {
	info, err := loadPairInfo(r)
	if err != nil {
		return nil, err
	}
	switch query {
	case "pair":
		return info, nil
	case "pool":
		pools, err := info.pools(q)
		if err != nil {
			return nil, err
		}
		return PoolResponse{Assets: pools}, nil
	case "simulation":
		var p simulationParams
		if err := contract.Decode(params, &p); err != nil {
			return nil, err
		}
		offerPool, askPool, err := info.orient(q, p.OfferAsset.Info)
		if err != nil {
			return nil, err
		}
		ret, spread, commission, err := ComputeSwap(offerPool, askPool, p.OfferAsset.Amount, info.CommissionRate)
		if err != nil {
			return nil, err
		}
		return SimulationResponse{ReturnAmount: ret, SpreadAmount: spread, CommissionAmount: commission}, nil
	case "reverse_simulation":
		var p reverseSimulationParams
		if err := contract.Decode(params, &p); err != nil {
			return nil, err
		}
		askPool, offerPool, err := info.orient(q, p.AskAsset.Info)
		if err != nil {
			return nil, err
		}
		offer, spread, commission, err := ComputeOfferAmount(offerPool, askPool, p.AskAsset.Amount, info.CommissionRate)
		if err != nil {
			return nil, err
		}
		return ReverseSimulationResponse{OfferAmount: offer, SpreadAmount: spread, CommissionAmount: commission}, nil
	}
	return nil, fmt.Errorf("%w: %s", contract.ErrUnknownMessage, query)
}

// orient returns (balance of first, balance of the other asset).
func (p *PairInfo) orient(q asset.BalanceQuerier, first asset.AssetInfo) (numeric.Uint128, numeric.Uint128, error) {
	pools, err := p.pools(q)
	if err != nil {
		return numeric.Uint128{}, numeric.Uint128{}, err
	}
	switch {
	case first.Equal(pools[0].Info):
		return pools[0].Amount, pools[1].Amount, nil
	case first.Equal(pools[1].Info):
		return pools[1].Amount, pools[0].Amount, nil
	}
	return numeric.Uint128{}, numeric.Uint128{}, fmt.Errorf("%w: %s is not in this pair", contract.ErrAssetMismatch, first)
}

var _ contract.Handler = Pair{}
