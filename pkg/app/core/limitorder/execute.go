package limitorder

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/contract"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
)

type SubmitOrderMsg struct {
	Direction orderbook.Direction `json:"direction"`
	Assets    [2]asset.Asset      `json:"assets"`
}

type CancelOrderMsg struct {
	OrderID    uint64             `json:"order_id"`
	AssetInfos [2]asset.AssetInfo `json:"asset_infos"`
}

type ExecuteOrderBookPairMsg struct {
	AssetInfos [2]asset.AssetInfo `json:"asset_infos"`
	Limit      *uint32            `json:"limit,omitempty"`
}

type CreateOrderBookPairMsg struct {
	BaseCoinInfo       asset.AssetInfo `json:"base_coin_info"`
	QuoteCoinInfo      asset.AssetInfo `json:"quote_coin_info"`
	Spread             *numeric.Dec    `json:"spread,omitempty"`
	MinQuoteCoinAmount numeric.Uint128 `json:"min_quote_coin_amount"`
}

type RemoveOrderBookPairMsg struct {
	AssetInfos [2]asset.AssetInfo `json:"asset_infos"`
}

type DistributeRewardMsg struct {
	AssetInfos [][2]asset.AssetInfo `json:"asset_infos"`
}

type UpdateAdminMsg struct {
	Admin common.Address `json:"admin"`
}

type UpdateConfigMsg struct {
	CommissionRate *numeric.Dec      `json:"commission_rate,omitempty"`
	RewardInterval *uint64           `json:"reward_interval,omitempty"`
	Executors      *[]common.Address `json:"executors,omitempty"`
}

// submitOrder places an order. The assets may arrive in either order; they
// are arranged into (offer, ask) from the book and the direction. paid checks
// that the offer has been escrowed.
func submitOrder(ctx *contract.Context, bidder common.Address, direction orderbook.Direction, assets [2]asset.Asset, paid func(offer asset.Asset) error) (*contract.Response, error) {
	if assets[0].Amount.IsZero() || assets[1].Amount.IsZero() {
		return nil, contract.ErrAssetMustNotBeZero
	}
	ob, err := orderbook.ReadOrderBook(ctx.Store, asset.PairKey([2]asset.AssetInfo{assets[0].Info, assets[1].Info}))
	if err != nil {
		return nil, err
	}

	base, quote := assets[0], assets[1]
	if !base.Info.Equal(ob.BaseCoinInfo) {
		base, quote = quote, base
	}
	offer, ask := quote, base
	if direction == orderbook.Sell {
		offer, ask = base, quote
	}

	if quote.Amount.LT(ob.MinQuoteCoinAmount) {
		return nil, fmt.Errorf("%w: %s < %s %s", contract.ErrTooSmallQuoteAsset, quote.Amount, ob.MinQuoteCoinAmount, quote.Info)
	}
	order := &orderbook.Order{
		Direction:         direction,
		BidderAddr:        bidder,
		OfferAmount:       offer.Amount,
		AskAmount:         ask.Amount,
		FilledOfferAmount: numeric.ZeroUint128(),
		FilledAskAmount:   numeric.ZeroUint128(),
		Status:            orderbook.StatusOpen,
	}
	if order.Price().IsZero() {
		return nil, fmt.Errorf("%w: %s for %s", contract.ErrPriceBelowResolution, offer, ask)
	}
	if err := paid(offer); err != nil {
		return nil, err
	}

	id, err := orderbook.NextOrderID(ctx.Store)
	if err != nil {
		return nil, err
	}
	order.OrderID = id
	if err := ob.InsertOrder(ctx.Store, order); err != nil {
		return nil, err
	}

	return contract.NewResponse().
		AddAttribute("action", "submit_order").
		AddAttribute("order_id", id).
		AddAttribute("direction", direction).
		AddAttribute("bidder_addr", bidder.Hex()).
		AddAttribute("offer_asset", offer).
		AddAttribute("ask_asset", ask), nil
}

func cancelOrder(ctx *contract.Context, m CancelOrderMsg) (*contract.Response, error) {
	ob, err := orderbook.ReadOrderBook(ctx.Store, asset.PairKey(m.AssetInfos))
	if err != nil {
		return nil, err
	}
	order, err := ob.ReadOrder(ctx.Store, m.OrderID)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case orderbook.StatusFulfilled:
		return nil, fmt.Errorf("%w: %d", contract.ErrOrderFulfilled, order.OrderID)
	case orderbook.StatusFilling:
		return nil, fmt.Errorf("%w: %d", contract.ErrOrderIsFilling, order.OrderID)
	}
	if order.BidderAddr != ctx.Info.Sender {
		return nil, contract.ErrUnauthorized
	}

	refund := asset.Asset{Info: ob.OfferInfo(order.Direction), Amount: order.RemainingOffer()}
	order.Status = orderbook.StatusCancel
	if err := ob.RemoveOrder(ctx.Store, order); err != nil {
		return nil, err
	}
	return contract.NewResponse().
		AddTransfer(order.BidderAddr, refund).
		AddAttribute("action", "cancel_order").
		AddAttribute("order_id", order.OrderID).
		AddAttribute("bidder_refund", refund), nil
}

func executeOrderBookPair(ctx *contract.Context, m ExecuteOrderBookPairMsg) (*contract.Response, error) {
	cfg, err := readConfig(ctx.Store)
	if err != nil {
		return nil, err
	}
	if !cfg.CanExecute(ctx.Info.Sender) {
		return nil, contract.ErrUnauthorized
	}
	ob, err := orderbook.ReadOrderBook(ctx.Store, asset.PairKey(m.AssetInfos))
	if err != nil {
		return nil, err
	}

	res, err := ob.ExecutePair(ctx.Store, ctx.Info.Sender, cfg.CommissionRate, m.Limit)
	if err != nil {
		return nil, err
	}
	resp := contract.NewResponse()
	if !res.Matched {
		return resp, nil
	}
	resp.Transfers = res.Transfers
	resp.AddAttribute("action", "execute_orderbook_pair").
		AddAttribute("pair", ob.String()).
		AddAttribute("executor", ctx.Info.Sender.Hex())
	for _, f := range res.Fills {
		resp.AddAttribute("fill", fmt.Sprintf("%d/%d %s %s@%s", f.BuyOrderID, f.SellOrderID, f.BaseAmount, f.QuoteAmount, f.Price))
	}
	return resp.
		AddAttribute("total_fills", len(res.Fills)).
		AddAttribute("base_commission", res.BaseCommission).
		AddAttribute("quote_commission", res.QuoteCommission).
		AddAttribute("total_matched_orders", res.TotalMatchedOrders), nil
}

func createOrderBookPair(ctx *contract.Context, m CreateOrderBookPairMsg) (*contract.Response, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	for _, info := range []asset.AssetInfo{m.BaseCoinInfo, m.QuoteCoinInfo} {
		if err := info.Validate(); err != nil {
			return nil, err
		}
	}
	if m.BaseCoinInfo.Equal(m.QuoteCoinInfo) {
		return nil, fmt.Errorf("%w: base and quote must differ", contract.ErrInvalidMessage)
	}
	if m.Spread != nil && m.Spread.GTE(numeric.DecOne()) {
		return nil, fmt.Errorf("%w: spread %s must be below 1", contract.ErrInvalidMessage, m.Spread)
	}

	ob := &orderbook.OrderBook{
		BaseCoinInfo:       m.BaseCoinInfo,
		QuoteCoinInfo:      m.QuoteCoinInfo,
		Spread:             m.Spread,
		MinQuoteCoinAmount: m.MinQuoteCoinAmount,
	}
	if _, err := orderbook.ReadOrderBook(ctx.Store, ob.PairKey()); err == nil {
		return nil, fmt.Errorf("%w: %s", contract.ErrOrderBookAlreadyExists, ob)
	}
	if err := orderbook.StoreOrderBook(ctx.Store, ob); err != nil {
		return nil, err
	}
	return contract.NewResponse().
		AddAttribute("action", "create_orderbook_pair").
		AddAttribute("pair", ob.String()), nil
}

func removeOrderBookPair(ctx *contract.Context, m RemoveOrderBookPairMsg) (*contract.Response, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	ob, err := orderbook.ReadOrderBook(ctx.Store, asset.PairKey(m.AssetInfos))
	if err != nil {
		return nil, err
	}
	transfers, removed, err := ob.Drain(ctx.Store)
	if err != nil {
		return nil, err
	}
	resp := contract.NewResponse()
	resp.Transfers = transfers
	return resp.
		AddAttribute("action", "remove_orderbook_pair").
		AddAttribute("pair", ob.String()).
		AddAttribute("total_removed_orders", removed), nil
}

func distributeReward(ctx *contract.Context, m DistributeRewardMsg) (*contract.Response, error) {
	cfg, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	resp := contract.NewResponse().AddAttribute("action", "distribute_reward")
	for _, infos := range m.AssetInfos {
		ob, err := orderbook.ReadOrderBook(ctx.Store, asset.PairKey(infos))
		if err != nil {
			return nil, err
		}
		transfers, paid, err := ob.DistributeRewards(ctx.Store, ctx.Env.BlockTime, cfg.RewardInterval)
		if err != nil {
			return nil, err
		}
		if !paid {
			resp.AddAttribute("skipped", ob.String())
			continue
		}
		resp.Transfers = append(resp.Transfers, transfers...)
		resp.AddAttribute("distributed", ob.String())
	}
	return resp, nil
}

func updateAdmin(ctx *contract.Context, m UpdateAdminMsg) (*contract.Response, error) {
	cfg, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	cfg.Admin = m.Admin
	if err := storeConfig(ctx.Store, cfg); err != nil {
		return nil, err
	}
	return contract.NewResponse().
		AddAttribute("action", "update_admin").
		AddAttribute("admin", m.Admin.Hex()), nil
}

func updateConfig(ctx *contract.Context, m UpdateConfigMsg) (*contract.Response, error) {
	cfg, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if m.CommissionRate != nil {
		if m.CommissionRate.GTE(numeric.DecOne()) {
			return nil, contract.ErrInvalidCommissionRate
		}
		cfg.CommissionRate = *m.CommissionRate
	}
	if m.RewardInterval != nil {
		cfg.RewardInterval = *m.RewardInterval
	}
	if m.Executors != nil {
		cfg.Executors = *m.Executors
	}
	if err := storeConfig(ctx.Store, cfg); err != nil {
		return nil, err
	}
	return contract.NewResponse().AddAttribute("action", "update_config"), nil
}
