package orderbook

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

// Fill is one trade between a buy and a sell order.
type Fill struct {
	BuyOrderID  uint64          `json:"buy_order_id"`
	SellOrderID uint64          `json:"sell_order_id"`
	Price       numeric.Dec     `json:"price"`
	BaseAmount  numeric.Uint128 `json:"base_amount"`
	QuoteAmount numeric.Uint128 `json:"quote_amount"`
	// Amounts credited after commission.
	BuyerReceive  numeric.Uint128 `json:"buyer_receive"`
	SellerReceive numeric.Uint128 `json:"seller_receive"`
}

// MatchResult is the outcome of one matching pass.
type MatchResult struct {
	Matched            bool
	BuyPrice           numeric.Dec
	SellPrice          numeric.Dec
	Fills              []Fill
	Transfers          []asset.Transfer
	TotalMatchedOrders int
	BaseCommission     numeric.Uint128
	QuoteCommission    numeric.Uint128
}

type matcher struct {
	kv     storage.KVStore
	ob     *OrderBook
	rate   numeric.Dec
	result *MatchResult
}

// ExecutePair runs one matching pass on the book: the orders resting at the
// winning buy and sell ticks are matched in arrival order, commission is
// taken from both credited amounts and accrued to executor. limit, when set,
// caps the orders loaded per side. A book without a cross is left untouched.
func (ob *OrderBook) ExecutePair(kv storage.KVStore, executor common.Address, commissionRate numeric.Dec, limit *uint32) (*MatchResult, error) {
	result := &MatchResult{
		BaseCommission:  numeric.ZeroUint128(),
		QuoteCommission: numeric.ZeroUint128(),
	}
	buyPrice, sellPrice, ok, err := ob.FindMatchPrice(kv)
	if err != nil || !ok {
		return result, err
	}
	result.Matched = true
	result.BuyPrice, result.SellPrice = buyPrice, sellPrice

	buys, err := ob.ordersAt(kv, Buy, buyPrice, limit)
	if err != nil {
		return nil, err
	}
	sells, err := ob.ordersAt(kv, Sell, sellPrice, limit)
	if err != nil {
		return nil, err
	}
	for _, o := range append(append([]*Order{}, buys...), sells...) {
		o.Status = StatusFilling
		if err := ob.UpdateOrder(kv, o); err != nil {
			return nil, err
		}
	}

	m := &matcher{kv: kv, ob: ob, rate: commissionRate, result: result}
	onePrice := buyPrice.Equal(sellPrice)

	for _, buy := range buys {
		for _, sell := range sells {
			if buy.Status == StatusFulfilled {
				break
			}
			if sell.Status == StatusFulfilled {
				continue
			}
			price := buyPrice
			if !onePrice && sell.OrderID < buy.OrderID {
				price = sellPrice
			}
			if err := m.match(buy, sell, price); err != nil {
				return nil, err
			}
		}
	}

	for _, o := range append(buys, sells...) {
		if o.Status == StatusFulfilled {
			continue
		}
		o.Status = StatusOpen
		if err := ob.UpdateOrder(kv, o); err != nil {
			return nil, err
		}
	}

	if err := ob.accrueReward(kv, executor, result.BaseCommission, result.QuoteCommission); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *matcher) match(buy, sell *Order, price numeric.Dec) error {
	// A price below the Dec resolution cannot trade; the order carrying it
	// is closed with a refund.
	if price.IsZero() {
		if sell.Price().IsZero() {
			return m.close(sell)
		}
		return m.close(buy)
	}

	buyOfferLeft := buy.RemainingOffer()
	affordable, err := buyOfferLeft.DivDec(price)
	if err != nil {
		return err
	}
	if affordable.IsZero() || buy.RemainingAsk().IsZero() {
		return m.close(buy)
	}

	sellOfferLeft := sell.RemainingOffer()
	proceeds, err := sellOfferLeft.MulDec(price)
	if err != nil {
		return err
	}
	if proceeds.IsZero() {
		return m.close(sell)
	}

	baseQty := numeric.MinUint128(numeric.MinUint128(buy.RemainingAsk(), sellOfferLeft), affordable)
	quoteQty, err := baseQty.MulDec(price)
	if err != nil {
		return err
	}
	if quoteQty.GT(buyOfferLeft) {
		quoteQty = buyOfferLeft
		if baseQty, err = quoteQty.DivDec(price); err != nil {
			return err
		}
	}
	if quoteQty.IsZero() || baseQty.IsZero() {
		return m.close(buy)
	}

	if err := buy.Fill(baseQty, quoteQty); err != nil {
		return fmt.Errorf("fill buy order: %w", err)
	}
	if err := sell.Fill(quoteQty, baseQty); err != nil {
		return fmt.Errorf("fill sell order: %w", err)
	}

	baseFee, err := baseQty.MulDec(m.rate)
	if err != nil {
		return err
	}
	quoteFee, err := quoteQty.MulDec(m.rate)
	if err != nil {
		return err
	}
	buyerReceive, err := baseQty.Sub(baseFee)
	if err != nil {
		return err
	}
	sellerReceive, err := quoteQty.Sub(quoteFee)
	if err != nil {
		return err
	}
	if m.result.BaseCommission, err = m.result.BaseCommission.Add(baseFee); err != nil {
		return err
	}
	if m.result.QuoteCommission, err = m.result.QuoteCommission.Add(quoteFee); err != nil {
		return err
	}

	m.pay(buy.BidderAddr, m.ob.BaseCoinInfo, buyerReceive)
	m.pay(sell.BidderAddr, m.ob.QuoteCoinInfo, sellerReceive)
	m.result.Fills = append(m.result.Fills, Fill{
		BuyOrderID:    buy.OrderID,
		SellOrderID:   sell.OrderID,
		Price:         price,
		BaseAmount:    baseQty,
		QuoteAmount:   quoteQty,
		BuyerReceive:  buyerReceive,
		SellerReceive: sellerReceive,
	})

	for _, o := range [2]*Order{buy, sell} {
		if o.Status == StatusFulfilled {
			if err := m.settle(o); err != nil {
				return err
			}
		}
	}
	return nil
}

// close marks an order that can no longer trade as fulfilled and settles it.
func (m *matcher) close(o *Order) error {
	o.Status = StatusFulfilled
	return m.settle(o)
}

// settle refunds the unspent offer of a fulfilled order and drops it from
// the book.
func (m *matcher) settle(o *Order) error {
	m.pay(o.BidderAddr, m.ob.OfferInfo(o.Direction), o.RemainingOffer())
	m.result.TotalMatchedOrders++
	return m.ob.RemoveOrder(m.kv, o)
}

func (m *matcher) pay(to common.Address, info asset.AssetInfo, amount numeric.Uint128) {
	if amount.IsZero() {
		return
	}
	m.result.Transfers = append(m.result.Transfers, asset.Transfer{
		Recipient: to,
		Asset:     asset.Asset{Info: info, Amount: amount},
	})
}
