package limitorder

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/contract"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

// OrderBy is "asc" (default) or "desc".
type OrderBy string

const (
	Ascending  OrderBy = "asc"
	Descending OrderBy = "desc"
)

type PairParams struct {
	AssetInfos [2]asset.AssetInfo `json:"asset_infos"`
}

type OrderParams struct {
	OrderID    uint64             `json:"order_id"`
	AssetInfos [2]asset.AssetInfo `json:"asset_infos"`
}

type OrdersParams struct {
	AssetInfos [2]asset.AssetInfo    `json:"asset_infos"`
	Direction  *orderbook.Direction  `json:"direction,omitempty"`
	Filter     orderbook.OrderFilter `json:"filter"`
	StartAfter *uint64               `json:"start_after,omitempty"`
	Limit      uint32                `json:"limit,omitempty"`
	OrderBy    OrderBy               `json:"order_by,omitempty"`
}

type OrderBooksParams struct {
	StartAfter *[2]asset.AssetInfo `json:"start_after,omitempty"`
	Limit      uint32              `json:"limit,omitempty"`
	OrderBy    OrderBy             `json:"order_by,omitempty"`
}

type TickParams struct {
	AssetInfos [2]asset.AssetInfo  `json:"asset_infos"`
	Direction  orderbook.Direction `json:"direction"`
	Price      numeric.Dec         `json:"price"`
}

type TicksParams struct {
	AssetInfos [2]asset.AssetInfo  `json:"asset_infos"`
	Direction  orderbook.Direction `json:"direction"`
	StartAfter *numeric.Dec        `json:"start_after,omitempty"`
	Limit      uint32              `json:"limit,omitempty"`
	OrderBy    OrderBy             `json:"order_by,omitempty"`
}

type ExecutorParams struct {
	AssetInfos [2]asset.AssetInfo `json:"asset_infos"`
	Address    common.Address     `json:"address"`
}

type ExecutorsParams struct {
	AssetInfos [2]asset.AssetInfo `json:"asset_infos"`
	StartAfter *common.Address    `json:"start_after,omitempty"`
	Limit      uint32             `json:"limit,omitempty"`
	OrderBy    OrderBy            `json:"order_by,omitempty"`
}

type OrderResponse struct {
	OrderID           uint64              `json:"order_id"`
	Direction         orderbook.Direction `json:"direction"`
	BidderAddr        common.Address      `json:"bidder_addr"`
	OfferAsset        asset.Asset         `json:"offer_asset"`
	AskAsset          asset.Asset         `json:"ask_asset"`
	FilledOfferAmount numeric.Uint128     `json:"filled_offer_amount"`
	FilledAskAmount   numeric.Uint128     `json:"filled_ask_amount"`
	Status            orderbook.Status    `json:"status"`
}

type OrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
}

type LastOrderIDResponse struct {
	LastOrderID uint64 `json:"last_order_id"`
}

type OrderBooksResponse struct {
	OrderBooks []*orderbook.OrderBook `json:"order_books"`
}

type TicksResponse struct {
	Ticks []orderbook.Tick `json:"ticks"`
}

type MidPriceResponse struct {
	MidPrice numeric.Dec `json:"mid_price"`
}

type MatchableResponse struct {
	IsMatchable bool `json:"is_matchable"`
}

type ExecutorsResponse struct {
	Executors []*orderbook.Executor `json:"executors"`
}

func toOrderResponse(ob *orderbook.OrderBook, o *orderbook.Order) OrderResponse {
	return OrderResponse{
		OrderID:           o.OrderID,
		Direction:         o.Direction,
		BidderAddr:        o.BidderAddr,
		OfferAsset:        asset.Asset{Info: ob.OfferInfo(o.Direction), Amount: o.OfferAmount},
		AskAsset:          asset.Asset{Info: ob.AskInfo(o.Direction), Amount: o.AskAmount},
		FilledOfferAmount: o.FilledOfferAmount,
		FilledAskAmount:   o.FilledAskAmount,
		Status:            o.Status,
	}
}

func (Contract) Query(r storage.Reader, _ asset.BalanceQuerier, query string, params json.RawMessage) (any, error) {
	switch query {
	case "contract_info":
		return readConfig(r)

	case "order":
		var p OrderParams
		if err := contract.Decode(params, &p); err != nil {
			return nil, err
		}
		ob, err := orderbook.ReadOrderBook(r, asset.PairKey(p.AssetInfos))
		if err != nil {
			return nil, err
		}
		o, err := ob.ReadOrder(r, p.OrderID)
		if err != nil {
			return nil, err
		}
		return toOrderResponse(ob, o), nil

	case "orders":
		var p OrdersParams
		if err := contract.Decode(params, &p); err != nil {
			return nil, err
		}
		return queryOrders(r, p)

	case "last_order_id":
		id, err := orderbook.LastOrderID(r)
		if err != nil {
			return nil, err
		}
		return LastOrderIDResponse{LastOrderID: id}, nil

	case "orderbook":
		var p PairParams
		if err := contract.Decode(params, &p); err != nil {
			return nil, err
		}
		return orderbook.ReadOrderBook(r, asset.PairKey(p.AssetInfos))

	case "orderbooks":
		var p OrderBooksParams
		if err := contract.Decode(params, &p); err != nil {
			return nil, err
		}
		var startAfter []byte
		if p.StartAfter != nil {
			startAfter = asset.PairKey(*p.StartAfter)
		}
		books, err := orderbook.ReadOrderBooks(r, startAfter, p.Limit, p.OrderBy == Descending)
		if err != nil {
			return nil, err
		}
		return OrderBooksResponse{OrderBooks: books}, nil

	case "tick":
		var p TickParams
		if err := contract.Decode(params, &p); err != nil {
			return nil, err
		}
		ob, err := orderbook.ReadOrderBook(r, asset.PairKey(p.AssetInfos))
		if err != nil {
			return nil, err
		}
		return ob.Tick(r, p.Direction, p.Price)

	case "ticks":
		var p TicksParams
		if err := contract.Decode(params, &p); err != nil {
			return nil, err
		}
		ob, err := orderbook.ReadOrderBook(r, asset.PairKey(p.AssetInfos))
		if err != nil {
			return nil, err
		}
		ticks, err := ob.Ticks(r, p.Direction, p.StartAfter, p.Limit, p.OrderBy == Descending)
		if err != nil {
			return nil, err
		}
		return TicksResponse{Ticks: ticks}, nil

	case "mid_price":
		var p PairParams
		if err := contract.Decode(params, &p); err != nil {
			return nil, err
		}
		ob, err := orderbook.ReadOrderBook(r, asset.PairKey(p.AssetInfos))
		if err != nil {
			return nil, err
		}
		mid, err := ob.MidPrice(r)
		if err != nil {
			return nil, err
		}
		return MidPriceResponse{MidPrice: mid}, nil

	case "orderbook_matchable":
		var p PairParams
		if err := contract.Decode(params, &p); err != nil {
			return nil, err
		}
		ob, err := orderbook.ReadOrderBook(r, asset.PairKey(p.AssetInfos))
		if err != nil {
			return nil, err
		}
		_, _, ok, err := ob.FindMatchPrice(r)
		if err != nil {
			return nil, err
		}
		return MatchableResponse{IsMatchable: ok}, nil

	case "executor":
		var p ExecutorParams
		if err := contract.Decode(params, &p); err != nil {
			return nil, err
		}
		ob, err := orderbook.ReadOrderBook(r, asset.PairKey(p.AssetInfos))
		if err != nil {
			return nil, err
		}
		return ob.Executor(r, p.Address)

	case "executors":
		var p ExecutorsParams
		if err := contract.Decode(params, &p); err != nil {
			return nil, err
		}
		ob, err := orderbook.ReadOrderBook(r, asset.PairKey(p.AssetInfos))
		if err != nil {
			return nil, err
		}
		list, err := ob.Executors(r, p.StartAfter, p.Limit, p.OrderBy == Descending)
		if err != nil {
			return nil, err
		}
		return ExecutorsResponse{Executors: list}, nil
	}
	return nil, fmt.Errorf("%w: %s", contract.ErrUnknownMessage, query)
}

func queryOrders(r storage.Reader, p OrdersParams) (OrdersResponse, error) {
	ob, err := orderbook.ReadOrderBook(r, asset.PairKey(p.AssetInfos))
	if err != nil {
		return OrdersResponse{}, err
	}
	dir := orderbook.AnyDirection
	if p.Direction != nil {
		dir = orderbook.OnlyDirection(*p.Direction)
	}
	orders, err := ob.Orders(r, orderbook.OrdersQuery{
		Filter:     p.Filter,
		Direction:  dir,
		StartAfter: p.StartAfter,
		Limit:      p.Limit,
		Descending: p.OrderBy == Descending,
	})
	if err != nil {
		return OrdersResponse{}, err
	}
	out := OrdersResponse{Orders: make([]OrderResponse, 0, len(orders))}
	for _, o := range orders {
		out.Orders = append(out.Orders, toOrderResponse(ob, o))
	}
	return out, nil
}
