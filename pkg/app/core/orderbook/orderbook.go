package orderbook

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/contract"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

const (
	DefaultLimit = 10
	MaxLimit     = 30
)

// Key schema inside the limit-order namespace. pk is the 32-byte pair key,
// price is the 32-byte big-endian atomics of a Dec.
//
//	last_order_id              → uint64
//	ob:<pk>                    → OrderBook
//	o:<pk><id>                 → Order
//	p:<pk><dir><price><id>     → (empty)       price-time index
//	b:<pk><bidder><id>         → dir           bidder index
//	t:<pk><dir><price>         → uint64        orders resting at the tick
var (
	keyLastOrderID = []byte("last_order_id")
	prefixBook     = []byte("ob:")
	prefixOrder    = []byte("o:")
	prefixPrice    = []byte("p:")
	prefixBidder   = []byte("b:")
	prefixTick     = []byte("t:")
)

// OrderBook is the configuration of one trading pair. Orders live in the
// store under the book's pair key.
type OrderBook struct {
	BaseCoinInfo       asset.AssetInfo `json:"base_coin_info"`
	QuoteCoinInfo      asset.AssetInfo `json:"quote_coin_info"`
	Spread             *numeric.Dec    `json:"spread,omitempty"`
	MinQuoteCoinAmount numeric.Uint128 `json:"min_quote_coin_amount"`
}

func (ob *OrderBook) AssetInfos() [2]asset.AssetInfo {
	return [2]asset.AssetInfo{ob.BaseCoinInfo, ob.QuoteCoinInfo}
}

func (ob *OrderBook) PairKey() []byte { return asset.PairKey(ob.AssetInfos()) }

// OfferInfo is the asset an order of the given direction pays.
func (ob *OrderBook) OfferInfo(d Direction) asset.AssetInfo {
	if d == Buy {
		return ob.QuoteCoinInfo
	}
	return ob.BaseCoinInfo
}

// AskInfo is the asset an order of the given direction receives.
func (ob *OrderBook) AskInfo(d Direction) asset.AssetInfo {
	return ob.OfferInfo(d.Opposite())
}

func (ob *OrderBook) String() string {
	return ob.BaseCoinInfo.String() + "/" + ob.QuoteCoinInfo.String()
}

// StoreOrderBook writes the book record.
func StoreOrderBook(kv storage.KVStore, ob *OrderBook) error {
	return storage.SetJSON(kv, storage.Key(prefixBook, ob.PairKey()), ob)
}

// ReadOrderBook loads the book for pairKey.
func ReadOrderBook(r storage.Reader, pairKey []byte) (*OrderBook, error) {
	var ob OrderBook
	found, err := storage.GetJSON(r, storage.Key(prefixBook, pairKey), &ob)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, contract.ErrOrderBookNotFound
	}
	return &ob, nil
}

func RemoveOrderBook(kv storage.KVStore, pairKey []byte) error {
	return kv.Delete(storage.Key(prefixBook, pairKey))
}

// ReadOrderBooks pages through every book ordered by pair key.
func ReadOrderBooks(r storage.Reader, startAfter []byte, limit uint32, descending bool) ([]*OrderBook, error) {
	start, end := prefixBook, storage.PrefixEnd(prefixBook)
	if startAfter != nil {
		if descending {
			end = storage.Key(prefixBook, startAfter)
		} else {
			start = storage.PrefixEnd(storage.Key(prefixBook, startAfter))
		}
	}
	iter, err := r.Iterator(start, end, descending)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	n := clampLimit(limit)
	var out []*OrderBook
	for ; iter.Valid() && len(out) < n; iter.Next() {
		var ob OrderBook
		if err := decode(iter.Value(), &ob); err != nil {
			return nil, err
		}
		out = append(out, &ob)
	}
	return out, nil
}

// NextOrderID increments and returns the global order counter.
func NextOrderID(kv storage.KVStore) (uint64, error) {
	last, err := LastOrderID(kv)
	if err != nil {
		return 0, err
	}
	next := last + 1
	if err := kv.Set(keyLastOrderID, storage.Uint64Key(next)); err != nil {
		return 0, err
	}
	return next, nil
}

func LastOrderID(r storage.Reader) (uint64, error) {
	raw, err := r.Get(keyLastOrderID)
	if err != nil || raw == nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (ob *OrderBook) orderKey(id uint64) []byte {
	return storage.Key(prefixOrder, ob.PairKey(), storage.Uint64Key(id))
}

func (ob *OrderBook) priceKey(d Direction, price numeric.Dec, id uint64) []byte {
	return storage.Key(prefixPrice, ob.PairKey(), []byte{byte(d)}, price.Bytes(), storage.Uint64Key(id))
}

func (ob *OrderBook) bidderKey(bidder common.Address, id uint64) []byte {
	return storage.Key(prefixBidder, ob.PairKey(), bidder.Bytes(), storage.Uint64Key(id))
}

func (ob *OrderBook) tickKey(d Direction, price numeric.Dec) []byte {
	return storage.Key(prefixTick, ob.PairKey(), []byte{byte(d)}, price.Bytes())
}

// InsertOrder writes a new order into the primary record, the price index,
// the bidder index and its tick counter.
func (ob *OrderBook) InsertOrder(kv storage.KVStore, o *Order) error {
	if err := ob.UpdateOrder(kv, o); err != nil {
		return err
	}
	price := o.Price()
	if err := kv.Set(ob.priceKey(o.Direction, price, o.OrderID), []byte{}); err != nil {
		return err
	}
	if err := kv.Set(ob.bidderKey(o.BidderAddr, o.OrderID), []byte{byte(o.Direction)}); err != nil {
		return err
	}
	return ob.adjustTick(kv, o.Direction, price, 1)
}

// UpdateOrder rewrites the primary record of an order already indexed.
func (ob *OrderBook) UpdateOrder(kv storage.KVStore, o *Order) error {
	if err := storage.SetJSON(kv, ob.orderKey(o.OrderID), o); err != nil {
		return fmt.Errorf("failed to store order %d: %w", o.OrderID, err)
	}
	return nil
}

// RemoveOrder deletes the order from every index.
func (ob *OrderBook) RemoveOrder(kv storage.KVStore, o *Order) error {
	price := o.Price()
	for _, key := range [][]byte{
		ob.orderKey(o.OrderID),
		ob.priceKey(o.Direction, price, o.OrderID),
		ob.bidderKey(o.BidderAddr, o.OrderID),
	} {
		if err := kv.Delete(key); err != nil {
			return fmt.Errorf("failed to remove order %d: %w", o.OrderID, err)
		}
	}
	return ob.adjustTick(kv, o.Direction, price, -1)
}

func (ob *OrderBook) adjustTick(kv storage.KVStore, d Direction, price numeric.Dec, delta int) error {
	key := ob.tickKey(d, price)
	count, err := readCount(kv, key)
	if err != nil {
		return err
	}
	switch {
	case delta > 0:
		count++
	case count > 0:
		count--
	}
	if count == 0 {
		return kv.Delete(key)
	}
	return kv.Set(key, storage.Uint64Key(count))
}

func readCount(r storage.Reader, key []byte) (uint64, error) {
	raw, err := r.Get(key)
	if err != nil || raw == nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

// ReadOrder loads one order of this book.
func (ob *OrderBook) ReadOrder(r storage.Reader, id uint64) (*Order, error) {
	var o Order
	found, err := storage.GetJSON(r, ob.orderKey(id), &o)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %d", contract.ErrOrderNotFound, id)
	}
	return &o, nil
}

// OrderFilter narrows an orders query to one bidder or one price. The zero
// value matches every order.
type OrderFilter struct {
	Bidder *common.Address `json:"bidder,omitempty"`
	Price  *numeric.Dec    `json:"price,omitempty"`
}

type OrdersQuery struct {
	Filter     OrderFilter
	Direction  DirectionFilter
	StartAfter *uint64
	Limit      uint32
	Descending bool
}

// Orders pages through resting orders ordered by id.
func (ob *OrderBook) Orders(r storage.Reader, q OrdersQuery) ([]*Order, error) {
	n := clampLimit(q.Limit)
	switch {
	case q.Filter.Bidder != nil:
		prefix := storage.Key(prefixBidder, ob.PairKey(), q.Filter.Bidder.Bytes())
		return ob.collect(r, prefix, q, n, func(key, value []byte) (uint64, bool) {
			return idSuffix(key), len(value) == 1 && q.Direction.Match(Direction(value[0]))
		})

	case q.Filter.Price != nil:
		var out []*Order
		for _, d := range q.Direction.directions() {
			prefix := storage.Key(prefixPrice, ob.PairKey(), []byte{byte(d)}, q.Filter.Price.Bytes())
			orders, err := ob.collect(r, prefix, q, n, func(key, _ []byte) (uint64, bool) {
				return idSuffix(key), true
			})
			if err != nil {
				return nil, err
			}
			out = append(out, orders...)
		}
		sort.Slice(out, func(i, j int) bool {
			if q.Descending {
				return out[i].OrderID > out[j].OrderID
			}
			return out[i].OrderID < out[j].OrderID
		})
		if len(out) > n {
			out = out[:n]
		}
		return out, nil
	}

	prefix := storage.Key(prefixOrder, ob.PairKey())
	start, end := pageBounds(prefix, q.StartAfter, q.Descending)
	iter, err := r.Iterator(start, end, q.Descending)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []*Order
	for ; iter.Valid() && len(out) < n; iter.Next() {
		var o Order
		if err := decode(iter.Value(), &o); err != nil {
			return nil, err
		}
		if q.Direction.Match(o.Direction) {
			out = append(out, &o)
		}
	}
	return out, nil
}

// collect walks an index whose keys end with an order id and loads the
// referenced orders.
func (ob *OrderBook) collect(r storage.Reader, prefix []byte, q OrdersQuery, n int, pick func(key, value []byte) (uint64, bool)) ([]*Order, error) {
	start, end := pageBounds(prefix, q.StartAfter, q.Descending)
	iter, err := r.Iterator(start, end, q.Descending)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for ; iter.Valid() && len(ids) < n; iter.Next() {
		if id, ok := pick(iter.Key(), iter.Value()); ok {
			ids = append(ids, id)
		}
	}
	iter.Close()

	out := make([]*Order, 0, len(ids))
	for _, id := range ids {
		o, err := ob.ReadOrder(r, id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// pageBounds returns the scan range of prefix, excluding startAfter and
// everything before it in scan order.
func pageBounds(prefix []byte, startAfter *uint64, descending bool) ([]byte, []byte) {
	start, end := prefix, storage.PrefixEnd(prefix)
	if startAfter == nil {
		return start, end
	}
	if descending {
		return start, storage.Key(prefix, storage.Uint64Key(*startAfter))
	}
	if *startAfter == math.MaxUint64 {
		return prefix, prefix
	}
	return storage.Key(prefix, storage.Uint64Key(*startAfter+1)), end
}

func idSuffix(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// ordersAt returns the orders resting at one tick in arrival order.
func (ob *OrderBook) ordersAt(r storage.Reader, d Direction, price numeric.Dec, limit *uint32) ([]*Order, error) {
	prefix := storage.Key(prefixPrice, ob.PairKey(), []byte{byte(d)}, price.Bytes())
	iter, err := storage.PrefixIterator(r, prefix, false)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for ; iter.Valid(); iter.Next() {
		if limit != nil && len(ids) >= int(*limit) {
			break
		}
		ids = append(ids, idSuffix(iter.Key()))
	}
	iter.Close()

	out := make([]*Order, 0, len(ids))
	for _, id := range ids {
		o, err := ob.ReadOrder(r, id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// Tick is one populated price level.
type Tick struct {
	Price       numeric.Dec `json:"price"`
	TotalOrders uint64      `json:"total_orders"`
}

// Tick reads a single level.
func (ob *OrderBook) Tick(r storage.Reader, d Direction, price numeric.Dec) (Tick, error) {
	count, err := readCount(r, ob.tickKey(d, price))
	if err != nil {
		return Tick{}, err
	}
	if count == 0 {
		return Tick{}, fmt.Errorf("%w: no %s orders at %s", contract.ErrOrderNotFound, d, price)
	}
	return Tick{Price: price, TotalOrders: count}, nil
}

// Ticks pages through the populated levels of one side by price.
func (ob *OrderBook) Ticks(r storage.Reader, d Direction, startAfter *numeric.Dec, limit uint32, descending bool) ([]Tick, error) {
	prefix := storage.Key(prefixTick, ob.PairKey(), []byte{byte(d)})
	start, end := prefix, storage.PrefixEnd(prefix)
	if startAfter != nil {
		if descending {
			end = storage.Key(prefix, startAfter.Bytes())
		} else {
			start = storage.PrefixEnd(storage.Key(prefix, startAfter.Bytes()))
		}
	}
	iter, err := r.Iterator(start, end, descending)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	n := clampLimit(limit)
	var out []Tick
	for ; iter.Valid() && len(out) < n; iter.Next() {
		key := iter.Key()
		out = append(out, Tick{
			Price:       numeric.DecFromAtomics(key[len(key)-32:]),
			TotalOrders: binary.BigEndian.Uint64(iter.Value()),
		})
	}
	return out, nil
}

// BestPrice is the highest buy or the lowest sell.
func (ob *OrderBook) BestPrice(r storage.Reader, d Direction) (numeric.Dec, bool, error) {
	ticks, err := ob.Ticks(r, d, nil, 1, d == Buy)
	if err != nil || len(ticks) == 0 {
		return numeric.Dec{}, false, err
	}
	return ticks[0].Price, true, nil
}

// MidPrice averages the best buy and best sell, or is zero when either side
// is empty.
func (ob *OrderBook) MidPrice(r storage.Reader) (numeric.Dec, error) {
	buy, okBuy, err := ob.BestPrice(r, Buy)
	if err != nil {
		return numeric.Dec{}, err
	}
	sell, okSell, err := ob.BestPrice(r, Sell)
	if err != nil {
		return numeric.Dec{}, err
	}
	if !okBuy || !okSell {
		return numeric.DecZero(), nil
	}
	sum, err := buy.Add(sell)
	if err != nil {
		return numeric.Dec{}, err
	}
	return sum.Quo(numeric.NewDecFromInt(2))
}

// FindMatchPrice returns the winning buy and sell ticks of the next matching
// pass. Without a precision band a cross needs best buy >= best sell. With a
// band, the first sell s (ascending) with s <= best buy <= s*(1+spread) wins.
func (ob *OrderBook) FindMatchPrice(r storage.Reader) (buy, sell numeric.Dec, ok bool, err error) {
	buy, hasBuy, err := ob.BestPrice(r, Buy)
	if err != nil || !hasBuy {
		return
	}

	if ob.Spread == nil {
		var hasSell bool
		sell, hasSell, err = ob.BestPrice(r, Sell)
		if err != nil || !hasSell {
			return
		}
		ok = buy.GTE(sell)
		return
	}

	upper, err := numeric.DecOne().Add(*ob.Spread)
	if err != nil {
		return
	}
	prefix := storage.Key(prefixTick, ob.PairKey(), []byte{byte(Sell)})
	iter, err := storage.PrefixIterator(r, prefix, false)
	if err != nil {
		return
	}
	defer iter.Close()
	for ; iter.Valid(); iter.Next() {
		key := iter.Key()
		price := numeric.DecFromAtomics(key[len(key)-32:])
		if price.GT(buy) {
			return
		}
		var bound numeric.Dec
		if bound, err = price.Mul(upper); err != nil {
			return
		}
		if buy.LTE(bound) {
			return buy, price, true, nil
		}
	}
	return
}

func clampLimit(limit uint32) int {
	if limit == 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return int(limit)
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

// AllOrders loads every resting order of the book in id order.
func (ob *OrderBook) AllOrders(r storage.Reader) ([]*Order, error) {
	iter, err := storage.PrefixIterator(r, storage.Key(prefixOrder, ob.PairKey()), false)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []*Order
	for ; iter.Valid(); iter.Next() {
		var o Order
		if err := decode(iter.Value(), &o); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, nil
}

// Drain cancels every resting order, pays out pending executor rewards and
// deletes the book. It returns the refunds and the number of orders removed.
func (ob *OrderBook) Drain(kv storage.KVStore) ([]asset.Transfer, int, error) {
	orders, err := ob.AllOrders(kv)
	if err != nil {
		return nil, 0, err
	}
	var transfers []asset.Transfer
	for _, o := range orders {
		if left := o.RemainingOffer(); !left.IsZero() {
			transfers = append(transfers, asset.Transfer{
				Recipient: o.BidderAddr,
				Asset:     asset.Asset{Info: ob.OfferInfo(o.Direction), Amount: left},
			})
		}
		o.Status = StatusCancel
		if err := ob.RemoveOrder(kv, o); err != nil {
			return nil, 0, err
		}
	}
	rewards, err := ob.PayOutRewards(kv)
	if err != nil {
		return nil, 0, err
	}
	if err := ob.RemoveExecutors(kv); err != nil {
		return nil, 0, err
	}
	if err := RemoveOrderBook(kv, ob.PairKey()); err != nil {
		return nil, 0, err
	}
	return append(transfers, rewards...), len(orders), nil
}
