package orderbook

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/numeric"
)

// Direction is the side of an order. A buy pays the quote asset for the base
// asset; a sell pays base for quote.
type Direction uint8

const (
	Buy Direction = iota
	Sell
)

func (d Direction) String() string {
	if d == Buy {
		return "buy"
	}
	return "sell"
}

func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

func (d Direction) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func ParseDirection(s string) (Direction, error) {
	switch s {
	case "buy", "Buy":
		return Buy, nil
	case "sell", "Sell":
		return Sell, nil
	}
	return 0, fmt.Errorf("invalid direction %q", s)
}

// Status is the order lifecycle state.
//
//	open ──match──▶ filling ──▶ open | fulfilled
//	open ──cancel─▶ cancel
type Status uint8

const (
	StatusOpen Status = iota
	StatusFilling
	StatusFulfilled
	StatusCancel
)

var statusNames = [...]string{"open", "filling", "fulfilled", "cancel"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	for i, name := range statusNames {
		if name == str {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("invalid order status %q", str)
}

// Order is a resting limit order. Offer and ask amounts are fixed at
// creation, so the derived price never changes.
type Order struct {
	OrderID           uint64          `json:"order_id"`
	Direction         Direction       `json:"direction"`
	BidderAddr        common.Address  `json:"bidder_addr"`
	OfferAmount       numeric.Uint128 `json:"offer_amount"`
	AskAmount         numeric.Uint128 `json:"ask_amount"`
	FilledOfferAmount numeric.Uint128 `json:"filled_offer_amount"`
	FilledAskAmount   numeric.Uint128 `json:"filled_ask_amount"`
	Status            Status          `json:"status"`
}

// Price is quote per base: offer/ask for a buy, ask/offer for a sell.
func (o *Order) Price() numeric.Dec {
	num, den := o.OfferAmount, o.AskAmount
	if o.Direction == Sell {
		num, den = o.AskAmount, o.OfferAmount
	}
	// Both amounts are non-zero 128-bit values, so the ratio always fits.
	p, err := numeric.DecFromRatio(num.Uint256(), den.Uint256())
	if err != nil {
		panic(fmt.Sprintf("orderbook: price of order %d: %v", o.OrderID, err))
	}
	return p
}

func (o *Order) RemainingOffer() numeric.Uint128 {
	left, err := o.OfferAmount.Sub(o.FilledOfferAmount)
	if err != nil {
		return numeric.ZeroUint128()
	}
	return left
}

func (o *Order) RemainingAsk() numeric.Uint128 {
	left, err := o.AskAmount.Sub(o.FilledAskAmount)
	if err != nil {
		return numeric.ZeroUint128()
	}
	return left
}

// Fill records a trade against the order. Recorded totals never exceed the
// order amounts; a buyer or seller that receives a better price than asked
// is simply satisfied earlier. The order becomes fulfilled once either side
// is exhausted.
func (o *Order) Fill(askAmount, offerAmount numeric.Uint128) error {
	if o.Status == StatusFulfilled || o.Status == StatusCancel {
		return fmt.Errorf("fill on %s order %d", o.Status, o.OrderID)
	}
	if offerAmount.GT(o.RemainingOffer()) {
		return fmt.Errorf("%w: order %d pays %s with %s left", numeric.ErrUnderflow, o.OrderID, offerAmount, o.RemainingOffer())
	}
	filledOffer, err := o.FilledOfferAmount.Add(offerAmount)
	if err != nil {
		return err
	}
	filledAsk, err := o.FilledAskAmount.Add(askAmount)
	if err != nil {
		return err
	}
	o.FilledOfferAmount = filledOffer
	o.FilledAskAmount = numeric.MinUint128(filledAsk, o.AskAmount)

	if o.FilledAskAmount.GTE(o.AskAmount) || o.FilledOfferAmount.GTE(o.OfferAmount) {
		o.Status = StatusFulfilled
	}
	return nil
}

// DirectionFilter selects orders by direction without a callback.
type DirectionFilter struct {
	direction Direction
	only      bool
}

var AnyDirection = DirectionFilter{}

func OnlyDirection(d Direction) DirectionFilter {
	return DirectionFilter{direction: d, only: true}
}

func (f DirectionFilter) Match(d Direction) bool {
	return !f.only || f.direction == d
}

func (f DirectionFilter) directions() []Direction {
	if f.only {
		return []Direction{f.direction}
	}
	return []Direction{Buy, Sell}
}
