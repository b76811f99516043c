package contract

import "errors"

// Authorization
var ErrUnauthorized = errors.New("unauthorized")

// Validation
var (
	ErrInvalidMessage         = errors.New("invalid message")
	ErrUnknownMessage         = errors.New("unknown message type")
	ErrAssetMustNotBeZero     = errors.New("amount of the asset must not be zero")
	ErrTooSmallQuoteAsset     = errors.New("quote asset amount is below the order book minimum")
	ErrAssetMismatch          = errors.New("asset does not match")
	ErrMustProvideNativeToken = errors.New("must provide native token")
	ErrInvalidHookMessage     = errors.New("invalid token hook message")
	ErrMaxSpreadAssertion     = errors.New("operation exceeds max spread limit")
	ErrInvalidCommissionRate  = errors.New("commission rate must be below 1")
	ErrPriceBelowResolution   = errors.New("order price rounds to zero")
)

// State conflicts
var (
	ErrOrderFulfilled         = errors.New("order already fulfilled")
	ErrOrderIsFilling         = errors.New("order is being filled")
	ErrOrderNotFound          = errors.New("order not found")
	ErrOrderBookAlreadyExists = errors.New("order book already exists")
	ErrOrderBookNotFound      = errors.New("order book not found")
	ErrRatioNotFound          = errors.New("convert ratio not found")
	ErrPairNotFound           = errors.New("pair not found")
)

// Liquidity
var (
	ErrOfferPoolIsZero     = errors.New("offer pool is zero")
	ErrTooSmallOfferAmount = errors.New("offer amount is too small")
)
