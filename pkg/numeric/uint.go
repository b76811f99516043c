package numeric

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow     = errors.New("arithmetic overflow")
	ErrUnderflow    = errors.New("arithmetic underflow")
	ErrDivideByZero = errors.New("divide by zero")
	ErrCastOverflow = errors.New("cast overflow: value does not fit in 128 bits")
	ErrInvalidInt   = errors.New("invalid integer")
)

// Uint128 is an unsigned amount constrained to 128 bits. Every operation that
// can leave the range returns an error instead of wrapping.
type Uint128 struct {
	v uint256.Int
}

func NewUint128(x uint64) Uint128 {
	var u Uint128
	u.v.SetUint64(x)
	return u
}

func ZeroUint128() Uint128 { return Uint128{} }

// ParseUint128 parses a base-10 string.
func ParseUint128(s string) (Uint128, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Uint128{}, fmt.Errorf("%w %q: %v", ErrInvalidInt, s, err)
	}
	if v.BitLen() > 128 {
		return Uint128{}, fmt.Errorf("%w: %s", ErrCastOverflow, s)
	}
	return Uint128{v: *v}, nil
}

// MustParseUint128 panics on malformed input. Intended for constants and tests.
func MustParseUint128(s string) Uint128 {
	u, err := ParseUint128(s)
	if err != nil {
		panic(err)
	}
	return u
}

func (a Uint128) IsZero() bool { return a.v.IsZero() }

func (a Uint128) Cmp(b Uint128) int { return a.v.Cmp(&b.v) }

func (a Uint128) Equal(b Uint128) bool { return a.v.Eq(&b.v) }

func (a Uint128) LT(b Uint128) bool { return a.v.Lt(&b.v) }

func (a Uint128) GT(b Uint128) bool { return a.v.Gt(&b.v) }

func (a Uint128) GTE(b Uint128) bool { return !a.v.Lt(&b.v) }

func (a Uint128) Uint64() uint64 { return a.v.Uint64() }

func (a Uint128) BigInt() *big.Int { return a.v.ToBig() }

func (a Uint128) String() string { return a.v.Dec() }

// Uint256 widens the value for intermediate products.
func (a Uint128) Uint256() Uint256 { return Uint256{v: a.v} }

func (a Uint128) Add(b Uint128) (Uint128, error) {
	var z uint256.Int
	z.Add(&a.v, &b.v)
	if z.BitLen() > 128 {
		return Uint128{}, fmt.Errorf("%w: %s + %s", ErrOverflow, a, b)
	}
	return Uint128{v: z}, nil
}

func (a Uint128) Sub(b Uint128) (Uint128, error) {
	var z uint256.Int
	if _, underflow := z.SubOverflow(&a.v, &b.v); underflow {
		return Uint128{}, fmt.Errorf("%w: %s - %s", ErrUnderflow, a, b)
	}
	return Uint128{v: z}, nil
}

func (a Uint128) Mul(b Uint128) (Uint128, error) {
	var z uint256.Int
	z.Mul(&a.v, &b.v)
	if z.BitLen() > 128 {
		return Uint128{}, fmt.Errorf("%w: %s * %s", ErrOverflow, a, b)
	}
	return Uint128{v: z}, nil
}

func (a Uint128) Div(b Uint128) (Uint128, error) {
	if b.IsZero() {
		return Uint128{}, fmt.Errorf("%w: %s / 0", ErrDivideByZero, a)
	}
	var z uint256.Int
	z.Div(&a.v, &b.v)
	return Uint128{v: z}, nil
}

// MulDec returns floor(a * d).
func (a Uint128) MulDec(d Dec) (Uint128, error) {
	return a.Uint256().MulDec(d).ToUint128()
}

// DivDec returns floor(a / d).
func (a Uint128) DivDec(d Dec) (Uint128, error) {
	q, err := a.Uint256().DivDec(d)
	if err != nil {
		return Uint128{}, err
	}
	return q.ToUint128()
}

func MinUint128(a, b Uint128) Uint128 {
	if a.LT(b) {
		return a
	}
	return b
}

func (a Uint128) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Uint128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: expected quoted decimal string", ErrInvalidInt)
	}
	u, err := ParseUint128(s)
	if err != nil {
		return err
	}
	*a = u
	return nil
}

// Uint256 holds intermediate products of 128-bit amounts.
type Uint256 struct {
	v uint256.Int
}

func NewUint256(x uint64) Uint256 {
	var u Uint256
	u.v.SetUint64(x)
	return u
}

func (a Uint256) IsZero() bool { return a.v.IsZero() }

func (a Uint256) Cmp(b Uint256) int { return a.v.Cmp(&b.v) }

func (a Uint256) String() string { return a.v.Dec() }

func (a Uint256) Add(b Uint256) (Uint256, error) {
	var z uint256.Int
	if _, overflow := z.AddOverflow(&a.v, &b.v); overflow {
		return Uint256{}, fmt.Errorf("%w: %s + %s", ErrOverflow, a, b)
	}
	return Uint256{v: z}, nil
}

func (a Uint256) Sub(b Uint256) (Uint256, error) {
	var z uint256.Int
	if _, underflow := z.SubOverflow(&a.v, &b.v); underflow {
		return Uint256{}, fmt.Errorf("%w: %s - %s", ErrUnderflow, a, b)
	}
	return Uint256{v: z}, nil
}

func (a Uint256) Mul(b Uint256) (Uint256, error) {
	var z uint256.Int
	if _, overflow := z.MulOverflow(&a.v, &b.v); overflow {
		return Uint256{}, fmt.Errorf("%w: %s * %s", ErrOverflow, a, b)
	}
	return Uint256{v: z}, nil
}

// Div returns floor(a / b).
func (a Uint256) Div(b Uint256) (Uint256, error) {
	if b.IsZero() {
		return Uint256{}, fmt.Errorf("%w: %s / 0", ErrDivideByZero, a)
	}
	var z uint256.Int
	z.Div(&a.v, &b.v)
	return Uint256{v: z}, nil
}

// DivCeil returns ceil(a / b).
func (a Uint256) DivCeil(b Uint256) (Uint256, error) {
	if b.IsZero() {
		return Uint256{}, fmt.Errorf("%w: %s / 0", ErrDivideByZero, a)
	}
	var q, r uint256.Int
	q.DivMod(&a.v, &b.v, &r)
	if !r.IsZero() {
		q.AddUint64(&q, 1)
	}
	return Uint256{v: q}, nil
}

// MulDec returns floor(a * d). The 512-bit intermediate never overflows for
// 128-bit inputs; results above 256 bits saturate into a cast failure later.
func (a Uint256) MulDec(d Dec) Uint256 {
	var z uint256.Int
	if _, overflow := z.MulDivOverflow(&a.v, &d.atomics, fractional()); overflow {
		z.SetAllOne()
	}
	return Uint256{v: z}
}

// DivDec returns floor(a / d).
func (a Uint256) DivDec(d Dec) (Uint256, error) {
	if d.IsZero() {
		return Uint256{}, fmt.Errorf("%w: %s / 0", ErrDivideByZero, a)
	}
	var z uint256.Int
	if _, overflow := z.MulDivOverflow(&a.v, fractional(), &d.atomics); overflow {
		return Uint256{}, fmt.Errorf("%w: %s / %s", ErrOverflow, a, d)
	}
	return Uint256{v: z}, nil
}

// ToUint128 down-casts, failing when the value needs more than 128 bits.
func (a Uint256) ToUint128() (Uint128, error) {
	if a.v.BitLen() > 128 {
		return Uint128{}, fmt.Errorf("%w: %s", ErrCastOverflow, a)
	}
	return Uint128{v: a.v}, nil
}
