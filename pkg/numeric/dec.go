package numeric

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DecPlaces is the number of fractional digits carried by Dec.
const DecPlaces = 18

var ErrInvalidDec = errors.New("invalid decimal")

var decFractional = uint256.NewInt(1_000_000_000_000_000_000)

func fractional() *uint256.Int { return decFractional }

// Dec is a non-negative fixed-point number with 18 fractional digits stored
// as 256-bit atomics (value * 10^18).
type Dec struct {
	atomics uint256.Int
}

func DecZero() Dec { return Dec{} }

func DecOne() Dec {
	var d Dec
	d.atomics.Set(decFractional)
	return d
}

// NewDecFromInt returns x as a Dec.
func NewDecFromInt(x uint64) Dec {
	var d Dec
	d.atomics.Mul(uint256.NewInt(x), decFractional)
	return d
}

// DecFromRatio returns floor(num * 10^18 / den) / 10^18.
func DecFromRatio(num, den Uint256) (Dec, error) {
	if den.IsZero() {
		return Dec{}, fmt.Errorf("%w: ratio %s/0", ErrDivideByZero, num)
	}
	var d Dec
	if _, overflow := d.atomics.MulDivOverflow(&num.v, decFractional, &den.v); overflow {
		return Dec{}, fmt.Errorf("%w: ratio %s/%s", ErrOverflow, num, den)
	}
	return d, nil
}

// DecFromAtomics builds a Dec from its big-endian atomics, the inverse of Bytes.
func DecFromAtomics(b []byte) Dec {
	var d Dec
	d.atomics.SetBytes(b)
	return d
}

// DecPow10 returns 10^exp.
func DecPow10(exp uint8) (Dec, error) {
	if exp > 77 {
		return Dec{}, fmt.Errorf("%w: 10^%d", ErrOverflow, exp)
	}
	var p uint256.Int
	p.Exp(uint256.NewInt(10), uint256.NewInt(uint64(exp)))
	var d Dec
	if _, overflow := d.atomics.MulOverflow(&p, decFractional); overflow {
		return Dec{}, fmt.Errorf("%w: 10^%d", ErrOverflow, exp)
	}
	return d, nil
}

// ParseDec parses a decimal string such as "0.003" or "1e-3".
func ParseDec(s string) (Dec, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return Dec{}, fmt.Errorf("%w %q: %v", ErrInvalidDec, s, err)
	}
	if v.IsNegative() {
		return Dec{}, fmt.Errorf("%w %q: negative", ErrInvalidDec, s)
	}
	scaled := v.Shift(DecPlaces)
	if !scaled.Equal(scaled.Truncate(0)) {
		return Dec{}, fmt.Errorf("%w %q: more than %d fractional digits", ErrInvalidDec, s, DecPlaces)
	}
	atomics, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return Dec{}, fmt.Errorf("%w %q", ErrOverflow, s)
	}
	return Dec{atomics: *atomics}, nil
}

// MustParseDec panics on malformed input. Intended for constants and tests.
func MustParseDec(s string) Dec {
	d, err := ParseDec(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Dec) IsZero() bool { return d.atomics.IsZero() }

func (d Dec) Cmp(o Dec) int { return d.atomics.Cmp(&o.atomics) }

func (d Dec) Equal(o Dec) bool { return d.atomics.Eq(&o.atomics) }

func (d Dec) LT(o Dec) bool { return d.atomics.Lt(&o.atomics) }

func (d Dec) GT(o Dec) bool { return d.atomics.Gt(&o.atomics) }

func (d Dec) LTE(o Dec) bool { return !d.atomics.Gt(&o.atomics) }

func (d Dec) GTE(o Dec) bool { return !d.atomics.Lt(&o.atomics) }

// Bytes returns the 32-byte big-endian atomics. Byte order equals numeric
// order, so the result can be used directly inside ordered store keys.
func (d Dec) Bytes() []byte {
	b := d.atomics.Bytes32()
	return b[:]
}

func (d Dec) Add(o Dec) (Dec, error) {
	var z Dec
	if _, overflow := z.atomics.AddOverflow(&d.atomics, &o.atomics); overflow {
		return Dec{}, fmt.Errorf("%w: %s + %s", ErrOverflow, d, o)
	}
	return z, nil
}

func (d Dec) Sub(o Dec) (Dec, error) {
	var z Dec
	if _, underflow := z.atomics.SubOverflow(&d.atomics, &o.atomics); underflow {
		return Dec{}, fmt.Errorf("%w: %s - %s", ErrUnderflow, d, o)
	}
	return z, nil
}

// Mul truncates toward zero.
func (d Dec) Mul(o Dec) (Dec, error) {
	var z Dec
	if _, overflow := z.atomics.MulDivOverflow(&d.atomics, &o.atomics, decFractional); overflow {
		return Dec{}, fmt.Errorf("%w: %s * %s", ErrOverflow, d, o)
	}
	return z, nil
}

// Quo truncates toward zero.
func (d Dec) Quo(o Dec) (Dec, error) {
	if o.IsZero() {
		return Dec{}, fmt.Errorf("%w: %s / 0", ErrDivideByZero, d)
	}
	var z Dec
	if _, overflow := z.atomics.MulDivOverflow(&d.atomics, decFractional, &o.atomics); overflow {
		return Dec{}, fmt.Errorf("%w: %s / %s", ErrOverflow, d, o)
	}
	return z, nil
}

// Decimal converts to shopspring for display and float-free formatting.
func (d Dec) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(d.atomics.ToBig(), -DecPlaces)
}

func (d Dec) String() string { return d.Decimal().String() }

func (d Dec) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Dec) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: expected quoted decimal string", ErrInvalidDec)
	}
	v, err := ParseDec(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}
