// Package amm prices swaps against a constant-product pool and hosts the
// pair contract that holds the pool reserves.
package amm

import (
	"fmt"

	"github.com/uhyunpark/hyperswap/pkg/app/core/contract"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
)

// DefaultCommissionRate is charged on the returned asset of every swap.
var DefaultCommissionRate = numeric.MustParseDec("0.003")

// ComputeSwap prices selling offerAmount into a pool holding offerPool and
// askPool. The invariant quotient k/(offerPool+offerAmount) is rounded up so
// rounding always favours the pool.
//
//	return     = askPool - ceil(k / (offerPool + offerAmount))
//	spread     = offerAmount * (askPool / offerPool) - return
//	commission = return * commissionRate
//	return    -= commission
func ComputeSwap(offerPool, askPool, offerAmount numeric.Uint128, commissionRate numeric.Dec) (ret, spread, commission numeric.Uint128, err error) {
	if offerPool.IsZero() {
		err = contract.ErrOfferPoolIsZero
		return
	}
	op, ap, oa := offerPool.Uint256(), askPool.Uint256(), offerAmount.Uint256()

	cp, err := op.Mul(ap)
	if err != nil {
		return
	}
	denom, err := op.Add(oa)
	if err != nil {
		return
	}
	remaining, err := cp.DivCeil(denom)
	if err != nil {
		return
	}
	returnAmount, err := ap.Sub(remaining)
	if err != nil {
		return
	}

	ratio, err := numeric.DecFromRatio(ap, op)
	if err != nil {
		return
	}
	spreadAmount, err := oa.MulDec(ratio).Sub(returnAmount)
	if err != nil {
		err = fmt.Errorf("spread: %w", err)
		return
	}

	commissionAmount := returnAmount.MulDec(commissionRate)
	if returnAmount, err = returnAmount.Sub(commissionAmount); err != nil {
		return
	}
	return downcast3(returnAmount, spreadAmount, commissionAmount)
}

// ComputeOfferAmount is the inverse of ComputeSwap: the offer needed to
// receive askAmount after commission.
func ComputeOfferAmount(offerPool, askPool, askAmount numeric.Uint128, commissionRate numeric.Dec) (offer, spread, commission numeric.Uint128, err error) {
	if offerPool.IsZero() {
		err = contract.ErrOfferPoolIsZero
		return
	}
	op, ap, aa := offerPool.Uint256(), askPool.Uint256(), askAmount.Uint256()

	cp, err := op.Mul(ap)
	if err != nil {
		return
	}
	oneMinusCommission, err := numeric.DecOne().Sub(commissionRate)
	if err != nil || oneMinusCommission.IsZero() {
		err = fmt.Errorf("%w: %s", contract.ErrInvalidCommissionRate, commissionRate)
		return
	}
	inv, err := numeric.DecOne().Quo(oneMinusCommission)
	if err != nil {
		return
	}

	beforeCommission := aa.MulDec(inv)
	denom, err := ap.Sub(beforeCommission)
	if err != nil {
		err = fmt.Errorf("ask amount exceeds pool: %w", err)
		return
	}
	total, err := cp.Div(denom)
	if err != nil {
		err = fmt.Errorf("ask amount drains pool: %w", err)
		return
	}
	offerAmount, err := total.Sub(op)
	if err != nil {
		return
	}

	ratio, err := numeric.DecFromRatio(ap, op)
	if err != nil {
		return
	}
	beforeSpread := offerAmount.MulDec(ratio)
	spreadAmount := numeric.NewUint256(0)
	if beforeSpread.Cmp(beforeCommission) > 0 {
		if spreadAmount, err = beforeSpread.Sub(beforeCommission); err != nil {
			return
		}
	}
	commissionAmount := beforeCommission.MulDec(commissionRate)

	if spreadAmount.IsZero() || commissionAmount.IsZero() {
		err = contract.ErrTooSmallOfferAmount
		return
	}
	return downcast3(offerAmount, spreadAmount, commissionAmount)
}

func downcast3(a, b, c numeric.Uint256) (x, y, z numeric.Uint128, err error) {
	if x, err = a.ToUint128(); err != nil {
		return
	}
	if y, err = b.ToUint128(); err != nil {
		return
	}
	z, err = c.ToUint128()
	return
}

// AssertMaxSpread rejects a swap whose slippage exceeds maxSpread. With a
// belief price (offer units per ask unit) the spread is measured against the
// expected return at that price; otherwise against the pool spread.
func AssertMaxSpread(beliefPrice, maxSpread *numeric.Dec, offerAmount, returnAmount, spreadAmount numeric.Uint128) error {
	if maxSpread == nil {
		return nil
	}
	if beliefPrice != nil {
		if beliefPrice.IsZero() {
			return fmt.Errorf("%w: zero belief price", contract.ErrMaxSpreadAssertion)
		}
		expected, err := offerAmount.DivDec(*beliefPrice)
		if err != nil {
			return err
		}
		if returnAmount.GTE(expected) {
			return nil
		}
		diff, err := expected.Sub(returnAmount)
		if err != nil {
			return err
		}
		ratio, err := numeric.DecFromRatio(diff.Uint256(), expected.Uint256())
		if err != nil {
			return err
		}
		if ratio.GT(*maxSpread) {
			return fmt.Errorf("%w: %s > %s", contract.ErrMaxSpreadAssertion, ratio, maxSpread)
		}
		return nil
	}

	total, err := returnAmount.Add(spreadAmount)
	if err != nil {
		return err
	}
	if total.IsZero() {
		return nil
	}
	ratio, err := numeric.DecFromRatio(spreadAmount.Uint256(), total.Uint256())
	if err != nil {
		return err
	}
	if ratio.GT(*maxSpread) {
		return fmt.Errorf("%w: %s > %s", contract.ErrMaxSpreadAssertion, ratio, maxSpread)
	}
	return nil
}
