package lending

import (
	"math"

	"github.com/holiman/uint256"
)

// CompoundInterest applies compound growth to a principal over the given
// number of whole periods: each iteration adds principal * ratePerPeriod /
// RateScale. The computation is pure and deterministic; every intermediate
// multiply and add is checked and ErrArithmeticOverflow is returned rather
// than a wrapped result. A zero principal or zero period count short-circuits
// without iterating.
func CompoundInterest(principal *uint256.Int, ratePerPeriod uint64, periods uint32) (*uint256.Int, error) {
	amount := new(uint256.Int).Set(principal)
	if amount.IsZero() || periods == 0 || ratePerPeriod == 0 {
		return amount, nil
	}
	rate := uint256.NewInt(ratePerPeriod)
	scale := uint256.NewInt(RateScale)
	interest := new(uint256.Int)
	for i := uint32(0); i < periods; i++ {
		if _, overflow := interest.MulOverflow(amount, rate); overflow {
			return nil, ErrArithmeticOverflow
		}
		interest.Div(interest, scale)
		if _, overflow := amount.AddOverflow(amount, interest); overflow {
			return nil, ErrArithmeticOverflow
		}
	}
	return amount, nil
}

// compoundU64 compounds a 64-bit principal and requires the result to still
// fit in 64 bits.
func compoundU64(principal, ratePerPeriod uint64, periods uint32) (uint64, error) {
	compounded, err := CompoundInterest(uint256.NewInt(principal), ratePerPeriod, periods)
	if err != nil {
		return 0, err
	}
	if !compounded.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return compounded.Uint64(), nil
}

// boundPeriods narrows an elapsed period count to the compounding width. A
// count past uint32 cannot be applied silently; truncating it would drop
// billions of periods of accrual.
func boundPeriods(periods int64) (uint32, error) {
	if periods < 0 || periods > math.MaxUint32 {
		return 0, ErrArithmeticOverflow
	}
	return uint32(periods), nil
}

// elapsedPeriods reports the number of whole accrual periods between
// lastCompound and now. Partial periods truncate and are not carried forward;
// clock skew into the past yields zero.
func elapsedPeriods(now, lastCompound, accrualPeriod int64) int64 {
	if accrualPeriod <= 0 || now <= lastCompound {
		return 0
	}
	return (now - lastCompound) / accrualPeriod
}
