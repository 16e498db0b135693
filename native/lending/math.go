package lending

import "github.com/holiman/uint256"

// RateScale is the fixed-point scale for per-period interest rates:
// a stored rate of 1_000_000 means 100% per period.
const RateScale = 1_000_000

// BasisPoints is the scale for LTV and fee parameters (10_000 = 100%).
const BasisPoints = 10_000

func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrArithmeticOverflow
	}
	return a - b, nil
}

// mulDivFloor computes a*b/den with a 256-bit intermediate so the product
// never truncates before the division. Fails when den is zero or the quotient
// does not fit in 64 bits.
func mulDivFloor(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrArithmeticOverflow
	}
	prod := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	prod.Div(prod, uint256.NewInt(den))
	if !prod.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return prod.Uint64(), nil
}

// mulDivCeil is mulDivFloor rounding the quotient up.
func mulDivCeil(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrArithmeticOverflow
	}
	prod := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	prod.Add(prod, uint256.NewInt(den-1))
	prod.Div(prod, uint256.NewInt(den))
	if !prod.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return prod.Uint64(), nil
}

// sharesForAssets converts an asset amount to shares at the pool's current
// exchange rate: amount * totalShares / totalAssets, computed wide before
// dividing. The first participant in an empty pool receives shares 1:1.
func sharesForAssets(amount, totalShares, totalAssets uint64) (uint64, error) {
	if totalShares == 0 {
		return amount, nil
	}
	return mulDivFloor(amount, totalShares, totalAssets)
}

// sharesForAssetsCeil is sharesForAssets rounding up, used when converting a
// collateral requirement so the lock can never undershoot the debt issued.
func sharesForAssetsCeil(amount, totalShares, totalAssets uint64) (uint64, error) {
	if totalShares == 0 {
		return amount, nil
	}
	return mulDivCeil(amount, totalShares, totalAssets)
}

// assetsForShares converts a share count to its current asset-equivalent
// value: shares * totalAssets / totalShares. An empty pool values shares 1:1,
// which can only be observed transiently and keeps the conversion total.
func assetsForShares(shares, totalShares, totalAssets uint64) (uint64, error) {
	if totalShares == 0 {
		return shares, nil
	}
	return mulDivFloor(shares, totalAssets, totalShares)
}

// feeAmount applies a basis-point fee to an amount, rounding down.
func feeAmount(amount, bps uint64) (uint64, error) {
	if bps == 0 {
		return 0, nil
	}
	return mulDivFloor(amount, bps, BasisPoints)
}
