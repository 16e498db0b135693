package lending

import (
	"fmt"
	"math/big"
	"time"

	"github.com/RippnerLabs/stervault/native/oracle"
)

// RiskEngine converts asset-denominated quantities to USD via the oracle feed
// registry and enforces the loan-to-value and liquidity admission rules that
// gate every value-moving operation. USD values are carried as big.Rat so the
// decimal normalisation by token decimals and oracle exponent is exact.
type RiskEngine struct {
	source oracle.PriceSource
	feeds  *oracle.FeedRegistry
	maxAge time.Duration
}

// NewRiskEngine constructs a risk engine backed by the given price source and
// symbol registry. A non-positive maxAge falls back to the oracle default.
func NewRiskEngine(source oracle.PriceSource, feeds *oracle.FeedRegistry, maxAge time.Duration) *RiskEngine {
	if maxAge <= 0 {
		maxAge = oracle.MaximumAge
	}
	return &RiskEngine{source: source, feeds: feeds, maxAge: maxAge}
}

// AssetPrice resolves the registered feed for a symbol and fetches a fresh
// price for it.
func (r *RiskEngine) AssetPrice(symbol string) (oracle.Price, error) {
	if r == nil || r.source == nil || r.feeds == nil {
		return oracle.Price{}, fmt.Errorf("risk engine: oracle not configured")
	}
	feedID, err := r.feeds.Resolve(symbol)
	if err != nil {
		return oracle.Price{}, err
	}
	return r.source.GetPrice(feedID, r.maxAge)
}

// UsdValue converts a raw token amount to USD:
// amount / 10^decimals * price * 10^expo. Both normalisations are applied
// explicitly; omitting either overstates value by orders of magnitude.
func UsdValue(amount uint64, decimals uint8, price oracle.Price) *big.Rat {
	value := new(big.Rat).SetInt(new(big.Int).SetUint64(amount))
	value.Quo(value, pow10Rat(int32(decimals)))
	value.Mul(value, priceRat(price))
	return value
}

// MaxBorrowable returns the USD value borrowable against the given collateral
// value under a max LTV expressed in basis points.
func MaxBorrowable(collateralUSD *big.Rat, maxLTVBps uint64) *big.Rat {
	ltv := new(big.Rat).SetFrac(new(big.Int).SetUint64(maxLTVBps), big.NewInt(BasisPoints))
	return ltv.Mul(ltv, collateralUSD)
}

// CheckBorrowAdmission fails with ErrBorrowAmountTooLarge when the projected
// debt after the new borrow exceeds the borrowable fraction of the collateral.
func CheckBorrowAdmission(existingDebtUSD, newBorrowUSD, collateralUSD *big.Rat, maxLTVBps uint64) error {
	projected := new(big.Rat).Add(existingDebtUSD, newBorrowUSD)
	if projected.Cmp(MaxBorrowable(collateralUSD, maxLTVBps)) > 0 {
		return ErrBorrowAmountTooLarge
	}
	return nil
}

// CheckLiquidityAdmission fails with ErrInsufficientLiquidity when the
// requested amount exceeds the pool's unborrowed reserve.
func CheckLiquidityAdmission(requested, totalAssets, totalBorrowedAssets uint64) error {
	if totalBorrowedAssets > totalAssets {
		return ErrInsufficientLiquidity
	}
	if requested > totalAssets-totalBorrowedAssets {
		return ErrInsufficientLiquidity
	}
	return nil
}

// CheckWithdrawAdmission fails with ErrWithdrawExceedsCollateralValue when the
// post-withdrawal collateral value can no longer support the existing debt
// under the pool's max LTV.
func CheckWithdrawAdmission(postWithdrawCollateralUSD, existingDebtUSD *big.Rat, maxLTVBps uint64) error {
	if existingDebtUSD.Sign() <= 0 {
		return nil
	}
	if existingDebtUSD.Cmp(MaxBorrowable(postWithdrawCollateralUSD, maxLTVBps)) > 0 {
		return ErrWithdrawExceedsCollateralValue
	}
	return nil
}

// CollateralLockAmount inverts the USD conversion to find the raw collateral
// token amount whose value covers borrowUSD, rounding up. Under-locking
// collateral relative to issued debt is a correctness violation; over-locking
// by one unit of precision is acceptable.
func CollateralLockAmount(borrowUSD *big.Rat, collateralPrice oracle.Price, collateralDecimals uint8) (uint64, error) {
	price := priceRat(collateralPrice)
	if price.Sign() <= 0 {
		return 0, fmt.Errorf("risk engine: collateral price must be positive")
	}
	units := new(big.Rat).Quo(borrowUSD, price)
	units.Mul(units, pow10Rat(int32(collateralDecimals)))
	return ratCeilU64(units)
}

// priceRat renders an oracle price as an exact rational: Price * 10^Expo.
func priceRat(p oracle.Price) *big.Rat {
	value := new(big.Rat).SetInt64(p.Price)
	if p.Expo >= 0 {
		return value.Mul(value, pow10Rat(p.Expo))
	}
	return value.Quo(value, pow10Rat(-p.Expo))
}

func pow10Rat(exp int32) *big.Rat {
	return new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
}

func ratCeilU64(r *big.Rat) (uint64, error) {
	if r.Sign() < 0 {
		return 0, ErrArithmeticOverflow
	}
	num := new(big.Int).Set(r.Num())
	den := r.Denom()
	num.Add(num, new(big.Int).Sub(den, big.NewInt(1)))
	num.Quo(num, den)
	if !num.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return num.Uint64(), nil
}
