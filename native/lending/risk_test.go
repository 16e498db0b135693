package lending

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/RippnerLabs/stervault/native/oracle"
)

func TestUsdValueNormalisesDecimalsAndExponent(t *testing.T) {
	// 1.5 tokens of a 6-decimal asset at $25 quoted Pyth-style with expo -8.
	price := oracle.Price{Price: 2_500_000_000, Expo: -8}
	got := UsdValue(1_500000, 6, price)
	want := new(big.Rat).SetFrac64(75, 2)
	if got.Cmp(want) != 0 {
		t.Fatalf("expected $37.50, got %s", got.FloatString(4))
	}

	// Positive exponents scale up.
	got = UsdValue(3, 0, oracle.Price{Price: 2, Expo: 3})
	if got.Cmp(new(big.Rat).SetInt64(6000)) != 0 {
		t.Fatalf("expected $6000, got %s", got.FloatString(4))
	}
}

func TestMaxBorrowable(t *testing.T) {
	collateral := new(big.Rat).SetInt64(1000)
	got := MaxBorrowable(collateral, 7500)
	if got.Cmp(new(big.Rat).SetInt64(750)) != 0 {
		t.Fatalf("expected $750, got %s", got.FloatString(4))
	}
}

func TestCheckBorrowAdmissionBoundary(t *testing.T) {
	collateral := new(big.Rat).SetInt64(1000)
	zero := new(big.Rat)

	// Exactly at the cap is admitted; one cent over is not.
	if err := CheckBorrowAdmission(zero, new(big.Rat).SetInt64(750), collateral, 7500); err != nil {
		t.Fatalf("borrow at the cap must be admitted: %v", err)
	}
	over := new(big.Rat).SetFrac64(75001, 100)
	if err := CheckBorrowAdmission(zero, over, collateral, 7500); !errors.Is(err, ErrBorrowAmountTooLarge) {
		t.Fatalf("expected ErrBorrowAmountTooLarge, got %v", err)
	}

	// Existing debt counts against the cap.
	existing := new(big.Rat).SetInt64(700)
	if err := CheckBorrowAdmission(existing, new(big.Rat).SetInt64(100), collateral, 7500); !errors.Is(err, ErrBorrowAmountTooLarge) {
		t.Fatalf("expected cumulative debt rejection, got %v", err)
	}
}

func TestCheckLiquidityAdmission(t *testing.T) {
	if err := CheckLiquidityAdmission(100, 1000, 900); err != nil {
		t.Fatalf("request equal to the reserve must pass: %v", err)
	}
	if err := CheckLiquidityAdmission(101, 1000, 900); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if err := CheckLiquidityAdmission(1, 1000, 1001); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("over-borrowed pool must fail closed, got %v", err)
	}
}

func TestCheckWithdrawAdmission(t *testing.T) {
	debt := new(big.Rat).SetInt64(500)
	if err := CheckWithdrawAdmission(new(big.Rat).SetInt64(700), debt, 7500); err != nil {
		t.Fatalf("sufficient backing must pass: %v", err)
	}
	if err := CheckWithdrawAdmission(new(big.Rat).SetInt64(600), debt, 7500); !errors.Is(err, ErrWithdrawExceedsCollateralValue) {
		t.Fatalf("expected ErrWithdrawExceedsCollateralValue, got %v", err)
	}
	if err := CheckWithdrawAdmission(new(big.Rat), new(big.Rat), 7500); err != nil {
		t.Fatalf("no debt means no constraint: %v", err)
	}
}

func TestCollateralLockAmountRoundsUp(t *testing.T) {
	// $100 of debt against a $3 collateral token with 6 decimals needs
	// 33.333... tokens; the lock must round up to the next raw unit.
	price := oracle.Price{Price: 3, Expo: 0}
	got, err := CollateralLockAmount(new(big.Rat).SetInt64(100), price, 6)
	if err != nil {
		t.Fatalf("lock amount: %v", err)
	}
	if got != 33_333_334 {
		t.Fatalf("expected 33333334 raw units, got %d", got)
	}

	exact, err := CollateralLockAmount(new(big.Rat).SetInt64(99), price, 6)
	if err != nil {
		t.Fatalf("lock amount: %v", err)
	}
	if exact != 33_000_000 {
		t.Fatalf("exact division must not round up, got %d", exact)
	}

	if _, err := CollateralLockAmount(new(big.Rat).SetInt64(100), oracle.Price{Price: 0, Expo: 0}, 6); err == nil {
		t.Fatalf("expected zero collateral price to be rejected")
	}
}

func TestRiskEngineResolvesSymbolThroughRegistry(t *testing.T) {
	source := oracle.NewManualSource()
	now := time.Unix(1_700_000_000, 0)
	source.SetClock(func() time.Time { return now })
	source.Set("feed-sol", oracle.Price{Price: 150, Expo: 0, PublishTime: now})

	feeds := oracle.NewFeedRegistry()
	if err := feeds.Store("sol", "feed-sol"); err != nil {
		t.Fatalf("store feed: %v", err)
	}

	risk := NewRiskEngine(source, feeds, time.Hour)
	price, err := risk.AssetPrice("SOL")
	if err != nil {
		t.Fatalf("asset price: %v", err)
	}
	if price.Price != 150 {
		t.Fatalf("unexpected price %+v", price)
	}

	if _, err := risk.AssetPrice("BTC"); !errors.Is(err, oracle.ErrInvalidPriceFeed) {
		t.Fatalf("expected ErrInvalidPriceFeed for unregistered symbol, got %v", err)
	}
}
