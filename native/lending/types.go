package lending

import (
	"github.com/RippnerLabs/stervault/crypto"
)

const (
	// MaxMints bounds the number of distinct assets tracked per user.
	MaxMints = 64
	// MaxBorrowPositions bounds the number of simultaneously registered
	// borrow positions per user.
	MaxBorrowPositions = 64
)

// Bank captures the aggregate share and asset accounting for a single lendable
// asset. Share counters are a relative claim on the asset side; interest
// accrual grows the asset side only, so the implied exchange rate
// (assets per share) is non-decreasing.
type Bank struct {
	// Asset is the identifier of the underlying token this bank custodies.
	Asset string
	// Authority is the administrative account that initialised the bank.
	Authority crypto.Address
	Name        string
	Description string
	// Symbol is the oracle pricing symbol for the underlying asset.
	Symbol string
	// Decimals is the fractional precision of the underlying token.
	Decimals uint8

	// TotalDeposited is the asset-side value of the deposit pool as of
	// LastCompoundTime, including all interest compounded so far.
	TotalDeposited uint64
	// TotalDepositedShares is the outstanding claim against TotalDeposited.
	TotalDepositedShares uint64
	// TotalBorrowed is the asset-side value of the outstanding debt as of
	// LastCompoundTime.
	TotalBorrowed uint64
	// TotalBorrowedShares is the outstanding claim against TotalBorrowed.
	TotalBorrowedShares uint64
	// TotalCollateralShares counts deposit shares currently locked as
	// collateral backing borrows elsewhere. Always a subset of
	// TotalDepositedShares.
	TotalCollateralShares uint64

	// DepositInterestRate and BorrowInterestRate are per-period rates scaled
	// by 1e6 (1_000_000 = 100% per period).
	DepositInterestRate uint64
	BorrowInterestRate  uint64
	// LastCompoundTime is the unix timestamp up to which interest has been
	// rolled into the asset-side totals. It only ever advances by whole
	// accrual periods.
	LastCompoundTime int64
	// InterestAccrualPeriod is the compounding period in seconds.
	InterestAccrualPeriod int64

	// MaxLTVBps is the borrowable fraction of collateral value in basis
	// points (10_000 = 100%).
	MaxLTVBps uint64
	// Liquidation parameters are recorded for the (unimplemented) liquidation
	// subsystem and never consulted by the core operations.
	LiquidationThresholdBps   uint64
	LiquidationBonusBps       uint64
	LiquidationCloseFactorBps uint64

	// MinDeposit, DepositFeeBps and WithdrawalFeeBps are policy parameters
	// applied by the operation orchestrators, not by the ledger itself.
	MinDeposit       uint64
	DepositFeeBps    uint64
	WithdrawalFeeBps uint64
}

// Clone returns a deep copy of the bank record.
func (b *Bank) Clone() *Bank {
	if b == nil {
		return nil
	}
	clone := *b
	return &clone
}

// UserTokenState maintains the per (owner, asset) position ledger.
// DepositedShares and CollateralShares partition the user's total deposit
// claim: lock/unlock moves shares between the two buckets without minting or
// burning.
type UserTokenState struct {
	Owner crypto.Address
	Asset string
	// DepositedShares is the free, unlocked claim on the deposit pool.
	DepositedShares uint64
	// CollateralShares is the portion of the user's deposit claim currently
	// locked against borrow positions.
	CollateralShares uint64
	// BorrowedShares is the user's claim on the asset's borrow pool, i.e.
	// outstanding debt denominated in borrow shares.
	BorrowedShares uint64
	// Last-interaction timestamps. Observational only: accrual correctness
	// depends on the bank's LastCompoundTime.
	LastUpdatedDeposited  int64
	LastUpdatedCollateral int64
	LastUpdatedBorrowed   int64
}

// Clone returns a deep copy of the user token state.
func (u *UserTokenState) Clone() *UserTokenState {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

// BorrowPosition tracks the collateral locked and debt owed for one specific
// (owner, collateral asset, borrow asset, id) relationship. A user may hold
// several simultaneous positions against the same asset pair.
type BorrowPosition struct {
	Owner           crypto.Address
	CollateralAsset string
	BorrowAsset     string
	ID              string
	// CollateralShares is the collateral locked for this position, a subset of
	// the owner's asset-level CollateralShares.
	CollateralShares uint64
	// BorrowedShares is the debt owed for this position, a subset of the
	// owner's asset-level BorrowedShares.
	BorrowedShares uint64
	LastUpdated    int64
	// Active is true while BorrowedShares > 0. Fully repaid positions persist
	// inactive rather than being destroyed.
	Active bool
}

// Clone returns a deep copy of the borrow position.
func (p *BorrowPosition) Clone() *BorrowPosition {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// PositionRef identifies a borrow position inside a user's global index.
type PositionRef struct {
	CollateralAsset string
	BorrowAsset     string
	ID              string
}

// UserGlobalState indexes a user's touched assets and active borrow positions.
// It is purely a discovery index and carries no financial invariant.
type UserGlobalState struct {
	User            crypto.Address
	DepositedAssets []string
	ActivePositions []PositionRef
}

// Clone returns a deep copy of the global state.
func (g *UserGlobalState) Clone() *UserGlobalState {
	if g == nil {
		return nil
	}
	clone := &UserGlobalState{User: g.User}
	clone.DepositedAssets = append([]string(nil), g.DepositedAssets...)
	clone.ActivePositions = append([]PositionRef(nil), g.ActivePositions...)
	return clone
}

// RegisterAsset records an asset the user has interacted with. Registering an
// already-known asset is a no-op.
func (g *UserGlobalState) RegisterAsset(asset string) error {
	for _, existing := range g.DepositedAssets {
		if existing == asset {
			return nil
		}
	}
	if len(g.DepositedAssets) >= MaxMints {
		return ErrMintLimit
	}
	g.DepositedAssets = append(g.DepositedAssets, asset)
	return nil
}

// RegisterPosition adds a position reference to the active list if absent.
func (g *UserGlobalState) RegisterPosition(ref PositionRef) error {
	for _, existing := range g.ActivePositions {
		if existing == ref {
			return nil
		}
	}
	if len(g.ActivePositions) >= MaxBorrowPositions {
		return ErrPositionLimit
	}
	g.ActivePositions = append(g.ActivePositions, ref)
	return nil
}

// RemovePosition drops a position reference from the active list. Removing an
// unknown reference is a no-op.
func (g *UserGlobalState) RemovePosition(ref PositionRef) {
	filtered := g.ActivePositions[:0]
	for _, existing := range g.ActivePositions {
		if existing == ref {
			continue
		}
		filtered = append(filtered, existing)
	}
	g.ActivePositions = filtered
}

// FeeAccrual records the deposit and withdrawal fees collected per bank. Fees
// are recorded only; distribution is out of scope.
type FeeAccrual struct {
	Asset          string
	DepositFees    uint64
	WithdrawalFees uint64
}

// Clone returns a deep copy of the fee accrual record.
func (f *FeeAccrual) Clone() *FeeAccrual {
	if f == nil {
		return nil
	}
	clone := *f
	return &clone
}
