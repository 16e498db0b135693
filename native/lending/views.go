package lending

import (
	"fmt"

	"github.com/RippnerLabs/stervault/crypto"
)

// BankSnapshot is a read-only projection of a bank's state as of the query
// instant, with asset-side totals projected forward through any elapsed
// accrual periods.
type BankSnapshot struct {
	Bank               *Bank
	TotalAssets        uint64
	TotalBorrowed      uint64
	AvailableLiquidity uint64
	AsOf               int64
}

// Snapshot returns the bank's current totals without mutating persisted state.
func (e *Engine) Snapshot(asset string) (*BankSnapshot, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	bank, err := e.state.GetBank(asset)
	if err != nil {
		return nil, err
	}
	if bank == nil {
		return nil, fmt.Errorf("%w: %s", ErrBankNotFound, asset)
	}
	now := e.now()
	assets, err := bank.TotalAssets(now)
	if err != nil {
		return nil, err
	}
	borrowed, err := bank.TotalBorrowedAssets(now)
	if err != nil {
		return nil, err
	}
	liquidity := uint64(0)
	if assets > borrowed {
		liquidity = assets - borrowed
	}
	return &BankSnapshot{
		Bank:               bank.Clone(),
		TotalAssets:        assets,
		TotalBorrowed:      borrowed,
		AvailableLiquidity: liquidity,
		AsOf:               now,
	}, nil
}

// Balances reports a user's position in a single asset, in both shares and
// current underlying units.
type Balances struct {
	Asset            string
	DepositedShares  uint64
	CollateralShares uint64
	BorrowedShares   uint64
	DepositedValue   uint64
	CollateralValue  uint64
	BorrowedValue    uint64
	AsOf             int64
}

// UserBalances answers "what is this user's current balance and debt in
// underlying units" for one asset.
func (e *Engine) UserBalances(owner crypto.Address, asset string) (*Balances, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	bank, err := e.state.GetBank(asset)
	if err != nil {
		return nil, err
	}
	if bank == nil {
		return nil, fmt.Errorf("%w: %s", ErrBankNotFound, asset)
	}
	user, err := e.ensureUserTokenState(owner, asset)
	if err != nil {
		return nil, err
	}
	now := e.now()
	deposited, err := bank.DepositAssetsForShares(user.DepositedShares, now)
	if err != nil {
		return nil, err
	}
	collateral, err := bank.DepositAssetsForShares(user.CollateralShares, now)
	if err != nil {
		return nil, err
	}
	borrowed, err := bank.BorrowAssetsForShares(user.BorrowedShares, now)
	if err != nil {
		return nil, err
	}
	return &Balances{
		Asset:            asset,
		DepositedShares:  user.DepositedShares,
		CollateralShares: user.CollateralShares,
		BorrowedShares:   user.BorrowedShares,
		DepositedValue:   deposited,
		CollateralValue:  collateral,
		BorrowedValue:    borrowed,
		AsOf:             now,
	}, nil
}

// PositionView pairs a borrow position with its current debt valuation.
type PositionView struct {
	Position    *BorrowPosition
	CurrentDebt uint64
	AsOf        int64
}

// Position resolves a single borrow position with its live debt value.
func (e *Engine) Position(owner crypto.Address, collateralAsset, borrowAsset, id string) (*PositionView, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	position, err := e.state.GetBorrowPosition(owner, collateralAsset, borrowAsset, id)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, ErrPositionNotFound
	}
	bank, err := e.state.GetBank(borrowAsset)
	if err != nil {
		return nil, err
	}
	if bank == nil {
		return nil, fmt.Errorf("%w: %s", ErrBankNotFound, borrowAsset)
	}
	now := e.now()
	debt, err := bank.BorrowAssetsForShares(position.BorrowedShares, now)
	if err != nil {
		return nil, err
	}
	return &PositionView{Position: position.Clone(), CurrentDebt: debt, AsOf: now}, nil
}

// Positions lists a user's registered borrow positions via the global index.
func (e *Engine) Positions(owner crypto.Address) ([]*PositionView, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	global, err := e.ensureUserGlobalState(owner)
	if err != nil {
		return nil, err
	}
	views := make([]*PositionView, 0, len(global.ActivePositions))
	for _, ref := range global.ActivePositions {
		view, err := e.Position(owner, ref.CollateralAsset, ref.BorrowAsset, ref.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}
