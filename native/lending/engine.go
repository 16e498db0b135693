package lending

import (
	"fmt"
	"math/big"
	"time"

	"github.com/RippnerLabs/stervault/crypto"
	nativecommon "github.com/RippnerLabs/stervault/native/common"
)

const moduleName = "lending"

// engineState is the persistence boundary for the ledger. The hosting runtime
// serialises all mutations to a given record, so the engine never sees
// interleaved partial writes.
type engineState interface {
	GetBank(asset string) (*Bank, error)
	PutBank(bank *Bank) error
	GetUserTokenState(asset string, owner crypto.Address) (*UserTokenState, error)
	PutUserTokenState(state *UserTokenState) error
	GetBorrowPosition(owner crypto.Address, collateralAsset, borrowAsset, id string) (*BorrowPosition, error)
	PutBorrowPosition(position *BorrowPosition) error
	GetUserGlobalState(owner crypto.Address) (*UserGlobalState, error)
	PutUserGlobalState(state *UserGlobalState) error
	GetFeeAccrual(asset string) (*FeeAccrual, error)
	PutFeeAccrual(fees *FeeAccrual) error
}

// AssetTransfer moves custody of the underlying asset between accounts. The
// engine invokes it only after all admission checks have passed. Inbound legs
// (deposit, repay) are collected before bookkeeping persists so an unfunded
// caller cannot mint claims; outbound legs (withdraw, borrow) settle last
// against the vault, whose balance the prior accounting guarantees.
type AssetTransfer interface {
	Transfer(from, to crypto.Address, asset string, amount uint64, decimals uint8) error
}

// Engine orchestrates the primary state transitions for the lending ledger:
// deposit, withdraw, borrow and repay. Every operation accrues interest on the
// banks it touches, validates fully against the risk engine, collects any
// inbound funds, mutates shares, and pays out last.
type Engine struct {
	state     engineState
	risk      *RiskEngine
	transfers AssetTransfer
	vault     crypto.Address
	pauses    nativecommon.PauseView
	nowFn     func() int64
}

// NewEngine constructs a lending engine custodying pool reserves at the vault
// address and pricing positions through the supplied risk engine.
func NewEngine(vault crypto.Address, risk *RiskEngine) *Engine {
	return &Engine{
		vault: vault,
		risk:  risk,
		nowFn: func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTransfers wires the custody collaborator.
func (e *Engine) SetTransfers(transfers AssetTransfer) {
	if e == nil {
		return
	}
	e.transfers = transfers
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetClock overrides the engine clock. Used by tests and deterministic replay.
func (e *Engine) SetClock(now func() int64) {
	if e == nil || now == nil {
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 { return e.nowFn() }

// BankParams carries the administrative parameters supplied when a bank is
// initialised.
type BankParams struct {
	Asset                     string
	Name                      string
	Description               string
	Symbol                    string
	Decimals                  uint8
	DepositInterestRate       uint64
	BorrowInterestRate        uint64
	InterestAccrualPeriod     int64
	MaxLTVBps                 uint64
	LiquidationThresholdBps   uint64
	LiquidationBonusBps       uint64
	LiquidationCloseFactorBps uint64
	MinDeposit                uint64
	DepositFeeBps             uint64
	WithdrawalFeeBps          uint64
}

// InitBank creates the bank record for an asset. Banks are created once and
// never deleted; initialising an existing asset fails.
func (e *Engine) InitBank(authority crypto.Address, params BankParams) (*Bank, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if params.Asset == "" {
		return nil, fmt.Errorf("lending engine: asset identifier required")
	}
	if params.InterestAccrualPeriod <= 0 {
		return nil, fmt.Errorf("lending engine: accrual period must be positive")
	}
	if params.MaxLTVBps > BasisPoints {
		return nil, fmt.Errorf("lending engine: max LTV exceeds 100%%")
	}
	existing, err := e.state.GetBank(params.Asset)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrBankExists
	}
	bank := &Bank{
		Asset:                     params.Asset,
		Authority:                 authority,
		Name:                      params.Name,
		Description:               params.Description,
		Symbol:                    params.Symbol,
		Decimals:                  params.Decimals,
		DepositInterestRate:       params.DepositInterestRate,
		BorrowInterestRate:        params.BorrowInterestRate,
		LastCompoundTime:          e.now(),
		InterestAccrualPeriod:     params.InterestAccrualPeriod,
		MaxLTVBps:                 params.MaxLTVBps,
		LiquidationThresholdBps:   params.LiquidationThresholdBps,
		LiquidationBonusBps:       params.LiquidationBonusBps,
		LiquidationCloseFactorBps: params.LiquidationCloseFactorBps,
		MinDeposit:                params.MinDeposit,
		DepositFeeBps:             params.DepositFeeBps,
		WithdrawalFeeBps:          params.WithdrawalFeeBps,
	}
	if err := e.state.PutBank(bank); err != nil {
		return nil, err
	}
	return bank, nil
}

// Deposit credits the caller with deposit shares proportional to the amount at
// the pool's current exchange rate (1:1 for the first depositor). The minted
// share count is returned.
func (e *Engine) Deposit(owner crypto.Address, asset string, amount uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}

	now := e.now()
	bank, err := e.loadBankAccrued(asset, now)
	if err != nil {
		return 0, err
	}
	if amount < bank.MinDeposit {
		return 0, ErrInvalidDepositAmount
	}

	fee, err := feeAmount(amount, bank.DepositFeeBps)
	if err != nil {
		return 0, err
	}
	credited, err := checkedSub(amount, fee)
	if err != nil {
		return 0, err
	}

	minted, err := sharesForAssets(credited, bank.TotalDepositedShares, bank.TotalDeposited)
	if err != nil {
		return 0, err
	}

	user, err := e.ensureUserTokenState(owner, asset)
	if err != nil {
		return 0, err
	}
	global, err := e.ensureUserGlobalState(owner)
	if err != nil {
		return 0, err
	}
	if err := global.RegisterAsset(asset); err != nil {
		return 0, err
	}

	// Collect custody before any bookkeeping lands: a deposit that cannot be
	// funded must leave no minted shares behind.
	if err := e.moveAssets(owner, e.vault, asset, amount, bank.Decimals); err != nil {
		return 0, err
	}

	if bank.TotalDeposited, err = checkedAdd(bank.TotalDeposited, credited); err != nil {
		return 0, err
	}
	if bank.TotalDepositedShares, err = checkedAdd(bank.TotalDepositedShares, minted); err != nil {
		return 0, err
	}
	if user.DepositedShares, err = checkedAdd(user.DepositedShares, minted); err != nil {
		return 0, err
	}
	user.LastUpdatedDeposited = now

	if err := e.state.PutUserTokenState(user); err != nil {
		return 0, err
	}
	if err := e.state.PutBank(bank); err != nil {
		return 0, err
	}
	if err := e.state.PutUserGlobalState(global); err != nil {
		return 0, err
	}
	if fee > 0 {
		if err := e.recordFee(asset, fee, 0); err != nil {
			return 0, err
		}
	}
	return minted, nil
}

// Withdraw burns deposit shares equivalent to the requested amount at the
// current exchange rate and releases the amount (net of the withdrawal fee)
// back to the caller. Only free shares can be burnt; when the asset also backs
// outstanding debt the post-withdrawal collateral value must still support
// that debt under the pool's max LTV. The burnt share count is returned.
func (e *Engine) Withdraw(owner crypto.Address, asset string, amount uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}

	now := e.now()
	bank, err := e.loadBankAccrued(asset, now)
	if err != nil {
		return 0, err
	}

	user, err := e.ensureUserTokenState(owner, asset)
	if err != nil {
		return 0, err
	}

	shares, err := sharesForAssets(amount, bank.TotalDepositedShares, bank.TotalDeposited)
	if err != nil {
		return 0, err
	}
	if shares > user.DepositedShares {
		return 0, ErrInsufficientFunds
	}

	borrowed, err := bank.TotalBorrowedAssets(now)
	if err != nil {
		return 0, err
	}
	if err := CheckLiquidityAdmission(amount, bank.TotalDeposited, borrowed); err != nil {
		return 0, err
	}

	if user.CollateralShares > 0 {
		global, err := e.ensureUserGlobalState(owner)
		if err != nil {
			return 0, err
		}
		debtUSD, err := e.outstandingDebtUSD(global, asset, now)
		if err != nil {
			return 0, err
		}
		if debtUSD.Sign() > 0 {
			remaining, err := checkedSub(user.DepositedShares, shares)
			if err != nil {
				return 0, err
			}
			backing, err := checkedAdd(remaining, user.CollateralShares)
			if err != nil {
				return 0, err
			}
			backingAssets, err := assetsForShares(backing, bank.TotalDepositedShares, bank.TotalDeposited)
			if err != nil {
				return 0, err
			}
			price, err := e.risk.AssetPrice(bank.Symbol)
			if err != nil {
				return 0, err
			}
			postUSD := UsdValue(backingAssets, bank.Decimals, price)
			if err := CheckWithdrawAdmission(postUSD, debtUSD, bank.MaxLTVBps); err != nil {
				return 0, err
			}
		}
	}

	fee, err := feeAmount(amount, bank.WithdrawalFeeBps)
	if err != nil {
		return 0, err
	}
	payout, err := checkedSub(amount, fee)
	if err != nil {
		return 0, err
	}

	if user.DepositedShares, err = checkedSub(user.DepositedShares, shares); err != nil {
		return 0, err
	}
	if bank.TotalDepositedShares, err = checkedSub(bank.TotalDepositedShares, shares); err != nil {
		return 0, err
	}
	if bank.TotalDeposited, err = checkedSub(bank.TotalDeposited, amount); err != nil {
		return 0, err
	}
	user.LastUpdatedDeposited = now

	if err := e.state.PutUserTokenState(user); err != nil {
		return 0, err
	}
	if err := e.state.PutBank(bank); err != nil {
		return 0, err
	}
	if fee > 0 {
		if err := e.recordFee(asset, 0, fee); err != nil {
			return 0, err
		}
	}

	if err := e.moveAssets(e.vault, owner, asset, payout, bank.Decimals); err != nil {
		return 0, err
	}
	return shares, nil
}

// Borrow issues debt against locked collateral. Both pools are accrued, the
// borrow is admitted against the pool's max LTV and available liquidity, and
// collateral shares covering the borrow's USD value (ceiling rounded) move
// from the caller's free deposit bucket to the locked bucket. The minted
// borrow share count is returned.
func (e *Engine) Borrow(owner crypto.Address, collateralAsset, borrowAsset string, amount uint64, positionID string) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	if positionID == "" {
		return 0, fmt.Errorf("lending engine: position id required")
	}

	now := e.now()
	collateralBank, err := e.loadBankAccrued(collateralAsset, now)
	if err != nil {
		return 0, err
	}
	borrowBank, err := e.loadBankAccrued(borrowAsset, now)
	if err != nil {
		return 0, err
	}

	userCollateral, err := e.ensureUserTokenState(owner, collateralAsset)
	if err != nil {
		return 0, err
	}
	userBorrow, err := e.ensureUserTokenState(owner, borrowAsset)
	if err != nil {
		return 0, err
	}
	global, err := e.ensureUserGlobalState(owner)
	if err != nil {
		return 0, err
	}

	collateralPrice, err := e.risk.AssetPrice(collateralBank.Symbol)
	if err != nil {
		return 0, err
	}
	borrowPrice, err := e.risk.AssetPrice(borrowBank.Symbol)
	if err != nil {
		return 0, err
	}

	backing, err := checkedAdd(userCollateral.DepositedShares, userCollateral.CollateralShares)
	if err != nil {
		return 0, err
	}
	backingAssets, err := assetsForShares(backing, collateralBank.TotalDepositedShares, collateralBank.TotalDeposited)
	if err != nil {
		return 0, err
	}
	collateralUSD := UsdValue(backingAssets, collateralBank.Decimals, collateralPrice)

	existingDebtUSD, err := e.outstandingDebtUSD(global, collateralAsset, now)
	if err != nil {
		return 0, err
	}
	borrowUSD := UsdValue(amount, borrowBank.Decimals, borrowPrice)

	// The collateral bank's max LTV bounds the loan, matching the withdraw
	// check; a looser borrow market cannot relax the collateral's bound.
	if err := CheckBorrowAdmission(existingDebtUSD, borrowUSD, collateralUSD, collateralBank.MaxLTVBps); err != nil {
		return 0, err
	}
	if err := CheckLiquidityAdmission(amount, borrowBank.TotalDeposited, borrowBank.TotalBorrowed); err != nil {
		return 0, err
	}

	minted, err := sharesForAssets(amount, borrowBank.TotalBorrowedShares, borrowBank.TotalBorrowed)
	if err != nil {
		return 0, err
	}
	if minted == 0 {
		return 0, ErrBorrowAmountTooSmall
	}

	lockAssets, err := CollateralLockAmount(borrowUSD, collateralPrice, collateralBank.Decimals)
	if err != nil {
		return 0, err
	}
	lockShares, err := sharesForAssetsCeil(lockAssets, collateralBank.TotalDepositedShares, collateralBank.TotalDeposited)
	if err != nil {
		return 0, err
	}
	if lockShares > userCollateral.DepositedShares {
		return 0, ErrInsufficientCollateral
	}

	position, err := e.ensureBorrowPosition(owner, collateralAsset, borrowAsset, positionID)
	if err != nil {
		return 0, err
	}
	ref := PositionRef{CollateralAsset: collateralAsset, BorrowAsset: borrowAsset, ID: positionID}
	if err := global.RegisterPosition(ref); err != nil {
		return 0, err
	}

	if borrowBank.TotalBorrowed, err = checkedAdd(borrowBank.TotalBorrowed, amount); err != nil {
		return 0, err
	}
	if borrowBank.TotalBorrowedShares, err = checkedAdd(borrowBank.TotalBorrowedShares, minted); err != nil {
		return 0, err
	}
	if userBorrow.BorrowedShares, err = checkedAdd(userBorrow.BorrowedShares, minted); err != nil {
		return 0, err
	}
	if position.BorrowedShares, err = checkedAdd(position.BorrowedShares, minted); err != nil {
		return 0, err
	}
	if position.CollateralShares, err = checkedAdd(position.CollateralShares, lockShares); err != nil {
		return 0, err
	}
	if userCollateral.DepositedShares, err = checkedSub(userCollateral.DepositedShares, lockShares); err != nil {
		return 0, err
	}
	if userCollateral.CollateralShares, err = checkedAdd(userCollateral.CollateralShares, lockShares); err != nil {
		return 0, err
	}
	if collateralBank.TotalCollateralShares, err = checkedAdd(collateralBank.TotalCollateralShares, lockShares); err != nil {
		return 0, err
	}
	position.Active = true
	position.LastUpdated = now
	userBorrow.LastUpdatedBorrowed = now
	userCollateral.LastUpdatedCollateral = now

	if err := e.state.PutBorrowPosition(position); err != nil {
		return 0, err
	}
	if err := e.state.PutUserTokenState(userCollateral); err != nil {
		return 0, err
	}
	if err := e.state.PutUserTokenState(userBorrow); err != nil {
		return 0, err
	}
	if err := e.state.PutBank(collateralBank); err != nil {
		return 0, err
	}
	if err := e.state.PutBank(borrowBank); err != nil {
		return 0, err
	}
	if err := e.state.PutUserGlobalState(global); err != nil {
		return 0, err
	}

	if err := e.moveAssets(e.vault, owner, borrowAsset, amount, borrowBank.Decimals); err != nil {
		return 0, err
	}
	return minted, nil
}

// Repay retires debt on a borrow position and unlocks the matching collateral
// back into the caller's free deposit bucket. Repaying more than the current
// debt fails with ErrOverRepayRequest before any mutation. A full repayment
// unlocks the position's remaining collateral and deactivates it. The burnt
// borrow share count is returned.
func (e *Engine) Repay(owner crypto.Address, collateralAsset, borrowAsset string, amount uint64, positionID string) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}

	now := e.now()
	collateralBank, err := e.loadBankAccrued(collateralAsset, now)
	if err != nil {
		return 0, err
	}
	borrowBank, err := e.loadBankAccrued(borrowAsset, now)
	if err != nil {
		return 0, err
	}

	position, err := e.state.GetBorrowPosition(owner, collateralAsset, borrowAsset, positionID)
	if err != nil {
		return 0, err
	}
	if position == nil {
		return 0, ErrPositionNotFound
	}

	currentDebt, err := assetsForShares(position.BorrowedShares, borrowBank.TotalBorrowedShares, borrowBank.TotalBorrowed)
	if err != nil {
		return 0, err
	}
	if amount > currentDebt {
		return 0, ErrOverRepayRequest
	}

	userCollateral, err := e.ensureUserTokenState(owner, collateralAsset)
	if err != nil {
		return 0, err
	}
	userBorrow, err := e.ensureUserTokenState(owner, borrowAsset)
	if err != nil {
		return 0, err
	}

	burned, err := sharesForAssets(amount, borrowBank.TotalBorrowedShares, borrowBank.TotalBorrowed)
	if err != nil {
		return 0, err
	}
	// Full repayment retires every remaining share so rounding dust cannot
	// strand the position active.
	if amount == currentDebt || burned > position.BorrowedShares {
		burned = position.BorrowedShares
	}

	unlock, err := e.collateralToUnlock(position, userCollateral, collateralBank, borrowBank, burned, amount)
	if err != nil {
		return 0, err
	}

	// Collect the repayment before retiring debt: an unfunded repay must leave
	// the position and its locked collateral untouched.
	if err := e.moveAssets(owner, e.vault, borrowAsset, amount, borrowBank.Decimals); err != nil {
		return 0, err
	}

	if borrowBank.TotalBorrowed, err = checkedSub(borrowBank.TotalBorrowed, amount); err != nil {
		return 0, err
	}
	if borrowBank.TotalBorrowedShares, err = checkedSub(borrowBank.TotalBorrowedShares, burned); err != nil {
		return 0, err
	}
	if userBorrow.BorrowedShares, err = checkedSub(userBorrow.BorrowedShares, burned); err != nil {
		return 0, err
	}
	if position.BorrowedShares, err = checkedSub(position.BorrowedShares, burned); err != nil {
		return 0, err
	}
	if position.CollateralShares, err = checkedSub(position.CollateralShares, unlock); err != nil {
		return 0, err
	}
	if userCollateral.CollateralShares, err = checkedSub(userCollateral.CollateralShares, unlock); err != nil {
		return 0, err
	}
	if userCollateral.DepositedShares, err = checkedAdd(userCollateral.DepositedShares, unlock); err != nil {
		return 0, err
	}
	if collateralBank.TotalCollateralShares, err = checkedSub(collateralBank.TotalCollateralShares, unlock); err != nil {
		return 0, err
	}
	position.LastUpdated = now
	userBorrow.LastUpdatedBorrowed = now
	userCollateral.LastUpdatedCollateral = now

	var global *UserGlobalState
	if position.BorrowedShares == 0 {
		position.Active = false
		global, err = e.ensureUserGlobalState(owner)
		if err != nil {
			return 0, err
		}
		global.RemovePosition(PositionRef{CollateralAsset: collateralAsset, BorrowAsset: borrowAsset, ID: positionID})
	}

	if err := e.state.PutBorrowPosition(position); err != nil {
		return 0, err
	}
	if err := e.state.PutUserTokenState(userCollateral); err != nil {
		return 0, err
	}
	if err := e.state.PutUserTokenState(userBorrow); err != nil {
		return 0, err
	}
	if err := e.state.PutBank(collateralBank); err != nil {
		return 0, err
	}
	if err := e.state.PutBank(borrowBank); err != nil {
		return 0, err
	}
	if global != nil {
		if err := e.state.PutUserGlobalState(global); err != nil {
			return 0, err
		}
	}
	return burned, nil
}

// collateralToUnlock inverts the lock formula for the repaid value, clamped so
// it can never exceed either the position's locked collateral or the user's
// locked total. A full repayment releases everything the position holds.
func (e *Engine) collateralToUnlock(position *BorrowPosition, userCollateral *UserTokenState, collateralBank, borrowBank *Bank, burned, amount uint64) (uint64, error) {
	if burned >= position.BorrowedShares {
		return position.CollateralShares, nil
	}
	borrowPrice, err := e.risk.AssetPrice(borrowBank.Symbol)
	if err != nil {
		return 0, err
	}
	collateralPrice, err := e.risk.AssetPrice(collateralBank.Symbol)
	if err != nil {
		return 0, err
	}
	repaidUSD := UsdValue(amount, borrowBank.Decimals, borrowPrice)
	unlockAssets, err := CollateralLockAmount(repaidUSD, collateralPrice, collateralBank.Decimals)
	if err != nil {
		return 0, err
	}
	unlock, err := sharesForAssets(unlockAssets, collateralBank.TotalDepositedShares, collateralBank.TotalDeposited)
	if err != nil {
		return 0, err
	}
	if unlock > position.CollateralShares {
		unlock = position.CollateralShares
	}
	if unlock > userCollateral.CollateralShares {
		unlock = userCollateral.CollateralShares
	}
	return unlock, nil
}

// outstandingDebtUSD totals the current USD value of the user's active borrow
// positions backed by the given collateral asset.
func (e *Engine) outstandingDebtUSD(global *UserGlobalState, collateralAsset string, now int64) (*big.Rat, error) {
	total := new(big.Rat)
	banks := make(map[string]*Bank)
	for _, ref := range global.ActivePositions {
		if ref.CollateralAsset != collateralAsset {
			continue
		}
		position, err := e.state.GetBorrowPosition(global.User, ref.CollateralAsset, ref.BorrowAsset, ref.ID)
		if err != nil {
			return nil, err
		}
		if position == nil || !position.Active || position.BorrowedShares == 0 {
			continue
		}
		bank, ok := banks[ref.BorrowAsset]
		if !ok {
			bank, err = e.state.GetBank(ref.BorrowAsset)
			if err != nil {
				return nil, err
			}
			if bank == nil {
				return nil, fmt.Errorf("%w: %s", ErrBankNotFound, ref.BorrowAsset)
			}
			banks[ref.BorrowAsset] = bank
		}
		debtAssets, err := bank.BorrowAssetsForShares(position.BorrowedShares, now)
		if err != nil {
			return nil, err
		}
		price, err := e.risk.AssetPrice(bank.Symbol)
		if err != nil {
			return nil, err
		}
		total.Add(total, UsdValue(debtAssets, bank.Decimals, price))
	}
	return total, nil
}

func (e *Engine) loadBankAccrued(asset string, now int64) (*Bank, error) {
	bank, err := e.state.GetBank(asset)
	if err != nil {
		return nil, err
	}
	if bank == nil {
		return nil, fmt.Errorf("%w: %s", ErrBankNotFound, asset)
	}
	if err := bank.Accrue(now); err != nil {
		return nil, err
	}
	return bank, nil
}

func (e *Engine) ensureUserTokenState(owner crypto.Address, asset string) (*UserTokenState, error) {
	user, err := e.state.GetUserTokenState(asset, owner)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &UserTokenState{Owner: owner, Asset: asset}
	}
	return user, nil
}

func (e *Engine) ensureBorrowPosition(owner crypto.Address, collateralAsset, borrowAsset, id string) (*BorrowPosition, error) {
	position, err := e.state.GetBorrowPosition(owner, collateralAsset, borrowAsset, id)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &BorrowPosition{
			Owner:           owner,
			CollateralAsset: collateralAsset,
			BorrowAsset:     borrowAsset,
			ID:              id,
		}
	}
	return position, nil
}

func (e *Engine) ensureUserGlobalState(owner crypto.Address) (*UserGlobalState, error) {
	global, err := e.state.GetUserGlobalState(owner)
	if err != nil {
		return nil, err
	}
	if global == nil {
		global = &UserGlobalState{User: owner}
	}
	return global, nil
}

func (e *Engine) recordFee(asset string, deposit, withdrawal uint64) error {
	fees, err := e.state.GetFeeAccrual(asset)
	if err != nil {
		return err
	}
	if fees == nil {
		fees = &FeeAccrual{Asset: asset}
	}
	if fees.DepositFees, err = checkedAdd(fees.DepositFees, deposit); err != nil {
		return err
	}
	if fees.WithdrawalFees, err = checkedAdd(fees.WithdrawalFees, withdrawal); err != nil {
		return err
	}
	return e.state.PutFeeAccrual(fees)
}

// moveAssets hands custody to the transfer collaborator. A nil collaborator
// means custody is handled out of band.
func (e *Engine) moveAssets(from, to crypto.Address, asset string, amount uint64, decimals uint8) error {
	if e.transfers == nil || amount == 0 {
		return nil
	}
	if err := e.transfers.Transfer(from, to, asset, amount, decimals); err != nil {
		return fmt.Errorf("lending engine: settle %s transfer: %w", asset, err)
	}
	return nil
}
