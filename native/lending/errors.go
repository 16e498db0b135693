package lending

import "errors"

var (
	// ErrNilState signals that the engine was used before being wired to a
	// persistence layer.
	ErrNilState = errors.New("lending engine: state not configured")
	// ErrBankNotFound signals an operation against an asset whose bank was
	// never initialised.
	ErrBankNotFound = errors.New("lending engine: bank not initialised")
	// ErrBankExists signals an attempt to initialise a bank twice.
	ErrBankExists = errors.New("lending engine: bank already initialised")
	// ErrInvalidAmount rejects zero amounts before any other validation runs.
	ErrInvalidAmount = errors.New("lending engine: amount must be positive")

	// ErrArithmeticOverflow is returned whenever a checked add, sub, mul or
	// div cannot represent its result. It is always fatal to the operation.
	ErrArithmeticOverflow = errors.New("lending: arithmetic overflow")

	// ErrInvalidDepositAmount rejects deposits below the bank minimum.
	ErrInvalidDepositAmount = errors.New("lending: deposit below bank minimum")
	// ErrInsufficientFunds signals a withdrawal larger than the caller's free
	// (unlocked) deposit shares.
	ErrInsufficientFunds = errors.New("lending: insufficient unlocked deposit shares")
	// ErrInsufficientCollateral signals a borrow whose collateral lock exceeds
	// the caller's free deposit shares.
	ErrInsufficientCollateral = errors.New("lending: insufficient collateral")
	// ErrInsufficientLiquidity signals a request larger than the pool's
	// unborrowed reserve.
	ErrInsufficientLiquidity = errors.New("lending: insufficient pool liquidity")
	// ErrBorrowAmountTooLarge signals a borrow that would push the caller past
	// the pool's maximum loan-to-value.
	ErrBorrowAmountTooLarge = errors.New("lending: borrow exceeds max loan-to-value")
	// ErrBorrowAmountTooSmall signals a borrow too small to mint a single
	// borrow share at the current exchange rate.
	ErrBorrowAmountTooSmall = errors.New("lending: borrow amount too small")
	// ErrOverRepayRequest signals a repayment larger than the outstanding debt.
	ErrOverRepayRequest = errors.New("lending: repay exceeds outstanding debt")
	// ErrWithdrawExceedsCollateralValue signals a withdrawal that would leave
	// existing debt undercollateralised under the pool's max LTV.
	ErrWithdrawExceedsCollateralValue = errors.New("lending: withdrawal would undercollateralise outstanding debt")

	// ErrMintLimit bounds the number of assets tracked per user.
	ErrMintLimit = errors.New("lending: user asset list full")
	// ErrPositionLimit bounds the number of simultaneously active borrow
	// positions per user.
	ErrPositionLimit = errors.New("lending: user borrow position list full")
	// ErrPositionNotFound signals a repayment against an unknown position.
	ErrPositionNotFound = errors.New("lending: borrow position not found")
)
