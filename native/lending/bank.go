package lending

// Accrue rolls compound interest into the bank's asset-side totals for every
// whole period elapsed since LastCompoundTime. Share counters never change
// here; only the implied exchange rate (assets per share) grows, which is how
// interest reaches depositors and accrues against borrowers without touching
// individual balances. LastCompoundTime advances by whole periods only, so the
// truncated remainder is re-evaluated by the next caller. Idempotent within a
// period window: a second call with the same clock is a no-op.
func (b *Bank) Accrue(now int64) error {
	periods := elapsedPeriods(now, b.LastCompoundTime, b.InterestAccrualPeriod)
	if periods <= 0 {
		return nil
	}
	bounded, err := boundPeriods(periods)
	if err != nil {
		return err
	}
	advance := periods * b.InterestAccrualPeriod

	// An empty pool has nothing to compound; advancing the clock keeps later
	// exchange-rate math from seeing a stale window.
	if b.TotalDepositedShares > 0 {
		compounded, err := compoundU64(b.TotalDeposited, b.DepositInterestRate, bounded)
		if err != nil {
			return err
		}
		b.TotalDeposited = compounded
	}
	if b.TotalBorrowedShares > 0 {
		compounded, err := compoundU64(b.TotalBorrowed, b.BorrowInterestRate, bounded)
		if err != nil {
			return err
		}
		b.TotalBorrowed = compounded
	}
	b.LastCompoundTime += advance
	return nil
}

// TotalAssets returns the asset-equivalent value of the deposit pool as of
// now, projecting any whole periods that have elapsed since the last accrual
// without mutating the bank.
func (b *Bank) TotalAssets(now int64) (uint64, error) {
	if b.TotalDepositedShares == 0 {
		return b.TotalDeposited, nil
	}
	periods, err := boundPeriods(elapsedPeriods(now, b.LastCompoundTime, b.InterestAccrualPeriod))
	if err != nil {
		return 0, err
	}
	return compoundU64(b.TotalDeposited, b.DepositInterestRate, periods)
}

// TotalBorrowedAssets returns the asset-equivalent value of the outstanding
// debt as of now.
func (b *Bank) TotalBorrowedAssets(now int64) (uint64, error) {
	if b.TotalBorrowedShares == 0 {
		return b.TotalBorrowed, nil
	}
	periods, err := boundPeriods(elapsedPeriods(now, b.LastCompoundTime, b.InterestAccrualPeriod))
	if err != nil {
		return 0, err
	}
	return compoundU64(b.TotalBorrowed, b.BorrowInterestRate, periods)
}

// DepositAssetsForShares answers "what is this share count worth in underlying
// units right now" on the deposit side.
func (b *Bank) DepositAssetsForShares(shares uint64, now int64) (uint64, error) {
	total, err := b.TotalAssets(now)
	if err != nil {
		return 0, err
	}
	return assetsForShares(shares, b.TotalDepositedShares, total)
}

// BorrowAssetsForShares answers "what does this share count owe in underlying
// units right now" on the borrow side.
func (b *Bank) BorrowAssetsForShares(shares uint64, now int64) (uint64, error) {
	total, err := b.TotalBorrowedAssets(now)
	if err != nil {
		return 0, err
	}
	return assetsForShares(shares, b.TotalBorrowedShares, total)
}

// AvailableLiquidity reports how much of the deposit pool is not currently
// lent out.
func (b *Bank) AvailableLiquidity(now int64) (uint64, error) {
	assets, err := b.TotalAssets(now)
	if err != nil {
		return 0, err
	}
	borrowed, err := b.TotalBorrowedAssets(now)
	if err != nil {
		return 0, err
	}
	if borrowed >= assets {
		return 0, nil
	}
	return assets - borrowed, nil
}
