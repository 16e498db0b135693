package bank

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/RippnerLabs/stervault/crypto"
	"github.com/RippnerLabs/stervault/storage"
)

var (
	// ErrInsufficientBalance signals a transfer larger than the sender's
	// balance in the asset.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrArithmeticOverflow signals a credit that would wrap the recipient's
	// balance.
	ErrArithmeticOverflow = errors.New("bank: arithmetic overflow")
)

const balanceKeyPrefix = "bank/balance/"

// Ledger tracks raw token balances per (asset, owner) pair and settles the
// custody legs of lending operations. Amounts are raw units at the asset's
// native precision; the decimals argument is carried for event consumers and
// does not change the arithmetic.
type Ledger struct {
	db storage.Database
}

// NewLedger wraps a database in the custody balance schema.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func balanceKey(asset string, owner crypto.Address) []byte {
	return []byte(balanceKeyPrefix + asset + "/" + hex.EncodeToString(owner.Bytes()))
}

// BalanceOf returns the raw balance held by owner in the asset. Unknown
// accounts hold zero.
func (l *Ledger) BalanceOf(owner crypto.Address, asset string) (uint64, error) {
	raw, err := l.db.Get(balanceKey(asset, owner))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	balance, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bank: corrupt balance record for %s: %w", asset, err)
	}
	return balance, nil
}

func (l *Ledger) setBalance(owner crypto.Address, asset string, balance uint64) error {
	return l.db.Put(balanceKey(asset, owner), []byte(strconv.FormatUint(balance, 10)))
}

// Mint credits freshly issued units to an account. Used to seed test fixtures
// and to bridge externally custodied funds into the ledger.
func (l *Ledger) Mint(owner crypto.Address, asset string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	balance, err := l.BalanceOf(owner, asset)
	if err != nil {
		return err
	}
	next := balance + amount
	if next < balance {
		return ErrArithmeticOverflow
	}
	return l.setBalance(owner, asset, next)
}

// Transfer moves amount raw units of asset from one account to another. The
// debit is validated before either side is written.
func (l *Ledger) Transfer(from, to crypto.Address, asset string, amount uint64, decimals uint8) error {
	if amount == 0 {
		return nil
	}
	if from.Equal(to) {
		return nil
	}
	fromBalance, err := l.BalanceOf(from, asset)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return fmt.Errorf("%w: %s needs %d of %s, holds %d", ErrInsufficientBalance, from.String(), amount, asset, fromBalance)
	}
	toBalance, err := l.BalanceOf(to, asset)
	if err != nil {
		return err
	}
	next := toBalance + amount
	if next < toBalance {
		return ErrArithmeticOverflow
	}
	if err := l.setBalance(from, asset, fromBalance-amount); err != nil {
		return err
	}
	return l.setBalance(to, asset, next)
}
