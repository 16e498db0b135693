package storage

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/RippnerLabs/stervault/crypto"
	"github.com/RippnerLabs/stervault/native/lending"
)

const (
	bankKeyPrefix     = "lending/bank/"
	bankIndexKey      = "lending/banks"
	userKeyPrefix     = "lending/user/"
	positionKeyPrefix = "lending/position/"
	globalKeyPrefix   = "lending/global/"
	feeKeyPrefix      = "lending/fees/"
)

// LendingStore persists the lending ledger's records in a key-value database
// as JSON documents. It satisfies the persistence boundary the lending engine
// is wired against.
type LendingStore struct {
	db Database
}

// NewLendingStore wraps a database in the lending key schema.
func NewLendingStore(db Database) *LendingStore {
	return &LendingStore{db: db}
}

func ownerKey(owner crypto.Address) string {
	return hex.EncodeToString(owner.Bytes())
}

func bankKey(asset string) []byte {
	return []byte(bankKeyPrefix + asset)
}

func userStateKey(asset string, owner crypto.Address) []byte {
	return []byte(userKeyPrefix + asset + "/" + ownerKey(owner))
}

func borrowPositionKey(owner crypto.Address, collateralAsset, borrowAsset, id string) []byte {
	return []byte(positionKeyPrefix + ownerKey(owner) + "/" + collateralAsset + "/" + borrowAsset + "/" + id)
}

func globalStateKey(owner crypto.Address) []byte {
	return []byte(globalKeyPrefix + ownerKey(owner))
}

func feeAccrualKey(asset string) []byte {
	return []byte(feeKeyPrefix + asset)
}

// get decodes the record at key into out, reporting found=false when the key
// has never been written.
func (s *LendingStore) get(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("storage: decode %s: %w", string(key), err)
	}
	return true, nil
}

func (s *LendingStore) put(key []byte, record interface{}) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", string(key), err)
	}
	return s.db.Put(key, raw)
}

func (s *LendingStore) GetBank(asset string) (*lending.Bank, error) {
	bank := new(lending.Bank)
	found, err := s.get(bankKey(asset), bank)
	if err != nil || !found {
		return nil, err
	}
	return bank, nil
}

func (s *LendingStore) PutBank(bank *lending.Bank) error {
	if bank == nil || bank.Asset == "" {
		return fmt.Errorf("storage: bank record requires an asset")
	}
	if err := s.put(bankKey(bank.Asset), bank); err != nil {
		return err
	}
	return s.indexBank(bank.Asset)
}

// indexBank records the asset in the sorted bank index consumed by ListBanks.
func (s *LendingStore) indexBank(asset string) error {
	var assets []string
	if _, err := s.get([]byte(bankIndexKey), &assets); err != nil {
		return err
	}
	for _, existing := range assets {
		if existing == asset {
			return nil
		}
	}
	assets = append(assets, asset)
	sort.Strings(assets)
	return s.put([]byte(bankIndexKey), assets)
}

// ListBanks returns every initialised bank, ordered by asset identifier.
func (s *LendingStore) ListBanks() ([]*lending.Bank, error) {
	var assets []string
	if _, err := s.get([]byte(bankIndexKey), &assets); err != nil {
		return nil, err
	}
	banks := make([]*lending.Bank, 0, len(assets))
	for _, asset := range assets {
		bank, err := s.GetBank(asset)
		if err != nil {
			return nil, err
		}
		if bank == nil {
			return nil, fmt.Errorf("storage: indexed bank %s missing", asset)
		}
		banks = append(banks, bank)
	}
	return banks, nil
}

func (s *LendingStore) GetUserTokenState(asset string, owner crypto.Address) (*lending.UserTokenState, error) {
	state := new(lending.UserTokenState)
	found, err := s.get(userStateKey(asset, owner), state)
	if err != nil || !found {
		return nil, err
	}
	return state, nil
}

func (s *LendingStore) PutUserTokenState(state *lending.UserTokenState) error {
	if state == nil {
		return fmt.Errorf("storage: nil user token state")
	}
	return s.put(userStateKey(state.Asset, state.Owner), state)
}

func (s *LendingStore) GetBorrowPosition(owner crypto.Address, collateralAsset, borrowAsset, id string) (*lending.BorrowPosition, error) {
	position := new(lending.BorrowPosition)
	found, err := s.get(borrowPositionKey(owner, collateralAsset, borrowAsset, id), position)
	if err != nil || !found {
		return nil, err
	}
	return position, nil
}

func (s *LendingStore) PutBorrowPosition(position *lending.BorrowPosition) error {
	if position == nil {
		return fmt.Errorf("storage: nil borrow position")
	}
	return s.put(borrowPositionKey(position.Owner, position.CollateralAsset, position.BorrowAsset, position.ID), position)
}

func (s *LendingStore) GetUserGlobalState(owner crypto.Address) (*lending.UserGlobalState, error) {
	state := new(lending.UserGlobalState)
	found, err := s.get(globalStateKey(owner), state)
	if err != nil || !found {
		return nil, err
	}
	return state, nil
}

func (s *LendingStore) PutUserGlobalState(state *lending.UserGlobalState) error {
	if state == nil {
		return fmt.Errorf("storage: nil user global state")
	}
	return s.put(globalStateKey(state.User), state)
}

func (s *LendingStore) GetFeeAccrual(asset string) (*lending.FeeAccrual, error) {
	fees := new(lending.FeeAccrual)
	found, err := s.get(feeAccrualKey(asset), fees)
	if err != nil || !found {
		return nil, err
	}
	return fees, nil
}

func (s *LendingStore) PutFeeAccrual(fees *lending.FeeAccrual) error {
	if fees == nil {
		return fmt.Errorf("storage: nil fee accrual")
	}
	return s.put(feeAccrualKey(fees.Asset), fees)
}
