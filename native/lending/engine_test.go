package lending

import (
	"errors"
	"testing"
	"time"

	"github.com/RippnerLabs/stervault/crypto"
	"github.com/RippnerLabs/stervault/native/oracle"
)

type mockEngineState struct {
	banks     map[string]*Bank
	users     map[string]*UserTokenState
	positions map[string]*BorrowPosition
	globals   map[string]*UserGlobalState
	fees      map[string]*FeeAccrual
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		banks:     make(map[string]*Bank),
		users:     make(map[string]*UserTokenState),
		positions: make(map[string]*BorrowPosition),
		globals:   make(map[string]*UserGlobalState),
		fees:      make(map[string]*FeeAccrual),
	}
}

func userKey(asset string, owner crypto.Address) string {
	return asset + "/" + string(owner.Bytes())
}

func positionKey(owner crypto.Address, collateralAsset, borrowAsset, id string) string {
	return string(owner.Bytes()) + "/" + collateralAsset + "/" + borrowAsset + "/" + id
}

func (m *mockEngineState) GetBank(asset string) (*Bank, error) {
	return m.banks[asset].Clone(), nil
}

func (m *mockEngineState) PutBank(bank *Bank) error {
	m.banks[bank.Asset] = bank.Clone()
	return nil
}

func (m *mockEngineState) GetUserTokenState(asset string, owner crypto.Address) (*UserTokenState, error) {
	return m.users[userKey(asset, owner)].Clone(), nil
}

func (m *mockEngineState) PutUserTokenState(state *UserTokenState) error {
	m.users[userKey(state.Asset, state.Owner)] = state.Clone()
	return nil
}

func (m *mockEngineState) GetBorrowPosition(owner crypto.Address, collateralAsset, borrowAsset, id string) (*BorrowPosition, error) {
	return m.positions[positionKey(owner, collateralAsset, borrowAsset, id)].Clone(), nil
}

func (m *mockEngineState) PutBorrowPosition(position *BorrowPosition) error {
	m.positions[positionKey(position.Owner, position.CollateralAsset, position.BorrowAsset, position.ID)] = position.Clone()
	return nil
}

func (m *mockEngineState) GetUserGlobalState(owner crypto.Address) (*UserGlobalState, error) {
	return m.globals[string(owner.Bytes())].Clone(), nil
}

func (m *mockEngineState) PutUserGlobalState(state *UserGlobalState) error {
	m.globals[string(state.User.Bytes())] = state.Clone()
	return nil
}

func (m *mockEngineState) GetFeeAccrual(asset string) (*FeeAccrual, error) {
	return m.fees[asset].Clone(), nil
}

func (m *mockEngineState) PutFeeAccrual(fees *FeeAccrual) error {
	m.fees[fees.Asset] = fees.Clone()
	return nil
}

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.SVPrefix, raw)
}

type testClock struct {
	now int64
}

func (c *testClock) Advance(seconds int64) { c.now += seconds }

func newTestEngine(t *testing.T) (*Engine, *mockEngineState, *oracle.ManualSource, *testClock) {
	t.Helper()
	clock := &testClock{now: 1_700_000_000}
	source := oracle.NewManualSource()
	source.SetClock(func() time.Time { return time.Unix(clock.now, 0) })
	feeds := oracle.NewFeedRegistry()
	risk := NewRiskEngine(source, feeds, 0)
	engine := NewEngine(makeAddress(0xff), risk)
	state := newMockEngineState()
	engine.SetState(state)
	engine.SetClock(func() int64 { return clock.now })

	if err := feeds.Store("USDC", "feed-usdc"); err != nil {
		t.Fatalf("register usdc feed: %v", err)
	}
	if err := feeds.Store("SOL", "feed-sol"); err != nil {
		t.Fatalf("register sol feed: %v", err)
	}
	return engine, state, source, clock
}

func setPrice(source *oracle.ManualSource, clock *testClock, feedID string, value int64) {
	source.Set(feedID, oracle.Price{Price: value, Expo: 0, PublishTime: time.Unix(clock.now, 0)})
}

func usdcParams() BankParams {
	return BankParams{
		Asset:                 "usdc",
		Name:                  "USD Coin",
		Symbol:                "USDC",
		Decimals:              6,
		DepositInterestRate:   100_000,
		BorrowInterestRate:    100_000,
		InterestAccrualPeriod: 3600,
		MaxLTVBps:             7500,
	}
}

func solParams() BankParams {
	return BankParams{
		Asset:                 "sol",
		Name:                  "Solana",
		Symbol:                "SOL",
		Decimals:              6,
		DepositInterestRate:   100_000,
		BorrowInterestRate:    100_000,
		InterestAccrualPeriod: 3600,
		MaxLTVBps:             7500,
	}
}

func mustInitBank(t *testing.T, engine *Engine, params BankParams) {
	t.Helper()
	if _, err := engine.InitBank(makeAddress(0xaa), params); err != nil {
		t.Fatalf("init bank %s: %v", params.Asset, err)
	}
}

func mustDeposit(t *testing.T, engine *Engine, owner crypto.Address, asset string, amount uint64) uint64 {
	t.Helper()
	minted, err := engine.Deposit(owner, asset, amount)
	if err != nil {
		t.Fatalf("deposit %d %s: %v", amount, asset, err)
	}
	return minted
}

func TestInitBankRejectsDuplicate(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	if _, err := engine.InitBank(makeAddress(0xaa), usdcParams()); !errors.Is(err, ErrBankExists) {
		t.Fatalf("expected ErrBankExists, got %v", err)
	}
}

func TestDepositMintsProportionalShares(t *testing.T) {
	engine, state, _, clock := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	alice := makeAddress(0x01)
	bob := makeAddress(0x02)

	if minted := mustDeposit(t, engine, alice, "usdc", 1000); minted != 1000 {
		t.Fatalf("first depositor expected 1:1 shares, got %d", minted)
	}
	if minted := mustDeposit(t, engine, bob, "usdc", 500); minted != 500 {
		t.Fatalf("second depositor at unchanged rate expected 500 shares, got %d", minted)
	}

	// One whole period at 10% grows both sides of the pool; shares never move.
	clock.Advance(3600)
	bank := state.banks["usdc"]
	assets, err := bank.TotalAssets(clock.now)
	if err != nil {
		t.Fatalf("total assets: %v", err)
	}
	if assets != 1650 {
		t.Fatalf("expected 1650 pool assets after accrual, got %d", assets)
	}
	if bank.TotalDepositedShares != 1500 {
		t.Fatalf("accrual must not mint shares, got %d", bank.TotalDepositedShares)
	}
	value, err := bank.DepositAssetsForShares(1000, clock.now)
	if err != nil {
		t.Fatalf("assets for shares: %v", err)
	}
	if value != 1100 {
		t.Fatalf("expected 1000 shares to be worth 1100, got %d", value)
	}

	// Depositing at the grown rate mints fewer shares per unit.
	minted := mustDeposit(t, engine, alice, "usdc", 1100)
	if minted != 1000 {
		t.Fatalf("expected 1100 units to mint 1000 shares at rate 1.1, got %d", minted)
	}
}

func TestDepositRejectsBelowMinimumAndZero(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	params := usdcParams()
	params.MinDeposit = 100
	mustInitBank(t, engine, params)
	alice := makeAddress(0x01)

	if _, err := engine.Deposit(alice, "usdc", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := engine.Deposit(alice, "usdc", 50); !errors.Is(err, ErrInvalidDepositAmount) {
		t.Fatalf("expected ErrInvalidDepositAmount, got %v", err)
	}
	if _, err := engine.Deposit(alice, "usdc", 100); err != nil {
		t.Fatalf("deposit at the minimum: %v", err)
	}
}

func TestDepositFeeCreditsNetAndRecordsFee(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	params := usdcParams()
	params.DepositFeeBps = 100
	mustInitBank(t, engine, params)
	alice := makeAddress(0x01)

	minted := mustDeposit(t, engine, alice, "usdc", 1000)
	if minted != 990 {
		t.Fatalf("expected 990 shares net of 1%% fee, got %d", minted)
	}
	if got := state.banks["usdc"].TotalDeposited; got != 990 {
		t.Fatalf("expected 990 pool assets, got %d", got)
	}
	if fees := state.fees["usdc"]; fees == nil || fees.DepositFees != 10 {
		t.Fatalf("expected 10 units of deposit fees, got %+v", fees)
	}
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	alice := makeAddress(0x01)

	mustDeposit(t, engine, alice, "usdc", 1000)
	burned, err := engine.Withdraw(alice, "usdc", 1000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if burned != 1000 {
		t.Fatalf("expected 1000 shares burnt, got %d", burned)
	}
	user := state.users[userKey("usdc", alice)]
	if user.DepositedShares != 0 {
		t.Fatalf("expected zero shares after round trip, got %d", user.DepositedShares)
	}
	bank := state.banks["usdc"]
	if bank.TotalDeposited != 0 || bank.TotalDepositedShares != 0 {
		t.Fatalf("expected empty pool after round trip, got %d/%d", bank.TotalDeposited, bank.TotalDepositedShares)
	}
}

func TestWithdrawRejectsMoreThanFreeShares(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	alice := makeAddress(0x01)

	mustDeposit(t, engine, alice, "usdc", 1000)
	if _, err := engine.Withdraw(alice, "usdc", 1001); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestWithdrawIncludesAccruedInterest(t *testing.T) {
	engine, state, _, clock := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	alice := makeAddress(0x01)

	mustDeposit(t, engine, alice, "usdc", 1000)
	clock.Advance(3600)

	burned, err := engine.Withdraw(alice, "usdc", 1100)
	if err != nil {
		t.Fatalf("withdraw with interest: %v", err)
	}
	if burned != 1000 {
		t.Fatalf("expected all 1000 shares burnt for grown balance, got %d", burned)
	}
	if got := state.users[userKey("usdc", alice)].DepositedShares; got != 0 {
		t.Fatalf("expected zero shares remaining, got %d", got)
	}
}

func TestBorrowEnforcesMaxLTV(t *testing.T) {
	engine, _, source, clock := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	mustInitBank(t, engine, solParams())
	setPrice(source, clock, "feed-usdc", 1)
	setPrice(source, clock, "feed-sol", 1)

	alice := makeAddress(0x01)
	lender := makeAddress(0x02)
	mustDeposit(t, engine, alice, "usdc", 1000_000000)
	mustDeposit(t, engine, lender, "sol", 2000_000000)

	// $1000 collateral at 75% LTV caps the projected debt at $750.
	if _, err := engine.Borrow(alice, "usdc", "sol", 760_000000, "pos-1"); !errors.Is(err, ErrBorrowAmountTooLarge) {
		t.Fatalf("expected ErrBorrowAmountTooLarge, got %v", err)
	}
	if _, err := engine.Borrow(alice, "usdc", "sol", 740_000000, "pos-1"); err != nil {
		t.Fatalf("borrow under the cap: %v", err)
	}
	// The admission aggregates existing position debt, so a follow-up borrow
	// only has $10 of headroom left.
	if _, err := engine.Borrow(alice, "usdc", "sol", 20_000000, "pos-2"); !errors.Is(err, ErrBorrowAmountTooLarge) {
		t.Fatalf("expected ErrBorrowAmountTooLarge on cumulative debt, got %v", err)
	}
}

func TestBorrowLocksCollateralShares(t *testing.T) {
	engine, state, source, clock := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	mustInitBank(t, engine, solParams())
	setPrice(source, clock, "feed-usdc", 1)
	setPrice(source, clock, "feed-sol", 2)

	alice := makeAddress(0x01)
	lender := makeAddress(0x02)
	mustDeposit(t, engine, alice, "usdc", 1000_000000)
	mustDeposit(t, engine, lender, "sol", 1000_000000)

	minted, err := engine.Borrow(alice, "usdc", "sol", 100_000000, "pos-1")
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if minted != 100_000000 {
		t.Fatalf("first borrow expected 1:1 shares, got %d", minted)
	}

	// A $200 borrow against $1 collateral units locks 200M shares; the locked
	// and free buckets always sum to the original claim.
	user := state.users[userKey("usdc", alice)]
	if user.CollateralShares != 200_000000 {
		t.Fatalf("expected 200000000 locked shares, got %d", user.CollateralShares)
	}
	if user.DepositedShares != 800_000000 {
		t.Fatalf("expected 800000000 free shares, got %d", user.DepositedShares)
	}
	if sum := user.DepositedShares + user.CollateralShares; sum != 1000_000000 {
		t.Fatalf("lock must conserve total shares, got %d", sum)
	}
	if got := state.banks["usdc"].TotalCollateralShares; got != 200_000000 {
		t.Fatalf("expected bank collateral counter 200000000, got %d", got)
	}
	position := state.positions[positionKey(alice, "usdc", "sol", "pos-1")]
	if position == nil || !position.Active {
		t.Fatalf("expected active position, got %+v", position)
	}
	if position.CollateralShares != 200_000000 || position.BorrowedShares != 100_000000 {
		t.Fatalf("unexpected position accounting: %+v", position)
	}
}

func TestBorrowRejectsInsufficientLiquidity(t *testing.T) {
	engine, _, source, clock := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	mustInitBank(t, engine, solParams())
	setPrice(source, clock, "feed-usdc", 1)
	setPrice(source, clock, "feed-sol", 1)

	alice := makeAddress(0x01)
	lender := makeAddress(0x02)
	mustDeposit(t, engine, alice, "usdc", 1000_000000)
	mustDeposit(t, engine, lender, "sol", 100_000000)

	if _, err := engine.Borrow(alice, "usdc", "sol", 200_000000, "pos-1"); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestBorrowRejectsStalePrice(t *testing.T) {
	engine, _, source, clock := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	mustInitBank(t, engine, solParams())
	source.Set("feed-usdc", oracle.Price{Price: 1, Expo: 0, PublishTime: time.Unix(clock.now-20_000, 0)})
	setPrice(source, clock, "feed-sol", 1)

	alice := makeAddress(0x01)
	lender := makeAddress(0x02)
	mustDeposit(t, engine, alice, "usdc", 1000_000000)
	mustDeposit(t, engine, lender, "sol", 1000_000000)

	if _, err := engine.Borrow(alice, "usdc", "sol", 100_000000, "pos-1"); !errors.Is(err, oracle.ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
}

func TestWithdrawRespectsOutstandingDebt(t *testing.T) {
	engine, _, source, clock := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	mustInitBank(t, engine, solParams())
	setPrice(source, clock, "feed-usdc", 1)
	setPrice(source, clock, "feed-sol", 1)

	alice := makeAddress(0x01)
	lender := makeAddress(0x02)
	mustDeposit(t, engine, alice, "usdc", 1000_000000)
	mustDeposit(t, engine, lender, "sol", 1000_000000)

	if _, err := engine.Borrow(alice, "usdc", "sol", 500_000000, "pos-1"); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// 500M shares remain free, but withdrawing 400M of them leaves only $600
	// backing a $500 debt, which breaches the 75% cap.
	if _, err := engine.Withdraw(alice, "usdc", 400_000000); !errors.Is(err, ErrWithdrawExceedsCollateralValue) {
		t.Fatalf("expected ErrWithdrawExceedsCollateralValue, got %v", err)
	}
	// Withdrawing 300M leaves $700 backing, above the $666.67 floor.
	if _, err := engine.Withdraw(alice, "usdc", 300_000000); err != nil {
		t.Fatalf("withdraw within the debt floor: %v", err)
	}
}

func TestRepayReducesDebtAndUnlocksCollateral(t *testing.T) {
	engine, state, source, clock := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	mustInitBank(t, engine, solParams())
	setPrice(source, clock, "feed-usdc", 1)
	setPrice(source, clock, "feed-sol", 1)

	alice := makeAddress(0x01)
	lender := makeAddress(0x02)
	mustDeposit(t, engine, alice, "usdc", 1000_000000)
	mustDeposit(t, engine, lender, "sol", 1000_000000)

	if _, err := engine.Borrow(alice, "usdc", "sol", 400_000000, "pos-1"); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	burned, err := engine.Repay(alice, "usdc", "sol", 100_000000, "pos-1")
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if burned != 100_000000 {
		t.Fatalf("expected 100000000 borrow shares burnt, got %d", burned)
	}

	user := state.users[userKey("usdc", alice)]
	if user.CollateralShares != 300_000000 {
		t.Fatalf("expected 300000000 shares still locked, got %d", user.CollateralShares)
	}
	if user.DepositedShares != 700_000000 {
		t.Fatalf("expected 700000000 free shares after unlock, got %d", user.DepositedShares)
	}
	position := state.positions[positionKey(alice, "usdc", "sol", "pos-1")]
	if !position.Active || position.BorrowedShares != 300_000000 {
		t.Fatalf("unexpected position after partial repay: %+v", position)
	}
}

func TestRepayFullDeactivatesPositionAndReleasesCollateral(t *testing.T) {
	engine, state, source, clock := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	mustInitBank(t, engine, solParams())
	setPrice(source, clock, "feed-usdc", 1)
	setPrice(source, clock, "feed-sol", 1)

	alice := makeAddress(0x01)
	lender := makeAddress(0x02)
	mustDeposit(t, engine, alice, "usdc", 1000_000000)
	mustDeposit(t, engine, lender, "sol", 1000_000000)

	if _, err := engine.Borrow(alice, "usdc", "sol", 100_000000, "pos-1"); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// One period of 10% borrow interest grows the debt to 110M units.
	clock.Advance(3600)
	setPrice(source, clock, "feed-usdc", 1)
	setPrice(source, clock, "feed-sol", 1)

	burned, err := engine.Repay(alice, "usdc", "sol", 110_000000, "pos-1")
	if err != nil {
		t.Fatalf("full repay: %v", err)
	}
	if burned != 100_000000 {
		t.Fatalf("expected all 100000000 borrow shares retired, got %d", burned)
	}

	position := state.positions[positionKey(alice, "usdc", "sol", "pos-1")]
	if position.Active || position.BorrowedShares != 0 || position.CollateralShares != 0 {
		t.Fatalf("expected inactive drained position, got %+v", position)
	}
	user := state.users[userKey("usdc", alice)]
	if user.CollateralShares != 0 {
		t.Fatalf("expected all collateral unlocked, got %d", user.CollateralShares)
	}
	if user.DepositedShares != 1000_000000 {
		t.Fatalf("full repay must restore the original claim, got %d", user.DepositedShares)
	}
	bank := state.banks["sol"]
	if bank.TotalBorrowed != 0 || bank.TotalBorrowedShares != 0 {
		t.Fatalf("expected drained borrow pool, got %d/%d", bank.TotalBorrowed, bank.TotalBorrowedShares)
	}
	global := state.globals[string(alice.Bytes())]
	if len(global.ActivePositions) != 0 {
		t.Fatalf("expected empty position index, got %+v", global.ActivePositions)
	}
}

func TestRepayRejectsOverRepayWithoutMutation(t *testing.T) {
	engine, state, source, clock := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	mustInitBank(t, engine, solParams())
	setPrice(source, clock, "feed-usdc", 1)
	setPrice(source, clock, "feed-sol", 1)

	alice := makeAddress(0x01)
	lender := makeAddress(0x02)
	mustDeposit(t, engine, alice, "usdc", 1000_000000)
	mustDeposit(t, engine, lender, "sol", 1000_000000)

	if _, err := engine.Borrow(alice, "usdc", "sol", 100_000000, "pos-1"); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	userBefore := state.users[userKey("usdc", alice)].Clone()
	bankBefore := state.banks["sol"].Clone()
	positionBefore := state.positions[positionKey(alice, "usdc", "sol", "pos-1")].Clone()

	if _, err := engine.Repay(alice, "usdc", "sol", 100_000001, "pos-1"); !errors.Is(err, ErrOverRepayRequest) {
		t.Fatalf("expected ErrOverRepayRequest, got %v", err)
	}

	userAfter := state.users[userKey("usdc", alice)]
	if userAfter.DepositedShares != userBefore.DepositedShares || userAfter.CollateralShares != userBefore.CollateralShares {
		t.Fatalf("user state mutated by rejected repay: %+v", userAfter)
	}
	bankAfter := state.banks["sol"]
	if bankAfter.TotalBorrowed != bankBefore.TotalBorrowed || bankAfter.TotalBorrowedShares != bankBefore.TotalBorrowedShares {
		t.Fatalf("bank state mutated by rejected repay: %+v", bankAfter)
	}
	positionAfter := state.positions[positionKey(alice, "usdc", "sol", "pos-1")]
	if positionAfter.BorrowedShares != positionBefore.BorrowedShares || positionAfter.CollateralShares != positionBefore.CollateralShares || !positionAfter.Active {
		t.Fatalf("position mutated by rejected repay: %+v", positionAfter)
	}
}

func TestRepayUnknownPositionFails(t *testing.T) {
	engine, _, source, clock := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	mustInitBank(t, engine, solParams())
	setPrice(source, clock, "feed-usdc", 1)
	setPrice(source, clock, "feed-sol", 1)

	if _, err := engine.Repay(makeAddress(0x01), "usdc", "sol", 100, "missing"); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("expected ErrPositionNotFound, got %v", err)
	}
}

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

func TestPausedModuleRejectsOperations(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	engine.SetPauses(pauseMap{moduleName: true})

	alice := makeAddress(0x01)
	if _, err := engine.Deposit(alice, "usdc", 1000); err == nil {
		t.Fatalf("expected pause guard to reject deposit")
	}
	if _, err := engine.Withdraw(alice, "usdc", 1000); err == nil {
		t.Fatalf("expected pause guard to reject withdraw")
	}
	if _, err := engine.Borrow(alice, "usdc", "usdc", 1000, "pos-1"); err == nil {
		t.Fatalf("expected pause guard to reject borrow")
	}
	if _, err := engine.Repay(alice, "usdc", "usdc", 1000, "pos-1"); err == nil {
		t.Fatalf("expected pause guard to reject repay")
	}
}

type recordedTransfer struct {
	from, to crypto.Address
	asset    string
	amount   uint64
}

type mockTransfers struct {
	calls []recordedTransfer
}

func (m *mockTransfers) Transfer(from, to crypto.Address, asset string, amount uint64, decimals uint8) error {
	m.calls = append(m.calls, recordedTransfer{from: from, to: to, asset: asset, amount: amount})
	return nil
}

func TestDepositAndWithdrawMoveCustody(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	params := usdcParams()
	params.WithdrawalFeeBps = 100
	mustInitBank(t, engine, params)
	transfers := &mockTransfers{}
	engine.SetTransfers(transfers)

	alice := makeAddress(0x01)
	mustDeposit(t, engine, alice, "usdc", 1000)
	if _, err := engine.Withdraw(alice, "usdc", 1000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	if len(transfers.calls) != 2 {
		t.Fatalf("expected 2 custody transfers, got %d", len(transfers.calls))
	}
	deposit := transfers.calls[0]
	if !deposit.from.Equal(alice) || deposit.amount != 1000 {
		t.Fatalf("unexpected deposit transfer: %+v", deposit)
	}
	withdraw := transfers.calls[1]
	if !withdraw.to.Equal(alice) || withdraw.amount != 990 {
		t.Fatalf("expected payout net of withdrawal fee, got %+v", withdraw)
	}
}

type failingTransfers struct {
	err error
}

func (f *failingTransfers) Transfer(from, to crypto.Address, asset string, amount uint64, decimals uint8) error {
	return f.err
}

func TestDepositLeavesNoStateWhenCustodyFails(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	engine.SetTransfers(&failingTransfers{err: errors.New("insufficient balance")})

	alice := makeAddress(0x01)
	if _, err := engine.Deposit(alice, "usdc", 1000); err == nil {
		t.Fatalf("expected deposit to fail when funds cannot be collected")
	}
	if bank := state.banks["usdc"]; bank.TotalDeposited != 0 || bank.TotalDepositedShares != 0 {
		t.Fatalf("unfunded deposit must not grow the pool: %+v", bank)
	}
	if user := state.users[userKey("usdc", alice)]; user != nil {
		t.Fatalf("unfunded deposit must not persist user shares: %+v", user)
	}
	if _, err := engine.Withdraw(alice, "usdc", 1000); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected withdraw of a never-funded deposit to fail, got %v", err)
	}
}

func TestRepayLeavesPositionWhenCustodyFails(t *testing.T) {
	engine, state, source, clock := newTestEngine(t)
	mustInitBank(t, engine, usdcParams())
	mustInitBank(t, engine, solParams())
	setPrice(source, clock, "feed-usdc", 1)
	setPrice(source, clock, "feed-sol", 1)

	alice := makeAddress(0x01)
	lender := makeAddress(0x02)
	mustDeposit(t, engine, alice, "usdc", 1000)
	mustDeposit(t, engine, lender, "sol", 1000)
	if _, err := engine.Borrow(alice, "usdc", "sol", 500, "pos-1"); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	engine.SetTransfers(&failingTransfers{err: errors.New("insufficient balance")})
	if _, err := engine.Repay(alice, "usdc", "sol", 500, "pos-1"); err == nil {
		t.Fatalf("expected repay to fail when funds cannot be collected")
	}
	position := state.positions[positionKey(alice, "usdc", "sol", "pos-1")]
	if position == nil || !position.Active || position.BorrowedShares != 500 {
		t.Fatalf("unfunded repay must leave the debt in place: %+v", position)
	}
	if got := state.users[userKey("usdc", alice)].CollateralShares; got != 500 {
		t.Fatalf("unfunded repay must keep collateral locked, got %d shares", got)
	}
	if got := state.banks["sol"].TotalBorrowed; got != 500 {
		t.Fatalf("unfunded repay must keep the pool debt, got %d", got)
	}
}

func TestBorrowAdmissionUsesCollateralBankLTV(t *testing.T) {
	engine, _, source, clock := newTestEngine(t)
	collateral := usdcParams()
	collateral.MaxLTVBps = 5000
	borrow := solParams()
	borrow.MaxLTVBps = 9000
	mustInitBank(t, engine, collateral)
	mustInitBank(t, engine, borrow)
	setPrice(source, clock, "feed-usdc", 1)
	setPrice(source, clock, "feed-sol", 1)

	alice := makeAddress(0x01)
	lender := makeAddress(0x02)
	mustDeposit(t, engine, alice, "usdc", 1000)
	mustDeposit(t, engine, lender, "sol", 1000)

	// The looser borrow pool would admit 60% of the collateral value; the
	// collateral pool's 50% bound governs.
	if _, err := engine.Borrow(alice, "usdc", "sol", 600, "pos-1"); !errors.Is(err, ErrBorrowAmountTooLarge) {
		t.Fatalf("expected the collateral pool's LTV to bound the borrow, got %v", err)
	}
	if _, err := engine.Borrow(alice, "usdc", "sol", 400, "pos-1"); err != nil {
		t.Fatalf("borrow within the collateral pool's LTV: %v", err)
	}
}

func TestPositionLimitBoundsRegistrations(t *testing.T) {
	global := &UserGlobalState{User: makeAddress(0x01)}
	for i := 0; i < MaxBorrowPositions; i++ {
		ref := PositionRef{CollateralAsset: "usdc", BorrowAsset: "sol", ID: string(rune('a' + i))}
		if err := global.RegisterPosition(ref); err != nil {
			t.Fatalf("register position %d: %v", i, err)
		}
	}
	if err := global.RegisterPosition(PositionRef{CollateralAsset: "usdc", BorrowAsset: "sol", ID: "overflow"}); !errors.Is(err, ErrPositionLimit) {
		t.Fatalf("expected ErrPositionLimit, got %v", err)
	}
}
