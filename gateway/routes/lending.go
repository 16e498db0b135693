package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/RippnerLabs/stervault/crypto"
	"github.com/RippnerLabs/stervault/native/common"
	"github.com/RippnerLabs/stervault/native/lending"
	"github.com/RippnerLabs/stervault/native/oracle"
	"github.com/RippnerLabs/stervault/observability/metrics"
	"github.com/RippnerLabs/stervault/storage"
)

const lendingRequestLimit = 1 << 20 // 1 MiB

// BankLister exposes the initialised banks for discovery endpoints.
type BankLister interface {
	ListBanks() ([]*lending.Bank, error)
}

// lendingRoutes wires HTTP handlers to the in-process lending engine. The
// engine itself is not synchronised, so every value-moving call holds the
// mutex for its full duration.
type lendingRoutes struct {
	mu      sync.Mutex
	engine  *lending.Engine
	banks   BankLister
	quota   common.Quota
	usage   map[string]common.QuotaNow
	metrics *metrics.LendingMetrics
	nowFn   func() time.Time
}

func newLendingRoutes(engine *lending.Engine, banks BankLister, quota common.Quota) *lendingRoutes {
	return &lendingRoutes{
		engine:  engine,
		banks:   banks,
		quota:   quota,
		usage:   make(map[string]common.QuotaNow),
		metrics: metrics.Lending(),
		nowFn:   time.Now,
	}
}

func (lr *lendingRoutes) mount(r chi.Router) {
	r.Get("/banks", lr.listBanks)
	r.Get("/banks/{asset}", lr.getBank)
	r.Get("/balances/{asset}/{owner}", lr.getBalances)
	r.Get("/positions/{owner}", lr.listPositions)
	r.Post("/deposit", lr.deposit)
	r.Post("/withdraw", lr.withdraw)
	r.Post("/borrow", lr.borrow)
	r.Post("/repay", lr.repay)
}

type bankResponse struct {
	Asset              string `json:"asset"`
	Name               string `json:"name"`
	Symbol             string `json:"symbol"`
	Decimals           uint8  `json:"decimals"`
	TotalAssets        uint64 `json:"totalAssets"`
	TotalBorrowed      uint64 `json:"totalBorrowed"`
	AvailableLiquidity uint64 `json:"availableLiquidity"`
	DepositRate        uint64 `json:"depositInterestRate"`
	BorrowRate         uint64 `json:"borrowInterestRate"`
	MaxLTVBps          uint64 `json:"maxLtvBps"`
	AsOf               int64  `json:"asOf"`
}

func (lr *lendingRoutes) listBanks(w http.ResponseWriter, r *http.Request) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	banks, err := lr.banks.ListBanks()
	if err != nil {
		writeLendingError(w, err)
		return
	}
	out := make([]bankResponse, 0, len(banks))
	for _, bank := range banks {
		snapshot, err := lr.engine.Snapshot(bank.Asset)
		if err != nil {
			writeLendingError(w, err)
			return
		}
		out = append(out, snapshotResponse(snapshot))
	}
	writeJSON(w, http.StatusOK, out)
}

func (lr *lendingRoutes) getBank(w http.ResponseWriter, r *http.Request) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	snapshot, err := lr.engine.Snapshot(chi.URLParam(r, "asset"))
	if err != nil {
		writeLendingError(w, err)
		return
	}
	lr.metrics.SetPoolTotals(snapshot.Bank.Asset, snapshot.TotalAssets, snapshot.TotalBorrowed)
	writeJSON(w, http.StatusOK, snapshotResponse(snapshot))
}

func snapshotResponse(s *lending.BankSnapshot) bankResponse {
	return bankResponse{
		Asset:              s.Bank.Asset,
		Name:               s.Bank.Name,
		Symbol:             s.Bank.Symbol,
		Decimals:           s.Bank.Decimals,
		TotalAssets:        s.TotalAssets,
		TotalBorrowed:      s.TotalBorrowed,
		AvailableLiquidity: s.AvailableLiquidity,
		DepositRate:        s.Bank.DepositInterestRate,
		BorrowRate:         s.Bank.BorrowInterestRate,
		MaxLTVBps:          s.Bank.MaxLTVBps,
		AsOf:               s.AsOf,
	}
}

func (lr *lendingRoutes) getBalances(w http.ResponseWriter, r *http.Request) {
	owner, err := crypto.DecodeAddress(chi.URLParam(r, "owner"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	balances, err := lr.engine.UserBalances(owner, chi.URLParam(r, "asset"))
	if err != nil {
		writeLendingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (lr *lendingRoutes) listPositions(w http.ResponseWriter, r *http.Request) {
	owner, err := crypto.DecodeAddress(chi.URLParam(r, "owner"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	positions, err := lr.engine.Positions(owner)
	if err != nil {
		writeLendingError(w, err)
		return
	}
	lr.metrics.SetActivePositions(owner.String(), len(positions))
	writeJSON(w, http.StatusOK, positions)
}

type amountRequest struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

type positionRequest struct {
	Owner           string `json:"owner"`
	CollateralAsset string `json:"collateralAsset"`
	BorrowAsset     string `json:"borrowAsset"`
	Amount          uint64 `json:"amount"`
	PositionID      string `json:"positionId"`
}

type sharesResponse struct {
	Shares     uint64 `json:"shares"`
	PositionID string `json:"positionId,omitempty"`
}

func (lr *lendingRoutes) deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	owner, err := crypto.DecodeAddress(req.Owner)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	start := lr.nowFn()
	minted, err := lr.engine.Deposit(owner, req.Asset, req.Amount)
	if err != nil {
		lr.observeRejection("deposit", err)
		writeLendingError(w, err)
		return
	}
	lr.metrics.ObserveOperation("deposit", lr.nowFn().Sub(start).Seconds())
	writeJSON(w, http.StatusOK, sharesResponse{Shares: minted})
}

func (lr *lendingRoutes) withdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	owner, err := crypto.DecodeAddress(req.Owner)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	start := lr.nowFn()
	burned, err := lr.engine.Withdraw(owner, req.Asset, req.Amount)
	if err != nil {
		lr.observeRejection("withdraw", err)
		writeLendingError(w, err)
		return
	}
	lr.metrics.ObserveOperation("withdraw", lr.nowFn().Sub(start).Seconds())
	writeJSON(w, http.StatusOK, sharesResponse{Shares: burned})
}

func (lr *lendingRoutes) borrow(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	owner, err := crypto.DecodeAddress(req.Owner)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	positionID := strings.TrimSpace(req.PositionID)
	if positionID == "" {
		positionID = uuid.NewString()
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	if err := lr.admitQuota(req.Owner, req.Amount); err != nil {
		writeError(w, http.StatusTooManyRequests, err)
		return
	}

	start := lr.nowFn()
	minted, err := lr.engine.Borrow(owner, req.CollateralAsset, req.BorrowAsset, req.Amount, positionID)
	if err != nil {
		lr.observeRejection("borrow", err)
		writeLendingError(w, err)
		return
	}
	lr.metrics.ObserveOperation("borrow", lr.nowFn().Sub(start).Seconds())
	writeJSON(w, http.StatusOK, sharesResponse{Shares: minted, PositionID: positionID})
}

func (lr *lendingRoutes) repay(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	owner, err := crypto.DecodeAddress(req.Owner)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if strings.TrimSpace(req.PositionID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("positionId required"))
		return
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	start := lr.nowFn()
	burned, err := lr.engine.Repay(owner, req.CollateralAsset, req.BorrowAsset, req.Amount, req.PositionID)
	if err != nil {
		lr.observeRejection("repay", err)
		writeLendingError(w, err)
		return
	}
	lr.metrics.ObserveOperation("repay", lr.nowFn().Sub(start).Seconds())
	writeJSON(w, http.StatusOK, sharesResponse{Shares: burned})
}

// admitQuota enforces the per-owner borrow quota for the current epoch.
// Callers must hold the route mutex.
func (lr *lendingRoutes) admitQuota(owner string, amount uint64) error {
	if lr.quota.MaxRequestsPerEpoch == 0 && lr.quota.MaxValuePerEpoch == 0 {
		return nil
	}
	epochSeconds := int64(lr.quota.EpochSeconds)
	if epochSeconds <= 0 {
		epochSeconds = 3600
	}
	nowEpoch := uint64(lr.nowFn().Unix() / epochSeconds)
	next, err := common.CheckQuota(lr.quota, nowEpoch, lr.usage[owner], 1, amount)
	if err != nil {
		return err
	}
	lr.usage[owner] = next
	return nil
}

func decodeRequest(r *http.Request, out interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, lendingRequestLimit))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("request body required")
	}
	return json.Unmarshal(body, out)
}

// observeRejection records the rejection and, when the oracle was at fault,
// attributes the failure to its kind.
func (lr *lendingRoutes) observeRejection(operation string, err error) {
	reason := rejectionReason(err)
	lr.metrics.ObserveRejection(operation, reason)
	if reason != "oracle" {
		return
	}
	kind := "stale"
	if errors.Is(err, oracle.ErrInvalidPriceFeed) {
		kind = "invalid_feed"
	}
	lr.metrics.ObserveOracleFailure(kind)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, lending.ErrBorrowAmountTooLarge),
		errors.Is(err, lending.ErrWithdrawExceedsCollateralValue):
		return "ltv"
	case errors.Is(err, lending.ErrInsufficientLiquidity):
		return "liquidity"
	case errors.Is(err, lending.ErrInsufficientFunds),
		errors.Is(err, lending.ErrInsufficientCollateral):
		return "balance"
	case errors.Is(err, oracle.ErrStalePrice), errors.Is(err, oracle.ErrInvalidPriceFeed):
		return "oracle"
	case errors.Is(err, common.ErrModulePaused):
		return "paused"
	default:
		return "other"
	}
}

// writeLendingError maps ledger errors onto HTTP statuses. Validation failures
// are the caller's fault; oracle staleness is upstream unavailability.
func writeLendingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lending.ErrBankNotFound),
		errors.Is(err, lending.ErrPositionNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, lending.ErrBankExists):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrInvalidDepositAmount),
		errors.Is(err, lending.ErrBorrowAmountTooSmall),
		errors.Is(err, lending.ErrOverRepayRequest):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, lending.ErrInsufficientFunds),
		errors.Is(err, lending.ErrInsufficientCollateral),
		errors.Is(err, lending.ErrInsufficientLiquidity),
		errors.Is(err, lending.ErrBorrowAmountTooLarge),
		errors.Is(err, lending.ErrWithdrawExceedsCollateralValue):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, common.ErrModulePaused):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, oracle.ErrStalePrice), errors.Is(err, oracle.ErrInvalidPriceFeed):
		writeError(w, http.StatusBadGateway, err)
	case errors.Is(err, storage.ErrKeyNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
