package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RippnerLabs/stervault/crypto"
	"github.com/RippnerLabs/stervault/native/lending"
)

// FeeReader exposes the collected deposit and withdrawal fees per bank.
type FeeReader interface {
	GetFeeAccrual(asset string) (*lending.FeeAccrual, error)
}

// adminRoutes exposes the administrative surface: bank initialisation and fee
// inspection. Mounted behind the authenticator.
type adminRoutes struct {
	engine *lending.Engine
	fees   FeeReader
	shared *lendingRoutes
}

func newAdminRoutes(engine *lending.Engine, fees FeeReader, shared *lendingRoutes) *adminRoutes {
	return &adminRoutes{engine: engine, fees: fees, shared: shared}
}

func (ar *adminRoutes) mount(r chi.Router) {
	r.Post("/banks", ar.initBank)
	r.Get("/fees/{asset}", ar.getFees)
}

type initBankRequest struct {
	Authority                 string `json:"authority"`
	Asset                     string `json:"asset"`
	Name                      string `json:"name"`
	Description               string `json:"description"`
	Symbol                    string `json:"symbol"`
	Decimals                  uint8  `json:"decimals"`
	DepositInterestRate       uint64 `json:"depositInterestRate"`
	BorrowInterestRate        uint64 `json:"borrowInterestRate"`
	InterestAccrualPeriod     int64  `json:"interestAccrualPeriodSeconds"`
	MaxLTVBps                 uint64 `json:"maxLtvBps"`
	LiquidationThresholdBps   uint64 `json:"liquidationThresholdBps"`
	LiquidationBonusBps       uint64 `json:"liquidationBonusBps"`
	LiquidationCloseFactorBps uint64 `json:"liquidationCloseFactorBps"`
	MinDeposit                uint64 `json:"minDeposit"`
	DepositFeeBps             uint64 `json:"depositFeeBps"`
	WithdrawalFeeBps          uint64 `json:"withdrawalFeeBps"`
}

func (ar *adminRoutes) initBank(w http.ResponseWriter, r *http.Request) {
	var req initBankRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	authority, err := crypto.DecodeAddress(req.Authority)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	ar.shared.mu.Lock()
	defer ar.shared.mu.Unlock()

	bank, err := ar.engine.InitBank(authority, lending.BankParams{
		Asset:                     req.Asset,
		Name:                      req.Name,
		Description:               req.Description,
		Symbol:                    req.Symbol,
		Decimals:                  req.Decimals,
		DepositInterestRate:       req.DepositInterestRate,
		BorrowInterestRate:        req.BorrowInterestRate,
		InterestAccrualPeriod:     req.InterestAccrualPeriod,
		MaxLTVBps:                 req.MaxLTVBps,
		LiquidationThresholdBps:   req.LiquidationThresholdBps,
		LiquidationBonusBps:       req.LiquidationBonusBps,
		LiquidationCloseFactorBps: req.LiquidationCloseFactorBps,
		MinDeposit:                req.MinDeposit,
		DepositFeeBps:             req.DepositFeeBps,
		WithdrawalFeeBps:          req.WithdrawalFeeBps,
	})
	if err != nil {
		writeLendingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"asset": bank.Asset})
}

type feeResponse struct {
	Asset          string `json:"asset"`
	DepositFees    uint64 `json:"depositFees"`
	WithdrawalFees uint64 `json:"withdrawalFees"`
}

func (ar *adminRoutes) getFees(w http.ResponseWriter, r *http.Request) {
	if ar.fees == nil {
		writeError(w, http.StatusNotFound, lending.ErrBankNotFound)
		return
	}
	asset := chi.URLParam(r, "asset")

	ar.shared.mu.Lock()
	defer ar.shared.mu.Unlock()

	fees, err := ar.fees.GetFeeAccrual(asset)
	if err != nil {
		writeLendingError(w, err)
		return
	}
	out := feeResponse{Asset: asset}
	if fees != nil {
		out.DepositFees = fees.DepositFees
		out.WithdrawalFees = fees.WithdrawalFees
	}
	writeJSON(w, http.StatusOK, out)
}
