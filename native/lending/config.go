package lending

import (
	"time"

	nativecommon "github.com/RippnerLabs/stervault/native/common"
	"github.com/RippnerLabs/stervault/native/oracle"
)

// Config captures the runtime configuration for the lending module.
type Config struct {
	// MaxPriceAgeSeconds bounds oracle price freshness for risk checks.
	MaxPriceAgeSeconds int64 `toml:"MaxPriceAgeSeconds"`
	// Paused halts every value-moving operation when set.
	Paused bool             `toml:"Paused"`
	Banks  []BankDefinition `toml:"banks"`
}

// BankDefinition is the TOML shape of an administrative bank initialisation.
type BankDefinition struct {
	Asset                     string `toml:"Asset"`
	Name                      string `toml:"Name"`
	Description               string `toml:"Description"`
	Symbol                    string `toml:"Symbol"`
	Decimals                  uint8  `toml:"Decimals"`
	DepositInterestRate       uint64 `toml:"DepositInterestRate"`
	BorrowInterestRate        uint64 `toml:"BorrowInterestRate"`
	InterestAccrualPeriod     int64  `toml:"InterestAccrualPeriodSeconds"`
	MaxLTVBps                 uint64 `toml:"MaxLTVBps"`
	LiquidationThresholdBps   uint64 `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps       uint64 `toml:"LiquidationBonusBps"`
	LiquidationCloseFactorBps uint64 `toml:"LiquidationCloseFactorBps"`
	MinDeposit                uint64 `toml:"MinDeposit"`
	DepositFeeBps             uint64 `toml:"DepositFeeBps"`
	WithdrawalFeeBps          uint64 `toml:"WithdrawalFeeBps"`
}

// Params converts the TOML definition into engine parameters.
func (d BankDefinition) Params() BankParams {
	return BankParams{
		Asset:                     d.Asset,
		Name:                      d.Name,
		Description:               d.Description,
		Symbol:                    d.Symbol,
		Decimals:                  d.Decimals,
		DepositInterestRate:       d.DepositInterestRate,
		BorrowInterestRate:        d.BorrowInterestRate,
		InterestAccrualPeriod:     d.InterestAccrualPeriod,
		MaxLTVBps:                 d.MaxLTVBps,
		LiquidationThresholdBps:   d.LiquidationThresholdBps,
		LiquidationBonusBps:       d.LiquidationBonusBps,
		LiquidationCloseFactorBps: d.LiquidationCloseFactorBps,
		MinDeposit:                d.MinDeposit,
		DepositFeeBps:             d.DepositFeeBps,
		WithdrawalFeeBps:          d.WithdrawalFeeBps,
	}
}

// MaxPriceAge returns the configured freshness window, falling back to the
// oracle default.
func (c Config) MaxPriceAge() time.Duration {
	if c.MaxPriceAgeSeconds <= 0 {
		return oracle.MaximumAge
	}
	return time.Duration(c.MaxPriceAgeSeconds) * time.Second
}

type staticPauses struct {
	paused bool
}

func (p staticPauses) IsPaused(module string) bool {
	return p.paused && module == moduleName
}

// PauseView renders the configured pause switch as a view the engine can
// consult on every operation.
func (c Config) PauseView() nativecommon.PauseView {
	return staticPauses{paused: c.Paused}
}
