package config

import (
	"time"

	"github.com/RippnerLabs/stervault/gateway/middleware"
	nativecommon "github.com/RippnerLabs/stervault/native/common"
)

// Oracle provider identifiers accepted in configuration.
const (
	ProviderManual = "manual"
	ProviderHermes = "hermes"
)

// Log controls file rotation for the service log. An empty File logs to
// stdout only.
type Log struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Gateway configures the HTTP surface.
type Gateway struct {
	LogRequests     bool     `toml:"LogRequests"`
	MetricsEnabled  bool     `toml:"MetricsEnabled"`
	AdminHMACSecret string   `toml:"AdminHMACSecret"`
	AdminScopes     []string `toml:"AdminScopes"`
	AllowedOrigins  []string `toml:"AllowedOrigins"`

	LendingRequestsPerMinute float64 `toml:"LendingRequestsPerMinute"`
	LendingBurst             int     `toml:"LendingBurst"`
	AdminRequestsPerMinute   float64 `toml:"AdminRequestsPerMinute"`
	AdminBurst               int     `toml:"AdminBurst"`
}

// RateLimits renders the configured per-route limits for the gateway
// middleware. Routes without a configured rate are unlimited.
func (g Gateway) RateLimits() map[string]middleware.RateLimit {
	limits := make(map[string]middleware.RateLimit)
	if g.LendingRequestsPerMinute > 0 {
		limits["lending"] = middleware.RateLimit{RequestsPerMinute: g.LendingRequestsPerMinute, Burst: g.LendingBurst}
	}
	if g.AdminRequestsPerMinute > 0 {
		limits["admin"] = middleware.RateLimit{RequestsPerMinute: g.AdminRequestsPerMinute, Burst: g.AdminBurst}
	}
	return limits
}

// Feed binds an asset symbol to an upstream oracle feed identifier.
type Feed struct {
	Symbol string `toml:"Symbol"`
	FeedID string `toml:"FeedID"`
}

// ManualPrice seeds the manual oracle provider with a fixed quote.
type ManualPrice struct {
	FeedID string `toml:"FeedID"`
	Price  int64  `toml:"Price"`
	Expo   int32  `toml:"Expo"`
}

// Oracle configures the price source backing the risk engine.
type Oracle struct {
	Provider           string        `toml:"Provider"`
	Endpoint           string        `toml:"Endpoint"`
	MaxPriceAgeSeconds int64         `toml:"MaxPriceAgeSeconds"`
	Feeds              []Feed        `toml:"feeds"`
	ManualPrices       []ManualPrice `toml:"manual_prices"`
}

// MaxPriceAge returns the configured freshness window, zero meaning the
// oracle default.
func (o Oracle) MaxPriceAge() time.Duration {
	if o.MaxPriceAgeSeconds <= 0 {
		return 0
	}
	return time.Duration(o.MaxPriceAgeSeconds) * time.Second
}

// Quota bounds borrow activity per owner per epoch at the gateway.
type Quota struct {
	MaxBorrowRequestsPerEpoch uint32 `toml:"MaxBorrowRequestsPerEpoch"`
	MaxBorrowValuePerEpoch    uint64 `toml:"MaxBorrowValuePerEpoch"`
	EpochSeconds              uint32 `toml:"EpochSeconds"`
}

// BorrowQuota renders the gateway quota in module terms.
func (q Quota) BorrowQuota() nativecommon.Quota {
	return nativecommon.Quota{
		MaxRequestsPerEpoch: q.MaxBorrowRequestsPerEpoch,
		MaxValuePerEpoch:    q.MaxBorrowValuePerEpoch,
		EpochSeconds:        q.EpochSeconds,
	}
}
