package oracle

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	// ErrStalePrice indicates the feed's last update is older than the
	// caller's freshness window.
	ErrStalePrice = errors.New("oracle: stale price")
	// ErrInvalidPriceFeed indicates the feed identifier could not be resolved.
	ErrInvalidPriceFeed = errors.New("oracle: invalid price feed")
)

// MaximumAge is the default freshness bound applied to oracle prices.
const MaximumAge = 10_000 * time.Second

// Price is a validated oracle observation. The quoted value is
// Price * 10^Expo in USD per whole token; the exponent is carried explicitly
// so downstream value math can normalise without loss.
type Price struct {
	Price       int64
	Expo        int32
	PublishTime time.Time
}

// Clone returns a copy of the price observation.
func (p Price) Clone() Price {
	return Price{Price: p.Price, Expo: p.Expo, PublishTime: p.PublishTime}
}

// PriceSource resolves a validated price for a feed identifier. A zero maxAge
// applies the MaximumAge default.
type PriceSource interface {
	GetPrice(feedID string, maxAge time.Duration) (Price, error)
}

// FeedRegistry maps asset symbols to upstream feed identifiers. It mirrors the
// external symbol-to-feed key-value registry consumed by the adapter and is
// safe for concurrent use.
type FeedRegistry struct {
	mu    sync.RWMutex
	feeds map[string]string
}

// NewFeedRegistry constructs an empty registry.
func NewFeedRegistry() *FeedRegistry {
	return &FeedRegistry{feeds: make(map[string]string)}
}

// Store records or replaces the feed identifier for a symbol. Symbols are
// canonicalised to upper case.
func (r *FeedRegistry) Store(symbol, feedID string) error {
	sym := normaliseSymbol(symbol)
	id := strings.TrimSpace(feedID)
	if sym == "" || id == "" {
		return fmt.Errorf("oracle: symbol and feed id required")
	}
	r.mu.Lock()
	r.feeds[sym] = id
	r.mu.Unlock()
	return nil
}

// Resolve returns the feed identifier registered for a symbol.
func (r *FeedRegistry) Resolve(symbol string) (string, error) {
	r.mu.RLock()
	id, ok := r.feeds[normaliseSymbol(symbol)]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: symbol %s not registered", ErrInvalidPriceFeed, normaliseSymbol(symbol))
	}
	return id, nil
}

// Symbols lists the registered symbols.
func (r *FeedRegistry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.feeds))
	for sym := range r.feeds {
		out = append(out, sym)
	}
	return out
}

// ManualSource is an in-memory price source used for tests and manual
// overrides during incident response.
type ManualSource struct {
	mu     sync.RWMutex
	prices map[string]Price
	now    func() time.Time
}

// NewManualSource constructs an empty manual source.
func NewManualSource() *ManualSource {
	return &ManualSource{prices: make(map[string]Price), now: time.Now}
}

// SetClock overrides the clock used for freshness checks.
func (m *ManualSource) SetClock(now func() time.Time) {
	if m == nil || now == nil {
		return
	}
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Set stores the provided price for the feed identifier.
func (m *ManualSource) Set(feedID string, price Price) {
	if m == nil {
		return
	}
	id := strings.TrimSpace(feedID)
	if id == "" {
		return
	}
	m.mu.Lock()
	m.prices[id] = price.Clone()
	m.mu.Unlock()
}

// GetPrice retrieves the stored price, enforcing the freshness window.
func (m *ManualSource) GetPrice(feedID string, maxAge time.Duration) (Price, error) {
	if m == nil {
		return Price{}, fmt.Errorf("manual price source not configured")
	}
	m.mu.RLock()
	stored, ok := m.prices[strings.TrimSpace(feedID)]
	now := m.now
	m.mu.RUnlock()
	if !ok {
		return Price{}, fmt.Errorf("%w: feed %s unknown", ErrInvalidPriceFeed, feedID)
	}
	if err := checkFreshness(stored, now(), maxAge); err != nil {
		return Price{}, err
	}
	return stored.Clone(), nil
}

func checkFreshness(p Price, now time.Time, maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = MaximumAge
	}
	if p.PublishTime.Before(now.Add(-maxAge)) {
		return fmt.Errorf("%w: published %s", ErrStalePrice, p.PublishTime.UTC().Format(time.RFC3339))
	}
	return nil
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
