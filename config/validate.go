package config

import (
	"fmt"
	"strings"
)

// Validate rejects configurations that the service cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}

	switch c.Oracle.Provider {
	case ProviderManual, ProviderHermes:
	default:
		return fmt.Errorf("config: oracle provider %q not supported", c.Oracle.Provider)
	}

	symbols := make(map[string]struct{}, len(c.Oracle.Feeds))
	for _, feed := range c.Oracle.Feeds {
		symbol := strings.ToUpper(strings.TrimSpace(feed.Symbol))
		if symbol == "" || strings.TrimSpace(feed.FeedID) == "" {
			return fmt.Errorf("config: oracle feed requires both Symbol and FeedID")
		}
		if _, dup := symbols[symbol]; dup {
			return fmt.Errorf("config: duplicate oracle feed for %s", symbol)
		}
		symbols[symbol] = struct{}{}
	}

	assets := make(map[string]struct{}, len(c.Lending.Banks))
	for _, bank := range c.Lending.Banks {
		if strings.TrimSpace(bank.Asset) == "" {
			return fmt.Errorf("config: bank requires an Asset identifier")
		}
		if _, dup := assets[bank.Asset]; dup {
			return fmt.Errorf("config: duplicate bank for asset %s", bank.Asset)
		}
		assets[bank.Asset] = struct{}{}
		if bank.InterestAccrualPeriod <= 0 {
			return fmt.Errorf("config: bank %s requires a positive InterestAccrualPeriodSeconds", bank.Asset)
		}
		if bank.MaxLTVBps > 10_000 {
			return fmt.Errorf("config: bank %s MaxLTVBps exceeds 100%%", bank.Asset)
		}
		symbol := strings.ToUpper(strings.TrimSpace(bank.Symbol))
		if symbol == "" {
			return fmt.Errorf("config: bank %s requires an oracle Symbol", bank.Asset)
		}
		if _, ok := symbols[symbol]; !ok {
			return fmt.Errorf("config: bank %s references unregistered oracle symbol %s", bank.Asset, symbol)
		}
	}

	return nil
}
