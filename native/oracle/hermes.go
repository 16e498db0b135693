package oracle

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultHermesEndpoint = "https://hermes.pyth.network/v2/updates/price/latest"

// HermesSource fetches price data from a Pyth Hermes endpoint. Feed
// identifiers are the hex feed ids published by Pyth.
type HermesSource struct {
	client   HTTPDoer
	endpoint string
	now      func() time.Time
}

// NewHermesSource constructs a Hermes price source. When the client is nil
// http.DefaultClient is used.
func NewHermesSource(client HTTPDoer, endpoint string) *HermesSource {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultHermesEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HermesSource{client: client, endpoint: ep, now: time.Now}
}

// SetClock overrides the clock used for freshness checks.
func (s *HermesSource) SetClock(now func() time.Time) {
	if s == nil || now == nil {
		return
	}
	s.now = now
}

func (s *HermesSource) GetPrice(feedID string, maxAge time.Duration) (Price, error) {
	if s == nil {
		return Price{}, fmt.Errorf("hermes price source not configured")
	}
	id := strings.TrimPrefix(strings.TrimSpace(feedID), "0x")
	if id == "" {
		return Price{}, fmt.Errorf("%w: empty feed id", ErrInvalidPriceFeed)
	}
	req, err := http.NewRequest(http.MethodGet, s.endpoint, nil)
	if err != nil {
		return Price{}, err
	}
	values := url.Values{}
	values.Add("ids[]", id)
	req.URL.RawQuery = values.Encode()
	resp, err := s.client.Do(req)
	if err != nil {
		return Price{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		return Price{}, fmt.Errorf("%w: feed %s rejected upstream", ErrInvalidPriceFeed, feedID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Price{}, fmt.Errorf("hermes oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Parsed []struct {
			ID    string `json:"id"`
			Price struct {
				Price       string `json:"price"`
				Expo        int32  `json:"expo"`
				PublishTime int64  `json:"publish_time"`
			} `json:"price"`
		} `json:"parsed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Price{}, fmt.Errorf("hermes oracle: decode: %w", err)
	}
	for _, entry := range payload.Parsed {
		if !strings.EqualFold(strings.TrimPrefix(entry.ID, "0x"), id) {
			continue
		}
		raw, err := strconv.ParseInt(strings.TrimSpace(entry.Price.Price), 10, 64)
		if err != nil {
			return Price{}, fmt.Errorf("hermes oracle: invalid price %q: %w", entry.Price.Price, err)
		}
		price := Price{
			Price:       raw,
			Expo:        entry.Price.Expo,
			PublishTime: time.Unix(entry.Price.PublishTime, 0),
		}
		if err := checkFreshness(price, s.now(), maxAge); err != nil {
			return Price{}, err
		}
		return price, nil
	}
	return Price{}, fmt.Errorf("%w: feed %s missing from response", ErrInvalidPriceFeed, feedID)
}
