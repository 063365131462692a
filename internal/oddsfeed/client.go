// Package oddsfeed is the client for The Odds API v4, the external odds
// provider. It throttles its own request rate and surfaces the provider's
// rate-limit condition as a typed error with a reset hint.
package oddsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"arbscan/internal/config"
)

// minCooldown is the floor applied to the provider's reset hint.
const minCooldown = time.Minute

type Outcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type Market struct {
	Key      string    `json:"key"`
	Outcomes []Outcome `json:"outcomes"`
}

type Bookmaker struct {
	Key        string    `json:"key"`
	LastUpdate time.Time `json:"last_update"`
	Markets    []Market  `json:"markets"`
}

// EventOdds is one event with all bookmaker quotes, as returned by the
// provider's per-sport odds endpoint.
type EventOdds struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	CommenceTime time.Time   `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

// RateLimitError reports that the provider throttled us. Reset is the
// earliest time further calls should be attempted.
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("odds provider rate limited until %s", e.Reset.Format(time.RFC3339))
}

type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	regions string
	markets string
	limiter *rate.Limiter
}

func NewClient(cfg config.OddsFeedConfig) *Client {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		regions: cfg.Regions,
		markets: cfg.Markets,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Odds fetches all upcoming events with quotes for one sport, decimal
// prices, iso timestamps. A 429 from the provider is returned as a
// *RateLimitError carrying the reset hint from the X-RateLimit-Reset header
// (floored at one minute).
func (c *Client) Odds(ctx context.Context, sport string) ([]EventOdds, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("regions", c.regions)
	q.Set("markets", c.markets)
	q.Set("oddsFormat", "decimal")
	q.Set("dateFormat", "iso")
	endpoint := fmt.Sprintf("%s/sports/%s/odds?%s", c.baseURL, url.PathEscape(sport), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch odds for %s: %w", sport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{Reset: parseReset(resp.Header.Get("X-RateLimit-Reset"), time.Now())}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("odds provider returned %d for %s", resp.StatusCode, sport)
	}

	var events []EventOdds
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode odds for %s: %w", sport, err)
	}
	return events, nil
}

func parseReset(header string, now time.Time) time.Time {
	floor := now.Add(minCooldown)
	if header == "" {
		return floor
	}
	unix, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return floor
	}
	reset := time.Unix(unix, 0)
	if reset.Before(floor) {
		return floor
	}
	return reset
}
