/*
Package source fetches box tariffs from the marketplace tariff API.

PURPOSE:
  One HTTP GET per call against /api/v1/tariffs/box for a given date.
  The response is turned into tariff records with tolerant number
  decoding (see Amount). There are no retries.

PROTECTION:
  - A token-bucket limiter spaces requests (the API is rate limited).
  - A circuit breaker fails fast with gobreaker.ErrOpenState after
    repeated upstream failures, until its timeout elapses.

ERRORS:
  - Non-2xx responses return *StatusError.
  - Transport failures and malformed JSON return wrapped errors.
  - A body without response.data.warehouseList is not an error; it
    yields an empty result.
*/
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/warp/wb-tariffs/logging"
	"github.com/warp/wb-tariffs/metrics"
	"github.com/warp/wb-tariffs/tariff"
)

const (
	// DefaultBaseURL is the production tariff API host.
	DefaultBaseURL = "https://common-api.wildberries.ru"

	boxTariffsPath = "/api/v1/tariffs/box"
	breakerName    = "wb-tariffs-api"
	maxBodyBytes   = 10 << 20
	maxErrorBody   = 512
)

// Options configures a Client.
type Options struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64 // <= 0 disables the limiter
	UserAgent         string

	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client

	// BreakerThreshold is the number of consecutive failures that opens
	// the breaker. Default 3.
	BreakerThreshold uint32
	// BreakerTimeout is how long the breaker stays open. Default 5m.
	BreakerTimeout time.Duration
}

// Snapshot is one decoded tariff response.
type Snapshot struct {
	Date      tariff.Date
	DtNextBox string
	DtTillMax string
	Records   []tariff.Record
}

// Client talks to the tariff API. Safe for concurrent use.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[Snapshot]
}

// NewClient builds a client from opts.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "wb-tariffs/1.0"
	}
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = 3
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 5 * time.Minute
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	log := logging.WithComponent("source")
	metrics.SetCircuitBreakerState(breakerName, 0)
	threshold := opts.BreakerThreshold

	breaker := gobreaker.NewCircuitBreaker[Snapshot](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Cancellation is ours, not the upstream's.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state changed")
			metrics.SetCircuitBreakerState(name, stateValue(to))
		},
	})

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		token:     opts.Token,
		userAgent: opts.UserAgent,
		http:      httpClient,
		limiter:   limiter,
		breaker:   breaker,
	}
}

// FetchTariffs returns the warehouse tariffs for date.
func (c *Client) FetchTariffs(ctx context.Context, date tariff.Date) ([]tariff.Record, error) {
	snap, err := c.FetchBoxTariffs(ctx, date)
	if err != nil {
		return nil, err
	}
	return snap.Records, nil
}

// FetchBoxTariffs returns the full decoded response for date, including the
// validity dates the API reports.
func (c *Client) FetchBoxTariffs(ctx context.Context, date tariff.Date) (Snapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("rate limiter: %w", err)
	}

	snap, err := c.breaker.Execute(func() (Snapshot, error) {
		return c.fetch(ctx, date)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RecordSourceRequest("circuit_open", 0)
		return Snapshot{}, fmt.Errorf("tariff API unavailable: %w", err)
	}
	return snap, err
}

func (c *Client) fetch(ctx context.Context, date tariff.Date) (Snapshot, error) {
	start := time.Now()
	log := logging.WithComponent("source")

	q := url.Values{}
	q.Set("date", date.String())
	endpoint := c.baseURL + boxTariffsPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	log.Debug().Str("date", date.String()).Msg("Fetching box tariffs")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordSourceRequest("transport_error", time.Since(start))
		return Snapshot{}, fmt.Errorf("GET %s: %w", boxTariffsPath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.RecordSourceRequest("transport_error", time.Since(start))
		return Snapshot{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordSourceRequest("http_error", time.Since(start))
		return Snapshot{}, &StatusError{StatusCode: resp.StatusCode, Body: truncate(body, maxErrorBody)}
	}

	var payload boxTariffsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.RecordSourceRequest("decode_error", time.Since(start))
		return Snapshot{}, fmt.Errorf("decode response: %w", err)
	}
	metrics.RecordSourceRequest("success", time.Since(start))

	snap := Snapshot{Date: date}
	if payload.Response == nil || payload.Response.Data == nil || payload.Response.Data.WarehouseList == nil {
		log.Warn().Str("date", date.String()).Msg("No warehouse data in response")
		return snap, nil
	}

	data := payload.Response.Data
	snap.DtNextBox = data.DtNextBox
	snap.DtTillMax = data.DtTillMax
	snap.Records = make([]tariff.Record, 0, len(data.WarehouseList))
	for _, w := range data.WarehouseList {
		snap.Records = append(snap.Records, w.record(date))
	}

	log.Info().Str("date", date.String()).Int("warehouses", len(snap.Records)).
		Dur("elapsed", time.Since(start)).Msg("Fetched box tariffs")
	return snap, nil
}

// BreakerState reports the circuit breaker state name.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
