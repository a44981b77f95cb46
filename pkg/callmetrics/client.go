// Package callmetrics is a client for the call-route counter service, which
// reports removed calls and pause time per route over a date range.
package callmetrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/staff-eval/internal/resilience"
)

const dateLayout = "2006-01-02"

// Counters are the route totals for a period.
type Counters struct {
	RemovedCalls int64 `json:"removed_calls"`
	PauseSeconds int64 `json:"pause_seconds"`
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithRateLimit caps requests per second. Zero or less disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithBreaker overrides the circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// Client calls the counter service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("callmetrics", "counters")

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(5, 1),
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     30 * time.Second,
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the counters of routeID between from and to, inclusive.
// Transient failures are retried. Once the service keeps failing the
// breaker opens and Lookup returns resilience.ErrCircuitOpen immediately.
func (c *Client) Lookup(ctx context.Context, routeID string, from, to time.Time) (*Counters, error) {
	if routeID == "" {
		return nil, eris.New("callmetrics: route id is required")
	}
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*Counters, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Counters, error) {
			return c.fetch(ctx, routeID, from, to)
		})
	})
}

func (c *Client) fetch(ctx context.Context, routeID string, from, to time.Time) (*Counters, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "callmetrics: rate limit wait")
		}
	}

	q := url.Values{}
	q.Set("from", from.Format(dateLayout))
	q.Set("to", to.Format(dateLayout))
	endpoint := fmt.Sprintf("%s/routes/%s/counters?%s", c.baseURL, url.PathEscape(routeID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "callmetrics: build request")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "callmetrics: get counters for route %s", routeID)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "callmetrics: read body"), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("callmetrics: route %s: status %d: %s", routeID, resp.StatusCode, strings.TrimSpace(string(body)))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var out Counters
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "callmetrics: decode counters")
	}
	return &out, nil
}
