package listings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
)

const (
	DefaultBaseURL     = "https://bayut.p.rapidapi.com"
	DefaultHost        = "bayut.p.rapidapi.com"
	DefaultTimeout     = 30 * time.Second
	DefaultRateLimit   = 2
	DefaultHitsPerPage = 25
)

// Fetcher is what the sync coordinator needs from a listings source
type Fetcher interface {
	FetchPage(ctx context.Context, q Query) (*Page, error)
	HasAPIKey() bool
}

// Client calls the properties/list endpoint
type Client struct {
	baseURL    string
	host       string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *CircuitBreaker
	log        *logrus.Entry
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHost sets the X-RapidAPI-Host header value
func WithHost(host string) ClientOption {
	return func(c *Client) {
		c.host = host
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit sets the outbound requests per second
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithCircuitBreaker replaces the default breaker
func WithCircuitBreaker(cb *CircuitBreaker) ClientOption {
	return func(c *Client) {
		c.breaker = cb
	}
}

// NewClient creates a listings API client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		host:    DefaultHost,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		breaker: NewCircuitBreaker(3, 5*time.Minute),
		log:     logging.ForComponent("listings"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewClientFromConfig builds a client from the listings config section
func NewClientFromConfig(cfg config.ListingsConfig) *Client {
	opts := []ClientOption{
		WithRateLimit(cfg.RequestsPerSecond),
		WithCircuitBreaker(NewCircuitBreaker(cfg.Breaker.ConsecutiveFailures, cfg.Breaker.GetResetTimeout())),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.Host != "" {
		opts = append(opts, WithHost(cfg.Host))
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.GetTimeout()}))
	}
	return NewClient(cfg.APIKey, opts...)
}

// HasAPIKey reports whether the client can authenticate
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// Breaker exposes the circuit breaker for status reporting
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// FetchPage retrieves one page of listings for a location
func (c *Client) FetchPage(ctx context.Context, q Query) (*Page, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if !c.breaker.CanProceed() {
		return nil, ErrCircuitOpen
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	purpose := q.Purpose
	if purpose == "" {
		purpose = "for-sale"
	}
	hitsPerPage := q.HitsPerPage
	if hitsPerPage <= 0 {
		hitsPerPage = DefaultHitsPerPage
	}

	params := url.Values{}
	params.Set("locationExternalIDs", q.LocationExternalID)
	params.Set("purpose", purpose)
	params.Set("hitsPerPage", strconv.Itoa(hitsPerPage))
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("lang", "en")
	params.Set("sort", "date-desc")

	reqURL := fmt.Sprintf("%s/properties/list?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-RapidAPI-Key", c.apiKey)
	req.Header.Set("X-RapidAPI-Host", c.host)
	req.Header.Set("Accept", "application/json")

	c.log.WithFields(logrus.Fields{
		"location": q.LocationExternalID,
		"page":     q.Page,
	}).Debug("Fetching listings page")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.breaker.RecordFailure(0)
		}
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
			c.breaker.RecordFailure(resp.StatusCode)
		}
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		c.breaker.RecordFailure(resp.StatusCode)
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	c.breaker.RecordSuccess()

	return &page, nil
}
