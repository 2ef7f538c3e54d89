// Package client provides the listing page HTTP client: one bounded-timeout
// GET per page with a fixed browser-like header set.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for page fetches.
var (
	pageRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_page_requests_total",
		Help: "Total listing page requests by status",
	}, []string{"status"})

	pageRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scraper_page_request_duration_seconds",
		Help:    "Listing page request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	})

	pageErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_page_errors_total",
		Help: "Total listing page fetch errors by class",
	}, []string{"class"})
)

// Default request settings.
const (
	DefaultBaseURL        = "https://coinmarketcap.com/"
	DefaultUserAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
	DefaultTimeout        = 20 * time.Second
	maxRedirects          = 5
)

// Client fetches listing pages. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration. It is copied on New and never
// mutated afterwards.
type Config struct {
	// BaseURL is the listing address for page 1
	BaseURL string

	// Fixed request headers
	UserAgent      string
	Accept         string
	AcceptLanguage string

	// Timeout bounds each request including reading the body
	Timeout time.Duration

	// MaxConnsPerHost caps connections to the listing host and keeps that many
	// idle for reuse (0 = transport defaults, which keep only 2 idle)
	MaxConnsPerHost int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		UserAgent:      DefaultUserAgent,
		Accept:         DefaultAccept,
		AcceptLanguage: DefaultAcceptLanguage,
		Timeout:        DefaultTimeout,
	}
}

// New creates a new page client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxConnsPerHost > 0 {
		transport.MaxConnsPerHost = cfg.MaxConnsPerHost
		transport.MaxIdleConnsPerHost = cfg.MaxConnsPerHost
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		config: cfg,
		logger: log.With().Str("component", "page-client").Logger(),
	}, nil
}

// PageURL maps a page number to its listing address. Page 1 is the base
// address; later pages add a page query parameter.
func PageURL(base string, page int) (string, error) {
	if page < 1 {
		return "", ErrInvalidPage
	}
	if page == 1 {
		return base, nil
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchPage performs one GET for the page and returns the response body.
func (c *Client) FetchPage(ctx context.Context, page int) (string, error) {
	target, err := PageURL(c.config.BaseURL, page)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", c.config.Accept)
	req.Header.Set("Accept-Language", c.config.AcceptLanguage)

	startTime := time.Now()
	defer func() {
		pageRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Int("page", page).
		Str("url", target).
		Msg("Fetching listing page")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.fail(&FetchError{Page: page, Class: classifyError(err), Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		pageRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		return "", c.fail(&FetchError{
			Page:       page,
			Class:      ErrorClassStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status),
		})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.fail(&FetchError{Page: page, Class: classifyError(err), Err: fmt.Errorf("read body: %w", err)})
	}

	pageRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug().
		Int("page", page).
		Int("status_code", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(startTime)).
		Msg("Fetched listing page")

	return string(body), nil
}

// fail records metrics and logging for a failed fetch.
func (c *Client) fail(fe *FetchError) error {
	pageErrorsTotal.WithLabelValues(string(fe.Class)).Inc()
	if fe.Class != ErrorClassStatus {
		pageRequestsTotal.WithLabelValues(string(fe.Class)).Inc()
	}

	c.logger.Warn().
		Err(fe.Err).
		Int("page", fe.Page).
		Int("status_code", fe.StatusCode).
		Str("error_class", string(fe.Class)).
		Msg("Listing page request failed")
	return fe
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return c.config
}
