package pendingapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
)

const (
	pendingPath     = "/api/transferencias/pendientes"
	maxResponseSize = 4 << 20
)

// Config holds the pending-list client configuration
type Config struct {
	BaseURL string
	Token   string
	// Timeout bounds a single request when the caller's context has no deadline
	Timeout time.Duration
}

// Validate validates the configuration
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: base url %q", ErrInvalidConfig, c.BaseURL)
	}
	return nil
}

// Client fetches the full pending-transfer list over HTTP
type Client struct {
	config     Config
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
	token      string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock overrides the clock used to stamp fetches
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a new pending-list client
func NewClient(config Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Timeout <= 0 {
		config.Timeout = 8 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		config:   config,
		endpoint: strings.TrimRight(config.BaseURL, "/") + pendingPath,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.Named("pendingapi"),
		now:    time.Now,
		token:  config.Token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fetch returns the current pending list with creation timestamps made
// absolute relative to the moment the response arrived.
func (c *Client) Fetch(ctx context.Context) ([]validation.Entry, time.Time, error) {
	body, err := c.doRequest(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	fetchedAt := c.now()

	entries, err := validation.DecodeEntries(body)
	if err != nil {
		return nil, time.Time{}, &PollError{Message: err.Error(), Err: err}
	}
	for i := range entries {
		entries[i] = entries[i].WithAbsoluteTime(fetchedAt)
	}

	c.logger.Debug("pending list fetched", zap.Int("count", len(entries)))
	return entries, fetchedAt, nil
}

// doRequest performs the GET and returns the raw body of a 2xx response
func (c *Client) doRequest(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("pendingapi: failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &PollError{Message: err.Error(), Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &PollError{StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &PollError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody, resp.Status),
			Err:        ErrRequestFailed,
		}
	}
	return respBody, nil
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func errorMessage(body []byte, fallback string) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return fallback
}
