package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"xunji/internal/domain"
	"xunji/internal/infra/config"
)

// Client talks to the chat backend over HTTP. It is safe for concurrent
// use; every call owns its own request and response.
type Client struct {
	baseURL  string
	http     *http.Client
	creds    domain.CredentialSource
	notifier domain.Notifier
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a backend client. creds and notifier may be nil.
func NewClient(cfg config.ServerConfig, creds domain.CredentialSource, notifier domain.Notifier, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     NewHTTPClient(cfg),
		creds:    creds,
		notifier: notifier,
		breaker:  newBreaker("backend", cfg.CircuitBreaker, logger),
		logger:   logger,
	}
	if rpm := cfg.RateLimit.RequestsPerMinute; rpm > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BreakerState returns the circuit breaker state, or StateClosed when the
// breaker is disabled.
func (c *Client) BreakerState() gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.State()
}

// call describes one outgoing request.
type call struct {
	method string
	path   string
	query  url.Values
	body   any
	stream bool
}

// connect runs the Connecting phase: pace, build, send, and check status.
// On success the caller owns resp.Body. A 401 fires the notifier once
// before the error is returned.
func (c *Client) connect(ctx context.Context, cl call) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	req, err := c.newRequest(ctx, cl)
	if err != nil {
		return nil, err
	}

	send := func() (*http.Response, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
		}
		if !isSuccess(resp.StatusCode) {
			return nil, responseError(resp)
		}
		return resp, nil
	}

	var resp *http.Response
	if c.breaker != nil {
		resp, err = c.breaker.Execute(send)
		err = wrapBreakerError("backend", err)
	} else {
		resp, err = send()
	}
	if err != nil {
		if domain.IsUnauthorized(err) && c.notifier != nil {
			c.notifier.SessionExpired(ctx, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, error) {
	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set("X-Request-ID", ulid.Make().String())

	if c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("load token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}
