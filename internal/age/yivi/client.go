// Package yivi implements the outbound client for the upstream proof server.
// It is the only surface of the mediator that talks to the outside world;
// everything else consumes it through the service layer's Client interface so
// tests can substitute deterministic fakes.
package yivi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"agegate/internal/age/models"
	dErrors "agegate/pkg/domain-errors"
	"agegate/pkg/platform/circuit"
)

// SessionPackage is the proof server's answer when a session is opened:
// the upstream token plus the pointer the caller's Yivi app needs.
type SessionPackage struct {
	Token      string                `json:"token"`
	SessionPtr models.SessionPointer `json:"sessionPtr"`
}

// Client starts disclosure sessions on the upstream proof server and polls
// their results.
type Client struct {
	baseURL       string
	bearerToken   string
	startTimeout  time.Duration
	resultTimeout time.Duration
	httpClient    *http.Client
	breaker       *circuit.Breaker
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeouts overrides the per-call deadlines for start and result.
func WithTimeouts(start, result time.Duration) Option {
	return func(c *Client) {
		if start > 0 {
			c.startTimeout = start
		}
		if result > 0 {
			c.resultTimeout = result
		}
	}
}

// WithBreaker sets a custom circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

// New creates a proof server client for the given base URL and bearer token.
func New(baseURL, bearerToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:       baseURL,
		bearerToken:   bearerToken,
		startTimeout:  10 * time.Second,
		resultTimeout: 5 * time.Second,
		httpClient:    &http.Client{},
		breaker:       circuit.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start opens a disclosure session upstream and returns the token and
// session pointer from the response.
func (c *Client) Start(ctx context.Context, request models.DisclosureRequest) (*SessionPackage, error) {
	reqBody, err := json.Marshal(request)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal disclosure request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.startTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session", bytes.NewReader(reqBody))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create start request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.bearerToken)

	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	var pkg SessionPackage
	if err := json.Unmarshal(body, &pkg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformedUpstream, "parse session package")
	}
	if pkg.Token == "" || pkg.SessionPtr.U == "" {
		return nil, dErrors.New(dErrors.CodeMalformedUpstream, "session package missing token or pointer")
	}
	return &pkg, nil
}

// Result polls the final state of an upstream session. An upstream 404 means
// the server no longer remembers the token.
func (c *Client) Result(ctx context.Context, upstreamToken string) (*models.DisclosureResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.resultTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/session/%s/result", c.baseURL, upstreamToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create result request")
	}
	req.Header.Set("Authorization", c.bearerToken)

	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	var result models.DisclosureResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformedUpstream, "parse disclosure result")
	}
	if result.Status == "" {
		return nil, dErrors.New(dErrors.CodeMalformedUpstream, "disclosure result missing status")
	}
	return &result, nil
}

// do executes the request and maps transport and status failures onto the
// mediator's error taxonomy.
func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if !c.breaker.Allow() {
		return nil, dErrors.New(dErrors.CodeUpstreamUnavailable, "proof server circuit open")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "proof server timeout")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "proof server unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "read proof server response")
	}

	// Any answer from the server, including a 4xx, means it is alive.
	if resp.StatusCode < 500 {
		c.breaker.RecordSuccess()
	} else {
		c.breaker.RecordFailure()
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, dErrors.New(dErrors.CodeSessionExpired, "proof server does not know this session")
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, dErrors.New(dErrors.CodeUpstreamRejected, fmt.Sprintf("proof server rejected request: %d", resp.StatusCode))
	default:
		return nil, dErrors.New(dErrors.CodeUpstreamUnavailable, fmt.Sprintf("proof server error: %d", resp.StatusCode))
	}
}
