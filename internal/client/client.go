// ABOUTME: HTTP client for the chat backend with bearer authentication
// ABOUTME: Shared request plumbing, status errors and sentinel errors used by every endpoint

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/coven-chat/internal/stream"
)

// Sentinel errors returned by the client.
var (
	// ErrUnauthorized is matched by StatusErrors for 401 and 403 responses.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMissingToken is returned before any network I/O when no bearer token is available.
	ErrMissingToken = errors.New("authentication token not found")
	// ErrNoBody is returned when a streaming response carries no body.
	ErrNoBody = errors.New("response has no body")
	// ErrStreamIdle is returned when a stream produces no bytes for the idle timeout.
	ErrStreamIdle = errors.New("stream idle timeout")
)

const (
	defaultTimeout     = 30 * time.Second
	defaultIdleTimeout = 5 * time.Minute
	// maxErrorBody bounds how much of a failed response is kept in StatusError.
	maxErrorBody = 4096
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, body)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match auth failures.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

// TokenSource supplies the bearer token for authenticated requests.
type TokenSource interface {
	Token() (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() (string, error)

// Token calls f.
func (f TokenFunc) Token() (string, error) { return f() }

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token returns the token, or ErrMissingToken when it is empty.
func (s StaticToken) Token() (string, error) {
	if s == "" {
		return "", ErrMissingToken
	}
	return string(s), nil
}

// Client talks to the auth and chat backends.
type Client struct {
	authBaseURL  string
	apiBaseURL   string
	tokens       TokenSource
	httpClient   *http.Client
	timeout      time.Duration
	idleTimeout  time.Duration
	maxLineBytes int
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout bounds each non-streaming request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithIdleTimeout aborts a chat stream that produces no bytes for d.
// Zero disables the check.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) { c.idleTimeout = d }
}

// WithMaxLineBytes bounds a single stream record.
func WithMaxLineBytes(n int) Option {
	return func(c *Client) { c.maxLineBytes = n }
}

// New creates a Client. tokens may be nil, in which case every
// authenticated call fails with ErrMissingToken.
func New(authBaseURL, apiBaseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		authBaseURL:  strings.TrimSuffix(authBaseURL, "/"),
		apiBaseURL:   strings.TrimSuffix(apiBaseURL, "/"),
		tokens:       tokens,
		httpClient:   &http.Client{},
		timeout:      defaultTimeout,
		idleTimeout:  defaultIdleTimeout,
		maxLineBytes: stream.DefaultMaxLineBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "client")
	return c
}

// token resolves the bearer token.
func (c *Client) token() (string, error) {
	if c.tokens == nil {
		return "", ErrMissingToken
	}
	tok, err := c.tokens.Token()
	if err != nil {
		if errors.Is(err, ErrMissingToken) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrMissingToken, err)
	}
	if tok == "" {
		return "", ErrMissingToken
	}
	return tok, nil
}

// newRequest builds a request with JSON body and headers. When auth is true
// the bearer token is attached, and a missing token fails before any I/O.
func (c *Client) newRequest(ctx context.Context, method, url string, body any, auth bool) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if auth {
		tok, err := c.token()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// doJSON performs a bounded request and decodes a JSON response into out.
// out may be nil when the body is not needed.
func (c *Client) doJSON(ctx context.Context, method, url string, body, out any, auth bool) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, method, url, body, auth)
	if err != nil {
		return err
	}

	c.logger.Debug("http request", "method", method, "url", url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		c.logger.Debug("http request failed", "method", method, "url", url, "status", resp.StatusCode)
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// checkStatus converts a non-2xx response into a *StatusError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}

func (c *Client) apiURL(path string) string  { return c.apiBaseURL + path }
func (c *Client) authURL(path string) string { return c.authBaseURL + path }
