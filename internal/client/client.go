// Package client talks to the movie backend REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/liliang-cn/moviechat/internal/domain"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// CredentialProvider supplies the bearer token attached to requests.
// An empty token means the request goes out anonymously.
type CredentialProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bad status: %d", e.StatusCode)
	}
	return fmt.Sprintf("bad status: %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known statuses onto domain errors
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusBadRequest:
		return domain.ErrInvalidRequest
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	}
	return nil
}

// Client is a movie backend API client
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialProvider
	logger  *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the overall request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithCredentials attaches bearer tokens from p
func WithCredentials(p CredentialProvider) Option {
	return func(c *Client) {
		c.creds = p
	}
}

// WithLogger sets the client logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the API rooted at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCredentials replaces the credential provider
func (c *Client) SetCredentials(p CredentialProvider) {
	c.creds = p
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	anon   bool
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	data, err := c.raw(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", r.method, r.path, err)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, r request) ([]byte, error) {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !r.anon && c.creds != nil {
		token, err := c.creds.AccessToken(ctx)
		if err != nil {
			c.logger.Debug("sending request without credentials", zap.String("path", r.path), zap.Error(err))
		} else if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("backend request",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// errorMessage pulls a human readable message out of an error body
func errorMessage(data []byte) string {
	if !gjson.ValidBytes(data) {
		return strings.TrimSpace(string(data))
	}
	for _, key := range []string{"error", "detail", "message"} {
		if v := gjson.GetBytes(data, key); v.Exists() {
			return v.String()
		}
	}
	// field errors: {"username": ["A user with that username already exists."]}
	var msg string
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		if value.IsArray() && len(value.Array()) > 0 {
			msg = value.Array()[0].String()
			return false
		}
		return true
	})
	return msg
}

// decodeList accepts both a bare JSON array and a paginated {"results": [...]} envelope
func decodeList(data []byte, out any) error {
	if results := gjson.GetBytes(data, "results"); results.Exists() && results.IsArray() {
		data = []byte(results.Raw)
	}
	return json.Unmarshal(data, out)
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
