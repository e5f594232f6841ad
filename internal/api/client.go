// Package api implements the authenticated HTTP client for the procurement
// platform. Every response shares the envelope {success, data, message,
// errors}; success:false is a business rejection no matter the HTTP status,
// so callers only ever see parsed data or a typed *Error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenSource yields the current bearer token, or "" when unauthenticated.
// Absent tokens do not block the request; the server rejects it instead.
type TokenSource func() string

// Config holds client construction parameters.
type Config struct {
	BaseURL      string
	Timeout      time.Duration // per attempt
	MaxRetries   int           // additional attempts after the first
	RetryBackoff time.Duration // base backoff, doubled per retry
}

// Client performs authenticated calls against the platform API.
type Client struct {
	base       *url.URL
	httpc      *http.Client
	token      TokenSource
	logger     *slog.Logger
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
}

// NewClient validates cfg and builds a Client. A nil token source means all
// requests go out unauthenticated.
func NewClient(cfg Config, token TokenSource, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("api: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if token == nil {
		token = func() string { return "" }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:       base,
		httpc:      &http.Client{},
		token:      token,
		logger:     logger,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
	}, nil
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data,omitempty"`
	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// Get performs a GET request. GETs are retried on transport failure and
// timeout up to the configured bound.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, query, nil, "", "")
}

// Post performs a JSON POST. A nil payload sends an empty body. Mutating
// calls carry an Idempotency-Key so the bounded retry cannot double-apply.
func (c *Client) Post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := encodeJSON(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, path, nil, body, "application/json", uuid.NewString())
}

// Put performs a JSON PUT.
func (c *Client) Put(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := encodeJSON(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPut, path, nil, body, "application/json", uuid.NewString())
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil, "", uuid.NewString())
}

// PostMultipart performs a multipart/form-data POST. The content type is
// taken from the encoded form so the boundary is set automatically.
func (c *Client) PostMultipart(ctx context.Context, path string, form Form) (json.RawMessage, error) {
	body, contentType, err := form.encode()
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, path, nil, body, contentType, uuid.NewString())
}

func encodeJSON(payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("api: encode payload: %w", err)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, contentType, idemKey string) (json.RawMessage, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var lastErr *Error
	attempts := c.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, c.backoff, attempt); err != nil {
				return nil, &Error{Kind: KindTransport, cause: err}
			}
			c.logger.Debug("retrying request",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", attempt))
		}
		data, apiErr := c.attempt(ctx, method, u.String(), body, contentType, idemKey)
		if apiErr == nil {
			return data, nil
		}
		if apiErr.Kind == KindBusiness {
			return nil, apiErr
		}
		lastErr = apiErr
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, method, rawURL string, body []byte, contentType, idemKey string) (json.RawMessage, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, rawURL, reader)
	if err != nil {
		return nil, &Error{Kind: KindTransport, cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() == context.DeadlineExceeded {
			return nil, &Error{Kind: KindTimeout, cause: err}
		}
		return nil, &Error{Kind: KindTransport, cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Status: resp.StatusCode, cause: err}
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &Error{Kind: KindTransport, Status: resp.StatusCode, cause: fmt.Errorf("decode envelope: %w", err)}
	}
	if !env.Success {
		return nil, &Error{
			Kind:        KindBusiness,
			Status:      resp.StatusCode,
			Message:     env.Message,
			FieldErrors: env.Errors,
		}
	}
	return env.Data, nil
}

func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	d := base << (attempt - 1)
	if half := int64(base) / 2; half > 0 {
		d += time.Duration(rand.Int63n(half))
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
