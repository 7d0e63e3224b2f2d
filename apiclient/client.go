package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "crispr-agent/errors"

	"go.uber.org/zap"
)

// Request describes one call to an external bioinformatics API. Exactly one of
// JSONBody and FormBody may be set; both nil means a plain GET/POST without a body.
type Request struct {
	// Context names the operation for logs and error payloads, e.g. "forecast".
	Context  string
	Method   string
	URL      string
	Query    url.Values
	Header   http.Header
	JSONBody any
	FormBody url.Values
}

// AdapterError reports that every attempt at an external call failed. It wraps the
// last underlying error so callers can distinguish transport from upstream failures.
type AdapterError struct {
	Context  string
	Attempts int
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Context, e.Attempts, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Client wraps a single external call with bounded retries and a fixed delay.
// A non-2xx status or network error counts as a failed attempt; a 2xx body is
// returned as-is and any downstream parse failure is never retried here.
type Client struct {
	httpClient  *http.Client
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger
}

func New(maxAttempts int, retryDelay, timeout time.Duration, logger *zap.Logger) *Client {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		logger:      logger,
	}
}

// Do performs the request, retrying transport failures and non-2xx statuses up to
// the configured attempt budget. On exhaustion it returns an *AdapterError; it
// never panics past this boundary.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, err := c.attempt(ctx, req)
		if err == nil {
			return body, nil
		}
		lastErr = err

		// Do not retry on context cancellation/deadline
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			return nil, &AdapterError{Context: req.Context, Attempts: attempt, Err: lastErr}
		}

		c.logger.Warn("External API call failed",
			zap.String("context", req.Context),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Error(err))

		if attempt < c.maxAttempts && c.retryDelay > 0 {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, &AdapterError{Context: req.Context, Attempts: attempt, Err: ctx.Err()}
			}
		}
	}

	return nil, &AdapterError{Context: req.Context, Attempts: c.maxAttempts, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, req Request) ([]byte, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrTransport, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrTransport, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.WrapErrorf(apperrors.ErrUpstream, "status %s: %s",
			resp.Status, truncateBody(body))
	}

	return body, nil
}

func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := req.URL
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target = target + sep + req.Query.Encode()
	}

	var bodyReader io.Reader
	contentType := ""
	switch {
	case req.JSONBody != nil:
		jsonBytes, err := json.Marshal(req.JSONBody)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request body: %w", req.Context, err)
		}
		bodyReader = bytes.NewReader(jsonBytes)
		contentType = "application/json"
	case req.FormBody != nil:
		bodyReader = strings.NewReader(req.FormBody.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", req.Context, err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	return httpReq, nil
}

func truncateBody(body []byte) string {
	const maxLen = 300
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
