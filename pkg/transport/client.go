// Package transport wraps net/http with bounded retry for calls to the
// compute service and the annotation API.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yumyai/qtlview/logger"
	"go.uber.org/zap"
)

const (
	DefaultRetries       = 3
	DefaultRetryInterval = 1000 * time.Millisecond
)

// ErrParse marks a response body that could not be decoded. It is never retried.
var ErrParse = errors.New("parse error")

// RequestError is returned once every attempt has failed.
type RequestError struct {
	Method     string
	URL        string
	Attempts   int
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d after %d attempt(s)", e.Method, e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("%s %s: %v after %d attempt(s)", e.Method, e.URL, e.Err, e.Attempts)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Doer is the part of the client the orchestrator and annotation client depend on.
type Doer interface {
	Do(ctx context.Context, method, url string, body []byte) ([]byte, error)
	GetJSON(ctx context.Context, url string, out any) error
	PostJSON(ctx context.Context, url string, in any, out any) error
}

// Client issues HTTP calls and re-issues them on transient failure.
//
// Retries is the total number of attempts, so a value of 3 means one call
// plus at most two re-issues. A value below 1 behaves as 1.
type Client struct {
	HTTP          *http.Client
	Retries       int
	RetryInterval time.Duration
}

func NewClient(retries int, retryInterval time.Duration) *Client {
	return &Client{
		HTTP:          &http.Client{Timeout: 60 * time.Second},
		Retries:       retries,
		RetryInterval: retryInterval,
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

func (c *Client) attempts() int {
	if c.Retries < 1 {
		return 1
	}
	return c.Retries
}

// Do sends the request and returns the body of the first 2xx response.
// Network errors and non-2xx statuses are retried after RetryInterval
// until the attempt budget runs out.
func (c *Client) Do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	backoff := StaticBackoff(c.RetryInterval)
	remaining := c.attempts()
	attempt := 0

	for {
		attempt++
		remaining--

		payload, status, err := c.once(ctx, method, url, body)
		if err == nil && status >= 200 && status < 300 {
			logger.Debug("Request done",
				zap.String("method", method),
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.String("size", humanize.Bytes(uint64(len(payload)))),
			)
			return payload, nil
		}

		if err == nil {
			err = fmt.Errorf("unexpected status %d", status)
		}

		if ctx.Err() != nil {
			return nil, &RequestError{Method: method, URL: url, Attempts: attempt, StatusCode: status, Err: ctx.Err()}
		}

		if remaining <= 0 {
			logger.Warn("Request failed, no retries left",
				zap.String("method", method),
				zap.String("url", url),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return nil, &RequestError{Method: method, URL: url, Attempts: attempt, StatusCode: status, Err: err}
		}

		logger.Debug("Retrying request",
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if waitErr := backoff(ctx); waitErr != nil {
			return nil, &RequestError{Method: method, URL: url, Attempts: attempt, StatusCode: status, Err: waitErr}
		}
	}
}

func (c *Client) once(ctx context.Context, method, url string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return payload, resp.StatusCode, nil
}

// GetJSON fetches url and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	payload, err := c.Do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return decode(url, payload, out)
}

// PostJSON encodes in as the request body and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", url, err)
	}
	payload, err := c.Do(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	return decode(url, payload, out)
}

func decode(url string, payload []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrParse, url, err)
	}
	return nil
}
