package lastfm

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Base represents the root XML response from Last.fm API.
type Base struct {
	XMLName xml.Name `xml:"lfm"`
	Status  string   `xml:"status,attr"`
	Inner   []byte   `xml:",innerxml"`
}

// APIError represents an error response from the Last.fm API.
type APIError struct {
	Code    int    `xml:"code,attr"`
	Message string `xml:",chardata"`
}

const (
	apiStatusFailed = "failed"
	userAgent       = "scrobbled/1.0"
	initialBackoff  = 1 * time.Second
	maxBackoff      = 30 * time.Second
)

// call signs and POSTs a request to the Last.fm API, retrying network
// failures, 5xx responses and temporary API errors with exponential backoff.
// It returns the inner XML of a successful <lfm> response.
func (c *Client) call(ctx context.Context, method string, params map[string]string, requiresAuth bool) ([]byte, error) {
	reqParams := make(map[string]string, len(params)+3)
	for k, v := range params {
		reqParams[k] = v
	}
	reqParams["method"] = method
	reqParams["api_key"] = c.apiKey

	if requiresAuth {
		sk := c.GetSessionKey()
		if sk == "" {
			return nil, ErrNoSessionKey
		}
		reqParams["sk"] = sk
	}

	formData := url.Values{}
	for k, v := range reqParams {
		formData.Set(k, v)
	}
	formData.Set("api_sig", calculateSignature(reqParams, c.apiSecret))
	body := formData.Encode()

	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		c.logDebugf("lastfm: calling %s (attempt %d/%d)", method, attempt, c.maxAttempts)

		inner, retry, err := c.do(ctx, body)
		if err == nil {
			c.logDebugf("lastfm: %s succeeded", method)
			return inner, nil
		}
		lastErr = err
		if !retry || attempt == c.maxAttempts {
			break
		}

		c.logDebugf("lastfm: %s failed, retrying in %v: %v", method, backoff, err)
		if !sleep(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = nextBackoff(backoff)
	}

	return nil, lastErr
}

// do performs a single HTTP round trip. The bool result reports whether
// the failure is worth retrying.
func (c *Client) do(ctx context.Context, body string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, shouldRetryNetworkError(err), fmt.Errorf("http request failed: %w", err)
	}

	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("server error: %s", resp.Status)
	}

	var base Base
	if err := xml.Unmarshal(data, &base); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return nil, false, fmt.Errorf("failed to parse XML response: %w", err)
	}

	if base.Status == apiStatusFailed {
		var apiErr APIError
		if err := xml.Unmarshal(base.Inner, &apiErr); err != nil {
			return nil, false, fmt.Errorf("failed to parse error response: %w", err)
		}
		lastfmErr := &Error{Code: apiErr.Code, Message: strings.TrimSpace(apiErr.Message)}
		return nil, lastfmErr.Temporary(), lastfmErr
	}

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return base.Inner, false, nil
}

// shouldRetryNetworkError checks if a network error is retryable.
func shouldRetryNetworkError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// sleep waits for the specified duration or until context is cancelled.
// Returns true if sleep completed, false if context was cancelled.
func sleep(ctx context.Context, duration time.Duration) bool {
	t := time.NewTimer(duration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// nextBackoff doubles the backoff, capped at maxBackoff.
func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
