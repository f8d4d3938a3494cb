package githubprov

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// retryTransport retries rate-limited and transient GitHub responses. On a
// 429 (or a secondary-limit 403 carrying Retry-After) it waits the advertised
// duration, otherwise it backs off exponentially, up to maxRetries attempts.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	baseDelay  time.Duration
}

func newRetryTransport(base http.RoundTripper, maxRetries int) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{base: base, maxRetries: maxRetries, baseDelay: time.Second}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, fmt.Errorf("recreating request body for retry: %w", bodyErr)
			}
			req.Body = body
		}

		resp, err = t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if !shouldRetry(resp) || attempt == t.maxRetries {
			return resp, nil
		}

		delay := retryDelay(resp, attempt, t.baseDelay)
		slog.Warn("GitHub request rate limited, retrying",
			"status", resp.StatusCode, "attempt", attempt, "delay", delay)
		resp.Body.Close()

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
	}
	return resp, err
}

func shouldRetry(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	case http.StatusForbidden:
		// Secondary rate limits surface as 403 with a Retry-After header.
		return resp.Header.Get("Retry-After") != ""
	default:
		return false
	}
}

func retryDelay(resp *http.Response, attempt int, base time.Duration) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(1<<(attempt+1)) * base
}
