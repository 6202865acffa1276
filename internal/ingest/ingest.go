// Package ingest holds the three syncers: wiki, wordpress and planet. Each
// shares the fetch -> filter -> upsert -> enqueue shape and reports through
// the same Result, using a single-timeout http.Client with bounded retry,
// generalized with cenkalti/backoff for the outbound fetches.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Result is the shared per-run statistics contract every syncer returns:
// fetched, created, updated, skipped, tasks queued, and accumulated errors.
type Result struct {
	Fetched     int
	Created     int
	Updated     int
	Skipped     int
	TasksQueued int
	Errors      []string
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// httpClient is the shared outbound client used by all three syncers. A
// fixed per-call timeout bounds each fetch; cenkalti/backoff provides a
// bounded retry with a constant delay between attempts (the delay does not
// grow from one retry to the next).
type httpClient struct {
	client  *http.Client
	retries uint64
}

func newHTTPClient(timeout time.Duration) *httpClient {
	return &httpClient{
		client:  &http.Client{Timeout: timeout},
		retries: 3,
	}
}

// get fetches url and returns the raw response body, retrying transient
// failures (network errors, 5xx, 429) up to h.retries times with a constant
// 2-second delay between attempts; the delay does not increase per retry.
func (h *httpClient) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("ingest: %s returned status %d", url, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("ingest: %s returned status %d: %s", url, resp.StatusCode, string(b)))
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = b
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), h.retries)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}
