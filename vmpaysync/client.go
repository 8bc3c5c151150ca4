package vmpaysync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/vmpay_warehouse/config"
)

const (
	// maxFetchAttempts bounds the retry loop for one page request.
	maxFetchAttempts = 3
	// interPageDelay is the fixed rate-limit courtesy between successful
	// pages. Process-wide, not configurable per call.
	interPageDelay = time.Second
)

// FetchError classifies one failed page attempt. Transient failures
// (network errors, 5xx) are retried with backoff; fatal failures (4xx,
// malformed bodies) are returned to the caller immediately.
type FetchError struct {
	Transient bool
	Status    int
	Err       error
}

func (e *FetchError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	if e.Status != 0 {
		return fmt.Sprintf("vmpay fetch (%s, status %d): %v", kind, e.Status, e.Err)
	}
	return fmt.Sprintf("vmpay fetch (%s): %v", kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client talks to the VMPay API. One Client per process; all calls are
// sequential.
type Client struct {
	baseURL     string
	accessToken string
	http        *http.Client

	// sleep is swapped out by tests; production uses time.Sleep.
	sleep func(time.Duration)
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.VMPayBaseURL, "/"),
		accessToken: cfg.VMPayAccessToken,
		http:        &http.Client{Timeout: 30 * time.Second},
		sleep:       time.Sleep,
	}
}

// fetchOnce issues exactly one request and classifies the outcome. No retry
// logic lives here; the caller consumes the result.
func (c *Client) fetchOnce(ctx context.Context, endpoint string, params url.Values) ([]Record, *FetchError) {
	query := url.Values{}
	for key, vals := range params {
		for _, v := range vals {
			query.Add(key, v)
		}
	}
	query.Set("access_token", c.accessToken)

	reqURL := c.baseURL + "/" + endpoint + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Transient: true, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Transient: true, Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &FetchError{
			Transient: true,
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("server error: %s", strings.TrimSpace(string(body))),
		}
	case resp.StatusCode >= 300:
		return nil, &FetchError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("api error: %s", strings.TrimSpace(string(body))),
		}
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, &FetchError{Status: resp.StatusCode, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return records, nil
}

// FetchPage fetches one page with bounded retries. Transient failures are
// retried up to maxFetchAttempts with exponential backoff (1s, 2s, 4s);
// after exhaustion the last error is returned as fatal.
func (c *Client) FetchPage(ctx context.Context, endpoint string, params url.Values) ([]Record, error) {
	var lastErr *FetchError
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		records, ferr := c.fetchOnce(ctx, endpoint, params)
		if ferr == nil {
			return records, nil
		}
		if !ferr.Transient {
			return nil, ferr
		}
		lastErr = ferr
		c.sleep(time.Duration(1<<attempt) * time.Second)
	}
	return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", endpoint, maxFetchAttempts, lastErr)
}

// FetchAll fetches a small non-paginated feed (categories, clients, ...) in
// one request.
func (c *Client) FetchAll(ctx context.Context, endpoint string) ([]Record, error) {
	return c.FetchPage(ctx, endpoint, url.Values{})
}
