package pool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxBodyBytes = 1 << 20 // pools occasionally dump worker lists; cap reads

// Client fetches and parses provider responses. One instance is shared by
// all workers; the underlying http.Client enforces the per-request timeout.
type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{Timeout: timeout},
	}
}

// Fetch performs the HTTP GET for one (source, wallet) pair and returns the
// canonical stats record. Network failures, timeouts and 5xx responses come
// back as TransientError; schema problems as MalformedResponseError.
func (c *Client) Fetch(ctx context.Context, src Source, wallet string) (Stats, error) {
	url := endpointFor(src, wallet)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("build request for %s: %w", src.Name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Stats{}, &TransientError{Source: src.Name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Stats{}, &TransientError{Source: src.Name, Err: err}
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return Stats{}, &TransientError{Source: src.Name, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return Stats{}, &MalformedResponseError{
			Source: src.Name,
			Reason: fmt.Sprintf("unexpected HTTP %d", resp.StatusCode),
			Raw:    body,
		}
	}

	return Parse(src, body)
}

func endpointFor(src Source, wallet string) string {
	if strings.Contains(src.EndpointTemplate, "%s") {
		return fmt.Sprintf(src.EndpointTemplate, wallet)
	}
	return src.EndpointTemplate + wallet
}
