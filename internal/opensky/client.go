// Package opensky is a client for the OpenSky Network REST API
// (https://openskynetwork.github.io/opensky-api/rest.html), the external
// source of ADS-B state vectors. Only the /states/all endpoint is consumed.
package opensky

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"adsb_tracker/internal/region"
)

// DefaultTimeout bounds one /states/all request. The external service is
// the dominant latency source of the pipeline; a slow request must not hold
// a fetch worker forever.
const DefaultTimeout = 15 * time.Second

// maxResponseBytes caps a response body read. A region covering heavy
// traffic returns a few MB at most.
const maxResponseBytes = 32 << 20

// ErrStatus is returned when the service answers with a non-success status.
var ErrStatus = errors.New("unexpected response status")

// Client issues region-bounded state requests against one base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL. A non-positive timeout
// falls back to DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchStates requests all state vectors inside r and returns the raw
// response payload, unmodified, for the fetch stage to forward downstream.
func (c *Client) FetchStates(ctx context.Context, r region.Region) ([]byte, error) {
	q := url.Values{}
	q.Set("lamin", formatCoord(r.LatMin))
	q.Set("lomin", formatCoord(r.LonMin))
	q.Set("lamax", formatCoord(r.LatMax))
	q.Set("lomax", formatCoord(r.LonMax))

	reqURL := c.baseURL + "/states/all?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch states: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s from %s", ErrStatus, resp.Status, reqURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
