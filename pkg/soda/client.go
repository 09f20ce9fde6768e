// Package soda is a minimal client for Socrata Open Data API (SODA) dataset
// endpoints: SoQL query encoding, app-token auth, and transient-error
// classification for the retry layer.
package soda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultTimeout = 120 * time.Second

// Record is one raw dataset row. SODA serves most values as JSON strings;
// anything else is stringified at decode time so downstream staging is
// uniform.
type Record map[string]string

// HTTPError is a non-2xx response from the API.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("unexpected status %s", e.Status)
}

// IsTransient reports whether an error is worth retrying: transport-level
// failures (timeouts, connection errors) and 5xx/429 responses. 4xx responses
// are permanent; the request itself is malformed or unauthorized.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Config holds configuration for creating a Client.
//
// Timeout applies to the underlying HTTP client only. It is deliberately not
// representable as a query parameter: SODA treats unknown parameters as SoQL
// and rejects the request with a 400 instead of timing out.
type Config struct {
	Domain    string
	DatasetID string
	AppToken  string
	Timeout   time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Domain == "" {
		return errors.New("domain is required")
	}
	if cfg.DatasetID == "" {
		return errors.New("dataset ID is required")
	}
	return nil
}

// Client queries a single SODA dataset resource.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    fmt.Sprintf("https://%s/resource/%s.json", cfg.Domain, cfg.DatasetID),
		token:      cfg.AppToken,
	}, nil
}

// Fetch executes one SoQL query and returns the decoded rows.
func (c *Client) Fetch(ctx context.Context, q Query) ([]Record, error) {
	u := c.baseURL
	if params := q.Values().Encode(); params != "" {
		u += "?" + params
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("X-App-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}

	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := make(Record, len(row))
		for k, v := range row {
			switch val := v.(type) {
			case string:
				rec[k] = val
			case float64:
				rec[k] = strconv.FormatFloat(val, 'f', -1, 64)
			case bool:
				rec[k] = strconv.FormatBool(val)
			default:
				// Nested values (e.g. location objects) are not part of the
				// projection; skip rather than guess a representation.
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// Count returns the number of rows matching the WHERE clause.
func (c *Client) Count(ctx context.Context, where string) (int, error) {
	rows, err := c.Fetch(ctx, Query{Select: "count(1)", Where: where})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	count, err := strconv.Atoi(rows[0]["count_1"])
	if err != nil {
		return 0, fmt.Errorf("failed to parse count response %q: %w", rows[0]["count_1"], err)
	}
	return count, nil
}
