// Package knack provides a client for the Knack database REST API.
package knack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Knack record operations.
type Client interface {
	// GetRecords fetches every record of an object matching the filter,
	// walking Knack's pagination until the reported total is reached. A nil
	// filter fetches all records.
	GetRecords(ctx context.Context, object string, filter *Filter) ([]Record, error)
	// UpdateRecord writes the given field values to a single record.
	UpdateRecord(ctx context.Context, object, recordID string, fields map[string]any) error
}

// Filter match modes. Knack expects the literal strings in the filters
// query parameter.
const (
	MatchAnd = "and"
	MatchOr  = "or"
)

// Filter restricts a record query. It is serialized as JSON into the
// filters query parameter.
type Filter struct {
	Match string `json:"match"`
	Rules []Rule `json:"rules"`
}

// Rule is a single filter clause. Knack boolean fields take the strings
// "Yes" and "No" as values.
type Rule struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Record is one Knack record as returned by the API: the "id" key plus a
// dynamic set of field_N and field_N_raw values whose shapes vary by field
// type.
type Record map[string]json.RawMessage

// ID returns the record identifier.
func (r Record) ID() string {
	return r.String("id")
}

// String returns a field as a string. Numeric values are formatted; absent
// fields and other shapes return "".
func (r Record) String(field string) string {
	raw, ok := r[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// Decode unmarshals a structured field (typically a _raw value) into out.
func (r Record) Decode(field string, out any) error {
	raw, ok := r[field]
	if !ok {
		return eris.Errorf("knack: record has no field %q", field)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return eris.Wrapf(err, "knack: decode field %s", field)
	}
	return nil
}

type recordsResponse struct {
	Records      []Record `json:"records"`
	TotalRecords int      `json:"total_records"`
}

// Option configures the Knack client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests at the given rate per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// WithRowsPerPage overrides the page size used when walking record
// pagination (for testing).
func WithRowsPerPage(n int) Option {
	return func(c *httpClient) {
		c.rows = n
	}
}

const defaultRowsPerPage = 25

type httpClient struct {
	appID   string
	apiKey  string
	baseURL string
	rows    int
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Knack API client.
func NewClient(appID, apiKey string, opts ...Option) Client {
	c := &httpClient{
		appID:   appID,
		apiKey:  apiKey,
		baseURL: "https://api.knack.com/v1",
		rows:    defaultRowsPerPage,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		// Knack enforces a 10 requests per second limit per application.
		limiter: rate.NewLimiter(rate.Limit(8), 8),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *httpClient) setHeaders(req *http.Request) {
	req.Header.Set("X-Knack-Application-Id", c.appID)
	req.Header.Set("X-Knack-REST-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

// retryableStatusCode returns true if the HTTP status code should trigger a
// retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503). The request is rebuilt on each
// attempt because a consumed PUT body cannot be cloned. Returns the response
// body and status code on success, or the last error after exhausting
// retries.
func (c *httpClient) retryDo(ctx context.Context, build func(context.Context) (*http.Request, error)) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.wait(ctx); err != nil {
			return nil, 0, eris.Wrap(err, "knack: rate limit")
		}

		req, err := build(ctx)
		if err != nil {
			return nil, 0, eris.Wrap(err, "knack: create request")
		}
		c.setHeaders(req)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "knack: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("knack: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) GetRecords(ctx context.Context, object string, filter *Filter) ([]Record, error) {
	var filterJSON string
	if filter != nil {
		b, err := json.Marshal(filter)
		if err != nil {
			return nil, eris.Wrap(err, "knack: marshal filter")
		}
		filterJSON = string(b)
	}

	var all []Record
	page := 1
	for {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("rows_per_page", strconv.Itoa(c.rows))
		if filterJSON != "" {
			q.Set("filters", filterJSON)
		}
		reqURL := fmt.Sprintf("%s/objects/%s/records?%s", c.baseURL, object, q.Encode())

		body, statusCode, err := c.retryDo(ctx, func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "knack: get %s records page %d", object, page)
		}
		if statusCode != http.StatusOK {
			return nil, eris.Errorf("knack: get %s records: status %d: %s", object, statusCode, string(body))
		}

		var result recordsResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, eris.Wrap(err, "knack: unmarshal records response")
		}

		all = append(all, result.Records...)
		if len(result.Records) == 0 || len(all) >= result.TotalRecords {
			break
		}
		page++
	}

	return all, nil
}

func (c *httpClient) UpdateRecord(ctx context.Context, object, recordID string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return eris.Wrap(err, "knack: marshal update")
	}

	reqURL := fmt.Sprintf("%s/objects/%s/records/%s", c.baseURL, object, recordID)

	body, statusCode, err := c.retryDo(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodPut, reqURL, bytes.NewReader(payload))
	})
	if err != nil {
		return eris.Wrapf(err, "knack: update record %s", recordID)
	}
	if statusCode != http.StatusOK {
		return eris.Errorf("knack: update record %s: status %d: %s", recordID, statusCode, string(body))
	}

	return nil
}
