// Package postgrest stores observations behind a Supabase-style PostgREST endpoint.
package postgrest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"radar/internal/pkg/circuit"
	"radar/internal/pkg/retry"
	"radar/internal/store"

	"github.com/tidwall/gjson"
)

// Config locates the REST endpoint.
type Config struct {
	URL    string
	APIKey string
	Table  string
	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration
}

// client wraps the PostgREST HTTP surface.
type client struct {
	base    string
	apiKey  string
	table   string
	http    *http.Client
	retry   retry.Policy
	breaker *circuit.Breaker
}

func newClient(cfg Config, rp retry.Policy, breaker *circuit.Breaker) (*client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, fmt.Errorf("postgrest: url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("postgrest: invalid url: %w", err)
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = store.TableName
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rp.Retryable = func(err error) bool {
		return store.IsRetryable(err) && !errors.Is(err, circuit.ErrOpen)
	}
	return &client{
		base:    base,
		apiKey:  cfg.APIKey,
		table:   table,
		http:    &http.Client{Timeout: timeout},
		retry:   rp,
		breaker: breaker,
	}, nil
}

// response is the part of an HTTP reply callers need.
type response struct {
	status       int
	body         []byte
	contentRange string
}

// do sends one request with retries. body may be nil.
func (c *client) do(ctx context.Context, op, method string, query url.Values, body []byte, prefer ...string) (response, error) {
	var out response
	err := c.retry.Do(ctx, "postgrest "+op, func(ctx context.Context) error {
		if !c.breaker.Allow() {
			return store.Unavailable(op, circuit.ErrOpen)
		}
		resp, err := c.roundTrip(ctx, method, query, body, prefer)
		err = classify(op, resp, err)
		c.breaker.Record(err, store.IsRetryable)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	return out, err
}

func (c *client) roundTrip(ctx context.Context, method string, query url.Values, body []byte, prefer []string) (response, error) {
	endpoint := c.base + "/rest/v1/" + url.PathEscape(c.table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return response{}, err
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(prefer, ","))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, err
	}
	return response{status: resp.StatusCode, body: data, contentRange: resp.Header.Get("Content-Range")}, nil
}

// classify maps transport failures and HTTP statuses onto the store sentinels.
func classify(op string, resp response, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return store.Unavailable(op, err)
	}
	if resp.status >= 200 && resp.status < 300 {
		return nil
	}
	msg := apiMessage(resp.body)
	switch {
	case resp.status == http.StatusConflict:
		return fmt.Errorf("%s: %w: %s", op, store.ErrSnapshotExists, msg)
	case resp.status == http.StatusTooManyRequests, resp.status >= 500:
		return store.Unavailable(op, fmt.Errorf("status %d: %s", resp.status, msg))
	default:
		return fmt.Errorf("%s: status %d: %s", op, resp.status, msg)
	}
}

func apiMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	parsed := gjson.ParseBytes(body)
	if m := parsed.Get("message"); m.Exists() {
		if d := parsed.Get("details").String(); d != "" {
			return m.String() + " (" + d + ")"
		}
		return m.String()
	}
	return strings.TrimSpace(string(body))
}

// totalFromRange reads the total out of a Content-Range header such as
// "0-24/3573" or "*/0".
func totalFromRange(header string) (int64, error) {
	_, total, ok := strings.Cut(header, "/")
	if !ok || total == "" || total == "*" {
		return 0, fmt.Errorf("content-range %q has no total", header)
	}
	return strconv.ParseInt(total, 10, 64)
}
