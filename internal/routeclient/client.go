// Package routeclient queries the external routing service.
package routeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"metroview/internal/metrics"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultStrategy = "stations"

	maxBodyBytes = 4 << 20
)

// ErrRouteNotFound is returned for a well-formed response without a path.
var ErrRouteNotFound = errors.New("route not found")

// TransportError covers network failures, non-success statuses and bodies
// that could not be decoded. Status is zero when no response arrived.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("route service returned %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("route service unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type Segment struct {
	Line     string   `json:"line"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Stations []string `json:"stations"`
}

type Result struct {
	Route     []string  `json:"route"`
	Transfers int       `json:"transfers"`
	Segments  []Segment `json:"segments,omitempty"`
}

type wireResult struct {
	Route     json.RawMessage `json:"route"`
	Transfers *int            `json:"transfers"`
	Segments  []Segment       `json:"segments"`
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	base    *url.URL
	http    *http.Client
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func New(log zerolog.Logger, opts Options, m *metrics.Metrics) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("route service url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse route service url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("route service url %q: scheme must be http or https", raw)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: base, http: hc, log: log, metrics: m}, nil
}

// QueryURL builds the route query. Values are percent-encoded the way a
// browser's encodeURIComponent does (space as %20).
func (c *Client) QueryURL(start, end, strategy string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/"
	u.RawQuery = "start=" + encodeComponent(start) +
		"&end=" + encodeComponent(end) +
		"&strategy=" + encodeComponent(strategy)
	return u.String()
}

func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Route asks the service for a path. No retry is attempted.
func (c *Client) Route(ctx context.Context, start, end, strategy string) (Result, error) {
	began := time.Now()
	res, err := c.route(ctx, start, end, strategy)

	outcome := "route"
	var te *TransportError
	switch {
	case errors.Is(err, ErrRouteNotFound):
		outcome = "not_found"
	case errors.As(err, &te):
		outcome = "transport_error"
	case err != nil:
		outcome = "error"
	}
	elapsed := time.Since(began)
	c.metrics.ObserveRouteRequest(outcome, elapsed)

	ev := c.log.Info()
	if outcome == "transport_error" || outcome == "error" {
		ev = c.log.Warn().Err(err)
	}
	ev.Str("start", start).
		Str("end", end).
		Str("strategy", strategy).
		Str("outcome", outcome).
		Int("stations", len(res.Route)).
		Int64("duration_ms", elapsed.Milliseconds()).
		Msg("route_request")

	return res, err
}

func (c *Client) route(ctx context.Context, start, end, strategy string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.QueryURL(start, end, strategy), nil)
	if err != nil {
		return Result{}, &TransportError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{}, &TransportError{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &TransportError{Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	return Decode(body)
}

// Decode parses a route response body. An absent, null, empty or "null"
// route means no path exists.
func Decode(body []byte) (Result, error) {
	var w wireResult
	if err := json.Unmarshal(body, &w); err != nil {
		return Result{}, &TransportError{Status: http.StatusOK, Err: fmt.Errorf("decode route response: %w", err)}
	}

	route, err := decodeRoute(w.Route)
	if err != nil {
		return Result{}, &TransportError{Status: http.StatusOK, Err: err}
	}
	if len(route) == 0 {
		return Result{}, ErrRouteNotFound
	}

	res := Result{Route: route, Segments: w.Segments}
	if w.Transfers != nil {
		res.Transfers = *w.Transfers
	}
	return res, nil
}

func decodeRoute(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode route: %w", err)
		}
		if s == "" || s == "null" {
			return nil, nil
		}
		return nil, fmt.Errorf("decode route: unexpected string %q", s)
	}
	var route []string
	if err := json.Unmarshal(raw, &route); err != nil {
		return nil, fmt.Errorf("decode route: %w", err)
	}
	return route, nil
}
