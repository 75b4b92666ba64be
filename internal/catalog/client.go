// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuGH/livetv/internal/metrics"
	"github.com/ManuGH/livetv/internal/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/text/unicode/norm"
)

// Source is the upstream catalog API.
type Source interface {
	Playlists(ctx context.Context) ([]Playlist, error)
	Channels(ctx context.Context, playlistID string) ([]Channel, error)
}

// Client talks to the backend catalog API.
type Client struct {
	base    string
	http    *http.Client
	breaker *resilience.CircuitBreaker
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithBreaker sets the circuit breaker guarding upstream calls.
func WithBreaker(cb *resilience.CircuitBreaker) ClientOption {
	return func(c *Client) { c.breaker = cb }
}

// WithBreakerSettings guards upstream calls with a breaker that opens after
// threshold consecutive upstream failures and probes again after reset.
func WithBreakerSettings(threshold int, reset time.Duration) ClientOption {
	return func(c *Client) {
		c.breaker = resilience.NewCircuitBreaker("catalog", threshold, reset,
			resilience.WithFailureClassifier(countsAsUpstreamFailure))
	}
}

// NewClient returns a client for the catalog API rooted at base.
func NewClient(base string, timeout time.Duration, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker("catalog", 5, 30*time.Second,
			resilience.WithFailureClassifier(countsAsUpstreamFailure))
	}
	return c
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

type playlistPayload struct {
	ID          string `json:"id"`
	CountryName string `json:"countryName"`
	CountryCode string `json:"countryCode"`
	IsActive    bool   `json:"isActive"`
}

type channelPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Logo       string `json:"logo"`
	URL        string `json:"url"`
	Group      string `json:"group"`
	GroupTitle string `json:"group_title"`
}

// Playlists fetches GET /playlists.
func (c *Client) Playlists(ctx context.Context) ([]Playlist, error) {
	start := time.Now()
	var raw []playlistPayload
	err := c.getJSON(ctx, "playlists", c.base+"/playlists", &raw)
	metrics.ObserveCatalogFetch("playlists", err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}

	out := make([]Playlist, 0, len(raw))
	for _, p := range raw {
		if strings.TrimSpace(p.ID) == "" {
			continue
		}
		out = append(out, Playlist{
			ID:          p.ID,
			CountryName: clean(p.CountryName),
			CountryCode: strings.ToUpper(strings.TrimSpace(p.CountryCode)),
			IsActive:    p.IsActive,
		})
	}
	return out, nil
}

// Channels fetches GET /playlists/{id}/channels.
func (c *Client) Channels(ctx context.Context, playlistID string) ([]Channel, error) {
	start := time.Now()
	var raw []channelPayload
	u := c.base + "/playlists/" + url.PathEscape(playlistID) + "/channels"
	err := c.getJSON(ctx, "channels", u, &raw)
	metrics.ObserveCatalogFetch("channels", err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}

	out := make([]Channel, 0, len(raw))
	for _, ch := range raw {
		if strings.TrimSpace(ch.URL) == "" {
			continue
		}
		group := ch.Group
		if group == "" {
			group = ch.GroupTitle
		}
		out = append(out, Channel{
			ID:    ch.ID,
			Name:  clean(ch.Name),
			Logo:  strings.TrimSpace(ch.Logo),
			URL:   strings.TrimSpace(ch.URL),
			Group: clean(group),
		})
	}
	return out, nil
}

// clean trims and NFC-normalizes display text so that visually equal group
// labels compare equal.
func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func (c *Client) getJSON(ctx context.Context, op, u string, dst any) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return &Error{Sentinel: ErrBadResponse, Operation: op, Err: err}
		}
		req.Header.Set("Accept", "application/json")

		res, err := c.http.Do(req)
		if err != nil {
			return classifyTransport(op, err)
		}
		defer res.Body.Close()

		switch {
		case res.StatusCode == http.StatusNotFound:
			return &Error{Sentinel: ErrNotFound, Operation: op, Status: res.StatusCode}
		case res.StatusCode >= 500:
			return &Error{Sentinel: ErrUpstream, Operation: op, Status: res.StatusCode}
		case res.StatusCode >= 300:
			return &Error{Sentinel: ErrBadResponse, Operation: op, Status: res.StatusCode}
		}

		body, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
		if err != nil {
			return classifyTransport(op, err)
		}
		if err := json.Unmarshal(body, dst); err != nil {
			return &Error{Sentinel: ErrBadResponse, Operation: op, Err: err}
		}
		return nil
	})
}

func classifyTransport(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("catalog: %s: %w", op, err)
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &Error{Sentinel: ErrTimeout, Operation: op, Err: err}
	}
	return &Error{Sentinel: ErrUnavailable, Operation: op, Err: err}
}
