// Package delivery posts compiled visit groups to the collection endpoint.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cdr.dev/slog/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/runnerr0/visitrelay/internal/visit"
)

const defaultTimeout = 30 * time.Second

// ErrDeliveryFailed marks a group the endpoint did not accept.
var ErrDeliveryFailed = errors.New("delivery failed")

// Request is the JSON body of one outbound POST.
type Request struct {
	Username  string `json:"username"`
	EventName string `json:"eventName"`
	Data      string `json:"data"`
}

// GroupResult is the outcome of sending one hostname group.
type GroupResult struct {
	Hostname   string
	EntryIDs   []string
	StatusCode int
	Err        error
}

// Report collects the results of one Send.
type Report struct {
	Results []GroupResult
}

// AllSuccessful reports whether every group was accepted. An empty report is
// successful.
func (r Report) AllSuccessful() bool {
	for _, res := range r.Results {
		if res.Err != nil {
			return false
		}
	}
	return true
}

// Failed returns the results that carry an error.
func (r Report) Failed() []GroupResult {
	var out []GroupResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// SentIDs returns the IDs of every entry in the report.
func (r Report) SentIDs() []string {
	var ids []string
	for _, res := range r.Results {
		ids = append(ids, res.EntryIDs...)
	}
	return ids
}

// Client sends groups to a single endpoint.
type Client struct {
	endpoint    string
	username    string
	eventPrefix string
	http        *http.Client
	log         slog.Logger
	metrics     *Metrics
}

// Option configures a Client.
type Option func(c *Client)

func WithLogger(log slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithHTTPClient replaces the default client. Its Timeout bounds each
// request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds each request. A client passed to WithHTTPClient is
// copied, not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// New returns a Client posting to endpoint as username, naming events
// "<eventPrefix>:<hostname>". reg may be nil.
func New(endpoint, username, eventPrefix string, reg prometheus.Registerer, opts ...Option) *Client {
	c := &Client{
		endpoint:    endpoint,
		username:    username,
		eventPrefix: eventPrefix,
		http:        &http.Client{Timeout: defaultTimeout},
		metrics:     NewMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics.register(reg)
	return c
}

// EventName returns the event name used for hostname.
func (c *Client) EventName(hostname string) string {
	return c.eventPrefix + ":" + hostname
}

// Send posts every group, one request each. A failed group does not stop
// the remaining ones.
func (c *Client) Send(ctx context.Context, groups []visit.Group) Report {
	report := Report{Results: make([]GroupResult, 0, len(groups))}
	for _, g := range groups {
		ids := make([]string, len(g.Entries))
		for i, e := range g.Entries {
			ids[i] = e.ID
		}
		status, err := c.post(ctx, Request{
			Username:  c.username,
			EventName: c.EventName(g.Hostname),
			Data:      g.Payload,
		})
		report.Results = append(report.Results, GroupResult{
			Hostname:   g.Hostname,
			EntryIDs:   ids,
			StatusCode: status,
			Err:        err,
		})

		if err != nil {
			c.metrics.requests.WithLabelValues("failure").Inc()
			c.log.Warn(ctx, "group delivery failed",
				slog.F("hostname", g.Hostname),
				slog.F("entries", len(g.Entries)),
				slog.F("status", status),
				slog.Error(err),
			)
			continue
		}
		c.metrics.requests.WithLabelValues("success").Inc()
		c.log.Debug(ctx, "group delivered",
			slog.F("hostname", g.Hostname),
			slog.F("entries", len(g.Entries)),
		)
	}
	return report
}

func (c *Client) post(ctx context.Context, body Request) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("%w: encoding request: %w", ErrDeliveryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: building request: %w", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("%w: unexpected status %d", ErrDeliveryFailed, resp.StatusCode)
	}
	return resp.StatusCode, nil
}
