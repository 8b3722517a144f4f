// Package osm is the transport boundary to the Overpass feature service
// and the taginfo vocabulary registry.
package osm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmplot/pkg/core"
	"github.com/NERVsystems/osmplot/pkg/osm/queries"
	"github.com/NERVsystems/osmplot/pkg/tracing"
)

const (
	// OverpassBaseURL is the public Overpass interpreter
	OverpassBaseURL = "https://overpass-api.de/api/interpreter"

	// DefaultUserAgent identifies osmplot to upstream services
	DefaultUserAgent = "osmplot/0.1.0 (+https://github.com/NERVsystems/osmplot)"

	// DefaultReferer is sent alongside the User-Agent
	DefaultReferer = "https://github.com/NERVsystems/osmplot"
)

// Client submits Overpass queries
type Client struct {
	baseURL string
	t       transport
}

// Option configures a Client or TaginfoClient
type Option func(*transport)

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(c *http.Client) Option {
	return func(t *transport) { t.http = c }
}

// WithRateLimit sets the request rate. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(t *transport) {
		if rps <= 0 {
			t.limiter = nil
			return
		}
		t.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithRetryOptions sets the retry policy
func WithRetryOptions(o core.RetryOptions) Option {
	return func(t *transport) { t.retry = o }
}

// WithUserAgent sets the User-Agent and Referer headers
func WithUserAgent(userAgent, referer string) Option {
	return func(t *transport) {
		t.userAgent = userAgent
		t.referer = referer
	}
}

// WithMonitoringHooks installs request hooks
func WithMonitoringHooks(h *MonitoringHooks) Option {
	return func(t *transport) { t.hooks = h }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(t *transport) { t.logger = l }
}

func newTransport(service string, opts []Option) transport {
	t := transport{
		service:   service,
		http:      core.DefaultClient,
		limiter:   rate.NewLimiter(rate.Limit(1), 1),
		retry:     core.DefaultRetryOptions,
		userAgent: DefaultUserAgent,
		referer:   DefaultReferer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&t)
	}
	t.logger = t.logger.With("component", service)
	return t
}

// NewClient creates an Overpass client for baseURL. An empty baseURL
// uses OverpassBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = OverpassBaseURL
	}
	return &Client{
		baseURL: baseURL,
		t:       newTransport(tracing.ServiceOverpass, opts),
	}
}

// Fetch runs a key/tag search. No matches is an empty batch, not an error.
func (c *Client) Fetch(ctx context.Context, q queries.Query) (*Batch, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	ctx, span := tracing.StartSpan(ctx, "overpass.fetch",
		trace.WithAttributes(tracing.QueryAttributes(q.Key, q.Tag)...),
	)
	defer span.End()

	return c.run(ctx, span, "fetch", q.Build())
}

// FetchByID fetches a single element and whatever the recursion adds
func (c *Client) FetchByID(ctx context.Context, q queries.IDQuery) (*Batch, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	ctx, span := tracing.StartSpan(ctx, "overpass.fetch_by_id",
		trace.WithAttributes(
			attribute.String("osm.element.type", q.Type),
			attribute.Int64("osm.element.id", q.ID),
		),
	)
	defer span.End()

	return c.run(ctx, span, "fetch_by_id", q.Build())
}

// Raw submits caller supplied Overpass QL. The query must request JSON
// output.
func (c *Client) Raw(ctx context.Context, ql string) (*Batch, error) {
	if strings.TrimSpace(ql) == "" {
		return nil, core.NewValidationError(core.ErrMissingParameter, "query is empty")
	}
	ctx, span := tracing.StartSpan(ctx, "overpass.raw")
	defer span.End()

	return c.run(ctx, span, "raw", ql)
}

func (c *Client) run(ctx context.Context, span trace.Span, operation, ql string) (*Batch, error) {
	c.t.logger.Debug("submitting query", "operation", operation, "query", ql)

	resp, err := c.t.do(ctx, operation, func(ctx context.Context) (*http.Request, error) {
		form := url.Values{"data": {ql}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "overpass request failed")
		return nil, withQuery(err, ql)
	}
	defer resp.Body.Close()

	batch, perr := decodeBatch(resp.Body)
	if perr != nil {
		span.RecordError(perr)
		span.SetStatus(codes.Error, "overpass response undecodable")
		return nil, perr.WithQuery(ql)
	}
	batch.Query = ql
	batch.FetchedAt = time.Now()

	if rerr := remarkError(batch.Remark); rerr != nil {
		span.RecordError(rerr)
		span.SetStatus(codes.Error, "overpass runtime error")
		return nil, rerr.WithQuery(ql)
	}

	span.SetAttributes(attribute.Int(tracing.AttrElementCount, len(batch.Elements)))
	c.t.logger.Debug("query complete", "operation", operation, "elements", len(batch.Elements))
	return batch, nil
}

// CheckHealth verifies the interpreter answers a trivial query
func (c *Client) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	u := c.baseURL + "?" + url.Values{"data": {"[out:json];out meta;"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create overpass health check request: %w", err)
	}
	req.Header.Set("User-Agent", c.t.userAgent)

	resp, err := c.t.http.Do(req)
	if err != nil {
		return fmt.Errorf("overpass health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("overpass health check returned status %d", resp.StatusCode)
	}
	return nil
}

func decodeBatch(r io.Reader) (*Batch, *core.Error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, core.NewError(core.ErrNetworkError, "failed to read overpass response").WithCause(err)
	}

	var batch Batch
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, core.NewError(core.ErrParseError, "overpass response is not valid JSON").
			WithGuidance("Make sure raw queries request [out:json]").
			WithCause(fmt.Errorf("%w (body starts %q)", err, snippet(body)))
	}
	return &batch, nil
}

// remarkError converts an Overpass runtime remark into an error. Overpass
// reports query timeouts and memory exhaustion with a 200 status.
func remarkError(remark string) *core.Error {
	if !strings.Contains(remark, "runtime error") {
		return nil
	}
	code := core.ErrTransport
	if strings.Contains(remark, "timed out") {
		code = core.ErrServiceTimeout
	}
	return core.NewError(code, remark).
		WithGuidance("Try a smaller area or a more specific tag")
}

func withQuery(err error, ql string) error {
	if e, ok := err.(*core.Error); ok {
		return e.WithQuery(ql)
	}
	return err
}

func snippet(b []byte) string {
	const n = 120
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
