package osm

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmplot/pkg/core"
	"github.com/NERVsystems/osmplot/pkg/tracing"
)

// MonitoringHooks defines hooks for monitoring HTTP requests
type MonitoringHooks struct {
	// OnRequest is called before making an HTTP request
	OnRequest func(service, operation string)

	// OnResponse is called after the request finishes, including retries
	OnResponse func(service, operation string, duration time.Duration, success bool)

	// OnRateLimit is called when the client had to wait for its limiter
	OnRateLimit func(service string, waitTime time.Duration)

	// OnError is called when an error occurs
	OnError func(service, errorType string)
}

// transport is the rate limited, retrying HTTP path shared by the
// Overpass and taginfo clients.
type transport struct {
	service   string
	http      *http.Client
	limiter   *rate.Limiter
	retry     core.RetryOptions
	hooks     *MonitoringHooks
	userAgent string
	referer   string
	logger    *slog.Logger
}

// do runs build once per attempt, waiting for the limiter first, and
// reports the outcome to the hooks.
func (t *transport) do(ctx context.Context, operation string, build core.RequestFactory) (*http.Response, error) {
	if t.hooks != nil && t.hooks.OnRequest != nil {
		t.hooks.OnRequest(t.service, operation)
	}

	start := time.Now()
	factory := func(ctx context.Context) (*http.Request, error) {
		if err := t.wait(ctx); err != nil {
			return nil, err
		}
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		if t.userAgent != "" {
			req.Header.Set("User-Agent", t.userAgent)
		}
		if t.referer != "" {
			req.Header.Set("Referer", t.referer)
		}
		return req, nil
	}

	resp, err := core.WithRetryFactory(ctx, t.service, factory, t.http, t.retry)

	if t.hooks != nil {
		if t.hooks.OnResponse != nil {
			t.hooks.OnResponse(t.service, operation, time.Since(start), err == nil)
		}
		if err != nil && t.hooks.OnError != nil {
			t.hooks.OnError(t.service, core.CodeOf(err, "request_error"))
		}
	}
	return resp, err
}

// wait blocks on the limiter and records significant waits
func (t *transport) wait(ctx context.Context) error {
	if t.limiter == nil || t.limiter.Allow() {
		return nil
	}

	startWait := time.Now()
	tracing.AddEvent(ctx, "rate_limit_wait",
		trace.WithAttributes(attribute.String(tracing.AttrRateLimitService, t.service)),
	)

	err := t.limiter.Wait(ctx)

	waited := time.Since(startWait)
	tracing.SetAttributes(ctx,
		attribute.String(tracing.AttrRateLimitService, t.service),
		attribute.Int64(tracing.AttrRateLimitWaitMs, waited.Milliseconds()),
	)
	if t.hooks != nil && t.hooks.OnRateLimit != nil {
		t.hooks.OnRateLimit(t.service, waited)
	}

	if err != nil {
		return core.NewError(core.ErrNetworkError, "rate limit wait cancelled").WithCause(err)
	}
	return nil
}
