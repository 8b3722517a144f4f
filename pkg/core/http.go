package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/osmplot/pkg/tracing"
)

// RetryOptions configures retry behavior for HTTP requests
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// RetryOn lists the HTTP statuses that are retried. Other non-200
	// statuses fail immediately.
	RetryOn []int
}

// DefaultRetryOptions mirrors the Overpass etiquette: five retries on
// 429 and 504 with a one second exponential backoff.
var DefaultRetryOptions = RetryOptions{
	MaxAttempts:  6,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
	Multiplier:   2.0,
	RetryOn:      []int{http.StatusTooManyRequests, http.StatusGatewayTimeout},
}

// DefaultClient provides a pre-configured HTTP client
var DefaultClient = &http.Client{
	Timeout: 3 * time.Minute,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// RequestFactory is a function that creates a new HTTP request.
// A fresh request per attempt allows retrying requests with bodies.
type RequestFactory func(ctx context.Context) (*http.Request, error)

// WithRetryFactory performs HTTP requests created by a factory with retry logic
func WithRetryFactory(ctx context.Context, service string, factory RequestFactory, client *http.Client, options RetryOptions) (*http.Response, error) {
	ctx, span := tracing.StartSpan(ctx, "http.request_factory",
		trace.WithAttributes(
			attribute.String(tracing.AttrServiceName, service),
			attribute.Int("http.retry.max_attempts", options.MaxAttempts),
		),
	)
	defer span.End()

	if client == nil {
		client = DefaultClient
	}
	if options.MaxAttempts < 1 {
		options.MaxAttempts = 1
	}

	logger := slog.Default().With("service", service)
	delay := options.InitialDelay
	var lastErr error

	for attempt := 0; attempt < options.MaxAttempts; attempt++ {
		if attempt > 0 {
			tracing.AddEvent(ctx, "retry_attempt",
				trace.WithAttributes(
					attribute.Int("attempt", attempt+1),
					attribute.Int64("delay_ms", delay.Milliseconds()),
					attribute.String("error", fmt.Sprintf("%v", lastErr)),
				),
			)

			logger.Info("retrying request",
				"attempt", attempt+1,
				"max_attempts", options.MaxAttempts,
				"delay", delay,
				"last_error", lastErr,
			)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				span.SetStatus(codes.Error, "request cancelled")
				return nil, NewError(ErrNetworkError, "request cancelled").WithCause(ctx.Err())
			}

			delay = time.Duration(float64(delay) * options.Multiplier)
			if options.MaxDelay > 0 && delay > options.MaxDelay {
				delay = options.MaxDelay
			}
		}

		req, err := factory(ctx)
		if err != nil {
			span.SetStatus(codes.Error, "request creation failed")
			var e *Error
			if errors.As(err, &e) {
				return nil, err
			}
			return nil, NewError(ErrInternalError, "failed to create request").WithCause(err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = NewError(ErrNetworkError, fmt.Sprintf("%s request failed", service)).
				WithGuidance("Check your internet connection and try again").
				WithCause(err)
			logger.Error("request failed",
				"error", err,
				"attempt", attempt+1,
				"url", req.URL.String(),
			)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			span.SetAttributes(
				attribute.String(tracing.AttrHTTPMethod, req.Method),
				attribute.String("http.host", req.URL.Host),
				attribute.Int(tracing.AttrHTTPStatusCode, resp.StatusCode),
				attribute.Int("http.retry.attempts", attempt+1),
			)
			span.SetStatus(codes.Ok, "")

			logger.Debug("request successful",
				"status", resp.StatusCode,
				"content_length", resp.ContentLength,
				"content_type", resp.Header.Get("Content-Type"),
			)
			return resp, nil
		}

		lastErr = ServiceError(service, resp.StatusCode, fmt.Sprintf("HTTP status %d", resp.StatusCode))
		logger.Error("request returned error status",
			"status", resp.StatusCode,
			"attempt", attempt+1,
			"url", req.URL.String(),
		)
		if err := resp.Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}

		if !slices.Contains(options.RetryOn, resp.StatusCode) {
			span.RecordError(lastErr)
			span.SetStatus(codes.Error, "non-retryable status")
			return nil, lastErr
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "max retries exceeded")
	span.SetAttributes(attribute.Int("http.retry.attempts", options.MaxAttempts))

	if e, ok := lastErr.(*Error); ok {
		return nil, e.WithGuidance("Maximum retry attempts reached. " + e.Guidance)
	}
	return nil, NewError(ErrNetworkError, "max retries reached").
		WithGuidance("The request failed after multiple attempts. Please try again later")
}
