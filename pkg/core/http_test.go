package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var fastRetry = RetryOptions{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2,
	RetryOn:      []int{http.StatusTooManyRequests, http.StatusGatewayTimeout},
}

func statusServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.WriteHeader(statuses[n])
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func getFactory(url string) RequestFactory {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestWithRetryFactoryRetriesThenSucceeds(t *testing.T) {
	ts, calls := statusServer(t, http.StatusTooManyRequests, http.StatusGatewayTimeout, http.StatusOK)

	resp, err := WithRetryFactory(context.Background(), "overpass", getFactory(ts.URL), ts.Client(), fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestWithRetryFactoryNonRetryable(t *testing.T) {
	ts, calls := statusServer(t, http.StatusBadRequest)

	_, err := WithRetryFactory(context.Background(), "overpass", getFactory(ts.URL), ts.Client(), fastRetry)
	if !HasCode(err, ErrTransport) {
		t.Errorf("err = %v, want TRANSPORT_ERROR", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestWithRetryFactoryExhausted(t *testing.T) {
	ts, calls := statusServer(t, http.StatusTooManyRequests)

	_, err := WithRetryFactory(context.Background(), "overpass", getFactory(ts.URL), ts.Client(), fastRetry)
	if !HasCode(err, ErrRateLimit) {
		t.Errorf("err = %v, want RATE_LIMIT", err)
	}
	if got := calls.Load(); got != int32(fastRetry.MaxAttempts) {
		t.Errorf("attempts = %d, want %d", got, fastRetry.MaxAttempts)
	}
}

func TestWithRetryFactoryFactoryError(t *testing.T) {
	sentinel := NewError(ErrNetworkError, "rate limit wait cancelled")
	_, err := WithRetryFactory(context.Background(), "overpass", func(context.Context) (*http.Request, error) {
		return nil, sentinel
	}, nil, fastRetry)
	if !errors.Is(err, sentinel) || !HasCode(err, ErrNetworkError) {
		t.Errorf("factory error not passed through: %v", err)
	}

	_, err = WithRetryFactory(context.Background(), "overpass", func(context.Context) (*http.Request, error) {
		return nil, errors.New("bad url")
	}, nil, fastRetry)
	if !HasCode(err, ErrInternalError) {
		t.Errorf("plain factory error = %v, want INTERNAL_ERROR", err)
	}
}

func TestWithRetryFactoryCancelled(t *testing.T) {
	ts, _ := statusServer(t, http.StatusGatewayTimeout)
	ctx, cancel := context.WithCancel(context.Background())

	opts := fastRetry
	opts.InitialDelay = time.Hour
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := WithRetryFactory(ctx, "overpass", getFactory(ts.URL), ts.Client(), opts)
	if !HasCode(err, ErrNetworkError) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want cancelled NETWORK_ERROR", err)
	}
}
