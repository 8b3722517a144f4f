package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestServiceErrorCodes(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorCode
	}{
		{http.StatusTooManyRequests, ErrRateLimit},
		{http.StatusGatewayTimeout, ErrServiceTimeout},
		{http.StatusRequestTimeout, ErrServiceTimeout},
		{http.StatusServiceUnavailable, ErrServiceUnavailable},
		{http.StatusBadRequest, ErrTransport},
		{http.StatusInternalServerError, ErrTransport},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := ServiceError("overpass", tt.status, "boom")
			if err.Code != string(tt.want) {
				t.Errorf("code = %s, want %s", err.Code, tt.want)
			}
			if err.Guidance == "" {
				t.Error("missing guidance")
			}
		})
	}
}

func TestTransportFamily(t *testing.T) {
	for _, code := range []ErrorCode{ErrTransport, ErrRateLimit, ErrServiceTimeout, ErrServiceUnavailable, ErrNetworkError, ErrParseError} {
		err := fmt.Errorf("fetch: %w", NewError(code, "x"))
		if !errors.Is(err, ErrTransportError) {
			t.Errorf("%s should match the transport sentinel", code)
		}
	}
	if errors.Is(InvalidColor("#zz", "bad hex"), ErrTransportError) {
		t.Error("INVALID_COLOR matched the transport sentinel")
	}
	if !errors.Is(InvalidColor("#zz", "bad hex"), ErrInvalidColorError) {
		t.Error("InvalidColor does not match its sentinel")
	}
	if !errors.Is(ProjectionFailure(7, 89.9, 0), ErrProjectionError) {
		t.Error("ProjectionFailure does not match its sentinel")
	}
	if errors.Is(NewError(ErrRateLimit, "x"), ErrProjectionError) {
		t.Error("codes must match exactly outside the transport family")
	}
}

func TestCodeOfAndHasCode(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewError(ErrInvalidArea, "bad"))
	if got := CodeOf(wrapped, "fallback"); got != string(ErrInvalidArea) {
		t.Errorf("CodeOf = %q", got)
	}
	if got := CodeOf(errors.New("plain"), "fallback"); got != "fallback" {
		t.Errorf("CodeOf plain = %q", got)
	}
	if !HasCode(wrapped, ErrInvalidArea) || HasCode(wrapped, ErrInvalidInput) {
		t.Error("HasCode mismatch")
	}
	if HasCode(nil, ErrInvalidArea) {
		t.Error("HasCode(nil) should be false")
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewError(ErrNetworkError, "overpass request failed").WithGuidance("Try again").WithCause(cause)

	msg := err.Error()
	for _, part := range []string{"NETWORK_ERROR", "overpass request failed", "Try again", "connection reset"} {
		if !strings.Contains(msg, part) {
			t.Errorf("message %q missing %q", msg, part)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
}

func TestToMCPResult(t *testing.T) {
	res := NewError(ErrTransport, "rejected").WithQuery("[out:json];").WithSuggestions("check the tag").ToMCPResult()
	if !res.IsError {
		t.Fatal("expected error result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	var got Error
	if err := json.Unmarshal([]byte(text.Text), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Code != string(ErrTransport) || got.Query != "[out:json];" || len(got.Suggestions) != 1 {
		t.Errorf("decoded = %+v", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrMissingParameter:   http.StatusBadRequest,
		ErrInvalidArea:        http.StatusBadRequest,
		ErrInvalidColor:       http.StatusUnprocessableEntity,
		ErrProjection:         http.StatusUnprocessableEntity,
		ErrRateLimit:          http.StatusTooManyRequests,
		ErrServiceTimeout:     http.StatusGatewayTimeout,
		ErrServiceUnavailable: http.StatusServiceUnavailable,
		ErrParseError:         http.StatusBadGateway,
		ErrInternalError:      http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := HTTPStatus(string(code)); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", code, got, want)
		}
	}
}
