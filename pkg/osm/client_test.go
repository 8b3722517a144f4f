package osm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NERVsystems/osmplot/pkg/core"
	"github.com/NERVsystems/osmplot/pkg/osm/queries"
)

var fastRetry = core.RetryOptions{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2,
	RetryOn:      []int{http.StatusTooManyRequests, http.StatusGatewayTimeout},
}

const sampleResponse = `{
  "version": 0.6,
  "generator": "Overpass API",
  "osm3s": {"timestamp_osm_base": "2024-01-01T00:00:00Z"},
  "elements": [
    {"type": "node", "id": 1, "lat": 55.5, "lon": -1.5, "tags": {"amenity": "post_box"}},
    {"type": "way", "id": 2, "center": {"lat": 55.6, "lon": -1.6}, "nodes": [10, 11], "tags": {"amenity": "post_box", "ref": "A1"}},
    {"type": "relation", "id": 3, "members": [{"type": "way", "ref": 4, "role": "outer", "geometry": [{"lat": 0, "lon": 0}, null, {"lat": 2, "lon": 2}]}]}
  ]
}`

func newTestClient(url string, opts ...Option) *Client {
	opts = append([]Option{WithRateLimit(0, 0), WithRetryOptions(fastRetry)}, opts...)
	return NewClient(url, opts...)
}

func testQuery() queries.Query {
	return queries.New("amenity", "post_box", queries.BBox{South: 55, West: -2, North: 56, East: -1})
}

func TestFetchDecodesElements(t *testing.T) {
	var gotQuery, gotUA, gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotQuery = r.PostForm.Get("data")
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleResponse))
	}))
	defer server.Close()

	client := newTestClient(server.URL, WithUserAgent("test-agent", "https://example.com"))
	batch, err := client.Fetch(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if gotQuery != testQuery().Build() {
		t.Errorf("submitted query = %s, want %s", gotQuery, testQuery().Build())
	}
	if gotUA != "test-agent" || gotReferer != "https://example.com" {
		t.Errorf("headers = %q / %q", gotUA, gotReferer)
	}
	if len(batch.Elements) != 3 {
		t.Fatalf("got %d elements, want 3", len(batch.Elements))
	}
	if batch.Query == "" || batch.FetchedAt.IsZero() {
		t.Error("batch metadata not set")
	}

	node := batch.Elements[0]
	if loc, ok := node.Location(); !ok || loc.Lat != 55.5 || loc.Lon != -1.5 {
		t.Errorf("node location = %v, %v", loc, ok)
	}
	way := batch.Elements[1]
	if way.Center == nil || way.Center.Lat != 55.6 {
		t.Errorf("way center = %+v", way.Center)
	}
	if _, ok := way.Location(); ok {
		t.Error("way should have no direct location")
	}
	rel := batch.Elements[2]
	if b := rel.Boundary(); len(b) != 2 {
		t.Errorf("relation boundary = %v, want 2 vertices from members", b)
	}
}

func TestFetchEmptyIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":0.6,"elements":[]}`))
	}))
	defer server.Close()

	batch, err := newTestClient(server.URL).Fetch(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(batch.Elements) != 0 {
		t.Errorf("got %d elements, want 0", len(batch.Elements))
	}
}

func TestFetchRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"elements":[]}`))
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).Fetch(context.Background(), testQuery()); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server called %d times, want 2", got)
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      core.ErrorCode
		wantCalls int32
	}{
		{"bad request is not retried", http.StatusBadRequest, "", core.ErrTransport, 1},
		{"gateway timeout exhausts retries", http.StatusGatewayTimeout, "", core.ErrServiceTimeout, 3},
		{"html body", http.StatusOK, "<html>error</html>", core.ErrParseError, 1},
		{"runtime remark", http.StatusOK, `{"elements":[],"remark":"runtime error: Query timed out in \"query\""}`, core.ErrServiceTimeout, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).Fetch(context.Background(), testQuery())
			if err == nil {
				t.Fatal("expected error")
			}
			if !core.HasCode(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
			if !errors.Is(err, core.ErrTransportError) {
				t.Errorf("error %v should belong to the transport family", err)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("server called %d times, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestFetchValidatesBeforeSending(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0")
	_, err := client.Fetch(context.Background(), queries.Query{Key: "amenity"})
	if !core.HasCode(err, core.ErrMissingParameter) {
		t.Errorf("error = %v, want MISSING_PARAMETER", err)
	}
}

func TestFetchByIDAndRaw(t *testing.T) {
	var submitted []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		submitted = append(submitted, r.PostForm.Get("data"))
		w.Write([]byte(`{"elements":[{"type":"node","id":5574761791,"lat":1,"lon":2,"tags":{"name":"x"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	batch, err := client.FetchByID(context.Background(), queries.IDQuery{Type: "node", ID: 5574761791})
	if err != nil {
		t.Fatalf("FetchByID failed: %v", err)
	}
	if len(batch.Elements) != 1 || batch.Elements[0].ID != 5574761791 {
		t.Errorf("unexpected elements: %+v", batch.Elements)
	}

	if _, err := client.Raw(context.Background(), "[out:json];node(1);out;"); err != nil {
		t.Fatalf("Raw failed: %v", err)
	}
	if _, err := client.Raw(context.Background(), "  "); !core.HasCode(err, core.ErrMissingParameter) {
		t.Errorf("empty raw query error = %v", err)
	}

	if len(submitted) != 2 || !strings.Contains(submitted[0], "node(5574761791)") || submitted[1] != "[out:json];node(1);out;" {
		t.Errorf("submitted queries = %v", submitted)
	}
}

func TestMonitoringHooks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var requested, responded bool
	var success = true
	var errType string
	hooks := &MonitoringHooks{
		OnRequest: func(service, operation string) {
			requested = service == "overpass" && operation == "fetch"
		},
		OnResponse: func(service, operation string, d time.Duration, ok bool) {
			responded = true
			success = ok
		},
		OnError: func(service, et string) { errType = et },
	}

	_, err := newTestClient(server.URL, WithMonitoringHooks(hooks)).Fetch(context.Background(), testQuery())
	if err == nil {
		t.Fatal("expected error")
	}
	if !requested || !responded {
		t.Errorf("hooks not called: requested=%v responded=%v", requested, responded)
	}
	if success {
		t.Error("OnResponse should report failure")
	}
	if errType != string(core.ErrTransport) {
		t.Errorf("OnError type = %q, want %s", errType, core.ErrTransport)
	}
}

func TestRateLimiterWaits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"elements":[]}`))
	}))
	defer server.Close()

	var waited atomic.Bool
	client := NewClient(server.URL,
		WithRetryOptions(fastRetry),
		WithRateLimit(20, 1),
		WithMonitoringHooks(&MonitoringHooks{
			OnRateLimit: func(string, time.Duration) { waited.Store(true) },
		}),
	)

	for i := 0; i < 2; i++ {
		if _, err := client.Fetch(context.Background(), testQuery()); err != nil {
			t.Fatalf("Fetch %d failed: %v", i, err)
		}
	}
	if !waited.Load() {
		t.Error("second request should have waited for the limiter")
	}
}

func TestCheckHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("data") == "" {
			t.Error("health check should send a query")
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if err := newTestClient(server.URL).CheckHealth(context.Background()); err == nil {
		t.Error("expected unhealthy result for 503")
	}
}
