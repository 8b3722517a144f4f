package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NERVsystems/osmplot/pkg/mapping"
	"github.com/NERVsystems/osmplot/pkg/monitoring"
	"github.com/NERVsystems/osmplot/pkg/osm"
	"github.com/NERVsystems/osmplot/pkg/osm/queries"
	"github.com/NERVsystems/osmplot/pkg/render"
	"github.com/NERVsystems/osmplot/pkg/tools"
)

const testToken = "kx7PqL2vN9mR4wZs8bYt"

type fakeFetcher struct {
	batch *osm.Batch
	last  queries.Query
}

func (f *fakeFetcher) Fetch(_ context.Context, q queries.Query) (*osm.Batch, error) {
	f.last = q
	return f.batch, nil
}

func (f *fakeFetcher) FetchByID(context.Context, queries.IDQuery) (*osm.Batch, error) {
	return f.batch, nil
}

func (f *fakeFetcher) Raw(context.Context, string) (*osm.Batch, error) {
	return f.batch, nil
}

type fakeVocab struct{}

func (fakeVocab) Vocabulary(context.Context) (osm.Vocabulary, error) {
	return osm.Vocabulary{}, nil
}

func coord(v float64) *float64 { return &v }

func postBoxes() *osm.Batch {
	return &osm.Batch{Query: "q", Elements: []osm.Element{
		{Type: "node", ID: 10, Lat: coord(55.95), Lon: coord(-3.19), Tags: map[string]string{"amenity": "post_box", "operator": "Royal Mail"}},
		{Type: "node", ID: 11, Lat: coord(55.96), Lon: coord(-3.20), Tags: map[string]string{"amenity": "post_box"}},
	}}
}

func newTestServer(t *testing.T, f *fakeFetcher) *Server {
	t.Helper()
	cfg := render.DefaultConfig()
	registry := tools.NewRegistry(nil, mapping.NewService(f, cfg, nil), fakeVocab{}, cfg)
	return NewServer(registry, "test", nil)
}

func newTestTransport(t *testing.T, f *fakeFetcher, health *monitoring.HealthChecker, token string) *httptest.Server {
	t.Helper()
	cfg := DefaultHTTPTransportConfig()
	cfg.AuthToken = token
	cfg.RateLimit = 0
	transport := NewHTTPTransport(newTestServer(t, f), health, cfg, nil)
	ts := httptest.NewServer(transport.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, token, body string) (*http.Response, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t, &fakeFetcher{})
	if s.MCPServer() == nil {
		t.Fatal("MCP server not created")
	}
	if got := len(s.Registry().GetToolNames()); got != 5 {
		t.Errorf("registered %d tools, want 5", got)
	}

	s.Shutdown()
	s.Shutdown()
	select {
	case <-s.stopCh:
	default:
		t.Error("stop channel not closed")
	}
}

func TestRunReturnsWhenAlreadyRunning(t *testing.T) {
	s := newTestServer(t, &fakeFetcher{})
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	if err := s.Run(); err != nil {
		t.Errorf("Run on a running server returned %v", err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	health := monitoring.NewHealthChecker(ServerName, "test")
	health.UpdateConnection("overpass", "error", 0, errors.New("down"))
	ts := newTestTransport(t, &fakeFetcher{}, health, "")

	tests := []struct {
		path string
		want int
	}{
		{"/live", http.StatusOK},
		{"/health", http.StatusServiceUnavailable},
		{"/ready", http.StatusServiceUnavailable},
		{"/metrics", http.StatusOK},
		{"/", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, _ := do(t, http.MethodGet, ts.URL+tt.path, "", "")
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestHealthWithoutChecker(t *testing.T) {
	ts := newTestTransport(t, &fakeFetcher{}, nil, "")
	for _, path := range []string{"/health", "/ready"} {
		resp, _ := do(t, http.MethodGet, ts.URL+path, "", "")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestMetricsExposition(t *testing.T) {
	ts := newTestTransport(t, &fakeFetcher{}, nil, "")
	_, body := do(t, http.MethodGet, ts.URL+"/metrics", "", "")
	if !strings.Contains(body, "go_goroutines") {
		t.Error("metrics output missing default collectors")
	}
}

func TestDiscovery(t *testing.T) {
	ts := newTestTransport(t, &fakeFetcher{}, nil, testToken)
	resp, body := do(t, http.MethodGet, ts.URL+"/", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got struct {
		Service   string            `json:"service"`
		Endpoints map[string]string `json:"endpoints"`
		Auth      map[string]bool   `json:"auth"`
	}
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Service != ServerName || got.Endpoints["sse"] != ts.URL+"/sse" || !got.Auth["required"] {
		t.Errorf("discovery = %+v", got)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	ts := newTestTransport(t, &fakeFetcher{}, nil, testToken)

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/tools", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/tools", "wrong-token-0123456789", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", resp.StatusCode)
	}

	resp, body := do(t, http.MethodGet, ts.URL+"/api/tools", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, tools.ToolMapFeatures) {
		t.Errorf("tool list missing %s: %s", tools.ToolMapFeatures, body)
	}

	resp, _ = do(t, http.MethodGet, ts.URL+"/live", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/live should not require auth, got %d", resp.StatusCode)
	}
}

func TestAPICallTool(t *testing.T) {
	f := &fakeFetcher{batch: postBoxes()}
	ts := newTestTransport(t, f, nil, "")

	resp, body := do(t, http.MethodPost, ts.URL+"/api/tools/map_features", "",
		`{"key":"amenity","tag":"post_box","area":"(55.9,-3.3,56.0,-3.1)","legend":"operator"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var out tools.MapOutput
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Rows != 2 || out.LegendColumn != "operator" {
		t.Errorf("rows = %d legend = %q", out.Rows, out.LegendColumn)
	}
	if f.last.Key != "amenity" || f.last.Area == nil {
		t.Errorf("fetcher got %+v", f.last)
	}
}

func TestAPIErrors(t *testing.T) {
	ts := newTestTransport(t, &fakeFetcher{batch: postBoxes()}, nil, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown tool", http.MethodPost, "/api/tools/geocode", "{}", http.StatusNotFound, "INVALID_INPUT"},
		{"bad json", http.MethodPost, "/api/tools/map_features", "{", http.StatusBadRequest, "INVALID_INPUT"},
		{"missing key", http.MethodPost, "/api/tools/map_features", `{"area":"(55,-3,56,-2)"}`, http.StatusBadRequest, "MISSING_PARAMETER"},
		{"bad area", http.MethodGet, "/api/map?key=amenity&area=Scotland", "", http.StatusBadRequest, "INVALID_AREA"},
		{"bad radius", http.MethodGet, "/api/map?key=amenity&center=55.9,-3.1&radius=far", "", http.StatusBadRequest, "INVALID_INPUT"},
		{"bad bbox flag", http.MethodGet, "/api/map?key=amenity&center=55.9,-3.1&radius=500&bbox=maybe", "", http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, ts.URL+tt.path, "", tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.status, body)
			}
			var e struct {
				Code string `json:"code"`
			}
			if err := json.Unmarshal([]byte(body), &e); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if e.Code != tt.code {
				t.Errorf("code = %q, want %q", e.Code, tt.code)
			}
		})
	}
}

func TestAPIMapGeoJSON(t *testing.T) {
	f := &fakeFetcher{batch: postBoxes()}
	ts := newTestTransport(t, f, nil, "")

	resp, body := do(t, http.MethodGet, ts.URL+"/api/map?key=amenity&tag=post_box&center=55.95,-3.19&radius=1000", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("content type = %q", ct)
	}
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal([]byte(body), &fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Errorf("got %s with %d features", fc.Type, len(fc.Features))
	}
	if f.last.Around == nil || f.last.Around.Radius != 1000 {
		t.Errorf("around = %+v", f.last.Around)
	}
}

func TestAPIMapViewport(t *testing.T) {
	f := &fakeFetcher{batch: postBoxes()}
	ts := newTestTransport(t, f, nil, "")

	url := ts.URL + "/api/map?key=amenity&tag=post_box&center=55.95,-3.19&radius=2000&bbox=true&viewport=(55.955,-3.25,55.97,-3.15)"
	resp, body := do(t, http.MethodGet, url, "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var fc struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal([]byte(body), &fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fc.Features) != 1 || fc.Features[0].Properties["id"] != float64(11) {
		t.Errorf("features = %+v, want only node 11", fc.Features)
	}
	if f.last.Around != nil || f.last.Area == nil {
		t.Errorf("bbox=true should search an area, got %+v", f.last)
	}
}
