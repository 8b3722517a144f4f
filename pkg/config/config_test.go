package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/NERVsystems/osmplot/pkg/core"
	"github.com/NERVsystems/osmplot/pkg/osm"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Overpass.URL != osm.OverpassBaseURL {
		t.Errorf("overpass url = %s", cfg.Overpass.URL)
	}
	if cfg.Render.Width != 800 || cfg.Render.Height != 800 || cfg.Render.MarkerSize != 14 || cfg.Render.TileSource != "ESRI" {
		t.Errorf("render defaults = %+v", cfg.Render)
	}

	retry := cfg.Overpass.RetryOptions()
	if retry.MaxAttempts != 6 || retry.InitialDelay != time.Second {
		t.Errorf("retry options = %+v", retry)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "osmplot.yaml", `
overpass:
  url: http://localhost:12345/api/interpreter
  retries: 2
  initial_backoff: 250ms
render:
  width: 1024
  tile_source: OpenTopoMap
log:
  level: debug
  format: json
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Overpass.URL != "http://localhost:12345/api/interpreter" {
		t.Errorf("url = %s", cfg.Overpass.URL)
	}
	if cfg.Overpass.InitialBackoff != 250*time.Millisecond || cfg.Overpass.Retries != 2 {
		t.Errorf("retry settings = %v/%d", cfg.Overpass.InitialBackoff, cfg.Overpass.Retries)
	}
	if cfg.Render.Width != 1024 || cfg.Render.Height != 800 {
		t.Errorf("render size = %dx%d, want 1024x800", cfg.Render.Width, cfg.Render.Height)
	}
	if cfg.Render.TileSource != "OpenTopoMap" {
		t.Errorf("tile source = %s", cfg.Render.TileSource)
	}
	if cfg.Log.SlogLevel().String() != "DEBUG" {
		t.Errorf("log level = %v", cfg.Log.SlogLevel())
	}
	// Unset fields keep their defaults.
	if cfg.Taginfo.Pages != osm.DefaultTaginfoPages {
		t.Errorf("taginfo pages = %d", cfg.Taginfo.Pages)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		code core.ErrorCode
	}{
		{"bad yaml", "overpass: [", core.ErrParseError},
		{"unknown tile source", "render:\n  tile_source: Bing\n", core.ErrInvalidInput},
		{"bad log format", "log:\n  format: xml\n", core.ErrInvalidInput},
		{"negative retries", "overpass:\n  retries: -1\n", core.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", tt.yaml), "")
			if !core.HasCode(err, tt.code) {
				t.Errorf("Load error = %v, want %s", err, tt.code)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), ""); !core.HasCode(err, core.ErrInvalidInput) {
		t.Errorf("missing file error = %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	// t.Setenv restores both variables after godotenv sets them. They are
	// unset first because godotenv never overrides an existing variable.
	t.Setenv("OSMPLOT_TILE_SOURCE", "")
	t.Setenv("OSMPLOT_WIDTH", "")
	os.Unsetenv("OSMPLOT_TILE_SOURCE")
	os.Unsetenv("OSMPLOT_WIDTH")
	env := writeFile(t, ".env", "OSMPLOT_TILE_SOURCE=OpenMap\nOSMPLOT_WIDTH=640\n")

	cfg, err := Load("", env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Render.TileSource != "OpenMap" || cfg.Render.Width != 640 {
		t.Errorf("render = %s %d", cfg.Render.TileSource, cfg.Render.Width)
	}

	if _, err := Load("", filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing env file should be ignored: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"OSMPLOT_OVERPASS_URL":             "http://overpass.local",
		"OSMPLOT_OVERPASS_RATE_LIMIT":      "0.5",
		"OSMPLOT_OVERPASS_INITIAL_BACKOFF": "2s",
		"OSMPLOT_TAGINFO_PAGES":            "3",
		"OSMPLOT_MARKER_SIZE":              "  9 ",
		"OSMPLOT_OTLP_ENDPOINT":            "localhost:4317",
		"OSMPLOT_HTTP_ADDR":                ":7082",
		"OSMPLOT_LOG_LEVEL":                "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Overpass.URL != "http://overpass.local" || cfg.Overpass.RateLimit != 0.5 {
		t.Errorf("overpass = %+v", cfg.Overpass)
	}
	if cfg.Overpass.InitialBackoff != 2*time.Second {
		t.Errorf("backoff = %v", cfg.Overpass.InitialBackoff)
	}
	if cfg.Taginfo.Pages != 3 || cfg.Render.MarkerSize != 9 {
		t.Errorf("pages=%d marker=%v", cfg.Taginfo.Pages, cfg.Render.MarkerSize)
	}
	if cfg.Server.OTLPEndpoint != "localhost:4317" || cfg.Server.HTTPAddr != ":7082" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("empty override replaced log level with %q", cfg.Log.Level)
	}

	bad := Default()
	err := bad.ApplyEnv(func(k string) (string, bool) {
		if k == "OSMPLOT_WIDTH" {
			return "wide", true
		}
		return "", false
	})
	if !core.HasCode(err, core.ErrInvalidInput) {
		t.Errorf("bad width error = %v", err)
	}
}

func TestClientOptions(t *testing.T) {
	cfg := Default()
	if got := len(cfg.OverpassOptions(nil)); got != 4 {
		t.Errorf("overpass options = %d, want 4", got)
	}
	if got := len(cfg.TaginfoOptions(&osm.MonitoringHooks{})); got != 5 {
		t.Errorf("taginfo options = %d, want 5", got)
	}
}
