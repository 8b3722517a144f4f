// Package config loads osmplot settings from a YAML file, a .env file and
// OSMPLOT_* environment variables, in that order of increasing precedence.
// Command line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/NERVsystems/osmplot/pkg/core"
	"github.com/NERVsystems/osmplot/pkg/osm"
	"github.com/NERVsystems/osmplot/pkg/render"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "OSMPLOT_"

// Overpass configures the feature service client
type Overpass struct {
	URL            string        `yaml:"url"`
	RateLimit      float64       `yaml:"rate_limit"`
	Burst          int           `yaml:"burst"`
	Retries        int           `yaml:"retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	UserAgent      string        `yaml:"user_agent"`
	Referer        string        `yaml:"referer"`
	Timeout        time.Duration `yaml:"timeout"`
}

// RetryOptions converts the retry settings for the transport. Retries
// counts attempts after the first.
func (o Overpass) RetryOptions() core.RetryOptions {
	opts := core.DefaultRetryOptions
	opts.MaxAttempts = o.Retries + 1
	opts.InitialDelay = o.InitialBackoff
	if o.MaxBackoff > 0 {
		opts.MaxDelay = o.MaxBackoff
	}
	return opts
}

// Taginfo configures the tag vocabulary client
type Taginfo struct {
	URL       string  `yaml:"url"`
	Pages     int     `yaml:"pages"`
	PerPage   int     `yaml:"per_page"`
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// Log configures the slog handler
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel parses Level, defaulting to info
func (l Log) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Server configures the serve command
type Server struct {
	MetricsAddr  string `yaml:"metrics_addr"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	// HTTPAddr enables the HTTP+SSE transport when set
	HTTPAddr  string `yaml:"http_addr"`
	AuthToken string `yaml:"auth_token"`
}

// Config is the complete osmplot configuration
type Config struct {
	Overpass Overpass      `yaml:"overpass"`
	Taginfo  Taginfo       `yaml:"taginfo"`
	Render   render.Config `yaml:"render"`
	Log      Log           `yaml:"log"`
	Server   Server        `yaml:"server"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Overpass: Overpass{
			URL:            osm.OverpassBaseURL,
			RateLimit:      1,
			Burst:          1,
			Retries:        5,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			UserAgent:      osm.DefaultUserAgent,
			Referer:        osm.DefaultReferer,
			Timeout:        3 * time.Minute,
		},
		Taginfo: Taginfo{
			URL:       osm.TaginfoBaseURL,
			Pages:     osm.DefaultTaginfoPages,
			PerPage:   osm.DefaultTaginfoPerPage,
			RateLimit: 2,
			Burst:     2,
		},
		Render: render.DefaultConfig(),
		Log:    Log{Level: "info", Format: "text"},
		Server: Server{MetricsAddr: ":9090"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty), the .env file at envFile (skipped when missing) and the process
// environment.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, core.NewError(core.ErrInvalidInput, fmt.Sprintf("cannot read config file %s", path)).WithCause(err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, core.NewError(core.ErrParseError, fmt.Sprintf("invalid config file %s", path)).
				WithGuidance("Check the YAML syntax").
				WithCause(err)
		}
	}

	if envFile != "" {
		// godotenv never overrides variables already set in the environment.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, core.NewError(core.ErrParseError, fmt.Sprintf("invalid env file %s", envFile)).WithCause(err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from OSMPLOT_* variables found by lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	var errs []error
	str := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *float64) {
		if v, ok := get(name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := get(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("OVERPASS_URL", &c.Overpass.URL)
	num("OVERPASS_RATE_LIMIT", &c.Overpass.RateLimit)
	integer("OVERPASS_BURST", &c.Overpass.Burst)
	integer("OVERPASS_RETRIES", &c.Overpass.Retries)
	duration("OVERPASS_INITIAL_BACKOFF", &c.Overpass.InitialBackoff)
	duration("OVERPASS_TIMEOUT", &c.Overpass.Timeout)
	str("USER_AGENT", &c.Overpass.UserAgent)
	str("REFERER", &c.Overpass.Referer)

	str("TAGINFO_URL", &c.Taginfo.URL)
	integer("TAGINFO_PAGES", &c.Taginfo.Pages)
	integer("TAGINFO_PER_PAGE", &c.Taginfo.PerPage)

	integer("WIDTH", &c.Render.Width)
	integer("HEIGHT", &c.Render.Height)
	num("MARKER_SIZE", &c.Render.MarkerSize)
	str("TILE_SOURCE", &c.Render.TileSource)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("METRICS_ADDR", &c.Server.MetricsAddr)
	str("OTLP_ENDPOINT", &c.Server.OTLPEndpoint)
	str("HTTP_ADDR", &c.Server.HTTPAddr)
	str("AUTH_TOKEN", &c.Server.AuthToken)

	if len(errs) > 0 {
		return core.NewValidationError(core.ErrInvalidInput, "invalid environment override").
			WithCause(errors.Join(errs...))
	}
	return nil
}

// Validate checks the settings the clients cannot default themselves
func (c Config) Validate() error {
	if c.Overpass.URL == "" {
		return core.NewValidationError(core.ErrMissingParameter, "overpass url is required")
	}
	if c.Overpass.Retries < 0 {
		return core.NewValidationError(core.ErrInvalidInput, "overpass retries must not be negative")
	}
	if c.Taginfo.Pages < 1 || c.Taginfo.PerPage < 1 {
		return core.NewValidationError(core.ErrInvalidInput, "taginfo pages and per_page must be positive")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return core.NewValidationError(core.ErrInvalidInput, fmt.Sprintf("log format %q must be text or json", c.Log.Format))
	}
	return c.Render.Validate()
}

// OverpassOptions returns the client options for the Overpass settings
func (c Config) OverpassOptions(hooks *osm.MonitoringHooks) []osm.Option {
	opts := []osm.Option{
		osm.WithHTTPClient(httpClient(c.Overpass.Timeout)),
		osm.WithRateLimit(c.Overpass.RateLimit, c.Overpass.Burst),
		osm.WithRetryOptions(c.Overpass.RetryOptions()),
		osm.WithUserAgent(c.Overpass.UserAgent, c.Overpass.Referer),
	}
	if hooks != nil {
		opts = append(opts, osm.WithMonitoringHooks(hooks))
	}
	return opts
}

// TaginfoOptions returns the client options for the taginfo settings
func (c Config) TaginfoOptions(hooks *osm.MonitoringHooks) []osm.Option {
	opts := []osm.Option{
		osm.WithHTTPClient(httpClient(c.Overpass.Timeout)),
		osm.WithRateLimit(c.Taginfo.RateLimit, c.Taginfo.Burst),
		osm.WithRetryOptions(c.Overpass.RetryOptions()),
		osm.WithUserAgent(c.Overpass.UserAgent, c.Overpass.Referer),
	}
	if hooks != nil {
		opts = append(opts, osm.WithMonitoringHooks(hooks))
	}
	return opts
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		return core.DefaultClient
	}
	return &http.Client{Timeout: timeout, Transport: core.DefaultClient.Transport}
}
