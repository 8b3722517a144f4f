package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/NERVsystems/osmplot/pkg/config"
	"github.com/NERVsystems/osmplot/pkg/core"
	"github.com/NERVsystems/osmplot/pkg/mapping"
	"github.com/NERVsystems/osmplot/pkg/osm"
	"github.com/NERVsystems/osmplot/pkg/tools"
)

// app holds the state shared by every subcommand
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	envFile    string
	debug      bool
	logFormat  string

	overpassURL string
	taginfoURL  string
	tileSource  string
	userAgent   string

	cfg    config.Config
	logger *slog.Logger
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr}
}

// setup loads the configuration, applies flag overrides and installs the
// logger. It runs before every subcommand.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, a.envFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("overpass-url") {
		cfg.Overpass.URL = a.overpassURL
	}
	if flags.Changed("taginfo-url") {
		cfg.Taginfo.URL = a.taginfoURL
	}
	if flags.Changed("tile-source") {
		cfg.Render.TileSource = a.tileSource
	}
	if flags.Changed("user-agent") {
		cfg.Overpass.UserAgent = a.userAgent
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if a.debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = newLogger(a.stderr, cfg.Log)
	slog.SetDefault(a.logger)
	return nil
}

func newLogger(w io.Writer, l config.Log) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// clients builds the Overpass and taginfo clients from the loaded config
func (a *app) clients(hooks *osm.MonitoringHooks) (*osm.Client, *osm.TaginfoClient) {
	overpass := osm.NewClient(a.cfg.Overpass.URL,
		append(a.cfg.OverpassOptions(hooks), osm.WithLogger(a.logger))...)
	taginfo := osm.NewTaginfoClient(a.cfg.Taginfo.URL, a.cfg.Taginfo.Pages, a.cfg.Taginfo.PerPage,
		append(a.cfg.TaginfoOptions(hooks), osm.WithLogger(a.logger))...)
	return overpass, taginfo
}

func (a *app) registry(overpass mapping.Fetcher, vocab tools.VocabularySource) *tools.Registry {
	maps := mapping.NewService(overpass, a.cfg.Render, a.logger)
	return tools.NewRegistry(a.logger, maps, vocab, a.cfg.Render)
}

// run calls a tool and prints its JSON result indented on stdout. Tool
// failures come back as *core.Error.
func (a *app) run(ctx context.Context, name string, args map[string]any) error {
	overpass, taginfo := a.clients(nil)
	res, err := a.registry(overpass, taginfo).Call(ctx, name, args)
	if err != nil {
		return err
	}

	text := resultText(res)
	if res.IsError {
		var e core.Error
		if json.Unmarshal([]byte(text), &e) == nil && e.Code != "" {
			return &e
		}
		return errors.New(text)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(text), "", "  "); err != nil {
		buf.Reset()
		buf.WriteString(text)
	}
	buf.WriteByte('\n')
	_, err = a.stdout.Write(buf.Bytes())
	return err
}

func resultText(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}
