// Package mapping runs the fetch, normalize and prepare pipeline for one
// map request.
package mapping

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/osmplot/pkg/core"
	"github.com/NERVsystems/osmplot/pkg/monitoring"
	"github.com/NERVsystems/osmplot/pkg/normalize"
	"github.com/NERVsystems/osmplot/pkg/osm"
	"github.com/NERVsystems/osmplot/pkg/osm/queries"
	"github.com/NERVsystems/osmplot/pkg/render"
	"github.com/NERVsystems/osmplot/pkg/tracing"
)

// Fetcher is the feature service the pipeline reads from
type Fetcher interface {
	Fetch(ctx context.Context, q queries.Query) (*osm.Batch, error)
	FetchByID(ctx context.Context, q queries.IDQuery) (*osm.Batch, error)
	Raw(ctx context.Context, ql string) (*osm.Batch, error)
}

// Style selects the legend column, fill rule and render settings.
// Zero values use the service defaults.
type Style struct {
	Legend string
	Fill   render.FillRule
	Config *render.Config
}

// Request is a key/tag search
type Request struct {
	Query queries.Query
	// Raw replaces the generated QL when set. Query.Key and Query.Tag
	// still label the rows.
	Raw string
	Style
}

// ByIDRequest looks up a single element
type ByIDRequest struct {
	Query queries.IDQuery
	Style
}

// Map is the outcome of one pipeline run
type Map struct {
	Query  string           `json:"query"`
	Table  *normalize.Table `json:"table"`
	Result *render.Result   `json:"result"`
}

// Service runs map requests against a Fetcher
type Service struct {
	fetcher   Fetcher
	config    render.Config
	projector render.Projector
	logger    *slog.Logger
}

// NewService returns a Service that prepares rows with cfg unless a
// request overrides it
func NewService(f Fetcher, cfg render.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher:   f,
		config:    cfg,
		projector: render.WebMercator{},
		logger:    logger.With("component", "mapping"),
	}
}

// Map fetches key/tag matches, normalizes them and prepares them for
// rendering
func (s *Service) Map(ctx context.Context, req Request) (*Map, error) {
	ctx, span := tracing.StartSpan(ctx, "mapping.map",
		trace.WithAttributes(tracing.QueryAttributes(req.Query.Key, req.Query.Tag)...),
	)
	defer span.End()

	batch, err := s.fetch(ctx, func(ctx context.Context) (*osm.Batch, error) {
		if req.Raw != "" {
			return s.fetcher.Raw(ctx, req.Raw)
		}
		return s.fetcher.Fetch(ctx, req.Query)
	})
	if err != nil {
		return nil, err
	}

	table := s.normalize(ctx, batch, func(els []osm.Element) *normalize.Table {
		return normalize.Normalize(els, req.Query.Key, req.Query.Tag)
	})
	return s.prepare(ctx, batch, table, req.Style, "")
}

// MapByID fetches one element, drops untagged stubs and prepares the rest.
// The legend defaults to the element type since by-id rows carry no query
// tag.
func (s *Service) MapByID(ctx context.Context, req ByIDRequest) (*Map, error) {
	ctx, span := tracing.StartSpan(ctx, "mapping.map_by_id",
		trace.WithAttributes(
			attribute.String("osm.element.type", req.Query.Type),
			attribute.Int64("osm.element.id", req.Query.ID),
		),
	)
	defer span.End()

	batch, err := s.fetch(ctx, func(ctx context.Context) (*osm.Batch, error) {
		return s.fetcher.FetchByID(ctx, req.Query)
	})
	if err != nil {
		return nil, err
	}

	table := s.normalize(ctx, batch, normalize.NormalizeByID)
	return s.prepare(ctx, batch, table, req.Style, normalize.ColType)
}

func (s *Service) fetch(ctx context.Context, fn func(context.Context) (*osm.Batch, error)) (*osm.Batch, error) {
	ctx, span := tracing.StartSpan(ctx, "mapping.fetch")
	batch, err := fn(ctx)
	n := 0
	if batch != nil {
		n = len(batch.Elements)
	}
	tracing.EndStage(span, tracing.StageFetch, 0, n, 0, err)
	if err != nil {
		monitoring.RecordError("mapping", core.CodeOf(err, "fetch_error"))
		s.logger.Error("fetch failed", "error", err)
		return nil, err
	}
	return batch, nil
}

func (s *Service) normalize(ctx context.Context, batch *osm.Batch, fn func([]osm.Element) *normalize.Table) *normalize.Table {
	_, span := tracing.StartSpan(ctx, "mapping.normalize")
	start := time.Now()
	table := fn(batch.Elements)
	dropped := table.Dropped + table.Conflicting + table.Untagged
	tracing.EndStage(span, tracing.StageNormalize, len(batch.Elements), table.Len(), dropped, nil)
	monitoring.RecordNormalization(len(batch.Elements), table.Len(), table.Dropped, table.Conflicting)

	s.logger.Debug("normalized batch",
		"elements", len(batch.Elements),
		"rows", table.Len(),
		"dropped", dropped,
		"duration", time.Since(start),
	)
	return table
}

func (s *Service) prepare(ctx context.Context, batch *osm.Batch, table *normalize.Table, style Style, legend string) (*Map, error) {
	_, span := tracing.StartSpan(ctx, "mapping.prepare")

	cfg := s.config
	if style.Config != nil {
		cfg = *style.Config
	}
	if style.Legend != "" {
		legend = style.Legend
	}

	res, err := render.Prepare(table, render.Options{
		LegendColumn: legend,
		Fill:         style.Fill,
		Projector:    s.projector,
		Config:       &cfg,
		Logger:       s.logger,
	})
	out := 0
	if res != nil {
		out = len(res.Rows)
		span.SetAttributes(
			attribute.Int(tracing.AttrLegendGroups, len(res.Groups)),
			attribute.Bool(tracing.AttrDegradedStyling, res.Degraded),
		)
	}
	tracing.EndStage(span, tracing.StagePrepare, table.Len(), out, 0, err)
	if err != nil {
		monitoring.RecordError("mapping", core.CodeOf(err, "prepare_error"))
		return nil, err
	}
	monitoring.RecordRender(len(res.Groups), res.Degraded)

	return &Map{Query: batch.Query, Table: table, Result: res}, nil
}
