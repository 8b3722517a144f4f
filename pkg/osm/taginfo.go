package osm

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/NERVsystems/osmplot/pkg/core"
	"github.com/NERVsystems/osmplot/pkg/tracing"
)

const (
	// TaginfoBaseURL lists tags referenced by taginfo projects
	TaginfoBaseURL = "https://taginfo.openstreetmap.org/api/4/projects/tags"

	DefaultTaginfoPages   = 100
	DefaultTaginfoPerPage = 100
)

// TagValue is one observed value of a key
type TagValue struct {
	Value    string `json:"value"`
	Projects int    `json:"projects,omitempty"`
}

// Vocabulary maps sanitized keys to their sanitized observed values
type Vocabulary map[string]map[string]TagValue

// Keys returns the keys in sorted order
func (v Vocabulary) Keys() []string {
	return slices.Sorted(maps.Keys(v))
}

// Values returns the values seen for key in sorted order
func (v Vocabulary) Values(key string) []string {
	return slices.Sorted(maps.Keys(v[key]))
}

// SanitizeKey replaces ':' with "__" so keys are usable as identifiers
func SanitizeKey(s string) string {
	return strings.ReplaceAll(s, ":", "__")
}

// TaginfoClient downloads the tag vocabulary page by page
type TaginfoClient struct {
	baseURL     string
	pages       int
	perPage     int
	concurrency int
	t           transport
}

// NewTaginfoClient creates a taginfo client for baseURL fetching up to
// pages pages of perPage entries. Empty or zero arguments use the defaults.
func NewTaginfoClient(baseURL string, pages, perPage int, opts ...Option) *TaginfoClient {
	if baseURL == "" {
		baseURL = TaginfoBaseURL
	}
	if pages <= 0 {
		pages = DefaultTaginfoPages
	}
	if perPage <= 0 {
		perPage = DefaultTaginfoPerPage
	}
	return &TaginfoClient{
		baseURL:     baseURL,
		pages:       pages,
		perPage:     perPage,
		concurrency: 4,
		t:           newTransport(tracing.ServiceTaginfo, opts),
	}
}

type taginfoPage struct {
	Page  int `json:"page"`
	Total int `json:"total"`
	Data  []struct {
		Key      string  `json:"key"`
		Value    *string `json:"value"`
		Projects int     `json:"projects"`
	} `json:"data"`
}

// Vocabulary fetches up to the configured number of pages. The first page
// reports the total, so no requests are made past the last page. Entries
// without a value are skipped.
func (c *TaginfoClient) Vocabulary(ctx context.Context) (Vocabulary, error) {
	ctx, span := tracing.StartSpan(ctx, "taginfo.vocabulary",
		trace.WithAttributes(attribute.Int("taginfo.pages", c.pages)),
	)
	defer span.End()

	first, err := c.page(ctx, 1)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "first page failed")
		return nil, err
	}

	pages := c.pages
	switch {
	case first.Total > 0:
		pages = min(pages, (first.Total+c.perPage-1)/c.perPage)
	case len(first.Data) == 0:
		pages = 1
	}

	results := make([]*taginfoPage, max(pages, 1))
	results[0] = first

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := 2; i <= pages; i++ {
		g.Go(func() error {
			p, err := c.page(gctx, i)
			if err != nil {
				return err
			}
			results[i-1] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "page failed")
		return nil, err
	}

	vocab := make(Vocabulary)
	entries := 0
	for _, p := range results {
		for _, d := range p.Data {
			if d.Value == nil {
				continue
			}
			key := SanitizeKey(d.Key)
			val := SanitizeKey(*d.Value)
			if vocab[key] == nil {
				vocab[key] = make(map[string]TagValue)
			}
			vocab[key][val] = TagValue{Value: val, Projects: d.Projects}
			entries++
		}
	}

	span.SetAttributes(
		attribute.Int("taginfo.pages_fetched", pages),
		attribute.Int("taginfo.keys", len(vocab)),
	)
	c.t.logger.Info("fetched tag vocabulary", "pages", pages, "keys", len(vocab), "entries", entries)
	return vocab, nil
}

func (c *TaginfoClient) page(ctx context.Context, n int) (*taginfoPage, error) {
	params := url.Values{
		"sortname":  {"count_all"},
		"sortorder": {"desc"},
		"page":      {strconv.Itoa(n)},
		"rp":        {strconv.Itoa(c.perPage)},
		"qtype":     {"tags"},
		"format":    {"json"},
	}
	u := c.baseURL + "?" + params.Encode()

	resp, err := c.t.do(ctx, "vocabulary", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var p taginfoPage
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, core.NewError(core.ErrParseError, fmt.Sprintf("taginfo page %d is not valid JSON", n)).WithCause(err)
	}
	return &p, nil
}
