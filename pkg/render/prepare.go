package render

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/NERVsystems/osmplot/pkg/colors"
	"github.com/NERVsystems/osmplot/pkg/core"
	"github.com/NERVsystems/osmplot/pkg/normalize"
	"github.com/NERVsystems/osmplot/pkg/palette"
)

// MissingLabel is the legend group of rows without a value in the legend
// column
const MissingLabel = "(missing)"

// Derived fields available to tooltips in addition to the table columns
const (
	FieldID          = normalize.ColID
	FieldQueryKey    = normalize.ColQueryKey
	FieldQueryTag    = normalize.ColQueryTag
	FieldTags        = "tags"
	FieldCoordinates = "coordinates"
	FieldX           = "x"
	FieldY           = "y"
	FieldLegendGroup = "legend_group"
	FieldFillColor   = "fill_color"
	FieldLineColor   = "line_color"
)

// FillRule chooses where fill colours come from. The zero value assigns
// them automatically per legend group.
type FillRule struct {
	Column string `json:"column,omitempty" yaml:"column,omitempty"`
}

// AutoFill assigns palette colours per legend group
func AutoFill() FillRule { return FillRule{} }

// FillFromColumn reads each row's fill colour from a column
func FillFromColumn(col string) FillRule { return FillRule{Column: col} }

// IsAuto reports whether the rule assigns colours automatically
func (f FillRule) IsAuto() bool { return f.Column == "" }

// Options controls Prepare
type Options struct {
	// LegendColumn defaults to query_tag.
	LegendColumn string
	Fill         FillRule
	// Projector defaults to WebMercator.
	Projector Projector
	// Config defaults to DefaultConfig.
	Config *Config
	Logger *slog.Logger
}

// StyledRow is a row with display coordinates and colours
type StyledRow struct {
	normalize.Row
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	LegendGroup string     `json:"legend_group"`
	Fill        colors.RGB `json:"fill_color"`
	Outline     colors.RGB `json:"line_color"`
}

// Field returns a tooltip field for the row. Unknown fields and absent
// tags render as "".
func (r StyledRow) Field(name string) string {
	switch name {
	case FieldTags:
		return r.TagString()
	case FieldCoordinates:
		return fmt.Sprintf("(%s, %s)", ftoa(r.Lat), ftoa(r.Lon))
	case FieldX:
		return ftoa(r.X)
	case FieldY:
		return ftoa(r.Y)
	case FieldLegendGroup:
		return r.LegendGroup
	case FieldFillColor:
		return r.Fill.Hex()
	case FieldLineColor:
		return r.Outline.Hex()
	}
	v, _ := r.Value(name)
	return v
}

// Group is one legend entry and its rows
type Group struct {
	Label string      `json:"label"`
	Rows  []StyledRow `json:"rows"`
}

// Result is the render-ready output of Prepare
type Result struct {
	Rows         []StyledRow  `json:"rows"`
	Groups       []Group      `json:"groups"`
	LegendColumn string       `json:"legend_column"`
	Palette      palette.Kind `json:"palette,omitempty"`
	// Degraded is set when the fill column did not exist and neutral
	// colours were used.
	Degraded bool       `json:"degraded"`
	Config   Config     `json:"config"`
	Tile     TileSource `json:"tile"`
}

// TooltipLine is one resolved tooltip entry
type TooltipLine struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Tooltip resolves the configured tooltip fields for a row
func (r *Result) Tooltip(row StyledRow) []TooltipLine {
	out := make([]TooltipLine, len(r.Config.Tooltips))
	for i, tt := range r.Config.Tooltips {
		out[i] = TooltipLine{Label: tt.Label, Value: row.Field(tt.Field)}
	}
	return out
}

// Bounds returns the geographic bound of all rows
func (r *Result) Bounds() orb.Bound {
	return boundOf(r.Rows)
}

func boundOf(rows []StyledRow) orb.Bound {
	if len(rows) == 0 {
		return orb.Bound{}
	}
	b := rows[0].Point().Bound()
	for _, row := range rows[1:] {
		b = b.Extend(row.Point())
	}
	return b
}

// Prepare projects every row, derives its legend group and assigns fill
// and outline colours. A row outside the projection domain fails the
// whole call. Rows come back ordered by legend group, then input order.
func Prepare(table *normalize.Table, opts Options) (*Result, error) {
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tile, _ := cfg.Tile()

	proj := opts.Projector
	if proj == nil {
		proj = WebMercator{}
	}
	legend := opts.LegendColumn
	if legend == "" {
		legend = normalize.ColQueryTag
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "render")

	res := &Result{
		Rows:         make([]StyledRow, len(table.Rows)),
		LegendColumn: legend,
		Config:       cfg,
		Tile:         tile,
	}

	for i, row := range table.Rows {
		x, y, ok := proj.Project(row.Lat, row.Lon)
		if !ok {
			return nil, core.ProjectionFailure(row.ID, row.Lat, row.Lon)
		}
		group, ok := row.Value(legend)
		if !ok {
			group = MissingLabel
		}
		res.Rows[i] = StyledRow{Row: row, X: x, Y: y, LegendGroup: group}
	}

	if err := applyFill(res, table, opts.Fill, logger); err != nil {
		return nil, err
	}

	slices.SortStableFunc(res.Rows, func(a, b StyledRow) int {
		return cmp.Compare(a.LegendGroup, b.LegendGroup)
	})
	res.Groups = groupRows(res.Rows)

	logger.Debug("prepared rows",
		"rows", len(res.Rows),
		"groups", len(res.Groups),
		"legend_column", legend,
		"degraded", res.Degraded,
	)
	return res, nil
}

func applyFill(res *Result, table *normalize.Table, rule FillRule, logger *slog.Logger) error {
	switch {
	case rule.IsAuto():
		labels := make([]string, len(res.Rows))
		for i, r := range res.Rows {
			labels[i] = r.LegendGroup
		}
		fills := palette.Assign(labels)
		res.Palette = palette.KindFor(len(fills))
		for i := range res.Rows {
			fill := fills[res.Rows[i].LegendGroup]
			res.Rows[i].Fill = fill
			res.Rows[i].Outline = colors.ContrastColor(fill)
		}

	case table.HasColumn(rule.Column):
		for i := range res.Rows {
			row := &res.Rows[i]
			v, ok := row.Value(rule.Column)
			if !ok {
				return core.InvalidColor(rule.Column, fmt.Sprintf("element %d has no value in this column", row.ID))
			}
			fill, err := colors.ToRGB255(v)
			if err != nil {
				return err
			}
			row.Fill = fill
			row.Outline = colors.ContrastColor(fill)
		}

	default:
		logger.Warn("fill column not found, using neutral colours", "column", rule.Column)
		res.Degraded = true
		for i := range res.Rows {
			res.Rows[i].Fill = colors.Neutral
			res.Rows[i].Outline = colors.Black
		}
	}
	return nil
}

// groupRows splits rows already sorted by legend group
func groupRows(rows []StyledRow) []Group {
	groups := []Group{}
	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) && rows[end].LegendGroup == rows[start].LegendGroup {
			end++
		}
		groups = append(groups, Group{Label: rows[start].LegendGroup, Rows: rows[start:end:end]})
		start = end
	}
	return groups
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
