package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/NERVsystems/osmplot/pkg/core"
	"github.com/NERVsystems/osmplot/pkg/osm/queries"
	"github.com/NERVsystems/osmplot/pkg/tools"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "osmplot",
		Short:         "Map OpenStreetMap features with stable legend colours",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file with OSMPLOT_* overrides; missing files are ignored")
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")
	pf.StringVar(&a.logFormat, "log-format", "text", "log format: text or json")
	pf.StringVar(&a.overpassURL, "overpass-url", "", "Overpass interpreter URL")
	pf.StringVar(&a.taginfoURL, "taginfo-url", "", "taginfo projects/tags URL")
	pf.StringVar(&a.tileSource, "tile-source", "", "default tile source: ESRI, OpenMap or OpenTopoMap")
	pf.StringVar(&a.userAgent, "user-agent", "", "User-Agent sent to upstream services")

	root.AddCommand(
		newFetchCmd(a),
		newByIDCmd(a),
		newVocabCmd(a),
		newTilesCmd(a),
		newServeCmd(a),
	)
	return root
}

// styleFlags are the legend and output flags shared by fetch and by-id
type styleFlags struct {
	legend     string
	fillColumn string
	viewport   string
	geojson    bool
	tiles      bool
}

func (s *styleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.legend, "legend", "", "column that groups rows into legend entries")
	cmd.Flags().StringVar(&s.fillColumn, "fill-column", "", "column holding explicit per-row colours")
	cmd.Flags().StringVar(&s.viewport, "viewport", "", "list only the features inside (south,west,north,east)")
	cmd.Flags().BoolVar(&s.geojson, "geojson", false, "include the styled rows as a GeoJSON FeatureCollection")
	cmd.Flags().BoolVar(&s.tiles, "tiles", false, "include the tile URLs covering the result")
}

func (s *styleFlags) apply(args map[string]any) {
	setString(args, "legend", s.legend)
	setString(args, "fill_column", s.fillColumn)
	setString(args, "viewport", s.viewport)
	if s.geojson {
		args["format"] = "geojson"
	}
	if s.tiles {
		args["tiles"] = true
	}
}

func setString(args map[string]any, name, value string) {
	if value != "" {
		args[name] = value
	}
}

// searchFlags select the features for fetch and tiles
type searchFlags struct {
	key, tag, area, center string
	radius                 float64
	bbox                   bool
	windTurbines           bool
}

func (s *searchFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&s.key, "key", "", "tag key to match, e.g. amenity")
	f.StringVar(&s.tag, "tag", "", "tag value to match; empty matches any value")
	f.StringVar(&s.area, "area", "", "bounding box (south,west,north,east)")
	f.StringVar(&s.center, "center", "", "centre point for an around search (decimal, DMS or MGRS)")
	f.Float64Var(&s.radius, "radius", 0, "around search radius in metres")
	f.BoolVar(&s.bbox, "bbox", false, "search the square around --center instead of a true radius")
	f.BoolVar(&s.windTurbines, "wind-turbines", false, "preset for generator:method=wind_turbine")
}

func (s *searchFlags) set() bool {
	return s.key != "" || s.windTurbines
}

func (s *searchFlags) apply(args map[string]any) {
	key, tag := s.key, s.tag
	if s.windTurbines {
		preset := queries.WindTurbines(queries.BBox{})
		key, tag = preset.Key, preset.Tag
	}
	setString(args, "key", key)
	setString(args, "tag", tag)
	setString(args, "area", s.area)
	setString(args, "center", s.center)
	if s.radius > 0 {
		args["radius"] = s.radius
	}
	if s.bbox {
		args["bbox"] = true
	}
}

func newFetchCmd(a *app) *cobra.Command {
	var (
		search                     searchFlags
		output, element, recursion string
		raw                        string
		style                      styleFlags
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch features by key and tag and print the styled result",
		Example: `  osmplot fetch --key amenity --tag post_box --area "(55.85,-3.35,56.0,-3.05)" --legend operator
  osmplot fetch --wind-turbines --area "(53.0,-5.0,54.0,-3.0)" --geojson`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			args := map[string]any{}
			search.apply(args)
			setString(args, "output", output)
			setString(args, "element", element)
			setString(args, "recursion", recursion)
			setString(args, "raw", raw)
			style.apply(args)
			return a.run(cmd.Context(), tools.ToolMapFeatures, args)
		},
	}

	search.register(cmd)
	f := cmd.Flags()
	f.StringVar(&output, "output", "", "geometry mode: center, geom or body")
	f.StringVar(&element, "element", "", "restrict to node, way or rel")
	f.StringVar(&recursion, "recursion", "", "recursion clause, e.g. > or <")
	f.StringVar(&raw, "raw", "", "Overpass QL to run instead of the generated query")
	style.register(cmd)
	return cmd
}

func newByIDCmd(a *app) *cobra.Command {
	var (
		output, recursion string
		style             styleFlags
	)
	cmd := &cobra.Command{
		Use:     "by-id TYPE ID",
		Short:   "Fetch one element by type and id",
		Example: "  osmplot by-id way 4309426 --output geom",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, pos []string) error {
			id, err := strconv.ParseInt(pos[1], 10, 64)
			if err != nil {
				return core.NewValidationError(core.ErrInvalidInput, fmt.Sprintf("element id %q is not an integer", pos[1]))
			}
			args := map[string]any{"type": pos[0], "id": id}
			setString(args, "output", output)
			setString(args, "recursion", recursion)
			style.apply(args)
			return a.run(cmd.Context(), tools.ToolMapFeatureByID, args)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "geometry mode: center, geom or body")
	cmd.Flags().StringVar(&recursion, "recursion", "", "recursion clause, e.g. > or <")
	style.register(cmd)
	return cmd
}

func newVocabCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "vocab [KEY]",
		Short: "List tag keys, or the values seen for KEY",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
			args := map[string]any{}
			if len(pos) == 1 {
				args["key"] = pos[0]
			}
			if limit > 0 {
				args["limit"] = limit
			}
			return a.run(cmd.Context(), tools.ToolTagVocabulary, args)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to print; 0 prints all")
	return cmd
}

func newTilesCmd(a *app) *cobra.Command {
	var search searchFlags
	cmd := &cobra.Command{
		Use:   "tiles",
		Short: "List the tile sources, or the tiles covering a search",
		Example: `  osmplot tiles
  osmplot tiles --key amenity --tag cafe --area "(55.9,-3.3,56.0,-3.1)" --tile-source OpenMap`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !search.set() {
				return a.run(cmd.Context(), tools.ToolListTileSources, map[string]any{})
			}
			args := map[string]any{"tiles": true}
			search.apply(args)
			return a.run(cmd.Context(), tools.ToolMapFeatures, args)
		},
	}
	search.register(cmd)
	return cmd
}
