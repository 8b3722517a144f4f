// Package palette assigns deterministic fill colours to legend groups.
package palette

import (
	"slices"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/NERVsystems/osmplot/pkg/colors"
)

// Category10 is the ten colour categorical palette used for small label sets.
var Category10 = colors.Tableau10

// viridisAnchors are viridis at eleven evenly spaced stops.
var viridisAnchors = []string{
	"#440154", "#482475", "#414487", "#355f8d", "#2a788e", "#21918c",
	"#22a884", "#44bf70", "#7ad151", "#bddf26", "#fde725",
}

// Kind identifies which palette an assignment drew from
type Kind string

const (
	Discrete   Kind = "category10"
	Continuous Kind = "viridis"
)

// Viridis samples n evenly spaced colours from the viridis colour map,
// dark purple first.
func Viridis(n int) []colors.RGB {
	if n <= 0 {
		return nil
	}

	anchors := make([]colorful.Color, len(viridisAnchors))
	for i, h := range viridisAnchors {
		anchors[i], _ = colorful.Hex(h)
	}

	out := make([]colors.RGB, n)
	segments := float64(len(anchors) - 1)
	for i := range out {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		pos := t * segments
		lo := int(pos)
		if lo >= len(anchors)-1 {
			lo = len(anchors) - 2
		}
		c := anchors[lo].BlendLab(anchors[lo+1], pos-float64(lo)).Clamped()
		r, g, b := c.RGB255()
		out[i] = colors.RGB{R: r, G: g, B: b}
	}
	return out
}

// For returns the palette used for n groups: Category10 up to its size,
// viridis sampled at n points beyond it.
func For(n int) ([]colors.RGB, Kind) {
	if KindFor(n) == Discrete {
		return Category10[:n:n], Discrete
	}
	return Viridis(n), Continuous
}

// KindFor reports which palette For uses for n groups
func KindFor(n int) Kind {
	if n <= len(Category10) {
		return Discrete
	}
	return Continuous
}

// Canonical returns the distinct labels in sorted order.
func Canonical(labels []string) []string {
	out := slices.Clone(labels)
	slices.Sort(out)
	return slices.Compact(out)
}

// Assign maps every distinct label to a fill colour. Labels are ranked in
// sorted order, so the result depends only on the set of labels.
func Assign(labels []string) map[string]colors.RGB {
	canon := Canonical(labels)
	pal, _ := For(len(canon))

	out := make(map[string]colors.RGB, len(canon))
	for i, label := range canon {
		out[label] = pal[i]
	}
	return out
}
