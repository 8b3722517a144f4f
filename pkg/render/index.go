package render

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// pointTolerance gives point entries a non-zero extent, which rtreego
// requires.
const pointTolerance = 1e-6

type indexedRow struct {
	i    int
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial
func (r *indexedRow) Bounds() rtreego.Rect {
	return r.rect
}

// Index answers hover and viewport queries over projected rows
type Index struct {
	rows []StyledRow
	tree *rtreego.Rtree
}

// NewIndex builds an R-tree over the display coordinates of res
func NewIndex(res *Result) *Index {
	idx := &Index{
		rows: res.Rows,
		tree: rtreego.NewTree(2, 25, 50),
	}
	for i, row := range res.Rows {
		rect, _ := rtreego.NewRect(rtreego.Point{row.X, row.Y}, []float64{pointTolerance, pointTolerance})
		idx.tree.Insert(&indexedRow{i: i, rect: rect})
	}
	return idx
}

// Len returns the number of indexed rows
func (idx *Index) Len() int {
	return idx.tree.Size()
}

// Nearest returns the row closest to display point (x, y) and its distance
// in display units. ok is false for an empty index.
func (idx *Index) Nearest(x, y float64) (row StyledRow, dist float64, ok bool) {
	if idx.tree.Size() == 0 {
		return StyledRow{}, 0, false
	}
	hit := idx.tree.NearestNeighbor(rtreego.Point{x, y})
	if hit == nil {
		return StyledRow{}, 0, false
	}
	row = idx.rows[hit.(*indexedRow).i]
	return row, math.Hypot(row.X-x, row.Y-y), true
}

// Within returns the rows inside a display-coordinate bound, in result
// order
func (idx *Index) Within(b orb.Bound) []StyledRow {
	lengths := []float64{
		math.Max(b.Max.X()-b.Min.X(), pointTolerance),
		math.Max(b.Max.Y()-b.Min.Y(), pointTolerance),
	}
	rect, err := rtreego.NewRect(rtreego.Point{b.Min.X(), b.Min.Y()}, lengths)
	if err != nil {
		return nil
	}

	hits := idx.tree.SearchIntersect(rect)
	marks := make([]bool, len(idx.rows))
	for _, h := range hits {
		marks[h.(*indexedRow).i] = true
	}
	out := make([]StyledRow, 0, len(hits))
	for i, m := range marks {
		if m {
			out = append(out, idx.rows[i])
		}
	}
	return out
}
