package chessboard

import (
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/stereocal/rimage/transform"
	"go.viam.com/stereocal/utils"
)

// GridConfiguration stores the parameters for the greedy growth of the corner grid
type GridConfiguration struct {
	MaxSeeds      int     `json:"max-seeds" yaml:"max-seeds" mapstructure:"max-seeds"`                // number of candidates tried as grid origin
	SnapTolerance float64 `json:"snap-tolerance" yaml:"snap-tolerance" mapstructure:"snap-tolerance"` // max snapping distance as a fraction of the local spacing
	Neighbors     int     `json:"neighbors" yaml:"neighbors" mapstructure:"neighbors"`                // grid points used for each local homography
}

// DefaultGridConf stores the default parameters for grid growth
var DefaultGridConf = GridConfiguration{
	MaxSeeds:      25,
	SnapTolerance: 0.3,
	Neighbors:     9,
}

var gridSteps = []image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// chessGrid maps integer lattice coordinates to corner candidates.
type chessGrid struct {
	points []r2.Point
	used   []bool
	cells  map[image.Point]int
	min    image.Point
	max    image.Point
}

func newChessGrid(points []r2.Point) *chessGrid {
	return &chessGrid{
		points: points,
		used:   make([]bool, len(points)),
		cells:  make(map[image.Point]int),
	}
}

func (g *chessGrid) assign(cell image.Point, idx int) {
	if len(g.cells) == 0 {
		g.min, g.max = cell, cell
	}
	g.cells[cell] = idx
	g.used[idx] = true
	g.min.X = utils.MinInt(g.min.X, cell.X)
	g.min.Y = utils.MinInt(g.min.Y, cell.Y)
	g.max.X = utils.MaxInt(g.max.X, cell.X)
	g.max.Y = utils.MaxInt(g.max.Y, cell.Y)
}

func (g *chessGrid) extent() image.Point {
	return g.max.Sub(g.min).Add(image.Point{1, 1})
}

// getMinSaddleDistance returns the unused candidate closest to pt, as well as this minimum distance. The index is -1
// when every candidate is used.
func (g *chessGrid) getMinSaddleDistance(pt r2.Point) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i, p := range g.points {
		if g.used[i] {
			continue
		}
		if d := pt.Sub(p).Norm(); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// frontier returns the empty cells 4-connected to the grid, in raster order.
func (g *chessGrid) frontier() []image.Point {
	seen := make(map[image.Point]bool)
	out := make([]image.Point, 0)
	for cell := range g.cells {
		for _, step := range gridSteps {
			n := cell.Add(step)
			if _, ok := g.cells[n]; ok || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Y != out[b].Y {
			return out[a].Y < out[b].Y
		}
		return out[a].X < out[b].X
	})
	return out
}

// predict estimates where the lattice point cell lies in the image from a homography fitted on the closest grid
// points, and the local lattice spacing around it.
func (g *chessGrid) predict(cell image.Point, nNeighbors int) (r2.Point, float64, bool) {
	known := make([]image.Point, 0, len(g.cells))
	for c := range g.cells {
		known = append(known, c)
	}
	dist2 := func(c image.Point) int {
		d := c.Sub(cell)
		return d.X*d.X + d.Y*d.Y
	}
	sort.Slice(known, func(a, b int) bool {
		da, db := dist2(known[a]), dist2(known[b])
		if da != db {
			return da < db
		}
		if known[a].Y != known[b].Y {
			return known[a].Y < known[b].Y
		}
		return known[a].X < known[b].X
	})
	n := utils.MinInt(utils.MaxInt(nNeighbors, 4), len(known))
	if n < 4 {
		return r2.Point{}, 0, false
	}
	src := make([]r2.Point, 0, len(known))
	dst := make([]r2.Point, 0, len(known))
	xs, ys := make(map[int]bool), make(map[int]bool)
	for i, c := range known {
		if i >= n && len(xs) > 1 && len(ys) > 1 {
			break
		}
		src = append(src, r2.Point{X: float64(c.X), Y: float64(c.Y)})
		dst = append(dst, g.points[g.cells[c]])
		xs[c.X], ys[c.Y] = true, true
	}
	h, err := transform.EstimateHomography(src, dst)
	if err != nil {
		return r2.Point{}, 0, false
	}
	q := r2.Point{X: float64(cell.X), Y: float64(cell.Y)}
	pred := h.Apply(q)
	spacing := math.Min(
		h.Apply(q.Add(r2.Point{X: 1})).Sub(pred).Norm(),
		h.Apply(q.Add(r2.Point{Y: 1})).Sub(pred).Norm(),
	)
	if !utils.IsFinite(pred.X, pred.Y, spacing) || spacing < 1 {
		return r2.Point{}, 0, false
	}
	return pred, spacing, true
}

// seedQuad builds the first lattice square from a candidate, its nearest neighbor, the closest neighbor roughly
// orthogonal to it and the candidate closing the square.
func (g *chessGrid) seedQuad(seed int, tol float64) bool {
	p0 := g.points[seed]
	order := make([]int, 0, len(g.points)-1)
	for i := range g.points {
		if i != seed {
			order = append(order, i)
		}
	}
	if len(order) < 3 {
		return false
	}
	sort.SliceStable(order, func(a, b int) bool {
		return g.points[order[a]].Sub(p0).Norm() < g.points[order[b]].Sub(p0).Norm()
	})
	n1 := order[0]
	e1 := g.points[n1].Sub(p0)
	d1 := e1.Norm()
	if d1 < 2 {
		return false
	}
	n2 := -1
	for _, k := range order[1:] {
		e := g.points[k].Sub(p0)
		d := e.Norm()
		if d > 2*d1 {
			break
		}
		if math.Abs(e.Dot(e1))/(d*d1) <= math.Cos(math.Pi/4) {
			n2 = k
			break
		}
	}
	if n2 < 0 {
		return false
	}
	e2 := g.points[n2].Sub(p0)

	g.assign(image.Point{0, 0}, seed)
	g.assign(image.Point{1, 0}, n1)
	g.assign(image.Point{0, 1}, n2)
	k3, d := g.getMinSaddleDistance(p0.Add(e1).Add(e2))
	if k3 < 0 || d > tol*math.Min(d1, e2.Norm()) {
		return false
	}
	g.assign(image.Point{1, 1}, k3)
	return true
}

// grow snaps predicted lattice points to candidates ring after ring until nothing can be added. It stops early with
// false once the grid cannot fit in a rows x cols pattern anymore.
func (g *chessGrid) grow(rows, cols int, cfg *GridConfiguration) bool {
	maxDim := utils.MaxInt(rows, cols)
	minDim := utils.MinInt(rows, cols)
	for {
		added := false
		for _, cell := range g.frontier() {
			pred, spacing, ok := g.predict(cell, cfg.Neighbors)
			if !ok {
				continue
			}
			k, d := g.getMinSaddleDistance(pred)
			if k < 0 || d > cfg.SnapTolerance*spacing {
				continue
			}
			g.assign(cell, k)
			added = true
			ext := g.extent()
			if ext.X > maxDim || ext.Y > maxDim || utils.MinInt(ext.X, ext.Y) > minDim || len(g.cells) > rows*cols {
				return false
			}
		}
		if !added {
			return true
		}
	}
}

func (g *chessGrid) complete(rows, cols int) bool {
	ext := g.extent()
	return len(g.cells) == rows*cols && ((ext.X == cols && ext.Y == rows) || (ext.X == rows && ext.Y == cols))
}

// GreedyIterations grows a lattice from up to cfg.MaxSeeds candidates, strongest first, and returns the first one
// covering exactly a rows x cols pattern, in canonical order.
func GreedyIterations(candidates []Saddle, rows, cols int, cfg *GridConfiguration) ([]r2.Point, error) {
	points := make([]r2.Point, len(candidates))
	for i, c := range candidates {
		points[i] = c.Point
	}
	nSeeds := utils.MinInt(cfg.MaxSeeds, len(points))
	best := 0
	for seed := 0; seed < nSeeds; seed++ {
		g := newChessGrid(points)
		if !g.seedQuad(seed, cfg.SnapTolerance) {
			continue
		}
		if g.grow(rows, cols, cfg) && g.complete(rows, cols) {
			return g.canonicalOrder(rows, cols), nil
		}
		best = utils.MaxInt(best, len(g.cells))
	}
	return nil, errors.Wrapf(ErrNotFound, "no complete %dx%d grid among %d candidates (largest grid %d)",
		rows, cols, len(points), best)
}

// canonicalOrder lays the grid out row-major so that the column axis holds cols points, runs left to right (or top
// to bottom when vertical), and rows follow it clockwise in image coordinates.
func (g *chessGrid) canonicalOrder(rows, cols int) []r2.Point {
	var di, dj r2.Point
	for cell, idx := range g.cells {
		if k, ok := g.cells[cell.Add(image.Point{1, 0})]; ok {
			di = di.Add(g.points[k].Sub(g.points[idx]))
		}
		if k, ok := g.cells[cell.Add(image.Point{0, 1})]; ok {
			dj = dj.Add(g.points[k].Sub(g.points[idx]))
		}
	}
	ext := g.extent()
	colAxisIsI := ext.X == cols
	if rows == cols {
		colAxisIsI = math.Abs(di.X)/di.Norm() >= math.Abs(dj.X)/dj.Norm()
	}
	dc, dr := dj, di
	if colAxisIsI {
		dc, dr = di, dj
	}
	flipC := (math.Abs(dc.X) >= math.Abs(dc.Y) && dc.X < 0) || (math.Abs(dc.X) < math.Abs(dc.Y) && dc.Y < 0)
	if flipC {
		dc = dc.Mul(-1)
	}
	flipR := dc.Cross(dr) < 0

	out := make([]r2.Point, rows*cols)
	for cell, idx := range g.cells {
		local := cell.Sub(g.min)
		c, r := local.Y, local.X
		if colAxisIsI {
			c, r = local.X, local.Y
		}
		if flipC {
			c = cols - 1 - c
		}
		if flipR {
			r = rows - 1 - r
		}
		out[r*cols+c] = g.points[idx]
	}
	return out
}
