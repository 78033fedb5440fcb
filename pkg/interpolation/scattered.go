// Package interpolation regrids values known at scattered 2D positions onto
// arbitrary query points, using a kd-tree for the neighbour searches.
package interpolation

import (
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"

	"gonum.org/v1/gonum/spatial/kdtree"

	"gofish/internal/models"
)

// Method selects how a query point takes its value from the samples
type Method int

const (
	// Nearest copies the values of the closest sample
	Nearest Method = iota

	// InverseDistance averages the k closest samples weighted by 1/d^2
	InverseDistance
)

func (m Method) String() string {
	switch m {
	case Nearest:
		return "nearest"
	case InverseDistance:
		return "inverse-distance"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod converts a method name into a Method. "linear" is accepted
// as an alias of inverse-distance weighting.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "nearest":
		return Nearest, nil
	case "linear", "idw", "inverse-distance":
		return InverseDistance, nil
	default:
		return Nearest, fmt.Errorf("%w: unknown interpolation method %q", models.ErrConfiguration, name)
	}
}

// Point2D is a sample position. Index points back into the value arrays
// because building the tree reorders the points.
type Point2D struct {
	X, Y  float64
	Index int
}

// Compare implements the kdtree.Comparable interface
func (p Point2D) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(Point2D)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p Point2D) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two points
func (p Point2D) Distance(c kdtree.Comparable) float64 {
	q := c.(Point2D)
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// Points2D is a collection of Point2D that satisfies kdtree.Interface
type Points2D []Point2D

func (p Points2D) Index(i int) kdtree.Comparable         { return p[i] }
func (p Points2D) Len() int                              { return len(p) }
func (p Points2D) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p Points2D) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{Points2D: p, Dim: d}, kdtree.MedianOfRandoms(pointPlane{Points2D: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for Points2D
type pointPlane struct {
	Points2D
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.Points2D[i].X < p.Points2D[j].X
	case 1:
		return p.Points2D[i].Y < p.Points2D[j].Y
	default:
		panic("illegal dimension")
	}
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{Points2D: p.Points2D[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.Points2D[i], p.Points2D[j] = p.Points2D[j], p.Points2D[i]
}

// Scattered interpolates one or more fields sampled at scattered positions.
// It is read-only after construction and safe for concurrent use.
type Scattered struct {
	tree   *kdtree.Tree
	fields [][]float64
	method Method

	// Neighbors is the number of samples averaged by InverseDistance
	Neighbors int

	// MaxDistance, when positive, leaves query points further than this
	// from every sample as NaN.
	MaxDistance float64
}

// NewScattered builds the spatial index over the finite sample positions
// (xs[i], ys[i]). Each entry of fields holds one value per sample.
func NewScattered(xs, ys []float64, fields [][]float64, method Method) (*Scattered, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: %d x positions but %d y positions", models.ErrInternalConsistency, len(xs), len(ys))
	}
	for i, f := range fields {
		if len(f) != len(xs) {
			return nil, fmt.Errorf("%w: field %d has %d values for %d samples",
				models.ErrInternalConsistency, i, len(f), len(xs))
		}
	}

	points := make(Points2D, 0, len(xs))
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) || math.IsInf(xs[i], 0) || math.IsInf(ys[i], 0) {
			continue
		}
		points = append(points, Point2D{X: xs[i], Y: ys[i], Index: i})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no finite sample positions to interpolate from", models.ErrEmptyRegion)
	}

	return &Scattered{
		tree:      kdtree.New(points, true),
		fields:    fields,
		method:    method,
		Neighbors: 4,
	}, nil
}

// At writes the interpolated value of every field at (x, y) into out,
// which must have one slot per field.
func (s *Scattered) At(x, y float64, out []float64) {
	q := Point2D{X: x, Y: y}

	if s.method == Nearest || s.Neighbors <= 1 {
		c, dist := s.tree.Nearest(q)
		if c == nil || s.tooFar(dist) {
			fillNaN(out)
			return
		}
		idx := c.(Point2D).Index
		for f := range s.fields {
			out[f] = s.fields[f][idx]
		}
		return
	}

	keeper := kdtree.NewNKeeper(s.Neighbors)
	s.tree.NearestSet(keeper, q)

	for f := range out {
		out[f] = 0
	}
	var total float64
	var nearest = math.Inf(1)
	for _, item := range keeper.Heap {
		// Skip the sentinel value
		if item.Comparable == nil {
			continue
		}
		idx := item.Comparable.(Point2D).Index
		if item.Dist < nearest {
			nearest = item.Dist
		}
		if item.Dist < 1e-24 {
			for f := range s.fields {
				out[f] = s.fields[f][idx]
			}
			return
		}
		w := 1 / item.Dist
		for f := range s.fields {
			out[f] += w * s.fields[f][idx]
		}
		total += w
	}
	if total == 0 || s.tooFar(nearest) {
		fillNaN(out)
		return
	}
	for f := range out {
		out[f] /= total
	}
}

func (s *Scattered) tooFar(sqDist float64) bool {
	return s.MaxDistance > 0 && sqDist > s.MaxDistance*s.MaxDistance
}

// Grid evaluates every field on the regular grid spanned by xaxis and
// yaxis. The result holds one row-major len(yaxis)*len(xaxis) slice per
// field. Rows are split across workers goroutines (all CPUs when <= 0).
func (s *Scattered) Grid(xaxis, yaxis []float64, workers int) [][]float64 {
	nx, ny := len(xaxis), len(yaxis)
	out := make([][]float64, len(s.fields))
	for f := range out {
		out[f] = make([]float64, nx*ny)
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	rowsPerWorker := (ny + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := start + rowsPerWorker
		if end > ny {
			end = ny
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			vals := make([]float64, len(s.fields))
			for y := start; y < end; y++ {
				for x := 0; x < nx; x++ {
					s.At(xaxis[x], yaxis[y], vals)
					for f := range vals {
						out[f][y*nx+x] = vals[f]
					}
				}
			}
		}(start, end)
	}
	wg.Wait()

	return out
}

// Points evaluates every field at the query points (xs[i], ys[i]).
func (s *Scattered) Points(xs, ys []float64) [][]float64 {
	out := make([][]float64, len(s.fields))
	for f := range out {
		out[f] = make([]float64, len(xs))
	}
	vals := make([]float64, len(s.fields))
	for i := range xs {
		s.At(xs[i], ys[i], vals)
		for f := range vals {
			out[f][i] = vals[f]
		}
	}
	return out
}

func fillNaN(out []float64) {
	for i := range out {
		out[i] = math.NaN()
	}
}
