package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"gofish/internal/models"
	"gofish/pkg/interpolation"
)

// PointFrame is the frame of midplane points handed to DiskToSky
type PointFrame int

const (
	// Cylindrical points are (r [arcsec], theta [deg])
	Cylindrical PointFrame = iota

	// Cartesian points are disk-frame (x, y) in arcsec
	Cartesian
)

// DiskToSky maps disk-frame points onto sky offsets in arcsec (absolute,
// i.e. including x0 and y0). The sky position of each pixel is known from
// DiskCoords; query points are interpolated between them by inverse
// distance weighting. Points that fall off the imaged disk are NaN.
func DiskToSky(grid Grid, p Params, opts Options, a, b []float64, frame PointFrame) (x, y []float64, err error) {
	interp, xq, yq, err := skyInterpolator(grid, p, opts, a, b, frame, interpolation.InverseDistance)
	if err != nil {
		return nil, nil, err
	}

	cosInc := math.Cos(p.FoldedInc() * math.Pi / 180)
	interp.MaxDistance = 2 * grid.DPix() / math.Max(math.Abs(cosInc), 0.05)

	out := interp.Points(xq, yq)
	return out[0], out[1], nil
}

// DiskToSkyIndex returns, for each disk-frame point, the (x, y) indices of
// the nearest image pixel.
func DiskToSkyIndex(grid Grid, p Params, opts Options, a, b []float64, frame PointFrame) (xidx, yidx []int, err error) {
	interp, xq, yq, err := skyInterpolator(grid, p, opts, a, b, frame, interpolation.Nearest)
	if err != nil {
		return nil, nil, err
	}
	out := interp.Points(xq, yq)

	xidx = make([]int, len(xq))
	yidx = make([]int, len(xq))
	for i := range xq {
		xidx[i] = closestIndex(grid.XAxis, out[0][i])
		yidx[i] = closestIndex(grid.YAxis, out[1][i])
	}
	return xidx, yidx, nil
}

func skyInterpolator(grid Grid, p Params, opts Options, a, b []float64, frame PointFrame, method interpolation.Method) (*interpolation.Scattered, []float64, []float64, error) {
	if len(a) != len(b) {
		return nil, nil, nil, fmt.Errorf("%w: %d and %d coordinates given", models.ErrConfiguration, len(a), len(b))
	}

	var xq, yq []float64
	switch frame {
	case Cylindrical:
		xq = make([]float64, len(a))
		yq = make([]float64, len(a))
		for i := range a {
			s, c := math.Sincos(b[i] * math.Pi / 180)
			xq[i] = a[i] * c
			yq[i] = a[i] * s
		}
	case Cartesian:
		xq, yq = a, b
	default:
		return nil, nil, nil, fmt.Errorf("%w: unknown point frame %d", models.ErrConfiguration, frame)
	}

	coords, err := DiskCoords(grid, p, opts)
	if err != nil {
		return nil, nil, nil, err
	}
	xd, yd, _ := coords.Cartesian()

	xs, ys := SkyCoords(grid, 0, 0)
	interp, err := interpolation.NewScattered(xd, yd, [][]float64{xs, ys}, method)
	if err != nil {
		return nil, nil, nil, err
	}
	return interp, xq, yq, nil
}

func closestIndex(axis []float64, v float64) int {
	if math.IsNaN(v) {
		return -1
	}
	d := make([]float64, len(axis))
	for i, a := range axis {
		d[i] = math.Abs(a - v)
	}
	return floats.MinIdx(d)
}
