// Package geometry deprojects sky-plane pixels into disk-frame cylindrical
// coordinates (r, theta, z) for an inclined, rotated disk with an elevated
// emission surface.
//
// Sky offsets are in arcsec, angles passed in are in degrees and returned
// polar angles are in radians, measured in the disk frame from the
// red-shifted major axis.
package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"gofish/internal/models"
	"gofish/pkg/interpolation"
)

// flaredIterations is the fixed number of fixed-point steps used by the
// flared solver. The map is contractive for physical flaring exponents.
const flaredIterations = 10

// Grid is the sky-plane sampling of an image: pixel-centred offsets in arcsec.
type Grid struct {
	XAxis []float64
	YAxis []float64
}

// NX returns the number of pixels along x
func (g Grid) NX() int { return len(g.XAxis) }

// NY returns the number of pixels along y
func (g Grid) NY() int { return len(g.YAxis) }

// Size returns the number of pixels in one plane
func (g Grid) Size() int { return len(g.XAxis) * len(g.YAxis) }

// DPix returns the mean pixel size along x in arcsec
func (g Grid) DPix() float64 {
	if len(g.XAxis) < 2 {
		return 1
	}
	return math.Abs(g.XAxis[len(g.XAxis)-1]-g.XAxis[0]) / float64(len(g.XAxis)-1)
}

// Params is the disk geometry. It is passed by value into every projection.
type Params struct {
	// X0, Y0 are the offsets of the disk centre in arcsec
	X0, Y0 float64

	// Inc is the inclination in degrees. Values >= 90 are folded to Inc-180.
	Inc float64

	// PA is the position angle of the red-shifted major axis in degrees,
	// measured east of north.
	PA float64

	// Surface is the emission surface. Nil means a razor-thin disk.
	Surface HeightModel
}

// Flat returns face-on, unrotated, razor-thin geometry centred on (x0, y0).
func Flat(x0, y0 float64) Params {
	return Params{X0: x0, Y0: y0}
}

// Sky strips the projection parameters, keeping only the centre offsets.
// Sky-frame masks are built from this geometry.
func (p Params) Sky() Params {
	return Flat(p.X0, p.Y0)
}

// Height evaluates the emission surface at radius r
func (p Params) Height(r float64) float64 {
	return p.surface().Height(r)
}

func (p Params) surface() HeightModel {
	if p.Surface == nil {
		return flat{}
	}
	return p.Surface
}

// FoldedInc returns the inclination in degrees folded into (-90, 90).
func (p Params) FoldedInc() float64 {
	if p.Inc >= 90 {
		return p.Inc - 180
	}
	return p.Inc
}

// Options controls how disk coordinates are computed.
type Options struct {
	// Shadowed selects the grid-based solver that handles self-occulting
	// surfaces. Otherwise the iterative flared solver is used.
	Shadowed bool

	// Extend scales the disk-frame grid beyond the image extent (shadowed
	// mode). Defaults to 2.
	Extend float64

	// Oversample is the number of disk-frame samples per image pixel
	// along each axis (shadowed mode). Defaults to 2.
	Oversample float64

	// Interpolation regrids the projected disk-frame grid onto the image
	// pixels (shadowed mode).
	Interpolation interpolation.Method

	// Workers bounds the goroutines used for regridding. <= 0 uses all CPUs.
	Workers int
}

// DefaultOptions returns the shadow-aware solver with nearest-neighbour
// regridding on a grid twice the image extent at twice the resolution.
func DefaultOptions() Options {
	return Options{
		Shadowed:      true,
		Extend:        2,
		Oversample:    2,
		Interpolation: interpolation.Nearest,
	}
}

func (o Options) withDefaults() Options {
	if o.Extend <= 0 {
		o.Extend = 2
	}
	if o.Oversample <= 0 {
		o.Oversample = 2
	}
	return o
}

// Coords holds disk-frame cylindrical coordinates for every pixel of a
// plane, row-major with NX pixels per row.
type Coords struct {
	R     []float64
	Theta []float64
	Z     []float64

	NX, NY int
}

// Cartesian returns the disk-frame (x, y, z) coordinates.
func (c Coords) Cartesian() (x, y, z []float64) {
	x = make([]float64, len(c.R))
	y = make([]float64, len(c.R))
	for i := range c.R {
		x[i] = c.R[i] * math.Cos(c.Theta[i])
		y[i] = c.R[i] * math.Sin(c.Theta[i])
	}
	return x, y, c.Z
}

// DiskCoords returns the disk-frame coordinates of every pixel of grid for
// the geometry p. Nothing is cached: every call recomputes the field.
func DiskCoords(grid Grid, p Params, opts Options) (Coords, error) {
	if grid.NX() == 0 || grid.NY() == 0 {
		return Coords{}, fmt.Errorf("%w: empty pixel grid", models.ErrConfiguration)
	}
	p.Inc = p.FoldedInc()

	var coords Coords
	var err error
	if opts.Shadowed {
		coords, err = shadowedCoords(grid, p, opts.withDefaults())
	} else {
		coords = flaredCoords(grid, p)
	}
	if err != nil {
		return Coords{}, err
	}

	if len(coords.R) != grid.Size() || len(coords.Theta) != grid.Size() || len(coords.Z) != grid.Size() {
		return Coords{}, fmt.Errorf("%w: deprojected %d pixels for a %dx%d grid",
			models.ErrInternalConsistency, len(coords.R), grid.NY(), grid.NX())
	}
	return coords, nil
}

// rotate applies the position-angle rotation. The transform is its own
// inverse, so it maps sky to disk axes and back.
func rotate(x, y, sinPA, cosPA float64) (float64, float64) {
	return y*cosPA + x*sinPA, x*cosPA - y*sinPA
}

// SkyCoords returns the Cartesian sky offsets of every pixel relative to (x0, y0).
func SkyCoords(grid Grid, x0, y0 float64) (x, y []float64) {
	nx, ny := grid.NX(), grid.NY()
	x = make([]float64, nx*ny)
	y = make([]float64, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			x[j*nx+i] = grid.XAxis[i] - x0
			y[j*nx+i] = grid.YAxis[j] - y0
		}
	}
	return x, y
}

// MidplaneCoords returns the Cartesian midplane coordinates of every pixel:
// the sky offsets rotated by PA and stretched by 1/cos(inc).
func MidplaneCoords(grid Grid, p Params) (x, y []float64) {
	x, y = SkyCoords(grid, p.X0, p.Y0)
	sinPA, cosPA := math.Sincos(p.PA * math.Pi / 180)
	cosInc := math.Cos(p.FoldedInc() * math.Pi / 180)
	for i := range x {
		xr, yr := rotate(x[i], y[i], sinPA, cosPA)
		x[i], y[i] = xr, yr/cosInc
	}
	return x, y
}

// flaredCoords iterates from the midplane solution towards the point on the
// emission surface seen along each line of sight.
func flaredCoords(grid Grid, p Params) Coords {
	xMid, yMid := MidplaneCoords(grid, p)
	tanInc := math.Tan(p.Inc * math.Pi / 180)
	surface := p.surface()

	n := len(xMid)
	c := Coords{
		R:     make([]float64, n),
		Theta: make([]float64, n),
		Z:     make([]float64, n),
		NX:    grid.NX(),
		NY:    grid.NY(),
	}
	for i := 0; i < n; i++ {
		r := math.Hypot(xMid[i], yMid[i])
		t := math.Atan2(yMid[i], xMid[i])
		for k := 0; k < flaredIterations; k++ {
			y := yMid[i] + surface.Height(r)*tanInc
			r = math.Hypot(y, xMid[i])
			t = math.Atan2(y, xMid[i])
		}
		c.R[i] = r
		c.Theta[i] = t
		c.Z[i] = surface.Height(r)
	}
	return c
}

// diskFrameGrid returns an oversampled Cartesian grid in the disk frame
// covering extend times the image extent. x runs in reverse so the grid has
// the same handedness as the sky axes.
func diskFrameGrid(grid Grid, extend, oversample float64) (xd, yd []float64, nxd, nyd int) {
	nxd = int(float64(grid.NX()) * oversample)
	nyd = int(float64(grid.NY()) * oversample)
	if nxd < 2 {
		nxd = 2
	}
	if nyd < 2 {
		nyd = 2
	}

	xs := make([]float64, nxd)
	ys := make([]float64, nyd)
	floats.Span(xs, extend*grid.XAxis[0], extend*grid.XAxis[grid.NX()-1])
	floats.Span(ys, extend*grid.YAxis[0], extend*grid.YAxis[grid.NY()-1])
	floats.Reverse(xs)

	xd = make([]float64, nxd*nyd)
	yd = make([]float64, nxd*nyd)
	for j := 0; j < nyd; j++ {
		for i := 0; i < nxd; i++ {
			xd[j*nxd+i] = xs[i]
			yd[j*nxd+i] = ys[j]
		}
	}
	return xd, yd, nxd, nyd
}

// occlude folds points hidden behind the surface in front of them onto that
// surface. yProj holds ny rows of nx projected offsets along the inclination
// axis; each column is made monotonic with a running maximum for inc < 0 and
// a running minimum from the far end otherwise.
func occlude(yProj []float64, nx, ny int, inc float64) {
	for i := 0; i < nx; i++ {
		if inc < 0 {
			for j := 1; j < ny; j++ {
				yProj[j*nx+i] = math.Max(yProj[j*nx+i], yProj[(j-1)*nx+i])
			}
		} else {
			for j := ny - 2; j >= 0; j-- {
				yProj[j*nx+i] = math.Min(yProj[j*nx+i], yProj[(j+1)*nx+i])
			}
		}
	}
}

// shadowedCoords projects an oversampled disk-frame grid onto the sky,
// folds occluded points onto the surface in front of them, and regrids the
// known disk-frame positions onto the image pixels.
func shadowedCoords(grid Grid, p Params, opts Options) (Coords, error) {
	xd, yd, nxd, nyd := diskFrameGrid(grid, opts.Extend, opts.Oversample)
	surface := p.surface()

	sinInc, cosInc := math.Sincos(p.Inc * math.Pi / 180)
	yProj := make([]float64, len(yd))
	for i := range yd {
		z := surface.Height(math.Hypot(xd[i], yd[i]))
		yProj[i] = yd[i]*cosInc - z*sinInc
	}

	occlude(yProj, nxd, nyd, p.Inc)

	sinPA, cosPA := math.Sincos(p.PA * math.Pi / 180)
	xSky := make([]float64, len(xd))
	ySky := make([]float64, len(xd))
	for i := range xd {
		xr, yr := rotate(xd[i], yProj[i], sinPA, cosPA)
		xSky[i] = xr + p.X0
		ySky[i] = yr + p.Y0
	}

	interp, err := interpolation.NewScattered(xSky, ySky, [][]float64{xd, yd}, opts.Interpolation)
	if err != nil {
		return Coords{}, err
	}
	regridded := interp.Grid(grid.XAxis, grid.YAxis, opts.Workers)

	n := grid.Size()
	c := Coords{
		R:     make([]float64, n),
		Theta: make([]float64, n),
		Z:     make([]float64, n),
		NX:    grid.NX(),
		NY:    grid.NY(),
	}
	for i := 0; i < n; i++ {
		x, y := regridded[0][i], regridded[1][i]
		c.R[i] = math.Hypot(x, y)
		c.Theta[i] = math.Atan2(y, x)
		c.Z[i] = surface.Height(c.R[i])
	}
	return c, nil
}
