package cube

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"

	"gofish/internal/models"
)

// ClipSpatial returns a new cube cropped to pixels within +/- radius arcsec
// of the origin along both axes.
func (c *Cube) ClipSpatial(radius float64) (*Cube, error) {
	if !(radius > 0) {
		return nil, fmt.Errorf("%w: clip radius must be positive, got %g", models.ErrConfiguration, radius)
	}
	tol := 1e-6 * c.dpix
	xa, xb := clipRange(c.xaxis, radius+tol)
	ya, yb := clipRange(c.yaxis, radius+tol)
	if xa >= xb || ya >= yb {
		return nil, fmt.Errorf("%w: no pixels within %.3f arcsec", models.ErrEmptyRegion, radius)
	}

	nx, ny := xb-xa, yb-ya
	out := make([]float64, c.nchan*ny*nx)
	plane := c.nx * c.ny
	for k := 0; k < c.nchan; k++ {
		for y := 0; y < ny; y++ {
			src := c.data[k*plane+(y+ya)*c.nx+xa : k*plane+(y+ya)*c.nx+xb]
			copy(out[k*ny*nx+y*nx:k*ny*nx+(y+1)*nx], src)
		}
	}

	var velax []float64
	if c.velax != nil {
		velax = append([]float64(nil), c.velax...)
	}
	return c.derive(out,
		append([]float64(nil), c.xaxis[xa:xb]...),
		append([]float64(nil), c.yaxis[ya:yb]...),
		velax), nil
}

// clipRange returns the half-open index range of the contiguous run of axis
// values with |v| <= limit.
func clipRange(axis []float64, limit float64) (int, int) {
	a, b := -1, -1
	for i, v := range axis {
		if math.Abs(v) <= limit {
			if a < 0 {
				a = i
			}
			b = i + 1
		}
	}
	if a < 0 {
		return 0, 0
	}
	return a, b
}

// ClipVelocity returns a new cube restricted to channels with
// vmin <= v <= vmax. NaN leaves the corresponding end unbounded. A single
// remaining channel gives a 2D image.
func (c *Cube) ClipVelocity(vmin, vmax float64) (*Cube, error) {
	if err := c.RequireSpectral(); err != nil {
		return nil, err
	}
	if math.IsNaN(vmin) {
		vmin = c.velax[0]
	}
	if math.IsNaN(vmax) {
		vmax = c.velax[c.nchan-1]
	}
	if vmin > vmax {
		return nil, fmt.Errorf("%w: v_min (%g) must not exceed v_max (%g)", models.ErrConfiguration, vmin, vmax)
	}

	i, j := -1, -1
	for k, v := range c.velax {
		if v >= vmin && v <= vmax {
			if i < 0 {
				i = k
			}
			j = k + 1
		}
	}
	if i < 0 {
		return nil, fmt.Errorf("%w: no channels between %g and %g m/s", models.ErrEmptyRegion, vmin, vmax)
	}

	plane := c.nx * c.ny
	out := append([]float64(nil), c.data[i*plane:j*plane]...)
	clipped := c.derive(out,
		append([]float64(nil), c.xaxis...),
		append([]float64(nil), c.yaxis...),
		append([]float64(nil), c.velax[i:j]...))
	if j-i < 2 {
		clipped.velax = nil
		clipped.chans = math.NaN()
	}
	return clipped, nil
}

// CorrectPB returns a new cube divided by the primary beam response. pb
// is either a single ny*nx plane applied to every channel, or a full cube
// of the same shape as the data.
func (c *Cube) CorrectPB(pb []float64) (*Cube, error) {
	if c.pbCorrected {
		return nil, fmt.Errorf("%w: data has already been primary beam corrected", models.ErrConfiguration)
	}
	plane := c.nx * c.ny
	if len(pb) != plane && len(pb) != len(c.data) {
		return nil, fmt.Errorf("%w: primary beam has %d samples, expected %d or %d",
			models.ErrConfiguration, len(pb), plane, len(c.data))
	}

	inv := make([]float64, len(pb))
	for i, v := range pb {
		inv[i] = 1 / v
	}

	out := make([]float64, len(c.data))
	if len(pb) == plane {
		for k := 0; k < c.nchan; k++ {
			vecmath.MulBlock(out[k*plane:(k+1)*plane], c.data[k*plane:(k+1)*plane], inv)
		}
	} else {
		vecmath.MulBlock(out, c.data, inv)
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = 0
		}
	}

	var velax []float64
	if c.velax != nil {
		velax = append([]float64(nil), c.velax...)
	}
	corrected := c.derive(out, append([]float64(nil), c.xaxis...), append([]float64(nil), c.yaxis...), velax)
	corrected.pbCorrected = true
	return corrected, nil
}

// PBCorrected reports whether CorrectPB produced this cube
func (c *Cube) PBCorrected() bool { return c.pbCorrected }
