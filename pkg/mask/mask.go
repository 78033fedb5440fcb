// Package mask builds boolean pixel masks from radial and azimuthal bounds
// in the disk frame or on the sky.
package mask

import (
	"fmt"
	"math"

	"gofish/internal/models"
	"gofish/pkg/geometry"
)

// Bounds selects a region. Nil limits default to the extrema of the
// deprojected coordinates.
type Bounds struct {
	// RMin, RMax are midplane radii in arcsec, inclusive
	RMin, RMax *float64

	// PAMin, PAMax are disk-frame polar angles in degrees, inclusive. The
	// window is taken modulo 360, so [0, 360] covers the whole disk.
	PAMin, PAMax *float64

	// ExcludeR and ExcludePA invert the radial and azimuthal selections
	ExcludeR, ExcludePA bool

	// AbsPA folds the polar angle onto [0, 180] before selecting
	AbsPA bool
}

// Float returns a pointer to v for filling optional bounds
func Float(v float64) *float64 { return &v }

// Radial returns bounds for the annulus rmin <= r <= rmax
func Radial(rmin, rmax float64) Bounds {
	return Bounds{RMin: Float(rmin), RMax: Float(rmax)}
}

// Mask is a row-major boolean image with NX pixels per row
type Mask struct {
	Pixels []bool
	NX, NY int
}

// Count returns the number of selected pixels
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Pixels {
		if v {
			n++
		}
	}
	return n
}

// And intersects the mask with an overlay of the same shape.
func (m Mask) And(overlay []bool) (Mask, error) {
	if len(overlay) != len(m.Pixels) {
		return Mask{}, fmt.Errorf("%w: mask has %d pixels but the data plane has %d",
			models.ErrConfiguration, len(overlay), len(m.Pixels))
	}
	out := Mask{Pixels: make([]bool, len(m.Pixels)), NX: m.NX, NY: m.NY}
	for i := range m.Pixels {
		out.Pixels[i] = m.Pixels[i] && overlay[i]
	}
	return out, nil
}

// Get returns the mask of the pixels of grid inside b. In the sky frame the
// projection (inc, PA, surface) is dropped but the centre offsets are kept,
// so the radius is measured on the sky from (x0, y0) with the exact
// face-on solver.
//
// An empty selection is an ErrEmptyRegion error.
func Get(grid geometry.Grid, p geometry.Params, opts geometry.Options, b Bounds, frame models.Frame) (Mask, error) {
	switch frame {
	case models.DiskFrame:
	case models.SkyFrame:
		p = p.Sky()
		opts.Shadowed = false
	default:
		return Mask{}, fmt.Errorf("%w: unknown mask frame %v", models.ErrConfiguration, frame)
	}

	coords, err := geometry.DiskCoords(grid, p, opts)
	if err != nil {
		return Mask{}, err
	}
	return FromCoords(coords, b)
}

// FromCoords applies b to an already computed coordinate field.
func FromCoords(coords geometry.Coords, b Bounds) (Mask, error) {
	theta := coords.Theta
	if b.AbsPA {
		theta = make([]float64, len(coords.Theta))
		for i, t := range coords.Theta {
			theta[i] = math.Abs(t)
		}
	}

	rmin, rmax := finiteRange(coords.R)
	if b.RMin != nil {
		rmin = *b.RMin
	}
	if b.RMax != nil {
		rmax = *b.RMax
	}
	if !(rmin < rmax) {
		return Mask{}, fmt.Errorf("%w: r_min (%g) must be smaller than r_max (%g)", models.ErrConfiguration, rmin, rmax)
	}

	tmin, tmax := finiteRange(theta)
	wrap := false
	if b.PAMin != nil {
		tmin = *b.PAMin * math.Pi / 180
		wrap = true
	}
	if b.PAMax != nil {
		tmax = *b.PAMax * math.Pi / 180
		wrap = true
	}
	if !(tmin < tmax) {
		return Mask{}, fmt.Errorf("%w: PA_min (%g) must be smaller than PA_max (%g)",
			models.ErrConfiguration, tmin*180/math.Pi, tmax*180/math.Pi)
	}

	m := Mask{Pixels: make([]bool, len(coords.R)), NX: coords.NX, NY: coords.NY}
	for i, r := range coords.R {
		if math.IsNaN(r) || math.IsNaN(theta[i]) {
			continue
		}
		inR := r >= rmin && r <= rmax
		if b.ExcludeR {
			inR = !inR
		}

		t := theta[i]
		if wrap {
			t = tmin + math.Mod(math.Mod(t-tmin, 2*math.Pi)+2*math.Pi, 2*math.Pi)
		}
		inPA := t >= tmin && t <= tmax
		if b.ExcludePA {
			inPA = !inPA
		}
		m.Pixels[i] = inR && inPA
	}

	if m.Count() == 0 {
		return Mask{}, fmt.Errorf("%w: there are zero pixels in the mask", models.ErrEmptyRegion)
	}
	return m, nil
}

func finiteRange(v []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range v {
		if math.IsNaN(x) {
			continue
		}
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}
