// Package annulus extracts the spectra of the pixels inside a radial (and
// optionally azimuthal) slice of the disk, ordered by polar angle, and
// deprojects them onto a common velocity grid.
package annulus

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"gofish/internal/models"
	"gofish/pkg/cube"
	"gofish/pkg/geometry"
	"gofish/pkg/mask"
)

// Request describes the annulus to extract.
type Request struct {
	// RMin, RMax are the inclusive radial bounds in arcsec
	RMin, RMax float64

	// PAMin, PAMax optionally restrict the polar angle, in degrees
	PAMin, PAMax *float64
	ExcludePA    bool
	AbsPA        bool

	// Geometry and Options define the deprojection
	Geometry geometry.Params
	Options  geometry.Options

	// Frame selects the frame of the radial and azimuthal bounds
	Frame models.Frame

	// Mask, when set, replaces the mask built from the bounds
	Mask []bool

	// Overlay, when set, is intersected with the mask. Pixels outside it
	// are ignored without touching the cube.
	Overlay []bool

	// BeamSpacing, when positive, subsamples the annulus so that samples
	// are separated by about BeamSpacing beam major axes.
	BeamSpacing float64

	// Rand draws the subsampling start offset. Nil uses the global source.
	Rand *rand.Rand
}

// Annulus holds the spectra of one annulus ordered by polar angle.
// Row i of Spectra is the spectrum at polar angle Theta[i] and radius R[i].
type Annulus struct {
	Spectra *mat.Dense
	Theta   []float64
	R       []float64
	Velax   []float64
}

// Extract returns the annulus described by req.
func Extract(c *cube.Cube, req Request) (*Annulus, error) {
	if err := c.RequireSpectral(); err != nil {
		return nil, err
	}

	grid := c.Grid()
	coords, err := geometry.DiskCoords(grid, req.Geometry, req.Options)
	if err != nil {
		return nil, err
	}

	m, err := selection(grid, coords, req)
	if err != nil {
		return nil, err
	}

	idx := make([]int, 0, m.Count())
	for i, ok := range m.Pixels {
		if ok {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: no pixels between %.3f and %.3f arcsec", models.ErrEmptyRegion, req.RMin, req.RMax)
	}

	theta := make([]float64, len(idx))
	for k, i := range idx {
		theta[k] = coords.Theta[i]
	}
	order := make([]int, len(theta))
	floats.Argsort(theta, order)

	pixels := make([]int, len(order))
	radii := make([]float64, len(order))
	for k, o := range order {
		pixels[k] = idx[o]
		radii[k] = coords.R[idx[o]]
	}

	if req.BeamSpacing > 0 {
		stride := beamStride(req.BeamSpacing*c.Beam().Major, radii, theta)
		if stride > 1 {
			var start int
			if req.Rand != nil {
				start = req.Rand.Intn(len(theta))
			} else {
				start = rand.Intn(len(theta))
			}
			theta = subsample(rotateFloats(theta, start), stride)
			radii = subsample(rotateFloats(radii, start), stride)
			pixels = subsampleInts(rotateInts(pixels, start), stride)
		}
	}

	nchan := c.NChan()
	spectra := mat.NewDense(len(pixels), nchan, nil)
	for k, pix := range pixels {
		for ch := 0; ch < nchan; ch++ {
			spectra.Set(k, ch, c.Channel(ch)[pix])
		}
	}

	if r, _ := spectra.Dims(); r != len(theta) {
		return nil, fmt.Errorf("%w: %d spectra for %d polar angles", models.ErrInternalConsistency, r, len(theta))
	}

	return &Annulus{
		Spectra: spectra,
		Theta:   theta,
		R:       radii,
		Velax:   append([]float64(nil), c.Velax()...),
	}, nil
}

// selection builds the mask of the annulus: the caller's mask or the bound
// mask, intersected with the overlay.
func selection(grid geometry.Grid, coords geometry.Coords, req Request) (mask.Mask, error) {
	var m mask.Mask
	var err error
	switch {
	case req.Mask != nil:
		if len(req.Mask) != grid.Size() {
			return mask.Mask{}, fmt.Errorf("%w: mask has %d pixels, expected %d",
				models.ErrConfiguration, len(req.Mask), grid.Size())
		}
		m = mask.Mask{Pixels: req.Mask, NX: grid.NX(), NY: grid.NY()}
	case req.Frame == models.DiskFrame:
		m, err = mask.FromCoords(coords, req.bounds())
	default:
		m, err = mask.Get(grid, req.Geometry, req.Options, req.bounds(), req.Frame)
	}
	if err != nil {
		return mask.Mask{}, err
	}

	if req.Overlay != nil {
		return m.And(req.Overlay)
	}
	return m, nil
}

func (req Request) bounds() mask.Bounds {
	return mask.Bounds{
		RMin:      mask.Float(req.RMin),
		RMax:      mask.Float(req.RMax),
		PAMin:     req.PAMin,
		PAMax:     req.PAMax,
		ExcludePA: req.ExcludePA,
		AbsPA:     req.AbsPA,
	}
}

// beamStride returns the number of consecutive samples spanning the given
// arc length (arcsec) at the mean radius of the annulus.
func beamStride(arc float64, radii, theta []float64) int {
	if len(theta) < 2 {
		return 1
	}
	diffs := make([]float64, len(theta)-1)
	for i := range diffs {
		diffs[i] = theta[i+1] - theta[i]
	}
	step := floats.Sum(radii) / float64(len(radii)) * median(diffs)
	s := math.Floor(arc / step)
	if math.IsNaN(s) || math.IsInf(s, 0) || s < 1 {
		return 1
	}
	if s > float64(len(theta)) {
		return len(theta)
	}
	return int(s)
}

func median(v []float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return 0.5 * (s[n/2-1] + s[n/2])
}

func rotateFloats(v []float64, start int) []float64 {
	return append(append([]float64(nil), v[start:]...), v[:start]...)
}

func rotateInts(v []int, start int) []int {
	return append(append([]int(nil), v[start:]...), v[:start]...)
}

func subsample(v []float64, stride int) []float64 {
	out := make([]float64, 0, len(v)/stride+1)
	for i := 0; i < len(v); i += stride {
		out = append(out, v[i])
	}
	return out
}

func subsampleInts(v []int, stride int) []int {
	out := make([]int, 0, len(v)/stride+1)
	for i := 0; i < len(v); i += stride {
		out = append(out, v[i])
	}
	return out
}

// Len returns the number of spectra
func (a *Annulus) Len() int { return len(a.Theta) }

// MeanRadius returns the mean radius of the samples in arcsec
func (a *Annulus) MeanRadius() float64 {
	if len(a.R) == 0 {
		return math.NaN()
	}
	return floats.Sum(a.R) / float64(len(a.R))
}

// ChannelWidth returns the mean channel width of the velocity axis in m/s
func (a *Annulus) ChannelWidth() float64 {
	n := len(a.Velax)
	if n < 2 {
		return math.NaN()
	}
	return (a.Velax[n-1] - a.Velax[0]) / float64(n-1)
}

// LineOfSight returns the projected rotation vrot*cos(theta) of every sample.
func (a *Annulus) LineOfSight(vrot float64) []float64 {
	out := make([]float64, len(a.Theta))
	for i, t := range a.Theta {
		out[i] = vrot * math.Cos(t)
	}
	return out
}
