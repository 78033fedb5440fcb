package annulus

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"gofish/internal/models"
)

// Spectrum is a deprojected spectrum on a regular velocity grid. Bins that
// received no samples are NaN.
type Spectrum struct {
	Velax   []float64
	Flux    []float64
	Scatter []float64
}

// Deprojector shifts the spectra of an annulus by a rotation velocity and
// stacks them onto a common velocity grid.
type Deprojector interface {
	DeprojectedSpectrum(vrot float64, resample models.Resample) (Spectrum, error)
}

var _ Deprojector = (*Annulus)(nil)

// DeprojectedSpectrum removes the projected rotation vrot*cos(theta) from
// every spectrum and bins the shifted samples onto a grid spanning the
// native velocity axis. The flux of a bin is the mean of its samples and the
// scatter their population standard deviation.
func (a *Annulus) DeprojectedSpectrum(vrot float64, resample models.Resample) (Spectrum, error) {
	edges, err := a.binEdges(resample)
	if err != nil {
		return Spectrum{}, err
	}
	nbins := len(edges) - 1
	lo, hi := edges[0], edges[nbins]
	width := (hi - lo) / float64(nbins)

	bins := make([][]float64, nbins)
	vlos := a.LineOfSight(vrot)
	rows, cols := a.Spectra.Dims()
	for i := 0; i < rows; i++ {
		for k := 0; k < cols; k++ {
			v := a.Velax[k] - vlos[i]
			if v < lo || v > hi {
				continue
			}
			b := int(math.Floor((v - lo) / width))
			if b >= nbins {
				b = nbins - 1
			}
			bins[b] = append(bins[b], a.Spectra.At(i, k))
		}
	}

	s := Spectrum{
		Velax:   make([]float64, nbins),
		Flux:    make([]float64, nbins),
		Scatter: make([]float64, nbins),
	}
	for b := range bins {
		s.Velax[b] = 0.5 * (edges[b] + edges[b+1])
		if len(bins[b]) == 0 {
			s.Flux[b] = math.NaN()
			s.Scatter[b] = math.NaN()
			continue
		}
		s.Flux[b], s.Scatter[b] = stat.PopMeanStdDev(bins[b], nil)
	}
	return s, nil
}

// binEdges returns the regular bin edges for the resample policy. An
// integer factor splits each native channel into that many bins; an
// explicit width is laid out from the blue edge and centred on the band.
func (a *Annulus) binEdges(resample models.Resample) ([]float64, error) {
	chanWidth := a.ChannelWidth()
	if math.IsNaN(chanWidth) {
		return nil, fmt.Errorf("%w: deprojection needs at least two channels", models.ErrConfiguration)
	}
	width, err := resample.ChannelWidth(chanWidth)
	if err != nil {
		return nil, err
	}
	if !(width > 0) {
		return nil, fmt.Errorf("%w: resampled channel width must be positive, got %g", models.ErrConfiguration, width)
	}

	lo := a.Velax[0] - 0.5*chanWidth
	hi := a.Velax[len(a.Velax)-1] + 0.5*chanWidth

	if resample.Width <= 0 {
		n := len(a.Velax) * max(resample.Factor, 1)
		edges := make([]float64, n+1)
		floats.Span(edges, lo, hi)
		return edges, nil
	}

	n := int(math.Ceil((hi - lo) / width))
	if n < 1 {
		return nil, fmt.Errorf("%w: channel width %g m/s exceeds the band", models.ErrConfiguration, width)
	}
	edges := make([]float64, n)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	shift := 0.5 * (hi - edges[n-1])
	for i := range edges {
		edges[i] += shift
	}
	if n < 2 {
		return nil, fmt.Errorf("%w: channel width %g m/s leaves no complete bin", models.ErrConfiguration, width)
	}
	return edges, nil
}
