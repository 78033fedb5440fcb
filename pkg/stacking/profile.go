package stacking

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"

	"gofish/internal/models"
	"gofish/pkg/geometry"
	"gofish/pkg/mask"
)

// Profile is a radial profile. Sigma is the symmetric uncertainty, or the
// lower one when SigmaUpper is set.
type Profile struct {
	R          []float64
	Value      []float64
	Sigma      []float64
	SigmaUpper []float64
}

// RadialProfile collapses the radial spectra into one value per bin.
//
// With a velocity part in unit ("Jy/beam m/s", "K km/s") each spectrum is
// integrated over veloRange with the trapezoid rule and the uncertainty is
// the channel-width weighted quadrature sum of the scatter. Otherwise the
// value is the spectrum peak and the uncertainty the scatter at the peak.
// veloRange follows ParseChannelRange and is resolved against the stacked
// velocity axis. A 2D cube falls back to RadialProfile2D and ignores unit.
func (s *Stacker) RadialProfile(rbins, rvals []float64, unit string, veloRange []interface{}, opts Options) (Profile, error) {
	if s.cube.Is2D() {
		s.logger.Warn("cube has no velocity axis, using plain azimuthal averaging and ignoring the unit")
		return s.RadialProfile2D(rbins, rvals, opts, false)
	}

	flux, velocity, err := ParseUnit(unit)
	if err != nil {
		return Profile{}, err
	}
	opts.Unit = flux
	spectra, err := s.RadialSpectra(rbins, rvals, opts)
	if err != nil {
		return Profile{}, err
	}

	scale := 1.0
	if velocity == "km/s" {
		scale = 1e-3
	}

	p := Profile{
		R:     spectra.R,
		Value: make([]float64, len(spectra.R)),
		Sigma: make([]float64, len(spectra.R)),
	}
	for i, spec := range spectra.Spectra {
		if velocity == "" {
			k := floats.MaxIdx(spec.Flux)
			p.Value[i], p.Sigma[i] = spec.Flux[k], spec.Scatter[k]
			continue
		}
		lo, hi, err := ParseChannelRange(spec.Velax, veloRange)
		if err != nil {
			return Profile{}, err
		}
		p.Value[i], p.Sigma[i] = integrateSpectrum(spec, lo, hi, scale)
	}
	return p, nil
}

// integrateSpectrum integrates channels [lo, hi] of spec over velocity
// scaled by scale.
func integrateSpectrum(spec Spectrum, lo, hi int, scale float64) (value, sigma float64) {
	if hi > lo {
		v := make([]float64, hi-lo+1)
		for k := range v {
			v[k] = spec.Velax[lo+k] * scale
		}
		value = integrate.Trapezoidal(v, spec.Flux[lo:hi+1])
	}
	dv := math.Abs(meanDiff(spec.Velax)) * scale
	var sq float64
	for _, e := range spec.Scatter[lo : hi+1] {
		sq += e * e
	}
	return value, math.Sqrt(sq) * dv
}

// RadialProfile2D azimuthally averages a 2D map (moment map, peak map) in
// the radial bins. With percentiles the value is the median and the
// uncertainties the distances to the 16th and 84th percentiles, otherwise
// the mean and population standard deviation. When AssumeCorrelated is set
// the uncertainties are divided by the square root of the beams around each
// annulus. Bins without pixels are NaN.
func (s *Stacker) RadialProfile2D(rbins, rvals []float64, opts Options, percentiles bool) (Profile, error) {
	c := s.cube
	if !c.Is2D() {
		return Profile{}, fmt.Errorf("%w: azimuthal averaging needs a 2D map", models.ErrConfiguration)
	}

	edges, _, err := s.RadialSampling(rbins, rvals, opts.DR)
	if err != nil {
		return Profile{}, err
	}
	edges = clipEdges(edges, opts.RMin, opts.RMax)
	if len(edges) < 2 {
		return Profile{}, fmt.Errorf("%w: no radial bins between the requested bounds", models.ErrEmptyRegion)
	}
	centres := binCentres(edges)

	selected, err := s.profileMask(edges, opts)
	if err != nil {
		return Profile{}, err
	}
	coords, err := geometry.DiskCoords(c.Grid(), opts.Geometry, opts.Projection)
	if err != nil {
		return Profile{}, err
	}

	samples := make([][]float64, len(centres))
	data := c.Data()
	for idx, ok := range selected.Pixels {
		if !ok {
			continue
		}
		if b := digitize(edges, coords.R[idx]); b >= 0 {
			samples[b] = append(samples[b], data[idx])
		}
	}

	p := Profile{
		R:     centres,
		Value: make([]float64, len(centres)),
		Sigma: make([]float64, len(centres)),
	}
	if percentiles {
		p.SigmaUpper = make([]float64, len(centres))
	}
	for b, v := range samples {
		nbeams := 1.0
		if opts.AssumeCorrelated {
			nbeams = 2 * math.Pi * centres[b] / c.Beam().Major
		}
		norm := 1 / math.Sqrt(nbeams)

		if len(v) == 0 {
			p.Value[b], p.Sigma[b] = math.NaN(), math.NaN()
			if percentiles {
				p.SigmaUpper[b] = math.NaN()
			}
			continue
		}
		if percentiles {
			sort.Float64s(v)
			q16, q50, q84 := percentile(v, 16), percentile(v, 50), percentile(v, 84)
			p.Value[b] = q50
			p.Sigma[b] = (q50 - q16) * norm
			p.SigmaUpper[b] = (q84 - q50) * norm
			continue
		}
		mean, std := stat.PopMeanStdDev(v, nil)
		p.Value[b], p.Sigma[b] = mean, std*norm
	}
	return p, nil
}

// profileMask selects the pixels within the outer edges and the azimuthal
// bounds of opts, restricted by the caller mask.
func (s *Stacker) profileMask(edges []float64, opts Options) (mask.Mask, error) {
	b := mask.Bounds{
		RMin:      mask.Float(edges[0]),
		RMax:      mask.Float(edges[len(edges)-1]),
		PAMin:     opts.PAMin,
		PAMax:     opts.PAMax,
		ExcludePA: opts.ExcludePA,
		AbsPA:     opts.AbsPA,
	}
	m, err := mask.Get(s.cube.Grid(), opts.Geometry, opts.Projection, b, opts.Frame)
	if err != nil {
		return mask.Mask{}, err
	}
	if opts.Mask != nil {
		return m.And(opts.Mask)
	}
	return m, nil
}

// digitize returns the bin b with edges[b] <= r < edges[b+1], or -1.
func digitize(edges []float64, r float64) int {
	if math.IsNaN(r) || r < edges[0] || r >= edges[len(edges)-1] {
		return -1
	}
	return sort.SearchFloat64s(edges, math.Nextafter(r, math.Inf(1))) - 1
}

// percentile returns the q-th percentile of sorted v, interpolating
// linearly between the closest ranks.
func percentile(sorted []float64, q float64) float64 {
	pos := q / 100 * float64(len(sorted)-1)
	i := int(math.Floor(pos))
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(i)
	return sorted[i] + frac*(sorted[i+1]-sorted[i])
}

// BackgroundResidual returns the 2D map minus its azimuthally averaged
// background, or the background alone. The background profile is built with
// RadialProfile2D using the bounds in opts and is linearly interpolated onto
// the disk radius of every pixel. Pixels outside the profile are NaN.
func (s *Stacker) BackgroundResidual(rbins, rvals []float64, opts Options, backgroundOnly bool) ([]float64, error) {
	c := s.cube
	if !c.Is2D() {
		return nil, fmt.Errorf("%w: cannot azimuthally average a 3D cube", models.ErrConfiguration)
	}
	p, err := s.RadialProfile2D(rbins, rvals, opts, false)
	if err != nil {
		return nil, err
	}

	var xs, ys []float64
	for i := range p.R {
		if !math.IsNaN(p.Value[i]) {
			xs = append(xs, p.R[i])
			ys = append(ys, p.Value[i])
		}
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("%w: background profile has %d populated bins, need 2", models.ErrEmptyRegion, len(xs))
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("%w: background profile: %v", models.ErrInternalConsistency, err)
	}

	coords, err := geometry.DiskCoords(c.Grid(), opts.Geometry, opts.Projection)
	if err != nil {
		return nil, err
	}
	lo, hi := xs[0], xs[len(xs)-1]
	out := make([]float64, len(coords.R))
	data := c.Data()
	for i, r := range coords.R {
		bg := math.NaN()
		if r >= lo && r <= hi {
			bg = pl.Predict(r)
		}
		if backgroundOnly {
			out[i] = bg
		} else {
			out[i] = data[i] - bg
		}
	}
	return out, nil
}
