package stacking

import (
	"errors"
	"fmt"
	"math"

	"github.com/sgostarter/i/l"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"gofish/internal/models"
	"gofish/pkg/annulus"
	"gofish/pkg/kinematics"
	"gofish/pkg/mask"
)

// weightJitter breaks exact ties between annulus areas in the weighted mean.
const weightJitter = 1e-20

// Spectrum is a stacked spectrum: velocity axis in m/s, flux and scatter in
// the requested unit.
type Spectrum = annulus.Spectrum

// regionBounds resolves the radial extent of the stacked region.
func (s *Stacker) regionBounds(opts Options) (rmin, rmax float64, err error) {
	if opts.RMin == nil || opts.RMax == nil {
		edges, _, err := s.RadialSampling(nil, nil, opts.DR)
		if err != nil {
			return 0, 0, err
		}
		rmin, rmax = edges[0], edges[len(edges)-1]
	}
	if opts.RMin != nil {
		rmin = *opts.RMin
	}
	if opts.RMax != nil {
		rmax = *opts.RMax
	}
	if !(rmin < rmax) {
		return 0, 0, fmt.Errorf("%w: r_min (%g) must be smaller than r_max (%g)", models.ErrConfiguration, rmin, rmax)
	}
	return rmin, rmax, nil
}

// binWidth returns the default width of the stacking annuli.
func (s *Stacker) binWidth(dr float64) float64 {
	if dr > 0 {
		return dr
	}
	c := s.cube
	if c.Beam().IsPixel(c.DPix()) {
		return 2 * c.DPix()
	}
	return c.Beam().Major / 4
}

// AverageSpectrum returns the azimuthally averaged, Keplerian-shifted
// spectrum of the region. The region is split into annuli of width DR, each
// deprojected at the Keplerian velocity of its centre, and the annuli are
// averaged weighted by their area.
//
// Non-finite flux and scatter are replaced by zero before averaging. Empty
// annuli are skipped with a warning when SkipEmptyAnnuli is set.
func (s *Stacker) AverageSpectrum(opts Options) (Spectrum, error) {
	c := s.cube
	if err := c.RequireSpectral(); err != nil {
		return Spectrum{}, err
	}
	unit, _, err := ParseUnit(opts.Unit)
	if err != nil {
		return Spectrum{}, err
	}
	if unit != "jy/beam" && unit != "mjy/beam" && unit != "k" && unit != "mk" {
		return Spectrum{}, fmt.Errorf("%w: average spectra are per beam, got %q", models.ErrConfiguration, opts.Unit)
	}

	rmin, rmax, err := s.regionBounds(opts)
	if err != nil {
		return Spectrum{}, err
	}
	dr := s.binWidth(opts.DR)
	nbins := max(1, int(math.Floor((rmax-rmin)/dr)))
	rbins := make([]float64, nbins+1)
	floats.Span(rbins, rmin, rmax)
	rvals := binCentres(rbins)
	vkep := kinematics.Keplerian(rvals, opts.kinematics())

	if opts.Resample.Width > 0 && opts.Resample.Width < 1 {
		s.logger.WithFields(l.StringField("width", fmt.Sprint(opts.Resample.Width))).
			Warn("resampled channels are narrower than 1 m/s")
	}

	var spectra, scatter [][]float64
	var weights []float64
	var velax []float64
	var last *annulus.Annulus
	for i := range rvals {
		a, err := annulus.Extract(c, opts.annulusRequest(rbins[i], rbins[i+1], s.rng))
		if err != nil {
			if !errors.Is(err, models.ErrEmptyRegion) {
				return Spectrum{}, err
			}
			if !opts.SkipEmptyAnnuli {
				return Spectrum{}, fmt.Errorf("no pixels in the mask between %.2f and %.2f arcsec: %w",
					rbins[i], rbins[i+1], err)
			}
			s.logger.WithFields(l.StringField("rMin", fmt.Sprintf("%.2f", rbins[i])),
				l.StringField("rMax", fmt.Sprintf("%.2f", rbins[i+1]))).
				Warn("no pixels in the mask, skipping annulus")
			continue
		}

		spec, err := s.deprojector(a).DeprojectedSpectrum(vkep[i], opts.Resample)
		if err != nil {
			return Spectrum{}, err
		}
		if velax != nil && len(spec.Velax) != len(velax) {
			return Spectrum{}, fmt.Errorf("%w: annulus %d has %d channels, expected %d",
				models.ErrInternalConsistency, i, len(spec.Velax), len(velax))
		}
		velax = spec.Velax
		last = a
		spectra = append(spectra, zeroNonFinite(spec.Flux))
		scatter = append(scatter, zeroNonFinite(spec.Scatter))
		weights = append(weights, math.Pi*(rbins[i+1]*rbins[i+1]-rbins[i]*rbins[i])+weightJitter*s.rng.NormFloat64())
	}

	if len(spectra) == 0 {
		return Spectrum{}, fmt.Errorf("%w: every annulus between %.2f and %.2f arcsec is empty", models.ErrEmptyRegion, rmin, rmax)
	}
	if len(weights) != len(spectra) {
		return Spectrum{}, fmt.Errorf("%w: %d weights for %d spectra", models.ErrInternalConsistency, len(weights), len(spectra))
	}

	out := Spectrum{
		Velax:   velax,
		Flux:    weightedColumnMean(spectra, weights),
		Scatter: weightedColumnMean(scatter, weights),
	}

	if !opts.AssumeCorrelated {
		n := float64(last.Len()) * meanDiff(velax) / c.Chan()
		if opts.BeamSpacing <= 0 {
			n *= c.PixelArea() / c.BeamArea()
		}
		floats.Scale(1/math.Sqrt(n), out.Scatter)
	}

	s.convertUnit(&out, unit)
	return out, nil
}

// convertUnit converts a spectrum in Jy/beam to the requested per-beam unit.
func (s *Stacker) convertUnit(spec *Spectrum, unit string) {
	if unit == "k" || unit == "mk" {
		spec.Flux = s.cube.JyBeamToTbRJ(spec.Flux, math.NaN())
		spec.Scatter = s.cube.JyBeamToTbRJ(spec.Scatter, math.NaN())
	}
	if unit[0] == 'm' {
		floats.Scale(1e3, spec.Flux)
		floats.Scale(1e3, spec.Scatter)
	}
}

// IntegratedSpectrum returns the average spectrum in Jy/beam multiplied by
// the number of beams in the region, giving the total flux in Jy. A Unit of
// mJy (or mJy/beam) returns mJy. Temperature units are rejected.
func (s *Stacker) IntegratedSpectrum(opts Options) (Spectrum, error) {
	unit, _, err := ParseUnit(opts.Unit)
	if err != nil {
		return Spectrum{}, err
	}
	scale := 1.0
	switch unit {
	case "jy", "jy/beam":
	case "mjy", "mjy/beam":
		scale = 1e3
	default:
		return Spectrum{}, fmt.Errorf("%w: integrated spectra are in Jy or mJy, got %q", models.ErrConfiguration, opts.Unit)
	}
	opts.Unit = "Jy/beam"

	spec, err := s.AverageSpectrum(opts)
	if err != nil {
		return Spectrum{}, err
	}

	nb, err := s.beamsInRegion(opts)
	if err != nil {
		return Spectrum{}, err
	}
	floats.Scale(nb*scale, spec.Flux)
	floats.Scale(nb*scale, spec.Scatter)
	return spec, nil
}

// beamsInRegion returns the number of beams covered by the region of opts.
func (s *Stacker) beamsInRegion(opts Options) (float64, error) {
	rmin, rmax, err := s.regionBounds(opts)
	if err != nil {
		return 0, err
	}
	b := mask.Bounds{
		RMin:      mask.Float(rmin),
		RMax:      mask.Float(rmax),
		PAMin:     opts.PAMin,
		PAMax:     opts.PAMax,
		ExcludePA: opts.ExcludePA,
		AbsPA:     opts.AbsPA,
	}
	m, err := mask.Get(s.cube.Grid(), opts.Geometry, opts.Projection, b, opts.Frame)
	if err != nil {
		return 0, err
	}
	if opts.Mask != nil {
		if m, err = m.And(opts.Mask); err != nil {
			return 0, err
		}
	}
	return float64(m.Count()) * s.cube.PixelArea() / s.cube.BeamArea(), nil
}

// RadialSpectra holds one stacked spectrum per radial bin.
type RadialSpectra struct {
	R       []float64
	Spectra []Spectrum
}

// Array returns the spectra as a [bin][velax, flux, scatter][channel] array.
func (r RadialSpectra) Array() [][3][]float64 {
	out := make([][3][]float64, len(r.Spectra))
	for i, s := range r.Spectra {
		out[i] = [3][]float64{s.Velax, s.Flux, s.Scatter}
	}
	return out
}

// RadialSpectra stacks a spectrum in every radial bin. Bins come from
// RadialSampling(rbins, rvals, opts.DR) clipped to opts.RMin and opts.RMax.
// Flux units of Jy or mJy give integrated spectra, all others averages.
// Bins are processed concurrently.
func (s *Stacker) RadialSpectra(rbins, rvals []float64, opts Options) (RadialSpectra, error) {
	if err := s.cube.RequireSpectral(); err != nil {
		return RadialSpectra{}, err
	}
	unit, _, err := ParseUnit(opts.Unit)
	if err != nil {
		return RadialSpectra{}, err
	}

	edges, _, err := s.RadialSampling(rbins, rvals, opts.DR)
	if err != nil {
		return RadialSpectra{}, err
	}
	edges = clipEdges(edges, opts.RMin, opts.RMax)
	if len(edges) < 2 {
		return RadialSpectra{}, fmt.Errorf("%w: no radial bins between the requested bounds", models.ErrEmptyRegion)
	}
	centres := binCentres(edges)

	out := RadialSpectra{R: centres, Spectra: make([]Spectrum, len(centres))}
	err = s.parallel(len(centres), func(i int, w *Stacker) error {
		binOpts := opts
		binOpts.RMin = mask.Float(edges[i])
		binOpts.RMax = mask.Float(edges[i+1])

		var spec Spectrum
		var err error
		if unit == "jy" || unit == "mjy" {
			spec, err = w.IntegratedSpectrum(binOpts)
		} else {
			spec, err = w.AverageSpectrum(binOpts)
		}
		out.Spectra[i] = spec
		return err
	})
	if err != nil {
		return RadialSpectra{}, err
	}
	return out, nil
}

func weightedColumnMean(rows [][]float64, weights []float64) []float64 {
	out := make([]float64, len(rows[0]))
	col := make([]float64, len(rows))
	for k := range out {
		for i := range rows {
			col[i] = rows[i][k]
		}
		out[k] = stat.Mean(col, weights)
	}
	return out
}

func zeroNonFinite(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out[i] = x
		}
	}
	return out
}

func meanDiff(v []float64) float64 {
	if len(v) < 2 {
		return math.NaN()
	}
	return (v[len(v)-1] - v[0]) / float64(len(v)-1)
}
