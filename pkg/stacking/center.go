package stacking

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"

	"gofish/internal/models"
)

// CenterOptions configures FindCenter.
type CenterOptions struct {
	// DX, DY are the largest offsets searched in arcsec. Zero uses the beam
	// major axis.
	DX, DY float64

	// NX, NY are the number of trial centres along each axis. Zero gives
	// roughly pixel spacing.
	NX, NY int

	// Mask selects the signal channels of the stacked spectrum. When nil the
	// channels between VMin and VMax (m/s) are used, which default to the
	// 40th and 60th percentiles of the velocity axis.
	Mask       []bool
	VMin, VMax *float64

	// Spectrum is "avg" for average or "int" for integrated spectra
	Spectrum string

	// SNR is "peak" to use the maximum or "int" for the integrated signal
	SNR string
}

// CenterSearch is the result of FindCenter. SNR is row-major over
// (Y0s, X0s) and NaN where no spectrum could be stacked.
type CenterSearch struct {
	X0s, Y0s []float64
	SNR      []float64
}

// At returns the SNR for centre (X0s[i], Y0s[j]).
func (c CenterSearch) At(i, j int) float64 { return c.SNR[j*len(c.X0s)+i] }

// Best returns the centre with the largest SNR.
func (c CenterSearch) Best() (x0, y0, snr float64) {
	best := -1
	for k, v := range c.SNR {
		if !math.IsNaN(v) && (best < 0 || v > c.SNR[best]) {
			best = k
		}
	}
	if best < 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	return c.X0s[best%len(c.X0s)], c.Y0s[best/len(c.X0s)], c.SNR[best]
}

type snrFunc func(x, y, dy []float64, mask []bool) float64

// FindCenter searches a grid of source centres around the origin and
// returns the SNR of the stacked spectrum at each. An azimuthally
// symmetric disk gives the sharpest, brightest stacked line when the
// centre is right. The x0 and y0 of opts.Geometry are replaced by the
// trial offsets; every other option is used as given.
func (s *Stacker) FindCenter(copts CenterOptions, opts Options) (CenterSearch, error) {
	var spectrumFn func(*Stacker, Options) (Spectrum, error)
	switch strings.ToLower(copts.Spectrum) {
	case "", "avg":
		spectrumFn = (*Stacker).AverageSpectrum
	case "int":
		spectrumFn = (*Stacker).IntegratedSpectrum
	default:
		return CenterSearch{}, fmt.Errorf("%w: spectrum must be 'avg' or 'int', got %q", models.ErrConfiguration, copts.Spectrum)
	}
	var snr snrFunc
	switch strings.ToLower(copts.SNR) {
	case "", "peak":
		snr = peakSNR
	case "int":
		snr = integratedSNR
	default:
		return CenterSearch{}, fmt.Errorf("%w: SNR must be 'int' or 'peak', got %q", models.ErrConfiguration, copts.SNR)
	}

	c := s.cube
	dx, dy := copts.DX, copts.DY
	if dx <= 0 {
		dx = c.Beam().Major
	}
	if dy <= 0 {
		dy = c.Beam().Major
	}
	nx, ny := copts.NX, copts.NY
	if nx <= 0 {
		nx = max(1, int(2*dx/c.DPix()))
	}
	if ny <= 0 {
		ny = max(1, int(2*dy/c.DPix()))
	}

	opts.Geometry.X0, opts.Geometry.Y0 = 0, 0
	ref, err := spectrumFn(s, opts)
	if err != nil {
		return CenterSearch{}, err
	}
	channels, err := signalChannels(ref.Velax, copts)
	if err != nil {
		return CenterSearch{}, err
	}

	out := CenterSearch{
		X0s: linspace(-dx, dx, nx),
		Y0s: linspace(-dy, dy, ny),
		SNR: make([]float64, nx*ny),
	}
	err = s.parallel(nx*ny, func(k int, w *Stacker) error {
		trial := opts
		trial.Geometry.X0 = out.X0s[k%nx]
		trial.Geometry.Y0 = out.Y0s[k/nx]
		spec, err := spectrumFn(w, trial)
		if errors.Is(err, models.ErrEmptyRegion) {
			out.SNR[k] = math.NaN()
			return nil
		}
		if err != nil {
			return err
		}
		out.SNR[k] = snr(spec.Velax, spec.Flux, spec.Scatter, channels)
		return nil
	})
	if err != nil {
		return CenterSearch{}, err
	}
	return out, nil
}

// signalChannels returns the channel mask used as signal by FindCenter.
func signalChannels(velax []float64, copts CenterOptions) ([]bool, error) {
	if copts.Mask != nil {
		if len(copts.Mask) != len(velax) {
			return nil, fmt.Errorf("%w: channel mask has %d entries, velocity axis %d",
				models.ErrConfiguration, len(copts.Mask), len(velax))
		}
		return copts.Mask, nil
	}
	sorted := append([]float64(nil), velax...)
	sort.Float64s(sorted)
	vmin, vmax := percentile(sorted, 40), percentile(sorted, 60)
	if copts.VMin != nil {
		vmin = *copts.VMin
	}
	if copts.VMax != nil {
		vmax = *copts.VMax
	}
	m := make([]bool, len(velax))
	for i, v := range velax {
		m[i] = v >= vmin && v <= vmax
	}
	return m, nil
}

func signalOnly(y []float64, mask []bool) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		if mask[i] && !math.IsNaN(y[i]) && !math.IsInf(y[i], 0) {
			out[i] = y[i]
		}
	}
	return out
}

// noiseLevel is the mean finite scatter outside the signal channels.
func noiseLevel(dy []float64, mask []bool) float64 {
	var sum float64
	var n int
	for i := range dy {
		if !mask[i] && !math.IsNaN(dy[i]) {
			sum += dy[i]
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func peakSNR(_, y, dy []float64, mask []bool) float64 {
	return floats.Max(signalOnly(y, mask)) / noiseLevel(dy, mask)
}

func integratedSNR(x, y, dy []float64, mask []bool) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	return integrate.Trapezoidal(x, signalOnly(y, mask)) / noiseLevel(dy, mask)
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	return floats.Span(out, lo, hi)
}
