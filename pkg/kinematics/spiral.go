package kinematics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"

	"gofish/internal/models"
)

// SpiralParams describes a planet-driven spiral wake (Bae & Zhu 2018).
// Use a large M to recover the linear spirals of Rafikov (2002).
type SpiralParams struct {
	// RP is the orbital radius of the planet in arcsec
	RP float64

	// TP is the polar angle of the planet from the red-shifted major axis in radians
	TP float64

	// M is the azimuthal wavenumber. Zero picks the dominant mode from the
	// disk aspect ratio at the planet.
	M float64

	// RMin, RMax bound the radial grid in arcsec; Step is its spacing
	RMin, RMax, Step float64

	// MStar in solar masses and Dist in parsec set the rotation profile
	MStar, Dist float64

	// T0 is the gas temperature in K at 1 arcsec, Tq the power-law exponent
	T0, Tq float64

	// Clockwise sets the winding direction
	Clockwise bool
}

// DefaultSpiral returns the spiral of a planet at (rp, tp) traced out to
// rmax on a grid one tenth of a pixel fine, around a solar-mass star at
// 100 pc with a 20 K, r^-0.5 temperature profile.
func DefaultSpiral(rp, tp, rmax, dpix float64) SpiralParams {
	return SpiralParams{
		RP:        rp,
		TP:        tp,
		RMin:      0.1,
		RMax:      rmax,
		Step:      0.1 * dpix,
		MStar:     1,
		Dist:      100,
		T0:        20,
		Tq:        -0.5,
		Clockwise: true,
	}
}

// Spiral returns the polar coordinates (r in arcsec, phi in radians) of the
// spiral wake. phi is NaN inside the wave-excitation region around the planet.
func Spiral(sp SpiralParams) (r, phi []float64, err error) {
	if !(sp.Step > 0) || !(sp.RMax > sp.RMin) || !(sp.RP > 0) {
		return nil, nil, fmt.Errorf("%w: spiral needs 0 < step, r_min < r_max and r_p > 0", models.ErrConfiguration)
	}

	for v := sp.RMin; v < sp.RMax; v += sp.Step {
		r = append(r, v)
	}
	n := len(r)

	scale := sp.Dist * AstronomicalUnit
	omega := make([]float64, n)
	cs := make([]float64, n)
	x := make([]float64, n)
	for i, v := range r {
		x[i] = v * scale
		omega[i] = math.Sqrt(GravitationalConstant * sp.MStar * SolarMass / (x[i] * x[i] * x[i]))
		tgas := sp.T0 * math.Pow(v, sp.Tq)
		cs[i] = math.Sqrt(Boltzmann * tgas / 2.37 / ProtonMass)
	}

	m := sp.M
	if m <= 0 {
		ip := closest(r, sp.RP)
		h := cs[ip] / omega[ip]
		m = 0.5 * sp.RP * scale / h
	}
	m = math.Round(m)
	if m < 1 {
		return nil, nil, fmt.Errorf("%w: spiral wavenumber must be at least 1, got %g", models.ErrConfiguration, m)
	}

	rpm := sp.RP * scale
	rmn := rpm * math.Pow(1-1/m, 2./3.)
	rmp := rpm * math.Pow(1+1/m, 2./3.)

	y := make([]float64, n)
	for i, v := range r {
		k := 1 - math.Pow(v/sp.RP, 1.5)
		y[i] = omega[i] * math.Sqrt(math.Abs(k*k-1/(m*m))) / cs[i]
	}
	in := closest(x, rmn)
	ip := closest(x, rmp)

	sense := 1.0
	if sp.Clockwise {
		sense = -1
	}

	phi = make([]float64, n)
	for i := range x {
		phi[i] = sp.TP - sign(r[i]-sp.RP)*math.Pi/4/m
		switch {
		case x[i] <= rmn:
			phi[i] += sense * trapezoid(x, y, i, in)
		case x[i] >= rmp:
			phi[i] -= sense * trapezoid(x, y, ip, i)
		default:
			phi[i] = math.NaN()
		}
	}
	return r, phi, nil
}

// SpiralCartesian converts spiral polar coordinates into disk-frame (x, y).
func SpiralCartesian(r, phi []float64) (x, y []float64) {
	x = make([]float64, len(r))
	y = make([]float64, len(r))
	for i := range r {
		s, c := math.Sincos(phi[i])
		x[i], y[i] = r[i]*c, r[i]*s
	}
	return x, y
}

// trapezoid integrates f over x[lo..hi] inclusive, zero for an empty range.
func trapezoid(x, f []float64, lo, hi int) float64 {
	if hi <= lo {
		return 0
	}
	return integrate.Trapezoidal(x[lo:hi+1], f[lo:hi+1])
}

func closest(xs []float64, v float64) int {
	best := 0
	for i := range xs {
		if math.Abs(xs[i]-v) < math.Abs(xs[best]-v) {
			best = i
		}
	}
	return best
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
