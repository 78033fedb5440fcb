// Package kinematics holds the velocity models used to shift spectra:
// projected Keplerian rotation above an elevated emission surface, and the
// planet-driven spiral wakes traced in the same disk frame.
package kinematics

import (
	"math"

	"gofish/pkg/geometry"
)

// Physical constants in SI units.
const (
	GravitationalConstant = 6.67430e-11
	AstronomicalUnit      = 1.495978707e11
	SolarMass             = 1.988e30
	ProtonMass            = 1.67262192369e-27
	Boltzmann             = 1.380649e-23
)

// Params describes the central star and the viewing geometry of the
// emitting surface.
type Params struct {
	// MStar is the stellar mass in solar masses
	MStar float64

	// Dist is the source distance in parsec, scaling arcsec to au
	Dist float64

	// Inc is the inclination in degrees. Only |sin(inc)| is used.
	Inc float64

	// Surface is the emission surface. Nil means the midplane.
	Surface geometry.HeightModel
}

// KeplerianAt returns the projected line-of-sight Keplerian velocity in m/s
// at radius r in arcsec:
//
//	v = sqrt(G M r^2 / hypot(r, z)^3) * |sin(inc)|
//
// with r and z converted to metres through the source distance.
func KeplerianAt(r float64, p Params) float64 {
	z := 0.0
	if p.Surface != nil {
		z = p.Surface.Height(r)
	}
	rm := r * p.Dist * AstronomicalUnit
	zm := z * p.Dist * AstronomicalUnit
	v := GravitationalConstant * p.MStar * SolarMass * rm * rm
	v = math.Sqrt(v / math.Pow(math.Hypot(rm, zm), 3))
	return v * math.Abs(math.Sin(p.Inc*math.Pi/180))
}

// Keplerian evaluates KeplerianAt at every radius in r.
func Keplerian(r []float64, p Params) []float64 {
	out := make([]float64, len(r))
	for i, v := range r {
		out[i] = KeplerianAt(v, p)
	}
	return out
}

// KeplerianField returns the line-of-sight velocity of every pixel of a
// coordinate field: the Keplerian speed at the pixel radius projected by
// cos(theta).
func KeplerianField(coords geometry.Coords, p Params) []float64 {
	out := make([]float64, len(coords.R))
	for i, r := range coords.R {
		out[i] = KeplerianAt(r, p) * math.Cos(coords.Theta[i])
	}
	return out
}
