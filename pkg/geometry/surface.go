package geometry

import "math"

// HeightModel describes the emission surface: the height z in arcsec above
// the midplane at cylindrical radius r in arcsec.
type HeightModel interface {
	Height(r float64) float64
}

// PowerLaw is the double power-law emission surface
//
//	z(r) = Z0 * r^Psi + Z1 * r^Phi
//
// with r and z in arcsec. The result is clamped to the sign of Z0, so a
// surface with Z0 >= 0 never dips below the midplane and one with Z0 < 0
// (the far side of the disk) never rises above it.
type PowerLaw struct {
	Z0, Psi float64
	Z1, Phi float64
}

// Height implements HeightModel
func (p PowerLaw) Height(r float64) float64 {
	z := p.Z0*math.Pow(r, p.Psi) + p.Z1*math.Pow(r, p.Phi)
	return clampSign(z, p.Z0 < 0)
}

// Conical returns the surface z = z0 * r^psi used for the vast majority of
// disks (psi = 1 is a cone).
func Conical(z0, psi float64) PowerLaw {
	return PowerLaw{Z0: z0, Psi: psi, Phi: 1}
}

// SurfaceFunc wraps an arbitrary z(r). Its output is clamped to be
// non-negative, or non-positive when Negative is set.
type SurfaceFunc struct {
	F        func(r float64) float64
	Negative bool
}

// Height implements HeightModel
func (s SurfaceFunc) Height(r float64) float64 {
	if s.F == nil {
		return 0
	}
	return clampSign(s.F(r), s.Negative)
}

func clampSign(z float64, negative bool) float64 {
	if math.IsNaN(z) {
		return z
	}
	if negative {
		return math.Min(z, 0)
	}
	return math.Max(z, 0)
}

// flat is the razor-thin midplane
type flat struct{}

func (flat) Height(float64) float64 { return 0 }
