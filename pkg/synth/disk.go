// Package synth builds synthetic line cubes of rotating disks. The cubes
// follow the same geometry and kinematics the stacking code inverts, so they
// serve as fixtures and as demo input for the command line tool.
package synth

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sgostarter/i/l"

	"gofish/internal/models"
	"gofish/pkg/cube"
	"gofish/pkg/geometry"
	"gofish/pkg/kinematics"
)

// Params describes a synthetic disk.
type Params struct {
	// NX, NY and DPix (arcsec) define a pixel-centred grid around the origin
	NX, NY int
	DPix   float64

	// Velax is the velocity axis in m/s. Nil makes a 2D map of the peak.
	Velax []float64

	// Geometry and Projection place the emitting surface on the sky
	Geometry   geometry.Params
	Projection geometry.Options

	// MStar (solar masses) and Dist (pc) set the rotation
	MStar, Dist float64

	// VLSR is the systemic velocity in m/s
	VLSR float64

	// Peak is the line peak at the centre, falling as exp(-r/RC) out to
	// RMax. RC <= 0 keeps the peak flat and RMax <= 0 never truncates.
	Peak, RC, RMax float64

	// LineWidth is the Gaussian line dispersion in m/s
	LineWidth float64

	// Noise is the standard deviation of additive Gaussian noise, drawn
	// from Rand (seeded from 1 when nil).
	Noise float64
	Rand  *rand.Rand

	// Beam, RestFrequency and BUnit are attached to the cube as metadata
	Beam          *models.Beam
	RestFrequency float64
	BUnit         string

	Logger l.Wrapper
}

// DefaultParams returns a 64x64 pixel disk around a solar-mass star at
// 100 pc, inclined by 30 degrees, observed over +/-3 km/s.
func DefaultParams() Params {
	velax := make([]float64, 61)
	for i := range velax {
		velax[i] = -3000 + 100*float64(i)
	}
	return Params{
		NX:         64,
		NY:         64,
		DPix:       0.05,
		Velax:      velax,
		Geometry:   geometry.Params{Inc: 30, PA: 0},
		Projection: geometry.Options{Shadowed: false},
		MStar:      1,
		Dist:       100,
		Peak:       1,
		RC:         0.6,
		RMax:       1.4,
		LineWidth:  150,
		BUnit:      "Jy/beam",
	}
}

// Axis returns n pixel-centred offsets spaced by dpix, running from
// positive to negative like a right ascension axis.
func Axis(n int, dpix float64) []float64 {
	a := make([]float64, n)
	for i := range a {
		a[i] = (float64(n-1)/2 - float64(i)) * dpix
	}
	return a
}

// Disk renders the synthetic disk into a cube.
func Disk(p Params) (*cube.Cube, error) {
	if p.NX <= 0 || p.NY <= 0 || !(p.DPix > 0) {
		return nil, fmt.Errorf("%w: grid %dx%d with pixel %g arcsec", models.ErrConfiguration, p.NX, p.NY, p.DPix)
	}
	if p.Velax != nil && !(p.LineWidth > 0) {
		return nil, fmt.Errorf("%w: line width must be positive, got %g", models.ErrConfiguration, p.LineWidth)
	}

	xaxis := Axis(p.NX, p.DPix)
	yaxis := Axis(p.NY, p.DPix)
	for i := range yaxis {
		yaxis[i] = -yaxis[i]
	}
	grid := geometry.Grid{XAxis: xaxis, YAxis: yaxis}

	coords, err := geometry.DiskCoords(grid, p.Geometry, p.Projection)
	if err != nil {
		return nil, err
	}
	vlos := kinematics.KeplerianField(coords, kinematics.Params{
		MStar:   p.MStar,
		Dist:    p.Dist,
		Inc:     p.Geometry.Inc,
		Surface: p.Geometry.Surface,
	})

	npix := grid.Size()
	peak := make([]float64, npix)
	for i, r := range coords.R {
		peak[i] = p.brightness(r)
	}

	rng := p.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	var data []float64
	if p.Velax == nil {
		data = peak
	} else {
		data = make([]float64, len(p.Velax)*npix)
		for k, v := range p.Velax {
			plane := data[k*npix : (k+1)*npix]
			for i := range plane {
				if peak[i] == 0 {
					continue
				}
				dv := (v - p.VLSR - vlos[i]) / p.LineWidth
				plane[i] = peak[i] * math.Exp(-0.5*dv*dv)
			}
		}
	}
	if p.Noise > 0 {
		for i := range data {
			data[i] += p.Noise * rng.NormFloat64()
		}
	}

	return cube.New(data, xaxis, yaxis, p.Velax, cube.Options{
		Beam:          p.Beam,
		RestFrequency: p.RestFrequency,
		BUnit:         p.BUnit,
		Logger:        p.Logger,
	})
}

func (p Params) brightness(r float64) float64 {
	if math.IsNaN(r) || (p.RMax > 0 && r > p.RMax) {
		return 0
	}
	if p.RC <= 0 {
		return p.Peak
	}
	return p.Peak * math.Exp(-r/p.RC)
}
