package stacking

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"gofish/internal/models"
)

// RadialSampling returns radial bin edges and centres in arcsec.
//
// Exactly one of rbins (edges) and rvals (centres) may be given. Centres are
// turned into edges half a bin either side; a single centre uses a bin an
// eighth of a beam wide on each side. With neither, edges run from zero to
// the largest x offset in steps of dr (a quarter beam when dr is zero),
// including the final edge when it falls on the axis extent.
func (s *Stacker) RadialSampling(rbins, rvals []float64, dr float64) (edges, centres []float64, err error) {
	return RadialSampling(rbins, rvals, dr, s.cube.Beam().Major, s.cube.MaxRadius())
}

// RadialSampling is the cube-independent form of Stacker.RadialSampling:
// bmaj is the beam major axis and xmax the radial extent in arcsec.
func RadialSampling(rbins, rvals []float64, dr, bmaj, xmax float64) (edges, centres []float64, err error) {
	if rbins != nil && rvals != nil {
		return nil, nil, fmt.Errorf("%w: specify only bin edges or bin centres, not both", models.ErrConfiguration)
	}

	switch {
	case rvals != nil:
		if len(rvals) == 0 {
			return nil, nil, fmt.Errorf("%w: no bin centres given", models.ErrConfiguration)
		}
		half := 0.125 * bmaj
		if len(rvals) > 1 {
			half = 0.5 * (rvals[1] - rvals[0])
		}
		edges = make([]float64, len(rvals)+1)
		floats.Span(edges, rvals[0]-half, rvals[len(rvals)-1]+half)
	case rbins != nil:
		edges = append([]float64(nil), rbins...)
	default:
		if dr <= 0 {
			dr = 0.25 * bmaj
		}
		if !(dr > 0) || !(xmax > 0) {
			return nil, nil, fmt.Errorf("%w: cannot sample [0, %g] in steps of %g", models.ErrConfiguration, xmax, dr)
		}
		n := int(math.Floor(xmax/dr + 1e-9))
		edges = make([]float64, n+1)
		for i := range edges {
			edges[i] = float64(i) * dr
		}
	}

	if len(edges) < 2 {
		return nil, nil, fmt.Errorf("%w: need at least two bin edges, got %d", models.ErrConfiguration, len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return nil, nil, fmt.Errorf("%w: bin edges must be strictly increasing", models.ErrConfiguration)
		}
	}
	return edges, binCentres(edges), nil
}

func binCentres(edges []float64) []float64 {
	c := make([]float64, len(edges)-1)
	for i := range c {
		c[i] = 0.5 * (edges[i] + edges[i+1])
	}
	return c
}

// clipEdges keeps the edges inside [rmin, rmax], following the bounds of
// the caller when they are set.
func clipEdges(edges []float64, rmin, rmax *float64) []float64 {
	a, b := 0, len(edges)
	if rmin != nil && *rmin > edges[0] {
		for a < len(edges) && edges[a] < *rmin {
			a++
		}
	}
	if rmax != nil && *rmax < edges[len(edges)-1] {
		b = a
		for b < len(edges) && edges[b] <= *rmax {
			b++
		}
	}
	return edges[a:b]
}
