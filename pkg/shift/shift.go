// Package shift builds Keplerian-shifted cubes: every spectrum is moved by
// the projected rotation at its pixel so that the line from the whole disk
// sits at the systemic velocity. The result is useful for moment maps over a
// fixed velocity window.
package shift

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/sgostarter/i/l"
	"gonum.org/v1/gonum/interp"

	"gofish/internal/models"
	"gofish/pkg/cube"
	"gofish/pkg/geometry"
	"gofish/pkg/kinematics"
)

// Params holds the disk model used to shift the cube.
type Params struct {
	// Geometry and Projection give the disk coordinates of each pixel
	Geometry   geometry.Params
	Projection geometry.Options

	// MStar in solar masses and Dist in pc set the Keplerian rotation
	MStar float64
	Dist  float64

	// RMin, RMax limit the shifted pixels in arcsec. Nil means 0 and the
	// largest disk radius.
	RMin, RMax *float64
}

// Options controls how the shift is executed.
type Options struct {
	// NumWorkers is the number of goroutines sharing the rows. <= 0 uses
	// all CPUs.
	NumWorkers int

	// Logger reports progress. Nil discards it.
	Logger l.Wrapper
}

// Result is a shifted cube on the velocity axis of the input. Samples are
// channel-major like cube.Cube and NaN outside the shifted region or where
// the shifted spectrum does not cover a channel.
type Result struct {
	Data  []float64
	Velax []float64
	NX    int
	NY    int
}

// Channel returns the samples of channel i as a row-major view.
func (r *Result) Channel(i int) []float64 {
	plane := r.NX * r.NY
	return r.Data[i*plane : (i+1)*plane]
}

// Spectrum returns a copy of the shifted spectrum at pixel (y, x).
func (r *Result) Spectrum(y, x int) []float64 {
	plane := r.NX * r.NY
	out := make([]float64, len(r.Velax))
	for k := range out {
		out[k] = r.Data[k*plane+y*r.NX+x]
	}
	return out
}

// Build shifts every spectrum of c by minus the projected Keplerian velocity
// at its pixel and resamples it onto the native velocity axis with linear
// interpolation. Pixels are independent and are processed by NumWorkers
// goroutines, each owning a contiguous block of rows.
func Build(c *cube.Cube, p Params, opts Options) (*Result, error) {
	if err := c.RequireSpectral(); err != nil {
		return nil, err
	}
	if c.NChan() < 2 {
		return nil, fmt.Errorf("%w: shifting needs at least two channels", models.ErrConfiguration)
	}

	logger := opts.Logger
	if logger == nil {
		logger = l.NewNopLoggerWrapper()
	}
	logger = logger.WithFields(l.StringField(l.ClsKey, "shift"))

	coords, err := geometry.DiskCoords(c.Grid(), p.Geometry, p.Projection)
	if err != nil {
		return nil, err
	}
	vlos := kinematics.KeplerianField(coords, kinematics.Params{
		MStar:   p.MStar,
		Dist:    p.Dist,
		Inc:     p.Geometry.Inc,
		Surface: p.Geometry.Surface,
	})

	rmin, rmax := 0.0, math.Inf(-1)
	for _, r := range coords.R {
		if !math.IsNaN(r) {
			rmax = math.Max(rmax, r)
		}
	}
	if p.RMin != nil {
		rmin = *p.RMin
	}
	if p.RMax != nil {
		rmax = *p.RMax
	}
	if !(rmin < rmax) {
		return nil, fmt.Errorf("%w: r_min (%g) must be smaller than r_max (%g)", models.ErrConfiguration, rmin, rmax)
	}

	nx, ny, nchan := c.NX(), c.NY(), c.NChan()
	plane := nx * ny
	out := &Result{
		Data:  make([]float64, nchan*plane),
		Velax: append([]float64(nil), c.Velax()...),
		NX:    nx,
		NY:    ny,
	}
	for i := range out.Data {
		out.Data[i] = math.NaN()
	}

	numWorkers := opts.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	rowsPerWorker := (ny + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	errs := make([]error, numWorkers)
	shifted := make([]int, numWorkers)
	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := min((w+1)*rowsPerWorker, ny)
		if startRow >= endRow {
			continue
		}

		wg.Add(1)
		go func(workerID, startRow, endRow int) {
			defer wg.Done()

			velax := c.Velax()
			src := make([]float64, nchan)
			spec := make([]float64, nchan)
			for y := startRow; y < endRow; y++ {
				for x := 0; x < nx; x++ {
					idx := y*nx + x
					if r := coords.R[idx]; math.IsNaN(r) || r < rmin || r > rmax {
						continue
					}
					for k := range spec {
						src[k] = velax[k] - vlos[idx]
						spec[k] = c.Data()[k*plane+idx]
					}
					var pl interp.PiecewiseLinear
					if err := pl.Fit(src, spec); err != nil {
						errs[workerID] = fmt.Errorf("%w: pixel (%d, %d): %v", models.ErrInternalConsistency, x, y, err)
						return
					}
					for k, v := range velax {
						if v >= src[0] && v <= src[nchan-1] {
							out.Data[k*plane+idx] = pl.Predict(v)
						}
					}
					shifted[workerID]++
				}
			}
		}(w, startRow, endRow)
	}
	wg.Wait()

	total := 0
	for w := range errs {
		if errs[w] != nil {
			return nil, errs[w]
		}
		total += shifted[w]
	}
	logger.WithFields(l.IntField("pixels", total), l.IntField("workers", numWorkers)).Info("shifted cube built")
	return out, nil
}
