// Package stacking aggregates Keplerian-shifted annulus spectra across
// radial bins into average and integrated spectra, radial spectra
// ("teardrop" arrays), radial profiles, background residuals and centre
// searches.
//
// Every entry point is a pure function of its arguments and the immutable
// cube. The only randomness (beam-spacing start offsets and the weight
// tie-breaking jitter) is drawn from the Stacker's injected source.
package stacking

import (
	"fmt"
	"math/rand"
	"runtime"

	"github.com/sgostarter/i/l"

	"gofish/internal/models"
	"gofish/pkg/annulus"
	"gofish/pkg/cube"
	"gofish/pkg/geometry"
	"gofish/pkg/kinematics"
)

// Params configures a Stacker.
type Params struct {
	// Logger receives warnings such as skipped empty annuli. Nil discards them.
	Logger l.Wrapper

	// Rand seeds beam-spacing offsets and weight jitter. Nil seeds from 1.
	Rand *rand.Rand

	// NumCores bounds the annuli processed concurrently. <= 0 uses all CPUs.
	NumCores int

	// Deprojector wraps each extracted annulus. Nil uses the annulus itself.
	Deprojector func(*annulus.Annulus) annulus.Deprojector
}

// Options holds the geometry, kinematics and stacking choices shared by
// the stacking entry points. Start from DefaultOptions.
type Options struct {
	// Geometry of the disk and how its coordinates are computed
	Geometry   geometry.Params
	Projection geometry.Options

	// MStar (solar masses) and Dist (pc) set the Keplerian shift
	MStar float64
	Dist  float64

	// RMin, RMax bound the region in arcsec. Nil uses the default sampling.
	RMin, RMax *float64

	// DR is the width of the radial bins in arcsec. Zero uses a quarter of
	// the beam major axis, or two pixels for a one-pixel beam.
	DR float64

	// PAMin, PAMax restrict the polar angle in degrees
	PAMin, PAMax *float64
	ExcludePA    bool
	AbsPA        bool

	// Frame of the radial and azimuthal bounds
	Frame models.Frame

	// Resample policy for the deprojected spectra
	Resample models.Resample

	// BeamSpacing, when positive, subsamples annuli to about one spectrum
	// per BeamSpacing beam major axes.
	BeamSpacing float64

	// Mask optionally restricts the pixels used, without touching the data
	Mask []bool

	// AssumeCorrelated keeps the scatter as the per-pixel spread. When
	// false it is reduced by the square root of the independent samples.
	AssumeCorrelated bool

	// SkipEmptyAnnuli drops empty radial bins with a warning instead of failing
	SkipEmptyAnnuli bool

	// Unit is the flux unit of the spectra: Jy/beam, mJy/beam, K, mK, Jy or mJy
	Unit string
}

// DefaultOptions returns a face-on, flat disk around a solar-mass star at
// 100 pc, stacked at the native resolution in Jy/beam.
func DefaultOptions() Options {
	return Options{
		Projection:       geometry.DefaultOptions(),
		MStar:            1,
		Dist:             100,
		Resample:         models.Resample{Factor: 1},
		AssumeCorrelated: true,
		SkipEmptyAnnuli:  true,
		Unit:             "Jy/beam",
	}
}

func (o Options) kinematics() kinematics.Params {
	return kinematics.Params{
		MStar:   o.MStar,
		Dist:    o.Dist,
		Inc:     o.Geometry.Inc,
		Surface: o.Geometry.Surface,
	}
}

func (o Options) annulusRequest(rmin, rmax float64, rng *rand.Rand) annulus.Request {
	return annulus.Request{
		RMin:        rmin,
		RMax:        rmax,
		PAMin:       o.PAMin,
		PAMax:       o.PAMax,
		ExcludePA:   o.ExcludePA,
		AbsPA:       o.AbsPA,
		Geometry:    o.Geometry,
		Options:     o.Projection,
		Frame:       o.Frame,
		Overlay:     o.Mask,
		BeamSpacing: o.BeamSpacing,
		Rand:        rng,
	}
}

// Stacker runs the stacking operations on one cube.
//
// A Stacker owns its random source and is not safe for concurrent use;
// concurrent work inside a call runs on derived Stackers.
type Stacker struct {
	cube        *cube.Cube
	logger      l.Wrapper
	rng         *rand.Rand
	numCores    int
	deprojector func(*annulus.Annulus) annulus.Deprojector
}

// NewStacker creates a Stacker for the cube c.
//
// Parameters:
//   - c: the data cube, never modified
//   - params: logger, random source, parallelism and deprojection collaborator
//
// Returns:
//   - A new Stacker
func NewStacker(c *cube.Cube, params *Params) *Stacker {
	if params == nil {
		params = &Params{}
	}
	s := &Stacker{
		cube:        c,
		logger:      params.Logger,
		rng:         params.Rand,
		numCores:    params.NumCores,
		deprojector: params.Deprojector,
	}
	if s.logger == nil {
		s.logger = l.NewNopLoggerWrapper()
	}
	s.logger = s.logger.WithFields(l.StringField(l.ClsKey, "stacker"))
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(1))
	}
	if s.numCores <= 0 {
		s.numCores = runtime.NumCPU()
	}
	if s.deprojector == nil {
		s.deprojector = func(a *annulus.Annulus) annulus.Deprojector { return a }
	}
	return s
}

// Cube returns the cube being stacked
func (s *Stacker) Cube() *cube.Cube { return s.cube }

// derive returns a Stacker sharing everything but the random source, which
// is seeded from this one.
func (s *Stacker) derive() *Stacker {
	child := *s
	child.rng = rand.New(rand.NewSource(s.rng.Int63()))
	child.numCores = 1
	return &child
}

// parallel runs task(i) for i in [0, n) on up to numCores goroutines, each
// with its own derived Stacker. The first error is returned.
func (s *Stacker) parallel(n int, task func(i int, worker *Stacker) error) error {
	if n == 0 {
		return nil
	}
	workers := make([]*Stacker, n)
	for i := range workers {
		workers[i] = s.derive()
	}
	if s.numCores == 1 || n == 1 {
		for i := 0; i < n; i++ {
			if err := task(i, workers[i]); err != nil {
				return err
			}
		}
		return nil
	}

	type taskResult struct {
		index int
		err   error
	}
	resultChan := make(chan taskResult)
	sem := make(chan struct{}, s.numCores)

	for i := 0; i < n; i++ {
		go func(idx int) {
			sem <- struct{}{}
			defer func() { <-sem }()
			resultChan <- taskResult{index: idx, err: task(idx, workers[idx])}
		}(i)
	}

	var firstErr error
	for completed := 0; completed < n; completed++ {
		res := <-resultChan
		if res.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("task %d: %w", res.index, res.err)
		}
	}
	return firstErr
}
