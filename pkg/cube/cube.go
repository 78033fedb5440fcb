// Package cube holds the in-memory spectral-line data cube and its axes.
// It is the ingestion boundary: whatever reads FITS files hands the sample
// array, the axes and the beam to New, which validates and normalises them.
package cube

import (
	"fmt"
	"math"

	"github.com/sgostarter/i/l"
	"gonum.org/v1/gonum/floats"

	"gofish/internal/models"
	"gofish/pkg/geometry"
)

// Options holds the optional metadata supplied alongside the samples.
type Options struct {
	// Beam is the synthesized beam. When nil a one-pixel beam is assumed
	// and the brightness unit is treated as per pixel.
	Beam *models.Beam

	// RestFrequency of the transition in Hz. NaN when unknown.
	RestFrequency float64

	// BUnit is the brightness unit string of the samples.
	BUnit string

	// Logger receives warnings raised while loading. Nil discards them.
	Logger l.Wrapper
}

// Cube is an image cube with two spatial axes and an optional velocity
// axis. Samples are stored channel-major: index c*ny*nx + y*nx + x.
//
// A Cube is never mutated after construction. Clipping and primary-beam
// correction return new cubes, so one Cube can be shared between
// goroutines.
type Cube struct {
	data  []float64
	xaxis []float64
	yaxis []float64
	velax []float64

	nx, ny, nchan int

	dpix  float64
	chans float64
	beam  models.Beam
	nu0   float64
	bunit string

	pbCorrected bool
	logger      l.Wrapper
}

// New validates the samples against the axes and builds a Cube.
//
// Parameters:
//   - data: the samples, channel-major, length len(velax)*len(yaxis)*len(xaxis)
//     (or len(yaxis)*len(xaxis) for a 2D image when velax is nil)
//   - xaxis, yaxis: pixel-centred position offsets in arcsec
//   - velax: velocity of each channel in m/s, or nil for a 2D image. A
//     single channel also gives a 2D image.
//   - opts: beam, rest frequency, brightness unit and logger
//
// Non-finite samples are replaced by zero, and a decreasing velocity axis is
// reversed together with the channels so that velax is always increasing.
func New(data, xaxis, yaxis, velax []float64, opts Options) (*Cube, error) {
	nx, ny := len(xaxis), len(yaxis)
	if nx == 0 || ny == 0 {
		return nil, fmt.Errorf("%w: position axes must be non-empty", models.ErrConfiguration)
	}
	nchan := 1
	if velax != nil {
		nchan = len(velax)
		if nchan == 0 {
			return nil, fmt.Errorf("%w: velocity axis is empty", models.ErrConfiguration)
		}
	}
	if len(data) != nchan*ny*nx {
		return nil, fmt.Errorf("%w: %d samples do not match axes (%d x %d x %d)",
			models.ErrConfiguration, len(data), nchan, ny, nx)
	}
	if nchan == 1 {
		// A single plane is an image.
		velax = nil
	}

	logger := opts.Logger
	if logger == nil {
		logger = l.NewNopLoggerWrapper()
	}

	c := &Cube{
		data:   make([]float64, len(data)),
		xaxis:  append([]float64(nil), xaxis...),
		yaxis:  append([]float64(nil), yaxis...),
		nx:     nx,
		ny:     ny,
		nchan:  nchan,
		nu0:    opts.RestFrequency,
		bunit:  opts.BUnit,
		logger: logger,
	}
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		c.data[i] = v
	}

	c.dpix = meanAbsDiff(c.xaxis)
	if nx < 2 {
		c.dpix = meanAbsDiff(c.yaxis)
	}

	c.chans = math.NaN()
	if velax != nil {
		c.velax = append([]float64(nil), velax...)
		if nchan > 1 {
			c.chans = (c.velax[nchan-1] - c.velax[0]) / float64(nchan-1)
		}
		if c.chans < 0 {
			c.reverseChannels()
			c.chans = -c.chans
		}
	}

	if opts.Beam != nil {
		c.beam = *opts.Beam
	} else {
		c.logger.Warn("no beam values found, assuming Jy/pix units")
		c.beam = models.PixelBeam(c.dpix)
	}

	return c, nil
}

func (c *Cube) reverseChannels() {
	plane := c.nx * c.ny
	for i, j := 0, c.nchan-1; i < j; i, j = i+1, j-1 {
		c.velax[i], c.velax[j] = c.velax[j], c.velax[i]
		a := c.data[i*plane : (i+1)*plane]
		b := c.data[j*plane : (j+1)*plane]
		for k := range a {
			a[k], b[k] = b[k], a[k]
		}
	}
}

// derive copies the metadata of c into a new cube with the given samples and axes.
func (c *Cube) derive(data, xaxis, yaxis, velax []float64) *Cube {
	nchan := 1
	if velax != nil {
		nchan = len(velax)
	}
	return &Cube{
		data:        data,
		xaxis:       xaxis,
		yaxis:       yaxis,
		velax:       velax,
		nx:          len(xaxis),
		ny:          len(yaxis),
		nchan:       nchan,
		dpix:        c.dpix,
		chans:       c.chans,
		beam:        c.beam,
		nu0:         c.nu0,
		bunit:       c.bunit,
		pbCorrected: c.pbCorrected,
		logger:      c.logger,
	}
}

// NX returns the number of pixels along the x axis
func (c *Cube) NX() int { return c.nx }

// NY returns the number of pixels along the y axis
func (c *Cube) NY() int { return c.ny }

// NChan returns the number of channels (1 for a 2D image)
func (c *Cube) NChan() int { return c.nchan }

// Is2D reports whether the cube has no velocity axis.
func (c *Cube) Is2D() bool { return c.velax == nil }

// RequireSpectral returns a configuration error for 2D cubes. Every
// shifting operation calls it first.
func (c *Cube) RequireSpectral() error {
	if c.Is2D() {
		return fmt.Errorf("%w: cube is only 2D, shifting not available", models.ErrConfiguration)
	}
	return nil
}

// Data returns the samples. Callers must not modify the returned slice.
func (c *Cube) Data() []float64 { return c.data }

// Channel returns the samples of channel i as a ny*nx row-major view.
func (c *Cube) Channel(i int) []float64 {
	plane := c.nx * c.ny
	return c.data[i*plane : (i+1)*plane]
}

// Spectrum returns a copy of the spectrum at pixel (y, x).
func (c *Cube) Spectrum(y, x int) []float64 {
	plane := c.nx * c.ny
	out := make([]float64, c.nchan)
	for k := range out {
		out[k] = c.data[k*plane+y*c.nx+x]
	}
	return out
}

// XAxis returns the x offsets in arcsec
func (c *Cube) XAxis() []float64 { return c.xaxis }

// YAxis returns the y offsets in arcsec
func (c *Cube) YAxis() []float64 { return c.yaxis }

// Velax returns the channel velocities in m/s, nil for a 2D image
func (c *Cube) Velax() []float64 { return c.velax }

// Grid returns the sky-plane sampling of the cube for the geometry routines.
func (c *Cube) Grid() geometry.Grid {
	return geometry.Grid{XAxis: c.xaxis, YAxis: c.yaxis}
}

// DPix returns the pixel size in arcsec
func (c *Cube) DPix() float64 { return c.dpix }

// Chan returns the channel width in m/s (NaN for fewer than two channels)
func (c *Cube) Chan() float64 { return c.chans }

// Beam returns the beam (or the one-pixel fallback)
func (c *Cube) Beam() models.Beam { return c.beam }

// RestFrequency returns the rest frequency in Hz
func (c *Cube) RestFrequency() float64 { return c.nu0 }

// BUnit returns the brightness unit string
func (c *Cube) BUnit() string { return c.bunit }

// Logger returns the logger attached at load time
func (c *Cube) Logger() l.Wrapper { return c.logger }

// PixelArea returns the area of one pixel in arcsec^2
func (c *Cube) PixelArea() float64 { return c.dpix * c.dpix }

// BeamArea returns the beam area in arcsec^2. For a Gaussian beam this is
// pi*bmaj*bmin/(4 ln 2); the one-pixel fallback is exactly one pixel.
func (c *Cube) BeamArea() float64 {
	omega := c.beam.Major * c.beam.Minor
	if c.beam.IsPixel(c.dpix) {
		return omega
	}
	return math.Pi * omega / 4 / math.Ln2
}

// BeamAreaSr returns the beam area in steradians
func (c *Cube) BeamAreaSr() float64 {
	omega := arcsecToRad(c.beam.Major) * arcsecToRad(c.beam.Minor)
	if c.beam.IsPixel(c.dpix) {
		return omega
	}
	return math.Pi * omega / 4 / math.Ln2
}

// BeamsPerPix returns the number of beams per pixel
func (c *Cube) BeamsPerPix() float64 { return c.PixelArea() / c.BeamArea() }

// PixPerBeam returns the number of pixels per beam
func (c *Cube) PixPerBeam() float64 { return c.BeamArea() / c.PixelArea() }

// Extent returns [x0, x1, y0, y1] of the field of view in arcsec
func (c *Cube) Extent() [4]float64 {
	return [4]float64{c.xaxis[0], c.xaxis[c.nx-1], c.yaxis[0], c.yaxis[c.ny-1]}
}

// MaxRadius returns the largest x offset, which bounds the default radial sampling
func (c *Cube) MaxRadius() float64 { return floats.Max(c.xaxis) }

// EstimateRMS estimates the noise from the first and last n channels.
func (c *Cube) EstimateRMS(n int) float64 {
	if n <= 0 {
		n = 5
	}
	if n > c.nchan {
		n = c.nchan
	}
	plane := c.nx * c.ny
	var sum float64
	var count int
	accumulate := func(k int) {
		for _, v := range c.data[k*plane : (k+1)*plane] {
			sum += v * v
			count++
		}
	}
	for k := 0; k < n; k++ {
		accumulate(k)
	}
	for k := c.nchan - n; k < c.nchan; k++ {
		accumulate(k)
	}
	return math.Sqrt(sum / float64(count))
}

// RMS is EstimateRMS(5)
func (c *Cube) RMS() float64 { return c.EstimateRMS(5) }

func meanAbsDiff(axis []float64) float64 {
	if len(axis) < 2 {
		return 1
	}
	var sum float64
	for i := 1; i < len(axis); i++ {
		sum += math.Abs(axis[i] - axis[i-1])
	}
	return sum / float64(len(axis)-1)
}

func arcsecToRad(v float64) float64 {
	return v / 3600 * math.Pi / 180
}
