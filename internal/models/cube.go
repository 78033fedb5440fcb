package models

import (
	"fmt"
	"strings"
)

// Beam represents the synthesized beam of the observation
type Beam struct {
	// Major is the FWHM of the beam major axis in arcsec
	Major float64

	// Minor is the FWHM of the beam minor axis in arcsec
	Minor float64

	// PA is the position angle of the beam in degrees
	PA float64
}

// PixelBeam returns the degenerate beam used when the metadata carries no
// beam information: a symmetric beam exactly one pixel across.
func PixelBeam(dpix float64) Beam {
	return Beam{Major: dpix, Minor: dpix, PA: 0}
}

// IsPixel reports whether the beam is the one-pixel fallback for the
// given pixel size.
func (b Beam) IsPixel(dpix float64) bool {
	return b.Major == dpix && b.Minor == dpix
}

// Frame selects the coordinate frame a mask is defined in
type Frame int

const (
	// DiskFrame masks use the deprojected disk-frame radius and polar angle
	DiskFrame Frame = iota

	// SkyFrame masks use the radius from (x0, y0) on the sky
	SkyFrame
)

func (f Frame) String() string {
	switch f {
	case DiskFrame:
		return "disk"
	case SkyFrame:
		return "sky"
	default:
		return fmt.Sprintf("Frame(%d)", int(f))
	}
}

// ParseFrame converts a frame name ("disk" or "sky") into a Frame
func ParseFrame(name string) (Frame, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "disk", "":
		return DiskFrame, nil
	case "sky":
		return SkyFrame, nil
	default:
		return DiskFrame, fmt.Errorf("%w: mask frame must be 'disk' or 'sky', got %q", ErrConfiguration, name)
	}
}

// Resample describes how a deprojected spectrum is regridded.
// Factor > 0 supersamples the native channel width by that integer factor,
// otherwise Width gives the output channel width in m/s.
type Resample struct {
	Factor int
	Width  float64
}

// ChannelWidth returns the output channel width in m/s given the native
// channel width chan.
func (r Resample) ChannelWidth(chanWidth float64) (float64, error) {
	if r.Width > 0 {
		return r.Width, nil
	}
	factor := r.Factor
	if factor == 0 {
		factor = 1
	}
	if factor < 0 {
		return 0, fmt.Errorf("%w: resample factor must be positive, got %d", ErrConfiguration, r.Factor)
	}
	return chanWidth / float64(factor), nil
}
