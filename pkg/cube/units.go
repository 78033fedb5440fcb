package cube

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"

	"gofish/internal/models"
)

// Physical constants in SI units.
const (
	SpeedOfLight = 2.99792458e8
	Boltzmann    = 1.380649e-23
	Planck       = 6.62607015e-34
)

// FrequencyUnits maps a frequency unit name to its scale in Hz.
var FrequencyUnits = map[string]float64{
	"GHz": 1e9,
	"MHz": 1e6,
	"kHz": 1e3,
	"Hz":  1,
}

// PositionAxis builds a pixel-centred position axis in arcsec from the
// header keywords NAXIS, CDELT (degrees) and CRPIX.
func PositionAxis(naxis int, cdelt, crpix float64) []float64 {
	axis := make([]float64, naxis)
	ref := crpix - 0.5
	for i := range axis {
		axis[i] = 3600 * (float64(i) - ref + 1) * cdelt
	}
	return axis
}

// SpectralAxis builds a linear spectral axis from NAXIS, CDELT, CRPIX and CRVAL.
func SpectralAxis(naxis int, cdelt, crpix, crval float64) []float64 {
	axis := make([]float64, naxis)
	for i := range axis {
		axis[i] = crval + (float64(i)-crpix+1)*cdelt
	}
	return axis
}

// FrequencyToVelocity converts a frequency axis in Hz to radio velocities in
// m/s relative to the rest frequency nu0.
func FrequencyToVelocity(freq []float64, nu0 float64) []float64 {
	out := make([]float64, len(freq))
	for i, nu := range freq {
		out[i] = (nu0 - nu) * SpeedOfLight / nu0
	}
	return out
}

// VelocityToRestframeFrequency returns the rest-frame frequency in Hz of
// each velocity in velax (m/s). A nil velax uses the cube's velocity axis.
func (c *Cube) VelocityToRestframeFrequency(velax []float64, vlsr float64) []float64 {
	if velax == nil {
		velax = c.velax
	}
	out := make([]float64, len(velax))
	for i, v := range velax {
		out[i] = c.nu0 * (1 - (v-vlsr)/SpeedOfLight)
	}
	return out
}

// RestframeFrequencyToVelocity returns the velocity in m/s of the
// rest-frame frequency nu in Hz.
func (c *Cube) RestframeFrequencyToVelocity(nu, vlsr float64) float64 {
	return SpeedOfLight*(1-nu/c.nu0) + vlsr
}

// SpectralResolution converts a velocity resolution in m/s to Hz. A
// non-positive dv uses the channel width.
func (c *Cube) SpectralResolution(dv float64) float64 {
	if !(dv > 0) {
		dv = c.chans
	}
	nu := c.VelocityToRestframeFrequency([]float64{-dv, 0, dv}, 0)
	return 0.5 * (math.Abs(nu[1]-nu[0]) + math.Abs(nu[2]-nu[1]))
}

// VelocityResolution converts a spectral resolution in Hz to m/s.
func (c *Cube) VelocityResolution(dnu float64) float64 {
	v0 := c.RestframeFrequencyToVelocity(c.nu0, 0)
	va := math.Abs(c.RestframeFrequencyToVelocity(c.nu0+dnu, 0) - v0)
	vb := math.Abs(c.RestframeFrequencyToVelocity(c.nu0-dnu, 0) - v0)
	return 0.5 * (va + vb)
}

// Frequency returns the rest-frame frequency axis in the given unit.
func (c *Cube) Frequency(vlsr float64, unit string) ([]float64, error) {
	return c.FrequencyOffset(0, vlsr, unit)
}

// FrequencyOffset returns the frequency axis relative to nu0 (Hz) in the
// given unit. A NaN nu0 uses the rest frequency.
func (c *Cube) FrequencyOffset(nu0, vlsr float64, unit string) ([]float64, error) {
	if err := c.RequireSpectral(); err != nil {
		return nil, err
	}
	scale, ok := FrequencyUnits[unit]
	if !ok {
		return nil, fmt.Errorf("%w: unknown frequency unit %q", models.ErrConfiguration, unit)
	}
	if math.IsNaN(nu0) {
		nu0 = c.nu0
	}
	nu := c.VelocityToRestframeFrequency(nil, vlsr)
	for i := range nu {
		nu[i] = (nu[i] - nu0) / scale
	}
	return nu, nil
}

// jyToK returns the Rayleigh-Jeans conversion factor from Jy/beam to K.
func (c *Cube) jyToK(nu float64) float64 {
	jy2k := 1e-26 * SpeedOfLight * SpeedOfLight / (nu * nu) / 2 / Boltzmann
	return jy2k / c.BeamAreaSr()
}

func (c *Cube) frequencyOrRest(nu float64) float64 {
	if math.IsNaN(nu) || nu <= 0 {
		return c.nu0
	}
	return nu
}

// JyBeamToTbRJ converts data in Jy/beam to brightness temperature in K using
// the Rayleigh-Jeans approximation. A nil data converts the cube samples;
// a NaN or non-positive nu uses the rest frequency.
func (c *Cube) JyBeamToTbRJ(data []float64, nu float64) []float64 {
	if data == nil {
		data = c.data
	}
	out := make([]float64, len(data))
	vecmath.ScaleBlock(out, data, c.jyToK(c.frequencyOrRest(nu)))
	return out
}

// TbToJyBeamRJ is the inverse of JyBeamToTbRJ.
func (c *Cube) TbToJyBeamRJ(data []float64, nu float64) []float64 {
	if data == nil {
		data = c.data
	}
	out := make([]float64, len(data))
	vecmath.ScaleBlock(out, data, 1/c.jyToK(c.frequencyOrRest(nu)))
	return out
}

// JyBeamToTb converts data in Jy/beam to brightness temperature in K using
// the full Planck law. The sign of each sample is preserved.
func (c *Cube) JyBeamToTb(data []float64, nu float64) []float64 {
	if data == nil {
		data = c.data
	}
	nu = c.frequencyOrRest(nu)
	omega := c.BeamAreaSr()
	out := make([]float64, len(data))
	for i, v := range data {
		tb := 1e-26 * math.Abs(v) / omega
		tb = 2 * Planck * nu * nu * nu / tb / (SpeedOfLight * SpeedOfLight)
		tb = Planck * nu / Boltzmann / math.Log(tb+1)
		if v < 0 {
			tb = -tb
		}
		out[i] = tb
	}
	return out
}

// TbToJyBeam is the inverse of JyBeamToTb.
func (c *Cube) TbToJyBeam(data []float64, nu float64) []float64 {
	if data == nil {
		data = c.data
	}
	nu = c.frequencyOrRest(nu)
	omega := c.BeamAreaSr()
	out := make([]float64, len(data))
	for i, v := range data {
		fnu := 2 * Planck * nu * nu * nu / (SpeedOfLight * SpeedOfLight)
		fnu /= math.Exp(Planck*nu/Boltzmann/math.Abs(v)) - 1
		fnu *= omega / 1e-26
		if v < 0 {
			fnu = -fnu
		}
		out[i] = fnu
	}
	return out
}
