package cube

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofish/internal/models"
)

var offsets = []float64{-0.2, -0.1, 0, 0.1, 0.2}

// indexCube fills every sample with its own index.
func indexCube(t *testing.T, velax []float64, opts Options) *Cube {
	t.Helper()
	nchan := 1
	if velax != nil {
		nchan = len(velax)
	}
	data := make([]float64, nchan*len(offsets)*len(offsets))
	for i := range data {
		data[i] = float64(i)
	}
	c, err := New(data, offsets, offsets, velax, opts)
	require.NoError(t, err)
	return c
}

func TestNewValidatesShape(t *testing.T) {
	_, err := New(make([]float64, 4), nil, offsets, nil, Options{})
	assert.True(t, errors.Is(err, models.ErrConfiguration))
	_, err = New(make([]float64, 4), offsets, offsets, nil, Options{})
	assert.True(t, errors.Is(err, models.ErrConfiguration))
	_, err = New(make([]float64, 25), offsets, offsets, []float64{}, Options{})
	assert.True(t, errors.Is(err, models.ErrConfiguration))
	_, err = New(make([]float64, 25), offsets, offsets, []float64{0, 1}, Options{})
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestNewNormalisesSamples(t *testing.T) {
	data := make([]float64, 3*25)
	for k := 0; k < 3; k++ {
		for i := 0; i < 25; i++ {
			data[k*25+i] = float64(k)
		}
	}
	data[3] = math.NaN()
	data[30] = math.Inf(1)

	c, err := New(data, offsets, offsets, []float64{300, 200, 100}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []float64{100, 200, 300}, c.Velax())
	assert.Equal(t, 100.0, c.Chan())
	// The last input channel is now first.
	assert.Equal(t, 2.0, c.Channel(0)[0])
	assert.Equal(t, 0.0, c.Channel(1)[5])
	assert.Equal(t, 0.0, c.Channel(2)[3])
	assert.Equal(t, []float64{2, 1, 0}, c.Spectrum(0, 0))

	// The input slice is left untouched.
	assert.True(t, math.IsNaN(data[3]))
}

func TestSingleChannelIsImage(t *testing.T) {
	c := indexCube(t, []float64{1500}, Options{})
	assert.True(t, c.Is2D())
	assert.Nil(t, c.Velax())
	assert.Equal(t, 1, c.NChan())
	assert.True(t, math.IsNaN(c.Chan()))
	assert.True(t, errors.Is(c.RequireSpectral(), models.ErrConfiguration))
	assert.Equal(t, 24.0, c.Channel(0)[24])
}

func TestPixelBeamFallback(t *testing.T) {
	c := indexCube(t, nil, Options{})
	assert.True(t, c.Is2D())
	assert.Error(t, c.RequireSpectral())
	assert.True(t, math.IsNaN(c.Chan()))
	assert.Equal(t, 1, c.NChan())

	assert.InDelta(t, 0.1, c.DPix(), 1e-12)
	assert.Equal(t, models.PixelBeam(c.DPix()), c.Beam())
	assert.InDelta(t, c.PixelArea(), c.BeamArea(), 1e-15)
	assert.InDelta(t, 1, c.BeamsPerPix(), 1e-12)
}

func TestGaussianBeamArea(t *testing.T) {
	beam := models.Beam{Major: 0.5, Minor: 0.4, PA: 30}
	c := indexCube(t, []float64{0, 100}, Options{Beam: &beam})

	want := math.Pi * 0.5 * 0.4 / (4 * math.Ln2)
	assert.InDelta(t, want, c.BeamArea(), 1e-12)
	assert.InDelta(t, want/0.01, c.PixPerBeam(), 1e-9)
	assert.InDelta(t, c.BeamArea()*math.Pow(math.Pi/180/3600, 2), c.BeamAreaSr(), 1e-22)

	assert.Equal(t, [4]float64{-0.2, 0.2, -0.2, 0.2}, c.Extent())
	assert.Equal(t, 0.2, c.MaxRadius())
}

func TestEstimateRMS(t *testing.T) {
	data := make([]float64, 4*25)
	for k := 0; k < 4; k++ {
		for i := 0; i < 25; i++ {
			data[k*25+i] = float64(k + 1)
		}
	}
	c, err := New(data, offsets, offsets, []float64{0, 1, 2, 3}, Options{})
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt((1+16)/2.0), c.EstimateRMS(1), 1e-12)
	assert.InDelta(t, c.EstimateRMS(4), c.RMS(), 1e-12)
}

func TestClipSpatial(t *testing.T) {
	c := indexCube(t, []float64{0, 100}, Options{})
	clipped, err := c.ClipSpatial(0.1)
	require.NoError(t, err)

	assert.Equal(t, 3, clipped.NX())
	assert.Equal(t, 3, clipped.NY())
	assert.Equal(t, 2, clipped.NChan())
	assert.Equal(t, 6.0, clipped.Channel(0)[0])
	assert.Equal(t, 25+18.0, clipped.Channel(1)[8])
	assert.Equal(t, c.Beam(), clipped.Beam())

	// The source cube is unchanged.
	assert.Equal(t, 5, c.NX())

	_, err = c.ClipSpatial(0)
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	shifted, err := New(make([]float64, 4), []float64{0.5, 0.6}, []float64{0.5, 0.6}, nil, Options{})
	require.NoError(t, err)
	_, err = shifted.ClipSpatial(0.1)
	assert.True(t, errors.Is(err, models.ErrEmptyRegion))
}

func TestClipVelocity(t *testing.T) {
	c := indexCube(t, []float64{0, 100, 200, 300}, Options{})

	clipped, err := c.ClipVelocity(100, 200)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 200}, clipped.Velax())
	assert.Equal(t, 25.0, clipped.Channel(0)[0])

	clipped, err = c.ClipVelocity(math.NaN(), 100)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 100}, clipped.Velax())

	single, err := c.ClipVelocity(300, math.NaN())
	require.NoError(t, err)
	assert.Equal(t, 1, single.NChan())
	assert.True(t, single.Is2D())
	assert.True(t, math.IsNaN(single.Chan()))
	assert.Equal(t, 75.0, single.Channel(0)[0])

	_, err = c.ClipVelocity(500, 600)
	assert.True(t, errors.Is(err, models.ErrEmptyRegion))
	_, err = c.ClipVelocity(200, 100)
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	_, err = indexCube(t, nil, Options{}).ClipVelocity(0, 1)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestCorrectPB(t *testing.T) {
	c := indexCube(t, []float64{0, 100}, Options{})

	pb := make([]float64, 25)
	for i := range pb {
		pb[i] = 0.5
	}
	pb[0] = 0
	corrected, err := c.CorrectPB(pb)
	require.NoError(t, err)
	assert.True(t, corrected.PBCorrected())
	assert.False(t, c.PBCorrected())
	assert.Equal(t, 0.0, corrected.Channel(0)[0])
	assert.Equal(t, 2.0, corrected.Channel(0)[1])
	assert.Equal(t, 2*26.0, corrected.Channel(1)[1])

	_, err = corrected.CorrectPB(pb)
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	full := make([]float64, 50)
	for i := range full {
		full[i] = 0.25
	}
	corrected, err = c.CorrectPB(full)
	require.NoError(t, err)
	assert.Equal(t, 4*30.0, corrected.Data()[30])

	_, err = c.CorrectPB(make([]float64, 7))
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestFrequencyConversions(t *testing.T) {
	nu0 := 230.538e9
	c := indexCube(t, []float64{-100, 0, 100}, Options{RestFrequency: nu0})

	nu := c.VelocityToRestframeFrequency(nil, 0)
	assert.InDelta(t, nu0, nu[1], 1e-3)
	assert.Greater(t, nu[0], nu[2])
	assert.InDelta(t, 100, c.RestframeFrequencyToVelocity(nu[2], 0), 1e-6)
	assert.InDelta(t, 500, c.RestframeFrequencyToVelocity(nu0, 500), 1e-9)

	dnu := c.SpectralResolution(0)
	assert.InDelta(t, nu0*100/SpeedOfLight, dnu, 1e-3)
	assert.InDelta(t, 100, c.VelocityResolution(dnu), 1e-6)

	offs, err := c.FrequencyOffset(math.NaN(), 0, "MHz")
	require.NoError(t, err)
	assert.InDelta(t, 0, offs[1], 1e-9)
	assert.InDelta(t, -offs[0], offs[2], 1e-9)

	ghz, err := c.Frequency(0, "GHz")
	require.NoError(t, err)
	assert.InDelta(t, 230.538, ghz[1], 1e-9)

	_, err = c.Frequency(0, "THz")
	assert.True(t, errors.Is(err, models.ErrConfiguration))
	_, err = indexCube(t, nil, Options{}).Frequency(0, "GHz")
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	v := FrequencyToVelocity([]float64{nu0, nu[0]}, nu0)
	assert.InDelta(t, 0, v[0], 1e-9)
	assert.InDelta(t, -100, v[1], 1e-3)
}

func TestBrightnessConversions(t *testing.T) {
	beam := models.Beam{Major: 0.3, Minor: 0.3}
	c := indexCube(t, []float64{0, 100}, Options{Beam: &beam, RestFrequency: 230.538e9})

	jy := []float64{0.01, -0.02, 0, 0.5}
	rj := c.JyBeamToTbRJ(jy, math.NaN())
	assert.Greater(t, rj[0], 0.0)
	assert.InDelta(t, -2*rj[0], rj[1], 1e-9)
	back := c.TbToJyBeamRJ(rj, 0)
	for i := range jy {
		assert.InDelta(t, jy[i], back[i], 1e-12)
	}

	tb := c.JyBeamToTb(jy, math.NaN())
	assert.Equal(t, 0.0, tb[2])
	assert.Less(t, tb[1], 0.0)
	// Planck temperatures exceed the Rayleigh-Jeans ones at mm wavelengths.
	assert.Greater(t, tb[3], rj[3])
	back = c.TbToJyBeam(tb[:2], math.NaN())
	assert.InDelta(t, jy[0], back[0], 1e-9)
	assert.InDelta(t, jy[1], back[1], 1e-9)

	// A nil slice converts the cube samples.
	assert.Len(t, c.JyBeamToTbRJ(nil, math.NaN()), len(c.Data()))
}

func TestHeaderAxes(t *testing.T) {
	x := PositionAxis(4, 0.1/3600, 2.5)
	require.Len(t, x, 4)
	for i, want := range []float64{-0.1, 0, 0.1, 0.2} {
		assert.InDelta(t, want, x[i], 1e-12)
	}
	assert.Equal(t, []float64{100, 110, 120}, SpectralAxis(3, 10, 1, 100))
}
