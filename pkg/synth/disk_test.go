package synth

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"gofish/internal/models"
	"gofish/pkg/geometry"
	"gofish/pkg/kinematics"
)

func TestDiskLinePeaksAtKeplerianVelocity(t *testing.T) {
	p := DefaultParams()
	p.NX, p.NY = 24, 24
	c, err := Disk(p)
	require.NoError(t, err)
	require.Equal(t, len(p.Velax), c.NChan())

	coords, err := geometry.DiskCoords(c.Grid(), p.Geometry, p.Projection)
	require.NoError(t, err)
	vlos := kinematics.KeplerianField(coords, kinematics.Params{MStar: p.MStar, Dist: p.Dist, Inc: p.Geometry.Inc})

	checked := 0
	for y := 0; y < c.NY(); y++ {
		for x := 0; x < c.NX(); x++ {
			idx := y*c.NX() + x
			if coords.R[idx] < 0.3 || coords.R[idx] > p.RMax {
				continue
			}
			spec := c.Spectrum(y, x)
			k := floats.MaxIdx(spec)
			assert.InDelta(t, vlos[idx], c.Velax()[k], 0.5*c.Chan()+1e-6, "pixel (%d, %d)", x, y)
			assert.InDelta(t, p.Peak*math.Exp(-coords.R[idx]/p.RC), floats.Max(spec), 0.25)
			checked++
		}
	}
	assert.Greater(t, checked, 50)
}

func TestDiskTruncatesAtOuterRadius(t *testing.T) {
	p := DefaultParams()
	p.NX, p.NY = 32, 32
	p.RMax = 0.5
	c, err := Disk(p)
	require.NoError(t, err)

	coords, err := geometry.DiskCoords(c.Grid(), p.Geometry, p.Projection)
	require.NoError(t, err)
	for y := 0; y < c.NY(); y++ {
		for x := 0; x < c.NX(); x++ {
			if coords.R[y*c.NX()+x] > p.RMax {
				assert.Equal(t, 0.0, floats.Max(c.Spectrum(y, x)))
			}
		}
	}
}

func TestDiskMapAndNoise(t *testing.T) {
	p := DefaultParams()
	p.NX, p.NY = 16, 16
	p.Velax = nil
	p.RC = 0
	c, err := Disk(p)
	require.NoError(t, err)
	assert.True(t, c.Is2D())
	assert.Equal(t, p.Peak, floats.Max(c.Data()))

	p.Noise = 0.1
	p.Rand = rand.New(rand.NewSource(3))
	a, err := Disk(p)
	require.NoError(t, err)
	p.Rand = rand.New(rand.NewSource(3))
	b, err := Disk(p)
	require.NoError(t, err)
	assert.Equal(t, a.Data(), b.Data())
	assert.NotEqual(t, c.Data(), a.Data())
}

func TestDiskRejectsBadParams(t *testing.T) {
	p := DefaultParams()
	p.DPix = 0
	_, err := Disk(p)
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	p = DefaultParams()
	p.LineWidth = 0
	_, err = Disk(p)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestAxisIsPixelCentred(t *testing.T) {
	a := Axis(4, 0.5)
	assert.InDeltaSlice(t, []float64{0.75, 0.25, -0.25, -0.75}, a, 1e-12)
}
