package annulus

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"gofish/internal/models"
	"gofish/pkg/cube"
)

func axis(n int, step float64) []float64 {
	a := make([]float64, n)
	for i := range a {
		a[i] = (float64(i) - float64(n-1)/2) * step
	}
	return a
}

// pixelCube builds a cube whose spectra are flat at the value 10*x + y.
func pixelCube(t *testing.T, beam *models.Beam) *cube.Cube {
	t.Helper()
	xs, ys := axis(21, 0.1), axis(21, 0.1)
	velax := axis(5, 100)
	data := make([]float64, 0, len(velax)*len(xs)*len(ys))
	for range velax {
		for _, y := range ys {
			for _, x := range xs {
				data = append(data, 10*x+y)
			}
		}
	}
	c, err := cube.New(data, xs, ys, velax, cube.Options{Beam: beam})
	require.NoError(t, err)
	return c
}

func TestExtractOrdersByPolarAngle(t *testing.T) {
	c := pixelCube(t, nil)
	a, err := Extract(c, Request{RMin: 0.3, RMax: 0.6})
	require.NoError(t, err)

	want := 0
	for _, y := range c.YAxis() {
		for _, x := range c.XAxis() {
			if r := math.Hypot(x, y); r >= 0.3 && r <= 0.6 {
				want++
			}
		}
	}
	assert.Equal(t, want, a.Len())

	rows, cols := a.Spectra.Dims()
	assert.Equal(t, want, rows)
	assert.Equal(t, 5, cols)
	assert.True(t, sort.Float64sAreSorted(a.Theta))

	// Face-on with PA = 0: x = r sin(theta), y = r cos(theta).
	for i := range a.Theta {
		s, co := math.Sincos(a.Theta[i])
		assert.InDelta(t, 10*a.R[i]*s+a.R[i]*co, a.Spectra.At(i, 2), 1e-9)
		assert.GreaterOrEqual(t, a.R[i], 0.3)
		assert.LessOrEqual(t, a.R[i], 0.6)
	}
	assert.Equal(t, c.Velax(), a.Velax)
}

func TestExtractBeamSpacing(t *testing.T) {
	c := pixelCube(t, &models.Beam{Major: 0.5, Minor: 0.5})

	full, err := Extract(c, Request{RMin: 0.5, RMax: 0.9})
	require.NoError(t, err)

	stride := beamStride(0.5, full.R, full.Theta)
	require.Greater(t, stride, 1)

	req := Request{RMin: 0.5, RMax: 0.9, BeamSpacing: 1, Rand: rand.New(rand.NewSource(7))}
	sparse, err := Extract(c, req)
	require.NoError(t, err)
	assert.Equal(t, (full.Len()+stride-1)/stride, sparse.Len())

	// Every subsample is one of the full annulus samples.
	for _, th := range sparse.Theta {
		assert.Contains(t, full.Theta, th)
	}

	// The same seed reproduces the selection.
	req.Rand = rand.New(rand.NewSource(7))
	again, err := Extract(c, req)
	require.NoError(t, err)
	assert.Equal(t, sparse.Theta, again.Theta)
}

func TestExtractOverlayAndMask(t *testing.T) {
	c := pixelCube(t, nil)
	n := c.NX() * c.NY()

	// Keep only the eastern half.
	overlay := make([]bool, n)
	for j := 0; j < c.NY(); j++ {
		for i := 0; i < c.NX(); i++ {
			overlay[j*c.NX()+i] = c.XAxis()[i] > 0
		}
	}
	a, err := Extract(c, Request{RMin: 0.3, RMax: 0.6, Overlay: overlay})
	require.NoError(t, err)
	for _, th := range a.Theta {
		assert.Greater(t, th, 0.0)
	}

	_, err = Extract(c, Request{RMin: 0.3, RMax: 0.6, Overlay: make([]bool, n)})
	assert.True(t, errors.Is(err, models.ErrEmptyRegion))

	_, err = Extract(c, Request{RMin: 0.3, RMax: 0.6, Overlay: make([]bool, 3)})
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	_, err = Extract(c, Request{Mask: make([]bool, 4)})
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	// An explicit mask replaces the radial bounds.
	one := make([]bool, n)
	one[0] = true
	a, err = Extract(c, Request{Mask: one})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Len())
}

func TestExtractRequiresVelocityAxis(t *testing.T) {
	xs := axis(5, 0.1)
	c, err := cube.New(make([]float64, 25), xs, xs, nil, cube.Options{})
	require.NoError(t, err)
	_, err = Extract(c, Request{RMin: 0, RMax: 1})
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestExtractEmptyAnnulus(t *testing.T) {
	c := pixelCube(t, nil)
	_, err := Extract(c, Request{RMin: 5, RMax: 6})
	assert.True(t, errors.Is(err, models.ErrEmptyRegion))
}

func TestDeprojectedSpectrumWithoutShift(t *testing.T) {
	a := &Annulus{
		Spectra: mat.NewDense(3, 4, []float64{
			1, 2, 3, 4,
			3, 2, 1, 0,
			2, 2, 2, 2,
		}),
		Theta: []float64{-1, 0, 1},
		R:     []float64{1, 1, 1},
		Velax: []float64{-150, -50, 50, 150},
	}

	s, err := a.DeprojectedSpectrum(0, models.Resample{})
	require.NoError(t, err)
	assert.InDeltaSlice(t, a.Velax, s.Velax, 1e-9)
	assert.InDeltaSlice(t, []float64{2, 2, 2, 2}, s.Flux, 1e-12)
	sd := math.Sqrt(2.0 / 3.0)
	assert.InDeltaSlice(t, []float64{sd, 0, sd, 2 * sd}, s.Scatter, 1e-12)

	// Supersampling keeps every sample but spreads them over twice the bins.
	s, err = a.DeprojectedSpectrum(0, models.Resample{Factor: 2})
	require.NoError(t, err)
	require.Len(t, s.Flux, 8)
	assert.InDelta(t, 50.0, s.Velax[1]-s.Velax[0], 1e-9)
	finite := 0
	for _, f := range s.Flux {
		if !math.IsNaN(f) {
			finite++
		}
	}
	assert.Equal(t, 4, finite)

	_, err = a.DeprojectedSpectrum(0, models.Resample{Factor: -1})
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestDeprojectedSpectrumAlignsLines(t *testing.T) {
	velax := axis(11, 100) // -500 .. 500
	theta := []float64{0, math.Pi / 2, math.Pi}
	vrot := 200.0

	data := make([]float64, 3*len(velax))
	for i, th := range theta {
		vlos := vrot * math.Cos(th)
		for k, v := range velax {
			if math.Abs(v-vlos) < 1 {
				data[i*len(velax)+k] = 1
			}
		}
	}
	a := &Annulus{
		Spectra: mat.NewDense(3, len(velax), data),
		Theta:   theta,
		R:       []float64{1, 1, 1},
		Velax:   velax,
	}

	s, err := a.DeprojectedSpectrum(vrot, models.Resample{Factor: 1})
	require.NoError(t, err)
	for b := range s.Flux {
		if b == 5 {
			assert.InDelta(t, 1.0, s.Flux[b], 1e-12)
			assert.InDelta(t, 0.0, s.Scatter[b], 1e-12)
			continue
		}
		if !math.IsNaN(s.Flux[b]) {
			assert.InDelta(t, 0.0, s.Flux[b], 1e-12, "bin %d", b)
		}
	}

	// An explicit width lays bins out symmetrically about the band centre.
	s, err = a.DeprojectedSpectrum(vrot, models.Resample{Width: 50})
	require.NoError(t, err)
	require.Len(t, s.Velax, 21)
	assert.InDelta(t, 0.0, s.Velax[10], 1e-9)
	assert.InDelta(t, 50.0, s.Velax[11]-s.Velax[10], 1e-9)
}
