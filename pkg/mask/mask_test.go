package mask

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofish/internal/models"
	"gofish/pkg/geometry"
)

func testGrid(n int, dpix float64) geometry.Grid {
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = (float64(i) - float64(n-1)/2) * dpix
	}
	return geometry.Grid{XAxis: axis, YAxis: append([]float64(nil), axis...)}
}

func TestFullDiskSelectsEveryPixel(t *testing.T) {
	grid := testGrid(21, 0.2)
	p := geometry.Params{Inc: 40, PA: 30, Surface: geometry.Conical(0.2, 1)}

	coords, err := geometry.DiskCoords(grid, p, geometry.DefaultOptions())
	require.NoError(t, err)
	rmax := 0.0
	for _, r := range coords.R {
		rmax = math.Max(rmax, r)
	}

	b := Bounds{RMin: Float(0), RMax: Float(rmax + 0.5), PAMin: Float(0), PAMax: Float(360)}
	m, err := Get(grid, p, geometry.DefaultOptions(), b, models.DiskFrame)
	require.NoError(t, err)
	assert.Equal(t, grid.Size(), m.Count())
	assert.Equal(t, 21, m.NX)

	// Default bounds select everything as well.
	m, err = Get(grid, p, geometry.DefaultOptions(), Bounds{}, models.DiskFrame)
	require.NoError(t, err)
	assert.Equal(t, grid.Size(), m.Count())
}

func TestEmptyRegionIsAnError(t *testing.T) {
	grid := testGrid(21, 0.2) // radius 2 arcsec
	_, err := Get(grid, geometry.Params{}, geometry.Options{}, Radial(5, 6), models.DiskFrame)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrEmptyRegion))
}

func TestInvertedBoundsAreConfigurationErrors(t *testing.T) {
	grid := testGrid(11, 0.2)
	_, err := Get(grid, geometry.Params{}, geometry.Options{}, Radial(1, 0.5), models.DiskFrame)
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	b := Bounds{PAMin: Float(90), PAMax: Float(-90)}
	_, err = Get(grid, geometry.Params{}, geometry.Options{}, b, models.DiskFrame)
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	_, err = Get(grid, geometry.Params{}, geometry.Options{}, Bounds{}, models.Frame(7))
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestRadialAnnulusAndExclusion(t *testing.T) {
	grid := testGrid(41, 0.1)
	p := geometry.Flat(0, 0)

	ring, err := Get(grid, p, geometry.Options{}, Radial(0.5, 1.0), models.DiskFrame)
	require.NoError(t, err)
	outside, err := Get(grid, p, geometry.Options{}, Bounds{RMin: Float(0.5), RMax: Float(1.0), ExcludeR: true}, models.DiskFrame)
	require.NoError(t, err)

	assert.Equal(t, grid.Size(), ring.Count()+outside.Count())
	xs, ys := geometry.SkyCoords(grid, 0, 0)
	for i := range xs {
		r := math.Hypot(xs[i], ys[i])
		assert.Equal(t, r >= 0.5 && r <= 1.0, ring.Pixels[i], "pixel %d r=%g", i, r)
	}
}

func TestSkyFrameIgnoresProjection(t *testing.T) {
	grid := testGrid(31, 0.1)
	p := geometry.Params{X0: 0.2, Y0: -0.1, Inc: 70, PA: 45, Surface: geometry.Conical(0.3, 1)}

	sky, err := Get(grid, p, geometry.DefaultOptions(), Radial(0, 0.6), models.SkyFrame)
	require.NoError(t, err)
	disk, err := Get(grid, p, geometry.DefaultOptions(), Radial(0, 0.6), models.DiskFrame)
	require.NoError(t, err)

	xs, ys := geometry.SkyCoords(grid, p.X0, p.Y0)
	for i := range xs {
		assert.Equal(t, math.Hypot(xs[i], ys[i]) <= 0.6, sky.Pixels[i])
	}
	assert.Greater(t, sky.Count(), disk.Count())
}

func TestAzimuthalSelection(t *testing.T) {
	grid := testGrid(21, 0.1)
	p := geometry.Flat(0, 0)

	// Theta is zero due north for PA = 0, increasing towards +x.
	b := Bounds{PAMin: Float(-45), PAMax: Float(45), RMin: Float(0.2), RMax: Float(1)}
	m, err := Get(grid, p, geometry.Options{}, b, models.DiskFrame)
	require.NoError(t, err)
	north := 18*grid.NX() + 10 // (0, 0.8)
	south := 2*grid.NX() + 10  // (0, -0.8)
	assert.True(t, m.Pixels[north])
	assert.False(t, m.Pixels[south])

	b.ExcludePA = true
	m, err = Get(grid, p, geometry.Options{}, b, models.DiskFrame)
	require.NoError(t, err)
	assert.False(t, m.Pixels[north])
	assert.True(t, m.Pixels[south])

	// A window across the +/-180 seam selects the southern pixels.
	b = Bounds{PAMin: Float(135), PAMax: Float(225), RMin: Float(0.2), RMax: Float(1)}
	m, err = Get(grid, p, geometry.Options{}, b, models.DiskFrame)
	require.NoError(t, err)
	assert.True(t, m.Pixels[south])
	assert.False(t, m.Pixels[north])

	// |theta| folds east and west onto each other.
	east := 10*grid.NX() + 18
	west := 10*grid.NX() + 2
	b = Bounds{PAMin: Float(60), PAMax: Float(120), AbsPA: true}
	m, err = Get(grid, p, geometry.Options{}, b, models.DiskFrame)
	require.NoError(t, err)
	assert.True(t, m.Pixels[east])
	assert.True(t, m.Pixels[west])
}

func TestAndOverlay(t *testing.T) {
	m := Mask{Pixels: []bool{true, true, false, true}, NX: 2, NY: 2}
	out, err := m.And([]bool{true, false, true, true})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, true}, out.Pixels)
	assert.Equal(t, 2, out.Count())

	_, err = m.And([]bool{true})
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}
