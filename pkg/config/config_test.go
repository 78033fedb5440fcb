package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofish/internal/models"
	"gofish/pkg/geometry"
	"gofish/pkg/interpolation"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gofish.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Stacking.Unit, cfg.Stacking.Unit)
	assert.True(t, cfg.Geometry.Shadowed)

	opts, err := cfg.StackingOptions()
	require.NoError(t, err)
	assert.Equal(t, models.Resample{Factor: 1}, opts.Resample)
	assert.Equal(t, models.DiskFrame, opts.Frame)
	assert.Nil(t, opts.Geometry.Surface)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
geometry:
  inc: 35
  pa: 120
  z0: 0.25
  psi: 1.25
  interpolation: linear
kinematics:
  mstar: 0.7
  dist: 140
stacking:
  rMin: 0.2
  rMax: 1.5
  paMin: -90
  paMax: 90
  maskFrame: sky
  resample: 50.0
  unit: K km/s
  velocityRange: [-1, "1.5km/s", 3]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	// Untouched sections keep their defaults.
	assert.Equal(t, 64, cfg.Cube.NX)

	p := cfg.GeometryParams()
	assert.Equal(t, 35.0, p.Inc)
	assert.Equal(t, geometry.PowerLaw{Z0: 0.25, Psi: 1.25, Z1: 0, Phi: 1}, p.Surface)

	opts, err := cfg.StackingOptions()
	require.NoError(t, err)
	assert.Equal(t, interpolation.InverseDistance, opts.Projection.Interpolation)
	assert.Equal(t, models.SkyFrame, opts.Frame)
	assert.Equal(t, models.Resample{Width: 50}, opts.Resample)
	require.NotNil(t, opts.RMin)
	assert.Equal(t, 0.2, *opts.RMin)
	assert.Equal(t, 90.0, *opts.PAMax)
	assert.Equal(t, 0.7, opts.MStar)
	assert.Equal(t, "K km/s", opts.Unit)

	rng, err := cfg.VelocityRange()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{-1, "1.5km/s", 3}, rng)

	sp, err := cfg.ShiftParams()
	require.NoError(t, err)
	assert.Equal(t, 140.0, sp.Dist)
	assert.Equal(t, 1.5, *sp.RMax)
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "geometry: [1, 2"))
	assert.Error(t, err)
}

func TestResamplePolicy(t *testing.T) {
	cfg := DefaultConfig()
	for _, tc := range []struct {
		value interface{}
		want  models.Resample
	}{
		{nil, models.Resample{Factor: 1}},
		{3, models.Resample{Factor: 3}},
		{25.0, models.Resample{Width: 25}},
		{"2", models.Resample{Factor: 2}},
		{"12.5", models.Resample{Width: 12.5}},
	} {
		cfg.Stacking.Resample = tc.value
		got, err := cfg.ResamplePolicy()
		require.NoError(t, err, "%v", tc.value)
		assert.Equal(t, tc.want, got, "%v", tc.value)
	}

	for _, bad := range []interface{}{0, -2.0, "fast", []int{1}} {
		cfg.Stacking.Resample = bad
		_, err := cfg.ResamplePolicy()
		assert.True(t, errors.Is(err, models.ErrConfiguration), "%v", bad)
	}
}

func TestConversionErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stacking.MaskFrame = "galactic"
	_, err := cfg.StackingOptions()
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	cfg = DefaultConfig()
	cfg.Geometry.Interpolation = "cubic"
	_, err = cfg.StackingOptions()
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	cfg = DefaultConfig()
	cfg.Cube.NChan = 1
	_, err = cfg.SynthParams()
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestSynthParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cube.NChan = 5
	cfg.Cube.ChanWidth = 200
	cfg.Cube.VLSR = 5000
	p, err := cfg.SynthParams()
	require.NoError(t, err)
	assert.Equal(t, []float64{4600, 4800, 5000, 5200, 5400}, p.Velax)
	require.NotNil(t, p.Beam)
	assert.Equal(t, 0.1, p.Beam.Major)

	cfg.Cube.BeamMajor = 0
	p, err = cfg.SynthParams()
	require.NoError(t, err)
	assert.Nil(t, p.Beam)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gofish.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	opts, err := cfg.StackingOptions()
	require.NoError(t, err)
	assert.Equal(t, models.Resample{Factor: 1}, opts.Resample)
	assert.Equal(t, DefaultConfig().Cube, cfg.Cube)
}
