// Package config provides configuration loading and management for gofish.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"gofish/internal/models"
	"gofish/pkg/geometry"
	"gofish/pkg/interpolation"
	"gofish/pkg/shift"
	"gofish/pkg/stacking"
	"gofish/pkg/synth"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Geometry of the disk
	Geometry struct {
		// X0, Y0 are the source offsets in arcsec
		X0 float64 `yaml:"x0"`
		Y0 float64 `yaml:"y0"`

		// Inc and PA are the inclination and position angle in degrees
		Inc float64 `yaml:"inc"`
		PA  float64 `yaml:"pa"`

		// Z0, Psi, Z1, Phi describe the emission surface z(r) = z0 r^psi + z1 r^phi
		Z0  float64 `yaml:"z0"`
		Psi float64 `yaml:"psi"`
		Z1  float64 `yaml:"z1"`
		Phi float64 `yaml:"phi"`

		// Shadowed selects the occlusion-aware solver
		Shadowed bool `yaml:"shadowed"`

		// Extend and Oversample size the shadowed solver's disk grid
		Extend     float64 `yaml:"extend"`
		Oversample float64 `yaml:"oversample"`

		// Interpolation is "nearest" or "linear"
		Interpolation string `yaml:"interpolation"`
	} `yaml:"geometry"`

	// Kinematics of the central star
	Kinematics struct {
		// MStar is the stellar mass in solar masses
		MStar float64 `yaml:"mstar"`

		// Dist is the source distance in parsec
		Dist float64 `yaml:"dist"`
	} `yaml:"kinematics"`

	// Stacking parameters
	Stacking struct {
		// RMin, RMax bound the stacked region in arcsec. Unset uses the whole field.
		RMin *float64 `yaml:"rMin,omitempty"`
		RMax *float64 `yaml:"rMax,omitempty"`

		// DR is the radial bin width in arcsec, 0 for the default
		DR float64 `yaml:"dr"`

		// PAMin, PAMax restrict the polar angle in degrees
		PAMin     *float64 `yaml:"paMin,omitempty"`
		PAMax     *float64 `yaml:"paMax,omitempty"`
		ExcludePA bool     `yaml:"excludePA"`
		AbsPA     bool     `yaml:"absPA"`

		// MaskFrame is "disk" or "sky"
		MaskFrame string `yaml:"maskFrame"`

		// Resample is an integer supersampling factor, or a channel width
		// in m/s when given as a float such as 50.0
		Resample interface{} `yaml:"resample"`

		// BeamSpacing subsamples annuli to about one spectrum per beam
		BeamSpacing float64 `yaml:"beamSpacing"`

		AssumeCorrelated bool `yaml:"assumeCorrelated"`
		SkipEmptyAnnuli  bool `yaml:"skipEmptyAnnuli"`

		// Unit of the spectra and profiles, e.g. "Jy/beam" or "K km/s"
		Unit string `yaml:"unit"`

		// VelocityRange limits profile integration: channel integers,
		// velocities in m/s, or strings like "-1.2km/s"
		VelocityRange []interface{} `yaml:"velocityRange,omitempty"`

		// Seed seeds the beam-spacing offsets and weight jitter
		Seed int64 `yaml:"seed"`
	} `yaml:"stacking"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// SaveMaps writes channel, residual and teardrop maps as PNG
		SaveMaps bool `yaml:"saveMaps"`

		// MapDir is the directory the maps are written to
		MapDir string `yaml:"mapDir"`
	} `yaml:"output"`

	// Cube describes the synthetic cube generated by the command line tool
	Cube struct {
		NX        int     `yaml:"nx"`
		NY        int     `yaml:"ny"`
		DPix      float64 `yaml:"dpix"`
		NChan     int     `yaml:"nchan"`
		ChanWidth float64 `yaml:"chanWidth"`
		VLSR      float64 `yaml:"vlsr"`
		Peak      float64 `yaml:"peak"`
		RC        float64 `yaml:"rc"`
		RMax      float64 `yaml:"rMax"`
		LineWidth float64 `yaml:"lineWidth"`
		Noise     float64 `yaml:"noise"`
		BeamMajor float64 `yaml:"beamMajor"`
		BeamMinor float64 `yaml:"beamMinor"`
		BeamPA    float64 `yaml:"beamPA"`
		RestFreq  float64 `yaml:"restFreq"`
		Seed      int64   `yaml:"seed"`
	} `yaml:"cube"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Face-on, flat disk solved with the shadowed solver
	cfg.Geometry.Psi = 1
	cfg.Geometry.Phi = 1
	cfg.Geometry.Shadowed = true
	cfg.Geometry.Extend = 2
	cfg.Geometry.Oversample = 2
	cfg.Geometry.Interpolation = "nearest"

	cfg.Kinematics.MStar = 1
	cfg.Kinematics.Dist = 100

	cfg.Stacking.MaskFrame = "disk"
	cfg.Stacking.Resample = 1
	cfg.Stacking.AssumeCorrelated = true
	cfg.Stacking.SkipEmptyAnnuli = true
	cfg.Stacking.Unit = "Jy/beam"
	cfg.Stacking.Seed = 1

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.Output.Verbose = true
	cfg.Output.SaveMaps = false
	cfg.Output.MapDir = "maps"

	cfg.Cube.NX = 64
	cfg.Cube.NY = 64
	cfg.Cube.DPix = 0.05
	cfg.Cube.NChan = 61
	cfg.Cube.ChanWidth = 100
	cfg.Cube.Peak = 1
	cfg.Cube.RC = 0.6
	cfg.Cube.RMax = 1.4
	cfg.Cube.LineWidth = 150
	cfg.Cube.Noise = 0.02
	cfg.Cube.BeamMajor = 0.1
	cfg.Cube.BeamMinor = 0.1
	cfg.Cube.RestFreq = 230.538e9
	cfg.Cube.Seed = 1

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// GeometryParams returns the disk geometry described by the configuration
func (cfg *Config) GeometryParams() geometry.Params {
	g := cfg.Geometry
	p := geometry.Params{X0: g.X0, Y0: g.Y0, Inc: g.Inc, PA: g.PA}
	if g.Z0 != 0 || g.Z1 != 0 {
		p.Surface = geometry.PowerLaw{Z0: g.Z0, Psi: g.Psi, Z1: g.Z1, Phi: g.Phi}
	}
	return p
}

// ProjectionOptions returns the solver options described by the configuration
func (cfg *Config) ProjectionOptions() (geometry.Options, error) {
	method, err := interpolation.ParseMethod(cfg.Geometry.Interpolation)
	if err != nil {
		return geometry.Options{}, err
	}
	return geometry.Options{
		Shadowed:      cfg.Geometry.Shadowed,
		Extend:        cfg.Geometry.Extend,
		Oversample:    cfg.Geometry.Oversample,
		Interpolation: method,
		Workers:       cfg.Processing.NumCores,
	}, nil
}

// ResamplePolicy interprets the resample entry: integers (or integer
// strings) are supersampling factors, floats are channel widths in m/s.
func (cfg *Config) ResamplePolicy() (models.Resample, error) {
	switch v := cfg.Stacking.Resample.(type) {
	case nil:
		return models.Resample{Factor: 1}, nil
	case int, int64, uint, uint64:
		factor, err := cast.ToIntE(v)
		if err != nil || factor <= 0 {
			return models.Resample{}, fmt.Errorf("%w: resample factor must be a positive integer, got %v", models.ErrConfiguration, v)
		}
		return models.Resample{Factor: factor}, nil
	case float32, float64:
		width, err := cast.ToFloat64E(v)
		if err != nil || !(width > 0) {
			return models.Resample{}, fmt.Errorf("%w: resample width must be positive, got %v", models.ErrConfiguration, v)
		}
		return models.Resample{Width: width}, nil
	case string:
		if factor, err := cast.ToIntE(v); err == nil && factor > 0 {
			return models.Resample{Factor: factor}, nil
		}
		width, err := cast.ToFloat64E(v)
		if err != nil || !(width > 0) {
			return models.Resample{}, fmt.Errorf("%w: cannot interpret resample %q", models.ErrConfiguration, v)
		}
		return models.Resample{Width: width}, nil
	default:
		return models.Resample{}, fmt.Errorf("%w: cannot interpret resample %v (%T)", models.ErrConfiguration, v, v)
	}
}

// StackingOptions returns the options for the stacking entry points
func (cfg *Config) StackingOptions() (stacking.Options, error) {
	projection, err := cfg.ProjectionOptions()
	if err != nil {
		return stacking.Options{}, err
	}
	frame, err := models.ParseFrame(cfg.Stacking.MaskFrame)
	if err != nil {
		return stacking.Options{}, err
	}
	resample, err := cfg.ResamplePolicy()
	if err != nil {
		return stacking.Options{}, err
	}

	s := cfg.Stacking
	opts := stacking.DefaultOptions()
	opts.Geometry = cfg.GeometryParams()
	opts.Projection = projection
	opts.MStar = cfg.Kinematics.MStar
	opts.Dist = cfg.Kinematics.Dist
	opts.RMin, opts.RMax = s.RMin, s.RMax
	opts.DR = s.DR
	opts.PAMin, opts.PAMax = s.PAMin, s.PAMax
	opts.ExcludePA = s.ExcludePA
	opts.AbsPA = s.AbsPA
	opts.Frame = frame
	opts.Resample = resample
	opts.BeamSpacing = s.BeamSpacing
	opts.AssumeCorrelated = s.AssumeCorrelated
	opts.SkipEmptyAnnuli = s.SkipEmptyAnnuli
	opts.Unit = s.Unit
	return opts, nil
}

// VelocityRange returns the profile integration range, checking that every
// entry can be read as a channel or a velocity.
func (cfg *Config) VelocityRange() ([]interface{}, error) {
	if cfg.Stacking.VelocityRange == nil {
		return nil, nil
	}
	out := make([]interface{}, len(cfg.Stacking.VelocityRange))
	for i, v := range cfg.Stacking.VelocityRange {
		switch t := v.(type) {
		case int, int64, float64, string:
			out[i] = t
		default:
			s, err := cast.ToStringE(t)
			if err != nil {
				return nil, fmt.Errorf("%w: velocity range entry %v (%T)", models.ErrConfiguration, v, v)
			}
			out[i] = s
		}
	}
	return out, nil
}

// ShiftParams returns the disk model for building shifted cubes
func (cfg *Config) ShiftParams() (shift.Params, error) {
	projection, err := cfg.ProjectionOptions()
	if err != nil {
		return shift.Params{}, err
	}
	return shift.Params{
		Geometry:   cfg.GeometryParams(),
		Projection: projection,
		MStar:      cfg.Kinematics.MStar,
		Dist:       cfg.Kinematics.Dist,
		RMin:       cfg.Stacking.RMin,
		RMax:       cfg.Stacking.RMax,
	}, nil
}

// SynthParams returns the synthetic cube described by the configuration,
// sharing the disk geometry and kinematics.
func (cfg *Config) SynthParams() (synth.Params, error) {
	c := cfg.Cube
	if c.NChan < 2 || !(c.ChanWidth > 0) {
		return synth.Params{}, fmt.Errorf("%w: synthetic cube needs at least two channels of positive width", models.ErrConfiguration)
	}
	projection, err := cfg.ProjectionOptions()
	if err != nil {
		return synth.Params{}, err
	}

	velax := make([]float64, c.NChan)
	for i := range velax {
		velax[i] = c.VLSR + (float64(i)-float64(c.NChan-1)/2)*c.ChanWidth
	}
	p := synth.Params{
		NX:            c.NX,
		NY:            c.NY,
		DPix:          c.DPix,
		Velax:         velax,
		Geometry:      cfg.GeometryParams(),
		Projection:    projection,
		MStar:         cfg.Kinematics.MStar,
		Dist:          cfg.Kinematics.Dist,
		VLSR:          c.VLSR,
		Peak:          c.Peak,
		RC:            c.RC,
		RMax:          c.RMax,
		LineWidth:     c.LineWidth,
		Noise:         c.Noise,
		Rand:          rand.New(rand.NewSource(c.Seed)),
		RestFrequency: c.RestFreq,
		BUnit:         "Jy/beam",
	}
	if c.BeamMajor > 0 && c.BeamMinor > 0 {
		p.Beam = &models.Beam{Major: c.BeamMajor, Minor: c.BeamMinor, PA: c.BeamPA}
	}
	return p, nil
}
