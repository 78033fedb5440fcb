package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/sgostarter/i/l"
	"gonum.org/v1/gonum/floats"

	"gofish/pkg/config"
	"gofish/pkg/shift"
	"gofish/pkg/stacking"
	"gofish/pkg/synth"
	"gofish/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "gofish.yaml", "YAML configuration file (defaults are used when missing)")
	outputDir := flag.String("out", "", "Directory for maps, overrides output.mapDir")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: from config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *outputDir != "" {
		cfg.Output.MapDir = *outputDir
		cfg.Output.SaveMaps = true
	}

	var logger l.Wrapper = l.NewNopLoggerWrapper()
	if cfg.Output.Verbose {
		logger = l.NewConsoleLoggerWrapper()
	}

	fmt.Println("================================")
	fmt.Println("GOFISH: KEPLERIAN STACKING OF SPECTRAL LINE CUBES")
	fmt.Println("================================")

	// Synthesise the input cube
	synthParams, err := cfg.SynthParams()
	if err != nil {
		log.Fatalf("Invalid cube description: %v", err)
	}
	synthParams.Logger = logger
	c, err := synth.Disk(synthParams)
	if err != nil {
		log.Fatalf("Failed to build synthetic cube: %v", err)
	}
	fmt.Printf("Synthetic cube: %d x %d pixels, %d channels of %.1f m/s, beam %.3f\"\n",
		c.NX(), c.NY(), c.NChan(), c.Chan(), c.Beam().Major)

	opts, err := cfg.StackingOptions()
	if err != nil {
		log.Fatalf("Invalid stacking options: %v", err)
	}
	veloRange, err := cfg.VelocityRange()
	if err != nil {
		log.Fatalf("Invalid velocity range: %v", err)
	}

	stacker := stacking.NewStacker(c, &stacking.Params{
		Logger:   logger,
		Rand:     rand.New(rand.NewSource(cfg.Stacking.Seed)),
		NumCores: cfg.Processing.NumCores,
	})

	// Spectrum over the whole region
	startTime := time.Now()
	flux, _, err := stacking.ParseUnit(opts.Unit)
	if err != nil {
		log.Fatalf("Invalid unit: %v", err)
	}
	spectrumOpts := opts
	spectrumOpts.Unit = flux
	var spectrum stacking.Spectrum
	if flux == "jy" || flux == "mjy" {
		spectrum, err = stacker.IntegratedSpectrum(spectrumOpts)
	} else {
		spectrum, err = stacker.AverageSpectrum(spectrumOpts)
	}
	if err != nil {
		log.Fatalf("Spectrum failed: %v", err)
	}
	peak := floats.MaxIdx(spectrum.Flux)
	fmt.Printf("\nStacked spectrum: %d channels, peak %.4g %s at %.1f m/s\n",
		len(spectrum.Flux), spectrum.Flux[peak], flux, spectrum.Velax[peak])

	// Radial profile
	profile, err := stacker.RadialProfile(nil, nil, opts.Unit, veloRange, opts)
	if err != nil {
		log.Fatalf("Radial profile failed: %v", err)
	}
	fmt.Printf("\nRadial profile (%s):\n", opts.Unit)
	for i := range profile.R {
		fmt.Printf("  r = %6.3f\"  %10.4g +/- %.2g\n", profile.R[i], profile.Value[i], profile.Sigma[i])
	}

	// Shifted cube
	shiftParams, err := cfg.ShiftParams()
	if err != nil {
		log.Fatalf("Invalid shift parameters: %v", err)
	}
	shifted, err := shift.Build(c, shiftParams, shift.Options{NumWorkers: cfg.Processing.NumCores, Logger: logger})
	if err != nil {
		log.Fatalf("Shifted cube failed: %v", err)
	}
	processingTime := time.Since(startTime)
	fmt.Printf("\nShifted cube built with %d channels\n", len(shifted.Velax))
	fmt.Printf("Total processing time: %.2f seconds on %d cores\n", processingTime.Seconds(), cfg.Processing.NumCores)

	if !cfg.Output.SaveMaps {
		return
	}

	// Save maps if requested
	fmt.Println("\nSaving maps...")
	mapDir := cfg.Output.MapDir

	viewer, err := visualization.NewViewer(shifted.Data, shifted.NX, shifted.NY, len(shifted.Velax))
	if err != nil {
		log.Fatalf("Failed to create viewer: %v", err)
	}
	if err := viewer.SaveSliceSequence("v", filepath.Join(mapDir, "shifted")); err != nil {
		log.Printf("Warning: Failed to save shifted channel maps: %v", err)
	}

	radial, err := stacker.RadialSpectra(nil, nil, spectrumOpts)
	if err != nil {
		log.Printf("Warning: Failed to stack radial spectra: %v", err)
	} else {
		data, width, height, err := visualization.Teardrop(radial.Array())
		if err == nil {
			err = visualization.SaveMap(data, width, height, filepath.Join(mapDir, "teardrop.png"))
		}
		if err != nil {
			log.Printf("Warning: Failed to save teardrop map: %v", err)
		}
	}

	fmt.Printf("Maps saved to: %s\n", mapDir)
}
