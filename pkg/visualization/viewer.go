// Package visualization writes cube planes and 2D maps (channel maps,
// position-velocity slices, background residuals and teardrop plots) as
// grayscale PNG images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
)

// Viewer extracts planes from a channel-major cube of width x height pixels
// and depth channels.
type Viewer struct {
	// data holds the samples, index z*width*height + y*width + x
	data []float64

	width  int
	height int
	depth  int

	// lo, hi is the finite data range mapped to black and white
	lo, hi float64
}

// NewViewer creates a viewer over data. The grey scale spans the finite
// range of the whole cube so that planes are comparable.
func NewViewer(data []float64, width, height, depth int) (*Viewer, error) {
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%dx%d", width, height, depth)
	}
	if len(data) != width*height*depth {
		return nil, fmt.Errorf("%d samples do not match %dx%dx%d", len(data), width, height, depth)
	}
	lo, hi := finiteRange(data)
	return &Viewer{data: data, width: width, height: height, depth: depth, lo: lo, hi: hi}, nil
}

// ExtractSlice extracts a plane of the cube. Axis "v" gives the channel map
// at channel position, "x" the position-velocity slice through column
// position (channels along x of the image) and "y" the slice through row
// position. NaN samples are black.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.Gray16

	switch axis {
	case "v", "V":
		if position >= v.depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.depth)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.height))
		for y := 0; y < v.height; y++ {
			for x := 0; x < v.width; x++ {
				idx := position*v.width*v.height + y*v.width + x
				img.SetGray16(x, v.height-1-y, v.gray(v.data[idx]))
			}
		}

	case "x", "X":
		if position >= v.width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.width)
		}
		img = image.NewGray16(image.Rect(0, 0, v.depth, v.height))
		for y := 0; y < v.height; y++ {
			for z := 0; z < v.depth; z++ {
				idx := z*v.width*v.height + y*v.width + position
				img.SetGray16(z, v.height-1-y, v.gray(v.data[idx]))
			}
		}

	case "y", "Y":
		if position >= v.height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.height)
		}
		img = image.NewGray16(image.Rect(0, 0, v.depth, v.width))
		for x := 0; x < v.width; x++ {
			for z := 0; z < v.depth; z++ {
				idx := z*v.width*v.height + position*v.width + x
				img.SetGray16(z, x, v.gray(v.data[idx]))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be v, x, or y)", axis)
	}

	return img, nil
}

func (v *Viewer) gray(value float64) color.Gray16 {
	return grayLevel(value, v.lo, v.hi)
}

// SaveSlice saves an extracted slice as a PNG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	return savePNG(img, filename)
}

// SaveSliceSequence extracts and saves every slice along the axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "v", "V":
		maxPos = v.depth
	case "x", "X":
		maxPos = v.width
	case "y", "Y":
		maxPos = v.height
	default:
		return fmt.Errorf("invalid axis: %s (must be v, x, or y)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// MapImage renders a row-major width x height map, first row at the bottom
// like a sky image. The grey scale spans the finite range of the map.
func MapImage(data []float64, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 || len(data) != width*height {
		return nil, fmt.Errorf("%d samples do not match a %dx%d map", len(data), width, height)
	}
	lo, hi := finiteRange(data)
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray16(x, height-1-y, grayLevel(data[y*width+x], lo, hi))
		}
	}
	return img, nil
}

// SaveMap writes a 2D map such as a background residual as a PNG image.
func SaveMap(data []float64, width, height int, filename string) error {
	img, err := MapImage(data, width, height)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return savePNG(img, filename)
}

// Teardrop lays out radial spectra, one [velax, flux, scatter] triple per
// radial bin, as a map with the bins along y and the channels along x.
func Teardrop(spectra [][3][]float64) (data []float64, width, height int, err error) {
	if len(spectra) == 0 {
		return nil, 0, 0, fmt.Errorf("no spectra")
	}
	width, height = len(spectra[0][1]), len(spectra)
	data = make([]float64, 0, width*height)
	for i, s := range spectra {
		if len(s[1]) != width {
			return nil, 0, 0, fmt.Errorf("spectrum %d has %d channels, expected %d", i, len(s[1]), width)
		}
		data = append(data, s[1]...)
	}
	return data, width, height, nil
}

func savePNG(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

func grayLevel(value, lo, hi float64) color.Gray16 {
	if math.IsNaN(value) || math.IsInf(value, 0) || !(hi > lo) {
		return color.Gray16{Y: 0}
	}
	scaled := (value - lo) / (hi - lo)
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, scaled*65535)))}
}

func finiteRange(data []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
