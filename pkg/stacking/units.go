package stacking

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	"gofish/internal/models"
)

var fluxUnits = map[string]bool{
	"mjy":      true,
	"jy":       true,
	"mk":       true,
	"k":        true,
	"mjy/beam": true,
	"jy/beam":  true,
}

// ParseUnit splits a unit string such as "Jy/beam km/s" into its lower-case
// flux and velocity parts. The velocity part is empty when absent. "/pix" is
// accepted as an alias of "/beam".
func ParseUnit(unit string) (flux, velocity string, err error) {
	flux = unit
	if parts := strings.Split(unit, " "); len(parts) == 2 {
		flux, velocity = parts[0], strings.ToLower(parts[1])
	}
	flux = strings.ReplaceAll(strings.ToLower(flux), "/pix", "/beam")
	if !fluxUnits[flux] {
		return "", "", fmt.Errorf("%w: unknown flux unit %q", models.ErrConfiguration, flux)
	}
	if velocity != "" && velocity != "m/s" && velocity != "km/s" {
		return "", "", fmt.Errorf("%w: unknown velocity unit %q", models.ErrConfiguration, velocity)
	}
	return flux, velocity, nil
}

// ParseChannelRange converts a velocity range into an inclusive channel
// index range of velax. Each entry is a channel index (integer), a velocity
// in m/s (float), or a string with an explicit unit such as "1.2km/s" or
// "-300 m/s". A nil range spans every channel.
func ParseChannelRange(velax []float64, values []interface{}) (lo, hi int, err error) {
	if len(velax) == 0 {
		return 0, 0, fmt.Errorf("%w: empty velocity axis", models.ErrConfiguration)
	}
	if values == nil {
		return 0, len(velax) - 1, nil
	}
	if len(values) == 0 {
		return 0, 0, fmt.Errorf("%w: empty velocity range", models.ErrConfiguration)
	}

	lo, hi = math.MaxInt, math.MinInt
	for _, v := range values {
		idx, err := parseChannel(velax, v)
		if err != nil {
			return 0, 0, err
		}
		lo = min(lo, idx)
		hi = max(hi, idx)
	}
	if lo < 0 || hi >= len(velax) {
		return 0, 0, fmt.Errorf("%w: channel range [%d, %d] outside [0, %d]", models.ErrConfiguration, lo, hi, len(velax)-1)
	}
	return lo, hi, nil
}

func parseChannel(velax []float64, v interface{}) (int, error) {
	switch t := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return cast.ToIntE(t)
	case float32, float64:
		f, err := cast.ToFloat64E(t)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
		}
		return nearestChannel(velax, f), nil
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		scale := 1.0
		switch {
		case strings.HasSuffix(s, "km/s"):
			s, scale = strings.TrimSuffix(s, "km/s"), 1e3
		case strings.HasSuffix(s, "m/s"):
			s = strings.TrimSuffix(s, "m/s")
		default:
			return 0, fmt.Errorf("%w: velocity %q needs a m/s or km/s unit", models.ErrConfiguration, t)
		}
		f, err := cast.ToFloat64E(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("%w: cannot parse velocity %q: %v", models.ErrConfiguration, t, err)
		}
		return nearestChannel(velax, f*scale), nil
	default:
		return 0, fmt.Errorf("%w: unrecognised velocity range entry %v (%T)", models.ErrConfiguration, v, v)
	}
}

func nearestChannel(velax []float64, v float64) int {
	best := 0
	for i := range velax {
		if math.Abs(velax[i]-v) < math.Abs(velax[best]-v) {
			best = i
		}
	}
	return best
}
