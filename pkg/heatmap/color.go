// Package heatmap maps current readings to colours on a log scale and lays
// out device cells and legend stops for the gio and terminal painters.
package heatmap

import (
	"image/color"
	"math"
)

var (
	Red    = color.NRGBA{R: 220, G: 40, B: 40, A: 255}
	Orange = color.NRGBA{R: 245, G: 150, B: 30, A: 255}
	Green  = color.NRGBA{R: 40, G: 190, B: 70, A: 255}
)

// Range is the current span of the colour scale, in amps.
type Range struct {
	Min float64
	Max float64
}

// DefaultRange spans the simulator's working readings.
var DefaultRange = Range{Min: 1e-10, Max: 1e-5}

// Valid reports whether the range can drive a log scale.
func (r Range) Valid() bool {
	return r.Min > 0 && r.Max > r.Min && !math.IsInf(r.Max, 1)
}

// Ratio places current on the log scale: 0 at or below Min, 1 at or above
// Max. Non-positive currents map to 0.
func Ratio(current, min, max float64) float64 {
	if !(current > 0) || math.IsNaN(current) {
		return 0
	}
	if !(min > 0) || !(max > min) {
		if current >= max {
			return 1
		}
		return 0
	}
	lo, hi := math.Log10(min), math.Log10(max)
	r := (math.Log10(math.Max(current, min)) - lo) / (hi - lo)
	return math.Max(0, math.Min(1, r))
}

// ValueToColor returns the heat map colour for current: red at min, orange
// half way, green at max.
func ValueToColor(current, min, max float64) color.NRGBA {
	return RatioColor(Ratio(current, min, max))
}

// Color is ValueToColor over r.
func (r Range) Color(current float64) color.NRGBA {
	return ValueToColor(current, r.Min, r.Max)
}

// RatioColor maps a ratio in [0, 1] onto the two-segment gradient.
func RatioColor(ratio float64) color.NRGBA {
	ratio = math.Max(0, math.Min(1, ratio))
	if ratio <= 0.5 {
		return lerp(Red, Orange, ratio/0.5)
	}
	return lerp(Orange, Green, (ratio-0.5)/0.5)
}

func lerp(a, b color.NRGBA, t float64) color.NRGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}
