package extract

import "math"

const (
	// tailMargin is trimmed from the clip end before spreading samples
	tailMargin = 0.5
	// minSpread is the minimum virtual span samples are spread over
	minSpread = 8.0
	// tailGuard keeps every sample strictly before the last frame
	tailGuard = 0.1
)

// TargetTimestamps returns n sample offsets in seconds for a clip of the
// given duration:
//
//	t_i = (i/(n-1)) × max(duration − 0.5, 8), clamped to [0, duration − 0.1]
//
// Short clips are spread over a virtual 8 s span, so their tail samples all
// clamp to duration − 0.1.
func TargetTimestamps(duration float64, n int) []float64 {
	if n < 1 {
		return nil
	}

	span := math.Max(duration-tailMargin, minSpread)
	upper := math.Max(duration-tailGuard, 0)

	out := make([]float64, n)
	for i := range out {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1) * span
		}
		out[i] = math.Min(math.Max(t, 0), upper)
	}
	return out
}
