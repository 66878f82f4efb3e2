package capture

import (
	"math"
	"time"
)

// cadenceJitterThreshold is the maximum mean jitter, as a fraction of the
// requested timeslice, for chunk delivery to count as steady.
// Example: 1s timeslice → steady if mean jitter < 200ms
const cadenceJitterThreshold = 0.20

// CadenceStats describes how regularly the recorder delivered chunks.
type CadenceStats struct {
	// Chunks is the number of chunk timestamps analysed
	Chunks int
	// Expected is the requested timeslice
	Expected time.Duration
	// IntervalMean is the mean time between consecutive chunks
	IntervalMean time.Duration
	// IntervalMin is the shortest interval
	IntervalMin time.Duration
	// IntervalMax is the longest interval
	IntervalMax time.Duration
	// JitterMean is the mean deviation from Expected
	JitterMean time.Duration
	// JitterMax is the largest deviation from Expected
	JitterMax time.Duration
	// IsSteady is true when JitterMean < 20% of Expected
	IsSteady bool
}

// CalculateCadence computes chunk delivery statistics.
//
// The final chunk, flushed by Stop rather than by the timeslice, usually
// arrives early; it is still included, so a recording with very few chunks
// may report unsteady cadence.
func CalculateCadence(chunkTimes []time.Time, expected time.Duration) *CadenceStats {
	stats := &CadenceStats{
		Chunks:   len(chunkTimes),
		Expected: expected,
	}
	if len(chunkTimes) < 2 || expected <= 0 {
		return stats
	}

	intervals := make([]float64, 0, len(chunkTimes)-1)
	for i := 1; i < len(chunkTimes); i++ {
		intervals = append(intervals, chunkTimes[i].Sub(chunkTimes[i-1]).Seconds())
	}

	minI, maxI, sum := intervals[0], intervals[0], 0.0
	for _, iv := range intervals {
		sum += iv
		minI = math.Min(minI, iv)
		maxI = math.Max(maxI, iv)
	}
	mean := sum / float64(len(intervals))

	exp := expected.Seconds()
	var jitterSum, jitterMax float64
	for _, iv := range intervals {
		j := math.Abs(iv - exp)
		jitterSum += j
		jitterMax = math.Max(jitterMax, j)
	}
	jitterMean := jitterSum / float64(len(intervals))

	stats.IntervalMean = seconds(mean)
	stats.IntervalMin = seconds(minI)
	stats.IntervalMax = seconds(maxI)
	stats.JitterMean = seconds(jitterMean)
	stats.JitterMax = seconds(jitterMax)
	stats.IsSteady = jitterMean < exp*cadenceJitterThreshold

	return stats
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
