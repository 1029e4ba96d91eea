package dsp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// madScale relates the median absolute deviation of Gaussian noise to its
// standard deviation.
const madScale = 0.6745

// NoiseMAD estimates the noise standard deviation of x as
// median(|x|)/0.6745, ignoring samples whose mask entry is false. A nil
// mask uses every sample.
func NoiseMAD(x []float64, mask []bool) float64 {
	abs := make([]float64, 0, len(x))
	for i, v := range x {
		if mask != nil && !mask[i] {
			continue
		}
		abs = append(abs, math.Abs(v))
	}
	if len(abs) == 0 {
		return 0
	}
	sort.Float64s(abs)
	return stat.Quantile(0.5, stat.Empirical, abs, nil) / madScale
}

// FindPeaks returns the indices of strict local maxima of x that exceed
// threshold: samples greater than both neighbors. Endpoints are never
// peaks.
func FindPeaks(x []float64, threshold float64) []int {
	var peaks []int
	for i := 1; i < len(x)-1; i++ {
		if x[i] > threshold && x[i] > x[i-1] && x[i] > x[i+1] {
			peaks = append(peaks, i)
		}
	}
	return peaks
}
