package dsp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoiseMADKnownValues(t *testing.T) {
	x := []float64{-3, 1, 0, -1, 3}
	// median(|x|) = 1
	assert.InDelta(t, 1/0.6745, NoiseMAD(x, nil), 1e-12)
}

func TestNoiseMADMask(t *testing.T) {
	x := []float64{1, 1, 1, 1000, 1000, 1000}
	mask := []bool{true, true, true, false, false, false}
	assert.InDelta(t, 1/0.6745, NoiseMAD(x, mask), 1e-12)

	// Everything masked yields zero rather than a panic.
	none := []bool{false, false, false, false, false, false}
	assert.Zero(t, NoiseMAD(x, none))
}

func TestNoiseMADTracksGaussianSigma(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sigma := 2.5
	x := make([]float64, 200000)
	for i := range x {
		x[i] = rng.NormFloat64() * sigma
	}
	est := NoiseMAD(x, nil)
	assert.InDelta(t, sigma, est, 0.05)
}

func TestFindPeaks(t *testing.T) {
	x := []float64{0, 5, 0, 3, 4, 3, 0, 9}

	peaks := FindPeaks(x, 2)
	assert.Equal(t, []int{1, 4}, peaks)

	// Threshold excludes the smaller crest; endpoints never qualify.
	peaks = FindPeaks(x, 4.5)
	assert.Equal(t, []int{1}, peaks)

	assert.Empty(t, FindPeaks(x, 100))
	assert.Empty(t, FindPeaks([]float64{1, 2}, 0))
}

func TestFindPeaksPlateauIsNotAPeak(t *testing.T) {
	x := []float64{0, 5, 5, 0}
	assert.Empty(t, FindPeaks(x, 1))
}

func TestFindPeaksNegativeThreshold(t *testing.T) {
	// A negative threshold still requires strict local maxima.
	x := []float64{-4, -1, -4, -6, -5, -6}
	peaks := FindPeaks(x, math.Inf(-1))
	assert.Equal(t, []int{1, 4}, peaks)
}
