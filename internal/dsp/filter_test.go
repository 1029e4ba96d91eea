package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq, fs float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / fs)
	}
	return out
}

// rms over the middle half of the signal, away from filter transients.
func midRMS(x []float64) float64 {
	lo, hi := len(x)/4, 3*len(x)/4
	var sum float64
	for _, v := range x[lo:hi] {
		sum += v * v
	}
	return math.Sqrt(sum / float64(hi-lo))
}

func TestFIRBandpassSelectivity(t *testing.T) {
	fs := 30000.0
	b, err := FIRBandpass(512, 300, 5000, fs)
	require.NoError(t, err)
	assert.Len(t, b, 513)

	n := 30000
	inBand := FiltFilt(b, nil, sine(1000, fs, n))
	below := FiltFilt(b, nil, sine(50, fs, n))
	above := FiltFilt(b, nil, sine(10000, fs, n))

	ref := midRMS(sine(1000, fs, n))
	assert.InDelta(t, 1.0, midRMS(inBand)/ref, 0.15)
	assert.Less(t, midRMS(below), 0.05*ref)
	assert.Less(t, midRMS(above), 0.05*ref)
}

func TestFIRBandpassOddOrderRoundsUp(t *testing.T) {
	b, err := FIRBandpass(101, 300, 5000, 30000)
	require.NoError(t, err)
	assert.Len(t, b, 103)
	// Linear phase needs symmetric taps.
	for i := range b {
		assert.InDelta(t, b[i], b[len(b)-1-i], 1e-12)
	}
}

func TestButterworthBandpassSelectivity(t *testing.T) {
	fs := 30000.0
	b, a, err := ButterworthBandpass(4, 300, 5000, fs)
	require.NoError(t, err)
	assert.Len(t, b, 9)
	assert.Len(t, a, 9)
	assert.InDelta(t, 1.0, a[0], 1e-9)

	n := 30000
	inBand := FiltFilt(b, a, sine(1500, fs, n))
	below := FiltFilt(b, a, sine(30, fs, n))
	above := FiltFilt(b, a, sine(12000, fs, n))

	ref := midRMS(sine(1500, fs, n))
	assert.InDelta(t, 1.0, midRMS(inBand)/ref, 0.15)
	assert.Less(t, midRMS(below), 0.05*ref)
	assert.Less(t, midRMS(above), 0.05*ref)
}

func TestFiltFiltZeroPhase(t *testing.T) {
	fs := 30000.0
	b, err := FIRBandpass(256, 300, 5000, fs)
	require.NoError(t, err)

	x := sine(1000, fs, 30000)
	y := FiltFilt(b, nil, x)
	require.Len(t, y, len(x))

	// Zero net phase: the output tracks the input sample for sample in
	// the steady-state region.
	for i := 10000; i < 20000; i++ {
		assert.InDelta(t, x[i], y[i], 0.1)
	}
}

func TestFiltFiltEmptyInput(t *testing.T) {
	b, err := FIRBandpass(64, 300, 5000, 30000)
	require.NoError(t, err)
	assert.Nil(t, FiltFilt(b, nil, nil))
}

func TestBandValidation(t *testing.T) {
	fs := 30000.0
	_, err := FIRBandpass(64, 0, 5000, fs)
	assert.Error(t, err)
	_, err = FIRBandpass(64, 5000, 300, fs)
	assert.Error(t, err)
	_, err = FIRBandpass(64, 300, 15000, fs)
	assert.Error(t, err)
	_, _, err = ButterworthBandpass(4, -10, 100, fs)
	assert.Error(t, err)
}

func TestFilterImpulseMatchesTaps(t *testing.T) {
	b := []float64{0.5, 0.25, 0.125}
	impulse := make([]float64, 8)
	impulse[0] = 1

	y := Filter(b, nil, impulse)
	for i, want := range b {
		assert.InDelta(t, want, y[i], 1e-15)
	}
	for i := len(b); i < len(y); i++ {
		assert.Zero(t, y[i])
	}
}

func TestFilterFirstOrderRecursion(t *testing.T) {
	// y[n] = x[n] + 0.5 y[n-1] against a step input.
	b := []float64{1}
	a := []float64{1, -0.5}
	x := []float64{1, 1, 1, 1, 1}

	y := Filter(b, a, x)
	want := 0.0
	for i := range x {
		want = x[i] + 0.5*want
		assert.InDelta(t, want, y[i], 1e-12)
	}
}
