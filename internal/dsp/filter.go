// Package dsp holds the filter design and robust statistics used by spike
// detection: windowed-sinc FIR and Butterworth bandpass design, zero-phase
// filtering, MAD noise estimation, and peak finding.
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
)

// FIRBandpass designs a linear-phase bandpass filter of the given order
// (order+1 taps) by windowing the ideal bandpass impulse response with a
// Hamming window. Odd orders are rounded up to keep the taps symmetric.
// Gain is normalized to unity at the passband's geometric center.
func FIRBandpass(order int, lowHz, highHz, fs float64) ([]float64, error) {
	if err := checkBand(lowHz, highHz, fs); err != nil {
		return nil, err
	}
	if order < 2 {
		order = 2
	}
	if order%2 != 0 {
		order++
	}

	f1 := lowHz / fs
	f2 := highHz / fs
	mid := float64(order) / 2

	h := make([]float64, order+1)
	for i := range h {
		k := float64(i) - mid
		var ideal float64
		if k == 0 {
			ideal = 2 * (f2 - f1)
		} else {
			ideal = (math.Sin(2*math.Pi*f2*k) - math.Sin(2*math.Pi*f1*k)) / (math.Pi * k)
		}
		window := 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(order))
		h[i] = ideal * window
	}

	fc := math.Sqrt(f1 * f2)
	var re, im float64
	for i, c := range h {
		re += c * math.Cos(2*math.Pi*fc*float64(i))
		im -= c * math.Sin(2*math.Pi*fc*float64(i))
	}
	if gain := math.Hypot(re, im); gain > 0 {
		for i := range h {
			h[i] /= gain
		}
	}
	return h, nil
}

// ButterworthBandpass designs a digital Butterworth bandpass of the given
// prototype order (2×order poles after the bandpass transform) via the
// bilinear transform. It returns transfer-function coefficients b and a.
func ButterworthBandpass(order int, lowHz, highHz, fs float64) ([]float64, []float64, error) {
	if err := checkBand(lowHz, highHz, fs); err != nil {
		return nil, nil, err
	}
	if order < 1 {
		order = 1
	}

	// Prewarp the band edges so the bilinear transform lands them
	// exactly.
	w1 := 2 * fs * math.Tan(math.Pi*lowHz/fs)
	w2 := 2 * fs * math.Tan(math.Pi*highHz/fs)
	bw := w2 - w1
	w0 := math.Sqrt(w1 * w2)

	// Analog lowpass prototype poles on the unit circle, left half-plane.
	proto := make([]complex128, order)
	for k := 0; k < order; k++ {
		theta := math.Pi * float64(2*k+order+1) / float64(2*order)
		proto[k] = cmplx.Exp(complex(0, theta))
	}

	// Lowpass-to-bandpass transform: each prototype pole splits into a
	// pair; zeros land at s = 0 (order of them), the rest at infinity.
	poles := make([]complex128, 0, 2*order)
	for _, p := range proto {
		ps := p * complex(bw/2, 0)
		disc := cmplx.Sqrt(ps*ps - complex(w0*w0, 0))
		poles = append(poles, ps+disc, ps-disc)
	}
	gain := math.Pow(bw, float64(order))

	// Bilinear transform to the z-plane. Analog zeros at s=0 map to
	// z=+1; the zeros at infinity map to z=-1.
	fs2 := complex(2*fs, 0)
	zPoles := make([]complex128, len(poles))
	var denom complex128 = 1
	for i, p := range poles {
		zPoles[i] = (fs2 + p) / (fs2 - p)
		denom *= fs2 - p
	}
	zZeros := make([]complex128, 0, 2*order)
	for i := 0; i < order; i++ {
		zZeros = append(zZeros, 1, -1)
	}
	k := gain * real(cmplx.Pow(fs2, complex(float64(order), 0))/denom)

	b := polyFromRoots(zZeros)
	a := polyFromRoots(zPoles)
	for i := range b {
		b[i] *= k
	}
	return b, a, nil
}

// polyFromRoots expands a monic polynomial from its roots, dropping the
// vanishing imaginary parts left by conjugate pairs.
func polyFromRoots(roots []complex128) []float64 {
	coeffs := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(coeffs)+1)
		for i, c := range coeffs {
			next[i] += c
			next[i+1] -= c * r
		}
		coeffs = next
	}
	out := make([]float64, len(coeffs))
	for i, c := range coeffs {
		out[i] = real(c)
	}
	return out
}

// Filter applies the transfer function b/a to x in direct form II
// transposed. Pass a = nil (or [1]) for FIR filtering.
func Filter(b, a, x []float64) []float64 {
	if len(a) == 0 {
		a = []float64{1}
	}
	if a[0] != 1 {
		b = scaled(b, 1/a[0])
		a = scaled(a, 1/a[0])
	}
	n := len(b)
	if len(a) > n {
		n = len(a)
	}
	bp := padded(b, n)
	ap := padded(a, n)

	z := make([]float64, n-1)
	y := make([]float64, len(x))
	for i, xi := range x {
		yi := bp[0] * xi
		if n > 1 {
			yi += z[0]
		}
		for j := 1; j < n-1; j++ {
			z[j-1] = bp[j]*xi + z[j] - ap[j]*yi
		}
		if n > 1 {
			z[n-2] = bp[n-1]*xi - ap[n-1]*yi
		}
		y[i] = yi
	}
	return y
}

// FiltFilt filters forward then backward for zero net phase, extending the
// signal at both ends with odd reflections to suppress edge transients.
func FiltFilt(b, a, x []float64) []float64 {
	if len(x) == 0 {
		return nil
	}
	order := len(b)
	if len(a) > order {
		order = len(a)
	}
	pad := 3 * (order - 1)
	if pad >= len(x) {
		pad = len(x) - 1
	}

	ext := make([]float64, 0, len(x)+2*pad)
	for i := pad; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := len(x) - 2; i >= len(x)-1-pad; i-- {
		ext = append(ext, 2*x[len(x)-1]-x[i])
	}

	y := Filter(b, a, ext)
	reverse(y)
	y = Filter(b, a, y)
	reverse(y)
	return y[pad : len(y)-pad]
}

func checkBand(lowHz, highHz, fs float64) error {
	nyquist := fs / 2
	if lowHz <= 0 || highHz <= lowHz || highHz >= nyquist {
		return fmt.Errorf("dsp: passband [%g, %g] Hz invalid for fs %g Hz", lowHz, highHz, fs)
	}
	return nil
}

func scaled(v []float64, s float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * s
	}
	return out
}

func padded(v []float64, n int) []float64 {
	if len(v) == n {
		return v
	}
	out := make([]float64, n)
	copy(out, v)
	return out
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}
