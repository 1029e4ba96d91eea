package nsxfile

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/edmerix/NSxFile/internal/dsp"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minDetectionRate is the hard sampling-rate floor for spike detection.
// Spike energy lives well above 1 kHz; below 20 kS/s the waveforms are not
// recoverable.
const minDetectionRate = 20000.0

// FilterFamily selects the detection filter design.
type FilterFamily int

const (
	FamilyFIR FilterFamily = iota
	FamilyButterworth
)

// DetectOptions configures spike detection. Zero fields take the documented
// defaults.
type DetectOptions struct {
	// Channels are the target channel ordinals; empty means every loaded
	// channel. Each must be currently loaded.
	Channels []int

	// Threshold is the noise multiplier. Its sign selects the peak
	// direction: negative detects troughs, positive crests. Default -4.
	Threshold float64

	// Passband bounds the detection filter in Hz. Default [300, 5000].
	Passband [2]float64

	// Filter and FilterOrder select the filter design. Defaults: FIR of
	// order 512; Butterworth defaults to order 4 when selected.
	Filter      FilterFamily
	FilterOrder int

	// Blanking lists [start, end) intervals in seconds excluded from
	// both threshold estimation and event acceptance.
	Blanking [][2]float64

	// MaxAmplitude discards any waveform containing a sample whose
	// magnitude exceeds it. Default 1500.
	MaxAmplitude float64

	// Window is the excision window around each peak in milliseconds,
	// [pre, post]. Default [0.6, 1.0].
	Window [2]float64

	// CovarianceDraws caps the randomized covariance estimator's sample
	// count. Default 10000.
	CovarianceDraws int
}

func (o DetectOptions) withDefaults(loaded []int) DetectOptions {
	if len(o.Channels) == 0 {
		o.Channels = append([]int(nil), loaded...)
	}
	if o.Threshold == 0 {
		o.Threshold = -4
	}
	if o.Passband == [2]float64{} {
		o.Passband = [2]float64{300, 5000}
	}
	if o.FilterOrder == 0 {
		if o.Filter == FamilyButterworth {
			o.FilterOrder = 4
		} else {
			o.FilterOrder = 512
		}
	}
	if o.MaxAmplitude == 0 {
		o.MaxAmplitude = 1500
	}
	if o.Window == [2]float64{} {
		o.Window = [2]float64{0.6, 1.0}
	}
	if o.CovarianceDraws == 0 {
		o.CovarianceDraws = 10000
	}
	return o
}

// SpikeRecord holds one channel's detection result. A record with Loaded
// false marks a channel whose processing began but did not complete.
type SpikeRecord struct {
	Loaded   bool          `json:"loaded"`
	Channel  int           `json:"channel"`
	Settings DetectOptions `json:"settings"`

	// Threshold is the derived detection threshold in signal units,
	// signed by the configured direction. NoiseSD is the MAD-based noise
	// estimate it came from.
	Threshold float64 `json:"threshold"`
	NoiseSD   float64 `json:"noise_sd"`

	// Duration is the processed signal length in seconds.
	Duration float64 `json:"duration"`

	// Waveforms holds one excised window per detected event; nil when no
	// events survived. Times are the event peaks in seconds.
	Waveforms *mat.Dense `json:"-"`
	Times     []float64  `json:"times"`

	// Window is the excision window actually used, in milliseconds.
	Window [2]float64 `json:"window"`

	// Discarded counts events rejected by the amplitude ceiling.
	Discarded int `json:"discarded"`

	// Covariance estimates the background noise covariance over windows
	// of the excision length, from randomized resampling of the filtered
	// signal. It varies run to run unless the session's random source is
	// seeded.
	Covariance *mat.SymDense `json:"-"`
}

// Count returns the number of detected events.
func (r *SpikeRecord) Count() int { return len(r.Times) }

// DetectSpikes runs the detection pipeline over the requested loaded
// channels and stores one SpikeRecord per channel, replacing earlier
// records for those channels.
func (s *Session) DetectSpikes(opts DetectOptions) error {
	if s.state == StateClosed {
		return ErrNoFileOpen
	}
	if s.data == nil {
		return ErrNoDataLoaded
	}

	fs := s.data.EffectiveRate()
	if fs < minDetectionRate {
		return fmt.Errorf("%w: %g S/s, need at least %g", ErrUnsupportedSamplingRate, fs, minDetectionRate)
	}

	opts = opts.withDefaults(s.data.Channels)
	for _, ch := range opts.Channels {
		if s.data.channelRow(ch) < 0 {
			return fmt.Errorf("%w: channel %d", ErrNoDataLoaded, ch)
		}
	}

	var b, a []float64
	var err error
	switch opts.Filter {
	case FamilyButterworth:
		b, a, err = dsp.ButterworthBandpass(opts.FilterOrder, opts.Passband[0], opts.Passband[1], fs)
	default:
		b, err = dsp.FIRBandpass(opts.FilterOrder, opts.Passband[0], opts.Passband[1], fs)
	}
	if err != nil {
		return fmt.Errorf("nsxfile: designing detection filter: %w", err)
	}

	for _, ch := range opts.Channels {
		// Sentinel first: a crash or failure mid-channel leaves the
		// record distinguishable from a completed one.
		s.spikes[ch] = &SpikeRecord{Channel: ch, Settings: opts, Window: opts.Window}
		rec, err := s.detectChannel(ch, opts, b, a, fs)
		if err != nil {
			return err
		}
		s.spikes[ch] = rec
	}

	s.state = StateSpikesLoaded
	return nil
}

func (s *Session) detectChannel(channel int, opts DetectOptions, b, a []float64, fs float64) (*SpikeRecord, error) {
	signal := s.data.channelSignal(channel)
	filtered := dsp.FiltFilt(b, a, signal)

	// Raw counts to physical units, only when the electrode's
	// digital/analog ratio is an integer scale factor.
	if len(s.electrodes) >= channel {
		desc := &s.electrodes[channel-1]
		if scale, ok := desc.UnitScale(); ok {
			for i := range filtered {
				filtered[i] /= scale
			}
		} else if desc.Type == electrodeTypeTag {
			s.logger.Warn("skipping unit conversion, digital/analog ratio not integral",
				zap.Int("channel", channel),
			)
		}
	}

	mask := blankingMask(len(filtered), fs, opts.Blanking)

	noise := dsp.NoiseMAD(filtered, mask)
	magnitude := math.Abs(opts.Threshold) * noise
	threshold := magnitude
	if opts.Threshold < 0 {
		threshold = -magnitude
	}

	// Orient the signal so threshold crossings are always crests.
	oriented := filtered
	if opts.Threshold < 0 {
		oriented = make([]float64, len(filtered))
		for i, v := range filtered {
			oriented[i] = -v
		}
	}
	peaks := dsp.FindPeaks(oriented, magnitude)

	pre := int(math.Round(opts.Window[0] * fs / 1000))
	post := int(math.Round(opts.Window[1] * fs / 1000))
	windowLen := pre + post + 1

	var kept []int
	var rows []float64
	discarded := 0
peaks:
	for _, p := range peaks {
		if p-pre < 0 || p+post >= len(filtered) {
			continue
		}
		for i := p - pre; i <= p+post; i++ {
			if !mask[i] {
				continue peaks
			}
		}
		for i := p - pre; i <= p+post; i++ {
			if math.Abs(filtered[i]) > opts.MaxAmplitude {
				discarded++
				continue peaks
			}
		}
		kept = append(kept, p)
		rows = append(rows, filtered[p-pre:p+post+1]...)
	}
	if discarded > 0 {
		s.logger.Warn("discarded waveforms exceeding amplitude ceiling",
			zap.Int("channel", channel),
			zap.Int("discarded", discarded),
			zap.Float64("ceiling", opts.MaxAmplitude),
		)
	}

	times := make([]float64, len(kept))
	for i, p := range kept {
		times[i] = float64(p) / fs
	}

	rec := &SpikeRecord{
		Loaded:    true,
		Channel:   channel,
		Settings:  opts,
		Threshold: threshold,
		NoiseSD:   noise,
		Duration:  float64(len(filtered)) / fs,
		Times:     times,
		Window:    opts.Window,
		Discarded: discarded,
	}
	if len(kept) > 0 {
		rec.Waveforms = mat.NewDense(len(kept), windowLen, rows)
	}

	rec.Covariance = noiseCovariance(filtered, windowLen, opts.CovarianceDraws, s)
	return rec, nil
}

// noiseCovariance draws non-repeating random window positions from the
// filtered signal and returns the sample covariance of the resulting
// ensemble: a background-noise estimate independent of detected spikes,
// used downstream for whitening and PCA.
func noiseCovariance(filtered []float64, windowLen, draws int, s *Session) *mat.SymDense {
	valid := len(filtered) - windowLen + 1
	if valid < 2 || windowLen < 1 || draws < 1 {
		return nil
	}
	if draws > valid {
		draws = valid
	}
	starts := samplePositions(s.rng, valid, draws)

	ensemble := mat.NewDense(draws, windowLen, nil)
	for i, start := range starts {
		ensemble.SetRow(i, filtered[start:start+windowLen])
	}
	cov := mat.NewSymDense(windowLen, nil)
	stat.CovarianceMatrix(cov, ensemble, nil)
	return cov
}

// samplePositions draws `draws` distinct integers uniformly from [0, n)
// without materializing a full permutation: a partial Fisher-Yates over a
// sparse swap table, so memory stays proportional to the draw count even
// for hour-long signals.
func samplePositions(rng *rand.Rand, n, draws int) []int {
	swapped := make(map[int]int, draws)
	at := func(i int) int {
		if v, ok := swapped[i]; ok {
			return v
		}
		return i
	}

	out := make([]int, draws)
	for i := 0; i < draws; i++ {
		j := i + rng.Intn(n-i)
		out[i] = at(j)
		swapped[j] = at(i)
	}
	return out
}

// blankingMask marks samples outside every blanking interval true.
func blankingMask(n int, fs float64, blanking [][2]float64) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	for _, bl := range blanking {
		lo := int(math.Ceil(bl[0] * fs))
		hi := int(math.Ceil(bl[1] * fs))
		if lo < 0 {
			lo = 0
		}
		if hi > n {
			hi = n
		}
		for i := lo; i < hi; i++ {
			mask[i] = false
		}
	}
	return mask
}
