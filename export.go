package nsxfile

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// SortingRecord repackages per-channel detection results into the shape a
// spike-sorting toolbox expects: all waveforms stacked, spike times, a
// per-spike channel tag, the detection metadata, and a PCA-ready
// decomposition of the waveform ensemble.
type SortingRecord struct {
	// Waveforms stacks every channel's events, channel by channel in
	// ascending channel order. Times and Channels run parallel to its
	// rows.
	Waveforms *mat.Dense
	Times     []float64
	Channels  []int

	// Thresholds and NoiseSD record the detection metadata per channel.
	Thresholds map[int]float64
	NoiseSD    map[int]float64

	SamplingRate float64
	Window       [2]float64

	// Scores are the PCA projections of the mean-centered waveforms
	// (spikes × components); Components holds the right-singular
	// vectors (window samples × components).
	Scores     *mat.Dense
	Components *mat.Dense
}

// ExportSorting builds a SortingRecord from completed spike records. The
// PCA decomposition is the thin SVD of the mean-centered waveform matrix.
// Channels with Loaded false or no events contribute only their metadata.
func ExportSorting(records map[int]*SpikeRecord, samplingRate float64) (*SortingRecord, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("nsxfile: no spike records to export")
	}

	channels := make([]int, 0, len(records))
	for ch := range records {
		channels = append(channels, ch)
	}
	sort.Ints(channels)

	out := &SortingRecord{
		Thresholds:   make(map[int]float64, len(records)),
		NoiseSD:      make(map[int]float64, len(records)),
		SamplingRate: samplingRate,
	}

	windowLen := 0
	totalSpikes := 0
	for _, ch := range channels {
		rec := records[ch]
		out.Thresholds[ch] = rec.Threshold
		out.NoiseSD[ch] = rec.NoiseSD
		out.Window = rec.Window
		if !rec.Loaded || rec.Waveforms == nil {
			continue
		}
		r, c := rec.Waveforms.Dims()
		if windowLen == 0 {
			windowLen = c
		} else if c != windowLen {
			return nil, fmt.Errorf("nsxfile: channel %d window length %d differs from %d", ch, c, windowLen)
		}
		totalSpikes += r
	}
	if totalSpikes == 0 {
		return out, nil
	}

	stacked := mat.NewDense(totalSpikes, windowLen, nil)
	out.Times = make([]float64, 0, totalSpikes)
	out.Channels = make([]int, 0, totalSpikes)
	row := 0
	for _, ch := range channels {
		rec := records[ch]
		if !rec.Loaded || rec.Waveforms == nil {
			continue
		}
		r, _ := rec.Waveforms.Dims()
		for i := 0; i < r; i++ {
			stacked.SetRow(row, rec.Waveforms.RawRowView(i))
			row++
		}
		out.Times = append(out.Times, rec.Times...)
		for range rec.Times {
			out.Channels = append(out.Channels, ch)
		}
	}
	out.Waveforms = stacked

	scores, components, err := waveformPCA(stacked)
	if err != nil {
		return nil, err
	}
	out.Scores = scores
	out.Components = components
	return out, nil
}

// waveformPCA mean-centers the waveform matrix column-wise and takes its
// thin SVD; scores are U scaled by the singular values.
func waveformPCA(waveforms *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	rows, cols := waveforms.Dims()

	centered := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		var mean float64
		for i := 0; i < rows; i++ {
			mean += waveforms.At(i, j)
		}
		mean /= float64(rows)
		for i := 0; i < rows; i++ {
			centered.Set(i, j, waveforms.At(i, j)-mean)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, nil, fmt.Errorf("nsxfile: waveform SVD failed to converge")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	scores := mat.NewDense(rows, len(values), nil)
	for i := 0; i < rows; i++ {
		for j := range values {
			scores.Set(i, j, u.At(i, j)*values[j])
		}
	}
	return scores, &v, nil
}
