package nsxfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Units selects how a read range's bounds are interpreted.
type Units int

const (
	UnitsSeconds Units = iota
	UnitsDatapoints
)

// ReadPolicy selects the I/O strategy for materializing samples.
type ReadPolicy int

const (
	// PolicyBuffered reads every channel of each segment into memory and
	// then discards the unrequested channel rows.
	PolicyBuffered ReadPolicy = iota

	// PolicyStreaming reads only the requested channels, skipping the
	// rest on disk. Intended for recordings too large to buffer.
	PolicyStreaming
)

// ReadOptions describes one read request. The zero value reads every
// channel over the full recording in buffered mode.
type ReadOptions struct {
	// Channels holds 1-based channel ordinals, in the order the caller
	// wants them back. Empty selects all channels.
	Channels []int

	// Start and End bound the request in Units. Both zero selects the
	// full extent. Bounds are clamped to the recording.
	Start float64
	End   float64

	Units  Units
	Policy ReadPolicy

	// Stride keeps every Nth sample. This is a plain skip, not a
	// decimation filter, and must not replace proper filtering.
	Stride int
}

// LoadedData is the result of a Read: one matrix per segment in the
// resolved span, rows ordered exactly as the requested channels.
type LoadedData struct {
	// Channels are the loaded channel ordinals, in request order. Every
	// matrix in Segments has rows in this order.
	Channels []int

	// Segments holds one channels × samples matrix per resolved segment.
	// The first and last are truncated to the requested bounds; interior
	// segments are read in full.
	Segments []*mat.Dense

	// FirstSegment and LastSegment are the inclusive span of segment
	// indices the request resolved to.
	FirstSegment int
	LastSegment  int

	// StartDatapoint and EndDatapoint are the 1-based inclusive global
	// datapoint bounds after clamping.
	StartDatapoint int64
	EndDatapoint   int64

	Stride       int
	SamplingRate float64
}

// NumSamples returns the total sample count across all loaded segments.
func (d *LoadedData) NumSamples() int {
	total := 0
	for _, m := range d.Segments {
		_, c := m.Dims()
		total += c
	}
	return total
}

// EffectiveRate is the sampling rate of the loaded samples after striding.
func (d *LoadedData) EffectiveRate() float64 {
	return d.SamplingRate / float64(d.Stride)
}

// channelRow maps a channel ordinal to its row index, or -1.
func (d *LoadedData) channelRow(channel int) int {
	for i, ch := range d.Channels {
		if ch == channel {
			return i
		}
	}
	return -1
}

// channelSignal concatenates a loaded channel across all segments into one
// continuous signal.
func (d *LoadedData) channelSignal(channel int) []float64 {
	row := d.channelRow(channel)
	if row < 0 {
		return nil
	}
	out := make([]float64, 0, d.NumSamples())
	for _, m := range d.Segments {
		out = append(out, m.RawRowView(row)...)
	}
	return out
}

// Read resolves the request into segment byte spans and replaces the
// session's loaded data. Failed reads other than ErrRangeAfterEnd leave the
// loaded data unchanged only if no bytes were consumed; I/O failures are
// surfaced immediately.
func (s *Session) Read(opts ReadOptions) error {
	if s.state == StateClosed {
		return ErrNoFileOpen
	}

	channels := opts.Channels
	if len(channels) == 0 {
		channels = make([]int, s.meta.ChannelCount)
		for i := range channels {
			channels[i] = i + 1
		}
	}
	for _, ch := range channels {
		if ch < 1 || ch > s.meta.ChannelCount {
			return fmt.Errorf("nsxfile: channel %d out of range 1..%d", ch, s.meta.ChannelCount)
		}
	}

	stride := opts.Stride
	if stride < 1 {
		stride = 1
	}

	fs := s.meta.SamplingRate
	total := s.TotalDatapoints()

	// Clamp the request to the recording and derive the 1-based global
	// datapoint bounds: floor on the lower edge, ceiling on the upper.
	var startDP, endDP int64
	var spanStart, spanEnd float64
	switch opts.Units {
	case UnitsDatapoints:
		startDP = int64(opts.Start)
		endDP = int64(opts.End)
		if endDP <= 0 {
			endDP = total
		}
		startDP = clampDP(startDP, total)
		endDP = clampDP(endDP, total)
		// Cumulative sums are compared against a [start, end) range,
		// so the left bound is the count of datapoints before the
		// first requested one.
		spanStart = float64(startDP - 1)
		spanEnd = float64(endDP)
	default:
		start := opts.Start
		end := opts.End
		duration := s.Duration()
		if end <= 0 {
			end = duration
		}
		start = math.Max(0, math.Min(start, duration))
		end = math.Max(start, math.Min(end, duration))
		startDP = clampDP(int64(math.Floor(start*fs)), total)
		endDP = clampDP(int64(math.Ceil(end*fs)), total)
		spanStart = start
		spanEnd = end
	}
	if endDP < startDP {
		endDP = startDP
	}

	first, last, err := resolveSpan(s.segments, fs, spanStart, spanEnd, opts.Units)
	if err != nil {
		return err
	}

	loaded := &LoadedData{
		Channels:       append([]int(nil), channels...),
		FirstSegment:   first,
		LastSegment:    last,
		StartDatapoint: startDP,
		EndDatapoint:   endDP,
		Stride:         stride,
		SamplingRate:   fs,
	}

	// Global 1-based datapoint ordinal of the first sample in segment i.
	var cumBefore int64
	for i := 0; i < first; i++ {
		cumBefore += s.segments[i].Datapoints
	}

	for i := first; i <= last; i++ {
		seg := s.segments[i]
		segFirst := cumBefore + 1
		segLast := cumBefore + seg.Datapoints
		cumBefore = segLast

		readStart := maxInt64(startDP, segFirst)
		readEnd := minInt64(endDP, segLast)
		if readEnd < readStart {
			// A boundary-exact span can pull in a segment none of
			// whose datapoints fall inside the clamped range; it
			// contributes no matrix.
			continue
		}

		skipRows := readStart - segFirst
		rows := readEnd - readStart + 1

		var m *mat.Dense
		switch opts.Policy {
		case PolicyStreaming:
			m, err = s.readSegmentStreaming(seg, skipRows, rows, channels, stride)
		default:
			m, err = s.readSegmentBuffered(seg, skipRows, rows, channels, stride)
		}
		if err != nil {
			return fmt.Errorf("nsxfile: segment %d: %w", i, err)
		}
		loaded.Segments = append(loaded.Segments, m)
	}

	s.data = loaded
	s.state = StateDataLoaded
	return nil
}

// readSegmentBuffered reads every channel of the requested row range in one
// pass and then keeps only the requested channel rows.
func (s *Session) readSegmentBuffered(seg Segment, skipRows, rows int64, channels []int, stride int) (*mat.Dense, error) {
	rowBytes := int64(s.meta.ChannelCount) * bytesPerSample

	if _, err := s.src.Seek(seg.DataStart+skipRows*rowBytes, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}
	buf := make([]byte, rows*rowBytes)
	if _, err := io.ReadFull(s.src, buf); err != nil {
		return nil, fmt.Errorf("read %d rows: %w", rows, err)
	}

	outCols := int((rows + int64(stride) - 1) / int64(stride))
	full := mat.NewDense(s.meta.ChannelCount, outCols, nil)
	le := binary.LittleEndian
	for col := 0; col < outCols; col++ {
		rowOff := int64(col) * int64(stride) * rowBytes
		for ch := 0; ch < s.meta.ChannelCount; ch++ {
			raw := int16(le.Uint16(buf[rowOff+int64(ch)*bytesPerSample:]))
			full.Set(ch, col, float64(raw))
		}
	}

	out := mat.NewDense(len(channels), outCols, nil)
	for i, ch := range channels {
		out.SetRow(i, full.RawRowView(ch-1))
	}
	return out, nil
}

// readSegmentStreaming reads the requested channels as one contiguous byte
// strip per sample row, skipping the remainder of each row on disk.
func (s *Session) readSegmentStreaming(seg Segment, skipRows, rows int64, channels []int, stride int) (*mat.Dense, error) {
	rowBytes := int(s.meta.ChannelCount) * bytesPerSample

	minCh, maxCh := channels[0], channels[0]
	for _, ch := range channels[1:] {
		if ch < minCh {
			minCh = ch
		}
		if ch > maxCh {
			maxCh = ch
		}
	}
	stripBytes := (maxCh - minCh + 1) * bytesPerSample

	// The first read of every row starts at the lowest requested
	// channel's byte offset within the row.
	start := seg.DataStart + skipRows*int64(rowBytes) + int64(minCh-1)*bytesPerSample
	if _, err := s.src.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}
	br := bufio.NewReaderSize(s.src, 1<<16)

	outCols := int((rows + int64(stride) - 1) / int64(stride))
	out := mat.NewDense(len(channels), outCols, nil)
	strip := make([]byte, stripBytes)
	le := binary.LittleEndian

	for col := 0; col < outCols; col++ {
		if _, err := io.ReadFull(br, strip); err != nil {
			return nil, fmt.Errorf("read row %d: %w", col*stride, err)
		}
		for i, ch := range channels {
			raw := int16(le.Uint16(strip[(ch-minCh)*bytesPerSample:]))
			out.Set(i, col, float64(raw))
		}
		if col == outCols-1 {
			break
		}
		skip := rowBytes - stripBytes + (stride-1)*rowBytes
		if _, err := br.Discard(skip); err != nil {
			return nil, fmt.Errorf("skip to row %d: %w", (col+1)*stride, err)
		}
	}
	return out, nil
}

func clampDP(v, total int64) int64 {
	if v < 1 {
		return 1
	}
	if v > total {
		return total
	}
	return v
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
