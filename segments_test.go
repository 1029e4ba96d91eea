package nsxfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoSegmentFixture(t *testing.T, versionMajor uint8) []byte {
	t.Helper()
	return buildModernFile(t, versionMajor, 30, 30000,
		[]testElectrode{{digitalMax: 1000, analogMax: 1000}},
		[]testSegment{
			{timestamp: 0, samples: rampSamples(1000, 1, 0)},
			{timestamp: 45000, samples: rampSamples(500, 1, 1000)},
		},
	)
}

func TestSegmentIndexing(t *testing.T) {
	s := openFixture(t, twoSegmentFixture(t, 2))

	segs := s.Segments()
	require.Len(t, segs, 2)
	assert.Equal(t, int64(1000), segs[0].Datapoints)
	assert.Equal(t, int64(500), segs[1].Datapoints)
	assert.Equal(t, uint64(0), segs[0].Timestamp)
	assert.Equal(t, uint64(45000), segs[1].Timestamp)
	assert.True(t, s.Paused())
	assert.Equal(t, int64(1500), s.TotalDatapoints())
	assert.InDelta(t, 1.5, s.Duration(), 1e-12)

	// Segments tile the data region: each starts where the previous
	// packet ends, and the last ends at end-of-file.
	assert.Equal(t, segs[0].DataEnd+9, segs[1].DataStart)
	assert.Equal(t, s.dataEnd, segs[1].DataEnd)
}

func TestSegmentWideTimestamps(t *testing.T) {
	s := openFixture(t, twoSegmentFixture(t, 3))

	segs := s.Segments()
	require.Len(t, segs, 2)
	assert.Equal(t, uint64(45000), segs[1].Timestamp)
	// The wider stamp moves the data start by the format difference.
	assert.Equal(t, segs[0].DataEnd+13, segs[1].DataStart)
}

func TestSegmentCorruptMarkerRecovery(t *testing.T) {
	raw := twoSegmentFixture(t, 2)
	// Clobber the second packet's marker byte.
	markerOff := int64(8+mainHeaderSize+extHeaderSize) + 9 + 1000*2
	raw[markerOff] = 0x7f

	s := openFixture(t, raw)

	// The first segment absorbs the remaining bytes to end-of-file.
	segs := s.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, s.dataEnd, segs[0].DataEnd)
	assert.Greater(t, segs[0].Datapoints, int64(1000))
}

func TestSegmentCorruptFirstMarker(t *testing.T) {
	raw := twoSegmentFixture(t, 2)
	raw[8+mainHeaderSize+extHeaderSize] = 0x00

	s := openFixture(t, raw)

	// With no valid packet at all, the whole region becomes one segment.
	segs := s.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, s.dataStart, segs[0].DataStart)
}

func TestSegmentCountOverrunTruncated(t *testing.T) {
	raw := buildModernFile(t, 2, 30, 30000,
		[]testElectrode{{digitalMax: 1000, analogMax: 1000}},
		[]testSegment{{samples: rampSamples(200, 1, 0)}},
	)
	// Inflate the packet's datapoint count beyond the file.
	countOff := 8 + mainHeaderSize + extHeaderSize + 5
	raw[countOff] = 0xff
	raw[countOff+1] = 0xff

	s := openFixture(t, raw)

	segs := s.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, int64(200), segs[0].Datapoints)
	assert.Equal(t, s.dataEnd, segs[0].DataEnd)
}

func TestLegacyTrailingPartialRowTruncated(t *testing.T) {
	raw := buildLegacyFile(t, 1, []uint32{1, 2}, rampSamples(50, 2, 0))
	raw = append(raw, 0xab) // half a sample

	s := openFixture(t, raw)
	require.Len(t, s.Segments(), 1)
	assert.Equal(t, int64(50), s.Segments()[0].Datapoints)
}

func TestResolveSpanSeconds(t *testing.T) {
	segs := []Segment{
		{Datapoints: 1000},
		{Datapoints: 500},
	}
	fs := 1000.0

	cases := []struct {
		name        string
		start, end  float64
		first, last int
	}{
		{"inside first", 0.1, 0.9, 0, 0},
		{"spans both", 0.5, 1.2, 0, 1},
		{"inside second", 1.1, 1.4, 1, 1},
		{"end on boundary", 0.2, 1.0, 0, 0},
		{"end just past boundary", 0.2, 1.001, 0, 1},
		{"start on boundary", 1.0, 1.5, 1, 1},
		{"full extent", 0, 1.5, 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first, last, err := resolveSpan(segs, fs, tc.start, tc.end, UnitsSeconds)
			require.NoError(t, err)
			assert.Equal(t, tc.first, first)
			assert.Equal(t, tc.last, last)
		})
	}
}

func TestResolveSpanAfterEnd(t *testing.T) {
	segs := []Segment{{Datapoints: 1000}}
	_, _, err := resolveSpan(segs, 1000, 2.0, 3.0, UnitsSeconds)
	assert.ErrorIs(t, err, ErrRangeAfterEnd)
}

func TestResolveSpanDatapoints(t *testing.T) {
	segs := []Segment{
		{Datapoints: 1000},
		{Datapoints: 500},
	}

	// A request for the first segment's final datapoint passes 999 as
	// its left bound, which still resolves into the first segment.
	first, last, err := resolveSpan(segs, 1000, 999, 1000, UnitsDatapoints)
	require.NoError(t, err)
	assert.Equal(t, 0, first)
	assert.Equal(t, 0, last)

	first, last, err = resolveSpan(segs, 1000, 1000, 1500, UnitsDatapoints)
	require.NoError(t, err)
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, last)
}
