package nsxfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// testElectrode carries the only extended-header fields the tests vary.
type testElectrode struct {
	digitalMax int16
	analogMax  int16
}

// testSegment is one data packet: a start stamp and flat row-major samples,
// len(samples) divisible by the channel count.
type testSegment struct {
	timestamp uint64
	samples   []int16
}

func writeInt16s(buf *bytes.Buffer, v []int16) {
	for _, s := range v {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(s))
		buf.Write(b[:])
	}
}

// buildModernFile assembles a complete modern-variant recording in memory.
func buildModernFile(t *testing.T, versionMajor uint8, period, timeRes uint32, electrodes []testElectrode, segments []testSegment) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString(modernMagic)

	block := make([]byte, mainHeaderSize)
	le := binary.LittleEndian
	block[0] = versionMajor
	block[1] = 2
	copy(block[6:22], "30 kS/s")
	copy(block[22:278], "synthetic recording")
	le.PutUint32(block[278:282], period)
	le.PutUint32(block[282:286], timeRes)
	// 2021-06-15 12:30:45.500, Tuesday.
	stamps := []uint16{2021, 6, 2, 15, 12, 30, 45, 500}
	for i, v := range stamps {
		le.PutUint16(block[286+2*i:], v)
	}
	le.PutUint32(block[302:306], uint32(len(electrodes)))
	buf.Write(block)

	for i, e := range electrodes {
		ext := make([]byte, extHeaderSize)
		copy(ext[0:2], electrodeTypeTag)
		le.PutUint16(ext[2:4], uint16(i+1))
		copy(ext[4:20], "elec")
		ext[20] = 1
		ext[21] = byte(i + 1)
		le.PutUint16(ext[22:24], uint16(-e.digitalMax))
		le.PutUint16(ext[24:26], uint16(e.digitalMax))
		le.PutUint16(ext[26:28], uint16(-e.analogMax))
		le.PutUint16(ext[28:30], uint16(e.analogMax))
		copy(ext[30:46], "uV")
		le.PutUint32(ext[46:50], 300000)
		le.PutUint32(ext[50:54], 4)
		le.PutUint16(ext[54:56], 1)
		le.PutUint32(ext[56:60], 7500000)
		le.PutUint32(ext[60:64], 3)
		le.PutUint16(ext[64:66], 1)
		buf.Write(ext)
	}

	for _, seg := range segments {
		require.Zero(t, len(seg.samples)%len(electrodes), "segment samples must fill whole rows")
		buf.WriteByte(segmentMarker)
		if versionMajor >= 3 {
			var b [8]byte
			le.PutUint64(b[:], seg.timestamp)
			buf.Write(b[:])
		} else {
			var b [4]byte
			le.PutUint32(b[:], uint32(seg.timestamp))
			buf.Write(b[:])
		}
		var count [4]byte
		le.PutUint32(count[:], uint32(len(seg.samples)/len(electrodes)))
		buf.Write(count[:])
		writeInt16s(&buf, seg.samples)
	}
	return buf.Bytes()
}

// buildLegacyFile assembles a legacy-variant recording: header, channel ID
// table, then one unbroken run of samples.
func buildLegacyFile(t *testing.T, period uint32, channelIDs []uint32, samples []int16) []byte {
	t.Helper()
	require.Zero(t, len(samples)%len(channelIDs), "samples must fill whole rows")

	var buf bytes.Buffer
	buf.WriteString(legacyMagic)

	le := binary.LittleEndian
	label := make([]byte, 16)
	copy(label, "30 kS/s")
	buf.Write(label)
	var u32 [4]byte
	le.PutUint32(u32[:], period)
	buf.Write(u32[:])
	le.PutUint32(u32[:], uint32(len(channelIDs)))
	buf.Write(u32[:])
	for _, id := range channelIDs {
		le.PutUint32(u32[:], id)
		buf.Write(u32[:])
	}
	writeInt16s(&buf, samples)
	return buf.Bytes()
}

// rampSamples fills rows×channels with value = channel×1000 + row, so every
// sample identifies its own position. rowOffset shifts the row term for
// multi-segment continuity.
func rampSamples(rows, channels, rowOffset int) []int16 {
	out := make([]int16, 0, rows*channels)
	for r := 0; r < rows; r++ {
		for ch := 1; ch <= channels; ch++ {
			out = append(out, int16(ch*1000+(rowOffset+r)%900))
		}
	}
	return out
}

func openFixture(t *testing.T, raw []byte, opts ...Option) *Session {
	t.Helper()
	s, err := OpenReader(bytes.NewReader(raw), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
