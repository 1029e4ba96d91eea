package nsxfile

import (
	"encoding/binary"
	"fmt"
	"io"

	"go.uber.org/zap"
)

const segmentMarker = 0x01

// timestampWidth returns the byte width of segment timestamps for the open
// variant. File-format major version 3 widened timestamps to 64 bits.
func timestampWidth(meta *FileMetadata) int {
	if meta.VersionMajor >= 3 {
		return 8
	}
	return 4
}

// indexSegments scans the data region once and builds the ordered segment
// table. The legacy variant has no markers: the whole region is one
// implicit segment, with any trailing partial sample row truncated.
func indexSegments(r io.ReadSeeker, meta *FileMetadata, dataStart, dataEnd int64, logger *zap.Logger) ([]Segment, error) {
	rowBytes := int64(meta.ChannelCount) * bytesPerSample
	if rowBytes == 0 {
		return nil, fmt.Errorf("nsxfile: header reports zero channels")
	}

	if meta.Format == legacyMagic {
		region := dataEnd - dataStart
		datapoints := region / rowBytes
		if rem := region % rowBytes; rem != 0 {
			logger.Warn("data region is not a whole number of sample rows, truncating",
				zap.Int64("remainder_bytes", rem),
			)
		}
		return []Segment{{
			Datapoints: datapoints,
			DataStart:  dataStart,
			DataEnd:    dataStart + datapoints*rowBytes,
		}}, nil
	}

	tsWidth := timestampWidth(meta)
	headerBytes := int64(1 + tsWidth + 4)

	var segments []Segment
	pos := dataStart
	buf := make([]byte, headerBytes)
	for pos < dataEnd {
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return nil, fmt.Errorf("nsxfile: seeking segment header at %d: %w", pos, err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("nsxfile: reading segment header at %d: %w", pos, err)
		}

		if buf[0] != segmentMarker {
			// Known corruption pattern in trailing segment markers:
			// stop indexing and stretch the last valid segment to
			// end-of-file, sizing it from the remaining byte length.
			logger.Warn("corrupt segment marker, recovering final segment from remaining bytes",
				zap.Int64("offset", pos),
				zap.Uint8("marker", buf[0]),
			)
			if len(segments) == 0 {
				datapoints := (dataEnd - dataStart) / rowBytes
				segments = append(segments, Segment{
					Datapoints: datapoints,
					DataStart:  dataStart,
					DataEnd:    dataStart + datapoints*rowBytes,
				})
				break
			}
			last := &segments[len(segments)-1]
			last.Datapoints = (dataEnd - last.DataStart) / rowBytes
			last.DataEnd = last.DataStart + last.Datapoints*rowBytes
			break
		}

		var timestamp uint64
		if tsWidth == 8 {
			timestamp = binary.LittleEndian.Uint64(buf[1:9])
		} else {
			timestamp = uint64(binary.LittleEndian.Uint32(buf[1:5]))
		}
		datapoints := int64(binary.LittleEndian.Uint32(buf[1+tsWidth:]))

		seg := Segment{
			Timestamp:  timestamp,
			Datapoints: datapoints,
			DataStart:  pos + headerBytes,
		}
		seg.DataEnd = seg.DataStart + datapoints*rowBytes

		if seg.DataEnd > dataEnd {
			// The count claims more samples than the file holds.
			logger.Warn("segment datapoint count overruns end-of-file, truncating",
				zap.Int64("offset", pos),
				zap.Int64("claimed_datapoints", datapoints),
			)
			seg.Datapoints = (dataEnd - seg.DataStart) / rowBytes
			seg.DataEnd = seg.DataStart + seg.Datapoints*rowBytes
			segments = append(segments, seg)
			break
		}

		segments = append(segments, seg)
		pos = seg.DataEnd
	}

	return segments, nil
}

// resolveSpan maps a [start, end) request onto an inclusive span of segment
// indices using cumulative per-segment sums. start and end are in the
// requested units, already clamped to the data's total extent.
//
// The first segment is the first whose cumulative sum strictly exceeds
// start. The last is the last whose cumulative sum is strictly below end,
// plus one; when no segment qualifies, the span collapses onto the first
// segment. The plus-one is what pulls in the segment that contains end when
// end falls strictly inside it.
func resolveSpan(segments []Segment, fs float64, start, end float64, units Units) (int, int, error) {
	first := -1
	var cum float64
	for i, seg := range segments {
		if units == UnitsDatapoints {
			cum += float64(seg.Datapoints)
		} else {
			cum += seg.Duration(fs)
		}
		if cum > start {
			first = i
			break
		}
	}
	if first < 0 {
		return 0, 0, ErrRangeAfterEnd
	}

	last := first
	cum = 0
	for i, seg := range segments {
		if units == UnitsDatapoints {
			cum += float64(seg.Datapoints)
		} else {
			cum += seg.Duration(fs)
		}
		if cum < end {
			last = i + 1
		}
	}
	if last >= len(segments) {
		last = len(segments) - 1
	}
	if last < first {
		last = first
	}
	return first, last, nil
}
