package nsxfile

import "time"

// FilterKind identifies the analog filter recorded for one side of an
// electrode's passband.
type FilterKind uint16

const (
	FilterNone        FilterKind = 0
	FilterButterworth FilterKind = 1
)

func (k FilterKind) String() string {
	switch k {
	case FilterNone:
		return "none"
	case FilterButterworth:
		return "butterworth"
	default:
		return "unknown"
	}
}

// FileMetadata holds the fixed header contents of an open recording. It is
// immutable once header parsing completes.
type FileMetadata struct {
	// Format is the 8-byte identifier that selected the layout, either
	// "NEURALSG" (legacy) or "NEURALCD" (modern).
	Format string `json:"format"`

	// VersionMajor and VersionMinor are zero for the legacy variant.
	VersionMajor uint8 `json:"version_major"`
	VersionMinor uint8 `json:"version_minor"`

	// Label is the sampling label, e.g. "30 kS/s".
	Label string `json:"label"`

	// Comment is free text from the modern header, empty for legacy files.
	Comment string `json:"comment,omitempty"`

	// TimeResolution is the timestamp resolution in ticks per second.
	TimeResolution uint32 `json:"time_resolution"`

	// Period is the sampling period in ticks per sample.
	Period uint32 `json:"period"`

	// SamplingRate is TimeResolution divided by Period, in samples per
	// second.
	SamplingRate float64 `json:"sampling_rate"`

	// ChannelCount is the number of interleaved channels per sample row.
	ChannelCount int `json:"channel_count"`

	// StartUTC is the recording start stamp. StartLocal is the same
	// instant projected into the session's configured timezone.
	StartUTC   time.Time `json:"start_utc"`
	StartLocal time.Time `json:"start_local"`

	// ChannelIDs holds the raw channel ID table of the legacy variant.
	ChannelIDs []uint32 `json:"channel_ids,omitempty"`
}

// ElectrodeDescriptor is one entry of the modern variant's extended header.
// Channel ordinals are 1-based; descriptor index i describes channel i+1.
type ElectrodeDescriptor struct {
	// Type is the 2-character type tag. When it is not the reserved
	// electrode tag the remaining fields are left empty.
	Type string `json:"type"`

	ElectrodeID   uint16 `json:"electrode_id"`
	Label         string `json:"label"`
	ConnectorBank string `json:"connector_bank"`
	ConnectorPin  uint8  `json:"connector_pin"`

	// DigitalRange and AnalogRange are [min, max] pairs.
	DigitalRange [2]int16 `json:"digital_range"`
	AnalogRange  [2]int16 `json:"analog_range"`
	AnalogUnits  string   `json:"analog_units"`

	// Corner frequencies are stored as recorded, in millihertz.
	HighCornerFreq  uint32     `json:"high_corner_freq"`
	HighFilterOrder uint32     `json:"high_filter_order"`
	HighFilterKind  FilterKind `json:"high_filter_kind"`
	LowCornerFreq   uint32     `json:"low_corner_freq"`
	LowFilterOrder  uint32     `json:"low_filter_order"`
	LowFilterKind   FilterKind `json:"low_filter_kind"`
}

// UnitScale returns the raw-to-physical-unit divisor, digitalMax/analogMax.
// The second return is false when the ratio is not an integer, in which case
// unit conversion is skipped for the channel.
func (e *ElectrodeDescriptor) UnitScale() (float64, bool) {
	dmax := int(e.DigitalRange[1])
	amax := int(e.AnalogRange[1])
	if amax == 0 || dmax%amax != 0 {
		return 0, false
	}
	return float64(dmax / amax), true
}

// Segment is one contiguous run of interleaved samples in the data region,
// bounded by a recording pause. Segments are built once at open time and
// never mutated.
type Segment struct {
	// Timestamp is the segment start stamp in TimeResolution ticks. It is
	// zero for the legacy variant's single implicit segment.
	Timestamp uint64 `json:"timestamp"`

	// Datapoints is the number of sample rows in the segment.
	Datapoints int64 `json:"datapoints"`

	// DataStart is the byte offset of the segment's first sample;
	// DataEnd is the offset just past its last sample.
	DataStart int64 `json:"data_start"`
	DataEnd   int64 `json:"data_end"`
}

// Duration returns the segment length in seconds at the given sampling rate.
func (s Segment) Duration(fs float64) float64 {
	return float64(s.Datapoints) / fs
}
