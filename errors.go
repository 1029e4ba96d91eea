package nsxfile

import "errors"

var (
	// ErrUnsupportedFormat is returned when the 8-byte format identifier
	// at the start of the file matches neither supported variant.
	ErrUnsupportedFormat = errors.New("nsxfile: unsupported format identifier")

	// ErrUnsupportedSamplingRate is returned by DetectSpikes when the
	// recording's sampling rate is below the 20 kHz detection floor.
	ErrUnsupportedSamplingRate = errors.New("nsxfile: sampling rate too low for spike detection")

	// ErrRangeAfterEnd is returned when a read request starts beyond the
	// end of the recorded data. The session remains usable.
	ErrRangeAfterEnd = errors.New("nsxfile: requested range starts after end of data")

	// ErrNoDataLoaded is returned by operations that require a prior
	// successful Read.
	ErrNoDataLoaded = errors.New("nsxfile: no data loaded")

	// ErrNoFileOpen is returned by operations on a closed session.
	ErrNoFileOpen = errors.New("nsxfile: no file open")
)
