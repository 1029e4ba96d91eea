package nsxfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

const (
	legacyMagic = "NEURALSG"
	modernMagic = "NEURALCD"

	// The modern main header block that follows the 8-byte identifier.
	mainHeaderSize = 306

	// One extended header block per channel.
	extHeaderSize = 66

	// Reserved type tag marking a populated electrode descriptor.
	electrodeTypeTag = "CC"

	// The legacy variant has no time-resolution field; its period is
	// relative to a fixed 30 kHz clock.
	legacyClock = 30000

	bytesPerSample = 2
)

// parseHeader reads the format identifier and the variant-specific header
// body. On return the source's cursor sits at the first byte of the data
// region.
func parseHeader(r io.ReadSeeker, logger *zap.Logger, tz *time.Location) (*FileMetadata, []ElectrodeDescriptor, error) {
	magic := make([]byte, 8)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, nil, fmt.Errorf("nsxfile: reading format identifier: %w", err)
	}

	switch string(magic) {
	case legacyMagic:
		meta, err := parseLegacyHeader(r, tz)
		return meta, nil, err
	case modernMagic:
		return parseModernHeader(r, logger, tz)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(magic))
	}
}

func parseLegacyHeader(r io.Reader, tz *time.Location) (*FileMetadata, error) {
	var fixed struct {
		Label        [16]byte
		Period       uint32
		ChannelCount uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &fixed); err != nil {
		return nil, fmt.Errorf("nsxfile: reading legacy header: %w", err)
	}

	meta := &FileMetadata{
		Format:         legacyMagic,
		Label:          zeroTrim(fixed.Label[:]),
		TimeResolution: legacyClock,
		Period:         fixed.Period,
		ChannelCount:   int(fixed.ChannelCount),
	}
	if fixed.Period > 0 {
		meta.SamplingRate = float64(legacyClock) / float64(fixed.Period)
	}

	meta.ChannelIDs = make([]uint32, fixed.ChannelCount)
	if err := binary.Read(r, binary.LittleEndian, &meta.ChannelIDs); err != nil {
		return nil, fmt.Errorf("nsxfile: reading legacy channel IDs: %w", err)
	}

	// The legacy header carries no recording start stamp.
	meta.StartUTC = time.Time{}
	meta.StartLocal = meta.StartUTC.In(tz)
	return meta, nil
}

func parseModernHeader(r io.Reader, logger *zap.Logger, tz *time.Location) (*FileMetadata, []ElectrodeDescriptor, error) {
	block := make([]byte, mainHeaderSize)
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, nil, fmt.Errorf("nsxfile: reading main header: %w", err)
	}

	le := binary.LittleEndian
	meta := &FileMetadata{
		Format:         modernMagic,
		VersionMajor:   block[0],
		VersionMinor:   block[1],
		Label:          zeroTrim(block[6:22]),
		Comment:        zeroTrim(block[22:278]),
		Period:         le.Uint32(block[278:282]),
		TimeResolution: le.Uint32(block[282:286]),
		ChannelCount:   int(le.Uint32(block[302:306])),
	}
	if meta.Period > 0 {
		meta.SamplingRate = float64(meta.TimeResolution) / float64(meta.Period)
	}

	// Eight uint16 date/time fields: year, month, weekday (discarded),
	// day, hour, minute, second, millisecond.
	stamp := block[286:302]
	year := int(le.Uint16(stamp[0:2]))
	month := time.Month(le.Uint16(stamp[2:4]))
	day := int(le.Uint16(stamp[6:8]))
	hour := int(le.Uint16(stamp[8:10]))
	minute := int(le.Uint16(stamp[10:12]))
	second := int(le.Uint16(stamp[12:14]))
	milli := int(le.Uint16(stamp[14:16]))
	meta.StartUTC = time.Date(year, month, day, hour, minute, second, milli*int(time.Millisecond), time.UTC)
	meta.StartLocal = meta.StartUTC.In(tz)

	electrodes := make([]ElectrodeDescriptor, meta.ChannelCount)
	buf := make([]byte, extHeaderSize)
	for i := range electrodes {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, nil, fmt.Errorf("nsxfile: reading extended header %d: %w", i+1, err)
		}
		electrodes[i] = parseElectrode(buf, i+1, logger)
	}

	return meta, electrodes, nil
}

func parseElectrode(buf []byte, channel int, logger *zap.Logger) ElectrodeDescriptor {
	le := binary.LittleEndian

	desc := ElectrodeDescriptor{Type: string(buf[0:2])}
	if desc.Type != electrodeTypeTag {
		// Not fatal: the descriptor stays empty past the type tag.
		logger.Warn("unexpected electrode type tag",
			zap.Int("channel", channel),
			zap.String("type", desc.Type),
		)
		return desc
	}

	desc.ElectrodeID = le.Uint16(buf[2:4])
	desc.Label = zeroTrim(buf[4:20])
	if bank := buf[20]; bank >= 1 && bank <= 26 {
		desc.ConnectorBank = string(rune('A' + bank - 1))
	}
	desc.ConnectorPin = buf[21]
	desc.DigitalRange = [2]int16{int16(le.Uint16(buf[22:24])), int16(le.Uint16(buf[24:26]))}
	desc.AnalogRange = [2]int16{int16(le.Uint16(buf[26:28])), int16(le.Uint16(buf[28:30]))}
	desc.AnalogUnits = zeroTrim(buf[30:46])
	desc.HighCornerFreq = le.Uint32(buf[46:50])
	desc.HighFilterOrder = le.Uint32(buf[50:54])
	desc.HighFilterKind = FilterKind(le.Uint16(buf[54:56]))
	desc.LowCornerFreq = le.Uint32(buf[56:60])
	desc.LowFilterOrder = le.Uint32(buf[60:64])
	desc.LowFilterKind = FilterKind(le.Uint16(buf[64:66]))

	if _, ok := desc.UnitScale(); !ok {
		logger.Warn("non-integral digital/analog ratio, unit conversion disabled",
			zap.Int("channel", channel),
			zap.Int16("digital_max", desc.DigitalRange[1]),
			zap.Int16("analog_max", desc.AnalogRange[1]),
		)
	}

	return desc
}

// zeroTrim interprets a fixed-width header field as text truncated at the
// first zero byte.
func zeroTrim(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}
