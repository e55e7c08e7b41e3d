package timeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/cwkeyer/endian"
	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/format"
)

const (
	// HeaderSize is the fixed size of an archive header in bytes.
	HeaderSize = 64

	// MagicV1 identifies version 1 archives (bits 4-15 of the options field).
	MagicV1 = 0xCE10

	magicMask      = 0xFFF0
	bigEndianBit   = 0x0001
	reservedOptBit = 0x000E
)

// Header is the fixed-size archive header.
//
// Byte layout (multi-byte fields in the byte order given by bit 0 of Options):
//
//	0-1   options: bit 0 big-endian, bits 1-3 reserved, bits 4-15 magic
//	2     payload encoding
//	3     payload compression
//	4-19  session id (UUID)
//	20-27 stream index of the first record
//	28-35 recording start time, unix microseconds
//	36-39 tick period in microseconds
//	40-43 record count
//	44-47 samples dropped by the recording consumer
//	48-51 stored payload size
//	52-59 xxHash64 of the stored payload
//	60-63 reserved
type Header struct {
	SessionID    uuid.UUID
	StartIndex   uint64
	StartTime    int64
	Checksum     uint64
	TickPeriodUs uint32
	Count        uint32
	Dropped      uint32
	PayloadSize  uint32
	Options      uint16
	Encoding     format.EncodingType
	Compression  format.CompressionType
}

func newHeader() Header {
	return Header{
		Options:     MagicV1,
		Encoding:    format.TypeVarint,
		Compression: format.CompressionZstd,
	}
}

// IsBigEndian reports whether the archive uses big-endian fields.
func (h Header) IsBigEndian() bool {
	return h.Options&bigEndianBit != 0
}

// Engine returns the byte order of the archive.
func (h Header) Engine() endian.EndianEngine {
	if h.IsBigEndian() {
		return endian.GetBigEndianEngine()
	}

	return endian.GetLittleEndianEngine()
}

// StartTimeAsTime returns the recording start time.
func (h Header) StartTimeAsTime() time.Time {
	return time.UnixMicro(h.StartTime)
}

// TickPeriod returns the real-time period one concrete sample stands for.
func (h Header) TickPeriod() time.Duration {
	return time.Duration(h.TickPeriodUs) * time.Microsecond
}

// Validate checks the magic number, reserved bits and enum fields.
func (h Header) Validate() error {
	if h.Options&magicMask != MagicV1 {
		return fmt.Errorf("%w: %#04x", errs.ErrInvalidMagicNumber, h.Options&magicMask)
	}
	if h.Options&reservedOptBit != 0 {
		return fmt.Errorf("%w: reserved option bits %#04x", errs.ErrInvalidFlags, h.Options)
	}
	if !h.Encoding.Valid() {
		return fmt.Errorf("%w: encoding %d", errs.ErrInvalidFlags, h.Encoding)
	}
	if !h.Compression.Valid() {
		return fmt.Errorf("%w: compression %d", errs.ErrInvalidFlags, h.Compression)
	}

	return nil
}

// AppendTo serializes h to the end of buf.
func (h Header) AppendTo(buf []byte) []byte {
	engine := h.Engine()

	buf = append(buf, byte(h.Options), byte(h.Options>>8), byte(h.Encoding), byte(h.Compression))
	buf = append(buf, h.SessionID[:]...)
	buf = engine.AppendUint64(buf, h.StartIndex)
	buf = engine.AppendUint64(buf, uint64(h.StartTime)) //nolint:gosec
	buf = engine.AppendUint32(buf, h.TickPeriodUs)
	buf = engine.AppendUint32(buf, h.Count)
	buf = engine.AppendUint32(buf, h.Dropped)
	buf = engine.AppendUint32(buf, h.PayloadSize)
	buf = engine.AppendUint64(buf, h.Checksum)

	return engine.AppendUint32(buf, 0)
}

// Bytes serializes h into a new slice.
func (h Header) Bytes() []byte {
	return h.AppendTo(make([]byte, 0, HeaderSize))
}

// ParseHeader decodes and validates a header from the start of data.
//
// Returns:
//   - Header: Parsed header
//   - error: errs.ErrInvalidHeaderSize for short input, or a validation error
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", errs.ErrInvalidHeaderSize, len(data))
	}

	// options are always little-endian so the byte order can be read first
	h := Header{
		Options:     uint16(data[0]) | uint16(data[1])<<8,
		Encoding:    format.EncodingType(data[2]),
		Compression: format.CompressionType(data[3]),
	}
	if err := h.Validate(); err != nil {
		return Header{}, err
	}

	engine := h.Engine()
	copy(h.SessionID[:], data[4:20])
	h.StartIndex = engine.Uint64(data[20:28])
	h.StartTime = int64(engine.Uint64(data[28:36])) //nolint:gosec
	h.TickPeriodUs = engine.Uint32(data[36:40])
	h.Count = engine.Uint32(data[40:44])
	h.Dropped = engine.Uint32(data[44:48])
	h.PayloadSize = engine.Uint32(data[48:52])
	h.Checksum = engine.Uint64(data[52:60])

	return h, nil
}
