// Package timeline records a keying stream into compact, self-describing archives.
//
// An archive is a 64-byte Header followed by a payload of samples, encoded as fixed
// words or varints and optionally compressed. The header carries a session id, the
// stream index and wall-clock time of the first record, the tick period, and an xxHash64
// checksum of the stored payload, so an archive can be verified and replayed on its own.
//
// Recorder attaches a best-effort consumer to a live stream and feeds an Encoder.
// Decode opens a finished archive.
package timeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/cwkeyer/compress"
	"github.com/arloliu/cwkeyer/endian"
	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/format"
	"github.com/arloliu/cwkeyer/internal/hash"
	"github.com/arloliu/cwkeyer/internal/options"
	"github.com/arloliu/cwkeyer/internal/pool"
	"github.com/arloliu/cwkeyer/sample"
)

// MaxRecords is the largest number of records one archive can hold.
const MaxRecords = 1<<32 - 1

// EncoderOption configures an Encoder.
type EncoderOption = options.Option[*Encoder]

// WithCompression selects the payload compression. The default is Zstd.
func WithCompression(c format.CompressionType) EncoderOption {
	return options.New(func(e *Encoder) error {
		if !c.Valid() {
			return fmt.Errorf("invalid timeline compression: %s", c)
		}
		e.header.Compression = c

		return nil
	})
}

// WithEncoding selects the payload encoding. The default is Varint.
func WithEncoding(enc format.EncodingType) EncoderOption {
	return options.New(func(e *Encoder) error {
		if !enc.Valid() {
			return fmt.Errorf("invalid timeline encoding: %s", enc)
		}
		e.header.Encoding = enc

		return nil
	})
}

// WithBigEndian writes multi-byte fields big-endian.
func WithBigEndian() EncoderOption {
	return options.NoError(func(e *Encoder) {
		e.header.Options |= bigEndianBit
		e.engine = endian.GetBigEndianEngine()
	})
}

// WithLittleEndian writes multi-byte fields little-endian. This is the default.
func WithLittleEndian() EncoderOption {
	return options.NoError(func(e *Encoder) {
		e.header.Options &^= bigEndianBit
		e.engine = endian.GetLittleEndianEngine()
	})
}

// WithSessionID sets the session id. By default a UUIDv7 is generated.
func WithSessionID(id uuid.UUID) EncoderOption {
	return options.NoError(func(e *Encoder) {
		e.header.SessionID = id
	})
}

// WithStartTime sets the wall-clock time of the first record. The default is time.Now.
func WithStartTime(t time.Time) EncoderOption {
	return options.NoError(func(e *Encoder) {
		e.header.StartTime = t.UnixMicro()
	})
}

// WithTickPeriod records the real-time period of one concrete sample.
func WithTickPeriod(d time.Duration) EncoderOption {
	return options.New(func(e *Encoder) error {
		if d <= 0 || d.Microseconds() == 0 {
			return fmt.Errorf("%w: %s", errs.ErrInvalidTickPeriod, d)
		}
		e.header.TickPeriodUs = uint32(d.Microseconds()) //nolint:gosec

		return nil
	})
}

// Encoder accumulates samples into an archive. It is not safe for concurrent use.
type Encoder struct {
	header   Header
	engine   endian.EndianEngine
	buf      *pool.ByteBuffer
	finished bool
}

// NewEncoder creates an encoder whose first record corresponds to stream index startIndex.
//
// Parameters:
//   - startIndex: Stream logical index of the first record
//   - opts: Encoder options
//
// Returns:
//   - *Encoder: Empty encoder
//   - error: Invalid option
func NewEncoder(startIndex uint64, opts ...EncoderOption) (*Encoder, error) {
	e := &Encoder{
		header: newHeader(),
		engine: endian.GetLittleEndianEngine(),
	}
	e.header.StartIndex = startIndex
	e.header.StartTime = time.Now().UnixMicro()
	e.header.TickPeriodUs = uint32(time.Millisecond.Microseconds())

	if err := options.Apply(e, opts...); err != nil {
		return nil, err
	}

	if e.header.SessionID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("session id: %w", err)
		}
		e.header.SessionID = id
	}

	e.buf = pool.GetArchiveBuffer()

	return e, nil
}

// SessionID returns the archive session id.
func (e *Encoder) SessionID() uuid.UUID { return e.header.SessionID }

// Len returns the number of records written.
func (e *Encoder) Len() int { return int(e.header.Count) }

// SetDropped records how many stream samples were lost while recording.
func (e *Encoder) SetDropped(n uint64) {
	e.header.Dropped = uint32(min(n, MaxRecords))
}

// Write appends one sample.
//
// Returns:
//   - error: errs.ErrEncoderFinished after Finish, errs.ErrArchiveFull past MaxRecords or
//     compress.MaxDecodedSize payload bytes
func (e *Encoder) Write(s sample.Sample) error {
	if e.finished {
		return errs.ErrEncoderFinished
	}
	if e.header.Count == MaxRecords {
		return fmt.Errorf("%w: %d records", errs.ErrArchiveFull, MaxRecords)
	}

	n := len(e.buf.B)
	if e.header.Encoding == format.TypeRaw {
		e.buf.B = appendRaw(e.buf.B, s, e.engine)
	} else {
		e.buf.B = appendVarint(e.buf.B, s)
	}
	if len(e.buf.B) > compress.MaxDecodedSize {
		e.buf.B = e.buf.B[:n]
		return fmt.Errorf("%w: payload limit %d bytes", errs.ErrArchiveFull, compress.MaxDecodedSize)
	}
	e.header.Count++

	return nil
}

// Finish compresses the payload and returns the complete archive. The encoder cannot be
// used afterwards.
//
// Returns:
//   - []byte: Header followed by the stored payload
//   - compress.Stats: Payload compression statistics
//   - error: errs.ErrEncoderFinished or a compression error
func (e *Encoder) Finish() ([]byte, compress.Stats, error) {
	if e.finished {
		return nil, compress.Stats{}, errs.ErrEncoderFinished
	}
	e.finished = true
	defer func() {
		pool.PutArchiveBuffer(e.buf)
		e.buf = nil
	}()

	payload, stats, err := compress.CompressWithStats(e.header.Compression, e.buf.Bytes())
	if err != nil {
		return nil, compress.Stats{}, err
	}

	e.header.PayloadSize = uint32(len(payload)) //nolint:gosec
	e.header.Checksum = hash.Checksum(payload)

	out := make([]byte, 0, HeaderSize+len(payload))
	out = e.header.AppendTo(out)
	out = append(out, payload...)

	return out, stats, nil
}
