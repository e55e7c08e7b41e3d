package timeline

import (
	"fmt"
	"iter"

	"github.com/arloliu/cwkeyer/compress"
	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/format"
	"github.com/arloliu/cwkeyer/internal/hash"
	"github.com/arloliu/cwkeyer/sample"
)

// Blob is a decoded archive.
type Blob struct {
	header  Header
	samples []sample.Sample
}

// Decode verifies and decodes an archive.
//
// Parameters:
//   - data: Bytes produced by Encoder.Finish
//
// Returns:
//   - *Blob: Decoded archive
//   - error: Header, size, checksum, decompression or sample validation error
func Decode(data []byte) (*Blob, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	payload := data[HeaderSize:]
	if uint64(len(payload)) != uint64(h.PayloadSize) {
		return nil, fmt.Errorf("%w: header says %d, have %d", errs.ErrInvalidPayloadSize, h.PayloadSize, len(payload))
	}
	if sum := hash.Checksum(payload); sum != h.Checksum {
		return nil, fmt.Errorf("%w: %#016x != %#016x", errs.ErrChecksumMismatch, sum, h.Checksum)
	}

	codec, err := compress.GetCodec(h.Compression)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Decompress(payload)
	if err != nil {
		return nil, err
	}

	var samples []sample.Sample
	if h.Encoding == format.TypeRaw {
		samples, err = decodeRaw(raw, h.Count, h.Engine())
	} else {
		samples, err = decodeVarint(raw, h.Count)
	}
	if err != nil {
		return nil, err
	}

	return &Blob{header: h, samples: samples}, nil
}

// Header returns the archive header.
func (b *Blob) Header() Header { return b.header }

// Len returns the number of records.
func (b *Blob) Len() int { return len(b.samples) }

// At returns record i.
func (b *Blob) At(i int) sample.Sample { return b.samples[i] }

// All yields each record with its stream index.
func (b *Blob) All() iter.Seq2[uint64, sample.Sample] {
	return func(yield func(uint64, sample.Sample) bool) {
		for i, s := range b.samples {
			if !yield(b.header.StartIndex+uint64(i), s) {
				return
			}
		}
	}
}

// TotalTicks returns the real-time ticks covered by the archive.
func (b *Blob) TotalTicks() uint64 {
	var n uint64
	for _, s := range b.samples {
		n += uint64(s.Ticks())
	}

	return n
}

// KeyDownTicks returns the ticks during which the local key was down. A silence marker
// continues the key level of the concrete sample before it.
func (b *Blob) KeyDownTicks() uint64 {
	var n uint64
	down := false
	for _, s := range b.samples {
		if !s.IsSilence() {
			down = s.LocalKey()
		}
		if down {
			n += uint64(s.Ticks())
		}
	}

	return n
}
