package compress

import (
	"fmt"

	"github.com/klauspost/compress/s2"

	"github.com/arloliu/cwkeyer/errs"
)

// S2Compressor applies S2, trading some ratio for speed. It suits archives written
// while the keyer is running.
type S2Compressor struct{}

var _ Codec = (*S2Compressor)(nil)

// NewS2Compressor returns the S2 codec.
func NewS2Compressor() S2Compressor {
	return S2Compressor{}
}

// Compress compresses data.
func (c S2Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.Encode(nil, data), nil
}

// Decompress restores data.
func (c S2Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	n, err := s2.DecodedLen(data)
	if err != nil {
		return nil, fmt.Errorf("s2 decompression failed: %w", err)
	}
	if n > MaxDecodedSize {
		return nil, fmt.Errorf("%w: s2 payload decodes to %d bytes", errs.ErrDecodedTooLarge, n)
	}

	out, err := s2.Decode(make([]byte, n), data)
	if err != nil {
		return nil, fmt.Errorf("s2 decompression failed: %w", err)
	}

	return out, nil
}
