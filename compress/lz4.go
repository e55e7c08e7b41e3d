package compress

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/arloliu/cwkeyer/errs"
)

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

// LZ4Compressor applies LZ4 block compression.
type LZ4Compressor struct{}

var _ Codec = (*LZ4Compressor)(nil)

// NewLZ4Compressor returns the LZ4 codec.
func NewLZ4Compressor() LZ4Compressor {
	return LZ4Compressor{}
}

// Compress compresses data with a pooled block compressor.
//
// Returns:
//   - []byte: Compressed block, nil for empty input
//   - error: Compression error
func (c LZ4Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	dst := make([]byte, lz4.CompressBlockBound(len(data)))

	lc, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(lc)

	n, err := lc.CompressBlock(data, dst)
	if err != nil {
		return nil, err
	}

	return dst[:n], nil
}

// Decompress restores an LZ4 block.
//
// Block format does not store the original size, so the output buffer starts at four
// times the input and doubles on a short-buffer error, up to MaxDecodedSize.
//
// Returns:
//   - []byte: Decompressed data, nil for empty input
//   - error: errs.ErrDecodedTooLarge past the cap, or a corruption error
func (c LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	for size := min(len(data)*4, MaxDecodedSize); ; size = min(size*2, MaxDecodedSize) {
		buf := make([]byte, size)
		n, err := lz4.UncompressBlock(data, buf)
		if err == nil {
			return buf[:n], nil
		}
		if !errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
			return nil, err
		}
		if size == MaxDecodedSize {
			return nil, fmt.Errorf("%w: lz4 block exceeds %d bytes", errs.ErrDecodedTooLarge, MaxDecodedSize)
		}
	}
}
