//go:build cgozstd

package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/valyala/gozstd"

	"github.com/arloliu/cwkeyer/errs"
)

const zstdLevel = 3

// Compress compresses data with the cgo zstd binding.
func (c ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return gozstd.CompressLevel(nil, data, zstdLevel), nil
}

// Decompress restores data with the cgo zstd binding.
func (c ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	// streamed so a frame cannot expand past the limit before it is checked
	zr := gozstd.NewReader(bytes.NewReader(data))
	defer zr.Release()

	out, err := io.ReadAll(io.LimitReader(zr, MaxDecodedSize+1))
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	if len(out) > MaxDecodedSize {
		return nil, fmt.Errorf("%w: zstd payload exceeds %d bytes", errs.ErrDecodedTooLarge, MaxDecodedSize)
	}

	return out, nil
}
