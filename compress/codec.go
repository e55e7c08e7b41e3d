package compress

import (
	"fmt"

	"github.com/arloliu/cwkeyer/format"
)

// MaxDecodedSize bounds a decompressed payload: 16Mi raw samples, over four hours of
// 1ms ticks with no idle collapsing. Larger output fails with errs.ErrDecodedTooLarge.
const MaxDecodedSize = 64 << 20

// Compressor compresses a whole payload.
//
// The returned slice is owned by the caller. The input is not modified.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor restores a payload produced by the matching Compressor.
//
// It returns an error for corrupted input or input produced by another algorithm.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions.
type Codec interface {
	Compressor
	Decompressor
}

// Stats describes one compression for telemetry.
type Stats struct {
	Algorithm      format.CompressionType
	OriginalSize   int64
	CompressedSize int64
}

// Ratio returns compressed size over original size, 0 for an empty input.
func (s Stats) Ratio() float64 {
	if s.OriginalSize == 0 {
		return 0
	}

	return float64(s.CompressedSize) / float64(s.OriginalSize)
}

// SpaceSavings returns the saved space as a percentage.
func (s Stats) SpaceSavings() float64 {
	if s.OriginalSize == 0 {
		return 0
	}

	return (1 - s.Ratio()) * 100
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionNone: NewNoOpCompressor(),
	format.CompressionZstd: NewZstdCompressor(),
	format.CompressionS2:   NewS2Compressor(),
	format.CompressionLZ4:  NewLZ4Compressor(),
}

// GetCodec returns the shared codec for a compression type.
//
// Parameters:
//   - compressionType: None, Zstd, S2 or LZ4
//
// Returns:
//   - Codec: Shared codec instance
//   - error: Unsupported compression type
func GetCodec(compressionType format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
}

// CompressWithStats compresses data with the codec for compressionType and reports sizes.
func CompressWithStats(compressionType format.CompressionType, data []byte) ([]byte, Stats, error) {
	codec, err := GetCodec(compressionType)
	if err != nil {
		return nil, Stats{}, err
	}

	out, err := codec.Compress(data)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("%s compression: %w", compressionType, err)
	}

	return out, Stats{
		Algorithm:      compressionType,
		OriginalSize:   int64(len(data)),
		CompressedSize: int64(len(out)),
	}, nil
}
