package compress

// ZstdCompressor applies Zstandard. It gives the best ratio of the built-in codecs and
// suits archives that are written once and kept.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor returns the Zstandard codec.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
