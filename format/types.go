// Package format enumerates the payload encodings and compressions of a timeline archive.
package format

type (
	EncodingType    uint8
	CompressionType uint8
)

const (
	TypeRaw    EncodingType = 0x1 // TypeRaw stores each sample as a fixed 4-byte word.
	TypeVarint EncodingType = 0x2 // TypeVarint stores run-length varints of repeated words.

	CompressionNone CompressionType = 0x1 // CompressionNone leaves the payload as encoded.
	CompressionZstd CompressionType = 0x2 // CompressionZstd applies Zstandard.
	CompressionS2   CompressionType = 0x3 // CompressionS2 applies S2.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 applies LZ4 block compression.
)

func (e EncodingType) String() string {
	switch e {
	case TypeRaw:
		return "Raw"
	case TypeVarint:
		return "Varint"
	default:
		return "Unknown"
	}
}

// Valid reports whether e is a known encoding.
func (e EncodingType) Valid() bool {
	return e == TypeRaw || e == TypeVarint
}

// ParseEncoding converts a name such as "raw" or "varint" to an EncodingType.
func ParseEncoding(s string) (EncodingType, bool) {
	switch s {
	case "raw", "Raw":
		return TypeRaw, true
	case "varint", "Varint":
		return TypeVarint, true
	default:
		return 0, false
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// Valid reports whether c is a known compression.
func (c CompressionType) Valid() bool {
	return c >= CompressionNone && c <= CompressionLZ4
}

// ParseCompression converts a name such as "zstd" or "none" to a CompressionType.
func ParseCompression(s string) (CompressionType, bool) {
	switch s {
	case "none", "None", "":
		return CompressionNone, true
	case "zstd", "Zstd":
		return CompressionZstd, true
	case "s2", "S2":
		return CompressionS2, true
	case "lz4", "LZ4":
		return CompressionLZ4, true
	default:
		return 0, false
	}
}
