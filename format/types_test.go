package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressionType(t *testing.T) {
	for _, name := range []string{"none", "zstd", "s2", "lz4"} {
		c, ok := ParseCompression(name)
		require.True(t, ok, name)
		require.True(t, c.Valid())
		require.NotEqual(t, "Unknown", c.String())
	}

	_, ok := ParseCompression("brotli")
	require.False(t, ok)
	require.False(t, CompressionType(0).Valid())
	require.Equal(t, "Unknown", CompressionType(9).String())
}

func TestEncodingType(t *testing.T) {
	e, ok := ParseEncoding("varint")
	require.True(t, ok)
	require.Equal(t, TypeVarint, e)
	require.Equal(t, "Varint", e.String())
	require.True(t, TypeRaw.Valid())
	require.False(t, EncodingType(7).Valid())

	_, ok = ParseEncoding("gorilla")
	require.False(t, ok)
}
