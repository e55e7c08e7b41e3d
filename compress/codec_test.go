package compress

import (
	"encoding/binary"
	"testing"

	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/format"
	"github.com/stretchr/testify/require"
)

// keyingPayload builds a payload shaped like a timeline: alternating key edges and
// silence markers with a handful of distinct run lengths.
func keyingPayload(n int) []byte {
	buf := make([]byte, 0, n*4)
	for i := range n {
		var w uint32
		switch i % 4 {
		case 0:
			w = 0x03_00_01_01 // dit down
		case 1:
			w = 0x80_00_00_3B // silence 59
		case 2:
			w = 0x03_00_00_00 // key up
		default:
			w = 0x80_00_00_3C + uint32(i%3) // silence 60..62
		}
		buf = binary.LittleEndian.AppendUint32(buf, w)
	}

	return buf
}

func allTypes() []format.CompressionType {
	return []format.CompressionType{
		format.CompressionNone,
		format.CompressionZstd,
		format.CompressionS2,
		format.CompressionLZ4,
	}
}

func TestCodecs_RoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"single word": keyingPayload(1),
		"small":       keyingPayload(64),
		"large":       keyingPayload(64 * 1024),
	}

	for _, ct := range allTypes() {
		for name, data := range payloads {
			t.Run(ct.String()+"/"+name, func(t *testing.T) {
				codec, err := GetCodec(ct)
				require.NoError(t, err)

				compressed, err := codec.Compress(data)
				require.NoError(t, err)

				restored, err := codec.Decompress(compressed)
				require.NoError(t, err)
				require.Equal(t, data, restored)
			})
		}
	}
}

func TestCodecs_EmptyInput(t *testing.T) {
	for _, ct := range []format.CompressionType{format.CompressionS2, format.CompressionLZ4} {
		codec, err := GetCodec(ct)
		require.NoError(t, err)

		out, err := codec.Compress(nil)
		require.NoError(t, err)
		require.Nil(t, out)

		out, err = codec.Decompress(nil)
		require.NoError(t, err)
		require.Nil(t, out)
	}

	out, err := NewZstdCompressor().Decompress(nil)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestCodecs_CorruptInput(t *testing.T) {
	garbage := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03}

	_, err := NewZstdCompressor().Decompress(garbage)
	require.Error(t, err)

	_, err = NewS2Compressor().Decompress(garbage)
	require.Error(t, err)
}

func TestCodecs_DecodedSizeLimit(t *testing.T) {
	atLimit := make([]byte, MaxDecodedSize)
	overLimit := make([]byte, MaxDecodedSize+1)

	for _, ct := range []format.CompressionType{format.CompressionZstd, format.CompressionS2, format.CompressionLZ4} {
		t.Run(ct.String(), func(t *testing.T) {
			codec, err := GetCodec(ct)
			require.NoError(t, err)

			compressed, err := codec.Compress(atLimit)
			require.NoError(t, err)
			restored, err := codec.Decompress(compressed)
			require.NoError(t, err)
			require.Len(t, restored, MaxDecodedSize)

			compressed, err = codec.Compress(overLimit)
			require.NoError(t, err)
			_, err = codec.Decompress(compressed)
			require.ErrorIs(t, err, errs.ErrDecodedTooLarge)
		})
	}

	t.Run("s2 length header", func(t *testing.T) {
		// a block claiming 1GiB is rejected from its header alone
		forged := binary.AppendUvarint(nil, 1<<30)
		forged = append(forged, 0x00, 0x00, 0x00, 0x00)
		_, err := NewS2Compressor().Decompress(forged)
		require.ErrorIs(t, err, errs.ErrDecodedTooLarge)
	})
}

func TestGetCodec_Unsupported(t *testing.T) {
	_, err := GetCodec(format.CompressionType(0x7F))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported compression type")
}

func TestCompressWithStats(t *testing.T) {
	data := keyingPayload(4096)

	out, stats, err := CompressWithStats(format.CompressionZstd, data)
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), stats.OriginalSize)
	require.Equal(t, int64(len(out)), stats.CompressedSize)
	require.Less(t, stats.Ratio(), 0.5)
	require.Greater(t, stats.SpaceSavings(), 50.0)

	_, stats, err = CompressWithStats(format.CompressionNone, data)
	require.NoError(t, err)
	require.InDelta(t, 1.0, stats.Ratio(), 1e-9)

	require.Zero(t, Stats{}.Ratio())
	require.Zero(t, Stats{}.SpaceSavings())

	_, _, err = CompressWithStats(0, data)
	require.Error(t, err)
}
