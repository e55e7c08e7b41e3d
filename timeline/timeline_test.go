package timeline

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/cwkeyer/compress"
	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/format"
	"github.com/arloliu/cwkeyer/sample"
	"github.com/arloliu/cwkeyer/stream"
)

func keyingSamples() []sample.Sample {
	var prev sample.Sample
	out := make([]sample.Sample, 0, 64)
	for i := range 32 {
		down := sample.Concrete(sample.GpioDit, true, i%5 == 0).WithEdgesFrom(prev)
		prev = down
		up := sample.Concrete(0, false, false).WithEdgesFrom(prev)
		prev = up
		out = append(out, down, sample.MustSilence(59), up, sample.MustSilence(uint32(60+i*1000)))
	}
	out = append(out, sample.MustSilence(sample.MaxSilenceTicks), sample.Concrete(0, false, false).WithConfigChanged())

	return out
}

func TestEncoder_RoundTrip(t *testing.T) {
	encodings := []format.EncodingType{format.TypeRaw, format.TypeVarint}
	compressions := []format.CompressionType{
		format.CompressionNone,
		format.CompressionZstd,
		format.CompressionS2,
		format.CompressionLZ4,
	}
	engines := map[string]EncoderOption{"le": WithLittleEndian(), "be": WithBigEndian()}

	input := keyingSamples()
	start := time.UnixMicro(1_700_000_000_000_000)
	session := uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")

	for _, enc := range encodings {
		for _, comp := range compressions {
			for engineName, engineOpt := range engines {
				t.Run(enc.String()+"/"+comp.String()+"/"+engineName, func(t *testing.T) {
					e, err := NewEncoder(1234,
						WithEncoding(enc),
						WithCompression(comp),
						engineOpt,
						WithSessionID(session),
						WithStartTime(start),
						WithTickPeriod(500*time.Microsecond),
					)
					require.NoError(t, err)
					for _, s := range input {
						require.NoError(t, e.Write(s))
					}
					e.SetDropped(7)

					data, stats, err := e.Finish()
					require.NoError(t, err)
					require.Equal(t, comp, stats.Algorithm)

					blob, err := Decode(data)
					require.NoError(t, err)

					h := blob.Header()
					require.Equal(t, session, h.SessionID)
					require.Equal(t, uint64(1234), h.StartIndex)
					require.True(t, start.Equal(h.StartTimeAsTime()))
					require.Equal(t, 500*time.Microsecond, h.TickPeriod())
					require.Equal(t, uint32(len(input)), h.Count)
					require.Equal(t, uint32(7), h.Dropped)
					require.Equal(t, engineName == "be", h.IsBigEndian())

					require.Equal(t, len(input), blob.Len())
					for idx, s := range blob.All() {
						require.Equal(t, input[idx-1234], s)
					}
				})
			}
		}
	}
}

func TestEncoder_Defaults(t *testing.T) {
	e, err := NewEncoder(0)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), e.SessionID().Version())

	require.NoError(t, e.Write(sample.Concrete(sample.GpioDah, true, false)))
	require.NoError(t, e.Write(sample.MustSilence(10)))
	require.Equal(t, 2, e.Len())

	data, _, err := e.Finish()
	require.NoError(t, err)

	blob, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, format.TypeVarint, blob.Header().Encoding)
	require.Equal(t, format.CompressionZstd, blob.Header().Compression)
	require.Equal(t, time.Millisecond, blob.Header().TickPeriod())
	require.Equal(t, uint64(11), blob.TotalTicks())
	require.Equal(t, uint64(11), blob.KeyDownTicks())
	require.Equal(t, sample.GpioDah, blob.At(0).Gpio())

	require.ErrorIs(t, e.Write(sample.Sample{}), errs.ErrEncoderFinished)
	_, _, err = e.Finish()
	require.ErrorIs(t, err, errs.ErrEncoderFinished)
}

func TestEncoder_InvalidOptions(t *testing.T) {
	_, err := NewEncoder(0, WithCompression(0))
	require.Error(t, err)

	_, err = NewEncoder(0, WithEncoding(9))
	require.Error(t, err)

	_, err = NewEncoder(0, WithTickPeriod(0))
	require.ErrorIs(t, err, errs.ErrInvalidTickPeriod)
}

func TestDecode_Corruption(t *testing.T) {
	e, err := NewEncoder(0, WithCompression(format.CompressionNone))
	require.NoError(t, err)
	for _, s := range keyingSamples() {
		require.NoError(t, e.Write(s))
	}
	data, _, err := e.Finish()
	require.NoError(t, err)

	t.Run("short header", func(t *testing.T) {
		_, err := Decode(data[:HeaderSize-1])
		require.ErrorIs(t, err, errs.ErrInvalidHeaderSize)
	})

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[1] ^= 0xFF
		_, err := Decode(bad)
		require.ErrorIs(t, err, errs.ErrInvalidMagicNumber)
	})

	t.Run("reserved option bit", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[0] |= 0x02
		_, err := Decode(bad)
		require.ErrorIs(t, err, errs.ErrInvalidFlags)
	})

	t.Run("truncated payload", func(t *testing.T) {
		_, err := Decode(data[:len(data)-1])
		require.ErrorIs(t, err, errs.ErrInvalidPayloadSize)
	})

	t.Run("flipped payload bit", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[HeaderSize+3] ^= 0x01
		_, err := Decode(bad)
		require.ErrorIs(t, err, errs.ErrChecksumMismatch)
	})
}

func TestDecode_RecordCountExceedsPayload(t *testing.T) {
	for _, enc := range []format.EncodingType{format.TypeVarint, format.TypeRaw} {
		t.Run(enc.String(), func(t *testing.T) {
			e, err := NewEncoder(0, WithCompression(format.CompressionNone), WithEncoding(enc))
			require.NoError(t, err)
			require.NoError(t, e.Write(sample.Concrete(sample.GpioDit, true, false)))
			data, _, err := e.Finish()
			require.NoError(t, err)
			h, err := ParseHeader(data)
			require.NoError(t, err)

			for _, count := range []uint32{2, 50_000_000, MaxRecords} {
				bad := append([]byte(nil), data...)
				h.Engine().PutUint32(bad[40:44], count)

				_, err := Decode(bad)
				require.ErrorIs(t, err, errs.ErrInvalidPayloadSize, "count %d", count)
			}
		})
	}
}

func TestEncoder_PayloadLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("writes 64MiB of samples")
	}

	e, err := NewEncoder(0, WithEncoding(format.TypeRaw), WithCompression(format.CompressionS2))
	require.NoError(t, err)

	s := sample.Concrete(sample.GpioDit, true, false)
	for range compress.MaxDecodedSize / sample.Size {
		require.NoError(t, e.Write(s))
	}
	require.ErrorIs(t, e.Write(s), errs.ErrArchiveFull)
	require.Equal(t, compress.MaxDecodedSize/sample.Size, e.Len())

	data, _, err := e.Finish()
	require.NoError(t, err)
	blob, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, e.Len(), blob.Len())
}

func TestPackSample(t *testing.T) {
	for _, s := range keyingSamples() {
		got, err := unpackSample(packSample(s))
		require.NoError(t, err)
		require.Equal(t, s, got)
	}

	// concrete samples fit in two varint bytes
	require.Less(t, packSample(sample.Concrete(7, true, true).WithEdgesFrom(sample.Sample{}).WithConfigChanged()), uint64(1<<14))

	_, err := unpackSample(1)
	require.ErrorIs(t, err, errs.ErrInvalidSample)
	_, err = unpackSample(1 << 12)
	require.ErrorIs(t, err, errs.ErrInvalidSample)
}

func TestRecorder(t *testing.T) {
	s := stream.MustNew(64)
	p := s.MustProducer()

	// samples before attach are not recorded
	p.PushRaw(sample.Concrete(sample.GpioDah, true, false))

	r, err := NewRecorder(s, 0, WithCompression(format.CompressionS2))
	require.NoError(t, err)

	p.Push(sample.Concrete(sample.GpioDit, true, false))
	for range 50 {
		p.Push(sample.Concrete(sample.GpioDit, true, false))
	}
	p.Push(sample.Concrete(0, false, false))
	for range 20 {
		p.Push(sample.Concrete(0, false, false))
	}

	n, err := r.Poll()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	p.Flush()
	data, _, err := r.Finish()
	require.NoError(t, err)

	blob, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, uint64(1), blob.Header().StartIndex)
	require.Equal(t, 4, blob.Len())
	require.Equal(t, uint64(1+50+1+20), blob.TotalTicks())
	require.Equal(t, uint64(51), blob.KeyDownTicks())
	require.Zero(t, blob.Header().Dropped)
}

func TestRecorder_LimitAndDrops(t *testing.T) {
	s := stream.MustNew(16)
	p := s.MustProducer()

	r, err := NewRecorder(s, 4)
	require.NoError(t, err)

	for i := range 40 {
		p.PushRaw(sample.Concrete(sample.GpioState(i%4), i%2 == 0, false))
	}

	data, _, err := r.Finish()
	require.NoError(t, err)
	require.True(t, r.Truncated())
	require.Equal(t, 4, r.Len())

	blob, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, 4, blob.Len())
	require.Equal(t, uint32(r.Consumer().Dropped()), blob.Header().Dropped)
	require.Positive(t, blob.Header().Dropped)
}
