package compress

import (
	"testing"
)

func BenchmarkCodecs_Compress(b *testing.B) {
	data := keyingPayload(16 * 1024)

	for _, ct := range allTypes() {
		codec, _ := GetCodec(ct)
		b.Run(ct.String(), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			b.ReportAllocs()
			for b.Loop() {
				_, _ = codec.Compress(data)
			}
		})
	}
}

func BenchmarkCodecs_Decompress(b *testing.B) {
	data := keyingPayload(16 * 1024)

	for _, ct := range allTypes() {
		codec, _ := GetCodec(ct)
		compressed, _ := codec.Compress(data)
		b.Run(ct.String(), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			b.ReportAllocs()
			for b.Loop() {
				_, _ = codec.Decompress(compressed)
			}
		})
	}
}
