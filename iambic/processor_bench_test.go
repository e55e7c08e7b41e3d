package iambic

import (
	"testing"

	"github.com/arloliu/cwkeyer/sample"
)

func BenchmarkProcessor_TickSqueeze(b *testing.B) {
	p, _ := New(DefaultConfig())
	squeeze := sample.GpioDit | sample.GpioDah

	b.ReportAllocs()
	var now int64
	for b.Loop() {
		p.Tick(now, squeeze)
		now += 1000
	}
}
