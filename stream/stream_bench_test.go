package stream

import (
	"testing"

	"github.com/arloliu/cwkeyer/sample"
)

func BenchmarkProducer_PushIdle(b *testing.B) {
	s := MustNew(1024)
	p := s.MustProducer()
	idle := sample.Sample{}

	b.ReportAllocs()
	for b.Loop() {
		p.Push(idle)
	}
}

func BenchmarkProducer_PushToggle(b *testing.B) {
	s := MustNew(1024)
	p := s.MustProducer()
	up := sample.Concrete(0, false, false)
	down := sample.Concrete(sample.GpioDit, true, false)

	b.ReportAllocs()
	i := 0
	for b.Loop() {
		if i&1 == 0 {
			p.Push(down)
		} else {
			p.Push(up)
		}
		i++
	}
}

func BenchmarkStream_Read(b *testing.B) {
	s := MustNew(1024)
	p := s.MustProducer()
	for i := range 1024 {
		p.PushRaw(sample.Concrete(sample.GpioState(i%4), false, false))
	}

	b.ReportAllocs()
	var idx uint64
	for b.Loop() {
		_, _ = s.Read(idx & 1023)
		idx++
	}
}
