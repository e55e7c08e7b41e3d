package stream

import (
	"sync"
	"testing"

	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/sample"
	"github.com/stretchr/testify/require"
)

func newTestStream(t *testing.T, capacity uint64) (*Stream, *Producer) {
	t.Helper()

	s, err := New(capacity)
	require.NoError(t, err)
	p, err := s.Producer()
	require.NoError(t, err)

	return s, p
}

func TestNew_Capacity(t *testing.T) {
	for _, c := range []uint64{1, 2, 64, 1024} {
		s, err := New(c)
		require.NoError(t, err)
		require.Equal(t, c, s.Capacity())
		require.Zero(t, s.WritePosition())
	}

	for _, c := range []uint64{0, 3, 100, 1000} {
		_, err := New(c)
		require.ErrorIs(t, err, errs.ErrInvalidCapacity)
	}

	require.Panics(t, func() { MustNew(12) })
}

func TestPush_SilenceCompression(t *testing.T) {
	t.Run("identical samples fold into one marker", func(t *testing.T) {
		s, p := newTestStream(t, 64)
		idle := sample.Concrete(0, false, false)
		for range 100 {
			p.Push(idle)
		}
		require.Zero(t, s.WritePosition())
		require.Equal(t, uint64(100), p.PendingIdle())

		p.Flush()
		require.Equal(t, uint64(1), s.WritePosition())
		require.Zero(t, p.PendingIdle())

		got, status := s.Read(0)
		require.Equal(t, Available, status)
		require.True(t, got.IsSilence())
		require.Equal(t, uint32(100), got.SilenceTicks())
	})

	t.Run("flush with nothing pending writes nothing", func(t *testing.T) {
		s, p := newTestStream(t, 8)
		p.Flush()
		require.Zero(t, s.WritePosition())
	})

	t.Run("maximum run fits one marker", func(t *testing.T) {
		s, p := newTestStream(t, 8)
		for range sample.MaxSilenceTicks {
			p.Push(sample.Sample{})
		}
		p.Flush()
		require.Equal(t, uint64(1), s.WritePosition())

		got, _ := s.Read(0)
		require.Equal(t, uint32(sample.MaxSilenceTicks), got.SilenceTicks())
	})

	t.Run("longer run splits into several markers", func(t *testing.T) {
		s, p := newTestStream(t, 8)
		for range sample.MaxSilenceTicks + 5 {
			p.Push(sample.Sample{})
		}
		p.Flush()
		require.Equal(t, uint64(2), s.WritePosition())

		first, _ := s.Read(0)
		second, _ := s.Read(1)
		require.Equal(t, uint32(sample.MaxSilenceTicks), first.SilenceTicks())
		require.Equal(t, uint32(5), second.SilenceTicks())

		stats := s.Stats()
		require.Equal(t, uint64(2), stats.Markers)
		require.Equal(t, uint64(sample.MaxSilenceTicks+5), stats.CompressedTicks)
	})

	t.Run("change flushes the run before the sample", func(t *testing.T) {
		s, p := newTestStream(t, 8)
		p.Push(sample.Sample{})
		p.Push(sample.Sample{})
		p.Push(sample.Concrete(sample.GpioDit, true, false))

		require.Equal(t, uint64(2), s.WritePosition())
		marker, _ := s.Read(0)
		require.Equal(t, uint32(2), marker.SilenceTicks())

		key, _ := s.Read(1)
		require.False(t, key.IsSilence())
		require.True(t, key.LocalKey())
		require.Equal(t, sample.EdgeGpio|sample.EdgeLocal, key.Edges())
	})

	t.Run("config flag forces a write", func(t *testing.T) {
		s, p := newTestStream(t, 8)
		p.Push(sample.Sample{}.WithConfigChanged())
		require.Equal(t, uint64(1), s.WritePosition())

		got, _ := s.Read(0)
		require.Equal(t, sample.EdgeConfig, got.Edges())
	})
}

func TestPush_EdgeFlagsAreRelative(t *testing.T) {
	s, p := newTestStream(t, 8)
	p.Push(sample.Concrete(sample.GpioDit, false, false))
	p.Push(sample.Concrete(sample.GpioDit, true, false))

	b, status := s.Read(1)
	require.Equal(t, Available, status)
	require.True(t, b.Edges().Has(sample.EdgeLocal))
	require.False(t, b.Edges().Has(sample.EdgeGpio))
	require.False(t, b.Edges().Has(sample.EdgeRemote))
	require.True(t, p.Last().LocalKey())
}

func TestPushRaw_WritesEveryTick(t *testing.T) {
	s, p := newTestStream(t, 8)
	p.Push(sample.Sample{})
	for range 3 {
		p.PushRaw(sample.Sample{})
	}

	require.Equal(t, uint64(4), s.WritePosition())
	marker, _ := s.Read(0)
	require.Equal(t, uint32(1), marker.SilenceTicks())
	for i := uint64(1); i < 4; i++ {
		got, status := s.Read(i)
		require.Equal(t, Available, status)
		require.False(t, got.IsSilence())
	}
	require.Equal(t, uint64(4), s.Stats().Pushes)

	p.PushRaw(sample.MustSilence(9))
	got, _ := s.Read(4)
	require.Equal(t, uint32(9), got.SilenceTicks())
}

func TestRead_OverrunBoundary(t *testing.T) {
	const capacity = 16
	const k = 3

	s, p := newTestStream(t, capacity)
	for i := range capacity + k {
		p.PushRaw(sample.Concrete(sample.GpioState(i%4), i%2 == 0, false))
	}

	_, status := s.Read(0)
	require.Equal(t, Overwritten, status)
	require.True(t, s.IsOverrun(0))

	got, status := s.Read(k)
	require.Equal(t, Available, status)
	require.Equal(t, sample.GpioState(k%4), got.Gpio())
	require.Equal(t, k%2 == 0, got.LocalKey())
	require.False(t, s.IsOverrun(k))

	_, status = s.Read(capacity + k)
	require.Equal(t, NotYetWritten, status)
	require.Zero(t, s.Lag(capacity+k))
	require.Zero(t, s.Lag(capacity+k+10))
	require.False(t, s.IsOverrun(capacity+k+10))
	require.Equal(t, uint64(capacity+k), s.Lag(0))
}

func TestProducer_Claim(t *testing.T) {
	s := MustNew(8)
	p, err := s.Producer()
	require.NoError(t, err)
	require.Same(t, s, p.Stream())

	_, err = s.Producer()
	require.ErrorIs(t, err, errs.ErrProducerClaimed)
	require.Panics(t, func() { s.MustProducer() })

	p.Push(sample.Sample{})
	p.Release()
	require.Panics(t, func() { p.Push(sample.Sample{}) })

	p2, err := s.Producer()
	require.NoError(t, err)
	require.Equal(t, uint64(1), p2.PendingIdle())
	p2.Flush()
	require.Equal(t, uint64(1), s.WritePosition())
}

func TestProducer_ConcurrentUsePanics(t *testing.T) {
	_, p := newTestStream(t, 8)
	p.busy.Store(true)
	require.PanicsWithValue(t, "stream: concurrent use of Producer", func() {
		p.Push(sample.Sample{})
	})
}

func TestStream_ConcurrentReaders(t *testing.T) {
	const capacity = 64
	const total = 20000

	s, p := newTestStream(t, capacity)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var cursor uint64
			for cursor < total {
				got, status := s.Read(cursor)
				switch status {
				case Available:
					// every index i carries gpio i%8, so a stale slot would be caught here
					if got.Gpio() != sample.GpioState(cursor%8) {
						t.Errorf("index %d: gpio %d", cursor, got.Gpio())
						return
					}
					cursor++
				case Overwritten:
					cursor = s.WritePosition() - capacity/2
				case NotYetWritten:
				}
			}
		}()
	}

	for i := range uint64(total) {
		p.PushRaw(sample.Concrete(sample.GpioState(i%8), false, false))
	}
	wg.Wait()
}
