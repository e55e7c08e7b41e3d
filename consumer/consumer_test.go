package consumer

import (
	"math/rand/v2"
	"testing"

	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/fault"
	"github.com/arloliu/cwkeyer/sample"
	"github.com/arloliu/cwkeyer/stream"
	"github.com/stretchr/testify/require"
)

func toggle(i int) sample.Sample {
	return sample.Concrete(sample.GpioState(i%4), i%2 == 1, false)
}

func newStream(t *testing.T, capacity uint64) (*stream.Stream, *stream.Producer) {
	t.Helper()

	s, err := stream.New(capacity)
	require.NoError(t, err)
	p, err := s.Producer()
	require.NoError(t, err)

	return s, p
}

func TestHardRT_ReadsInOrder(t *testing.T) {
	s, p := newStream(t, 16)
	f := fault.NewState()
	c, err := NewHardRT(s, f, 4, WithName("tx"))
	require.NoError(t, err)

	_, ok, err := c.Tick()
	require.NoError(t, err)
	require.False(t, ok)

	for i := range 3 {
		p.PushRaw(toggle(i))
	}
	for i := range 3 {
		got, ok, err := c.Tick()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, toggle(i).Gpio(), got.Gpio())
	}

	_, ok, err = c.Tick()
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, f.IsActive())

	stats := c.Stats()
	require.Equal(t, "tx", stats.Name)
	require.Equal(t, uint64(3), stats.Consumed)
	require.Equal(t, uint64(3), stats.Position)
	require.Zero(t, stats.Lag)
}

func TestHardRT_AttachesAtWritePosition(t *testing.T) {
	s, p := newStream(t, 16)
	for i := range 5 {
		p.PushRaw(toggle(i))
	}

	c, err := NewHardRT(s, fault.NewState(), 2)
	require.NoError(t, err)
	require.Equal(t, uint64(5), c.Position())

	rewound, err := NewHardRT(s, fault.NewState(), 8, WithStartAt(1))
	require.NoError(t, err)
	got, ok, err := rewound.Tick()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, toggle(1).Gpio(), got.Gpio())
}

func TestHardRT_InvalidMaxLag(t *testing.T) {
	s, _ := newStream(t, 8)
	_, err := NewHardRT(s, fault.NewState(), 0)
	require.ErrorIs(t, err, errs.ErrInvalidMaxLag)
}

func TestHardRT_LatencyExceeded(t *testing.T) {
	const maxLag = 3

	s, p := newStream(t, 16)
	f := fault.NewState()
	c, err := NewHardRT(s, f, maxLag)
	require.NoError(t, err)

	for i := range maxLag + 1 {
		p.PushRaw(toggle(i))
	}

	_, ok, err := c.Tick()
	require.False(t, ok)
	require.ErrorIs(t, err, fault.LatencyExceeded)
	require.True(t, f.IsActive())
	require.Equal(t, uint32(1), f.Count())
	require.Equal(t, fault.LatencyExceeded, f.Code())
	require.Equal(t, uint32(maxLag+1), f.Data())

	c.Resync()
	f.Clear()
	require.Zero(t, c.Lag())

	p.PushRaw(toggle(9))
	got, ok, err := c.Tick()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, toggle(9).Gpio(), got.Gpio())
	require.False(t, f.IsActive())
	require.Equal(t, uint32(1), f.Count())
}

func TestHardRT_Overrun(t *testing.T) {
	s, p := newStream(t, 8)
	f := fault.NewState()
	c, err := NewHardRT(s, f, 4)
	require.NoError(t, err)

	for i := range 11 {
		p.PushRaw(toggle(i))
	}

	_, _, err = c.Tick()
	require.ErrorIs(t, err, fault.Overrun)
	require.Equal(t, fault.Snapshot{Active: true, Code: fault.Overrun, Data: 11, Count: 1}, f.Snapshot())

	// stays faulted until resync
	_, _, err = c.Tick()
	require.ErrorIs(t, err, fault.Overrun)
	require.Equal(t, uint32(2), f.Count())

	c.Seek(s.WritePosition() - 1)
	_, ok, err := c.Tick()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBestEffort_Headroom(t *testing.T) {
	s, _ := newStream(t, 16)

	c, err := NewBestEffort(s)
	require.NoError(t, err)
	require.Equal(t, uint64(8), c.Headroom())

	c, err = NewBestEffort(s, WithHeadroom(4))
	require.NoError(t, err)
	require.Equal(t, uint64(4), c.Headroom())

	_, err = NewBestEffort(s, WithHeadroom(16))
	require.ErrorIs(t, err, errs.ErrInvalidHeadroom)

	_, err = NewBestEffort(s, WithHeadroom(0))
	require.ErrorIs(t, err, errs.ErrInvalidHeadroom)
}

func TestBestEffort_OverrunSkipsAhead(t *testing.T) {
	s, p := newStream(t, 16)
	c, err := NewBestEffort(s)
	require.NoError(t, err)

	for i := range 40 {
		p.PushRaw(toggle(i))
	}

	got, ok := c.Tick()
	require.True(t, ok)
	// resumes at write - capacity/2 = 32
	require.Equal(t, toggle(32).Gpio(), got.Gpio())
	require.Equal(t, uint64(32), c.Dropped())
	require.Equal(t, uint64(33), c.Position())

	n := 0
	for range c.Drain() {
		n++
	}
	require.Equal(t, 7, n)
	require.Zero(t, c.Lag())

	require.Equal(t, uint64(32), c.ResetDropped())
	require.Zero(t, c.Dropped())
}

func TestBestEffort_CustomHeadroom(t *testing.T) {
	s, p := newStream(t, 16)
	c, err := NewBestEffort(s, WithHeadroom(2))
	require.NoError(t, err)

	for i := range 40 {
		p.PushRaw(toggle(i))
	}

	got, ok := c.Tick()
	require.True(t, ok)
	require.Equal(t, toggle(38).Gpio(), got.Gpio())
	require.Equal(t, uint64(38), c.Dropped())
}

func TestBestEffort_NeverErrors(t *testing.T) {
	s, p := newStream(t, 32)
	c, err := NewBestEffort(s)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))
	var lastDropped uint64
	next := 0
	for range 2000 {
		for range rng.IntN(100) {
			if rng.IntN(3) == 0 {
				p.Push(sample.Sample{})
			} else {
				p.Push(toggle(next))
				next++
			}
		}
		if rng.IntN(10) == 0 {
			p.Flush()
		}

		for range rng.IntN(40) {
			require.NotPanics(t, func() { c.Tick() })
		}

		require.GreaterOrEqual(t, c.Dropped(), lastDropped)
		lastDropped = c.Dropped()
	}
	require.Positive(t, lastDropped)
}

func TestBestEffort_DrainStopsEarly(t *testing.T) {
	s, p := newStream(t, 16)
	c, err := NewBestEffort(s)
	require.NoError(t, err)

	for i := range 6 {
		p.PushRaw(toggle(i))
	}

	for smp := range c.Drain() {
		require.Equal(t, toggle(0).Gpio(), smp.Gpio())
		break
	}
	require.Equal(t, uint64(1), c.Position())
	require.Equal(t, uint64(5), c.Stats().Lag)

	c.Resync()
	require.Zero(t, c.Lag())
	c.Seek(2)
	smp, ok := c.Tick()
	require.True(t, ok)
	require.Equal(t, toggle(2).Gpio(), smp.Gpio())
}
