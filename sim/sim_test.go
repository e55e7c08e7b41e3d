package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/iambic"
	"github.com/arloliu/cwkeyer/sample"
)

func TestScriptReadGpio(t *testing.T) {
	s := NewScript(
		Event{AtUs: 300, Gpio: 0},
		Event{AtUs: 100, Gpio: sample.GpioDit},
		Event{AtUs: 200, Gpio: sample.GpioDah},
		Event{AtUs: 200, Gpio: sample.GpioDit | sample.GpioDah},
	)

	assert.Equal(t, sample.GpioState(0), s.ReadGpio(0))
	assert.Equal(t, sample.GpioState(0), s.ReadGpio(99))
	assert.Equal(t, sample.GpioDit, s.ReadGpio(100))
	assert.Equal(t, sample.GpioDit, s.ReadGpio(199))
	assert.Equal(t, sample.GpioDit|sample.GpioDah, s.ReadGpio(200), "last event at an instant wins")
	assert.Equal(t, sample.GpioDit|sample.GpioDah, s.ReadGpio(250))
	assert.Equal(t, sample.GpioState(0), s.ReadGpio(300))
	assert.Equal(t, int64(300), s.EndUs())

	assert.Zero(t, NewScript().ReadGpio(5))
	assert.Zero(t, NewScript().EndUs())
}

func TestDuration(t *testing.T) {
	d, err := Duration("PARIS", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(43*60_000), d)

	d, err = Duration("PARIS PARIS", 20)
	require.NoError(t, err)
	assert.Equal(t, int64((43+7+43)*60_000), d)

	full, err := Duration("ＰＡＲＩＳ", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(43*60_000), full)

	_, err = Duration("€", 20)
	require.ErrorIs(t, err, errs.ErrUnknownCharacter)

	_, err = Paddles("E", 2, 0)
	require.ErrorIs(t, err, errs.ErrInvalidWPM)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "CQ DE K1ABC", Normalize("  cq\tde  k1abc\n"))
	assert.Equal(t, "TEST 5NN", Normalize("ｔｅｓｔ\u3000５ＮＮ"), "full-width forms fold to ASCII")
}

func straightIntervals(s *Script) []Interval {
	var out []Interval
	var start int64
	for _, e := range s.Events() {
		if e.Gpio.Straight() {
			start = e.AtUs
			continue
		}
		out = append(out, Interval{StartUs: start, EndUs: e.AtUs})
	}

	return out
}

func keyThrough(t *testing.T, cfg iambic.Config, s *Script) []Interval {
	t.Helper()

	p, err := iambic.New(cfg)
	require.NoError(t, err)

	rec := &KeyRecorder{}
	end := s.EndUs() + 10*cfg.DitDurationUs()
	for now := int64(0); now <= end; now += 1000 {
		smp := p.Tick(now, s.ReadGpio(now))
		rec.SetKey(now, smp.LocalKey())
	}
	require.False(t, rec.IsDown())

	return rec.Intervals()
}

func TestPaddlesMatchIdealTiming(t *testing.T) {
	const text = "PARIS CQ 73"

	want, err := StraightKey(text, 20, 0)
	require.NoError(t, err)

	paddles, err := Paddles(text, 20, 0)
	require.NoError(t, err)

	for _, tc := range []struct {
		name   string
		mutate func(*iambic.Config)
	}{
		{"mode B", func(*iambic.Config) {}},
		{"mode A", func(c *iambic.Config) { c.Mode = iambic.ModeA }},
		{"no memory", func(c *iambic.Config) { c.DitMemory, c.DahMemory = false, false }},
		{"latch on", func(c *iambic.Config) { c.Squeeze = iambic.LatchOn }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := iambic.DefaultConfig()
			tc.mutate(&cfg)

			got := keyThrough(t, cfg, paddles)
			assert.Equal(t, straightIntervals(want), got)
		})
	}
}

func TestKeyRecorder(t *testing.T) {
	r := &KeyRecorder{}
	r.SetKey(0, false)
	r.SetKey(10, true)
	r.SetKey(15, true)
	assert.True(t, r.IsDown())
	r.SetKey(40, false)
	r.SetKey(50, true)

	assert.Equal(t, []Interval{{StartUs: 10, EndUs: 40}}, r.Intervals())
	assert.Equal(t, int64(30), r.Intervals()[0].Duration())
	assert.Equal(t, 3, r.Changes())
}

func TestRemote(t *testing.T) {
	r := NewRemote(Interval{StartUs: 500, EndUs: 600}, Interval{StartUs: 100, EndUs: 200})

	for _, tc := range []struct {
		at   int64
		want bool
	}{
		{0, false}, {100, true}, {199, true}, {200, false},
		{499, false}, {500, true}, {599, true}, {600, false}, {10_000, false},
	} {
		assert.Equal(t, tc.want, r.RemoteKey(tc.at), "at %d", tc.at)
	}

	assert.False(t, NewRemote().RemoteKey(0))
}
