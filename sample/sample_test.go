package sample

import (
	"testing"

	"github.com/arloliu/cwkeyer/endian"
	"github.com/arloliu/cwkeyer/errs"
	"github.com/stretchr/testify/require"
)

func TestGpioState_Queries(t *testing.T) {
	tests := []struct {
		name      string
		gpio      GpioState
		idle      bool
		squeeze   bool
		dit, dah  bool
		straight  bool
		formatted string
	}{
		{name: "idle", gpio: 0, idle: true, formatted: "idle"},
		{name: "dit", gpio: GpioDit, dit: true, formatted: "dit"},
		{name: "dah", gpio: GpioDah, dah: true, formatted: "dah"},
		{name: "squeeze", gpio: GpioDit | GpioDah, squeeze: true, dit: true, dah: true, formatted: "dit+dah"},
		{name: "straight", gpio: GpioStraight, straight: true, formatted: "straight"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.idle, tt.gpio.IsIdle())
			require.Equal(t, !tt.idle, tt.gpio.AnyPressed())
			require.Equal(t, tt.squeeze, tt.gpio.IsSqueeze())
			require.Equal(t, tt.dit, tt.gpio.Dit())
			require.Equal(t, tt.dah, tt.gpio.Dah())
			require.Equal(t, tt.straight, tt.gpio.Straight())
			require.Equal(t, tt.formatted, tt.gpio.String())
		})
	}

	require.Equal(t, GpioDit|GpioStraight, NewGpio(true, false, true))
	require.False(t, GpioState(0x10).Valid())
}

func TestSample_WordRoundTrip(t *testing.T) {
	t.Run("concrete", func(t *testing.T) {
		s := Concrete(GpioDit|GpioDah, true, false).WithEdgesFrom(Sample{})
		w := s.Word()
		require.Equal(t, Word(0x03|1<<8|uint32(EdgeGpio|EdgeLocal)<<24), w)
		require.False(t, w.IsSilence())

		got, err := Decode(w)
		require.NoError(t, err)
		require.Equal(t, s, got)
	})

	t.Run("silence boundaries", func(t *testing.T) {
		for _, ticks := range []uint32{1, 0xFFFF, 0x10000, MaxSilenceTicks} {
			s := MustSilence(ticks)
			w := s.Word()
			require.True(t, w.IsSilence())

			got, err := Decode(w)
			require.NoError(t, err)
			require.True(t, got.IsSilence())
			require.Equal(t, ticks, got.SilenceTicks())
			require.Equal(t, ticks, got.Ticks())
			require.False(t, got.LocalKey())
		}
	})

	t.Run("serialized", func(t *testing.T) {
		engine := endian.GetLittleEndianEngine()
		s := Concrete(GpioDah, false, true)
		buf := s.AppendTo(nil, engine)
		require.Equal(t, []byte{0x02, 0x00, 0x01, 0x00}, buf)

		got, err := Parse(buf, engine)
		require.NoError(t, err)
		require.Equal(t, s, got)

		_, err = Parse(buf[:3], engine)
		require.ErrorIs(t, err, errs.ErrInvalidSample)
	})
}

func TestSilence_Range(t *testing.T) {
	_, err := Silence(0)
	require.ErrorIs(t, err, errs.ErrInvalidSample)

	_, err = Silence(MaxSilenceTicks + 1)
	require.ErrorIs(t, err, errs.ErrInvalidSample)

	require.Panics(t, func() { MustSilence(0) })
}

func TestDecode_RejectsInvalidWords(t *testing.T) {
	tests := []struct {
		name string
		word Word
	}{
		{name: "reserved flag", word: 0x10 << 24},
		{name: "undefined gpio bit", word: 0x08},
		{name: "local key byte not boolean", word: 2 << 8},
		{name: "remote key byte not boolean", word: 0xFF << 16},
		{name: "empty silence", word: 0x80 << 24},
		{name: "silence with byte 2", word: 0x80<<24 | 1<<16 | 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.word)
			require.ErrorIs(t, err, errs.ErrInvalidSample)
		})
	}
}

func TestSample_EdgesAreRelative(t *testing.T) {
	a := Concrete(GpioDit, false, false)
	b := Concrete(GpioDit, true, false).WithEdgesFrom(a)

	require.True(t, b.Edges().Has(EdgeLocal))
	require.False(t, b.Edges().Has(EdgeGpio))
	require.False(t, b.Edges().Has(EdgeRemote))

	require.True(t, b.HasChangeFrom(a))
	require.False(t, a.HasChangeFrom(Concrete(GpioDit, false, false).WithConfigChanged()))
}

func TestSample_ConfigFlagSurvivesEdges(t *testing.T) {
	s := Concrete(0, true, false).WithConfigChanged().WithEdgesFrom(Sample{})
	require.Equal(t, EdgeLocal|EdgeConfig, s.Edges())

	require.Zero(t, MustSilence(3).WithConfigChanged().Edges())
}

func TestSample_ZeroValue(t *testing.T) {
	var s Sample
	require.Equal(t, KindConcrete, s.Kind())
	require.Equal(t, Word(0), s.Word())
	require.Equal(t, uint32(1), s.Ticks())
	require.Equal(t, "silence(5)", MustSilence(5).String())
}
