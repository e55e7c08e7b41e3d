package engine

import (
	"log/slog"

	"github.com/arloliu/cwkeyer/consumer"
	"github.com/arloliu/cwkeyer/decoder"
	"github.com/arloliu/cwkeyer/fault"
	"github.com/arloliu/cwkeyer/stream"
)

// Telemetry is a point-in-time view of the keyer for diagnostics.
type Telemetry struct {
	Generation  uint64
	Steps       uint64
	MissedTicks uint64
	Recoveries  uint64
	KeyDown     bool
	SidetoneOn  bool
	Fault       fault.Snapshot
	Stream      stream.Stats
	Consumers   []consumer.Stats
	// Decoder is zero when the keyer has no decoder.
	Decoder      decoder.Stats
	DecoderWPM   uint32
	RTLogDropped uint64
	Recorded     int
}

// LogValue implements slog.LogValuer.
func (t Telemetry) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Uint64("generation", t.Generation),
		slog.Uint64("steps", t.Steps),
		slog.Uint64("missed_ticks", t.MissedTicks),
		slog.Uint64("recoveries", t.Recoveries),
		slog.Bool("key_down", t.KeyDown),
		slog.Any("fault", t.Fault),
		slog.Uint64("written", t.Stream.Written),
		slog.Uint64("markers", t.Stream.Markers),
		slog.Uint64("compressed_ticks", t.Stream.CompressedTicks),
	}
	for _, c := range t.Consumers {
		attrs = append(attrs, slog.Any(c.Name, c))
	}
	attrs = append(attrs,
		slog.Any("decoder", t.Decoder),
		slog.Uint64("decoder_wpm", uint64(t.DecoderWPM)),
		slog.Uint64("rtlog_dropped", t.RTLogDropped),
	)

	return slog.GroupValue(attrs...)
}

// Telemetry collects counters from every component. It is safe to call from any
// goroutine.
func (k *Keyer) Telemetry() Telemetry {
	k.bgMu.Lock()
	defer k.bgMu.Unlock()

	return k.telemetryLocked()
}

func (k *Keyer) telemetryLocked() Telemetry {
	t := Telemetry{
		Generation:   k.applied.Load(),
		Steps:        k.steps.Load(),
		MissedTicks:  k.missed.Load(),
		Recoveries:   k.recoveries.Load(),
		KeyDown:      k.txDown.Load(),
		SidetoneOn:   k.toneDown.Load(),
		Fault:        k.fault.Snapshot(),
		Stream:       k.stream.Stats(),
		Consumers:    append([]consumer.Stats{k.hardRT.Stats()}, k.bestEffortStats()...),
		RTLogDropped: k.rtlog.Dropped(),
	}
	if k.decoder != nil {
		t.Decoder = k.decoder.Stats()
		t.DecoderWPM = k.decoder.WPM()
	}
	if k.recorder != nil {
		t.Recorded = k.recorder.Len()
	}

	return t
}
