package engine

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/arloliu/cwkeyer/compress"
	"github.com/arloliu/cwkeyer/consumer"
	"github.com/arloliu/cwkeyer/errs"
)

// statsIntervalUs is how often the background loop logs telemetry at debug level.
const statsIntervalUs = 1_000_000

// Run calls Step once per tick period until ctx is done. It locks the calling
// goroutine to its OS thread and, when configured, pins that thread to a CPU.
// On return the sinks are up and the pending idle run is flushed.
func (k *Keyer) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if k.rtCPU >= 0 {
		if err := pinThread(k.rtCPU); err != nil {
			k.logger.Warn("rt thread not pinned", slog.Int("cpu", k.rtCPU), slog.Any("error", err))
		} else {
			k.logger.Info("rt thread pinned", slog.Int("cpu", k.rtCPU))
		}
	}

	ticker := time.NewTicker(k.TickPeriod())
	defer ticker.Stop()

	k.logger.Info("keyer running", slog.Duration("tick", k.TickPeriod()))
	for {
		select {
		case <-ctx.Done():
			k.setKey(k.NowUs(), false, false)
			k.producer.Flush()
			k.logger.Info("keyer stopped", slog.Uint64("steps", k.steps.Load()))

			return ctx.Err()
		case <-ticker.C:
			k.Step(k.NowUs())
		}
	}
}

// Supervise calls CheckFault every background interval until ctx is done.
func (k *Keyer) Supervise(ctx context.Context) error {
	ticker := time.NewTicker(k.bgPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			k.CheckFault(k.NowUs())
		}
	}
}

// CheckFault recovers from an active fault once it has been active for the
// configured holdoff: it clears the fault and asks the RT loop to resync.
//
// Returns:
//   - bool: true if a recovery was started by this call
func (k *Keyer) CheckFault(nowUs int64) bool {
	k.supMu.Lock()
	defer k.supMu.Unlock()

	if !k.fault.IsActive() {
		k.faultSeen = false
		return false
	}

	if !k.faultSeen {
		k.faultSeen = true
		k.faultSince = nowUs
		k.logger.Warn("keying fault", slog.Any("fault", k.fault.Snapshot()))
	}

	holdoff := k.cfg.Load().Keyer.Engine.FaultHoldoff.Microseconds()
	if nowUs-k.faultSince < holdoff {
		return false
	}

	k.fault.Clear()
	k.resyncReq.Store(true)
	k.faultSeen = false
	k.recoveries.Add(1)
	k.logger.Info("keying fault cleared",
		slog.Any("fault", k.fault.Snapshot()),
		slog.Duration("after", time.Duration(nowUs-k.faultSince)*time.Microsecond))

	return true
}

// Background calls PollBackground every background interval until ctx is done, then
// polls once more.
func (k *Keyer) Background(ctx context.Context) error {
	ticker := time.NewTicker(k.bgPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.PollBackground(context.WithoutCancel(ctx), k.NowUs())
			return ctx.Err()
		case <-ticker.C:
			k.PollBackground(ctx, k.NowUs())
		}
	}
}

// PollBackground runs the best-effort consumers once, reports drops and drains the
// RT log ring into the logger.
func (k *Keyer) PollBackground(ctx context.Context, nowUs int64) {
	k.bgMu.Lock()
	defer k.bgMu.Unlock()

	if k.decoder != nil {
		k.decoder.Process(nowUs)
	}

	if k.recorder != nil && k.recordErr == nil {
		if _, err := k.recorder.Poll(); err != nil {
			k.recordErr = err
			k.logger.ErrorContext(ctx, "timeline recorder stopped", slog.Any("error", err))
		}
	}

	for _, st := range k.bestEffortStats() {
		if d := st.Dropped - k.lastDropped[st.Name]; d > 0 {
			k.logger.WarnContext(ctx, "best-effort consumer dropped samples",
				slog.String("consumer", st.Name),
				slog.Uint64("dropped", d),
				slog.Uint64("total", st.Dropped))
		}
		k.lastDropped[st.Name] = st.Dropped
	}

	k.rtlog.Flush(ctx, k.logger)

	if !k.statsLogged || nowUs-k.lastStatsUs >= statsIntervalUs {
		k.statsLogged = true
		k.lastStatsUs = nowUs
		k.logger.DebugContext(ctx, "keyer telemetry", slog.Any("telemetry", k.telemetryLocked()))
	}
}

func (k *Keyer) bestEffortStats() []consumer.Stats {
	var out []consumer.Stats
	if k.decoderSrc != nil {
		out = append(out, k.decoderSrc.Stats())
	}
	if k.recorder != nil {
		out = append(out, k.recorder.Consumer().Stats())
	}

	return out
}

// Flush writes the pending idle run to the stream. Call it from the goroutine that
// calls Step.
func (k *Keyer) Flush() {
	k.producer.Flush()
}

// DecodedText returns the decoder's retained text, or "" without a decoder.
func (k *Keyer) DecodedText() string {
	k.bgMu.Lock()
	defer k.bgMu.Unlock()

	if k.decoder == nil {
		return ""
	}

	return k.decoder.Text()
}

// FinishRecording closes the timeline recording and returns the archive. Flush
// first so a trailing idle run is included.
func (k *Keyer) FinishRecording() ([]byte, compress.Stats, error) {
	k.bgMu.Lock()
	defer k.bgMu.Unlock()

	if k.recorder == nil {
		return nil, compress.Stats{}, errs.ErrRecorderDisabled
	}
	if k.recordErr != nil {
		return nil, compress.Stats{}, k.recordErr
	}

	return k.recorder.Finish()
}

// Simulate steps the keyer in virtual time for every tick in [fromUs, toUs). The
// supervisor runs after every step and the background loop every background
// interval, as the real loops would.
//
// Returns:
//   - int64: Time of the next tick
func (k *Keyer) Simulate(ctx context.Context, fromUs, toUs int64) int64 {
	bgUs := k.bgPeriod.Microseconds()
	nextBg := fromUs

	now := fromUs
	for ; now < toUs; now += k.tickUs {
		k.Step(now)
		k.CheckFault(now)
		if now >= nextBg {
			k.PollBackground(ctx, now)
			nextBg = now + bgUs
		}
	}

	return now
}
