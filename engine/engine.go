// Package engine is the keyer's composition root.
//
// A Keyer owns one instance of every real-time component: the keying stream and its
// producer handle, the shared fault record, the iambic processor, the hard-RT consumer
// that drives the actuators, and the best-effort consumers (decoder, timeline
// recorder). Nothing is global; the handles are passed to the loops that use them.
//
// Three loops run a Keyer:
//   - Run calls Step once per tick period on a locked OS thread.
//   - Supervise watches the fault record and recovers after a holdoff.
//   - Background polls the best-effort consumers and drains the RT log ring.
//
// Each loop's body is also exported (Step, CheckFault, PollBackground) so hosts and
// tests can drive a Keyer in virtual time.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/cwkeyer/config"
	"github.com/arloliu/cwkeyer/consumer"
	"github.com/arloliu/cwkeyer/decoder"
	"github.com/arloliu/cwkeyer/fault"
	"github.com/arloliu/cwkeyer/iambic"
	"github.com/arloliu/cwkeyer/internal/options"
	"github.com/arloliu/cwkeyer/rtlog"
	"github.com/arloliu/cwkeyer/sample"
	"github.com/arloliu/cwkeyer/stream"
	"github.com/arloliu/cwkeyer/timeline"
)

// GpioSource supplies the input lines once per tick.
type GpioSource interface {
	ReadGpio(nowUs int64) sample.GpioState
}

// KeySink receives the key level taken from each consumed sample.
type KeySink interface {
	SetKey(nowUs int64, down bool)
}

// RemoteKeySource supplies the remote key line once per tick.
type RemoteKeySource interface {
	RemoteKey(nowUs int64) bool
}

type settings struct {
	logger      *slog.Logger
	remote      RemoteKeySource
	sidetone    KeySink
	record      bool
	maxRecords  uint32
	recordOpts  []timeline.EncoderOption
	rtlogCap    uint64
	recordStart time.Time
}

// Option configures a Keyer.
type Option = options.Option[*settings]

// WithLogger sets the logger for the supervisor and background loops. The default
// is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return options.NoError(func(s *settings) {
		if l != nil {
			s.logger = l
		}
	})
}

// WithRemote adds a remote key line. The remote key is carried in every sample and
// heard on the sidetone, but never keys the transmitter.
func WithRemote(src RemoteKeySource) Option {
	return options.NoError(func(s *settings) {
		s.remote = src
	})
}

// WithSidetone adds a sink that follows the local or the remote key.
func WithSidetone(sink KeySink) Option {
	return options.NoError(func(s *settings) {
		s.sidetone = sink
	})
}

// WithRecorder attaches a timeline recorder holding at most maxRecords samples
// (0 for no limit). The tick period is taken from the configuration.
func WithRecorder(maxRecords uint32, opts ...timeline.EncoderOption) Option {
	return options.NoError(func(s *settings) {
		s.record = true
		s.maxRecords = maxRecords
		s.recordOpts = opts
	})
}

// WithRecordStart sets the wall-clock start written into the recording header.
func WithRecordStart(t time.Time) Option {
	return options.NoError(func(s *settings) {
		s.recordStart = t
	})
}

// WithRTLogCapacity sizes the RT log ring, a power of two.
func WithRTLogCapacity(n uint64) Option {
	return options.NoError(func(s *settings) {
		s.rtlogCap = n
	})
}

// Keyer wires the real-time core together.
type Keyer struct {
	cfg    *config.Store
	gpio   GpioSource
	sink   KeySink
	remote RemoteKeySource
	tone   KeySink
	logger *slog.Logger
	epoch  time.Time

	stream   *stream.Stream
	producer *stream.Producer
	fault    *fault.State
	proc     *iambic.Processor
	hardRT   *consumer.HardRT
	rtlog    *rtlog.Ring

	tickUs   int64
	bgPeriod time.Duration
	rtCPU    int

	// RT goroutine only.
	generation uint64
	straight   bool
	silenced   bool
	lastStepUs int64
	stepped    bool

	txDown     atomic.Bool
	toneDown   atomic.Bool
	resyncReq  atomic.Bool
	applied    atomic.Uint64
	steps      atomic.Uint64
	missed     atomic.Uint64
	recoveries atomic.Uint64

	// supervisor only
	supMu      sync.Mutex
	faultSince int64
	faultSeen  bool

	// bgMu guards the best-effort consumers and their telemetry.
	bgMu        sync.Mutex
	decoder     *decoder.Decoder
	decoderSrc  *consumer.BestEffort
	recorder    *timeline.Recorder
	recordErr   error
	lastDropped map[string]uint64
	lastStatsUs int64
	statsLogged bool
}

// New builds a Keyer from the store's current configuration.
//
// Parameters:
//   - cfg: Published configuration; later generations are applied between ticks
//   - gpio: Input lines
//   - sink: Transmitter key line
//   - opts: WithLogger, WithRemote, WithSidetone, WithRecorder, WithRTLogCapacity
//
// Returns:
//   - *Keyer: Ready to step
//   - error: Component construction error
func New(cfg *config.Store, gpio GpioSource, sink KeySink, opts ...Option) (*Keyer, error) {
	st := &settings{
		logger:   slog.Default(),
		rtlogCap: rtlog.DefaultCapacity,
	}
	if err := options.Apply(st, opts...); err != nil {
		return nil, err
	}

	snap := cfg.Load()
	kc := snap.Keyer

	s, err := stream.New(kc.Stream.Capacity)
	if err != nil {
		return nil, err
	}
	prod, err := s.Producer()
	if err != nil {
		return nil, err
	}

	proc, err := iambic.New(kc.Iambic)
	if err != nil {
		return nil, err
	}

	f := fault.NewState()
	hard, err := consumer.NewHardRT(s, f, kc.Stream.MaxLag, consumer.WithName("keyer"))
	if err != nil {
		return nil, err
	}

	ring, err := rtlog.New(st.rtlogCap)
	if err != nil {
		return nil, fmt.Errorf("rt log: %w", err)
	}

	k := &Keyer{
		cfg:         cfg,
		gpio:        gpio,
		sink:        sink,
		remote:      st.remote,
		tone:        st.sidetone,
		logger:      st.logger,
		epoch:       time.Now(),
		stream:      s,
		producer:    prod,
		fault:       f,
		proc:        proc,
		hardRT:      hard,
		rtlog:       ring,
		tickUs:      kc.Engine.TickPeriod.Microseconds(),
		bgPeriod:    kc.Engine.BackgroundInterval,
		rtCPU:       kc.Engine.RTCPU,
		generation:  snap.Generation,
		straight:    kc.Engine.StraightKey,
		lastDropped: make(map[string]uint64),
	}
	k.applied.Store(snap.Generation)

	if kc.Engine.Decoder {
		k.decoder, k.decoderSrc, err = newDecoder(s, kc, st.logger)
		if err != nil {
			return nil, err
		}
	}

	if st.record {
		ropts := []timeline.EncoderOption{timeline.WithTickPeriod(kc.Engine.TickPeriod)}
		if !st.recordStart.IsZero() {
			ropts = append(ropts, timeline.WithStartTime(st.recordStart))
		}
		k.recorder, err = timeline.NewRecorder(s, st.maxRecords, append(ropts, st.recordOpts...)...)
		if err != nil {
			return nil, fmt.Errorf("recorder: %w", err)
		}
	}

	return k, nil
}

func newDecoder(s *stream.Stream, kc config.Keyer, logger *slog.Logger) (*decoder.Decoder, *consumer.BestEffort, error) {
	copts := []consumer.Option{consumer.WithName("decoder")}
	if kc.Stream.Headroom > 0 {
		copts = append(copts, consumer.WithHeadroom(kc.Stream.Headroom))
	}
	c, err := consumer.NewBestEffort(s, copts...)
	if err != nil {
		return nil, nil, err
	}

	d, err := decoder.New(c,
		decoder.WithInitialWPM(kc.Iambic.WPM),
		decoder.WithTickPeriod(kc.Engine.TickPeriod),
		decoder.WithLogger(logger.With(slog.String("component", "decoder"))),
	)
	if err != nil {
		return nil, nil, err
	}
	d.SetEnabled(kc.Engine.Decoder)

	return d, c, nil
}

// Stream returns the keying stream for attaching more consumers.
func (k *Keyer) Stream() *stream.Stream { return k.stream }

// Fault returns the shared fault record.
func (k *Keyer) Fault() *fault.State { return k.fault }

// RTLog returns the RT log ring.
func (k *Keyer) RTLog() *rtlog.Ring { return k.rtlog }

// TickPeriod returns the RT period.
func (k *Keyer) TickPeriod() time.Duration {
	return time.Duration(k.tickUs) * time.Microsecond
}

// NowUs returns microseconds since the Keyer was built, the clock used by the loops.
func (k *Keyer) NowUs() int64 {
	return time.Since(k.epoch).Microseconds()
}

// Close releases the producer handle. Call it after every loop has stopped.
func (k *Keyer) Close() {
	k.producer.Release()
}
