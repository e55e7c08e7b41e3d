// Package cwkeyer is the real-time core of an iambic CW keyer.
//
// Paddle and straight-key inputs are sampled once per tick. The iambic processor turns
// them into a key level, and every tick's sample is published to a single-producer,
// multi-consumer keying stream that collapses idle runs into silence markers. A hard-RT
// consumer drives the transmitter and sidetone and faults instead of ever skipping a
// sample; best-effort consumers (Morse decoder, timeline recorder) may fall behind and
// skip forward.
//
// # Basic Usage
//
// Running a keyer from a config file, with live reload:
//
//	host, err := cwkeyer.Open("keyer.yaml", gpio, txLine,
//	    cwkeyer.WithEngineOptions(engine.WithSidetone(tone)),
//	    cwkeyer.WithWatch(true),
//	)
//	if err != nil {
//	    return err
//	}
//	defer host.Close()
//
//	err = host.Run(ctx) // returns when ctx is done
//
// Driving the same keyer in virtual time, as tests and the simulate command do:
//
//	k := host.Keyer()
//	next := k.Simulate(ctx, 0, 5_000_000)
//	fmt.Println(k.DecodedText())
//
// # Package Structure
//
// This package wires the engine package to a configuration file. For finer control
// build the pieces directly: stream, consumer, iambic, fault, decoder, timeline and
// engine.
package cwkeyer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/cwkeyer/config"
	"github.com/arloliu/cwkeyer/engine"
	"github.com/arloliu/cwkeyer/internal/options"
)

type hostSettings struct {
	logger     *slog.Logger
	watch      bool
	engineOpts []engine.Option
}

// Option configures a Host.
type Option = options.Option[*hostSettings]

// WithLogger sets the logger shared by the keyer loops and the config watcher.
func WithLogger(l *slog.Logger) Option {
	return options.NoError(func(s *hostSettings) {
		if l != nil {
			s.logger = l
		}
	})
}

// WithWatch reloads the config file when it changes. New generations are applied
// between ticks; stream sizing changes need a restart.
func WithWatch(enabled bool) Option {
	return options.NoError(func(s *hostSettings) {
		s.watch = enabled
	})
}

// WithEngineOptions passes options through to engine.New.
func WithEngineOptions(opts ...engine.Option) Option {
	return options.NoError(func(s *hostSettings) {
		s.engineOpts = append(s.engineOpts, opts...)
	})
}

// Host owns a Keyer, its configuration store and an optional config watcher.
type Host struct {
	store   *config.Store
	keyer   *engine.Keyer
	watcher *config.Watcher
}

// Open loads path (or the defaults when path is empty) and builds a Keyer.
//
// Parameters:
//   - path: YAML or TOML config file, "" for config.Default
//   - gpio: Input lines
//   - sink: Transmitter key line
//   - opts: WithLogger, WithWatch, WithEngineOptions
//
// Returns:
//   - *Host: Keyer ready to Run or step
//   - error: Config or construction error
func Open(path string, gpio engine.GpioSource, sink engine.KeySink, opts ...Option) (*Host, error) {
	st := &hostSettings{logger: slog.Default()}
	if err := options.Apply(st, opts...); err != nil {
		return nil, err
	}

	kc := config.Default()
	if path != "" {
		var err error
		if kc, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	return newHost(path, kc, gpio, sink, st)
}

// New builds a Host from an in-memory configuration. WithWatch is ignored.
func New(kc config.Keyer, gpio engine.GpioSource, sink engine.KeySink, opts ...Option) (*Host, error) {
	st := &hostSettings{logger: slog.Default()}
	if err := options.Apply(st, opts...); err != nil {
		return nil, err
	}
	st.watch = false

	return newHost("", kc, gpio, sink, st)
}

func newHost(path string, kc config.Keyer, gpio engine.GpioSource, sink engine.KeySink, st *hostSettings) (*Host, error) {
	store, err := config.NewStore(kc)
	if err != nil {
		return nil, err
	}

	eopts := append([]engine.Option{engine.WithLogger(st.logger)}, st.engineOpts...)
	k, err := engine.New(store, gpio, sink, eopts...)
	if err != nil {
		return nil, err
	}

	h := &Host{store: store, keyer: k}
	if st.watch && path != "" {
		h.watcher, err = config.NewWatcher(path, store, st.logger.With(slog.String("component", "config")))
		if err != nil {
			k.Close()
			return nil, fmt.Errorf("watch config: %w", err)
		}
	}

	return h, nil
}

// Keyer returns the engine.
func (h *Host) Keyer() *engine.Keyer { return h.keyer }

// Store returns the configuration store. Publishing a new generation reconfigures
// the running keyer on its next tick.
func (h *Host) Store() *config.Store { return h.store }

// Run starts the RT, supervisor and background loops, plus the config watcher when
// enabled, and blocks until ctx is done or a loop fails.
//
// Returns:
//   - error: nil when stopped by ctx, otherwise the first loop error
func (h *Host) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.keyer.Run(gctx) })
	g.Go(func() error { return h.keyer.Supervise(gctx) })
	g.Go(func() error { return h.keyer.Background(gctx) })
	if h.watcher != nil {
		g.Go(func() error { return h.watcher.Run(gctx) })
	}

	err := g.Wait()
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}

	return err
}

// Close stops the config watcher and releases the keyer's producer handle. Call it
// after Run has returned.
func (h *Host) Close() error {
	var err error
	if h.watcher != nil {
		err = h.watcher.Close()
	}
	h.keyer.Close()

	return err
}
