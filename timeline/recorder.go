package timeline

import (
	"errors"

	"github.com/arloliu/cwkeyer/compress"
	"github.com/arloliu/cwkeyer/consumer"
	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/stream"
)

// Recorder captures a live stream into an archive through a best-effort consumer.
// Poll and Finish must be called from one goroutine.
type Recorder struct {
	consumer   *consumer.BestEffort
	enc        *Encoder
	dropBase   uint64
	maxRecords uint32
	truncated  bool
}

// NewRecorder attaches a best-effort consumer at the stream's write position and starts
// an archive there.
//
// Parameters:
//   - s: Stream to record
//   - maxRecords: Record limit, 0 for MaxRecords; samples past the limit are ignored
//   - opts: Encoder options
//
// Returns:
//   - *Recorder: Attached recorder
//   - error: Consumer or encoder setup error
func NewRecorder(s *stream.Stream, maxRecords uint32, opts ...EncoderOption) (*Recorder, error) {
	c, err := consumer.NewBestEffort(s, consumer.WithName("timeline"))
	if err != nil {
		return nil, err
	}

	enc, err := NewEncoder(c.Position(), opts...)
	if err != nil {
		return nil, err
	}

	if maxRecords == 0 {
		maxRecords = MaxRecords
	}

	return &Recorder{
		consumer:   c,
		enc:        enc,
		dropBase:   c.Dropped(),
		maxRecords: maxRecords,
	}, nil
}

// Poll copies every available sample into the archive.
//
// Returns:
//   - int: Number of samples recorded by this call
//   - error: Encoder error
func (r *Recorder) Poll() (int, error) {
	n := 0
	for smp := range r.consumer.Drain() {
		if r.enc.header.Count >= r.maxRecords {
			r.truncated = true
			continue
		}
		if err := r.enc.Write(smp); err != nil {
			if errors.Is(err, errs.ErrArchiveFull) {
				r.truncated = true
				continue
			}

			return n, err
		}
		n++
	}

	return n, nil
}

// Truncated reports whether samples were ignored because of the record limit or a
// full archive.
func (r *Recorder) Truncated() bool { return r.truncated }

// Consumer returns the recorder's stream consumer for telemetry.
func (r *Recorder) Consumer() *consumer.BestEffort { return r.consumer }

// Len returns the records captured so far.
func (r *Recorder) Len() int { return r.enc.Len() }

// Finish polls one last time and returns the archive. The caller should flush the
// stream producer first so a trailing idle run is included.
func (r *Recorder) Finish() ([]byte, compress.Stats, error) {
	if _, err := r.Poll(); err != nil {
		return nil, compress.Stats{}, err
	}
	r.enc.SetDropped(r.consumer.Dropped() - r.dropBase)

	return r.enc.Finish()
}
