package consumer

import (
	"fmt"

	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/internal/options"
)

type settings struct {
	startAt    uint64
	hasStartAt bool
	headroom   uint64
	name       string
}

// Option configures a consumer at construction.
type Option = options.Option[*settings]

// WithStartAt places the cursor at a historical logical index instead of the write position.
func WithStartAt(pos uint64) Option {
	return options.NoError(func(s *settings) {
		s.startAt = pos
		s.hasStartAt = true
	})
}

// WithHeadroom sets how far behind the write position a BestEffort consumer lands after
// an overrun. The default is half the stream capacity. HardRT ignores it.
func WithHeadroom(n uint64) Option {
	return options.New(func(s *settings) error {
		if n == 0 {
			return fmt.Errorf("%w: 0", errs.ErrInvalidHeadroom)
		}
		s.headroom = n

		return nil
	})
}

// WithName labels the consumer in telemetry.
func WithName(name string) Option {
	return options.NoError(func(s *settings) {
		s.name = name
	})
}
