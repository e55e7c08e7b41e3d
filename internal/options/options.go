// Package options provides the generic functional-option helpers used by cwkeyer
// constructors.
//
// A package declares its option type as an alias over its private settings struct:
//
//	type Option = options.Option[*settings]
//
//	func WithName(name string) Option {
//	    return options.NoError(func(s *settings) { s.name = name })
//	}
//
// and applies them with Apply, which stops at the first failing option.
package options

// Option configures a target of type T.
type Option[T any] interface {
	apply(T) error
}

// Func adapts a function to Option.
type Func[T any] struct {
	fn func(T) error
}

func (f *Func[T]) apply(target T) error {
	return f.fn(target)
}

// New wraps a fallible setter.
func New[T any](fn func(T) error) *Func[T] {
	return &Func[T]{fn: fn}
}

// NoError wraps a setter that cannot fail.
func NoError[T any](fn func(T)) *Func[T] {
	return &Func[T]{fn: func(target T) error {
		fn(target)
		return nil
	}}
}

// Apply applies opts in order and returns the first error.
func Apply[T any](target T, opts ...Option[T]) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(target); err != nil {
			return err
		}
	}

	return nil
}
