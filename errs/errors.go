// Package errs defines the sentinel errors returned by cwkeyer packages.
//
// Errors are returned directly or wrapped with fmt.Errorf("...: %w", err), so callers
// should compare with errors.Is.
//
// The real-time path does not use these sentinels. Runtime faults on that path are
// reported as fault.Code values, which also implement error without allocating.
package errs

import "errors"

// Stream errors.
var (
	// ErrInvalidCapacity indicates a stream capacity that is zero or not a power of two.
	ErrInvalidCapacity = errors.New("stream capacity must be a non-zero power of two")
	// ErrProducerClaimed indicates the stream's producer handle is already held.
	ErrProducerClaimed = errors.New("stream producer already claimed")
	// ErrInvalidSample indicates a word that does not decode to a valid sample.
	ErrInvalidSample = errors.New("invalid sample encoding")
)

// Keyer configuration errors.
var (
	ErrInvalidWPM          = errors.New("wpm out of range")
	ErrInvalidMode         = errors.New("invalid iambic mode")
	ErrInvalidSqueezeMode  = errors.New("invalid squeeze mode")
	ErrInvalidMemoryWindow = errors.New("invalid memory window")
	ErrInvalidMaxLag       = errors.New("max lag must be positive")
	ErrInvalidHeadroom     = errors.New("resync headroom must be smaller than capacity")
	ErrInvalidTickPeriod   = errors.New("tick period must be positive")
	// ErrUnsupportedConfigFormat indicates a config file extension with no loader.
	ErrUnsupportedConfigFormat = errors.New("unsupported config format")
)

// Timeline archive errors.
var (
	ErrInvalidHeaderSize  = errors.New("invalid header size")
	ErrInvalidMagicNumber = errors.New("invalid magic number")
	ErrInvalidFlags       = errors.New("invalid header flags")
	ErrInvalidPayloadSize = errors.New("invalid payload size")
	ErrChecksumMismatch   = errors.New("payload checksum mismatch")
	ErrEncoderFinished    = errors.New("encoder already finished")
	ErrArchiveFull        = errors.New("timeline archive full")
	ErrDecodedTooLarge    = errors.New("decompressed payload too large")
)

// Preset errors.
var (
	ErrInvalidPresetIndex = errors.New("preset index out of range")
	ErrInvalidPresetName  = errors.New("invalid preset name")
	ErrParamNotFound      = errors.New("parameter not found")
)

// Simulation errors.
var (
	// ErrUnknownCharacter indicates text with a character that has no Morse pattern.
	ErrUnknownCharacter = errors.New("character has no Morse pattern")
)

// Engine errors.
var (
	// ErrRecorderDisabled indicates a recording request on a keyer built without a recorder.
	ErrRecorderDisabled = errors.New("timeline recorder not enabled")
)
