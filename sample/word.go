package sample

import (
	"fmt"

	"github.com/arloliu/cwkeyer/endian"
	"github.com/arloliu/cwkeyer/errs"
)

// Size is the serialized width of a Sample in bytes.
const Size = 4

// Word is the packed 4-byte form of a Sample.
//
// Layout, least significant byte first:
//
//	byte 0: GPIO bits                      | silence ticks bits 0-7
//	byte 1: local key (0 or 1)             | silence ticks bits 8-15
//	byte 2: remote key (0 or 1)            | zero
//	byte 3: edge flags (bits 0-3), bit 7=0 | bit 7=1, silence ticks bits 16-22
type Word uint32

const (
	silenceFlag   = 0x80
	reservedFlags = 0x70
)

// Word packs s into its 4-byte form.
func (s Sample) Word() Word {
	if s.kind == KindSilence {
		t := s.ticks & MaxSilenceTicks
		return Word(t&0xFFFF) | Word(silenceFlag|(t>>16)&0x7F)<<24
	}

	w := Word(s.gpio)
	if s.local {
		w |= 1 << 8
	}
	if s.remote {
		w |= 1 << 16
	}

	return w | Word(s.edges&edgeMask)<<24
}

// IsSilence reports whether w carries a silence marker without decoding it.
func (w Word) IsSilence() bool { return byte(w>>24)&silenceFlag != 0 }

// FromWord unpacks w without validation.
//
// Undefined bits are ignored. Use it for words produced by Sample.Word, such as the
// contents of a stream slot. Use Decode for untrusted input.
func FromWord(w Word) Sample {
	flags := byte(w >> 24)
	if flags&silenceFlag != 0 {
		return Sample{
			kind:  KindSilence,
			ticks: uint32(w&0xFFFF) | uint32(flags&0x7F)<<16,
		}
	}

	return Sample{
		kind:   KindConcrete,
		gpio:   GpioState(w) & gpioMask,
		local:  byte(w>>8) != 0,
		remote: byte(w>>16) != 0,
		edges:  Edges(flags) & edgeMask,
	}
}

// Decode unpacks w and rejects any word Sample.Word could not have produced.
//
// Returns:
//   - Sample: Decoded sample
//   - error: errs.ErrInvalidSample on reserved bits, non-boolean key bytes or an empty silence run
func Decode(w Word) (Sample, error) {
	flags := byte(w >> 24)
	if flags&silenceFlag != 0 {
		if byte(w>>16) != 0 {
			return Sample{}, fmt.Errorf("%w: silence marker %#08x has non-zero byte 2", errs.ErrInvalidSample, uint32(w))
		}
		s := FromWord(w)
		if s.ticks == 0 {
			return Sample{}, fmt.Errorf("%w: empty silence marker", errs.ErrInvalidSample)
		}

		return s, nil
	}

	if flags&reservedFlags != 0 {
		return Sample{}, fmt.Errorf("%w: reserved flags set in %#08x", errs.ErrInvalidSample, uint32(w))
	}
	if !GpioState(w).Valid() {
		return Sample{}, fmt.Errorf("%w: undefined gpio bits in %#08x", errs.ErrInvalidSample, uint32(w))
	}
	if byte(w>>8) > 1 || byte(w>>16) > 1 {
		return Sample{}, fmt.Errorf("%w: key level out of range in %#08x", errs.ErrInvalidSample, uint32(w))
	}

	return FromWord(w), nil
}

// AppendTo appends the serialized form of s to buf using the given byte order.
func (s Sample) AppendTo(buf []byte, engine endian.EndianEngine) []byte {
	return engine.AppendUint32(buf, uint32(s.Word()))
}

// Parse decodes one serialized sample from the first Size bytes of data.
//
// Returns:
//   - Sample: Decoded sample
//   - error: errs.ErrInvalidSample if data is short or the word is invalid
func Parse(data []byte, engine endian.EndianEngine) (Sample, error) {
	if len(data) < Size {
		return Sample{}, fmt.Errorf("%w: need %d bytes, got %d", errs.ErrInvalidSample, Size, len(data))
	}

	return Decode(Word(engine.Uint32(data[:Size])))
}
