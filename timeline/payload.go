package timeline

import (
	"encoding/binary"
	"fmt"

	"github.com/arloliu/cwkeyer/endian"
	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/sample"
)

// Varint payloads store each sample as one unsigned varint.
//
// Bit 0 selects the shape. A silence marker stores ticks<<1|1, so short runs take one
// or two bytes. A concrete sample stores its 9 meaningful bits (gpio, local, remote,
// edges) shifted left by one, which always fits in two bytes.

func packSample(s sample.Sample) uint64 {
	if s.IsSilence() {
		return uint64(s.SilenceTicks())<<1 | 1
	}

	v := uint64(s.Gpio())
	if s.LocalKey() {
		v |= 1 << 3
	}
	if s.RemoteKey() {
		v |= 1 << 4
	}
	v |= uint64(s.Edges()) << 5

	return v << 1
}

func unpackSample(v uint64) (sample.Sample, error) {
	if v&1 == 1 {
		ticks := v >> 1
		if ticks == 0 || ticks > sample.MaxSilenceTicks {
			return sample.Sample{}, fmt.Errorf("%w: silence run %d", errs.ErrInvalidSample, ticks)
		}

		return sample.MustSilence(uint32(ticks)), nil
	}

	v >>= 1
	if v>>9 != 0 {
		return sample.Sample{}, fmt.Errorf("%w: packed value %#x", errs.ErrInvalidSample, v)
	}

	s := sample.Concrete(sample.GpioState(v&0x07), v&(1<<3) != 0, v&(1<<4) != 0)
	word := s.Word() | sample.Word(v>>5)<<24

	return sample.Decode(word)
}

func appendVarint(buf []byte, s sample.Sample) []byte {
	return binary.AppendUvarint(buf, packSample(s))
}

func appendRaw(buf []byte, s sample.Sample, engine endian.EndianEngine) []byte {
	return s.AppendTo(buf, engine)
}

// decodeVarint decodes exactly count samples and rejects trailing bytes. Every record
// takes at least one byte, so count is checked against len(data) before allocating.
func decodeVarint(data []byte, count uint32) ([]sample.Sample, error) {
	if uint64(count) > uint64(len(data)) {
		return nil, fmt.Errorf("%w: %d bytes cannot hold %d records", errs.ErrInvalidPayloadSize, len(data), count)
	}

	out := make([]sample.Sample, 0, count)
	for i := range count {
		v, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, fmt.Errorf("%w: truncated varint at record %d", errs.ErrInvalidPayloadSize, i)
		}
		data = data[n:]

		s, err := unpackSample(v)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, s)
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", errs.ErrInvalidPayloadSize, len(data))
	}

	return out, nil
}

func decodeRaw(data []byte, count uint32, engine endian.EndianEngine) ([]sample.Sample, error) {
	if uint64(len(data)) != uint64(count)*sample.Size {
		return nil, fmt.Errorf("%w: %d bytes for %d records", errs.ErrInvalidPayloadSize, len(data), count)
	}

	out := make([]sample.Sample, 0, count)
	for i := range count {
		s, err := sample.Parse(data[i*sample.Size:], engine)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, s)
	}

	return out, nil
}
