// Package endian selects the byte order used to serialize samples and timeline archives.
//
// EndianEngine joins binary.ByteOrder and binary.AppendByteOrder so encoders can both
// patch fixed header fields in place and append payload words without temporary buffers.
// Archives default to little-endian; the byte order is recorded in the archive header
// so a reader on any host decodes correctly.
package endian

import (
	"encoding/binary"
	"unsafe"
)

// EndianEngine is satisfied by binary.LittleEndian and binary.BigEndian.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}

// Native returns the host byte order.
func Native() EndianEngine {
	var word uint16 = 0x0102
	if (*[2]byte)(unsafe.Pointer(&word))[0] == 0x01 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// IsLittleEndian reports whether engine is the little-endian engine.
func IsLittleEndian(engine EndianEngine) bool {
	return engine == binary.LittleEndian
}
