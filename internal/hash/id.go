// Package hash wraps xxHash64 for archive checksums and parameter keys.
package hash

import "github.com/cespare/xxhash/v2"

// ID returns the xxHash64 of a string.
func ID(data string) uint64 {
	return xxhash.Sum64String(data)
}

// Checksum returns the xxHash64 of a byte slice.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}
