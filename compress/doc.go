// Package compress provides the payload codecs of timeline archives.
//
// A timeline payload is a sequence of 4-byte sample words, mostly silence markers and
// key edges that repeat the same few values, so general-purpose compression works well
// on it. Four codecs are available, selected by format.CompressionType:
//
//   - None: payload stored as encoded
//   - Zstd: best ratio, for archives kept long term
//   - S2: fast, for archives written while the keyer runs
//   - LZ4: fastest decompression, for archives inspected often
//
// Zstd uses the pure Go implementation from klauspost/compress by default. Building with
// the cgozstd tag switches to the cgo binding in valyala/gozstd.
//
// All codecs are safe for concurrent use.
package compress
