// Package pool recycles the byte buffers used to assemble timeline archives.
package pool

import (
	"io"
	"sync"
)

const (
	// ArchiveBufferDefaultSize fits about four thousand sample words.
	ArchiveBufferDefaultSize = 16 * 1024
	// ArchiveBufferMaxThreshold is the largest buffer returned to the pool.
	ArchiveBufferMaxThreshold = 1024 * 1024
)

// ByteBuffer is a growable byte slice.
type ByteBuffer struct {
	B []byte
}

// NewByteBuffer creates an empty buffer with the given capacity.
func NewByteBuffer(capacity int) *ByteBuffer {
	return &ByteBuffer{B: make([]byte, 0, capacity)}
}

// Bytes returns the buffered data.
func (bb *ByteBuffer) Bytes() []byte { return bb.B }

// Len returns the number of buffered bytes.
func (bb *ByteBuffer) Len() int { return len(bb.B) }

// Cap returns the capacity of the underlying slice.
func (bb *ByteBuffer) Cap() int { return cap(bb.B) }

// Reset empties the buffer and keeps its memory.
func (bb *ByteBuffer) Reset() { bb.B = bb.B[:0] }

// Write appends data. It never fails.
func (bb *ByteBuffer) Write(data []byte) (int, error) {
	bb.B = append(bb.B, data...)
	return len(data), nil
}

// WriteTo writes the buffered data to w.
func (bb *ByteBuffer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(bb.B)
	return int64(n), err
}

// Grow makes room for n more bytes. Small buffers grow by the default size,
// larger ones by a quarter of their capacity.
func (bb *ByteBuffer) Grow(n int) {
	if cap(bb.B)-len(bb.B) >= n {
		return
	}

	growBy := ArchiveBufferDefaultSize
	if cap(bb.B) > 4*ArchiveBufferDefaultSize {
		growBy = cap(bb.B) / 4
	}
	growBy = max(growBy, n)

	buf := make([]byte, len(bb.B), len(bb.B)+growBy)
	copy(buf, bb.B)
	bb.B = buf
}

// ExtendOrGrow lengthens the buffer by n bytes and returns the new tail for in-place writes.
func (bb *ByteBuffer) ExtendOrGrow(n int) []byte {
	bb.Grow(n)
	start := len(bb.B)
	bb.B = bb.B[:start+n]

	return bb.B[start:]
}

// ByteBufferPool is a sync.Pool of ByteBuffers that discards oversized buffers.
type ByteBufferPool struct {
	pool         sync.Pool
	maxThreshold int
}

// NewByteBufferPool creates a pool of buffers with defaultSize capacity. Buffers grown
// beyond maxThreshold are dropped on Put; zero disables the limit.
func NewByteBufferPool(defaultSize, maxThreshold int) *ByteBufferPool {
	return &ByteBufferPool{
		pool: sync.Pool{
			New: func() any { return NewByteBuffer(defaultSize) },
		},
		maxThreshold: maxThreshold,
	}
}

// Get returns an empty buffer.
func (p *ByteBufferPool) Get() *ByteBuffer {
	bb, _ := p.pool.Get().(*ByteBuffer)
	return bb
}

// Put returns bb to the pool.
func (p *ByteBufferPool) Put(bb *ByteBuffer) {
	if bb == nil {
		return
	}
	if p.maxThreshold > 0 && cap(bb.B) > p.maxThreshold {
		return
	}

	bb.Reset()
	p.pool.Put(bb)
}

var archivePool = NewByteBufferPool(ArchiveBufferDefaultSize, ArchiveBufferMaxThreshold)

// GetArchiveBuffer takes a buffer from the shared archive pool.
func GetArchiveBuffer() *ByteBuffer { return archivePool.Get() }

// PutArchiveBuffer returns a buffer to the shared archive pool.
func PutArchiveBuffer(bb *ByteBuffer) { archivePool.Put(bb) }
