// Package bytebuf provides the in-memory streams the codec packs into:
// a seekable growable buffer and a size-only counter.
package bytebuf

import (
	"errors"
	"io"
)

var (
	errNegative = errors.New("bytebuf: negative position")
	errWhence   = errors.New("bytebuf: invalid whence")
	errNoRead   = errors.New("bytebuf: counter is write-only")
)

// Buffer is an io.ReadWriteSeeker over a byte slice. Writing past the end
// grows the slice, filling any gap with zeros.
//
// A Buffer created with NewAt maps stream position base to slice index 0,
// so code packing into it sees the same absolute offsets as the real sink.
type Buffer struct {
	buf  []byte
	pos  int64
	base int64
}

// New returns a Buffer reading from data. The slice is not copied.
func New(data []byte) *Buffer {
	return &Buffer{buf: data}
}

// NewAt returns an empty Buffer whose first byte sits at stream offset base.
func NewAt(base int64) *Buffer {
	return &Buffer{pos: base, base: base}
}

// Bytes returns the written bytes, starting at the base offset.
func (b *Buffer) Bytes() []byte { return b.buf }

// Len returns the number of bytes held.
func (b *Buffer) Len() int { return len(b.buf) }

func (b *Buffer) Read(p []byte) (int, error) {
	i := b.pos - b.base
	if i >= int64(len(b.buf)) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[i:])
	b.pos += int64(n)
	return n, nil
}

func (b *Buffer) Write(p []byte) (int, error) {
	i := b.pos - b.base
	end := i + int64(len(p))
	if end > int64(len(b.buf)) {
		if end > int64(cap(b.buf)) {
			grown := make([]byte, end, max(end, int64(2*cap(b.buf))))
			copy(grown, b.buf)
			b.buf = grown
		} else {
			old := len(b.buf)
			b.buf = b.buf[:end]
			clear(b.buf[old:])
		}
	}
	copy(b.buf[i:], p)
	b.pos += int64(len(p))
	return len(p), nil
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = b.pos + offset
	case io.SeekEnd:
		abs = b.base + int64(len(b.buf)) + offset
	default:
		return 0, errWhence
	}
	if abs < b.base {
		return 0, errNegative
	}
	b.pos = abs
	return abs, nil
}

// Counter is a write-only stream that records how far writes reached
// without storing them.
type Counter struct {
	pos  int64
	size int64
}

// Size returns the furthest position written.
func (c *Counter) Size() int64 { return c.size }

func (c *Counter) Read([]byte) (int, error) { return 0, errNoRead }

func (c *Counter) Write(p []byte) (int, error) {
	c.pos += int64(len(p))
	c.size = max(c.size, c.pos)
	return len(p), nil
}

func (c *Counter) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = c.pos + offset
	case io.SeekEnd:
		abs = c.size + offset
	default:
		return 0, errWhence
	}
	if abs < 0 {
		return 0, errNegative
	}
	c.pos = abs
	return abs, nil
}
