package stream

import "bytes"

var (
	soiMarker = []byte{0xFF, 0xD8}
	eoiMarker = []byte{0xFF, 0xD9}
)

// DefaultMaxBufferSize bounds the bytes held while waiting for an end marker.
const DefaultMaxBufferSize = 8 << 20

// FrameBuffer accumulates stream bytes and yields complete JPEG slices.
// It is not safe for concurrent use; each session owns one.
type FrameBuffer struct {
	buf     []byte
	maxSize int
}

func NewFrameBuffer(maxSize int) *FrameBuffer {
	if maxSize <= 0 {
		maxSize = DefaultMaxBufferSize
	}
	return &FrameBuffer{
		buf:     make([]byte, 0, 64*1024),
		maxSize: maxSize,
	}
}

func (b *FrameBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Next returns the next complete SOI..EOI slice, inclusive of both markers,
// and drops every byte up to and including the EOI. It returns false when no
// complete frame is buffered yet.
func (b *FrameBuffer) Next() ([]byte, bool) {
	start := bytes.Index(b.buf, soiMarker)
	if start == -1 {
		// Keep a trailing 0xFF: it may be the first half of a marker.
		if n := len(b.buf); n > 0 {
			if b.buf[n-1] == 0xFF {
				b.buf = append(b.buf[:0], 0xFF)
			} else {
				b.buf = b.buf[:0]
			}
		}
		return nil, false
	}

	end := bytes.Index(b.buf[start+len(soiMarker):], eoiMarker)
	if end == -1 {
		if start > 0 {
			b.compact(start)
		}
		if len(b.buf) > b.maxSize {
			b.buf = b.buf[:0]
		}
		return nil, false
	}
	end += start + len(soiMarker) + len(eoiMarker)

	frame := make([]byte, end-start)
	copy(frame, b.buf[start:end])
	b.compact(end)
	return frame, true
}

// Len reports the number of unparsed bytes.
func (b *FrameBuffer) Len() int {
	return len(b.buf)
}

func (b *FrameBuffer) Reset() {
	b.buf = b.buf[:0]
}

func (b *FrameBuffer) compact(from int) {
	n := copy(b.buf, b.buf[from:])
	b.buf = b.buf[:n]
}
