package stream

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(b *FrameBuffer) [][]byte {
	var out [][]byte
	for {
		f, ok := b.Next()
		if !ok {
			return out
		}
		out = append(out, f)
	}
}

func feed(chunks [][]byte) [][]byte {
	b := NewFrameBuffer(0)
	var out [][]byte
	for _, c := range chunks {
		b.Write(c)
		out = append(out, drain(b)...)
	}
	return out
}

func TestFrameBuffer_SingleFrame(t *testing.T) {
	jpg := testJPEG(t, 10)
	b := NewFrameBuffer(0)
	b.Write(part("frame", jpg))

	frames := drain(b)
	require.Len(t, frames, 1)
	assert.Equal(t, jpg, frames[0])
	assert.Equal(t, 2, b.Len(), "trailing CRLF stays buffered until the next SOI")
}

func TestFrameBuffer_ChunkBoundaryIndependence(t *testing.T) {
	var payload bytes.Buffer
	payload.WriteString("HTTP noise before the first part\r\n")
	for i := 0; i < 4; i++ {
		payload.Write(part("frame", testJPEG(t, uint8(40*i))))
	}
	payload.Write(part("frame", corruptSlice()))
	payload.Write(part("frame", testJPEG(t, 200)))
	data := payload.Bytes()

	want := feed([][]byte{data})
	require.Len(t, want, 6)

	t.Run("two chunks at every offset", func(t *testing.T) {
		for i := 0; i <= len(data); i++ {
			got := feed([][]byte{data[:i], data[i:]})
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("split at %d changed frames (-want +got):\n%s", i, diff)
			}
		}
	})

	t.Run("single bytes", func(t *testing.T) {
		chunks := make([][]byte, len(data))
		for i := range data {
			chunks[i] = data[i : i+1]
		}
		assert.Empty(t, cmp.Diff(want, feed(chunks)))
	})

	t.Run("random splits", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		for round := 0; round < 50; round++ {
			var chunks [][]byte
			for rest := data; len(rest) > 0; {
				n := 1 + rng.Intn(300)
				if n > len(rest) {
					n = len(rest)
				}
				chunks = append(chunks, rest[:n])
				rest = rest[n:]
			}
			if diff := cmp.Diff(want, feed(chunks)); diff != "" {
				t.Fatalf("round %d changed frames (-want +got):\n%s", round, diff)
			}
		}
	})
}

func TestFrameBuffer_CorruptSliceDoesNotWedge(t *testing.T) {
	jpg := testJPEG(t, 99)
	b := NewFrameBuffer(0)
	b.Write(append(corruptSlice(), jpg...))

	frames := drain(b)
	require.Len(t, frames, 2)
	assert.Equal(t, corruptSlice(), frames[0])
	assert.Equal(t, jpg, frames[1])
	assert.Zero(t, b.Len())
}

func TestFrameBuffer_PartialFrameWaits(t *testing.T) {
	jpg := testJPEG(t, 5)
	b := NewFrameBuffer(0)

	b.Write(jpg[:len(jpg)-1])
	_, ok := b.Next()
	assert.False(t, ok)

	b.Write(jpg[len(jpg)-1:])
	f, ok := b.Next()
	require.True(t, ok)
	assert.Equal(t, jpg, f)
}

func TestFrameBuffer_DiscardsBytesWithoutMarker(t *testing.T) {
	b := NewFrameBuffer(0)
	b.Write([]byte("garbage without any marker"))
	_, ok := b.Next()
	assert.False(t, ok)
	assert.Zero(t, b.Len())

	b.Write([]byte{'x', 0xFF})
	_, ok = b.Next()
	assert.False(t, ok)
	assert.Equal(t, 1, b.Len(), "a trailing 0xFF may start a marker")
}

func TestFrameBuffer_MaxSizeResets(t *testing.T) {
	b := NewFrameBuffer(64)
	b.Write([]byte{0xFF, 0xD8})
	b.Write(bytes.Repeat([]byte{0x01}, 100))

	_, ok := b.Next()
	assert.False(t, ok)
	assert.Zero(t, b.Len())

	jpg := testJPEG(t, 1)
	large := NewFrameBuffer(len(jpg) + 8)
	large.Write(jpg)
	f, ok := large.Next()
	require.True(t, ok)
	assert.Equal(t, jpg, f)
}
