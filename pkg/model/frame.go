package model

import (
	"bytes"
	"context"
)

// Frame describes an opaque payload with a size known upfront, deliverable
// as a sequence of chunks (spec §3.1, §4.3).
type Frame struct {
	Timestamp Time
	Size      int
}

// NewFrame builds a Frame with the current time as its timestamp.
func NewFrame(size int) Frame {
	return Frame{Timestamp: Now(), Size: size}
}

type frameState struct {
	chunks    [][]byte
	remaining int
}

func (f *frameState) writeChunk(chunk []byte) error {
	if len(chunk) > f.remaining {
		return ErrWrongSize
	}
	f.remaining -= len(chunk)
	f.chunks = append(f.chunks, chunk)
	return nil
}

// FrameProducer writes a frame's payload in chunks (spec §4.3).
type FrameProducer struct {
	Info  Frame
	state *Producer[frameState]
}

// NewFrameProducer creates a producer/consumer pair for the given Frame.
func NewFrameProducer(info Frame) *FrameProducer {
	return &FrameProducer{
		Info:  info,
		state: NewProducer(frameState{remaining: info.Size}),
	}
}

// WriteChunk appends a chunk of payload. Fails with CodeWrongSize if the
// cumulative size would exceed Info.Size.
func (p *FrameProducer) WriteChunk(chunk []byte) error {
	return p.state.Modify(func(s *frameState) error {
		return s.writeChunk(chunk)
	})
}

// FinalChunk is an optional sanity check confirming every byte of Info.Size
// has been written. Fails with CodeWrongSize if bytes are still outstanding.
func (p *FrameProducer) FinalChunk() error {
	var short bool
	p.state.View(func(s *frameState) { short = s.remaining != 0 })
	if short {
		return ErrWrongSize
	}
	return nil
}

// Abort closes the frame with the given error, surfaced to all consumers.
func (p *FrameProducer) Abort(err *Error) {
	p.state.Close(err)
}

// Consume returns a new FrameConsumer with its own independent read index.
func (p *FrameProducer) Consume() *FrameConsumer {
	return &FrameConsumer{Info: p.Info, state: p.state.Consume()}
}

// FrameConsumer reads a frame's payload in chunks. Each clone advances its
// own index independently; chunks already read by the clone source are not
// replayed (spec §3.3).
type FrameConsumer struct {
	Info  Frame
	state *Consumer[frameState]
	index int
}

// Clone returns a new FrameConsumer sharing the underlying frame but with
// the same starting index as this consumer (subsequent reads diverge).
func (c *FrameConsumer) Clone() *FrameConsumer {
	return &FrameConsumer{Info: c.Info, state: c.state.Clone(), index: c.index}
}

// ReadChunk returns the next chunk, or nil with no error once the frame is
// finalized and all chunks have been consumed.
func (c *FrameConsumer) ReadChunk(ctx context.Context) ([]byte, error) {
	return Poll(ctx, c.state, func(s *frameState) ([]byte, bool) {
		if c.index < len(s.chunks) {
			chunk := s.chunks[c.index]
			c.index++
			return chunk, true
		}
		if s.remaining == 0 {
			return nil, true
		}
		return nil, false
	})
}

// ReadChunks blocks until the frame is finalized, then returns every
// remaining unread chunk in one call.
func (c *FrameConsumer) ReadChunks(ctx context.Context) ([][]byte, error) {
	return Poll(ctx, c.state, func(s *frameState) ([][]byte, bool) {
		if s.remaining != 0 {
			return nil, false
		}
		rest := s.chunks[c.index:]
		out := make([][]byte, len(rest))
		copy(out, rest)
		c.index = len(s.chunks)
		return out, true
	})
}

// ReadAll blocks until the frame is finalized, then returns the
// concatenation of every remaining unread chunk.
func (c *FrameConsumer) ReadAll(ctx context.Context) ([]byte, error) {
	return Poll(ctx, c.state, func(s *frameState) ([]byte, bool) {
		if s.remaining != 0 {
			return nil, false
		}
		rest := s.chunks[c.index:]
		size := 0
		for _, chunk := range rest {
			size += len(chunk)
		}
		var buf bytes.Buffer
		buf.Grow(size)
		for _, chunk := range rest {
			buf.Write(chunk)
		}
		c.index = len(s.chunks)
		return buf.Bytes(), true
	})
}
