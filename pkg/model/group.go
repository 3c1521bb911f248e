package model

import "context"

// Group is an ordered, finite sequence of frames sharing a sequence number
// (spec §3.1, §4.4). Groups within a track need not be produced or
// delivered in sequence-number order.
type Group struct {
	Sequence uint64
}

type groupState struct {
	frames []*FrameProducer
	fin    bool
}

// GroupProducer appends frames to a group and marks it final (spec §4.4).
// A non-nil expires is consulted on every CreateFrame call, rejecting
// frames the track's expiration policy already considers stale
// (spec §4.5).
type GroupProducer struct {
	Info    Group
	state   *Producer[groupState]
	expires *ExpiresProducer
}

// NewGroupProducer creates a producer/consumer pair for the given sequence
// with no expiration policy attached; every frame is accepted regardless
// of timing. Used directly by tests and by standalone (trackless) groups.
func NewGroupProducer(seq uint64) *GroupProducer {
	return newGroupProducer(seq, nil)
}

func newGroupProducer(seq uint64, expires *ExpiresProducer) *GroupProducer {
	return &GroupProducer{
		Info:    Group{Sequence: seq},
		state:   NewProducer(groupState{}),
		expires: expires,
	}
}

// AppendFrame appends an already-created FrameProducer to the group. Fails
// with CodeCancel (closed) if the group's fin flag is already set.
func (p *GroupProducer) AppendFrame(frame *FrameProducer) error {
	return p.state.Modify(func(s *groupState) error {
		if s.fin {
			return &Error{Code: CodeCancel}
		}
		s.frames = append(s.frames, frame)
		return nil
	})
}

// CreateFrame creates a new FrameProducer for info and appends it, returning
// the producer for the caller to write chunks into. If an expiration
// policy is attached and already considers this group/instant stale,
// returns ErrExpired without appending the frame (spec §4.5).
func (p *GroupProducer) CreateFrame(info Frame) (*FrameProducer, error) {
	if p.expires != nil {
		if err := p.expires.CreateFrame(p.Info.Sequence, info.Timestamp); err != nil {
			return nil, err
		}
	}
	fp := NewFrameProducer(info)
	if err := p.AppendFrame(fp); err != nil {
		return nil, err
	}
	return fp, nil
}

// WriteFrame is a convenience that creates and fully writes a single-chunk
// frame at the given timestamp.
func (p *GroupProducer) WriteFrame(payload []byte, timestamp Time) error {
	fp, err := p.CreateFrame(Frame{Timestamp: timestamp, Size: len(payload)})
	if err != nil {
		return err
	}
	if err := fp.WriteChunk(payload); err != nil {
		return err
	}
	return fp.FinalChunk()
}

// FinalFrame marks the group as having no further frames.
func (p *GroupProducer) FinalFrame() error {
	return p.state.Modify(func(s *groupState) error {
		s.fin = true
		return nil
	})
}

// Abort closes the group with the given error.
func (p *GroupProducer) Abort(err *Error) {
	p.state.Close(err)
}

// Consume returns a new GroupConsumer with its own independent read index.
func (p *GroupProducer) Consume() *GroupConsumer {
	return &GroupConsumer{Info: p.Info, state: p.state.Consume()}
}

// GroupConsumer reads frames from a group in creation order (spec §4.4).
type GroupConsumer struct {
	Info  Group
	state *Consumer[groupState]
	index int
}

// Clone returns a new GroupConsumer sharing the group but starting from this
// consumer's current index (reads then diverge independently). Because
// frames themselves are reference-counted, cloning a GroupConsumer is how
// a single published group serves many subscribers without copying data
// (spec §4.6 "Fan-out").
func (c *GroupConsumer) Clone() *GroupConsumer {
	return &GroupConsumer{Info: c.Info, state: c.state.Clone(), index: c.index}
}

// NextFrame returns a consumer for the next frame in the group, or nil with
// no error once fin is set and every frame has been returned.
func (c *GroupConsumer) NextFrame(ctx context.Context) (*FrameConsumer, error) {
	fp, err := Poll(ctx, c.state, func(s *groupState) (*FrameProducer, bool) {
		if c.index < len(s.frames) {
			f := s.frames[c.index]
			c.index++
			return f, true
		}
		if s.fin {
			return nil, true
		}
		return nil, false
	})
	if err != nil {
		return nil, err
	}
	if fp == nil {
		return nil, nil
	}
	return fp.Consume(), nil
}

// ReadFrame returns the next frame's fully-read payload, or nil once the
// group is exhausted.
func (c *GroupConsumer) ReadFrame(ctx context.Context) ([]byte, error) {
	fc, err := c.NextFrame(ctx)
	if err != nil {
		return nil, err
	}
	if fc == nil {
		return nil, nil
	}
	return fc.ReadAll(ctx)
}

// PollTimestamp returns the first- and last-appended frame's timestamp in
// the group seen so far, blocking until at least one frame exists. Frames
// need not be appended in timestamp order, so first/last are positional,
// not a computed min/max (spec §4.4).
func (c *GroupConsumer) PollTimestamp(ctx context.Context) (first, last Time, err error) {
	type span struct{ first, last Time }
	sp, err := Poll(ctx, c.state, func(s *groupState) (span, bool) {
		if len(s.frames) == 0 {
			return span{}, false
		}
		return span{s.frames[0].Info.Timestamp, s.frames[len(s.frames)-1].Info.Timestamp}, true
	})
	return sp.first, sp.last, err
}
