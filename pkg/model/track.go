package model

import (
	"context"
	"sort"
)

// Track identifies a named sequence of groups within a broadcast
// (spec §3.1, §4.5). A cloned TrackProducer can create groups in parallel
// but errors on a duplicate sequence number; a cloned TrackConsumer
// receives a copy of every group going forward (fan-out).
type Track struct {
	Name string
}

type trackState struct {
	groups   []*GroupProducer
	haveMax  bool
	max      uint64
}

func (s *trackState) createGroup(seq uint64, expires *ExpiresProducer) (*GroupProducer, error) {
	for _, g := range s.groups {
		if g.Info.Sequence == seq {
			return nil, ErrDuplicate
		}
	}
	if !s.haveMax || seq > s.max {
		s.max = seq
		s.haveMax = true
	}
	g := newGroupProducer(seq, expires)
	s.groups = append(s.groups, g)
	return g, nil
}

func (s *trackState) appendGroup(expires *ExpiresProducer) *GroupProducer {
	seq := uint64(0)
	if s.haveMax {
		seq = s.max + 1
	}
	s.max = seq
	s.haveMax = true
	g := newGroupProducer(seq, expires)
	s.groups = append(s.groups, g)
	return g
}

// TrackProducer creates groups for a track (spec §4.5).
type TrackProducer struct {
	Info        Track
	state       *Producer[trackState]
	subscribers *Subscribers
	expires     *ExpiresProducer
}

// NewTrackProducer creates a producer/consumer pair for a track with the
// given name. Subscribers is shared with every TrackConsumer.Subscribe
// caller so the expiration policy always sees the live aggregated
// Delivery (spec §3.2, §4.5).
func NewTrackProducer(name string) *TrackProducer {
	subscribers := NewSubscribers()
	return &TrackProducer{
		Info:        Track{Name: name},
		state:       NewProducer(trackState{}),
		subscribers: subscribers,
		expires:     NewExpires(subscribers),
	}
}

// Subscribers returns the aggregator tracking every live consumer's
// requested Delivery.
func (p *TrackProducer) Subscribers() *Subscribers { return p.subscribers }

// Expires returns the handle controlling when groups are considered
// expired.
func (p *TrackProducer) Expires() *ExpiresProducer { return p.expires }

// CreateGroup creates a new group with the given sequence number. Fails
// with CodeDuplicate if that sequence already exists, or with the track's
// closing error if the track is closed.
func (p *TrackProducer) CreateGroup(seq uint64) (*GroupProducer, error) {
	var g *GroupProducer
	err := p.state.Modify(func(s *trackState) error {
		var err error
		g, err = s.createGroup(seq, p.expires)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// AppendGroup creates a new group with the next sequence number after the
// highest seen so far (or 0 if this is the first group).
func (p *TrackProducer) AppendGroup() (*GroupProducer, error) {
	var g *GroupProducer
	err := p.state.Modify(func(s *trackState) error {
		g = s.appendGroup(p.expires)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Close closes the track cleanly; no more groups can be created.
func (p *TrackProducer) Close() { p.state.Close(nil) }

// Abort closes the track with the given error.
func (p *TrackProducer) Abort(err *Error) { p.state.Close(err) }

// Subscribe returns a new TrackConsumer with the given requested Delivery,
// registering it with Subscribers so the aggregated Delivery updates
// immediately (spec §3.2, §4.5).
func (p *TrackProducer) Subscribe(d Delivery) *TrackConsumer {
	id := p.subscribers.Add(d)
	return &TrackConsumer{
		Info:           p.Info,
		state:          p.state.Consume(),
		subscriberID:   id,
		subscribers:    p.subscribers,
		expires:        p.expires.Consume(),
	}
}

// Unused blocks until the track has no live consumers, or returns the
// closing error if the track closes first (spec §4.6 demand-driven cleanup).
func (p *TrackProducer) Unused(ctx context.Context) error {
	return p.state.Unused(ctx)
}

// TrackConsumer reads groups from a track, in arrival order (not
// necessarily sequence order; spec §4.5 "may have gaps due to congestion").
type TrackConsumer struct {
	Info Track

	state        *Consumer[trackState]
	index        int
	subscriberID uint64
	subscribers  *Subscribers
	expires      *ExpiresConsumer
}

// Clone returns a new TrackConsumer sharing the track but starting from
// this consumer's current read index; each clone then receives every
// subsequent group independently (fan-out, spec §4.6). The clone gets its
// own Subscribers entry seeded with the same Delivery so aggregation
// still reflects both as separate live subscribers.
func (c *TrackConsumer) Clone() *TrackConsumer {
	var d Delivery
	c.subscribers.mu.Lock()
	d = c.subscribers.byID[c.subscriberID]
	c.subscribers.mu.Unlock()
	id := c.subscribers.Add(d)
	return &TrackConsumer{
		Info:         c.Info,
		state:        c.state.Clone(),
		index:        c.index,
		subscriberID: id,
		subscribers:  c.subscribers,
		expires:      c.expires.Clone(),
	}
}

// UpdateDelivery replaces this consumer's requested Delivery (priority,
// max_latency, ordered), taking effect in the producer's aggregation on
// the next check (spec §3.2).
func (c *TrackConsumer) UpdateDelivery(d Delivery) {
	c.subscribers.Update(c.subscriberID, d)
}

// Release removes this consumer's entry from Subscribers. Callers that
// hold a TrackConsumer for the lifetime of a subscription should call
// this when done, mirroring the Rust original's Drop-triggered unsubscribe.
func (c *TrackConsumer) Release() {
	c.subscribers.Remove(c.subscriberID)
}

// NextGroup returns the next group received, in arrival order, or nil with
// no error once the track is closed and every group has been returned.
// Groups can arrive out of sequence order; see TrackConsumerOrdered for a
// best-effort in-order view.
func (c *TrackConsumer) NextGroup(ctx context.Context) (*GroupConsumer, error) {
	g, err := Poll(ctx, c.state, func(s *trackState) (*GroupProducer, bool) {
		if c.index < len(s.groups) {
			g := s.groups[c.index]
			c.index++
			return g, true
		}
		return nil, false
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		// Spec §4.5: NextGroup reports nil, not an error, once the track is
		// closed — whether by explicit close or by the last producer
		// being dropped.
		return nil, nil
	}
	if g == nil {
		return nil, nil
	}
	return g.Consume(), nil
}

// Closed blocks until the track closes, returning the closing error.
func (c *TrackConsumer) Closed(ctx context.Context) error {
	return c.state.Closed(ctx)
}

// Ordered wraps this consumer to return groups in sequence order,
// buffering out-of-order arrivals up to the aggregated max_latency before
// skipping ahead (spec §4.5).
func (c *TrackConsumer) Ordered() *TrackConsumerOrdered {
	return &TrackConsumerOrdered{track: c}
}

// TrackConsumerOrdered returns groups in creation-sequence order on a
// best-effort basis: out-of-order groups are buffered until either the
// missing sequence arrives or the buffered group's first frame would be
// considered expired, at which point delivery skips ahead (spec §4.5).
//
// Setting Delivery.Ordered on the underlying subscription additionally
// asks producers to prefer completing older groups first, for a
// head-of-line-blocking experience; without it this is a best-effort
// reordering only.
type TrackConsumerOrdered struct {
	track    *TrackConsumer
	expected uint64
	pending  []*GroupConsumer
}

// NextGroup returns the next group in sequence order, skipping ahead past
// gaps once the buffered group at the front would be expired.
func (o *TrackConsumerOrdered) NextGroup(ctx context.Context) (*GroupConsumer, error) {
	for {
		if len(o.pending) > 0 && o.pending[0].Info.Sequence == o.expected {
			g := o.pending[0]
			o.pending = o.pending[1:]
			o.expected = g.Info.Sequence + 1
			return g, nil
		}

		g, err := o.track.NextGroup(ctx)
		if err != nil {
			return nil, err
		}
		if g == nil {
			if len(o.pending) == 0 {
				return nil, nil
			}
			// Track closed with groups still buffered; drain in order.
			g := o.pending[0]
			o.pending = o.pending[1:]
			o.expected = g.Info.Sequence + 1
			return g, nil
		}

		if g.Info.Sequence == o.expected {
			o.expected++
			return g, nil
		}
		if g.Info.Sequence < o.expected {
			continue
		}

		idx := sort.Search(len(o.pending), func(i int) bool {
			return o.pending[i].Info.Sequence >= g.Info.Sequence
		})
		o.pending = append(o.pending, nil)
		copy(o.pending[idx+1:], o.pending[idx:])
		o.pending[idx] = g

		if expired := o.frontExpired(ctx); expired {
			front := o.pending[0]
			o.pending = o.pending[1:]
			o.expected = front.Info.Sequence + 1
			return front, nil
		}
	}
}

// frontExpired blocks, with the buffered front-of-line group, until either
// its first frame's instant would be considered expired (in which case it
// reports true) or a newer group arrives making the buffered front
// immediately returnable (spec §4.5 "guess based on min/max timestamps").
func (o *TrackConsumerOrdered) frontExpired(ctx context.Context) bool {
	front := o.pending[0]
	fc := front.Clone()
	frame, err := fc.NextFrame(ctx)
	if err != nil || frame == nil {
		return true
	}
	err = o.track.expires.AwaitExpired(ctx, front.Info.Sequence, frame.Info.Timestamp)
	return err == nil
}
