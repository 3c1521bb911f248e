package model

import "context"

// expiresState tracks the high-water marks the expiration policy is
// measured against: the largest group sequence and instant accepted so
// far within a track (spec §4.5).
type expiresState struct {
	maxInstant Time
	maxGroup   uint64
}

// ExpiresProducer is the write side of a track's expiration policy, fed a
// (group, instant) pair as each frame is created and reporting whether the
// frame should be rejected as already expired (spec §4.5, §4.8.4).
//
// The latency budget is not stored here: it's read live from subscribers
// on every check, so a change in the aggregated Delivery (a subscriber
// joining, leaving, or updating its requested max_latency) takes effect
// immediately without any producer needing to push an update through.
type ExpiresProducer struct {
	state       *Producer[expiresState]
	subscribers *Subscribers
}

// NewExpires creates a fresh expiration tracker that reads its latency
// budget from subscribers' aggregated Delivery.
func NewExpires(subscribers *Subscribers) *ExpiresProducer {
	return &ExpiresProducer{state: NewProducer(expiresState{}), subscribers: subscribers}
}

// Consume returns an ExpiresConsumer sharing this tracker.
func (p *ExpiresProducer) Consume() *ExpiresConsumer {
	return &ExpiresConsumer{state: p.state.Consume(), subscribers: p.subscribers}
}

// CreateFrame applies the expiration policy to a candidate frame at instant
// `t` within group `g`. Returns ErrExpired if the frame must be rejected;
// otherwise updates the high-water marks and returns nil.
//
// Policy: a later group or a later instant always advances the high-water
// mark and is accepted; otherwise the frame is accepted only if it's still
// within max_latency of the current high-water instant, and rejected
// (without updating anything) if not. A max_latency of zero never rejects.
func (p *ExpiresProducer) CreateFrame(g uint64, t Time) error {
	latency := p.subscribers.Aggregate().MaxLatency
	return p.state.Modify(func(s *expiresState) error {
		newGroup := g > s.maxGroup
		newInstant := t > s.maxInstant

		if newGroup {
			s.maxGroup = g
		}
		if newInstant {
			s.maxInstant = t
		}
		if !newGroup && !newInstant && latency > 0 {
			if deadline, err := t.CheckedAdd(latency); err == nil && deadline <= s.maxInstant {
				return ErrExpired
			}
		}
		return nil
	})
}

// Snapshot returns the current high-water marks.
func (p *ExpiresProducer) Snapshot() (group uint64, instant Time) {
	var s expiresState
	p.state.View(func(v *expiresState) { s = *v })
	return s.maxGroup, s.maxInstant
}

// ExpiresConsumer lets ordered consumers and stream schedulers await the
// expiration policy declaring a given group/instant lost (spec §4.5).
type ExpiresConsumer struct {
	state       *Consumer[expiresState]
	subscribers *Subscribers
}

// Clone returns an independent handle sharing the same tracker.
func (c *ExpiresConsumer) Clone() *ExpiresConsumer {
	return &ExpiresConsumer{state: c.state.Clone(), subscribers: c.subscribers}
}

// AwaitExpired blocks until `max_group >= groupSeq && max_instant+max_latency
// >= instant` holds, i.e. until both the group and the instant high-water
// marks have caught up with (groupSeq, instant). max_latency is re-read from
// subscribers on every recheck, so a change in the budget mid-wait is seen.
func (c *ExpiresConsumer) AwaitExpired(ctx context.Context, groupSeq uint64, instant Time) error {
	_, err := Poll(ctx, c.state, func(s *expiresState) (struct{}, bool) {
		if s.maxGroup < groupSeq {
			return struct{}{}, false
		}
		latency := c.subscribers.Aggregate().MaxLatency
		if deadline, err := s.maxInstant.CheckedAdd(latency); err == nil && deadline >= instant {
			return struct{}{}, true
		}
		return struct{}{}, false
	})
	return err
}
