package model

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// broadcastMaps is the plain mutex-guarded lookup shared by a
// BroadcastProducer and every BroadcastConsumer cloned from it. Unlike
// Frame/Group/Track, a Broadcast's published/requested maps are mutated
// from both the producer and consumer sides (SubscribeTrack inserts into
// requested), so they live outside the single-writer state[T] cell; only
// close/unused signaling goes through it (spec §4.6). demand collapses
// concurrent SubscribeTrack calls for the same not-yet-requested name into
// a single requested-track insertion.
type broadcastMaps struct {
	mu        sync.Mutex
	published map[string]*TrackConsumer
	requested map[string]*TrackProducer
	demand    singleflight.Group
}

// BroadcastProducer receives broadcast/track requests and publishes tracks
// under a name (spec §3.1, §4.6).
type BroadcastProducer struct {
	maps      *broadcastMaps
	signal    *Producer[struct{}]
	requested chan *TrackProducer
}

// NewBroadcastProducer creates a producer/consumer pair for an empty
// broadcast.
func NewBroadcastProducer() *BroadcastProducer {
	return &BroadcastProducer{
		maps: &broadcastMaps{
			published: make(map[string]*TrackConsumer),
			requested: make(map[string]*TrackProducer),
		},
		signal:    NewProducer(struct{}{}),
		requested: make(chan *TrackProducer, 64),
	}
}

// CreateTrack creates a new track and publishes it under name.
func (p *BroadcastProducer) CreateTrack(name string) *TrackProducer {
	tp := NewTrackProducer(name)
	p.InsertTrack(tp.Subscribe(Delivery{}))
	return tp
}

// InsertTrack publishes an already-created track under its own name.
// Duplicate names are last-write-wins; callers must not insert two
// distinct producers under the same name (spec §4.6).
func (p *BroadcastProducer) InsertTrack(track *TrackConsumer) {
	p.maps.mu.Lock()
	p.maps.published[track.Info.Name] = track
	p.maps.mu.Unlock()
}

// RemoveTrack drops name from both the published and requested maps,
// reporting whether anything was removed.
func (p *BroadcastProducer) RemoveTrack(name string) bool {
	p.maps.mu.Lock()
	defer p.maps.mu.Unlock()
	_, inPublished := p.maps.published[name]
	_, inRequested := p.maps.requested[name]
	delete(p.maps.published, name)
	delete(p.maps.requested, name)
	return inPublished || inRequested
}

// RequestedTrack blocks for the next track a consumer demanded that isn't
// yet published, or returns nil once the broadcast has no more consumers
// or ctx is done (spec §4.6 "requested_track").
func (p *BroadcastProducer) RequestedTrack(ctx context.Context) *TrackProducer {
	unused := make(chan struct{})
	go func() {
		p.signal.Unused(ctx)
		close(unused)
	}()
	select {
	case tp := <-p.requested:
		return tp
	case <-unused:
		return nil
	case <-ctx.Done():
		return nil
	}
}

// Consume returns a new BroadcastConsumer sharing this broadcast.
func (p *BroadcastProducer) Consume() *BroadcastConsumer {
	return &BroadcastConsumer{maps: p.maps, signal: p.signal.Consume(), requested: p.requested}
}

// Close closes the broadcast cleanly.
func (p *BroadcastProducer) Close() { p.signal.Close(nil) }

// Abort closes the broadcast with the given error.
func (p *BroadcastProducer) Abort(err *Error) { p.signal.Close(err) }

// Unused blocks until there are no more consumers (spec §4.6).
func (p *BroadcastProducer) Unused(ctx context.Context) error {
	return p.signal.Unused(ctx)
}

// BroadcastConsumer subscribes to arbitrary tracks by name (spec §4.6).
type BroadcastConsumer struct {
	maps      *broadcastMaps
	signal    *Consumer[struct{}]
	requested chan *TrackProducer
}

// SubscribeTrack returns a TrackConsumer for name, resolving in the order
// described by spec §4.6:
//  1. If name is published, fan out a copy of the existing consumer into a
//     fresh producer/consumer pair scoped to this caller.
//  2. Else if name is already requested, clone a consumer off the pending
//     producer (deduplicating concurrent subscribers of the same
//     not-yet-published name).
//  3. Else, create a fresh demand-driven TrackProducer, publish the
//     request, and spawn a cleanup goroutine that removes the requested
//     entry once its producer becomes unused.
func (c *BroadcastConsumer) SubscribeTrack(ctx context.Context, name string, delivery Delivery) *TrackConsumer {
	c.maps.mu.Lock()
	existingPublished := c.maps.published[name]
	c.maps.mu.Unlock()

	if existingPublished != nil {
		dst := NewTrackProducer(name)
		out := dst.Subscribe(delivery)
		go proxyTrack(ctx, existingPublished.Clone(), dst)
		return out
	}

	// demand.Do collapses every concurrent SubscribeTrack(name) racing to
	// create the requested-track entry into one winner; the rest just read
	// back the producer the winner inserted (spec §4.6 "Else if name is
	// already requested").
	v, _, _ := c.maps.demand.Do(name, func() (any, error) {
		c.maps.mu.Lock()
		if existing, ok := c.maps.requested[name]; ok {
			c.maps.mu.Unlock()
			return existing, nil
		}
		producer := NewTrackProducer(name)
		c.maps.requested[name] = producer
		c.maps.mu.Unlock()

		go func() {
			producer.Unused(context.Background())
			c.maps.mu.Lock()
			if c.maps.requested[name] == producer {
				delete(c.maps.requested, name)
			}
			c.maps.mu.Unlock()
		}()

		select {
		case c.requested <- producer:
		default:
			producer.Abort(ErrCancel)
		}
		return producer, nil
	})

	return v.(*TrackProducer).Subscribe(delivery)
}

// proxyTrack reads groups from src (by cloning each GroupConsumer — groups
// are reference-counted, so nothing is copied) and reappends them to dst,
// so a single published track can serve arbitrarily many independently
// delivery-scoped consumers (spec §4.6 "Fan-out").
func proxyTrack(ctx context.Context, src *TrackConsumer, dst *TrackProducer) {
	for {
		g, err := src.NextGroup(ctx)
		if err != nil || g == nil {
			if err != nil {
				dst.Abort(AsError(err))
			} else {
				dst.Close()
			}
			return
		}
		dg, err := dst.CreateGroup(g.Info.Sequence)
		if err != nil {
			continue
		}
		go proxyGroup(ctx, g, dg)
	}
}

// proxyGroup reads frames from src and reappends them to dst, cloning each
// FrameConsumer so payload bytes are never copied.
func proxyGroup(ctx context.Context, src *GroupConsumer, dst *GroupProducer) {
	for {
		f, err := src.NextFrame(ctx)
		if err != nil || f == nil {
			if err != nil {
				dst.Abort(AsError(err))
			} else {
				dst.FinalFrame()
			}
			return
		}
		df, err := dst.CreateFrame(f.Info)
		if err != nil {
			continue
		}
		go proxyFrame(ctx, f, df)
	}
}

// proxyFrame reads chunks from src and rewrites them to dst.
func proxyFrame(ctx context.Context, src *FrameConsumer, dst *FrameProducer) {
	for {
		chunk, err := src.ReadChunk(ctx)
		if err != nil || chunk == nil {
			if err != nil {
				dst.Abort(AsError(err))
			} else {
				dst.FinalChunk()
			}
			return
		}
		if err := dst.WriteChunk(chunk); err != nil {
			dst.Abort(AsError(err))
			return
		}
	}
}

// Closed blocks until the broadcast closes, returning the closing error.
func (c *BroadcastConsumer) Closed(ctx context.Context) error {
	return c.signal.Closed(ctx)
}

// Clone returns a new BroadcastConsumer sharing this broadcast.
func (c *BroadcastConsumer) Clone() *BroadcastConsumer {
	return &BroadcastConsumer{maps: c.maps, signal: c.signal.Clone(), requested: c.requested}
}
