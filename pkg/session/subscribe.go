package session

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/zsiec/moqcore/pkg/model"
	"github.com/zsiec/moqcore/pkg/transport"
	"github.com/zsiec/moqcore/pkg/wire"
)

// subState tracks the delivery terms currently in force for one served
// subscription, updated live as SubscribeUpdate messages arrive from the
// subscriber (spec §4.8.2 "the publisher adjusts its scheduling
// accordingly").
type subState struct {
	priority atomic.Uint32
	ordered  atomic.Bool
}

// groupSource is the common shape of TrackConsumer and its Ordered wrapper,
// letting deliverGroups pick a delivery order once per subscription
// without branching on every call.
type groupSource interface {
	NextGroup(ctx context.Context) (*model.GroupConsumer, error)
}

// requestTrack opens a Subscribe stream to the peer and returns a
// TrackConsumer fed by inbound group streams tagged with the subscription
// ID this call allocates (spec §4.8.2 "Subscribe stream").
func (s *Session) requestTrack(ctx context.Context, broadcast model.Path, track string, delivery model.Delivery) (*model.TrackConsumer, error) {
	stream, err := s.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("open subscribe stream: %w", err)
	}

	id := s.nextSubID.Add(1) - 1

	w := wire.NewWriter()
	w.SetVersion(s.version)
	wire.Subscribe{
		ID:         id,
		Broadcast:  broadcast,
		Track:      track,
		Priority:   delivery.Priority,
		MaxLatency: delivery.MaxLatency,
		Ordered:    delivery.Ordered,
	}.Encode(w)
	if err := wire.WriteControlMsg(stream, wire.MsgSubscribe, w.Bytes()); err != nil {
		return nil, fmt.Errorf("write SUBSCRIBE: %w", err)
	}

	msgType, payload, err := wire.ReadControlMsg(stream)
	if err != nil {
		return nil, fmt.Errorf("read SUBSCRIBE_OK: %w", err)
	}
	if msgType != wire.MsgSubscribeOk {
		return nil, fmt.Errorf("expected SUBSCRIBE_OK (0x%x), got 0x%x", wire.MsgSubscribeOk, msgType)
	}
	if _, err := wire.DecodeSubscribeOk(wireReader(payload, s.version)); err != nil {
		return nil, fmt.Errorf("decode SUBSCRIBE_OK: %w", err)
	}

	producer := model.NewTrackProducer(track)
	consumer := producer.Subscribe(delivery)

	s.mu.Lock()
	s.outgoing[id] = producer
	s.mu.Unlock()
	s.metrics.subscriptionOpened()

	go s.readPublisherUpdates(stream, consumer, id)

	return consumer, nil
}

// readPublisherUpdates drains SUBSCRIBE_OK messages the publisher pushes
// after the initial reply as its aggregated delivery terms change, and
// tears down the routing entry once the stream ends (spec §4.8.2 "Zero or
// more updates").
func (s *Session) readPublisherUpdates(stream transport.Stream, consumer *model.TrackConsumer, id uint64) {
	defer func() {
		s.mu.Lock()
		delete(s.outgoing, id)
		s.mu.Unlock()
		s.metrics.subscriptionClosed()
	}()
	for {
		msgType, payload, err := wire.ReadControlMsg(stream)
		if err != nil {
			return
		}
		if msgType != wire.MsgSubscribeOk {
			continue
		}
		ok, err := wire.DecodeSubscribeOk(wireReader(payload, s.version))
		if err != nil {
			continue
		}
		consumer.UpdateDelivery(model.Delivery{Priority: ok.Priority, MaxLatency: ok.MaxLatency, Ordered: ok.Ordered})
	}
}

// serveSubscribe handles a Subscribe opened by the peer: looks up the
// requested track on the publish-side origin, replies with SubscribeOk,
// then streams groups until the subscribe stream closes (spec §4.8.2).
func (s *Session) serveSubscribe(ctx context.Context, stream transport.Stream, req wire.Subscribe) {
	bc, ok := s.publish.ConsumeBroadcast(req.Broadcast)
	if !ok {
		stream.CancelWrite(model.ErrNotFound.WireCode())
		stream.CancelRead(model.ErrNotFound.WireCode())
		return
	}

	delivery := model.Delivery{Priority: req.Priority, MaxLatency: req.MaxLatency, Ordered: req.Ordered}
	tc := bc.SubscribeTrack(ctx, req.Track, delivery)
	s.metrics.subscriptionOpened()

	w := wire.NewWriter()
	w.SetVersion(s.version)
	wire.SubscribeOk{Priority: req.Priority, MaxLatency: req.MaxLatency, Ordered: req.Ordered}.Encode(w)
	if err := wire.WriteControlMsg(stream, wire.MsgSubscribeOk, w.Bytes()); err != nil {
		tc.Release()
		s.metrics.subscriptionClosed()
		return
	}

	st := &subState{}
	st.priority.Store(uint32(req.Priority))
	st.ordered.Store(req.Ordered)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.readSubscriberUpdates(subCtx, cancel, stream, tc, st)

	var groups groupSource = tc
	if req.Ordered {
		groups = tc.Ordered()
	}

	defer func() {
		tc.Release()
		s.metrics.subscriptionClosed()
	}()

	for {
		g, err := groups.NextGroup(subCtx)
		if err != nil || g == nil {
			return
		}
		go s.sendGroup(subCtx, req.ID, st, g)
	}
}

// readSubscriberUpdates applies SubscribeUpdate messages the subscriber
// sends on the same stream, and cancels delivery once the stream closes —
// the subscribe stream closing on the subscriber side tears down all
// in-flight group streams for that subscription (spec §4.8.4 "Cancel").
func (s *Session) readSubscriberUpdates(ctx context.Context, cancel context.CancelFunc, stream transport.Stream, tc *model.TrackConsumer, st *subState) {
	defer cancel()
	for {
		msgType, payload, err := wire.ReadControlMsg(stream)
		if err != nil {
			return
		}
		if msgType != wire.MsgSubscribeUpdate {
			continue
		}
		upd, err := wire.DecodeSubscribeUpdate(wireReader(payload, s.version))
		if err != nil {
			continue
		}
		st.priority.Store(uint32(upd.Priority))
		st.ordered.Store(upd.Ordered)
		tc.UpdateDelivery(model.Delivery{Priority: upd.Priority, MaxLatency: upd.MaxLatency, Ordered: upd.Ordered})
	}
}

// sendGroup opens a unidirectional stream for one group, registers it with
// the scheduler, and writes its frames until the group finishes, is
// aborted, or ctx is cancelled (spec §4.8.2 "Group stream").
func (s *Session) sendGroup(ctx context.Context, subID uint64, st *subState, g *model.GroupConsumer) {
	ss, err := s.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return
	}

	id := s.scheduler.Add(ss, uint8(st.priority.Load()), g.Info.Sequence, st.ordered.Load())
	s.metrics.groupStreamOpened()
	defer func() {
		s.scheduler.Remove(id)
		s.metrics.groupStreamClosed()
	}()

	w := wire.NewWriter()
	w.SetVersion(s.version)
	wire.GroupHeader{Subscribe: subID, Sequence: g.Info.Sequence}.Encode(w)
	if _, err := ss.Write(w.Bytes()); err != nil {
		ss.CancelWrite(model.ErrTransport.WireCode())
		return
	}

	var last model.Time
	for {
		fc, err := g.NextFrame(ctx)
		if err != nil {
			ss.CancelWrite(model.AsError(err).WireCode())
			return
		}
		if fc == nil {
			ss.Close()
			return
		}
		payload, err := fc.ReadAll(ctx)
		if err != nil {
			ss.CancelWrite(model.AsError(err).WireCode())
			return
		}

		delta, derr := fc.Info.Timestamp.CheckedSub(last)
		if derr != nil {
			delta = 0
		}
		last = fc.Info.Timestamp

		fw := wire.NewWriter()
		fw.SetVersion(s.version)
		wire.FrameHeader{Delta: delta, Size: uint64(len(payload))}.Encode(fw)
		if _, err := ss.Write(fw.Bytes()); err != nil {
			return
		}
		if _, err := ss.Write(payload); err != nil {
			return
		}
		s.metrics.bytesWritten(len(payload))
	}
}
