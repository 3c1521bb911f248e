package session

import (
	"context"
	"sync"

	"github.com/zsiec/moqcore/pkg/model"
	"github.com/zsiec/moqcore/pkg/origin"
	"github.com/zsiec/moqcore/pkg/transport"
	"github.com/zsiec/moqcore/pkg/wire"
)

// drainAnnouncements reads every announcement already recorded on c without
// blocking for one that hasn't happened yet, by polling with an
// already-cancelled context: Consumer.Announced checks readiness before
// ctx.Done(), so anything already in the log still returns, and the first
// call that would have to wait instead reports the context error.
func drainAnnouncements(c *origin.Consumer) []origin.Announcement {
	immediate, cancel := context.WithCancel(context.Background())
	cancel()

	var all []origin.Announcement
	for {
		a, ok, err := c.Announced(immediate)
		if err != nil || !ok {
			return all
		}
		all = append(all, a)
	}
}

// serveAnnounce replies to a peer-opened AnnouncePlease with a snapshot of
// the publish-side origin's currently active broadcasts under req.Prefix,
// then streams further updates as the origin evolves (spec §4.8.2
// "Announce stream").
func (s *Session) serveAnnounce(ctx context.Context, stream transport.Stream, req wire.AnnouncePlease) {
	scoped := s.publish.Clone().ConsumeOnly(req.Prefix)

	active := make(map[string]model.Path)
	var order []string
	for _, a := range drainAnnouncements(scoped) {
		suffix, ok := a.Path.StripPrefix(req.Prefix)
		if !ok {
			continue
		}
		key := suffix.String()
		if a.Active() {
			if _, exists := active[key]; !exists {
				order = append(order, key)
			}
			active[key] = suffix
		} else {
			delete(active, key)
		}
	}

	suffixes := make([]model.Path, 0, len(active))
	for _, key := range order {
		if p, ok := active[key]; ok {
			suffixes = append(suffixes, p)
		}
	}

	w := wire.NewWriter()
	w.SetVersion(s.version)
	wire.AnnounceInit{Suffixes: suffixes}.Encode(w)
	if err := wire.WriteControlMsg(stream, wire.MsgAnnounceInit, w.Bytes()); err != nil {
		return
	}

	for {
		a, ok, err := scoped.Announced(ctx)
		if err != nil || !ok {
			return
		}
		suffix, inScope := a.Path.StripPrefix(req.Prefix)
		if !inScope {
			continue
		}
		state := wire.AnnounceEnded
		if a.Active() {
			state = wire.AnnounceActive
		}
		s.metrics.announced(a.Active())

		aw := wire.NewWriter()
		aw.SetVersion(s.version)
		wire.Announce{State: state, Suffix: suffix}.Encode(aw)
		if err := wire.WriteControlMsg(stream, wire.MsgAnnounce, aw.Bytes()); err != nil {
			return
		}
	}
}

// requestAnnounce opens an AnnouncePlease stream for prefix and publishes a
// locally-backed proxy broadcast into into for every suffix announced:
// subscribing to it triggers requestTrack against the real peer-side
// broadcast, so the caller never has to know the broadcast is remote
// (spec §4.7 "the announce stream is the source of truth for the
// subscriber's local Origin").
func (s *Session) requestAnnounce(ctx context.Context, prefix model.Path, into *origin.Producer) error {
	stream, err := s.conn.OpenStreamSync(ctx)
	if err != nil {
		return err
	}

	w := wire.NewWriter()
	w.SetVersion(s.version)
	wire.AnnouncePlease{Prefix: prefix}.Encode(w)
	if err := wire.WriteControlMsg(stream, wire.MsgAnnouncePlease, w.Bytes()); err != nil {
		return err
	}

	msgType, payload, err := wire.ReadControlMsg(stream)
	if err != nil {
		return err
	}
	if msgType != wire.MsgAnnounceInit {
		return model.ErrProtocolViolation
	}
	init, err := wire.DecodeAnnounceInit(wireReader(payload, s.version))
	if err != nil {
		return err
	}

	live := make(map[string]*model.BroadcastProducer)
	var liveMu sync.Mutex

	publish := func(suffix model.Path) {
		bp := model.NewBroadcastProducer()
		liveMu.Lock()
		live[suffix.String()] = bp
		liveMu.Unlock()
		if err := into.PublishBroadcast(suffix, bp.Consume()); err != nil {
			bp.Abort(model.AsError(err))
			return
		}
		go s.proxyDemand(ctx, prefix, suffix, bp)
	}
	end := func(suffix model.Path) {
		liveMu.Lock()
		bp, ok := live[suffix.String()]
		delete(live, suffix.String())
		liveMu.Unlock()
		if ok {
			bp.Close()
		}
	}

	for _, suffix := range init.Suffixes {
		publish(suffix)
	}

	for {
		msgType, payload, err := wire.ReadControlMsg(stream)
		if err != nil {
			return nil
		}
		if msgType != wire.MsgAnnounce {
			continue
		}
		ann, err := wire.DecodeAnnounce(wireReader(payload, s.version))
		if err != nil {
			continue
		}
		if ann.State == wire.AnnounceActive {
			publish(ann.Suffix)
		} else {
			end(ann.Suffix)
		}
	}
}

// proxyDemand serves every track a local consumer requests on the
// synthesized broadcast bp by opening a real Subscribe to the peer for
// broadcast/track, forwarding the resulting remote groups locally.
func (s *Session) proxyDemand(ctx context.Context, prefix, suffix model.Path, bp *model.BroadcastProducer) {
	broadcast := prefix.Join(suffix)
	for {
		tp := bp.RequestedTrack(ctx)
		if tp == nil {
			return
		}
		go func(tp *model.TrackProducer) {
			delivery := tp.Subscribers().Aggregate()
			tc, err := s.requestTrack(ctx, broadcast, tp.Info.Name, delivery)
			if err != nil {
				tp.Abort(model.AsError(err))
				return
			}
			forwardTrack(ctx, tc, tp)
		}(tp)
	}
}

// forwardTrack is proxyTrack's counterpart for a remote-backed track: read
// groups from the subscription we opened to the peer, reappend them to
// the locally demanded producer.
func forwardTrack(ctx context.Context, src *model.TrackConsumer, dst *model.TrackProducer) {
	for {
		g, err := src.NextGroup(ctx)
		if err != nil || g == nil {
			if err != nil {
				dst.Abort(model.AsError(err))
			} else {
				dst.Close()
			}
			return
		}
		dg, err := dst.CreateGroup(g.Info.Sequence)
		if err != nil {
			continue
		}
		go forwardGroup(ctx, g, dg)
	}
}

func forwardGroup(ctx context.Context, src *model.GroupConsumer, dst *model.GroupProducer) {
	for {
		fc, err := src.NextFrame(ctx)
		if err != nil || fc == nil {
			if err != nil {
				dst.Abort(model.AsError(err))
			} else {
				dst.FinalFrame()
			}
			return
		}
		payload, err := fc.ReadAll(ctx)
		if err != nil {
			dst.Abort(model.AsError(err))
			return
		}
		if err := dst.WriteFrame(payload, fc.Info.Timestamp); err != nil {
			dst.Abort(model.AsError(err))
			return
		}
	}
}
