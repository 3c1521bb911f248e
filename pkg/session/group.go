package session

import (
	"context"

	"github.com/zsiec/moqcore/pkg/model"
	"github.com/zsiec/moqcore/pkg/transport"
	"github.com/zsiec/moqcore/pkg/wire"
)

// acceptGroupStreams accepts every unidirectional stream the peer opens,
// each carrying one group for one of our outgoing subscriptions, and
// dispatches it to its own goroutine (spec §4.8.2 "Group stream").
func (s *Session) acceptGroupStreams(ctx context.Context) error {
	for {
		rs, err := s.conn.AcceptUniStream(ctx)
		if err != nil {
			return err
		}
		go s.receiveGroup(rs)
	}
}

// receiveGroup decodes a group stream's header and frames, writing each
// frame into the TrackProducer registered for its subscription ID. The
// first frame's instant is ZERO plus its delta; every later frame's
// instant is the previous frame's instant plus its delta (spec §4.8.2
// step 3).
func (s *Session) receiveGroup(rs transport.ReceiveStream) {
	r := wire.NewReader(rs)
	r.SetVersion(s.version)

	hdr, err := wire.DecodeGroupHeader(r)
	if err != nil {
		rs.CancelRead(model.ErrDecode.WireCode())
		return
	}

	s.mu.Lock()
	producer, ok := s.outgoing[hdr.Subscribe]
	s.mu.Unlock()
	if !ok {
		rs.CancelRead(model.ErrNotFound.WireCode())
		return
	}

	group, err := producer.CreateGroup(hdr.Sequence)
	if err != nil {
		rs.CancelRead(model.AsError(err).WireCode())
		return
	}

	var last model.Time
	for {
		fh, err := wire.DecodeFrameHeader(r)
		if err != nil {
			// Any error reading the next frame header — a clean finish at
			// a message boundary or a mid-group reset — ends the group
			// here rather than leaving it open forever.
			group.FinalFrame()
			return
		}

		ts, terr := last.CheckedAdd(fh.Delta)
		if terr != nil {
			group.Abort(model.AsError(terr))
			return
		}
		last = ts

		payload, err := r.ReadExact(int(fh.Size))
		if err != nil {
			group.Abort(model.AsError(err))
			return
		}
		if err := group.WriteFrame(payload, ts); err != nil {
			group.Abort(model.AsError(err))
			return
		}
	}
}
