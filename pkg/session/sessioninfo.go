package session

import (
	"context"
	"time"

	"github.com/zsiec/moqcore/pkg/transport"
	"github.com/zsiec/moqcore/pkg/wire"
)

const (
	sessionInfoMinInterval    = 100 * time.Millisecond
	sessionInfoMaxInterval    = 1 * time.Second
	sessionInfoChangeForMin   = 0.25 // ≥25% change compresses to the minimum interval
)

// sessionInfoLoop periodically writes SessionInfo to stream carrying the
// current estimated send rate from rateFn. The interval between sends
// ranges 100ms–1s: a ≥25% change from the last sent rate uses the minimum
// interval, no change relaxes to the maximum, linearly interpolated in
// between (spec §4.8.1).
func (s *Session) sessionInfoLoop(ctx context.Context, stream transport.Stream, rateFn func() uint64) {
	var lastSent uint64
	haveSent := false
	timer := time.NewTimer(sessionInfoMaxInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		rate := rateFn()
		w := wire.NewWriter()
		w.SetVersion(s.version)
		wire.SessionInfo{BitrateBps: rate}.Encode(w)
		if err := wire.WriteControlMsg(stream, wire.MsgSessionInfo, w.Bytes()); err != nil {
			return
		}

		timer.Reset(nextSessionInfoInterval(lastSent, rate, haveSent))
		lastSent, haveSent = rate, true
	}
}

// nextSessionInfoInterval computes the send-rate-change-proportional delay
// before the next SessionInfo (spec §4.8.1). The first send after Connect
// has no prior rate to compare against, so it's treated as maximal change
// (send again soon).
func nextSessionInfoInterval(last, next uint64, haveSent bool) time.Duration {
	if !haveSent {
		return sessionInfoMinInterval
	}
	var change float64
	if last > 0 {
		diff := next - last
		if next < last {
			diff = last - next
		}
		change = float64(diff) / float64(last)
	} else if next > 0 {
		change = 1
	}
	if change >= sessionInfoChangeForMin {
		return sessionInfoMinInterval
	}
	frac := change / sessionInfoChangeForMin
	span := sessionInfoMaxInterval - sessionInfoMinInterval
	return sessionInfoMaxInterval - time.Duration(frac*float64(span))
}

// readSessionInfoLoop drains the peer's SessionInfo pushes, recording the
// latest estimate for PeerBitrate.
func (s *Session) readSessionInfoLoop(ctx context.Context, stream transport.Stream) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgType, payload, err := wire.ReadControlMsg(stream)
		if err != nil {
			return
		}
		if msgType != wire.MsgSessionInfo {
			continue
		}
		info, err := wire.DecodeSessionInfo(wireReader(payload, s.version))
		if err != nil {
			continue
		}
		s.peerBitrate.Store(info.BitrateBps)
	}
}
