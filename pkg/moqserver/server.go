// Package moqserver is the server-side builder (spec §4.9): accept a
// transport connection already past its QUIC/WebTransport upgrade, perform
// the setup handshake, and hand back a running *session.Session.
package moqserver

import (
	"context"
	"log/slog"

	"github.com/zsiec/moqcore/pkg/model"
	"github.com/zsiec/moqcore/pkg/origin"
	"github.com/zsiec/moqcore/pkg/session"
	"github.com/zsiec/moqcore/pkg/transport"
	"github.com/zsiec/moqcore/pkg/wire"
)

// Server is a fluent builder for accepted MoQ connections: with_publish and
// with_consume configure every session Accept produces (spec §4.9 "Server
// builder").
type Server struct {
	versions       []wire.Version
	params         wire.Params
	publish        *origin.Consumer
	consume        *origin.Producer
	announcePrefix model.Path
	rateFn         func() uint64
	logger         *slog.Logger
	metrics        *session.Metrics
}

// New builds a Server willing to negotiate any of versions (both Lite and
// IETF families may be mixed in one list).
func New(versions []wire.Version) *Server {
	return &Server{versions: versions}
}

// WithParams sets the setup parameters sent to every client.
func (s *Server) WithParams(p wire.Params) *Server {
	s.params = p
	return s
}

// WithPublish makes every accepted session serve Subscribe/AnnouncePlease
// requests from publish.
func (s *Server) WithPublish(publish *origin.Consumer) *Server {
	s.publish = publish
	return s
}

// WithConsume makes every accepted session issue an AnnouncePlease for
// prefix and mirror discovered broadcasts into consume.
func (s *Server) WithConsume(prefix model.Path, consume *origin.Producer) *Server {
	s.consume = consume
	s.announcePrefix = prefix
	return s
}

// WithRateFn reports each session's current estimated send rate for the
// periodic SessionInfo cadence (spec §4.8.1).
func (s *Server) WithRateFn(fn func() uint64) *Server {
	s.rateFn = fn
	return s
}

// WithLogger attaches a logger to every accepted session.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

// WithMetrics attaches an observability hook to every accepted session.
func (s *Server) WithMetrics(m *session.Metrics) *Server {
	s.metrics = m
	return s
}

// Accept performs the server-side setup handshake over an already-upgraded
// conn, returning once the peer has been handshaken (spec §4.9).
func (s *Server) Accept(ctx context.Context, conn transport.Connection) (*session.Session, error) {
	return session.Accept(ctx, conn, session.Config{
		SupportedVersions: s.versions,
		Params:            s.params,
		Publish:           s.publish,
		Consume:           s.consume,
		AnnouncePrefix:    s.announcePrefix,
		RateFn:            s.rateFn,
		Logger:            s.logger,
		Metrics:           s.metrics,
	})
}

// Serve accepts connections from ln until ctx is cancelled or Accept
// returns an error, handshaking each and passing the resulting session to
// onSession on its own goroutine. It does not return the per-connection
// handshake error to the caller — onSession is only invoked on success —
// so a single misbehaving client can't stop the listener loop.
func (s *Server) Serve(ctx context.Context, ln transport.Listener, onSession func(*session.Session)) error {
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			return err
		}
		go func() {
			sess, err := s.Accept(ctx, conn)
			if err != nil {
				if s.logger != nil {
					s.logger.Warn("setup handshake failed", "error", err)
				}
				return
			}
			onSession(sess)
		}()
	}
}
