// Package session implements the per-connection MoQ protocol: the setup
// handshake, the announce and subscribe control-stream multiplexes, group
// streams, and the priority scheduler that ties them to the transport
// (spec §4.8). It is transport-agnostic, driving everything through
// pkg/transport.Connection.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/moqcore/pkg/model"
	"github.com/zsiec/moqcore/pkg/origin"
	"github.com/zsiec/moqcore/pkg/transport"
	"github.com/zsiec/moqcore/pkg/wire"
)

// Role says which side of the setup handshake a Session played.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// Config carries everything Connect/Accept need to run a session: which
// protocol dialect to speak, what to publish, and what to consume.
type Config struct {
	// ClientKind selects the family of version this side offers (Connect
	// only; ignored by Accept, which learns it from the peer).
	ClientKind wire.ClientKind
	// OfferedVersions is the client's version list, newest-first (Connect only).
	OfferedVersions []wire.Version
	// SupportedVersions is the server's accepted versions across both
	// families (Accept only).
	SupportedVersions []wire.Version
	// Params are the local setup parameters sent to the peer.
	Params wire.Params

	// Publish is the origin this session serves Subscribe and AnnouncePlease
	// requests against. A nil Publish serves an always-empty origin.
	Publish *origin.Consumer
	// Consume, if set, makes this session open an AnnouncePlease for
	// AnnouncePrefix and mirror every discovered broadcast into it.
	Consume *origin.Producer
	// AnnouncePrefix scopes the AnnouncePlease issued when Consume is set.
	AnnouncePrefix model.Path

	// RateFn, if set, reports this session's current estimated send rate
	// for the periodic SessionInfo cadence (spec §4.8.1).
	RateFn func() uint64

	Logger  *slog.Logger
	Metrics *Metrics
}

// Session is one established, running MoQ connection: past the setup
// handshake, with background goroutines serving the peer's Subscribes and
// AnnouncePleases and receiving inbound group streams (spec §4.8).
type Session struct {
	id      string
	conn    transport.Connection
	role    Role
	version wire.Version
	params  wire.Params
	logger  *slog.Logger
	metrics *Metrics

	publish *origin.Consumer

	nextSubID atomic.Uint64
	mu        sync.Mutex
	outgoing  map[uint64]*model.TrackProducer

	scheduler *scheduler

	peerBitrate atomic.Uint64

	cancel    context.CancelFunc
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  *model.Error
}

// Connect performs the client side of the setup handshake over conn and
// starts the session's background loops.
func Connect(ctx context.Context, conn transport.Connection, cfg Config) (*Session, error) {
	stream, version, params, err := clientHandshake(ctx, conn, cfg.ClientKind, cfg.OfferedVersions, cfg.Params)
	if err != nil {
		conn.CloseWithError(model.ErrVersion.WireCode(), err.Error())
		return nil, err
	}
	return newSession(ctx, conn, RoleClient, stream, version, params, cfg), nil
}

// Accept performs the server side of the setup handshake over conn and
// starts the session's background loops.
func Accept(ctx context.Context, conn transport.Connection, cfg Config) (*Session, error) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("accept setup stream: %w", err)
	}
	version, params, err := serverHandshake(ctx, stream, cfg.SupportedVersions, cfg.Params)
	if err != nil {
		conn.CloseWithError(model.ErrVersion.WireCode(), err.Error())
		return nil, err
	}
	return newSession(ctx, conn, RoleServer, stream, version, params, cfg), nil
}

func newSession(ctx context.Context, conn transport.Connection, role Role, setup transport.Stream, version wire.Version, peerParams wire.Params, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publish := cfg.Publish
	if publish == nil {
		publish = origin.NewProducer().Consume()
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	s := &Session{
		id:        id,
		conn:      conn,
		role:      role,
		version:   version,
		params:    peerParams,
		logger:    logger.With("session", id, "role", role.String(), "version", fmt.Sprintf("%#x", version)),
		metrics:   cfg.Metrics,
		publish:   publish,
		outgoing:  make(map[uint64]*model.TrackProducer),
		scheduler: newScheduler(),
		cancel:    cancel,
		closed:    make(chan struct{}),
	}

	g, gctx := errgroup.WithContext(sessionCtx)
	g.Go(func() error { return s.acceptStreams(gctx) })
	g.Go(func() error { return s.acceptGroupStreams(gctx) })

	rateFn := cfg.RateFn
	if rateFn == nil {
		rateFn = func() uint64 { return 0 }
	}
	g.Go(func() error { s.sessionInfoLoop(gctx, setup, rateFn); return nil })
	g.Go(func() error { s.readSessionInfoLoop(gctx, setup); return nil })

	if cfg.Consume != nil {
		g.Go(func() error { return s.requestAnnounce(gctx, cfg.AnnouncePrefix, cfg.Consume) })
	}

	go func() {
		err := g.Wait()
		s.finish(err)
	}()

	return s
}

// acceptStreams accepts every bidirectional stream the peer opens after
// setup — each is either an AnnouncePlease or a Subscribe — and dispatches
// it to its own goroutine (spec §4.8.2).
func (s *Session) acceptStreams(ctx context.Context) error {
	for {
		stream, err := s.conn.AcceptStream(ctx)
		if err != nil {
			return err
		}
		go s.dispatchStream(ctx, stream)
	}
}

func (s *Session) dispatchStream(ctx context.Context, stream transport.Stream) {
	msgType, payload, err := wire.ReadControlMsg(stream)
	if err != nil {
		stream.CancelRead(model.ErrDecode.WireCode())
		return
	}
	switch msgType {
	case wire.MsgAnnouncePlease:
		req, err := wire.DecodeAnnouncePlease(wireReader(payload, s.version))
		if err != nil {
			stream.CancelRead(model.ErrDecode.WireCode())
			return
		}
		s.serveAnnounce(ctx, stream, req)
	case wire.MsgSubscribe:
		req, err := wire.DecodeSubscribe(wireReader(payload, s.version))
		if err != nil {
			stream.CancelRead(model.ErrDecode.WireCode())
			return
		}
		s.serveSubscribe(ctx, stream, req)
	default:
		s.logger.Warn("unexpected stream type", "msg_type", fmt.Sprintf("%#x", msgType))
		err := model.NewError(model.CodeUnexpectedStream, nil)
		stream.CancelRead(err.WireCode())
		stream.CancelWrite(err.WireCode())
	}
}

// RequestTrack opens a Subscribe to broadcast/track over this session and
// returns a consumer fed by the resulting group streams.
func (s *Session) RequestTrack(ctx context.Context, broadcast model.Path, track string, delivery model.Delivery) (*model.TrackConsumer, error) {
	return s.requestTrack(ctx, broadcast, track, delivery)
}

// ID returns this session's unique identifier, used as a logging/metrics
// label (spec §4.8, mirroring the teacher's MoQSession.ID()).
func (s *Session) ID() string { return s.id }

// Version reports the protocol version negotiated during setup.
func (s *Session) Version() wire.Version { return s.version }

// PeerParams reports the setup parameters the peer sent.
func (s *Session) PeerParams() wire.Params { return s.params }

// PeerBitrate reports the peer's most recently reported estimated send rate.
func (s *Session) PeerBitrate() uint64 { return s.peerBitrate.Load() }

func (s *Session) finish(err error) {
	var merr *model.Error
	if err != nil {
		merr = model.AsError(err)
	}
	s.Close(merr)
}

// Close tears the session down, delivering err (or a clean close if nil)
// to the peer. Safe to call more than once or concurrently.
func (s *Session) Close(err *model.Error) {
	s.closeOnce.Do(func() {
		s.closeErr = err
		s.cancel()
		code := uint64(0)
		msg := "session closed"
		if err != nil {
			code = err.WireCode()
			msg = err.Error()
			s.logger.Warn("session closing with error", "error", err)
		} else {
			s.logger.Debug("session closing cleanly")
		}
		s.conn.CloseWithError(code, msg)
		close(s.closed)
	})
}

// Closed blocks until the session finishes, returning the error it closed
// with (nil for a clean close).
func (s *Session) Closed(ctx context.Context) error {
	select {
	case <-s.closed:
		if s.closeErr != nil {
			return s.closeErr
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
