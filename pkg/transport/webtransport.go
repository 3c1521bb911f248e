package transport

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
)

// wtConn adapts a webtransport-go Session to the Connection interface
// (spec §4.8 "WebTransport" carrier).
type wtConn struct {
	session *webtransport.Session
}

// NewWebTransportConnection wraps an already-upgraded WebTransport session.
func NewWebTransportConnection(session *webtransport.Session) Connection {
	return &wtConn{session: session}
}

func (c *wtConn) OpenStream() (Stream, error) {
	s, err := c.session.OpenStream()
	if err != nil {
		return nil, err
	}
	return wtStream{s}, nil
}

func (c *wtConn) OpenStreamSync(ctx context.Context) (Stream, error) {
	s, err := c.session.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return wtStream{s}, nil
}

func (c *wtConn) AcceptStream(ctx context.Context) (Stream, error) {
	s, err := c.session.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return wtStream{s}, nil
}

func (c *wtConn) OpenUniStreamSync(ctx context.Context) (SendStream, error) {
	s, err := c.session.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return wtSendStream{s}, nil
}

func (c *wtConn) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	s, err := c.session.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return wtReceiveStream{s}, nil
}

func (c *wtConn) CloseWithError(code uint64, msg string) error {
	return c.session.CloseWithError(webtransport.SessionErrorCode(code), msg)
}

func (c *wtConn) Context() context.Context { return c.session.Context() }

type wtStream struct{ webtransport.Stream }

func (s wtStream) CancelRead(code uint64) {
	s.Stream.CancelRead(webtransport.StreamErrorCode(code))
}
func (s wtStream) CancelWrite(code uint64) {
	s.Stream.CancelWrite(webtransport.StreamErrorCode(code))
}
func (s wtStream) SetPriority(priority int) {
	s.Stream.SetPriority(quic.StreamPriority(priority))
}

type wtSendStream struct{ webtransport.SendStream }

func (s wtSendStream) CancelWrite(code uint64) {
	s.SendStream.CancelWrite(webtransport.StreamErrorCode(code))
}
func (s wtSendStream) SetPriority(priority int) {
	s.SendStream.SetPriority(quic.StreamPriority(priority))
}

type wtReceiveStream struct{ webtransport.ReceiveStream }

func (s wtReceiveStream) CancelRead(code uint64) {
	s.ReceiveStream.CancelRead(webtransport.StreamErrorCode(code))
}

// WebTransport session close codes sent to clients that never completed
// the MoQ setup handshake (spec §4.8.1).
const (
	ErrCodeSetupFailed   uint64 = 1
	ErrCodeControlStream uint64 = 2
	ErrCodeUnknownPath   uint64 = 3
	ErrCodeInternal      uint64 = 4
)

// WebTransportServerConfig configures an HTTP/3 + WebTransport listener
// (spec §4.9 server builder).
type WebTransportServerConfig struct {
	Addr        string
	TLSConfig   *tls.Config
	Path        string
	IdleTimeout time.Duration
	// CheckOrigin authorizes an incoming upgrade request; nil allows every
	// origin, matching a local-development default.
	CheckOrigin func(*http.Request) bool
	// Accept is invoked for every successfully upgraded session, right after
	// the upgrade and before any stream is opened or accepted, on its own
	// goroutine.
	Accept func(conn Connection, r *http.Request)
}

type wtListener struct {
	srv *webtransport.Server
}

// ListenWebTransport starts an HTTP/3 server that upgrades requests at
// cfg.Path to WebTransport sessions, dispatching each to cfg.Accept (spec
// §4.8 "WebTransport" carrier setup). It returns the listener without
// blocking and does not start serving: Serve runs the server, and
// cancelling ctx closes it.
func ListenWebTransport(ctx context.Context, cfg WebTransportServerConfig) (Listener, error) {
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	idle := cfg.IdleTimeout
	if idle == 0 {
		idle = 30 * time.Second
	}

	srv := &webtransport.Server{
		H3: http3.Server{
			Addr:      cfg.Addr,
			TLSConfig: cfg.TLSConfig,
			QUICConfig: &quic.Config{
				MaxIdleTimeout: idle,
				Allow0RTT:      true,
			},
		},
		CheckOrigin: checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, func(w http.ResponseWriter, r *http.Request) {
		session, err := srv.Upgrade(w, r)
		if err != nil {
			return
		}
		conn := NewWebTransportConnection(session)
		if cfg.Accept != nil {
			go cfg.Accept(conn, r)
		}
	})
	srv.H3.Handler = mux

	context.AfterFunc(ctx, func() { srv.Close() })

	return &wtListener{srv: srv}, nil
}

// Serve runs the listener's HTTP/3 server; it blocks until the listener is
// closed. Call this after ListenWebTransport, typically in its own goroutine.
func Serve(l Listener) error {
	wl, ok := l.(*wtListener)
	if !ok {
		return nil
	}
	return wl.srv.ListenAndServe()
}

// Accept is unused for WebTransport: sessions are dispatched via
// WebTransportServerConfig.Accept as they're upgraded, since webtransport-go
// drives acceptance from inside the HTTP handler rather than a pull loop.
func (l *wtListener) Accept(ctx context.Context) (Connection, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (l *wtListener) Close() error { return l.srv.Close() }

// DialWebTransport opens an outbound WebTransport session to url (spec §4.9
// client builder).
func DialWebTransport(ctx context.Context, url string) (Connection, error) {
	d := webtransport.Dialer{}
	_, session, err := d.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebTransportConnection(session), nil
}
