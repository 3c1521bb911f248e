package transport

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/quic-go/quic-go"
)

// quicConn adapts a raw quic-go Connection to the Connection interface
// (spec §4.8 "raw QUIC" carrier).
type quicConn struct {
	conn quic.Connection
}

// NewQUICConnection wraps an already-established quic-go connection.
func NewQUICConnection(conn quic.Connection) Connection { return &quicConn{conn: conn} }

func (c *quicConn) OpenStream() (Stream, error) {
	s, err := c.conn.OpenStream()
	if err != nil {
		return nil, err
	}
	return quicStream{s}, nil
}

func (c *quicConn) OpenStreamSync(ctx context.Context) (Stream, error) {
	s, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return quicStream{s}, nil
}

func (c *quicConn) AcceptStream(ctx context.Context) (Stream, error) {
	s, err := c.conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return quicStream{s}, nil
}

func (c *quicConn) OpenUniStreamSync(ctx context.Context) (SendStream, error) {
	s, err := c.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return quicSendStream{s}, nil
}

func (c *quicConn) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	s, err := c.conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return quicReceiveStream{s}, nil
}

func (c *quicConn) CloseWithError(code uint64, msg string) error {
	return c.conn.CloseWithError(quic.ApplicationErrorCode(code), msg)
}

func (c *quicConn) Context() context.Context { return c.conn.Context() }

type quicStream struct{ quic.Stream }

func (s quicStream) CancelRead(code uint64)  { s.Stream.CancelRead(quic.StreamErrorCode(code)) }
func (s quicStream) CancelWrite(code uint64) { s.Stream.CancelWrite(quic.StreamErrorCode(code)) }

type quicSendStream struct{ quic.SendStream }

func (s quicSendStream) CancelWrite(code uint64) {
	s.SendStream.CancelWrite(quic.StreamErrorCode(code))
}

// SetPriority maps the MoQ scheduler's (group, urgency) ordering onto
// quic-go's per-stream send priority, lower values sent first.
func (s quicSendStream) SetPriority(priority int) {
	s.SendStream.SetPriority(quic.StreamPriority(priority))
}

type quicReceiveStream struct{ quic.ReceiveStream }

func (s quicReceiveStream) CancelRead(code uint64) {
	s.ReceiveStream.CancelRead(quic.StreamErrorCode(code))
}

// QUICListenerConfig configures a raw-QUIC Listener (spec §4.9 server builder).
type QUICListenerConfig struct {
	Addr       string
	TLSConfig  *tls.Config
	IdleTimeout time.Duration
}

type quicListener struct {
	ln *quic.Listener
}

// ListenQUIC starts a raw-QUIC listener accepting MoQ connections directly,
// without the HTTP/3/WebTransport upgrade (spec §4.8 ClientKind::Lite's
// usual carrier).
func ListenQUIC(cfg QUICListenerConfig) (Listener, error) {
	qCfg := &quic.Config{MaxIdleTimeout: cfg.IdleTimeout}
	if qCfg.MaxIdleTimeout == 0 {
		qCfg.MaxIdleTimeout = 30 * time.Second
	}
	ln, err := quic.ListenAddr(cfg.Addr, cfg.TLSConfig, qCfg)
	if err != nil {
		return nil, err
	}
	return &quicListener{ln: ln}, nil
}

func (l *quicListener) Accept(ctx context.Context) (Connection, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return NewQUICConnection(conn), nil
}

func (l *quicListener) Close() error { return l.ln.Close() }

type quicDialer struct {
	tlsConfig *tls.Config
}

// NewQUICDialer returns a Dialer that opens raw QUIC connections.
func NewQUICDialer(tlsConfig *tls.Config) Dialer { return &quicDialer{tlsConfig: tlsConfig} }

func (d *quicDialer) Dial(ctx context.Context, addr string) (Connection, error) {
	conn, err := quic.DialAddr(ctx, addr, d.tlsConfig, &quic.Config{MaxIdleTimeout: 30 * time.Second})
	if err != nil {
		return nil, err
	}
	return NewQUICConnection(conn), nil
}
