// Package transport abstracts the two QUIC-based carriers a MoQ session can
// run over — raw QUIC (quic-go) and WebTransport (quic-go/webtransport-go) —
// behind a single Connection interface, so pkg/session never imports either
// library directly (spec §4.8, §4.9).
package transport

import (
	"context"
	"io"
)

// SendStream is a unidirectional, write-only QUIC stream.
type SendStream interface {
	io.Writer
	io.Closer
	CancelWrite(code uint64)
	SetPriority(priority int)
}

// ReceiveStream is a unidirectional, read-only QUIC stream.
type ReceiveStream interface {
	io.Reader
	CancelRead(code uint64)
}

// Stream is a bidirectional QUIC stream, used only for the control channel.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
	CancelRead(code uint64)
	CancelWrite(code uint64)
}

// Connection is a single established MoQ transport session, already past
// the WebTransport/h3 upgrade or QUIC handshake. Every stream the session
// layer opens or accepts flows through this interface, so pkg/session is
// agnostic to which carrier is underneath (spec §4.8 "transport
// independence").
type Connection interface {
	// OpenStream opens a bidirectional stream without blocking on flow
	// control credit. pkg/session opens its streams, the setup stream
	// included, with OpenStreamSync instead.
	OpenStream() (Stream, error)
	// OpenStreamSync opens a bidirectional stream, blocking for credit.
	OpenStreamSync(ctx context.Context) (Stream, error)
	// AcceptStream blocks for the next peer-initiated bidirectional stream.
	AcceptStream(ctx context.Context) (Stream, error)

	// OpenUniStreamSync opens a unidirectional send stream, blocking for
	// flow-control credit. Used for each outgoing group stream.
	OpenUniStreamSync(ctx context.Context) (SendStream, error)
	// AcceptUniStream blocks for the next peer-initiated unidirectional
	// stream. Used to accept inbound group streams.
	AcceptUniStream(ctx context.Context) (ReceiveStream, error)

	// CloseWithError tears down the session, delivering code/msg to the peer.
	CloseWithError(code uint64, msg string) error
	// Context is cancelled when the connection closes, for any reason.
	Context() context.Context
}

// Dialer opens an outbound Connection to a MoQ server endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string) (Connection, error)
}

// Listener accepts inbound Connections from MoQ clients.
type Listener interface {
	Accept(ctx context.Context) (Connection, error)
	Close() error
}
