package moqserver

import (
	"context"
	"io"

	"github.com/zsiec/moqcore/pkg/transport"
)

// fakeConn mirrors pkg/moqclient's fake transport.Connection: an in-memory
// io.Pipe-backed pair just enough to drive a setup handshake and other
// bidirectional streams in tests, without a real QUIC/WebTransport carrier.
// It carries no unidirectional (group) streams: OpenUniStreamSync always
// fails and AcceptUniStream only returns once the context ends. Each
// package keeps its own copy since Go test files can't share unexported
// helpers across packages.
type fakeConn struct {
	inbox     chan *fakeStream
	peerInbox chan *fakeStream
	ctx       context.Context
	cancel    context.CancelFunc
}

func newFakeConnPair() (a, b *fakeConn) {
	ctx, cancel := context.WithCancel(context.Background())
	chAtoB := make(chan *fakeStream, 4)
	chBtoA := make(chan *fakeStream, 4)
	a = &fakeConn{inbox: chBtoA, peerInbox: chAtoB, ctx: ctx, cancel: cancel}
	b = &fakeConn{inbox: chAtoB, peerInbox: chBtoA, ctx: ctx, cancel: cancel}
	return a, b
}

func (c *fakeConn) OpenStream() (transport.Stream, error) { return nil, io.ErrClosedPipe }

func (c *fakeConn) OpenStreamSync(ctx context.Context) (transport.Stream, error) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	mine := &fakeStream{r: r1, w: w2}
	theirs := &fakeStream{r: r2, w: w1}
	select {
	case c.peerInbox <- theirs:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return mine, nil
}

func (c *fakeConn) AcceptStream(ctx context.Context) (transport.Stream, error) {
	select {
	case s := <-c.inbox:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, io.EOF
	}
}

func (c *fakeConn) OpenUniStreamSync(ctx context.Context) (transport.SendStream, error) {
	return nil, io.ErrClosedPipe
}

func (c *fakeConn) AcceptUniStream(ctx context.Context) (transport.ReceiveStream, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, io.EOF
	}
}

func (c *fakeConn) CloseWithError(code uint64, msg string) error {
	c.cancel()
	return nil
}

func (c *fakeConn) Context() context.Context { return c.ctx }

type fakeStream struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (s *fakeStream) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *fakeStream) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *fakeStream) Close() error                { return s.w.Close() }
func (s *fakeStream) CancelRead(code uint64)       { s.r.CloseWithError(io.ErrClosedPipe) }
func (s *fakeStream) CancelWrite(code uint64)      { s.w.CloseWithError(io.ErrClosedPipe) }

// fakeListener hands out the preconnected Connections it was built with, enough to test
// Server.Serve's accept loop without a real listener.
type fakeListener struct {
	conns  chan transport.Connection
	closed chan struct{}
}

func newFakeListener(conns ...transport.Connection) *fakeListener {
	ch := make(chan transport.Connection, len(conns))
	for _, c := range conns {
		ch <- c
	}
	return &fakeListener{conns: ch, closed: make(chan struct{})}
}

func (l *fakeListener) Accept(ctx context.Context) (transport.Connection, error) {
	select {
	case c, ok := <-l.conns:
		if !ok {
			<-l.closed
			return nil, io.EOF
		}
		return c, nil
	case <-l.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *fakeListener) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}
