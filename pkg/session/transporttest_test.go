package session

import (
	"context"
	"fmt"
	"io"

	"github.com/zsiec/moqcore/pkg/transport"
)

// fakeConn is an in-memory transport.Connection backed by io.Pipe, used to
// drive a real *Session through its setup handshake and control-stream
// multiplexes without a live QUIC or WebTransport carrier underneath
// (mirrors internal/distribution/moq_session_test.go's style of testing
// the session layer against a fake webtransport.Session).
type fakeConn struct {
	peer    *fakeConn
	streams chan *fakeStream
	uni     chan *fakeReceiveStream

	ctx    context.Context
	cancel context.CancelFunc
}

// newFakeConnPair returns two ends of a fake connection, each able to open
// streams the other accepts.
func newFakeConnPair() (client, server *fakeConn) {
	cctx, ccancel := context.WithCancel(context.Background())
	sctx, scancel := context.WithCancel(context.Background())
	c := &fakeConn{streams: make(chan *fakeStream, 64), uni: make(chan *fakeReceiveStream, 64), ctx: cctx, cancel: ccancel}
	s := &fakeConn{streams: make(chan *fakeStream, 64), uni: make(chan *fakeReceiveStream, 64), ctx: sctx, cancel: scancel}
	c.peer, s.peer = s, c
	return c, s
}

func (c *fakeConn) OpenStream() (transport.Stream, error) {
	return c.OpenStreamSync(context.Background())
}

func (c *fakeConn) OpenStreamSync(ctx context.Context) (transport.Stream, error) {
	r1, w1 := io.Pipe() // this side writes, peer reads
	r2, w2 := io.Pipe() // peer writes, this side reads
	local := &fakeStream{r: r2, w: w1}
	remote := &fakeStream{r: r1, w: w2}
	select {
	case c.peer.streams <- remote:
		return local, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

func (c *fakeConn) AcceptStream(ctx context.Context) (transport.Stream, error) {
	select {
	case s := <-c.streams:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

func (c *fakeConn) OpenUniStreamSync(ctx context.Context) (transport.SendStream, error) {
	r, w := io.Pipe()
	select {
	case c.peer.uni <- &fakeReceiveStream{r: r}:
		return &fakeSendStream{w: w}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

func (c *fakeConn) AcceptUniStream(ctx context.Context) (transport.ReceiveStream, error) {
	select {
	case rs := <-c.uni:
		return rs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
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
func (s *fakeStream) CancelRead(code uint64) {
	s.r.CloseWithError(fmt.Errorf("stream reset (read), code %d", code))
}
func (s *fakeStream) CancelWrite(code uint64) {
	s.w.CloseWithError(fmt.Errorf("stream reset (write), code %d", code))
}

type fakeSendStream struct {
	w *io.PipeWriter
}

func (s *fakeSendStream) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *fakeSendStream) Close() error                { return s.w.Close() }
func (s *fakeSendStream) CancelWrite(code uint64) {
	s.w.CloseWithError(fmt.Errorf("stream reset (write), code %d", code))
}
func (s *fakeSendStream) SetPriority(int) {}

type fakeReceiveStream struct {
	r *io.PipeReader
}

func (s *fakeReceiveStream) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *fakeReceiveStream) CancelRead(code uint64) {
	s.r.CloseWithError(fmt.Errorf("stream reset (read), code %d", code))
}
