package moqserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/moqcore/pkg/model"
	"github.com/zsiec/moqcore/pkg/origin"
	"github.com/zsiec/moqcore/pkg/session"
	"github.com/zsiec/moqcore/pkg/wire"
)

// connectOnPeer runs session.Connect on the client side of a fake
// connection pair concurrently with the Server's Accept call under test.
func connectOnPeer(t *testing.T, conn *fakeConn, cfg session.Config) <-chan *session.Session {
	t.Helper()
	done := make(chan *session.Session, 1)
	go func() {
		cfg.ClientKind = wire.ClientKindIetf
		cfg.OfferedVersions = []wire.Version{wire.VersionIetfDraft14}
		sess, err := session.Connect(context.Background(), conn, cfg)
		require.NoError(t, err)
		done <- sess
	}()
	return done
}

func TestServerAcceptNegotiatesVersionAndReturnsSession(t *testing.T) {
	t.Parallel()
	clientConn, serverConn := newFakeConnPair()
	clientDone := connectOnPeer(t, clientConn, session.Config{})

	s := New([]wire.Version{wire.VersionIetfDraft14})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sess, err := s.Accept(ctx, serverConn)
	require.NoError(t, err)
	defer sess.Close(nil)

	assert.Equal(t, wire.VersionIetfDraft14, sess.Version())

	select {
	case clientSess := <-clientDone:
		defer clientSess.Close(nil)
		assert.Equal(t, wire.VersionIetfDraft14, clientSess.Version())
	case <-time.After(time.Second):
		t.Fatal("client handshake did not complete")
	}
}

func TestServerWithPublishServesSubscribeRequests(t *testing.T) {
	t.Parallel()
	bp := model.NewBroadcastProducer()
	tp := bp.CreateTrack("seconds")
	op := origin.NewProducer()
	require.NoError(t, op.PublishBroadcast(model.ParsePath("clock"), bp.Consume()))

	clientConn, serverConn := newFakeConnPair()
	clientDone := connectOnPeer(t, clientConn, session.Config{})

	s := New([]wire.Version{wire.VersionIetfDraft14}).WithPublish(op.Consume())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sess, err := s.Accept(ctx, serverConn)
	require.NoError(t, err)
	defer sess.Close(nil)

	clientSess := <-clientDone
	defer clientSess.Close(nil)

	tc, err := clientSess.RequestTrack(ctx, model.ParsePath("clock"), "seconds", model.Delivery{})
	require.NoError(t, err)

	group, err := tp.CreateGroup(0)
	require.NoError(t, err)
	require.NoError(t, group.WriteFrame([]byte("tick"), model.Time(1)))
	require.NoError(t, group.FinalFrame())

	g, err := tc.NextGroup(ctx)
	require.NoError(t, err)
	frame, err := g.NextFrame(ctx)
	require.NoError(t, err)
	data, err := frame.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tick", string(data))
}

func TestServeHandshakesEachAcceptedConnection(t *testing.T) {
	t.Parallel()
	goodClientConn, goodServerConn := newFakeConnPair()
	clientDone := connectOnPeer(t, goodClientConn, session.Config{})

	ln := newFakeListener(goodServerConn)
	s := New([]wire.Version{wire.VersionIetfDraft14})

	sessions := make(chan *session.Session, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go s.Serve(ctx, ln, func(sess *session.Session) { sessions <- sess })

	select {
	case sess := <-sessions:
		defer sess.Close(nil)
		assert.Equal(t, wire.VersionIetfDraft14, sess.Version())
	case <-time.After(time.Second):
		t.Fatal("Serve did not hand back a session for the accepted connection")
	}

	select {
	case clientSess := <-clientDone:
		defer clientSess.Close(nil)
	case <-time.After(time.Second):
		t.Fatal("client handshake did not complete")
	}
	ln.Close()
}
