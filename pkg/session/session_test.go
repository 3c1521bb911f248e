package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/moqcore/pkg/model"
	"github.com/zsiec/moqcore/pkg/origin"
	"github.com/zsiec/moqcore/pkg/wire"
)

// newSessionPair runs a real Connect/Accept handshake over a fakeConn pair
// and returns both resulting sessions, ready for subscribe/announce
// traffic. Callers should defer-close both.
func newSessionPair(t *testing.T, clientCfg, serverCfg Config) (client, server *Session) {
	t.Helper()
	clientConn, serverConn := newFakeConnPair()

	clientCfg.ClientKind = wire.ClientKindIetf
	clientCfg.OfferedVersions = []wire.Version{wire.VersionIetfDraft14}
	serverCfg.SupportedVersions = []wire.Version{wire.VersionIetfDraft14}

	type serverResult struct {
		sess *Session
		err  error
	}
	serverDone := make(chan serverResult, 1)
	go func() {
		s, err := Accept(context.Background(), serverConn, serverCfg)
		serverDone <- serverResult{s, err}
	}()

	var err error
	client, err = Connect(context.Background(), clientConn, clientCfg)
	require.NoError(t, err)

	select {
	case r := <-serverDone:
		require.NoError(t, r.err)
		server = r.sess
	case <-time.After(time.Second):
		t.Fatal("server handshake did not complete")
	}
	return client, server
}

func withTimeout(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 2*time.Second)
}

func TestRequestTrackDeliversFrames(t *testing.T) {
	t.Parallel()
	op := origin.NewProducer()
	bp := model.NewBroadcastProducer()
	tp := bp.CreateTrack("seconds")
	require.NoError(t, op.PublishBroadcast(model.ParsePath("clock"), bp.Consume()))

	client, server := newSessionPair(t, Config{}, Config{Publish: op.Consume()})
	defer client.Close(nil)
	defer server.Close(nil)

	ctx, cancel := withTimeout(t)
	defer cancel()

	tc, err := client.RequestTrack(ctx, model.ParsePath("clock"), "seconds", model.Delivery{})
	require.NoError(t, err)

	group, err := tp.CreateGroup(0)
	require.NoError(t, err)
	require.NoError(t, group.WriteFrame([]byte("hello"), model.Time(100)))
	require.NoError(t, group.WriteFrame([]byte("world"), model.Time(150)))
	require.NoError(t, group.FinalFrame())

	g, err := tc.NextGroup(ctx)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, uint64(0), g.Info.Sequence)

	first, err := g.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(first))

	second, err := g.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "world", string(second))

	end, err := g.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Nil(t, end)
}

func TestRequestTrackUnknownBroadcastFails(t *testing.T) {
	t.Parallel()
	op := origin.NewProducer()
	client, server := newSessionPair(t, Config{}, Config{Publish: op.Consume()})
	defer client.Close(nil)
	defer server.Close(nil)

	ctx, cancel := withTimeout(t)
	defer cancel()

	_, err := client.RequestTrack(ctx, model.ParsePath("missing"), "track", model.Delivery{})
	assert.Error(t, err)
}

func TestAnnounceDiscoversRemoteBroadcastAndProxiesSubscribe(t *testing.T) {
	t.Parallel()
	pub := origin.NewProducer()
	bp := model.NewBroadcastProducer()
	tp := bp.CreateTrack("seconds")
	require.NoError(t, pub.PublishBroadcast(model.ParsePath("clock"), bp.Consume()))

	sub := origin.NewProducer()

	client, server := newSessionPair(t,
		Config{Consume: sub, AnnouncePrefix: model.Path{}},
		Config{Publish: pub.Consume()},
	)
	defer client.Close(nil)
	defer server.Close(nil)

	ctx, cancel := withTimeout(t)
	defer cancel()

	watch := sub.Consume()
	var proxied *model.BroadcastConsumer
	for {
		ann, ok, err := watch.Announced(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		if ann.Active() && ann.Path.Equal(model.ParsePath("clock")) {
			proxied = ann.Consumer
			break
		}
	}
	require.NotNil(t, proxied)

	tc := proxied.SubscribeTrack(ctx, "seconds", model.Delivery{})

	group, err := tp.CreateGroup(0)
	require.NoError(t, err)
	require.NoError(t, group.WriteFrame([]byte("tick"), model.Time(1)))
	require.NoError(t, group.FinalFrame())

	g, err := tc.NextGroup(ctx)
	require.NoError(t, err)
	require.NotNil(t, g)
	payload, err := g.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tick", string(payload))
}

func TestAnnounceEndedRemovesProxyBroadcast(t *testing.T) {
	t.Parallel()
	pub := origin.NewProducer()
	bp := model.NewBroadcastProducer()
	require.NoError(t, pub.PublishBroadcast(model.ParsePath("live"), bp.Consume()))

	sub := origin.NewProducer()
	client, server := newSessionPair(t,
		Config{Consume: sub, AnnouncePrefix: model.Path{}},
		Config{Publish: pub.Consume()},
	)
	defer client.Close(nil)
	defer server.Close(nil)

	ctx, cancel := withTimeout(t)
	defer cancel()

	watch := sub.Consume()
	ann, ok, err := watch.Announced(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, ann.Active())

	bp.Close()

	ann, ok, err = watch.Announced(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, ann.Active())
	assert.True(t, ann.Path.Equal(model.ParsePath("live")))
}

func TestSessionCloseUnblocksClosed(t *testing.T) {
	t.Parallel()
	client, server := newSessionPair(t, Config{}, Config{})
	defer server.Close(nil)

	client.Close(model.NewError(model.CodeApp, nil))

	ctx, cancel := withTimeout(t)
	defer cancel()
	err := client.Closed(ctx)
	require.Error(t, err)
}
