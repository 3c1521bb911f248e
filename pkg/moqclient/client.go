// Package moqclient is the client-side builder (spec §4.9): dial a MoQ
// server over either carrier transport.Dialer supports, perform the setup
// handshake, and hand back a running *session.Session.
package moqclient

import (
	"context"
	"fmt"

	"github.com/zsiec/moqcore/pkg/model"
	"github.com/zsiec/moqcore/pkg/origin"
	"github.com/zsiec/moqcore/pkg/session"
	"github.com/zsiec/moqcore/pkg/transport"
	"github.com/zsiec/moqcore/pkg/wire"
)

// Client is a fluent builder for an outbound MoQ connection: with_publish
// and with_consume configure what the resulting session serves and
// mirrors, and Connect performs the handshake (spec §4.9 "Client builder").
type Client struct {
	dialer         transport.Dialer
	clientKind     wire.ClientKind
	versions       []wire.Version
	params         wire.Params
	publish        *origin.Consumer
	consume        *origin.Producer
	announcePrefix model.Path
	rateFn         func() uint64
	metrics        *session.Metrics
}

// New builds a Client that dials through d, offering versions in
// newest-first order for the given ClientKind family.
func New(d transport.Dialer, kind wire.ClientKind, versions []wire.Version) *Client {
	return &Client{dialer: d, clientKind: kind, versions: versions}
}

// WithParams sets the setup parameters sent to the server.
func (c *Client) WithParams(p wire.Params) *Client {
	c.params = p
	return c
}

// WithPublish makes the resulting session serve Subscribe/AnnouncePlease
// requests from publish.
func (c *Client) WithPublish(publish *origin.Consumer) *Client {
	c.publish = publish
	return c
}

// WithConsume makes the resulting session issue an AnnouncePlease for
// prefix and mirror every discovered broadcast into consume.
func (c *Client) WithConsume(prefix model.Path, consume *origin.Producer) *Client {
	c.consume = consume
	c.announcePrefix = prefix
	return c
}

// WithRateFn reports the session's current estimated send rate for the
// periodic SessionInfo cadence (spec §4.8.1).
func (c *Client) WithRateFn(fn func() uint64) *Client {
	c.rateFn = fn
	return c
}

// WithMetrics attaches an observability hook to the resulting session.
func (c *Client) WithMetrics(m *session.Metrics) *Client {
	c.metrics = m
	return c
}

// Connect dials addr, performs the client-side setup handshake, and
// returns once the peer has been handshaken (spec §4.9).
func (c *Client) Connect(ctx context.Context, addr string) (*session.Session, error) {
	conn, err := c.dialer.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return session.Connect(ctx, conn, session.Config{
		ClientKind:      c.clientKind,
		OfferedVersions: c.versions,
		Params:          c.params,
		Publish:         c.publish,
		Consume:         c.consume,
		AnnouncePrefix:  c.announcePrefix,
		RateFn:          c.rateFn,
		Metrics:         c.metrics,
	})
}
