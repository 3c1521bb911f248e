// Package origin implements the path-addressed broadcast directory
// (spec §3.1, §4.7): a producer side that publishes broadcasts and
// announces their lifecycle, and a consumer side that looks broadcasts up
// and observes the announcement stream, with scoped sub-views for
// clustering and prefix-based authorization.
package origin

import (
	"context"
	"sync"

	"github.com/zsiec/moqcore/pkg/model"
)

// Announcement reports a broadcast becoming active or ending at Path.
// Consumer is nil for an Ended announcement (spec §3.1, §4.7).
type Announcement struct {
	Path     model.Path
	Consumer *model.BroadcastConsumer
}

// Active reports whether this is an "active" (not "ended") announcement.
func (a Announcement) Active() bool { return a.Consumer != nil }

type maps struct {
	mu     sync.Mutex
	byPath map[string]*model.BroadcastConsumer
}

type log struct {
	entries []Announcement
}

// Producer is a path-addressed directory of broadcasts, announcing
// additions and removals to every subscriber (spec §3.1, §4.7).
type Producer struct {
	maps *maps
	log  *model.Producer[log]
	root model.Path
}

// NewProducer creates an empty origin directory.
func NewProducer() *Producer {
	return &Producer{
		maps: &maps{byPath: make(map[string]*model.BroadcastConsumer)},
		log:  model.NewProducer(log{}),
	}
}

// PublishBroadcast inserts consumer under path (offset by this origin's
// root, if scoped via WithRoot), emitting an active announcement to every
// subscriber. A goroutine watches the broadcast's Closed() and, once it
// resolves, removes the entry and emits the matching ended announcement
// (spec §4.7, §3.3). Decision (spec §9 open question): publishing a second
// broadcast at a path already in use fails with CodeDuplicate rather than
// silently replacing the first, for consistency with
// TrackProducer.CreateGroup's duplicate-sequence rejection.
func (p *Producer) PublishBroadcast(path model.Path, consumer *model.BroadcastConsumer) error {
	abs := p.root.Join(path)
	key := abs.String()

	p.maps.mu.Lock()
	if _, exists := p.maps.byPath[key]; exists {
		p.maps.mu.Unlock()
		return model.ErrDuplicate
	}
	p.maps.byPath[key] = consumer
	p.maps.mu.Unlock()

	p.log.Modify(func(s *log) error {
		s.entries = append(s.entries, Announcement{Path: abs, Consumer: consumer})
		return nil
	})

	go func() {
		consumer.Closed(context.Background())

		p.maps.mu.Lock()
		stillCurrent := p.maps.byPath[key] == consumer
		if stillCurrent {
			delete(p.maps.byPath, key)
		}
		p.maps.mu.Unlock()

		if stillCurrent {
			p.log.Modify(func(s *log) error {
				s.entries = append(s.entries, Announcement{Path: abs})
				return nil
			})
		}
	}()

	return nil
}

// WithRoot returns a scoped producer/consumer pair sharing this origin's
// directory: outgoing announcements through the returned consumer are
// relative to root.Join(prefix), and PublishBroadcast/ConsumeBroadcast
// through the returned pair automatically prepend it (spec §4.7, used by
// relay-cluster-style forwarding).
func (p *Producer) WithRoot(prefix model.Path) (*Producer, *Consumer) {
	scoped := &Producer{maps: p.maps, log: p.log.Clone(), root: p.root.Join(prefix)}
	return scoped, scoped.Consume()
}

// Consume returns a new Consumer observing this origin from now on.
func (p *Producer) Consume() *Consumer {
	return &Consumer{maps: p.maps, log: p.log.Consume(), root: p.root}
}

// Close closes the origin cleanly, terminating every subscriber's
// Announced() stream (spec §3.2 "Closed origins terminate each
// subscriber's stream").
func (p *Producer) Close() { p.log.Close(nil) }

// Abort closes the origin with the given error.
func (p *Producer) Abort(err *model.Error) { p.log.Close(err) }

// Consumer observes an origin's directory and announcement stream
// (spec §4.7).
type Consumer struct {
	maps    *maps
	log     *model.Consumer[log]
	index   int
	root    model.Path
	allowed []model.Path // non-nil: ConsumeOnly restriction
}

// ConsumeBroadcast performs an immediate lookup of path (offset by root),
// reporting false if absent or outside the allowed prefixes.
func (c *Consumer) ConsumeBroadcast(path model.Path) (*model.BroadcastConsumer, bool) {
	if !c.visible(path) {
		return nil, false
	}
	abs := c.root.Join(path)
	c.maps.mu.Lock()
	consumer, ok := c.maps.byPath[abs.String()]
	c.maps.mu.Unlock()
	return consumer, ok
}

// Announced blocks for the next announcement this consumer hasn't yet
// observed (relative to root, filtered by any ConsumeOnly restriction),
// reporting ok=false once the origin closes.
func (c *Consumer) Announced(ctx context.Context) (ann Announcement, ok bool, err error) {
	for {
		a, perr := model.Poll(ctx, c.log, func(s *log) (Announcement, bool) {
			if c.index < len(s.entries) {
				e := s.entries[c.index]
				c.index++
				return e, true
			}
			return Announcement{}, false
		})
		if perr != nil {
			return Announcement{}, false, perr
		}
		rel, matched := c.relative(a.Path)
		if !matched {
			continue
		}
		a.Path = rel
		return a, true, nil
	}
}

// relative strips root from abs and checks it against any ConsumeOnly
// restriction, reporting false if abs falls outside this view.
func (c *Consumer) relative(abs model.Path) (model.Path, bool) {
	rel, ok := abs.StripPrefix(c.root)
	if !ok {
		return model.Path{}, false
	}
	return rel, c.visible(rel)
}

// visible reports whether a root-relative path passes this consumer's
// ConsumeOnly restriction, if any.
func (c *Consumer) visible(rel model.Path) bool {
	if c.allowed == nil {
		return true
	}
	for _, prefix := range c.allowed {
		if rel.HasPrefix(prefix) {
			return true
		}
	}
	return false
}

// ConsumeOnly returns a filtered view that only sees paths matching one of
// the given prefixes (spec §4.7 authorization).
func (c *Consumer) ConsumeOnly(prefixes ...model.Path) *Consumer {
	allowed := append([]model.Path(nil), prefixes...)
	return &Consumer{maps: c.maps, log: c.log.Clone(), index: c.index, root: c.root, allowed: allowed}
}

// Clone returns a new Consumer sharing this origin, starting from this
// consumer's current read index.
func (c *Consumer) Clone() *Consumer {
	return &Consumer{maps: c.maps, log: c.log.Clone(), index: c.index, root: c.root, allowed: c.allowed}
}

// Closed blocks until the origin closes, returning the closing error.
func (c *Consumer) Closed(ctx context.Context) error {
	return c.log.Closed(ctx)
}
