package model

import (
	"context"
	"sync"
)

// state is the shared, reference-counted cell backing every Producer/Consumer
// pair in this package. Producer and Consumer are roles over the same cell,
// not ownership-distinct types, so "no more producers" and "no more
// consumers" can be detected deterministically regardless of which side's
// last handle is dropped (spec §9 "Cyclic ownership").
//
// The discipline mirrors the Rust original's RwLock + waiter-list: mutate
// under the lock, release it, then wake waiters. Go has no RAII guard, so
// the wake is driven by closing and replacing changedCh while still holding
// the lock; anyone blocked on the old channel wakes as soon as they can
// acquire the lock again.
type state[T any] struct {
	mu        sync.Mutex
	value     T
	closed    *Error
	producers int
	consumers int
	changedCh chan struct{}
}

func newState[T any](value T) *state[T] {
	return &state[T]{
		value:     value,
		producers: 1,
		changedCh: make(chan struct{}),
	}
}

// notifyLocked closes and replaces changedCh. Caller must hold s.mu.
func (s *state[T]) notifyLocked() {
	close(s.changedCh)
	s.changedCh = make(chan struct{})
}

// Producer is the write side of a shared state cell. It is cheaply clonable
// via Clone; every clone shares the same underlying cell.
type Producer[T any] struct {
	s *state[T]
}

// NewProducer creates a fresh state cell seeded with value, returning the
// sole initial Producer handle (producers=1, consumers=0).
func NewProducer[T any](value T) *Producer[T] {
	return &Producer[T]{s: newState(value)}
}

// Clone returns a new Producer handle sharing this cell, incrementing the
// producer refcount.
func (p *Producer[T]) Clone() *Producer[T] {
	p.s.mu.Lock()
	p.s.producers++
	p.s.mu.Unlock()
	return &Producer[T]{s: p.s}
}

// Consume returns a new Consumer handle over this cell, incrementing the
// consumer refcount. The new consumer observes all future mutations from
// this point forward; it does not replay anything already consumed by
// other handles.
func (p *Producer[T]) Consume() *Consumer[T] {
	p.s.mu.Lock()
	p.s.consumers++
	p.s.mu.Unlock()
	return &Consumer[T]{s: p.s}
}

// Modify runs fn with exclusive access to the value. If fn returns a non-nil
// error, the state is NOT marked modified and waiters are not woken — use
// Close for that. If the cell is already closed, fn is not called and the
// closing error is returned instead.
func (p *Producer[T]) Modify(fn func(*T) error) error {
	p.s.mu.Lock()
	if p.s.closed != nil {
		err := p.s.closed
		p.s.mu.Unlock()
		return err
	}
	err := fn(&p.s.value)
	p.s.mu.Unlock()
	if err == nil {
		p.s.mu.Lock()
		p.s.notifyLocked()
		p.s.mu.Unlock()
	}
	return err
}

// View runs fn with read-only access to the value without requiring a
// Consumer handle; used by producers that need to inspect their own state.
func (p *Producer[T]) View(fn func(*T)) {
	p.s.mu.Lock()
	fn(&p.s.value)
	p.s.mu.Unlock()
}

// Close transitions the cell to closed with the given error. Idempotent:
// the first caller (whether Close or an internal abort) wins; subsequent
// calls observe the already-closed state unchanged, matching the
// close()/abort() race rule in spec §5 "Cancellation semantics".
func (p *Producer[T]) Close(err *Error) {
	if err == nil {
		err = ErrClosed
	}
	p.s.mu.Lock()
	if p.s.closed == nil {
		p.s.closed = err
		p.s.notifyLocked()
	}
	p.s.mu.Unlock()
}

// closedErr returns the current closing error, or nil if still open.
func (p *Producer[T]) closedErr() *Error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return p.s.closed
}

// Unused blocks until this cell has no live consumers, or returns the
// closing error if the cell closes first. Used by demand-driven track
// creation to clean up unwanted requested-track entries (spec §4.6).
func (p *Producer[T]) Unused(ctx context.Context) error {
	for {
		p.s.mu.Lock()
		if p.s.consumers == 0 {
			p.s.mu.Unlock()
			return nil
		}
		if p.s.closed != nil {
			err := p.s.closed
			p.s.mu.Unlock()
			return err
		}
		ch := p.s.changedCh
		p.s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return NewError(CodeCancel, ctx.Err())
		}
	}
}

// Closed blocks until the cell closes, returning the closing error.
func (p *Producer[T]) Closed(ctx context.Context) error {
	for {
		p.s.mu.Lock()
		if p.s.closed != nil {
			err := p.s.closed
			p.s.mu.Unlock()
			return err
		}
		ch := p.s.changedCh
		p.s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return NewError(CodeCancel, ctx.Err())
		}
	}
}

// release decrements the producer refcount; when it reaches zero without an
// explicit close, the cell transitions to closed-with-Dropped (spec §3.3
// Track closure). Callers that expose explicit ownership (e.g. via a
// finalizer-free API) call this from their own Close/Drop-equivalent.
func (p *Producer[T]) release() {
	p.s.mu.Lock()
	p.s.producers--
	if p.s.producers == 0 && p.s.closed == nil {
		p.s.closed = ErrDropped
		p.s.notifyLocked()
	}
	p.s.mu.Unlock()
}

// Consumer is the read side of a shared state cell. It is cheaply clonable;
// each clone has independent position state layered on top by the caller
// (Consumer itself carries none beyond the shared cell).
type Consumer[T any] struct {
	s *state[T]
}

// Clone returns a new Consumer handle sharing this cell, incrementing the
// consumer refcount.
func (c *Consumer[T]) Clone() *Consumer[T] {
	c.s.mu.Lock()
	c.s.consumers++
	c.s.mu.Unlock()
	return &Consumer[T]{s: c.s}
}

// release decrements the consumer refcount and wakes waiters (producers
// awaiting Unused()) once it reaches zero.
func (c *Consumer[T]) release() {
	c.s.mu.Lock()
	c.s.consumers--
	if c.s.consumers == 0 {
		c.s.notifyLocked()
	}
	c.s.mu.Unlock()
}

// View runs fn with read-only access to the value.
func (c *Consumer[T]) View(fn func(*T)) {
	c.s.mu.Lock()
	fn(&c.s.value)
	c.s.mu.Unlock()
}

// Closed blocks until the cell closes, returning the closing error.
func (c *Consumer[T]) Closed(ctx context.Context) error {
	for {
		c.s.mu.Lock()
		if c.s.closed != nil {
			err := c.s.closed
			c.s.mu.Unlock()
			return err
		}
		ch := c.s.changedCh
		c.s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return NewError(CodeCancel, ctx.Err())
		}
	}
}

// Poll blocks until fn(value) reports ready, the cell closes, or ctx is
// done. fn is invoked under the read lock each time the cell changes (or
// once up front); it should be side-effect free aside from mutating
// caller-owned cursor state passed in via closure capture.
func Poll[T, R any](ctx context.Context, c *Consumer[T], fn func(*T) (R, bool)) (R, error) {
	var zero R
	for {
		c.s.mu.Lock()
		res, ready := fn(&c.s.value)
		if ready {
			c.s.mu.Unlock()
			return res, nil
		}
		if c.s.closed != nil {
			err := c.s.closed
			c.s.mu.Unlock()
			return zero, err
		}
		ch := c.s.changedCh
		c.s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return zero, NewError(CodeCancel, ctx.Err())
		}
	}
}

// PollProducer is like Poll but evaluated against a Producer handle, used
// when the same side that writes also needs to block on its own state
// (e.g. a publisher awaiting expiry before writing the next frame).
func PollProducer[T, R any](ctx context.Context, p *Producer[T], fn func(*T) (R, bool)) (R, error) {
	var zero R
	for {
		p.s.mu.Lock()
		res, ready := fn(&p.s.value)
		if ready {
			p.s.mu.Unlock()
			return res, nil
		}
		if p.s.closed != nil {
			err := p.s.closed
			p.s.mu.Unlock()
			return zero, err
		}
		ch := p.s.changedCh
		p.s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return zero, NewError(CodeCancel, ctx.Err())
		}
	}
}
