package model

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiresCreateFrameAcceptsAdvancingGroup(t *testing.T) {
	t.Parallel()
	e := NewExpires(NewSubscribers())
	require.NoError(t, e.CreateFrame(0, 100))
	require.NoError(t, e.CreateFrame(1, 50))

	group, instant := e.Snapshot()
	assert.Equal(t, uint64(1), group)
	assert.Equal(t, Time(100), instant)
}

func TestExpiresCreateFrameRejectsStaleWithinSameGroup(t *testing.T) {
	t.Parallel()
	subs := NewSubscribers()
	subs.Add(Delivery{MaxLatency: 10})
	e := NewExpires(subs)

	require.NoError(t, e.CreateFrame(0, 100))
	err := e.CreateFrame(0, 50)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestExpiresCreateFrameAcceptsWithinLatencyBudget(t *testing.T) {
	t.Parallel()
	subs := NewSubscribers()
	subs.Add(Delivery{MaxLatency: 1000})
	e := NewExpires(subs)

	require.NoError(t, e.CreateFrame(0, 100))
	require.NoError(t, e.CreateFrame(0, 90))
}

func TestExpiresAwaitExpiredUnblocksOnLaterGroup(t *testing.T) {
	t.Parallel()
	e := NewExpires(NewSubscribers())
	c := e.Consume()

	done := make(chan error, 1)
	go func() { done <- c.AwaitExpired(context.Background(), 5, 0) }()

	select {
	case <-done:
		t.Fatal("returned before group advanced")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, e.CreateFrame(5, 0))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("AwaitExpired never returned")
	}
}
