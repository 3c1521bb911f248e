package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameWriteChunkRejectsOversize(t *testing.T) {
	t.Parallel()
	fp := NewFrameProducer(Frame{Size: 3})
	err := fp.WriteChunk([]byte("abcd"))
	assert.ErrorIs(t, err, ErrWrongSize)
}

func TestFrameFinalChunkRejectsShortWrite(t *testing.T) {
	t.Parallel()
	fp := NewFrameProducer(Frame{Size: 5})
	require.NoError(t, fp.WriteChunk([]byte("ab")))
	assert.ErrorIs(t, fp.FinalChunk(), ErrWrongSize)
}

func TestFrameReadAllConcatenatesChunks(t *testing.T) {
	t.Parallel()
	fp := NewFrameProducer(Frame{Size: 5})
	require.NoError(t, fp.WriteChunk([]byte("ab")))
	require.NoError(t, fp.WriteChunk([]byte("cde")))
	require.NoError(t, fp.FinalChunk())

	fc := fp.Consume()
	ctx := context.Background()
	all, err := fc.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abcde", string(all))
}

func TestFrameReadChunkReturnsEachChunkThenNil(t *testing.T) {
	t.Parallel()
	fp := NewFrameProducer(Frame{Size: 3})
	require.NoError(t, fp.WriteChunk([]byte("a")))
	require.NoError(t, fp.WriteChunk([]byte("bc")))

	fc := fp.Consume()
	ctx := context.Background()

	c1, err := fc.ReadChunk(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", string(c1))

	c2, err := fc.ReadChunk(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bc", string(c2))

	end, err := fc.ReadChunk(ctx)
	require.NoError(t, err)
	assert.Nil(t, end)
}

func TestFrameCloneIndependentCursor(t *testing.T) {
	t.Parallel()
	fp := NewFrameProducer(Frame{Size: 2})
	require.NoError(t, fp.WriteChunk([]byte("a")))
	require.NoError(t, fp.WriteChunk([]byte("b")))

	fc := fp.Consume()
	ctx := context.Background()
	_, err := fc.ReadChunk(ctx)
	require.NoError(t, err)

	clone := fc.Clone()
	got, err := clone.ReadChunk(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))

	// Original's cursor is untouched by the clone's read.
	got2, err := fc.ReadChunk(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", string(got2))
}

func TestFrameAbortSurfacesToConsumer(t *testing.T) {
	t.Parallel()
	fp := NewFrameProducer(Frame{Size: 2})
	fc := fp.Consume()
	fp.Abort(ErrCancel)

	_, err := fc.ReadChunk(context.Background())
	assert.ErrorIs(t, err, ErrCancel)
}
