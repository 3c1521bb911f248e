package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlMsgRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WriteControlMsg(&buf, MsgSubscribe, []byte("hello")))

	msgType, payload, err := ReadControlMsg(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgSubscribe, msgType)
	assert.Equal(t, "hello", string(payload))
}

func TestControlMsgEmptyPayload(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WriteControlMsg(&buf, MsgSessionInfo, nil))

	msgType, payload, err := ReadControlMsg(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgSessionInfo, msgType)
	assert.Empty(t, payload)
}

func TestControlMsgMultipleMessagesOnSameStream(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WriteControlMsg(&buf, MsgAnnounce, []byte("one")))
	require.NoError(t, WriteControlMsg(&buf, MsgAnnounce, []byte("two")))

	_, p1, err := ReadControlMsg(&buf)
	require.NoError(t, err)
	assert.Equal(t, "one", string(p1))

	_, p2, err := ReadControlMsg(&buf)
	require.NoError(t, err)
	assert.Equal(t, "two", string(p2))
}

func TestReadControlMsgFailsOnTruncatedStream(t *testing.T) {
	t.Parallel()
	buf := AppendVarint(nil, MsgSubscribe)
	_, _, err := ReadControlMsg(bytes.NewReader(buf))
	assert.Error(t, err)
}
