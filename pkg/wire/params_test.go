package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsRoundTripLite(t *testing.T) {
	t.Parallel()
	want := Params{MaxRequestID: 10, Implementation: "moqcore", AuthToken: []byte("tok")}
	w := NewWriter()
	w.SetVersion(VersionLiteDraft03)
	want.Encode(w)

	r := NewReader(newBytesReader(w.Bytes()))
	r.SetVersion(VersionLiteDraft03)
	got, err := DecodeParams(r)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParamsRoundTripIetfSkipsEmptyFields(t *testing.T) {
	t.Parallel()
	want := Params{MaxRequestID: 99}
	w := NewWriter()
	w.SetVersion(VersionIetfDraft14)
	want.Encode(w)

	r := NewReader(newBytesReader(w.Bytes()))
	r.SetVersion(VersionIetfDraft14)
	got, err := DecodeParams(r)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParamsRoundTripIetfWithAllFields(t *testing.T) {
	t.Parallel()
	want := Params{MaxRequestID: 5, Implementation: "moqcore", AuthToken: []byte("secret")}
	w := NewWriter()
	w.SetVersion(VersionIetfDraft15)
	want.Encode(w)

	r := NewReader(newBytesReader(w.Bytes()))
	r.SetVersion(VersionIetfDraft15)
	got, err := DecodeParams(r)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParamsIetfUnknownKeyIsSkipped(t *testing.T) {
	t.Parallel()
	w := NewWriter()
	w.SetVersion(VersionIetfDraft14)
	w.WriteVarint(2)
	w.WriteVarint(0x02)
	w.WriteVarint(7)
	w.WriteVarint(0x98) // unknown even key: varint-valued, should be skipped
	w.WriteVarint(42)

	r := NewReader(newBytesReader(w.Bytes()))
	r.SetVersion(VersionIetfDraft14)
	got, err := DecodeParams(r)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.MaxRequestID)
}
