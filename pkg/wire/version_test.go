package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNegotiatePicksHighestMutualVersion(t *testing.T) {
	t.Parallel()
	offered := []Version{VersionIetfDraft14, VersionIetfDraft15}
	supported := []Version{VersionIetfDraft14}
	v, ok := Negotiate(offered, supported)
	assert.True(t, ok)
	assert.Equal(t, VersionIetfDraft14, v)
}

func TestNegotiateNoOverlapFails(t *testing.T) {
	t.Parallel()
	_, ok := Negotiate([]Version{VersionIetfDraft15}, []Version{VersionLiteDraft01})
	assert.False(t, ok)
}

func TestVersionFamily(t *testing.T) {
	t.Parallel()
	assert.Equal(t, FamilyLite, VersionLiteDraft02.Family())
	assert.Equal(t, FamilyIetf, VersionIetfDraft14.Family())
}

func TestSupportsMaxLatencyGatedByLiteDraft(t *testing.T) {
	t.Parallel()
	assert.False(t, VersionLiteDraft01.SupportsMaxLatency())
	assert.False(t, VersionLiteDraft02.SupportsMaxLatency())
	assert.True(t, VersionLiteDraft03.SupportsMaxLatency())
	assert.True(t, VersionIetfDraft14.SupportsMaxLatency())
}

func TestSubscribeOkEmptyOnlyForLiteDraft02Plus(t *testing.T) {
	t.Parallel()
	assert.False(t, VersionLiteDraft01.SubscribeOkEmpty())
	assert.True(t, VersionLiteDraft02.SubscribeOkEmpty())
	assert.True(t, VersionLiteDraft03.SubscribeOkEmpty())
	assert.False(t, VersionIetfDraft14.SubscribeOkEmpty())
}
