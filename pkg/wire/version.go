// Package wire implements the MoQ control-stream codec: varint/path/bool
// primitives, a buffered Reader/Writer pair, and the message catalog for
// setup, announce, subscribe, and group-stream headers (spec §4.1, §6.1,
// §6.2).
package wire

// Version identifies a negotiated protocol dialect (spec §6.1). The wire
// value is the literal advertised in ClientSetup/ServerSetup.
type Version uint64

// Family reports which protocol family (ClientKind) negotiates this
// version, governing parameter encoding (spec §4.8.1).
type Family int

const (
	FamilyLite Family = iota
	FamilyIetf
)

const (
	// VersionUnset is the placeholder version a Reader/Writer carries
	// before the setup handshake has negotiated a real one (spec §4.1
	// "created with version () (unset)").
	VersionUnset Version = 0

	VersionLiteDraft01 Version = 0xff0bad01
	VersionLiteDraft02 Version = 0xff0bad02
	VersionLiteDraft03 Version = 0xff0bad03

	VersionIetfDraft14 Version = 0xff00000e
	VersionIetfDraft15 Version = 0xff00000f
)

// ClientKind is the sentinel byte written first on the bidi setup stream,
// selecting the protocol family before any version is known (spec §4.8.1).
type ClientKind byte

const (
	ClientKindLite ClientKind = 0x00
	ClientKindIetf ClientKind = 0x01
)

// Family reports the protocol family this version belongs to.
func (v Version) Family() Family {
	switch v {
	case VersionLiteDraft01, VersionLiteDraft02, VersionLiteDraft03:
		return FamilyLite
	default:
		return FamilyIetf
	}
}

// SupportsOrdered reports whether Subscribe/SubscribeUpdate carry the
// `ordered` flag at this version. The field has been present since the
// earliest Lite dialect (Draft01) and in every IETF dialect, so this is
// unconditionally true; it exists as a named predicate alongside
// SupportsMaxLatency so callers never need to special-case a family or
// draft number directly.
func (v Version) SupportsOrdered() bool {
	return true
}

// SupportsMaxLatency reports whether Subscribe/SubscribeUpdate/FrameHeader
// carry max_latency / delta Time fields at this version (Lite ≥03, all
// IETF; spec §6.2).
func (v Version) SupportsMaxLatency() bool {
	if v.Family() == FamilyIetf {
		return true
	}
	return v >= VersionLiteDraft03
}

// SubscribeOkEmpty reports whether SubscribeOk carries no body fields
// beyond the type tag (Lite ≥02).
func (v Version) SubscribeOkEmpty() bool {
	return v.Family() == FamilyLite && v >= VersionLiteDraft02
}

// preferred returns the highest version of want that's also present in
// have, or VersionUnset with ok=false if there's no overlap. Used by the
// server side of the handshake (spec §4.8.1 "picks the highest supported
// version present in versions").
func preferred(have, want []Version) (Version, bool) {
	var best Version
	found := false
	for _, w := range want {
		for _, h := range have {
			if h == w && (!found || w > best) {
				best, found = w, true
			}
		}
	}
	return best, found
}

// Negotiate picks the best mutually-supported version: the highest value
// present in both offered and supported.
func Negotiate(offered, supported []Version) (Version, bool) {
	return preferred(supported, offered)
}
