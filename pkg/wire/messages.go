package wire

import "github.com/zsiec/moqcore/pkg/model"

// Message type IDs, varint-prefixed on control streams (spec §6.2).
const (
	MsgClientSetup     uint64 = 0x20
	MsgServerSetup     uint64 = 0x21
	MsgSessionInfo     uint64 = 0x22
	MsgAnnouncePlease  uint64 = 0x23
	MsgAnnounceInit    uint64 = 0x24
	MsgAnnounce        uint64 = 0x25
	MsgSubscribe       uint64 = 0x26
	MsgSubscribeOk     uint64 = 0x27
	MsgSubscribeUpdate uint64 = 0x28
)

// DataType tags a unidirectional stream's payload kind (spec §4.8.2).
const (
	DataTypeGroup uint64 = 0x01
)

// AnnounceState distinguishes Active from Ended within the Announce
// tagged union (spec §6.2).
type AnnounceState uint8

const (
	AnnounceActive AnnounceState = iota
	AnnounceEnded
)

// ClientSetup is the first message sent by a MoQ client (spec §6.2).
type ClientSetup struct {
	Versions   []Version
	Parameters Params
}

func (m ClientSetup) Encode(w *Writer) {
	w.WriteVarint(uint64(len(m.Versions)))
	for _, v := range m.Versions {
		w.WriteVarint(uint64(v))
	}
	m.Parameters.Encode(w)
}

func DecodeClientSetup(r *Reader) (ClientSetup, error) {
	var m ClientSetup
	n, err := r.ReadVarint()
	if err != nil {
		return m, err
	}
	m.Versions = make([]Version, n)
	for i := range m.Versions {
		v, err := r.ReadVarint()
		if err != nil {
			return m, err
		}
		m.Versions[i] = Version(v)
	}
	m.Parameters, err = DecodeParams(r)
	return m, err
}

// ServerSetup is the handshake response (spec §6.2).
type ServerSetup struct {
	Version    Version
	Parameters Params
}

func (m ServerSetup) Encode(w *Writer) {
	w.WriteVarint(uint64(m.Version))
	m.Parameters.Encode(w)
}

func DecodeServerSetup(r *Reader) (ServerSetup, error) {
	var m ServerSetup
	v, err := r.ReadVarint()
	if err != nil {
		return m, err
	}
	m.Version = Version(v)
	m.Parameters, err = DecodeParams(r)
	return m, err
}

// SessionInfo carries the periodic estimated-send-rate update (spec
// §4.8.1, §6.2).
type SessionInfo struct {
	BitrateBps uint64
}

func (m SessionInfo) Encode(w *Writer) { w.WriteVarint(m.BitrateBps) }

func DecodeSessionInfo(r *Reader) (SessionInfo, error) {
	v, err := r.ReadVarint()
	return SessionInfo{BitrateBps: v}, err
}

// AnnouncePlease opens an announce stream for everything under Prefix
// (spec §6.2).
type AnnouncePlease struct {
	Prefix model.Path
}

func (m AnnouncePlease) Encode(w *Writer) { w.WritePath(m.Prefix) }

func DecodeAnnouncePlease(r *Reader) (AnnouncePlease, error) {
	p, err := r.ReadPath()
	return AnnouncePlease{Prefix: p}, err
}

// AnnounceInit is the snapshot of active broadcasts under a prefix,
// relative to it (spec §6.2).
type AnnounceInit struct {
	Suffixes []model.Path
}

func (m AnnounceInit) Encode(w *Writer) {
	w.WriteVarint(uint64(len(m.Suffixes)))
	for _, s := range m.Suffixes {
		w.WritePath(s)
	}
}

func DecodeAnnounceInit(r *Reader) (AnnounceInit, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return AnnounceInit{}, err
	}
	suffixes := make([]model.Path, n)
	for i := range suffixes {
		if suffixes[i], err = r.ReadPath(); err != nil {
			return AnnounceInit{}, err
		}
	}
	return AnnounceInit{Suffixes: suffixes}, nil
}

// Announce is a single active/ended update as the origin evolves (spec
// §6.2 tagged union).
type Announce struct {
	State  AnnounceState
	Suffix model.Path
}

func (m Announce) Encode(w *Writer) {
	w.WriteByte(byte(m.State))
	w.WritePath(m.Suffix)
}

func DecodeAnnounce(r *Reader) (Announce, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return Announce{}, err
	}
	suffix, err := r.ReadPath()
	if err != nil {
		return Announce{}, err
	}
	return Announce{State: AnnounceState(tag), Suffix: suffix}, nil
}

// Subscribe opens a subscription to a track within a broadcast (spec
// §6.2, §4.8.2).
type Subscribe struct {
	ID         uint64
	Broadcast  model.Path
	Track      string
	Priority   uint8
	MaxLatency model.Time
	Ordered    bool
}

func (m Subscribe) Encode(w *Writer) {
	w.WriteVarint(m.ID)
	w.WritePath(m.Broadcast)
	w.WriteString(m.Track)
	w.WriteByte(m.Priority)
	if w.Version().SupportsMaxLatency() {
		w.WriteTime(m.MaxLatency)
	}
	w.WriteBool(m.Ordered)
}

func DecodeSubscribe(r *Reader) (Subscribe, error) {
	var m Subscribe
	var err error
	if m.ID, err = r.ReadVarint(); err != nil {
		return m, err
	}
	if m.Broadcast, err = r.ReadPath(); err != nil {
		return m, err
	}
	if m.Track, err = r.ReadString(); err != nil {
		return m, err
	}
	pb, err := r.ReadByte()
	if err != nil {
		return m, err
	}
	m.Priority = pb
	if r.Version().SupportsMaxLatency() {
		if m.MaxLatency, err = r.ReadTime(); err != nil {
			return m, err
		}
	}
	if m.Ordered, err = r.ReadBool(); err != nil {
		return m, err
	}
	return m, nil
}

// SubscribeOk reports the delivery terms the publisher actually honors,
// which may differ from what was requested (spec §6.2).
type SubscribeOk struct {
	Priority   uint8
	MaxLatency model.Time
	Ordered    bool
}

func (m SubscribeOk) Encode(w *Writer) {
	if w.Version().SubscribeOkEmpty() {
		return
	}
	if w.Version().Family() == FamilyLite {
		// Lite Draft01: priority only.
		w.WriteByte(m.Priority)
		return
	}
	// IETF: priority, max_latency and ordered written as plain fields in
	// that order; they are not wrapped in a parameters TLV bag.
	w.WriteByte(m.Priority)
	w.WriteTime(m.MaxLatency)
	w.WriteBool(m.Ordered)
}

func DecodeSubscribeOk(r *Reader) (SubscribeOk, error) {
	var m SubscribeOk
	if r.Version().SubscribeOkEmpty() {
		return m, nil
	}
	p, err := r.ReadByte()
	if err != nil {
		return m, err
	}
	m.Priority = p
	if r.Version().Family() == FamilyLite {
		return m, nil
	}
	if m.MaxLatency, err = r.ReadTime(); err != nil {
		return m, err
	}
	if m.Ordered, err = r.ReadBool(); err != nil {
		return m, err
	}
	return m, nil
}

// SubscribeUpdate changes a live subscription's terms (spec §6.2, §4.8.2).
type SubscribeUpdate struct {
	Priority   uint8
	MaxLatency model.Time
	Ordered    bool
}

func (m SubscribeUpdate) Encode(w *Writer) {
	w.WriteByte(m.Priority)
	if w.Version().SupportsMaxLatency() {
		w.WriteTime(m.MaxLatency)
	}
	w.WriteBool(m.Ordered)
}

func DecodeSubscribeUpdate(r *Reader) (SubscribeUpdate, error) {
	var m SubscribeUpdate
	p, err := r.ReadByte()
	if err != nil {
		return m, err
	}
	m.Priority = p
	if r.Version().SupportsMaxLatency() {
		if m.MaxLatency, err = r.ReadTime(); err != nil {
			return m, err
		}
	}
	if m.Ordered, err = r.ReadBool(); err != nil {
		return m, err
	}
	return m, nil
}

// GroupHeader begins a unidirectional group stream's payload, after the
// DataType::Group tag (spec §4.8.2 step 2).
type GroupHeader struct {
	Subscribe uint64
	Sequence  uint64
}

func (m GroupHeader) Encode(w *Writer) {
	w.WriteVarint(DataTypeGroup)
	w.WriteVarint(m.Subscribe)
	w.WriteVarint(m.Sequence)
}

func DecodeGroupHeader(r *Reader) (GroupHeader, error) {
	tag, err := r.ReadVarint()
	if err != nil {
		return GroupHeader{}, err
	}
	if tag != DataTypeGroup {
		return GroupHeader{}, decodeErr("group header", errUnexpectedDataType(tag))
	}
	sub, err := r.ReadVarint()
	if err != nil {
		return GroupHeader{}, err
	}
	seq, err := r.ReadVarint()
	if err != nil {
		return GroupHeader{}, err
	}
	return GroupHeader{Subscribe: sub, Sequence: seq}, nil
}

// FrameHeader precedes each frame's payload within a group stream. Delta
// is the increment from the previous frame's instant in the same group
// stream; the first frame's delta is absolute from Time::ZERO (spec
// §4.8.2 step 3).
type FrameHeader struct {
	Delta model.Time
	Size  uint64
}

func (m FrameHeader) Encode(w *Writer) {
	if w.Version().SupportsMaxLatency() {
		w.WriteTime(m.Delta)
	}
	w.WriteVarint(m.Size)
}

func DecodeFrameHeader(r *Reader) (FrameHeader, error) {
	var m FrameHeader
	var err error
	if r.Version().SupportsMaxLatency() {
		if m.Delta, err = r.ReadTime(); err != nil {
			return m, err
		}
	}
	if m.Size, err = r.ReadVarint(); err != nil {
		return m, err
	}
	return m, nil
}

type unexpectedDataType uint64

func (e unexpectedDataType) Error() string { return "unexpected stream data type" }

func errUnexpectedDataType(tag uint64) error { return unexpectedDataType(tag) }
