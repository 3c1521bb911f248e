package wire

import (
	"github.com/zsiec/moqcore/pkg/model"
)

// Writer accumulates an encoded message into a byte buffer (spec §4.1).
// Unlike Reader, Writer is not itself a stream wrapper: callers obtain one
// per message, encode into it, then hand the resulting bytes to whatever
// transport stream is writing (a QUIC SendStream for control messages, or
// a group stream for frame headers) — mirroring the teacher's one-shot
// buffer-then-Write discipline for atomicity without external locking.
type Writer struct {
	version Version
	buf     []byte
}

// NewWriter creates a Writer at VersionUnset.
func NewWriter() *Writer {
	return &Writer{}
}

// SetVersion upgrades the writer in place, like Reader.SetVersion.
func (w *Writer) SetVersion(v Version) { w.version = v }

// Version reports the writer's currently negotiated version.
func (w *Writer) Version() Version { return w.version }

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Reset clears the buffer for reuse, keeping the negotiated version.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// WriteByte appends a single raw byte.
func (w *Writer) WriteByte(b byte) { w.buf = append(w.buf, b) }

// WriteVarint appends v as a QUIC varint.
func (w *Writer) WriteVarint(v uint64) { w.buf = AppendVarint(w.buf, v) }

// WriteBool appends a one-byte boolean.
func (w *Writer) WriteBool(b bool) {
	if b {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
}

// WriteBytes appends a varint-length-prefixed byte string.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteVarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString appends a varint-length-prefixed string.
func (w *Writer) WriteString(s string) { w.WriteBytes([]byte(s)) }

// WritePath appends a varint segment count followed by each
// length-prefixed segment.
func (w *Writer) WritePath(p model.Path) {
	segs := p.Segments()
	w.WriteVarint(uint64(len(segs)))
	for _, s := range segs {
		w.WriteString(s)
	}
}

// WriteTime appends a Time as a varint millisecond count.
func (w *Writer) WriteTime(t model.Time) { w.WriteVarint(t.AsMillis()) }
