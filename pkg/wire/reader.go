package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
	"github.com/zsiec/moqcore/pkg/model"
)

// Reader wraps a stream with an internal read-buffer and the primitive
// decoders every wire message is built from (spec §4.1). It is created
// with VersionUnset and upgraded in place via SetVersion once the setup
// handshake negotiates one, so subsequent messages on the same stream
// decode version-dependent fields correctly.
type Reader struct {
	br      *bufio.Reader
	version Version
	stream  io.Reader
}

// NewReader wraps stream with a fresh, version-unset Reader.
func NewReader(stream io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(stream, 4096), stream: stream}
}

// SetVersion upgrades the reader in place to decode version-dependent
// fields for v (spec §4.1 "with_version").
func (r *Reader) SetVersion(v Version) { r.version = v }

// Version reports the reader's currently negotiated version.
func (r *Reader) Version() Version { return r.version }

func decodeErr(field string, cause error) error {
	return model.NewError(model.CodeDecode, fmt.Errorf("%s: %w", field, cause))
}

// ReadByte reads a single raw byte.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, decodeErr("byte", err)
	}
	return b, nil
}

// ReadVarint reads a QUIC varint.
func (r *Reader) ReadVarint() (uint64, error) {
	v, err := quicvarint.Read(r.br)
	if err != nil {
		return 0, decodeErr("varint", err)
	}
	return v, nil
}

// ReadBool reads a one-byte boolean; any value other than 0 or 1 fails
// with CodeDecode (spec §4.1 "other values fail InvalidValue").
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, decodeErr("bool", fmt.Errorf("invalid bool byte %#x", b))
	}
}

// ReadExact reads exactly n bytes, failing with CodeDecode on short read.
func (r *Reader) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return nil, decodeErr("exact bytes", err)
	}
	return buf, nil
}

// Skip discards n bytes.
func (r *Reader) Skip(n int) error {
	_, err := io.CopyN(io.Discard, r.br, int64(n))
	if err != nil {
		return decodeErr("skip", err)
	}
	return nil
}

// ReadBytes reads a varint-length-prefixed byte string (spec §4.1
// "String / bytes").
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	return r.ReadExact(int(n))
}

// ReadString reads a varint-length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadPath reads a varint segment count followed by each segment as a
// length-prefixed byte string (spec §4.1 "Path").
func (r *Reader) ReadPath() (model.Path, error) {
	count, err := r.ReadVarint()
	if err != nil {
		return model.Path{}, err
	}
	segs := make([]string, count)
	for i := range segs {
		s, err := r.ReadString()
		if err != nil {
			return model.Path{}, decodeErr(fmt.Sprintf("path segment %d", i), err)
		}
		segs[i] = s
	}
	return model.NewPath(segs...), nil
}

// ReadTime reads a Time as a varint millisecond count.
func (r *Reader) ReadTime() (model.Time, error) {
	ms, err := r.ReadVarint()
	if err != nil {
		return 0, err
	}
	t, terr := model.TimeFromMillis(ms)
	if terr != nil {
		return 0, decodeErr("time", terr)
	}
	return t, nil
}

// Closed errors if any trailing bytes remain unread on the stream (spec
// §4.1 Reader.closed).
func (r *Reader) Closed() error {
	if _, err := r.br.Peek(1); errors.Is(err, io.EOF) {
		return nil
	}
	return decodeErr("closed", errors.New("trailing bytes after message boundary"))
}

// AtBoundary reports whether the stream is exhausted exactly at a message
// boundary (spec §4.1 "decode_maybe → None if stream closed at a message
// boundary").
func (r *Reader) AtBoundary() bool {
	_, err := r.br.Peek(1)
	return errors.Is(err, io.EOF)
}
