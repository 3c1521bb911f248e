package wire

import (
	"github.com/quic-go/quic-go/quicvarint"
)

// AppendVarint appends v to buf as a QUIC 62-bit variable-length integer
// (spec §4.1 "standard QUIC varint"), reusing quic-go's own encoder so the
// wire format matches byte-for-byte what the transport layer expects
// elsewhere on the same connection.
func AppendVarint(buf []byte, v uint64) []byte {
	return quicvarint.Append(buf, v)
}

// VarintLen reports the number of bytes AppendVarint would write for v.
func VarintLen(v uint64) int {
	return quicvarint.Len(v)
}
