package wire

import "bytes"

// newBytesReader wraps buf for Reader construction in tests.
func newBytesReader(buf []byte) *bytes.Reader {
	return bytes.NewReader(buf)
}
