package session

import (
	"bytes"
	"context"
	"fmt"

	"github.com/zsiec/moqcore/pkg/model"
	"github.com/zsiec/moqcore/pkg/transport"
	"github.com/zsiec/moqcore/pkg/wire"
)

// wireReader builds a Reader over payload tagged with version, the shape
// every control-message decode in this package needs.
func wireReader(payload []byte, version wire.Version) *wire.Reader {
	r := wire.NewReader(bytes.NewReader(payload))
	r.SetVersion(version)
	return r
}

// familyVersion returns a representative version of kind's family, used to
// tag a Reader/Writer with the right Params encoding before the exact
// dialect is negotiated (spec §4.8.1 "This sentinel is per-family").
func familyVersion(kind wire.ClientKind) wire.Version {
	if kind == wire.ClientKindIetf {
		return wire.VersionIetfDraft14
	}
	return wire.VersionLiteDraft01
}

// clientHandshake opens the setup stream, writes the ClientKind sentinel
// followed by ClientSetup, and validates ServerSetup's chosen version is
// one this side offered (spec §4.8.1 client side).
func clientHandshake(ctx context.Context, conn transport.Connection, kind wire.ClientKind, offered []wire.Version, params wire.Params) (transport.Stream, wire.Version, wire.Params, error) {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, 0, wire.Params{}, fmt.Errorf("open setup stream: %w", err)
	}

	if _, err := stream.Write([]byte{byte(kind)}); err != nil {
		return nil, 0, wire.Params{}, fmt.Errorf("write client kind: %w", err)
	}

	family := familyVersion(kind)
	w := wire.NewWriter()
	w.SetVersion(family)
	wire.ClientSetup{Versions: offered, Parameters: params}.Encode(w)
	if err := wire.WriteControlMsg(stream, wire.MsgClientSetup, w.Bytes()); err != nil {
		return nil, 0, wire.Params{}, fmt.Errorf("write CLIENT_SETUP: %w", err)
	}

	msgType, payload, err := wire.ReadControlMsg(stream)
	if err != nil {
		return nil, 0, wire.Params{}, fmt.Errorf("read SERVER_SETUP: %w", err)
	}
	if msgType != wire.MsgServerSetup {
		return nil, 0, wire.Params{}, fmt.Errorf("expected SERVER_SETUP (0x%x), got 0x%x", wire.MsgServerSetup, msgType)
	}

	ss, err := wire.DecodeServerSetup(wireReader(payload, family))
	if err != nil {
		return nil, 0, wire.Params{}, fmt.Errorf("decode SERVER_SETUP: %w", err)
	}

	offeredOK := false
	for _, v := range offered {
		if v == ss.Version {
			offeredOK = true
			break
		}
	}
	if !offeredOK {
		return nil, 0, wire.Params{}, fmt.Errorf("server selected version %#x, not in offered set: %w", ss.Version, model.ErrVersion)
	}

	return stream, ss.Version, ss.Parameters, nil
}

// serverHandshake accepts the peer's setup stream, reads the ClientKind
// sentinel and ClientSetup, negotiates a version against supported, and
// replies with ServerSetup (spec §4.8.1 server side).
func serverHandshake(ctx context.Context, stream transport.Stream, supported []wire.Version, params wire.Params) (wire.Version, wire.Params, error) {
	var kindBuf [1]byte
	if _, err := stream.Read(kindBuf[:]); err != nil {
		return 0, wire.Params{}, fmt.Errorf("read client kind: %w", err)
	}
	kind := wire.ClientKind(kindBuf[0])
	family := familyVersion(kind)

	msgType, payload, err := wire.ReadControlMsg(stream)
	if err != nil {
		return 0, wire.Params{}, fmt.Errorf("read CLIENT_SETUP: %w", err)
	}
	if msgType != wire.MsgClientSetup {
		return 0, wire.Params{}, fmt.Errorf("expected CLIENT_SETUP (0x%x), got 0x%x", wire.MsgClientSetup, msgType)
	}
	cs, err := wire.DecodeClientSetup(wireReader(payload, family))
	if err != nil {
		return 0, wire.Params{}, fmt.Errorf("decode CLIENT_SETUP: %w", err)
	}

	var inFamily []wire.Version
	for _, v := range supported {
		if v.Family() == family {
			inFamily = append(inFamily, v)
		}
	}
	version, ok := wire.Negotiate(cs.Versions, inFamily)
	if !ok {
		return 0, wire.Params{}, fmt.Errorf("no version in common with client offer %v: %w", cs.Versions, model.ErrVersion)
	}

	w := wire.NewWriter()
	w.SetVersion(version)
	wire.ServerSetup{Version: version, Parameters: params}.Encode(w)
	if err := wire.WriteControlMsg(stream, wire.MsgServerSetup, w.Bytes()); err != nil {
		return 0, wire.Params{}, fmt.Errorf("write SERVER_SETUP: %w", err)
	}

	return version, cs.Parameters, nil
}
