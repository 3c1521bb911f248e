package wire

// Params carries the setup parameters common to both protocol families
// (spec §4.8.1): the peer's concurrent request/subscription-ID budget, an
// implementation-identifier string for diagnostics, and an opaque
// authorization token the core passes through uninterpreted (spec §6.4
// "the core accepts any value").
type Params struct {
	MaxRequestID   uint64
	Implementation string
	AuthToken      []byte
}

// IETF parameter keys (spec §6.1 "IETF uses a type-length-value bag").
// Odd keys are length-prefixed byte strings, even keys are varint values,
// mirroring the parity convention real MoQ Transport drafts use to let a
// decoder skip unknown parameters without a registry.
const (
	paramKeyMaxRequestID   uint64 = 0x02
	paramKeyImplementation uint64 = 0x05
	paramKeyAuthToken      uint64 = 0x07
)

// Encode appends this Params bag to w using the encoding appropriate to
// w's negotiated family: a fixed-order value sequence for Lite, a TLV bag
// for IETF (spec §4.8.1).
func (p Params) Encode(w *Writer) {
	if w.Version().Family() == FamilyLite {
		p.encodeLite(w)
		return
	}
	p.encodeIetf(w)
}

// encodeLite writes every field in fixed order; there is no key/length
// framing to skip, so every Lite version must encode (and every decoder
// must decode) exactly these three fields, in this order.
func (p Params) encodeLite(w *Writer) {
	w.WriteVarint(p.MaxRequestID)
	w.WriteString(p.Implementation)
	w.WriteBytes(p.AuthToken)
}

func (p Params) encodeIetf(w *Writer) {
	count := uint64(1)
	if p.Implementation != "" {
		count++
	}
	if len(p.AuthToken) > 0 {
		count++
	}
	w.WriteVarint(count)
	w.WriteVarint(paramKeyMaxRequestID)
	w.WriteVarint(p.MaxRequestID)
	if p.Implementation != "" {
		w.WriteVarint(paramKeyImplementation)
		w.WriteString(p.Implementation)
	}
	if len(p.AuthToken) > 0 {
		w.WriteVarint(paramKeyAuthToken)
		w.WriteBytes(p.AuthToken)
	}
}

// DecodeParams reads a Params bag from r using the encoding appropriate
// to r's negotiated family.
func DecodeParams(r *Reader) (Params, error) {
	if r.Version().Family() == FamilyLite {
		return decodeParamsLite(r)
	}
	return decodeParamsIetf(r)
}

func decodeParamsLite(r *Reader) (Params, error) {
	var p Params
	var err error
	if p.MaxRequestID, err = r.ReadVarint(); err != nil {
		return p, err
	}
	if p.Implementation, err = r.ReadString(); err != nil {
		return p, err
	}
	if p.AuthToken, err = r.ReadBytes(); err != nil {
		return p, err
	}
	return p, nil
}

// decodeParamsIetf reads the TLV bag, skipping any key it doesn't
// recognize by its parity-determined shape so future parameters don't
// break older decoders (spec §6.1).
func decodeParamsIetf(r *Reader) (Params, error) {
	var p Params
	count, err := r.ReadVarint()
	if err != nil {
		return p, err
	}
	for i := uint64(0); i < count; i++ {
		key, err := r.ReadVarint()
		if err != nil {
			return p, err
		}
		if key%2 == 1 {
			val, err := r.ReadBytes()
			if err != nil {
				return p, err
			}
			switch key {
			case paramKeyImplementation:
				p.Implementation = string(val)
			case paramKeyAuthToken:
				p.AuthToken = val
			}
			continue
		}
		val, err := r.ReadVarint()
		if err != nil {
			return p, err
		}
		switch key {
		case paramKeyMaxRequestID:
			p.MaxRequestID = val
		}
	}
	return p, nil
}
