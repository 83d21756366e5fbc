package codec

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/unkn0wn-root/telepeer/packet"
)

const nameCBOR = "cbor"

// CBOR is a Codec that serializes packet.Record as a CBOR map with the same
// four keys as the JSON codec, using fxamacker/cbor.
// The zero value is NOT ready to use. Construct with NewCBOR or MustCBOR.
//
// Use deterministic=true for canonical encoding (RFC 8949 Core Deterministic)
// when peers compare encoded bytes. Otherwise PreferredUnsortedEncOptions are
// used. Floats are only shortened when the conversion is lossless, so
// timestamps survive the round trip.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[packet.Record] = CBOR{}

// NewCBOR constructs a CBOR codec.
// Decoding rejects invalid UTF-8 text, unknown, duplicate or missing keys,
// keys that differ only in case, and trailing bytes.
func NewCBOR(deterministic bool) (CBOR, error) {
	var eo cbor.EncOptions
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	} else {
		eo = cbor.PreferredUnsortedEncOptions()
	}

	em, err := eo.EncMode()
	if err != nil {
		return CBOR{}, err
	}
	dm, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		UTF8:              cbor.UTF8RejectInvalid,
		FieldNameMatching: cbor.FieldNameMatchingCaseSensitive,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{enc: em, dec: dm}, nil
}

// MustCBOR is like NewCBOR but panics on error.
// Handy for package-level variables in tests.
func MustCBOR(deterministic bool) CBOR {
	c, err := NewCBOR(deterministic)
	if err != nil {
		panic(err)
	}
	return c
}

// Encode encodes r as CBOR using the configured EncMode.
func (c CBOR) Encode(r packet.Record) ([]byte, error) {
	if err := validate(nameCBOR, r); err != nil {
		return nil, err
	}
	b, err := c.enc.Marshal(toWire(r))
	return b, encodeErr(nameCBOR, err)
}

// Decode decodes b using the configured DecMode.
// Unmarshal already fails on trailing data after the first item.
func (c CBOR) Decode(b []byte) (packet.Record, error) {
	var w wireRecord
	if err := c.dec.Unmarshal(b, &w); err != nil {
		return packet.Record{}, &DecodingError{Codec: nameCBOR, Err: truncated(err)}
	}
	r, err := w.record()
	if err != nil {
		return packet.Record{}, &DecodingError{Codec: nameCBOR, Err: err}
	}
	return r, nil
}
