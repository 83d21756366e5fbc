package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/telepeer/packet"
)

const nameMsgpack = "msgpack"

// Msgpack is a Codec that serializes packet.Record as a msgpack map with the
// same four keys as the JSON codec, using vmihailenco/msgpack/v5.
// The zero value is ready to use.
//
// Decode wants exactly one map carrying every key once and nothing after it.
type Msgpack struct{}

var _ Codec[packet.Record] = Msgpack{}

func (Msgpack) Encode(r packet.Record) ([]byte, error) {
	if err := validate(nameMsgpack, r); err != nil {
		return nil, err
	}
	b, err := msgpack.Marshal(toWire(r))
	return b, encodeErr(nameMsgpack, err)
}

func (Msgpack) Decode(b []byte) (packet.Record, error) {
	if len(b) == 0 {
		return packet.Record{}, &DecodingError{Codec: nameMsgpack, Err: ErrTruncated}
	}
	rd := bytes.NewReader(b)
	r, err := decodeMsgpack(msgpack.NewDecoder(rd))
	if err == nil && rd.Len() > 0 {
		err = fmt.Errorf("%w: %d", ErrTrailingBytes, rd.Len())
	}
	if err != nil {
		return packet.Record{}, &DecodingError{Codec: nameMsgpack, Err: truncated(err)}
	}
	return r, nil
}

func decodeMsgpack(dec *msgpack.Decoder) (packet.Record, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return packet.Record{}, err
	}
	if n < 0 {
		return packet.Record{}, errors.New("nil instead of a map")
	}
	var w wireRecord
	seen := keySet{}
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return packet.Record{}, err
		}
		dst, ok := w.field(key)
		if !ok {
			return packet.Record{}, unknownKey(key)
		}
		if err := seen.add(key); err != nil {
			return packet.Record{}, err
		}
		if err := dec.Decode(dst); err != nil {
			return packet.Record{}, fmt.Errorf("key %q: %w", key, err)
		}
	}
	return w.record()
}
