package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/unkn0wn-root/telepeer/packet"
)

const nameJSON = "json"

// JSON is the structured text codec for packet.Record.
// The zero value is ready to use.
//
// Wire form: {"sequence":0,"timestamp":1700000000,"label":"demo","samples":[1,2,3]}
// Keys match exactly. Unknown, duplicate or missing keys and trailing data
// are decode errors.
type JSON struct{}

var _ Codec[packet.Record] = JSON{}

func (JSON) Encode(r packet.Record) ([]byte, error) {
	if err := validate(nameJSON, r); err != nil {
		return nil, err
	}
	b, err := json.Marshal(toWire(r))
	return b, encodeErr(nameJSON, err)
}

func (JSON) Decode(b []byte) (packet.Record, error) {
	if !utf8.Valid(b) {
		return packet.Record{}, &DecodingError{Codec: nameJSON, Err: errors.New("input is not valid UTF-8")}
	}
	r, err := decodeJSON(json.NewDecoder(bytes.NewReader(b)))
	if err != nil {
		return packet.Record{}, &DecodingError{Codec: nameJSON, Err: truncated(err)}
	}
	return r, nil
}

// decodeJSON walks the object key by key; encoding/json alone would fold
// key case and let a repeated key win.
func decodeJSON(dec *json.Decoder) (packet.Record, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return packet.Record{}, err
	}
	var w wireRecord
	seen := keySet{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return packet.Record{}, err
		}
		key, _ := tok.(string)
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
	if err := expectDelim(dec, '}'); err != nil {
		return packet.Record{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return packet.Record{}, ErrTrailingBytes
	}
	return w.record()
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
