package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/unkn0wn-root/telepeer/packet"
)

const (
	keySequence  = "sequence"
	keyTimestamp = "timestamp"
	keyLabel     = "label"
	keySamples   = "samples"
)

// wireRecord is the four-key object the JSON, msgpack and CBOR codecs
// share. Pointers let Decode tell a missing key from a zero value.
type wireRecord struct {
	Sequence  *uint64   `json:"sequence" msgpack:"sequence" cbor:"sequence"`
	Timestamp *float64  `json:"timestamp" msgpack:"timestamp" cbor:"timestamp"`
	Label     *string   `json:"label" msgpack:"label" cbor:"label"`
	Samples   *[]uint32 `json:"samples" msgpack:"samples" cbor:"samples"`
}

// toWire never leaves samples nil, so an empty record still carries all
// four keys.
func toWire(r packet.Record) wireRecord {
	samples := r.Samples
	if samples == nil {
		samples = []uint32{}
	}
	return wireRecord{
		Sequence:  &r.Sequence,
		Timestamp: &r.Timestamp,
		Label:     &r.Label,
		Samples:   &samples,
	}
}

// field returns where the value under key decodes to.
func (w *wireRecord) field(key string) (any, bool) {
	switch key {
	case keySequence:
		return &w.Sequence, true
	case keyTimestamp:
		return &w.Timestamp, true
	case keyLabel:
		return &w.Label, true
	case keySamples:
		return &w.Samples, true
	}
	return nil, false
}

// keySet rejects keys outside the record and keys seen twice.
type keySet map[string]struct{}

func (s keySet) add(key string) error {
	if _, ok := s[key]; ok {
		return fmt.Errorf("duplicate key %q", key)
	}
	s[key] = struct{}{}
	return nil
}

// record requires every key and a record that passes Validate.
func (w wireRecord) record() (packet.Record, error) {
	switch {
	case w.Sequence == nil:
		return packet.Record{}, missingKey(keySequence)
	case w.Timestamp == nil:
		return packet.Record{}, missingKey(keyTimestamp)
	case w.Label == nil:
		return packet.Record{}, missingKey(keyLabel)
	case w.Samples == nil:
		return packet.Record{}, missingKey(keySamples)
	}
	r := packet.New(*w.Sequence, *w.Timestamp, *w.Label, *w.Samples)
	if err := r.Validate(); err != nil {
		return packet.Record{}, err
	}
	return r, nil
}

func missingKey(k string) error { return fmt.Errorf("missing key %q", k) }

func unknownKey(k string) error { return fmt.Errorf("unknown key %q", k) }

// truncated marks a reader running dry mid-value as ErrTruncated.
func truncated(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return err
}
