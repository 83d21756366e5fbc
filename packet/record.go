// Package packet defines the telemetry record exchanged between peers.
//
// A Record is a plain value: it is built once per exchange, handed to a codec
// and dropped after the receiving side consumed it. Nothing in this package
// is shared between goroutines.
package packet

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrInvalidLabel     = errors.New("packet: label is not valid UTF-8")
	ErrInvalidTimestamp = errors.New("packet: timestamp is not finite")
)

// Record is the fixed-shape telemetry packet.
// Struct tags give msgpack/cbor the same four key names the JSON codec uses.
type Record struct {
	Sequence  uint64   `msgpack:"sequence" cbor:"sequence"`
	Timestamp float64  `msgpack:"timestamp" cbor:"timestamp"`
	Label     string   `msgpack:"label" cbor:"label"`
	Samples   []uint32 `msgpack:"samples" cbor:"samples"`
}

// New returns a fully populated record. samples is copied; a nil slice
// becomes an empty one.
func New(seq uint64, ts float64, label string, samples []uint32) Record {
	cp := make([]uint32, len(samples))
	copy(cp, samples)
	return Record{
		Sequence:  seq,
		Timestamp: ts,
		Label:     label,
		Samples:   cp,
	}
}

// Timestamp converts t to seconds since the Unix epoch.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Samples draws n values in [1, 1000].
func Samples(rng *rand.Rand, n int) []uint32 {
	if n <= 0 {
		return []uint32{}
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(rng.Intn(1000) + 1)
	}
	return out
}

// Validate reports whether every codec can carry r without loss.
func (r Record) Validate() error {
	if !utf8.ValidString(r.Label) {
		return ErrInvalidLabel
	}
	if math.IsNaN(r.Timestamp) || math.IsInf(r.Timestamp, 0) {
		return ErrInvalidTimestamp
	}
	return nil
}

// Equal compares all four fields. A nil and an empty Samples are equal.
func (r Record) Equal(o Record) bool {
	if r.Sequence != o.Sequence || r.Timestamp != o.Timestamp || r.Label != o.Label {
		return false
	}
	if len(r.Samples) != len(o.Samples) {
		return false
	}
	for i := range r.Samples {
		if r.Samples[i] != o.Samples[i] {
			return false
		}
	}
	return true
}

// Dump writes every field, one per line. Diagnostics only.
func (r Record) Dump(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"record:\n  sequence:  %d\n  timestamp: %f\n  label:     %q\n  samples:   (%d) %v\n",
		r.Sequence, r.Timestamp, r.Label, len(r.Samples), r.Samples)
	return err
}

func (r Record) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "seq=%d ts=%f label=%q samples=%d", r.Sequence, r.Timestamp, r.Label, len(r.Samples))
	return b.String()
}
