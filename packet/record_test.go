package packet

import (
	"bytes"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"
)

func TestNewCopiesSamples(t *testing.T) {
	in := []uint32{1, 2, 3}
	r := New(7, 1.5, "x", in)
	in[0] = 99
	if r.Samples[0] != 1 {
		t.Fatalf("New must copy samples, got %v", r.Samples)
	}

	empty := New(0, 0, "", nil)
	if empty.Samples == nil {
		t.Fatalf("nil samples should become an empty slice")
	}
}

func TestEqual(t *testing.T) {
	a := New(1, 1700000000.25, "demo", []uint32{1, 2})
	b := New(1, 1700000000.25, "demo", []uint32{1, 2})
	if !a.Equal(b) {
		t.Fatalf("expected equal records")
	}
	b.Samples[1] = 3
	if a.Equal(b) {
		t.Fatalf("samples differ, expected not equal")
	}

	nilSamples := Record{Sequence: 1, Label: "x"}
	emptySamples := Record{Sequence: 1, Label: "x", Samples: []uint32{}}
	if !nilSamples.Equal(emptySamples) {
		t.Fatalf("nil and empty samples must compare equal")
	}

	longer := New(1, 1700000000.25, "demo", []uint32{1, 2, 3})
	if a.Equal(longer) {
		t.Fatalf("length mismatch must not be equal")
	}
}

func TestValidate(t *testing.T) {
	if err := New(0, 1, "ok ✓", nil).Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
	if err := New(0, 1, string([]byte{0xff, 0xfe}), nil).Validate(); err != ErrInvalidLabel {
		t.Fatalf("want ErrInvalidLabel, got %v", err)
	}
	if err := New(0, math.NaN(), "x", nil).Validate(); err != ErrInvalidTimestamp {
		t.Fatalf("want ErrInvalidTimestamp, got %v", err)
	}
	if err := New(0, math.Inf(1), "x", nil).Validate(); err != ErrInvalidTimestamp {
		t.Fatalf("want ErrInvalidTimestamp, got %v", err)
	}
}

func TestSamplesRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := Samples(rng, 500)
	if len(s) != 500 {
		t.Fatalf("len=%d", len(s))
	}
	for i, v := range s {
		if v < 1 || v > 1000 {
			t.Fatalf("sample[%d]=%d out of range", i, v)
		}
	}
	if got := Samples(rng, 0); got == nil || len(got) != 0 {
		t.Fatalf("zero length should give empty non-nil slice, got %#v", got)
	}
}

func TestTimestamp(t *testing.T) {
	ts := Timestamp(time.Unix(1700000000, 500000000))
	if ts != 1700000000.5 {
		t.Fatalf("ts=%f", ts)
	}
}

func TestDump(t *testing.T) {
	var buf bytes.Buffer
	if err := New(3, 2.5, "demo", []uint32{4, 5}).Dump(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"sequence:  3", `label:     "demo"`, "(2) [4 5]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("dump missing %q:\n%s", want, out)
		}
	}
}
