package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/unkn0wn-root/telepeer/packet"
)

func recordCodecs(t *testing.T) map[string]Codec[packet.Record] {
	t.Helper()
	out := map[string]Codec[packet.Record]{}
	for _, name := range Names() {
		c, err := ByName(name, Config{})
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		out[name] = c
	}
	return out
}

func sampleRecords() []packet.Record {
	return []packet.Record{
		packet.New(0, 1700000000.0, "demo", []uint32{1, 2, 3}),
		packet.New(0, 0, "", nil),
		packet.New(math.MaxUint64, -12.125, "ünïcødé ✓", []uint32{0, math.MaxUint32, 1000}),
		packet.New(42, 1700000000.123456, strings.Repeat("x", 4096), make([]uint32, 2000)),
	}
}

func TestRoundTripAllCodecs(t *testing.T) {
	for name, c := range recordCodecs(t) {
		for i, want := range sampleRecords() {
			b, err := c.Encode(want)
			if err != nil {
				t.Fatalf("%s[%d] encode: %v", name, i, err)
			}
			got, err := c.Decode(b)
			if err != nil {
				t.Fatalf("%s[%d] decode: %v", name, i, err)
			}
			if !got.Equal(want) {
				t.Fatalf("%s[%d] round trip mismatch:\n got %v\nwant %v", name, i, got, want)
			}
		}
	}
}

func TestEncodeRejectsInvalidLabel(t *testing.T) {
	bad := packet.New(1, 1, string([]byte{0xc3, 0x28}), nil)
	for name, c := range recordCodecs(t) {
		_, err := c.Encode(bad)
		var ee *EncodingError
		if !errors.As(err, &ee) {
			t.Fatalf("%s: want *EncodingError, got %T %v", name, err, err)
		}
		if !errors.Is(err, packet.ErrInvalidLabel) {
			t.Fatalf("%s: want ErrInvalidLabel cause, got %v", name, err)
		}
	}
}

func TestDecodeGarbage(t *testing.T) {
	inputs := [][]byte{nil, {0x00}, {0xff, 0xff, 0xff}, []byte("not a record")}
	for name, c := range recordCodecs(t) {
		for _, in := range inputs {
			_, err := c.Decode(in)
			var de *DecodingError
			if name == nameProtobuf && len(in) == 0 {
				// an empty protobuf message is the all-defaults record
				if err != nil {
					t.Fatalf("protobuf: empty input: %v", err)
				}
				continue
			}
			if !errors.As(err, &de) {
				t.Fatalf("%s: decode(%x): want *DecodingError, got %v", name, in, err)
			}
		}
	}
}

func TestJSONDemoRecord(t *testing.T) {
	r := packet.New(0, 1700000000.0, "demo", []uint32{1, 2, 3})
	b, err := JSON{}.Encode(r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"sequence":0,"timestamp":1700000000,"label":"demo","samples":[1,2,3]}`
	if string(b) != want {
		t.Fatalf("json = %s\nwant  %s", b, want)
	}
	got, err := JSON{}.Decode(b)
	if err != nil || !got.Equal(r) {
		t.Fatalf("decode: %v %v", got, err)
	}
}

func TestJSONStrictKeys(t *testing.T) {
	cases := map[string]string{
		"unknown":  `{"sequence":0,"timestamp":1,"label":"x","samples":[],"extra":1}`,
		"missing":  `{"sequence":0,"timestamp":1,"label":"x"}`,
		"trailing": `{"sequence":0,"timestamp":1,"label":"x","samples":[]} {}`,
		"cut":      `{"sequence":0,"timestamp":1,"lab`,
		"negative": `{"sequence":0,"timestamp":1,"label":"x","samples":[-1]}`,
	}
	for name, in := range cases {
		var de *DecodingError
		if _, err := (JSON{}).Decode([]byte(in)); !errors.As(err, &de) {
			t.Fatalf("%s: want *DecodingError, got %v", name, err)
		}
	}
	_, err := JSON{}.Decode([]byte(`{"sequence":0,"timestamp":1,"lab`))
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("cut input: want ErrTruncated, got %v", err)
	}
}

func TestJSONExactKeyNames(t *testing.T) {
	cases := map[string]string{
		"upper":      `{"SEQUENCE":7,"Timestamp":1,"LABEL":"x","Samples":[1]}`,
		"one folded": `{"sequence":7,"timestamp":1,"Label":"x","samples":[1]}`,
		"duplicate":  `{"sequence":1,"sequence":9,"timestamp":1,"label":"x","samples":[]}`,
		"null value": `{"sequence":null,"timestamp":1,"label":"x","samples":[]}`,
		"not object": `[0,1,"x",[]]`,
	}
	for name, in := range cases {
		got, err := JSON{}.Decode([]byte(in))
		var de *DecodingError
		if !errors.As(err, &de) {
			t.Fatalf("%s: want *DecodingError, got %v (seq=%d)", name, err, got.Sequence)
		}
	}
}

// msgpackMap encodes kv pairs in order as one msgpack map.
func msgpackMap(t *testing.T, kv ...any) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeMapLen(len(kv) / 2); err != nil {
		t.Fatal(err)
	}
	for _, v := range kv {
		if err := enc.Encode(v); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func TestMsgpackStrict(t *testing.T) {
	good := msgpackMap(t, "sequence", uint64(3), "timestamp", 1.5, "label", "x", "samples", []uint32{1})
	if r, err := (Msgpack{}).Decode(good); err != nil || !r.Equal(packet.New(3, 1.5, "x", []uint32{1})) {
		t.Fatalf("well-formed map: %v %v", r, err)
	}

	cases := map[string][]byte{
		"empty map":   msgpackMap(t),
		"missing key": msgpackMap(t, "sequence", uint64(3), "timestamp", 1.5, "label", "x"),
		"unknown key": msgpackMap(t, "sequence", uint64(3), "timestamp", 1.5, "label", "x", "samples", []uint32{}, "extra", 1),
		"folded key":  msgpackMap(t, "SEQUENCE", uint64(3), "timestamp", 1.5, "label", "x", "samples", []uint32{}),
		"duplicate":   msgpackMap(t, "sequence", uint64(1), "sequence", uint64(9), "timestamp", 1.5, "label", "x", "samples", []uint32{}),
		"bad label":   msgpackMap(t, "sequence", uint64(3), "timestamp", 1.5, "label", string([]byte{0xff}), "samples", []uint32{}),
		"trailing":    append(append([]byte(nil), good...), 0x01, 0x02),
		"cut":         good[:len(good)-1],
	}
	for name, in := range cases {
		_, err := Msgpack{}.Decode(in)
		var de *DecodingError
		if !errors.As(err, &de) {
			t.Fatalf("%s: want *DecodingError, got %v", name, err)
		}
	}
	if _, err := (Msgpack{}).Decode(cases["trailing"]); !errors.Is(err, ErrTrailingBytes) {
		t.Fatalf("trailing: want ErrTrailingBytes, got %v", err)
	}
	if _, err := (Msgpack{}).Decode(cases["bad label"]); !errors.Is(err, packet.ErrInvalidLabel) {
		t.Fatalf("bad label: want ErrInvalidLabel, got %v", err)
	}
	if _, err := (Msgpack{}).Decode(cases["cut"]); !errors.Is(err, ErrTruncated) {
		t.Fatalf("cut: want ErrTruncated, got %v", err)
	}
}

func TestCBORStrict(t *testing.T) {
	c := MustCBOR(false)
	enc := func(v any) []byte {
		b, err := cbor.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		return b
	}
	cases := map[string][]byte{
		"empty map":   {0xa0},
		"missing key": enc(map[string]any{"sequence": 1, "timestamp": 1.5, "label": "x"}),
		"unknown key": enc(map[string]any{"sequence": 1, "timestamp": 1.5, "label": "x", "samples": []uint32{}, "extra": 1}),
		"folded key":  enc(map[string]any{"Sequence": 1, "timestamp": 1.5, "label": "x", "samples": []uint32{}}),
		"nan":         enc(map[string]any{"sequence": 1, "timestamp": math.NaN(), "label": "x", "samples": []uint32{}}),
	}
	for name, in := range cases {
		_, err := c.Decode(in)
		var de *DecodingError
		if !errors.As(err, &de) {
			t.Fatalf("%s: want *DecodingError, got %v", name, err)
		}
	}
}

func TestJSONEncodesEmptySamplesAsArray(t *testing.T) {
	b, err := JSON{}.Encode(packet.Record{Label: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(b, []byte(`"samples":[]`)) {
		t.Fatalf("nil samples should encode as [] got %s", b)
	}
}

func TestFlatBuffersEmptySamples(t *testing.T) {
	r := packet.New(7, 1700000000.5, "empty", []uint32{})
	frames, err := Frames[packet.Record]{Inner: FlatBuffers{}}.EncodeFrames(r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("want 1 frame, got %d", len(frames))
	}
	got, err := Frames[packet.Record]{Inner: FlatBuffers{}}.DecodeFrames(frames)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Samples == nil || len(got.Samples) != 0 {
		t.Fatalf("want empty samples, got %#v", got.Samples)
	}
	if got.Sequence != 7 || got.Label != "empty" || got.Timestamp != 1700000000.5 {
		t.Fatalf("fields mismatch: %v", got)
	}
}

func TestFlatBuffersLayout(t *testing.T) {
	b, err := FlatBuffers{}.Encode(packet.New(1, 2, "ab", []uint32{3}))
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint32(b); int(got) != len(b)-4 {
		t.Fatalf("size prefix %d, buffer %d", got, len(b))
	}
	if string(b[8:12]) != fileIdentifier {
		t.Fatalf("identifier %q", b[8:12])
	}
}

func TestFlatBuffersTruncatedPrefix(t *testing.T) {
	b, err := FlatBuffers{}.Encode(packet.New(9, 1700000000, "demo", []uint32{1, 2, 3, 4}))
	if err != nil {
		t.Fatal(err)
	}
	for _, cut := range []int{0, 2, 4, 11, len(b) / 2, len(b) - 1} {
		_, err := FlatBuffers{}.Decode(b[:cut])
		var de *DecodingError
		if !errors.As(err, &de) {
			t.Fatalf("cut=%d: want *DecodingError, got %v", cut, err)
		}
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("cut=%d: want ErrTruncated, got %v", cut, err)
		}
	}

	// prefix claims more than supplied
	long := append([]byte(nil), b...)
	binary.LittleEndian.PutUint32(long, uint32(len(b)))
	if _, err := (FlatBuffers{}).Decode(long); !errors.Is(err, ErrTruncated) {
		t.Fatalf("oversized prefix: want ErrTruncated, got %v", err)
	}

	trailing := append(append([]byte(nil), b...), 0, 0)
	if _, err := (FlatBuffers{}).Decode(trailing); !errors.Is(err, ErrTrailingBytes) {
		t.Fatalf("want ErrTrailingBytes, got %v", err)
	}
}

func TestFlatBuffersWrongIdentifier(t *testing.T) {
	b, _ := FlatBuffers{}.Encode(packet.New(1, 1, "x", nil))
	b[8] = 'X'
	if _, err := (FlatBuffers{}).Decode(b); !errors.Is(err, ErrTypeTag) {
		t.Fatalf("want ErrTypeTag, got %v", err)
	}
}

func TestFlatBuffersCorruptOffsets(t *testing.T) {
	b, _ := FlatBuffers{}.Encode(packet.New(1, 1, "label", []uint32{1, 2, 3}))

	badRoot := append([]byte(nil), b...)
	binary.LittleEndian.PutUint32(badRoot[4:], 0xFFFFFF)
	if _, err := (FlatBuffers{}).Decode(badRoot); !errors.Is(err, errOffset) {
		t.Fatalf("bad root: want errOffset, got %v", err)
	}

	// flip every byte past the header; Decode must return or fail, never panic
	for i := fbHeaderLen; i < len(b); i++ {
		c := append([]byte(nil), b...)
		c[i] ^= 0xff
		_, _ = FlatBuffers{}.Decode(c)
	}
}

func TestProtobufWireTypeMismatch(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, fieldSeqNo, protowire.BytesType)
	b = protowire.AppendString(b, "nope")
	if _, err := (Protobuf{}).Decode(b); !errors.Is(err, ErrTypeTag) {
		t.Fatalf("want ErrTypeTag, got %v", err)
	}
}

func TestProtobufUnpackedAndUnknown(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, fieldSeqNo, protowire.VarintType)
	b = protowire.AppendVarint(b, 5)
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "skip me")
	for _, v := range []uint64{10, 20} {
		b = protowire.AppendTag(b, fieldData, protowire.VarintType)
		b = protowire.AppendVarint(b, v)
	}
	got, err := Protobuf{}.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	want := packet.New(5, 0, "", []uint32{10, 20})
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestProtobufCapacity(t *testing.T) {
	if c := NewProtobuf(DefaultMaxMessageBytes).Capacity; c != 16384 {
		t.Fatalf("default capacity %d", c)
	}
	small := Protobuf{Capacity: 2}
	_, err := small.Encode(packet.New(1, 1, "x", []uint32{1, 2, 3}))
	var ee *EncodingError
	if !errors.As(err, &ee) || !errors.Is(err, ErrCapacity) {
		t.Fatalf("encode over capacity: %v", err)
	}

	b, err := Protobuf{}.Encode(packet.New(1, 1, "x", []uint32{1, 2, 3}))
	if err != nil {
		t.Fatal(err)
	}
	_, err = small.Decode(b)
	var de *DecodingError
	if !errors.As(err, &de) || !errors.Is(err, ErrCapacity) {
		t.Fatalf("decode over capacity: %v", err)
	}
}

func TestProtobufDescriptor(t *testing.T) {
	fields := requestType.Descriptor().Fields()
	want := map[protowire.Number]string{fieldSeqNo: "seq_no", fieldTs: "ts", fieldName: "name", fieldData: "data"}
	if fields.Len() != len(want) {
		t.Fatalf("Request has %d fields", fields.Len())
	}
	for num, name := range want {
		fd := fields.ByNumber(num)
		if fd == nil || string(fd.Name()) != name {
			t.Fatalf("field %d: got %v want %s", num, fd, name)
		}
	}
	if !fields.ByNumber(fieldData).IsPacked() {
		t.Fatalf("data must be packed")
	}
}

func TestProtobufMatchesHandWrittenWire(t *testing.T) {
	var want []byte
	want = protowire.AppendTag(want, fieldSeqNo, protowire.VarintType)
	want = protowire.AppendVarint(want, 7)
	want = protowire.AppendTag(want, fieldTs, protowire.Fixed64Type)
	want = protowire.AppendFixed64(want, math.Float64bits(2.5))
	want = protowire.AppendTag(want, fieldName, protowire.BytesType)
	want = protowire.AppendString(want, "demo")
	want = protowire.AppendTag(want, fieldData, protowire.BytesType)
	want = protowire.AppendBytes(want, []byte{1, 2, 3})

	got, err := Protobuf{}.Encode(packet.New(7, 2.5, "demo", []uint32{1, 2, 3}))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("wire\n got %x\nwant %x", got, want)
	}
}

func TestProtobufRejectsInvalidName(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte{0xff, 0xfe})
	var de *DecodingError
	if _, err := (Protobuf{}).Decode(b); !errors.As(err, &de) {
		t.Fatalf("want *DecodingError, got %v", err)
	}
}

func TestProtobufTruncated(t *testing.T) {
	b, _ := Protobuf{}.Encode(packet.New(1, 1700000000, "demo", []uint32{1, 2, 3}))
	if _, err := (Protobuf{}).Decode(b[:len(b)-1]); !errors.Is(err, ErrTruncated) {
		t.Fatalf("want ErrTruncated, got %v", err)
	}
}

func TestFramesRejectsWrongCount(t *testing.T) {
	f := Frames[packet.Record]{Inner: JSON{}}
	one, err := f.EncodeFrames(packet.New(1, 1, "x", nil))
	if err != nil {
		t.Fatal(err)
	}
	for _, frames := range [][][]byte{nil, {one[0], one[0]}} {
		_, err := f.DecodeFrames(frames)
		var fe *FramingError
		if !errors.As(err, &fe) {
			t.Fatalf("%d frames: want *FramingError, got %v", len(frames), err)
		}
		if fe.Frames != len(frames) {
			t.Fatalf("FramingError.Frames=%d want %d", fe.Frames, len(frames))
		}
	}
}

func TestLimit(t *testing.T) {
	c := Limit[packet.Record]{Inner: JSON{}, MaxEncode: 16, MaxDecode: 16}
	_, err := c.Encode(packet.New(1, 1, "a long enough label", nil))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("encode: want ErrTooLarge, got %v", err)
	}
	b, _ := JSON{}.Encode(packet.New(1, 1, "x", nil))
	_, err = c.Decode(b)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("decode: want ErrTooLarge, got %v", err)
	}
}

func TestByName(t *testing.T) {
	want := []string{"cbor", "flatbuffers", "json", "msgpack", "protobuf"}
	if got := Names(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Names() = %v", got)
	}
	if _, err := ByName("xml", Config{}); err == nil {
		t.Fatalf("expected unknown codec error")
	}
	c, err := ByName(" JSON ", Config{MaxMessageBytes: 1024})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(Limit[packet.Record]); !ok {
		t.Fatalf("MaxMessageBytes should wrap in Limit, got %T", c)
	}
}

func TestCBORDeterministic(t *testing.T) {
	c := MustCBOR(true)
	r := packet.New(3, 1.5, "det", []uint32{9})
	a, err := c.Encode(r)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := c.Encode(r)
	if !bytes.Equal(a, b) {
		t.Fatalf("deterministic encoding differs")
	}
	if _, err := c.Decode(append(a, 0x00)); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}
