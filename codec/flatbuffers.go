package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/unkn0wn-root/telepeer/codec/internal/fbs"
	"github.com/unkn0wn-root/telepeer/packet"
)

const (
	nameFlatBuffers = "flatbuffers"
	fileIdentifier  = "TLPK"

	// size prefix | root offset | file identifier
	fbHeaderLen = 4 + 4 + 4
)

var errOffset = errors.New("offset out of range")

// FlatBuffers is the schema-driven binary codec for packet.Record, built on
// the telemetry.fbs schema. The zero value is ready to use.
//
// Output is one size-prefixed buffer carrying the "TLPK" file identifier.
// Decode verifies every offset it follows before reading a field, then reads
// through the generated accessors without copying the buffer.
type FlatBuffers struct{}

var _ Codec[packet.Record] = FlatBuffers{}

func (FlatBuffers) Encode(r packet.Record) ([]byte, error) {
	if err := validate(nameFlatBuffers, r); err != nil {
		return nil, err
	}
	b := flatbuffers.NewBuilder(64 + len(r.Label) + 4*len(r.Samples))

	name := b.CreateString(r.Label)
	fbs.MessageStartDataVector(b, len(r.Samples))
	for i := len(r.Samples) - 1; i >= 0; i-- {
		b.PrependUint32(r.Samples[i])
	}
	data := b.EndVector(len(r.Samples))

	fbs.MessageStart(b)
	fbs.MessageAddSeqNo(b, r.Sequence)
	fbs.MessageAddTs(b, r.Timestamp)
	fbs.MessageAddName(b, name)
	fbs.MessageAddData(b, data)
	root := fbs.MessageEnd(b)

	b.FinishSizePrefixedWithFileIdentifier(root, []byte(fileIdentifier))
	return b.FinishedBytes(), nil
}

func (FlatBuffers) Decode(buf []byte) (packet.Record, error) {
	if err := verifyMessage(buf); err != nil {
		return packet.Record{}, &DecodingError{Codec: nameFlatBuffers, Err: err}
	}

	msg := fbs.GetSizePrefixedRootAsMessage(buf, 0)
	name := msg.Name()
	if !utf8.Valid(name) {
		return packet.Record{}, &DecodingError{Codec: nameFlatBuffers, Err: errors.New("name is not valid UTF-8")}
	}
	samples := make([]uint32, msg.DataLength())
	for j := range samples {
		samples[j] = msg.Data(j)
	}
	return packet.Record{
		Sequence:  msg.SeqNo(),
		Timestamp: msg.Ts(),
		Label:     string(name),
		Samples:   samples,
	}, nil
}

// fbReader does bounds-checked little-endian reads at absolute positions.
// Positions are uint64 so offset arithmetic cannot wrap.
type fbReader []byte

func (r fbReader) has(at, n uint64) bool {
	return at <= uint64(len(r)) && n <= uint64(len(r))-at
}

func (r fbReader) u16(at uint64) (uint64, bool) {
	if !r.has(at, 2) {
		return 0, false
	}
	return uint64(binary.LittleEndian.Uint16(r[at:])), true
}

func (r fbReader) u32(at uint64) (uint64, bool) {
	if !r.has(at, 4) {
		return 0, false
	}
	return uint64(binary.LittleEndian.Uint32(r[at:])), true
}

// verifyMessage checks everything the fbs accessors will touch.
func verifyMessage(buf []byte) error {
	if len(buf) < 4 {
		return fmt.Errorf("%w: %d bytes, need a size prefix", ErrTruncated, len(buf))
	}
	size := uint64(flatbuffers.GetSizePrefix(buf, 0))
	have := uint64(len(buf) - 4)
	switch {
	case size > have:
		return fmt.Errorf("%w: size prefix claims %d bytes, have %d", ErrTruncated, size, have)
	case size < have:
		return fmt.Errorf("%w: %d after the buffer", ErrTrailingBytes, have-size)
	}
	if len(buf) < fbHeaderLen {
		return fmt.Errorf("%w: %d bytes, need a %d byte header", ErrTruncated, len(buf), fbHeaderLen)
	}
	if id := buf[8:12]; string(id) != fileIdentifier {
		return fmt.Errorf("%w: file identifier %q", ErrTypeTag, id)
	}

	r := fbReader(buf)
	rootOff, _ := r.u32(4)
	tab := 4 + rootOff
	soff, ok := r.u32(tab)
	if !ok {
		return fmt.Errorf("root table: %w", errOffset)
	}
	vt := int64(tab) - int64(int32(uint32(soff)))
	if vt < 0 {
		return fmt.Errorf("vtable: %w", errOffset)
	}
	vtab := uint64(vt)
	vtLen, ok1 := r.u16(vtab)
	objLen, ok2 := r.u16(vtab + 2)
	switch {
	case !ok1 || !ok2:
		return fmt.Errorf("vtable header: %w", errOffset)
	case vtLen < 4 || vtLen%2 != 0 || !r.has(vtab, vtLen):
		return fmt.Errorf("vtable length %d: %w", vtLen, errOffset)
	case objLen < 4 || !r.has(tab, objLen):
		return fmt.Errorf("table length %d: %w", objLen, errOffset)
	}

	// field returns the absolute position of slot's value, or 0 when the
	// slot is absent and the accessor will fall back to its default.
	field := func(slot int, width uint64) (uint64, error) {
		entry := uint64(4 + 2*slot)
		if entry >= vtLen {
			return 0, nil
		}
		off, _ := r.u16(vtab + entry)
		if off == 0 {
			return 0, nil
		}
		if off < 4 || off+width > objLen {
			return 0, fmt.Errorf("field %d: %w", slot, errOffset)
		}
		return tab + off, nil
	}
	// vector checks the length-prefixed payload an offset field points at.
	vector := func(slot int, elem uint64) error {
		pos, err := field(slot, 4)
		if err != nil || pos == 0 {
			return err
		}
		rel, _ := r.u32(pos)
		start := pos + rel
		n, ok := r.u32(start)
		if !ok || !r.has(start+4, n*elem) {
			return fmt.Errorf("field %d: %w", slot, errOffset)
		}
		return nil
	}

	if _, err := field(0, 8); err != nil {
		return err
	}
	if _, err := field(1, 8); err != nil {
		return err
	}
	if err := vector(2, 1); err != nil {
		return err
	}
	return vector(3, 4)
}
