package codec

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/unkn0wn-root/telepeer/packet"
)

const (
	nameProtobuf = "protobuf"

	// DefaultMaxMessageBytes is the message size Protobuf derives its
	// default capacity from.
	DefaultMaxMessageBytes = 64 << 10
)

// Field numbers of Request in request.proto.
const (
	fieldSeqNo protowire.Number = 1
	fieldTs    protowire.Number = 2
	fieldName  protowire.Number = 3
	fieldData  protowire.Number = 4
)

// requestType is the message type described by request.proto.
var requestType = mustRequestType()

func mustRequestType() protoreflect.MessageType {
	field := func(name string, num protowire.Number, typ descriptorpb.FieldDescriptorProto_Type, label descriptorpb.FieldDescriptorProto_Label) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(name),
			Number: proto.Int32(int32(num)),
			Type:   typ.Enum(),
			Label:  label.Enum(),
		}
	}
	optional := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	fdp := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("telepeer/request.proto"),
		Package: proto.String("telepeer"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("Request"),
			Field: []*descriptorpb.FieldDescriptorProto{
				field("seq_no", fieldSeqNo, descriptorpb.FieldDescriptorProto_TYPE_UINT64, optional),
				field("ts", fieldTs, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE, optional),
				field("name", fieldName, descriptorpb.FieldDescriptorProto_TYPE_STRING, optional),
				field("data", fieldData, descriptorpb.FieldDescriptorProto_TYPE_UINT32, descriptorpb.FieldDescriptorProto_LABEL_REPEATED),
			},
		}},
	}
	fd, err := protodesc.NewFile(fdp, nil)
	if err != nil {
		panic(fmt.Sprintf("codec: request descriptor: %v", err))
	}
	return dynamicpb.NewMessageType(fd.Messages().ByName("Request"))
}

// Protobuf is the contiguous binary codec for packet.Record: the Request
// message of request.proto, marshaled with google.golang.org/protobuf.
// Samples are written packed; Decode accepts packed and unpacked data and
// keeps unknown fields out of the record.
//
// Capacity bounds the number of samples either way. The zero value uses the
// capacity derived from DefaultMaxMessageBytes.
type Protobuf struct {
	Capacity int
}

var _ Codec[packet.Record] = Protobuf{}

// NewProtobuf sizes the samples capacity so that one full record fits in a
// message of maxMessageBytes.
func NewProtobuf(maxMessageBytes int) Protobuf {
	return Protobuf{Capacity: capacityFor(maxMessageBytes)}
}

func capacityFor(maxMessageBytes int) int {
	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}
	return maxMessageBytes / 4
}

func (c Protobuf) capacity() int {
	if c.Capacity > 0 {
		return c.Capacity
	}
	return capacityFor(0)
}

func (c Protobuf) Encode(r packet.Record) ([]byte, error) {
	if err := validate(nameProtobuf, r); err != nil {
		return nil, err
	}
	if n, limit := len(r.Samples), c.capacity(); n > limit {
		return nil, &EncodingError{Codec: nameProtobuf, Err: fmt.Errorf("%w: %d > %d", ErrCapacity, n, limit)}
	}

	m := requestType.New()
	fields := m.Descriptor().Fields()
	// proto3 leaves scalar defaults off the wire.
	if r.Sequence != 0 {
		m.Set(fields.ByNumber(fieldSeqNo), protoreflect.ValueOfUint64(r.Sequence))
	}
	if r.Timestamp != 0 {
		m.Set(fields.ByNumber(fieldTs), protoreflect.ValueOfFloat64(r.Timestamp))
	}
	if r.Label != "" {
		m.Set(fields.ByNumber(fieldName), protoreflect.ValueOfString(r.Label))
	}
	if len(r.Samples) > 0 {
		list := m.Mutable(fields.ByNumber(fieldData)).List()
		for _, v := range r.Samples {
			list.Append(protoreflect.ValueOfUint32(v))
		}
	}

	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(m.Interface())
	return b, encodeErr(nameProtobuf, err)
}

func (c Protobuf) Decode(b []byte) (packet.Record, error) {
	r, err := c.decode(b)
	if err != nil {
		return packet.Record{}, &DecodingError{Codec: nameProtobuf, Err: err}
	}
	return r, nil
}

func (c Protobuf) decode(b []byte) (packet.Record, error) {
	m := requestType.New()
	if err := proto.Unmarshal(b, m.Interface()); err != nil {
		return packet.Record{}, classify(b, err)
	}
	// A known field with the wrong wire type lands in the unknown set.
	if err := checkUnknown(m.GetUnknown()); err != nil {
		return packet.Record{}, err
	}

	fields := m.Descriptor().Fields()
	list := m.Get(fields.ByNumber(fieldData)).List()
	if n, limit := list.Len(), c.capacity(); n > limit {
		return packet.Record{}, fmt.Errorf("%w: %d > %d samples", ErrCapacity, n, limit)
	}
	samples := make([]uint32, list.Len())
	for i := range samples {
		samples[i] = uint32(list.Get(i).Uint())
	}

	return packet.Record{
		Sequence:  m.Get(fields.ByNumber(fieldSeqNo)).Uint(),
		Timestamp: m.Get(fields.ByNumber(fieldTs)).Float(),
		Label:     m.Get(fields.ByNumber(fieldName)).String(),
		Samples:   samples,
	}, nil
}

func checkUnknown(raw protoreflect.RawFields) error {
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeField(raw)
		if n < 0 {
			return protowire.ParseError(n)
		}
		if num >= fieldSeqNo && num <= fieldData {
			return fmt.Errorf("%w: field %d has wire type %d", ErrTypeTag, num, typ)
		}
		raw = raw[n:]
	}
	return nil
}

// classify walks the top-level fields of a buffer proto.Unmarshal refused
// and reports a cut-off buffer as ErrTruncated.
func classify(b []byte, err error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wireErr(n, err)
		}
		b = b[n:]
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return wireErr(n, err)
		}
		b = b[n:]
	}
	return err
}

func wireErr(n int, err error) error {
	if errors.Is(protowire.ParseError(n), io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return err
}
