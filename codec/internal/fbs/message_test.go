package fbs

import (
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"
)

func TestBuildAndRead(t *testing.T) {
	b := flatbuffers.NewBuilder(0)
	name := b.CreateString("demo")
	MessageStartDataVector(b, 3)
	for _, v := range []uint32{3, 2, 1} {
		b.PrependUint32(v)
	}
	data := b.EndVector(3)
	MessageStart(b)
	MessageAddSeqNo(b, 42)
	MessageAddTs(b, 1.25)
	MessageAddName(b, name)
	MessageAddData(b, data)
	b.FinishSizePrefixed(MessageEnd(b))

	m := GetSizePrefixedRootAsMessage(b.FinishedBytes(), 0)
	if m.SeqNo() != 42 || m.Ts() != 1.25 || string(m.Name()) != "demo" {
		t.Fatalf("seq=%d ts=%v name=%q", m.SeqNo(), m.Ts(), m.Name())
	}
	if m.DataLength() != 3 {
		t.Fatalf("DataLength=%d", m.DataLength())
	}
	for j, want := range []uint32{1, 2, 3} {
		if got := m.Data(j); got != want {
			t.Fatalf("Data(%d)=%d want %d", j, got, want)
		}
	}
}

func TestAbsentFieldsReadAsDefaults(t *testing.T) {
	b := flatbuffers.NewBuilder(0)
	MessageStart(b)
	b.Finish(MessageEnd(b))

	m := GetRootAsMessage(b.FinishedBytes(), 0)
	if m.SeqNo() != 0 || m.Ts() != 0 || m.Name() != nil || m.DataLength() != 0 || m.Data(0) != 0 {
		t.Fatalf("defaults: seq=%d ts=%v name=%v len=%d", m.SeqNo(), m.Ts(), m.Name(), m.DataLength())
	}
}
