package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func mustDecode(t *testing.T, b []byte) (Kind, [][]byte) {
	t.Helper()
	k, frames, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return k, frames
}

func mustEncode(t *testing.T, k Kind, frames [][]byte) []byte {
	t.Helper()
	b, err := Encode(k, frames)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	return b
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		kind   Kind
		frames [][]byte
	}{
		{KindRequest, nil},
		{KindReply, [][]byte{[]byte("ACK")}},
		{KindRequest, [][]byte{{}, []byte("x"), {0, 1, 2, 3, 4}}},
		{KindGroup, [][]byte{bytes.Repeat([]byte{7}, 70000)}},
	}
	for _, tc := range cases {
		enc := mustEncode(t, tc.kind, tc.frames)
		k, got := mustDecode(t, enc)
		if k != tc.kind {
			t.Fatalf("kind mismatch: got %v want %v", k, tc.kind)
		}
		if len(got) != len(tc.frames) {
			t.Fatalf("frame count: got %d want %d", len(got), len(tc.frames))
		}
		for i := range got {
			if !bytes.Equal(got[i], tc.frames[i]) {
				t.Fatalf("frame %d mismatch", i)
			}
		}
	}
}

func TestRejectsTrailingBytes(t *testing.T) {
	enc := mustEncode(t, KindRequest, [][]byte{[]byte("x")})
	enc = append(enc, 0xDE, 0xAD) // add junk
	if _, _, err := Decode(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestCorruptHeadersAndLengths(t *testing.T) {
	enc := mustEncode(t, KindReply, [][]byte{[]byte("abc")})

	// bad magic
	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, _, err := Decode(badMagic); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt on bad magic, got %v", err)
	}

	// wrong version
	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, _, err := Decode(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// unknown kind
	badKind := append([]byte(nil), enc...)
	badKind[5] = 9
	if _, _, err := Decode(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// more frames announced than present
	badN := append([]byte(nil), enc...)
	binary.BigEndian.PutUint16(badN[6:8], 2)
	if _, _, err := Decode(badN); err == nil {
		t.Fatalf("expected error on frame count beyond body")
	}

	// frame length beyond remaining
	badFlen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(badFlen[HeaderLen:HeaderLen+4], uint32(len("abc")+1))
	if _, _, err := Decode(badFlen); err == nil {
		t.Fatalf("expected error on flen beyond buffer")
	}

	// truncated buffer
	if _, _, err := Decode(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	if _, err := Encode(0, nil); err == nil {
		t.Fatalf("expected error on zero kind")
	}
	if _, err := Encode(KindRequest, make([][]byte, MaxFrames+1)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge on too many frames, got %v", err)
	}
}

func TestZeroCopyFrames(t *testing.T) {
	enc := mustEncode(t, KindRequest, [][]byte{[]byte("Z")})
	_, f := mustDecode(t, enc)
	// mutate frame slice. should mutate underlying enc bytes (zero-copy)
	f[0][0] = 'Q'
	_, f2 := mustDecode(t, enc)
	if f2[0][0] != 'Q' {
		t.Fatalf("expected zero-copy slice into enc buffer")
	}
}

func TestReadMessageStream(t *testing.T) {
	var stream bytes.Buffer
	if err := WriteMessage(&stream, KindRequest, [][]byte{[]byte("one")}); err != nil {
		t.Fatal(err)
	}
	if err := WriteMessage(&stream, KindReply, [][]byte{[]byte("two"), []byte("2")}); err != nil {
		t.Fatal(err)
	}

	r := bufio.NewReader(&stream)
	for i, want := range []Kind{KindRequest, KindReply} {
		msg, err := ReadMessage(r, 1024)
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		k, _ := mustDecode(t, msg)
		if k != want {
			t.Fatalf("message %d kind %v want %v", i, k, want)
		}
	}
	if _, err := ReadMessage(r, 1024); err != io.EOF {
		t.Fatalf("want io.EOF at end of stream, got %v", err)
	}
}

func TestReadMessageLimits(t *testing.T) {
	enc := mustEncode(t, KindRequest, [][]byte{make([]byte, 100)})
	if _, err := ReadMessage(bytes.NewReader(enc), 50); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("want ErrTooLarge, got %v", err)
	}
	if _, err := ReadMessage(bytes.NewReader(enc[:5]), 0); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("short header: want ErrCorrupt, got %v", err)
	}
	if _, err := ReadMessage(bytes.NewReader(enc[:HeaderLen+10]), 0); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("short body: want io.ErrUnexpectedEOF, got %v", err)
	}
}
