package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	version byte = 1

	// HeaderLen is the fixed message header size.
	HeaderLen = 4 + 1 + 1 + 2 + 4

	// MaxFrames is the largest frame count a header can carry.
	MaxFrames = 0xFFFF

	// FrameOverhead is the body bytes each frame costs beyond its payload.
	FrameOverhead = 4
)

// Kind tags what a message is for. Receivers reject kinds they do not expect.
type Kind byte

const (
	KindRequest Kind = 1
	KindReply   Kind = 2
	KindGroup   Kind = 3
)

func (k Kind) valid() bool { return k >= KindRequest && k <= KindGroup }

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindReply:
		return "reply"
	case KindGroup:
		return "group"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

var (
	ErrCorrupt  = errors.New("telepeer: corrupt message")
	ErrTooLarge = errors.New("telepeer: message too large")
	magic4      = [...]byte{'T', 'P', 'K', 'T'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Message:
//
//	magic(4) | ver(1) | kind(1) | n(u16 be) | bodyLen(u32 be)
//	flen(u32 be) | frame(flen) * n
//
// bodyLen counts everything after the header.
func Encode(kind Kind, frames [][]byte) ([]byte, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("%w: invalid kind %d", ErrCorrupt, byte(kind))
	}
	if len(frames) > MaxFrames {
		return nil, fmt.Errorf("%w: %d frames", ErrTooLarge, len(frames))
	}
	body := 0
	for _, f := range frames {
		body += 4 + len(f)
	}
	if uint64(body) > 0xFFFFFFFF {
		return nil, fmt.Errorf("%w: body %d bytes", ErrTooLarge, body)
	}

	var buf bytes.Buffer
	buf.Grow(HeaderLen + body)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(byte(kind))

	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint16(u2[:], uint16(len(frames)))
	buf.Write(u2[:])
	binary.BigEndian.PutUint32(u4[:], uint32(body))
	buf.Write(u4[:])

	for _, f := range frames {
		binary.BigEndian.PutUint32(u4[:], uint32(len(f)))
		buf.Write(u4[:])
		buf.Write(f)
	}
	return buf.Bytes(), nil
}

// header validates the fixed header and returns kind, frame count and body length.
func header(b []byte) (Kind, int, int, error) {
	if len(b) < HeaderLen || !hasMagic(b) || b[4] != version {
		return 0, 0, 0, ErrCorrupt
	}
	kind := Kind(b[5])
	if !kind.valid() {
		return 0, 0, 0, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint16(b[6:8]))
	body := int(binary.BigEndian.Uint32(b[8:12]))
	if body < 4*n { // every frame needs its length word
		return 0, 0, 0, ErrCorrupt
	}
	return kind, n, body, nil
}

// Decode splits a message into its frames. Frames alias b.
func Decode(b []byte) (Kind, [][]byte, error) {
	kind, n, body, err := header(b)
	if err != nil {
		return 0, nil, err
	}
	if body != len(b)-HeaderLen {
		return 0, nil, ErrCorrupt
	}

	off := HeaderLen
	frames := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if off+4 > len(b) {
			return 0, nil, ErrCorrupt
		}
		flen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if flen < 0 || flen > len(b)-off { // overflow-safe bound check
			return 0, nil, ErrCorrupt
		}
		frames = append(frames, b[off:off+flen:off+flen])
		off += flen
	}
	if off != len(b) {
		return 0, nil, ErrCorrupt
	}
	return kind, frames, nil
}

// ReadMessage reads one whole message from a stream. Bodies larger than
// limit fail with ErrTooLarge before anything is allocated for them; limit
// <= 0 disables the check. A clean EOF before the first byte is returned as
// io.EOF.
func ReadMessage(r io.Reader, limit int) ([]byte, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short header", ErrCorrupt)
		}
		return nil, err
	}
	_, _, body, err := header(hdr[:])
	if err != nil {
		return nil, err
	}
	if limit > 0 && body > limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, body, limit)
	}
	msg := make([]byte, HeaderLen+body)
	copy(msg, hdr[:])
	if _, err := io.ReadFull(r, msg[HeaderLen:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return msg, nil
}

// WriteMessage encodes and writes one message with a single Write call.
func WriteMessage(w io.Writer, kind Kind, frames [][]byte) error {
	b, err := Encode(kind, frames)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
