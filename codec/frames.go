package codec

// Frames adapts a Codec to channels that move a sequence of frames per
// message. One value is always exactly one frame.
type Frames[V any] struct {
	Inner Codec[V]
}

// EncodeFrames returns a single-frame sequence holding the encoded value.
func (f Frames[V]) EncodeFrames(v V) ([][]byte, error) {
	b, err := f.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return [][]byte{b}, nil
}

// DecodeFrames fails with *FramingError unless exactly one frame arrived.
func (f Frames[V]) DecodeFrames(frames [][]byte) (V, error) {
	if len(frames) != 1 {
		var zero V
		return zero, &FramingError{Frames: len(frames)}
	}
	return f.Inner.Decode(frames[0])
}
