package codec

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated     = errors.New("codec: truncated buffer")
	ErrTrailingBytes = errors.New("codec: trailing bytes")
	ErrTypeTag       = errors.New("codec: unexpected type tag")
	ErrTooLarge      = errors.New("codec: payload too large")
	ErrCapacity      = errors.New("codec: samples exceed capacity")
)

// EncodingError means a value could not be serialized.
type EncodingError struct {
	Codec string
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("codec %s: encode: %v", e.Codec, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// DecodingError means the bytes were malformed or truncated.
type DecodingError struct {
	Codec string
	Err   error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("codec %s: decode: %v", e.Codec, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// FramingError is returned when a message does not carry exactly one frame.
type FramingError struct {
	Frames int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("codec: expected exactly 1 frame, got %d", e.Frames)
}

func encodeErr(name string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EncodingError
	if errors.As(err, &ee) {
		return err
	}
	return &EncodingError{Codec: name, Err: err}
}
