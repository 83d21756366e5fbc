package codec

import "fmt"

// Limit wraps another codec to enforce payload sizes.
// A zero MaxEncode or MaxDecode disables that check.
//
// Typical use: keep encoded records within what one channel message may
// carry and refuse oversized input from the network before decoding it.
type Limit[V any] struct {
	// Inner is the underlying codec being wrapped. It must be set.
	Inner Codec[V]
	// MaxEncode is the largest encoded payload Encode will return.
	MaxEncode int
	// MaxDecode is the largest payload Decode will hand to Inner.
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.MaxEncode > 0 && len(b) > c.MaxEncode {
		return nil, &EncodingError{Codec: "limit", Err: fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), c.MaxEncode)}
	}
	return b, nil
}

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, &DecodingError{Codec: "limit", Err: fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), c.MaxDecode)}
	}
	return c.Inner.Decode(b)
}
