// Package codec maps values to bytes and back.
//
// Every codec in this package is a stateless value and safe for concurrent
// use. Encode rejects values that fail their own Validate method, Decode
// never reads past the buffer it was given.
package codec

// Codec encodes/decodes values V to []byte for the wire.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

type validator interface {
	Validate() error
}

// validate runs v.Validate when V provides one.
func validate(name string, v any) error {
	if vv, ok := v.(validator); ok {
		if err := vv.Validate(); err != nil {
			return &EncodingError{Codec: name, Err: err}
		}
	}
	return nil
}
