package codec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/unkn0wn-root/telepeer/packet"
)

// Config carries the knobs ByName passes to the codecs that have any.
type Config struct {
	// MaxMessageBytes sizes the protobuf samples capacity and, when set,
	// wraps the codec in a Limit. Zero uses DefaultMaxMessageBytes and no Limit.
	MaxMessageBytes int
	// Deterministic selects canonical CBOR encoding.
	Deterministic bool
}

var builders = map[string]func(Config) (Codec[packet.Record], error){
	nameFlatBuffers: func(Config) (Codec[packet.Record], error) { return FlatBuffers{}, nil },
	nameJSON:        func(Config) (Codec[packet.Record], error) { return JSON{}, nil },
	nameProtobuf: func(cfg Config) (Codec[packet.Record], error) {
		return NewProtobuf(cfg.MaxMessageBytes), nil
	},
	nameMsgpack: func(Config) (Codec[packet.Record], error) { return Msgpack{}, nil },
	nameCBOR: func(cfg Config) (Codec[packet.Record], error) {
		c, err := NewCBOR(cfg.Deterministic)
		if err != nil {
			return nil, err
		}
		return c, nil
	},
}

// Names lists the registered codec names, sorted.
func Names() []string {
	out := make([]string, 0, len(builders))
	for n := range builders {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ByName builds the record codec registered under name (case-insensitive).
func ByName(name string, cfg Config) (Codec[packet.Record], error) {
	build, ok := builders[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("codec: unknown codec %q (have %s)", name, strings.Join(Names(), ", "))
	}
	c, err := build(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.MaxMessageBytes > 0 {
		c = Limit[packet.Record]{Inner: c, MaxEncode: cfg.MaxMessageBytes, MaxDecode: cfg.MaxMessageBytes}
	}
	return c, nil
}
