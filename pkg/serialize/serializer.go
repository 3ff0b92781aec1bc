// Package serialize converts application values to and from the byte
// payloads that travel over a data channel. Each session owns exactly one
// Serializer, chosen by Mode at construction.
package serialize

import (
	"errors"
	"fmt"
)

// ErrNotEncodable is returned when a value cannot be represented in the
// session's serialization mode.
var ErrNotEncodable = errors.New("value not encodable in this mode")

// Serializer is a pure transform between application values and packed
// payloads. Implementations carry no state and are safe for reuse.
type Serializer interface {
	Mode() Mode
	// Encode packs a value and reports what the payload represents.
	Encode(value any) ([]byte, Descriptor, error)
	// Decode is the structural inverse of Encode.
	Decode(data []byte, desc Descriptor) (any, error)
}

// New returns the Serializer for a mode.
func New(mode Mode) (Serializer, error) {
	switch mode {
	case ModeNone:
		return noneSerializer{}, nil
	case ModeJSON:
		return jsonSerializer{}, nil
	case ModeBinary:
		return binarySerializer{}, nil
	case ModeBinaryUTF8:
		return binarySerializer{normalizeUTF8: true}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// noneSerializer passes raw bytes through unmodified, for transports that
// natively accept the payload type.
type noneSerializer struct{}

func (noneSerializer) Mode() Mode { return ModeNone }

func (noneSerializer) Encode(value any) ([]byte, Descriptor, error) {
	switch v := value.(type) {
	case []byte:
		return v, Descriptor{Kind: KindPlain}, nil
	case string:
		return []byte(v), Descriptor{Kind: KindPlain}, nil
	default:
		return nil, Descriptor{}, fmt.Errorf("%w: mode %q accepts only bytes and strings, got %T", ErrNotEncodable, ModeNone, value)
	}
}

func (noneSerializer) Decode(data []byte, _ Descriptor) (any, error) {
	return data, nil
}
