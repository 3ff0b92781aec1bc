package serialize

import (
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// binarySerializer packs values into msgpack, a self-describing binary
// representation that carries structured values and raw byte blobs alike.
// Named and typed payloads skip msgpack entirely: their bytes travel as-is
// and the descriptor restores the value shape on the far side.
type binarySerializer struct {
	normalizeUTF8 bool
}

func (s binarySerializer) Mode() Mode {
	if s.normalizeUTF8 {
		return ModeBinaryUTF8
	}
	return ModeBinary
}

func (s binarySerializer) Encode(value any) ([]byte, Descriptor, error) {
	desc := describe(value)

	switch v := value.(type) {
	case File:
		return v.Data, desc, nil
	case Blob:
		return v.Data, desc, nil
	}

	if s.normalizeUTF8 {
		value = normalizeStrings(value)
	}
	data, err := msgpack.Marshal(value)
	if err != nil {
		return nil, Descriptor{}, fmt.Errorf("failed to pack value: %w", err)
	}
	return data, desc, nil
}

func (s binarySerializer) Decode(data []byte, desc Descriptor) (any, error) {
	switch desc.Kind {
	case KindNamed:
		return File{Name: desc.Name, MIME: desc.MIME, Data: data}, nil
	case KindTyped:
		return Blob{MIME: desc.MIME, Data: data}, nil
	}

	var value any
	if err := msgpack.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("failed to unpack payload: %w", err)
	}
	return value, nil
}

// normalizeStrings rewrites text found in a value to valid UTF-8, replacing
// invalid sequences. Only the shapes msgpack produces on decode are walked;
// anything else is left for msgpack's own reflection to handle.
func normalizeStrings(value any) any {
	switch v := value.(type) {
	case string:
		return strings.ToValidUTF8(v, "�")
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalizeStrings(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[strings.ToValidUTF8(k, "�")] = normalizeStrings(e)
		}
		return out
	default:
		return value
	}
}
