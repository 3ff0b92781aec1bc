package serialize

import (
	"encoding/json"
	"fmt"
)

// jsonSerializer sends values as JSON text. JSON payloads are never chunked,
// so a value must fit in a single channel message.
type jsonSerializer struct{}

func (jsonSerializer) Mode() Mode { return ModeJSON }

func (jsonSerializer) Encode(value any) ([]byte, Descriptor, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, Descriptor{}, fmt.Errorf("failed to marshal value to JSON: %w", err)
	}
	return data, Descriptor{Kind: KindPlain}, nil
}

func (jsonSerializer) Decode(data []byte, _ Descriptor) (any, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON payload: %w", err)
	}
	return value, nil
}
