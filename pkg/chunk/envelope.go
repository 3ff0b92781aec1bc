// Package chunk frames oversized payloads into bounded-size wire units. An
// Envelope is one unit: a slice of the payload plus everything the far side
// needs to put the transfer back together.
package chunk

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Envelope is the wire unit for one chunk of a transfer. Every chunk of a
// transfer carries identical metadata; only Index and Data vary.
type Envelope struct {
	ID    string `msgpack:"id"`
	Kind  string `msgpack:"kind"`
	Size  int    `msgpack:"size"`
	Total int    `msgpack:"total"`
	Index int    `msgpack:"index"`
	Name  string `msgpack:"name,omitempty"`
	MIME  string `msgpack:"mime,omitempty"`
	Data  []byte `msgpack:"data"`
}

// Metadata is the per-transfer portion of an envelope, everything except
// Index and Data.
type Metadata struct {
	ID   string
	Kind string
	Size int
	Name string
	MIME string
}

// Metadata extracts the transfer-level fields of an envelope.
func (e *Envelope) Metadata() Metadata {
	return Metadata{ID: e.ID, Kind: e.Kind, Size: e.Size, Name: e.Name, MIME: e.MIME}
}

// Pack serializes the envelope for transmission.
func (e *Envelope) Pack() ([]byte, error) {
	data, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to pack chunk envelope: %w", err)
	}
	return data, nil
}

// Unpack parses a received message as a chunk envelope.
func Unpack(data []byte) (*Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unpack chunk envelope: %w", err)
	}
	return &e, nil
}
