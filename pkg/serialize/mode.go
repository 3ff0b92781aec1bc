package serialize

import (
	"errors"
	"fmt"
)

// Mode selects how application values are converted to bytes before they are
// handed to the data channel. It is fixed for the lifetime of a session.
type Mode string

const (
	// ModeBinary packs values into a self-describing binary representation
	// and chunks anything larger than the channel's message bound.
	ModeBinary Mode = "binary"
	// ModeBinaryUTF8 behaves like ModeBinary but normalizes text fields to
	// valid UTF-8 before encoding.
	ModeBinaryUTF8 Mode = "binary-utf8"
	// ModeJSON sends values as JSON text, one message per value, no chunking.
	ModeJSON Mode = "json"
	// ModeNone passes raw bytes through untouched.
	ModeNone Mode = "none"
)

// DefaultMode is used when a session is configured without an explicit mode.
const DefaultMode = ModeBinary

// ErrUnknownMode is returned when a session is constructed with a
// serialization mode that is not one of the supported values.
var ErrUnknownMode = errors.New("unknown serialization mode")

// ParseMode validates a configuration string and returns the corresponding
// Mode. The empty string selects DefaultMode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return DefaultMode, nil
	case ModeBinary, ModeBinaryUTF8, ModeJSON, ModeNone:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

func (m Mode) String() string {
	return string(m)
}

// Chunked reports whether values in this mode go through the chunking
// pipeline. JSON and raw payloads are sent as single messages.
func (m Mode) Chunked() bool {
	return m == ModeBinary || m == ModeBinaryUTF8
}
