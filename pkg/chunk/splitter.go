package chunk

import (
	"errors"
	"fmt"
	"math"
)

// ErrChunkTooSmall is returned when the envelope metadata alone exceeds the
// channel's message bound, leaving no room for payload bytes.
var ErrChunkTooSmall = errors.New("metadata overhead leaves no room for chunk payload")

// indexBound is the worst-case value packed into the probe envelope's Total
// and Index fields, so the measured overhead covers any chunk count the
// splitter can produce.
const indexBound = math.MaxInt32

// payloadHeaderMax is the largest msgpack framing a chunk's Data field can
// carry (bin32: 1 type byte + 4 length bytes).
const payloadHeaderMax = 5

// Overhead measures the serialized footprint of an envelope's metadata. The
// channel's size bound applies to the whole envelope, so this is subtracted
// from it to get the usable payload capacity per chunk. The measurement is
// conservative: integer fields are priced at their widest encoding.
func Overhead(meta Metadata) (int, error) {
	probe := Envelope{
		ID:    meta.ID,
		Kind:  meta.Kind,
		Size:  meta.Size,
		Total: indexBound,
		Index: indexBound,
		Name:  meta.Name,
		MIME:  meta.MIME,
	}
	packed, err := probe.Pack()
	if err != nil {
		return 0, err
	}
	return len(packed) + payloadHeaderMax, nil
}

// EffectiveChunkSize returns the payload capacity per chunk for the given
// metadata under a channel message bound.
func EffectiveChunkSize(meta Metadata, maxMessageSize int) (int, error) {
	overhead, err := Overhead(meta)
	if err != nil {
		return 0, err
	}
	effective := maxMessageSize - overhead
	if effective <= 0 {
		return 0, fmt.Errorf("%w: overhead %d, message bound %d", ErrChunkTooSmall, overhead, maxMessageSize)
	}
	return effective, nil
}

// Split slices a packed payload into contiguous chunk envelopes, each small
// enough that its packed form fits maxMessageSize. All chunks are generated
// up front: Total must be fixed before the first chunk is emitted, and the
// send queue paces them out afterwards.
//
// An empty payload still produces a single empty chunk so the transfer
// completes on the receiving side.
func Split(payload []byte, meta Metadata, maxMessageSize int) ([]Envelope, error) {
	meta.Size = len(payload)
	effective, err := EffectiveChunkSize(meta, maxMessageSize)
	if err != nil {
		return nil, err
	}

	total := (len(payload) + effective - 1) / effective
	if total == 0 {
		total = 1
	}

	envelopes := make([]Envelope, 0, total)
	for index := 0; index < total; index++ {
		start := index * effective
		end := min(len(payload), start+effective)

		// Each chunk owns its slice; the payload buffer is not retained.
		data := make([]byte, end-start)
		copy(data, payload[start:end])

		envelopes = append(envelopes, Envelope{
			ID:    meta.ID,
			Kind:  meta.Kind,
			Size:  meta.Size,
			Total: total,
			Index: index,
			Name:  meta.Name,
			MIME:  meta.MIME,
			Data:  data,
		})
	}
	return envelopes, nil
}
