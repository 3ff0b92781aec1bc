package chunk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMetadata() Metadata {
	return Metadata{
		ID:   "0d44ab11-9c3f-4a02-9715-41b4a5cd0a8f",
		Kind: "plain",
	}
}

func TestEnvelope_PackUnpackRoundTrip(t *testing.T) {
	testCases := []struct {
		name     string
		envelope Envelope
	}{
		{
			name: "All fields",
			envelope: Envelope{
				ID:    "transfer-1",
				Kind:  "named",
				Size:  2200,
				Total: 3,
				Index: 1,
				Name:  "report.pdf",
				MIME:  "application/pdf",
				Data:  []byte{0xde, 0xad, 0xbe, 0xef},
			},
		},
		{
			name: "Optional fields absent",
			envelope: Envelope{
				ID:    "transfer-2",
				Kind:  "plain",
				Size:  10,
				Total: 1,
				Index: 0,
				Data:  []byte("0123456789"),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			packed, err := tc.envelope.Pack()
			require.NoError(t, err)

			unpacked, err := Unpack(packed)
			require.NoError(t, err)
			assert.Equal(t, &tc.envelope, unpacked, "every field must round-trip exactly")
		})
	}
}

func TestUnpack_Garbage(t *testing.T) {
	_, err := Unpack([]byte{0xc1, 0x00, 0x01})
	require.Error(t, err)
}

func TestSplit_ChunkCount(t *testing.T) {
	meta := testMetadata()

	testCases := []struct {
		name        string
		payloadSize int
		extraRoom   int // payload capacity per chunk beyond the overhead
	}{
		{"Exact multiple", 3000, 1000},
		{"Remainder", 2200, 950},
		{"Single chunk", 100, 950},
		{"One byte over", 951, 950},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			payload := bytes.Repeat([]byte{0xab}, tc.payloadSize)
			m := meta
			m.Size = tc.payloadSize
			overhead, err := Overhead(m)
			require.NoError(t, err)
			maxMessageSize := overhead + tc.extraRoom

			envelopes, err := Split(payload, meta, maxMessageSize)
			require.NoError(t, err)

			wantTotal := (tc.payloadSize + tc.extraRoom - 1) / tc.extraRoom
			require.Len(t, envelopes, wantTotal)

			for i, env := range envelopes {
				assert.Equal(t, i, env.Index)
				assert.Equal(t, wantTotal, env.Total)
				assert.Equal(t, tc.payloadSize, env.Size)
				assert.Equal(t, meta.ID, env.ID)
			}

			// The last chunk carries exactly the remainder.
			wantLast := tc.payloadSize - tc.extraRoom*(wantTotal-1)
			assert.Len(t, envelopes[len(envelopes)-1].Data, wantLast)
		})
	}
}

func TestSplit_SlicesAreContiguous(t *testing.T) {
	payload := make([]byte, 2200)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	meta := testMetadata()
	meta.Size = len(payload)
	overhead, err := Overhead(meta)
	require.NoError(t, err)

	envelopes, err := Split(payload, meta, overhead+950)
	require.NoError(t, err)
	require.Len(t, envelopes, 3)
	assert.Len(t, envelopes[0].Data, 950)
	assert.Len(t, envelopes[1].Data, 950)
	assert.Len(t, envelopes[2].Data, 300)

	var rebuilt []byte
	for _, env := range envelopes {
		rebuilt = append(rebuilt, env.Data...)
	}
	assert.Equal(t, payload, rebuilt)
}

func TestSplit_PackedChunksFitMessageBound(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 5000)
	meta := Metadata{
		ID:   "0d44ab11-9c3f-4a02-9715-41b4a5cd0a8f",
		Kind: "named",
		Name: "archive.tar.gz",
		MIME: "application/gzip",
	}
	maxMessageSize := 1400

	envelopes, err := Split(payload, meta, maxMessageSize)
	require.NoError(t, err)

	for _, env := range envelopes {
		packed, err := env.Pack()
		require.NoError(t, err)
		assert.LessOrEqual(t, len(packed), maxMessageSize,
			"packed chunk %d exceeds the channel's message bound", env.Index)
	}
}

func TestSplit_MetadataExceedsBound(t *testing.T) {
	payload := []byte("payload")
	meta := testMetadata()

	_, err := Split(payload, meta, 20)
	require.ErrorIs(t, err, ErrChunkTooSmall)
}

func TestSplit_EmptyPayload(t *testing.T) {
	meta := testMetadata()

	envelopes, err := Split(nil, meta, 1400)
	require.NoError(t, err)
	require.Len(t, envelopes, 1, "an empty payload still needs one chunk to complete the transfer")
	assert.Equal(t, 1, envelopes[0].Total)
	assert.Equal(t, 0, envelopes[0].Index)
	assert.Empty(t, envelopes[0].Data)
	assert.Equal(t, 0, envelopes[0].Size)
}

func TestSplit_DoesNotRetainPayload(t *testing.T) {
	payload := []byte("mutate me afterwards")
	meta := testMetadata()

	envelopes, err := Split(payload, meta, 1400)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)

	original := append([]byte(nil), payload...)
	payload[0] = 'X'
	assert.Equal(t, original, envelopes[0].Data, "chunks must own their slices")
}
