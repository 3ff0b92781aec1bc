// Package reassembly rebuilds chunked payloads from envelopes arriving in
// any order, across any number of interleaved transfers.
package reassembly

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rescp17/peerchannel/pkg/chunk"
)

// ErrMalformedChunk is returned when an envelope's index falls outside the
// range fixed by the first chunk of its transfer.
var ErrMalformedChunk = errors.New("malformed chunk")

// MaxParts bounds the part count a transfer may declare. The count comes
// straight off the wire, so it caps the table allocation a remote peer can
// force with a single chunk.
const MaxParts = 1 << 20

// Result is a fully recombined payload plus the metadata its chunks carried.
type Result struct {
	Payload []byte
	Meta    chunk.Metadata
}

// transfer tracks one in-progress reconstruction. It exists exactly while
// 0 < received < total.
type transfer struct {
	total    int
	received int
	parts    [][]byte
	filled   []bool
	meta     chunk.Metadata
}

// Reassembler accumulates chunks keyed by transfer id and detects
// completion. One Reassembler serves one session; transfers that never
// complete stay in the table until the session discards them via Reset.
type Reassembler struct {
	mu        sync.Mutex
	transfers map[string]*transfer
}

func New() *Reassembler {
	return &Reassembler{
		transfers: make(map[string]*transfer),
	}
}

// Ingest stores one envelope. It returns a non-nil Result only when the
// envelope completes its transfer, at which point the transfer is removed
// from the table.
//
// An out-of-range index discards the whole transfer: its chunk accounting
// can no longer be trusted, and a fresh resend under the same id must start
// from a clean slate. Duplicate delivery of an index overwrites the stored
// slice without recounting, so duplicates can never fake completion.
func (r *Reassembler) Ingest(env *chunk.Envelope) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.transfers[env.ID]
	if !exists {
		if env.Total <= 0 || env.Total > MaxParts {
			return nil, fmt.Errorf("%w: transfer %s declares %d parts", ErrMalformedChunk, env.ID, env.Total)
		}
		t = &transfer{
			total:  env.Total,
			parts:  make([][]byte, env.Total),
			filled: make([]bool, env.Total),
			meta:   env.Metadata(),
		}
		r.transfers[env.ID] = t
		slog.Debug("Started reassembling transfer", "id", env.ID, "total", env.Total, "size", env.Size)
	}

	if env.Index < 0 || env.Index >= t.total {
		delete(r.transfers, env.ID)
		return nil, fmt.Errorf("%w: index %d outside [0, %d) for transfer %s", ErrMalformedChunk, env.Index, t.total, env.ID)
	}

	if !t.filled[env.Index] {
		t.filled[env.Index] = true
		t.received++
	}
	t.parts[env.Index] = env.Data

	if t.received < t.total {
		return nil, nil
	}

	delete(r.transfers, env.ID)
	return &Result{Payload: concat(t.parts, t.meta.Size), Meta: t.meta}, nil
}

// Pending reports how many transfers are still incomplete.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transfers)
}

// Reset discards every live transfer. The owning session calls this on its
// close path so abandoned transfers do not outlive it.
func (r *Reassembler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.transfers) > 0 {
		slog.Debug("Discarding incomplete transfers", "count", len(r.transfers))
	}
	r.transfers = make(map[string]*transfer)
}

func concat(parts [][]byte, size int) []byte {
	payload := make([]byte, 0, size)
	for _, part := range parts {
		payload = append(payload, part...)
	}
	return payload
}
