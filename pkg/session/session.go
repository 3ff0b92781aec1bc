// Package session binds the serialization, chunking, reassembly and send
// pacing pieces to one data channel, exposing a Send call and data/error
// callbacks to application code.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rescp17/peerchannel/pkg/chunk"
	"github.com/rescp17/peerchannel/pkg/reassembly"
	"github.com/rescp17/peerchannel/pkg/sendqueue"
	"github.com/rescp17/peerchannel/pkg/serialize"
)

// ErrSessionNotOpen is reported through the error callback when Send is
// called before the channel signals ready. The value is not lost: it is
// buffered and flushed once the session opens.
var ErrSessionNotOpen = errors.New("session is not open yet")

// ErrSessionClosed is reported when Send is called on a closed session. The
// value is dropped.
var ErrSessionClosed = errors.New("session is closed")

// Config holds the options fixed at session construction.
type Config struct {
	// Serialization selects the mode; empty means "binary".
	Serialization string
	// SendInterval overrides the outbound drain period; zero keeps the
	// sendqueue default.
	SendInterval time.Duration
}

// Session is one logical send/receive endpoint over one data channel.
type Session struct {
	id    string
	mode  serialize.Mode
	codec serialize.Serializer
	ch    Channel
	queue *sendqueue.Scheduler
	asm   *reassembly.Reassembler

	mu      sync.Mutex
	state   State
	pending []any

	onOpen  func()
	onData  func(value any)
	onError func(err error)
	onClose func()
}

// New constructs a session over ch. An invalid serialization mode is a
// construction error, returned directly: it happens before any callback
// could be registered, so reporting it through the error callback would
// lose it.
func New(ch Channel, cfg *Config) (*Session, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	mode, err := serialize.ParseMode(cfg.Serialization)
	if err != nil {
		return nil, err
	}
	codec, err := serialize.New(mode)
	if err != nil {
		return nil, err
	}

	var queueCfg *sendqueue.Config
	if cfg.SendInterval > 0 {
		queueCfg = &sendqueue.Config{Interval: cfg.SendInterval}
	}
	queue, err := sendqueue.New(ch.TrySend, queueCfg)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:    uuid.NewString(),
		mode:  mode,
		codec: codec,
		ch:    ch,
		queue: queue,
		asm:   reassembly.New(),
		state: StatePending,
	}

	ch.OnOpen(s.handleOpen)
	ch.OnMessage(s.handleMessage)
	ch.OnClose(func() { s.close(false) })

	return s, nil
}

// ID identifies this session; transfer ids are scoped to it.
func (s *Session) ID() string { return s.id }

// SerializationMode is fixed at construction.
func (s *Session) SerializationMode() serialize.Mode { return s.mode }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnOpen registers the callback fired when the channel becomes ready.
func (s *Session) OnOpen(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOpen = f
}

// OnData registers the callback fired with each fully reconstructed value.
func (s *Session) OnData(f func(value any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onData = f
}

// OnError registers the callback for runtime errors. No runtime error halts
// the session; only the failed send or transfer is affected.
func (s *Session) OnError(f func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = f
}

// OnClose registers the callback fired once when the session reaches its
// terminal state, whether through Close or the channel going away.
func (s *Session) OnClose(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = f
}

// Send serializes a value and queues it for transmission. On a pending
// session the value is buffered for the open flush and ErrSessionNotOpen is
// reported; on a closed session the value is dropped and ErrSessionClosed
// is reported. Send never blocks on the channel.
func (s *Session) Send(value any) {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		s.emitError(fmt.Errorf("%w: value dropped", ErrSessionClosed))
		return
	case StatePending:
		s.pending = append(s.pending, value)
		s.mu.Unlock()
		s.emitError(fmt.Errorf("%w: value buffered until open", ErrSessionNotOpen))
		return
	}
	s.mu.Unlock()

	s.transmit(value)
}

// Close tears the session down: the send queue and all incomplete inbound
// transfers are discarded, and the channel is closed. Safe to call from any
// state.
func (s *Session) Close() error {
	return s.close(true)
}

func (s *Session) close(closeChannel bool) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	dropped := len(s.pending)
	s.pending = nil
	closed := s.onClose
	s.mu.Unlock()

	s.queue.Close()
	s.asm.Reset()

	if dropped > 0 {
		slog.Debug("Dropped buffered values on close", "session", s.id, "count", dropped)
	}

	var err error
	if closeChannel {
		err = s.ch.Close()
	}
	if closed != nil {
		closed()
	}
	return err
}

// transmit runs the outbound pipeline for one value on an open session.
func (s *Session) transmit(value any) {
	payload, desc, err := s.codec.Encode(value)
	if err != nil {
		s.emitError(err)
		return
	}

	if !s.mode.Chunked() {
		s.queue.Enqueue(payload)
		return
	}

	meta := chunk.Metadata{
		ID:   uuid.NewString(),
		Kind: string(desc.Kind),
		Size: len(payload),
		Name: desc.Name,
		MIME: desc.MIME,
	}
	envelopes, err := chunk.Split(payload, meta, s.ch.MaxMessageSize())
	if err != nil {
		s.emitError(err)
		return
	}
	for i := range envelopes {
		packed, err := envelopes[i].Pack()
		if err != nil {
			s.emitError(err)
			return
		}
		s.queue.Enqueue(packed)
	}
	slog.Debug("Queued transfer", "session", s.id, "transfer", meta.ID, "parts", len(envelopes), "size", meta.Size)
}

// handleOpen flushes values buffered before the channel became ready, in
// the order they were submitted, then fires the open callback.
func (s *Session) handleOpen() {
	s.mu.Lock()
	if s.state != StatePending {
		s.mu.Unlock()
		return
	}
	s.state = StateOpen
	buffered := s.pending
	s.pending = nil
	open := s.onOpen
	s.mu.Unlock()

	slog.Debug("Session open", "session", s.id, "mode", s.mode, "flushing", len(buffered))
	for _, value := range buffered {
		s.transmit(value)
	}
	if open != nil {
		open()
	}
}

// handleMessage dispatches one raw inbound message by serialization mode.
// Chunked modes route through the reassembler and emit only on completion;
// the other modes decode and emit immediately.
func (s *Session) handleMessage(data []byte) {
	s.mu.Lock()
	closed := s.state == StateClosed
	s.mu.Unlock()
	if closed {
		return
	}

	if !s.mode.Chunked() {
		value, err := s.codec.Decode(data, serialize.Descriptor{Kind: serialize.KindPlain})
		if err != nil {
			s.emitError(err)
			return
		}
		s.emitData(value)
		return
	}

	env, err := chunk.Unpack(data)
	if err != nil {
		s.emitError(fmt.Errorf("%w: %w", reassembly.ErrMalformedChunk, err))
		return
	}
	result, err := s.asm.Ingest(env)
	if err != nil {
		s.emitError(err)
		return
	}
	if result == nil {
		return
	}

	value, err := s.codec.Decode(result.Payload, serialize.Descriptor{
		Kind: serialize.PayloadKind(result.Meta.Kind),
		Name: result.Meta.Name,
		MIME: result.Meta.MIME,
	})
	if err != nil {
		s.emitError(err)
		return
	}
	s.emitData(value)
}

func (s *Session) emitData(value any) {
	s.mu.Lock()
	f := s.onData
	s.mu.Unlock()
	if f != nil {
		f(value)
	}
}

func (s *Session) emitError(err error) {
	s.mu.Lock()
	f := s.onError
	s.mu.Unlock()
	if f != nil {
		f(err)
		return
	}
	slog.Warn("Session error with no handler attached", "session", s.id, "error", err)
}
