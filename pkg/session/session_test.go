package session

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/peerchannel/pkg/chunk"
	"github.com/rescp17/peerchannel/pkg/reassembly"
	"github.com/rescp17/peerchannel/pkg/serialize"
)

// mockChannel is an in-memory Channel that records every accepted message
// and lets tests drive the ready/message/closed signals by hand.
type mockChannel struct {
	mu             sync.Mutex
	onOpen         func()
	onMessage      func([]byte)
	onClose        func()
	sent           [][]byte
	failNextSends  int
	maxMessageSize int
	closed         bool
}

func newMockChannel(maxMessageSize int) *mockChannel {
	return &mockChannel{maxMessageSize: maxMessageSize}
}

func (c *mockChannel) OnOpen(f func())          { c.onOpen = f }
func (c *mockChannel) OnMessage(f func([]byte)) { c.onMessage = f }
func (c *mockChannel) OnClose(f func())         { c.onClose = f }
func (c *mockChannel) MaxMessageSize() int      { return c.maxMessageSize }

func (c *mockChannel) open()               { c.onOpen() }
func (c *mockChannel) deliver(data []byte) { c.onMessage(data) }

func (c *mockChannel) TrySend(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNextSends > 0 {
		c.failNextSends--
		return assert.AnError
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *mockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *mockChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *mockChannel) sentCopy() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// eventRecorder collects session callbacks for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	opened bool
	values []any
	errs   []error
}

func (r *eventRecorder) attach(s *Session) {
	s.OnOpen(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.opened = true
	})
	s.OnData(func(value any) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.values = append(r.values, value)
	})
	s.OnError(func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.errs = append(r.errs, err)
	})
}

func (r *eventRecorder) valuesCopy() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.values))
	copy(out, r.values)
	return out
}

func (r *eventRecorder) errsCopy() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

func newTestSession(t *testing.T, ch Channel, mode string) (*Session, *eventRecorder) {
	t.Helper()
	s, err := New(ch, &Config{Serialization: mode, SendInterval: time.Millisecond})
	require.NoError(t, err)
	rec := &eventRecorder{}
	rec.attach(s)
	return s, rec
}

func TestNew_InvalidMode(t *testing.T) {
	_, err := New(newMockChannel(1400), &Config{Serialization: "xml"})
	require.ErrorIs(t, err, serialize.ErrUnknownMode,
		"an invalid mode must fail construction synchronously, not via the error callback")
}

func TestNew_DefaultsToBinary(t *testing.T) {
	s, err := New(newMockChannel(1400), nil)
	require.NoError(t, err)
	assert.Equal(t, serialize.ModeBinary, s.SerializationMode())
	assert.Equal(t, StatePending, s.State())
}

func TestSend_NonePassthrough(t *testing.T) {
	ch := newMockChannel(1400)
	s, _ := newTestSession(t, ch, "none")
	ch.open()
	require.Equal(t, StateOpen, s.State())

	s.Send("hello")

	require.Eventually(t, func() bool { return ch.sentCount() == 1 },
		time.Second, time.Millisecond, "exactly one message, no envelope wrapping")
	assert.Equal(t, []byte("hello"), ch.sentCopy()[0])
}

func TestReceive_NonePassthrough(t *testing.T) {
	ch := newMockChannel(1400)
	_, rec := newTestSession(t, ch, "none")
	ch.open()

	ch.deliver([]byte("hello"))

	values := rec.valuesCopy()
	require.Len(t, values, 1)
	assert.Equal(t, []byte("hello"), values[0])
}

func TestSend_JSONSingleMessage(t *testing.T) {
	ch := newMockChannel(1400)
	sender, _ := newTestSession(t, ch, "json")
	ch.open()

	sender.Send(map[string]any{"n": 1})
	require.Eventually(t, func() bool { return ch.sentCount() == 1 },
		time.Second, time.Millisecond)

	// Feed the wire message into a receiving session.
	rch := newMockChannel(1400)
	_, rec := newTestSession(t, rch, "json")
	rch.open()
	rch.deliver(ch.sentCopy()[0])

	values := rec.valuesCopy()
	require.Len(t, values, 1)
	assert.Equal(t, map[string]any{"n": float64(1)}, values[0])
}

func TestSend_BeforeOpenBuffersAndReportsError(t *testing.T) {
	ch := newMockChannel(1400)
	s, rec := newTestSession(t, ch, "none")

	s.Send("first")
	s.Send("second")

	// Nothing on the wire yet, but the error event fired for each send.
	assert.Equal(t, 0, ch.sentCount())
	errs := rec.errsCopy()
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSessionNotOpen)
	}

	ch.open()
	require.Equal(t, StateOpen, s.State())

	require.Eventually(t, func() bool { return ch.sentCount() == 2 },
		time.Second, time.Millisecond, "buffered values must flush on open")
	sent := ch.sentCopy()
	assert.Equal(t, []byte("first"), sent[0])
	assert.Equal(t, []byte("second"), sent[1])
	assert.True(t, rec.opened)
}

func TestSend_AfterCloseReportsErrorAndDrops(t *testing.T) {
	ch := newMockChannel(1400)
	s, rec := newTestSession(t, ch, "none")
	ch.open()
	require.NoError(t, s.Close())
	require.Equal(t, StateClosed, s.State())

	s.Send("too late")

	errs := rec.errsCopy()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrSessionClosed)
	assert.Equal(t, 0, ch.sentCount())
	assert.True(t, ch.closed)
}

// chunkedWireMeta mirrors what a sending session puts in its envelopes so
// tests can size the channel for an exact chunk layout.
func chunkedWireMeta(size int) chunk.Metadata {
	return chunk.Metadata{
		ID:   "00000000-0000-0000-0000-000000000000", // uuid-shaped, same width as real ids
		Kind: "typed",
		Size: size,
		MIME: "application/octet-stream",
	}
}

func TestSend_BinaryChunkedRoundTrip(t *testing.T) {
	// Channel sized so a 2200-byte payload splits as [950, 950, 300].
	payload := make([]byte, 2200)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	overhead, err := chunk.Overhead(chunkedWireMeta(len(payload)))
	require.NoError(t, err)
	maxMessageSize := overhead + 950

	ch := newMockChannel(maxMessageSize)
	sender, senderRec := newTestSession(t, ch, "binary")
	ch.open()

	sender.Send(serialize.Blob{MIME: "application/octet-stream", Data: payload})

	require.Eventually(t, func() bool { return ch.sentCount() == 3 },
		time.Second, time.Millisecond, "2200 bytes at 950 per chunk is three messages")
	assert.Empty(t, senderRec.errsCopy())

	wire := ch.sentCopy()
	for i, msg := range wire {
		assert.LessOrEqual(t, len(msg), maxMessageSize, "message %d exceeds the channel bound", i)
		env, err := chunk.Unpack(msg)
		require.NoError(t, err)
		assert.Equal(t, 3, env.Total)
		assert.Equal(t, i, env.Index)
	}

	// Deliver in reverse order; the receiver must still emit one data
	// event carrying the original payload.
	rch := newMockChannel(maxMessageSize)
	_, rec := newTestSession(t, rch, "binary")
	rch.open()
	for i := len(wire) - 1; i >= 0; i-- {
		rch.deliver(wire[i])
	}

	values := rec.valuesCopy()
	require.Len(t, values, 1, "a transfer emits exactly once, on completion")
	blob, ok := values[0].(serialize.Blob)
	require.True(t, ok, "expected a Blob, got %T", values[0])
	assert.True(t, bytes.Equal(payload, blob.Data))
	assert.Equal(t, "application/octet-stream", blob.MIME)
}

func TestSend_BinaryStructuredValueRoundTrip(t *testing.T) {
	ch := newMockChannel(16 * 1024)
	sender, _ := newTestSession(t, ch, "binary")
	ch.open()

	sender.Send(map[string]any{"greeting": "hello"})
	require.Eventually(t, func() bool { return ch.sentCount() == 1 },
		time.Second, time.Millisecond)

	rch := newMockChannel(16 * 1024)
	_, rec := newTestSession(t, rch, "binary")
	rch.open()
	rch.deliver(ch.sentCopy()[0])

	values := rec.valuesCopy()
	require.Len(t, values, 1)
	decoded, ok := values[0].(map[string]any)
	require.True(t, ok, "expected a map, got %T", values[0])
	assert.Equal(t, "hello", decoded["greeting"])
}

func TestSend_FIFOAcrossRetry(t *testing.T) {
	ch := newMockChannel(16 * 1024)
	s, _ := newTestSession(t, ch, "none")
	ch.open()

	// The first hand-off fails once; emission order must match enqueue
	// order regardless.
	ch.mu.Lock()
	ch.failNextSends = 1
	ch.mu.Unlock()

	s.Send("a")
	s.Send("b")
	s.Send("c")

	require.Eventually(t, func() bool { return ch.sentCount() == 3 },
		time.Second, time.Millisecond)
	sent := ch.sentCopy()
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, sent)
}

func TestReceive_MalformedChunkThenCleanRetry(t *testing.T) {
	ch := newMockChannel(16 * 1024)
	_, rec := newTestSession(t, ch, "binary")
	ch.open()

	payload := []byte("abcdefghij")
	valid := []chunk.Envelope{
		{ID: "t", Kind: "typed", Size: 10, Total: 2, Index: 0, MIME: "application/octet-stream", Data: payload[:5]},
		{ID: "t", Kind: "typed", Size: 10, Total: 2, Index: 1, MIME: "application/octet-stream", Data: payload[5:]},
	}

	first, err := valid[0].Pack()
	require.NoError(t, err)
	ch.deliver(first)

	// index == total is out of range and poisons the transfer.
	bad := valid[1]
	bad.Index = 2
	badWire, err := bad.Pack()
	require.NoError(t, err)
	ch.deliver(badWire)

	errs := rec.errsCopy()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], reassembly.ErrMalformedChunk)
	assert.Empty(t, rec.valuesCopy())

	// A complete valid resend of the same id still works.
	for i := range valid {
		wire, err := valid[i].Pack()
		require.NoError(t, err)
		ch.deliver(wire)
	}

	values := rec.valuesCopy()
	require.Len(t, values, 1, "the resent transfer must complete")
	blob, ok := values[0].(serialize.Blob)
	require.True(t, ok, "expected a Blob, got %T", values[0])
	assert.Equal(t, payload, blob.Data)
	assert.Len(t, rec.errsCopy(), 1, "the clean resend must not report further errors")
}

func TestReceive_GarbageOnBinaryChannel(t *testing.T) {
	ch := newMockChannel(16 * 1024)
	_, rec := newTestSession(t, ch, "binary")
	ch.open()

	ch.deliver([]byte{0xc1, 0xff})

	errs := rec.errsCopy()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], reassembly.ErrMalformedChunk)
}

func TestClose_DiscardsPendingTransfers(t *testing.T) {
	ch := newMockChannel(16 * 1024)
	s, rec := newTestSession(t, ch, "binary")
	ch.open()

	env := chunk.Envelope{ID: "half", Kind: "plain", Size: 10, Total: 2, Index: 0, Data: []byte("abcde")}
	wire, err := env.Pack()
	require.NoError(t, err)
	ch.deliver(wire)

	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, ch.closed)

	// Messages after close are ignored.
	ch.deliver(wire)
	assert.Empty(t, rec.valuesCopy())
}

func TestChannelClosedSignal(t *testing.T) {
	ch := newMockChannel(16 * 1024)
	s, _ := newTestSession(t, ch, "none")
	ch.open()

	var notified int
	s.OnClose(func() { notified++ })

	ch.onClose()
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, notified, "the channel going away must surface as a close event")
	// The channel-closed signal must not re-close the channel handle.
	assert.False(t, ch.closed)
}

func TestClose_NotifiesCallbackOnce(t *testing.T) {
	ch := newMockChannel(16 * 1024)
	s, _ := newTestSession(t, ch, "none")
	ch.open()

	var notified int
	s.OnClose(func() { notified++ })

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, notified, "a second Close must not re-fire the callback")
	assert.True(t, ch.closed)
}

func TestSend_SerializationErrorKeepsSessionOpen(t *testing.T) {
	ch := newMockChannel(16 * 1024)
	s, rec := newTestSession(t, ch, "none")
	ch.open()

	s.Send(12345) // not bytes or string

	errs := rec.errsCopy()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], serialize.ErrNotEncodable)
	assert.Equal(t, StateOpen, s.State(), "a failed send must not close the session")

	s.Send("still works")
	require.Eventually(t, func() bool { return ch.sentCount() == 1 },
		time.Second, time.Millisecond)
}
