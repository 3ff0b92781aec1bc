package sendqueue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink captures every successful hand-off and can be told to
// refuse specific entries a set number of times.
type recordingSink struct {
	mu       sync.Mutex
	sent     [][]byte
	failures map[string]int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{failures: make(map[string]int)}
}

func (s *recordingSink) failOnce(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[entry]++
}

func (s *recordingSink) sink(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[string(data)] > 0 {
		s.failures[string(data)]--
		return errors.New("channel refused entry")
	}
	s.sent = append(s.sent, data)
	return nil
}

func (s *recordingSink) sentStrings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, b := range s.sent {
		out[i] = string(b)
	}
	return out
}

func testConfig() *Config {
	return &Config{Interval: time.Millisecond}
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name      string
		interval  time.Duration
		wantError bool
	}{
		{"Default", DefaultInterval, false},
		{"Minimum", time.Nanosecond, false},
		{"Zero", 0, true},
		{"Negative", -time.Second, true},
		{"Too large", 2 * time.Second, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Interval: tc.interval}
			err := cfg.Validate()
			if tc.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScheduler_DrainsInOrder(t *testing.T) {
	sink := newRecordingSink()
	s, err := New(sink.sink, testConfig())
	require.NoError(t, err)
	defer s.Close()

	entries := []string{"one", "two", "three", "four"}
	for _, e := range entries {
		s.Enqueue([]byte(e))
	}

	require.Eventually(t, func() bool {
		return len(sink.sentStrings()) == len(entries)
	}, time.Second, time.Millisecond, "queue should drain")
	assert.Equal(t, entries, sink.sentStrings())
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_FIFOPreservedUnderRetry(t *testing.T) {
	sink := newRecordingSink()
	s, err := New(sink.sink, testConfig())
	require.NoError(t, err)
	defer s.Close()

	// The third entry fails once and succeeds on the next tick; overall
	// emission order must still equal enqueue order.
	sink.failOnce("three")

	entries := []string{"one", "two", "three", "four", "five"}
	for _, e := range entries {
		s.Enqueue([]byte(e))
	}

	require.Eventually(t, func() bool {
		return len(sink.sentStrings()) == len(entries)
	}, time.Second, time.Millisecond, "queue should drain despite the retry")
	assert.Equal(t, entries, sink.sentStrings())
}

func TestScheduler_RetriesUntilAccepted(t *testing.T) {
	sink := newRecordingSink()
	s, err := New(sink.sink, testConfig())
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 5; i++ {
		sink.failOnce("stubborn")
	}
	s.Enqueue([]byte("stubborn"))

	require.Eventually(t, func() bool {
		return len(sink.sentStrings()) == 1
	}, time.Second, time.Millisecond, "entry should eventually be accepted")
}

func TestScheduler_RestartsAfterIdle(t *testing.T) {
	sink := newRecordingSink()
	s, err := New(sink.sink, testConfig())
	require.NoError(t, err)
	defer s.Close()

	s.Enqueue([]byte("first"))
	require.Eventually(t, func() bool {
		return len(sink.sentStrings()) == 1
	}, time.Second, time.Millisecond)

	// The drain loop has stopped; a new enqueue must start it again.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.running
	}, time.Second, time.Millisecond, "loop should stop once the queue empties")

	s.Enqueue([]byte("second"))
	require.Eventually(t, func() bool {
		return len(sink.sentStrings()) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, sink.sentStrings())
}

func TestScheduler_CloseDiscardsQueue(t *testing.T) {
	var calls int
	var mu sync.Mutex
	blocked := func(data []byte) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("never ready")
	}

	s, err := New(blocked, testConfig())
	require.NoError(t, err)

	s.Enqueue([]byte("doomed-1"))
	s.Enqueue([]byte("doomed-2"))
	s.Close()

	assert.Equal(t, 0, s.Len(), "close must discard queued entries")

	// Enqueue after close is a no-op.
	s.Enqueue([]byte("late"))
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_CloseIsIdempotent(t *testing.T) {
	sink := newRecordingSink()
	s, err := New(sink.sink, testConfig())
	require.NoError(t, err)

	s.Close()
	s.Close()
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(func([]byte) error { return nil }, &Config{Interval: -1})
	require.Error(t, err)
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	s, err := New(func([]byte) error { return nil }, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, DefaultInterval, s.interval)
}
