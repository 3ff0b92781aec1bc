// Package sendqueue paces outbound messages onto a data channel. Entries
// drain one per tick so the channel's own buffering is never overwhelmed,
// and a failed hand-off is retried on the next tick without reordering
// anything behind it.
package sendqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Sink hands one packed message to the underlying channel. A non-nil error
// means the channel could not take it right now and the entry will be
// retried.
type Sink func(data []byte) error

// Config holds the scheduler's pacing settings.
type Config struct {
	// Interval is the drain period; exactly one entry is attempted per tick.
	Interval time.Duration
}

// DefaultInterval paces roughly twenty messages per second, enough to keep a
// data channel busy without flooding its buffer.
const DefaultInterval = 50 * time.Millisecond

// DefaultConfig returns the scheduler's default pacing settings.
func DefaultConfig() *Config {
	return &Config{Interval: DefaultInterval}
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if c.Interval > time.Second {
		return errors.New("interval must not exceed one second")
	}
	return nil
}

// Scheduler is a FIFO outbound queue drained on a fixed timer. The drain
// loop runs only while the queue is non-empty; an idle scheduler holds no
// goroutine and no ticker.
type Scheduler struct {
	sink     Sink
	interval time.Duration

	mu      sync.Mutex
	queue   [][]byte
	running bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler draining into sink. A nil config uses defaults.
func New(sink Sink, cfg *Config) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sink:     sink,
		interval: cfg.Interval,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Enqueue appends an entry to the tail of the queue and starts the drain
// loop if it is not already running. Entries enqueued after Close are
// dropped.
func (s *Scheduler) Enqueue(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.queue = append(s.queue, data)
	if !s.running {
		s.running = true
		s.wg.Add(1)
		go s.drain()
	}
}

// Len reports how many entries are waiting.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops the drain loop and discards queued entries. It is safe to
// call more than once.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	dropped := len(s.queue)
	s.queue = nil
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	if dropped > 0 {
		slog.Debug("Dropped queued entries on close", "count", dropped)
	}
}

// drain pops one entry per tick until the queue empties, then exits. The
// empty check happens under the same lock that flips running, so an Enqueue
// racing with loop exit either sees running still set or starts a new loop.
func (s *Scheduler) drain() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.tick() {
				return
			}
		}
	}
}

// tick attempts one hand-off and reports whether the loop should stop.
func (s *Scheduler) tick() bool {
	s.mu.Lock()
	if s.closed || len(s.queue) == 0 {
		s.running = false
		s.mu.Unlock()
		return true
	}
	entry := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()

	if err := s.sink(entry); err != nil {
		// Back to the head, not the tail: a retried entry must not slip
		// behind entries enqueued after it.
		s.mu.Lock()
		if !s.closed {
			s.queue = append([][]byte{entry}, s.queue...)
		}
		s.mu.Unlock()
		slog.Debug("Channel refused entry, will retry", "error", err)
		return false
	}

	s.mu.Lock()
	stop := len(s.queue) == 0
	if stop {
		s.running = false
	}
	s.mu.Unlock()
	return stop
}
