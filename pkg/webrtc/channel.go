package webrtc

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// ErrChannelNotReady means the data channel has not reached the open state
// (or has left it); the send may be retried once it opens.
var ErrChannelNotReady = errors.New("data channel is not open")

// ErrChannelBackpressure means the channel's internal buffer is over its
// threshold; the send should be retried after the buffer drains.
var ErrChannelBackpressure = errors.New("data channel buffer over threshold")

const (
	// DefaultMaxMessageSize is a conservative bound on one SCTP message
	// that interoperates across implementations.
	DefaultMaxMessageSize = 16 * 1024
	// DefaultBufferedHighWater is the buffered-amount level above which
	// TrySend starts refusing entries.
	DefaultBufferedHighWater = 1 << 20
)

// ChannelConfig tunes the adapter around one data channel.
type ChannelConfig struct {
	MaxMessageSize    int
	BufferedHighWater uint64
}

// DefaultChannelConfig returns the adapter defaults.
func DefaultChannelConfig() *ChannelConfig {
	return &ChannelConfig{
		MaxMessageSize:    DefaultMaxMessageSize,
		BufferedHighWater: DefaultBufferedHighWater,
	}
}

// Validate checks the adapter configuration.
func (c *ChannelConfig) Validate() error {
	if c.MaxMessageSize <= 0 {
		return errors.New("max_message_size must be positive")
	}
	if c.BufferedHighWater == 0 {
		return errors.New("buffered_high_water must be positive")
	}
	return nil
}

// Channel adapts a pion data channel to the session.Channel contract:
// callback registration passes straight through, and TrySend refuses
// hand-offs instead of blocking when the channel is not ready or its buffer
// is full.
type Channel struct {
	dc  *webrtc.DataChannel
	cfg ChannelConfig
}

// NewChannel wraps a pion data channel. A nil config uses defaults.
func NewChannel(dc *webrtc.DataChannel, cfg *ChannelConfig) (*Channel, error) {
	if cfg == nil {
		cfg = DefaultChannelConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Channel{dc: dc, cfg: *cfg}, nil
}

func (c *Channel) OnOpen(f func()) {
	c.dc.OnOpen(f)
}

func (c *Channel) OnMessage(f func(data []byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		f(msg.Data)
	})
}

func (c *Channel) OnClose(f func()) {
	c.dc.OnClose(f)
}

// TrySend hands one message to the data channel without blocking.
func (c *Channel) TrySend(data []byte) error {
	if c.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("%w: state %s", ErrChannelNotReady, c.dc.ReadyState())
	}
	if c.dc.BufferedAmount() > c.cfg.BufferedHighWater {
		return fmt.Errorf("%w: %d buffered", ErrChannelBackpressure, c.dc.BufferedAmount())
	}
	return c.dc.Send(data)
}

// MaxMessageSize bounds one message, envelope included.
func (c *Channel) MaxMessageSize() int {
	return c.cfg.MaxMessageSize
}

// Label returns the data channel's label.
func (c *Channel) Label() string {
	return c.dc.Label()
}

func (c *Channel) Close() error {
	return c.dc.Close()
}
