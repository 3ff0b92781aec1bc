package session

// Channel is the underlying message-oriented transport a session is bound
// to. It delivers discrete messages up to MaxMessageSize bytes and makes no
// promises about values larger than that; everything above the bound is this
// package's problem.
//
// Implementations invoke the registered callbacks from a single goroutine.
type Channel interface {
	// OnOpen registers the channel-ready signal.
	OnOpen(func())
	// OnMessage registers the handler for raw inbound messages.
	OnMessage(func(data []byte))
	// OnClose registers the channel-closed signal.
	OnClose(func())

	// TrySend hands one message to the channel. A non-nil error means the
	// channel cannot take it right now (not ready, or its internal buffer
	// is over threshold); the caller may retry later.
	TrySend(data []byte) error

	// MaxMessageSize is the channel's bound on a single message, envelope
	// included.
	MaxMessageSize() int

	Close() error
}
