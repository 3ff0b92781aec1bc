package session

// State is the lifecycle of a session. Transitions are one-way:
// pending → open on the channel-ready signal, and anything → closed on the
// channel-closed signal or an explicit Close.
type State int

const (
	// StatePending means the session is constructed but the channel has not
	// signalled ready; outbound values are buffered.
	StatePending State = iota
	// StateOpen means send and receive are both active.
	StateOpen
	// StateClosed is terminal: queued and in-flight data are discarded and
	// no further events fire.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
