package socket

import (
	"errors"

	"github.com/park285/liru-go/internal/protocol"
)

type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateCallback runs on the goroutine that caused the transition. It may call
// Close, but from Closing it must bound the wait with a context since the
// calling loop cannot exit until the callback returns.
type StateCallback func(state State)

// Observer sees every admitted event, in order, on the receive goroutine.
// A malformed event arrives with Err set and a nil Event once its version has
// been consumed. Implementations must not block.
type Observer interface {
	Observe(d protocol.Decoded)
}

var (
	ErrQueueFull      = errors.New("socket: send queue full")
	ErrClosed         = errors.New("socket: closed")
	ErrAlreadyStarted = errors.New("socket: already started")
)
