package protocol

import (
	"time"

	"github.com/park285/liru-go/internal/game"
)

// Event is one decoded inbound domain event. The set of implementations is
// closed; consumers switch on the concrete type and keep a default branch.
type Event interface {
	event()
}

// MoveApplied carries the position after a move.
type MoveApplied struct {
	FEN   string      `json:"fen"`
	Ply   uint64      `json:"ply"`
	UCI   string      `json:"uci,omitempty"`
	SAN   string      `json:"san,omitempty"`
	Clock *game.Clock `json:"clock,omitempty"`
}

// ClockUpdated replaces both clocks outright.
type ClockUpdated struct {
	Clock game.Clock
}

// PongReceived acknowledges a heartbeat ping. Hint is the server-reported
// latency, when the payload carried one.
type PongReceived struct {
	Hint *time.Duration
}

type CrowdUpdated struct {
	Crowd game.Crowd
}

// GameEnded marks the end of the game. Winner is nil on a draw or when the
// server did not say.
type GameEnded struct {
	Winner *game.Color
}

// Unrecognized is any tag without a decoder. Tag is empty when the frame had none.
type Unrecognized struct {
	Tag string
}

func (MoveApplied) event()  {}
func (ClockUpdated) event() {}
func (PongReceived) event() {}
func (CrowdUpdated) event() {}
func (GameEnded) event()    {}
func (Unrecognized) event() {}

// Decoded pairs an event with the version of the frame it came from.
// Err is set, and Event nil, when the payload of a known tag was malformed.
type Decoded struct {
	Event   Event
	Version *uint64
	Err     error
}
