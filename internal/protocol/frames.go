package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSquare    = errors.New("protocol: invalid square")
	ErrInvalidPromotion = errors.New("protocol: invalid promotion role")
)

type pingFrame struct {
	T string `json:"t"`
	V uint64 `json:"v"`
}

// Ping encodes a heartbeat ping stamped with the last known version.
func Ping(version uint64) []byte {
	b, _ := json.Marshal(pingFrame{T: "p", V: version})
	return b
}

// MoveCommand asks the server to play a move. Only the syntax of the squares
// and the promotion role is checked here, never legality.
type MoveCommand struct {
	From      string
	To        string
	Promotion *string
}

type moveFrame struct {
	T string   `json:"t"`
	D moveDest `json:"d"`
}

type moveDest struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Promotion *string `json:"promotion"`
}

func (m MoveCommand) Validate() error {
	if !isSquare(m.From) {
		return fmt.Errorf("%w: from %q", ErrInvalidSquare, m.From)
	}
	if !isSquare(m.To) {
		return fmt.Errorf("%w: to %q", ErrInvalidSquare, m.To)
	}
	if m.Promotion != nil && !isRole(*m.Promotion) {
		return fmt.Errorf("%w: %q", ErrInvalidPromotion, *m.Promotion)
	}
	return nil
}

// Encode validates and serialises the move frame.
func (m MoveCommand) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(moveFrame{T: "move", D: moveDest{From: m.From, To: m.To, Promotion: m.Promotion}})
}

// ParseUCI reads moves typed as "e2e4" or "e7e8q".
func ParseUCI(s string) (MoveCommand, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return MoveCommand{}, fmt.Errorf("%w: %q", ErrInvalidSquare, s)
	}
	m := MoveCommand{From: s[:2], To: s[2:4]}
	if len(s) == 5 {
		p := s[4:]
		m.Promotion = &p
	}
	return m, m.Validate()
}

func isSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

func isRole(s string) bool {
	switch s {
	case "q", "r", "b", "n", "k":
		return true
	}
	return false
}
