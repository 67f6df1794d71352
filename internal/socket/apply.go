package socket

import (
	"time"

	"github.com/park285/liru-go/internal/game"
	"github.com/park285/liru-go/internal/protocol"
)

// apply mutates p for one admitted event. Authoritative clocks replace the
// local one outright and are stamped at now, which resets drift.
func apply(p *game.Pov, ev protocol.Event, version *uint64, now time.Time) {
	if version != nil {
		setVersion(p, *version)
	}
	switch e := ev.(type) {
	case protocol.MoveApplied:
		p.Game.FEN = e.FEN
		p.Game.Turns = e.Ply
		p.Game.Player = game.ToMove(e.Ply)
		if e.UCI != "" {
			uci := e.UCI
			p.Game.LastMove = &uci
		}
		if e.SAN != "" {
			san := e.SAN
			p.Game.LastMoveSAN = &san
		}
		if e.Clock != nil {
			c := *e.Clock
			c.Stamp(now)
			p.Clock = &c
		}
	case protocol.ClockUpdated:
		c := e.Clock
		c.Stamp(now)
		p.Clock = &c
	case protocol.CrowdUpdated:
		crowd := e.Crowd
		p.Crowd = &crowd
	case protocol.GameEnded:
		p.Ended = true
		p.Winner = e.Winner
	}
}

func setVersion(p *game.Pov, v uint64) {
	p.Player.Version = &v
}
