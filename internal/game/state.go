package game

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State guards the live Pov shared between the socket receive loop (writer)
// and renderers (readers).
type State struct {
	mu    sync.RWMutex
	pov   Pov
	clock clockwork.Clock
}

// NewState takes ownership of pov and stamps its clock, if any, at the
// current instant.
func NewState(pov Pov, clock clockwork.Clock) *State {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if pov.Clock != nil {
		pov.Clock.Stamp(clock.Now())
	}
	return &State{pov: pov, clock: clock}
}

// Now is the state's time source.
func (s *State) Now() time.Time { return s.clock.Now() }

func (s *State) WithRead(fn func(p *Pov)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.pov)
}

func (s *State) WithWrite(fn func(p *Pov)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.pov)
}

// Snapshot returns a deep copy safe to use without holding any lock.
func (s *State) Snapshot() Pov {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pov.Clone()
}

// Tick charges the side to move for the time since the clock's last stamp.
// Finished games and games without a clock are left alone.
func (s *State) Tick() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pov.Clock == nil || s.pov.Ended {
		return
	}
	s.pov.Clock.Tick(s.pov.Game.Player, now)
}
