package protocol

import "sync/atomic"

type Decision int

const (
	Accept Decision = iota
	Duplicate
	Gap
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Duplicate:
		return "duplicate"
	case Gap:
		return "gap"
	default:
		return "unknown"
	}
}

// VersionGate admits versioned events strictly one after another. The last
// admitted version never decreases.
type VersionGate struct {
	last atomic.Uint64
}

// NewVersionGate starts at the version reported by the initial snapshot.
func NewVersionGate(start uint64) *VersionGate {
	g := &VersionGate{}
	g.last.Store(start)
	return g
}

// Admit classifies version against the last admitted one and advances on Accept.
// Unversioned events are always accepted.
func (g *VersionGate) Admit(version *uint64) Decision {
	if version == nil {
		return Accept
	}
	for {
		last := g.last.Load()
		switch {
		case *version <= last:
			return Duplicate
		case *version > last+1:
			return Gap
		}
		if g.last.CompareAndSwap(last, *version) {
			return Accept
		}
	}
}

// Last is safe to call from any goroutine.
func (g *VersionGate) Last() uint64 { return g.last.Load() }
