package journal

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Entry is one applied move as seen by the client.
type Entry struct {
	GameID  string
	Version uint64
	Ply     uint64
	FEN     string
	UCI     string
	SAN     string
	At      time.Time
}

// Journal stores applied moves. Recording the same (game, version) twice keeps
// the first entry.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Moves(ctx context.Context, gameID string) ([]Entry, error)
}

type key struct {
	game    string
	version uint64
}

type Memory struct {
	mu sync.RWMutex
	m  map[key]Entry
}

func NewMemory() *Memory { return &Memory{m: make(map[key]Entry)} }

func (j *Memory) Record(_ context.Context, e Entry) error {
	k := key{game: e.GameID, version: e.Version}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.m[k]; ok {
		return nil
	}
	j.m[k] = e
	return nil
}

// Moves returns the game's entries ordered by version.
func (j *Memory) Moves(_ context.Context, gameID string) ([]Entry, error) {
	j.mu.RLock()
	var out []Entry
	for k, e := range j.m {
		if k.game == gameID {
			out = append(out, e)
		}
	}
	j.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].Version < out[b].Version })
	return out, nil
}
