package cookiestore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTTL matches the lifetime of a lichess remember-me session.
const DefaultTTL = 30 * 24 * time.Hour

// Store persists a user's session cookies between runs. Load returns a nil map
// and no error when nothing is stored.
type Store interface {
	Load(ctx context.Context, user string) (map[string]string, error)
	Save(ctx context.Context, user string, cookies map[string]string, ttl time.Duration) error
	Forget(ctx context.Context, user string) error
}

func normalizeUser(user string) string { return strings.ToLower(strings.TrimSpace(user)) }

type memEntry struct {
	cookies map[string]string
	expires time.Time
}

// Memory keeps cookies for the life of the process.
type Memory struct {
	mu    sync.Mutex
	m     map[string]memEntry
	clock clockwork.Clock
}

func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{m: make(map[string]memEntry), clock: clock}
}

func (s *Memory) Load(_ context.Context, user string) (map[string]string, error) {
	key := normalizeUser(user)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return nil, nil
	}
	if !e.expires.IsZero() && !s.clock.Now().Before(e.expires) {
		delete(s.m, key)
		return nil, nil
	}
	return copyCookies(e.cookies), nil
}

func (s *Memory) Save(_ context.Context, user string, cookies map[string]string, ttl time.Duration) error {
	key := normalizeUser(user)
	if key == "" || len(cookies) == 0 {
		return nil
	}
	e := memEntry{cookies: copyCookies(cookies)}
	if ttl > 0 {
		e.expires = s.clock.Now().Add(ttl)
	}
	s.mu.Lock()
	s.m[key] = e
	s.mu.Unlock()
	return nil
}

func (s *Memory) Forget(_ context.Context, user string) error {
	s.mu.Lock()
	delete(s.m, normalizeUser(user))
	s.mu.Unlock()
	return nil
}

func copyCookies(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
