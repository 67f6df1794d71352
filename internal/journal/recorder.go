package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/liru-go/internal/protocol"
)

// Recorder turns admitted move events into journal entries on its own
// goroutine. Observe never blocks; when the queue is full the entry is dropped.
type Recorder struct {
	j      Journal
	gameID string
	clock  clockwork.Clock
	log    *zap.Logger

	q       chan Entry
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	done    chan struct{}
}

type RecorderOption func(*Recorder)

func WithRecorderLogger(l *zap.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

func WithRecorderClock(c clockwork.Clock) RecorderOption {
	return func(r *Recorder) {
		if c != nil {
			r.clock = c
		}
	}
}

func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.q = make(chan Entry, n)
		}
	}
}

func NewRecorder(j Journal, gameID string, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		j:      j,
		gameID: gameID,
		clock:  clockwork.NewRealClock(),
		log:    zap.NewNop(),
		q:      make(chan Entry, 256),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// Observe implements socket.Observer.
func (r *Recorder) Observe(d protocol.Decoded) {
	m, ok := d.Event.(protocol.MoveApplied)
	if !ok || d.Version == nil {
		return
	}
	e := Entry{
		GameID:  r.gameID,
		Version: *d.Version,
		Ply:     m.Ply,
		FEN:     m.FEN,
		UCI:     m.UCI,
		SAN:     m.SAN,
		At:      r.clock.Now(),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.q <- e:
	default:
		r.dropped.Add(1)
		r.log.Warn("journal_queue_full", zap.String("game", r.gameID), zap.Uint64("version", e.Version))
	}
}

// Dropped counts entries lost to a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Close stops accepting entries and waits for queued ones to be written.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.q)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.q {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.j.Record(ctx, e); err != nil {
			r.log.Warn("journal_record_failed", zap.String("game", e.GameID), zap.Uint64("version", e.Version), zap.Error(err))
		}
		cancel()
	}
}
