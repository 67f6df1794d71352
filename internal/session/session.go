package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/liru-go/internal/game"
	"github.com/park285/liru-go/internal/protocol"
	"github.com/park285/liru-go/internal/socket"
)

var (
	ErrNoSocketPath = errors.New("session: snapshot has no socket path")
	ErrNoSocketBase = errors.New("session: socket base url not set")
)

// SnapshotFetcher loads the initial round payload for a game path.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, path string) ([]byte, error)
}

// cookieSource is implemented by fetchers that carry a signed-in session.
type cookieSource interface {
	CookieHeader() string
}

type config struct {
	socketBase string
	cookie     string
	userAgent  string
	sri        string
	log        *zap.Logger
	clock      clockwork.Clock
	heartbeat  time.Duration
	queueSize  int
	observers  []socket.Observer
	factories  []func(game.Pov) socket.Observer
}

type Option func(*config)

// WithSocketBase sets the websocket origin, e.g. wss://socket.lichess.org.
func WithSocketBase(base string) Option {
	return func(c *config) { c.socketBase = strings.TrimRight(base, "/") }
}

// WithCookie overrides the cookie taken from the fetcher.
func WithCookie(cookie string) Option { return func(c *config) { c.cookie = cookie } }

func WithUserAgent(ua string) Option { return func(c *config) { c.userAgent = ua } }

// WithSRI fixes the socket request id instead of a random one.
func WithSRI(sri string) Option { return func(c *config) { c.sri = sri } }

func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithHeartbeatInterval(d time.Duration) Option { return func(c *config) { c.heartbeat = d } }

func WithQueueSize(n int) Option { return func(c *config) { c.queueSize = n } }

func WithObserver(o socket.Observer) Option {
	return func(c *config) { c.observers = append(c.observers, o) }
}

// WithObserverFor builds an observer from the fetched snapshot, for observers
// that need the game id. A nil result is skipped.
func WithObserverFor(fn func(pov game.Pov) socket.Observer) Option {
	return func(c *config) { c.factories = append(c.factories, fn) }
}

// Session is one connected point of view on a game.
type Session struct {
	sri     string
	path    string
	state   *game.State
	latency *game.LatencyRecorder
	gate    *protocol.VersionGate
	client  *socket.Client
	log     *zap.Logger
}

// Open fetches the snapshot at path, builds the shared state and connects the
// socket advertised by the snapshot.
func Open(ctx context.Context, fetcher SnapshotFetcher, path string, opts ...Option) (*Session, error) {
	cfg := config{
		clock: clockwork.NewRealClock(),
		log:   zap.NewNop(),
	}
	if cs, ok := fetcher.(cookieSource); ok {
		cfg.cookie = cs.CookieHeader()
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.socketBase == "" {
		return nil, ErrNoSocketBase
	}
	if cfg.sri == "" {
		cfg.sri = uuid.NewString()
	}
	log := cfg.log.With(zap.String("path", path), zap.String("sri", cfg.sri))

	raw, err := fetcher.FetchSnapshot(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("session: fetch %s: %w", path, err)
	}
	var pov game.Pov
	if err := json.Unmarshal(raw, &pov); err != nil {
		return nil, fmt.Errorf("session: decode snapshot: %w", err)
	}
	if pov.URL.Socket == "" {
		return nil, ErrNoSocketPath
	}

	version := pov.Version()
	wsURL, err := SocketURL(cfg.socketBase, pov.URL.Socket, cfg.sri, version)
	if err != nil {
		return nil, err
	}

	s := &Session{
		sri:     cfg.sri,
		path:    path,
		state:   game.NewState(pov, cfg.clock),
		latency: game.NewLatencyRecorder(),
		gate:    protocol.NewVersionGate(version),
		log:     log,
	}

	sockOpts := []socket.Option{
		socket.WithLogger(log),
		socket.WithClock(cfg.clock),
		socket.WithHeartbeatInterval(cfg.heartbeat),
		socket.WithQueueSize(cfg.queueSize),
		socket.WithCookie(cfg.cookie),
		socket.WithUserAgent(cfg.userAgent),
	}
	for _, o := range cfg.observers {
		sockOpts = append(sockOpts, socket.WithObserver(o))
	}
	for _, fn := range cfg.factories {
		if o := fn(pov); o != nil {
			sockOpts = append(sockOpts, socket.WithObserver(o))
		}
	}
	s.client = socket.New(wsURL, s.state, s.gate, s.latency, sockOpts...)
	if err := s.client.Connect(ctx); err != nil {
		return nil, err
	}
	log.Info("session_open", zap.String("game", pov.Game.ID), zap.Uint64("version", version))
	return s, nil
}

// SocketURL joins base and the advertised socket path and adds sri and version.
func SocketURL(base, socketPath, sri string, version uint64) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + strings.TrimLeft(socketPath, "/"))
	if err != nil {
		return "", fmt.Errorf("session: socket url: %w", err)
	}
	q := u.Query()
	q.Set("sri", sri)
	q.Set("version", strconv.FormatUint(version, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Session) SRI() string { return s.sri }

func (s *Session) Path() string { return s.path }

// State is the live game state; take a Snapshot to render.
func (s *Session) State() *game.State { return s.state }

func (s *Session) Latency() *game.LatencyRecorder { return s.latency }

func (s *Session) SocketState() socket.State { return s.client.State() }

// SendMove validates and queues a move. It never waits on the network.
func (s *Session) SendMove(from, to string, promotion *string) error {
	return s.Send(protocol.MoveCommand{From: from, To: to, Promotion: promotion})
}

func (s *Session) Send(m protocol.MoveCommand) error {
	frame, err := m.Encode()
	if err != nil {
		return err
	}
	if err := s.client.Enqueue(frame); err != nil {
		s.log.Warn("session_move_dropped", zap.String("from", m.From), zap.String("to", m.To), zap.Error(err))
		return err
	}
	return nil
}

func (s *Session) Close(ctx context.Context) error { return s.client.Close(ctx) }

// Done is closed when the connection is gone for good.
func (s *Session) Done() <-chan struct{} { return s.client.Done() }

func (s *Session) Err() error { return s.client.Err() }
