package socket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/liru-go/internal/game"
	"github.com/park285/liru-go/internal/protocol"
)

const (
	readLimit    = 1 << 20
	writeTimeout = 5 * time.Second
)

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// Client owns one websocket connection to a game and keeps the shared state
// current. It runs a receive loop, an outbound loop and a heartbeat loop
// while open. A client is used once; after Closed it must be replaced.
type Client struct {
	url         string
	header      http.Header
	httpClient  *http.Client
	log         *zap.Logger
	clock       clockwork.Clock
	heartbeat   time.Duration
	queueSize   int
	dialTimeout time.Duration

	game      *game.State
	gate      *protocol.VersionGate
	latency   *game.LatencyRecorder
	observers []Observer

	conn  *websocket.Conn
	sendq chan []byte

	state  State
	stateM sync.RWMutex

	stateCbs []stateCallbackEntry
	nextCbID int
	cbM      sync.RWMutex

	pingSentAt time.Time
	pingM      sync.Mutex

	err  error
	errM sync.Mutex

	started    atomic.Bool
	stopCh     chan struct{}
	stopOnce   sync.Once
	finishOnce sync.Once
	wg         sync.WaitGroup
	done       chan struct{}

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// New prepares a client in the Connecting state. Nothing is dialled until Connect.
func New(url string, state *game.State, gate *protocol.VersionGate, latency *game.LatencyRecorder, opts ...Option) *Client {
	c := &Client{
		url:         url,
		header:      http.Header{},
		log:         zap.NewNop(),
		clock:       clockwork.NewRealClock(),
		heartbeat:   time.Second,
		queueSize:   64,
		dialTimeout: 10 * time.Second,
		game:        state,
		gate:        gate,
		latency:     latency,
		state:       StateConnecting,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sendq = make(chan []byte, c.queueSize)
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	return c
}

// Connect performs the handshake and starts the loops. A failed handshake
// leaves the client Closed with the error available from Err.
func (c *Client) Connect(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	c.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		HTTPClient:      c.httpClient,
		HTTPHeader:      c.header,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		err = fmt.Errorf("socket: dial: %w", err)
		c.log.Warn("socket_dial_failed", zap.String("url", c.url), zap.Error(err))
		c.setErr(err)
		c.stopOnce.Do(func() { close(c.stopCh) })
		c.finish()
		return err
	}
	conn.SetReadLimit(readLimit)
	c.conn = conn

	c.setState(StateOpen)
	c.log.Info("socket_open", zap.String("url", c.url), zap.Uint64("version", c.gate.Last()))

	c.wg.Add(3)
	go c.receiveLoop()
	go c.outboundLoop()
	go c.heartbeatLoop()
	go func() {
		c.wg.Wait()
		c.finish()
	}()
	return nil
}

// Enqueue hands a pre-serialised text frame to the outbound loop without blocking.
func (c *Client) Enqueue(frame []byte) error {
	if c.isStopping() {
		return ErrClosed
	}
	select {
	case c.sendq <- frame:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close asks the loops to stop and waits until they have, or ctx ends.
func (c *Client) Close(ctx context.Context) error {
	c.shutdown(nil)
	if c.started.CompareAndSwap(false, true) {
		c.finish()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return nil
	}
}

// Done is closed once the client reaches Closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the first transport error, or nil after a clean close.
func (c *Client) Err() error {
	c.errM.Lock()
	defer c.errM.Unlock()
	return c.err
}

func (c *Client) State() State {
	c.stateM.RLock()
	defer c.stateM.RUnlock()
	return c.state
}

func (c *Client) OnStateChange(cb StateCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	c.nextCbID++
	id := c.nextCbID
	c.stateCbs = append(c.stateCbs, stateCallbackEntry{id: id, callback: cb})
	return id
}

func (c *Client) RemoveStateCallback(id int) {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	for i, cb := range c.stateCbs {
		if cb.id == id {
			c.stateCbs = append(c.stateCbs[:i], c.stateCbs[i+1:]...)
			break
		}
	}
}

func (c *Client) receiveLoop() {
	defer c.wg.Done()
	for {
		typ, data, err := c.conn.Read(c.rootCtx)
		if err != nil {
			if c.isStopping() {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.log.Info("socket_peer_closed", zap.Int("status", int(websocket.CloseStatus(err))))
				c.shutdown(nil)
			default:
				c.log.Warn("socket_read_error", zap.Error(err))
				c.shutdown(fmt.Errorf("socket: read: %w", err))
			}
			return
		}
		if typ != websocket.MessageText {
			c.log.Debug("socket_binary_ignored", zap.Int("bytes", len(data)))
			continue
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	events, err := protocol.Decode(data)
	if err != nil {
		c.log.Warn("socket_decode_error", zap.Error(err), zap.ByteString("frame", truncate(data, 256)))
	}
	for _, d := range events {
		c.dispatch(d)
	}
}

func (c *Client) dispatch(d protocol.Decoded) {
	switch c.gate.Admit(d.Version) {
	case protocol.Duplicate:
		c.log.Debug("socket_duplicate", zap.Uint64("version", *d.Version), zap.Uint64("last", c.gate.Last()))
		return
	case protocol.Gap:
		c.log.Warn("socket_gap", zap.Uint64("version", *d.Version), zap.Uint64("last", c.gate.Last()))
		return
	}

	switch ev := d.Event.(type) {
	case nil:
		// Malformed payload: the version is consumed, the event is not applied.
		c.applyVersion(d.Version)
	case protocol.PongReceived:
		c.recordPong(ev.Hint)
		c.applyVersion(d.Version)
	case protocol.Unrecognized:
		c.log.Debug("socket_unrecognized", zap.String("tag", ev.Tag))
		c.applyVersion(d.Version)
	default:
		now := c.clock.Now()
		c.game.WithWrite(func(p *game.Pov) { apply(p, ev, d.Version, now) })
	}

	for _, o := range c.observers {
		o.Observe(d)
	}
}

func (c *Client) applyVersion(version *uint64) {
	if version == nil {
		return
	}
	c.game.WithWrite(func(p *game.Pov) { setVersion(p, *version) })
}

func (c *Client) outboundLoop() {
	defer c.wg.Done()
	defer c.closeConn(websocket.StatusNormalClosure, "")
	for {
		select {
		case <-c.stopCh:
			return
		case frame := <-c.sendq:
			if c.isStopping() {
				return
			}
			ctx, cancel := context.WithTimeout(c.rootCtx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				c.log.Warn("socket_write_error", zap.Error(err))
				c.shutdown(fmt.Errorf("socket: write: %w", err))
				return
			}
		}
	}
}

func (c *Client) heartbeatLoop() {
	defer c.wg.Done()
	t := c.clock.NewTicker(c.heartbeat)
	defer t.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.Chan():
			c.ping()
		}
	}
}

func (c *Client) ping() {
	c.pingM.Lock()
	prev := c.pingSentAt
	c.pingSentAt = c.clock.Now()
	c.pingM.Unlock()

	if err := c.Enqueue(protocol.Ping(c.gate.Last())); err != nil {
		c.pingM.Lock()
		c.pingSentAt = prev
		c.pingM.Unlock()
		if errors.Is(err, ErrQueueFull) {
			c.log.Debug("socket_ping_skipped")
		}
	}
}

// recordPong prefers the server's hint over the locally measured round trip.
// A pong without an outstanding ping and without a hint is ignored.
func (c *Client) recordPong(hint *time.Duration) {
	c.pingM.Lock()
	sentAt := c.pingSentAt
	c.pingSentAt = time.Time{}
	c.pingM.Unlock()

	switch {
	case hint != nil:
		c.latency.Add(*hint)
	case !sentAt.IsZero():
		c.latency.Add(c.clock.Since(sentAt))
	}
}

// shutdown records err if it is the first one and signals every loop to stop.
// Callbacks run outside the once so they may call Close.
func (c *Client) shutdown(err error) {
	if err != nil {
		c.setErr(err)
	}
	changed := false
	c.stopOnce.Do(func() {
		changed = c.transition(StateClosing)
		close(c.stopCh)
	})
	if changed {
		c.notify(StateClosing)
	}
}

// finish marks the client Closed and releases Done before notifying, so a
// Closed callback that calls Close returns at once.
func (c *Client) finish() {
	finished := false
	c.finishOnce.Do(func() {
		finished = c.transition(StateClosed)
		c.rootCancel()
		close(c.done)
		c.log.Info("socket_closed", zap.Error(c.Err()))
	})
	if finished {
		c.notify(StateClosed)
	}
}

func (c *Client) closeConn(code websocket.StatusCode, reason string) {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close(code, reason)
}

func (c *Client) setErr(err error) {
	c.errM.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errM.Unlock()
}

func (c *Client) setState(state State) {
	if c.transition(state) {
		c.notify(state)
	}
}

// transition reports whether the state actually changed. Closed is final and
// Open is never re-entered once Closing.
func (c *Client) transition(state State) bool {
	c.stateM.Lock()
	defer c.stateM.Unlock()
	if c.state == state || c.state == StateClosed || (state == StateOpen && c.state == StateClosing) {
		return false
	}
	c.state = state
	return true
}

func (c *Client) notify(state State) {
	c.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(c.stateCbs))
	copy(callbacks, c.stateCbs)
	c.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(state)
		}
	}
}

func (c *Client) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
