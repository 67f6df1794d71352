package socket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/park285/liru-go/internal/game"
	"github.com/park285/liru-go/internal/protocol"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// peer is an in-process game server that records frames sent by the client.
type peer struct {
	srv     *httptest.Server
	conns   chan *websocket.Conn
	frames  chan string
	headers chan http.Header
}

func newPeer(t *testing.T) *peer {
	t.Helper()
	p := &peer{
		conns:   make(chan *websocket.Conn, 1),
		frames:  make(chan string, 64),
		headers: make(chan http.Header, 1),
	}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.headers <- r.Header.Clone()
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		p.conns <- conn
		for {
			typ, data, err := conn.Read(context.Background())
			if err != nil {
				return
			}
			if typ == websocket.MessageText {
				p.frames <- string(data)
			}
		}
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *peer) url() string { return "ws" + strings.TrimPrefix(p.srv.URL, "http") + "/play/abc/v6" }

func (p *peer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-p.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection")
		return nil
	}
}

func (p *peer) next(t *testing.T) string {
	t.Helper()
	select {
	case f := <-p.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame")
		return ""
	}
}

func send(t *testing.T, c *websocket.Conn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(frame)))
}

type recorder struct {
	mu  sync.Mutex
	got []protocol.Decoded
}

func (r *recorder) Observe(d protocol.Decoded) {
	r.mu.Lock()
	r.got = append(r.got, d)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

type fixture struct {
	client  *Client
	state   *game.State
	gate    *protocol.VersionGate
	latency *game.LatencyRecorder
	clock   *clockwork.FakeClock
}

func newFixture(t *testing.T, url string, version uint64, opts ...Option) *fixture {
	t.Helper()
	fc := clockwork.NewFakeClockAt(t0)
	v := version
	pov := game.Pov{
		Game:   game.Game{ID: "abc", FEN: "start", Player: game.White},
		Clock:  game.NewClock(60*time.Second, 60*time.Second, time.Time{}),
		Player: game.Player{Color: game.White, Version: &v},
	}
	f := &fixture{
		state:   game.NewState(pov, fc),
		gate:    protocol.NewVersionGate(version),
		latency: game.NewLatencyRecorder(),
		clock:   fc,
	}
	opts = append([]Option{WithClock(fc), WithHeartbeatInterval(time.Hour)}, opts...)
	f.client = New(url, f.state, f.gate, f.latency, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = f.client.Close(ctx)
	})
	return f
}

func TestClientAppliesInOrderAndDropsDuplicatesAndGaps(t *testing.T) {
	p := newPeer(t)
	rec := &recorder{}
	f := newFixture(t, p.url(), 3, WithObserver(rec))
	require.NoError(t, f.client.Connect(context.Background()))
	srv := p.accept(t)

	send(t, srv, `{"v":4,"t":"move","d":{"fen":"X","ply":7,"uci":"e2e4","san":"e4"}}`)
	send(t, srv, `{"v":4,"t":"move","d":{"fen":"Y","ply":8}}`)
	send(t, srv, `{"v":6,"t":"move","d":{"fen":"Z","ply":9}}`)
	send(t, srv, `{"v":5,"t":"crowd","d":{"white":true,"black":true,"watchers":{"nb":2}}}`)

	require.Eventually(t, func() bool { return rec.len() == 2 }, 2*time.Second, 10*time.Millisecond)

	snap := f.state.Snapshot()
	assert.Equal(t, "X", snap.Game.FEN)
	assert.Equal(t, uint64(7), snap.Game.Turns)
	assert.Equal(t, game.Black, snap.Game.Player)
	require.NotNil(t, snap.Game.LastMove)
	assert.Equal(t, "e2e4", *snap.Game.LastMove)
	require.NotNil(t, snap.Crowd)
	assert.Equal(t, 2, snap.Crowd.Watchers.Nb)
	assert.Equal(t, uint64(5), snap.Version())
	assert.Equal(t, uint64(5), f.gate.Last())
}

func TestClientBatchAppliedInArrayOrder(t *testing.T) {
	p := newPeer(t)
	rec := &recorder{}
	f := newFixture(t, p.url(), 4, WithObserver(rec))
	require.NoError(t, f.client.Connect(context.Background()))
	srv := p.accept(t)

	f.clock.Advance(5 * time.Second)
	send(t, srv, `{"t":"b","d":[{"v":5,"t":"move","d":{"fen":"A","ply":1,"clock":{"white":50,"black":60}}},{"v":6,"t":"clock","d":{"white":49,"black":58}}]}`)
	require.Eventually(t, func() bool { return rec.len() == 2 }, 2*time.Second, 10*time.Millisecond)

	snap := f.state.Snapshot()
	assert.Equal(t, "A", snap.Game.FEN)
	assert.Equal(t, 49*time.Second, snap.Clock.White)
	assert.Equal(t, 58*time.Second, snap.Clock.Black)
	assert.Equal(t, t0.Add(5*time.Second), snap.Clock.UpdatedAt())
	assert.IsType(t, protocol.MoveApplied{}, rec.got[0].Event)
	assert.IsType(t, protocol.ClockUpdated{}, rec.got[1].Event)
}

func TestClientMalformedEventConsumesVersion(t *testing.T) {
	p := newPeer(t)
	rec := &recorder{}
	f := newFixture(t, p.url(), 4, WithObserver(rec))
	require.NoError(t, f.client.Connect(context.Background()))
	srv := p.accept(t)

	send(t, srv, `{"v":5,"t":"move","d":{"ply":3}}`)
	send(t, srv, `{"v":6,"t":"move","d":{"fen":"B","ply":4}}`)
	require.Eventually(t, func() bool { return rec.len() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "B", f.state.Snapshot().Game.FEN)
	assert.Equal(t, uint64(6), f.gate.Last())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Nil(t, rec.got[0].Event)
	assert.Error(t, rec.got[0].Err)
	require.NotNil(t, rec.got[0].Version)
	assert.Equal(t, uint64(5), *rec.got[0].Version)
	assert.IsType(t, protocol.MoveApplied{}, rec.got[1].Event)
}

func TestClientVersionedPongAdvancesPovVersion(t *testing.T) {
	p := newPeer(t)
	f := newFixture(t, p.url(), 3)
	require.NoError(t, f.client.Connect(context.Background()))
	srv := p.accept(t)

	send(t, srv, `{"v":4,"t":"n","d":12}`)
	require.Eventually(t, func() bool { return f.latency.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(4), f.gate.Last())
	pov := f.state.Snapshot()
	assert.Equal(t, uint64(4), pov.Version())
}

func TestClientSendsMoveOnce(t *testing.T) {
	p := newPeer(t)
	f := newFixture(t, p.url(), 0)
	require.NoError(t, f.client.Connect(context.Background()))
	p.accept(t)

	frame, err := protocol.MoveCommand{From: "e2", To: "e4"}.Encode()
	require.NoError(t, err)
	require.NoError(t, f.client.Enqueue(frame))

	assert.JSONEq(t, `{"t":"move","d":{"from":"e2","to":"e4","promotion":null}}`, p.next(t))
	select {
	case extra := <-p.frames:
		t.Fatalf("unexpected frame %s", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClientHeartbeatMeasuresLatency(t *testing.T) {
	p := newPeer(t)
	f := newFixture(t, p.url(), 3, WithHeartbeatInterval(time.Second))
	require.NoError(t, f.client.Connect(context.Background()))
	srv := p.accept(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(time.Second)

	assert.JSONEq(t, `{"t":"p","v":3}`, p.next(t))
	f.clock.Advance(40 * time.Millisecond)
	send(t, srv, `{"t":"n"}`)

	require.Eventually(t, func() bool { return f.latency.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 40*time.Millisecond, f.latency.Last())

	// A second pong without a fresh ping carries no sample.
	send(t, srv, `{"t":"n"}`)
	send(t, srv, `{"t":"n","d":{"latency":25}}`)
	require.Eventually(t, func() bool { return f.latency.Len() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 25*time.Millisecond, f.latency.Last())
}

func TestClientPeerCloseEndsSession(t *testing.T) {
	p := newPeer(t)
	f := newFixture(t, p.url(), 0)

	var mu sync.Mutex
	var states []State
	f.client.OnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, f.client.Connect(context.Background()))
	srv := p.accept(t)
	require.Equal(t, StateOpen, f.client.State())

	go func() { _ = srv.Close(websocket.StatusNormalClosure, "bye") }()

	select {
	case <-f.client.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("client did not close")
	}
	assert.Equal(t, StateClosed, f.client.State())
	assert.NoError(t, f.client.Err())
	assert.ErrorIs(t, f.client.Enqueue([]byte(`{}`)), ErrClosed)

	// The Closed callback runs just after Done is released.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 3
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateOpen, StateClosing, StateClosed}, states)
}

func TestClientCloseSendsCloseFrame(t *testing.T) {
	p := newPeer(t)
	f := newFixture(t, p.url(), 0)
	require.NoError(t, f.client.Connect(context.Background()))
	p.accept(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, f.client.Close(ctx))
	assert.Equal(t, StateClosed, f.client.State())
	assert.NoError(t, f.client.Err())
}

func TestClientDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := newFixture(t, "ws"+strings.TrimPrefix(srv.URL, "http"), 0)
	err := f.client.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateClosed, f.client.State())
	assert.Error(t, f.client.Err())
	select {
	case <-f.client.Done():
	default:
		t.Fatal("done not closed after dial failure")
	}
	assert.ErrorIs(t, f.client.Connect(context.Background()), ErrAlreadyStarted)
}

func TestClientHandshakeHeaders(t *testing.T) {
	p := newPeer(t)
	f := newFixture(t, p.url(), 0, WithCookie("lila2=abc"), WithUserAgent("liru/test"))
	require.NoError(t, f.client.Connect(context.Background()))
	h := <-p.headers
	assert.Equal(t, "lila2=abc", h.Get("Cookie"))
	assert.Equal(t, "liru/test", h.Get("User-Agent"))
}

func TestEnqueueQueueFull(t *testing.T) {
	f := newFixture(t, "ws://127.0.0.1:1", 0, WithQueueSize(1))
	require.NoError(t, f.client.Enqueue([]byte(`{"t":"p","v":0}`)))
	assert.ErrorIs(t, f.client.Enqueue([]byte(`{"t":"p","v":0}`)), ErrQueueFull)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.client.Close(ctx))
	assert.Equal(t, StateClosed, f.client.State())
}

func TestClientCloseFromStateCallback(t *testing.T) {
	p := newPeer(t)
	f := newFixture(t, p.url(), 0)

	var nested []error
	var mu sync.Mutex
	f.client.OnStateChange(func(s State) {
		if s != StateClosing && s != StateClosed {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		err := f.client.Close(ctx)
		mu.Lock()
		nested = append(nested, err)
		mu.Unlock()
	})
	require.NoError(t, f.client.Connect(context.Background()))
	p.accept(t)

	closed := make(chan error, 1)
	go func() { closed <- f.client.Close(context.Background()) }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatalf("Close did not return (state=%s)", f.client.State())
	}
	assert.Equal(t, StateClosed, f.client.State())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(nested) == 2
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	// From Closed, Done is already released.
	assert.NoError(t, nested[1])
}

func TestClientPeerCloseWithClosingCallback(t *testing.T) {
	p := newPeer(t)
	f := newFixture(t, p.url(), 0)
	f.client.OnStateChange(func(s State) {
		if s == StateClosing {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_ = f.client.Close(ctx)
		}
	})
	require.NoError(t, f.client.Connect(context.Background()))
	srv := p.accept(t)

	go func() { _ = srv.Close(websocket.StatusGoingAway, "restart") }()
	select {
	case <-f.client.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("client stuck in %s", f.client.State())
	}
	assert.Equal(t, StateClosed, f.client.State())
}
