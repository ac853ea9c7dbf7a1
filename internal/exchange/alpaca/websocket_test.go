package alpaca

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/internal/feed"
	"github.com/your-org/trigger-trader/pkg/queue"
)

const (
	authOK  = `[{"T":"success","msg":"authenticated"}]`
	subOK   = `[{"T":"subscription","trades":["DIA"],"quotes":[],"bars":[]}]`
	sub406  = `[{"T":"error","code":406,"msg":"connection limit exceeded"}]`
	authBad = `[{"T":"error","code":402,"msg":"auth failed"}]`
)

// fakeVenue answers the handshake with the given responses and then runs
// after, if set, until the client goes away.
type fakeVenue struct {
	authResp string
	subResp  string
	after    func(conn *websocket.Conn)

	connections atomic.Int32
	mu          sync.Mutex
	received    []map[string]any
}

func (f *fakeVenue) handler(t *testing.T) http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		n := f.connections.Add(1)

		for _, resp := range []string{f.respFor(n, f.authResp), f.subResp} {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			f.mu.Lock()
			f.received = append(f.received, msg)
			f.mu.Unlock()
			if err := conn.WriteMessage(websocket.TextMessage, []byte(resp)); err != nil {
				return
			}
			if strings.Contains(resp, `"error"`) {
				return
			}
		}
		if f.after != nil {
			f.after(conn)
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}

// respFor lets a test fail the first connection's auth only.
func (f *fakeVenue) respFor(n int32, resp string) string {
	if resp == "first-fails" {
		if n == 1 {
			return authBad
		}
		return authOK
	}
	return resp
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestStream_DeliversConfiguredChannelOnly(t *testing.T) {
	venue := &fakeVenue{authResp: authOK, subResp: subOK, after: func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[
			{"T":"t","S":"DIA","p":476.51,"s":100,"c":["@","I"],"t":"2026-03-02T14:30:00Z"},
			{"T":"t","S":"SPY","p":600.00,"s":5},
			{"T":"q","S":"DIA","bp":476.50,"ap":476.52},
			{"T":"t","S":"DIA","p":0,"s":1}
		]`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"T":"t","S":"DIA","p":476.55,"s":3}]`))
	}}
	server := httptest.NewServer(venue.handler(t))
	defer server.Close()

	var modes []event.Mode
	var modeMu sync.Mutex
	c := NewStreamClient(StreamConfig{
		URL: wsURL(server), Key: "k", Secret: "s", Channel: ChannelTrades,
		OnMode: func(m event.Mode) { modeMu.Lock(); modes = append(modes, m); modeMu.Unlock() },
	})
	out := queue.New[event.Tick]()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Stream(ctx, "dia", out) }()

	require.Eventually(t, func() bool { return out.Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)

	first, _ := out.TryPop()
	second, _ := out.TryPop()
	assert.Equal(t, 476.51, first.Price)
	assert.Equal(t, 100.0, first.Size)
	assert.Equal(t, 476.55, second.Price)
	assert.Equal(t, "DIA", second.Symbol)

	venue.mu.Lock()
	defer venue.mu.Unlock()
	require.Len(t, venue.received, 2)
	assert.Equal(t, map[string]any{"action": "auth", "key": "k", "secret": "s"}, venue.received[0])
	assert.Equal(t, map[string]any{"action": "subscribe", "trades": []any{"DIA"}}, venue.received[1])

	modeMu.Lock()
	defer modeMu.Unlock()
	assert.Equal(t, []event.Mode{event.ModeLive}, modes)
}

func TestTicksFrom_ChannelMapping(t *testing.T) {
	msg := []byte(`[
		{"T":"t","S":"DIA","p":476.51,"s":100,"c":["@"]},
		{"T":"q","S":"DIA","bp":476.50,"ap":476.54,"c":["R"]},
		{"T":"q","S":"DIA","bp":0,"ap":476.54},
		{"T":"b","S":"DIA","o":476.1,"c":476.33,"v":1200},
		{"T":"b","S":"SPY","c":600.1}
	]`)
	cases := []struct {
		channel Channel
		want    []float64
	}{
		{ChannelTrades, []float64{476.51}},
		{ChannelQuotes, []float64{476.52}},
		{ChannelBars, []float64{476.33}},
	}
	for _, tc := range cases {
		t.Run(string(tc.channel), func(t *testing.T) {
			c := NewStreamClient(StreamConfig{Channel: tc.channel})
			var got []float64
			for _, tick := range c.ticksFrom(msg, "DIA") {
				got = append(got, tick.Price)
			}
			require.Len(t, got, len(tc.want))
			for i := range got {
				assert.InDelta(t, tc.want[i], got[i], 1e-9)
			}
		})
	}
}

func TestStream_ConnectionLimitExitsAfterCooldown(t *testing.T) {
	venue := &fakeVenue{authResp: authOK, subResp: sub406}
	server := httptest.NewServer(venue.handler(t))
	defer server.Close()

	c := NewStreamClient(StreamConfig{URL: wsURL(server), LimitCooldown: 80 * time.Millisecond})
	start := time.Now()
	err := c.Stream(context.Background(), "DIA", queue.New[event.Tick]())
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, int32(1), venue.connections.Load(), "no reconnect after 406")
}

func TestStream_WatchdogFallsBackWhenNoTicks(t *testing.T) {
	venue := &fakeVenue{authResp: authOK, subResp: subOK}
	server := httptest.NewServer(venue.handler(t))
	defer server.Close()

	var fallbackCalls atomic.Int32
	fallback := feed.SourceFunc(func(ctx context.Context, symbol string, out *queue.Queue[event.Tick]) error {
		fallbackCalls.Add(1)
		out.Push(event.Tick{Symbol: symbol, Price: 1})
		<-ctx.Done()
		return nil
	})
	var lastMode atomic.Value
	c := NewStreamClient(StreamConfig{
		URL: wsURL(server), WatchdogGrace: 50 * time.Millisecond, Fallback: fallback,
		OnMode: func(m event.Mode) { lastMode.Store(m) },
	})

	out := queue.New[event.Tick]()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Stream(ctx, "DIA", out) }()

	require.Eventually(t, func() bool { return out.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), fallbackCalls.Load())
	assert.Equal(t, event.ModeSim, lastMode.Load())
	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, int32(1), venue.connections.Load())
}

func TestStream_WatchdogQuietAfterFirstTick(t *testing.T) {
	venue := &fakeVenue{authResp: authOK, subResp: subOK, after: func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"T":"t","S":"DIA","p":476.51,"s":1}]`))
	}}
	server := httptest.NewServer(venue.handler(t))
	defer server.Close()

	var fallbackCalls atomic.Int32
	fallback := feed.SourceFunc(func(ctx context.Context, _ string, _ *queue.Queue[event.Tick]) error {
		fallbackCalls.Add(1)
		return nil
	})
	c := NewStreamClient(StreamConfig{URL: wsURL(server), WatchdogGrace: 30 * time.Millisecond, Fallback: fallback})

	out := queue.New[event.Tick]()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Stream(ctx, "DIA", out) }()

	require.Eventually(t, func() bool { return out.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, fallbackCalls.Load())
	assert.Equal(t, int32(1), venue.connections.Load())
	cancel()
	assert.NoError(t, <-done)
}

func TestStream_ReconnectsAfterAuthFailure(t *testing.T) {
	venue := &fakeVenue{authResp: "first-fails", subResp: subOK, after: func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"T":"t","S":"DIA","p":476.51,"s":1}]`))
	}}
	server := httptest.NewServer(venue.handler(t))
	defer server.Close()

	c := NewStreamClient(StreamConfig{URL: wsURL(server)})
	c.backoff = newBackoff(10*time.Millisecond, 40*time.Millisecond)

	out := queue.New[event.Tick]()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Stream(ctx, "DIA", out) }()

	require.Eventually(t, func() bool { return out.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), venue.connections.Load())
	assert.Equal(t, 10*time.Millisecond, c.backoff.next, "backoff reset after the successful handshake")
	cancel()
	assert.NoError(t, <-done)
}

func TestStream_CancelDuringBackoff(t *testing.T) {
	c := NewStreamClient(StreamConfig{URL: "ws://127.0.0.1:1/unreachable"})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	assert.NoError(t, c.Stream(ctx, "DIA", queue.New[event.Tick]()))
	assert.Less(t, time.Since(start), time.Second)
}
