package alpaca

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/internal/feed"
	"github.com/your-org/trigger-trader/internal/metrics"
	"github.com/your-org/trigger-trader/pkg/logger"
	"github.com/your-org/trigger-trader/pkg/queue"
)

// DefaultStreamURL is the IEX market data stream.
const DefaultStreamURL = "wss://stream.data.alpaca.markets/v2/iex"

// StreamConfig configures a StreamClient. Zero durations take the venue
// defaults.
type StreamConfig struct {
	URL           string
	Key           string
	Secret        string
	Channel       Channel
	WatchdogGrace time.Duration // default 15s
	LimitCooldown time.Duration // default 60s
	PingInterval  time.Duration // default 20s
	LogTicks      bool

	// Fallback streams for the rest of the run once the watchdog fires. Nil
	// disables the fallback and the stream reconnects instead.
	Fallback feed.Source
	// OnMode is told which source is delivering ticks.
	OnMode func(event.Mode)
}

// StreamClient is the live tick source.
type StreamClient struct {
	cfg     StreamConfig
	backoff *Backoff
	dialer  *websocket.Dialer
}

// NewStreamClient creates a StreamClient.
func NewStreamClient(cfg StreamConfig) *StreamClient {
	if cfg.URL == "" {
		cfg.URL = DefaultStreamURL
	}
	if cfg.Channel == "" {
		cfg.Channel = ChannelTrades
	}
	if cfg.WatchdogGrace <= 0 {
		cfg.WatchdogGrace = 15 * time.Second
	}
	if cfg.LimitCooldown <= 0 {
		cfg.LimitCooldown = 60 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.OnMode == nil {
		cfg.OnMode = func(event.Mode) {}
	}
	return &StreamClient{
		cfg:     cfg,
		backoff: NewBackoff(),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Stream implements feed.Source. It reconnects on transport failures until
// ctx is done. It returns nil without reconnecting after a connection-limit
// rejection, once the cooldown has passed; the caller restarts it.
func (c *StreamClient) Stream(ctx context.Context, symbol string, out *queue.Queue[event.Tick]) error {
	symbol = strings.ToUpper(symbol)
	logger.Infof("[ALPACA-WS] connecting to %s channel=%s symbol=%s", c.cfg.URL, c.cfg.Channel, symbol)

	for {
		starved, err := c.session(ctx, symbol, out)
		if ctx.Err() != nil {
			return nil
		}

		switch {
		case errors.Is(err, ErrConnectionLimit):
			logger.Warnf("[ALPACA-WS] connection limit exceeded (406), backing off %s and exiting stream", c.cfg.LimitCooldown)
			sleep(ctx, c.cfg.LimitCooldown)
			return nil
		case starved && c.cfg.Fallback != nil:
			logger.Warnf("[ALPACA-WS] no ticks for %s on %s after %s, using simulator fallback",
				symbol, c.cfg.Channel, c.cfg.WatchdogGrace)
			c.cfg.OnMode(event.ModeSim)
			return c.cfg.Fallback.Stream(ctx, symbol, out)
		case starved:
			err = fmt.Errorf("no ticks after %s", c.cfg.WatchdogGrace)
		}

		d := c.backoff.Next()
		metrics.FeedReconnectsTotal.WithLabelValues(symbol).Inc()
		logger.Warnf("[ALPACA-WS] reconnect to %s in %s: %v", c.cfg.URL, d, err)
		if !sleep(ctx, d) {
			return nil
		}
	}
}

// session runs one connection. starved reports that the watchdog closed it.
func (c *StreamClient) session(ctx context.Context, symbol string, out *queue.Queue[event.Tick]) (starved bool, err error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := c.handshake(conn, symbol); err != nil {
		return false, err
	}
	c.backoff.Reset()
	c.cfg.OnMode(event.ModeLive)

	var delivered atomic.Int64
	var fired atomic.Bool
	watchdog := time.AfterFunc(c.cfg.WatchdogGrace, func() {
		if delivered.Load() == 0 {
			fired.Store(true)
			conn.Close()
		}
	})
	defer watchdog.Stop()

	done := make(chan struct{})
	defer close(done)
	go c.keepalive(conn, done)

	readTimeout := 3 * c.cfg.PingInterval
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if fired.Load() {
				return true, nil
			}
			return false, fmt.Errorf("read: %w", err)
		}
		ticks := c.ticksFrom(msg, symbol)
		for _, t := range ticks {
			if c.cfg.LogTicks {
				logger.Infof("[ALPACA-WS] tick %s p=%.2f s=%v", t.Symbol, t.Price, t.Size)
			}
			out.Push(t)
		}
		if len(ticks) > 0 && delivered.Add(int64(len(ticks))) == int64(len(ticks)) {
			watchdog.Stop()
		}
	}
}

func (c *StreamClient) handshake(conn *websocket.Conn, symbol string) error {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	if err := conn.WriteJSON(authMessage{Action: "auth", Key: c.cfg.Key, Secret: c.cfg.Secret}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	_, resp, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read auth response: %w", err)
	}
	logger.Debugf("[ALPACA-WS] AUTH: %s", resp)
	if rec, ok := firstError(resp); ok {
		return fmt.Errorf("%w: code %d %s", ErrAuth, rec.Code, rec.Msg)
	}

	if err := conn.WriteJSON(subscribeMessage(c.cfg.Channel, symbol)); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	_, resp, err = conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read subscribe response: %w", err)
	}
	logger.Debugf("[ALPACA-WS] SUB: %s", resp)
	if rec, ok := firstError(resp); ok {
		if rec.Code == 406 {
			return ErrConnectionLimit
		}
		return fmt.Errorf("subscribe rejected: code %d %s", rec.Code, rec.Msg)
	}
	logger.Infof("[ALPACA-WS] subscribed to %s %s", c.cfg.Channel, symbol)
	return nil
}

func (c *StreamClient) keepalive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.PingInterval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Debugf("[ALPACA-WS] ping failed: %v", err)
				return
			}
		}
	}
}

// ticksFrom maps the records of one message onto ticks. Only records of the
// configured channel for symbol with a usable price are kept.
func (c *StreamClient) ticksFrom(msg []byte, symbol string) []event.Tick {
	var ticks []event.Tick
	want := c.cfg.Channel.recordType()
	for _, r := range decodeRecords(msg) {
		if r.T != want || r.Symbol != symbol {
			continue
		}
		var price, size float64
		switch c.cfg.Channel {
		case ChannelQuotes:
			if r.BidPrice <= 0 || r.AskPrice <= 0 {
				continue
			}
			price = (r.BidPrice + r.AskPrice) / 2
		case ChannelBars:
			price = r.Close()
		default:
			price, size = r.Price, r.Size
		}
		if price <= 0 {
			continue
		}
		ticks = append(ticks, event.Tick{Time: time.Now(), Symbol: symbol, Price: price, Size: size})
	}
	return ticks
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
