package feed

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/your-org/trigger-trader/internal/config"
	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/pkg/logger"
	"github.com/your-org/trigger-trader/pkg/queue"
)

// Simulator is a synthetic tick generator: a slow sine wave on top of a
// drift whose direction reverses every ReverseEvery ticks, plus uniform noise.
type Simulator struct {
	cfg config.SimConfig
	rng *rand.Rand
}

// NewSimulator creates a Simulator. seed 0 seeds from the clock.
func NewSimulator(cfg config.SimConfig, seed int64) *Simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.ReverseEvery <= 0 {
		cfg.ReverseEvery = 240
	}
	return &Simulator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Stream emits one tick per interval until ctx is done.
func (s *Simulator) Stream(ctx context.Context, symbol string, out *queue.Queue[event.Tick]) error {
	logger.Infof("[SIM] starting feed for %s base=%.2f amp=%.2f noise=%.2f trend=%.2f",
		symbol, s.cfg.BasePrice, s.cfg.Amplitude, s.cfg.Noise, s.cfg.Trend)

	gen := s.generator()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		out.Push(event.Tick{Time: time.Now(), Symbol: symbol, Price: gen()})
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// generator returns the price sequence. It is separate from Stream so the
// shape can be checked without waiting on the ticker.
func (s *Simulator) generator() func() float64 {
	t := 0
	drift := 0.0
	trend := s.cfg.Trend
	return func() float64 {
		drift += trend
		noise := 0.0
		if s.cfg.Noise > 0 {
			noise = (s.rng.Float64()*2 - 1) * s.cfg.Noise
		}
		price := s.cfg.BasePrice + drift + s.cfg.Amplitude*math.Sin(float64(t)/8.0) + noise
		t++
		if t%s.cfg.ReverseEvery == 0 {
			trend = -trend
		}
		return math.Round(price*100) / 100
	}
}
