package feed

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/trigger-trader/internal/config"
	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/pkg/queue"
)

func TestSimulator_ShapeWithoutNoise(t *testing.T) {
	sim := NewSimulator(config.SimConfig{BasePrice: 100, Amplitude: 0.30, Trend: 0.02, ReverseEvery: 3}, 1)
	gen := sim.generator()

	var got []float64
	for i := 0; i < 6; i++ {
		got = append(got, gen())
	}

	drift := []float64{0.02, 0.04, 0.06, 0.04, 0.02, 0.00}
	for i, d := range drift {
		want := math.Round((100+d+0.30*math.Sin(float64(i)/8.0))*100) / 100
		assert.InDelta(t, want, got[i], 1e-9, "tick %d", i)
	}
}

func TestSimulator_NoiseIsBoundedAndSeeded(t *testing.T) {
	cfg := config.SimConfig{BasePrice: 476.50, Noise: 0.02}
	a := NewSimulator(cfg, 42).generator()
	b := NewSimulator(cfg, 42).generator()
	for i := 0; i < 200; i++ {
		pa, pb := a(), b()
		assert.Equal(t, pa, pb)
		assert.InDelta(t, 476.50, pa, 0.0200001)
	}
}

func TestSimulator_StreamStopsOnCancel(t *testing.T) {
	sim := NewSimulator(config.SimConfig{BasePrice: 50, Interval: time.Millisecond}, 1)
	out := queue.New[event.Tick]()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- sim.Stream(ctx, "DIA", out) }()

	require.Eventually(t, func() bool { return out.Len() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stream did not return after cancel")
	}

	tick, ok := out.TryPop()
	require.True(t, ok)
	assert.Equal(t, "DIA", tick.Symbol)
	assert.Equal(t, 50.0, tick.Price)
}
