package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/internal/metrics"
	"github.com/your-org/trigger-trader/internal/telemetry"
)

func TestRouter(t *testing.T) {
	price := 476.5
	srv := httptest.NewServer(NewRouter(func() []telemetry.State {
		return []telemetry.State{
			{Symbol: "DIA", Phase: "T2_WINDOW", LastPrice: &price, Mode: event.ModeSim, Position: 10},
			{Symbol: "EWH", Phase: "IDLE", Mode: event.ModeSim},
		}
	}))
	defer srv.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("state", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/state")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		var got telemetry.State
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "T2_WINDOW", got.Phase)
		assert.Equal(t, 10, got.Position)
		require.NotNil(t, got.LastPrice)
		assert.Equal(t, 476.5, *got.LastPrice)
	})

	t.Run("symbol state", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/state/ewh")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var got telemetry.State
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "EWH", got.Symbol)
		assert.Equal(t, "IDLE", got.Phase)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/state/SPY")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("states", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/states")
		require.NoError(t, err)
		defer resp.Body.Close()
		var got []telemetry.State
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		require.Len(t, got, 2)
		assert.Equal(t, "DIA", got[0].Symbol)
		assert.Equal(t, "EWH", got[1].Symbol)
	})

	t.Run("metrics", func(t *testing.T) {
		metrics.SignalsTotal.WithLabelValues("DIA", "T1").Inc()
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, resp.Body)
		assert.Contains(t, buf.String(), `signals_total{reason="T1",symbol="DIA"}`)
	})
}

func TestStateHandler_WrongMethod(t *testing.T) {
	srv := httptest.NewServer(NewRouter(func() []telemetry.State { return []telemetry.State{{}} }))
	defer srv.Close()
	resp, err := http.Post(srv.URL+"/state", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStateHandler_NoSymbols(t *testing.T) {
	srv := httptest.NewServer(NewRouter(func() []telemetry.State { return nil }))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
