package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastUplinkConfig(url string) UplinkConfig {
	return UplinkConfig{
		URL:       url,
		RPS:       1000,
		Burst:     100,
		Attempts:  1,
		Timeout:   time.Second,
		TripAfter: 2,
	}
}

func TestUplink_DisabledWithoutURL(t *testing.T) {
	u := NewUplink(UplinkConfig{}, nil)
	assert.False(t, u.Enabled())
	assert.NoError(t, u.Publish(context.Background(), map[string]any{"state": "Normal"}))
}

func TestUplink_Publish_PostsJSON(t *testing.T) {
	var gotType atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType.Store(r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	u := NewUplink(fastUplinkConfig(srv.URL), nil)
	require.True(t, u.Enabled())
	require.NoError(t, u.Publish(context.Background(), map[string]any{"state": "Degraded"}))
	assert.Equal(t, "application/json", gotType.Load())
}

func TestUplink_Publish_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := fastUplinkConfig(srv.URL)
	cfg.Attempts = 3
	u := NewUplink(cfg, nil)

	require.NoError(t, u.Publish(context.Background(), "payload"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestUplink_Publish_ErrorStatusReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	u := NewUplink(fastUplinkConfig(srv.URL), nil)
	err := u.Publish(context.Background(), "payload")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestUplink_Publish_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	u := NewUplink(fastUplinkConfig(srv.URL), nil)

	// TripAfter 2: the breaker opens once more than two consecutive
	// posts fail. Later publishes fail fast without reaching the
	// collector.
	for i := 0; i < 3; i++ {
		require.Error(t, u.Publish(context.Background(), "payload"))
	}
	before := calls.Load()

	require.Error(t, u.Publish(context.Background(), "payload"))
	assert.Equal(t, before, calls.Load())
}

func TestNewUplink_Defaults(t *testing.T) {
	u := NewUplink(UplinkConfig{URL: "http://collector.invalid"}, nil)

	assert.Equal(t, float64(1), u.cfg.RPS)
	assert.Equal(t, 2, u.cfg.Burst)
	assert.Equal(t, uint(3), u.cfg.Attempts)
	assert.Equal(t, 5*time.Second, u.cfg.Timeout)
	assert.Equal(t, uint32(5), u.cfg.TripAfter)
}
