package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// UplinkConfig tunes the guarded status uplink.
type UplinkConfig struct {
	// URL is the collector endpoint; empty disables the uplink.
	URL string

	// RPS caps outgoing posts per second. Burst is the limiter burst.
	RPS   float64
	Burst int

	// Attempts bounds retries per post.
	Attempts uint

	// Timeout bounds one HTTP round trip.
	Timeout time.Duration

	// TripAfter is the consecutive-failure count that opens the
	// breaker.
	TripAfter uint32
}

// Uplink posts status snapshots to an external collector through a
// limiter, a circuit breaker and bounded retry, in that order. Failures
// are logged and swallowed: telemetry loss never propagates toward the
// kernel.
type Uplink struct {
	cfg     UplinkConfig
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewUplink builds an uplink. Zero-value knobs fall back to safe
// defaults (1 rps, 3 attempts, 5s timeout, trip after 5 failures).
func NewUplink(cfg UplinkConfig, logger *slog.Logger) *Uplink {
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 2
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.TripAfter == 0 {
		cfg.TripAfter = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "vigil-uplink",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > cfg.TripAfter
		},
	})

	return &Uplink{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		logger:  logger,
	}
}

// Enabled reports whether a collector URL is configured.
func (u *Uplink) Enabled() bool {
	return u.cfg.URL != ""
}

// Publish posts one payload. Returns after the limiter, breaker and
// retry chain settles; the error is for the caller's log line only.
func (u *Uplink) Publish(ctx context.Context, payload any) error {
	if !u.Enabled() {
		return nil
	}

	if err := u.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("uplink rate wait: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("uplink marshal: %w", err)
	}

	_, err = u.cb.Execute(func() (any, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(u.cfg.Attempts),
		)
		return nil, r.Do(func() error {
			return u.post(ctx, body)
		})
	})
	if err != nil {
		u.logger.Warn("status uplink failed", "url", u.cfg.URL, "error", err)
		return err
	}
	return nil
}

func (u *Uplink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned %s", resp.Status)
	}
	return nil
}
