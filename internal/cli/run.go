package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/seastrand/vigil/internal/config"
	"github.com/seastrand/vigil/internal/fault"
	"github.com/seastrand/vigil/internal/kernel"
	"github.com/seastrand/vigil/internal/modbus"
	"github.com/seastrand/vigil/internal/profile"
	"github.com/seastrand/vigil/internal/store"
	"github.com/seastrand/vigil/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigDir string
	Mock      bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the safety monitor daemon",
		Long: `Start the safety monitor: load the profile, open the diagnostic
store, connect the Modbus collaborators (or an in-process loopback with
--mock) and drive the tick pipeline until interrupted.

Example:
  vigil run --config /etc/vigil
  vigil run --mock --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigDir, "config", "", "directory containing vigil.yaml (default: working dir, /etc/vigil)")
	cmd.Flags().BoolVar(&opts.Mock, "mock", false, "run with in-process loopback collaborators instead of Modbus")

	return cmd
}

func runDaemon(opts *RunOptions, cmd *cobra.Command) error {
	// The env override keeps mock-mode precedence and validation inside
	// the config layer.
	if opts.Mock {
		os.Setenv("VIGIL_MODBUS_MOCK", "true")
	}

	cfg, err := config.Load(opts.ConfigDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	logger := newLogger(cfg.Log.Level, opts.Verbose)
	slog.SetDefault(logger)

	p, err := loadProfile(cfg.Profile.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load safety profile", err)
	}

	logger.Info("opening diagnostic store", "path", cfg.Store.Path)
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open diagnostic store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	deps := kernel.Deps{
		Store:  st,
		Logger: logger,
	}

	var registry *prometheus.Registry
	if cfg.Telemetry.Enabled {
		registry = prometheus.NewRegistry()
		deps.Metrics = telemetry.NewMetrics(registry)
	}

	if cfg.Modbus.Mock {
		logger.Info("modbus loopback active; no bus traffic")
		rig := newLoopbackRig(cfg.Modbus.Channels, cfg.Modbus.Sensors, logger)
		deps.Source = rig
		deps.Sink = rig
		deps.Recoverer = rig
	} else {
		logger.Info("connecting modbus endpoint", "endpoint", cfg.Modbus.Endpoint)
		client, err := modbus.NewEndpointClient(modbus.ClientConfig{
			Endpoint: cfg.Modbus.Endpoint,
			Timeout:  cfg.Modbus.Timeout,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to connect modbus endpoint", err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Error("error closing modbus connection", "error", closeErr)
			}
		}()

		source, err := modbus.NewSource(client, modbus.SourceConfig{
			UnitID:   cfg.Modbus.UnitID,
			Channels: cfg.Modbus.Channels,
			Sensors:  cfg.Modbus.Sensors,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to build health source", err)
		}
		gateway, err := modbus.NewGateway(client, modbus.GatewayConfig{UnitID: cfg.Modbus.UnitID})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to build actuation gateway", err)
		}

		deps.Source = source
		deps.Sink = gateway
		deps.Recoverer = modbus.NewRecoverer(source)
	}

	k, err := kernel.New(p, deps)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build kernel", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if cfg.Telemetry.Enabled {
		srv := telemetry.NewServer(cfg.Telemetry.Addr, k, registry, logger)
		// The HTTP surface serves off the tick path; a listener failure
		// is logged, never fatal to the safety loop.
		go func() {
			if serveErr := srv.Start(); serveErr != nil {
				logger.Error("telemetry server failed", "error", serveErr)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
				logger.Error("telemetry shutdown error", "error", shutdownErr)
			}
		}()
	}

	up := telemetry.NewUplink(telemetry.UplinkConfig{
		URL:       cfg.Uplink.URL,
		RPS:       cfg.Uplink.RPS,
		Burst:     cfg.Uplink.Burst,
		Attempts:  cfg.Uplink.Attempts,
		Timeout:   cfg.Uplink.Timeout,
		TripAfter: cfg.Uplink.TripAfter,
	}, logger)
	if up.Enabled() {
		// Critical entries fan out to the fleet collector off the tick
		// path; uplink loss never reaches the kernel.
		err := k.OnCritical("uplink", func(entry fault.LogEntry) {
			go func() {
				pubCtx, pubCancel := context.WithTimeout(ctx, cfg.Uplink.Timeout*time.Duration(cfg.Uplink.Attempts+1))
				defer pubCancel()
				_ = up.Publish(pubCtx, entry)
			}()
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to register uplink callback", err)
		}
		logger.Info("uplink enabled", "url", cfg.Uplink.URL)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("monitor starting", "tick_period", cfg.Tick.Period, "store", cfg.Store.Path)
	fmt.Fprintln(cmd.OutOrStdout(), "Safety monitor started. Press Ctrl-C to stop.")

	pacer := newTickerPacer(cfg.Tick.Period)
	defer pacer.Stop()

	if err := k.Run(ctx, pacer); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return WrapExitError(ExitFailure, "monitor error", err)
	}

	logger.Info("monitor stopped gracefully")
	return nil
}

// newLogger builds the daemon logger. Verbose wins over the configured
// level.
func newLogger(level string, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// loadProfile resolves the safety profile: a CUE file when a path is
// configured, the embedded default otherwise.
func loadProfile(path string) (fault.Profile, error) {
	if path == "" {
		return profile.Default()
	}
	return profile.Load(path)
}

// tickerPacer paces the kernel loop with a wall-clock ticker. The
// kernel itself never sees the wall clock.
type tickerPacer struct {
	ticker *time.Ticker
}

func newTickerPacer(period time.Duration) *tickerPacer {
	return &tickerPacer{ticker: time.NewTicker(period)}
}

func (p *tickerPacer) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ticker.C:
		return nil
	}
}

func (p *tickerPacer) Stop() {
	p.ticker.Stop()
}

// loopbackRig is the --mock collaborator set: a health source that
// round-trips a healthy block through the wire codec, a command sink
// that logs deliveries, and a recoverer that always confirms.
type loopbackRig struct {
	mu       sync.Mutex
	tick     uint64
	channels int
	sensors  int
	logger   *slog.Logger
}

func newLoopbackRig(channels, sensors int, logger *slog.Logger) *loopbackRig {
	return &loopbackRig{channels: channels, sensors: sensors, logger: logger}
}

func (r *loopbackRig) Read(context.Context) (fault.HealthSnapshot, error) {
	r.mu.Lock()
	r.tick++
	tick := r.tick
	r.mu.Unlock()

	snap := fault.HealthSnapshot{
		Watchdog: fault.WatchdogVerdict{Alive: true, LastRefreshTick: tick},
	}
	for c := 0; c < r.channels; c++ {
		snap.Comms = append(snap.Comms, fault.CommsVerdict{
			Channel: c, IntegrityOK: true, SequenceOK: true,
		})
	}
	for s := 0; s < r.sensors; s++ {
		snap.Sensors = append(snap.Sensors, fault.SensorVerdict{SensorID: s, Plausible: true})
	}

	// Round-trip through the register codec so mock runs exercise the
	// same decode path as the bus.
	regs := modbus.EncodeHealth(snap, r.channels, r.sensors)
	return modbus.DecodeHealth(regs, r.channels, r.sensors), nil
}

func (r *loopbackRig) Deliver(cmd fault.Command) error {
	r.logger.Debug("loopback actuation",
		"torque_ceiling", cmd.TorqueCeiling,
		"contactor", cmd.ContactorEnable,
		"braking", cmd.BrakingRequest,
		"degraded", cmd.DegradedFlag)
	return nil
}

func (r *loopbackRig) TryRecover(fault.Kind, int) bool {
	return true
}
