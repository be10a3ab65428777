package harness

import (
	"context"
	"errors"

	"github.com/seastrand/vigil/internal/fault"
)

// scriptedSource implements kernel.HealthSource from a scenario's tick
// scripts. Each Read advances one tick; unscripted ticks return the
// healthy baseline (watchdog alive and refreshed this tick, all
// channels and sensors clean).
type scriptedSource struct {
	scripts map[uint64]TickScript
	tick    uint64
}

func newScriptedSource(ticks []TickScript) *scriptedSource {
	scripts := make(map[uint64]TickScript, len(ticks))
	for _, ts := range ticks {
		scripts[ts.Tick] = ts
	}
	return &scriptedSource{scripts: scripts}
}

func (s *scriptedSource) Read(_ context.Context) (fault.HealthSnapshot, error) {
	s.tick++

	snap := fault.HealthSnapshot{
		Watchdog: fault.WatchdogVerdict{Alive: true, LastRefreshTick: s.tick},
	}

	ts, ok := s.scripts[s.tick]
	if !ok {
		return snap, nil
	}
	if ts.SourceError != "" {
		return fault.HealthSnapshot{}, errors.New(ts.SourceError)
	}

	if ts.Lockstep != nil {
		snap.Lockstep = fault.LockstepVerdict{
			Mismatch:        ts.Lockstep.Mismatch,
			FaultingAddress: ts.Lockstep.FaultingAddress,
			AddressValid:    ts.Lockstep.AddressValid,
		}
	}
	if ts.Watchdog != nil {
		if ts.Watchdog.Alive != nil {
			snap.Watchdog.Alive = *ts.Watchdog.Alive
		}
		if ts.Watchdog.LastRefreshTick != nil {
			snap.Watchdog.LastRefreshTick = *ts.Watchdog.LastRefreshTick
		}
	}
	for _, c := range ts.Comms {
		snap.Comms = append(snap.Comms, fault.CommsVerdict{
			Channel:     c.Channel,
			TimedOut:    c.TimedOut,
			IntegrityOK: !c.IntegrityFault,
			SequenceOK:  !c.SequenceFault,
		})
	}
	for _, sen := range ts.Sensors {
		snap.Sensors = append(snap.Sensors, fault.SensorVerdict{
			SensorID:  sen.SensorID,
			Plausible: !sen.Implausible,
		})
	}
	return snap, nil
}

// recordingSink implements kernel.CommandSink and keeps every delivered
// command in order.
type recordingSink struct {
	commands []fault.Command
}

func (s *recordingSink) Deliver(cmd fault.Command) error {
	s.commands = append(s.commands, cmd)
	return nil
}

type recoveryKey struct {
	kind    fault.Kind
	channel int
}

// scriptedRecoverer implements kernel.Recoverer from a scenario's
// recovery scripts. It counts the attempts of each uninterrupted run
// per (kind, channel), resetting on success, so the harness can check
// that no run exceeded the profile's budget.
type scriptedRecoverer struct {
	succeedsAfter map[recoveryKey]int
	run           map[recoveryKey]int
	maxRun        int
}

func newScriptedRecoverer(scripts []RecoveryScript) *scriptedRecoverer {
	after := make(map[recoveryKey]int, len(scripts))
	for _, rs := range scripts {
		after[recoveryKey{kind: fault.Kind(rs.Kind), channel: rs.Channel}] = rs.SucceedsAfter
	}
	return &scriptedRecoverer{
		succeedsAfter: after,
		run:           make(map[recoveryKey]int),
	}
}

func (r *scriptedRecoverer) TryRecover(kind fault.Kind, channel int) bool {
	key := recoveryKey{kind: kind, channel: channel}
	r.run[key]++
	if r.run[key] > r.maxRun {
		r.maxRun = r.run[key]
	}

	after := r.succeedsAfter[key]
	if after > 0 && r.run[key] >= after {
		r.run[key] = 0
		return true
	}
	return false
}
