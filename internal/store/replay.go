package store

import (
	"context"
	"fmt"

	"github.com/seastrand/vigil/internal/diagquery"
	"github.com/seastrand/vigil/internal/fault"
)

// ReplayItem is one element of an episode's ordered replay stream:
// either a transition or a diagnostic entry, never both.
type ReplayItem struct {
	Tick       uint64            `json:"tick"`
	Transition *fault.Transition `json:"transition,omitempty"`
	Entry      *fault.LogEntry   `json:"entry,omitempty"`
}

// Replay returns the full ordered stream for one episode: transitions
// and entries merged by tick, transitions first within a tick (the
// state change precedes the diagnostics recorded under it). The
// ordering is total and deterministic: the same rows always produce the
// same stream, which is what `vigil replay` relies on.
func (s *Store) Replay(ctx context.Context, episode string) ([]ReplayItem, error) {
	if episode == "" {
		return nil, fmt.Errorf("replay: episode token required")
	}

	transitions, err := s.ListTransitions(ctx, episode)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	entries, err := s.ListEntries(ctx, diagquery.Query{Episode: episode})
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	stream := make([]ReplayItem, 0, len(transitions)+len(entries))

	// Merge two already-sorted streams. Entries sort by recorder seq,
	// which is assignment order; transitions by tick. On a tick tie the
	// transition wins.
	ti, ei := 0, 0
	for ti < len(transitions) || ei < len(entries) {
		takeTransition := ti < len(transitions) &&
			(ei >= len(entries) || transitions[ti].Transition.Tick <= entries[ei].Entry.Tick)

		if takeTransition {
			tr := transitions[ti].Transition
			stream = append(stream, ReplayItem{Tick: tr.Tick, Transition: &tr})
			ti++
		} else {
			e := entries[ei].Entry
			stream = append(stream, ReplayItem{Tick: e.Tick, Entry: &e})
			ei++
		}
	}

	return stream, nil
}
