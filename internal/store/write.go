package store

import (
	"context"
	"fmt"

	"github.com/seastrand/vigil/internal/fault"
)

// AppendEntries inserts a drained batch of diagnostic entries in one
// transaction. Every row uses ON CONFLICT(id) DO NOTHING on its
// content-addressed ID, so re-delivering the same batch after a crash
// writes nothing new.
//
// Implements kernel.EntrySink.
func (s *Store) AppendEntries(ctx context.Context, entries []fault.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append entries: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries
		(id, seq, tick, class, kind, severity, channel, occurrences, critical, repeats, episode, payload, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("append entries: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		id, err := fault.EntryID(e)
		if err != nil {
			return fmt.Errorf("append entries: %w", err)
		}
		payload, err := marshalEntry(e)
		if err != nil {
			return fmt.Errorf("append entries: %w", err)
		}

		var kind, severity any
		var channel any
		var occurrences int
		if e.Record != nil {
			kind = string(e.Record.Kind)
			severity = string(e.Record.Severity)
			channel = e.Record.Channel
			occurrences = e.Record.Occurrences
		}

		if _, err := stmt.ExecContext(ctx,
			id, e.Seq, e.Tick, string(e.Class),
			kind, severity, channel, occurrences,
			boolToInt(e.Critical), e.Repeats, nullIfEmpty(e.Episode),
			payload, fault.SchemaVersion,
		); err != nil {
			return fmt.Errorf("append entries: insert %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append entries: commit: %w", err)
	}
	return nil
}

// AppendTransitions inserts a batch of state transitions in one
// transaction, idempotent on the content-addressed ID.
//
// Implements kernel.EntrySink.
func (s *Store) AppendTransitions(ctx context.Context, transitions []fault.Transition) error {
	if len(transitions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append transitions: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transitions
		(id, from_state, to_state, tick, deadline, episode, cause_kind, cause_severity, payload, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("append transitions: prepare: %w", err)
	}
	defer stmt.Close()

	for _, tr := range transitions {
		id, err := fault.TransitionID(tr)
		if err != nil {
			return fmt.Errorf("append transitions: %w", err)
		}
		payload, err := marshalTransition(tr)
		if err != nil {
			return fmt.Errorf("append transitions: %w", err)
		}

		var causeKind, causeSeverity any
		if tr.Cause != nil {
			causeKind = string(tr.Cause.Kind)
			causeSeverity = string(tr.Cause.Severity)
		}

		if _, err := stmt.ExecContext(ctx,
			id, string(tr.From), string(tr.To), tr.Tick, tr.Deadline,
			nullIfEmpty(tr.Episode), causeKind, causeSeverity,
			payload, fault.SchemaVersion,
		); err != nil {
			return fmt.Errorf("append transitions: insert %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append transitions: commit: %w", err)
	}
	return nil
}

// OpenEpisode records the start of a fault episode. Idempotent on the
// token.
//
// Implements kernel.EntrySink.
func (s *Store) OpenEpisode(ctx context.Context, token string, tick uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (token, opened_tick)
		VALUES (?, ?)
		ON CONFLICT(token) DO NOTHING
	`, token, tick)
	if err != nil {
		return fmt.Errorf("open episode %s: %w", token, err)
	}
	return nil
}

// CloseEpisode records the end of a fault episode with its final state.
// Closing an already-closed episode is a no-op (first close wins).
//
// Implements kernel.EntrySink.
func (s *Store) CloseEpisode(ctx context.Context, token string, tick uint64, final fault.State) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE episodes
		SET closed_tick = ?, final_state = ?
		WHERE token = ? AND closed_tick IS NULL
	`, tick, string(final), token)
	if err != nil {
		return fmt.Errorf("close episode %s: %w", token, err)
	}
	return nil
}

// MarkReset records an operator reset acknowledgement by closing the
// episode with the given state annotation. Used by `vigil reset`; the
// kernel itself never self-reinstates from a terminal state.
func (s *Store) MarkReset(ctx context.Context, token string, tick uint64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE episodes
		SET closed_tick = ?, final_state = 'Normal'
		WHERE token = ? AND closed_tick IS NULL
	`, tick, token)
	if err != nil {
		return fmt.Errorf("mark reset %s: %w", token, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark reset %s: %w", token, err)
	}
	if n == 0 {
		return fmt.Errorf("mark reset %s: episode not found or already closed", token)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
