package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/seastrand/vigil/internal/diagquery"
	"github.com/seastrand/vigil/internal/fault"
)

// EntryRow is one persisted diagnostic entry with its row identity.
type EntryRow struct {
	ID    string         `json:"id"`
	Entry fault.LogEntry `json:"entry"`
}

// TransitionRow is one persisted transition with its row identity.
type TransitionRow struct {
	ID         string           `json:"id"`
	Transition fault.Transition `json:"transition"`
}

// EpisodeSummary describes one fault episode.
type EpisodeSummary struct {
	Token       string      `json:"token"`
	OpenedTick  uint64      `json:"opened_tick"`
	ClosedTick  *uint64     `json:"closed_tick,omitempty"`
	FinalState  fault.State `json:"final_state,omitempty"`
	Entries     int         `json:"entries"`
	Transitions int         `json:"transitions"`
}

// ListEntries returns entries matching the query with deterministic
// ordering: ORDER BY seq ASC, id COLLATE BINARY ASC.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ListEntries(ctx context.Context, q diagquery.Query) ([]EntryRow, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	sqlText := `SELECT id, payload FROM entries`
	where, args := q.Compile()
	if where != "" {
		sqlText += " WHERE " + where
	}
	sqlText += " ORDER BY seq ASC, id COLLATE BINARY ASC"
	if q.Limit > 0 {
		sqlText += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	out := []EntryRow{}
	for rows.Next() {
		row, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// ListTransitions returns transitions, optionally filtered to one
// episode, ordered by tick then id for deterministic output.
func (s *Store) ListTransitions(ctx context.Context, episode string) ([]TransitionRow, error) {
	sqlText := `SELECT id, payload FROM transitions`
	var args []any
	if episode != "" {
		sqlText += " WHERE episode = ?"
		args = append(args, episode)
	}
	sqlText += " ORDER BY tick ASC, id COLLATE BINARY ASC"

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	out := []TransitionRow{}
	for rows.Next() {
		row, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

// LastTransition returns the most recent transition, or false when the
// store holds none.
func (s *Store) LastTransition(ctx context.Context) (TransitionRow, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, payload FROM transitions
		ORDER BY tick DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)

	tr, err := scanTransition(row)
	if err == sql.ErrNoRows {
		return TransitionRow{}, false, nil
	}
	if err != nil {
		return TransitionRow{}, false, err
	}
	return tr, true, nil
}

// GetEpisode returns the summary for one episode token.
// Returns sql.ErrNoRows if the token is unknown.
func (s *Store) GetEpisode(ctx context.Context, token string) (EpisodeSummary, error) {
	var sum EpisodeSummary
	var closed sql.NullInt64
	var final sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT token, opened_tick, closed_tick, final_state
		FROM episodes WHERE token = ?
	`, token).Scan(&sum.Token, &sum.OpenedTick, &closed, &final)
	if err != nil {
		return EpisodeSummary{}, err
	}
	if closed.Valid {
		v := uint64(closed.Int64)
		sum.ClosedTick = &v
	}
	if final.Valid {
		sum.FinalState = fault.State(final.String)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE episode = ?`, token).Scan(&sum.Entries); err != nil {
		return EpisodeSummary{}, fmt.Errorf("count entries: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transitions WHERE episode = ?`, token).Scan(&sum.Transitions); err != nil {
		return EpisodeSummary{}, fmt.Errorf("count transitions: %w", err)
	}

	return sum, nil
}

// ListEpisodes returns all episode summaries ordered by opening tick.
func (s *Store) ListEpisodes(ctx context.Context) ([]EpisodeSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token FROM episodes
		ORDER BY opened_tick ASC, token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episodes: %w", err)
	}

	out := []EpisodeSummary{}
	for _, t := range tokens {
		sum, err := s.GetEpisode(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (EntryRow, error) {
	var row EntryRow
	var payload string
	if err := r.Scan(&row.ID, &payload); err != nil {
		return EntryRow{}, err
	}
	if err := unmarshalEntry(payload, &row.Entry); err != nil {
		return EntryRow{}, fmt.Errorf("entry %s: %w", row.ID, err)
	}
	return row, nil
}

func scanTransition(r rowScanner) (TransitionRow, error) {
	var row TransitionRow
	var payload string
	if err := r.Scan(&row.ID, &payload); err != nil {
		return TransitionRow{}, err
	}
	if err := json.Unmarshal([]byte(payload), &row.Transition); err != nil {
		return TransitionRow{}, fmt.Errorf("transition %s: %w", row.ID, err)
	}
	return row, nil
}

// unmarshalEntry decodes the canonical payload column back into a
// LogEntry. The payload nests record/transition under their own keys;
// field names match the fault JSON tags so standard decoding applies.
func unmarshalEntry(payload string, e *fault.LogEntry) error {
	var raw struct {
		Seq        uint64            `json:"seq"`
		Tick       uint64            `json:"tick"`
		Class      fault.EntryClass  `json:"class"`
		Critical   bool              `json:"critical"`
		Repeats    int               `json:"repeats"`
		Episode    string            `json:"episode"`
		Record     *fault.Record     `json:"record"`
		Transition *fault.Transition `json:"transition"`
		Context    fault.Context     `json:"context"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return err
	}
	e.Seq = raw.Seq
	e.Tick = raw.Tick
	e.Class = raw.Class
	e.Critical = raw.Critical
	e.Repeats = raw.Repeats
	e.Episode = raw.Episode
	e.Record = raw.Record
	e.Transition = raw.Transition
	e.Context = raw.Context
	return nil
}
