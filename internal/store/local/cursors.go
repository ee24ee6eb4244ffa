package local

import (
	"context"
	"database/sql"
	"errors"

	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/store"
	"github.com/flowslide/synccore/internal/syncerrs"
)

// GetCursor returns the persisted sync cursor for (dataType, direction), or
// a zero Cursor if none has been saved yet.
func (s *Store) GetCursor(ctx context.Context, dataType, direction string) (store.Cursor, []string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT after_updated_at, token, in_flight_ids
		FROM sync_cursors WHERE data_type = ? AND direction = ?`, dataType, direction)

	var (
		after    int64
		token    string
		inFlight string
	)

	if err := row.Scan(&after, &token, &inFlight); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Cursor{}, nil, nil
		}

		return store.Cursor{}, nil, syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.GetCursor", dataType, "")
	}

	return store.Cursor{AfterUpdatedAt: after, Token: token}, unmarshalInFlight(inFlight), nil
}

// SaveCursor persists the watermark and in-flight id set for (dataType,
// direction). Called only after a record has been successfully applied —
// never advance over an error (spec §4.5 step 5).
func (s *Store) SaveCursor(ctx context.Context, dataType, direction string, cur store.Cursor, inFlight []string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sync_cursors (data_type, direction, after_updated_at, token, in_flight_ids)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(data_type, direction) DO UPDATE SET
			after_updated_at = excluded.after_updated_at,
			token = excluded.token,
			in_flight_ids = excluded.in_flight_ids`,
		dataType, direction, cur.AfterUpdatedAt, cur.Token, marshalInFlight(inFlight))
	if err != nil {
		return syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.SaveCursor", dataType, "")
	}

	return nil
}

// ResetCursor clears the persisted cursor for (dataType, direction),
// forcing the next sync tick to perform a full scan. Used by Snapshot
// restore (spec §4.6: "invalidate sync cursors so the next cycle
// reconciles against peers") and by the Mode Transition Manager's
// post-switch reconcile step (spec §4.7 step 6).
func (s *Store) ResetCursor(ctx context.Context, dataType, direction string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_cursors WHERE data_type = ? AND direction = ?`, dataType, direction)
	if err != nil {
		return syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.ResetCursor", dataType, "")
	}

	return nil
}

// RecordTransitionStart inserts a new in-progress transition_log row and
// returns its id.
func (s *Store) RecordTransitionStart(ctx context.Context, from, to record.DeploymentMode, startedAt int64, reason, actor string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO transition_log
		(from_mode, to_mode, started_at, finished_at, status, reason, actor, error)
		VALUES (?, ?, ?, 0, 'in_progress', ?, ?, '')`,
		string(from), string(to), startedAt, reason, actor)
	if err != nil {
		return 0, syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.RecordTransitionStart", "", "")
	}

	return res.LastInsertId()
}

// FinishTransition updates a transition_log row with its final outcome.
func (s *Store) FinishTransition(ctx context.Context, id int64, finishedAt int64, status record.TransitionStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE transition_log SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		finishedAt, string(status), errMsg, id)
	if err != nil {
		return syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.FinishTransition", "", "")
	}

	return nil
}

// TransitionHistory returns the most recent limit transition_log rows,
// newest first (spec §4.9 get_history).
func (s *Store) TransitionHistory(ctx context.Context, limit int) ([]record.TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, from_mode, to_mode, started_at, finished_at, status, reason, actor, error
		FROM transition_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.TransitionHistory", "", "")
	}

	defer rows.Close()

	var out []record.TransitionRecord

	for rows.Next() {
		var tr record.TransitionRecord

		var from, to, status string

		if err := rows.Scan(&tr.ID, &from, &to, &tr.StartedAt, &tr.FinishedAt, &status, &tr.Reason, &tr.Actor, &tr.Error); err != nil {
			return nil, syncerrs.Wrap(syncerrs.ErrInternal, "store/local.TransitionHistory", "", "")
		}

		tr.FromMode = record.DeploymentMode(from)
		tr.ToMode = record.DeploymentMode(to)
		tr.Status = record.TransitionStatus(status)

		out = append(out, tr)
	}

	return out, rows.Err()
}

// RecordCount returns the number of live (non-tombstoned) records of type t.
func (s *Store) RecordCount(ctx context.Context, t record.DataType) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE type = ? AND deleted = 0`, string(t))

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.RecordCount", string(t), "")
	}

	return n, nil
}

// LiveIDs returns the set of live (non-tombstoned) record ids for type t.
func (s *Store) LiveIDs(ctx context.Context, t record.DataType) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM records WHERE type = ? AND deleted = 0`, string(t))
	if err != nil {
		return nil, syncerrs.Wrap(syncerrs.ErrRetryable, "store/local.LiveIDs", string(t), "")
	}

	defer rows.Close()

	ids := make(map[string]bool)

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, syncerrs.Wrap(syncerrs.ErrInternal, "store/local.LiveIDs", string(t), "")
		}

		ids[id] = true
	}

	return ids, rows.Err()
}
