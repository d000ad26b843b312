package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	banyantask "github.com/banyancomputer/banyan-task"
)

// Get loads one record.
func (s *Store) Get(ctx context.Context, id string) (*banyantask.Record, error) {
	return s.load(ctx, s.db, id, false)
}

// List returns records matching f, newest first.
func (s *Store) List(ctx context.Context, f banyantask.Filter) ([]*banyantask.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.State != "" {
		where = append(where, "state = ?")
		args = append(args, f.State.String())
	}
	if f.QueueName != "" {
		where = append(where, "queue_name = ?")
		args = append(args, f.QueueName)
	}
	if f.TaskName != "" {
		where = append(where, "task_name = ?")
		args = append(args, f.TaskName)
	}
	if f.ChainHead != "" {
		where = append(where, "(id = ? OR original_task_id = ?)")
		args = append(args, f.ChainHead, f.ChainHead)
	}
	q := `SELECT ` + columns + ` FROM ` + table
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY scheduled_at DESC, current_attempt DESC, id DESC LIMIT ?`
	args = append(args, f.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, connErr(err)
	}
	defer rows.Close()
	var out []*banyantask.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, connErr(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, connErr(err)
	}
	return out, nil
}

// HasPending reports whether a record of taskName is New, Retry or InProgress.
func (s *Store) HasPending(ctx context.Context, taskName string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM `+table+`
WHERE task_name = ? AND state IN ('new', 'retry', 'in_progress') LIMIT 1`), taskName).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, connErr(err)
	}
	return true, nil
}

// Metrics counts records per state plus the due and future backlog.
func (s *Store) Metrics(ctx context.Context) (banyantask.Metrics, error) {
	var m banyantask.Metrics
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM `+table+` GROUP BY state`)
	if err != nil {
		return m, connErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return m, connErr(err)
		}
		st, err := banyantask.ParseState(state)
		if err != nil {
			return m, banyantask.Wrap(banyantask.ErrDeserializationFailed, err)
		}
		m.Add(st, n)
	}
	if err := rows.Err(); err != nil {
		return m, connErr(err)
	}

	now := toMs(s.set.NowMs())
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT
	COALESCE(SUM(CASE WHEN scheduled_to_run_at <= ? THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN scheduled_to_run_at > ? THEN 1 ELSE 0 END), 0)
FROM `+table+` WHERE state IN ('new', 'retry')`), now, now).Scan(&m.Scheduled, &m.ScheduledFuture)
	if err != nil {
		return m, connErr(err)
	}
	return m, nil
}
