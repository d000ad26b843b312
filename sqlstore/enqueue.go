package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	banyantask "github.com/banyancomputer/banyan-task"
)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return connErr(err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return connErr(err)
	}
	return nil
}

// Enqueue inserts a New record unless its unique key is held by an active
// record of the same task name.
func (s *Store) Enqueue(ctx context.Context, t banyantask.NewTask) (string, bool, error) {
	rec := t.Record(s.set.NewID(), s.set.NowMs())
	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = s.insertUnique(ctx, tx, rec)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if !created {
		s.set.Logger.Debugf("sqlstore: enqueue skipped, unique key held: task=%s key=%s", rec.TaskName, *rec.UniqueKey)
		return "", false, nil
	}
	return rec.ID, true, nil
}

// insertUnique checks the unique key and inserts rec in tx. The partial
// unique index backs the check against concurrent inserters; its violation
// is returned unwrapped so callers can detect it.
func (s *Store) insertUnique(ctx context.Context, tx *sql.Tx, rec *banyantask.Record) (bool, error) {
	if rec.UniqueKey != nil {
		held, err := s.uniqueHeld(ctx, tx, rec.TaskName, *rec.UniqueKey)
		if err != nil {
			return false, err
		}
		if held {
			return false, nil
		}
	}
	if err := s.insert(ctx, tx, rec); err != nil {
		if isUniqueViolation(err) {
			return false, err
		}
		return false, connErr(err)
	}
	return true, nil
}

func (s *Store) uniqueHeld(ctx context.Context, q queryer, taskName, key string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM `+table+`
WHERE task_name = ? AND unique_key = ? AND state IN ('new', 'retry', 'in_progress') LIMIT 1`),
		taskName, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, connErr(err)
	}
	return true, nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, r *banyantask.Record) error {
	_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO `+table+` (`+columns+`) VALUES (`+placeholders(14)+`)`),
		r.ID, strOrNil(r.OriginalTaskID), r.TaskName, r.QueueName, strOrNil(r.UniqueKey), r.State.String(),
		r.CurrentAttempt, r.MaximumAttempts, r.Payload, strOrNil(r.Error),
		toMs(r.ScheduledAt), toMs(r.ScheduledToRunAt), msOrNil(r.StartedAt), msOrNil(r.FinishedAt))
	return err
}
