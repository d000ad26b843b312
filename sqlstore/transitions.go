package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	banyantask "github.com/banyancomputer/banyan-task"
)

func (s *Store) load(ctx context.Context, q queryer, id string, lock bool) (*banyantask.Record, error) {
	query := `SELECT ` + columns + ` FROM ` + table + ` WHERE id = ?`
	if lock {
		query += s.lockRow()
	}
	rec, err := scanRecord(q.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, banyantask.ErrUnknownTask
	}
	if err != nil {
		return nil, connErr(err)
	}
	return rec, nil
}

// change describes one validated state write.
type change struct {
	to       banyantask.State
	errText  *string
	clearErr bool
}

// apply writes c to rec inside tx, stamping started_at / finished_at. The
// WHERE clause repeats the state read under the same transaction.
func (s *Store) apply(ctx context.Context, tx *sql.Tx, rec *banyantask.Record, c change) error {
	if !banyantask.CanTransition(rec.State, c.to) {
		return banyantask.InvalidTransition(rec.State, c.to)
	}
	now := s.set.NowMs()
	sets := []string{"state = ?"}
	args := []any{c.to.String()}
	if c.to == banyantask.StateInProgress {
		sets = append(sets, "started_at = ?")
		args = append(args, toMs(now))
		rec.StartedAt = &now
	}
	if c.to.Finishes() {
		sets = append(sets, "finished_at = ?")
		args = append(args, toMs(now))
		rec.FinishedAt = &now
	}
	switch {
	case c.errText != nil:
		sets = append(sets, "error = ?")
		args = append(args, *c.errText)
		rec.Error = c.errText
	case c.clearErr:
		sets = append(sets, "error = NULL")
		rec.Error = nil
	}
	args = append(args, rec.ID, rec.State.String())

	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE `+table+` SET `+strings.Join(sets, ", ")+` WHERE id = ? AND state = ?`), args...)
	if err != nil {
		return connErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return connErr(err)
	}
	if n != 1 {
		return banyantask.InvalidTransition(rec.State, c.to)
	}
	rec.State = c.to
	return nil
}

// transition loads id and applies c in its own transaction.
func (s *Store) transition(ctx context.Context, id string, c change) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := s.load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		return s.apply(ctx, tx, rec, c)
	})
}

// Completed moves an InProgress record to Complete and clears its error.
func (s *Store) Completed(ctx context.Context, id string) error {
	return s.transition(ctx, id, change{to: banyantask.StateComplete, clearErr: true})
}

// Reschedule completes id and inserts the next occurrence of a recurring
// task in the same transaction.
func (s *Store) Reschedule(ctx context.Context, id string, next banyantask.NewTask) (string, bool, error) {
	rec := next.Record(s.set.NewID(), s.set.NowMs())
	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, tx, cur, change{to: banyantask.StateComplete, clearErr: true}); err != nil {
			return err
		}
		created, err = s.insertUnique(ctx, tx, rec)
		return err
	})
	if err != nil && isUniqueViolation(err) {
		// a concurrent enqueue won the key; still record the completion
		return "", false, s.Completed(ctx, id)
	}
	if err != nil || !created {
		return "", false, err
	}
	return rec.ID, true, nil
}

// Errored records a failed execution of id. Faults and undecodable payloads
// go Panicked then Dead. Other failures go Error (or TimedOut) and spawn a
// retry record while attempts remain, else the record goes Dead.
func (s *Store) Errored(ctx context.Context, id string, execErr *banyantask.ExecError) (string, error) {
	msg := execErr.Error()
	var retryID string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := s.load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, tx, rec, change{to: execErr.FailedState(), errText: &msg}); err != nil {
			return err
		}
		if !execErr.Retryable() {
			return s.apply(ctx, tx, rec, change{to: banyantask.StateDead})
		}
		retryID, err = s.spawnRetry(ctx, tx, rec)
		if err != nil {
			return err
		}
		if retryID == "" {
			return s.apply(ctx, tx, rec, change{to: banyantask.StateDead})
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return retryID, nil
}

// spawnRetry inserts the successor of rec with the backoff delay, or
// returns "" when attempts are exhausted.
func (s *Store) spawnRetry(ctx context.Context, tx *sql.Tx, rec *banyantask.Record) (string, error) {
	now := s.set.NowMs()
	next, ok := rec.NextAttempt(now, now.Add(s.set.Backoff.Delay(rec.CurrentAttempt)))
	if !ok {
		return "", nil
	}
	next.ID = s.set.NewID()
	if err := s.insert(ctx, tx, next); err != nil {
		if isUniqueViolation(err) {
			return "", banyantask.Wrap(banyantask.ErrNotRetryable, err)
		}
		return "", connErr(err)
	}
	return next.ID, nil
}

// Retry re-drives an Error or TimedOut record. It returns "" when the record
// has no attempts left; the caller decides whether to finalize it.
func (s *Store) Retry(ctx context.Context, id string) (string, error) {
	var retryID string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := s.load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if rec.State != banyantask.StateError && rec.State != banyantask.StateTimedOut {
			return banyantask.Wrap(banyantask.ErrNotRetryable, errors.New("state "+rec.State.String()))
		}
		var later int
		err = tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(1) FROM `+table+`
WHERE original_task_id = ? AND current_attempt > ?`), rec.ChainHead(), rec.CurrentAttempt).Scan(&later)
		if err != nil {
			return connErr(err)
		}
		if later > 0 {
			return banyantask.Wrap(banyantask.ErrNotRetryable, errors.New("a later attempt exists"))
		}
		retryID, err = s.spawnRetry(ctx, tx, rec)
		return err
	})
	if err != nil {
		return "", err
	}
	return retryID, nil
}

// Cancel moves any non-terminal record to Cancelled. A running execution is
// not interrupted; its later report fails with ErrInvalidStateTransition.
func (s *Store) Cancel(ctx context.Context, id string) error {
	return s.transition(ctx, id, change{to: banyantask.StateCancelled})
}

// UpdateState applies one validated transition.
func (s *Store) UpdateState(ctx context.Context, id string, to banyantask.State) error {
	return s.transition(ctx, id, change{to: to, clearErr: to == banyantask.StateComplete})
}
