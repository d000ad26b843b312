package sqlstore

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	banyantask "github.com/banyancomputer/banyan-task"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

const columns = `id, original_task_id, task_name, queue_name, unique_key, state, current_attempt,
	maximum_attempts, payload, error, scheduled_at, scheduled_to_run_at, started_at, finished_at`

// rebind rewrites ? placeholders to $n for Postgres. Queries in this package
// never contain a literal question mark.
func (s *Store) rebind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// lockRow is appended to row reads inside a transition transaction.
func (s *Store) lockRow() string {
	if s.dialect == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*banyantask.Record, error) {
	var (
		r                         banyantask.Record
		original, unique, errText sql.NullString
		state                     string
		scheduledAt, runAt        int64
		startedAt, finishedAt     sql.NullInt64
	)
	if err := row.Scan(&r.ID, &original, &r.TaskName, &r.QueueName, &unique, &state, &r.CurrentAttempt,
		&r.MaximumAttempts, &r.Payload, &errText, &scheduledAt, &runAt, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	st, err := banyantask.ParseState(state)
	if err != nil {
		return nil, banyantask.Wrap(banyantask.ErrDeserializationFailed, err)
	}
	r.State = st
	r.OriginalTaskID = nullString(original)
	r.UniqueKey = nullString(unique)
	r.Error = nullString(errText)
	r.ScheduledAt = fromMs(scheduledAt)
	r.ScheduledToRunAt = fromMs(runAt)
	r.StartedAt = nullTime(startedAt)
	r.FinishedAt = nullTime(finishedAt)
	return &r, nil
}

func toMs(t time.Time) int64 { return t.UnixMilli() }

func fromMs(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullTime(ni sql.NullInt64) *time.Time {
	if !ni.Valid {
		return nil
	}
	t := fromMs(ni.Int64)
	return &t
}

func msOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMs(*t)
}

func strOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// isUniqueViolation reports whether err is the active unique-key index
// rejecting an insert.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

func connErr(err error) error {
	if err == nil {
		return nil
	}
	// already classified
	for _, sentinel := range []error{
		banyantask.ErrUnknownTask,
		banyantask.ErrInvalidStateTransition,
		banyantask.ErrNotRetryable,
		banyantask.ErrDeserializationFailed,
		banyantask.ErrConnectionFailure,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return banyantask.Wrap(banyantask.ErrConnectionFailure, err)
}
