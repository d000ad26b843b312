package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	banyantask "github.com/banyancomputer/banyan-task"
)

// Next claims the oldest due record in one statement. The sub-select picks
// the candidate and the outer state guard makes a lost race update nothing,
// so a record is never handed out twice. On Postgres SKIP LOCKED lets
// concurrent claimers move past a candidate another transaction holds.
func (s *Store) Next(ctx context.Context, queue string, taskNames []string) (*banyantask.Record, error) {
	if len(taskNames) == 0 {
		return nil, nil
	}
	lock := ""
	if s.dialect == Postgres {
		lock = " FOR UPDATE SKIP LOCKED"
	}
	q := `UPDATE ` + table + ` SET state = 'in_progress', started_at = ?
WHERE id = (
	SELECT id FROM ` + table + `
	WHERE queue_name = ? AND state IN ('new', 'retry') AND scheduled_to_run_at <= ?
		AND task_name IN (` + placeholders(len(taskNames)) + `)
	ORDER BY scheduled_to_run_at, scheduled_at, id
	LIMIT 1` + lock + `
) AND state IN ('new', 'retry')
RETURNING ` + columns

	now := toMs(s.set.NowMs())
	args := make([]any, 0, 3+len(taskNames))
	args = append(args, now, queue, now)
	for _, n := range taskNames {
		args = append(args, n)
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, s.rebind(q), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, connErr(err)
	}
	return rec, nil
}
