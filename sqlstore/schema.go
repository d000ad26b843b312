package sqlstore

import (
	"context"
	"strings"

	banyantask "github.com/banyancomputer/banyan-task"
)

const table = "background_tasks"

func stateList() string {
	quoted := make([]string, 0, len(banyantask.AllStates))
	for _, st := range banyantask.AllStates {
		quoted = append(quoted, "'"+st.String()+"'")
	}
	return strings.Join(quoted, ", ")
}

func schema(d Dialect) []string {
	blob, integer := "BLOB", "INTEGER"
	if d == Postgres {
		blob, integer = "BYTEA", "BIGINT"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
	id TEXT PRIMARY KEY,
	original_task_id TEXT,
	task_name TEXT NOT NULL,
	queue_name TEXT NOT NULL,
	unique_key TEXT,
	state TEXT NOT NULL CHECK (state IN (` + stateList() + `)),
	current_attempt ` + integer + ` NOT NULL DEFAULT 0,
	maximum_attempts ` + integer + ` NOT NULL,
	payload ` + blob + `,
	error TEXT,
	scheduled_at ` + integer + ` NOT NULL,
	scheduled_to_run_at ` + integer + ` NOT NULL,
	started_at ` + integer + `,
	finished_at ` + integer + `,
	CHECK (current_attempt < maximum_attempts)
)`,
		`CREATE INDEX IF NOT EXISTS background_tasks_ready_idx ON ` + table + ` (queue_name, state, scheduled_to_run_at)`,
		`CREATE INDEX IF NOT EXISTS background_tasks_chain_idx ON ` + table + ` (original_task_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS background_tasks_active_unique_idx ON ` + table + ` (task_name, unique_key)
	WHERE unique_key IS NOT NULL AND state IN ('new', 'retry', 'in_progress')`,
	}
}

// Migrate creates the task table and its indexes. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return banyantask.Wrap(banyantask.ErrConnectionFailure, err)
		}
	}
	s.set.Logger.Debugf("sqlstore: schema ready dialect=%s", s.dialect)
	return nil
}
