package redisstore

import (
	"fmt"
	"strconv"
	"time"

	banyantask "github.com/banyancomputer/banyan-task"
)

func toMs(t time.Time) int64 { return t.UnixMilli() }

func fromMs(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// encodeRecord flattens r into HSET field/value pairs. Nil optional fields
// are omitted.
func encodeRecord(r *banyantask.Record) []any {
	out := []any{
		"id", r.ID,
		"task_name", r.TaskName,
		"queue_name", r.QueueName,
		"state", r.State.String(),
		"current_attempt", r.CurrentAttempt,
		"maximum_attempts", r.MaximumAttempts,
		"payload", string(r.Payload),
		"scheduled_at", toMs(r.ScheduledAt),
		"scheduled_to_run_at", toMs(r.ScheduledToRunAt),
	}
	if r.OriginalTaskID != nil {
		out = append(out, "original_task_id", *r.OriginalTaskID)
	}
	if r.UniqueKey != nil {
		out = append(out, "unique_key", *r.UniqueKey)
	}
	if r.Error != nil {
		out = append(out, "error", *r.Error)
	}
	if r.StartedAt != nil {
		out = append(out, "started_at", toMs(*r.StartedAt))
	}
	if r.FinishedAt != nil {
		out = append(out, "finished_at", toMs(*r.FinishedAt))
	}
	return out
}

func decodeRecord(m map[string]string) (*banyantask.Record, error) {
	var (
		r   banyantask.Record
		err error
	)
	fail := func(field string, cause error) (*banyantask.Record, error) {
		return nil, banyantask.Wrap(banyantask.ErrDeserializationFailed, fmt.Errorf("field %s: %w", field, cause))
	}

	r.ID = m["id"]
	r.TaskName = m["task_name"]
	r.QueueName = m["queue_name"]
	r.Payload = []byte(m["payload"])
	if r.State, err = banyantask.ParseState(m["state"]); err != nil {
		return fail("state", err)
	}
	if r.CurrentAttempt, err = strconv.Atoi(m["current_attempt"]); err != nil {
		return fail("current_attempt", err)
	}
	if r.MaximumAttempts, err = strconv.Atoi(m["maximum_attempts"]); err != nil {
		return fail("maximum_attempts", err)
	}
	if r.ScheduledAt, err = parseMs(m["scheduled_at"]); err != nil {
		return fail("scheduled_at", err)
	}
	if r.ScheduledToRunAt, err = parseMs(m["scheduled_to_run_at"]); err != nil {
		return fail("scheduled_to_run_at", err)
	}
	if v, ok := m["original_task_id"]; ok {
		r.OriginalTaskID = &v
	}
	if v, ok := m["unique_key"]; ok {
		r.UniqueKey = &v
	}
	if v, ok := m["error"]; ok {
		r.Error = &v
	}
	if v, ok := m["started_at"]; ok {
		t, err := parseMs(v)
		if err != nil {
			return fail("started_at", err)
		}
		r.StartedAt = &t
	}
	if v, ok := m["finished_at"]; ok {
		t, err := parseMs(v)
		if err != nil {
			return fail("finished_at", err)
		}
		r.FinishedAt = &t
	}
	return &r, nil
}

func parseMs(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return fromMs(ms), nil
}
