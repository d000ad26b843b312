package redisstore

import (
	"context"
	"errors"
	"strconv"

	banyantask "github.com/banyancomputer/banyan-task"
	"github.com/banyancomputer/banyan-task/internal/keys"
	"github.com/redis/go-redis/v9"
)

// change describes one validated state write.
type change struct {
	to       banyantask.State
	errText  *string
	clearErr bool
}

// mutate loads id under WATCH and runs fn, retrying when the watched keys
// change before EXEC.
func (s *Store) mutate(ctx context.Context, id string, fn func(tx *redis.Tx, rec *banyantask.Record) error) error {
	txf := func(tx *redis.Tx) error {
		rec, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		return fn(tx, rec)
	}
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, keys.Task(id), keys.Unique)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return connErr(err)
	}
	return banyantask.Wrap(banyantask.ErrConnectionFailure, errors.New("too many concurrent updates of "+id))
}

func connErr(err error) error {
	if err == nil {
		return nil
	}
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

// exec runs the queued writes. A lost WATCH is returned as is so mutate
// retries.
func exec(ctx context.Context, tx *redis.Tx, fn func(p redis.Pipeliner)) error {
	_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
		fn(p)
		return nil
	})
	if err == nil || errors.Is(err, redis.TxFailedErr) {
		return err
	}
	return banyantask.Wrap(banyantask.ErrConnectionFailure, err)
}

// writeState queues the writes for rec moving to c.to and updates rec in
// memory so several changes can be chained in one block.
func (s *Store) writeState(ctx context.Context, p redis.Pipeliner, rec *banyantask.Record, c change) {
	from := rec.State
	now := s.set.NowMs()
	tkey := keys.Task(rec.ID)

	fields := []any{"state", c.to.String()}
	if c.to == banyantask.StateInProgress {
		fields = append(fields, "started_at", toMs(now))
		rec.StartedAt = &now
	}
	if c.to.Finishes() {
		fields = append(fields, "finished_at", toMs(now))
		rec.FinishedAt = &now
	}
	if c.errText != nil {
		fields = append(fields, "error", *c.errText)
		rec.Error = c.errText
	}
	p.HSet(ctx, tkey, fields...)
	if c.clearErr && c.errText == nil {
		p.HDel(ctx, tkey, "error")
		rec.Error = nil
	}
	p.HIncrBy(ctx, keys.Counts, from.String(), -1)
	p.HIncrBy(ctx, keys.Counts, c.to.String(), 1)

	if from.IsReady() && !c.to.IsReady() {
		p.ZRem(ctx, keys.Ready(rec.QueueName, rec.TaskName), rec.ID)
	}
	if from.IsActive() && !c.to.IsActive() {
		p.SRem(ctx, keys.Active(rec.TaskName), rec.ID)
		if f := uniqueField(rec); f != "" {
			p.HDel(ctx, keys.Unique, f)
		}
	}
	rec.State = c.to
}

// writeNew queues every index write of a new record; the same layout the
// enqueue script produces.
func (s *Store) writeNew(ctx context.Context, p redis.Pipeliner, rec *banyantask.Record) {
	ready := keys.Ready(rec.QueueName, rec.TaskName)
	p.HSet(ctx, keys.Task(rec.ID), encodeRecord(rec)...)
	p.ZAdd(ctx, ready, redis.Z{Score: float64(toMs(rec.ScheduledToRunAt)), Member: rec.ID})
	p.SAdd(ctx, keys.ReadyIndex, ready)
	p.SAdd(ctx, keys.Active(rec.TaskName), rec.ID)
	p.ZAdd(ctx, keys.IDs, redis.Z{Score: float64(toMs(rec.ScheduledAt)), Member: rec.ID})
	p.ZAdd(ctx, keys.Chain(rec.ChainHead()), redis.Z{Score: float64(rec.CurrentAttempt), Member: rec.ID})
	p.HIncrBy(ctx, keys.Counts, rec.State.String(), 1)
	if f := uniqueField(rec); f != "" {
		p.HSet(ctx, keys.Unique, f, rec.ID)
	}
}

// uniqueHolder returns the id holding field, or "".
func uniqueHolder(ctx context.Context, tx *redis.Tx, field string) (string, error) {
	if field == "" {
		return "", nil
	}
	id, err := tx.HGet(ctx, keys.Unique, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", banyantask.Wrap(banyantask.ErrConnectionFailure, err)
	}
	return id, nil
}

func (s *Store) transition(ctx context.Context, id string, c change) error {
	return s.mutate(ctx, id, func(tx *redis.Tx, rec *banyantask.Record) error {
		if !banyantask.CanTransition(rec.State, c.to) {
			return banyantask.InvalidTransition(rec.State, c.to)
		}
		return exec(ctx, tx, func(p redis.Pipeliner) {
			s.writeState(ctx, p, rec, c)
		})
	})
}

// Completed moves an InProgress record to Complete and clears its error.
func (s *Store) Completed(ctx context.Context, id string) error {
	return s.transition(ctx, id, change{to: banyantask.StateComplete, clearErr: true})
}

// Reschedule completes id and inserts the next occurrence of a recurring
// task in the same MULTI block.
func (s *Store) Reschedule(ctx context.Context, id string, next banyantask.NewTask) (string, bool, error) {
	var (
		nextID  string
		created bool
	)
	err := s.mutate(ctx, id, func(tx *redis.Tx, rec *banyantask.Record) error {
		if !banyantask.CanTransition(rec.State, banyantask.StateComplete) {
			return banyantask.InvalidTransition(rec.State, banyantask.StateComplete)
		}
		follow := next.Record(s.set.NewID(), s.set.NowMs())
		holder, err := uniqueHolder(ctx, tx, uniqueField(follow))
		if err != nil {
			return err
		}
		// the completing record releases its own key in the same block
		created = holder == "" || holder == rec.ID
		nextID = ""
		if created {
			nextID = follow.ID
		}
		return exec(ctx, tx, func(p redis.Pipeliner) {
			s.writeState(ctx, p, rec, change{to: banyantask.StateComplete, clearErr: true})
			if created {
				s.writeNew(ctx, p, follow)
			}
		})
	})
	if err != nil {
		return "", false, err
	}
	return nextID, created, nil
}

// Errored records a failed execution of id. Faults and undecodable payloads
// go Panicked then Dead. Other failures go Error (or TimedOut) and spawn a
// retry record while attempts remain, else the record goes Dead.
func (s *Store) Errored(ctx context.Context, id string, execErr *banyantask.ExecError) (string, error) {
	msg := execErr.Error()
	var retryID string
	err := s.mutate(ctx, id, func(tx *redis.Tx, rec *banyantask.Record) error {
		failed := execErr.FailedState()
		if !banyantask.CanTransition(rec.State, failed) {
			return banyantask.InvalidTransition(rec.State, failed)
		}
		var next *banyantask.Record
		if execErr.Retryable() {
			next = s.successor(rec)
		}
		retryID = ""
		if next != nil {
			retryID = next.ID
		}
		return exec(ctx, tx, func(p redis.Pipeliner) {
			s.writeState(ctx, p, rec, change{to: failed, errText: &msg})
			if next != nil {
				s.writeNew(ctx, p, next)
				return
			}
			s.writeState(ctx, p, rec, change{to: banyantask.StateDead})
		})
	})
	if err != nil {
		return "", err
	}
	return retryID, nil
}

// successor builds the retry record of rec with the backoff delay, or nil
// when attempts are exhausted.
func (s *Store) successor(rec *banyantask.Record) *banyantask.Record {
	now := s.set.NowMs()
	next, ok := rec.NextAttempt(now, now.Add(s.set.Backoff.Delay(rec.CurrentAttempt)))
	if !ok {
		return nil
	}
	next.ID = s.set.NewID()
	return next
}

// Retry re-drives an Error or TimedOut record. It returns "" when the record
// has no attempts left; the caller decides whether to finalize it.
func (s *Store) Retry(ctx context.Context, id string) (string, error) {
	var retryID string
	err := s.mutate(ctx, id, func(tx *redis.Tx, rec *banyantask.Record) error {
		if rec.State != banyantask.StateError && rec.State != banyantask.StateTimedOut {
			return banyantask.Wrap(banyantask.ErrNotRetryable, errors.New("state "+rec.State.String()))
		}
		later, err := tx.ZCount(ctx, keys.Chain(rec.ChainHead()), "("+strconv.Itoa(rec.CurrentAttempt), "+inf").Result()
		if err != nil {
			return banyantask.Wrap(banyantask.ErrConnectionFailure, err)
		}
		if later > 0 {
			return banyantask.Wrap(banyantask.ErrNotRetryable, errors.New("a later attempt exists"))
		}
		next := s.successor(rec)
		retryID = ""
		if next == nil {
			return nil
		}
		holder, err := uniqueHolder(ctx, tx, uniqueField(next))
		if err != nil {
			return err
		}
		if holder != "" {
			return banyantask.Wrap(banyantask.ErrNotRetryable, errors.New("unique key held by "+holder))
		}
		retryID = next.ID
		return exec(ctx, tx, func(p redis.Pipeliner) {
			s.writeNew(ctx, p, next)
		})
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
