package redisstore

import (
	"context"
	"strconv"

	banyantask "github.com/banyancomputer/banyan-task"
	"github.com/banyancomputer/banyan-task/internal/keys"
	"github.com/redis/go-redis/v9"
)

const listPage = 256

// Get loads one record.
func (s *Store) Get(ctx context.Context, id string) (*banyantask.Record, error) {
	return s.load(ctx, s.rdb, id)
}

func matches(r *banyantask.Record, f banyantask.Filter) bool {
	if f.State != "" && r.State != f.State {
		return false
	}
	if f.QueueName != "" && r.QueueName != f.QueueName {
		return false
	}
	if f.TaskName != "" && r.TaskName != f.TaskName {
		return false
	}
	if f.ChainHead != "" && r.ChainHead() != f.ChainHead {
		return false
	}
	return true
}

// List returns records matching f, newest first. A chain filter walks the
// chain index; anything else scans the id index page by page.
func (s *Store) List(ctx context.Context, f banyantask.Filter) ([]*banyantask.Record, error) {
	limit := f.EffectiveLimit()
	index := keys.IDs
	if f.ChainHead != "" {
		index = keys.Chain(f.ChainHead)
	}

	var out []*banyantask.Record
	for start := int64(0); len(out) < limit; start += listPage {
		ids, err := s.rdb.ZRevRange(ctx, index, start, start+listPage-1).Result()
		if err != nil {
			return nil, banyantask.Wrap(banyantask.ErrConnectionFailure, err)
		}
		if len(ids) == 0 {
			break
		}
		cmds, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
			for _, id := range ids {
				p.HGetAll(ctx, keys.Task(id))
			}
			return nil
		})
		if err != nil {
			return nil, banyantask.Wrap(banyantask.ErrConnectionFailure, err)
		}
		for _, c := range cmds {
			m := c.(*redis.MapStringStringCmd).Val()
			if len(m) == 0 {
				continue
			}
			rec, err := decodeRecord(m)
			if err != nil {
				return nil, err
			}
			if matches(rec, f) {
				out = append(out, rec)
				if len(out) == limit {
					break
				}
			}
		}
		if len(ids) < listPage {
			break
		}
	}
	return out, nil
}

// HasPending reports whether a record of taskName is New, Retry or InProgress.
func (s *Store) HasPending(ctx context.Context, taskName string) (bool, error) {
	n, err := s.rdb.SCard(ctx, keys.Active(taskName)).Result()
	if err != nil {
		return false, banyantask.Wrap(banyantask.ErrConnectionFailure, err)
	}
	return n > 0, nil
}

// Metrics reads the per-state counters and counts due and future members of
// every ready set.
func (s *Store) Metrics(ctx context.Context) (banyantask.Metrics, error) {
	var m banyantask.Metrics
	counts, err := s.rdb.HGetAll(ctx, keys.Counts).Result()
	if err != nil {
		return m, banyantask.Wrap(banyantask.ErrConnectionFailure, err)
	}
	for state, v := range counts {
		st, err := banyantask.ParseState(state)
		if err != nil {
			return m, banyantask.Wrap(banyantask.ErrDeserializationFailed, err)
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return m, banyantask.Wrap(banyantask.ErrDeserializationFailed, err)
		}
		m.Add(st, n)
	}

	readyKeys, err := s.rdb.SMembers(ctx, keys.ReadyIndex).Result()
	if err != nil {
		return m, banyantask.Wrap(banyantask.ErrConnectionFailure, err)
	}
	if len(readyKeys) == 0 {
		return m, nil
	}
	now := strconv.FormatInt(toMs(s.set.NowMs()), 10)
	var due, future []*redis.IntCmd
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range readyKeys {
			due = append(due, p.ZCount(ctx, k, "-inf", now))
			future = append(future, p.ZCount(ctx, k, "("+now, "+inf"))
		}
		return nil
	})
	if err != nil {
		return m, banyantask.Wrap(banyantask.ErrConnectionFailure, err)
	}
	for i := range readyKeys {
		m.Scheduled += due[i].Val()
		m.ScheduledFuture += future[i].Val()
	}
	return m, nil
}
