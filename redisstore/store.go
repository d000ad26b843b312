// Package redisstore is a banyantask.Store on Redis. Enqueue and claim are
// Lua scripts; every other transition re-reads the record under WATCH and
// writes it back in a MULTI block, retrying when a concurrent writer wins.
package redisstore

import (
	"context"
	"errors"
	"strings"
	"sync"

	banyantask "github.com/banyancomputer/banyan-task"
	"github.com/banyancomputer/banyan-task/internal/keys"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 32

// Store implements banyantask.Store on Redis.
type Store struct {
	rdb redis.UniversalClient
	set banyantask.StoreSettings

	// queues caches keys.Queue per queue and task name set.
	queues sync.Map
}

var _ banyantask.Store = (*Store)(nil)

// New wraps an existing client. Close closes it.
func New(rdb redis.UniversalClient, opts ...banyantask.StoreOption) *Store {
	return &Store{rdb: rdb, set: banyantask.ResolveStoreOptions(opts...)}
}

// Open connects to addr and pings it.
func Open(ctx context.Context, addr string, opts ...banyantask.StoreOption) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, banyantask.Wrap(banyantask.ErrConnectionFailure, err)
	}
	return New(rdb, opts...), nil
}

// Client exposes the underlying client.
func (s *Store) Client() redis.UniversalClient { return s.rdb }

func (s *Store) Close() error { return s.rdb.Close() }

// Enqueue inserts a New record unless its unique key is held by an active
// record of the same task name.
func (s *Store) Enqueue(ctx context.Context, t banyantask.NewTask) (string, bool, error) {
	rec := t.Record(s.set.NewID(), s.set.NowMs())
	ok, err := enqueueScript.Run(ctx, s.rdb, enqueueKeys(rec), enqueueArgs(rec)...).Int()
	if err != nil {
		return "", false, banyantask.Wrap(banyantask.ErrConnectionFailure, err)
	}
	if ok == 0 {
		s.set.Logger.Debugf("redisstore: enqueue skipped, unique key held: task=%s key=%s", rec.TaskName, *rec.UniqueKey)
		return "", false, nil
	}
	return rec.ID, true, nil
}

// Next claims the due record with the lowest run-at score across the ready
// sets of taskNames in queue.
func (s *Store) Next(ctx context.Context, queue string, taskNames []string) (*banyantask.Record, error) {
	if len(taskNames) == 0 {
		return nil, nil
	}
	id, err := claimScript.Run(ctx, s.rdb, s.claimKeys(queue, taskNames), toMs(s.set.NowMs()), keys.TaskPrefix).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, banyantask.Wrap(banyantask.ErrConnectionFailure, err)
	}
	return s.load(ctx, s.rdb, id)
}

func (s *Store) claimKeys(queue string, taskNames []string) []string {
	id := queue + "\x00" + strings.Join(taskNames, "\x00")
	if q, ok := s.queues.Load(id); ok {
		return q.(keys.Queue).ClaimKeys()
	}
	q, _ := s.queues.LoadOrStore(id, keys.For(queue, taskNames))
	return q.(keys.Queue).ClaimKeys()
}

func (s *Store) load(ctx context.Context, c redis.Cmdable, id string) (*banyantask.Record, error) {
	m, err := c.HGetAll(ctx, keys.Task(id)).Result()
	if err != nil {
		return nil, banyantask.Wrap(banyantask.ErrConnectionFailure, err)
	}
	if len(m) == 0 {
		return nil, banyantask.ErrUnknownTask
	}
	return decodeRecord(m)
}
