package redisstore

import (
	banyantask "github.com/banyancomputer/banyan-task"
	"github.com/banyancomputer/banyan-task/internal/keys"
	"github.com/redis/go-redis/v9"
)

// enqueueScript reserves the unique key (if any) and writes every index of
// a new record. It returns 0 when the key is already held.
var enqueueScript = redis.NewScript(
	// language=Lua
	`
	-- KEYS: task, ready, unique, counts, active, ids, ready index, chain
	-- ARGV: unique field or '', id, run-at ms, scheduled-at ms, state, attempt, field/value pairs...
	if ARGV[1] ~= '' then
		if redis.call('HEXISTS', KEYS[3], ARGV[1]) == 1 then return 0 end
		redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
	end
	redis.call('HSET', KEYS[1], unpack(ARGV, 7))
	redis.call('ZADD', KEYS[2], ARGV[3], ARGV[2])
	redis.call('SADD', KEYS[7], KEYS[2])
	redis.call('SADD', KEYS[5], ARGV[2])
	redis.call('ZADD', KEYS[6], ARGV[4], ARGV[2])
	redis.call('ZADD', KEYS[8], ARGV[6], ARGV[2])
	redis.call('HINCRBY', KEYS[4], ARGV[5], 1)
	return 1
	`,
)

// claimScript picks the lowest-scored due member across the ready sets,
// removes it and moves the record to in_progress. The ZREM and the state
// check run in the same script so two claimers never get the same id.
var claimScript = redis.NewScript(
	// language=Lua
	`
	-- KEYS: counts, ready sets...
	-- ARGV: now ms, task key prefix
	local best, bestScore, bestKey = nil, nil, nil
	for i = 2, #KEYS do
		local items = redis.call('ZRANGEBYSCORE', KEYS[i], '-inf', ARGV[1], 'WITHSCORES', 'LIMIT', 0, 1)
		if #items > 0 then
			local score = tonumber(items[2])
			if bestScore == nil or score < bestScore then
				best, bestScore, bestKey = items[1], score, KEYS[i]
			end
		end
	end
	if not best then return false end
	redis.call('ZREM', bestKey, best)
	local tkey = ARGV[2] .. best
	local state = redis.call('HGET', tkey, 'state')
	if state ~= 'new' and state ~= 'retry' then return false end
	redis.call('HSET', tkey, 'state', 'in_progress', 'started_at', ARGV[1])
	redis.call('HINCRBY', KEYS[1], state, -1)
	redis.call('HINCRBY', KEYS[1], 'in_progress', 1)
	return best
	`,
)

func uniqueField(r *banyantask.Record) string {
	if r.UniqueKey == nil {
		return ""
	}
	return keys.UniqueField(r.TaskName, *r.UniqueKey)
}

func enqueueKeys(r *banyantask.Record) []string {
	return []string{
		keys.Task(r.ID),
		keys.Ready(r.QueueName, r.TaskName),
		keys.Unique,
		keys.Counts,
		keys.Active(r.TaskName),
		keys.IDs,
		keys.ReadyIndex,
		keys.Chain(r.ChainHead()),
	}
}

func enqueueArgs(r *banyantask.Record) []any {
	args := []any{
		uniqueField(r),
		r.ID,
		toMs(r.ScheduledToRunAt),
		toMs(r.ScheduledAt),
		r.State.String(),
		r.CurrentAttempt,
	}
	return append(args, encodeRecord(r)...)
}
