package keys

// Package keys centralizes Redis key construction.
// It is kept in internal to avoid leaking key formats to public API.

import "strconv"

const (
	Prefix = "banyan:"

	// TaskPrefix prefixes the per-record HASH; the Lua claim script builds
	// record keys from it.
	TaskPrefix = Prefix + "task:"
	// Unique is a HASH from "<task_name>:<unique_key>" to the id of the
	// active record holding that key.
	Unique = Prefix + "unique"
	// Counts is a HASH of record counts per state.
	Counts = Prefix + "counts"
	// IDs is a ZSET of every record id scored by scheduled_at in ms.
	IDs = Prefix + "ids"
	// ReadyIndex is a SET of every ready ZSET key ever written.
	ReadyIndex = Prefix + "ready_keys"
)

func Task(id string) string       { return TaskPrefix + id }
func Active(name string) string   { return Prefix + "active:" + name }
func Chain(head string) string    { return Prefix + "chain:" + head }
func Ready(q, name string) string { return Prefix + "{" + q + "}:ready:" + name }

// UniqueField is the field of Unique for a task name and key. The name is
// length-prefixed so no name/key pair collides with another.
func UniqueField(name, key string) string {
	return strconv.Itoa(len(name)) + ":" + name + ":" + key
}

// Queue holds the precomputed claim keys of a queue for one set of task
// names so a polling worker does not rebuild them on every claim.
type Queue struct {
	Name  string
	ready map[string]string
	claim []string
}

// For returns the key set of queue q for the given task names.
func For(q string, names []string) Queue {
	ready := make(map[string]string, len(names))
	claim := make([]string, 0, 1+len(names))
	claim = append(claim, Counts)
	for _, n := range names {
		k := Ready(q, n)
		ready[n] = k
		claim = append(claim, k)
	}
	return Queue{Name: q, ready: ready, claim: claim}
}

// Ready returns the ready ZSET of name in this queue.
func (q Queue) Ready(name string) string {
	if k, ok := q.ready[name]; ok {
		return k
	}
	return Ready(q.Name, name)
}

// ClaimKeys is the KEYS list of the claim script: Counts followed by the
// ready ZSETs in name order. The slice is shared; do not modify it.
func (q Queue) ClaimKeys() []string { return q.claim }
