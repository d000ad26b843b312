package banyantask

import (
	"context"
)

// Client provides APIs to enqueue and manage tasks in a Store.
type Client struct {
	store   Store
	encoder Encoder
}

// NewClient creates a new client over store.
func NewClient(store Store) *Client {
	return &Client{store: store, encoder: defaultEncoder}
}

// WithEncoder returns a copy of the client using enc for payloads. It must
// match the encoder of the Registry that executes the tasks.
func (c *Client) WithEncoder(enc Encoder) *Client {
	cp := *c
	if enc != nil {
		cp.encoder = enc
	}
	return &cp
}

// Enqueue persists t as a New record and returns its id. When t's unique key
// is already held by an active record it returns ("", false, nil).
func (c *Client) Enqueue(ctx context.Context, t Task, opts ...Option) (string, bool, error) {
	nt, err := Describe(t, c.encoder, opts...)
	if err != nil {
		return "", false, err
	}
	return c.store.Enqueue(ctx, nt)
}

// Get loads a record by id. It returns ErrUnknownTask if the id does not exist.
func (c *Client) Get(ctx context.Context, id string) (*Record, error) {
	return c.store.Get(ctx, id)
}

// TaskFilter is a function used to filter records during List.
type TaskFilter func(*Record) bool

// List returns records matching f, newest first. Optional predicates are
// applied after the store query, so they may shrink the result below f.Limit.
func (c *Client) List(ctx context.Context, f Filter, match ...TaskFilter) ([]*Record, error) {
	recs, err := c.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(match) == 0 {
		return recs, nil
	}
	out := recs[:0]
outer:
	for _, r := range recs {
		for _, m := range match {
			if !m(r) {
				continue outer
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// Chain returns every attempt of the retry chain id belongs to, oldest first.
func (c *Client) Chain(ctx context.Context, id string) ([]*Record, error) {
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	recs, err := c.store.List(ctx, Filter{ChainHead: rec.ChainHead(), Limit: 1000})
	if err != nil {
		return nil, err
	}
	chain := make([]*Record, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		chain = append(chain, recs[i])
	}
	return chain, nil
}

// Cancel moves a non-terminal record to Cancelled. A running execution is
// not interrupted; its report is rejected afterwards.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.store.Cancel(ctx, id)
}

// Retry re-drives an Error or TimedOut record by inserting its successor.
// It returns "" when the record has no attempts left.
func (c *Client) Retry(ctx context.Context, id string) (string, error) {
	return c.store.Retry(ctx, id)
}

// Metrics returns aggregate record counts per state.
func (c *Client) Metrics(ctx context.Context) (Metrics, error) {
	return c.store.Metrics(ctx)
}
