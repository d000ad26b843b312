package banyantask

import (
	"context"
	"fmt"
	"sort"
)

// HandlerFunc is the function signature for executing a claimed task.
type HandlerFunc func(ctx context.Context, current CurrentTask) error

// Middleware is a function that wraps a HandlerFunc to provide cross-cutting concerns.
type Middleware func(HandlerFunc) HandlerFunc

// entry decodes a payload into the registered type.
type entry[C any] struct {
	decode func(enc Encoder, payload []byte) (Runner[C], error)
}

// Registry maps a TaskName to the type that executes it. It is built once
// before the pool starts and is read-only afterwards.
type Registry[C any] struct {
	entries     map[string]entry[C]
	encoder     Encoder
	middlewares []Middleware
}

// NewRegistry creates an empty registry using the JSON encoder.
func NewRegistry[C any]() *Registry[C] {
	return &Registry[C]{
		entries:     make(map[string]entry[C]),
		encoder:     defaultEncoder,
		middlewares: []Middleware{},
	}
}

// SetEncoder replaces the payload encoder. It must match the encoder the
// Client enqueues with.
func (r *Registry[C]) SetEncoder(enc Encoder) {
	if enc != nil {
		r.encoder = enc
	}
}

// Register adds task type T, keyed by the TaskName of its zero value.
// Registering the same name twice replaces the earlier type.
//
//	banyantask.Register[EmailSend](reg)
func Register[T any, C any, PT interface {
	*T
	Runner[C]
}](r *Registry[C]) {
	var zero T
	name := PT(&zero).TaskName()
	if name == "" {
		panic(fmt.Sprintf("banyantask: %T has an empty TaskName", zero))
	}
	r.entries[name] = entry[C]{
		decode: func(enc Encoder, payload []byte) (Runner[C], error) {
			v := new(T)
			if err := enc.Decode(payload, v); err != nil {
				return nil, err
			}
			return PT(v), nil
		},
	}
}

// Use adds middleware(s) to the registry. Middlewares are executed in the order they are added.
func (r *Registry[C]) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

// Names returns the registered task names, sorted.
func (r *Registry[C]) Names() []string {
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether name is registered.
func (r *Registry[C]) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Decode rebuilds the task value stored in rec. An unknown name wraps
// ErrNoHandler; a bad payload wraps ErrDeserializationFailed.
func (r *Registry[C]) Decode(rec *Record) (Runner[C], error) {
	e, ok := r.entries[rec.TaskName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, rec.TaskName)
	}
	t, err := e.decode(r.encoder, rec.Payload)
	if err != nil {
		return nil, Wrap(ErrDeserializationFailed, err)
	}
	return t, nil
}

func (r *Registry[C]) wrapHandler(h HandlerFunc) HandlerFunc {
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}
	return h
}
