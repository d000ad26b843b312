package banyantask

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banyancomputer/banyan-task/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

// ContextFactory builds the dependency bundle handed to Run. It is invoked
// once per worker; the value may be shared and must be safe for concurrent use.
type ContextFactory[C any] func(ctx context.Context) (C, error)

// QueueConfig assigns a number of workers to a queue.
type QueueConfig struct {
	Name        string
	WorkerCount int
}

// PoolConfig defines the configuration for a worker pool.
type PoolConfig struct {
	// PollInterval is the longest a worker sleeps when its queue is empty.
	PollInterval time.Duration
	// ExecutionTimeout bounds a single Run. Tasks may override it.
	ExecutionTimeout time.Duration
	// ShutdownTimeout bounds how long Stop waits for in-flight executions.
	ShutdownTimeout time.Duration
	// Logger is the logger used for pool events.
	Logger Logger
	// Registerer receives the execution metrics. Nil keeps them private.
	Registerer prometheus.Registerer
	// TracerName selects the OpenTelemetry tracer for execution spans.
	TracerName string
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PollInterval < minIdleWait {
		c.PollInterval = minIdleWait
	}
	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = NewFmtLogger()
	}
	if c.TracerName == "" {
		c.TracerName = observability.TracerName
	}
	return c
}

// Pool owns the workers of every configured queue.
type Pool[C any] struct {
	store   Store
	reg     *Registry[C]
	factory ContextFactory[C]
	cfg     PoolConfig
	log     Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	queues  []QueueConfig
	initial []Task
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a pool. Nothing runs until Start.
func NewPool[C any](store Store, reg *Registry[C], factory ContextFactory[C], cfg PoolConfig) *Pool[C] {
	cfg = cfg.withDefaults()
	return &Pool[C]{
		store:   store,
		reg:     reg,
		factory: factory,
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: observability.NewMetrics(cfg.Registerer),
	}
}

// ConfigureQueue adds a queue. A WorkerCount below one is treated as one.
func (p *Pool[C]) ConfigureQueue(q QueueConfig) *Pool[C] {
	if q.WorkerCount < 1 {
		q.WorkerCount = 1
	}
	p.mu.Lock()
	p.queues = append(p.queues, q)
	p.mu.Unlock()
	return p
}

// ScheduleInitial registers a bootstrap task enqueued by Start when no
// record of its TaskName is active. It is meant for singleton recurring jobs.
func (p *Pool[C]) ScheduleInitial(t Task) *Pool[C] {
	p.mu.Lock()
	p.initial = append(p.initial, t)
	p.mu.Unlock()
	return p
}

// Start builds every worker's dependencies, enqueues the bootstrap tasks
// and launches the workers. It is idempotent and non-blocking. Workers poll
// until ctx is cancelled or Stop is called.
func (p *Pool[C]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		p.log.Warnf("pool already started; ignoring Start()")
		return nil
	}
	if len(p.queues) == 0 {
		return ErrNoQueues
	}

	names := p.reg.Names()
	tracer := otel.Tracer(p.cfg.TracerName)
	runCtx, cancel := context.WithCancel(ctx)

	var workers []*worker[C]
	for _, q := range p.queues {
		for i := 0; i < q.WorkerCount; i++ {
			deps, err := p.factory(ctx)
			if err != nil {
				cancel()
				return fmt.Errorf("banyantask: build worker context for queue %s: %w", q.Name, err)
			}
			workers = append(workers, &worker[C]{
				id:      workerName(q.Name, i),
				queue:   q.Name,
				names:   names,
				store:   p.store,
				reg:     p.reg,
				deps:    deps,
				cfg:     p.cfg,
				log:     p.log,
				metrics: p.metrics,
				tracer:  tracer,
			})
		}
	}

	// bootstrap only once every worker has its dependencies
	for _, t := range p.initial {
		if err := p.bootstrap(ctx, t); err != nil {
			cancel()
			return err
		}
	}

	p.started = true
	p.cancel = cancel
	p.log.Infof("starting pool: queues=%d workers=%d tasks=%v", len(p.queues), len(workers), names)
	for _, w := range workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.loop(runCtx)
		}()
	}
	return nil
}

func (p *Pool[C]) bootstrap(ctx context.Context, t Task) error {
	pending, err := p.store.HasPending(ctx, t.TaskName())
	if err != nil {
		return err
	}
	if pending {
		p.log.Debugf("bootstrap skipped, already pending: task=%s", t.TaskName())
		return nil
	}
	nt, err := Describe(t, p.reg.encoder)
	if err != nil {
		return err
	}
	id, created, err := p.store.Enqueue(ctx, nt)
	if err != nil {
		return err
	}
	if created {
		p.log.Infof("bootstrap task scheduled: id=%s task=%s", id, t.TaskName())
	}
	return nil
}

// Stop cancels polling and waits for in-flight executions to be reported.
// It returns ErrShutdownTimeout if some worker did not quiesce within
// ShutdownTimeout; those workers are abandoned.
func (p *Pool[C]) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.log.Warnf("pool not started; ignoring Stop()")
		p.mu.Unlock()
		return nil
	}
	p.started = false
	cancel := p.cancel
	p.mu.Unlock()
	p.log.Infof("stopping pool")

	cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	t := time.NewTimer(p.cfg.ShutdownTimeout)
	defer t.Stop()
	select {
	case <-done:
		p.log.Infof("pool stopped")
		return nil
	case <-t.C:
		p.log.Errorf("pool shutdown grace period of %s elapsed", p.cfg.ShutdownTimeout)
		return ErrShutdownTimeout
	}
}

// Run starts the pool and blocks until ctx is done, then stops it.
func (p *Pool[C]) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return p.Stop()
}
