package banyantask

import (
	"context"

	"github.com/banyancomputer/banyan-task/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// NewStateCollector returns a Prometheus collector that reports
// banyan_tasks{state="..."} from store.Metrics on every scrape.
func NewStateCollector(store Store) prometheus.Collector {
	return observability.NewStateCollector(func(ctx context.Context) (map[string]int64, error) {
		m, err := store.Metrics(ctx)
		if err != nil {
			return nil, err
		}
		return m.ByLabel(), nil
	})
}
