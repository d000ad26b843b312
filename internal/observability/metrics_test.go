package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_StartedFinished(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Started("email_send", "mail")
	m.Started("email_send", "mail")
	m.Finished("email_send", "mail", "", 10*time.Millisecond)
	m.Finished("email_send", "mail", "timed_out", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TasksStartedTotal.WithLabelValues("email_send", "mail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksCompletedTotal.WithLabelValues("email_send", "mail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksFailedTotal.WithLabelValues("email_send", "mail", "timed_out")))
}

func TestMetrics_RegisterTwiceReuses(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewMetrics(reg)
	b := NewMetrics(reg)
	require.Same(t, a.TasksStartedTotal, b.TasksStartedTotal)

	a.Started("x", "default")
	assert.Equal(t, 1.0, testutil.ToFloat64(b.TasksStartedTotal.WithLabelValues("x", "default")))
}

func TestStateCollector(t *testing.T) {
	c := NewStateCollector(func(context.Context) (map[string]int64, error) {
		return map[string]int64{"new": 3, "dead": 1}, nil
	})
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	n, err := testutil.GatherAndCount(reg, "banyan_tasks")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStateCollector_FetchError(t *testing.T) {
	c := NewStateCollector(func(context.Context) (map[string]int64, error) {
		return nil, errors.New("db down")
	})
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	_, err := reg.Gather()
	require.Error(t, err)
}
