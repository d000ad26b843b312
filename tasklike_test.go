package banyantask

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type pinTask struct {
	CID string `json:"cid"`
}

func (pinTask) TaskName() string                              { return "pin_cid" }
func (pinTask) Run(context.Context, CurrentTask, *deps) error { return nil }

type storageReport struct {
	Bucket string `json:"bucket"`
}

func (storageReport) TaskName() string                              { return "storage_report" }
func (storageReport) QueueName() string                             { return "reports" }
func (storageReport) MaxAttempts() int                              { return 7 }
func (r storageReport) UniqueKey() string                           { return r.Bucket }
func (storageReport) Run(context.Context, CurrentTask, *deps) error { return nil }

type deps struct{ calls int }

type badEncoder struct{}

func (badEncoder) Encode(any) ([]byte, error) { return nil, errors.New("nope") }
func (badEncoder) Decode([]byte, any) error   { return errors.New("nope") }

func TestDescribe_Defaults(t *testing.T) {
	nt, err := Describe(pinTask{CID: "bafy"}, defaultEncoder)
	require.NoError(t, err)
	require.Equal(t, "pin_cid", nt.TaskName)
	require.Equal(t, DefaultQueueName, nt.QueueName)
	require.Equal(t, DefaultMaxAttempts, nt.MaximumAttempts)
	require.Nil(t, nt.UniqueKey)
	require.True(t, nt.ScheduledToRunAt.IsZero())
	require.JSONEq(t, `{"cid":"bafy"}`, string(nt.Payload))
}

func TestDescribe_TaskDeclarations(t *testing.T) {
	nt, err := Describe(storageReport{Bucket: "abc"}, defaultEncoder)
	require.NoError(t, err)
	require.Equal(t, "reports", nt.QueueName)
	require.Equal(t, 7, nt.MaximumAttempts)
	require.NotNil(t, nt.UniqueKey)
	require.Equal(t, "abc", *nt.UniqueKey)

	// an empty declared key means no deduplication
	nt, err = Describe(storageReport{}, defaultEncoder)
	require.NoError(t, err)
	require.Nil(t, nt.UniqueKey)
}

func TestDescribe_OptionsOverride(t *testing.T) {
	at := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	nt, err := Describe(storageReport{Bucket: "abc"}, defaultEncoder,
		Queue("urgent"), MaxAttempts(2), UniqueKey(""), RunAt(at), Delay(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "urgent", nt.QueueName)
	require.Equal(t, 2, nt.MaximumAttempts)
	require.Nil(t, nt.UniqueKey)
	require.Equal(t, at, nt.ScheduledToRunAt)

	nt, err = Describe(pinTask{}, defaultEncoder, UniqueKey("k"), Delay(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "k", *nt.UniqueKey)
	require.WithinDuration(t, time.Now().Add(time.Minute), nt.ScheduledToRunAt, 5*time.Second)
}

func TestDescribe_EncodeFailure(t *testing.T) {
	_, err := Describe(pinTask{}, badEncoder{})
	require.ErrorIs(t, err, ErrEncodeFailed)
}

func TestNewTask_Record(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := NewTask{TaskName: "pin_cid", QueueName: "default", MaximumAttempts: 3}.Record("a", now)
	require.Equal(t, StateNew, rec.State)
	require.Equal(t, now, rec.ScheduledToRunAt)
	require.Equal(t, "a", rec.ChainHead())

	next, ok := rec.NextAttempt(now, now.Add(time.Second))
	require.True(t, ok)
	require.Equal(t, StateRetry, next.State)
	require.Equal(t, 1, next.CurrentAttempt)
	require.Equal(t, "a", next.ChainHead())

	next.ID = "b"
	last, ok := next.NextAttempt(now, now)
	require.True(t, ok)
	require.Equal(t, "a", *last.OriginalTaskID)
	_, ok = last.NextAttempt(now, now)
	require.False(t, ok)
}

func TestFilter_EffectiveLimit(t *testing.T) {
	require.Equal(t, 100, Filter{}.EffectiveLimit())
	require.Equal(t, 100, Filter{Limit: 5000}.EffectiveLimit())
	require.Equal(t, 10, Filter{Limit: 10}.EffectiveLimit())
}

func TestMetrics_Add(t *testing.T) {
	var m Metrics
	m.Add(StateNew, 2)
	m.Add(StateRetry, 1)
	m.Add(StateDead, 3)
	require.Equal(t, int64(2), m.ByLabel()["new"])
	require.Equal(t, int64(1), m.ByLabel()["retried"])
	require.Equal(t, int64(3), m.ByLabel()["dead"])
}
