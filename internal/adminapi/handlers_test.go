package adminapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	banyantask "github.com/banyancomputer/banyan-task"
	"github.com/banyancomputer/banyan-task/sqlstore"
	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sendEmail struct {
	To string `json:"to"`
}

func (sendEmail) TaskName() string { return "send_email" }

type fixture struct {
	store  *sqlstore.Store
	client *banyantask.Client
	router *mux.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := sqlstore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	client := banyantask.NewClient(s)
	reg := prometheus.NewRegistry()
	reg.MustRegister(banyantask.NewStateCollector(s))
	srv := NewServer(Config{Addr: ":0"}, zap.NewNop(), client)
	return &fixture{store: s, client: client, router: srv.Router(reg)}
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealthAndStats(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.client.Enqueue(context.Background(), sendEmail{To: "a@example.com"})
	require.NoError(t, err)

	rr := f.do(t, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())

	rr = f.do(t, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rr.Code)
	var m banyantask.Metrics
	require.NoError(t, sonic.Unmarshal(rr.Body.Bytes(), &m))
	require.EqualValues(t, 1, m.New)
	require.EqualValues(t, 1, m.Scheduled)

	rr = f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `banyan_tasks{state="new"} 1`)
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _, err := f.client.Enqueue(ctx, sendEmail{To: "a@example.com"})
	require.NoError(t, err)
	_, _, err = f.client.Enqueue(ctx, sendEmail{To: "b@example.com"}, banyantask.Queue("bulk"))
	require.NoError(t, err)

	rr := f.do(t, http.MethodGet, "/tasks/"+id)
	require.Equal(t, http.StatusOK, rr.Code)
	var got struct {
		Task struct {
			ID      string            `json:"id"`
			State   string            `json:"state"`
			Payload map[string]string `json:"payload"`
		} `json:"task"`
	}
	require.NoError(t, sonic.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, id, got.Task.ID)
	require.Equal(t, "new", got.Task.State)
	require.Equal(t, "a@example.com", got.Task.Payload["to"])

	rr = f.do(t, http.MethodGet, "/tasks/does-not-exist")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodGet, "/tasks?queue=bulk&state=new")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Tasks []map[string]any `json:"tasks"`
	}
	require.NoError(t, sonic.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Tasks, 1)
	require.Equal(t, "bulk", list.Tasks[0]["queue_name"])

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/tasks?state=sleeping").Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/tasks?limit=many").Code)
}

func TestCancelAndRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _, err := f.client.Enqueue(ctx, sendEmail{To: "a@example.com"})
	require.NoError(t, err)

	// retrying a record that never ran is a conflict
	require.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/tasks/"+id+"/retry").Code)

	rec, err := f.store.Next(ctx, banyantask.DefaultQueueName, []string{"send_email"})
	require.NoError(t, err)
	require.Equal(t, id, rec.ID)
	auto, err := f.store.Errored(ctx, id, &banyantask.ExecError{Kind: banyantask.ExecFailed, Err: errors.New("smtp down")})
	require.NoError(t, err)

	rr := f.do(t, http.MethodPost, "/tasks/"+auto+"/cancel")
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/tasks/"+auto+"/cancel").Code)

	rr = f.do(t, http.MethodGet, "/tasks/"+auto+"/chain")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 2, strings.Count(rr.Body.String(), `"task_name":"send_email"`))

	require.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/tasks/"+id+"/cancel").Code)
}
