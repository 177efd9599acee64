package jobs

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.infos[queue], nil
}

func serveHealth(t *testing.T, inspector QueueInspector) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(inspector, slog.New(slog.NewTextHandler(io.Discard, nil))).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	return rr
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	rr := serveHealth(t, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queues":[
		{"queue":"fx","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0,"paused":false},
		{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0,"paused":false}
	]}`, rr.Body.String())
}

func TestJobsHealthReportsQueues(t *testing.T) {
	rr := serveHealth(t, fakeInspector{infos: map[string]*asynq.QueueInfo{
		QueueFX: {Queue: QueueFX, Pending: 2, Retry: 1},
	}})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"queue":"fx","pending":2,"active":0,"scheduled":0,"retry":1`)
}

func TestJobsHealthInspectorFailure(t *testing.T) {
	rr := serveHealth(t, fakeInspector{err: errors.New("redis down")})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}})
	require.ErrorContains(t, err, "no task handlers")
}

func TestFXTasksUseFXQueue(t *testing.T) {
	entries, err := FXIngestSchedule("@hourly", []string{"USD"}, []string{"IDR"}, "warning")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, TaskFXIngest, entries[0].Task.Type())
}
