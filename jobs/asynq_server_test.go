package jobs

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garagedesk/garagedesk/internal/notify"
)

func TestClientSendEnqueuesNotification(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Send(t.Context(), emailMessage()))

	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestClientSendRejectsInvalidMessage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	err := client.Send(t.Context(), notify.Message{Channel: notify.ChannelEmail, Body: "hi"})
	assert.ErrorIs(t, err, notify.ErrNoRecipients)
	assert.False(t, mr.Exists("asynq:{default}:pending"))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func serveHealth(t *testing.T, inspector QueueInspector) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(inspector, discardLogger).MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rec
}

func TestHealthHandler(t *testing.T) {
	rec := serveHealth(t, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"failed":0}`, rec.Body.String())

	rec = serveHealth(t, stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Retry: 1, Archived: 2}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":3,"active":0,"scheduled":0,"retry":1,"failed":2}`, rec.Body.String())

	rec = serveHealth(t, stubInspector{err: errors.New("redis down")})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	mr := miniredis.RunT(t)
	_, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: mr.Addr()},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: NewAppointmentRemindersTask()}},
	})
	assert.Error(t, err)
}
