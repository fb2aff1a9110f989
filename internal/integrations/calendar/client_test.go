package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calendars/shop@example.com/events", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body eventBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "MOT - AB12 CDE", body.Summary)
		assert.Equal(t, "2024-07-16T09:30:00Z", body.Start.DateTime)
		assert.Equal(t, "2024-07-16T10:30:00Z", body.End.DateTime)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"evt-1","summary":"MOT - AB12 CDE"}`))
	}))
	defer srv.Close()

	start := time.Date(2024, time.July, 16, 9, 30, 0, 0, time.UTC)
	c := NewClient(srv.URL, "shop@example.com", "tok")
	id, err := c.CreateEvent(context.Background(), Event{Summary: "MOT - AB12 CDE", Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", id)
}

func TestCreateEventErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	start := time.Date(2024, time.July, 16, 9, 30, 0, 0, time.UTC)
	c := NewClient(srv.URL, "cal", "tok")
	_, err := c.CreateEvent(context.Background(), Event{Summary: "x", Start: start, End: start.Add(time.Hour)})
	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusForbidden, status.Code)
	assert.Equal(t, "quota exceeded", status.Body)

	_, err = c.CreateEvent(context.Background(), Event{Summary: "x", Start: start, End: start})
	assert.Error(t, err)

	_, err = NewClient(srv.URL, "", "").CreateEvent(context.Background(), Event{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDeleteEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		switch r.URL.Path {
		case "/calendars/cal/events/evt-1":
			w.WriteHeader(http.StatusNoContent)
		case "/calendars/cal/events/gone":
			w.WriteHeader(http.StatusGone)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "cal", "tok")
	require.NoError(t, c.DeleteEvent(context.Background(), "evt-1"))
	require.NoError(t, c.DeleteEvent(context.Background(), "gone"))
	require.NoError(t, c.DeleteEvent(context.Background(), ""))
	assert.Error(t, c.DeleteEvent(context.Background(), "broken"))
}
