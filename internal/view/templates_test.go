package view

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderBookingDone(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = engine.Render(rec, "pages/booking_done", TemplateData{
		Title: "Booking received",
		Data: struct {
			AppointmentID string
			StartsAt      time.Time
		}{AppointmentID: "apt-1", StartsAt: time.Date(2024, 7, 15, 9, 30, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "15 Jul 2024 09:30")
	assert.Contains(t, rec.Body.String(), "apt-1")
}

func TestRenderNilEngine(t *testing.T) {
	var engine *Engine
	err := engine.Render(httptest.NewRecorder(), "pages/booking", TemplateData{})
	assert.Error(t, err)
}
