package records

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garagedesk/garagedesk/internal/shared"
)

func (f *fixture) appointment(t *testing.T, customerID, vehicleID string, startsAt time.Time) *Appointment {
	t.Helper()
	a, err := f.svc.CreateAppointment(t.Context(), CreateAppointmentRequest{
		CustomerID: customerID,
		VehicleID:  vehicleID,
		Title:      "MOT test",
		StartsAt:   startsAt,
	})
	require.NoError(t, err)
	return a
}

func TestCreateAppointmentSyncsCalendar(t *testing.T) {
	f := newFixture(t)
	c := f.customer(t, "Jane Driver", "jane@example.com", "")
	v := f.vehicle(t, c.ID, "AB12CDE")
	start := time.Date(2024, time.July, 16, 10, 0, 0, 0, time.UTC)

	a := f.appointment(t, c.ID, v.ID, start)
	assert.Equal(t, start.Add(time.Hour), a.EndsAt)
	assert.Equal(t, AppointmentScheduled, a.Status)
	assert.Equal(t, SourceStaff, a.Source)
	assert.Equal(t, "evt-1", a.CalendarEventID)

	ev := f.calendar.events["evt-1"]
	assert.Equal(t, "MOT test - Jane Driver (AB12CDE)", ev.Summary)
	assert.Equal(t, start, ev.Start)

	stored, err := f.svc.GetAppointment(t.Context(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", stored.CalendarEventID)
}

func TestCalendarFailureKeepsAppointment(t *testing.T) {
	f := newFixture(t)
	f.calendar.err = errors.New("calendar unavailable")
	c := f.customer(t, "Jane Driver", "jane@example.com", "")

	a := f.appointment(t, c.ID, "", testNow.Add(24*time.Hour))
	assert.Empty(t, a.CalendarEventID)

	_, err := f.svc.GetAppointment(t.Context(), a.ID)
	assert.NoError(t, err)
}

func TestCreateAppointmentValidation(t *testing.T) {
	f := newFixture(t)
	jane := f.customer(t, "Jane Driver", "jane@example.com", "")
	bob := f.customer(t, "Bob Baker", "bob@example.com", "")
	bobsCar := f.vehicle(t, bob.ID, "XY99ZZZ")
	start := testNow.Add(24 * time.Hour)
	before := start.Add(-time.Minute)

	tests := []struct {
		name  string
		req   CreateAppointmentRequest
		field string
	}{
		{"missing title", CreateAppointmentRequest{CustomerID: jane.ID, StartsAt: start}, "title"},
		{"unknown customer", CreateAppointmentRequest{CustomerID: "nobody", Title: "MOT", StartsAt: start}, "customer_id"},
		{"unknown vehicle", CreateAppointmentRequest{CustomerID: jane.ID, VehicleID: "missing", Title: "MOT", StartsAt: start}, "vehicle_id"},
		{"vehicle of another customer", CreateAppointmentRequest{CustomerID: jane.ID, VehicleID: bobsCar.ID, Title: "MOT", StartsAt: start}, "vehicle_id"},
		{"ends before start", CreateAppointmentRequest{CustomerID: jane.ID, Title: "MOT", StartsAt: start, EndsAt: &before}, "ends_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAppointment(t.Context(), tt.req)
			require.ErrorIs(t, err, shared.ErrValidation)
			assert.Contains(t, fieldsOf(t, err), tt.field)
		})
	}

	result, err := f.svc.ListAppointments(t.Context(), AppointmentFilter{})
	require.NoError(t, err)
	assert.Zero(t, result.Total)
}

func TestAppointmentStatusTransitions(t *testing.T) {
	f := newFixture(t)
	c := f.customer(t, "Jane Driver", "jane@example.com", "")
	a := f.appointment(t, c.ID, "", testNow.Add(24*time.Hour))

	got, err := f.svc.UpdateAppointmentStatus(t.Context(), a.ID, "confirmed")
	require.NoError(t, err)
	assert.Equal(t, AppointmentConfirmed, got.Status)

	_, err = f.svc.UpdateAppointmentStatus(t.Context(), a.ID, "scheduled")
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = f.svc.UpdateAppointmentStatus(t.Context(), a.ID, "postponed")
	assert.ErrorIs(t, err, shared.ErrValidation)

	got, err = f.svc.UpdateAppointmentStatus(t.Context(), a.ID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, AppointmentCancelled, got.Status)
	assert.Equal(t, []string{a.CalendarEventID}, f.calendar.deleted)

	_, err = f.svc.UpdateAppointmentStatus(t.Context(), a.ID, "completed")
	assert.ErrorIs(t, err, shared.ErrInvalidTransition, "cancelled is terminal")
}

func TestDeleteAppointmentRemovesEvent(t *testing.T) {
	f := newFixture(t)
	c := f.customer(t, "Jane Driver", "jane@example.com", "")
	a := f.appointment(t, c.ID, "", testNow.Add(24*time.Hour))

	require.NoError(t, f.svc.DeleteAppointment(t.Context(), a.ID))
	assert.Equal(t, []string{"evt-1"}, f.calendar.deleted)
	_, err := f.svc.GetAppointment(t.Context(), a.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListAppointmentsWindow(t *testing.T) {
	f := newFixture(t)
	c := f.customer(t, "Jane Driver", "jane@example.com", "")
	day := time.Date(2024, time.July, 16, 0, 0, 0, 0, time.UTC)
	f.appointment(t, c.ID, "", day.Add(9*time.Hour))
	f.appointment(t, c.ID, "", day.Add(15*time.Hour))
	f.appointment(t, c.ID, "", day.Add(24*time.Hour))

	result, err := f.svc.ListAppointments(t.Context(), AppointmentFilter{From: day, To: day.AddDate(0, 0, 1)})
	require.NoError(t, err)
	require.Equal(t, 2, result.Total)
	assert.True(t, result.Items[0].StartsAt.Before(result.Items[1].StartsAt))
}

func TestCustomerWithAppointmentCannotBeDeleted(t *testing.T) {
	f := newFixture(t)
	c := f.customer(t, "Jane Driver", "jane@example.com", "")
	f.appointment(t, c.ID, "", testNow.Add(24*time.Hour))

	err := f.svc.DeleteCustomer(t.Context(), c.ID)
	require.ErrorIs(t, err, shared.ErrReferential)
	assert.Equal(t, map[string]int{"appointments": 1}, blockersOf(t, err))
}
