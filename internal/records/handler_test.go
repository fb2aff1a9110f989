package records

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garagedesk/garagedesk/internal/billing"
	"github.com/garagedesk/garagedesk/internal/platform/httpx"
	"github.com/garagedesk/garagedesk/internal/view"
)

func newTestRouter(t *testing.T) (*fixture, http.Handler) {
	t.Helper()
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	views, err := view.NewEngine()
	require.NoError(t, err)

	r := chi.NewRouter()
	booking := NewBookingHandler(BookingHandlerParams{Logger: logger, Service: f.svc, Views: views})
	r.Route("/api", func(r chi.Router) {
		NewHandler(logger, f.svc).MountRoutes(r)
		r.Route("/public", booking.MountAPI)
	})
	booking.MountPages(r)
	return f, r
}

func doRequest(t *testing.T, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHandlerCustomerLifecycle(t *testing.T) {
	f, h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/api/customers", `{"name":"Jane Driver","email":"jane@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decodeBody[Customer](t, rec)
	assert.Equal(t, "/api/customers/"+c.ID, rec.Header().Get("Location"))

	rec = doRequest(t, h, http.MethodPost, "/api/vehicles", `{"customer_id":"`+c.ID+`","registration":"ab12 cde"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v := decodeBody[Vehicle](t, rec)
	assert.Equal(t, "AB12CDE", v.Registration)

	_, err := f.billing.CreateEstimate(t.Context(), billing.CreateEstimateRequest{
		CustomerID: c.ID,
		VehicleID:  v.ID,
		Items:      []billing.LineItemInput{{Name: "Tyres", Quantity: 4, UnitPrice: decimalPtr("80")}},
	})
	require.NoError(t, err)

	rec = doRequest(t, h, http.MethodDelete, "/api/customers/"+c.ID, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	problem := decodeBody[httpx.ProblemDetail](t, rec)
	assert.Equal(t, map[string]int{"vehicles": 1, "estimates": 1}, problem.Blockers)

	rec = doRequest(t, h, http.MethodGet, "/api/vehicles?customer_id="+c.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[ListResult[Vehicle]](t, rec).Total)

	rec = doRequest(t, h, http.MethodPut, "/api/customers/"+c.ID, `{"phone":"+441234567890"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "+441234567890", decodeBody[Customer](t, rec).Phone)
}

func TestHandlerValidationProblem(t *testing.T) {
	_, h := newTestRouter(t)
	rec := doRequest(t, h, http.MethodPost, "/api/customers", `{"email":"nope"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decodeBody[httpx.ProblemDetail](t, rec)
	assert.Contains(t, problem.Fields, "name")

	rec = doRequest(t, h, http.MethodGet, "/api/appointments?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerVehicleLookup(t *testing.T) {
	f, h := newTestRouter(t)
	f.lookup.info.Make = "FORD"

	rec := doRequest(t, h, http.MethodGet, "/api/vehicles/lookup/ab12cde", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, `"registration":"AB12CDE"`)
	assert.Contains(t, body, `"make":"FORD"`)
}

func TestHandlerAppointmentStatus(t *testing.T) {
	f, h := newTestRouter(t)
	c := f.customer(t, "Jane Driver", "jane@example.com", "")

	rec := doRequest(t, h, http.MethodPost, "/api/appointments",
		`{"customer_id":"`+c.ID+`","title":"MOT test","starts_at":"2024-07-16T10:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decodeBody[Appointment](t, rec)

	rec = doRequest(t, h, http.MethodPost, "/api/appointments/"+a.ID+"/status", `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/appointments/"+a.ID+"/status", `{"status":"scheduled"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/appointments?from=2024-07-16&to=2024-07-17", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[ListResult[Appointment]](t, rec).Total)
}

func TestHandlerBroadcast(t *testing.T) {
	f, h := newTestRouter(t)
	f.customer(t, "Jane Driver", "jane@example.com", "")

	rec := doRequest(t, h, http.MethodPost, "/api/notifications/broadcast",
		`{"channel":"email","subject":"Opening hours","body":"Hello {{.CustomerName}}"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, BroadcastResult{Recipients: 1, Sent: 1}, decodeBody[BroadcastResult](t, rec))
}

const bookingBody = `{
	"name": "Jane Driver",
	"email": "jane@example.com",
	"registration": "AB12CDE",
	"service": "MOT test",
	"starts_at": "2024-07-20T09:30:00Z"
}`

func TestHandlerBookingIsIdempotent(t *testing.T) {
	f, h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/api/public/bookings", bookingBody, "Idempotency-Key", "key-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeBody[BookingResult](t, rec)
	assert.False(t, first.Replayed)

	rec = doRequest(t, h, http.MethodPost, "/api/public/bookings", bookingBody, "Idempotency-Key", "key-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	replay := decodeBody[BookingResult](t, rec)
	assert.True(t, replay.Replayed)
	assert.Equal(t, first.AppointmentID, replay.AppointmentID)

	appts, err := f.svc.ListAppointments(t.Context(), AppointmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, appts.Total)
	assert.Len(t, f.dispatcher.messages(), 1, "confirmation is sent once")
}

func TestHandlerBookingFailureReleasesKey(t *testing.T) {
	_, h := newTestRouter(t)
	bad := strings.Replace(bookingBody, "2024-07-20", "2024-07-01", 1)

	rec := doRequest(t, h, http.MethodPost, "/api/public/bookings", bad, "Idempotency-Key", "key-2")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/public/bookings", bookingBody, "Idempotency-Key", "key-2")
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestBookingFormPages(t *testing.T) {
	f, h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodGet, "/book", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="idempotency_key"`)
	assert.Contains(t, rec.Body.String(), "Full service")

	form := url.Values{
		"idempotency_key": {"form-key"},
		"name":            {"Jane Driver"},
		"email":           {"jane@example.com"},
		"registration":    {"AB12CDE"},
		"service":         {"MOT test"},
		"starts_at":       {"2024-07-20T09:30"},
	}
	req := httptest.NewRequest(http.MethodPost, "/book", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "20 Jul 2024 09:30")

	appts, err := f.svc.ListAppointments(t.Context(), AppointmentFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, appts.Total)
	assert.Equal(t, SourceOnline, appts.Items[0].Source)
}

func TestBookingFormShowsFieldErrors(t *testing.T) {
	_, h := newTestRouter(t)
	form := url.Values{"name": {"Jane Driver"}, "email": {"not-an-email"}, "starts_at": {"2024-07-20T09:30"}}
	req := httptest.NewRequest(http.MethodPost, "/book", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `class="error"`)
	assert.Contains(t, rec.Body.String(), `value="Jane Driver"`)
}
