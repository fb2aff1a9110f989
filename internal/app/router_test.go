package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garagedesk/garagedesk/internal/billing"
	"github.com/garagedesk/garagedesk/internal/observability"
	"github.com/garagedesk/garagedesk/internal/records"
	"github.com/garagedesk/garagedesk/internal/shared"
	"github.com/garagedesk/garagedesk/internal/view"
)

func newTestApp(t *testing.T, checks map[string]HealthCheck) http.Handler {
	t.Helper()
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg, err := LoadConfig()
	require.NoError(t, err)

	billingRepo := billing.NewMemoryRepository()
	locker := shared.NewLocalLocker()
	recordSvc := records.NewService(records.ServiceParams{
		Repo:      records.NewMemoryRepository(),
		Documents: billingRepo,
		Locker:    locker,
		Logger:    logger,
	})
	billingSvc := billing.NewService(billing.ServiceParams{
		Repo:    billingRepo,
		Records: recordSvc,
		Locker:  locker,
		Logger:  logger,
		Config:  billing.Config{Currency: cfg.BillingCurrency, DefaultTaxRate: cfg.BillingDefaultTaxRate},
	})
	views, err := view.NewEngine()
	require.NoError(t, err)

	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         cfg,
		BillingHandler: billing.NewHandler(logger, billingSvc),
		RecordsHandler: records.NewHandler(logger, recordSvc),
		BookingHandler: records.NewBookingHandler(records.BookingHandlerParams{Logger: logger, Service: recordSvc, Views: views}),
		Metrics:        observability.NewMetrics(),
		HealthChecks:   checks,
	})
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = "192.0.2.10:4000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterMountsAPI(t *testing.T) {
	h := newTestApp(t, nil)

	rec := serve(h, http.MethodPost, "/api/customers", `{"name":"Jane Driver","email":"jane@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var customer records.Customer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &customer))

	rec = serve(h, http.MethodPost, "/api/estimates",
		`{"customer_id":"`+customer.ID+`","items":[{"name":"Oil change","quantity":1,"unit_price":"49.99"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var est billing.Estimate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &est))
	assert.True(t, strings.HasPrefix(est.Number, "EST-"))
	assert.Equal(t, "8.5", est.TaxRate.String())

	rec = serve(h, http.MethodDelete, "/api/customers/"+customer.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRouterPublicPages(t *testing.T) {
	h := newTestApp(t, nil)

	rec := serve(h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/book", rec.Header().Get("Location"))

	rec = serve(h, http.MethodGet, "/book", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = serve(h, http.MethodGet, "/static/css/booking.css", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
}

func TestRouterMetrics(t *testing.T) {
	h := newTestApp(t, nil)
	serve(h, http.MethodGet, "/api/invoices", "")

	rec := serve(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "garagedesk_http_requests_total")
}

func TestHealthz(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		h := newTestApp(t, map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
		})
		rec := serve(h, http.MethodGet, "/healthz", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var report healthReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, healthReport{Status: "ok", Checks: map[string]string{"database": "ok"}}, report)
	})

	t.Run("degraded", func(t *testing.T) {
		h := newTestApp(t, map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		rec := serve(h, http.MethodGet, "/healthz", "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var report healthReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, "degraded", report.Status)
		assert.Equal(t, "connection refused", report.Checks["redis"])
	})
}
