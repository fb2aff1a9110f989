package perf

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/garagedesk/garagedesk/internal/app"
	"github.com/garagedesk/garagedesk/internal/billing"
	"github.com/garagedesk/garagedesk/internal/records"
	_ "github.com/garagedesk/garagedesk/internal/testing/guard"
)

func newServer(tb testing.TB) (http.Handler, string) {
	tb.Helper()
	tb.Setenv("NOTIFY_MODE", "log")
	tb.Setenv("APP_RATE_LIMIT", "1000000")

	cfg, err := app.LoadConfig()
	if err != nil {
		tb.Fatalf("load config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := app.NewContainer(tb.Context(), cfg, logger)
	if err != nil {
		tb.Fatalf("container: %v", err)
	}
	tb.Cleanup(func() { _ = c.Close() })

	customer, err := c.Records.CreateCustomer(tb.Context(), records.CreateCustomerRequest{Name: "Jane Driver", Email: "jane@example.com"})
	if err != nil {
		tb.Fatalf("seed customer: %v", err)
	}
	return app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		BillingHandler: billing.NewHandler(logger, c.Billing),
		RecordsHandler: records.NewHandler(logger, c.Records),
	}), customer.ID
}

func createInvoice(h http.Handler, customerID string) int {
	body := `{"customer_id":"` + customerID + `","items":[` +
		`{"name":"Brake pads","quantity":2,"unit_price":"49.99"},` +
		`{"name":"Labour","quantity":1,"unit_price":"85.00"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/invoices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestInvoiceLatencyTargets(t *testing.T) {
	h, customerID := newServer(t)

	samples := make([]time.Duration, 0, 200)
	for i := 0; i < 200; i++ {
		start := time.Now()
		if code := createInvoice(h, customerID); code != http.StatusCreated {
			t.Fatalf("create invoice: status %d", code)
		}
		samples = append(samples, time.Since(start))
	}
	if p95 := percentile95(samples); p95 > 250*time.Millisecond {
		t.Fatalf("create invoice latency regression: p95=%s", p95)
	}

	rec := httptest.NewRecorder()
	start := time.Now()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices?per_page=100", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list invoices: status %d", rec.Code)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("list invoices too slow: %s", elapsed)
	}
}

func BenchmarkCreateInvoice(b *testing.B) {
	h, customerID := newServer(b)
	b.ReportAllocs()
	for b.Loop() {
		if code := createInvoice(h, customerID); code != http.StatusCreated {
			b.Fatalf("create invoice: status %d", code)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}
