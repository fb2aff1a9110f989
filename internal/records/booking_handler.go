package records

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/garagedesk/garagedesk/internal/platform/httpx"
	"github.com/garagedesk/garagedesk/internal/shared"
	"github.com/garagedesk/garagedesk/internal/view"
)

const (
	bookingIdempotencyModule = "booking"
	bookingFormTimeLayout    = "2006-01-02T15:04"
)

// DefaultBookingServices are offered on the public form.
var DefaultBookingServices = []string{"MOT test", "Full service", "Interim service", "Brakes", "Diagnostics", "Other"}

// BookingHandlerParams configures the public booking endpoints.
type BookingHandlerParams struct {
	Logger      *slog.Logger
	Service     *Service
	Idempotency shared.IdempotencyStore
	Views       *view.Engine
	Services    []string
	// RateLimit caps booking submissions per client IP each minute; zero disables it.
	RateLimit int
}

// BookingHandler serves the unauthenticated booking form and API.
type BookingHandler struct {
	logger    *slog.Logger
	service   *Service
	idem      shared.IdempotencyStore
	views     *view.Engine
	services  []string
	rateLimit int
}

// NewBookingHandler builds the public booking handler.
func NewBookingHandler(p BookingHandlerParams) *BookingHandler {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Idempotency == nil {
		p.Idempotency = shared.NewMemoryIdempotencyStore()
	}
	if len(p.Services) == 0 {
		p.Services = DefaultBookingServices
	}
	return &BookingHandler{
		logger:    p.Logger,
		service:   p.Service,
		idem:      p.Idempotency,
		views:     p.Views,
		services:  p.Services,
		rateLimit: p.RateLimit,
	}
}

func (h *BookingHandler) limit(r chi.Router) chi.Router {
	if h.rateLimit <= 0 {
		return r
	}
	return r.With(httprate.Limit(h.rateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
}

// MountAPI registers the JSON booking endpoint.
func (h *BookingHandler) MountAPI(r chi.Router) {
	h.limit(r).Post("/bookings", h.createBooking)
}

// MountPages registers the HTML booking form.
func (h *BookingHandler) MountPages(r chi.Router) {
	r.Get("/book", h.showForm)
	h.limit(r).Post("/book", h.submitForm)
}

// ============================================================================
// JSON
// ============================================================================

func (h *BookingHandler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req BookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.book(r, strings.TrimSpace(r.Header.Get("Idempotency-Key")), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/api/appointments/"+result.AppointmentID)
	httpx.JSON(w, status, result)
}

// book runs a booking once per idempotency key. A repeated key returns the
// original appointment instead of booking again.
func (h *BookingHandler) book(r *http.Request, key string, req BookingRequest) (*BookingResult, error) {
	ctx := r.Context()
	if key == "" {
		return h.service.Book(ctx, req)
	}
	previous, err := h.idem.CheckAndInsert(ctx, key, bookingIdempotencyModule)
	switch {
	case errors.Is(err, shared.ErrIdempotencyConflict) && previous != "":
		appt, getErr := h.service.GetAppointment(ctx, previous)
		if getErr != nil {
			return nil, getErr
		}
		return &BookingResult{
			AppointmentID: appt.ID,
			CustomerID:    appt.CustomerID,
			VehicleID:     appt.VehicleID,
			StartsAt:      appt.StartsAt,
			Replayed:      true,
		}, nil
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return nil, shared.Conflict("records.Book", "booking with this key is in progress")
	case err != nil:
		return nil, err
	}

	result, err := h.service.Book(ctx, req)
	if err != nil {
		if delErr := h.idem.Delete(ctx, key, bookingIdempotencyModule); delErr != nil {
			h.logger.WarnContext(ctx, "release idempotency key", slog.Any("error", delErr))
		}
		return nil, err
	}
	if err := h.idem.Complete(ctx, key, bookingIdempotencyModule, result.AppointmentID); err != nil {
		h.logger.WarnContext(ctx, "complete idempotency key", slog.Any("error", err))
	}
	return result, nil
}

// ============================================================================
// HTML
// ============================================================================

type bookingForm struct {
	Name          string
	Email         string
	Phone         string
	Registration  string
	Make          string
	Model         string
	Service       string
	StartsAtInput string
	Notes         string
}

type bookingPage struct {
	IdempotencyKey string
	Form           bookingForm
	Errors         map[string]string
	Services       []string
}

type bookingDone struct {
	AppointmentID string
	StartsAt      time.Time
}

func (h *BookingHandler) showForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, bookingPage{IdempotencyKey: uuid.NewString()})
}

func (h *BookingHandler) submitForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	form := bookingForm{
		Name:          r.PostForm.Get("name"),
		Email:         r.PostForm.Get("email"),
		Phone:         r.PostForm.Get("phone"),
		Registration:  r.PostForm.Get("registration"),
		Make:          r.PostForm.Get("make"),
		Model:         r.PostForm.Get("model"),
		Service:       r.PostForm.Get("service"),
		StartsAtInput: r.PostForm.Get("starts_at"),
		Notes:         r.PostForm.Get("notes"),
	}
	page := bookingPage{IdempotencyKey: r.PostForm.Get("idempotency_key"), Form: form}
	if page.IdempotencyKey == "" {
		page.IdempotencyKey = uuid.NewString()
	}

	startsAt, err := time.ParseInLocation(bookingFormTimeLayout, form.StartsAtInput, h.service.loc)
	if err != nil {
		page.Errors = map[string]string{"starts_at": "choose a date and time"}
		h.renderForm(w, r, http.StatusBadRequest, page)
		return
	}
	result, err := h.book(r, page.IdempotencyKey, BookingRequest{
		Name:         form.Name,
		Email:        form.Email,
		Phone:        form.Phone,
		Registration: form.Registration,
		Make:         form.Make,
		Model:        form.Model,
		Service:      form.Service,
		StartsAt:     startsAt,
		Notes:        form.Notes,
	})
	if err != nil {
		var domainErr *shared.Error
		if errors.As(err, &domainErr) && len(domainErr.Fields) > 0 {
			page.Errors = domainErr.Fields
		} else {
			h.logger.ErrorContext(r.Context(), "booking form failed", slog.Any("error", err))
			page.Errors = map[string]string{"general": "We could not take your booking. Please try again."}
		}
		h.renderForm(w, r, http.StatusBadRequest, page)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	if err := h.views.Render(w, "pages/booking_done", view.TemplateData{
		Title: "Booking received",
		Data:  bookingDone{AppointmentID: result.AppointmentID, StartsAt: result.StartsAt.In(h.service.loc)},
	}); err != nil {
		h.logger.ErrorContext(r.Context(), "render booking confirmation page", slog.Any("error", err))
	}
}

func (h *BookingHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, page bookingPage) {
	page.Services = h.services
	if page.Errors == nil {
		page.Errors = map[string]string{}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.views.Render(w, "pages/booking", view.TemplateData{
		Title:       "Book a service",
		CurrentPath: r.URL.Path,
		Data:        page,
	}); err != nil {
		h.logger.ErrorContext(r.Context(), "render booking page", slog.Any("error", err))
	}
}

func (h *BookingHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WarnContext(r.Context(), "booking request failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	httpx.RespondError(w, err)
}
