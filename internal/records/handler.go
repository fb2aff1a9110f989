package records

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/garagedesk/garagedesk/internal/platform/httpx"
	"github.com/garagedesk/garagedesk/internal/shared"
)

// Handler exposes customers, vehicles, products and appointments over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers record routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", h.listCustomers)
		r.Post("/", h.createCustomer)
		r.Get("/{id}", h.showCustomer)
		r.Put("/{id}", h.updateCustomer)
		r.Delete("/{id}", h.deleteCustomer)
	})
	r.Route("/vehicles", func(r chi.Router) {
		r.Get("/", h.listVehicles)
		r.Post("/", h.createVehicle)
		r.Get("/lookup/{registration}", h.lookupVehicle)
		r.Get("/{id}", h.showVehicle)
		r.Put("/{id}", h.updateVehicle)
		r.Delete("/{id}", h.deleteVehicle)
	})
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Get("/{id}", h.showProduct)
		r.Put("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
	})
	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", h.listAppointments)
		r.Post("/", h.createAppointment)
		r.Get("/{id}", h.showAppointment)
		r.Post("/{id}/status", h.updateAppointmentStatus)
		r.Delete("/{id}", h.deleteAppointment)
	})
	r.Post("/notifications/broadcast", h.broadcast)
}

// ============================================================================
// CUSTOMERS
// ============================================================================

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListCustomers(r.Context(), CustomerFilter{
		Search:  r.URL.Query().Get("q"),
		Page:    queryInt(r, "page"),
		PerPage: queryInt(r, "per_page"),
	})
	h.respond(w, r, http.StatusOK, result, err)
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.CreateCustomer(r.Context(), req)
	if err == nil {
		w.Header().Set("Location", "/api/customers/"+c.ID)
	}
	h.respond(w, r, http.StatusCreated, c, err)
}

func (h *Handler) showCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, c, err)
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	var req UpdateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.UpdateCustomer(r.Context(), chi.URLParam(r, "id"), req)
	h.respond(w, r, http.StatusOK, c, err)
}

func (h *Handler) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, r, h.service.DeleteCustomer(r.Context(), chi.URLParam(r, "id")))
}

// ============================================================================
// VEHICLES
// ============================================================================

func (h *Handler) listVehicles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.service.ListVehicles(r.Context(), VehicleFilter{
		CustomerID: q.Get("customer_id"),
		Search:     q.Get("q"),
		Page:       queryInt(r, "page"),
		PerPage:    queryInt(r, "per_page"),
	})
	h.respond(w, r, http.StatusOK, result, err)
}

func (h *Handler) createVehicle(w http.ResponseWriter, r *http.Request) {
	var req CreateVehicleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.service.CreateVehicle(r.Context(), req)
	if err == nil {
		w.Header().Set("Location", "/api/vehicles/"+v.ID)
	}
	h.respond(w, r, http.StatusCreated, v, err)
}

func (h *Handler) lookupVehicle(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.LookupVehicle(r.Context(), chi.URLParam(r, "registration"))
	h.respond(w, r, http.StatusOK, info, err)
}

func (h *Handler) showVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.GetVehicle(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, v, err)
}

func (h *Handler) updateVehicle(w http.ResponseWriter, r *http.Request) {
	var req UpdateVehicleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.service.UpdateVehicle(r.Context(), chi.URLParam(r, "id"), req)
	h.respond(w, r, http.StatusOK, v, err)
}

func (h *Handler) deleteVehicle(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, r, h.service.DeleteVehicle(r.Context(), chi.URLParam(r, "id")))
}

// ============================================================================
// PRODUCTS
// ============================================================================

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	activeOnly, _ := strconv.ParseBool(q.Get("active"))
	result, err := h.service.ListProducts(r.Context(), ProductFilter{
		Search:     q.Get("q"),
		ActiveOnly: activeOnly,
		Page:       queryInt(r, "page"),
		PerPage:    queryInt(r, "per_page"),
	})
	h.respond(w, r, http.StatusOK, result, err)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.service.CreateProduct(r.Context(), req)
	if err == nil {
		w.Header().Set("Location", "/api/products/"+p.ID)
	}
	h.respond(w, r, http.StatusCreated, p, err)
}

func (h *Handler) showProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, p, err)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req UpdateProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	h.respond(w, r, http.StatusOK, p, err)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, r, h.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")))
}

// ============================================================================
// APPOINTMENTS
// ============================================================================

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := AppointmentFilter{
		CustomerID: q.Get("customer_id"),
		VehicleID:  q.Get("vehicle_id"),
		Status:     AppointmentStatus(q.Get("status")),
		Page:       queryInt(r, "page"),
		PerPage:    queryInt(r, "per_page"),
	}
	var err error
	if filter.From, err = queryTime(r, "from"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.To, err = queryTime(r, "to"); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.ListAppointments(r.Context(), filter)
	h.respond(w, r, http.StatusOK, result, err)
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.service.CreateAppointment(r.Context(), req)
	if err == nil {
		w.Header().Set("Location", "/api/appointments/"+a.ID)
	}
	h.respond(w, r, http.StatusCreated, a, err)
}

func (h *Handler) showAppointment(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetAppointment(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, a, err)
}

func (h *Handler) updateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateAppointmentStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.service.UpdateAppointmentStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	h.respond(w, r, http.StatusOK, a, err)
}

func (h *Handler) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, r, h.service.DeleteAppointment(r.Context(), chi.URLParam(r, "id")))
}

// ============================================================================
// NOTIFICATIONS
// ============================================================================

func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.Broadcast(r.Context(), req)
	h.respond(w, r, http.StatusOK, result, err)
}

// ============================================================================
// HELPERS
// ============================================================================

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, body any, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, status, body)
}

func (h *Handler) noContent(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WarnContext(r.Context(), "records request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	httpx.RespondError(w, err)
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}

// queryTime accepts RFC3339 timestamps or plain dates.
func queryTime(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, shared.ValidationFields("records.queryTime", map[string]string{key: "must be a date or RFC3339 timestamp"})
	}
	return t, nil
}
