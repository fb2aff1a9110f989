package billing

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/garagedesk/garagedesk/internal/platform/httpx"
)

// Handler exposes invoices and estimates over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.listInvoices)
		r.Post("/", h.createInvoice)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.showInvoice)
			r.Put("/", h.updateInvoice)
			r.Delete("/", h.deleteInvoice)
			r.Post("/send", h.sendInvoice)
			r.Post("/status", h.updateInvoiceStatus)
			r.Get("/pdf", h.invoicePDF)
		})
	})
	r.Route("/estimates", func(r chi.Router) {
		r.Get("/", h.listEstimates)
		r.Post("/", h.createEstimate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.showEstimate)
			r.Put("/", h.updateEstimate)
			r.Delete("/", h.deleteEstimate)
			r.Post("/send", h.sendEstimate)
			r.Post("/status", h.updateEstimateStatus)
			r.Post("/convert", h.convertEstimate)
			r.Get("/pdf", h.estimatePDF)
		})
	})
}

// ============================================================================
// INVOICE HANDLERS
// ============================================================================

// listInvoices serves GET /invoices. ?status=overdue selects unpaid invoices past their
// due date; any other status selects invoices stored with it that are not overdue.
func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.service.ListInvoices(r.Context(), InvoiceFilter{
		Status:     InvoiceStatus(q.Get("status")),
		CustomerID: q.Get("customer_id"),
		VehicleID:  q.Get("vehicle_id"),
		Page:       queryInt(r, "page"),
		PerPage:    queryInt(r, "per_page"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/invoices/"+inv.ID)
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) showInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	var req UpdateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.UpdateInvoice(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteInvoice(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sendInvoice(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	inv, err := h.service.SendInvoice(r.Context(), chi.URLParam(r, "id"), req.Channel)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) updateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.UpdateInvoiceStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) invoicePDF(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pdf, err := h.service.RenderInvoicePDF(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writePDF(w, "invoice-"+id+".pdf", pdf)
}

// ============================================================================
// ESTIMATE HANDLERS
// ============================================================================

func (h *Handler) listEstimates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.service.ListEstimates(r.Context(), EstimateFilter{
		Status:     EstimateStatus(q.Get("status")),
		CustomerID: q.Get("customer_id"),
		VehicleID:  q.Get("vehicle_id"),
		Page:       queryInt(r, "page"),
		PerPage:    queryInt(r, "per_page"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) createEstimate(w http.ResponseWriter, r *http.Request) {
	var req CreateEstimateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	est, err := h.service.CreateEstimate(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/estimates/"+est.ID)
	httpx.JSON(w, http.StatusCreated, est)
}

func (h *Handler) showEstimate(w http.ResponseWriter, r *http.Request) {
	est, err := h.service.GetEstimate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, est)
}

func (h *Handler) updateEstimate(w http.ResponseWriter, r *http.Request) {
	var req UpdateEstimateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	est, err := h.service.UpdateEstimate(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, est)
}

func (h *Handler) deleteEstimate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteEstimate(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sendEstimate(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	est, err := h.service.SendEstimate(r.Context(), chi.URLParam(r, "id"), req.Channel)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, est)
}

func (h *Handler) updateEstimateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	est, err := h.service.UpdateEstimateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, est)
}

func (h *Handler) convertEstimate(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.ConvertEstimate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/invoices/"+inv.ID)
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) estimatePDF(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pdf, err := h.service.RenderEstimatePDF(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writePDF(w, "estimate-"+id+".pdf", pdf)
}

// ============================================================================
// HELPERS
// ============================================================================

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WarnContext(r.Context(), "billing request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	httpx.RespondError(w, err)
}

func writePDF(w http.ResponseWriter, filename string, pdf []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}
