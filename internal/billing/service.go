package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garagedesk/garagedesk/internal/notify"
	"github.com/garagedesk/garagedesk/internal/shared"
)

// Contact is the addressing data of a customer.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// CatalogProduct is the catalog data used to fill line items.
type CatalogProduct struct {
	ID          string
	Name        string
	Description string
	UnitPrice   decimal.Decimal
}

// RecordLookup resolves customers, vehicles and products referenced by documents.
type RecordLookup interface {
	GetContact(ctx context.Context, customerID string) (Contact, error)
	CheckVehicle(ctx context.Context, vehicleID, customerID string) error
	GetCatalogProduct(ctx context.Context, productID string) (CatalogProduct, error)
}

// PDFRenderer converts HTML into a PDF.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Config holds billing defaults.
type Config struct {
	DefaultTaxRate    decimal.Decimal
	InvoiceDueDays    int
	EstimateValidDays int
	Currency          string
}

// ServiceParams bundles Service dependencies. Only Repo is required.
type ServiceParams struct {
	Repo       Repository
	Records    RecordLookup
	Dispatcher notify.Dispatcher
	Templates  *notify.Templates
	Renderer   PDFRenderer
	Locker     shared.Locker
	Logger     *slog.Logger
	Config     Config
	Clock      func() time.Time
}

// Service provides invoice and estimate operations.
type Service struct {
	repo       Repository
	records    RecordLookup
	dispatcher notify.Dispatcher
	templates  *notify.Templates
	renderer   PDFRenderer
	documents  *documentRenderer
	locker     shared.Locker
	logger     *slog.Logger
	validate   *validator.Validate
	cfg        Config
	now        func() time.Time
}

// NewService constructs a billing service.
func NewService(p ServiceParams) *Service {
	if p.Locker == nil {
		p.Locker = shared.NewLocalLocker()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Templates == nil {
		p.Templates = notify.DefaultTemplates()
	}
	if p.Clock == nil {
		p.Clock = time.Now
	}
	if p.Config.InvoiceDueDays <= 0 {
		p.Config.InvoiceDueDays = 30
	}
	if p.Config.EstimateValidDays <= 0 {
		p.Config.EstimateValidDays = 30
	}
	if p.Config.Currency == "" {
		p.Config.Currency = "USD"
	}
	return &Service{
		repo:       p.Repo,
		records:    p.Records,
		dispatcher: p.Dispatcher,
		templates:  p.Templates,
		renderer:   p.Renderer,
		documents:  newDocumentRenderer(p.Config.Currency),
		locker:     p.Locker,
		logger:     p.Logger,
		validate:   shared.NewValidator(),
		cfg:        p.Config,
		now:        p.Clock,
	}
}

func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	defer unlock()
	return fn()
}

// withRecordLocks holds the record locks for keys while fn checks and writes a
// document, so a concurrent delete of a referenced record cannot interleave.
// Keys are taken in sorted order.
func (s *Service) withRecordLocks(ctx context.Context, keys []string, fn func() error) error {
	var unlocks []func()
	defer func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}()
	for _, key := range keys {
		unlock, err := s.locker.Lock(ctx, key)
		if err != nil {
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		unlocks = append(unlocks, unlock)
	}
	return fn()
}

// referencedRecords lists the sorted, unique record lock keys a document write touches.
func referencedRecords(customerID, vehicleID string, inputs []LineItemInput) []string {
	keys := make([]string, 0, len(inputs)+2)
	if customerID != "" {
		keys = append(keys, shared.RecordLockKey(shared.RecordCustomer, customerID))
	}
	if vehicleID != "" {
		keys = append(keys, shared.RecordLockKey(shared.RecordVehicle, vehicleID))
	}
	for _, in := range inputs {
		if in.ProductID != "" {
			keys = append(keys, shared.RecordLockKey(shared.RecordProduct, in.ProductID))
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// ============================================================================
// INVOICE OPERATIONS
// ============================================================================

// CreateInvoice creates a draft invoice with a fresh number.
func (s *Service) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	const op = "billing.CreateInvoice"
	if err := shared.ValidateStruct(s.validate, op, req); err != nil {
		return nil, err
	}
	taxRate, err := s.taxRate(op, req.TaxRate)
	if err != nil {
		return nil, err
	}
	var inv Invoice
	var now time.Time
	err = s.withRecordLocks(ctx, referencedRecords(req.CustomerID, req.VehicleID, req.Items), func() error {
		if err := s.checkParties(ctx, op, req.CustomerID, req.VehicleID); err != nil {
			return err
		}
		items, err := s.buildItems(ctx, op, req.Items)
		if err != nil {
			return err
		}

		now = s.now()
		inv = Invoice{
			Document: Document{
				ID:         uuid.NewString(),
				CustomerID: req.CustomerID,
				VehicleID:  req.VehicleID,
				Items:      items,
				TaxRate:    taxRate,
				Notes:      req.Notes,
				CreatedAt:  now,
				UpdatedAt:  now,
			},
			Status:  InvoiceStatusDraft,
			DueDate: now.AddDate(0, 0, s.cfg.InvoiceDueDays),
		}
		if req.DueDate != nil {
			inv.DueDate = *req.DueDate
		}
		inv.Recalculate()

		err = s.withLock(ctx, shared.NumberingLockKey(string(KindInvoice)), func() error {
			number, err := s.nextNumber(ctx, KindInvoice, now)
			if err != nil {
				return err
			}
			inv.Number = number
			return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				return tx.InsertInvoice(ctx, inv)
			})
		})
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "invoice created",
		slog.String("invoice_id", inv.ID),
		slog.String("number", inv.Number),
		slog.String("total", inv.Total.StringFixed(2)),
	)
	s.decorateInvoice(&inv, now)
	return &inv, nil
}

// GetInvoice returns one invoice with its derived state applied.
func (s *Service) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	s.decorateInvoice(inv, s.now())
	return inv, nil
}

// ListInvoices returns a page of invoices. The status filter matches the effective
// status, so an overdue invoice is listed under overdue and not under its stored status.
func (s *Service) ListInvoices(ctx context.Context, filter InvoiceFilter) (ListResult[Invoice], error) {
	const op = "billing.ListInvoices"
	if filter.Status != "" {
		if _, ok := ParseInvoiceStatus(string(filter.Status)); !ok {
			return ListResult[Invoice]{}, shared.ValidationFields(op, map[string]string{"status": "unknown invoice status"})
		}
	}
	all, err := s.repo.ListInvoices(ctx, filter)
	if err != nil {
		return ListResult[Invoice]{}, fmt.Errorf("list invoices: %w", err)
	}
	now := s.now()
	matched := make([]Invoice, 0, len(all))
	for i := range all {
		s.decorateInvoice(&all[i], now)
		if filter.Status != "" && all[i].EffectiveStatus(now) != filter.Status {
			continue
		}
		matched = append(matched, all[i])
	}
	return paginate(matched, filter.Page, filter.PerPage), nil
}

// UpdateInvoice edits a draft or sent invoice and recomputes its totals.
func (s *Service) UpdateInvoice(ctx context.Context, id string, req UpdateInvoiceRequest) (*Invoice, error) {
	const op = "billing.UpdateInvoice"
	if err := shared.ValidateStruct(s.validate, op, req); err != nil {
		return nil, err
	}
	var out *Invoice
	err := s.withLock(ctx, shared.DocumentLockKey(string(KindInvoice), id), func() error {
		inv, err := s.repo.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if !inv.Editable() {
			return &shared.Error{Kind: shared.KindInvalidTransition, Op: op, Message: fmt.Sprintf("%s invoice cannot be edited", inv.Status)}
		}
		vehicleID, inputs := "", []LineItemInput(nil)
		if req.VehicleID != nil {
			vehicleID = *req.VehicleID
		}
		if req.Items != nil {
			inputs = *req.Items
		}
		return s.withRecordLocks(ctx, referencedRecords(inv.CustomerID, vehicleID, inputs), func() error {
			if req.VehicleID != nil {
				if err := s.checkParties(ctx, op, inv.CustomerID, *req.VehicleID); err != nil {
					return err
				}
				inv.VehicleID = *req.VehicleID
			}
			if req.Items != nil {
				items, err := s.buildItems(ctx, op, *req.Items)
				if err != nil {
					return err
				}
				inv.Items = items
			}
			if req.TaxRate != nil {
				rate, err := s.taxRate(op, req.TaxRate)
				if err != nil {
					return err
				}
				inv.TaxRate = rate
			}
			if req.DueDate != nil {
				inv.DueDate = *req.DueDate
			}
			if req.Notes != nil {
				inv.Notes = *req.Notes
			}
			inv.Recalculate()
			inv.UpdatedAt = s.now()
			if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				return tx.UpdateInvoice(ctx, *inv)
			}); err != nil {
				return fmt.Errorf("update invoice: %w", err)
			}
			s.decorateInvoice(inv, inv.UpdatedAt)
			out = inv
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateInvoiceStatus applies a manual status change allowed by the transition table.
func (s *Service) UpdateInvoiceStatus(ctx context.Context, id, status string) (*Invoice, error) {
	const op = "billing.UpdateInvoiceStatus"
	next, ok := ParseInvoiceStatus(status)
	if !ok {
		return nil, shared.ValidationFields(op, map[string]string{"status": "unknown invoice status"})
	}
	var out *Invoice
	err := s.withLock(ctx, shared.DocumentLockKey(string(KindInvoice), id), func() error {
		inv, err := s.repo.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		if next == InvoiceStatusOverdue || !CanTransitionInvoice(inv.Status, next) {
			return shared.InvalidTransition(op, string(inv.EffectiveStatus(now)), string(next))
		}
		inv.Status = next
		switch next {
		case InvoiceStatusSent:
			inv.SentAt = &now
		case InvoiceStatusPaid:
			inv.PaidAt = &now
		}
		inv.UpdatedAt = now
		if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.UpdateInvoice(ctx, *inv)
		}); err != nil {
			return fmt.Errorf("update invoice status: %w", err)
		}
		s.logger.InfoContext(ctx, "invoice status changed",
			slog.String("invoice_id", inv.ID),
			slog.String("status", string(next)),
		)
		s.decorateInvoice(inv, now)
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SendInvoice dispatches the invoice to the customer and then marks it sent.
// A failed dispatch leaves the invoice untouched.
func (s *Service) SendInvoice(ctx context.Context, id, channel string) (*Invoice, error) {
	const op = "billing.SendInvoice"
	ch, err := parseChannel(op, channel)
	if err != nil {
		return nil, err
	}
	var out *Invoice
	err = s.withLock(ctx, shared.DocumentLockKey(string(KindInvoice), id), func() error {
		inv, err := s.repo.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		if !CanTransitionInvoice(inv.Status, InvoiceStatusSent) {
			return shared.InvalidTransition(op, string(inv.EffectiveStatus(now)), string(InvoiceStatusSent))
		}
		data := map[string]any{
			"Number":  inv.Number,
			"Total":   s.documents.money(inv.Total),
			"DueDate": formatDay(inv.DueDate),
		}
		if err := s.dispatch(ctx, op, inv.CustomerID, ch, notify.TemplateInvoiceSent, data); err != nil {
			return err
		}
		inv.Status = InvoiceStatusSent
		inv.SentAt = &now
		inv.UpdatedAt = now
		if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.UpdateInvoice(ctx, *inv)
		}); err != nil {
			return fmt.Errorf("mark invoice sent: %w", err)
		}
		s.logger.InfoContext(ctx, "invoice sent",
			slog.String("invoice_id", inv.ID),
			slog.String("number", inv.Number),
			slog.String("channel", string(ch)),
		)
		s.decorateInvoice(inv, now)
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteInvoice removes a draft invoice that no estimate points to.
func (s *Service) DeleteInvoice(ctx context.Context, id string) error {
	const op = "billing.DeleteInvoice"
	return s.withLock(ctx, shared.DocumentLockKey(string(KindInvoice), id), func() error {
		inv, err := s.repo.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceStatusDraft {
			return &shared.Error{Kind: shared.KindInvalidTransition, Op: op, Message: fmt.Sprintf("%s invoice cannot be deleted", inv.Status)}
		}
		if inv.SourceEstimateID != "" {
			est, err := s.repo.GetEstimate(ctx, inv.SourceEstimateID)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return err
			}
			if est != nil && est.InvoiceID == inv.ID {
				return shared.Referential(op, "invoice", map[string]int{"estimates": 1})
			}
		}
		if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.DeleteInvoice(ctx, id)
		}); err != nil {
			return fmt.Errorf("delete invoice: %w", err)
		}
		s.logger.InfoContext(ctx, "invoice deleted", slog.String("invoice_id", id))
		return nil
	})
}

// RenderInvoicePDF renders the invoice document through the PDF collaborator.
func (s *Service) RenderInvoicePDF(ctx context.Context, id string) ([]byte, error) {
	const op = "billing.RenderInvoicePDF"
	inv, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	view := invoiceView(*inv, s.contactFor(ctx, inv.CustomerID))
	return s.renderPDF(ctx, op, view)
}

// ============================================================================
// ESTIMATE OPERATIONS
// ============================================================================

// CreateEstimate creates a draft estimate with a fresh number.
func (s *Service) CreateEstimate(ctx context.Context, req CreateEstimateRequest) (*Estimate, error) {
	const op = "billing.CreateEstimate"
	if err := shared.ValidateStruct(s.validate, op, req); err != nil {
		return nil, err
	}
	taxRate, err := s.taxRate(op, req.TaxRate)
	if err != nil {
		return nil, err
	}
	var est Estimate
	var now time.Time
	err = s.withRecordLocks(ctx, referencedRecords(req.CustomerID, req.VehicleID, req.Items), func() error {
		if err := s.checkParties(ctx, op, req.CustomerID, req.VehicleID); err != nil {
			return err
		}
		items, err := s.buildItems(ctx, op, req.Items)
		if err != nil {
			return err
		}

		now = s.now()
		est = Estimate{
			Document: Document{
				ID:         uuid.NewString(),
				CustomerID: req.CustomerID,
				VehicleID:  req.VehicleID,
				Items:      items,
				TaxRate:    taxRate,
				Notes:      req.Notes,
				CreatedAt:  now,
				UpdatedAt:  now,
			},
			Status:     EstimateStatusDraft,
			ValidUntil: now.AddDate(0, 0, s.cfg.EstimateValidDays),
		}
		if req.ValidUntil != nil {
			est.ValidUntil = *req.ValidUntil
		}
		est.Recalculate()

		err = s.withLock(ctx, shared.NumberingLockKey(string(KindEstimate)), func() error {
			number, err := s.nextNumber(ctx, KindEstimate, now)
			if err != nil {
				return err
			}
			est.Number = number
			return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				return tx.InsertEstimate(ctx, est)
			})
		})
		if err != nil {
			return fmt.Errorf("create estimate: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "estimate created",
		slog.String("estimate_id", est.ID),
		slog.String("number", est.Number),
		slog.String("total", est.Total.StringFixed(2)),
	)
	s.decorateEstimate(&est, now)
	return &est, nil
}

// GetEstimate returns one estimate with its derived state applied.
func (s *Service) GetEstimate(ctx context.Context, id string) (*Estimate, error) {
	est, err := s.repo.GetEstimate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.decorateEstimate(est, s.now())
	return est, nil
}

// ListEstimates returns a page of estimates. The status filter matches the effective
// status, so a lapsed estimate is listed under expired only.
func (s *Service) ListEstimates(ctx context.Context, filter EstimateFilter) (ListResult[Estimate], error) {
	const op = "billing.ListEstimates"
	if filter.Status != "" {
		if _, ok := ParseEstimateStatus(string(filter.Status)); !ok {
			return ListResult[Estimate]{}, shared.ValidationFields(op, map[string]string{"status": "unknown estimate status"})
		}
	}
	all, err := s.repo.ListEstimates(ctx, filter)
	if err != nil {
		return ListResult[Estimate]{}, fmt.Errorf("list estimates: %w", err)
	}
	now := s.now()
	matched := make([]Estimate, 0, len(all))
	for i := range all {
		s.decorateEstimate(&all[i], now)
		if filter.Status != "" && all[i].EffectiveStatus(now) != filter.Status {
			continue
		}
		matched = append(matched, all[i])
	}
	return paginate(matched, filter.Page, filter.PerPage), nil
}

// UpdateEstimate edits an unconverted draft or sent estimate and recomputes its totals.
func (s *Service) UpdateEstimate(ctx context.Context, id string, req UpdateEstimateRequest) (*Estimate, error) {
	const op = "billing.UpdateEstimate"
	if err := shared.ValidateStruct(s.validate, op, req); err != nil {
		return nil, err
	}
	var out *Estimate
	err := s.withLock(ctx, shared.DocumentLockKey(string(KindEstimate), id), func() error {
		est, err := s.repo.GetEstimate(ctx, id)
		if err != nil {
			return err
		}
		if est.Frozen() {
			return &shared.Error{Kind: shared.KindInvalidTransition, Op: op, Message: "converted estimate cannot be edited"}
		}
		if !est.Editable() {
			return &shared.Error{Kind: shared.KindInvalidTransition, Op: op, Message: fmt.Sprintf("%s estimate cannot be edited", est.Status)}
		}
		vehicleID, inputs := "", []LineItemInput(nil)
		if req.VehicleID != nil {
			vehicleID = *req.VehicleID
		}
		if req.Items != nil {
			inputs = *req.Items
		}
		return s.withRecordLocks(ctx, referencedRecords(est.CustomerID, vehicleID, inputs), func() error {
			if req.VehicleID != nil {
				if err := s.checkParties(ctx, op, est.CustomerID, *req.VehicleID); err != nil {
					return err
				}
				est.VehicleID = *req.VehicleID
			}
			if req.Items != nil {
				items, err := s.buildItems(ctx, op, *req.Items)
				if err != nil {
					return err
				}
				est.Items = items
			}
			if req.TaxRate != nil {
				rate, err := s.taxRate(op, req.TaxRate)
				if err != nil {
					return err
				}
				est.TaxRate = rate
			}
			if req.ValidUntil != nil {
				est.ValidUntil = *req.ValidUntil
			}
			if req.Notes != nil {
				est.Notes = *req.Notes
			}
			est.Recalculate()
			est.UpdatedAt = s.now()
			if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				return tx.UpdateEstimate(ctx, *est)
			}); err != nil {
				return fmt.Errorf("update estimate: %w", err)
			}
			s.decorateEstimate(est, est.UpdatedAt)
			out = est
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEstimateStatus applies a manual status change allowed by the transition table.
func (s *Service) UpdateEstimateStatus(ctx context.Context, id, status string) (*Estimate, error) {
	const op = "billing.UpdateEstimateStatus"
	next, ok := ParseEstimateStatus(status)
	if !ok {
		return nil, shared.ValidationFields(op, map[string]string{"status": "unknown estimate status"})
	}
	var out *Estimate
	err := s.withLock(ctx, shared.DocumentLockKey(string(KindEstimate), id), func() error {
		est, err := s.repo.GetEstimate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		current := est.EffectiveStatus(now)
		lapsed := current == EstimateStatusExpired && next != EstimateStatusDeclined
		if next == EstimateStatusExpired || lapsed || est.Frozen() || !CanTransitionEstimate(est.Status, next) {
			return shared.InvalidTransition(op, string(current), string(next))
		}
		est.Status = next
		if next == EstimateStatusSent {
			est.SentAt = &now
		}
		est.UpdatedAt = now
		if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.UpdateEstimate(ctx, *est)
		}); err != nil {
			return fmt.Errorf("update estimate status: %w", err)
		}
		s.logger.InfoContext(ctx, "estimate status changed",
			slog.String("estimate_id", est.ID),
			slog.String("status", string(next)),
		)
		s.decorateEstimate(est, now)
		out = est
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SendEstimate dispatches the estimate to the customer and then marks it sent.
func (s *Service) SendEstimate(ctx context.Context, id, channel string) (*Estimate, error) {
	const op = "billing.SendEstimate"
	ch, err := parseChannel(op, channel)
	if err != nil {
		return nil, err
	}
	var out *Estimate
	err = s.withLock(ctx, shared.DocumentLockKey(string(KindEstimate), id), func() error {
		est, err := s.repo.GetEstimate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		current := est.EffectiveStatus(now)
		if current == EstimateStatusExpired || est.Frozen() || !CanTransitionEstimate(est.Status, EstimateStatusSent) {
			return shared.InvalidTransition(op, string(current), string(EstimateStatusSent))
		}
		data := map[string]any{
			"Number":     est.Number,
			"Total":      s.documents.money(est.Total),
			"ValidUntil": formatDay(est.ValidUntil),
		}
		if err := s.dispatch(ctx, op, est.CustomerID, ch, notify.TemplateEstimateSent, data); err != nil {
			return err
		}
		est.Status = EstimateStatusSent
		est.SentAt = &now
		est.UpdatedAt = now
		if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.UpdateEstimate(ctx, *est)
		}); err != nil {
			return fmt.Errorf("mark estimate sent: %w", err)
		}
		s.logger.InfoContext(ctx, "estimate sent",
			slog.String("estimate_id", est.ID),
			slog.String("number", est.Number),
			slog.String("channel", string(ch)),
		)
		s.decorateEstimate(est, now)
		out = est
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEstimate removes a draft estimate.
func (s *Service) DeleteEstimate(ctx context.Context, id string) error {
	const op = "billing.DeleteEstimate"
	return s.withLock(ctx, shared.DocumentLockKey(string(KindEstimate), id), func() error {
		est, err := s.repo.GetEstimate(ctx, id)
		if err != nil {
			return err
		}
		if est.Frozen() || est.Status != EstimateStatusDraft {
			return &shared.Error{Kind: shared.KindInvalidTransition, Op: op, Message: fmt.Sprintf("%s estimate cannot be deleted", est.Status)}
		}
		if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.DeleteEstimate(ctx, id)
		}); err != nil {
			return fmt.Errorf("delete estimate: %w", err)
		}
		s.logger.InfoContext(ctx, "estimate deleted", slog.String("estimate_id", id))
		return nil
	})
}

// ConvertEstimate creates a draft invoice from a sent or approved estimate and links
// the two. The invoice insert and the estimate update commit together.
func (s *Service) ConvertEstimate(ctx context.Context, id string) (*Invoice, error) {
	const op = "billing.ConvertEstimate"
	var out *Invoice
	err := s.withLock(ctx, shared.DocumentLockKey(string(KindEstimate), id), func() error {
		est, err := s.repo.GetEstimate(ctx, id)
		if err != nil {
			return err
		}
		if est.Frozen() {
			return &shared.Error{
				Kind:    shared.KindAlreadyConverted,
				Op:      op,
				Message: fmt.Sprintf("estimate %s already converted to invoice %s", est.Number, est.InvoiceID),
			}
		}
		now := s.now()
		if !est.Convertible(now) {
			return shared.InvalidTransition(op, string(est.EffectiveStatus(now)), "converted")
		}

		inv := ConvertToInvoice(*est, now, s.cfg.InvoiceDueDays)
		return s.withLock(ctx, shared.NumberingLockKey(string(KindInvoice)), func() error {
			number, err := s.nextNumber(ctx, KindInvoice, now)
			if err != nil {
				return err
			}
			inv.Number = number

			est.ConvertedToInvoice = true
			est.InvoiceID = inv.ID
			est.Status = EstimateStatusApproved
			est.UpdatedAt = now
			if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				if err := tx.InsertInvoice(ctx, inv); err != nil {
					return err
				}
				return tx.UpdateEstimate(ctx, *est)
			}); err != nil {
				return fmt.Errorf("convert estimate: %w", err)
			}
			s.logger.InfoContext(ctx, "estimate converted",
				slog.String("estimate_id", est.ID),
				slog.String("estimate_number", est.Number),
				slog.String("invoice_id", inv.ID),
				slog.String("invoice_number", inv.Number),
			)
			s.decorateInvoice(&inv, now)
			out = &inv
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RenderEstimatePDF renders the estimate document through the PDF collaborator.
func (s *Service) RenderEstimatePDF(ctx context.Context, id string) ([]byte, error) {
	const op = "billing.RenderEstimatePDF"
	est, err := s.GetEstimate(ctx, id)
	if err != nil {
		return nil, err
	}
	view := estimateView(*est, s.contactFor(ctx, est.CustomerID))
	return s.renderPDF(ctx, op, view)
}

// ============================================================================
// REFERENCES
// ============================================================================

// CustomerReferences counts documents billed to a customer.
func (s *Service) CustomerReferences(ctx context.Context, customerID string) (DocumentRefs, error) {
	return s.repo.CountCustomerReferences(ctx, customerID)
}

// VehicleReferences counts documents raised for a vehicle.
func (s *Service) VehicleReferences(ctx context.Context, vehicleID string) (DocumentRefs, error) {
	return s.repo.CountVehicleReferences(ctx, vehicleID)
}

// ProductReferences counts documents with a line item for the product.
func (s *Service) ProductReferences(ctx context.Context, productID string) (DocumentRefs, error) {
	return s.repo.CountProductReferences(ctx, productID)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Service) nextNumber(ctx context.Context, kind Kind, now time.Time) (string, error) {
	var (
		count int
		err   error
	)
	exists := s.repo.InvoiceNumberExists
	if kind == KindEstimate {
		count, err = s.repo.CountEstimates(ctx)
		exists = s.repo.EstimateNumberExists
	} else {
		count, err = s.repo.CountInvoices(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("count %ss: %w", kind, err)
	}
	for seq := count + 1; ; seq++ {
		number := documentNumber(prefixFor(kind), seq, now)
		taken, err := exists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("check %s number: %w", kind, err)
		}
		if !taken {
			return number, nil
		}
	}
}

func (s *Service) taxRate(op string, rate *decimal.Decimal) (decimal.Decimal, error) {
	if rate == nil {
		return s.cfg.DefaultTaxRate, nil
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return decimal.Zero, shared.ValidationFields(op, map[string]string{"tax_rate": "must be between 0 and 100"})
	}
	return *rate, nil
}

func (s *Service) checkParties(ctx context.Context, op, customerID, vehicleID string) error {
	if s.records == nil {
		return nil
	}
	if _, err := s.records.GetContact(ctx, customerID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ValidationFields(op, map[string]string{"customer_id": "unknown customer"})
		}
		return err
	}
	if vehicleID == "" {
		return nil
	}
	if err := s.records.CheckVehicle(ctx, vehicleID, customerID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ValidationFields(op, map[string]string{"vehicle_id": "unknown vehicle"})
		}
		return err
	}
	return nil
}

// buildItems converts inputs into line items with fresh IDs, filling gaps from the catalog.
func (s *Service) buildItems(ctx context.Context, op string, inputs []LineItemInput) ([]LineItem, error) {
	fields := make(map[string]string)
	items := make([]LineItem, 0, len(inputs))
	for i, in := range inputs {
		field := fmt.Sprintf("items[%d]", i)
		item := LineItem{
			ID:          uuid.NewString(),
			ProductID:   in.ProductID,
			Name:        in.Name,
			Description: in.Description,
			Quantity:    in.Quantity,
		}
		if in.Quantity <= 0 {
			fields[field+".quantity"] = "must be greater than 0"
		}
		if in.UnitPrice != nil {
			if in.UnitPrice.IsNegative() {
				fields[field+".unit_price"] = "must not be negative"
			}
			item.UnitPrice = *in.UnitPrice
		}
		if in.ProductID != "" && s.records != nil {
			product, err := s.records.GetCatalogProduct(ctx, in.ProductID)
			switch {
			case errors.Is(err, shared.ErrNotFound):
				fields[field+".product_id"] = "unknown product"
			case err != nil:
				return nil, err
			default:
				if item.Name == "" {
					item.Name = product.Name
				}
				if item.Description == "" {
					item.Description = product.Description
				}
				if in.UnitPrice == nil {
					item.UnitPrice = product.UnitPrice
				}
			}
		} else if in.UnitPrice == nil {
			fields[field+".unit_price"] = "is required"
		}
		items = append(items, item)
	}
	if len(fields) > 0 {
		return nil, shared.ValidationFields(op, fields)
	}
	return items, nil
}

func parseChannel(op, channel string) (notify.Channel, error) {
	if channel == "" {
		return notify.ChannelEmail, nil
	}
	ch := notify.Channel(channel)
	if !ch.Valid() {
		return "", shared.ValidationFields(op, map[string]string{"channel": "must be one of: email sms"})
	}
	return ch, nil
}

// dispatch renders and sends a customer notification. It changes no state.
func (s *Service) dispatch(ctx context.Context, op, customerID string, ch notify.Channel, template string, data map[string]any) error {
	if s.dispatcher == nil {
		s.logger.WarnContext(ctx, "no dispatcher configured, skipping notification", slog.String("op", op))
		return nil
	}
	if s.records == nil {
		return shared.Validation(op, "customer contact lookup not configured")
	}
	contact, err := s.records.GetContact(ctx, customerID)
	if err != nil {
		return err
	}
	recipient := notify.Recipient{Name: contact.Name, Email: contact.Email, Phone: contact.Phone}
	if ch == notify.ChannelEmail && contact.Email == "" {
		return shared.Validation(op, "customer has no email address")
	}
	if ch == notify.ChannelSMS && contact.Phone == "" {
		return shared.Validation(op, "customer has no phone number")
	}
	data["CustomerName"] = contact.Name
	subject, body, err := s.templates.Render(template, data)
	if err != nil {
		return fmt.Errorf("render %s: %w", template, err)
	}
	msg := notify.Message{Channel: ch, Recipients: []notify.Recipient{recipient}, Subject: subject, Body: body}
	if err := s.dispatcher.Send(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "notification dispatch failed", slog.String("op", op), slog.Any("error", err))
		return shared.External(op, "dispatcher", err)
	}
	return nil
}

func (s *Service) contactFor(ctx context.Context, customerID string) Contact {
	if s.records == nil {
		return Contact{}
	}
	contact, err := s.records.GetContact(ctx, customerID)
	if err != nil {
		s.logger.WarnContext(ctx, "customer contact unavailable", slog.String("customer_id", customerID), slog.Any("error", err))
		return Contact{}
	}
	return contact
}

func (s *Service) renderPDF(ctx context.Context, op string, view documentView) ([]byte, error) {
	if s.renderer == nil {
		return nil, shared.External(op, "pdf renderer", errors.New("not configured"))
	}
	html, err := s.documents.Render(view)
	if err != nil {
		return nil, fmt.Errorf("render document html: %w", err)
	}
	pdf, err := s.renderer.RenderHTML(ctx, html)
	if err != nil {
		return nil, shared.External(op, "pdf renderer", err)
	}
	return pdf, nil
}

func (s *Service) decorateInvoice(inv *Invoice, now time.Time) {
	inv.Overdue = inv.IsOverdue(now)
}

func (s *Service) decorateEstimate(est *Estimate, now time.Time) {
	est.Expired = est.IsExpired(now)
}

func paginate[T any](items []T, page, perPage int) ListResult[T] {
	p := shared.NewPagination(page, perPage, len(items))
	start := (p.Page - 1) * p.PerPage
	if start > len(items) {
		start = len(items)
	}
	end := start + p.PerPage
	if end > len(items) {
		end = len(items)
	}
	return ListResult[T]{
		Items:      items[start:end],
		Page:       p.Page,
		PerPage:    p.PerPage,
		Total:      p.Total,
		TotalPages: p.TotalPages,
	}
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02 Jan 2006")
}
