package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/garagedesk/garagedesk/internal/billing"
	"github.com/garagedesk/garagedesk/internal/integrations/calendar"
	"github.com/garagedesk/garagedesk/internal/integrations/vehiclelookup"
	"github.com/garagedesk/garagedesk/internal/notify"
	"github.com/garagedesk/garagedesk/internal/shared"
)

// DocumentReferences counts billing documents pointing at a record.
// billing.Repository implementations satisfy it.
type DocumentReferences interface {
	CountCustomerReferences(ctx context.Context, customerID string) (billing.DocumentRefs, error)
	CountVehicleReferences(ctx context.Context, vehicleID string) (billing.DocumentRefs, error)
	CountProductReferences(ctx context.Context, productID string) (billing.DocumentRefs, error)
}

// CalendarSync mirrors appointments into an external calendar.
type CalendarSync interface {
	CreateEvent(ctx context.Context, ev calendar.Event) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// ServiceParams bundles Service dependencies. Only Repo is required.
type ServiceParams struct {
	Repo       Repository
	Documents  DocumentReferences
	Calendar   CalendarSync
	Lookup     vehiclelookup.Lookuper
	Dispatcher notify.Dispatcher
	Templates  *notify.Templates
	// Locker must be shared with the billing service so deletes and document
	// writes serialize on the same record keys. Defaults to a local locker.
	Locker shared.Locker
	Logger *slog.Logger
	Clock  func() time.Time
	// Location is the workshop time zone used for reminder days.
	Location *time.Location
}

// Service provides customer, vehicle, catalog and appointment operations.
type Service struct {
	repo       Repository
	documents  DocumentReferences
	calendar   CalendarSync
	lookup     vehiclelookup.Lookuper
	dispatcher notify.Dispatcher
	templates  *notify.Templates
	locker     shared.Locker
	logger     *slog.Logger
	validate   *validator.Validate
	now        func() time.Time
	loc        *time.Location
}

// NewService constructs a records service.
func NewService(p ServiceParams) *Service {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Templates == nil {
		p.Templates = notify.DefaultTemplates()
	}
	if p.Clock == nil {
		p.Clock = time.Now
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.Locker == nil {
		p.Locker = shared.NewLocalLocker()
	}
	return &Service{
		repo:       p.Repo,
		documents:  p.Documents,
		calendar:   p.Calendar,
		lookup:     p.Lookup,
		dispatcher: p.Dispatcher,
		templates:  p.Templates,
		locker:     p.Locker,
		logger:     p.Logger,
		validate:   shared.NewValidator(),
		now:        p.Clock,
		loc:        p.Location,
	}
}

func (s *Service) withRecordLock(ctx context.Context, kind, id string, fn func() error) error {
	key := shared.RecordLockKey(kind, id)
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	defer unlock()
	return fn()
}

// ============================================================================
// CUSTOMER OPERATIONS
// ============================================================================

// CreateCustomer stores a new customer.
func (s *Service) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	const op = "records.CreateCustomer"
	if err := shared.ValidateStruct(s.validate, op, req); err != nil {
		return nil, err
	}
	now := s.now()
	c := Customer{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Address:   req.Address,
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertCustomer(ctx, c)
	}); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	s.logger.InfoContext(ctx, "customer created", slog.String("customer_id", c.ID))
	return &c, nil
}

// GetCustomer returns one customer.
func (s *Service) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// ListCustomers returns a page of customers.
func (s *Service) ListCustomers(ctx context.Context, filter CustomerFilter) (ListResult[Customer], error) {
	all, err := s.repo.ListCustomers(ctx, filter)
	if err != nil {
		return ListResult[Customer]{}, fmt.Errorf("list customers: %w", err)
	}
	return paginate(all, filter.Page, filter.PerPage), nil
}

// UpdateCustomer changes the provided fields.
func (s *Service) UpdateCustomer(ctx context.Context, id string, req UpdateCustomerRequest) (*Customer, error) {
	const op = "records.UpdateCustomer"
	if err := shared.ValidateStruct(s.validate, op, req); err != nil {
		return nil, err
	}
	c, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		c.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		c.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		c.Address = *req.Address
	}
	if req.Notes != nil {
		c.Notes = *req.Notes
	}
	c.UpdatedAt = s.now()
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateCustomer(ctx, *c)
	}); err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	return c, nil
}

// DeleteCustomer removes a customer nothing refers to. Otherwise it returns a
// referential error naming each blocking collection.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	const op = "records.DeleteCustomer"
	err := s.withRecordLock(ctx, shared.RecordCustomer, id, func() error {
		if _, err := s.repo.GetCustomer(ctx, id); err != nil {
			return err
		}
		var docs billing.DocumentRefs
		if s.documents != nil {
			var err error
			if docs, err = s.documents.CountCustomerReferences(ctx, id); err != nil {
				return fmt.Errorf("count customer documents: %w", err)
			}
		}
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			vehicles, appointments, err := tx.CountCustomerDependents(ctx, id)
			if err != nil {
				return err
			}
			blockers := nonZero(map[string]int{
				"vehicles":     vehicles,
				"appointments": appointments,
				"invoices":     docs.Invoices,
				"estimates":    docs.Estimates,
			})
			if len(blockers) > 0 {
				return shared.Referential(op, "customer", blockers)
			}
			return tx.DeleteCustomer(ctx, id)
		})
		if err != nil {
			return fmt.Errorf("delete customer: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "customer deleted", slog.String("customer_id", id))
	return nil
}

// ============================================================================
// VEHICLE OPERATIONS
// ============================================================================

// CreateVehicle registers a vehicle for an existing customer.
func (s *Service) CreateVehicle(ctx context.Context, req CreateVehicleRequest) (*Vehicle, error) {
	const op = "records.CreateVehicle"
	if err := shared.ValidateStruct(s.validate, op, req); err != nil {
		return nil, err
	}
	reg := vehiclelookup.NormalizeRegistration(req.Registration)
	if reg == "" {
		return nil, shared.ValidationFields(op, map[string]string{"registration": "must contain letters or digits"})
	}
	if err := s.requireCustomer(ctx, op, req.CustomerID); err != nil {
		return nil, err
	}
	now := s.now()
	v := Vehicle{
		ID:           uuid.NewString(),
		CustomerID:   req.CustomerID,
		Registration: reg,
		Make:         req.Make,
		Model:        req.Model,
		Year:         req.Year,
		Color:        req.Color,
		VIN:          req.VIN,
		Mileage:      req.Mileage,
		MOTExpiry:    dateOnly(req.MOTExpiry),
		Notes:        req.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Prefill {
		info, err := s.LookupVehicle(ctx, reg)
		if err != nil {
			return nil, err
		}
		prefill(&v, info)
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertVehicle(ctx, v)
	}); err != nil {
		return nil, fmt.Errorf("create vehicle: %w", err)
	}
	s.logger.InfoContext(ctx, "vehicle created",
		slog.String("vehicle_id", v.ID),
		slog.String("registration", v.Registration),
	)
	return &v, nil
}

func prefill(v *Vehicle, info vehiclelookup.VehicleInfo) {
	if v.Make == "" {
		v.Make = info.Make
	}
	if v.Model == "" {
		v.Model = info.Model
	}
	if v.Year == 0 {
		v.Year = info.Year
	}
	if v.Color == "" {
		v.Color = info.Color
	}
	if v.VIN == "" {
		v.VIN = info.VIN
	}
	if v.MOTExpiry == nil {
		if expiry, ok := info.MOTExpiry(); ok {
			v.MOTExpiry = dateOnly(&expiry)
		}
	}
	if v.Mileage == 0 {
		var latest vehiclelookup.MOTTest
		for _, test := range info.MOTHistory {
			if test.CompletedAt.After(latest.CompletedAt) {
				latest = test
			}
		}
		v.Mileage = latest.OdometerMiles
	}
}

// LookupVehicle asks the lookup provider about a registration.
func (s *Service) LookupVehicle(ctx context.Context, registration string) (vehiclelookup.VehicleInfo, error) {
	const op = "records.LookupVehicle"
	if s.lookup == nil {
		return vehiclelookup.VehicleInfo{}, shared.External(op, "vehicle lookup", errors.New("not configured"))
	}
	info, err := s.lookup.Lookup(ctx, registration)
	switch {
	case errors.Is(err, vehiclelookup.ErrNotFound):
		return vehiclelookup.VehicleInfo{}, shared.NotFound(op, "registration", vehiclelookup.NormalizeRegistration(registration))
	case errors.Is(err, vehiclelookup.ErrInvalidRegistration):
		return vehiclelookup.VehicleInfo{}, shared.ValidationFields(op, map[string]string{"registration": "must contain letters or digits"})
	case err != nil:
		return vehiclelookup.VehicleInfo{}, shared.External(op, "vehicle lookup", err)
	}
	return info, nil
}

// GetVehicle returns one vehicle.
func (s *Service) GetVehicle(ctx context.Context, id string) (*Vehicle, error) {
	return s.repo.GetVehicle(ctx, id)
}

// ListVehicles returns a page of vehicles.
func (s *Service) ListVehicles(ctx context.Context, filter VehicleFilter) (ListResult[Vehicle], error) {
	all, err := s.repo.ListVehicles(ctx, filter)
	if err != nil {
		return ListResult[Vehicle]{}, fmt.Errorf("list vehicles: %w", err)
	}
	return paginate(all, filter.Page, filter.PerPage), nil
}

// UpdateVehicle changes the provided fields.
func (s *Service) UpdateVehicle(ctx context.Context, id string, req UpdateVehicleRequest) (*Vehicle, error) {
	const op = "records.UpdateVehicle"
	if err := shared.ValidateStruct(s.validate, op, req); err != nil {
		return nil, err
	}
	v, err := s.repo.GetVehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Registration != nil {
		reg := vehiclelookup.NormalizeRegistration(*req.Registration)
		if reg == "" {
			return nil, shared.ValidationFields(op, map[string]string{"registration": "must contain letters or digits"})
		}
		v.Registration = reg
	}
	if req.Make != nil {
		v.Make = *req.Make
	}
	if req.Model != nil {
		v.Model = *req.Model
	}
	if req.Year != nil {
		v.Year = *req.Year
	}
	if req.Color != nil {
		v.Color = *req.Color
	}
	if req.VIN != nil {
		v.VIN = *req.VIN
	}
	if req.Mileage != nil {
		v.Mileage = *req.Mileage
	}
	if req.MOTExpiry != nil {
		v.MOTExpiry = dateOnly(req.MOTExpiry)
	}
	if req.Notes != nil {
		v.Notes = *req.Notes
	}
	v.UpdatedAt = s.now()
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateVehicle(ctx, *v)
	}); err != nil {
		return nil, fmt.Errorf("update vehicle: %w", err)
	}
	return v, nil
}

// DeleteVehicle removes a vehicle no appointment or document refers to.
func (s *Service) DeleteVehicle(ctx context.Context, id string) error {
	const op = "records.DeleteVehicle"
	err := s.withRecordLock(ctx, shared.RecordVehicle, id, func() error {
		if _, err := s.repo.GetVehicle(ctx, id); err != nil {
			return err
		}
		var docs billing.DocumentRefs
		if s.documents != nil {
			var err error
			if docs, err = s.documents.CountVehicleReferences(ctx, id); err != nil {
				return fmt.Errorf("count vehicle documents: %w", err)
			}
		}
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			appointments, err := tx.CountVehicleAppointments(ctx, id)
			if err != nil {
				return err
			}
			blockers := nonZero(map[string]int{
				"appointments": appointments,
				"invoices":     docs.Invoices,
				"estimates":    docs.Estimates,
			})
			if len(blockers) > 0 {
				return shared.Referential(op, "vehicle", blockers)
			}
			return tx.DeleteVehicle(ctx, id)
		})
		if err != nil {
			return fmt.Errorf("delete vehicle: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "vehicle deleted", slog.String("vehicle_id", id))
	return nil
}

// ============================================================================
// PRODUCT OPERATIONS
// ============================================================================

// CreateProduct adds a catalog entry.
func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	const op = "records.CreateProduct"
	if err := shared.ValidateStruct(s.validate, op, req); err != nil {
		return nil, err
	}
	if req.UnitPrice.IsNegative() {
		return nil, shared.ValidationFields(op, map[string]string{"unit_price": "must not be negative"})
	}
	now := s.now()
	p := Product{
		ID:          uuid.NewString(),
		SKU:         req.SKU,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Category:    req.Category,
		UnitPrice:   req.UnitPrice,
		Active:      req.Active == nil || *req.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertProduct(ctx, p)
	}); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return &p, nil
}

// GetProduct returns one catalog entry.
func (s *Service) GetProduct(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns a page of catalog entries.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) (ListResult[Product], error) {
	all, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return ListResult[Product]{}, fmt.Errorf("list products: %w", err)
	}
	return paginate(all, filter.Page, filter.PerPage), nil
}

// UpdateProduct changes the provided fields. Existing documents keep their prices.
func (s *Service) UpdateProduct(ctx context.Context, id string, req UpdateProductRequest) (*Product, error) {
	const op = "records.UpdateProduct"
	if err := shared.ValidateStruct(s.validate, op, req); err != nil {
		return nil, err
	}
	if req.UnitPrice != nil && req.UnitPrice.IsNegative() {
		return nil, shared.ValidationFields(op, map[string]string{"unit_price": "must not be negative"})
	}
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.SKU != nil {
		p.SKU = *req.SKU
	}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.UnitPrice != nil {
		p.UnitPrice = *req.UnitPrice
	}
	if req.Active != nil {
		p.Active = *req.Active
	}
	p.UpdatedAt = s.now()
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateProduct(ctx, *p)
	}); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

// DeleteProduct removes a catalog entry no line item references.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	const op = "records.DeleteProduct"
	err := s.withRecordLock(ctx, shared.RecordProduct, id, func() error {
		if _, err := s.repo.GetProduct(ctx, id); err != nil {
			return err
		}
		if s.documents != nil {
			docs, err := s.documents.CountProductReferences(ctx, id)
			if err != nil {
				return fmt.Errorf("count product documents: %w", err)
			}
			if docs.Any() {
				return shared.Referential(op, "product", nonZero(map[string]int{
					"invoices":  docs.Invoices,
					"estimates": docs.Estimates,
				}))
			}
		}
		if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.DeleteProduct(ctx, id)
		}); err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "product deleted", slog.String("product_id", id))
	return nil
}

// ============================================================================
// BILLING LOOKUPS
// ============================================================================

// GetContact returns the addressing data of a customer.
func (s *Service) GetContact(ctx context.Context, customerID string) (billing.Contact, error) {
	c, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return billing.Contact{}, err
	}
	return billing.Contact{Name: c.Name, Email: c.Email, Phone: c.Phone}, nil
}

// CheckVehicle verifies that the vehicle exists and belongs to the customer.
func (s *Service) CheckVehicle(ctx context.Context, vehicleID, customerID string) error {
	v, err := s.repo.GetVehicle(ctx, vehicleID)
	if err != nil {
		return err
	}
	if v.CustomerID != customerID {
		return shared.ValidationFields("records.CheckVehicle", map[string]string{"vehicle_id": "belongs to another customer"})
	}
	return nil
}

// GetCatalogProduct returns catalog data for line items.
func (s *Service) GetCatalogProduct(ctx context.Context, productID string) (billing.CatalogProduct, error) {
	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return billing.CatalogProduct{}, err
	}
	return billing.CatalogProduct{ID: p.ID, Name: p.Name, Description: p.Description, UnitPrice: p.UnitPrice}, nil
}

var _ billing.RecordLookup = (*Service)(nil)

// ============================================================================
// HELPERS
// ============================================================================

func (s *Service) requireCustomer(ctx context.Context, op, customerID string) error {
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ValidationFields(op, map[string]string{"customer_id": "unknown customer"})
		}
		return err
	}
	return nil
}

// dateOnly truncates t to a UTC calendar date.
func dateOnly(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &day
}

func paginate[T any](items []T, page, perPage int) ListResult[T] {
	p := shared.NewPagination(page, perPage, len(items))
	start := min((p.Page-1)*p.PerPage, len(items))
	end := min(start+p.PerPage, len(items))
	return ListResult[T]{
		Items:      items[start:end],
		Page:       p.Page,
		PerPage:    p.PerPage,
		Total:      p.Total,
		TotalPages: p.TotalPages,
	}
}
