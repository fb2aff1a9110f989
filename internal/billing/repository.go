package billing

import (
	"context"
	"sort"
	"sync"

	"github.com/garagedesk/garagedesk/internal/shared"
)

// Repository is the persistence port used by Service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	CountInvoices(ctx context.Context) (int, error)
	InvoiceNumberExists(ctx context.Context, number string) (bool, error)

	GetEstimate(ctx context.Context, id string) (*Estimate, error)
	ListEstimates(ctx context.Context, filter EstimateFilter) ([]Estimate, error)
	CountEstimates(ctx context.Context) (int, error)
	EstimateNumberExists(ctx context.Context, number string) (bool, error)

	CountCustomerReferences(ctx context.Context, customerID string) (DocumentRefs, error)
	CountVehicleReferences(ctx context.Context, vehicleID string) (DocumentRefs, error)
	CountProductReferences(ctx context.Context, productID string) (DocumentRefs, error)
}

// TxRepository exposes transactional writes.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv Invoice) error
	UpdateInvoice(ctx context.Context, inv Invoice) error
	DeleteInvoice(ctx context.Context, id string) error

	InsertEstimate(ctx context.Context, est Estimate) error
	UpdateEstimate(ctx context.Context, est Estimate) error
	DeleteEstimate(ctx context.Context, id string) error
}

// ============================================================================
// IN-MEMORY REPOSITORY
// ============================================================================

// MemoryRepository keeps documents in process memory; state is lost on restart.
type MemoryRepository struct {
	mu        sync.RWMutex
	txMu      sync.Mutex
	invoices  map[string]Invoice
	estimates map[string]Estimate
}

// NewMemoryRepository constructs an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		invoices:  make(map[string]Invoice),
		estimates: make(map[string]Estimate),
	}
}

type memOp struct {
	invoice  *Invoice
	estimate *Estimate
	deleteID string
	kind     Kind
	insert   bool
}

type memTx struct {
	ops []memOp
}

func (t *memTx) InsertInvoice(_ context.Context, inv Invoice) error {
	c := inv.Clone()
	t.ops = append(t.ops, memOp{invoice: &c, kind: KindInvoice, insert: true})
	return nil
}

func (t *memTx) UpdateInvoice(_ context.Context, inv Invoice) error {
	c := inv.Clone()
	t.ops = append(t.ops, memOp{invoice: &c, kind: KindInvoice})
	return nil
}

func (t *memTx) DeleteInvoice(_ context.Context, id string) error {
	t.ops = append(t.ops, memOp{deleteID: id, kind: KindInvoice})
	return nil
}

func (t *memTx) InsertEstimate(_ context.Context, est Estimate) error {
	c := est.Clone()
	t.ops = append(t.ops, memOp{estimate: &c, kind: KindEstimate, insert: true})
	return nil
}

func (t *memTx) UpdateEstimate(_ context.Context, est Estimate) error {
	c := est.Clone()
	t.ops = append(t.ops, memOp{estimate: &c, kind: KindEstimate})
	return nil
}

func (t *memTx) DeleteEstimate(_ context.Context, id string) error {
	t.ops = append(t.ops, memOp{deleteID: id, kind: KindEstimate})
	return nil
}

// WithTx buffers writes and applies them atomically when fn succeeds.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	tx := &memTx{}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOps(tx.ops); err != nil {
		return err
	}
	for _, op := range tx.ops {
		switch {
		case op.invoice != nil:
			r.invoices[op.invoice.ID] = *op.invoice
		case op.estimate != nil:
			r.estimates[op.estimate.ID] = *op.estimate
		case op.kind == KindInvoice:
			delete(r.invoices, op.deleteID)
		default:
			delete(r.estimates, op.deleteID)
		}
	}
	return nil
}

// checkOps enforces the same uniqueness and existence rules as the SQL schema.
func (r *MemoryRepository) checkOps(ops []memOp) error {
	const op = "billing.memory"
	for _, o := range ops {
		switch {
		case o.invoice != nil && o.insert:
			if _, exists := r.invoices[o.invoice.ID]; exists {
				return shared.Conflict(op, "invoice id already exists")
			}
			for _, existing := range r.invoices {
				if existing.Number == o.invoice.Number {
					return shared.Conflict(op, "invoice number "+o.invoice.Number+" already exists")
				}
			}
		case o.invoice != nil:
			if _, exists := r.invoices[o.invoice.ID]; !exists && !pendingInsert(ops, KindInvoice, o.invoice.ID) {
				return shared.NotFound(op, "invoice", o.invoice.ID)
			}
		case o.estimate != nil && o.insert:
			if _, exists := r.estimates[o.estimate.ID]; exists {
				return shared.Conflict(op, "estimate id already exists")
			}
			for _, existing := range r.estimates {
				if existing.Number == o.estimate.Number {
					return shared.Conflict(op, "estimate number "+o.estimate.Number+" already exists")
				}
			}
		case o.estimate != nil:
			if _, exists := r.estimates[o.estimate.ID]; !exists && !pendingInsert(ops, KindEstimate, o.estimate.ID) {
				return shared.NotFound(op, "estimate", o.estimate.ID)
			}
		}
	}
	return nil
}

func pendingInsert(ops []memOp, kind Kind, id string) bool {
	for _, o := range ops {
		if !o.insert {
			continue
		}
		if kind == KindInvoice && o.invoice != nil && o.invoice.ID == id {
			return true
		}
		if kind == KindEstimate && o.estimate != nil && o.estimate.ID == id {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) GetInvoice(_ context.Context, id string) (*Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, shared.NotFound("billing.GetInvoice", "invoice", id)
	}
	c := inv.Clone()
	return &c, nil
}

func (r *MemoryRepository) ListInvoices(_ context.Context, filter InvoiceFilter) ([]Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Invoice, 0, len(r.invoices))
	for _, inv := range r.invoices {
		if filter.CustomerID != "" && inv.CustomerID != filter.CustomerID {
			continue
		}
		if filter.VehicleID != "" && inv.VehicleID != filter.VehicleID {
			continue
		}
		out = append(out, inv.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Number > out[j].Number
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) CountInvoices(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.invoices), nil
}

func (r *MemoryRepository) InvoiceNumberExists(_ context.Context, number string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inv := range r.invoices {
		if inv.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) GetEstimate(_ context.Context, id string) (*Estimate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	est, ok := r.estimates[id]
	if !ok {
		return nil, shared.NotFound("billing.GetEstimate", "estimate", id)
	}
	c := est.Clone()
	return &c, nil
}

func (r *MemoryRepository) ListEstimates(_ context.Context, filter EstimateFilter) ([]Estimate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Estimate, 0, len(r.estimates))
	for _, est := range r.estimates {
		if filter.CustomerID != "" && est.CustomerID != filter.CustomerID {
			continue
		}
		if filter.VehicleID != "" && est.VehicleID != filter.VehicleID {
			continue
		}
		out = append(out, est.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Number > out[j].Number
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) CountEstimates(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.estimates), nil
}

func (r *MemoryRepository) EstimateNumberExists(_ context.Context, number string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, est := range r.estimates {
		if est.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) CountCustomerReferences(_ context.Context, customerID string) (DocumentRefs, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var refs DocumentRefs
	for _, inv := range r.invoices {
		if inv.CustomerID == customerID {
			refs.Invoices++
		}
	}
	for _, est := range r.estimates {
		if est.CustomerID == customerID {
			refs.Estimates++
		}
	}
	return refs, nil
}

func (r *MemoryRepository) CountVehicleReferences(_ context.Context, vehicleID string) (DocumentRefs, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var refs DocumentRefs
	for _, inv := range r.invoices {
		if inv.VehicleID != "" && inv.VehicleID == vehicleID {
			refs.Invoices++
		}
	}
	for _, est := range r.estimates {
		if est.VehicleID != "" && est.VehicleID == vehicleID {
			refs.Estimates++
		}
	}
	return refs, nil
}

func (r *MemoryRepository) CountProductReferences(_ context.Context, productID string) (DocumentRefs, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var refs DocumentRefs
	for _, inv := range r.invoices {
		if inv.References(productID) {
			refs.Invoices++
		}
	}
	for _, est := range r.estimates {
		if est.References(productID) {
			refs.Estimates++
		}
	}
	return refs, nil
}
