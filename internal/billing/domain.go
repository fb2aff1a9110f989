// Package billing computes document totals and manages the invoice and estimate lifecycle.
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind names a billing document type.
type Kind string

const (
	KindInvoice  Kind = "invoice"
	KindEstimate Kind = "estimate"
)

// ============================================================================
// LINE ITEMS
// ============================================================================

// LineItem is a single billable row owned by exactly one document.
type LineItem struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

func cloneItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}

// ============================================================================
// DOCUMENTS
// ============================================================================

// Document holds the fields shared by invoices and estimates.
type Document struct {
	ID         string          `json:"id"`
	Number     string          `json:"number"`
	CustomerID string          `json:"customer_id"`
	VehicleID  string          `json:"vehicle_id,omitempty"`
	Items      []LineItem      `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	TaxRate    decimal.Decimal `json:"tax_rate"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	Total      decimal.Decimal `json:"total"`
	Notes      string          `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Recalculate refreshes every line total and the document totals from items and tax rate.
func (d *Document) Recalculate() {
	for i := range d.Items {
		d.Items[i].LineTotal = LineTotal(d.Items[i].Quantity, d.Items[i].UnitPrice)
	}
	t := ComputeTotals(d.Items, d.TaxRate)
	d.Subtotal = t.Subtotal
	d.TaxAmount = t.TaxAmount
	d.Total = t.Total
}

// References reports whether any line item points at productID.
func (d Document) References(productID string) bool {
	for _, item := range d.Items {
		if item.ProductID != "" && item.ProductID == productID {
			return true
		}
	}
	return false
}

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "draft"
	InvoiceStatusSent  InvoiceStatus = "sent"
	InvoiceStatusPaid  InvoiceStatus = "paid"
	// InvoiceStatusOverdue is derived from the due date and never stored.
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

// Invoice is a billing document requesting payment.
type Invoice struct {
	Document
	Status           InvoiceStatus `json:"status"`
	DueDate          time.Time     `json:"due_date"`
	SourceEstimateID string        `json:"source_estimate_id,omitempty"`
	SentAt           *time.Time    `json:"sent_at,omitempty"`
	PaidAt           *time.Time    `json:"paid_at,omitempty"`
	// Overdue is computed on read and never stored.
	Overdue bool `json:"overdue"`
}

// Clone returns a deep copy.
func (inv Invoice) Clone() Invoice {
	out := inv
	out.Items = cloneItems(inv.Items)
	out.SentAt = cloneTime(inv.SentAt)
	out.PaidAt = cloneTime(inv.PaidAt)
	return out
}

// EstimateStatus is the lifecycle state of an estimate.
type EstimateStatus string

const (
	EstimateStatusDraft    EstimateStatus = "draft"
	EstimateStatusSent     EstimateStatus = "sent"
	EstimateStatusApproved EstimateStatus = "approved"
	EstimateStatusDeclined EstimateStatus = "declined"
	// EstimateStatusExpired is derived from ValidUntil and never stored.
	EstimateStatusExpired EstimateStatus = "expired"
)

// Estimate is a priced proposal that can be converted into an invoice once.
type Estimate struct {
	Document
	Status             EstimateStatus `json:"status"`
	ValidUntil         time.Time      `json:"valid_until"`
	ConvertedToInvoice bool           `json:"converted_to_invoice"`
	InvoiceID          string         `json:"invoice_id,omitempty"`
	SentAt             *time.Time     `json:"sent_at,omitempty"`
	// Expired is computed on read and never stored.
	Expired bool `json:"expired"`
}

// Clone returns a deep copy.
func (est Estimate) Clone() Estimate {
	out := est
	out.Items = cloneItems(est.Items)
	out.SentAt = cloneTime(est.SentAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	Status     InvoiceStatus
	CustomerID string
	VehicleID  string
	Page       int
	PerPage    int
}

// EstimateFilter narrows estimate listings.
type EstimateFilter struct {
	Status     EstimateStatus
	CustomerID string
	VehicleID  string
	Page       int
	PerPage    int
}

// DocumentRefs counts billing documents pointing at a record.
type DocumentRefs struct {
	Invoices  int
	Estimates int
}

// Any reports whether at least one document references the record.
func (r DocumentRefs) Any() bool {
	return r.Invoices > 0 || r.Estimates > 0
}
