package billing

import "time"

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft: {InvoiceStatusSent},
	InvoiceStatusSent:  {InvoiceStatusSent, InvoiceStatusPaid},
}

var estimateTransitions = map[EstimateStatus][]EstimateStatus{
	EstimateStatusDraft: {EstimateStatusSent},
	EstimateStatusSent:  {EstimateStatusSent, EstimateStatusApproved, EstimateStatusDeclined},
}

// ParseInvoiceStatus validates a status name, including the derived overdue state.
func ParseInvoiceStatus(s string) (InvoiceStatus, bool) {
	switch st := InvoiceStatus(s); st {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusOverdue:
		return st, true
	}
	return "", false
}

// ParseEstimateStatus validates a status name, including the derived expired state.
func ParseEstimateStatus(s string) (EstimateStatus, bool) {
	switch st := EstimateStatus(s); st {
	case EstimateStatusDraft, EstimateStatusSent, EstimateStatusApproved, EstimateStatusDeclined, EstimateStatusExpired:
		return st, true
	}
	return "", false
}

// CanTransitionInvoice reports whether a stored invoice status may move to next.
func CanTransitionInvoice(from, next InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[from] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanTransitionEstimate reports whether a stored estimate status may move to next.
func CanTransitionEstimate(from, next EstimateStatus) bool {
	for _, allowed := range estimateTransitions[from] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsOverdue reports whether the invoice is past due and unpaid at now.
func (inv Invoice) IsOverdue(now time.Time) bool {
	if inv.Status == InvoiceStatusPaid || inv.DueDate.IsZero() {
		return false
	}
	return inv.DueDate.Before(now)
}

// EffectiveStatus is the stored status with overdue applied.
func (inv Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if inv.IsOverdue(now) {
		return InvoiceStatusOverdue
	}
	return inv.Status
}

// Editable reports whether items, tax and dates may still change.
func (inv Invoice) Editable() bool {
	return inv.Status == InvoiceStatusDraft || inv.Status == InvoiceStatusSent
}

// IsExpired reports whether an open estimate lapsed without a decision at now.
func (est Estimate) IsExpired(now time.Time) bool {
	open := est.Status == EstimateStatusDraft || est.Status == EstimateStatusSent
	if !open || est.ConvertedToInvoice || est.ValidUntil.IsZero() {
		return false
	}
	return est.ValidUntil.Before(now)
}

// EffectiveStatus is the stored status with expiry applied.
func (est Estimate) EffectiveStatus(now time.Time) EstimateStatus {
	if est.IsExpired(now) {
		return EstimateStatusExpired
	}
	return est.Status
}

// Frozen reports whether the estimate was converted and is read-only.
func (est Estimate) Frozen() bool {
	return est.ConvertedToInvoice
}

// Editable reports whether items, tax and dates may still change.
func (est Estimate) Editable() bool {
	if est.Frozen() {
		return false
	}
	return est.Status == EstimateStatusDraft || est.Status == EstimateStatusSent
}

// Convertible reports whether the estimate may become an invoice at now.
func (est Estimate) Convertible(now time.Time) bool {
	if est.Frozen() || est.IsExpired(now) {
		return false
	}
	return est.Status == EstimateStatusSent || est.Status == EstimateStatusApproved
}
