package billing

import (
	"time"

	"github.com/google/uuid"
)

// ConvertToInvoice builds the draft invoice produced by converting est at now. Items are
// value copies of the estimate's lines in a new slice; the invoice number is assigned
// by the caller.
func ConvertToInvoice(est Estimate, now time.Time, dueDays int) Invoice {
	items := make([]LineItem, len(est.Items))
	copy(items, est.Items)

	notes := "Converted from estimate " + est.Number
	if est.Notes != "" {
		notes += "\n\n" + est.Notes
	}

	inv := Invoice{
		Document: Document{
			ID:         uuid.NewString(),
			CustomerID: est.CustomerID,
			VehicleID:  est.VehicleID,
			Items:      items,
			TaxRate:    est.TaxRate,
			Notes:      notes,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		Status:           InvoiceStatusDraft,
		DueDate:          now.AddDate(0, 0, dueDays),
		SourceEstimateID: est.ID,
	}
	inv.Recalculate()
	return inv
}
