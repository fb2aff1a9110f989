package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRendererInvoice(t *testing.T) {
	r := newDocumentRenderer("USD")
	inv := Invoice{
		Document: Document{
			Number:    "INV-202407-0001",
			Items:     []LineItem{item(1, "49.99"), item(1, "24.99")},
			TaxRate:   dec("8.5"),
			Notes:     "Thanks <3",
			CreatedAt: testNow,
		},
		Status:  InvoiceStatusSent,
		DueDate: testNow.AddDate(0, 0, 30),
		Overdue: true,
	}
	inv.Items[0].Name = "Brake pads"
	inv.Recalculate()

	html, err := r.Render(invoiceView(inv, Contact{Name: "Jane Driver", Email: "jane@example.com"}))
	require.NoError(t, err)

	assert.Contains(t, html, "INV-202407-0001")
	assert.Contains(t, html, "Brake pads")
	assert.Contains(t, html, "Jane Driver")
	assert.Contains(t, html, "81.35")
	assert.Contains(t, html, "74.98")
	assert.Contains(t, html, "8.5%")
	assert.Contains(t, html, "14 Aug 2024")
	assert.Contains(t, html, "overdue")
	assert.Contains(t, html, "Thanks &lt;3", "notes are escaped")
}

func TestDocumentRendererEstimate(t *testing.T) {
	r := newDocumentRenderer("GBP")
	est := Estimate{
		Document: Document{
			Number:    "EST-202407-0003",
			Items:     []LineItem{item(2, "89.99")},
			CreatedAt: testNow,
		},
		Status:     EstimateStatusSent,
		ValidUntil: time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC),
	}
	est.Recalculate()

	html, err := r.Render(estimateView(est, Contact{}))
	require.NoError(t, err)
	assert.Contains(t, html, "Estimate")
	assert.Contains(t, html, "Valid until")
	assert.Contains(t, html, "01 Aug 2024")
	assert.Contains(t, html, "179.98")
	assert.Contains(t, html, "£")
}

func TestMoneyRoundsToCents(t *testing.T) {
	r := newDocumentRenderer("not-a-currency")
	assert.Contains(t, r.money(dec("238.6783")), "238.68")
	assert.Contains(t, r.money(dec("0.005")), "0.01")
}
