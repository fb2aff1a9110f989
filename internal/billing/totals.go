package billing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Totals are the derived monetary fields of a document.
type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Total     decimal.Decimal `json:"total"`
}

// LineTotal multiplies quantity by unit price. Negative inputs count as zero.
func LineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	if quantity <= 0 || unitPrice.IsNegative() {
		return decimal.Zero
	}
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// ComputeTotals derives subtotal, tax and total from items and a tax percentage.
// It is pure; amounts are exact and only rounded when rendered.
func ComputeTotals(items []LineItem, taxRatePercent decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(LineTotal(item.Quantity, item.UnitPrice))
	}
	if taxRatePercent.IsNegative() {
		taxRatePercent = decimal.Zero
	}
	tax := subtotal.Mul(taxRatePercent).Div(hundred)
	return Totals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Add(tax),
	}
}
