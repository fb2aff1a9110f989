package billing

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func item(qty int, price string) LineItem {
	return LineItem{Name: "item", Quantity: qty, UnitPrice: dec(price)}
}

func TestComputeTotalsScenario(t *testing.T) {
	totals := ComputeTotals([]LineItem{item(1, "49.99"), item(1, "24.99")}, dec("8.5"))

	assert.True(t, dec("74.98").Equal(totals.Subtotal), "subtotal %s", totals.Subtotal)
	assert.True(t, dec("6.3733").Equal(totals.TaxAmount), "tax %s", totals.TaxAmount)
	assert.True(t, dec("81.3533").Equal(totals.Total), "total %s", totals.Total)
	assert.Equal(t, "81.35", totals.Total.StringFixed(2))
}

func TestComputeTotalsEmpty(t *testing.T) {
	totals := ComputeTotals(nil, dec("20"))
	assert.True(t, totals.Subtotal.IsZero())
	assert.True(t, totals.TaxAmount.IsZero())
	assert.True(t, totals.Total.IsZero())
}

func TestComputeTotalsZeroTaxIdentity(t *testing.T) {
	items := []LineItem{item(3, "12.50"), item(2, "0.99")}
	totals := ComputeTotals(items, decimal.Zero)
	assert.True(t, totals.Total.Equal(totals.Subtotal))
	assert.True(t, totals.TaxAmount.IsZero())
}

func TestComputeTotalsClampsNegatives(t *testing.T) {
	items := []LineItem{item(-2, "10"), item(2, "-5"), item(1, "7")}
	totals := ComputeTotals(items, dec("-10"))
	assert.True(t, dec("7").Equal(totals.Subtotal))
	assert.True(t, totals.TaxAmount.IsZero())
	assert.True(t, dec("7").Equal(totals.Total))
}

func TestComputeTotalsProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		n := rng.Intn(6)
		items := make([]LineItem, n)
		sum := decimal.Zero
		for j := range items {
			qty := rng.Intn(9) + 1
			price := decimal.New(int64(rng.Intn(100000)), -2)
			items[j] = LineItem{Quantity: qty, UnitPrice: price}
			sum = sum.Add(price.Mul(decimal.NewFromInt(int64(qty))))
		}
		rate := decimal.New(int64(rng.Intn(2500)), -2)

		first := ComputeTotals(items, rate)
		second := ComputeTotals(items, rate)

		assert.True(t, first.Subtotal.Equal(sum), "subtotal is the sum of line totals")
		assert.True(t, first.Total.Equal(first.Subtotal.Add(first.TaxAmount)), "total = subtotal + tax")
		assert.True(t, first.TaxAmount.Equal(first.Subtotal.Mul(rate).Div(decimal.NewFromInt(100))))
		assert.True(t, first.Total.Equal(second.Total), "pure and idempotent")
	}
}

func TestRecalculateOverwritesDerivedFields(t *testing.T) {
	doc := Document{
		Items:    []LineItem{{Quantity: 2, UnitPrice: dec("10"), LineTotal: dec("999")}},
		TaxRate:  dec("10"),
		Subtotal: dec("1"),
		Total:    dec("1"),
	}
	doc.Recalculate()
	assert.True(t, dec("20").Equal(doc.Items[0].LineTotal))
	assert.True(t, dec("20").Equal(doc.Subtotal))
	assert.True(t, dec("2").Equal(doc.TaxAmount))
	assert.True(t, dec("22").Equal(doc.Total))

	doc.Recalculate()
	assert.True(t, dec("22").Equal(doc.Total), "recalculating twice changes nothing")
}
