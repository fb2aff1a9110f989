package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceTransitions(t *testing.T) {
	allowed := map[[2]InvoiceStatus]bool{
		{InvoiceStatusDraft, InvoiceStatusSent}: true,
		{InvoiceStatusSent, InvoiceStatusSent}:  true,
		{InvoiceStatusSent, InvoiceStatusPaid}:  true,
	}
	all := []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusOverdue}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]InvoiceStatus{from, to}], CanTransitionInvoice(from, to), "%s -> %s", from, to)
		}
	}
}

func TestEstimateTransitions(t *testing.T) {
	assert.True(t, CanTransitionEstimate(EstimateStatusDraft, EstimateStatusSent))
	assert.True(t, CanTransitionEstimate(EstimateStatusSent, EstimateStatusApproved))
	assert.True(t, CanTransitionEstimate(EstimateStatusSent, EstimateStatusDeclined))
	assert.False(t, CanTransitionEstimate(EstimateStatusDraft, EstimateStatusApproved))
	assert.False(t, CanTransitionEstimate(EstimateStatusApproved, EstimateStatusDraft))
	assert.False(t, CanTransitionEstimate(EstimateStatusDeclined, EstimateStatusApproved))
	assert.False(t, CanTransitionEstimate(EstimateStatusSent, EstimateStatusExpired))
}

func TestInvoiceEffectiveStatus(t *testing.T) {
	now := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.Equal(t, InvoiceStatusOverdue, Invoice{Status: InvoiceStatusSent, DueDate: past}.EffectiveStatus(now))
	assert.Equal(t, InvoiceStatusOverdue, Invoice{Status: InvoiceStatusDraft, DueDate: past}.EffectiveStatus(now))
	assert.Equal(t, InvoiceStatusPaid, Invoice{Status: InvoiceStatusPaid, DueDate: past}.EffectiveStatus(now))
	assert.Equal(t, InvoiceStatusSent, Invoice{Status: InvoiceStatusSent, DueDate: future}.EffectiveStatus(now))
	assert.Equal(t, InvoiceStatusSent, Invoice{Status: InvoiceStatusSent}.EffectiveStatus(now), "no due date never overdue")
}

func TestEstimateEffectiveStatus(t *testing.T) {
	now := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)

	assert.Equal(t, EstimateStatusExpired, Estimate{Status: EstimateStatusSent, ValidUntil: past}.EffectiveStatus(now))
	assert.Equal(t, EstimateStatusApproved, Estimate{Status: EstimateStatusApproved, ValidUntil: past}.EffectiveStatus(now))
	assert.Equal(t, EstimateStatusDeclined, Estimate{Status: EstimateStatusDeclined, ValidUntil: past}.EffectiveStatus(now), "declined never expires")
	assert.Equal(t, EstimateStatusApproved, Estimate{Status: EstimateStatusApproved, ValidUntil: past, ConvertedToInvoice: true}.EffectiveStatus(now))
	assert.Equal(t, EstimateStatusDraft, Estimate{Status: EstimateStatusDraft, ValidUntil: now.AddDate(0, 0, 1)}.EffectiveStatus(now))
}

func TestEstimateConvertible(t *testing.T) {
	now := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	valid := now.AddDate(0, 0, 10)

	assert.True(t, Estimate{Status: EstimateStatusSent, ValidUntil: valid}.Convertible(now))
	assert.True(t, Estimate{Status: EstimateStatusApproved, ValidUntil: valid}.Convertible(now))
	assert.False(t, Estimate{Status: EstimateStatusDraft, ValidUntil: valid}.Convertible(now))
	assert.False(t, Estimate{Status: EstimateStatusDeclined, ValidUntil: valid}.Convertible(now))
	assert.False(t, Estimate{Status: EstimateStatusSent, ValidUntil: now.AddDate(0, 0, -1)}.Convertible(now))
	assert.False(t, Estimate{Status: EstimateStatusApproved, ValidUntil: valid, ConvertedToInvoice: true}.Convertible(now))
}

func TestParseStatus(t *testing.T) {
	_, ok := ParseInvoiceStatus("paid")
	assert.True(t, ok)
	_, ok = ParseInvoiceStatus("PAID")
	assert.False(t, ok)
	_, ok = ParseEstimateStatus("expired")
	assert.True(t, ok)
	_, ok = ParseEstimateStatus("converted")
	assert.False(t, ok)
}
