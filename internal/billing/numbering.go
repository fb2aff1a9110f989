package billing

import (
	"fmt"
	"time"
)

const (
	InvoicePrefix  = "INV"
	EstimatePrefix = "EST"
)

// NextInvoiceNumber formats INV-YYYYMM-NNNN from the current invoice count.
func NextInvoiceNumber(existingCount int, now time.Time) string {
	return documentNumber(InvoicePrefix, existingCount+1, now)
}

// NextEstimateNumber formats EST-YYYYMM-NNNN from the current estimate count.
func NextEstimateNumber(existingCount int, now time.Time) string {
	return documentNumber(EstimatePrefix, existingCount+1, now)
}

func documentNumber(prefix string, seq int, now time.Time) string {
	if seq < 1 {
		seq = 1
	}
	return fmt.Sprintf("%s-%04d%02d-%04d", prefix, now.Year(), int(now.Month()), seq)
}

func prefixFor(kind Kind) string {
	if kind == KindEstimate {
		return EstimatePrefix
	}
	return InvoicePrefix
}
