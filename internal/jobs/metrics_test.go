package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("reminders:mot").End(nil))
	boom := errors.New("boom")
	assert.Equal(t, boom, m.Track("reminders:mot").End(boom))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("reminders:mot", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("reminders:mot", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("reminders:mot")))
}

func TestCountersIgnoreEmptyAndNil(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddReminders("mot", "sent", 3)
	m.AddReminders("mot", "sent", 0)
	m.AddNotifications("sms", "failed", 1)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.reminders.WithLabelValues("mot", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("sms", "failed")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.AddReminders("mot", "sent", 1)
		_ = nilMetrics.Track("x").End(nil)
	})
}
