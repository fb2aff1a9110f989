package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garagedesk/garagedesk/internal/billing"
	"github.com/garagedesk/garagedesk/internal/notify"
	"github.com/garagedesk/garagedesk/internal/records"
	"github.com/garagedesk/garagedesk/internal/shared"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewContainerMemory(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.NotifyMode = NotifyLog

	c, err := NewContainer(t.Context(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	price := decimal.RequireFromString("45")

	assert.Nil(t, c.Pool)
	assert.Nil(t, c.Redis)
	assert.Nil(t, c.Queue)
	assert.IsType(t, &notify.LogDispatcher{}, c.Dispatcher)
	assert.IsType(t, &shared.MemoryIdempotencyStore{}, c.Idempotency)
	assert.Empty(t, c.HealthChecks())

	customer, err := c.Records.CreateCustomer(t.Context(), records.CreateCustomerRequest{Name: "Jane Driver", Phone: "07700900123"})
	require.NoError(t, err)
	inv, err := c.Billing.CreateInvoice(t.Context(), billing.CreateInvoiceRequest{
		CustomerID: customer.ID,
		Items:      []billing.LineItemInput{{Name: "Diagnostics", Quantity: 1, UnitPrice: &price}},
	})
	require.NoError(t, err)
	assert.Equal(t, "8.5", inv.TaxRate.String())

	err = c.Records.DeleteCustomer(t.Context(), customer.ID)
	assert.ErrorIs(t, err, shared.ErrReferential)
}

func TestNewContainerQueueMode(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.RedisAddr = mr.Addr()
	cfg.NotifyMode = NotifyQueue
	cfg.LockBackend = LockRedis

	c, err := NewContainer(t.Context(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NotNil(t, c.Redis)
	assert.Same(t, c.Queue, c.Dispatcher)
	assert.IsType(t, &shared.RedisLocker{}, c.Locker)
	assert.IsType(t, &shared.RedisIdempotencyStore{}, c.Idempotency)

	checks := c.HealthChecks()
	require.Contains(t, checks, "redis")
	assert.NoError(t, checks["redis"](context.Background()))
}

func TestNewContainerRequiresRedisForQueue(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.RedisAddr = "127.0.0.1:1"
	cfg.NotifyMode = NotifyQueue

	_, err = NewContainer(t.Context(), cfg, discardLogger())
	assert.Error(t, err)
}
