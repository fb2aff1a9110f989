package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/garagedesk/garagedesk/internal/billing"
	"github.com/garagedesk/garagedesk/internal/integrations/calendar"
	"github.com/garagedesk/garagedesk/internal/integrations/vehiclelookup"
	"github.com/garagedesk/garagedesk/internal/notify"
	"github.com/garagedesk/garagedesk/internal/observability"
	"github.com/garagedesk/garagedesk/internal/platform/cache"
	"github.com/garagedesk/garagedesk/internal/platform/db"
	"github.com/garagedesk/garagedesk/internal/records"
	"github.com/garagedesk/garagedesk/internal/shared"
	"github.com/garagedesk/garagedesk/jobs"
	"github.com/garagedesk/garagedesk/report"
)

// Container holds the wired services shared by the server, worker and CLI.
type Container struct {
	Config *Config
	Logger *slog.Logger

	Pool  *pgxpool.Pool
	Redis *redis.Client

	BillingRepo billing.Repository
	RecordsRepo records.Repository

	Templates   *notify.Templates
	Direct      *notify.DirectDispatcher
	Dispatcher  notify.Dispatcher
	Queue       *jobs.Client
	Renderer    *report.Client
	Idempotency shared.IdempotencyStore
	Locker      shared.Locker
	Metrics     *observability.Metrics

	Records *records.Service
	Billing *billing.Service

	closers []func() error
}

// NewContainer connects storage and providers according to cfg.
func NewContainer(ctx context.Context, cfg *Config, logger *slog.Logger) (_ *Container, err error) {
	c := &Container{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if err = c.openStorage(ctx); err != nil {
		return nil, err
	}
	if err = c.openRedis(ctx); err != nil {
		return nil, err
	}

	c.Templates, err = notify.LoadTemplates(cfg.MessageTemplatesFile)
	if err != nil {
		return nil, fmt.Errorf("load message templates: %w", err)
	}

	c.Direct = &notify.DirectDispatcher{Mailer: notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)}
	if cfg.SMSGatewayURL != "" {
		c.Direct.SMS = notify.NewSMSGateway(cfg.SMSGatewayURL, cfg.SMSGatewayToken, cfg.SMSFrom)
	}
	if cfg.RedisAddr != "" {
		c.Queue = jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		c.closers = append(c.closers, c.Queue.Close)
	}
	switch cfg.NotifyMode {
	case NotifyQueue:
		c.Dispatcher = c.Queue
	case NotifyLog:
		c.Dispatcher = &notify.LogDispatcher{Logger: logger}
	default:
		c.Dispatcher = c.Direct
	}

	c.Locker = shared.NewLocalLocker()
	if cfg.LockBackend == LockRedis {
		c.Locker = shared.NewRedisLocker(c.Redis, 30*time.Second)
	}
	if c.Redis != nil {
		c.Idempotency = shared.NewRedisIdempotencyStore(c.Redis, cfg.IdempotencyTTL)
	} else {
		c.Idempotency = shared.NewMemoryIdempotencyStore()
	}

	c.Renderer = report.NewClient(cfg.GotenbergURL)

	recordParams := records.ServiceParams{
		Repo:       c.RecordsRepo,
		Documents:  c.BillingRepo,
		Dispatcher: c.Dispatcher,
		Templates:  c.Templates,
		Locker:     c.Locker,
		Logger:     logger,
		Location:   cfg.Location(),
	}
	if cfg.CalendarEnabled {
		recordParams.Calendar = calendar.NewClient(cfg.CalendarBaseURL, cfg.CalendarID, cfg.CalendarToken)
	}
	if cfg.VehicleLookupURL != "" {
		recordParams.Lookup = vehiclelookup.NewCachedLookup(
			vehiclelookup.NewClient(cfg.VehicleLookupURL, cfg.VehicleLookupKey),
			c.Redis, cfg.VehicleLookupTTL, logger,
		)
	}
	c.Records = records.NewService(recordParams)

	c.Billing = billing.NewService(billing.ServiceParams{
		Repo:       c.BillingRepo,
		Records:    c.Records,
		Dispatcher: c.Dispatcher,
		Templates:  c.Templates,
		Renderer:   c.Renderer,
		Locker:     c.Locker,
		Logger:     logger,
		Config: billing.Config{
			DefaultTaxRate:    cfg.BillingDefaultTaxRate,
			InvoiceDueDays:    cfg.BillingInvoiceDueDays,
			EstimateValidDays: cfg.BillingEstimateValidDays,
			Currency:          cfg.BillingCurrency,
		},
	})
	return c, nil
}

func (c *Container) openStorage(ctx context.Context) error {
	if c.Config.StorageDriver != StoragePostgres {
		c.BillingRepo = billing.NewMemoryRepository()
		c.RecordsRepo = records.NewMemoryRepository()
		c.Logger.Warn("using in-memory storage; data is lost on restart")
		return nil
	}
	pool, err := db.New(ctx, c.Config.PGDSN)
	if err != nil {
		return err
	}
	c.Pool = pool
	c.closers = append(c.closers, func() error {
		pool.Close()
		return nil
	})
	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}
	c.BillingRepo = billing.NewPostgresRepository(pool)
	c.RecordsRepo = records.NewPostgresRepository(pool)
	return nil
}

func (c *Container) openRedis(ctx context.Context) error {
	if c.Config.RedisAddr == "" {
		return nil
	}
	client, err := cache.New(ctx, c.Config.RedisAddr)
	if err != nil {
		if c.Config.NotifyMode == NotifyQueue || c.Config.LockBackend == LockRedis {
			return err
		}
		c.Logger.Warn("redis unavailable, continuing without cache", slog.Any("error", err))
		return nil
	}
	c.Redis = client
	c.closers = append(c.closers, client.Close)
	return nil
}

// HealthChecks returns readiness probes for the connected dependencies.
func (c *Container) HealthChecks() map[string]HealthCheck {
	checks := map[string]HealthCheck{}
	if c.Pool != nil {
		checks["database"] = c.Pool.Ping
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return c.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
