package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/garagedesk/garagedesk/internal/app"
	"github.com/garagedesk/garagedesk/internal/billing"
	"github.com/garagedesk/garagedesk/internal/records"
	"github.com/garagedesk/garagedesk/internal/view"
	"github.com/garagedesk/garagedesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	c, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("close container", slog.Any("error", err))
		}
	}()

	if err := c.Renderer.Ping(ctx); err != nil {
		logger.Warn("gotenberg unreachable, PDF downloads will fail", slog.Any("error", err))
	}

	templates, err := view.NewEngine()
	if err != nil {
		return err
	}

	params := app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		BillingHandler: billing.NewHandler(logger, c.Billing),
		RecordsHandler: records.NewHandler(logger, c.Records),
		BookingHandler: records.NewBookingHandler(records.BookingHandlerParams{
			Logger:      logger,
			Service:     c.Records,
			Idempotency: c.Idempotency,
			Views:       templates,
			RateLimit:   cfg.BookingRateLimit,
		}),
		Metrics:      c.Metrics,
		HealthChecks: c.HealthChecks(),
	}
	if c.Redis != nil {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		params.JobHandler = jobs.NewHandler(inspector, logger)
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      app.NewRouter(params),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("storage", cfg.StorageDriver),
			slog.String("notify", cfg.NotifyMode),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
