package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"crane-availability-backend/internal/accounting"
	"crane-availability-backend/internal/api"
	"crane-availability-backend/internal/availability"
	"crane-availability-backend/internal/booking"
	"crane-availability-backend/internal/db"
	"crane-availability-backend/internal/jobs"
	"crane-availability-backend/internal/mw"
	"crane-availability-backend/internal/notification"
	"crane-availability-backend/internal/servicing"
	"crane-availability-backend/internal/store"
	"crane-availability-backend/internal/usage"
)

const (
	shutdownTimeout    = 5 * time.Second
	limiterSweepPeriod = time.Minute
	limiterMaxIdle     = 10 * time.Minute
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the job runner and the notification workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	cfg, logger := app.cfg, app.logger
	if parent == nil {
		parent = context.Background()
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Warn("VAPID keys are not configured; push notifications are disabled")
	}

	gormDB, err := db.Init(&cfg.Database, logger.Named("db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	runner := jobs.NewRunner(gormDB, cfg.Jobs, logger.Named("jobs"))

	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueDepth, gormDB, webpushOptions, logger.Named("notification"))
	pool.Start(ctx)

	cache := mw.NewResponseCache(cfg.Server.CacheTTL())
	limiter := mw.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	machine := availability.NewMachine(appStore, runner, pool, logger.Named("availability"))
	machine.Register(runner)
	machine.OnChange(cache.Purge)

	go runner.Run(ctx)
	go sweepLimiter(ctx, limiter, logger)

	handler := api.NewHandler(api.Deps{
		Store:    appStore,
		Machine:  machine,
		Bookings: booking.NewService(appStore, logger.Named("booking")),
		Usage:    usage.NewService(appStore, logger.Named("usage")),
		Engine:   accounting.NewEngine(appStore, logger.Named("accounting")),
		Planner:  servicing.NewPlanner(appStore, logger.Named("servicing")),
		WebPush:  webpushOptions,
		Log:      logger,
	})
	router := api.NewRouter(handler, cfg.Server, cache, limiter)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case sig := <-stop:
		logger.Info("shutdown signal received, stopping services", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("HTTP server failed", zap.Error(err))
		cancel()
		return err
	case <-parent.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	logger.Info("server gracefully stopped")
	return nil
}

// sweepLimiter evicts rate limiters of clients that have gone quiet.
func sweepLimiter(ctx context.Context, limiter *mw.IPRateLimiter, logger *zap.Logger) {
	ticker := time.NewTicker(limiterSweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(limiterMaxIdle); n > 0 {
				logger.Debug("evicted idle rate limiters", zap.Int("count", n))
			}
		}
	}
}
