package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/payment"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/reconcile"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, cfg.ServiceName, cfg.Otel)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	store, storeReady, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("db connection failed", "driver", cfg.DBDriver, "err", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		logger.Error("migrate failed", "err", err)
		os.Exit(1)
	}
	ready := []runtime.ReadyCheck{{Name: "db", Check: storeReady}}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		ready = append(ready, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	notifier, closeNotifier, err := openNotifier(cfg, logger)
	if err != nil {
		logger.Error("notifier init failed; falling back to log", "driver", cfg.NotifyDriver, "err", err)
		notifier, closeNotifier = notify.NewLogNotifier(logger), func() error { return nil }
	}
	defer closeNotifier()
	if cfg.NotifyDriver == "kafka" {
		ready = append(ready, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	deps := booking.Deps{
		Notifier:          notifier,
		Logger:            logger,
		SideEffectTimeout: seconds(cfg.SideEffectTimeout),
	}
	var gateway *payment.StripeGateway
	if cfg.StripeSecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.StripeSecretKey, nil)
		deps.Payments = gateway
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set; paid offerings cannot be booked")
	}
	if cfg.CalDAVURL != "" {
		cal := calendar.NewBreaker(
			calendar.NewCalDAV(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, logger),
			"caldav", calendar.BreakerConfig{}, logger,
		)
		deps.Calendar = cal
		deps.Busy = cal
		if rdb != nil {
			deps.Busy = calendar.NewCachedSource(cal, rdb, seconds(cfg.BusyCacheTTLSecs), logger)
		}
	}
	engine := booking.New(store, deps)
	if gateway != nil && cfg.ReconcileIntervalSecs > 0 {
		go reconcile.New(gateway, engine, logger, reconcile.Config{
			Interval: seconds(cfg.ReconcileIntervalSecs),
			Lookback: time.Duration(cfg.ReconcileLookbackHours) * time.Hour,
		}).Run(ctx)
	}

	var rateLimit httpx.Middleware
	if cfg.RateLimitPerMinute > 0 {
		if rdb != nil {
			rateLimit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "ratelimit:public").Middleware(logger, true)
		} else {
			rateLimit = httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware()
		}
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Engine:                 engine,
		Availability:           store,
		Logger:                 logger,
		JWTSecret:              cfg.JWTSecret,
		StripeWebhookSecret:    cfg.StripeWebhookSecret,
		StripeWebhookTolerance: seconds(cfg.StripeWebhookTolerance),
		RateLimit:              rateLimit,
		Ready:                  ready,
	})
	httpHandler := httpx.Chain(router,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicyFromList(cfg.CORSOrigins)),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health, err := startGRPC(cfg.GRPCPort, logger)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	if err := engine.Close(shutdownCtx); err != nil {
		logger.Warn("side effects still running at shutdown", "err", err)
	}
	logger.Info("booking service stopped")
}

func openStore(ctx context.Context, cfg Config) (storage.Store, func(context.Context) error, error) {
	if cfg.DBDriver == "sqlite" {
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewSQLiteStore(conn), db.SQLiteReadyCheck(conn), nil
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns})
	if err != nil {
		return nil, nil, err
	}
	return storage.NewPostgresStore(pool), db.ReadyCheck(pool), nil
}

func openNotifier(cfg Config, logger *slog.Logger) (notify.Notifier, func() error, error) {
	switch cfg.NotifyDriver {
	case "kafka":
		n, err := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, logger)
		if err != nil {
			return nil, nil, err
		}
		return n, n.Close, nil
	case "amqp":
		n, err := notify.NewAMQPNotifier(cfg.AMQPURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return n, n.Close, nil
	}
	return notify.NewLogNotifier(logger), func() error { return nil }, nil
}
