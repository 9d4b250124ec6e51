package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"order-processing-service/handlers"
	"order-processing-service/internal/analytics"
	"order-processing-service/internal/auth"
	"order-processing-service/internal/cache"
	"order-processing-service/internal/consul"
	"order-processing-service/internal/coupons"
	"order-processing-service/internal/events"
	"order-processing-service/internal/fulfillment"
	"order-processing-service/internal/jobs"
	"order-processing-service/internal/mailer"
	"order-processing-service/internal/notify"
	"order-processing-service/internal/orders"
	"order-processing-service/internal/payments"
	"order-processing-service/internal/products"
	"order-processing-service/internal/stores/kafka"
	"order-processing-service/migrations"
	"order-processing-service/pkg/logkey"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-retry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", slog.String(logkey.ERROR, err.Error()))
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("service stopped", slog.String(logkey.ERROR, err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Up(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	ledger, err := products.NewConf(db)
	if err != nil {
		return err
	}
	couponStore, err := coupons.NewConf(db)
	if err != nil {
		return err
	}
	paymentStore, err := payments.NewConf(db)
	if err != nil {
		return err
	}
	jobStore, err := jobs.NewConf(db)
	if err != nil {
		return err
	}
	dispatcher := events.NewDispatcher()
	orderStore, err := orders.NewConf(db, ledger, jobStore, dispatcher)
	if err != nil {
		return err
	}

	keys, err := loadAuthKeys()
	if err != nil {
		return err
	}

	var kafkaConf *kafka.Conf
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		kafkaConf, err = kafka.NewConf(strings.Split(brokers, ","))
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaConf.Close()
	} else {
		slog.Warn("KAFKA_BROKERS not set; event production disabled")
	}

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	dedupCache := cache.NewRedisCache(redisAddr, "order-processing")

	consulClient, err := consul.NewClient()
	if err != nil {
		return err
	}
	var fulfillmentClient *fulfillment.Client
	if base := os.Getenv("FULFILLMENT_SERVICE_URL"); base != "" {
		fulfillmentClient = fulfillment.NewClientWithBaseURL(base)
	} else {
		fulfillmentClient = fulfillment.NewClient(consulClient, getEnv("FULFILLMENT_SERVICE_NAME", "fulfillment"))
	}

	mailerConf, err := mailer.NewConf()
	if err != nil {
		slog.Warn("smtp not configured; order emails disabled", slog.String(logkey.ERROR, err.Error()))
		mailerConf = nil
	}

	deps := appDeps{
		orders:      orderStore,
		coupons:     couponStore,
		jobs:        jobStore,
		kafka:       kafkaConf,
		notify:      notify.NewConf(os.Getenv("ADMIN_ALERT_WEBHOOK_URL")),
		analytics:   analytics.NewConf(os.Getenv("ANALYTICS_PIXEL_URL")),
		mailer:      mailerConf,
		fulfillment: fulfillmentClient,
		emailTo:     os.Getenv("ORDER_EMAIL_TO"),
	}
	registerSubscribers(dispatcher, deps)

	fulfillmentRunner := jobs.NewRunner(jobStore, deps.notify, jobs.QueueFulfillment, 5*time.Second)
	registerFulfillmentJobs(fulfillmentRunner, deps)
	go fulfillmentRunner.Run(ctx)

	emailRunner := jobs.NewRunner(jobStore, deps.notify, jobs.QueueEmails, 10*time.Second)
	registerEmailJobs(emailRunner, deps)
	go emailRunner.Run(ctx)

	h := handlers.NewHandler(orderStore, ledger, couponStore, paymentStore, dedupCache, dispatcher)
	api := handlers.API("/v1/orders", keys, h)

	port := getEnv("APP_PORT", "8084")
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      api,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("order processing service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// openDB connects to Postgres and waits for it to become reachable. The
// database container regularly comes up after the service does.
func openDB(ctx context.Context) (*sql.DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "orders"),
		getEnv("DB_SSLMODE", "disable"),
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	backoff := retry.WithMaxDuration(time.Minute, retry.NewConstant(2*time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			slog.Info("waiting for database", slog.String(logkey.ERROR, err.Error()))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("database not reachable: %w", err)
	}
	return db, nil
}

func loadAuthKeys() (*auth.Keys, error) {
	path := getEnv("AUTH_PUBLIC_KEY_FILE", "pubkey.pem")
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read auth public key %s: %w", path, err)
	}
	return auth.NewKeys(pem)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
