package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"slotbook/internal/config"
	"slotbook/internal/notify"
	"slotbook/internal/service/booking"
	"slotbook/internal/service/payments"
	"slotbook/internal/store/postgres"
	httpTransport "slotbook/internal/transport/http"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "slotbook-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "slotbook-server"),
	)
	slog.SetDefault(log)

	log.Info("starting", slog.String("http_addr", cfg.HTTPAddr), slog.String("log_level", cfg.LogLevel))

	if cfg.WebhookSecret == "" {
		log.Warn("webhook secret not configured; payment webhooks will be rejected")
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(context.Background(), cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	var publisher *notify.Publisher
	if cfg.AMQPURL != "" {
		publisher, err = notify.NewPublisher(cfg.AMQPURL, cfg.NotificationsExchange, log)
		if err != nil {
			log.Error("notification publisher setup failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn("notification publisher close failed", slog.Any("err", err))
			}
		}()
		log.Info("notification publisher connected", slog.String("exchange", cfg.NotificationsExchange))
	} else {
		log.Info("amqp url not configured; notification enqueue disabled")
	}

	slotRepo := postgres.NewSlotRepo(db)
	bookingRepo := postgres.NewBookingRepo(db)
	paymentRepo := postgres.NewPaymentRepo(db)

	var bookingNotifier booking.Notifier
	var paymentsNotifier payments.Notifier
	if publisher != nil {
		bookingNotifier = publisher
		paymentsNotifier = publisher
	}

	bookingSvc := booking.NewService(slotRepo, bookingRepo, bookingNotifier, booking.Config{
		HoldTTLDefault:     cfg.HoldTTLDefault,
		HoldTTLMax:         cfg.HoldTTLMax,
		RescheduleTokenTTL: cfg.RescheduleTokenTTL,
	})
	paymentsSvc := payments.NewService(paymentRepo, paymentsNotifier, payments.Config{
		Secret:    cfg.WebhookSecret,
		Tolerance: cfg.WebhookTolerance,
	}, log)

	server := httpTransport.NewServer(bookingSvc, paymentsSvc, log)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Router(cfg.RequestTimeout),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	log.Info("http server started", slog.String("http_addr", cfg.HTTPAddr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http graceful shutdown failed; forcing close", slog.Any("err", err))
			_ = httpServer.Close()
		} else {
			log.Info("http server stopped")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped with error", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
