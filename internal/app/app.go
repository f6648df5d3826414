// Package app wires the booking saga to its stores and gateways. It is shared
// by the API server and the one-shot reconcile command.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/tripdesk/booking-backend/internal/config"
	"github.com/tripdesk/booking-backend/internal/database"
	"github.com/tripdesk/booking-backend/internal/database/mongostore"
	"github.com/tripdesk/booking-backend/internal/events"
	"github.com/tripdesk/booking-backend/internal/metrics"
	"github.com/tripdesk/booking-backend/internal/services"
	"github.com/tripdesk/booking-backend/pkg/payment"
	"github.com/tripdesk/booking-backend/pkg/supplier"
)

// App holds the wired saga and everything that must be closed on shutdown
type App struct {
	Saga  *services.BookingSagaService
	Store interface {
		Health(ctx context.Context) error
	}

	closers []func(ctx context.Context) error
	logger  *logrus.Logger
}

type stores struct {
	bookings services.BookingStore
	users    services.UserStore
	audit    services.PaymentAuditLogger
}

// Build connects the configured store, idempotency backend and event
// publisher and creates the booking saga
func Build(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	a := &App{logger: logger}

	st, err := a.connectStore(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	idempotency, err := a.connectIdempotency(ctx, cfg.Redis)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	publisher, err := events.New(cfg.Events, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return publisher.Close() })
	logger.WithField("driver", cfg.Events.Driver).Info("Event publisher ready")

	supplierClient := supplier.NewClient(supplier.Config{
		BaseURL: cfg.Supplier.BaseURL,
		Credentials: supplier.Credentials{
			Username: cfg.Supplier.Username,
			Password: cfg.Supplier.Password,
		},
		Timeout:     cfg.Supplier.Timeout,
		MaxAttempts: cfg.Supplier.MaxAttempts,
		BaseDelay:   cfg.Supplier.BaseDelay,
	}, logger, supplier.WithObserver(metrics.ObserveSupplierCall))

	gateway := payment.NewGateway(payment.Config{
		BaseURL:       cfg.Payment.BaseURL,
		KeyID:         cfg.Payment.KeyID,
		KeySecret:     cfg.Payment.KeySecret,
		WebhookSecret: cfg.Payment.WebhookSecret,
		Currency:      cfg.Payment.Currency,
		Timeout:       cfg.Payment.Timeout,
	})
	if !gateway.IsConfigured() {
		logger.Warn("Payment gateway keys missing, onlinePay bookings will be rejected")
	}

	a.Saga = services.NewBookingSagaService(services.BookingSagaDeps{
		Bookings:    st.bookings,
		Users:       st.users,
		Supplier:    supplierClient,
		Payments:    gateway,
		Audit:       st.audit,
		Publisher:   publisher,
		Idempotency: idempotency,
		Metrics:     metrics.Saga{},
	}, cfg.Booking, logger)

	return a, nil
}

func (a *App) connectStore(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Store.Driver {
	case config.StoreMongo:
		a.logger.Info("Connecting to MongoDB...")
		store, err := mongostore.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
		a.logger.WithField("database", cfg.Mongo.Database).Info("MongoDB connection established")
		return &stores{
			bookings: store.Bookings(),
			users:    store.Users(),
			audit:    store.PaymentAudits(),
		}, nil

	default:
		a.logger.Info("Connecting to database...")
		db, err := database.NewConnection(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.Store = db
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		a.logger.Info("Database connection established")
		return &stores{
			bookings: database.NewBookingRepository(db),
			users:    database.NewUserRepository(db),
			audit:    database.NewPaymentAuditRepository(db, a.logger),
		}, nil
	}
}

// connectIdempotency uses Redis when REDIS_ADDR is set. The in-memory store
// only deduplicates retries that reach the same instance.
func (a *App) connectIdempotency(ctx context.Context, cfg config.RedisConfig) (services.IdempotencyStore, error) {
	if cfg.Addr == "" {
		a.logger.Warn("REDIS_ADDR not set, using in-memory idempotency keys")
		return services.NewMemoryIdempotencyStore(cfg.IdempotencyTTL), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	a.logger.WithField("addr", cfg.Addr).Info("Redis idempotency store ready")
	return services.NewRedisIdempotencyStore(client, cfg.IdempotencyTTL), nil
}

// Close releases connections in reverse order of creation
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.WithError(err).Warn("Failed to close resource")
		}
	}
	a.closers = nil
}
