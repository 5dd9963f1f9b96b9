package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vmaslennikov/bms/internal/domain"
	"github.com/vmaslennikov/bms/internal/gateway/mileage"
	"github.com/vmaslennikov/bms/internal/gateway/payment"
	"github.com/vmaslennikov/bms/internal/inventory"
	"github.com/vmaslennikov/bms/internal/storage/memory"
	"github.com/vmaslennikov/bms/internal/storage/postgres"
)

// Dependencies — собранные зависимости сервиса.
type Dependencies struct {
	Bookings  domain.BookingRepository
	Schedules domain.ScheduleRepository
	Outbox    domain.OutboxRepository
	Audit     domain.AuditRepository
	Inventory *inventory.Registry
	Payments  domain.PaymentGateway
	Mileage   domain.MileageLedger

	// Store заполнен только для postgres-драйвера.
	Store *postgres.Store
	// Redis заполнен, если настроен кэш токена в Redis.
	Redis *redis.Client

	Logger *log.Entry
}

// NewDependencies создаёт хранилища, адаптеры инвентаря и клиентов внешних
// сервисов согласно конфигурации.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	switch cfg.Storage.Driver {
	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.Storage.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}

		registry, err := inventory.NewRegistry(
			postgres.NewFlightSeats(store),
			postgres.NewRoomAdapter(store),
			postgres.NewTourTicketStock(store),
			postgres.NewTravelItemStock(store),
		)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("build inventory registry: %w", err)
		}

		deps.Store = store
		deps.Bookings = postgres.NewBookingRepository(store)
		deps.Schedules = postgres.NewScheduleRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Audit = postgres.NewAuditRepository(store)
		deps.Inventory = registry
		logger.Info("postgres storage initialized")

	case StorageDriverMemory:
		registry, err := inventory.NewRegistry(
			inventory.NewFlightSeats(),
			inventory.NewRoomCalendar(),
			inventory.NewTourTicketStock(),
			inventory.NewTravelItemStock(),
		)
		if err != nil {
			return nil, fmt.Errorf("build inventory registry: %w", err)
		}

		deps.Bookings = memory.NewBookingRepository()
		deps.Schedules = memory.NewScheduleRepository()
		deps.Outbox = memory.NewOutboxRepository()
		deps.Audit = memory.NewAuditRepository()
		deps.Inventory = registry
		logger.Info("in-memory storage initialized")

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}

	deps.Payments = buildPaymentGateway(cfg, deps, logger)
	if cfg.Mileage.BaseURL != "" {
		deps.Mileage = mileage.NewClient(mileage.Config{
			BaseURL: cfg.Mileage.BaseURL,
			APIKey:  cfg.Mileage.APIKey,
			Timeout: cfg.Mileage.Timeout,
		}, logger.WithField("component", "mileage"))
	}

	return deps, nil
}

// buildPaymentGateway собирает клиента шлюза с Redis-кэшем токена,
// либо с in-memory кэшем, когда Redis не настроен.
func buildPaymentGateway(cfg Config, deps *Dependencies, logger *log.Entry) domain.PaymentGateway {
	var cache payment.TokenCache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		deps.Redis = client
		cache = payment.NewRedisTokenCache(client)
		logger.WithField("addr", cfg.Redis.Addr).Info("redis token cache initialized")
	} else {
		cache = payment.NewMemoryTokenCache()
	}

	return payment.NewClient(payment.Config{
		BaseURL:   cfg.Payment.BaseURL,
		APIKey:    cfg.Payment.APIKey,
		APISecret: cfg.Payment.APISecret,
		Timeout:   cfg.Payment.Timeout,
		TokenTTL:  cfg.Payment.TokenTTL,
	}, cache, logger.WithField("component", "payment-gateway"))
}

// Close освобождает ресурсы зависимостей.
func (d *Dependencies) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
