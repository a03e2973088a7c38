package app

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/checkout/internal/storage/redis"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Store       domain.CheckoutStore
	Products    domain.ProductRepository
	Carts       domain.CartRepository
	Orders      domain.OrderRepository
	Refunds     domain.RefundRepository
	Events      domain.EventRepository
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository
	PaymentSvc  domain.PaymentService
	Logger      *log.Entry

	pg          *postgres.Store
	redisClient *redis.Client
}

// NewDependencies собирает зависимости по конфигурации: Postgres при заданном
// DSN, иначе in-memory; Redis для идемпотентности при заданном адресе.
// NOTE: платёжный сервис здесь мок; в production его заменяет клиент
// реального провайдера.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		PaymentSvc: payment.NewMockService(),
		Logger:     logger,
	}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		deps.pg = store
		deps.Store = postgres.NewCheckoutStore(store)
		deps.Products = postgres.NewProductRepository(store)
		deps.Carts = postgres.NewCartRepository(store)
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Refunds = postgres.NewRefundRepository(store)
		deps.Events = postgres.NewEventRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Idempotency = postgres.NewIdempotencyRepository(store)
		logger.Info("postgres storage initialized")
	} else {
		products := memory.NewProductRepository()
		carts := memory.NewCartRepository()
		orders := memory.NewOrderRepository()
		outbox := memory.NewOutboxRepository()
		deps.Store = memory.NewCheckoutStore(products, carts, orders, outbox)
		deps.Products = products
		deps.Carts = carts
		deps.Orders = orders
		deps.Refunds = memory.NewRefundRepository()
		deps.Events = memory.NewEventRepository()
		deps.Outbox = outbox
		deps.Idempotency = memory.NewIdempotencyRepository()
		logger.Info("in-memory storage initialized")
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, idempotency keys stay in primary storage")
			_ = client.Close()
		} else {
			deps.redisClient = client
			deps.Idempotency = redisstore.NewIdempotencyRepository(client)
			logger.WithField("addr", cfg.RedisAddr).Info("redis idempotency storage initialized")
		}
	}

	return deps, nil
}

// Close освобождает ресурсы хранилищ.
func (d *Dependencies) Close() {
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.pg != nil {
		if err := d.pg.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
