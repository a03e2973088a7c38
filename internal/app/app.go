package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	cartsvc "github.com/vladislavdragonenkov/checkout/internal/service/cart"
	checkoutsvc "github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	idemsvc "github.com/vladislavdragonenkov/checkout/internal/service/idempotency"
	outboxsvc "github.com/vladislavdragonenkov/checkout/internal/service/outbox"
	"github.com/vladislavdragonenkov/checkout/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/checkout/internal/version"
)

const paymentConsumerGroup = "checkout-service"

// Run поднимает сервис целиком: хранилище, Kafka, фоновые воркеры,
// операционный сервер и HTTP API. Блокируется до отмены ctx или
// фатальной ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	checkoutMetrics := metrics.NewCheckoutMetrics()

	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	checkoutService := checkoutsvc.NewService(
		deps.Store,
		deps.Products,
		deps.Carts,
		deps.Orders,
		deps.Refunds,
		deps.Events,
		deps.PaymentSvc,
		checkoutsvc.Options{
			Pricing:         cfg.Pricing(),
			RestockOnCancel: cfg.RestockOnCancel,
			Outbox:          deps.Outbox,
			Logger:          logger.WithField("layer", "checkout"),
			Metrics:         checkoutMetrics,
		},
	)
	cartService := cartsvc.NewService(deps.Carts, deps.Products, logger.WithField("layer", "cart"))

	// Фоновые воркеры: публикация outbox (только при живом Kafka) и
	// чистка истёкших ключей идемпотентности.
	if kafkaProducer != nil {
		outboxWorker := outboxsvc.NewWorker(
			deps.Outbox,
			kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicOrderEvents),
			outboxsvc.WithLogger(logger.WithField("worker", "outbox")),
			outboxsvc.WithDLQPublisher(kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)),
		)
		go outboxWorker.Run(ctx)
	}

	cleanupWorker := idemsvc.NewCleanupWorker(
		deps.Idempotency,
		idemsvc.WithLogger(logger.WithField("worker", "idempotency-cleanup")),
	)
	go cleanupWorker.Run(ctx)

	// Консьюмер платёжных событий переводит оплаченные заказы в paid.
	var paymentConsumer *kafka.Consumer
	if kafkaProducer != nil {
		handler := checkoutsvc.NewPaymentEventHandler(checkoutService, logger.WithField("consumer", "payments"))
		consumer, consErr := kafka.NewConsumerWithDLQ(
			strings.Split(cfg.KafkaBrokers, ","),
			paymentConsumerGroup,
			[]string{kafka.TopicPaymentEvents},
			handler,
			kafkaProducer,
			3,
		)
		if consErr != nil {
			logger.WithError(consErr).Warn("failed to create payment consumer, continuing without it")
		} else if startErr := consumer.Start(ctx); startErr != nil {
			logger.WithError(startErr).Warn("failed to start payment consumer")
		} else {
			paymentConsumer = consumer
			logger.Info("payment events consumer started")
		}
	}
	defer func() {
		if paymentConsumer != nil {
			if err := paymentConsumer.Stop(); err != nil {
				logger.WithError(err).Warn("failed to stop payment consumer")
			}
		}
	}()

	healthHandler := healthcheck.NewHandler(version.String())
	if deps.pg != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.pg.Ping(pingCtx)
		}))
	}
	if deps.redisClient != nil {
		healthHandler.RegisterChecker("redis", healthcheck.NewSimpleChecker("redis", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.redisClient.Ping(pingCtx).Err()
		}))
	}

	opsSrv := startOpsServer(ctx, cfg.OpsAddr, logger, healthHandler)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Carts:       cartService,
		Checkout:    checkoutService,
		Idempotency: deps.Idempotency,
		JWTSecret:   []byte(cfg.JWTSecret),
		Logger:      logger.WithField("layer", "http"),
	})
	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(opsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(opsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startOpsServer запускает операционный HTTP-сервер: метрики Prometheus
// и health-пробы.
func startOpsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("ops server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
