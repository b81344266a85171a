package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/prepforge/billing-service/internal/api/rest"
	"github.com/prepforge/billing-service/internal/api/rest/handlers"
	"github.com/prepforge/billing-service/internal/config"
	"github.com/prepforge/billing-service/internal/db"
	"github.com/prepforge/billing-service/internal/kafka"
	"github.com/prepforge/billing-service/internal/metrics"
	"github.com/prepforge/billing-service/internal/middleware"
	"github.com/prepforge/billing-service/internal/repository"
	"github.com/prepforge/billing-service/internal/service"
	"github.com/prepforge/billing-service/internal/stripe"
	"github.com/prepforge/billing-service/pkg/logger"
)

var log *logger.Logger

func init() {
	logLevel := logger.INFO
	if os.Getenv("DEBUG") == "true" {
		logLevel = logger.DEBUG
	}
	log = logger.New(logLevel)
}

func main() {
	defer log.Sync()

	// Загрузка конфигурации
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Инициализация Prometheus
	promRegistry := prometheus.NewRegistry()
	billingMetrics := metrics.NewBillingMetrics(promRegistry, log)
	systemMetrics := metrics.NewSystemMetrics(promRegistry, log)

	systemMetrics.StartRecording(15 * time.Second)
	defer systemMetrics.Stop()

	// Подключение к базе данных
	database, err := db.Connect(ctx, cfg.Database.DSN, log)
	if err != nil {
		log.Fatal("Failed to connect to database: %v", err)
	}
	defer database.Close()

	var subscriptionRepo repository.SubscriptionRepository
	subscriptionRepo = repository.NewPostgresSubscriptionRepository(database, log)

	// Redis опционален: без него чтения идут напрямую в Postgres
	if cfg.Redis.Addr != "" {
		cache, err := repository.NewRedisCacheRepository(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Warnw("Redis unavailable, continuing without subscription cache", "error", err)
		} else {
			subscriptionRepo = repository.NewCachedSubscriptionRepository(subscriptionRepo, cache, log)
		}
	}

	// Kafka опционален: без брокеров события жизненного цикла не публикуются
	var producer kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafka.NewProducer(cfg.Kafka.Brokers, log)
		if err != nil {
			log.Fatal("Failed to create Kafka producer: %v", err)
		}
		defer producer.Close()
	} else {
		log.Warnw("Kafka brokers are not configured, lifecycle events disabled")
	}

	subscriptionService := service.NewSubscriptionService(subscriptionRepo, log)

	// Платежная подсистема включается только при наличии API ключа.
	// Без него checkout и вебхуки отвечают 503, остальные маршруты работают.
	var (
		checkoutService service.CheckoutService
		webhookService  service.WebhookService
		eventParser     *stripe.EventParser
	)
	if cfg.BillingEnabled() {
		stripeClient := stripe.NewClient(stripe.Config{
			APIKey:     cfg.Stripe.APIKey,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
		}, log)

		catalogService := service.NewCatalogService(stripeClient, cfg.Stripe.ProductName, log)
		checkoutService = service.NewCheckoutService(subscriptionRepo, stripeClient, catalogService, billingMetrics, log)
		webhookService = service.NewWebhookService(subscriptionRepo, stripeClient, producer, billingMetrics, log)
		eventParser = stripe.NewEventParser(cfg.Stripe.WebhookSecret, log)
	} else {
		log.Warnw("Stripe API key is not configured, billing endpoints disabled")
	}

	authMiddleware := middleware.NewJWTMiddleware(&middleware.DefaultTokenValidator{
		Secret: []byte(cfg.Auth.JWTSecret),
	}, log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := rest.SetupRouter(rest.RouterDeps{
		BillingHandler: handlers.NewBillingHandler(checkoutService, subscriptionService, log),
		WebhookHandler: handlers.NewWebhookHandler(eventParser, webhookService, log),
		AuthMiddleware: authMiddleware,
		Registry:       promRegistry,
		Log:            log,
	})

	server := rest.NewServer(router, cfg, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownTimeout := time.Duration(cfg.App.ShutdownTimeout) * time.Second
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped gracefully")
}
