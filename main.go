package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yash-parekh715/nuvio/internal/gateway"
	"github.com/yash-parekh715/nuvio/internal/handler"
	"github.com/yash-parekh715/nuvio/internal/repository"
	"github.com/yash-parekh715/nuvio/internal/service"
	"github.com/yash-parekh715/nuvio/internal/worker"
	"github.com/yash-parekh715/nuvio/pkg/config"
	"github.com/yash-parekh715/nuvio/pkg/database"
	"github.com/yash-parekh715/nuvio/pkg/kafka"
	"github.com/yash-parekh715/nuvio/pkg/lock"
	"github.com/yash-parekh715/nuvio/pkg/logger"
	"github.com/yash-parekh715/nuvio/pkg/middleware"
	pkgredis "github.com/yash-parekh715/nuvio/pkg/redis"
	"github.com/yash-parekh715/nuvio/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logLevel := "info"
	if cfg.App.Debug {
		logLevel = "debug"
	}
	if err := logger.Init(&logger.Config{
		Level:       logLevel,
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting reservation service",
		logger.String("version", cfg.App.Version),
		logger.String("environment", cfg.App.Environment))

	ctx := context.Background()

	_, err = telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	})
	if err != nil {
		appLog.Fatal("Failed to initialize telemetry", logger.Error(err))
	}

	db, err := database.NewPostgres(ctx, &cfg.Database, &database.Options{
		ConnectTimeout: 10 * time.Second,
		MaxRetries:     3,
		RetryInterval:  2 * time.Second,
		EnableTracing:  cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Fatal("Database connection failed", logger.Error(err))
	}
	defer db.Close()
	appLog.Info("Database connected",
		logger.Int("max_conns", int(cfg.Database.MaxConns)),
		logger.Int("min_conns", int(cfg.Database.MinConns)))

	redisClient, err := pkgredis.NewClient(ctx, &cfg.Redis, nil)
	if err != nil {
		appLog.Fatal("Redis connection failed", logger.Error(err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected", logger.String("addr", cfg.Redis.Addr()))

	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		publisher, err = service.NewKafkaEventPublisher(ctx, &service.EventPublisherConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.Topic,
			ServiceName: cfg.App.Name,
			ClientID:    cfg.Kafka.ClientID,
		})
		if err != nil {
			appLog.Warn("Kafka connection failed, using no-op publisher", logger.Error(err))
			publisher = service.NewNoOpEventPublisher()
		} else {
			appLog.Info("Kafka event publisher connected")
		}
	} else {
		publisher = service.NewNoOpEventPublisher()
	}
	defer publisher.Close()

	paymentGateway, err := buildPaymentGateway(cfg)
	if err != nil {
		appLog.Fatal("Payment gateway setup failed", logger.Error(err))
	}
	appLog.Info("Payment gateway ready", logger.String("gateway", paymentGateway.Name()))

	locker := lock.NewRedisLocker(redisClient, &lock.RedisLockerConfig{
		MaxRetries: cfg.Booking.LockMaxRetries,
		RetryDelay: cfg.Booking.LockRetryDelay,
	})

	txRunner := database.NewTxRunner(db.Pool(), nil)
	eventRepo := repository.NewPostgresEventRepository(db.Pool())
	bookingRepo := repository.NewPostgresBookingRepository(db.Pool())
	store := repository.NewPostgresReservationStore(txRunner)

	reservations := service.NewReservationService(eventRepo, bookingRepo, store, paymentGateway, locker, publisher, &service.ReservationServiceConfig{
		HoldTTL:           cfg.Booking.HoldTTL,
		MaxTicketsPerUser: cfg.Booking.MaxTicketsPerUser,
		PaymentGrace:      cfg.Booking.PaymentGrace,
		LockTTL:           cfg.Booking.LockTTL,
		Currency:          cfg.Payment.Currency,
	})
	events := service.NewEventService(eventRepo)

	expiryWorker := worker.NewExpiryWorker(reservations, &worker.ExpiryWorkerConfig{
		SweepInterval: cfg.Booking.ReconcilerInterval,
	})
	if err := expiryWorker.Start(ctx); err != nil {
		appLog.Fatal("Failed to start expiry worker", logger.Error(err))
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	if cfg.Kafka.Enabled {
		consumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
			Brokers:        cfg.Kafka.Brokers,
			GroupID:        "availability-cache-worker",
			Topics:         []string{cfg.Kafka.Topic},
			ClientID:       cfg.Kafka.ClientID,
			SessionTimeout: 30 * time.Second,
		})
		if err != nil {
			appLog.Warn("Kafka consumer unavailable, availability cache disabled", logger.Error(err))
		} else {
			defer consumer.Close()
			cacheWorker := worker.NewAvailabilityCacheWorker(&worker.AvailabilityCacheWorkerConfig{
				RebuildOnStartup: true,
			}, consumer, db, redisClient)
			if err := cacheWorker.Rebuild(ctx); err != nil {
				appLog.Warn("Availability cache rebuild failed, counters will catch up", logger.Error(err))
			}
			go cacheWorker.Start(workerCtx)
			appLog.Info("Availability cache worker started")
		}
	}

	router := buildRouter(cfg, db, redisClient, reservations, events, expiryWorker)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
	}

	go func() {
		appLog.Info("HTTP server listening", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Failed to start server", logger.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down...")

	stopWorkers()
	expiryWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", logger.Error(err))
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("Telemetry shutdown failed", logger.Error(err))
	}

	appLog.Info("Server exited gracefully")
}

func buildPaymentGateway(cfg *config.Config) (gateway.PaymentGateway, error) {
	switch cfg.Payment.Gateway {
	case "stripe":
		return gateway.NewStripeGateway(&gateway.StripeGatewayConfig{
			SecretKey:   cfg.Payment.StripeAPIKey,
			Environment: cfg.App.Environment,
		})
	case "mock", "":
		return gateway.NewMockGateway(nil), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", cfg.Payment.Gateway)
	}
}

func buildRouter(
	cfg *config.Config,
	db *database.PostgresDB,
	redisClient *pkgredis.Client,
	reservations service.ReservationService,
	events service.EventService,
	expiryWorker *worker.ExpiryWorker,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := db.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		if err := redisClient.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", func(c *gin.Context) {
		stats := db.Pool().Stat()
		c.JSON(http.StatusOK, gin.H{
			"db_pool": gin.H{
				"total_conns":    stats.TotalConns(),
				"acquired_conns": stats.AcquiredConns(),
				"idle_conns":     stats.IdleConns(),
				"max_conns":      stats.MaxConns(),
			},
			"expiry_worker": expiryWorker.GetStats(),
		})
	})

	bookingHandler := handler.NewBookingHandler(reservations)
	eventHandler := handler.NewEventHandler(events)

	v1 := router.Group("/api/v1")
	{
		public := v1.Group("/events")
		{
			public.GET("", eventHandler.ListEvents)
			public.GET("/:id", eventHandler.GetEvent)
		}

		bookings := v1.Group("/bookings")
		bookings.Use(middleware.Auth(cfg.JWT.Secret))
		{
			bookings.POST("", bookingHandler.CreateReservation)
			bookings.GET("", bookingHandler.ListBookings)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.POST("/:id/confirm", bookingHandler.ConfirmReservation)
			bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
			bookings.POST("/:id/payment-options", bookingHandler.GetPaymentOptions)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.Auth(cfg.JWT.Secret), middleware.RequireRole("admin"))
		{
			admin.POST("/events", eventHandler.CreateEvent)
			admin.PATCH("/events/:id", eventHandler.UpdateEvent)
			admin.PUT("/events/:id/booking-open", eventHandler.SetBookingOpen)
		}
	}

	return router
}
