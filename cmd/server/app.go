package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/daddykev/stardust-distro-sub000/internal/auth"
	"github.com/daddykev/stardust-distro-sub000/internal/client"
	"github.com/daddykev/stardust-distro-sub000/internal/config"
	"github.com/daddykev/stardust-distro-sub000/internal/handler"
	"github.com/daddykev/stardust-distro-sub000/internal/lock"
	"github.com/daddykev/stardust-distro-sub000/internal/logger"
	"github.com/daddykev/stardust-distro-sub000/internal/metrics"
	"github.com/daddykev/stardust-distro-sub000/internal/middleware"
	"github.com/daddykev/stardust-distro-sub000/internal/notify"
	"github.com/daddykev/stardust-distro-sub000/internal/orchestrator"
	"github.com/daddykev/stardust-distro-sub000/internal/packager"
	"github.com/daddykev/stardust-distro-sub000/internal/service"
	"github.com/daddykev/stardust-distro-sub000/internal/store"
	"github.com/daddykev/stardust-distro-sub000/internal/transport"
	ws "github.com/daddykev/stardust-distro-sub000/internal/websocket"
	"github.com/daddykev/stardust-distro-sub000/internal/worker"
)

// application holds everything the API and the worker share.
type application struct {
	cfg         *config.Config
	log         logger.Logger
	redis       *redis.Client
	asynqClient *asynq.Client
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	hub         *ws.Hub
	catalog     *client.CatalogClient
	objectStore *client.ObjectStore
	verifier    *auth.JWKSVerifier

	deliveries   *service.DeliveryService
	targets      *service.TargetService
	history      *service.HistoryService
	orchestrator *orchestrator.Orchestrator
}

func newApplication(ctx context.Context, cfg *config.Config, log logger.Logger) (*application, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("Redis not available", logger.Error(err))
	}

	asynqClient := asynq.NewClient(redisOpt(cfg))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	hub := ws.NewHub(log.With(logger.String("component", "websocket")))
	go hub.Run()

	catalog := client.NewCatalogClient(&cfg.Catalog)

	// Managed storage is optional; Storage targets fail until it is configured
	var objectStore *client.ObjectStore
	if cfg.Storage.BucketName != "" && cfg.Storage.AccessKeyID != "" {
		var err error
		objectStore, err = client.NewObjectStore(&cfg.Storage)
		if err != nil {
			log.Warn("Managed storage not initialized", logger.Error(err))
		}
	} else {
		log.Info("Managed storage not configured")
	}

	// OIDC verifier is optional; HMAC service tokens still work without it
	var verifier *auth.JWKSVerifier
	if cfg.OIDC.Issuer != "" {
		var err error
		verifier, err = auth.NewJWKSVerifier(&cfg.OIDC)
		if err != nil {
			log.Warn("JWKS verifier not initialized", logger.Error(err))
		}
	}

	instanceID := cfg.Delivery.InstanceID
	if instanceID == "" {
		host, _ := os.Hostname()
		instanceID = fmt.Sprintf("%s-%s", host, uuid.New().String()[:8])
	}

	jobs := store.NewJobStore(redisClient)
	targets := store.NewTargetStore(redisClient)
	history := store.NewHistoryStore(redisClient)
	locks := lock.NewRedisManager(redisClient, instanceID, cfg.Delivery.LockTTL, cfg.Delivery.LockRetention)

	deliveries := service.NewDeliveryService(jobs, targets, locks, asynqClient, m, log, cfg.Delivery.Queue)

	var objects transport.ObjectStore
	if objectStore != nil {
		objects = objectStore
	}
	adapters := transport.NewDefaultRegistry(transport.Options{
		ConnectTimeout:     cfg.Delivery.ConnectTimeout,
		StagingDir:         cfg.Delivery.StagingDir,
		MultipartThreshold: cfg.Delivery.MultipartThreshold,
		Logger:             log.With(logger.String("component", "transport")),
	}, objects)
	if err := adapters.Validate(); err != nil {
		return nil, err
	}

	sinks := notify.Multi{notify.NewHubSink(hub)}
	if cfg.Notification.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notification.WebhookURL, time.Duration(cfg.Notification.Timeout)*time.Second))
	}

	orch := orchestrator.New(orchestrator.Deps{
		Jobs:      jobs,
		Targets:   targets,
		History:   history,
		Locks:     locks,
		Builder:   packager.NewBuilder(catalog, catalog, log.With(logger.String("component", "packager"))),
		Adapters:  adapters,
		Sink:      sinks,
		Scheduler: deliveries,
		Metrics:   m,
		Streamer:  hub,
		Logger:    log.With(logger.String("component", "orchestrator"), logger.String("instance_id", instanceID)),
	}, orchestrator.Config{
		Retry: orchestrator.RetryPolicy{
			MaxAttempts: cfg.Delivery.MaxAttempts,
			Schedule:    cfg.Delivery.RetrySchedule,
		},
		AttemptTimeout: cfg.Delivery.AttemptTimeout,
	})

	return &application{
		cfg:          cfg,
		log:          log,
		redis:        redisClient,
		asynqClient:  asynqClient,
		registry:     registry,
		metrics:      m,
		hub:          hub,
		catalog:      catalog,
		objectStore:  objectStore,
		verifier:     verifier,
		deliveries:   deliveries,
		targets:      service.NewTargetService(targets),
		history:      service.NewHistoryService(history),
		orchestrator: orch,
	}, nil
}

func (a *application) Close() {
	if a.verifier != nil {
		_ = a.verifier.Close()
	}
	_ = a.asynqClient.Close()
	_ = a.redis.Close()
}

func (a *application) runAPI(ctx context.Context) error {
	cfg := a.cfg
	validate := validator.New()

	var tokenVerifier auth.TokenVerifier
	if a.verifier != nil {
		tokenVerifier = a.verifier
	}

	var apiAuth fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		a.log.Info("Gateway mode enabled, using header-based auth")
		apiAuth = middleware.GatewayAuthMiddleware()
	} else if tokenVerifier != nil && cfg.JWT.Secret != "" {
		apiAuth = middleware.NewAuthMiddlewareWithFallback(tokenVerifier, cfg.JWT.Secret).Authenticate()
	} else if tokenVerifier != nil {
		apiAuth = middleware.NewAuthMiddleware(tokenVerifier).Authenticate()
	} else {
		apiAuth = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // ERN messages can be large
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{Format: logFormat}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	routes := &handler.Routes{
		APIAuth:           apiAuth,
		RateLimiter:       middleware.NewRateLimiter(a.redis, a.log),
		DeliveriesPerHour: cfg.RateLimit.DeliveriesPerHour,
		Deliveries:        handler.NewDeliveryHandler(a.deliveries, validate),
		Targets:           handler.NewTargetHandler(a.targets, a.history, validate),
		Auth:              handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret),
		Health: handler.NewHealthHandler(a.redis, fiber.Map{
			"catalog": a.catalog.IsConfigured(),
			"storage": a.objectStore != nil,
			"oidc":    a.verifier != nil,
			"webhook": cfg.Notification.WebhookURL != "",
		}),
		Hub:     a.hub,
		Metrics: adaptor.HTTPHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})),
	}
	routes.Register(app)

	go func() {
		<-ctx.Done()
		a.log.Info("Shutting down HTTP server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			a.log.Error("Server shutdown error", logger.Error(err))
		}
	}()

	addr := ":" + cfg.Server.Port
	a.log.Info("HTTP server starting", logger.String("addr", addr))
	return app.Listen(addr)
}

func (a *application) runWorker(ctx context.Context) error {
	cfg := a.cfg

	asynqLogLevel := asynq.InfoLevel
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug":
		asynqLogLevel = asynq.DebugLevel
	case "warn":
		asynqLogLevel = asynq.WarnLevel
	case "error":
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: cfg.Delivery.Concurrency,
		Queues: map[string]int{
			cfg.Delivery.Queue: 1,
		},
		Logger:          logger.NewAsynqLogger(a.log),
		LogLevel:        asynqLogLevel,
		ShutdownTimeout: cfg.Delivery.AttemptTimeout,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			a.log.Error("Delivery task error", logger.String("type", task.Type()), logger.Error(err))
		}),
	})

	deliveryWorker := worker.NewDeliveryWorker(a.orchestrator, a.deliveries, cfg.Delivery.ContentionBackoff, a.log.With(logger.String("component", "worker")))

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeDelivery, deliveryWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("asynq worker: %w", err)
	}
	a.log.Info("Delivery worker started", logger.Int("concurrency", cfg.Delivery.Concurrency))

	<-ctx.Done()
	srv.Shutdown()
	return nil
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
