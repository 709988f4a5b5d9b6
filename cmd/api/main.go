package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	httpAdapter "github.com/lorrc/service-desk-realtime/internal/adapters/primary/http"
	mw "github.com/lorrc/service-desk-realtime/internal/adapters/primary/http/middleware"
	"github.com/lorrc/service-desk-realtime/internal/adapters/primary/websocket"
	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/postgres"
	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/redisrelay"
	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/userdir"
	"github.com/lorrc/service-desk-realtime/internal/auth"
	"github.com/lorrc/service-desk-realtime/internal/config"
	"github.com/lorrc/service-desk-realtime/internal/core/services"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/metrics"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})
	slog.SetDefault(logger)

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"instance_id", cfg.Redis.InstanceID,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// 4. Database
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(cfg.Database.MigrationsPath, cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("database connection established")

	// 5. Real-time hub
	bus := websocket.NewBus(cfg.WebSocket.SubscriberBuffer, logger, m)
	manager := websocket.NewManager(bus, websocket.Options{
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingInterval,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		InboundRPS:     cfg.WebSocket.InboundRPS,
		InboundBurst:   cfg.WebSocket.InboundBurst,
	}, logger, m)

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	relayDone := make(chan struct{})
	if cfg.Redis.URL != "" {
		client, err := newRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		relay := redisrelay.New(client, bus, redisrelay.Options{
			Channel:    cfg.Redis.Channel,
			InstanceID: cfg.Redis.InstanceID,
			QueueSize:  cfg.Redis.QueueSize,
		}, logger, m)
		bus.SetForwarder(relay)

		go func() {
			defer close(relayDone)
			if err := relay.Run(relayCtx); err != nil {
				logger.Error("event relay stopped", "error", err)
			}
		}()

		select {
		case <-relay.Ready():
			logger.Info("event relay subscribed", "channel", cfg.Redis.Channel)
		case <-time.After(5 * time.Second):
			logger.Warn("event relay not ready yet, continuing", "channel", cfg.Redis.Channel)
		}
	} else {
		close(relayDone)
		logger.Info("REDIS_URL not set, events stay on this instance")
	}

	// 6. Dependency Injection (Wiring the Hexagon)

	// Repositories (Secondary Adapters)
	userRepo := postgres.NewUserRepository(pool)
	ticketRepo := postgres.NewTicketRepository(pool)
	commentRepo := postgres.NewCommentRepository(pool)
	txManager := postgres.NewTransactionManager(pool)

	directory := userdir.New(userRepo, userdir.Options{
		CacheSize:       cfg.UserDirectory.CacheSize,
		CacheTTL:        cfg.UserDirectory.CacheTTL,
		BreakerFailures: cfg.UserDirectory.BreakerFailures,
		BreakerOpenFor:  cfg.UserDirectory.BreakerOpenFor,
		BreakerHalfOpen: cfg.UserDirectory.BreakerHalfOpen,
	}, logger, m)

	// Identity
	tokenManager, err := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TokenTTL, auth.WithLeeway(cfg.JWT.Leeway))
	if err != nil {
		return err
	}
	gate := auth.NewGate(tokenManager, directory,
		auth.WithGateLogger(logger),
		auth.WithRejectHook(m.AuthRejected),
	)

	// Services (Core)
	authService := services.NewAuthService(userRepo, directory)
	authzService := services.NewAuthorizationService()
	ticketService := services.NewTicketService(ticketRepo, txManager, authzService, bus, logger)
	commentService := services.NewCommentService(commentRepo, ticketService, authzService, bus, logger)

	// Handlers (Primary Adapters)
	errorHandler := httpAdapter.NewErrorHandler(logger)
	authHandler := httpAdapter.NewAuthHandler(authService, tokenManager, errorHandler, logger)
	commentHandler := httpAdapter.NewCommentHandler(commentService, errorHandler, logger)
	ticketHandler := httpAdapter.NewTicketHandler(ticketService, commentHandler, errorHandler, logger)
	meHandler := httpAdapter.NewMeHandler(authzService, errorHandler, logger)
	wsHandler := httpAdapter.NewWebSocketHandler(manager, httpAdapter.WebSocketConfig{
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		IsDevelopment:   cfg.IsDevelopment(),
	}, logger)
	healthHandler := httpAdapter.NewHealthHandler(pool, httpAdapter.RealtimeStats{
		Sessions:    manager,
		Subscribers: bus,
		UserLookup:  directory,
	}, cfg.App.Version)

	// 7. Rate Limiters
	var generalRateLimiter, authRateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		generalRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})
		defer generalRateLimiter.Stop()

		authRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.AuthRPS,
			BurstSize:         cfg.RateLimit.AuthBurst,
			CleanupInterval:   time.Minute,
			TTL:               5 * time.Minute,
		})
		defer authRateLimiter.Stop()
	}

	// 8. Setup Router
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.RecoveryLogger(logger))
	r.Use(mw.Metrics(m))
	r.Use(cors.Handler(corsOptions(cfg)))

	// Health and metrics endpoints (outside /api/v1 for standard probe paths)
	healthHandler.RegisterRoutes(r)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	authenticate := mw.Authenticate(gate, false)

	r.Route("/api/v1", func(r chi.Router) {
		if generalRateLimiter != nil {
			r.Use(generalRateLimiter.Middleware)
		}

		r.Route("/auth", func(r chi.Router) {
			// Public auth routes with stricter rate limiting
			r.Group(func(r chi.Router) {
				if authRateLimiter != nil {
					r.Use(authRateLimiter.Middleware)
				}
				authHandler.RegisterRoutes(r)
			})
			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				authHandler.RegisterProtectedRoutes(r)
			})
		})

		// The gate runs before the upgrade; browsers may pass the token as a
		// query parameter when enabled.
		r.With(mw.Authenticate(gate, cfg.WebSocket.AllowQueryToken)).Get("/ws", wsHandler.ServeHTTP)

		// Protected REST routes
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Route("/tickets", ticketHandler.RegisterRoutes)
			r.Route("/me", meHandler.RegisterRoutes)
		})
	})

	// 9. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop taking requests, then close live sessions, then stop the relay.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("websocket shutdown error", "error", err)
	}
	stopRelay()
	select {
	case <-relayDone:
	case <-shutdownCtx.Done():
		logger.Warn("event relay did not stop before the shutdown deadline")
	}

	return nil
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func newRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func corsOptions(cfg *config.Config) cors.Options {
	origins := cfg.Server.CORSOrigins
	if len(origins) == 0 && cfg.IsDevelopment() {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}
}
