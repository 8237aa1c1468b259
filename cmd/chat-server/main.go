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

	"tutoring-chat/internal/cache"
	"tutoring-chat/internal/config"
	"tutoring-chat/internal/handler"
	"tutoring-chat/internal/identity"
	"tutoring-chat/internal/messaging"
	"tutoring-chat/internal/middleware"
	"tutoring-chat/internal/observability"
	"tutoring-chat/internal/repository/postgres"
	"tutoring-chat/internal/service"
	"tutoring-chat/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}
	observability.InitLogger(logLevel, logFormat)

	slog.Info("starting chat server", slog.String("environment", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connCancel()

	db, err := config.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.PingContext(connCtx); err != nil {
		slog.Error("database ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := postgres.Migrate(connCtx, db); err != nil {
		slog.Error("failed to apply schema", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("connected to postgresql")

	// Redis only keeps last-seen times, so the server runs without it.
	var lastSeen service.LastSeenStore
	var cacheCheck handler.CacheChecker
	rdb, err := config.NewRedisClient(connCtx, cfg.RedisURL)
	if err != nil {
		slog.Warn("redis unavailable, last-seen times disabled", slog.String("error", err.Error()))
	} else {
		defer rdb.Close()
		lastSeen = cache.NewLastSeenStore(rdb, cfg.LastSeenTTL)
		cacheCheck = rdb
		slog.Info("connected to redis")
	}

	rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
	defer rmqCancel()

	rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rmq.Close()

	roomRepo := postgres.NewRoomRepository(db)
	participantRepo := postgres.NewParticipantRepository(db)
	messageRepo := postgres.NewMessageRepository(db)
	credentialRepo, err := postgres.NewCredentialRepository(db)
	if err != nil {
		slog.Error("failed to prepare credential lookups", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer credentialRepo.Close()

	verifier := identity.Chain{
		JWT:     identity.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Session: identity.NewSessionVerifier(credentialRepo),
	}

	hub := websocket.NewHub()
	store := service.NewMessageStore(messageRepo, participantRepo, hub, service.MessageStoreConfig{
		MaxContentBytes: cfg.MaxContentBytes,
		PersistTimeout:  cfg.PersistTimeout,
	})
	registry := service.NewRoomRegistry(roomRepo, participantRepo, messageRepo, store, hub, hub, cfg.PersistTimeout)
	reads := service.NewReadStateTracker(participantRepo, messageRepo, hub, cfg.PersistTimeout)
	fanout := service.NewPresenceFanout(participantRepo, hub, lastSeen, cfg.PersistTimeout)
	presence := service.NewPresenceTracker(cfg.PresenceDebounce, fanout)

	gateway := websocket.NewGateway(verifier, hub, presence, fanout,
		websocket.NewDispatcher(hub, registry, store, reads),
		websocket.GatewayConfig{
			VerifyTimeout: cfg.VerifyTimeout,
			Session: websocket.SessionOptions{
				EventRate:  cfg.EventRate,
				EventBurst: cfg.EventBurst,
			},
		})

	consumer := messaging.NewPlatformConsumer(rmq, registry, hub, cfg.PersistTimeout)

	origins := middleware.ParseOrigins(cfg.AllowedOrigins)
	wsHandler := handler.NewWebSocketHandler(gateway, origins)
	upgradeLimiter := middleware.NewRateLimiter(ctx, 5, 20)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(origins))
	r.Use(middleware.Metrics())

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(db, rmq, cacheCheck))
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	// Credentials are verified by the handler so the query parameter and
	// cookie forms work for browsers.
	r.With(upgradeLimiter.Middleware()).Get("/ws", wsHandler.HandleConnection)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		return observability.CollectDBStats(gctx, db, 15*time.Second)
	})
	g.Go(func() error {
		slog.Info("chat server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server stopped with error", slog.String("error", err.Error()))
	}

	// Pending offline transitions are dropped; the next start sees everyone offline.
	presence.Stop()
	fanout.Wait()

	slog.Info("server stopped gracefully")
}
