package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/codeWithGodstime/meetmesh/internal/chat"
	"github.com/codeWithGodstime/meetmesh/internal/config"
	"github.com/codeWithGodstime/meetmesh/internal/db"
	"github.com/codeWithGodstime/meetmesh/internal/gateway"
	"github.com/codeWithGodstime/meetmesh/internal/membership"
	myMiddleware "github.com/codeWithGodstime/meetmesh/internal/middleware"
	"github.com/codeWithGodstime/meetmesh/internal/presence"
	"github.com/codeWithGodstime/meetmesh/internal/ratelimit"
	"github.com/codeWithGodstime/meetmesh/internal/router"
	"github.com/codeWithGodstime/meetmesh/internal/user"
	"github.com/codeWithGodstime/meetmesh/pkg/logger"
)

func main() {
	// 1. Config & Flags
	addr := flag.String("addr", "", "http service address (overrides SERVER_ADDR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("❌ Failed to load config")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	log := logger.New(cfg.Log.Level, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to connect to DB")
	}
	defer database.Close()
	log.Info().Msg("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("❌ Migration failed")
	}
	log.Info().Msg("✅ Database Schema Initialized")

	// 3. Connect to Redis (Platform Layer)
	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("❌ Failed to connect to Redis")
		}
		log.Info().Msg("✅ Connected to Redis")
	}

	// 4. Identity adapter
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWT.Secret, cfg.JWT.Issuer)
	userHandler := user.NewHandler(userService)

	// 5. Messaging core
	store := chat.NewPostgresStore(database.Conn)

	var registry presence.Registry
	switch cfg.Presence.Backend {
	case config.BackendRedis:
		registry = presence.NewRedisRegistry(redisClient, cfg.Presence.TTL)
	default:
		lr := presence.NewLocalRegistry(cfg.Presence.TTL, log.With().Str("component", "presence").Logger())
		go lr.Run(ctx, cfg.Presence.SweepInterval)
		registry = lr
	}

	members := membership.NewManager(store)
	hub := gateway.NewHub()
	local := gateway.NewLocalBroadcaster(hub, members, log.With().Str("component", "fanout").Logger())

	var broadcaster router.Broadcaster = local
	if cfg.Broadcast.Backend == config.BackendRedis {
		rb := gateway.NewRedisBroadcaster(redisClient, cfg.Broadcast.Channel, local, log.With().Str("component", "fanout").Logger())
		go rb.Run(ctx)
		broadcaster = rb
	}

	var limiter router.Limiter = ratelimit.Unlimited{}
	if cfg.RateLimit.Limit > 0 {
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.Limit, cfg.RateLimit.Window, log)
	}

	msgRouter := router.New(store, registry, members, broadcaster, limiter, log.With().Str("component", "router").Logger())
	chatHandler := chat.NewHandler(chat.NewService(store, userService, msgRouter, log))
	wsHandler := gateway.NewHandler(hub, msgRouter, members, registry, cfg.Server.SendBufferSize, log.With().Str("component", "gateway").Logger())

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 6. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler(database, redisClient))

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		// WebSocket (Real-time)
		r.Get("/ws", wsHandler.ServeWs)

		r.Route("/api", func(r chi.Router) {
			r.Get("/users/search", userHandler.SearchUsers)
			chatHandler.Routes(r)
		})
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("🚀 Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("❌ Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("🛑 Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Hijacked websockets are invisible to srv.Shutdown; close them first so
	// memberships and presence are cleared before Redis goes away.
	if err := wsHandler.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("websocket shutdown incomplete")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func healthHandler(database *db.Database, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"database": "ok"}
		code := http.StatusOK
		if err := database.Ping(ctx); err != nil {
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if redisClient != nil {
			status["redis"] = "ok"
			if err := redisClient.Ping(ctx).Err(); err != nil {
				status["redis"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	}
}
