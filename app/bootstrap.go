package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/uptrace/bun"

	"todo-serverless/internal/auth"
	"todo-serverless/internal/config"
	"todo-serverless/internal/db"
	"todo-serverless/internal/observability"
	"todo-serverless/internal/password"
	"todo-serverless/internal/todo"
	"todo-serverless/internal/token"
	"todo-serverless/internal/user"
)

type Options struct {
	LoadDotEnv bool
	// RunMigrations is the default when RUN_MIGRATIONS_ON_STARTUP is unset.
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Config  config.Config
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	cfg, err := config.Load(options.LoadDotEnv, options.RunMigrations)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger()

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.Open(ctx, cfg.DatabaseURL, cfg.DB)
	if err != nil {
		return nil, err
	}

	if cfg.RunMigrations {
		if err := db.RunMigrations(ctx, database.DB); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	runtime, err := Assemble(ctx, cfg, database, logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	return runtime, nil
}

// Assemble wires services and routes over an open database. Close on the
// returned runtime releases the database too.
func Assemble(ctx context.Context, cfg config.Config, database *bun.DB, logger *observability.Logger) (*Runtime, error) {
	codec, err := token.NewCodec(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("init token codec: %w", err)
	}

	hasher := password.NewHasher(password.Options{
		Workers:    cfg.Hasher.Workers,
		QueueDepth: cfg.Hasher.QueueDepth,
		Cost:       cfg.Hasher.Cost,
	})

	users := user.NewRepository(database)
	authService := auth.NewService(users, hasher, codec)
	authHandler := auth.NewHandler(authService, logger)

	todoService := todo.NewService(todo.NewRepository(database), users)
	todoHandler := todo.NewHandler(todoService, logger)

	if cfg.SeedUsername != "" {
		if err := authService.EnsureUser(ctx, cfg.SeedUsername, cfg.SeedPassword); err != nil {
			_ = hasher.Close()
			return nil, fmt.Errorf("seed user: %w", err)
		}
		logger.Info("seed_user_ready", map[string]any{"username": cfg.SeedUsername})
	}

	limiter := auth.NewRateLimiter(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow)
	requireUser := auth.Middleware(authService)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(observability.RequestLogging(logger))
	router.Use(observability.Recover(logger))

	router.Get("/health", healthHandler(database))

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(limiter.Middleware).Post("/sign-up", authHandler.SignUp)
			r.With(limiter.Middleware).Post("/sign-in", authHandler.SignIn)
			r.Post("/refresh", authHandler.Refresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/user/profile", authHandler.Profile)
			r.Put("/user/password", authHandler.ChangePassword)
			r.Route("/todos", todoHandler.Routes)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
	})

	return &Runtime{
		Handler: router,
		Config:  cfg,
		Close: func() error {
			hasherErr := hasher.Close()
			observability.FlushSentry()
			return errors.Join(hasherErr, database.Close())
		},
	}, nil
}

func healthHandler(database *bun.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		writeJSON(w, status, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
