package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tmcarvalho/gatehouse/internal/auth"
	"github.com/tmcarvalho/gatehouse/internal/background"
	"github.com/tmcarvalho/gatehouse/internal/clock"
	"github.com/tmcarvalho/gatehouse/internal/config"
	"github.com/tmcarvalho/gatehouse/internal/database"
	"github.com/tmcarvalho/gatehouse/internal/handlers"
	middlewareCustom "github.com/tmcarvalho/gatehouse/internal/middleware"
	"github.com/tmcarvalho/gatehouse/internal/models"
	"github.com/tmcarvalho/gatehouse/internal/ratelimit"
	"github.com/tmcarvalho/gatehouse/internal/repositories"
	"github.com/tmcarvalho/gatehouse/internal/routes"
	"github.com/tmcarvalho/gatehouse/internal/services"
	"github.com/tmcarvalho/gatehouse/internal/sessions"
	pkgauth "github.com/tmcarvalho/gatehouse/pkg/auth"
	pkglogger "github.com/tmcarvalho/gatehouse/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	userRepo := repositories.NewUserRepository(db)

	clk := clock.Real{}

	// Limiter and session state live in Redis when configured, falling
	// back to process memory for single-instance deployments
	var (
		limitStore   ratelimit.Store
		sessionStore sessions.Store
	)
	pendingStore := services.NewMemoryPendingLoginStore()
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisClient.Close()
		limitStore = ratelimit.NewRedisStore(redisClient)
		sessionStore = sessions.NewRedisStore(redisClient)
		logger.Info("using redis for limiter and session state", slog.String("addr", cfg.Redis.Addr))
	} else {
		limitStore = ratelimit.NewMemoryStore()
		sessionStore = sessions.NewMemoryStore()
	}

	presets := cfg.RateLimit.Presets()
	metrics := ratelimit.NewMetrics()
	limiter, err := ratelimit.NewLimiter(limitStore, presets, clk,
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(metrics),
	)
	if err != nil {
		logger.Error("failed to build rate limiter", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := pkglogger.NewAuditLogger(logger)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.Auth.TimingBaseMs,
		RandomDelayMs:  cfg.Auth.TimingRandomMs,
		DelayOnSuccess: cfg.Auth.TimingOnSuccess,
	})

	var emailSender services.EmailSender
	if cfg.Email.Enabled {
		emailSender, err = services.NewAWSSESEmailSender(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email sender", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		emailSender = services.NewLogEmailSender(logger)
	}

	authService := services.NewAuthService(
		userRepo,
		pendingStore,
		sessionStore,
		emailSender,
		clk,
		timingDelay,
		logger,
		auditLogger,
		services.AuthConfig{
			CodeTTL:      cfg.Auth.CodeTTL,
			CodeAttempts: cfg.Auth.CodeAttempts,
			SessionTTL:   cfg.Auth.SessionTTL,
			EmailTimeout: cfg.Auth.EmailTimeout,
		},
	)

	cookieConfig := auth.CookieConfig{
		Domain: cfg.Auth.CookieDomain,
		Secure: cfg.Server.Env == "production",
	}

	authHandler := handlers.NewAuthHandler(authService, limiter, cookieConfig, logger)
	userHandler := handlers.NewUserHandler()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, userHandler, authService)

	router.Handle("/metrics", promhttp.Handler())

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Background eviction: limiter entries past retention, plus expired
	// sessions and pending logins
	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	sweeper := ratelimit.NewSweeper(limitStore, clk, cfg.RateLimit.SweepInterval, ratelimit.RetentionFor(presets), logger, metrics)
	go sweeper.Start(backgroundCtx)

	expiringStores := map[string]background.ExpiringStore{
		"pending_logins": pendingStore,
	}
	if memSessions, ok := sessionStore.(*sessions.MemoryStore); ok {
		expiringStores["sessions"] = memSessions
	}
	cleanupManager := background.NewCleanupManager(expiringStores, clk, logger, cfg.Auth.CleanupInterval)
	go cleanupManager.Start(backgroundCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	backgroundCancel()
	sweeper.Stop()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.User{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Name:         "Admin",
		Role:         "admin",
		Status:       "active",
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
