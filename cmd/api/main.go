package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/staffgate/internal/auth"
	"github.com/BradenHooton/staffgate/internal/background"
	"github.com/BradenHooton/staffgate/internal/config"
	"github.com/BradenHooton/staffgate/internal/database"
	"github.com/BradenHooton/staffgate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/staffgate/internal/middleware"
	"github.com/BradenHooton/staffgate/internal/repositories"
	"github.com/BradenHooton/staffgate/internal/routes"
	"github.com/BradenHooton/staffgate/internal/services"
	pkghttp "github.com/BradenHooton/staffgate/pkg/http"
	pkglogger "github.com/BradenHooton/staffgate/pkg/logger"
	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("throttle_store", cfg.Throttle.StoreDriver),
	)

	// Users always live in Postgres
	db, err := database.NewConnection(context.Background(), &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	healthChecks := map[string]handlers.HealthChecker{"database": db}

	// Throttle store
	var throttleStore services.ThrottleStore
	switch cfg.Throttle.StoreDriver {
	case config.StoreDriverBadger:
		bdb, err := database.OpenBadger(&cfg.Badger, logger)
		if err != nil {
			logger.Error("failed to open badger store", slog.Any("error", err))
			os.Exit(1)
		}
		defer bdb.Close()

		throttleStore = repositories.NewBadgerThrottleStore(bdb, cfg.Throttle.InactivityTTL)
		healthChecks["throttle_store"] = badgerHealth(bdb)
	default:
		throttleStore = repositories.NewThrottleRepository(db, cfg.Throttle.InactivityTTL)
	}

	throttle := services.NewLoginThrottle(throttleStore, services.ThrottlePolicy{
		CaptchaThreshold: cfg.Throttle.CaptchaThreshold,
		LockThreshold:    cfg.Throttle.LockThreshold,
		LockDuration:     cfg.Throttle.LockDuration,
		InactivityTTL:    cfg.Throttle.InactivityTTL,
		Delays:           []time.Duration{cfg.Throttle.FirstDelay, cfg.Throttle.SecondDelay},
	}, logger)

	// CAPTCHA provider
	var captcha services.CaptchaVerifier = services.DisabledCaptchaVerifier{}
	if cfg.Captcha.Enabled {
		captcha = services.NewHTTPCaptchaVerifier(&cfg.Captcha, logger)
	} else {
		logger.Warn("captcha verification disabled; gated accounts cannot log in until unlocked")
	}

	// Lockout notifications
	var notifier services.LockoutNotifier = services.NoopLockoutNotifier{}
	if cfg.Email.Enabled {
		sesNotifier, err := services.NewSESLockoutNotifier(context.Background(), cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories and services
	userRepo := repositories.NewUserRepository(db)
	auditLogger := pkglogger.NewAuditLogger(logger)

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
		userRepo,
	)

	userService := services.NewUserService(userRepo, logger, auditLogger)
	authService := services.NewAuthService(
		userRepo,
		throttle,
		captcha,
		auth.NewTimingDelay(cfg.Throttle.DelayJitter),
		notifier,
		tokenManager,
		logger,
		auditLogger,
	)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userService, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Handlers{
		Auth:          handlers.NewAuthHandler(authService, ipConfig),
		ThrottleAdmin: handlers.NewThrottleAdminHandler(throttle, auditLogger),
		Health:        handlers.NewHealthHandler(healthChecks),
	}, tokenManager, userRepo, middlewareCustom.RateLimitConfig{
		RequestsPerMinute: cfg.Auth.LoginRequestsPerMinute,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start inactivity sweep
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	cleanupManager := background.NewCleanupManager(throttle, logger, cfg.Throttle.SweepInterval)
	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		return
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userService *services.UserService, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	created, err := userService.EnsureAdmin(ctx, adminEmail, adminPassword, os.Getenv("ADMIN_NAME"))
	if err != nil {
		return fmt.Errorf("failed to ensure admin user: %w", err)
	}
	if created {
		logger.Info("admin user created successfully")
	} else {
		logger.Info("admin user already exists")
	}
	return nil
}

func badgerHealth(bdb *badger.DB) handlers.HealthCheckFunc {
	return func(ctx context.Context) error {
		if bdb.IsClosed() {
			return errors.New("badger store closed")
		}
		return nil
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
