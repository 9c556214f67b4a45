package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/daylihorse/nour-hub/internal/config"
	"github.com/daylihorse/nour-hub/internal/demo"
	"github.com/daylihorse/nour-hub/internal/features"
	"github.com/daylihorse/nour-hub/internal/handler"
	"github.com/daylihorse/nour-hub/internal/handler/middleware"
	"github.com/daylihorse/nour-hub/internal/logger"
	"github.com/daylihorse/nour-hub/internal/metrics"
	"github.com/daylihorse/nour-hub/internal/migration"
	"github.com/daylihorse/nour-hub/internal/preferences"
	"github.com/daylihorse/nour-hub/internal/repository"
	"github.com/daylihorse/nour-hub/internal/repository/postgres"
	"github.com/daylihorse/nour-hub/internal/service"
	"github.com/daylihorse/nour-hub/internal/tenancy"
	"github.com/daylihorse/nour-hub/pkg/blacklist"
	"github.com/daylihorse/nour-hub/pkg/email"
	"github.com/daylihorse/nour-hub/pkg/hash"
	"github.com/daylihorse/nour-hub/pkg/jwt"
	"github.com/daylihorse/nour-hub/pkg/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "nour-hub")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db, err := initDB(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("error closing database connection", zap.Error(err))
		}
	}()
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		if err := migration.RunMigrations(db.DB); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		log.Info("migrations applied")
	}

	redisClient, err := initRedis(cfg)
	if err != nil {
		log.Fatal("failed to initialize redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Warn("error closing redis connection", zap.Error(err))
		}
	}()
	log.Info("redis connection established", zap.String("addr", cfg.Redis.Addr()))

	privateKey, publicKey, err := loadRSAKeys(cfg)
	if err != nil {
		log.Fatal("failed to load RSA keys", zap.Error(err))
	}

	tokenService, err := jwt.NewTokenService(
		privateKey,
		publicKey,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
		cfg.JWT.Issuer,
	)
	if err != nil {
		log.Fatal("failed to initialize token service", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	validate := validator.NewValidator()
	emailService := initEmail(cfg, log)

	// Repositories
	userRepo := postgres.NewUserRepository(db)
	tenantRepo := postgres.NewTenantRepository(db)
	tenantUserRepo := postgres.NewTenantUserRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)
	invitationRepo := postgres.NewInvitationRepository(db)

	// Services
	resolver := features.NewResolver(
		features.DefaultCatalog(),
		features.WithDefaultEnabled(cfg.Features.DefaultEnabled),
	)
	authService := service.NewAuthService(
		userRepo,
		sessionRepo,
		tokenService,
		blacklist.NewTokenBlacklist(redisClient),
		hash.NewHasher(hash.DefaultParams),
		emailService,
		cfg.Auth,
		m,
		log,
	)
	tenantService := service.NewTenantService(
		tenantRepo,
		tenantUserRepo,
		userRepo,
		invitationRepo,
		resolver,
		emailService,
		log,
	)

	// Device access state
	prefs := preferences.NewRedisStore(redisClient, cfg.Preferences.TTL)
	deps := tenancy.Deps{
		Auth:     authService,
		Tenants:  tenantService,
		Prefs:    prefs,
		Resolver: resolver,
		Metrics:  m,
		Logger:   log,
	}
	if cfg.Demo.Enabled {
		deps.Demo = demo.NewDirectory()
	}
	registry, err := tenancy.NewRegistry(cfg.Preferences.RegistrySize, deps)
	if err != nil {
		log.Fatal("failed to create store registry", zap.Error(err))
	}
	authService.OnAuthStateChange(registry.HandleAuthEvent)
	authService.OnAuthStateChange(func(change service.AuthStateChange) {
		log.Debug("auth state changed",
			zap.String("event", string(change.Event)),
			zap.String("user_id", change.UserID.String()),
		)
	})

	handlers := handler.Handlers{
		Auth:     handler.NewAuthHandler(authService, registry, validate),
		User:     handler.NewUserHandler(authService, tenantService),
		Password: handler.NewPasswordHandler(authService, validate),
		Session:  handler.NewSessionHandler(authService),
		Context:  handler.NewContextHandler(registry, authService, prefs, resolver, validate, log),
		Feature:  handler.NewFeatureHandler(resolver.Catalog()),
		Tenant:   handler.NewTenantHandler(tenantService, authService, registry, validate, log),
		Health:   handler.NewHealthHandler(db, redisClient),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Nour Hub",
		DisableStartupMessage: true,
		ErrorHandler:          handler.ErrorHandler(log),
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
	})

	app.Use(middleware.RecoveryMiddleware(log))
	app.Use(middleware.LoggerMiddleware(log))
	app.Use(middleware.MetricsMiddleware(m))
	app.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	handler.SetupRoutes(app, handlers, authService, tenantService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go pruneSessions(ctx, sessionRepo, cfg.Auth.SessionCleanupInterval, log)

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Info("server starting",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment),
			zap.Bool("demo", cfg.Demo.Enabled),
		)
		if err := app.Listen(addr); err != nil {
			log.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}

// initDB opens the PostgreSQL pool, retrying while the database starts up
func initDB(cfg *config.Config, log *zap.Logger) (*sqlx.DB, error) {
	dsn := cfg.Database.DSN()

	var db *sqlx.DB
	var err error

	maxRetries := 5
	retryInterval := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			break
		}

		log.Warn("failed to connect to database",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Error(err),
		)
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// initEmail picks the configured provider. Any failure degrades to the
// no-op sender so the service still starts.
func initEmail(cfg *config.Config, log *zap.Logger) email.EmailService {
	if !cfg.Email.Enabled {
		log.Info("email disabled (set EMAIL_ENABLED=true to enable)")
		return email.NoopEmailService{}
	}

	emailConfig := &email.EmailConfig{
		APIKey:     cfg.Email.APIKey,
		FromEmail:  cfg.Email.FromEmail,
		FromName:   cfg.Email.FromName,
		WebhookURL: cfg.Email.WebhookURL,
		AppURL:     cfg.Email.AppURL,
		Timeout:    cfg.Email.Timeout,
	}

	var (
		svc email.EmailService
		err error
	)
	switch cfg.Email.Provider {
	case "webhook":
		svc, err = email.NewWebhookEmailService(emailConfig, log)
	default:
		svc, err = email.NewResendEmailService(emailConfig, log)
	}
	if err != nil {
		log.Warn("failed to initialize email service, email disabled",
			zap.String("provider", cfg.Email.Provider),
			zap.Error(err),
		)
		return email.NoopEmailService{}
	}

	log.Info("email service initialized", zap.String("provider", cfg.Email.Provider))
	return svc
}

// pruneSessions deletes expired sessions until ctx is done
func pruneSessions(ctx context.Context, sessions repository.SessionRepository, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx)
			if err != nil {
				log.Warn("failed to prune expired sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("pruned expired sessions", zap.Int64("count", n))
			}
		}
	}
}

func loadRSAKeys(cfg *config.Config) ([]byte, []byte, error) {
	privateKey, err := os.ReadFile(cfg.JWT.PrivateKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read private key file: %w", err)
	}

	publicKey, err := os.ReadFile(cfg.JWT.PublicKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read public key file: %w", err)
	}

	if len(privateKey) == 0 {
		return nil, nil, fmt.Errorf("private key file is empty")
	}
	if len(publicKey) == 0 {
		return nil, nil, fmt.Errorf("public key file is empty")
	}

	return privateKey, publicKey, nil
}
