package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/college-portal-api/internal/handler"
	"github.com/noah-isme/college-portal-api/internal/repository"
	"github.com/noah-isme/college-portal-api/internal/service"
	"github.com/noah-isme/college-portal-api/pkg/cache"
	"github.com/noah-isme/college-portal-api/pkg/captcha"
	"github.com/noah-isme/college-portal-api/pkg/config"
	"github.com/noah-isme/college-portal-api/pkg/credential"
	"github.com/noah-isme/college-portal-api/pkg/database"
	"github.com/noah-isme/college-portal-api/pkg/jobs"
	"github.com/noah-isme/college-portal-api/pkg/storage"
)

// application owns the long-lived resources of the API process.
type application struct {
	router  *gin.Engine
	db      *sqlx.DB
	redis   *redis.Client
	cleanup *jobs.Queue
	logger  *zap.Logger
}

func newApplication(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*application, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	app := &application{db: db, logger: logr}

	// The class cache and login throttle degrade to no-ops without Redis.
	if client, err := cache.NewRedis(ctx, cfg.Redis); err != nil {
		logr.Warn("redis unavailable, running without cache and login throttle", zap.Error(err))
	} else {
		app.redis = client
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	users := repository.NewUserRepository(db)
	classes := repository.NewClassRepository(db)
	cacheRepo := repository.NewCacheRepository(app.redis, logr)
	attempts := repository.NewLoginAttemptRepository(app.redis, cfg.LoginThrottle.Window)

	sessions, err := service.NewSessionIssuer(service.SessionConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	credentials := credential.NewManager(cfg.Password.HashCost)
	allocator := service.NewIdentifierAllocator(users, cfg.Allocator.MaxAttempts, metrics, logr)
	lifecycle := service.NewRecordLifecycle(credentials, allocator)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && app.redis != nil)

	store, err := storage.NewLocalStorage(cfg.Storage.Dir)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	signingSecret := cfg.Storage.SignedURLSecret
	if signingSecret == "" {
		signingSecret = cfg.JWT.Secret
	}
	signer := storage.NewSignedURLSigner(signingSecret, cfg.Storage.SignedURLTTL)

	authSvc := service.NewAuthService(users, sessions, credentials, lifecycle, validate, logr, service.AuthOptions{
		Captcha:           captchaVerifier(cfg, logr),
		Throttle:          attempts,
		MaxFailedAttempts: cfg.LoginThrottle.MaxAttempts,
		Metrics:           metrics,
	})
	classSvc := service.NewClassService(classes, cacheSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(users, classSvc, lifecycle, cfg.Allocator.MaxAttempts, metrics, validate, logr)
	fileSvc := service.NewFileService(users, store, signer, metrics, service.FileConfig{
		MaxBytes:     cfg.Storage.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Storage.AllowedMIMEs,
		APIPrefix:    cfg.APIPrefix,
	}, logr)
	studentSvc := service.NewStudentService(users, fileSvc, validate, logr)
	staffSvc := service.NewStaffService(users, lifecycle, validate, logr)
	exportSvc := service.NewExportService(classSvc, users, logr)

	app.cleanup = jobs.NewQueue(service.FileCleanupJobType, fileSvc.HandleCleanup, jobs.QueueConfig{
		Workers:    cfg.Storage.CleanupWorkers,
		MaxRetries: cfg.Storage.CleanupRetries,
		Observer:   fileSvc.ObserveCleanup,
		Logger:     logr,
	})
	app.cleanup.Start(context.Background())
	fileSvc.UseCleanupQueue(app.cleanup)

	checks := map[string]handler.ReadinessCheck{
		"postgres": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}
	if app.redis != nil {
		client := app.redis
		checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx, client) }
	}

	handlers := handler.Handlers{
		Auth:     handler.NewAuthHandler(authSvc, handler.CookieSettings{Name: cfg.Cookie.Name, Domain: cfg.Cookie.Domain}),
		Classes:  handler.NewClassHandler(classSvc, exportSvc),
		Students: handler.NewStudentHandler(studentSvc, enrollmentSvc, fileSvc, cfg.Storage.MaxFileSizeBytes),
		Staff:    handler.NewStaffHandler(staffSvc),
		Files:    handler.NewFileHandler(fileSvc),
		Metrics:  handler.NewMetricsHandler(metrics, checks),
	}

	app.router = handler.NewRouter(handler.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		CookieName:     cfg.Cookie.Name,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}, handlers, sessions, metrics, logr)

	return app, nil
}

// Close drains the cleanup queue before releasing connections.
func (a *application) Close() {
	if a.cleanup != nil {
		a.cleanup.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close postgres", zap.Error(err))
		}
	}
}

// captchaVerifier returns the external verifier, or AllowAll outside production when no secret is set.
func captchaVerifier(cfg *config.Config, logr *zap.Logger) captcha.Verifier {
	if cfg.Captcha.Secret == "" && cfg.Env != config.EnvProduction {
		logr.Warn("CAPTCHA_SECRET not set, login CAPTCHA checks are disabled")
		return captcha.AllowAll{}
	}
	return captcha.NewHTTPVerifier(cfg.Captcha.Secret, cfg.Captcha.VerifyURL, cfg.Captcha.Timeout)
}
