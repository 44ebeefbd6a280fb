// Package bootstrap wires config into repositories, adapters and services. Both the
// HTTP server and the queue CLI start from here.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/labstack/gommon/log"
	"gorm.io/gorm"

	"github.com/bryanwahyu/sitesafe/internal/application"
	appai "github.com/bryanwahyu/sitesafe/internal/application/ai"
	appauth "github.com/bryanwahyu/sitesafe/internal/application/auth"
	appbilling "github.com/bryanwahyu/sitesafe/internal/application/billing"
	appqueue "github.com/bryanwahyu/sitesafe/internal/application/queue"
	appreports "github.com/bryanwahyu/sitesafe/internal/application/reports"
	appuploads "github.com/bryanwahyu/sitesafe/internal/application/uploads"
	"github.com/bryanwahyu/sitesafe/internal/config"
	domauth "github.com/bryanwahyu/sitesafe/internal/domain/auth"
	"github.com/bryanwahyu/sitesafe/internal/infra/ai/openai"
	"github.com/bryanwahyu/sitesafe/internal/infra/billing/stripe"
	"github.com/bryanwahyu/sitesafe/internal/infra/cache"
	"github.com/bryanwahyu/sitesafe/internal/infra/db"
	"github.com/bryanwahyu/sitesafe/internal/infra/extract"
	"github.com/bryanwahyu/sitesafe/internal/infra/extract/tesseract"
	"github.com/bryanwahyu/sitesafe/internal/infra/mail"
	"github.com/bryanwahyu/sitesafe/internal/infra/storage"
)

// App holds the wired services plus the handles that need closing.
type App struct {
	DB      *gorm.DB
	Store   *storage.Store
	Cache   *cache.SessionCache
	Auth    *appauth.Service
	Uploads *appuploads.Service
	Queue   *appqueue.Service
	Reports *appreports.Service
	Billing *appbilling.Service
}

// SetLogLevel applies log.level (debug, info, warn, error, off) to the global logger.
func SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		log.SetLevel(log.DEBUG)
	case "warn", "warning":
		log.SetLevel(log.WARN)
	case "error":
		log.SetLevel(log.ERROR)
	case "off":
		log.SetLevel(log.OFF)
	default:
		log.SetLevel(log.INFO)
	}
	log.SetHeader(`${time_rfc3339} ${level} ${short_file}:${line}`)
}

// OpenDB connects and migrates the configured database.
func OpenDB(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	gdb, err := db.Open(ctx, cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("%s connect: %w", cfg.Database.Driver, err)
	}
	if err := db.Migrate(gdb); err != nil {
		_ = db.Close(gdb)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return gdb, nil
}

// New connects every collaborator and builds the services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	gdb, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app := &App{DB: gdb}

	app.Store, err = storage.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("minio init: %w", err)
	}

	var sessionCache domauth.SessionCache
	if cfg.Redis.Addr != "" {
		app.Cache, err = cache.NewSessionCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// sessions still work from the database
			log.Warnf("redis unavailable, session cache disabled: %v", err)
		} else {
			sessionCache = app.Cache
		}
	}

	var mailer domauth.Mailer = &mail.LogMailer{Logger: log.New("mail")}
	if cfg.SMTP.Host != "" {
		mailer = &mail.SMTPMailer{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}
	} else {
		log.Warn("smtp.host not set, magic links are written to the log")
	}

	var ocr extract.ImageReader
	if !cfg.OCR.Disabled {
		ocr = tesseract.New(cfg.OCR.Language)
	}

	clock := application.SystemClock{}
	userRepo := db.NewUserRepository(gdb)
	uploadRepo := db.NewUploadRepository(gdb)
	reportRepo := db.NewReportRepository(gdb)

	app.Billing = &appbilling.Service{
		Repo:      db.NewSubscriptionRepository(gdb),
		Users:     userRepo,
		Provider:  stripe.New(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret),
		Clock:     clock,
		BaseURL:   cfg.Server.BaseURL,
		TrialDays: cfg.Stripe.TrialDays,
	}
	app.Auth = &appauth.Service{
		Users:      userRepo,
		Sessions:   db.NewSessionRepository(gdb),
		Cache:      sessionCache,
		Mailer:     mailer,
		Clock:      clock,
		Secret:     []byte(cfg.Auth.Secret),
		BaseURL:    cfg.Server.BaseURL,
		LinkTTL:    cfg.MagicLinkTTL(),
		SessionTTL: cfg.SessionTTL(),
	}
	app.Uploads = &appuploads.Service{
		Repo:                uploadRepo,
		Files:               app.Store,
		Clock:               clock,
		Billing:             app.Billing,
		RequireSubscription: cfg.Stripe.RequireSubscription,
	}
	app.Queue = &appqueue.Service{
		Uploads:   uploadRepo,
		Files:     app.Store,
		Extractor: extract.New(ocr),
		Reports:   reportRepo,
		Generator: appai.NewService(openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)),
		Clock:     clock,
	}
	app.Reports = appreports.NewService(reportRepo)
	return app, nil
}

// Close releases the database and cache connections.
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			log.Warnf("redis close: %v", err)
		}
	}
	if a.DB != nil {
		if err := db.Close(a.DB); err != nil {
			log.Warnf("db close: %v", err)
		}
	}
}
