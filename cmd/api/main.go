package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"

	"github.com/bryanwahyu/sitesafe/internal/bootstrap"
	"github.com/bryanwahyu/sitesafe/internal/config"
	"github.com/bryanwahyu/sitesafe/internal/infra/httpserver"
	"github.com/bryanwahyu/sitesafe/internal/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info(".env not found, using environment")
	}

	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	bootstrap.SetLogLevel(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	// init db, storage, services
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init error: %v", err)
	}
	defer app.Close()

	checkers := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: app.DB},
		"storage":  middleware.CheckFunc(app.Store.Ping),
	}
	if app.Cache != nil {
		checkers["redis"] = middleware.CheckFunc(app.Cache.Ping)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate)
	limiter.TrustProxy = cfg.Server.TrustProxyHeaders
	defer limiter.Stop()

	prices := make([]httpserver.Price, 0, len(cfg.Stripe.Prices))
	for _, p := range cfg.Stripe.Prices {
		prices = append(prices, httpserver.Price{Plan: p.Plan, PriceID: p.PriceID, Label: p.Label})
	}

	// init router
	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(httpserver.Deps{
		Auth:           app.Auth,
		Uploads:        app.Uploads,
		Queue:          app.Queue,
		Reports:        app.Reports,
		Billing:        app.Billing,
		Health:         checkers,
		Limiter:        limiter,
		Prices:         prices,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SecureCookies:  cfg.Server.SecureCookies,
		QueueSecret:    cfg.Queue.Secret,
	}))

	if cfg.Queue.Secret == "" {
		log.Warn("queue.secret not set, POST /api/queue/process is open")
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// run server
	go func() {
		log.Infof("server listening on %s (%s)", addr, cfg.Server.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Errorf("shutdown error: %v", err)
	}
}
