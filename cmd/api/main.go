package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sessionbill/sessionbill-backend/api/controllers"
	"github.com/sessionbill/sessionbill-backend/api/routes"
	"github.com/sessionbill/sessionbill-backend/internal/clients"
	"github.com/sessionbill/sessionbill-backend/internal/invoices"
	"github.com/sessionbill/sessionbill-backend/internal/profile"
	"github.com/sessionbill/sessionbill-backend/internal/sessions"
	"github.com/sessionbill/sessionbill-backend/internal/templates"
	"github.com/sessionbill/sessionbill-backend/pkg/config"
	"github.com/sessionbill/sessionbill-backend/pkg/db"
	"github.com/sessionbill/sessionbill-backend/pkg/logger"
	"github.com/sessionbill/sessionbill-backend/pkg/metrics"
	"github.com/sessionbill/sessionbill-backend/pkg/migrate"
	pkgredis "github.com/sessionbill/sessionbill-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	// Redis backs the invoice idempotency guard and the write rate limiter,
	// so the API still runs without it.
	var cachePinger controllers.Pinger
	var idempotencyStore pkgredis.IdempotencyStore
	var rateLimiter *pkgredis.Client
	if cfg.Redis.Enabled() {
		redisClient, redisErr := pkgredis.New(context.Background(), cfg.Redis)
		if redisErr != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", redisErr)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		cachePinger = redisClient
		idempotencyStore = redisClient
		rateLimiter = redisClient
	} else {
		logg.Warn(context.Background(), "redis disabled, idempotency and rate limit guards off")
	}

	clientsRepo := clients.NewRepository(dbClient.DB())
	sessionsRepo := sessions.NewRepository(dbClient.DB())
	invoicesRepo := invoices.NewRepository(dbClient.DB())
	profileRepo := profile.NewRepository(dbClient.DB())

	clientsService, err := clients.NewService(clientsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create clients service", err)
		os.Exit(1)
	}

	sessionsService, err := sessions.NewService(sessionsRepo, clientsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create sessions service", err)
		os.Exit(1)
	}

	templatesService, err := templates.NewService(sessionsRepo, clientsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create templates service", err)
		os.Exit(1)
	}

	profileService, err := profile.NewService(profileRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create profile service", err)
		os.Exit(1)
	}

	renderer, err := invoices.NewFileRenderer(cfg.Invoicing.DocumentsDir)
	if err != nil {
		logg.Error(context.Background(), "failed to prepare invoice documents dir", err)
		os.Exit(1)
	}

	billingMetrics := metrics.NewBillingMetrics(prometheus.DefaultRegisterer)

	invoicesService, err := invoices.NewService(
		dbClient,
		invoicesRepo,
		clientsRepo,
		profileRepo,
		renderer,
		cfg.Invoicing,
		logg,
		billingMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create invoices service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(cfg, logg, dbClient, cachePinger, idempotencyStore, rateLimiter, routes.Services{
		Clients:   clientsService,
		Sessions:  sessionsService,
		Templates: templatesService,
		Invoices:  invoicesService,
		Profile:   profileService,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logg.Info(logg.WithField(ctx, "signal", sig.String()), "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
