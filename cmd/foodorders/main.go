package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/food-orders/foodorders/internal/accounts"
	"github.com/food-orders/foodorders/internal/app"
	"github.com/food-orders/foodorders/internal/docstore"
	"github.com/food-orders/foodorders/internal/identity"
	"github.com/food-orders/foodorders/internal/linking"
	"github.com/food-orders/foodorders/internal/menu"
	"github.com/food-orders/foodorders/internal/navigation"
	"github.com/food-orders/foodorders/internal/observability"
	"github.com/food-orders/foodorders/internal/orders"
	"github.com/food-orders/foodorders/internal/platform/cache"
	"github.com/food-orders/foodorders/internal/platform/db"
	"github.com/food-orders/foodorders/internal/restaurants"
	"github.com/food-orders/foodorders/internal/roles"
	"github.com/food-orders/foodorders/internal/session"
	"github.com/food-orders/foodorders/internal/shared"
	"github.com/food-orders/foodorders/internal/storage"
	"github.com/food-orders/foodorders/internal/view"
	"github.com/food-orders/foodorders/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if cfg.AutoMigrate {
		if err := docstore.Migrate(cfg.PGDSN); err != nil {
			logger.Error("migrate document store", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, ApplicationName: "foodorders-web"})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()
	store := docstore.NewPostgres(dbpool)

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "foodorders_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	uploads, err := storage.NewFilesystem(cfg.StorageDir, cfg.StorageURLPrefix)
	if err != nil {
		logger.Error("prepare storage", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := cfg.Redis().Queue()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	broker := identity.NewBroker(redisClient, logger)
	if err := broker.Listen(ctx); err != nil {
		logger.Error("subscribe auth state", slog.Any("error", err))
		os.Exit(1)
	}
	identityService := identity.NewService(store, redisClient, broker, identity.Config{
		SessionTTL:  cfg.SessionTTL,
		ResetSecret: []byte(cfg.ResetTokenSecret),
		ResetTTL:    cfg.ResetTokenTTL,
	})

	registry := session.NewRegistry(identityService, roles.NewResolver(store, logger), session.RegistryConfig{
		IdleTTL:  cfg.SessionIdleTTL,
		Observer: metrics,
		Gauge:    metrics,
	}, logger)
	go registry.Run(ctx)
	defer registry.Close()

	catalog := cache.NewVersioned(redisClient, "foodorders:restaurants", cfg.CatalogCacheTTL)
	if err := catalog.ListenForInvalidation(ctx); err != nil {
		logger.Warn("subscribe catalog invalidation", slog.Any("error", err))
	}

	accountService := accounts.NewService(store, identityService, jobClient, cfg.PublicBaseURL, logger)
	restaurantService := restaurants.NewService(store, identityService, uploads, jobClient, catalog, logger)
	menuService := menu.NewService(store, uploads, jobClient, logger)
	orderService := orders.NewService(store, menuService, restaurantService, logger)

	accountHandler := accounts.NewHandler(logger, accountService, restaurantService, templates, sessionManager, registry, csrfManager)
	linkingHandler := linking.NewHandler(linking.Config{
		ClientID:     cfg.AmazonClientID,
		ClientSecret: cfg.AmazonClientSecret,
		RedirectURL:  cfg.AmazonRedirectURL(),
	}, accountService, logger)
	if linkingHandler != nil {
		accountHandler.EnableAmazon()
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Gate:               navigation.NewGate(registry, templates, csrfManager, cfg.RoleResolveWait, logger),
		Metrics:            metrics,
		AccountsHandler:    accountHandler,
		LinkingHandler:     linkingHandler,
		RestaurantsHandler: restaurants.NewHandler(logger, restaurantService, templates, csrfManager),
		MenuHandler:        menu.NewHandler(logger, menuService, restaurantService, templates, csrfManager),
		OrdersHandler:      orders.NewHandler(logger, orderService, menuService, restaurantService, accountService, templates, csrfManager),
		JobHandler:         jobs.NewHandler(inspector, logger),
		UploadsPrefix:      uploads.Prefix(),
		UploadsHandler:     uploads.Handler(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
