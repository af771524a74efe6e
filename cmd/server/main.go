package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/planhive/backend/api/handler"
	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/internal/config"
	"github.com/planhive/backend/internal/infrastructure/monitor"
	"github.com/planhive/backend/internal/infrastructure/outbox"
	redisInfra "github.com/planhive/backend/internal/infrastructure/redis"
	"github.com/planhive/backend/internal/middleware"
	"github.com/planhive/backend/internal/notify"
	"github.com/planhive/backend/internal/provider"
	"github.com/planhive/backend/internal/router"
	"github.com/planhive/backend/internal/services/lifecycle"
	"github.com/planhive/backend/internal/services/viewhub"
	"github.com/planhive/backend/pkg/httpcontext"
	"github.com/planhive/backend/pkg/logger"
	"github.com/planhive/backend/repository"
	boltRepo "github.com/planhive/backend/repository/bolt"
	memoryRepo "github.com/planhive/backend/repository/memory"
	redisRepo "github.com/planhive/backend/repository/redis"
	eventsUC "github.com/planhive/backend/usecase/events"
	remindersUC "github.com/planhive/backend/usecase/reminders"
	syncUC "github.com/planhive/backend/usecase/sync"
	templatesUC "github.com/planhive/backend/usecase/templates"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
		Service:  cfg.AppName,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	store, pinger, groups := openStore(cfg, manager, zapLogger)

	outboxStore, err := outbox.Open(cfg.Notify.OutboxPath)
	if err != nil {
		zapLogger.Fatal("failed to open notification outbox", zap.Error(err))
	}
	manager.RegisterCloser("outbox", outboxStore)

	mon := monitor.New(pinger, outboxStore, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	notifier := notify.NewService(outboxStore, zapLogger)
	dispatcher := notify.NewDispatcher(outboxStore, notify.LogSender{Logger: zapLogger}, mon, zapLogger, notify.DispatcherConfig{
		Interval:   cfg.Notify.SweepInterval,
		BatchSize:  cfg.Notify.BatchSize,
		MaxRetries: cfg.Notify.MaxRetry,
	})
	dispatcher.Start()
	manager.Register("dispatcher", func(ctx context.Context) error {
		dispatcher.Stop(ctx)
		return nil
	})

	providers := repository.ProviderRegistry{}
	if cfg.Google.Enabled && cfg.Google.CredentialsPath != "" {
		credentials, err := os.ReadFile(cfg.Google.CredentialsPath)
		if err != nil {
			zapLogger.Fatal("failed to read google credentials", zap.Error(err))
		}
		google, err := provider.NewGoogleCalendar(appCtx, credentials, zapLogger)
		if err != nil {
			zapLogger.Fatal("google calendar client failed", zap.Error(err))
		}
		providers[domain.SourceGoogle] = google
	}

	scheduler := remindersUC.New(notifier, groups, zapLogger)
	eventsUseCase := eventsUC.New(store, providers, scheduler, zapLogger)
	templatesUseCase := templatesUC.New(store, zapLogger)

	// One engine per shard family: personal and group entities live in the
	// activities collection, provider-fed events in the calendars collection.
	// The hub unions the two on every read.
	activityEngine := syncUC.NewEngine(store, repository.Activities, zapLogger)
	calendarEngine := syncUC.NewEngine(store, repository.Calendars, zapLogger)
	hub := viewhub.New(activityEngine, calendarEngine, cfg.Sync.WindowSize, zapLogger)
	manager.Register("viewhub", func(ctx context.Context) error {
		hub.Close()
		return nil
	})

	if cfg.ICS.FeedURL != "" {
		go runICSSync(appCtx, cfg, store, zapLogger)
	}

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Events:    apiHandler.NewEventsHandler(eventsUseCase, hub, ctxAdapter, zapLogger),
		Templates: apiHandler.NewTemplatesHandler(templatesUseCase, ctxAdapter, zapLogger),
		Health:    apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.JWTAuth(cfg.JWT.Secret, zapLogger)
	r := router.New(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.Shutdown()
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}

// openStore selects the document store backend and the matching group
// directory. Redis is the only backend with a real group directory; the
// others fall back to the in-memory one.
func openStore(cfg *config.Config, manager *lifecycle.Manager, zapLogger *zap.Logger) (repository.DocumentStore, monitor.Pinger, repository.GroupDirectory) {
	switch cfg.Store.Backend {
	case "redis":
		client, err := redisInfra.NewClient(cfg.Redis)
		if err != nil {
			zapLogger.Fatal("redis connection failed", zap.Error(err))
		}
		manager.RegisterCloser("redis", client)
		store := redisRepo.NewStore(client)
		return store, store, redisRepo.NewGroupDirectory(client)

	case "memory":
		store := memoryRepo.New()
		return store, store, memoryRepo.NewGroupDirectory()

	default:
		store, err := boltRepo.Open(cfg.Store.BoltPath)
		if err != nil {
			zapLogger.Fatal("failed to open document store", zap.Error(err))
		}
		manager.RegisterCloser("docstore", store)
		return store, store, memoryRepo.NewGroupDirectory()
	}
}

// runICSSync periodically mirrors the configured ICS feed into the
// calendars collection.
func runICSSync(ctx context.Context, cfg *config.Config, store repository.DocumentStore, zapLogger *zap.Logger) {
	importer := provider.NewICSImporter(store, zapLogger)

	run := func() {
		importCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		imported, err := importer.ImportFeed(importCtx, cfg.ICS.FeedURL, cfg.ICS.CalendarID)
		if err != nil {
			zapLogger.Warn("ics import failed", zap.Error(err))
			return
		}
		zapLogger.Info("ics feed imported", zap.Int("events", imported))
	}

	run()
	ticker := time.NewTicker(cfg.ICS.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
