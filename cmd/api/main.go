package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xavierca1/ligue-crm/internal/config"
	"github.com/xavierca1/ligue-crm/internal/infra/database"
	"github.com/xavierca1/ligue-crm/internal/infra/http/handlers"
	"github.com/xavierca1/ligue-crm/internal/infra/http/middleware"
	"github.com/xavierca1/ligue-crm/internal/infra/integration/kommo"
	"github.com/xavierca1/ligue-crm/internal/infra/mail"
	"github.com/xavierca1/ligue-crm/internal/infra/queue"
	"github.com/xavierca1/ligue-crm/internal/infra/worker"
	"github.com/xavierca1/ligue-crm/internal/pipeline"
	"github.com/xavierca1/ligue-crm/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDBConnection(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQUser, cfg.RabbitMQPassword, cfg.RabbitMQHost, cfg.RabbitMQPort)
	if err != nil {
		logger.Fatal("rabbitmq unavailable", zap.Error(err))
	}
	defer rabbitMQ.Close()

	// 1. Repositórios
	leadRepo := database.NewLeadRepository(db)
	userRepo := database.NewUserRepository(db)
	producer := queue.NewProducer(rabbitMQ.Ch)

	// 2. Pipeline
	cache := pipeline.NewCache()
	coordinator := pipeline.NewCoordinator(cache, leadRepo,
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithTimeout(cfg.BackendTimeout),
		pipeline.WithPublisher(producer),
		pipeline.WithObserver(func(o pipeline.Outcome) { middleware.RecordMove(o.String()) }),
	)
	defer coordinator.Wait()
	board := pipeline.NewBoard(cache, leadRepo, coordinator, logger.Named("pipeline"))
	if err := board.Refresh(ctx); err != nil {
		logger.Fatal("initial pipeline load failed", zap.Error(err))
	}

	// 3. UseCases
	createLeadUC := usecase.NewCreateLeadUseCase(leadRepo, board, producer, logger)
	updateLeadUC := usecase.NewUpdateLeadUseCase(leadRepo, board, producer, logger)
	deleteLeadUC := usecase.NewDeleteLeadUseCase(leadRepo, board, producer, logger)

	// 4. Workers
	kommoClient := kommo.NewClient(cfg.KommoAPIToken, cfg.KommoBaseURL, cfg.KommoStatusIDs, logger.Named("kommo"))
	mailSender := mail.NewEmailSender(cfg.MailHost, cfg.MailPort, cfg.MailUser, cfg.MailPass, cfg.MailFrom, userRepo, logger.Named("mail"))

	var notifiers []queue.EventHandler
	if cfg.KommoAPIToken != "" {
		notifiers = append(notifiers, instrumented{kommoClient})
	}
	if cfg.MailHost != "" {
		notifiers = append(notifiers, instrumented{mailSender})
	}

	consumeCh, err := rabbitMQ.Conn.Channel()
	if err != nil {
		logger.Fatal("open consumer channel", zap.Error(err))
	}
	eventWorker := queue.NewWorker(consumeCh, leadRepo, logger.Named("worker"), notifiers...)
	refreshWorker := worker.NewCacheRefreshWorker(board, cfg.CacheRefreshInterval, logger.Named("refresh"))
	rateLimiter := handlers.NewRateLimiter(10, time.Minute) // 10 req/min por IP

	// joined before the deferred closes of db and rabbitmq run
	background := newBackground(logger)
	defer background.Wait()
	background.Go("lead-event-worker", func(ctx context.Context) error {
		return eventWorker.Start(ctx, queue.QueueName)
	})
	background.Go("cache-refresh-worker", func(ctx context.Context) error {
		refreshWorker.Start(ctx)
		return nil
	})
	background.Go("rate-limiter-cleanup", func(ctx context.Context) error {
		rateLimiter.Cleanup(ctx)
		return nil
	})
	background.Start(ctx)

	// 5. Handlers
	leadHandler := handlers.NewLeadHandler(createLeadUC, updateLeadUC, deleteLeadUC, board, rateLimiter, logger)
	pipelineHandler := handlers.NewPipelineHandler(board, cfg.BackendTimeout)
	healthHandler := handlers.NewHealthHandler(db, rabbitMQ.Conn, cfg.KommoAPIToken != "")

	// 6. Router
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", handlers.CurrentUserHeader},
	}))
	r.Use(middleware.Metrics)

	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/leads", leadHandler.Routes)
	r.Route("/pipeline", pipelineHandler.Routes)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("ligue-crm api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	background.Wait()
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

// instrumented counts notifier failures per integration.
type instrumented struct {
	queue.EventHandler
}

func (h instrumented) HandleLeadEvent(ctx context.Context, event queue.LeadEvent) error {
	err := h.EventHandler.HandleLeadEvent(ctx, event)
	if err != nil {
		middleware.RecordIntegrationError(h.Name())
	}
	return err
}
