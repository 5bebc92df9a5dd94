package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "remittance-engine/docs"
	"remittance-engine/internal/config"
	"remittance-engine/internal/domain"
	"remittance-engine/internal/handler"
	"remittance-engine/internal/lock"
	"remittance-engine/internal/matcher"
	"remittance-engine/internal/middleware"
	"remittance-engine/internal/platform/messaging"
	"remittance-engine/internal/platform/persistence"
	"remittance-engine/internal/repository"
	"remittance-engine/internal/service"
	"remittance-engine/pkg/logger"
)

// @title Remittance Reconciliation API
// @version 1.0
// @description API for matching bank transactions to invoices, payments and remittances
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@remittance-engine.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

type handlers struct {
	candidates       *handler.CandidateHandler
	reconciliation   *handler.ReconciliationHandler
	remittances      *handler.RemittanceHandler
	bankTransactions *handler.BankTransactionHandler
}

// closer runs on shutdown in reverse order of registration
type closer func(ctx context.Context) error

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Load configuration
	cfg, err := config.Load("remittance")
	if err != nil {
		// logger is not initialized yet
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.LogLevel)
	log.WithField("store_driver", cfg.App.StoreDriver).Info("Starting Remittance Reconciliation Service")

	var closers []closer

	store, storeClose, err := openStore(appCtx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize voucher store")
	}
	if storeClose != nil {
		closers = append(closers, storeClose)
	}

	review, reviewClose, err := openReview(appCtx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize review log")
	}
	if reviewClose != nil {
		closers = append(closers, reviewClose)
	}

	var events service.EventPublisher = messaging.NoopProducer{}
	if cfg.Kafka.Enabled {
		producer := messaging.NewEventProducer(cfg.Kafka, log)
		events = producer
		closers = append(closers, func(context.Context) error { return producer.Close() })
		log.WithField("topic", cfg.Kafka.EventsTopic).Info("Kafka event producer initialized")
	}

	engine, err := matcher.NewCandidateEngine(store.Candidates(), &matcher.ExactAmountStrategy{}, cfg.Engine.CandidatePoolSize, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize candidate engine")
	}
	defer engine.Release()

	// Initialize services
	locks := lock.NewKeyed(cfg.Engine.LockTimeout)
	synchronizer := service.NewSettlementSynchronizer(store, log)
	reconService := service.NewReconciliationService(store, engine, synchronizer, service.DefaultResolvers(), locks, review, events, cfg.Engine.OperationTimeout, log)
	remittanceService := service.NewRemittanceService(store, synchronizer, locks, review, events, cfg.Engine.OperationTimeout, log)
	bankTxService := service.NewBankTransactionService(store, log)

	// Initialize handlers
	router := setupRouter(log, handlers{
		candidates:       handler.NewCandidateHandler(reconService, log),
		reconciliation:   handler.NewReconciliationHandler(reconService, log),
		remittances:      handler.NewRemittanceHandler(remittanceService, log),
		bankTransactions: handler.NewBankTransactionHandler(bankTxService, log),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		log.WithField("address", server.Addr).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.WithError(err).Error("Server error occurred")
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error during server shutdown")
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](shutdownCtx); err != nil {
			log.WithError(err).Error("Error releasing resource")
		}
	}

	log.Info("Server shutdown completed")
}

func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (domain.Store, closer, error) {
	if cfg.App.StoreDriver == config.StoreDriverMemory {
		log.Warn("Using in-memory voucher store, data is lost on restart")
		return repository.NewMemoryStore(), nil, nil
	}

	if err := persistence.RunMigrations(cfg.Database.URL(), cfg.Database.MigrationsPath); err != nil {
		return nil, nil, err
	}

	db, err := persistence.ConnectPostgres(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Database connection established")

	return repository.NewPostgresStore(db, log), func(context.Context) error { return db.Close() }, nil
}

func openReview(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (domain.ReviewRepository, closer, error) {
	if !cfg.Mongo.Enabled {
		return repository.NewMemoryReviewRepository(), nil, nil
	}

	mongoDB, err := persistence.ConnectMongo(ctx, cfg.Mongo, log)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewReviewRepository(mongoDB.Database(), log), mongoDB.Close, nil
}

func setupRouter(log logrus.FieldLogger, h handlers) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CorrelationID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.ErrorHandler(log))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/candidates", h.candidates.ListCandidates)
		v1.POST("/reconcile", h.reconciliation.Reconcile)
		v1.GET("/bank-transactions/:id", h.bankTransactions.GetBankTransaction)

		remittances := v1.Group("/remittances")
		{
			remittances.POST("/totals", h.remittances.RecalculateTotals)
			remittances.GET("/:id", h.remittances.GetRemittance)
			remittances.POST("/:id/sync", h.remittances.SyncSettlement)
			remittances.POST("/:id/unreconcile", h.remittances.Unreconcile)
			remittances.POST("/:id/totals", h.remittances.RecomputeTotals)
			remittances.GET("/:id/review", h.remittances.ListReview)
		}
	}

	return router
}
