package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/receiptwise/billing-engine/internal/domain/entitlement"
	paymentshandler "github.com/receiptwise/billing-engine/internal/domain/payments/handler"
	paymentsrepo "github.com/receiptwise/billing-engine/internal/domain/payments/repository"
	paymentsservice "github.com/receiptwise/billing-engine/internal/domain/payments/service"
	"github.com/receiptwise/billing-engine/internal/domain/receipts"
	"github.com/receiptwise/billing-engine/internal/domain/reconciliation"
	"github.com/receiptwise/billing-engine/internal/domain/reports"
	subshandler "github.com/receiptwise/billing-engine/internal/domain/subscriptions/handler"
	subsrepo "github.com/receiptwise/billing-engine/internal/domain/subscriptions/repository"
	subsservice "github.com/receiptwise/billing-engine/internal/domain/subscriptions/service"
	"github.com/receiptwise/billing-engine/pkg/cache"
	"github.com/receiptwise/billing-engine/pkg/config"
	"github.com/receiptwise/billing-engine/pkg/cron"
	"github.com/receiptwise/billing-engine/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	SubscriptionsRepo  subsrepo.SubscriptionRepository
	PaymentsRepo       paymentsrepo.PaymentRepository
	ReconciliationRepo reconciliation.Repository
	ReceiptStore       receipts.Store
	EntitlementGate    entitlement.Gate

	// Services
	Invalidator          cache.Invalidator
	Engine               *reconciliation.Engine
	SubscriptionsService *subsservice.Service
	PaymentsService      *paymentsservice.Service
	ReportsService       *reports.Service
	Scheduler            *cron.Scheduler

	// Handlers
	SubscriptionsHandler *subshandler.Handler
	PaymentsHandler      *paymentshandler.Handler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	deps.initRepositories()
	deps.initServices()
	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() {
	d.SubscriptionsRepo = subsrepo.NewPostgresSubscriptionRepository(d.DB.Pool)
	d.PaymentsRepo = paymentsrepo.NewPostgresPaymentRepository(d.DB.Pool)
	d.ReconciliationRepo = reconciliation.NewPostgresRepository(d.DB.Pool)
	d.ReceiptStore = receipts.NewPostgresStore(d.DB.Pool)
	d.EntitlementGate = entitlement.NewPostgresGate(d.DB.Pool)

	d.Logger.Info("repositories initialized")
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() {
	if d.Config.Insights.BaseURL != "" {
		d.Invalidator = cache.NewHTTPInvalidator(d.Config.Insights.BaseURL, d.Logger)
	} else {
		d.Invalidator = cache.NoopInvalidator{}
	}

	d.Engine = reconciliation.NewEngine(d.ReconciliationRepo, d.Invalidator, d.Logger)

	d.SubscriptionsService = subsservice.NewService(d.SubscriptionsRepo, d.PaymentsRepo, d.Engine, d.Invalidator, d.Logger)
	d.PaymentsService = paymentsservice.NewService(d.PaymentsRepo, d.SubscriptionsRepo, d.ReceiptStore, d.Engine, d.Invalidator, d.Logger)
	d.ReportsService = reports.NewService(d.SubscriptionsRepo, d.PaymentsRepo, d.Logger)

	if d.Config.Sweep.Enabled {
		d.Scheduler = cron.NewScheduler(d.PaymentsRepo, d.Config.Sweep.Schedule, d.Config.Sweep.GraceDays, d.Logger)
	}

	d.Logger.Info("services initialized")
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() {
	d.SubscriptionsHandler = subshandler.NewHandler(d.SubscriptionsService, d.ReportsService, d.Logger)
	d.PaymentsHandler = paymentshandler.NewHandler(d.PaymentsService, d.Logger)

	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
