package cmd

import (
	"context"
	"fmt"
	"time"

	"chamapool/config"
	"chamapool/database"
	"chamapool/events"
	"chamapool/payments"
	"chamapool/repository"
	"chamapool/scheduler"
	"chamapool/service"

	log "github.com/sirupsen/logrus"
)

// application holds the composed service graph and the resources behind it.
// The scheduler drives the periodic services; the admin subcommands reach the
// rest.
type application struct {
	cfg                   *config.Config
	db                    *database.DB
	uowFactory            service.UnitOfWorkFactory
	fundService           service.FundService
	dispatchService       service.DispatchService
	cycleService          service.CycleService
	reconciliationService service.ReconciliationService
	retryService          service.RetryService
	distributionService   service.DistributionService
}

// newApplication connects the database and wires every service
func newApplication(ctx context.Context) (*application, error) {
	cfg := config.Get()

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully")

	eventBus := events.NewBus()
	events.RegisterLoggingSubscribers(eventBus)

	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// The processor client backs every external surface: ledger accounts,
	// push payments, the settlement feed, payouts and account lookups
	processor := payments.NewProcessorClient(cfg.ProcessorBaseURL, cfg.ProcessorAPIKey, cfg.ProcessorTimeout)

	log.Info("Initializing services...")
	dispatchService := service.NewDispatchService(uowFactory, processor, cfg)
	app := &application{
		cfg:                   cfg,
		db:                    db,
		uowFactory:            uowFactory,
		fundService:           service.NewFundService(uowFactory, processor, processor, cfg),
		dispatchService:       dispatchService,
		cycleService:          service.NewCycleService(uowFactory, dispatchService),
		reconciliationService: service.NewReconciliationService(uowFactory, processor, cfg),
		retryService:          service.NewRetryService(uowFactory, processor, cfg),
		distributionService:   service.NewDistributionService(uowFactory, processor),
	}
	log.Info("Services initialized successfully")

	return app, nil
}

// Close releases the application's resources
func (a *application) Close() {
	a.db.Close()
}

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Info("Starting chamapool...")

	app, err := newApplication(ctx)
	if err != nil {
		return err
	}

	// Start the background scheduler
	sched := scheduler.New(app.cfg, app.cycleService, app.reconciliationService, app.fundService, app.uowFactory)
	if err := sched.Start(); err != nil {
		app.Close()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Wait for context cancellation
	log.WithField("environment", app.cfg.Environment).Info("chamapool is running")
	<-ctx.Done()

	// Cleanup resources
	log.Info("Shutting down...")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info("Closing database connection...")
	app.Close()

	select {
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout exceeded")
	case <-time.After(1 * time.Second):
		log.Info("Shutdown completed")
	}

	return nil
}
