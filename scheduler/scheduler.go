package scheduler

import (
	"context"
	"fmt"
	"time"

	"chamapool/config"
	"chamapool/service"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Scheduler drives the periodic background work: settlement sweeps, opening
// scheduled cycles and retrying collection account provisioning.
type Scheduler struct {
	cronEngine     *cron.Cron
	cycleService   service.CycleService
	reconciliation service.ReconciliationService
	fundService    service.FundService
	uowFactory     service.UnitOfWorkFactory
	sweepInterval  time.Duration
}

// New creates a scheduler wired to the services it drives
func New(cfg *config.Config, cycleService service.CycleService, reconciliation service.ReconciliationService, fundService service.FundService, uowFactory service.UnitOfWorkFactory) *Scheduler {
	return &Scheduler{
		cronEngine:     cron.New(cron.WithLocation(time.Local)),
		cycleService:   cycleService,
		reconciliation: reconciliation,
		fundService:    fundService,
		uowFactory:     uowFactory,
		sweepInterval:  cfg.SweepInterval,
	}
}

// Start registers the jobs and starts the cron engine
func (s *Scheduler) Start() error {
	// Settlement sweep; the feed is polled, this is the only path that
	// confirms contributions
	sweepSpec := fmt.Sprintf("@every %s", s.sweepInterval)
	if _, err := s.cronEngine.AddFunc(sweepSpec, s.runSweep); err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	// Scheduled collections open shortly after midnight
	if _, err := s.cronEngine.AddFunc("5 0 * * *", s.runDueCycles); err != nil {
		return fmt.Errorf("failed to add due cycles job: %w", err)
	}

	// Funds created while the ledger was down get their accounts hourly
	if _, err := s.cronEngine.AddFunc("@hourly", s.runProvisioning); err != nil {
		return fmt.Errorf("failed to add provisioning job: %w", err)
	}

	s.cronEngine.Start()
	log.WithField("sweepInterval", s.sweepInterval).Info("Scheduler started")
	return nil
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := s.reconciliation.SweepAll(ctx); err != nil {
		log.WithField("error", err).Error("Settlement sweep failed")
	}
}

func (s *Scheduler) runDueCycles() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	opened, err := s.cycleService.OpenDueCycles(ctx, time.Now())
	if err != nil {
		log.WithField("error", err).Error("Opening scheduled cycles failed")
		return
	}
	if opened > 0 {
		log.WithField("opened", opened).Info("Scheduled cycles opened")
	}
}

func (s *Scheduler) runProvisioning() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		log.WithField("error", err).Error("Provisioning pass failed to start")
		return
	}
	funds, err := uow.FundRepository().GetUnprovisioned(ctx)
	uow.Rollback()
	if err != nil {
		log.WithField("error", err).Error("Failed to load unprovisioned funds")
		return
	}

	for _, fund := range funds {
		if err := s.fundService.ProvisionAccount(ctx, fund.ID); err != nil {
			log.WithFields(log.Fields{
				"fundID": fund.ID,
				"error":  err,
			}).Warn("Collection account provisioning still failing")
		}
	}
}

// Stop stops the cron engine and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	log.Info("Scheduler stopped")
}
