// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	paymentsrepo "github.com/receiptwise/billing-engine/internal/domain/payments/repository"
)

var overdueSwept = promauto.NewCounter(prometheus.CounterOpts{
	Name: "billing_overdue_payments_swept_total",
	Help: "Pending payments flipped to missed by the sweep job.",
})

// Scheduler runs the overdue-payment sweep on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	payments paymentsrepo.PaymentRepository
	schedule string
	grace    time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a new job scheduler. graceDays is how long past its
// expected date a pending payment may sit before the sweep marks it missed.
func NewScheduler(payments paymentsrepo.PaymentRepository, schedule string, graceDays int, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:     c,
		payments: payments,
		schedule: schedule,
		grace:    time.Duration(graceDays) * 24 * time.Hour,
		logger:   logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweepOverdue); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.String("schedule", s.schedule),
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the sweep (for testing/admin).
func (s *Scheduler) RunNow() {
	go s.sweepOverdue()
}

// sweepOverdue marks pending payments missed once they are past their
// expected date by more than the grace period. The paid transition still
// works on missed entries, so a late receipt recovers the cycle.
func (s *Scheduler) sweepOverdue() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.grace)
	flipped, err := s.payments.MarkOverdueMissed(ctx, cutoff)
	if err != nil {
		s.logger.Error("overdue sweep failed", slog.Any("error", err))
		return
	}

	overdueSwept.Add(float64(flipped))
	s.logger.Info("overdue sweep completed",
		slog.Int64("flipped", flipped),
		slog.Time("cutoff", cutoff),
	)
}
