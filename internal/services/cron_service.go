package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/tripdesk/booking-backend/internal/config"
)

// Reconciler is the part of the booking saga driven by the scheduler
type Reconciler interface {
	ReconcilePendingConfirmations(ctx context.Context, olderThan time.Time, limit int) (int, int, error)
	ReconcilePendingPayments(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

// ReconcileReport is the outcome of one reconciliation run
type ReconcileReport struct {
	PaymentsCaptured int           `json:"paymentsCaptured"`
	Confirmed        int           `json:"confirmed"`
	ConfirmFailed    int           `json:"confirmFailed"`
	Duration         time.Duration `json:"duration"`
}

// CronService runs booking reconciliation on a schedule
type CronService struct {
	cron       *cron.Cron
	reconciler Reconciler
	config     config.ReconcileConfig
	logger     *logrus.Logger
	now        func() time.Time

	// one run at a time, scheduled or manual
	runMu sync.Mutex

	mu      sync.Mutex
	lastRun *ReconcileReport
}

// NewCronService creates a new CronService
func NewCronService(reconciler Reconciler, cfg config.ReconcileConfig, logger *logrus.Logger) *CronService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &CronService{
		// Cron format: second minute hour day month weekday
		cron:       cron.New(cron.WithSeconds()),
		reconciler: reconciler,
		config:     cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Start schedules the reconciliation job
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	if _, err := s.cron.AddFunc(s.config.Schedule, s.reconcileJob); err != nil {
		return fmt.Errorf("failed to schedule reconciliation job: %w", err)
	}
	s.logger.WithField("schedule", s.config.Schedule).Info("✓ Scheduled: Booking reconciliation")

	s.cron.Start()
	s.logger.Info("✓ Cron service started successfully")
	return nil
}

// Stop stops the scheduler and waits for a running job
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("✓ Cron service stopped")
}

func (s *CronService) reconcileJob() {
	if _, err := s.RunNow(context.Background()); err != nil {
		s.logger.WithError(err).Error("[CRON ERROR] Booking reconciliation failed")
	}
}

// RunNow runs one reconciliation pass: pending gateway payments first, so a
// payment captured here is confirmed in the same pass
func (s *CronService) RunNow(ctx context.Context) (*ReconcileReport, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	startTime := s.now()
	olderThan := startTime.Add(-s.config.GracePeriod)
	report := &ReconcileReport{}

	captured, err := s.reconciler.ReconcilePendingPayments(ctx, olderThan, s.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("payment reconciliation: %w", err)
	}
	report.PaymentsCaptured = captured

	confirmed, failed, err := s.reconciler.ReconcilePendingConfirmations(ctx, olderThan, s.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("confirmation reconciliation: %w", err)
	}
	report.Confirmed = confirmed
	report.ConfirmFailed = failed
	report.Duration = time.Since(startTime)

	s.mu.Lock()
	s.lastRun = report
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"payments_captured": report.PaymentsCaptured,
		"confirmed":         report.Confirmed,
		"confirm_failed":    report.ConfirmFailed,
		"duration":          report.Duration.String(),
	}).Info("[CRON] ✓ Booking reconciliation finished")
	return report, nil
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	s.mu.Lock()
	lastRun := s.lastRun
	s.mu.Unlock()

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
		"last_run":  lastRun,
	}
}
