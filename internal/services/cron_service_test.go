package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripdesk/booking-backend/internal/config"
)

type fakeReconciler struct {
	calls       []string
	olderThan   time.Time
	limit       int
	paymentsErr error
}

func (r *fakeReconciler) ReconcilePendingPayments(_ context.Context, olderThan time.Time, limit int) (int, error) {
	r.calls = append(r.calls, "payments")
	r.olderThan = olderThan
	r.limit = limit
	return 2, r.paymentsErr
}

func (r *fakeReconciler) ReconcilePendingConfirmations(_ context.Context, _ time.Time, _ int) (int, int, error) {
	r.calls = append(r.calls, "confirmations")
	return 3, 1, nil
}

func TestCronService_RunNow(t *testing.T) {
	reconciler := &fakeReconciler{}
	svc := NewCronService(reconciler, config.ReconcileConfig{Schedule: "0 */5 * * * *", GracePeriod: 10 * time.Minute}, quietLogger())
	fixed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	report, err := svc.RunNow(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"payments", "confirmations"}, reconciler.calls)
	assert.Equal(t, fixed.Add(-10*time.Minute), reconciler.olderThan)
	assert.Equal(t, 50, reconciler.limit)
	assert.Equal(t, 2, report.PaymentsCaptured)
	assert.Equal(t, 3, report.Confirmed)
	assert.Equal(t, 1, report.ConfirmFailed)
	assert.Equal(t, report, svc.GetJobStatus()["last_run"])
}

func TestCronService_RunNowStopsOnPaymentError(t *testing.T) {
	reconciler := &fakeReconciler{paymentsErr: errors.New("db down")}
	svc := NewCronService(reconciler, config.ReconcileConfig{Schedule: "@every 1m", BatchSize: 10}, quietLogger())

	_, err := svc.RunNow(context.Background())

	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, []string{"payments"}, reconciler.calls)
	assert.Nil(t, svc.GetJobStatus()["last_run"])
}

func TestCronService_StartRejectsBadSchedule(t *testing.T) {
	svc := NewCronService(&fakeReconciler{}, config.ReconcileConfig{Schedule: "not a schedule"}, quietLogger())

	assert.Error(t, svc.Start())
}

func TestCronService_StartAndStop(t *testing.T) {
	svc := NewCronService(&fakeReconciler{}, config.ReconcileConfig{Schedule: "0 0 3 * * *"}, quietLogger())

	require.NoError(t, svc.Start())
	status := svc.GetJobStatus()
	assert.Equal(t, 1, status["job_count"])
	svc.Stop()
}
