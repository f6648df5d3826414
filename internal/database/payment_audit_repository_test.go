package database

import (
	"context"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripdesk/booking-backend/internal/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestPaymentAuditRepository_Log(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentAuditRepository(db, quietLogger())

	audit := models.NewPaymentAudit(models.PaymentEventSignatureVerified, models.PaymentSourceUser).
		SetBooking("7d9f3c2a-2a7e-4f7a-8f59-3b8a9b0d6c11", models.PaymentModeOnlinePay).
		SetGatewayOrder("order_1").
		SetGatewayPayment("pay_1")

	mock.ExpectExec(`INSERT INTO payment_audits`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Log(context.Background(), audit))
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Error(t, repo.Log(context.Background(), nil))
}

func TestPaymentAuditRepository_CheckDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentAuditRepository(db, quietLogger())

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM payment_audits`).
		WithArgs("pay_1", models.PaymentEventSuccess, "pay_1-payment_success").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	duplicate, err := repo.CheckDuplicate(context.Background(), "pay_1", models.PaymentEventSuccess, "")

	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
