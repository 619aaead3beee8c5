package reconciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paymentsrepo "github.com/receiptwise/billing-engine/internal/domain/payments/repository"
	"github.com/receiptwise/billing-engine/internal/domain/recurrence"
	subsrepo "github.com/receiptwise/billing-engine/internal/domain/subscriptions/repository"
)

func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresRepository_CreateSubscriptionWithInitialPayment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresRepository{pool: mock}

	now := time.Now()
	sub := &subsrepo.Subscription{
		ID:               uuid.New(),
		OwnerUserID:      uuid.New(),
		Name:             "Spotify",
		AmountMinor:      999,
		CurrencyCode:     "EUR",
		BillingFrequency: recurrence.FrequencyMonthly,
		BillingDay:       1,
		Status:           subsrepo.StatusActive,
		StartDate:        time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		NextBillingDate:  time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
	}
	payment := &paymentsrepo.ExpectedPayment{
		ID:                  uuid.New(),
		SubscriptionID:      sub.ID,
		ExpectedDate:        sub.NextBillingDate,
		ExpectedAmountMinor: sub.AmountMinor,
		CurrencyCode:        sub.CurrencyCode,
		Status:              paymentsrepo.StatusPending,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO subscriptions`).
		WithArgs(sub.ID, sub.OwnerUserID, sub.SharedGroupID, sub.Name, sub.Description, sub.Category,
			sub.AmountMinor, sub.CurrencyCode, sub.BillingFrequency, sub.BillingDay, sub.CustomFrequencyDays,
			sub.Status, sub.StartDate, sub.NextBillingDate, sub.IsBusinessExpense, sub.Website, sub.Notes).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery(`INSERT INTO expected_payments`).
		WithArgs(payment.ID, payment.SubscriptionID, payment.ExpectedDate,
			payment.ExpectedAmountMinor, payment.CurrencyCode, payment.Status).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectCommit()

	err = repo.CreateSubscriptionWithInitialPayment(context.Background(), sub, payment)
	require.NoError(t, err)
	assert.Equal(t, now, sub.CreatedAt)
	assert.Equal(t, now, payment.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateSubscription_PaymentInsertFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresRepository{pool: mock}

	now := time.Now()
	sub := &subsrepo.Subscription{ID: uuid.New(), OwnerUserID: uuid.New()}
	payment := &paymentsrepo.ExpectedPayment{ID: uuid.New(), SubscriptionID: sub.ID}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO subscriptions`).
		WithArgs(anyArgs(17)...).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery(`INSERT INTO expected_payments`).
		WithArgs(anyArgs(6)...).
		WillReturnError(errors.New("duplicate key value violates unique constraint"))
	mock.ExpectRollback()

	err = repo.CreateSubscriptionWithInitialPayment(context.Background(), sub, payment)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func cycleFixture() CycleParams {
	subID := uuid.New()
	actual := time.Date(2025, time.April, 3, 0, 0, 0, 0, time.UTC)
	next := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	return CycleParams{
		SubscriptionID:    subID,
		OwnerUserID:       uuid.New(),
		PaymentID:         uuid.New(),
		ActualDate:        actual,
		ActualAmountMinor: 999,
		NextBillingDate:   next,
		NextPayment: &paymentsrepo.ExpectedPayment{
			ID:                  uuid.New(),
			SubscriptionID:      subID,
			ExpectedDate:        next,
			ExpectedAmountMinor: 999,
			CurrencyCode:        "EUR",
			Status:              paymentsrepo.StatusPending,
		},
	}
}

func TestPostgresRepository_CompleteCycle(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresRepository{pool: mock}
	params := cycleFixture()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE expected_payments`).
		WithArgs(params.PaymentID, paymentsrepo.StatusPaid, params.ActualDate,
			params.ActualAmountMinor, params.ReceiptID, params.Notes,
			params.SubscriptionID, params.OwnerUserID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE subscriptions`).
		WithArgs(params.SubscriptionID, params.ActualDate, params.NextBillingDate).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO expected_payments`).
		WithArgs(params.NextPayment.ID, params.NextPayment.SubscriptionID, params.NextPayment.ExpectedDate,
			params.NextPayment.ExpectedAmountMinor, params.NextPayment.CurrencyCode, params.NextPayment.Status).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectCommit()

	minted, err := repo.CompleteCycle(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, minted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CompleteCycle_AlreadyPaid(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresRepository{pool: mock}
	params := cycleFixture()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE expected_payments`).
		WithArgs(params.PaymentID, paymentsrepo.StatusPaid, params.ActualDate,
			params.ActualAmountMinor, params.ReceiptID, params.Notes,
			params.SubscriptionID, params.OwnerUserID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	minted, err := repo.CompleteCycle(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, minted, "already-paid entry must not mint a cycle")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CompleteCycle_AdvanceFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresRepository{pool: mock}
	params := cycleFixture()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE expected_payments`).
		WithArgs(params.PaymentID, paymentsrepo.StatusPaid, params.ActualDate,
			params.ActualAmountMinor, params.ReceiptID, params.Notes,
			params.SubscriptionID, params.OwnerUserID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE subscriptions`).
		WithArgs(params.SubscriptionID, params.ActualDate, params.NextBillingDate).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	minted, err := repo.CompleteCycle(context.Background(), params)
	require.Error(t, err)
	assert.False(t, minted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
