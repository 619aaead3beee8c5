package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/receiptwise/billing-engine/internal/domain/recurrence"
)

var subscriptionRowColumns = []string{
	"id", "owner_user_id", "shared_group_id", "name", "description", "category",
	"amount_minor", "currency_code", "billing_frequency", "billing_day", "custom_frequency_days",
	"status", "start_date", "next_billing_date", "last_payment_date", "end_date",
	"is_business_expense", "website", "notes", "created_at", "updated_at",
}

func subscriptionRow(id, ownerID uuid.UUID) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(subscriptionRowColumns).AddRow(
		id, ownerID, nil, "Netflix", nil, nil,
		int64(1599), "USD", recurrence.FrequencyMonthly, 15, nil,
		StatusActive, now, now.AddDate(0, 1, 0), nil, nil,
		false, nil, nil, now, now,
	)
}

func TestGetByIDForOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresSubscriptionRepository{pool: mock}
	id, ownerID := uuid.New(), uuid.New()

	mock.ExpectQuery(`(?s)SELECT .+ FROM subscriptions WHERE id = \$1 AND owner_user_id = \$2`).
		WithArgs(id, ownerID).
		WillReturnRows(subscriptionRow(id, ownerID))

	sub, err := repo.GetByIDForOwner(context.Background(), id, ownerID)
	require.NoError(t, err)
	assert.Equal(t, id, sub.ID)
	assert.Equal(t, "Netflix", sub.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDForOwner_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresSubscriptionRepository{pool: mock}

	mock.ExpectQuery(`(?s)SELECT .+ FROM subscriptions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByIDForOwner(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, sql.ErrNoRows, "pgx row misses normalize to sql.ErrNoRows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByOwner_Filters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresSubscriptionRepository{pool: mock}
	ownerID := uuid.New()
	groupID := uuid.New()
	status := StatusActive

	mock.ExpectQuery(`(?s)SELECT .+ FROM subscriptions WHERE owner_user_id = \$1 AND shared_group_id = \$2 AND status = \$3 ORDER BY next_billing_date`).
		WithArgs(ownerID, groupID, status).
		WillReturnRows(subscriptionRow(uuid.New(), ownerID))

	subs, err := repo.ListByOwner(context.Background(), ownerID, ListFilter{GroupID: &groupID, Status: &status})
	require.NoError(t, err)
	assert.Len(t, subs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPatch_BuildsSparseUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresSubscriptionRepository{pool: mock}
	id, ownerID := uuid.New(), uuid.New()

	name := "Netflix Premium"
	amount := int64(2299)

	mock.ExpectQuery(`(?s)UPDATE subscriptions SET name = \$1, amount_minor = \$2, updated_at = NOW\(\).+WHERE id = \$3 AND owner_user_id = \$4`).
		WithArgs(name, amount, id, ownerID).
		WillReturnRows(subscriptionRow(id, ownerID))

	_, err = repo.ApplyPatch(context.Background(), id, ownerID, Patch{Name: &name, AmountMinor: &amount})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPatch_ClearsCustomFrequencyDays(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresSubscriptionRepository{pool: mock}
	id, ownerID := uuid.New(), uuid.New()

	monthly := recurrence.FrequencyMonthly

	mock.ExpectQuery(`(?s)UPDATE subscriptions SET billing_frequency = \$1, custom_frequency_days = NULL, updated_at = NOW\(\).+WHERE id = \$2 AND owner_user_id = \$3`).
		WithArgs(monthly, id, ownerID).
		WillReturnRows(subscriptionRow(id, ownerID))

	_, err = repo.ApplyPatch(context.Background(), id, ownerID, Patch{BillingFrequency: &monthly, ClearCustomFrequencyDays: true})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancel_DeletesLedgerInSameTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresSubscriptionRepository{pool: mock}
	id, ownerID := uuid.New(), uuid.New()
	endDate := time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)UPDATE subscriptions SET status = \$1, end_date = \$2, updated_at = NOW\(\)`).
		WithArgs(StatusCancelled, endDate, id, ownerID).
		WillReturnRows(subscriptionRow(id, ownerID))
	mock.ExpectExec(`DELETE FROM expected_payments WHERE subscription_id = \$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCommit()

	_, err = repo.Cancel(context.Background(), id, ownerID, Patch{}, endDate)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresSubscriptionRepository{pool: mock}

	mock.ExpectExec(`DELETE FROM subscriptions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err = repo.Delete(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
