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
)

var paymentRowColumns = []string{
	"id", "subscription_id", "expected_date", "expected_amount_minor",
	"currency_code", "status", "actual_date", "actual_amount_minor", "receipt_id",
	"notes", "created_at",
}

func paymentRow(id, subscriptionID uuid.UUID, status Status) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(paymentRowColumns).AddRow(
		id, subscriptionID, now, int64(1599),
		"USD", status, nil, nil, nil,
		nil, now,
	)
}

func TestGetForOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresPaymentRepository{pool: mock}
	paymentID, ownerID := uuid.New(), uuid.New()
	subID := uuid.New()

	mock.ExpectQuery(`(?s)SELECT .+ FROM expected_payments p.+JOIN subscriptions s ON s.id = p.subscription_id.+WHERE p.id = \$1 AND s.owner_user_id = \$2`).
		WithArgs(paymentID, ownerID).
		WillReturnRows(paymentRow(paymentID, subID, StatusPending))

	p, err := repo.GetForOwner(context.Background(), paymentID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, paymentID, p.ID)
	assert.Equal(t, StatusPending, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetForOwner_ForeignOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresPaymentRepository{pool: mock}

	mock.ExpectQuery(`(?s)SELECT .+ FROM expected_payments`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetForOwner(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecent_DefaultsWindow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresPaymentRepository{pool: mock}
	subID := uuid.New()

	mock.ExpectQuery(`(?s)SELECT .+ FROM expected_payments p.+WHERE p.subscription_id = \$1.+ORDER BY p.expected_date DESC, p.created_at DESC.+LIMIT \$2`).
		WithArgs(subID, RecentWindow).
		WillReturnRows(paymentRow(uuid.New(), subID, StatusPaid))

	payments, err := repo.ListRecent(context.Background(), subID, 0)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReconciliation_SparseSet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresPaymentRepository{pool: mock}
	paymentID, ownerID := uuid.New(), uuid.New()

	notes := "paid in cash"
	status := StatusPaid

	mock.ExpectQuery(`(?s)UPDATE expected_payments p SET status = \$1, notes = \$2.+WHERE p.id = \$3.+AND p.subscription_id IN \(SELECT id FROM subscriptions WHERE owner_user_id = \$4\)`).
		WithArgs(status, notes, paymentID, ownerID).
		WillReturnRows(paymentRow(paymentID, uuid.New(), StatusPaid))

	p, err := repo.UpdateReconciliation(context.Background(), paymentID, ownerID, ReconciliationPatch{Status: &status, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReconciliation_EmptyPatchReads(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresPaymentRepository{pool: mock}
	paymentID, ownerID := uuid.New(), uuid.New()

	mock.ExpectQuery(`(?s)SELECT .+ FROM expected_payments p.+JOIN subscriptions s ON s.id = p.subscription_id.+WHERE p.id = \$1 AND s.owner_user_id = \$2`).
		WithArgs(paymentID, ownerID).
		WillReturnRows(paymentRow(paymentID, uuid.New(), StatusPending))

	p, err := repo.UpdateReconciliation(context.Background(), paymentID, ownerID, ReconciliationPatch{})
	require.NoError(t, err)
	assert.Equal(t, paymentID, p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetReconciliation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresPaymentRepository{pool: mock}
	paymentID, ownerID := uuid.New(), uuid.New()

	mock.ExpectQuery(`(?s)UPDATE expected_payments p.+SET status = \$2, receipt_id = NULL, actual_date = NULL, actual_amount_minor = NULL.+WHERE p.id = \$1.+AND p.subscription_id IN \(SELECT id FROM subscriptions WHERE owner_user_id = \$3\)`).
		WithArgs(paymentID, StatusPending, ownerID).
		WillReturnRows(paymentRow(paymentID, uuid.New(), StatusPending))

	p, err := repo.ResetReconciliation(context.Background(), paymentID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresPaymentRepository{pool: mock}
	subID := uuid.New()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM`).
		WithArgs(subID, RecentWindow, StatusPending, StatusMissed).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountMissing(context.Background(), subID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkOverdueMissed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresPaymentRepository{pool: mock}
	cutoff := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`(?s)UPDATE expected_payments.+SET status = \$1.+WHERE status = \$2 AND expected_date < \$3`).
		WithArgs(StatusMissed, StatusPending, cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))

	flipped, err := repo.MarkOverdueMissed(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), flipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}
