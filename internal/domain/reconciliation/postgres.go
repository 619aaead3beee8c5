package reconciliation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	paymentsrepo "github.com/receiptwise/billing-engine/internal/domain/payments/repository"
	subsrepo "github.com/receiptwise/billing-engine/internal/domain/subscriptions/repository"
)

// txStarter is satisfied by *pgxpool.Pool and by pgxmock pools in tests.
type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool txStarter
}

// NewPostgresRepository creates a new PostgreSQL reconciliation repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// CreateSubscriptionWithInitialPayment inserts a subscription and its first
// pending ledger entry atomically.
func (r *PostgresRepository) CreateSubscriptionWithInitialPayment(ctx context.Context, sub *subsrepo.Subscription, payment *paymentsrepo.ExpectedPayment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	subQuery := `
		INSERT INTO subscriptions (id, owner_user_id, shared_group_id, name, description, category,
			amount_minor, currency_code, billing_frequency, billing_day, custom_frequency_days,
			status, start_date, next_billing_date, is_business_expense, website, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at`

	err = tx.QueryRow(ctx, subQuery,
		sub.ID,
		sub.OwnerUserID,
		sub.SharedGroupID,
		sub.Name,
		sub.Description,
		sub.Category,
		sub.AmountMinor,
		sub.CurrencyCode,
		sub.BillingFrequency,
		sub.BillingDay,
		sub.CustomFrequencyDays,
		sub.Status,
		sub.StartDate,
		sub.NextBillingDate,
		sub.IsBusinessExpense,
		sub.Website,
		sub.Notes,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}

	paymentQuery := `
		INSERT INTO expected_payments (id, subscription_id, expected_date, expected_amount_minor, currency_code, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err = tx.QueryRow(ctx, paymentQuery,
		payment.ID,
		payment.SubscriptionID,
		payment.ExpectedDate,
		payment.ExpectedAmountMinor,
		payment.CurrencyCode,
		payment.Status,
	).Scan(&payment.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert initial ledger entry: %w", err)
	}

	return tx.Commit(ctx)
}

// CompleteCycle runs the paid transition as one transaction. The payment
// update only matches rows that are not already paid, which serializes
// concurrent mark-paid calls at the payment row: the second caller matches
// zero rows and the transaction is abandoned without minting anything.
func (r *PostgresRepository) CompleteCycle(ctx context.Context, params CycleParams) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Ownership is checked again here so a subscription handed off between
	// the service-level read and this transaction cannot be advanced by the
	// previous owner.
	casQuery := `
		UPDATE expected_payments
		SET status = $2,
			actual_date = $3,
			actual_amount_minor = $4,
			receipt_id = COALESCE($5, receipt_id),
			notes = COALESCE($6, notes)
		WHERE id = $1 AND status <> $2
			AND subscription_id IN (
				SELECT id FROM subscriptions WHERE id = $7 AND owner_user_id = $8)`

	result, err := tx.Exec(ctx, casQuery,
		params.PaymentID,
		paymentsrepo.StatusPaid,
		params.ActualDate,
		params.ActualAmountMinor,
		params.ReceiptID,
		params.Notes,
		params.SubscriptionID,
		params.OwnerUserID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment paid: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Already paid: a duplicate transition, not an error.
		return false, nil
	}

	subQuery := `
		UPDATE subscriptions
		SET last_payment_date = $2, next_billing_date = $3, updated_at = NOW()
		WHERE id = $1`

	if _, err := tx.Exec(ctx, subQuery, params.SubscriptionID, params.ActualDate, params.NextBillingDate); err != nil {
		return false, fmt.Errorf("failed to advance subscription: %w", err)
	}

	nextQuery := `
		INSERT INTO expected_payments (id, subscription_id, expected_date, expected_amount_minor, currency_code, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	next := params.NextPayment
	err = tx.QueryRow(ctx, nextQuery,
		next.ID,
		next.SubscriptionID,
		next.ExpectedDate,
		next.ExpectedAmountMinor,
		next.CurrencyCode,
		next.Status,
	).Scan(&next.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert next ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit cycle completion: %w", err)
	}
	return true, nil
}
