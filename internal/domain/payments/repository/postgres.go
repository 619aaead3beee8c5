package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxPool is the pool surface this repository uses. *pgxpool.Pool satisfies
// it in production, pgxmock pools in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const paymentColumns = `p.id, p.subscription_id, p.expected_date, p.expected_amount_minor,
		p.currency_code, p.status, p.actual_date, p.actual_amount_minor, p.receipt_id,
		p.notes, p.created_at`

// PostgresPaymentRepository implements PaymentRepository using PostgreSQL
type PostgresPaymentRepository struct {
	pool pgxPool
}

// NewPostgresPaymentRepository creates a new PostgreSQL payment repository
func NewPostgresPaymentRepository(pool *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{pool: pool}
}

type row interface {
	Scan(dest ...any) error
}

func scanPayment(r row) (*ExpectedPayment, error) {
	p := &ExpectedPayment{}
	err := r.Scan(
		&p.ID,
		&p.SubscriptionID,
		&p.ExpectedDate,
		&p.ExpectedAmountMinor,
		&p.CurrencyCode,
		&p.Status,
		&p.ActualDate,
		&p.ActualAmountMinor,
		&p.ReceiptID,
		&p.Notes,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetForOwner retrieves a payment through its parent subscription's owner.
func (r *PostgresPaymentRepository) GetForOwner(ctx context.Context, paymentID, ownerID uuid.UUID) (*ExpectedPayment, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM expected_payments p
		JOIN subscriptions s ON s.id = p.subscription_id
		WHERE p.id = $1 AND s.owner_user_id = $2`, paymentColumns)

	p, err := scanPayment(r.pool.QueryRow(ctx, query, paymentID, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// ListRecent retrieves the most recent ledger entries for a subscription.
func (r *PostgresPaymentRepository) ListRecent(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]*ExpectedPayment, error) {
	if limit <= 0 {
		limit = RecentWindow
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM expected_payments p
		WHERE p.subscription_id = $1
		ORDER BY p.expected_date DESC, p.created_at DESC
		LIMIT $2`, paymentColumns)

	rows, err := r.pool.Query(ctx, query, subscriptionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*ExpectedPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, nil
}

// UpdateReconciliation applies the patch fields that are present and returns
// the updated payment. The owner condition lives in the UPDATE itself, so an
// ownership change between the caller's read and this write makes the
// statement match nothing.
func (r *PostgresPaymentRepository) UpdateReconciliation(ctx context.Context, paymentID, ownerID uuid.UUID, patch ReconciliationPatch) (*ExpectedPayment, error) {
	var (
		set    string
		args   []interface{}
		argIdx = 1
	)
	add := func(column string, value interface{}) {
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("%s = $%d", column, argIdx)
		args = append(args, value)
		argIdx++
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.ActualDate != nil {
		add("actual_date", *patch.ActualDate)
	}
	if patch.ActualAmountMinor != nil {
		add("actual_amount_minor", *patch.ActualAmountMinor)
	}
	if patch.ReceiptID != nil {
		add("receipt_id", *patch.ReceiptID)
	}
	if patch.Notes != nil {
		add("notes", *patch.Notes)
	}
	if set == "" {
		return r.GetForOwner(ctx, paymentID, ownerID)
	}

	args = append(args, paymentID, ownerID)
	query := fmt.Sprintf(`
		UPDATE expected_payments p SET %s
		WHERE p.id = $%d
			AND p.subscription_id IN (SELECT id FROM subscriptions WHERE owner_user_id = $%d)
		RETURNING %s`,
		set, argIdx, argIdx+1, paymentColumns)

	p, err := scanPayment(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}
	return p, nil
}

// ResetReconciliation clears the reconciliation triple and forces the payment
// back to pending. It never touches other ledger rows: unlinking corrects
// history, it does not rewind an already-minted next cycle.
func (r *PostgresPaymentRepository) ResetReconciliation(ctx context.Context, paymentID, ownerID uuid.UUID) (*ExpectedPayment, error) {
	query := fmt.Sprintf(`
		UPDATE expected_payments p
		SET status = $2, receipt_id = NULL, actual_date = NULL, actual_amount_minor = NULL
		WHERE p.id = $1
			AND p.subscription_id IN (SELECT id FROM subscriptions WHERE owner_user_id = $3)
		RETURNING %s`, paymentColumns)

	p, err := scanPayment(r.pool.QueryRow(ctx, query, paymentID, StatusPending, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reset payment: %w", err)
	}
	return p, nil
}

// CountMissing counts pending or missed entries among the recent window.
func (r *PostgresPaymentRepository) CountMissing(ctx context.Context, subscriptionID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM (
			SELECT status
			FROM expected_payments
			WHERE subscription_id = $1
			ORDER BY expected_date DESC, created_at DESC
			LIMIT $2
		) recent
		WHERE recent.status IN ($3, $4)`

	var count int
	err := r.pool.QueryRow(ctx, query, subscriptionID, RecentWindow, StatusPending, StatusMissed).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count missing payments: %w", err)
	}
	return count, nil
}

// MarkOverdueMissed transitions overdue pending entries to missed. Only the
// sweep calls this; the reconciliation engine never applies time-based
// transitions.
func (r *PostgresPaymentRepository) MarkOverdueMissed(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE expected_payments
		SET status = $1
		WHERE status = $2 AND expected_date < $3`

	result, err := r.pool.Exec(ctx, query, StatusMissed, StatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue payments: %w", err)
	}
	return result.RowsAffected(), nil
}
