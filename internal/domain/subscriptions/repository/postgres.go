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
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const subscriptionColumns = `id, owner_user_id, shared_group_id, name, description, category,
		amount_minor, currency_code, billing_frequency, billing_day, custom_frequency_days,
		status, start_date, next_billing_date, last_payment_date, end_date,
		is_business_expense, website, notes, created_at, updated_at`

// PostgresSubscriptionRepository implements SubscriptionRepository using PostgreSQL
type PostgresSubscriptionRepository struct {
	pool pgxPool
}

// NewPostgresSubscriptionRepository creates a new PostgreSQL subscription repository
func NewPostgresSubscriptionRepository(pool *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

type row interface {
	Scan(dest ...any) error
}

func scanSubscription(r row) (*Subscription, error) {
	sub := &Subscription{}
	err := r.Scan(
		&sub.ID,
		&sub.OwnerUserID,
		&sub.SharedGroupID,
		&sub.Name,
		&sub.Description,
		&sub.Category,
		&sub.AmountMinor,
		&sub.CurrencyCode,
		&sub.BillingFrequency,
		&sub.BillingDay,
		&sub.CustomFrequencyDays,
		&sub.Status,
		&sub.StartDate,
		&sub.NextBillingDate,
		&sub.LastPaymentDate,
		&sub.EndDate,
		&sub.IsBusinessExpense,
		&sub.Website,
		&sub.Notes,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// GetByIDForOwner retrieves a subscription scoped to its owner. A foreign
// owner gets the same sql.ErrNoRows as an unknown id.
func (r *PostgresSubscriptionRepository) GetByIDForOwner(ctx context.Context, id, ownerID uuid.UUID) (*Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE id = $1 AND owner_user_id = $2`, subscriptionColumns)

	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// ListByOwner retrieves subscriptions for a user, optionally filtered by
// shared group and status, ordered by next due date.
func (r *PostgresSubscriptionRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, filter ListFilter) ([]*Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE owner_user_id = $1`, subscriptionColumns)

	args := []interface{}{ownerID}
	argIdx := 2

	if filter.GroupID != nil {
		query += fmt.Sprintf(` AND shared_group_id = $%d`, argIdx)
		args = append(args, *filter.GroupID)
		argIdx++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, *filter.Status)
		argIdx++
	}

	query += ` ORDER BY next_billing_date ASC, created_at ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// ApplyPatch updates only the fields present in the patch and returns the
// updated row. An empty patch returns the row unchanged.
func (r *PostgresSubscriptionRepository) ApplyPatch(ctx context.Context, id, ownerID uuid.UUID, patch Patch) (*Subscription, error) {
	if patch.IsEmpty() {
		return r.GetByIDForOwner(ctx, id, ownerID)
	}

	set, args := buildPatchSet(patch)
	args = append(args, id, ownerID)
	query := fmt.Sprintf(`UPDATE subscriptions SET %s, updated_at = NOW()
		WHERE id = $%d AND owner_user_id = $%d
		RETURNING %s`, set, len(args)-1, len(args), subscriptionColumns)

	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	return sub, nil
}

// Cancel marks the subscription cancelled and wipes its ledger entries in one
// transaction. endDate is only stamped when the patch carries none.
func (r *PostgresSubscriptionRepository) Cancel(ctx context.Context, id, ownerID uuid.UUID, patch Patch, endDate time.Time) (*Subscription, error) {
	if patch.EndDate == nil {
		patch.EndDate = &endDate
	}
	cancelled := StatusCancelled
	patch.Status = &cancelled

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	set, args := buildPatchSet(patch)
	args = append(args, id, ownerID)
	query := fmt.Sprintf(`UPDATE subscriptions SET %s, updated_at = NOW()
		WHERE id = $%d AND owner_user_id = $%d
		RETURNING %s`, set, len(args)-1, len(args), subscriptionColumns)

	sub, err := scanSubscription(tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM expected_payments WHERE subscription_id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to delete ledger entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return sub, nil
}

// Delete removes a subscription; expected_payments rows cascade with it.
func (r *PostgresSubscriptionRepository) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1 AND owner_user_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// buildPatchSet renders the SET clause for the fields present in the patch.
func buildPatchSet(patch Patch) (string, []interface{}) {
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

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.AmountMinor != nil {
		add("amount_minor", *patch.AmountMinor)
	}
	if patch.CurrencyCode != nil {
		add("currency_code", *patch.CurrencyCode)
	}
	if patch.BillingFrequency != nil {
		add("billing_frequency", *patch.BillingFrequency)
	}
	if patch.BillingDay != nil {
		add("billing_day", *patch.BillingDay)
	}
	if patch.CustomFrequencyDays != nil {
		add("custom_frequency_days", *patch.CustomFrequencyDays)
	} else if patch.ClearCustomFrequencyDays {
		if set != "" {
			set += ", "
		}
		set += "custom_frequency_days = NULL"
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.EndDate != nil {
		add("end_date", *patch.EndDate)
	}
	if patch.IsBusinessExpense != nil {
		add("is_business_expense", *patch.IsBusinessExpense)
	}
	if patch.Website != nil {
		add("website", *patch.Website)
	}
	if patch.Notes != nil {
		add("notes", *patch.Notes)
	}

	return set, args
}
