package receipts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against the backend's receipts table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new read-only receipt store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// GetByID retrieves a receipt by ID
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	query := `
		SELECT id, owner_user_id, transaction_date, total_amount_minor, currency_code
		FROM receipts
		WHERE id = $1`

	r := &Receipt{}
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&r.ID,
		&r.OwnerUserID,
		&r.TransactionDate,
		&r.TotalAmountMinor,
		&r.CurrencyCode,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return r, nil
}
