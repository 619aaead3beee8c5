// Package entitlement answers whether a user's plan tier allows managing
// recurring-expense subscriptions. It is an external authorization
// collaborator: every route in this subsystem consults it before acting.
package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Gate reports whether a user may manage subscriptions.
type Gate interface {
	CanManageSubscriptions(ctx context.Context, userID uuid.UUID) (bool, error)
}

// PostgresGate checks the user's plan tier in the backend's users table.
type PostgresGate struct {
	pool *pgxpool.Pool
}

// NewPostgresGate creates a new plan-tier entitlement gate
func NewPostgresGate(pool *pgxpool.Pool) *PostgresGate {
	return &PostgresGate{pool: pool}
}

// CanManageSubscriptions returns true for tiers that include the recurring
// expense tracker. An unknown user is simply not entitled.
func (g *PostgresGate) CanManageSubscriptions(ctx context.Context, userID uuid.UUID) (bool, error) {
	var tier string
	err := g.pool.QueryRow(ctx, `SELECT plan_tier FROM users WHERE id = $1`, userID).Scan(&tier)
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check entitlement: %w", err)
	}

	switch tier {
	case "premium", "family", "business":
		return true, nil
	}
	return false, nil
}

// StaticGate answers every check with a fixed verdict. Used in tests and in
// deployments that gate subscriptions elsewhere.
type StaticGate bool

// CanManageSubscriptions returns the fixed verdict
func (g StaticGate) CanManageSubscriptions(ctx context.Context, userID uuid.UUID) (bool, error) {
	return bool(g), nil
}
