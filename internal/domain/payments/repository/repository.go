// Package repository provides database operations for the expected-payment ledger.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RecentWindow is how many ledger entries per subscription the read side
// exposes and counts against.
const RecentWindow = 12

// Status represents the lifecycle state of an expected payment
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusMissed    Status = "missed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known payment status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusMissed, StatusCancelled:
		return true
	}
	return false
}

// ExpectedPayment is one billing cycle's expected charge. The reconciliation
// triple (ActualDate, ActualAmountMinor, ReceiptID) is populated together:
// either no reconciliation happened yet and all three are nil, or actual
// date and amount are set, optionally with the receipt that matched them.
type ExpectedPayment struct {
	ID                  uuid.UUID
	SubscriptionID      uuid.UUID
	ExpectedDate        time.Time
	ExpectedAmountMinor int64
	CurrencyCode        string
	Status              Status
	ActualDate          *time.Time
	ActualAmountMinor   *int64
	ReceiptID           *uuid.UUID
	Notes               *string
	CreatedAt           time.Time
}

// ReconciliationPatch carries a partial update to a payment's
// reconciliation fields; nil fields are left untouched.
type ReconciliationPatch struct {
	Status            *Status
	ActualDate        *time.Time
	ActualAmountMinor *int64
	ReceiptID         *uuid.UUID
	Notes             *string
}

// PaymentRepository defines the interface for ledger persistence. Inserting
// new cycles is deliberately absent: only the reconciliation engine mints
// ledger rows, atomically with the subscription it advances.
type PaymentRepository interface {
	// GetForOwner loads a payment only when the acting user owns the parent
	// subscription; a foreign owner sees sql.ErrNoRows.
	GetForOwner(ctx context.Context, paymentID, ownerID uuid.UUID) (*ExpectedPayment, error)

	// ListRecent returns up to limit entries ordered by expected date descending.
	ListRecent(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]*ExpectedPayment, error)

	// UpdateReconciliation applies the patch without cycle side effects.
	// Ownership is part of the UPDATE predicate, not a separate read.
	UpdateReconciliation(ctx context.Context, paymentID, ownerID uuid.UUID, patch ReconciliationPatch) (*ExpectedPayment, error)

	// ResetReconciliation clears receipt linkage and actuals and forces the
	// payment back to pending, scoped to the owning user.
	ResetReconciliation(ctx context.Context, paymentID, ownerID uuid.UUID) (*ExpectedPayment, error)

	// CountMissing counts pending or missed entries among the recent window.
	CountMissing(ctx context.Context, subscriptionID uuid.UUID) (int, error)

	// MarkOverdueMissed flips pending entries whose expected date is before
	// the cutoff to missed and reports how many rows changed.
	MarkOverdueMissed(ctx context.Context, cutoff time.Time) (int64, error)
}
