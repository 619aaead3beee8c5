// Package repository provides database operations for recurring-expense subscriptions.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/receiptwise/billing-engine/internal/domain/recurrence"
)

// Status represents the lifecycle state of a subscription
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known subscription status
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCancelled:
		return true
	}
	return false
}

// Subscription represents a user-declared recurring expense (a streaming
// service, gym membership, utility bill) tracked against incoming receipts.
// NextBillingDate is derived state: it always mirrors the expected date of
// the subscription's current pending ledger entry.
type Subscription struct {
	ID                  uuid.UUID
	OwnerUserID         uuid.UUID
	SharedGroupID       *uuid.UUID
	Name                string
	Description         *string
	Category            *string
	AmountMinor         int64
	CurrencyCode        string
	BillingFrequency    recurrence.Frequency
	BillingDay          int
	CustomFrequencyDays *int
	Status              Status
	StartDate           time.Time
	NextBillingDate     time.Time
	LastPaymentDate     *time.Time
	EndDate             *time.Time
	IsBusinessExpense   bool
	Website             *string
	Notes               *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Patch carries a partial update; nil fields are left untouched.
type Patch struct {
	Name                *string
	Description         *string
	Category            *string
	AmountMinor         *int64
	CurrencyCode        *string
	BillingFrequency    *recurrence.Frequency
	BillingDay          *int
	CustomFrequencyDays *int
	Status              *Status
	EndDate             *time.Time
	IsBusinessExpense   *bool
	Website             *string
	Notes               *string

	// ClearCustomFrequencyDays nulls custom_frequency_days. Set when the
	// billing frequency moves off custom, since a nil CustomFrequencyDays
	// means untouched.
	ClearCustomFrequencyDays bool
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Category == nil &&
		p.AmountMinor == nil && p.CurrencyCode == nil && p.BillingFrequency == nil &&
		p.BillingDay == nil && p.CustomFrequencyDays == nil && p.Status == nil &&
		p.EndDate == nil && p.IsBusinessExpense == nil && p.Website == nil && p.Notes == nil &&
		!p.ClearCustomFrequencyDays
}

// ListFilter narrows a subscription listing.
type ListFilter struct {
	GroupID *uuid.UUID
	Status  *Status
}

// SubscriptionRepository defines the interface for subscription persistence.
// Creation is intentionally absent: new subscriptions are only materialized
// together with their first ledger entry by the reconciliation engine.
type SubscriptionRepository interface {
	// GetByIDForOwner returns the subscription only if ownerID owns it;
	// an owner mismatch is reported as sql.ErrNoRows, never as forbidden.
	GetByIDForOwner(ctx context.Context, id, ownerID uuid.UUID) (*Subscription, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, filter ListFilter) ([]*Subscription, error)
	ApplyPatch(ctx context.Context, id, ownerID uuid.UUID, patch Patch) (*Subscription, error)

	// Cancel applies the patch, stamps endDate, and deletes the
	// subscription's ledger entries in the same transaction.
	Cancel(ctx context.Context, id, ownerID uuid.UUID, patch Patch, endDate time.Time) (*Subscription, error)

	// Delete removes the subscription; ledger entries go with it via the
	// cascading foreign key.
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
}
