// Package reconciliation drives the billing cycle state machine: it creates
// a subscription together with its first ledger entry, and on a payment's
// transition into paid it advances the subscription and mints exactly one
// next-cycle entry.
package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"

	paymentsrepo "github.com/receiptwise/billing-engine/internal/domain/payments/repository"
	subsrepo "github.com/receiptwise/billing-engine/internal/domain/subscriptions/repository"
)

// CycleParams carries one paid transition through the cycle-completion
// transaction.
type CycleParams struct {
	SubscriptionID uuid.UUID
	OwnerUserID    uuid.UUID
	PaymentID      uuid.UUID

	// Reconciliation fields stamped on the paid payment.
	ActualDate        time.Time
	ActualAmountMinor int64
	ReceiptID         *uuid.UUID
	Notes             *string

	// Forward state: the subscription's new cached due date and the
	// next-cycle ledger entry carrying that same date.
	NextBillingDate time.Time
	NextPayment     *paymentsrepo.ExpectedPayment
}

// Repository is the transactional storage surface of the engine. Both
// operations are all-or-nothing: a subscription without its initial entry,
// or an advanced due date without a minted next cycle, must be impossible.
type Repository interface {
	// CreateSubscriptionWithInitialPayment inserts the subscription and its
	// first pending ledger entry in one transaction.
	CreateSubscriptionWithInitialPayment(ctx context.Context, sub *subsrepo.Subscription, payment *paymentsrepo.ExpectedPayment) error

	// CompleteCycle marks the payment paid, advances the subscription, and
	// inserts the next pending entry in one transaction. The paid update is
	// a compare-and-set on status: when the payment was already paid the
	// whole transaction is abandoned and false is returned.
	CompleteCycle(ctx context.Context, params CycleParams) (bool, error)
}
