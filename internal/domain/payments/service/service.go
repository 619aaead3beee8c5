// Package service implements the payment ledger's reconciliation workflows:
// manual status edits, receipt linking with field defaulting, and the paid
// transition handoff to the billing-cycle engine.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/receiptwise/billing-engine/internal/domain/errs"
	"github.com/receiptwise/billing-engine/internal/domain/payments/repository"
	"github.com/receiptwise/billing-engine/internal/domain/receipts"
	subsrepo "github.com/receiptwise/billing-engine/internal/domain/subscriptions/repository"
	"github.com/receiptwise/billing-engine/pkg/cache"
)

// cycleCompleter runs the transactional paid transition. Implemented by the
// reconciliation engine.
type cycleCompleter interface {
	OnPaymentPaid(ctx context.Context, sub *subsrepo.Subscription, paymentID uuid.UUID, actualDate time.Time, actualAmountMinor int64, receiptID *uuid.UUID, notes *string) (bool, error)
}

// Service handles payment ledger business logic
type Service struct {
	payments    repository.PaymentRepository
	subs        subsrepo.SubscriptionRepository
	receipts    receipts.Store
	engine      cycleCompleter
	invalidator cache.Invalidator
	logger      *slog.Logger
}

// NewService creates a new payment service
func NewService(payments repository.PaymentRepository, subs subsrepo.SubscriptionRepository, receiptStore receipts.Store, engine cycleCompleter, invalidator cache.Invalidator, logger *slog.Logger) *Service {
	return &Service{
		payments:    payments,
		subs:        subs,
		receipts:    receiptStore,
		engine:      engine,
		invalidator: invalidator,
		logger:      logger,
	}
}

// UpdateInput carries a partial reconciliation edit. A non-nil ReceiptID
// links that receipt and defaults the other fields from it.
type UpdateInput struct {
	Status            *repository.Status
	ActualDate        *time.Time
	ActualAmountMinor *int64
	ReceiptID         *uuid.UUID
	Notes             *string
}

func (in UpdateInput) isEmpty() bool {
	return in.Status == nil && in.ActualDate == nil && in.ActualAmountMinor == nil &&
		in.ReceiptID == nil && in.Notes == nil
}

// ListRecent returns the subscription's most recent ledger entries, newest
// expected date first. The subscription lookup doubles as the ownership
// check.
func (s *Service) ListRecent(ctx context.Context, subscriptionID, ownerID uuid.UUID) ([]*repository.ExpectedPayment, error) {
	if _, err := s.subs.GetByIDForOwner(ctx, subscriptionID, ownerID); err != nil {
		return nil, err
	}
	return s.payments.ListRecent(ctx, subscriptionID, repository.RecentWindow)
}

// Update edits a payment's reconciliation state. Linking a receipt fills in
// actual date, actual amount, and a paid status from the receipt unless the
// caller supplied them. A transition into paid on an active subscription's
// current cycle is routed through the engine so the subscription advances
// and the next cycle is minted atomically; on any other subscription, or on
// an entry the subscription already advanced past, the fields are stamped
// without cycle side effects.
func (s *Service) Update(ctx context.Context, paymentID, ownerID uuid.UUID, input UpdateInput) (*repository.ExpectedPayment, error) {
	payment, err := s.payments.GetForOwner(ctx, paymentID, ownerID)
	if err != nil {
		return nil, err
	}
	if input.isEmpty() {
		return payment, nil
	}

	if input.Status != nil && !input.Status.Valid() {
		return nil, errs.Validation("status", fmt.Sprintf("unknown status %q", *input.Status))
	}
	if input.ActualAmountMinor != nil && *input.ActualAmountMinor <= 0 {
		return nil, errs.Validation("actual_amount", "must be positive")
	}

	if input.ReceiptID != nil {
		if err := s.applyReceiptDefaults(ctx, ownerID, &input); err != nil {
			return nil, err
		}
	}

	effectiveStatus := payment.Status
	if input.Status != nil {
		effectiveStatus = *input.Status
	}

	if effectiveStatus == repository.StatusPaid && payment.Status != repository.StatusPaid {
		return s.transitionToPaid(ctx, payment, ownerID, input)
	}

	updated, err := s.payments.UpdateReconciliation(ctx, paymentID, ownerID, repository.ReconciliationPatch{
		Status:            input.Status,
		ActualDate:        input.ActualDate,
		ActualAmountMinor: input.ActualAmountMinor,
		ReceiptID:         input.ReceiptID,
		Notes:             input.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}
	s.invalidator.Invalidate(ownerID, nil)
	return updated, nil
}

// Unlink clears the payment's receipt linkage and actuals and returns it to
// pending. A cycle already minted by an earlier paid transition stays; the
// ledger does not rewind, and relinking the corrected receipt later stamps
// this entry without minting again.
func (s *Service) Unlink(ctx context.Context, paymentID, ownerID uuid.UUID) (*repository.ExpectedPayment, error) {
	if _, err := s.payments.GetForOwner(ctx, paymentID, ownerID); err != nil {
		return nil, err
	}
	payment, err := s.payments.ResetReconciliation(ctx, paymentID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to unlink payment: %w", err)
	}
	s.logger.Info("payment unlinked", slog.String("payment_id", paymentID.String()))
	s.invalidator.Invalidate(ownerID, nil)
	return payment, nil
}

// applyReceiptDefaults verifies the receipt belongs to the caller and fills
// unset input fields from it. A foreign or unknown receipt reads as not
// found, the same as a foreign payment.
func (s *Service) applyReceiptDefaults(ctx context.Context, ownerID uuid.UUID, input *UpdateInput) error {
	receipt, err := s.receipts.GetByID(ctx, *input.ReceiptID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("failed to load receipt: %w", err)
	}
	if receipt.OwnerUserID != ownerID {
		return sql.ErrNoRows
	}

	if input.ActualDate == nil {
		date := time.Now()
		if receipt.TransactionDate != nil {
			date = *receipt.TransactionDate
		}
		input.ActualDate = &date
	}
	if input.ActualAmountMinor == nil {
		amount := receipt.TotalAmountMinor
		input.ActualAmountMinor = &amount
	}
	if input.Status == nil {
		paid := repository.StatusPaid
		input.Status = &paid
	}
	return nil
}

func (s *Service) transitionToPaid(ctx context.Context, payment *repository.ExpectedPayment, ownerID uuid.UUID, input UpdateInput) (*repository.ExpectedPayment, error) {
	sub, err := s.subs.GetByIDForOwner(ctx, payment.SubscriptionID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	actualDate := time.Now()
	if input.ActualDate != nil {
		actualDate = *input.ActualDate
	}
	actualAmount := payment.ExpectedAmountMinor
	if input.ActualAmountMinor != nil {
		actualAmount = *input.ActualAmountMinor
	}

	// Inactive subscriptions take the stamp but generate no next cycle. The
	// same holds for an entry the subscription already advanced past: its
	// paid transition minted the next cycle before it was unlinked, so
	// relinking must correct this row only.
	if sub.Status != subsrepo.StatusActive || payment.ExpectedDate.Before(sub.NextBillingDate) {
		paid := repository.StatusPaid
		updated, err := s.payments.UpdateReconciliation(ctx, payment.ID, ownerID, repository.ReconciliationPatch{
			Status:            &paid,
			ActualDate:        &actualDate,
			ActualAmountMinor: &actualAmount,
			ReceiptID:         input.ReceiptID,
			Notes:             input.Notes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update payment: %w", err)
		}
		s.invalidator.Invalidate(ownerID, sub.SharedGroupID)
		return updated, nil
	}

	minted, err := s.engine.OnPaymentPaid(ctx, sub, payment.ID, actualDate, actualAmount, input.ReceiptID, input.Notes)
	if err != nil {
		return nil, err
	}
	if !minted {
		// A concurrent caller won the transition; the reload below shows
		// their result.
		s.logger.Debug("paid transition already applied",
			slog.String("payment_id", payment.ID.String()),
		)
	}

	return s.payments.GetForOwner(ctx, payment.ID, ownerID)
}
