package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	paymentsrepo "github.com/receiptwise/billing-engine/internal/domain/payments/repository"
	"github.com/receiptwise/billing-engine/internal/domain/recurrence"
	subsrepo "github.com/receiptwise/billing-engine/internal/domain/subscriptions/repository"
	"github.com/receiptwise/billing-engine/pkg/cache"
)

// Engine orchestrates billing-cycle state changes across the subscription
// store and the payment ledger. It is the only component that creates
// ledger rows.
type Engine struct {
	repo        Repository
	invalidator cache.Invalidator
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewEngine creates a new reconciliation engine
func NewEngine(repo Repository, invalidator cache.Invalidator, logger *slog.Logger) *Engine {
	return &Engine{
		repo:        repo,
		invalidator: invalidator,
		logger:      logger,
		tracer:      otel.Tracer("reconciliation"),
	}
}

// CreateSubscription materializes a new subscription and its first pending
// ledger entry. The subscription's cached NextBillingDate and the entry's
// ExpectedDate are assigned the same computed due date, which establishes
// the standing invariant between them.
func (e *Engine) CreateSubscription(ctx context.Context, sub *subsrepo.Subscription) (*paymentsrepo.ExpectedPayment, error) {
	ctx, span := e.tracer.Start(ctx, "reconciliation.CreateSubscription")
	defer span.End()

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.NextBillingDate = e.nextDueDate(sub, sub.StartDate)

	payment := &paymentsrepo.ExpectedPayment{
		ID:                  uuid.New(),
		SubscriptionID:      sub.ID,
		ExpectedDate:        sub.NextBillingDate,
		ExpectedAmountMinor: sub.AmountMinor,
		CurrencyCode:        sub.CurrencyCode,
		Status:              paymentsrepo.StatusPending,
	}

	if err := e.repo.CreateSubscriptionWithInitialPayment(ctx, sub, payment); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	subscriptionsCreated.Inc()
	e.logger.Info("subscription created",
		slog.String("subscription_id", sub.ID.String()),
		slog.Time("next_billing_date", sub.NextBillingDate),
	)

	e.invalidator.Invalidate(sub.OwnerUserID, sub.SharedGroupID)
	return payment, nil
}

// OnPaymentPaid completes a billing cycle: it stamps the payment's
// reconciliation fields, advances the subscription's last/next dates, and
// mints the next pending entry, all in one transaction.
//
// It returns false without side effects when the payment was already paid
// (duplicate transition) or when the subscription is no longer active
// (closed subscriptions do not generate further cycles).
func (e *Engine) OnPaymentPaid(ctx context.Context, sub *subsrepo.Subscription, paymentID uuid.UUID, actualDate time.Time, actualAmountMinor int64, receiptID *uuid.UUID, notes *string) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "reconciliation.OnPaymentPaid")
	defer span.End()

	if sub == nil || sub.Status != subsrepo.StatusActive {
		return false, nil
	}

	next := e.nextDueDate(sub, actualDate)

	minted, err := e.repo.CompleteCycle(ctx, CycleParams{
		SubscriptionID:    sub.ID,
		OwnerUserID:       sub.OwnerUserID,
		PaymentID:         paymentID,
		ActualDate:        actualDate,
		ActualAmountMinor: actualAmountMinor,
		ReceiptID:         receiptID,
		Notes:             notes,
		NextBillingDate:   next,
		NextPayment: &paymentsrepo.ExpectedPayment{
			ID:                  uuid.New(),
			SubscriptionID:      sub.ID,
			ExpectedDate:        next,
			ExpectedAmountMinor: sub.AmountMinor,
			CurrencyCode:        sub.CurrencyCode,
			Status:              paymentsrepo.StatusPending,
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to complete cycle: %w", err)
	}

	if !minted {
		duplicateTransitions.Inc()
		e.logger.Debug("duplicate paid transition suppressed",
			slog.String("payment_id", paymentID.String()),
		)
		return false, nil
	}

	cyclesCompleted.Inc()
	e.logger.Info("billing cycle completed",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("payment_id", paymentID.String()),
		slog.Time("next_billing_date", next),
	)

	e.invalidator.Invalidate(sub.OwnerUserID, sub.SharedGroupID)
	return true, nil
}

func (e *Engine) nextDueDate(sub *subsrepo.Subscription, anchor time.Time) time.Time {
	customDays := 0
	if sub.CustomFrequencyDays != nil {
		customDays = *sub.CustomFrequencyDays
	}
	return recurrence.NextDueDate(anchor, sub.BillingFrequency, sub.BillingDay, customDays)
}
