// Package service implements subscription management business logic.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"

	"github.com/receiptwise/billing-engine/internal/domain/errs"
	paymentsrepo "github.com/receiptwise/billing-engine/internal/domain/payments/repository"
	"github.com/receiptwise/billing-engine/internal/domain/recurrence"
	"github.com/receiptwise/billing-engine/internal/domain/subscriptions/repository"
	"github.com/receiptwise/billing-engine/pkg/cache"
)

// creator mints a subscription together with its first ledger entry.
// Implemented by the reconciliation engine.
type creator interface {
	CreateSubscription(ctx context.Context, sub *repository.Subscription) (*paymentsrepo.ExpectedPayment, error)
}

// Service handles subscription business logic
type Service struct {
	repo        repository.SubscriptionRepository
	payments    paymentsrepo.PaymentRepository
	engine      creator
	invalidator cache.Invalidator
	logger      *slog.Logger
}

// NewService creates a new subscription service
func NewService(repo repository.SubscriptionRepository, payments paymentsrepo.PaymentRepository, engine creator, invalidator cache.Invalidator, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		payments:    payments,
		engine:      engine,
		invalidator: invalidator,
		logger:      logger,
	}
}

// CreateInput carries a new subscription declaration.
type CreateInput struct {
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
	StartDate           time.Time
	IsBusinessExpense   bool
	Website             *string
	Notes               *string
}

func (in *CreateInput) validate() error {
	if in.Name == "" {
		return errs.Validation("name", "must not be empty")
	}
	if in.AmountMinor <= 0 {
		return errs.Validation("amount", "must be positive")
	}
	if money.GetCurrency(in.CurrencyCode) == nil {
		return errs.Validation("currency_code", fmt.Sprintf("unknown currency %q", in.CurrencyCode))
	}
	if in.StartDate.IsZero() {
		return errs.Validation("start_date", "is required")
	}
	if err := recurrence.ValidateRule(in.BillingFrequency, in.BillingDay, in.CustomFrequencyDays); err != nil {
		return errs.Validation("billing_rule", err.Error())
	}
	return nil
}

// Detail is a subscription optionally joined with its recent ledger slice.
type Detail struct {
	Subscription    *repository.Subscription
	RecentPayments  []*paymentsrepo.ExpectedPayment
	MissingPayments *int
}

// Create validates the input and asks the engine to materialize the
// subscription with its first pending ledger entry.
func (s *Service) Create(ctx context.Context, input CreateInput) (*repository.Subscription, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	sub := &repository.Subscription{
		OwnerUserID:         input.OwnerUserID,
		SharedGroupID:       input.SharedGroupID,
		Name:                input.Name,
		Description:         input.Description,
		Category:            input.Category,
		AmountMinor:         input.AmountMinor,
		CurrencyCode:        input.CurrencyCode,
		BillingFrequency:    input.BillingFrequency,
		BillingDay:          input.BillingDay,
		CustomFrequencyDays: input.CustomFrequencyDays,
		Status:              repository.StatusActive,
		StartDate:           input.StartDate,
		IsBusinessExpense:   input.IsBusinessExpense,
		Website:             input.Website,
		Notes:               input.Notes,
	}

	if _, err := s.engine.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return sub, nil
}

// Get returns one subscription owned by ownerID.
func (s *Service) Get(ctx context.Context, id, ownerID uuid.UUID) (*repository.Subscription, error) {
	return s.repo.GetByIDForOwner(ctx, id, ownerID)
}

// GetWithPayments returns the subscription joined with its recent ledger
// entries and the count of cycles still unaccounted for.
func (s *Service) GetWithPayments(ctx context.Context, id, ownerID uuid.UUID) (*Detail, error) {
	sub, err := s.repo.GetByIDForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	payments, err := s.payments.ListRecent(ctx, sub.ID, paymentsrepo.RecentWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent payments: %w", err)
	}
	missing, err := s.payments.CountMissing(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count missing payments: %w", err)
	}

	return &Detail{Subscription: sub, RecentPayments: payments, MissingPayments: &missing}, nil
}

// List returns the owner's subscriptions ordered by next due date.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, filter repository.ListFilter) ([]*repository.Subscription, error) {
	return s.repo.ListByOwner(ctx, ownerID, filter)
}

// ListWithPayments returns the owner's subscriptions, each joined with its
// recent ledger entries and missing-cycle count.
func (s *Service) ListWithPayments(ctx context.Context, ownerID uuid.UUID, filter repository.ListFilter) ([]*Detail, error) {
	subs, err := s.repo.ListByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, err
	}

	details := make([]*Detail, len(subs))
	for i, sub := range subs {
		payments, err := s.payments.ListRecent(ctx, sub.ID, paymentsrepo.RecentWindow)
		if err != nil {
			return nil, fmt.Errorf("failed to list recent payments: %w", err)
		}
		missing, err := s.payments.CountMissing(ctx, sub.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count missing payments: %w", err)
		}
		m := missing
		details[i] = &Detail{Subscription: sub, RecentPayments: payments, MissingPayments: &m}
	}
	return details, nil
}

// Update applies a partial patch. A patched billing rule is validated
// against the merged state of the subscription, so patching only the
// frequency still rejects a combination like custom without a day count.
// Setting status to cancelled routes through cancellation, which stamps the
// end date and drops the subscription's ledger entries.
func (s *Service) Update(ctx context.Context, id, ownerID uuid.UUID, patch repository.Patch) (*repository.Subscription, error) {
	existing, err := s.repo.GetByIDForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return existing, nil
	}

	// Moving off a custom frequency drops the day interval along with it;
	// a nil CustomFrequencyDays in the patch means untouched, so the clear
	// has to be explicit.
	if patch.BillingFrequency != nil && *patch.BillingFrequency != recurrence.FrequencyCustom &&
		patch.CustomFrequencyDays == nil {
		patch.ClearCustomFrequencyDays = true
	}

	if err := validatePatch(existing, patch); err != nil {
		return nil, err
	}

	if patch.Status != nil && *patch.Status == repository.StatusCancelled && existing.Status != repository.StatusCancelled {
		endDate := time.Now()
		if patch.EndDate != nil {
			endDate = *patch.EndDate
		}
		cancelled, err := s.repo.Cancel(ctx, id, ownerID, patch, endDate)
		if err != nil {
			return nil, fmt.Errorf("failed to cancel subscription: %w", err)
		}
		s.logger.Info("subscription cancelled", slog.String("subscription_id", id.String()))
		s.invalidator.Invalidate(ownerID, cancelled.SharedGroupID)
		return cancelled, nil
	}

	updated, err := s.repo.ApplyPatch(ctx, id, ownerID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	s.invalidator.Invalidate(ownerID, updated.SharedGroupID)
	return updated, nil
}

// Delete removes the subscription and, through the cascading foreign key,
// its entire ledger history.
func (s *Service) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	sub, err := s.repo.GetByIDForOwner(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, ownerID); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	s.logger.Info("subscription deleted", slog.String("subscription_id", id.String()))
	s.invalidator.Invalidate(ownerID, sub.SharedGroupID)
	return nil
}

func validatePatch(existing *repository.Subscription, patch repository.Patch) error {
	if patch.Name != nil && *patch.Name == "" {
		return errs.Validation("name", "must not be empty")
	}
	if patch.AmountMinor != nil && *patch.AmountMinor <= 0 {
		return errs.Validation("amount", "must be positive")
	}
	if patch.CurrencyCode != nil && money.GetCurrency(*patch.CurrencyCode) == nil {
		return errs.Validation("currency_code", fmt.Sprintf("unknown currency %q", *patch.CurrencyCode))
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return errs.Validation("status", fmt.Sprintf("unknown status %q", *patch.Status))
	}

	if patch.BillingFrequency != nil || patch.BillingDay != nil || patch.CustomFrequencyDays != nil {
		freq := existing.BillingFrequency
		day := existing.BillingDay
		customDays := existing.CustomFrequencyDays
		if patch.BillingFrequency != nil {
			freq = *patch.BillingFrequency
		}
		if patch.BillingDay != nil {
			day = *patch.BillingDay
		}
		if patch.CustomFrequencyDays != nil {
			customDays = patch.CustomFrequencyDays
		}
		if patch.ClearCustomFrequencyDays {
			customDays = nil
		}
		if err := recurrence.ValidateRule(freq, day, customDays); err != nil {
			return errs.Validation("billing_rule", err.Error())
		}
	}
	return nil
}
