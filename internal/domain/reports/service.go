// Package reports derives read-side figures from the subscription store and
// the payment ledger: normalized monthly cost, upcoming charges, and missed
// cycle counts. Nothing in here writes.
package reports

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	paymentsrepo "github.com/receiptwise/billing-engine/internal/domain/payments/repository"
	"github.com/receiptwise/billing-engine/internal/domain/recurrence"
	subsrepo "github.com/receiptwise/billing-engine/internal/domain/subscriptions/repository"
)

var (
	three     = decimal.NewFromInt(3)
	twelve    = decimal.NewFromInt(12)
	thirtyDay = decimal.NewFromInt(30)
)

// MonthlyEquivalentMinor normalizes a subscription's amount to a
// per-month figure in minor units. Custom intervals are scaled against a
// thirty day month. The result is rounded half up to a whole minor unit.
func MonthlyEquivalentMinor(sub *subsrepo.Subscription) int64 {
	amount := decimal.NewFromInt(sub.AmountMinor)

	var monthly decimal.Decimal
	switch sub.BillingFrequency {
	case recurrence.FrequencyQuarterly:
		monthly = amount.Div(three)
	case recurrence.FrequencyYearly:
		monthly = amount.Div(twelve)
	case recurrence.FrequencyCustom:
		days := 30
		if sub.CustomFrequencyDays != nil && *sub.CustomFrequencyDays > 0 {
			days = *sub.CustomFrequencyDays
		}
		monthly = amount.Mul(thirtyDay).Div(decimal.NewFromInt(int64(days)))
	default:
		monthly = amount
	}

	return monthly.Round(0).IntPart()
}

// UpcomingWithinWindow filters to active subscriptions whose next due date
// falls inside [from, from+days] and orders them soonest first.
func UpcomingWithinWindow(subs []*subsrepo.Subscription, from time.Time, days int) []*subsrepo.Subscription {
	until := from.AddDate(0, 0, days)

	out := make([]*subsrepo.Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.Status != subsrepo.StatusActive {
			continue
		}
		if sub.NextBillingDate.Before(from) || sub.NextBillingDate.After(until) {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextBillingDate.Before(out[j].NextBillingDate)
	})
	return out
}

// Service answers reporting queries for one owner's subscriptions.
type Service struct {
	subs     subsrepo.SubscriptionRepository
	payments paymentsrepo.PaymentRepository
	logger   *slog.Logger
}

// NewService creates a new reports service
func NewService(subs subsrepo.SubscriptionRepository, payments paymentsrepo.PaymentRepository, logger *slog.Logger) *Service {
	return &Service{subs: subs, payments: payments, logger: logger}
}

// Upcoming returns the owner's active subscriptions due within the next
// given number of days, soonest first.
func (s *Service) Upcoming(ctx context.Context, ownerID uuid.UUID, days int) ([]*subsrepo.Subscription, error) {
	subs, err := s.subs.ListByOwner(ctx, ownerID, subsrepo.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return UpcomingWithinWindow(subs, time.Now(), days), nil
}

// MonthlyTotal is one currency's normalized monthly spend.
type MonthlyTotal struct {
	CurrencyCode string
	AmountMinor  int64
}

// TotalMonthlyCost sums the monthly equivalent of every active
// subscription, split per currency. Amounts in different currencies are
// never added together.
func (s *Service) TotalMonthlyCost(ctx context.Context, ownerID uuid.UUID) ([]MonthlyTotal, error) {
	active := subsrepo.StatusActive
	subs, err := s.subs.ListByOwner(ctx, ownerID, subsrepo.ListFilter{Status: &active})
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	byCurrency := make(map[string]int64)
	for _, sub := range subs {
		byCurrency[sub.CurrencyCode] += MonthlyEquivalentMinor(sub)
	}

	totals := make([]MonthlyTotal, 0, len(byCurrency))
	for code, amount := range byCurrency {
		totals = append(totals, MonthlyTotal{CurrencyCode: code, AmountMinor: amount})
	}
	sort.Slice(totals, func(i, j int) bool {
		return totals[i].CurrencyCode < totals[j].CurrencyCode
	})
	return totals, nil
}

// MissingPaymentsCount counts the subscription's recent cycles that are
// still unaccounted for. The subscription lookup doubles as the ownership
// check.
func (s *Service) MissingPaymentsCount(ctx context.Context, subscriptionID, ownerID uuid.UUID) (int, error) {
	if _, err := s.subs.GetByIDForOwner(ctx, subscriptionID, ownerID); err != nil {
		return 0, err
	}
	return s.payments.CountMissing(ctx, subscriptionID)
}
