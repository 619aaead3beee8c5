package reconciliation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paymentsrepo "github.com/receiptwise/billing-engine/internal/domain/payments/repository"
	"github.com/receiptwise/billing-engine/internal/domain/recurrence"
	subsrepo "github.com/receiptwise/billing-engine/internal/domain/subscriptions/repository"
)

type mockRepository struct {
	createErr   error
	createdSub  *subsrepo.Subscription
	createdPay  *paymentsrepo.ExpectedPayment
	cycleMinted bool
	cycleErr    error
	cycleParams *CycleParams
}

func (m *mockRepository) CreateSubscriptionWithInitialPayment(ctx context.Context, sub *subsrepo.Subscription, payment *paymentsrepo.ExpectedPayment) error {
	m.createdSub = sub
	m.createdPay = payment
	return m.createErr
}

func (m *mockRepository) CompleteCycle(ctx context.Context, params CycleParams) (bool, error) {
	m.cycleParams = &params
	return m.cycleMinted, m.cycleErr
}

type mockInvalidator struct {
	calls int
	owner uuid.UUID
	group *uuid.UUID
}

func (m *mockInvalidator) Invalidate(ownerID uuid.UUID, groupID *uuid.UUID) {
	m.calls++
	m.owner = ownerID
	m.group = groupID
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeSubscription() *subsrepo.Subscription {
	return &subsrepo.Subscription{
		ID:               uuid.New(),
		OwnerUserID:      uuid.New(),
		Name:             "Netflix",
		AmountMinor:      1599,
		CurrencyCode:     "USD",
		BillingFrequency: recurrence.FrequencyMonthly,
		BillingDay:       15,
		Status:           subsrepo.StatusActive,
		StartDate:        time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestEngine_CreateSubscription(t *testing.T) {
	repo := &mockRepository{}
	inv := &mockInvalidator{}
	engine := NewEngine(repo, inv, testLogger())

	sub := activeSubscription()
	sub.ID = uuid.Nil

	payment, err := engine.CreateSubscription(context.Background(), sub)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, sub.ID, "engine should assign an id")
	assert.Equal(t, time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC), sub.NextBillingDate)

	require.NotNil(t, payment)
	assert.Equal(t, sub.ID, payment.SubscriptionID)
	assert.Equal(t, sub.NextBillingDate, payment.ExpectedDate, "initial entry must carry the cached due date")
	assert.Equal(t, sub.AmountMinor, payment.ExpectedAmountMinor)
	assert.Equal(t, sub.CurrencyCode, payment.CurrencyCode)
	assert.Equal(t, paymentsrepo.StatusPending, payment.Status)

	assert.Same(t, sub, repo.createdSub)
	assert.Equal(t, 1, inv.calls)
	assert.Equal(t, sub.OwnerUserID, inv.owner)
}

func TestEngine_CreateSubscription_RepoError(t *testing.T) {
	repo := &mockRepository{createErr: errors.New("connection refused")}
	inv := &mockInvalidator{}
	engine := NewEngine(repo, inv, testLogger())

	_, err := engine.CreateSubscription(context.Background(), activeSubscription())
	require.Error(t, err)
	assert.Zero(t, inv.calls, "no invalidation on failed create")
}

func TestEngine_OnPaymentPaid(t *testing.T) {
	repo := &mockRepository{cycleMinted: true}
	inv := &mockInvalidator{}
	engine := NewEngine(repo, inv, testLogger())

	sub := activeSubscription()
	paymentID := uuid.New()
	receiptID := uuid.New()
	actualDate := time.Date(2025, time.February, 17, 0, 0, 0, 0, time.UTC)

	minted, err := engine.OnPaymentPaid(context.Background(), sub, paymentID, actualDate, 1699, &receiptID, nil)
	require.NoError(t, err)
	assert.True(t, minted)

	require.NotNil(t, repo.cycleParams)
	params := repo.cycleParams
	assert.Equal(t, sub.ID, params.SubscriptionID)
	assert.Equal(t, sub.OwnerUserID, params.OwnerUserID)
	assert.Equal(t, paymentID, params.PaymentID)
	assert.Equal(t, actualDate, params.ActualDate)
	assert.Equal(t, int64(1699), params.ActualAmountMinor)
	assert.Equal(t, &receiptID, params.ReceiptID)

	// Next cycle is anchored on the actual payment date, not the old due date.
	wantNext := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, wantNext, params.NextBillingDate)
	require.NotNil(t, params.NextPayment)
	assert.Equal(t, wantNext, params.NextPayment.ExpectedDate)
	assert.Equal(t, sub.AmountMinor, params.NextPayment.ExpectedAmountMinor, "next entry uses the subscription amount, not the actual paid amount")
	assert.Equal(t, paymentsrepo.StatusPending, params.NextPayment.Status)

	assert.Equal(t, 1, inv.calls)
}

func TestEngine_OnPaymentPaid_Duplicate(t *testing.T) {
	repo := &mockRepository{cycleMinted: false}
	inv := &mockInvalidator{}
	engine := NewEngine(repo, inv, testLogger())

	minted, err := engine.OnPaymentPaid(context.Background(), activeSubscription(), uuid.New(), time.Now(), 1599, nil, nil)
	require.NoError(t, err)
	assert.False(t, minted)
	assert.Zero(t, inv.calls, "duplicate transition must not invalidate caches")
}

func TestEngine_OnPaymentPaid_InactiveSubscription(t *testing.T) {
	for _, status := range []subsrepo.Status{subsrepo.StatusPaused, subsrepo.StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			repo := &mockRepository{cycleMinted: true}
			inv := &mockInvalidator{}
			engine := NewEngine(repo, inv, testLogger())

			sub := activeSubscription()
			sub.Status = status

			minted, err := engine.OnPaymentPaid(context.Background(), sub, uuid.New(), time.Now(), 1599, nil, nil)
			require.NoError(t, err)
			assert.False(t, minted)
			assert.Nil(t, repo.cycleParams, "inactive subscriptions must not reach the repository")
		})
	}
}

func TestEngine_OnPaymentPaid_RepoError(t *testing.T) {
	repo := &mockRepository{cycleErr: errors.New("deadlock detected")}
	inv := &mockInvalidator{}
	engine := NewEngine(repo, inv, testLogger())

	minted, err := engine.OnPaymentPaid(context.Background(), activeSubscription(), uuid.New(), time.Now(), 1599, nil, nil)
	require.Error(t, err)
	assert.False(t, minted)
	assert.Zero(t, inv.calls)
}
