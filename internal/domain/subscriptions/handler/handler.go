// Package handler exposes subscription management over JSON HTTP.
package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/receiptwise/billing-engine/internal/domain/errs"
	paymentsrepo "github.com/receiptwise/billing-engine/internal/domain/payments/repository"
	"github.com/receiptwise/billing-engine/internal/domain/recurrence"
	"github.com/receiptwise/billing-engine/internal/domain/reports"
	"github.com/receiptwise/billing-engine/internal/domain/subscriptions/repository"
	"github.com/receiptwise/billing-engine/internal/domain/subscriptions/service"
	"github.com/receiptwise/billing-engine/internal/server/middleware"
	"github.com/receiptwise/billing-engine/pkg/money"
)

const defaultUpcomingDays = 30

// Handler serves subscription endpoints
type Handler struct {
	svc     *service.Service
	reports *reports.Service
	logger  *slog.Logger
}

// NewHandler creates a new subscription handler
func NewHandler(svc *service.Service, reportsSvc *reports.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, reports: reportsSvc, logger: logger}
}

// RegisterRoutes mounts the subscription endpoints on the group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/subscriptions", h.create)
	rg.GET("/subscriptions", h.list)
	rg.GET("/subscriptions/upcoming", h.upcoming)
	rg.GET("/subscriptions/monthly-total", h.monthlyTotal)
	rg.GET("/subscriptions/:id", h.get)
	rg.PATCH("/subscriptions/:id", h.update)
	rg.DELETE("/subscriptions/:id", h.delete)
	rg.GET("/subscriptions/:id/payments", h.listPayments)
}

type createRequest struct {
	Name                string     `json:"name" binding:"required"`
	Description         *string    `json:"description"`
	Category            *string    `json:"category"`
	AmountMinor         int64      `json:"amount_minor" binding:"required"`
	CurrencyCode        string     `json:"currency_code" binding:"required"`
	BillingFrequency    string     `json:"billing_frequency" binding:"required"`
	BillingDay          int        `json:"billing_day"`
	CustomFrequencyDays *int       `json:"custom_frequency_days"`
	StartDate           time.Time  `json:"start_date" binding:"required"`
	SharedGroupID       *uuid.UUID `json:"shared_group_id"`
	IsBusinessExpense   bool       `json:"is_business_expense"`
	Website             *string    `json:"website"`
	Notes               *string    `json:"notes"`
}

type updateRequest struct {
	Name                *string    `json:"name"`
	Description         *string    `json:"description"`
	Category            *string    `json:"category"`
	AmountMinor         *int64     `json:"amount_minor"`
	CurrencyCode        *string    `json:"currency_code"`
	BillingFrequency    *string    `json:"billing_frequency"`
	BillingDay          *int       `json:"billing_day"`
	CustomFrequencyDays *int       `json:"custom_frequency_days"`
	Status              *string    `json:"status"`
	EndDate             *time.Time `json:"end_date"`
	IsBusinessExpense   *bool      `json:"is_business_expense"`
	Website             *string    `json:"website"`
	Notes               *string    `json:"notes"`
}

type subscriptionResponse struct {
	ID                  uuid.UUID    `json:"id"`
	Name                string       `json:"name"`
	Description         *string      `json:"description,omitempty"`
	Category            *string      `json:"category,omitempty"`
	Amount              *money.Money `json:"amount"`
	MonthlyEquivalent   *money.Money `json:"monthly_equivalent"`
	BillingFrequency    string       `json:"billing_frequency"`
	BillingDay          int          `json:"billing_day"`
	CustomFrequencyDays *int         `json:"custom_frequency_days,omitempty"`
	Status              string       `json:"status"`
	StartDate           time.Time    `json:"start_date"`
	NextBillingDate     time.Time    `json:"next_billing_date"`
	LastPaymentDate     *time.Time   `json:"last_payment_date,omitempty"`
	EndDate             *time.Time   `json:"end_date,omitempty"`
	SharedGroupID       *uuid.UUID   `json:"shared_group_id,omitempty"`
	IsBusinessExpense   bool         `json:"is_business_expense"`
	Website             *string      `json:"website,omitempty"`
	Notes               *string      `json:"notes,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

type paymentResponse struct {
	ID             uuid.UUID    `json:"id"`
	SubscriptionID uuid.UUID    `json:"subscription_id"`
	ExpectedDate   time.Time    `json:"expected_date"`
	ExpectedAmount *money.Money `json:"expected_amount"`
	Status         string       `json:"status"`
	ActualDate     *time.Time   `json:"actual_date,omitempty"`
	ActualAmount   *money.Money `json:"actual_amount,omitempty"`
	ReceiptID      *uuid.UUID   `json:"receipt_id,omitempty"`
	Notes          *string      `json:"notes,omitempty"`
}

func toSubscriptionResponse(sub *repository.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                  sub.ID,
		Name:                sub.Name,
		Description:         sub.Description,
		Category:            sub.Category,
		Amount:              money.New(sub.AmountMinor, sub.CurrencyCode),
		MonthlyEquivalent:   money.New(reports.MonthlyEquivalentMinor(sub), sub.CurrencyCode),
		BillingFrequency:    string(sub.BillingFrequency),
		BillingDay:          sub.BillingDay,
		CustomFrequencyDays: sub.CustomFrequencyDays,
		Status:              string(sub.Status),
		StartDate:           sub.StartDate,
		NextBillingDate:     sub.NextBillingDate,
		LastPaymentDate:     sub.LastPaymentDate,
		EndDate:             sub.EndDate,
		SharedGroupID:       sub.SharedGroupID,
		IsBusinessExpense:   sub.IsBusinessExpense,
		Website:             sub.Website,
		Notes:               sub.Notes,
		CreatedAt:           sub.CreatedAt,
		UpdatedAt:           sub.UpdatedAt,
	}
}

func toPaymentResponse(p *paymentsrepo.ExpectedPayment) paymentResponse {
	resp := paymentResponse{
		ID:             p.ID,
		SubscriptionID: p.SubscriptionID,
		ExpectedDate:   p.ExpectedDate,
		ExpectedAmount: money.New(p.ExpectedAmountMinor, p.CurrencyCode),
		Status:         string(p.Status),
		ActualDate:     p.ActualDate,
		ReceiptID:      p.ReceiptID,
		Notes:          p.Notes,
	}
	if p.ActualAmountMinor != nil {
		resp.ActualAmount = money.New(*p.ActualAmountMinor, p.CurrencyCode)
	}
	return resp
}

func (h *Handler) create(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.svc.Create(c.Request.Context(), service.CreateInput{
		OwnerUserID:         userID,
		SharedGroupID:       req.SharedGroupID,
		Name:                req.Name,
		Description:         req.Description,
		Category:            req.Category,
		AmountMinor:         req.AmountMinor,
		CurrencyCode:        req.CurrencyCode,
		BillingFrequency:    recurrence.Frequency(req.BillingFrequency),
		BillingDay:          req.BillingDay,
		CustomFrequencyDays: req.CustomFrequencyDays,
		StartDate:           req.StartDate,
		IsBusinessExpense:   req.IsBusinessExpense,
		Website:             req.Website,
		Notes:               req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSubscriptionResponse(sub))
}

func (h *Handler) list(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var filter repository.ListFilter
	if raw := c.Query("group_id"); raw != "" {
		groupID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group_id"})
			return
		}
		filter.GroupID = &groupID
	}
	if raw := c.Query("status"); raw != "" {
		status := repository.Status(raw)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		filter.Status = &status
	}

	if c.Query("include") == "payments" {
		details, err := h.svc.ListWithPayments(c.Request.Context(), userID, filter)
		if err != nil {
			h.respondError(c, err)
			return
		}
		out := make([]gin.H, len(details))
		for i, detail := range details {
			payments := make([]paymentResponse, len(detail.RecentPayments))
			for j, p := range detail.RecentPayments {
				payments[j] = toPaymentResponse(p)
			}
			out[i] = gin.H{
				"subscription":     toSubscriptionResponse(detail.Subscription),
				"recent_payments":  payments,
				"missing_payments": detail.MissingPayments,
			}
		}
		c.JSON(http.StatusOK, gin.H{"subscriptions": out})
		return
	}

	subs, err := h.svc.List(c.Request.Context(), userID, filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]subscriptionResponse, len(subs))
	for i, sub := range subs {
		out[i] = toSubscriptionResponse(sub)
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": out})
}

func (h *Handler) get(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}

	if c.Query("include") == "payments" {
		detail, err := h.svc.GetWithPayments(c.Request.Context(), id, userID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		payments := make([]paymentResponse, len(detail.RecentPayments))
		for i, p := range detail.RecentPayments {
			payments[i] = toPaymentResponse(p)
		}
		c.JSON(http.StatusOK, gin.H{
			"subscription":     toSubscriptionResponse(detail.Subscription),
			"recent_payments":  payments,
			"missing_payments": detail.MissingPayments,
		})
		return
	}

	sub, err := h.svc.Get(c.Request.Context(), id, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSubscriptionResponse(sub))
}

func (h *Handler) update(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := repository.Patch{
		Name:                req.Name,
		Description:         req.Description,
		Category:            req.Category,
		AmountMinor:         req.AmountMinor,
		CurrencyCode:        req.CurrencyCode,
		BillingDay:          req.BillingDay,
		CustomFrequencyDays: req.CustomFrequencyDays,
		EndDate:             req.EndDate,
		IsBusinessExpense:   req.IsBusinessExpense,
		Website:             req.Website,
		Notes:               req.Notes,
	}
	if req.BillingFrequency != nil {
		freq := recurrence.Frequency(*req.BillingFrequency)
		patch.BillingFrequency = &freq
	}
	if req.Status != nil {
		status := repository.Status(*req.Status)
		patch.Status = &status
	}

	sub, err := h.svc.Update(c.Request.Context(), id, userID, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSubscriptionResponse(sub))
}

func (h *Handler) delete(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id, userID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listPayments(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}

	detail, err := h.svc.GetWithPayments(c.Request.Context(), id, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	payments := make([]paymentResponse, len(detail.RecentPayments))
	for i, p := range detail.RecentPayments {
		payments[i] = toPaymentResponse(p)
	}
	c.JSON(http.StatusOK, gin.H{
		"payments":         payments,
		"missing_payments": detail.MissingPayments,
	})
}

func (h *Handler) upcoming(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	days := defaultUpcomingDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 365 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})
			return
		}
		days = parsed
	}

	subs, err := h.reports.Upcoming(c.Request.Context(), userID, days)
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]subscriptionResponse, len(subs))
	for i, sub := range subs {
		out[i] = toSubscriptionResponse(sub)
	}
	c.JSON(http.StatusOK, gin.H{"upcoming": out, "window_days": days})
}

func (h *Handler) monthlyTotal(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	totals, err := h.reports.TotalMonthlyCost(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]*money.Money, len(totals))
	for i, total := range totals {
		out[i] = money.New(total.AmountMinor, total.CurrencyCode)
	}
	c.JSON(http.StatusOK, gin.H{"totals": out})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var verr *errs.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, sql.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
	default:
		h.logger.Error("subscription request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
