// Package handler exposes payment ledger reconciliation over JSON HTTP.
package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/receiptwise/billing-engine/internal/domain/errs"
	"github.com/receiptwise/billing-engine/internal/domain/payments/repository"
	"github.com/receiptwise/billing-engine/internal/domain/payments/service"
	"github.com/receiptwise/billing-engine/internal/server/middleware"
	"github.com/receiptwise/billing-engine/pkg/money"
)

// Handler serves payment ledger endpoints
type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

// NewHandler creates a new payment handler
func NewHandler(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the payment endpoints on the group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.PATCH("/payments/:id", h.update)
	rg.POST("/payments/:id/unlink", h.unlink)
}

type updateRequest struct {
	Status            *string    `json:"status"`
	ActualDate        *time.Time `json:"actual_date"`
	ActualAmountMinor *int64     `json:"actual_amount_minor"`
	ReceiptID         *uuid.UUID `json:"receipt_id"`
	Notes             *string    `json:"notes"`
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

func toPaymentResponse(p *repository.ExpectedPayment) paymentResponse {
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

func (h *Handler) update(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := service.UpdateInput{
		ActualDate:        req.ActualDate,
		ActualAmountMinor: req.ActualAmountMinor,
		ReceiptID:         req.ReceiptID,
		Notes:             req.Notes,
	}
	if req.Status != nil {
		status := repository.Status(*req.Status)
		input.Status = &status
	}

	payment, err := h.svc.Update(c.Request.Context(), id, userID, input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(payment))
}

func (h *Handler) unlink(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	payment, err := h.svc.Unlink(c.Request.Context(), id, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(payment))
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var verr *errs.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, sql.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
	default:
		h.logger.Error("payment request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
