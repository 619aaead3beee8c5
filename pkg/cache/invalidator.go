// Package cache signals the insights service to drop cached spending
// aggregates after a ledger mutation. The signal is fire-and-forget: it is
// dispatched off the request path and a failed delivery is logged, never
// surfaced to the caller or the enclosing transaction.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// RequestTimeout bounds a single invalidation call
	RequestTimeout = 5 * time.Second
)

// Invalidator signals that a user's (and optionally a shared group's)
// cached insights are stale.
type Invalidator interface {
	Invalidate(ownerID uuid.UUID, groupID *uuid.UUID)
}

// invalidateRequest is the insights service's invalidation payload
type invalidateRequest struct {
	OwnerID string  `json:"owner_id"`
	GroupID *string `json:"group_id,omitempty"`
}

// HTTPInvalidator posts invalidation signals to the insights service.
type HTTPInvalidator struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

// NewHTTPInvalidator creates an invalidator targeting the insights service
func NewHTTPInvalidator(baseURL string, logger *slog.Logger) *HTTPInvalidator {
	return &HTTPInvalidator{
		client: &http.Client{
			Timeout: RequestTimeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// Invalidate dispatches the signal without blocking the caller. The request
// runs on its own context so an already-finished request cannot cancel it.
func (s *HTTPInvalidator) Invalidate(ownerID uuid.UUID, groupID *uuid.UUID) {
	go s.send(ownerID, groupID)
}

func (s *HTTPInvalidator) send(ownerID uuid.UUID, groupID *uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), RequestTimeout)
	defer cancel()

	body := invalidateRequest{OwnerID: ownerID.String()}
	if groupID != nil {
		g := groupID.String()
		body.GroupID = &g
	}

	payload, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("failed to marshal cache invalidation", "error", err)
		return
	}

	url := fmt.Sprintf("%s/internal/insights/invalidate", s.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		s.logger.Error("failed to create cache invalidation request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("cache invalidation failed", "owner_id", ownerID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.logger.Warn("cache invalidation rejected", "owner_id", ownerID, "status", resp.StatusCode)
		return
	}

	s.logger.Debug("cache invalidated", "owner_id", ownerID)
}

// NoopInvalidator drops every signal. Used in tests and when no insights
// service is configured.
type NoopInvalidator struct{}

// Invalidate does nothing
func (NoopInvalidator) Invalidate(ownerID uuid.UUID, groupID *uuid.UUID) {}
