// Package receipts exposes the read-only receipt lookup this subsystem
// consumes while linking payments. Receipt capture and OCR extraction live
// elsewhere in the backend.
package receipts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Receipt is the slice of a stored receipt the ledger cares about.
type Receipt struct {
	ID               uuid.UUID
	OwnerUserID      uuid.UUID
	TransactionDate  *time.Time
	TotalAmountMinor int64
	CurrencyCode     string
}

// Store is the read-only receipt lookup used during receipt linking.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Receipt, error)
}
